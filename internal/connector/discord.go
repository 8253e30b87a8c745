package connector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/banprobe-project/banprobe/internal/config"
	"github.com/banprobe-project/banprobe/internal/events"
)

const discordFooter = "banprobe"

// Embed colors per check status.
const (
	colorBanned   = 0xFF0000
	colorUnbanned = 0x00FF00
	colorOther    = 0xFFAA00
)

// DiscordNotifier posts finished checks to a Discord webhook. Which statuses
// are posted is controlled by discord.notify_statuses.
type DiscordNotifier struct {
	cfg    *config.Config
	client *http.Client
}

type webhookEmbed struct {
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Color       int            `json:"color"`
	Timestamp   string         `json:"timestamp"`
	Fields      []webhookField `json:"fields,omitempty"`
	Footer      webhookFooter  `json:"footer"`
}

type webhookField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type webhookFooter struct {
	Text string `json:"text"`
}

// NewDiscordNotifier creates a notifier and subscribes it to completed checks.
// Nothing is sent while no webhook URL is configured.
func NewDiscordNotifier(cfg *config.Config, eventBus *events.EventBus) *DiscordNotifier {
	dn := &DiscordNotifier{
		cfg:    cfg,
		client: &http.Client{Timeout: defaultHTTPTimeout},
	}
	eventBus.Subscribe(events.EventCheckCompleted, "discord.notify", dn.onCheckCompleted)
	return dn
}

// ShouldNotify reports whether a check with status is posted.
func (dn *DiscordNotifier) ShouldNotify(status string) bool {
	discordCfg := dn.cfg.GetDiscord()
	if discordCfg.WebhookURL == "" || status == "" {
		return false
	}
	for _, s := range discordCfg.NotifyStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// Notify posts one check result. The payload never holds the access token.
func (dn *DiscordNotifier) Notify(ctx context.Context, p events.CheckCompletedPayload) error {
	webhookURL := dn.cfg.GetDiscord().WebhookURL
	if webhookURL == "" {
		return nil
	}

	embed := webhookEmbed{
		Title:     fmt.Sprintf("%s is %s", p.MCName, p.Status),
		Color:     statusColor(p.Status),
		Timestamp: p.FinishedAt.Format(time.RFC3339),
		Footer:    webhookFooter{Text: discordFooter},
		Fields: []webhookField{
			{Name: "UUID", Value: p.MCUUID},
		},
	}
	switch p.Status {
	case "banned":
		embed.Description = p.Reason
		embed.Fields = append(embed.Fields,
			webhookField{Name: "Time left", Value: p.TimeLeft, Inline: true},
			webhookField{Name: "Ban ID", Value: p.BanID, Inline: true},
		)
	case "error":
		embed.Description = p.Reason
	}

	jsonData, err := json.Marshal(map[string]interface{}{
		"embeds": []webhookEmbed{embed},
	})
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := dn.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, string(body))
	}

	log.Debug().Str("mc_name", p.MCName).Str("status", p.Status).Msg("Discord webhook notification sent")
	return nil
}

func (dn *DiscordNotifier) onCheckCompleted(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.CheckCompletedPayload)
	if !ok || !dn.ShouldNotify(payload.Status) {
		return nil
	}
	return dn.Notify(ctx, payload)
}

func statusColor(status string) int {
	switch status {
	case "banned":
		return colorBanned
	case "unbanned":
		return colorUnbanned
	default:
		return colorOther
	}
}
