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
)

// DefaultSessionJoinURL is the Mojang session server join endpoint.
const DefaultSessionJoinURL = "https://sessionserver.mojang.com/session/minecraft/join"

// SessionJoiner announces a client login to the session server so that an
// online-mode server can verify the account.
type SessionJoiner struct {
	url    string
	client *http.Client
}

type joinRequest struct {
	AccessToken     string `json:"accessToken"`
	SelectedProfile string `json:"selectedProfile"`
	ServerID        string `json:"serverId"`
}

// NewSessionJoiner creates a joiner posting to joinURL (DefaultSessionJoinURL
// when empty).
func NewSessionJoiner(joinURL string, timeout time.Duration) *SessionJoiner {
	if joinURL == "" {
		joinURL = DefaultSessionJoinURL
	}
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return &SessionJoiner{
		url:    joinURL,
		client: &http.Client{Timeout: timeout},
	}
}

// Join posts the join request. serverHash is the digest computed from the
// server's encryption request.
func (j *SessionJoiner) Join(ctx context.Context, accessToken, profileID, serverHash string) error {
	jsonData, err := json.Marshal(joinRequest{
		AccessToken:     accessToken,
		SelectedProfile: profileID,
		ServerID:        serverHash,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal join request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, j.url, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create join request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := j.client.Do(req)
	if err != nil {
		return fmt.Errorf("join request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("session server returned status %d: %s", resp.StatusCode, snippet(body))
	}

	log.Debug().Str("profile", profileID).Msg("joined session")
	return nil
}
