// Package telemetry publishes check summaries over MQTT.
package telemetry

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/banprobe-project/banprobe/internal/config"
	"github.com/banprobe-project/banprobe/internal/events"
	"github.com/banprobe-project/banprobe/internal/util"
)

// MQTT topics
const (
	TopicChecks = "banprobe/checks"
	TopicAdmin  = "banprobe/admin"
)

// ErrDisabled is returned by NewMQTTHandler when telemetry is switched off.
var ErrDisabled = errors.New("MQTT is disabled")

// CheckSummary is what is published for a finished check. Ban reasons and
// access tokens are not published.
type CheckSummary struct {
	CheckID    string  `json:"check_id"`
	MCName     string  `json:"mc_name"`
	MCUUID     string  `json:"mc_uuid"`
	Status     string  `json:"status"`
	TimeLeft   string  `json:"time_left,omitempty"`
	BanID      string  `json:"ban_id,omitempty"`
	DurationMS float64 `json:"duration_ms"`
	FinishedAt string  `json:"finished_at"`
}

// MQTTHandler manages the broker connection and publishes check events.
type MQTTHandler struct {
	cfg      config.MQTTConfig
	eventBus *events.EventBus
	client   mqtt.Client

	// Metadata included in every message
	metadata map[string]interface{}
}

// NewMQTTHandler creates a handler from the mqtt config section. It returns
// ErrDisabled when mqtt.enabled is false.
func NewMQTTHandler(cfg *config.Config, eventBus *events.EventBus, appVersion string) (*MQTTHandler, error) {
	mqttCfg := cfg.GetMQTT()
	if !mqttCfg.Enabled {
		return nil, ErrDisabled
	}

	sysInfo := util.GetSystemInfo()
	handler := &MQTTHandler{
		cfg:      mqttCfg,
		eventBus: eventBus,
		metadata: map[string]interface{}{
			"hostname":    sysInfo.Hostname,
			"platform":    sysInfo.Platform,
			"arch":        sysInfo.Architecture,
			"app_version": appVersion,
		},
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(BrokerAddress(mqttCfg))

	if mqttCfg.ClientID != "" {
		opts.SetClientID(mqttCfg.ClientID)
	} else {
		opts.SetClientID(fmt.Sprintf("banprobe-%s", sysInfo.Hostname))
	}

	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetCleanSession(true)

	if mqttCfg.UseTLS {
		tlsConfig, err := buildTLSConfig(mqttCfg)
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsConfig)
	}

	opts.SetOnConnectHandler(func(client mqtt.Client) {
		log.Info().Msg("MQTT connected")
	})
	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		log.Warn().Err(err).Msg("MQTT connection lost")
	})

	handler.client = mqtt.NewClient(opts)
	return handler, nil
}

// BrokerAddress returns the broker URL for paho.
func BrokerAddress(c config.MQTTConfig) string {
	scheme := "tcp"
	if c.UseTLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, c.BrokerURL, c.Port)
}

func buildTLSConfig(c config.MQTTConfig) (*tls.Config, error) {
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}

	if c.CAFile != "" {
		pem, err := os.ReadFile(c.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read MQTT CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in MQTT CA file %s", c.CAFile)
		}
		tlsConfig.RootCAs = pool
	}

	// mTLS
	if c.CertFile != "" && c.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load MQTT TLS certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	return tlsConfig, nil
}

// Start connects to the broker, publishes check events until ctx is
// cancelled, then announces shutdown and disconnects.
func (h *MQTTHandler) Start(ctx context.Context) error {
	log.Info().
		Str("broker", h.cfg.BrokerURL).
		Int("port", h.cfg.Port).
		Msg("connecting to MQTT broker")

	token := h.client.Connect()
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("MQTT connect failed: %w", token.Error())
	}

	h.eventBus.Subscribe(events.EventCheckCompleted, "mqtt.checkCompleted", h.onCheckCompleted)
	defer h.eventBus.Unsubscribe(events.EventCheckCompleted, "mqtt.checkCompleted")

	<-ctx.Done()

	h.PublishShutdown()
	h.client.Disconnect(5000)
	log.Info().Msg("MQTT disconnected")

	return nil
}

// publish sends a JSON message to an MQTT topic.
func (h *MQTTHandler) publish(topic string, payload interface{}) {
	if !h.client.IsConnected() {
		return
	}

	data, err := json.Marshal(h.buildMessage(payload))
	if err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("failed to marshal MQTT message")
		return
	}

	token := h.client.Publish(topic, 1, false, data) // QoS 1
	go func() {
		token.Wait()
		if token.Error() != nil {
			log.Warn().Err(token.Error()).Str("topic", topic).Msg("MQTT publish failed")
		}
	}()
}

// buildMessage combines metadata with the event payload.
func (h *MQTTHandler) buildMessage(payload interface{}) map[string]interface{} {
	msg := make(map[string]interface{}, len(h.metadata)+2)
	for k, v := range h.metadata {
		msg[k] = v
	}
	msg["payload"] = payload
	msg["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	return msg
}

func (h *MQTTHandler) onCheckCompleted(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.CheckCompletedPayload)
	if !ok || payload.Status == "" {
		return nil
	}
	h.publish(TopicChecks, Summarize(payload))
	return nil
}

// Summarize converts a completed-check event into the published summary.
func Summarize(p events.CheckCompletedPayload) CheckSummary {
	s := CheckSummary{
		CheckID:    p.CheckID,
		MCName:     p.MCName,
		MCUUID:     p.MCUUID,
		Status:     p.Status,
		DurationMS: float64(p.Duration) / float64(time.Millisecond),
		FinishedAt: p.FinishedAt.UTC().Format(time.RFC3339),
	}
	if p.Status == "banned" {
		s.TimeLeft = p.TimeLeft
		s.BanID = p.BanID
	}
	return s
}

// PublishShutdown sends a shutdown message to the admin topic.
func (h *MQTTHandler) PublishShutdown() {
	h.publish(TopicAdmin, map[string]interface{}{
		"event": "shutdown",
	})
}
