package telemetry

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banprobe-project/banprobe/internal/config"
	"github.com/banprobe-project/banprobe/internal/events"
	"github.com/banprobe-project/banprobe/internal/util"
)

func TestNewMQTTHandlerDisabled(t *testing.T) {
	bus := events.NewEventBus()
	defer bus.Stop()

	h, err := NewMQTTHandler(config.DefaultConfig(), bus, "test")
	assert.Nil(t, h)
	assert.True(t, errors.Is(err, ErrDisabled))
}

func TestNewMQTTHandlerMetadata(t *testing.T) {
	bus := events.NewEventBus()
	defer bus.Stop()

	cfg := config.DefaultConfig()
	cfg.MQTT.Enabled = true
	cfg.MQTT.BrokerURL = "broker.example.com"
	cfg.MQTT.UseTLS = false

	h, err := NewMQTTHandler(cfg, bus, "1.2.3")
	require.NoError(t, err)
	assert.Equal(t, "1.2.3", h.metadata["app_version"])

	msg := h.buildMessage(map[string]string{"k": "v"})
	assert.Equal(t, "1.2.3", msg["app_version"])
	assert.Equal(t, map[string]string{"k": "v"}, msg["payload"])
	assert.NotEmpty(t, msg["timestamp"])
}

func TestBrokerAddress(t *testing.T) {
	c := config.MQTTConfig{BrokerURL: "broker.example.com", Port: 8883, UseTLS: true}
	assert.Equal(t, "ssl://broker.example.com:8883", BrokerAddress(c))

	c.UseTLS = false
	c.Port = 1883
	assert.Equal(t, "tcp://broker.example.com:1883", BrokerAddress(c))
}

func TestBuildTLSConfig(t *testing.T) {
	dir := t.TempDir()
	certFile := filepath.Join(dir, "client.pem")
	keyFile := filepath.Join(dir, "client.key")
	require.NoError(t, util.GenerateSelfSignedCert(certFile, keyFile))

	tlsConfig, err := buildTLSConfig(config.MQTTConfig{CertFile: certFile, KeyFile: keyFile, CAFile: certFile})
	require.NoError(t, err)
	assert.Len(t, tlsConfig.Certificates, 1)
	assert.NotNil(t, tlsConfig.RootCAs)

	badCA := filepath.Join(dir, "empty.pem")
	require.NoError(t, os.WriteFile(badCA, []byte("nothing here"), 0644))
	_, err = buildTLSConfig(config.MQTTConfig{CAFile: badCA})
	assert.Error(t, err)

	_, err = buildTLSConfig(config.MQTTConfig{CertFile: filepath.Join(dir, "missing"), KeyFile: keyFile})
	assert.Error(t, err)
}

func TestSummarize(t *testing.T) {
	finished := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	banned := Summarize(events.CheckCompletedPayload{
		CheckID:    "c1",
		MCName:     "Notch",
		MCUUID:     "069a79f444e94726a5befca90e38aaf5",
		Status:     "banned",
		Reason:     "Cheating through the use of unfair game advantages.",
		TimeLeft:   "29d 23h 59m 59s",
		BanID:      "#8B5C3D1A",
		Duration:   1500 * time.Millisecond,
		FinishedAt: finished,
	})
	assert.Equal(t, CheckSummary{
		CheckID:    "c1",
		MCName:     "Notch",
		MCUUID:     "069a79f444e94726a5befca90e38aaf5",
		Status:     "banned",
		TimeLeft:   "29d 23h 59m 59s",
		BanID:      "#8B5C3D1A",
		DurationMS: 1500,
		FinishedAt: "2026-03-01T12:00:00Z",
	}, banned)

	unbanned := Summarize(events.CheckCompletedPayload{Status: "unbanned", TimeLeft: "N/A", BanID: "N/A"})
	assert.Empty(t, unbanned.TimeLeft)
	assert.Empty(t, unbanned.BanID)
}
