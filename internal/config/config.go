// Package config handles configuration loading, validation, and persistence
// for banprobe.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	DefaultConfigDir  = "config"
	DefaultConfigFile = "config.json"
	DefaultAPIPort    = 5077

	// ConfigDirEnv overrides the configuration directory.
	ConfigDirEnv = "BANPROBE_CONFIG_DIR"
)

// Config is the root configuration structure.
type Config struct {
	mu   sync.RWMutex
	path string

	Probe    ProbeConfig    `json:"probe"`
	Identity IdentityConfig `json:"identity"`
	Output   OutputConfig   `json:"output"`
	History  HistoryConfig  `json:"history"`
	API      APIConfig      `json:"api"`
	MQTT     MQTTConfig     `json:"mqtt"`
	Discord  DiscordConfig  `json:"discord"`
	Logging  LoggingConfig  `json:"logging"`
}

// ProbeConfig describes the server that is probed.
type ProbeConfig struct {
	Host            string `json:"host"`
	Port            int    `json:"port"`
	ProtocolVersion int    `json:"protocol_version"`
	TimeoutMS       int    `json:"timeout_ms"`
	DialTimeoutSec  int    `json:"dial_timeout_sec"`
}

// Timeout returns the wait bound for a terminal event.
func (p ProbeConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutMS) * time.Millisecond
}

// DialTimeout returns the TCP connect timeout.
func (p ProbeConfig) DialTimeout() time.Duration {
	return time.Duration(p.DialTimeoutSec) * time.Second
}

// IdentityConfig holds the account service endpoints.
type IdentityConfig struct {
	ProfileURL     string `json:"profile_url"`
	SessionJoinURL string `json:"session_join_url"`
	TimeoutSec     int    `json:"timeout_sec"`
}

// Timeout returns the HTTP timeout for account service calls.
func (i IdentityConfig) Timeout() time.Duration {
	return time.Duration(i.TimeoutSec) * time.Second
}

// OutputConfig controls side files written by checks.
type OutputConfig struct {
	DebugDumpEnabled bool   `json:"debug_dump_enabled"`
	DebugDumpPath    string `json:"debug_dump_path"`
}

// HistoryConfig controls the result history database.
type HistoryConfig struct {
	Enabled       bool   `json:"enabled"`
	DBPath        string `json:"db_path"`
	RetentionDays int    `json:"retention_days"`
	CleanupTime   string `json:"cleanup_time"` // HH:MM, local time
}

// APIConfig holds the local REST API settings.
type APIConfig struct {
	Host           string   `json:"host"`
	Port           int      `json:"port"`
	AllowedOrigins []string `json:"allowed_origins"`
	RateLimitRPS   float64  `json:"rate_limit_rps"`
	RateLimitBurst int      `json:"rate_limit_burst"`
	MaxConcurrent  int      `json:"max_concurrent_checks"`
	TLSEnabled     bool     `json:"tls_enabled"`
	TLSCertFile    string   `json:"tls_cert_file"`
	TLSKeyFile     string   `json:"tls_key_file"`
}

// Addr returns host:port for the API listener.
func (a APIConfig) Addr() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

// MQTTConfig holds MQTT telemetry settings.
type MQTTConfig struct {
	Enabled   bool   `json:"enabled"`
	BrokerURL string `json:"broker_url"`
	Port      int    `json:"port"`
	UseTLS    bool   `json:"use_tls"`
	CertFile  string `json:"cert_file"`
	KeyFile   string `json:"key_file"`
	CAFile    string `json:"ca_file"`
	ClientID  string `json:"client_id"`
}

// DiscordConfig holds webhook notification settings.
type DiscordConfig struct {
	WebhookURL     string   `json:"webhook_url"`
	NotifyStatuses []string `json:"notify_statuses"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `json:"level"`
	Directory  string `json:"directory"`
	MaxBackups int    `json:"max_backups"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Probe: ProbeConfig{
			Host:            "mc.hypixel.net",
			Port:            25565,
			ProtocolVersion: 47,
			TimeoutMS:       8000,
			DialTimeoutSec:  10,
		},
		Identity: IdentityConfig{
			ProfileURL:     "https://api.minecraftservices.com/minecraft/profile",
			SessionJoinURL: "https://sessionserver.mojang.com/session/minecraft/join",
			TimeoutSec:     10,
		},
		Output: OutputConfig{
			DebugDumpEnabled: true,
			DebugDumpPath:    "ban_message_debug.txt",
		},
		History: HistoryConfig{
			Enabled:       true,
			DBPath:        "data/history.db",
			RetentionDays: 30,
			CleanupTime:   "04:00",
		},
		API: APIConfig{
			Host:           "127.0.0.1",
			Port:           DefaultAPIPort,
			AllowedOrigins: []string{"http://localhost", "http://127.0.0.1"},
			RateLimitRPS:   2,
			RateLimitBurst: 5,
			MaxConcurrent:  4,
			TLSCertFile:    "config/tls/cert.pem",
			TLSKeyFile:     "config/tls/key.pem",
		},
		MQTT: MQTTConfig{
			Enabled: false,
			Port:    8883,
			UseTLS:  true,
		},
		Discord: DiscordConfig{
			NotifyStatuses: []string{"banned"},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Directory:  "logs",
			MaxBackups: 5,
		},
	}
}

// ResolveDir returns dir, or the BANPROBE_CONFIG_DIR environment variable,
// or DefaultConfigDir, whichever is set first.
func ResolveDir(dir string) string {
	if dir != "" {
		return dir
	}
	if env := os.Getenv(ConfigDirEnv); env != "" {
		return env
	}
	return DefaultConfigDir
}

// Load reads configuration from a JSON file in configDir, creating it with
// defaults when missing.
func Load(configDir string) (*Config, error) {
	configPath := filepath.Join(configDir, DefaultConfigFile)

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info().Str("path", configPath).Msg("config file not found, creating default")
			cfg := DefaultConfig()
			cfg.path = configPath
			if saveErr := cfg.Save(); saveErr != nil {
				return nil, fmt.Errorf("failed to save default config: %w", saveErr)
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	cfg.path = configPath
	log.Debug().Str("path", configPath).Msg("configuration loaded")

	// Re-save so options added since the file was written show up in it.
	if saveErr := cfg.Save(); saveErr != nil {
		log.Warn().Err(saveErr).Msg("failed to re-save config with updated defaults")
	}

	return cfg, nil
}

// Save writes the current configuration to disk.
func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(c.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	log.Debug().Str("path", c.path).Msg("configuration saved")
	return nil
}

// GetProbe returns a copy of the probe configuration.
func (c *Config) GetProbe() ProbeConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Probe
}

// GetIdentity returns a copy of the identity configuration.
func (c *Config) GetIdentity() IdentityConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Identity
}

// GetOutput returns a copy of the output configuration.
func (c *Config) GetOutput() OutputConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Output
}

// GetHistory returns a copy of the history configuration.
func (c *Config) GetHistory() HistoryConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.History
}

// GetAPI returns a copy of the API configuration.
func (c *Config) GetAPI() APIConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.API
}

// GetMQTT returns a copy of the MQTT configuration.
func (c *Config) GetMQTT() MQTTConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.MQTT
}

// GetDiscord returns a copy of the Discord configuration.
func (c *Config) GetDiscord() DiscordConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Discord
}

// GetLogging returns a copy of the logging configuration.
func (c *Config) GetLogging() LoggingConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Logging
}

// UpdateField sets one field of a section by its JSON name, e.g.
// UpdateField("history", "retention_days", 14).
func (c *Config) UpdateField(section, key string, value interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var target interface{}
	switch section {
	case "probe":
		target = &c.Probe
	case "identity":
		target = &c.Identity
	case "output":
		target = &c.Output
	case "history":
		target = &c.History
	case "api":
		target = &c.API
	case "mqtt":
		target = &c.MQTT
	case "discord":
		target = &c.Discord
	case "logging":
		target = &c.Logging
	default:
		return fmt.Errorf("unknown config section %q", section)
	}

	data, err := json.Marshal(target)
	if err != nil {
		return fmt.Errorf("failed to marshal section %s: %w", section, err)
	}
	m := make(map[string]interface{})
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("failed to decode section %s: %w", section, err)
	}
	if _, ok := m[key]; !ok {
		return fmt.Errorf("unknown field %s.%s", section, key)
	}
	m[key] = value

	updated, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to encode field %s.%s: %w", section, key, err)
	}
	if err := json.Unmarshal(updated, target); err != nil {
		return fmt.Errorf("failed to update field %s.%s: %w", section, key, err)
	}
	return nil
}

// Clone returns a deep copy of c bound to the same file path.
func (c *Config) Clone() (*Config, error) {
	c.mu.RLock()
	data, err := json.Marshal(c)
	path := c.path
	c.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}

	clone := &Config{path: path}
	if err := json.Unmarshal(data, clone); err != nil {
		return nil, fmt.Errorf("failed to copy config: %w", err)
	}
	return clone, nil
}

// Path returns the config file path.
func (c *Config) Path() string {
	return c.path
}
