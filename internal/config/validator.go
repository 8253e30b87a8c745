package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation error [%s]: %s", e.Field, e.Message)
}

// ValidationResult holds the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// IsValid returns true if there are no validation errors.
func (r *ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// AddError adds a validation error.
func (r *ValidationResult) AddError(field, message string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message})
}

// AddWarning adds a validation warning.
func (r *ValidationResult) AddWarning(field, message string) {
	r.Warnings = append(r.Warnings, ValidationError{Field: field, Message: message})
}

// Validate checks every section of cfg.
func Validate(cfg *Config) *ValidationResult {
	result := &ValidationResult{}

	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	validateProbe(&cfg.Probe, result)
	validateIdentity(&cfg.Identity, result)
	validateOutput(&cfg.Output, result)
	validateHistory(&cfg.History, result)
	validateAPI(&cfg.API, result)
	validateMQTT(&cfg.MQTT, result)
	validateDiscord(&cfg.Discord, result)
	validateLogging(&cfg.Logging, result)

	return result
}

func validateProbe(p *ProbeConfig, result *ValidationResult) {
	if strings.TrimSpace(p.Host) == "" {
		result.AddError("probe.host", "server host is required")
	}
	validatePort(p.Port, "probe.port", result)

	if p.ProtocolVersion != 47 {
		result.AddWarning("probe.protocol_version",
			fmt.Sprintf("protocol %d is not 1.8 (47); packet ids may not match", p.ProtocolVersion))
	}
	if p.TimeoutMS < 1 {
		result.AddError("probe.timeout_ms", "timeout must be positive")
	} else if p.TimeoutMS < 1000 {
		result.AddWarning("probe.timeout_ms", "timeout under 1s will report most checks as timeout")
	}
	if p.DialTimeoutSec < 1 {
		result.AddError("probe.dial_timeout_sec", "dial timeout must be at least 1 second")
	}
}

func validateIdentity(i *IdentityConfig, result *ValidationResult) {
	validateURL(i.ProfileURL, "identity.profile_url", true, result)
	validateURL(i.SessionJoinURL, "identity.session_join_url", true, result)
	if i.TimeoutSec < 1 {
		result.AddError("identity.timeout_sec", "timeout must be at least 1 second")
	}
}

func validateOutput(o *OutputConfig, result *ValidationResult) {
	if o.DebugDumpEnabled && strings.TrimSpace(o.DebugDumpPath) == "" {
		result.AddError("output.debug_dump_path", "debug dump path is required when the dump is enabled")
	}
}

func validateHistory(h *HistoryConfig, result *ValidationResult) {
	if !h.Enabled {
		return
	}
	if strings.TrimSpace(h.DBPath) == "" {
		result.AddError("history.db_path", "database path is required when history is enabled")
	}
	if h.RetentionDays < 1 {
		result.AddError("history.retention_days", "retention days must be at least 1")
	}
	if _, err := time.Parse("15:04", h.CleanupTime); err != nil {
		result.AddError("history.cleanup_time",
			fmt.Sprintf("invalid cleanup time %q (expected HH:MM)", h.CleanupTime))
	}
}

func validateAPI(a *APIConfig, result *ValidationResult) {
	validatePort(a.Port, "api.port", result)

	if ip := net.ParseIP(a.Host); ip == nil && a.Host != "localhost" {
		result.AddError("api.host", fmt.Sprintf("invalid listen address %q", a.Host))
	} else if ip != nil && !ip.IsLoopback() {
		result.AddWarning("api.host",
			"API is reachable from other hosts; anyone who can reach it can run checks")
	}

	if a.TLSEnabled {
		if strings.TrimSpace(a.TLSCertFile) == "" {
			result.AddError("api.tls_cert_file", "TLS certificate file is required when TLS is enabled")
		}
		if strings.TrimSpace(a.TLSKeyFile) == "" {
			result.AddError("api.tls_key_file", "TLS key file is required when TLS is enabled")
		}
	}

	if a.RateLimitRPS <= 0 {
		result.AddWarning("api.rate_limit_rps", "rate limiting is disabled")
	} else if a.RateLimitBurst < 1 {
		result.AddError("api.rate_limit_burst", "burst must be at least 1 when rate limiting is enabled")
	}

	if a.MaxConcurrent < 1 {
		result.AddError("api.max_concurrent_checks", "at least one concurrent check is required")
	}
}

func validateMQTT(m *MQTTConfig, result *ValidationResult) {
	if !m.Enabled {
		return
	}
	if strings.TrimSpace(m.BrokerURL) == "" {
		result.AddError("mqtt.broker_url", "MQTT broker URL is required when enabled")
	}
	if m.Port < 1 || m.Port > 65535 {
		result.AddError("mqtt.port", "invalid MQTT port")
	}
	if m.UseTLS && (m.CertFile == "") != (m.KeyFile == "") {
		result.AddError("mqtt.cert_file", "client certificate and key must be set together")
	}
}

func validateDiscord(d *DiscordConfig, result *ValidationResult) {
	if d.WebhookURL == "" {
		return
	}
	validateURL(d.WebhookURL, "discord.webhook_url", false, result)
	for _, s := range d.NotifyStatuses {
		switch s {
		case "unbanned", "banned", "timeout", "error":
		default:
			result.AddError("discord.notify_statuses", fmt.Sprintf("unknown status %q", s))
		}
	}
}

func validateLogging(l *LoggingConfig, result *ValidationResult) {
	if _, err := zerolog.ParseLevel(l.Level); err != nil {
		result.AddWarning("logging.level", fmt.Sprintf("unknown level %q, info will be used", l.Level))
	}
	if l.MaxBackups < 0 {
		result.AddError("logging.max_backups", "max backups cannot be negative")
	}
}

func validateURL(raw, field string, required bool, result *ValidationResult) {
	if strings.TrimSpace(raw) == "" {
		if required {
			result.AddError(field, "URL is required")
		}
		return
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		result.AddError(field, fmt.Sprintf("invalid URL %q", raw))
		return
	}
	if u.Scheme != "https" {
		result.AddWarning(field, "URL does not use https")
	}
}

func validatePort(port int, field string, result *ValidationResult) {
	if port < 1 || port > 65535 {
		result.AddError(field, fmt.Sprintf("invalid port number: %d (must be 1-65535)", port))
	}
}

// IsPortAvailable checks if a TCP address can be bound.
func IsPortAvailable(addr string) bool {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return false
	}
	ln.Close()
	return true
}
