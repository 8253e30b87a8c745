// Package checker ties one ban check together: resolve the account behind an
// access token, probe the server with it, and turn the outcome into a Result.
package checker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/banprobe-project/banprobe/internal/banparse"
	"github.com/banprobe-project/banprobe/internal/chat"
	"github.com/banprobe-project/banprobe/internal/connector"
	"github.com/banprobe-project/banprobe/internal/db"
	"github.com/banprobe-project/banprobe/internal/events"
	"github.com/banprobe-project/banprobe/internal/probe"
	"github.com/banprobe-project/banprobe/internal/protocol"
	"github.com/banprobe-project/banprobe/internal/util"
)

// NotAvailable fills result fields that do not apply to a status.
const NotAvailable = "N/A"

const eventSource = "checker"

// Result is the outcome of one check, as printed by the CLI and returned by
// the API.
type Result struct {
	MCName   string `json:"mc_name"`
	MCUUID   string `json:"mc_uuid"`
	Status   string `json:"status"`
	Reason   string `json:"reason"`
	TimeLeft string `json:"time_left"`
	BanID    string `json:"ban_id"`
}

// Resolver maps an access token to the account it belongs to.
type Resolver interface {
	Resolve(ctx context.Context, accessToken string) (connector.Identity, error)
}

// Recorder stores finished checks.
type Recorder interface {
	Record(ctx context.Context, e db.HistoryEntry) error
}

// Emitter publishes check events.
type Emitter interface {
	Emit(ctx context.Context, event events.Event)
}

// Options configures a Checker. History and Events are optional. An empty
// DumpPath disables the debug dump.
type Options struct {
	Target   probe.Target
	DumpPath string
	History  Recorder
	Events   Emitter
}

// Checker runs checks. It is safe for concurrent use.
type Checker struct {
	resolver Resolver
	probe    *probe.Probe
	opts     Options
	logger   zerolog.Logger
	now      func() time.Time
}

// New creates a checker.
func New(resolver Resolver, p *probe.Probe, opts Options) *Checker {
	if opts.Target.Host == "" {
		opts.Target.Host = probe.DefaultHost
	}
	if opts.Target.Port == 0 {
		opts.Target.Port = probe.DefaultPort
	}
	return &Checker{
		resolver: resolver,
		probe:    p,
		opts:     opts,
		logger:   util.ComponentLogger("checker"),
		now:      time.Now,
	}
}

// NewSessionFactory returns a probe session factory backed by real login
// sessions. joiner answers encryption requests from online-mode servers.
func NewSessionFactory(dialTimeout time.Duration, joiner protocol.Joiner) probe.SessionFactory {
	return func(target probe.Target, creds probe.Credentials) probe.Session {
		return protocol.NewLoginSession(protocol.LoginOptions{
			Host:            target.Host,
			Port:            target.Port,
			ProtocolVersion: target.ProtocolVersion,
			DialTimeout:     dialTimeout,
			Name:            creds.Name,
			ProfileID:       creds.ProfileID,
			AccessToken:     creds.AccessToken,
		}, joiner)
	}
}

// Check runs one check for accessToken. An error is returned only when the
// account could not be resolved; every probe outcome yields a Result.
func (c *Checker) Check(ctx context.Context, accessToken string) (*Result, error) {
	checkID := uuid.NewString()
	started := c.now()
	logger := c.logger.With().Str("check_id", checkID).Logger()

	c.emit(ctx, events.EventCheckStarted, events.CheckStartedPayload{CheckID: checkID})
	c.emit(ctx, events.EventCheckProgress, events.CheckProgressPayload{
		CheckID: checkID,
		Stage:   events.StageResolvingProfile,
	})

	identity, err := c.resolver.Resolve(ctx, accessToken)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to resolve profile")
		c.emit(ctx, events.EventCheckCompleted, events.CheckCompletedPayload{
			CheckID:    checkID,
			Error:      err.Error(),
			Duration:   c.now().Sub(started),
			FinishedAt: c.now().UTC(),
		})
		return nil, err
	}

	logger = logger.With().Str("mc_name", identity.Name).Logger()
	c.emit(ctx, events.EventCheckProgress, events.CheckProgressPayload{
		CheckID: checkID,
		Stage:   events.StageConnecting,
		MCName:  identity.Name,
	})

	outcome := c.probe.Run(ctx, c.opts.Target, probe.Credentials{
		Name:        identity.Name,
		ProfileID:   identity.ID,
		AccessToken: accessToken,
	})

	result := &Result{
		MCName:   identity.Name,
		MCUUID:   identity.ID,
		Status:   string(outcome.Status),
		Reason:   NotAvailable,
		TimeLeft: NotAvailable,
		BanID:    NotAvailable,
	}

	switch outcome.Status {
	case probe.StatusBanned:
		c.emit(ctx, events.EventCheckProgress, events.CheckProgressPayload{
			CheckID: checkID,
			Stage:   events.StageParsing,
			MCName:  identity.Name,
		})
		text := chat.Flatten(outcome.Payload)
		c.writeDump(text, outcome.Payload)

		rec := banparse.Parse(text)
		result.Reason = rec.Reason
		result.TimeLeft = rec.TimeLeft
		result.BanID = rec.BanID
	case probe.StatusError:
		result.Reason = outcome.Message()
	}

	finished := c.now()
	duration := finished.Sub(started)

	logger.Info().
		Str("status", result.Status).
		Dur("duration", duration).
		Msg("check finished")

	if c.opts.History != nil {
		err := c.opts.History.Record(ctx, db.HistoryEntry{
			CheckID:   checkID,
			MCName:    result.MCName,
			MCUUID:    result.MCUUID,
			Status:    result.Status,
			Reason:    result.Reason,
			TimeLeft:  result.TimeLeft,
			BanID:     result.BanID,
			CheckedAt: finished,
			Duration:  duration,
		})
		if err != nil {
			logger.Warn().Err(err).Msg("failed to record check history")
		}
	}

	c.emit(ctx, events.EventCheckCompleted, events.CheckCompletedPayload{
		CheckID:    checkID,
		MCName:     result.MCName,
		MCUUID:     result.MCUUID,
		Status:     result.Status,
		Reason:     result.Reason,
		TimeLeft:   result.TimeLeft,
		BanID:      result.BanID,
		Duration:   duration,
		FinishedAt: finished.UTC(),
	})

	return result, nil
}

func (c *Checker) emit(ctx context.Context, eventType events.EventType, payload interface{}) {
	if c.opts.Events == nil {
		return
	}
	c.opts.Events.Emit(ctx, events.New(eventType, eventSource, payload))
}

// writeDump saves the disconnect message for inspection. Failures are logged
// and otherwise ignored.
func (c *Checker) writeDump(text string, payload chat.Component) {
	if c.opts.DumpPath == "" {
		return
	}
	data, err := FormatDump(text, payload)
	if err != nil {
		c.logger.Debug().Err(err).Msg("failed to format debug dump")
		return
	}
	if err := os.WriteFile(c.opts.DumpPath, data, 0644); err != nil {
		c.logger.Debug().Err(err).Str("path", c.opts.DumpPath).Msg("failed to write debug dump")
	}
}

// FormatDump renders the debug dump: the flattened text followed by the
// payload as indented JSON.
func FormatDump(text string, payload chat.Component) ([]byte, error) {
	var structure bytes.Buffer
	enc := json.NewEncoder(&structure)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(payload); err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}

	var out bytes.Buffer
	out.WriteString("=== RAW TEXT ===\n")
	out.WriteString(text)
	out.WriteString("\n\n=== JSON STRUCTURE ===\n")
	out.Write(bytes.TrimRight(structure.Bytes(), "\n"))
	return out.Bytes(), nil
}
