// Package probe runs a single login attempt against a server and reports
// whether the account was admitted, turned away, or neither.
package probe

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/banprobe-project/banprobe/internal/chat"
	"github.com/banprobe-project/banprobe/internal/util"
)

// Status is the terminal status of a probe run.
type Status string

const (
	StatusUnbanned Status = "unbanned"
	StatusBanned   Status = "banned"
	StatusTimeout  Status = "timeout"
	StatusError    Status = "error"
)

// DefaultTimeout bounds the wait for a terminal event once connected
// (800 polls of 10 ms in the original tool).
const DefaultTimeout = 8 * time.Second

// DefaultHost and DefaultPort address the Hypixel network.
const (
	DefaultHost = "mc.hypixel.net"
	DefaultPort = 25565
)

// Session is one login attempt. Handlers are registered before Connect and
// may be called from another goroutine.
type Session interface {
	OnJoinGame(fn func())
	OnLoginDisconnect(fn func(reason string))
	OnError(fn func(err error))
	Connect(ctx context.Context) error
	Close() error
}

// Target is the server to probe.
type Target struct {
	Host            string
	Port            uint16
	ProtocolVersion int32
}

// Credentials identify the account to log in with.
type Credentials struct {
	Name        string
	ProfileID   string
	AccessToken string
}

// SessionFactory creates a fresh session for one run.
type SessionFactory func(target Target, creds Credentials) Session

// Outcome is the result of a run. Payload is set for StatusBanned and Err
// for StatusError.
type Outcome struct {
	Status  Status
	Payload chat.Component
	Err     error
}

// Message returns the error text of an errored outcome.
func (o Outcome) Message() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

// Probe runs login attempts. It holds no per-run state and may be shared.
type Probe struct {
	newSession SessionFactory
	timeout    time.Duration
	logger     zerolog.Logger
}

// New creates a probe. A non-positive timeout selects DefaultTimeout.
func New(factory SessionFactory, timeout time.Duration) *Probe {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Probe{
		newSession: factory,
		timeout:    timeout,
		logger:     util.ComponentLogger("probe"),
	}
}

// Timeout returns the wait bound used after connecting.
func (p *Probe) Timeout() time.Duration {
	return p.timeout
}

// Run performs one login attempt. The first terminal event wins: join game,
// login disconnect or session error. If none arrives within the timeout the
// outcome is StatusTimeout. The session is always closed before Run returns.
func (p *Probe) Run(ctx context.Context, target Target, creds Credentials) Outcome {
	session := p.newSession(target, creds)
	defer func() {
		if err := session.Close(); err != nil {
			p.logger.Debug().Err(err).Msg("session close failed")
		}
	}()

	terminal := make(chan Outcome, 1)
	deliver := func(o Outcome) {
		select {
		case terminal <- o:
		default:
		}
	}

	session.OnJoinGame(func() {
		deliver(Outcome{Status: StatusUnbanned})
	})
	session.OnLoginDisconnect(func(reason string) {
		deliver(Outcome{Status: StatusBanned, Payload: chat.FromReason(reason)})
	})
	session.OnError(func(err error) {
		deliver(Outcome{Status: StatusError, Err: err})
	})

	p.logger.Debug().
		Str("host", target.Host).
		Uint16("port", target.Port).
		Str("account", creds.Name).
		Msg("connecting")

	if err := session.Connect(ctx); err != nil {
		return Outcome{Status: StatusError, Err: err}
	}

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	select {
	case o := <-terminal:
		p.logger.Debug().Str("status", string(o.Status)).Msg("probe finished")
		return o
	case <-timer.C:
		p.logger.Debug().Dur("timeout", p.timeout).Msg("no response from server")
		return Outcome{Status: StatusTimeout}
	case <-ctx.Done():
		return Outcome{Status: StatusError, Err: ctx.Err()}
	}
}
