package protocol

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	mcnet "github.com/Tnze/go-mc/net"
	pk "github.com/Tnze/go-mc/net/packet"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/banprobe-project/banprobe/internal/chat"
)

// DefaultDialTimeout bounds the TCP connect when LoginOptions leaves it unset.
const DefaultDialTimeout = 10 * time.Second

// ErrSessionClosed is returned by Connect after Close.
var ErrSessionClosed = errors.New("login session is closed")

// Joiner announces a login to the session server during the encryption
// handshake of an online-mode server.
type Joiner interface {
	Join(ctx context.Context, accessToken, profileID, serverHash string) error
}

// LoginOptions describes the server to log into and the account to use.
type LoginOptions struct {
	Host            string
	Port            uint16
	ProtocolVersion int32
	DialTimeout     time.Duration

	Name        string
	ProfileID   string // undashed UUID
	AccessToken string
}

// DisconnectError reports that the server ended the session after login
// succeeded. Its message is the plain text of the server's reason.
type DisconnectError struct {
	Reason string
}

func (e *DisconnectError) Error() string {
	return e.Reason
}

type handlers struct {
	joinGame        func()
	loginDisconnect func(reason string)
	onError         func(err error)
}

// LoginSession drives one login attempt against a server. Handlers must be
// registered before Connect; they are invoked from the session's read loop
// goroutine. A session is single-use.
type LoginSession struct {
	mu     sync.Mutex
	opts   LoginOptions
	joiner Joiner
	logger zerolog.Logger

	h      handlers
	socket net.Conn
	cancel context.CancelFunc
	done   chan struct{}
	closed bool
}

// NewLoginSession creates a session. joiner may be nil when the target is
// known to run in offline mode; an encryption request then fails the session.
func NewLoginSession(opts LoginOptions, joiner Joiner) *LoginSession {
	if opts.ProtocolVersion == 0 {
		opts.ProtocolVersion = ProtocolVersion1_8
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = DefaultDialTimeout
	}
	return &LoginSession{
		opts:   opts,
		joiner: joiner,
		logger: log.With().
			Str("component", "login_session").
			Str("server", opts.Host).
			Str("account", opts.Name).
			Logger(),
	}
}

// OnJoinGame registers the handler for the play-state Join Game packet.
func (s *LoginSession) OnJoinGame(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.h.joinGame = fn
}

// OnLoginDisconnect registers the handler for a login-state Disconnect. It
// receives the raw reason string, normally a JSON chat component.
func (s *LoginSession) OnLoginDisconnect(fn func(reason string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.h.loginDisconnect = fn
}

// OnError registers the handler for failures after Connect returned,
// including a play-state disconnect (*DisconnectError). Errors caused by
// Close are not reported.
func (s *LoginSession) OnError(fn func(err error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.h.onError = fn
}

// Connect dials the server, sends Handshake and Login Start and starts the
// read loop. It returns once the login request is on the wire.
func (s *LoginSession) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.socket != nil {
		s.mu.Unlock()
		return fmt.Errorf("login session already connected")
	}
	s.mu.Unlock()

	addr := net.JoinHostPort(s.opts.Host, strconv.Itoa(int(s.opts.Port)))
	dialer := net.Dialer{Timeout: s.opts.DialTimeout}
	socket, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	conn := mcnet.WrapConn(socket)

	if err := conn.WritePacket(BuildHandshake(s.opts.ProtocolVersion, s.opts.Host, s.opts.Port)); err != nil {
		socket.Close()
		return fmt.Errorf("failed to send handshake: %w", err)
	}
	if err := conn.WritePacket(BuildLoginStart(s.opts.Name)); err != nil {
		socket.Close()
		return fmt.Errorf("failed to send login start: %w", err)
	}

	loopCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancel()
		socket.Close()
		return ErrSessionClosed
	}
	s.socket = socket
	s.cancel = cancel
	s.done = make(chan struct{})
	h := s.h
	done := s.done
	s.mu.Unlock()

	s.logger.Debug().Str("addr", addr).Int32("protocol", s.opts.ProtocolVersion).Msg("login request sent")

	go s.readLoop(loopCtx, conn, h, done)
	return nil
}

// Close tears down the connection and waits for the read loop to exit.
// It is safe to call more than once.
func (s *LoginSession) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	socket, cancel, done := s.socket, s.cancel, s.done
	s.mu.Unlock()

	if socket == nil {
		return nil
	}

	cancel()
	err := socket.Close()
	<-done

	s.logger.Debug().Msg("login session closed")
	if err != nil {
		return fmt.Errorf("failed to close connection: %w", err)
	}
	return nil
}

func (s *LoginSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *LoginSession) readLoop(ctx context.Context, conn *mcnet.Conn, h handlers, done chan struct{}) {
	defer close(done)

	state := stateLogin
	for {
		var p pk.Packet
		if err := conn.ReadPacket(&p); err != nil {
			s.fail(h, fmt.Errorf("failed to read %s packet: %w", state, err))
			return
		}

		var (
			finished bool
			err      error
		)
		switch state {
		case stateLogin:
			state, finished, err = s.handleLogin(ctx, conn, p, h)
		case statePlay:
			finished, err = s.handlePlay(conn, p, h)
		}
		if err != nil {
			s.fail(h, err)
			return
		}
		if finished {
			return
		}
	}
}

func (s *LoginSession) fail(h handlers, err error) {
	if s.isClosed() {
		return
	}
	s.logger.Debug().Err(err).Msg("login session failed")
	if h.onError != nil {
		h.onError(err)
	}
}

func (s *LoginSession) handleLogin(ctx context.Context, conn *mcnet.Conn, p pk.Packet, h handlers) (connState, bool, error) {
	switch p.ID {
	case PktLoginDisconnect:
		reason, err := ParseDisconnect(p)
		if err != nil {
			return stateLogin, false, err
		}
		s.logger.Debug().Msg("disconnected during login")
		if h.loginDisconnect != nil {
			h.loginDisconnect(reason)
		}
		return stateLogin, true, nil

	case PktEncryptionRequest:
		if err := s.encrypt(ctx, conn, p); err != nil {
			return stateLogin, false, err
		}
		return stateLogin, false, nil

	case PktLoginSuccess:
		s.logger.Debug().Msg("login success")
		return statePlay, false, nil

	case PktLoginSetCompression:
		threshold, err := ParseSetCompression(p)
		if err != nil {
			return stateLogin, false, err
		}
		conn.SetThreshold(threshold)
		return stateLogin, false, nil

	default:
		s.logger.Debug().Int32("packet_id", p.ID).Msg("ignoring unexpected login packet")
		return stateLogin, false, nil
	}
}

func (s *LoginSession) handlePlay(conn *mcnet.Conn, p pk.Packet, h handlers) (bool, error) {
	switch p.ID {
	case PktJoinGame:
		s.logger.Debug().Msg("joined game")
		if h.joinGame != nil {
			h.joinGame()
		}
		return true, nil

	case PktKeepAliveClient:
		id, err := ParseKeepAlive(p)
		if err != nil {
			return false, err
		}
		if err := conn.WritePacket(BuildKeepAlive(id)); err != nil {
			return false, fmt.Errorf("failed to answer keep alive: %w", err)
		}
		return false, nil

	case PktPlayDisconnect:
		reason, err := ParseDisconnect(p)
		if err != nil {
			return false, err
		}
		return false, &DisconnectError{Reason: chat.Flatten(chat.FromReason(reason))}

	case PktPlaySetCompression:
		threshold, err := ParseSetCompression(p)
		if err != nil {
			return false, err
		}
		conn.SetThreshold(threshold)
		return false, nil
	}
	return false, nil
}

// encrypt answers an encryption request: it joins the session server with
// the computed server hash, sends the encrypted shared secret and switches
// the connection to CFB8.
func (s *LoginSession) encrypt(ctx context.Context, conn *mcnet.Conn, p pk.Packet) error {
	req, err := ParseEncryptionRequest(p)
	if err != nil {
		return err
	}
	if s.joiner == nil {
		return fmt.Errorf("server requested encryption but no session joiner is configured")
	}

	secret, err := NewSharedSecret()
	if err != nil {
		return err
	}

	hash := AuthDigest(req.ServerID, secret, req.PublicKey)
	if err := s.joiner.Join(ctx, s.opts.AccessToken, s.opts.ProfileID, hash); err != nil {
		return fmt.Errorf("failed to join session: %w", err)
	}

	encSecret, encToken, err := encryptForServer(req.PublicKey, secret, req.VerifyToken)
	if err != nil {
		return err
	}
	if err := conn.WritePacket(BuildEncryptionResponse(encSecret, encToken)); err != nil {
		return fmt.Errorf("failed to send encryption response: %w", err)
	}

	enc, dec, err := newStreams(secret)
	if err != nil {
		return err
	}
	conn.SetCipher(enc, dec)

	s.logger.Debug().Msg("encryption enabled")
	return nil
}
