package probe

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banprobe-project/banprobe/internal/chat"
)

// fakeSession replays a scripted sequence of events when connected.
type fakeSession struct {
	mu sync.Mutex

	connectErr error
	closeErr   error
	script     func(s *fakeSession)

	joinGame        func()
	loginDisconnect func(string)
	onError         func(error)

	registeredBeforeConnect bool
	closes                  int
}

func (f *fakeSession) OnJoinGame(fn func())              { f.joinGame = fn }
func (f *fakeSession) OnLoginDisconnect(fn func(string)) { f.loginDisconnect = fn }
func (f *fakeSession) OnError(fn func(error))            { f.onError = fn }

func (f *fakeSession) Connect(context.Context) error {
	f.registeredBeforeConnect = f.joinGame != nil && f.loginDisconnect != nil && f.onError != nil
	if f.connectErr != nil {
		return f.connectErr
	}
	if f.script != nil {
		go f.script(f)
	}
	return nil
}

func (f *fakeSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return f.closeErr
}

func (f *fakeSession) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

func run(t *testing.T, s *fakeSession, timeout time.Duration) Outcome {
	t.Helper()
	p := New(func(Target, Credentials) Session { return s }, timeout)
	return p.Run(context.Background(), Target{Host: DefaultHost, Port: DefaultPort}, Credentials{Name: "Tester"})
}

func TestRunUnbanned(t *testing.T) {
	s := &fakeSession{script: func(s *fakeSession) { s.joinGame() }}
	o := run(t, s, time.Second)

	assert.Equal(t, StatusUnbanned, o.Status)
	assert.Nil(t, o.Payload)
	assert.True(t, s.registeredBeforeConnect)
	assert.Equal(t, 1, s.closeCount())
}

func TestRunBanned(t *testing.T) {
	s := &fakeSession{script: func(s *fakeSession) {
		s.loginDisconnect(`{"text":"You are permanently banned","extra":[{"text":" from this server!"}]}`)
	}}
	o := run(t, s, time.Second)

	require.Equal(t, StatusBanned, o.Status)
	assert.Equal(t, "You are permanently banned from this server!", chat.Flatten(o.Payload))
	assert.Equal(t, 1, s.closeCount())
}

func TestRunBannedPlainTextReason(t *testing.T) {
	s := &fakeSession{script: func(s *fakeSession) { s.loginDisconnect("Banned!") }}
	o := run(t, s, time.Second)

	require.Equal(t, StatusBanned, o.Status)
	assert.Equal(t, chat.Node{Text: "Banned!"}, o.Payload)
}

func TestRunFirstEventWins(t *testing.T) {
	s := &fakeSession{script: func(s *fakeSession) {
		s.joinGame()
		s.loginDisconnect(`"too late"`)
		s.onError(errors.New("also too late"))
	}}
	o := run(t, s, time.Second)

	assert.Equal(t, StatusUnbanned, o.Status)
}

func TestRunTimeout(t *testing.T) {
	s := &fakeSession{}
	start := time.Now()
	o := run(t, s, 50*time.Millisecond)

	assert.Equal(t, StatusTimeout, o.Status)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	assert.Equal(t, 1, s.closeCount())
}

func TestRunConnectError(t *testing.T) {
	s := &fakeSession{connectErr: errors.New("connection refused")}
	o := run(t, s, time.Second)

	assert.Equal(t, StatusError, o.Status)
	assert.Equal(t, "connection refused", o.Message())
	assert.Equal(t, 1, s.closeCount())
}

func TestRunSessionError(t *testing.T) {
	s := &fakeSession{script: func(s *fakeSession) { s.onError(errors.New("read: connection reset")) }}
	o := run(t, s, time.Second)

	assert.Equal(t, StatusError, o.Status)
	assert.Equal(t, "read: connection reset", o.Message())
}

func TestRunCloseErrorIsDiscarded(t *testing.T) {
	s := &fakeSession{
		closeErr: errors.New("already closed"),
		script:   func(s *fakeSession) { s.joinGame() },
	}
	o := run(t, s, time.Second)

	assert.Equal(t, StatusUnbanned, o.Status)
	assert.Equal(t, 1, s.closeCount())
}

func TestRunContextCancelled(t *testing.T) {
	s := &fakeSession{}
	p := New(func(Target, Credentials) Session { return s }, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	o := p.Run(ctx, Target{}, Credentials{})

	assert.Equal(t, StatusError, o.Status)
	assert.ErrorIs(t, o.Err, context.Canceled)
}

func TestNewDefaultsTimeout(t *testing.T) {
	p := New(nil, 0)
	assert.Equal(t, DefaultTimeout, p.Timeout())
	assert.Equal(t, 8*time.Second, DefaultTimeout)
}

func TestOutcomeMessage(t *testing.T) {
	assert.Equal(t, "", Outcome{Status: StatusTimeout}.Message())
}
