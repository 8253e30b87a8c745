package checker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banprobe-project/banprobe/internal/chat"
	"github.com/banprobe-project/banprobe/internal/connector"
	"github.com/banprobe-project/banprobe/internal/db"
	"github.com/banprobe-project/banprobe/internal/events"
	"github.com/banprobe-project/banprobe/internal/probe"
	"github.com/banprobe-project/banprobe/internal/protocol"
)

const (
	testToken = "secret-access-token"
	testUUID  = "069a79f444e94726a5befca90e38aaf5"
)

type fakeResolver struct {
	identity connector.Identity
	err      error
	tokens   []string
}

func (f *fakeResolver) Resolve(_ context.Context, token string) (connector.Identity, error) {
	f.tokens = append(f.tokens, token)
	return f.identity, f.err
}

// scriptedSession fires one event from its read loop after Connect.
type scriptedSession struct {
	fire func(s *scriptedSession)

	joinGame        func()
	loginDisconnect func(string)
	onError         func(error)
}

func (s *scriptedSession) OnJoinGame(fn func())              { s.joinGame = fn }
func (s *scriptedSession) OnLoginDisconnect(fn func(string)) { s.loginDisconnect = fn }
func (s *scriptedSession) OnError(fn func(error))            { s.onError = fn }
func (s *scriptedSession) Close() error                      { return nil }

func (s *scriptedSession) Connect(context.Context) error {
	if s.fire != nil {
		go s.fire(s)
	}
	return nil
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingEmitter) Emit(_ context.Context, e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingEmitter) types() []events.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	var types []events.EventType
	for _, e := range r.events {
		types = append(types, e.Type)
	}
	return types
}

func (r *recordingEmitter) last() events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

type harness struct {
	checker  *Checker
	resolver *fakeResolver
	emitter  *recordingEmitter
	history  *db.HistoryStore
	creds    *probe.Credentials
	dumpPath string
}

func newHarness(t *testing.T, fire func(s *scriptedSession), timeout time.Duration) *harness {
	t.Helper()

	store, err := db.NewHistoryStore(db.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	h := &harness{
		resolver: &fakeResolver{identity: connector.Identity{Name: "Notch", ID: testUUID}},
		emitter:  &recordingEmitter{},
		history:  store,
		creds:    &probe.Credentials{},
		dumpPath: filepath.Join(t.TempDir(), "ban_message_debug.txt"),
	}

	factory := func(_ probe.Target, creds probe.Credentials) probe.Session {
		*h.creds = creds
		return &scriptedSession{fire: fire}
	}

	h.checker = New(h.resolver, probe.New(factory, timeout), Options{
		DumpPath: h.dumpPath,
		History:  store,
		Events:   h.emitter,
	})
	return h
}

func TestCheckUnbanned(t *testing.T) {
	h := newHarness(t, func(s *scriptedSession) { s.joinGame() }, time.Second)

	res, err := h.checker.Check(context.Background(), testToken)
	require.NoError(t, err)

	assert.Equal(t, &Result{
		MCName:   "Notch",
		MCUUID:   testUUID,
		Status:   "unbanned",
		Reason:   NotAvailable,
		TimeLeft: NotAvailable,
		BanID:    NotAvailable,
	}, res)

	assert.Equal(t, probe.Credentials{Name: "Notch", ProfileID: testUUID, AccessToken: testToken}, *h.creds)
	assert.Equal(t, []string{testToken}, h.resolver.tokens)

	_, statErr := os.Stat(h.dumpPath)
	assert.True(t, os.IsNotExist(statErr), "no dump for an unbanned account")
}

func TestCheckBannedParsesAndDumps(t *testing.T) {
	reason := `{"extra":[{"text":"You are temporarily banned for ","color":"red"},` +
		`{"text":"29d 23h 59m 59s","color":"white"},{"text":" from this server!\n\n"},` +
		`{"text":"Reason: ","color":"gray"},{"text":"Cheating through the use of unfair game advantages.\n"},` +
		`{"text":"Find out more: "},{"text":"https://www.hypixel.net/appeal\n\n"},` +
		`{"text":"Ban ID: "},{"text":"#8B5C3D1A\n"},` +
		`{"text":"Sharing your Ban ID may affect the processing of your appeal!"}],"text":""}`

	h := newHarness(t, func(s *scriptedSession) { s.loginDisconnect(reason) }, time.Second)

	res, err := h.checker.Check(context.Background(), testToken)
	require.NoError(t, err)

	assert.Equal(t, "banned", res.Status)
	assert.Equal(t, "Cheating through the use of unfair game advantages.", res.Reason)
	assert.Equal(t, "29d 23h 59m 59s", res.TimeLeft)
	assert.Equal(t, "#8B5C3D1A", res.BanID)

	dump, err := os.ReadFile(h.dumpPath)
	require.NoError(t, err)
	assert.Contains(t, string(dump), "=== RAW TEXT ===\nYou are temporarily banned for 29d 23h 59m 59s")
	assert.Contains(t, string(dump), "\n\n=== JSON STRUCTURE ===\n")
	assert.Contains(t, string(dump), `"text": "Ban ID: "`)
	assert.NotContains(t, string(dump), testToken)
}

func TestCheckBannedPlainTextReason(t *testing.T) {
	h := newHarness(t, func(s *scriptedSession) {
		s.loginDisconnect("You are permanently banned from this server!\nReason: Boosting\nBan ID: #1")
	}, time.Second)

	res, err := h.checker.Check(context.Background(), testToken)
	require.NoError(t, err)
	assert.Equal(t, "Boosting", res.Reason)
	assert.Equal(t, "Permanent", res.TimeLeft)
	assert.Equal(t, "#1", res.BanID)
}

func TestCheckTimeout(t *testing.T) {
	h := newHarness(t, nil, 20*time.Millisecond)

	res, err := h.checker.Check(context.Background(), testToken)
	require.NoError(t, err)
	assert.Equal(t, "timeout", res.Status)
	assert.Equal(t, NotAvailable, res.Reason)
	assert.Equal(t, NotAvailable, res.TimeLeft)
	assert.Equal(t, NotAvailable, res.BanID)
}

func TestCheckProbeError(t *testing.T) {
	h := newHarness(t, func(s *scriptedSession) {
		s.onError(&protocol.DisconnectError{Reason: "Kicked for spamming"})
	}, time.Second)

	res, err := h.checker.Check(context.Background(), testToken)
	require.NoError(t, err)
	assert.Equal(t, "error", res.Status)
	assert.Equal(t, "Kicked for spamming", res.Reason)
	assert.Equal(t, NotAvailable, res.TimeLeft)
	assert.Equal(t, NotAvailable, res.BanID)
}

func TestCheckResolveFailure(t *testing.T) {
	h := newHarness(t, nil, time.Second)
	h.resolver.err = errors.New("failed to get profile: 401 Unauthorized")

	res, err := h.checker.Check(context.Background(), testToken)
	require.Error(t, err)
	assert.Nil(t, res)

	entries, err := h.history.List(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, entries)

	assert.Equal(t, []events.EventType{
		events.EventCheckStarted,
		events.EventCheckProgress,
		events.EventCheckCompleted,
	}, h.emitter.types())

	completed := h.emitter.last().Payload.(events.CheckCompletedPayload)
	assert.Equal(t, "failed to get profile: 401 Unauthorized", completed.Error)
	assert.Empty(t, completed.Status)
}

func TestCheckRecordsHistoryAndEvents(t *testing.T) {
	h := newHarness(t, func(s *scriptedSession) { s.joinGame() }, time.Second)

	_, err := h.checker.Check(context.Background(), testToken)
	require.NoError(t, err)

	entries, err := h.history.ForAccount(context.Background(), testUUID, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "unbanned", entries[0].Status)
	assert.Equal(t, "Notch", entries[0].MCName)

	assert.Equal(t, []events.EventType{
		events.EventCheckStarted,
		events.EventCheckProgress,
		events.EventCheckProgress,
		events.EventCheckCompleted,
	}, h.emitter.types())

	completed := h.emitter.last().Payload.(events.CheckCompletedPayload)
	assert.Equal(t, entries[0].CheckID, completed.CheckID)
	assert.Equal(t, "unbanned", completed.Status)

	for _, e := range h.emitter.events {
		assert.NotContains(t, e.Source+string(e.Type), testToken)
	}
}

func TestCheckWithoutOptionalDependencies(t *testing.T) {
	resolver := &fakeResolver{identity: connector.Identity{Name: "jeb_", ID: testUUID}}
	factory := func(probe.Target, probe.Credentials) probe.Session {
		return &scriptedSession{fire: func(s *scriptedSession) { s.loginDisconnect("banned") }}
	}
	c := New(resolver, probe.New(factory, time.Second), Options{})

	res, err := c.Check(context.Background(), testToken)
	require.NoError(t, err)
	assert.Equal(t, "banned", res.Status)
	assert.Equal(t, "banned", res.Reason)
}

func TestNewDefaultsTarget(t *testing.T) {
	c := New(&fakeResolver{}, probe.New(nil, 0), Options{})
	assert.Equal(t, probe.DefaultHost, c.opts.Target.Host)
	assert.Equal(t, uint16(probe.DefaultPort), c.opts.Target.Port)
}

func TestFormatDump(t *testing.T) {
	payload := chat.Node{Text: "You are banned (now)", Children: []chat.Component{chat.Leaf{Text: "!"}}}

	data, err := FormatDump("You are banned (now)!", payload)
	require.NoError(t, err)
	assert.Equal(t,
		"=== RAW TEXT ===\nYou are banned (now)!\n\n=== JSON STRUCTURE ===\n"+
			"{\n  \"text\": \"You are banned (now)\",\n  \"extra\": [\n    \"!\"\n  ]\n}",
		string(data))
}

func TestNewSessionFactoryBuildsLoginSession(t *testing.T) {
	factory := NewSessionFactory(time.Second, nil)
	session := factory(probe.Target{Host: "localhost", Port: 25565}, probe.Credentials{Name: "Notch"})

	_, ok := session.(*protocol.LoginSession)
	assert.True(t, ok)
	assert.NoError(t, session.Close())
}
