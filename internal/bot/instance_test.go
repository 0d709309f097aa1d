// ABOUTME: Tests for the bot instance state machine.
// ABOUTME: Covers reconnect policy, exhaustion, teardown, and the single-session invariant.

package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/botherd/internal/names"
	"github.com/2389/botherd/internal/session"
	"github.com/2389/botherd/internal/store"
)

// fakeSession is a scriptable Session. Tests emit events; the session
// records commands.
type fakeSession struct {
	mu     sync.Mutex
	events chan session.Event
	closed bool
	chats  []string
	looks  []session.Vec3
	moves  []bool
}

func newFakeSession() *fakeSession {
	return &fakeSession{events: make(chan session.Event, 16)}
}

func (s *fakeSession) Events() <-chan session.Event { return s.events }

func (s *fakeSession) Chat(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chats = append(s.chats, text)
	return nil
}

func (s *fakeSession) LookAt(target session.Vec3) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.looks = append(s.looks, target)
	return nil
}

func (s *fakeSession) SetForwardMotion(moving bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.moves = append(s.moves, moving)
	return nil
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.events)
	}
	return nil
}

func (s *fakeSession) emit(ev session.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.events <- ev
	}
}

func (s *fakeSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// fakeDialer scripts dial outcomes. A nil error yields a fresh fakeSession.
// The last outcome repeats once the script is consumed.
type fakeDialer struct {
	mu       sync.Mutex
	script   []error
	dials    int
	sessions []*fakeSession
	live     int
	maxLive  int
	notify   chan *fakeSession
}

func newFakeDialer(script ...error) *fakeDialer {
	return &fakeDialer{script: script, notify: make(chan *fakeSession, 16)}
}

func (d *fakeDialer) Dial(ctx context.Context, host string, port int, username string) (session.Session, error) {
	d.mu.Lock()
	idx := d.dials
	if idx >= len(d.script) {
		idx = len(d.script) - 1
	}
	d.dials++
	err := d.script[idx]
	if err != nil {
		d.mu.Unlock()
		return nil, err
	}

	s := newFakeSession()
	d.sessions = append(d.sessions, s)
	d.live++
	if d.live > d.maxLive {
		d.maxLive = d.live
	}
	d.mu.Unlock()

	d.notify <- s
	return &trackedSession{fakeSession: s, dialer: d}, nil
}

// trackedSession decrements the dialer's live count on first close.
type trackedSession struct {
	*fakeSession
	dialer *fakeDialer
	once   sync.Once
}

func (s *trackedSession) Close() error {
	s.once.Do(func() {
		s.dialer.mu.Lock()
		s.dialer.live--
		s.dialer.mu.Unlock()
	})
	return s.fakeSession.Close()
}

func (d *fakeDialer) waitSession(t *testing.T) *fakeSession {
	t.Helper()
	select {
	case s := <-d.notify:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for dial")
		return nil
	}
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) maxConcurrentSessions() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.maxLive
}

// eventRecorder drains an instance's event stream in the background.
type eventRecorder struct {
	mu     sync.Mutex
	events []Event
	done   chan struct{}
}

func recordEvents(i *Instance) *eventRecorder {
	r := &eventRecorder{done: make(chan struct{})}
	go func() {
		defer close(r.done)
		for {
			select {
			case ev := <-i.Events():
				r.mu.Lock()
				r.events = append(r.events, ev)
				r.mu.Unlock()
			case <-i.Done():
				for {
					select {
					case ev := <-i.Events():
						r.mu.Lock()
						r.events = append(r.events, ev)
						r.mu.Unlock()
					default:
						return
					}
				}
			}
		}
	}()
	return r
}

func (r *eventRecorder) snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

func (r *eventRecorder) logsContaining(level Level, substr string) int {
	var n int
	for _, ev := range r.snapshot() {
		if (ev.Kind == EventLog || ev.Kind == EventError) && ev.Level == level &&
			strings.Contains(ev.Message, substr) {
			n++
		}
	}
	return n
}

func testConfig() store.BotConfig {
	return store.BotConfig{
		ID:                   "bot-1",
		Username:             "Steve",
		Host:                 "h",
		Port:                 25565,
		AutoReconnect:        true,
		ReconnectInterval:    10 * time.Millisecond,
		MaxReconnectAttempts: 2,
	}
}

func newTestInstance(t *testing.T, cfg store.BotConfig, dialer session.Dialer) *Instance {
	t.Helper()
	i := New(cfg, Deps{
		Dialer: dialer,
		Names:  names.New(names.DefaultVocabulary()),
	})
	i.tun.dialTimeout = time.Second
	t.Cleanup(func() { _ = i.Stop() })
	return i
}

func waitDone(t *testing.T, i *Instance) {
	t.Helper()
	select {
	case <-i.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for instance to settle")
	}
}

func TestStartConnectsAndSpawns(t *testing.T) {
	d := newFakeDialer(nil)
	i := newTestInstance(t, testConfig(), d)
	rec := recordEvents(i)

	require.NoError(t, i.Start())

	s := d.waitSession(t)
	s.emit(session.Event{Kind: session.EventLoggedIn})
	s.emit(session.Event{
		Kind:   session.EventSpawned,
		Server: &session.ServerInfo{Version: "1.21", PlayerCount: 3},
	})

	require.Eventually(t, func() bool {
		return i.Status().Connected
	}, 2*time.Second, 5*time.Millisecond)

	st := i.Status()
	assert.Equal(t, StateActive, st.State)
	assert.Equal(t, "Steve", st.EffectiveUsername)
	assert.Equal(t, 0, st.ReconnectAttempt)
	require.NotNil(t, st.ServerInfo)
	assert.Equal(t, "1.21", st.ServerInfo.Version)
	assert.False(t, st.StartedAt.IsZero())
	assert.Positive(t, st.Uptime)

	_ = rec
}

func TestRunStartRecordedAndClearedOnStop(t *testing.T) {
	d := newFakeDialer(nil)
	i := newTestInstance(t, testConfig(), d)

	require.NoError(t, i.Start())
	assert.False(t, i.Status().StartedAt.IsZero(), "run start should be recorded on start")

	require.NoError(t, i.Stop())
	waitDone(t, i)
	assert.True(t, i.Status().StartedAt.IsZero(), "run start should be cleared on teardown")
}

func TestSecondStartRejected(t *testing.T) {
	d := newFakeDialer(nil)
	i := newTestInstance(t, testConfig(), d)

	require.NoError(t, i.Start())
	assert.ErrorIs(t, i.Start(), ErrAlreadyStarted)
}

func TestReconnectExhaustionScenario(t *testing.T) {
	// Config per the reconnect contract: interval 10ms stands in for the
	// persisted seconds value, two attempts maximum, dial always refused.
	d := newFakeDialer(errors.New("dial tcp: connection refused"))
	i := newTestInstance(t, testConfig(), d)
	rec := recordEvents(i)

	require.NoError(t, i.Start())
	waitDone(t, i)
	<-rec.done

	assert.Equal(t, 1, rec.logsContaining(LevelInfo, "attempt 1/2"))
	assert.Equal(t, 1, rec.logsContaining(LevelInfo, "attempt 2/2"))
	assert.Equal(t, 1, rec.logsContaining(LevelError, "exhausted"))

	var errorEvents int
	for _, ev := range rec.snapshot() {
		if ev.Kind == EventError {
			errorEvents++
		}
	}
	assert.Equal(t, 1, errorEvents, "exactly one error-level event expected")

	st := i.Status()
	assert.Equal(t, StateIdle, st.State)
	assert.False(t, st.Connected)
	assert.Zero(t, st.ReconnectAttempt, "attempts reset after exhaustion")
	assert.Equal(t, 3, d.dialCount(), "initial connect plus two reconnects")
}

func TestNoReconnectWhenDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.AutoReconnect = false

	d := newFakeDialer(errors.New("connection refused"))
	i := newTestInstance(t, cfg, d)
	rec := recordEvents(i)

	require.NoError(t, i.Start())
	waitDone(t, i)
	<-rec.done

	assert.Equal(t, StateIdle, i.Status().State)
	assert.Equal(t, 1, d.dialCount(), "no reconnect attempts expected")
	assert.Zero(t, rec.logsContaining(LevelInfo, "attempt"))
}

func TestAttemptsResetOnSpawn(t *testing.T) {
	// First dial fails, second succeeds.
	d := newFakeDialer(errors.New("connection refused"), nil)
	i := newTestInstance(t, testConfig(), d)

	require.NoError(t, i.Start())

	s := d.waitSession(t)
	s.emit(session.Event{Kind: session.EventSpawned})

	require.Eventually(t, func() bool {
		return i.Status().Connected
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, i.Status().ReconnectAttempt)
}

func TestStopTearsDownSession(t *testing.T) {
	d := newFakeDialer(nil)
	i := newTestInstance(t, testConfig(), d)
	rec := recordEvents(i)

	require.NoError(t, i.Start())
	s := d.waitSession(t)
	s.emit(session.Event{Kind: session.EventSpawned})

	require.Eventually(t, func() bool {
		return i.Status().Connected
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, i.Stop())
	waitDone(t, i)
	<-rec.done

	require.Eventually(t, s.isClosed, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, StateIdle, i.Status().State)

	// No event may surface after teardown completed.
	before := len(rec.snapshot())
	time.Sleep(50 * time.Millisecond)
	select {
	case ev := <-i.Events():
		t.Fatalf("event after stop: %+v", ev)
	default:
	}
	assert.Len(t, rec.snapshot(), before)
}

func TestStopDuringDialLeavesNoSession(t *testing.T) {
	d := newFakeDialer(nil)

	// Delay dials so Stop lands while the dial is in flight.
	slow := &slowDialer{inner: d, delay: 50 * time.Millisecond}
	i := newTestInstance(t, testConfig(), slow)

	require.NoError(t, i.Start())
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, i.Stop())

	s := d.waitSession(t)
	require.Eventually(t, s.isClosed, 2*time.Second, 5*time.Millisecond,
		"session dialed after stop must be closed immediately")
	assert.Equal(t, StateIdle, i.Status().State)
}

type slowDialer struct {
	inner session.Dialer
	delay time.Duration
}

func (d *slowDialer) Dial(ctx context.Context, host string, port int, username string) (session.Session, error) {
	time.Sleep(d.delay)
	return d.inner.Dial(ctx, host, port, username)
}

func TestSingleSessionInvariant(t *testing.T) {
	// Drop the session repeatedly across reconnects; at no instant may two
	// sessions be live for one instance.
	d := newFakeDialer(nil)
	cfg := testConfig()
	cfg.MaxReconnectAttempts = 5
	i := newTestInstance(t, cfg, d)

	require.NoError(t, i.Start())
	for range 3 {
		s := d.waitSession(t)
		s.emit(session.Event{Kind: session.EventSpawned})
		s.emit(session.Event{Kind: session.EventEnded})
	}
	require.NoError(t, i.Stop())
	waitDone(t, i)

	assert.Equal(t, 1, d.maxConcurrentSessions())
}

func TestStopIsIdempotent(t *testing.T) {
	t.Run("never started", func(t *testing.T) {
		i := newTestInstance(t, testConfig(), newFakeDialer(nil))
		assert.NoError(t, i.Stop())
	})

	t.Run("double stop", func(t *testing.T) {
		d := newFakeDialer(nil)
		i := newTestInstance(t, testConfig(), d)
		require.NoError(t, i.Start())
		d.waitSession(t)

		require.NoError(t, i.Stop())
		assert.NoError(t, i.Stop())
	})
}

func TestKickLeadsToDisconnect(t *testing.T) {
	cfg := testConfig()
	cfg.AutoReconnect = false

	d := newFakeDialer(nil)
	i := newTestInstance(t, cfg, d)
	rec := recordEvents(i)

	require.NoError(t, i.Start())
	s := d.waitSession(t)
	s.emit(session.Event{Kind: session.EventSpawned})
	s.emit(session.Event{Kind: session.EventKicked, Reason: "banned"})

	waitDone(t, i)
	<-rec.done

	assert.Equal(t, 1, rec.logsContaining(LevelWarn, "kicked"))
	assert.Equal(t, StateIdle, i.Status().State)
}

func TestRandomUsernameAllocatedAndReleased(t *testing.T) {
	cfg := testConfig()
	cfg.Username = ""
	cfg.UseRandomNames = true
	cfg.AutoReconnect = false

	alloc := names.New(names.DefaultVocabulary())
	d := newFakeDialer(nil)
	i := New(cfg, Deps{Dialer: d, Names: alloc})
	i.tun.dialTimeout = time.Second

	require.NoError(t, i.Start())
	d.waitSession(t)

	username := i.Status().EffectiveUsername
	require.NotEmpty(t, username)
	assert.LessOrEqual(t, len(username), 16)
	assert.True(t, alloc.InUse(username))

	require.NoError(t, i.Stop())
	waitDone(t, i)
	assert.False(t, alloc.InUse(username), "username released on stop")
}
