// ABOUTME: Bot instance state machine: connect, active, disconnect, reconnect.
// ABOUTME: Owns one session handle, the reconnect policy, and the behavior timers.

package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/2389/botherd/internal/names"
	"github.com/2389/botherd/internal/session"
	"github.com/2389/botherd/internal/store"
)

// ErrAlreadyStarted indicates Start was called twice on one instance.
// Instances are single-use; the manager creates a fresh one per run.
var ErrAlreadyStarted = errors.New("bot instance already started")

const (
	// eventBufferSize is the event channel buffer. The manager drains it
	// promptly; overflow drops rather than blocking a state transition.
	eventBufferSize = 64

	defaultReconnectInterval = 5 * time.Second
)

// Deps are the collaborators an instance needs.
type Deps struct {
	Dialer session.Dialer
	Names  *names.Allocator
	Logger *slog.Logger
}

// Instance drives one bot through its lifecycle:
//
//	Idle → Connecting → Active → Disconnected → (Reconnecting → Connecting) | Idle
//
// All state lives behind one mutex. Timer callbacks and the session event
// pump capture a generation counter at scheduling time; any transition that
// invalidates them bumps the counter, so a late callback locks, sees a stale
// generation, and does nothing. That is what makes a concurrent stop() and a
// firing reconnect timer unable to produce two live sessions.
type Instance struct {
	cfg    store.BotConfig
	dialer session.Dialer
	names  *names.Allocator
	logger *slog.Logger
	tun    tunables

	mu        sync.Mutex
	state     State
	gen       uint64
	sess      session.Session
	username  string
	allocated bool
	started   bool
	finished  bool
	startedAt time.Time
	spawnedAt time.Time
	attempts  int
	wandering bool
	server    *session.ServerInfo

	reconnectTimer   *time.Timer
	wanderTimer      *time.Timer
	wanderHaltTimer  *time.Timer
	wanderClearTimer *time.Timer
	chatTimer        *time.Timer

	events chan Event
	done   chan struct{}
}

// New creates an instance for one run of the given config snapshot.
func New(cfg store.BotConfig, deps Deps) *Instance {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Instance{
		cfg:    cfg,
		dialer: deps.Dialer,
		names:  deps.Names,
		logger: logger.With("component", "bot", "bot_id", cfg.ID),
		tun:    defaultTunables(),
		state:  StateIdle,
		events: make(chan Event, eventBufferSize),
		done:   make(chan struct{}),
	}
}

// Events returns the instance's event stream. The channel is never closed;
// Done signals that no further events will be emitted.
func (i *Instance) Events() <-chan Event {
	return i.events
}

// Done is closed once the instance has settled in Idle for good, whether by
// stop, disabled reconnect, or exhaustion.
func (i *Instance) Done() <-chan struct{} {
	return i.done
}

// Start resolves the effective username, records the run start time, and
// kicks off the asynchronous connect. It returns once the request is
// accepted; the outcome arrives on the event stream.
func (i *Instance) Start() error {
	i.mu.Lock()
	if i.started {
		i.mu.Unlock()
		return ErrAlreadyStarted
	}
	i.started = true

	if i.cfg.UseRandomNames || strings.TrimSpace(i.cfg.Username) == "" {
		i.username = i.names.Allocate()
		i.allocated = true
	} else {
		i.username = i.cfg.Username
	}

	i.startedAt = time.Now()
	i.state = StateConnecting
	i.logLocked(LevelInfo, fmt.Sprintf("connecting to %s:%d as %s", i.cfg.Host, i.cfg.Port, i.username))
	i.emitStatusLocked()

	gen := i.gen
	username := i.username
	i.mu.Unlock()

	go i.connect(gen, username)
	return nil
}

// Stop tears the instance down: cancels every pending timer synchronously,
// closes the session handle if present, and releases the allocated username.
// Idempotent; stopping an instance that is not running is a warn-level no-op.
func (i *Instance) Stop() error {
	i.mu.Lock()
	if i.finished || !i.started {
		i.mu.Unlock()
		i.logger.Warn("stop requested but bot is not running")
		return nil
	}
	i.logLocked(LevelInfo, "stopping bot")
	i.finishLocked()
	i.mu.Unlock()
	return nil
}

// Status returns a snapshot of the instance. It never blocks on I/O and
// never triggers a transition.
func (i *Instance) Status() Status {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.statusLocked()
}

func (i *Instance) statusLocked() Status {
	st := Status{
		BotID:             i.cfg.ID,
		State:             i.state,
		Connected:         i.state == StateActive,
		EffectiveUsername: i.username,
		StartedAt:         i.startedAt,
		ReconnectAttempt:  i.attempts,
		Wandering:         i.wandering,
		ServerInfo:        i.server,
	}
	if !i.spawnedAt.IsZero() {
		st.Uptime = time.Since(i.spawnedAt)
	}
	return st
}

// connect dials a session for the given generation. A stale generation on
// return means the instance moved on (stopped, or torn down mid-dial); the
// freshly dialed session is closed and discarded so only one handle can
// ever be live.
func (i *Instance) connect(gen uint64, username string) {
	ctx, cancel := context.WithTimeout(context.Background(), i.tun.dialTimeout)
	defer cancel()

	sess, err := i.dialer.Dial(ctx, i.cfg.Host, i.cfg.Port, username)

	i.mu.Lock()
	if gen != i.gen || i.state != StateConnecting {
		i.mu.Unlock()
		if err == nil {
			_ = sess.Close()
		}
		return
	}

	if err != nil {
		i.logLocked(LevelWarn, describeDialError(err))
		i.disconnectLocked()
		i.mu.Unlock()
		return
	}

	i.sess = sess
	i.mu.Unlock()

	go i.pump(gen, sess)
}

// pump forwards session events into the state machine until the stream ends.
func (i *Instance) pump(gen uint64, sess session.Session) {
	for ev := range sess.Events() {
		i.handleSessionEvent(gen, ev)
	}
	// Stream closed without a terminal event (session closed locally).
	i.handleSessionEvent(gen, session.Event{Kind: session.EventEnded})
}

func (i *Instance) handleSessionEvent(gen uint64, ev session.Event) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if gen != i.gen {
		return
	}

	switch ev.Kind {
	case session.EventLoggedIn:
		i.logLocked(LevelDebug, "logged in")

	case session.EventSpawned:
		if i.state != StateConnecting {
			return
		}
		i.state = StateActive
		i.attempts = 0
		i.spawnedAt = time.Now()
		i.server = ev.Server
		i.startBehaviorsLocked()
		i.logLocked(LevelInfo, fmt.Sprintf("spawned as %s", i.username))
		i.emitStatusLocked()

	case session.EventChat:
		if ev.Chat != nil {
			i.logLocked(LevelDebug, fmt.Sprintf("<%s> %s", ev.Chat.From, ev.Chat.Message))
		}

	case session.EventHealthChanged:
		i.logLocked(LevelDebug, fmt.Sprintf("health now %.1f", ev.Health))

	case session.EventDeath:
		i.logLocked(LevelInfo, "died, waiting for respawn")

	case session.EventKicked:
		i.logLocked(LevelWarn, fmt.Sprintf("kicked from server: %s", ev.Reason))
		i.disconnectLocked()

	case session.EventNetworkError:
		if ev.Err != nil {
			i.logLocked(LevelWarn, describeNetworkError(ev.Err))
		}
		i.disconnectLocked()

	case session.EventEnded:
		if i.state == StateConnecting || i.state == StateActive {
			i.logLocked(LevelInfo, "connection ended")
			i.disconnectLocked()
		}
	}
}

// disconnectLocked performs the Active/Connecting → Disconnected transition
// and decides what happens next: schedule a reconnect, or settle in Idle.
func (i *Instance) disconnectLocked() {
	if i.state != StateConnecting && i.state != StateActive {
		return
	}

	i.gen++
	i.cancelBehaviorsLocked()
	i.closeSessionLocked()
	i.wandering = false
	i.server = nil
	i.spawnedAt = time.Time{}
	i.state = StateDisconnected
	i.emitStatusLocked()

	if !i.cfg.AutoReconnect {
		i.logLocked(LevelInfo, "auto-reconnect disabled, bot stopped")
		i.finishLocked()
		return
	}

	if i.attempts >= i.cfg.MaxReconnectAttempts {
		i.logLocked(LevelError, fmt.Sprintf("reconnect attempts exhausted after %d tries, giving up", i.cfg.MaxReconnectAttempts))
		i.finishLocked()
		return
	}

	i.attempts++
	i.state = StateReconnecting
	interval := i.reconnectInterval()
	i.logLocked(LevelInfo, fmt.Sprintf("reconnect attempt %d/%d in %s", i.attempts, i.cfg.MaxReconnectAttempts, interval))
	i.emitStatusLocked()

	gen := i.gen
	i.reconnectTimer = time.AfterFunc(interval, func() { i.reconnectFire(gen) })
}

// reconnectFire is the single-shot reconnect timer callback.
func (i *Instance) reconnectFire(gen uint64) {
	i.mu.Lock()
	if gen != i.gen || i.state != StateReconnecting {
		i.mu.Unlock()
		return
	}
	i.state = StateConnecting
	i.emitStatusLocked()
	username := i.username
	i.mu.Unlock()

	i.connect(gen, username)
}

// finishLocked is the terminal teardown shared by stop, disabled reconnect,
// and exhaustion. Timers are cancelled synchronously; the session close may
// complete asynchronously. Attempt counters reset to zero here, which also
// covers the exhaustion path (a later start is treated as a fresh run).
func (i *Instance) finishLocked() {
	if i.finished {
		return
	}
	i.finished = true

	i.gen++
	if i.reconnectTimer != nil {
		i.reconnectTimer.Stop()
		i.reconnectTimer = nil
	}
	i.cancelBehaviorsLocked()
	i.closeSessionLocked()

	if i.allocated {
		i.names.Release(i.username)
		i.allocated = false
	}

	i.attempts = 0
	i.wandering = false
	i.server = nil
	i.spawnedAt = time.Time{}
	i.startedAt = time.Time{}
	i.state = StateIdle
	i.emitStatusLocked()

	close(i.done)
}

// closeSessionLocked clears the session handle. The close itself runs on a
// separate goroutine so a slow transport cannot stall a transition; close
// errors are logged at warn and otherwise swallowed.
func (i *Instance) closeSessionLocked() {
	if i.sess == nil {
		return
	}
	sess := i.sess
	i.sess = nil
	logger := i.logger
	go func() {
		if err := sess.Close(); err != nil {
			logger.Warn("session close failed", "error", err)
		}
	}()
}

func (i *Instance) reconnectInterval() time.Duration {
	if i.cfg.ReconnectInterval > 0 {
		return i.cfg.ReconnectInterval
	}
	return defaultReconnectInterval
}

// logLocked mirrors a message to the process logger and emits it on the
// event stream. Error-level messages become EventError events.
func (i *Instance) logLocked(level Level, msg string) {
	switch level {
	case LevelDebug:
		i.logger.Debug(msg)
	case LevelInfo:
		i.logger.Info(msg)
	case LevelWarn:
		i.logger.Warn(msg)
	case LevelError:
		i.logger.Error(msg)
	}

	kind := EventLog
	if level == LevelError {
		kind = EventError
	}
	i.emitLocked(Event{Kind: kind, Time: time.Now(), Level: level, Message: msg})
}

func (i *Instance) emitStatusLocked() {
	st := i.statusLocked()
	i.emitLocked(Event{Kind: EventStatus, Time: time.Now(), Status: &st})
}

// emitLocked pushes an event without ever blocking a transition. The buffer
// is sized for a prompt consumer; overflow drops.
func (i *Instance) emitLocked(ev Event) {
	select {
	case i.events <- ev:
	default:
		i.logger.Warn("instance event buffer full, dropping event")
	}
}
