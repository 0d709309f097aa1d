// ABOUTME: Manages running bot instances, handles start/stop, and relays events.
// ABOUTME: Central coordinator between the store, bot instances, and subscribers.

package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/2389/botherd/internal/bot"
	"github.com/2389/botherd/internal/names"
	"github.com/2389/botherd/internal/session"
	"github.com/2389/botherd/internal/store"
)

// ErrBotAlreadyRunning indicates a bot with the same ID is already live.
var ErrBotAlreadyRunning = errors.New("bot already running")

// Manager coordinates the herd: it starts and stops bot instances from
// persisted configs and relays their events to broadcaster subscribers.
type Manager struct {
	mu   sync.Mutex
	bots map[string]*running

	store       store.Store
	dialer      session.Dialer
	names       *names.Allocator
	broadcaster *Broadcaster
	logger      *slog.Logger
}

// running pairs a live instance with its relay goroutine's done channel.
type running struct {
	inst      *bot.Instance
	relayDone chan struct{}
}

// New creates a Manager. Pass nil logger for default.
func New(st store.Store, dialer session.Dialer, alloc *names.Allocator, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		bots:        make(map[string]*running),
		store:       st,
		dialer:      dialer,
		names:       alloc,
		broadcaster: NewBroadcaster(logger),
		logger:      logger.With("component", "manager"),
	}
}

// StartBot loads the bot's config and brings up an instance for it.
// Returns ErrBotAlreadyRunning if the bot is already live. The active
// flag is persisted best-effort so the bot resumes after a restart.
func (m *Manager) StartBot(ctx context.Context, botID string) error {
	cfg, err := m.store.GetConfig(ctx, botID)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	m.mu.Lock()
	if r, ok := m.bots[botID]; ok {
		select {
		case <-r.inst.Done():
			// Settled instance still in the map; replace it.
			delete(m.bots, botID)
		default:
			m.mu.Unlock()
			return ErrBotAlreadyRunning
		}
	}

	inst := bot.New(*cfg, bot.Deps{
		Dialer: m.dialer,
		Names:  m.names,
		Logger: m.logger,
	})
	r := &running{inst: inst, relayDone: make(chan struct{})}
	m.bots[botID] = r
	m.mu.Unlock()

	go m.relay(botID, r)

	if err := inst.Start(); err != nil {
		m.remove(botID, r)
		return err
	}

	if err := m.store.SetActiveFlag(ctx, botID, true); err != nil {
		m.logger.Warn("failed to persist active flag", "bot_id", botID, "error", err)
	}

	m.logger.Info("=== BOT STARTED ===",
		"bot_id", botID,
		"total_running", m.runningCount(),
	)
	return nil
}

// StopBot stops a running bot and waits for its events to flush. Stopping
// a bot that is not running is a no-op.
func (m *Manager) StopBot(ctx context.Context, botID string) error {
	m.mu.Lock()
	r, ok := m.bots[botID]
	m.mu.Unlock()
	if !ok {
		return nil
	}

	if err := r.inst.Stop(); err != nil {
		return err
	}
	<-r.relayDone
	m.remove(botID, r)

	if err := m.store.SetActiveFlag(ctx, botID, false); err != nil {
		m.logger.Warn("failed to persist active flag", "bot_id", botID, "error", err)
	}

	m.logger.Info("=== BOT STOPPED ===",
		"bot_id", botID,
		"total_running", m.runningCount(),
	)
	return nil
}

// Status reports the live status of a bot, falling back to an idle
// snapshot built from its stored config when no instance is running.
func (m *Manager) Status(ctx context.Context, botID string) (bot.Status, error) {
	m.mu.Lock()
	r, ok := m.bots[botID]
	m.mu.Unlock()
	if ok {
		return r.inst.Status(), nil
	}

	cfg, err := m.store.GetConfig(ctx, botID)
	if err != nil {
		return bot.Status{}, err
	}
	return idleStatus(cfg), nil
}

// ListStatuses reports status for every configured bot, live or idle.
func (m *Manager) ListStatuses(ctx context.Context) ([]bot.Status, error) {
	cfgs, err := m.store.ListConfigs(ctx)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]bot.Status, 0, len(cfgs))
	for _, cfg := range cfgs {
		if r, ok := m.bots[cfg.ID]; ok {
			out = append(out, r.inst.Status())
			continue
		}
		out = append(out, idleStatus(cfg))
	}
	return out, nil
}

// IsRunning reports whether the bot currently has a live instance.
func (m *Manager) IsRunning(botID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.bots[botID]
	return ok
}

// ResumeActive starts every bot whose stored config is flagged active.
// Individual start failures are logged and skipped.
func (m *Manager) ResumeActive(ctx context.Context) error {
	cfgs, err := m.store.ListConfigs(ctx)
	if err != nil {
		return fmt.Errorf("list configs: %w", err)
	}

	var resumed int
	for _, cfg := range cfgs {
		if !cfg.IsActive {
			continue
		}
		if err := m.StartBot(ctx, cfg.ID); err != nil {
			m.logger.Warn("failed to resume bot", "bot_id", cfg.ID, "error", err)
			continue
		}
		resumed++
	}
	if resumed > 0 {
		m.logger.Info("resumed active bots", "count", resumed)
	}
	return nil
}

// StopAll stops every running bot. Used during shutdown.
func (m *Manager) StopAll(ctx context.Context) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.bots))
	for id := range m.bots {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		if err := m.StopBot(ctx, id); err != nil {
			m.logger.Warn("failed to stop bot", "bot_id", id, "error", err)
		}
	}
}

// Subscribe registers an event subscriber; empty botID follows the whole
// herd. See Broadcaster.Subscribe.
func (m *Manager) Subscribe(ctx context.Context, botID string) (<-chan Event, string) {
	return m.broadcaster.Subscribe(ctx, botID)
}

// Unsubscribe removes an event subscription.
func (m *Manager) Unsubscribe(botID, subID string) {
	m.broadcaster.Unsubscribe(botID, subID)
}

// Close stops all bots and shuts down the broadcaster.
func (m *Manager) Close(ctx context.Context) {
	m.StopAll(ctx)
	m.broadcaster.Close()
}

// relay pumps one instance's events into the broadcaster until the
// instance settles, then drains the stream and removes the entry.
func (m *Manager) relay(botID string, r *running) {
	defer close(r.relayDone)
	for {
		select {
		case ev := <-r.inst.Events():
			m.broadcaster.Publish(wrapEvent(botID, ev))
		case <-r.inst.Done():
			for {
				select {
				case ev := <-r.inst.Events():
					m.broadcaster.Publish(wrapEvent(botID, ev))
				default:
					m.remove(botID, r)
					return
				}
			}
		}
	}
}

// remove deletes the registry entry if it still maps to r. A pointer
// guard keeps a concurrent restart's fresh entry intact.
func (m *Manager) remove(botID string, r *running) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.bots[botID]; ok && cur == r {
		delete(m.bots, botID)
	}
}

func (m *Manager) runningCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.bots)
}

func idleStatus(cfg *store.BotConfig) bot.Status {
	return bot.Status{
		BotID:             cfg.ID,
		State:             bot.StateIdle,
		EffectiveUsername: cfg.Username,
	}
}
