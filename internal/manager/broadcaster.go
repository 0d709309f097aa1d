// ABOUTME: In-memory fan-out broadcaster for herd events.
// ABOUTME: Subscribers follow one bot or the whole herd; slow ones drop.

package manager

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

const (
	// subscriberBufferSize is the channel buffer for each subscriber.
	subscriberBufferSize = 64

	// allBotsKey is the subscription key covering every bot.
	allBotsKey = ""
)

// Broadcaster provides in-memory pub/sub for herd events. Subscribers
// register for a single bot's events or, with an empty bot ID, for the
// whole herd. Publishing never blocks: subscribers whose channels are
// full miss events.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]chan Event // botID ("" = all) -> subID -> ch
	logger      *slog.Logger
}

// NewBroadcaster creates a broadcaster. Pass nil logger for default.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		subscribers: make(map[string]map[string]chan Event),
		logger:      logger.With("component", "broadcaster"),
	}
}

// Subscribe registers a subscriber for events from the given bot, or for
// every bot when botID is empty. Returns the event channel and a
// subscription ID for later unsubscription. The subscription is cleaned
// up automatically when ctx is cancelled.
func (b *Broadcaster) Subscribe(ctx context.Context, botID string) (<-chan Event, string) {
	subID := uuid.New().String()
	ch := make(chan Event, subscriberBufferSize)

	b.mu.Lock()
	if _, ok := b.subscribers[botID]; !ok {
		b.subscribers[botID] = make(map[string]chan Event)
	}
	b.subscribers[botID][subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "bot_id", botID, "sub_id", subID)

	go func() {
		<-ctx.Done()
		b.Unsubscribe(botID, subID)
	}()

	return ch, subID
}

// Publish sends an event to herd-wide subscribers and to subscribers of
// the event's bot. Non-blocking: events are dropped for subscribers
// whose channels are full. The sends happen under the read lock so an
// Unsubscribe or Close cannot close a channel mid-delivery; they are
// select-with-default, so the lock is never held across a blocking send.
func (b *Broadcaster) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	b.send(b.subscribers[allBotsKey], event)
	if event.BotID != allBotsKey {
		b.send(b.subscribers[event.BotID], event)
	}
}

func (b *Broadcaster) send(subs map[string]chan Event, event Event) {
	for _, ch := range subs {
		select {
		case ch <- event:
		default:
			b.logger.Debug("dropped event for slow subscriber",
				"bot_id", event.BotID,
				"kind", event.Kind)
		}
	}
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster) Unsubscribe(botID, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[botID]
	if !ok {
		return
	}
	ch, exists := subs[subID]
	if !exists {
		return
	}

	delete(subs, subID)
	close(ch)
	if len(subs) == 0 {
		delete(b.subscribers, botID)
	}

	b.logger.Debug("subscriber removed", "bot_id", botID, "sub_id", subID)
}

// Close shuts down the broadcaster and closes all subscriber channels.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for botID, subs := range b.subscribers {
		for subID, ch := range subs {
			close(ch)
			delete(subs, subID)
		}
		delete(b.subscribers, botID)
	}

	b.logger.Debug("broadcaster closed")
}
