// ABOUTME: Herd-level event type published to broadcaster subscribers.
// ABOUTME: Wraps per-bot events with the originating bot's ID.

package manager

import (
	"time"

	"github.com/2389/botherd/internal/bot"
)

// Event is a bot event annotated with the bot it came from. The manager
// relays every instance event through the broadcaster as one of these.
type Event struct {
	Kind    bot.EventKind `json:"kind"`
	BotID   string        `json:"bot_id"`
	Time    time.Time     `json:"time"`
	Level   bot.Level     `json:"level,omitempty"`
	Message string        `json:"message,omitempty"`
	Status  *bot.Status   `json:"status,omitempty"`
}

func wrapEvent(botID string, ev bot.Event) Event {
	return Event{
		Kind:    ev.Kind,
		BotID:   botID,
		Time:    ev.Time,
		Level:   ev.Level,
		Message: ev.Message,
		Status:  ev.Status,
	}
}
