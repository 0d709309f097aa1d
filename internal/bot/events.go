// ABOUTME: Event and status types emitted by a bot instance.
// ABOUTME: The manager consumes these and republishes them tagged with a bot ID.

package bot

import (
	"time"

	"github.com/2389/botherd/internal/session"
)

// State names one position in the instance lifecycle.
type State string

const (
	StateIdle         State = "idle"
	StateConnecting   State = "connecting"
	StateActive       State = "active"
	StateDisconnected State = "disconnected"
	StateReconnecting State = "reconnecting"
)

// Level is the severity of a log event.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// EventKind indicates the category of an instance event.
type EventKind int

const (
	// EventLog is an informational log line (debug, info, or warn).
	EventLog EventKind = iota
	// EventStatus reports a status snapshot after a state change.
	EventStatus
	// EventError is an error-level log line (terminal failures).
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventLog:
		return "log"
	case EventStatus:
		return "status"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is one entry in an instance's event stream. Events are emitted in
// order; Status is set only for EventStatus.
type Event struct {
	Kind    EventKind `json:"kind"`
	Time    time.Time `json:"time"`
	Level   Level     `json:"level,omitempty"`
	Message string    `json:"message,omitempty"`
	Status  *Status   `json:"status,omitempty"`
}

// Status is a point-in-time snapshot of an instance. It is derived from
// instance state on demand and never mutated independently.
type Status struct {
	BotID             string              `json:"bot_id"`
	State             State               `json:"state"`
	Connected         bool                `json:"connected"`
	EffectiveUsername string              `json:"effective_username,omitempty"`
	StartedAt         time.Time           `json:"started_at,omitzero"`
	Uptime            time.Duration       `json:"uptime"`
	ReconnectAttempt  int                 `json:"reconnect_attempt"`
	Wandering         bool                `json:"wandering"`
	ServerInfo        *session.ServerInfo `json:"server_info,omitempty"`
}
