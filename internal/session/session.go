// ABOUTME: Session boundary between bot instances and the game-server protocol.
// ABOUTME: Defines the Dialer/Session interfaces and the tagged Event union.

package session

import "context"

// Vec3 is a world-space vector used for look targets.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Session is one live connection to a remote game server. Implementations
// convert protocol traffic into Events; they never surface protocol errors
// as panics or process failures.
type Session interface {
	// Events returns the stream of session events. The channel is closed
	// after an Ended event has been delivered; no events follow it.
	Events() <-chan Event

	// Chat sends a chat line as the connected player.
	Chat(text string) error

	// LookAt turns the player toward the given target.
	LookAt(target Vec3) error

	// SetForwardMotion starts or stops walking forward.
	SetForwardMotion(moving bool) error

	// Close tears down the connection. Safe to call more than once.
	Close() error
}

// Dialer opens sessions. The bot core holds a Dialer so tests can inject
// fake sessions and deployments can choose a transport.
type Dialer interface {
	Dial(ctx context.Context, host string, port int, username string) (Session, error)
}

// EventKind discriminates the Event union.
type EventKind int

const (
	EventLoggedIn EventKind = iota
	EventSpawned
	EventChat
	EventHealthChanged
	EventDeath
	EventKicked
	EventNetworkError
	EventEnded
)

// String returns the wire name of the event kind.
func (k EventKind) String() string {
	switch k {
	case EventLoggedIn:
		return "logged_in"
	case EventSpawned:
		return "spawned"
	case EventChat:
		return "chat"
	case EventHealthChanged:
		return "health"
	case EventDeath:
		return "death"
	case EventKicked:
		return "kicked"
	case EventNetworkError:
		return "net_error"
	case EventEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// Event is a tagged union of everything a session can report. Only the
// fields matching Kind are populated.
type Event struct {
	Kind EventKind

	Chat   *ChatEvent    // EventChat
	Health float64       // EventHealthChanged
	Reason string        // EventKicked
	Err    *NetworkError // EventNetworkError
	Server *ServerInfo   // EventSpawned
}

// ChatEvent is a chat line received from the server.
type ChatEvent struct {
	From    string `json:"from"`
	Message string `json:"message"`
}

// ServerInfo describes the server a session spawned into.
type ServerInfo struct {
	Version     string `json:"version"`
	PlayerCount int    `json:"player_count"`
	PingMS      int    `json:"ping_ms"`
}

// NetworkError is a transport failure with a machine-readable code
// (ECONNRESET, ENOTFOUND, ECONNREFUSED, ETIMEDOUT, ...).
type NetworkError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *NetworkError) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return e.Code + ": " + e.Message
}
