// ABOUTME: WebSocket client for the protocol-bridge sidecar that speaks the
// ABOUTME: actual game protocol, translating JSON frames into session Events.

package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// eventBufferSize is the channel buffer for events read off the wire.
	eventBufferSize = 32

	defaultHandshakeTimeout = 10 * time.Second
)

// BridgeDialer dials the protocol-bridge sidecar over WebSocket. The bridge
// owns the game-protocol framing; this side only exchanges JSON frames.
type BridgeDialer struct {
	// URL is the bridge endpoint, e.g. "ws://localhost:3000/session".
	URL string

	// HandshakeTimeout bounds the WebSocket dial. Zero means 10s.
	HandshakeTimeout time.Duration

	Logger *slog.Logger
}

// frame is the JSON envelope exchanged with the bridge, both directions.
// Only the fields matching Type are set.
type frame struct {
	Type string `json:"type"`

	// connect (outbound)
	Host     string `json:"host,omitempty"`
	Port     int    `json:"port,omitempty"`
	Username string `json:"username,omitempty"`

	// chat (both directions)
	Text    string `json:"text,omitempty"`
	From    string `json:"from,omitempty"`
	Message string `json:"message,omitempty"`

	// look (outbound)
	Target *Vec3 `json:"target,omitempty"`

	// move (outbound)
	Forward bool `json:"forward,omitempty"`

	// health (inbound)
	Value float64 `json:"value,omitempty"`

	// kicked / net_error (inbound)
	Reason string `json:"reason,omitempty"`
	Code   string `json:"code,omitempty"`

	// spawned (inbound)
	Server *ServerInfo `json:"server,omitempty"`
}

// Dial connects to the bridge, sends the connect frame for (host, port,
// username), and returns a live Session. The bridge reports the outcome of
// the upstream connection asynchronously via events.
func (d *BridgeDialer) Dial(ctx context.Context, host string, port int, username string) (Session, error) {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	timeout := d.HandshakeTimeout
	if timeout == 0 {
		timeout = defaultHandshakeTimeout
	}

	dialer := websocket.Dialer{HandshakeTimeout: timeout}
	conn, resp, err := dialer.DialContext(ctx, d.URL, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dialing bridge %s: %w (status %d)", d.URL, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dialing bridge %s: %w", d.URL, err)
	}

	s := &bridgeSession{
		conn:   conn,
		events: make(chan Event, eventBufferSize),
		logger: logger.With("component", "session", "username", username),
	}

	if err := s.writeFrame(frame{Type: "connect", Host: host, Port: port, Username: username}); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("sending connect frame: %w", err)
	}

	go s.readLoop()
	return s, nil
}

// bridgeSession is a Session backed by one WebSocket connection to the bridge.
type bridgeSession struct {
	conn   *websocket.Conn
	events chan Event
	logger *slog.Logger

	writeMu   sync.Mutex
	closeOnce sync.Once
}

func (s *bridgeSession) Events() <-chan Event {
	return s.events
}

func (s *bridgeSession) Chat(text string) error {
	return s.writeFrame(frame{Type: "chat", Text: text})
}

func (s *bridgeSession) LookAt(target Vec3) error {
	return s.writeFrame(frame{Type: "look", Target: &target})
}

func (s *bridgeSession) SetForwardMotion(moving bool) error {
	return s.writeFrame(frame{Type: "move", Forward: moving})
}

// Close sends a best-effort close frame and tears down the connection.
// Idempotent; the read loop observes the closed socket and finishes the
// event stream.
func (s *bridgeSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.writeMu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "closing"),
			time.Now().Add(500*time.Millisecond))
		s.writeMu.Unlock()
		err = s.conn.Close()
	})
	return err
}

// writeFrame serializes one frame. gorilla/websocket allows a single
// concurrent writer, so all writes funnel through writeMu.
func (s *bridgeSession) writeFrame(f frame) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(f)
}

// readLoop pumps frames into the event channel until the socket dies.
// Every exit path delivers a terminal Ended event and closes the channel.
func (s *bridgeSession) readLoop() {
	defer close(s.events)

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.deliver(Event{
					Kind: EventNetworkError,
					Err:  &NetworkError{Code: "EPIPE", Message: err.Error()},
				})
			}
			s.deliver(Event{Kind: EventEnded})
			return
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			s.logger.Warn("dropping malformed bridge frame", "error", err)
			continue
		}

		ev, terminal := decodeFrame(f)
		if ev == nil {
			s.logger.Warn("dropping unknown bridge frame", "type", f.Type)
			continue
		}
		s.deliver(*ev)
		if terminal {
			return
		}
	}
}

// decodeFrame maps an inbound frame onto an Event. The bool reports whether
// the frame terminates the stream.
func decodeFrame(f frame) (*Event, bool) {
	switch f.Type {
	case "logged_in":
		return &Event{Kind: EventLoggedIn}, false
	case "spawned":
		return &Event{Kind: EventSpawned, Server: f.Server}, false
	case "chat":
		return &Event{Kind: EventChat, Chat: &ChatEvent{From: f.From, Message: f.Message}}, false
	case "health":
		return &Event{Kind: EventHealthChanged, Health: f.Value}, false
	case "death":
		return &Event{Kind: EventDeath}, false
	case "kicked":
		return &Event{Kind: EventKicked, Reason: f.Reason}, false
	case "net_error":
		return &Event{Kind: EventNetworkError, Err: &NetworkError{Code: f.Code, Message: f.Message}}, false
	case "ended":
		return &Event{Kind: EventEnded}, true
	default:
		return nil, false
	}
}

// deliver pushes an event, dropping on a full buffer rather than wedging the
// read loop behind a stalled consumer.
func (s *bridgeSession) deliver(ev Event) {
	select {
	case s.events <- ev:
	default:
		s.logger.Warn("session event buffer full, dropping event", "kind", ev.Kind.String())
	}
}
