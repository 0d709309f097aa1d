// Package session defines the boundary between bot instances and the game
// server protocol.
//
// # Overview
//
// The bot core never speaks the game protocol itself. It consumes a Session
// capability (chat, look, move, close) and a stream of Events (logged_in,
// spawned, chat, health, death, kicked, net_error, ended) produced by a
// protocol adapter.
//
// # Dialer
//
// A Dialer opens sessions:
//
//	sess, err := dialer.Dial(ctx, host, port, username)
//
// Production deployments use BridgeDialer, a WebSocket client for the
// protocol-bridge sidecar. The sidecar owns protocol framing and
// forwards events as JSON frames; commands flow the other way on the same
// socket. Tests inject fake Dialers.
//
// # Event Contract
//
// Events arrive in emission order. The stream always terminates with an
// Ended event followed by channel close; no event is ever delivered after
// the channel closes. Transport failures are reported as net_error events,
// never as panics.
package session
