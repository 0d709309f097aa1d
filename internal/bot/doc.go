// Package bot implements the lifecycle of a single bot instance.
//
// An Instance moves through idle, connecting, active, disconnected, and
// reconnecting states. It owns at most one live server session at a time
// and emits a stream of log and status events that the manager fans out
// to subscribers. Reconnection is driven by the bot's persisted config:
// a fixed interval between attempts and a bounded attempt budget, after
// which the instance settles back to idle.
//
// All state transitions happen under a single mutex with a generation
// counter. Timer callbacks and session pumps capture the generation at
// scheduling time and no-op when it has moved on, so a stop that races a
// reconnect timer can never produce a second session.
package bot
