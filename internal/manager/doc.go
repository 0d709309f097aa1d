// Package manager owns the running set of bots.
//
// The Manager is the single authority on which bots are live. It loads
// configs from the store, enforces one instance per bot ID, persists the
// active flag across restarts, and relays every instance's event stream
// into a Broadcaster that HTTP subscribers attach to. A bot that settles
// on its own (reconnect budget exhausted, or auto-reconnect disabled)
// leaves the registry once its events have flushed.
package manager
