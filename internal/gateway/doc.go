// Package gateway wires botherd's components into a running server.
//
// The Gateway owns the SQLite store, the username allocator, the bridge
// dialer, and the herd manager, and serves the HTTP API:
//
//	GET    /health                  liveness
//	GET    /health/ready            readiness (store answering)
//	GET    /api/bots                list bot configs
//	POST   /api/bots                create a bot config
//	GET    /api/bots/{id}           fetch one config
//	PUT    /api/bots/{id}           update a config
//	DELETE /api/bots/{id}           stop and delete a bot
//	POST   /api/bots/{id}/start     start the bot
//	POST   /api/bots/{id}/stop      stop the bot
//	GET    /api/bots/{id}/status    live status snapshot
//	GET    /api/status              status for every configured bot
//	GET    /api/events              SSE stream of herd events
package gateway
