// ABOUTME: SSE event stream handler for live herd events.
// ABOUTME: Bridges broadcaster subscriptions onto text/event-stream responses.

package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/2389/botherd/internal/manager"
)

// handleEvents handles GET /api/events. Events are streamed as SSE with
// the event type set to the herd event kind. An optional ?bot_id=X query
// parameter narrows the stream to one bot.
func (g *Gateway) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		g.logger.Error("streaming not supported")
		g.sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	botID := r.URL.Query().Get("bot_id")
	events, subID := g.manager.Subscribe(r.Context(), botID)
	defer g.manager.Unsubscribe(botID, subID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	g.writeSSEEvent(w, "started", map[string]string{"subscription_id": subID})
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			g.writeSSEEvent(w, eventName(ev), ev)
			flusher.Flush()
		}
	}
}

func eventName(ev manager.Event) string {
	return ev.Kind.String()
}

// writeSSEEvent writes a single SSE event to the response writer.
func (g *Gateway) writeSSEEvent(w http.ResponseWriter, event string, data interface{}) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		g.logger.Error("failed to marshal SSE data", "error", err)
		return
	}

	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", dataJSON)
}
