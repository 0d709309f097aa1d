// ABOUTME: HTTP API handlers for bot configs and lifecycle control.
// ABOUTME: Provides /api/bots CRUD plus start/stop/status operations.

package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/2389/botherd/internal/bot"
	"github.com/2389/botherd/internal/manager"
	"github.com/2389/botherd/internal/store"
)

// BotStatusResponse is the JSON shape for a bot's status.
type BotStatusResponse struct {
	BotID             string    `json:"bot_id"`
	State             string    `json:"state"`
	Connected         bool      `json:"connected"`
	EffectiveUsername string    `json:"effective_username,omitempty"`
	StartedAt         time.Time `json:"started_at,omitzero"`
	UptimeSeconds     float64   `json:"uptime_seconds"`
	ReconnectAttempt  int       `json:"reconnect_attempt,omitempty"`
	Wandering         bool      `json:"wandering,omitempty"`
	ServerVersion     string    `json:"server_version,omitempty"`
	ServerPlayers     int       `json:"server_players,omitempty"`
}

// HerdStatusResponse is the JSON response for GET /api/status.
type HerdStatusResponse struct {
	Bots []BotStatusResponse `json:"bots"`
}

func statusResponse(st bot.Status) BotStatusResponse {
	resp := BotStatusResponse{
		BotID:             st.BotID,
		State:             string(st.State),
		Connected:         st.Connected,
		EffectiveUsername: st.EffectiveUsername,
		StartedAt:         st.StartedAt,
		UptimeSeconds:     st.Uptime.Seconds(),
		ReconnectAttempt:  st.ReconnectAttempt,
		Wandering:         st.Wandering,
	}
	if st.ServerInfo != nil {
		resp.ServerVersion = st.ServerInfo.Version
		resp.ServerPlayers = st.ServerInfo.PlayerCount
	}
	return resp
}

// registerAPIRoutes registers all API routes on the mux.
func (g *Gateway) registerAPIRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/bots", g.handleBots)
	mux.HandleFunc("/api/bots/", g.handleBotRoutes)
	mux.HandleFunc("/api/status", g.handleHerdStatus)
	mux.HandleFunc("/api/events", g.handleEvents)
}

// handleBots routes collection requests by HTTP method.
func (g *Gateway) handleBots(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		g.handleListBots(w, r)
	case http.MethodPost:
		g.handleCreateBot(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// handleBotRoutes dispatches /api/bots/{id} and /api/bots/{id}/{action}.
func (g *Gateway) handleBotRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/bots/")
	if rest == "" {
		g.sendJSONError(w, http.StatusBadRequest, "bot id is required")
		return
	}

	botID, action, _ := strings.Cut(rest, "/")
	if botID == "" {
		g.sendJSONError(w, http.StatusBadRequest, "bot id is required")
		return
	}

	switch action {
	case "":
		g.handleBotByID(w, r, botID)
	case "start":
		g.handleStartBot(w, r, botID)
	case "stop":
		g.handleStopBot(w, r, botID)
	case "status":
		g.handleBotStatus(w, r, botID)
	default:
		g.sendJSONError(w, http.StatusNotFound, "unknown action")
	}
}

// handleListBots handles GET /api/bots.
func (g *Gateway) handleListBots(w http.ResponseWriter, r *http.Request) {
	configs, err := g.store.ListConfigs(r.Context())
	if err != nil {
		g.logger.Error("failed to list configs", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(configs)
}

// handleCreateBot handles POST /api/bots.
func (g *Gateway) handleCreateBot(w http.ResponseWriter, r *http.Request) {
	var cfg store.BotConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	cfg.ReconnectInterval = time.Duration(cfg.ReconnectIntervalSec) * time.Second

	if err := cfg.Validate(); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := g.store.CreateConfig(r.Context(), &cfg); err != nil {
		g.logger.Error("failed to create config", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(cfg)
}

// handleBotByID handles GET, PUT, and DELETE on /api/bots/{id}.
func (g *Gateway) handleBotByID(w http.ResponseWriter, r *http.Request, botID string) {
	switch r.Method {
	case http.MethodGet:
		g.handleGetBot(w, r, botID)
	case http.MethodPut:
		g.handleUpdateBot(w, r, botID)
	case http.MethodDelete:
		g.handleDeleteBot(w, r, botID)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (g *Gateway) handleGetBot(w http.ResponseWriter, r *http.Request, botID string) {
	cfg, err := g.store.GetConfig(r.Context(), botID)
	if errors.Is(err, store.ErrConfigNotFound) {
		g.sendJSONError(w, http.StatusNotFound, "bot not found")
		return
	}
	if err != nil {
		g.logger.Error("failed to get config", "error", err, "bot_id", botID)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(cfg)
}

func (g *Gateway) handleUpdateBot(w http.ResponseWriter, r *http.Request, botID string) {
	var cfg store.BotConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	cfg.ID = botID
	cfg.ReconnectInterval = time.Duration(cfg.ReconnectIntervalSec) * time.Second

	if err := cfg.Validate(); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	err := g.store.UpdateConfig(r.Context(), &cfg)
	if errors.Is(err, store.ErrConfigNotFound) {
		g.sendJSONError(w, http.StatusNotFound, "bot not found")
		return
	}
	if err != nil {
		g.logger.Error("failed to update config", "error", err, "bot_id", botID)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	// A running instance keeps its old config until restarted.
	if g.manager.IsRunning(botID) {
		g.logger.Info("config updated for running bot, restart to apply", "bot_id", botID)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(cfg)
}

func (g *Gateway) handleDeleteBot(w http.ResponseWriter, r *http.Request, botID string) {
	// Stop a live instance before removing its config.
	if err := g.manager.StopBot(r.Context(), botID); err != nil {
		g.logger.Error("failed to stop bot before delete", "error", err, "bot_id", botID)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	err := g.store.DeleteConfig(r.Context(), botID)
	if errors.Is(err, store.ErrConfigNotFound) {
		g.sendJSONError(w, http.StatusNotFound, "bot not found")
		return
	}
	if err != nil {
		g.logger.Error("failed to delete config", "error", err, "bot_id", botID)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleStartBot handles POST /api/bots/{id}/start.
func (g *Gateway) handleStartBot(w http.ResponseWriter, r *http.Request, botID string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	err := g.manager.StartBot(r.Context(), botID)
	if errors.Is(err, store.ErrConfigNotFound) {
		g.sendJSONError(w, http.StatusNotFound, "bot not found")
		return
	}
	if errors.Is(err, manager.ErrBotAlreadyRunning) {
		g.sendJSONError(w, http.StatusConflict, "bot already running")
		return
	}
	if err != nil {
		g.logger.Error("failed to start bot", "error", err, "bot_id", botID)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	g.writeBotStatus(w, r, botID)
}

// handleStopBot handles POST /api/bots/{id}/stop.
func (g *Gateway) handleStopBot(w http.ResponseWriter, r *http.Request, botID string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if err := g.manager.StopBot(r.Context(), botID); err != nil {
		g.logger.Error("failed to stop bot", "error", err, "bot_id", botID)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	g.writeBotStatus(w, r, botID)
}

// handleBotStatus handles GET /api/bots/{id}/status.
func (g *Gateway) handleBotStatus(w http.ResponseWriter, r *http.Request, botID string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	g.writeBotStatus(w, r, botID)
}

func (g *Gateway) writeBotStatus(w http.ResponseWriter, r *http.Request, botID string) {
	st, err := g.manager.Status(r.Context(), botID)
	if errors.Is(err, store.ErrConfigNotFound) {
		g.sendJSONError(w, http.StatusNotFound, "bot not found")
		return
	}
	if err != nil {
		g.logger.Error("failed to get status", "error", err, "bot_id", botID)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(statusResponse(st))
}

// handleHerdStatus handles GET /api/status.
func (g *Gateway) handleHerdStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	statuses, err := g.manager.ListStatuses(r.Context())
	if err != nil {
		g.logger.Error("failed to list statuses", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := HerdStatusResponse{Bots: make([]BotStatusResponse, len(statuses))}
	for i, st := range statuses {
		resp.Bots[i] = statusResponse(st)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
