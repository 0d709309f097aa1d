// ABOUTME: Gateway orchestrator that coordinates the HTTP server lifecycle
// ABOUTME: Wires config, store, name allocator, and bot manager together

package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/2389/botherd/internal/config"
	"github.com/2389/botherd/internal/manager"
	"github.com/2389/botherd/internal/names"
	"github.com/2389/botherd/internal/session"
	"github.com/2389/botherd/internal/store"
)

// Gateway orchestrates the botherd server components. It owns the HTTP
// server for the bot API and event stream, the SQLite store, and the
// herd manager.
type Gateway struct {
	config     *config.Config
	store      store.Store
	manager    *manager.Manager
	httpServer *http.Server
	logger     *slog.Logger
}

// initStore creates a store based on config and environment.
func initStore(cfg *config.Config) (store.Store, error) {
	dbPath := cfg.Database.Path
	if envPath := os.Getenv("BOTHERD_DB_PATH"); envPath != "" {
		dbPath = envPath
	}

	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// initAllocator builds the username allocator, loading a vocabulary
// override from disk when one is configured.
func initAllocator(cfg *config.Config) (*names.Allocator, error) {
	if cfg.Names.VocabularyPath == "" {
		return names.New(names.DefaultVocabulary()), nil
	}
	vocab, err := names.LoadVocabulary(cfg.Names.VocabularyPath)
	if err != nil {
		return nil, fmt.Errorf("loading name vocabulary: %w", err)
	}
	return names.New(vocab), nil
}

// New creates a new Gateway instance with the given configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	s, err := initStore(cfg)
	if err != nil {
		return nil, err
	}

	alloc, err := initAllocator(cfg)
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	dialer := &session.BridgeDialer{
		URL:              cfg.Bridge.URL,
		HandshakeTimeout: cfg.Bridge.HandshakeTimeout,
		Logger:           logger.With("component", "bridge"),
	}

	mgr := manager.New(s, dialer, alloc, logger)

	gw := &Gateway{
		config:  cfg,
		store:   s,
		manager: mgr,
		logger:  logger.With("component", "gateway"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", gw.handleHealth)
	mux.HandleFunc("/health/ready", gw.handleReady)
	gw.registerAPIRoutes(mux)

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return gw, nil
}

// Manager exposes the herd manager for the CLI layer.
func (g *Gateway) Manager() *manager.Manager {
	return g.manager
}

// Run starts the HTTP server and blocks until the context is canceled.
// Bots flagged active in the store are resumed first when configured.
// Returns nil on graceful shutdown, or an error if the server fails.
func (g *Gateway) Run(ctx context.Context) error {
	if g.config.Bots.ResumeActive {
		if err := g.manager.ResumeActive(ctx); err != nil {
			return fmt.Errorf("resuming active bots: %w", err)
		}
	}

	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		g.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := g.gracefulShutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() intentionally since the original context is already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// Shutdown gracefully stops the HTTP server, stops all bots, and closes
// the store.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	if err := g.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("HTTP shutdown: %w", err))
	}

	g.manager.Close(ctx)

	if err := g.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("store close: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK once the store answers queries.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	statuses, err := g.manager.ListStatuses(r.Context())
	if err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("store unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%d bots)", len(statuses))
}
