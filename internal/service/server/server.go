package server

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/astraldesk/skywall/internal/domain"
	"github.com/astraldesk/skywall/internal/metrics"
	"github.com/astraldesk/skywall/internal/port"
	"github.com/astraldesk/skywall/internal/service/fetcher"
)

// Config contains HTTP server configuration
type Config struct {
	BindAddr      string
	AdminUsername string
	AdminPassword string
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	IdleTimeout   time.Duration
}

// DefaultConfig returns default server configuration. The bind address is
// loopback-only: this is a control surface for the local desktop, not a
// public service.
func DefaultConfig() *Config {
	return &Config{
		BindAddr:     "127.0.0.1:8090",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// ScreenController is the per-screen rotation control surface the API
// exposes. Implemented by the scheduler orchestrator.
type ScreenController interface {
	Statuses() []domain.ScreenStatus
	TriggerNext(screenID string) error
	Pause(screenID string) error
	Resume(screenID string) error
	StartScreen(screenID string) error
	StopScreen(screenID string) error
}

// CatalogSyncer runs an on-demand catalog refresh
type CatalogSyncer interface {
	SyncCatalog(ctx context.Context) (*fetcher.SyncResult, error)
}

// Server represents the management HTTP API server
type Server struct {
	config        *Config
	store         port.Store
	logger        *zap.Logger
	server        *http.Server
	statusHandler *StatusHandler
	screenHandler *ScreenHandler
}

// New creates a new HTTP server
func New(cfg *Config, store port.Store, ctrl ScreenController, syncer CatalogSyncer, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	s := &Server{
		config: cfg,
		store:  store,
		logger: logger,
	}

	s.statusHandler = NewStatusHandler(store, ctrl, syncer, logger)
	s.screenHandler = NewScreenHandler(ctrl, logger)

	// API routes are auth-protected only when credentials are configured;
	// health and metrics stay open for probes and scrapers.
	protect := func(h http.HandlerFunc) http.HandlerFunc { return h }
	if cfg.AdminUsername != "" {
		protect = BasicAuthMiddleware(cfg.AdminUsername, cfg.AdminPassword, logger)
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", s.handleHealth)

	mux.HandleFunc("/api/status", protect(s.statusHandler.HandleStatus))
	mux.HandleFunc("/api/sync", protect(s.statusHandler.HandleSync))
	mux.HandleFunc("/api/screens/", protect(s.screenHandler.HandleControl))

	mux.Handle("/metrics", metrics.Handler(gatherer))

	s.server = &http.Server{
		Addr:         cfg.BindAddr,
		Handler:      LoggingMiddleware(logger)(mux),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping HTTP server")
	return s.server.Shutdown(ctx)
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := s.store.Ping(); err != nil {
		s.logger.Error("health check failed", zap.Error(err))
		http.Error(w, "Database connection failed", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"healthy","time":"` + time.Now().Format(time.RFC3339) + `"}`))
}
