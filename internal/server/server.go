package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/tradepilot/internal/domain"
	"github.com/alanyoungcy/tradepilot/internal/server/handler"
	"github.com/alanyoungcy/tradepilot/internal/server/middleware"
	"github.com/alanyoungcy/tradepilot/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKeyHash  string // bcrypt hash; if empty, authentication is disabled
	// RateLimitPerMin caps requests per client IP. Zero disables limiting.
	RateLimitPerMin int
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health    *handler.HealthHandler
	Decisions *handler.DecisionHandler
	Controls  *handler.ControlHandler
	Metrics   http.Handler
}

// Server is the headless HTTP + WebSocket API in front of the autopilot
// engine.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (logging, CORS, rate limit, auth) and attaches the
// WebSocket hub. limiter and wsHub may be nil.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      NewHandler(cfg, handlers, wsHub, limiter, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
	}
}

// NewHandler builds the routed and wrapped handler tree used by Server.
func NewHandler(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	// Health check and metrics (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	if handlers.Metrics != nil {
		mux.Handle("GET /metrics", handlers.Metrics)
	}

	// Status and controls.
	mux.HandleFunc("GET /api/status", handlers.Controls.GetStatus)
	mux.HandleFunc("POST /api/control/kill", handlers.Controls.Kill)
	mux.HandleFunc("POST /api/control/pause", handlers.Controls.Pause)
	mux.HandleFunc("POST /api/control/resume", handlers.Controls.Resume)
	mux.HandleFunc("POST /api/control/reset", handlers.Controls.Reset)
	mux.HandleFunc("PUT /api/mode", handlers.Controls.SetMode)
	mux.HandleFunc("GET /api/risk", handlers.Controls.GetRisk)
	mux.HandleFunc("PATCH /api/risk", handlers.Controls.UpdateRisk)

	// Decision endpoints.
	mux.HandleFunc("POST /api/decisions/evaluate", handlers.Decisions.Evaluate)
	mux.HandleFunc("GET /api/decisions", handlers.Decisions.ListHistory)
	mux.HandleFunc("GET /api/decisions/pending", handlers.Decisions.ListPending)
	mux.HandleFunc("GET /api/decisions/{id}", handlers.Decisions.GetDecision)
	mux.HandleFunc("POST /api/decisions/{id}/approve", handlers.Decisions.Approve)
	mux.HandleFunc("POST /api/decisions/{id}/reject", handlers.Decisions.Reject)

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain.
	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKeyHash, "/api/health", "/metrics")(h)
	h = middleware.RateLimit(limiter, cfg.RateLimitPerMin, time.Minute)(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)
	return h
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
