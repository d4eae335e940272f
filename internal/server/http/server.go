// Package httpserver provides the HTTP REST API server for the item service.
package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/helixir/item-service/internal/database"
	"github.com/helixir/item-service/internal/observability"
	"github.com/helixir/item-service/internal/repository"
)

// SessionProvider hands out request-scoped database sessions.
// *database.Factory implements it.
type SessionProvider interface {
	WithSession(ctx context.Context, fn func(sess database.Session) error) error
	Health(ctx context.Context) database.HealthStatus
}

// Server is the HTTP REST API server.
type Server struct {
	router       chi.Router
	httpServer   *http.Server
	sessions     SessionProvider
	items        repository.ItemRepository
	metrics      *observability.Metrics
	limiter      *RateLimiter
	validate     *validator.Validate
	defaultLimit int
	maxLimit     int
	logger       zerolog.Logger
}

// Config holds HTTP server configuration.
type Config struct {
	Address         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// DefaultLimit is the page size used when a list request has no limit.
	DefaultLimit int
	// MaxLimit caps the page size of list requests.
	MaxLimit int

	// RateLimit is the sustained number of item API requests per second;
	// 0 disables limiting. RateBurst is the allowed burst above it.
	RateLimit float64
	RateBurst int
}

// NewServer creates a new HTTP server with all dependencies. metrics may be
// nil.
func NewServer(
	cfg Config,
	sessions SessionProvider,
	items repository.ItemRepository,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *Server {
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = repository.MaxListLimit
	}
	if cfg.DefaultLimit <= 0 || cfg.DefaultLimit > cfg.MaxLimit {
		cfg.DefaultLimit = min(repository.DefaultListLimit, cfg.MaxLimit)
	}

	s := &Server{
		sessions:     sessions,
		items:        items,
		metrics:      metrics,
		limiter:      NewRateLimiter(cfg.RateLimit, cfg.RateBurst),
		validate:     validator.New(validator.WithRequiredStructEnabled()),
		defaultLimit: cfg.DefaultLimit,
		maxLimit:     cfg.MaxLimit,
		logger:       observability.WithComponent(logger, "http-server"),
	}

	s.router = s.buildRouter()

	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// buildRouter creates the chi router with all middleware and routes.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(correlationIDMiddleware)
	r.Use(jsonContentTypeMiddleware)

	// Health endpoints
	r.Get("/health", s.healthHandler)
	r.Get("/readyz", s.readinessHandler)

	r.Route("/api/v1/items", func(r chi.Router) {
		r.Use(s.limiter.Middleware)

		r.Post("/", s.createItem)
		r.Get("/", s.listItems)
		r.Get("/{itemID}", s.getItem)
		r.Put("/{itemID}", s.updateItem)
		r.Delete("/{itemID}", s.deleteItem)
	})

	return r
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server on its configured address.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on HTTP address: %w", err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Shutdown is called.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info().Str("address", ln.Addr().String()).Msg("HTTP server starting")
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// healthHandler reports that the process is up. It does not touch the
// database.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readinessHandler reports whether the database is reachable.
func (s *Server) readinessHandler(w http.ResponseWriter, r *http.Request) {
	health := s.sessions.Health(r.Context())
	if !health.Healthy() {
		s.logger.Warn().
			Str("backend", health.Backend).
			Str("error", health.Error).
			Msg("readiness check failed")
		writeJSON(w, http.StatusServiceUnavailable, readinessResponse{
			Status:   "not_ready",
			Database: health,
		})
		return
	}
	writeJSON(w, http.StatusOK, readinessResponse{
		Status:   "ready",
		Database: health,
	})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	// The status line is already written; a failed encode means the client
	// went away.
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, errorResponse{Error: message})
}
