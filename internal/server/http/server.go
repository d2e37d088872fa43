// Package httpserver provides the HTTP API for the paper corpus service:
// health probes, Prometheus metrics, and read-mostly registry endpoints.
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
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/litforge/paper-corpus-service/internal/checkpoint"
	"github.com/litforge/paper-corpus-service/internal/database"
	"github.com/litforge/paper-corpus-service/internal/registry"
)

// Server is the HTTP API server.
type Server struct {
	router      chi.Router
	httpServer  *http.Server
	registry    *registry.Store
	checkpoints *checkpoint.Store
	db          *database.DB
	metricsPath string
	logger      zerolog.Logger
}

// Config holds HTTP server configuration.
type Config struct {
	Address         string
	MetricsPath     string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// NewServer creates a new HTTP server. db may be nil when the service runs
// without PostgreSQL (file or memory cache backend); readiness then skips
// the database check.
func NewServer(
	cfg Config,
	reg *registry.Store,
	checkpoints *checkpoint.Store,
	db *database.DB,
	logger zerolog.Logger,
) *Server {
	s := &Server{
		registry:    reg,
		checkpoints: checkpoints,
		db:          db,
		metricsPath: cfg.MetricsPath,
		logger:      logger.With().Str("component", "http-server").Logger(),
	}
	if s.metricsPath == "" {
		s.metricsPath = "/metrics"
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
	r.Use(middleware.Recoverer)
	r.Use(requestContextMiddleware)

	// Health and metrics endpoints
	r.Get("/healthz", s.healthHandler)
	r.Get("/readyz", s.readinessHandler)
	r.Method(http.MethodGet, s.metricsPath, promhttp.Handler())

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(jsonContentTypeMiddleware)

		r.Get("/registry/stats", s.getRegistryStats)
		r.Get("/registry/papers/{paperID}", s.getRegistryPaper)
		r.Post("/registry/resolve", s.resolvePapers)
		r.Get("/runs/{runID}/checkpoint", s.getRunCheckpoint)
	})

	return r
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info().Str("address", s.httpServer.Addr).Msg("http server starting")
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on HTTP address: %w", err)
	}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// healthHandler returns basic liveness status. It deliberately touches no
// dependency; a wedged database must not make the process look dead.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readinessHandler reports whether the service can do useful work. The
// database check only applies when a pool is configured.
func (s *Server) readinessHandler(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		health := s.db.Health(r.Context())
		if health.Status != "healthy" {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":   "not_ready",
				"database": health.Status,
				"error":    health.Error,
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"status":   "ready",
			"database": "healthy",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Best-effort log; headers already sent.
		_ = err
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{
		"error": message,
	})
}
