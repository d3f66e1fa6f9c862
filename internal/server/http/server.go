// Package httpserver provides the HTTP REST API server for the paper enrichment service.
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
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/scholaris/paper-enrichment-service/internal/domain"
	"github.com/scholaris/paper-enrichment-service/internal/pipeline"
)

// Pipeline defines the enrichment operations the HTTP layer exposes.
// This decouples the server from the concrete orchestrator, enabling
// straightforward testing with mock implementations.
type Pipeline interface {
	// Process runs the synchronous enrichment phase and returns the batch
	// with abstracts attached. Image generation continues in the background.
	Process(ctx context.Context, query string, count int, dateRange domain.DateRange) (*domain.BatchResult, error)

	// GetLatest returns a snapshot of the batch if it is still the current
	// run.
	GetLatest(batchID uuid.UUID) (*domain.BatchResult, bool)

	// Search returns raw candidates without enrichment.
	Search(ctx context.Context, query string, limit int, dateRange domain.DateRange) ([]domain.PaperCandidate, error)

	// Subscribe registers for item state change hints.
	Subscribe() (<-chan pipeline.Update, func())
}

// ProviderStatus reports which external providers hold credentials. It feeds
// the readiness endpoint so operators can spot degraded deployments.
type ProviderStatus struct {
	Search bool
	Images bool
}

// Server is the HTTP REST API server.
type Server struct {
	router     chi.Router
	httpServer *http.Server
	pipeline   Pipeline
	providers  ProviderStatus
	logger     zerolog.Logger
}

// Config holds HTTP server configuration.
type Config struct {
	Address         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// NewServer creates a new HTTP server around the enrichment pipeline.
func NewServer(cfg Config, pipe Pipeline, providers ProviderStatus, logger zerolog.Logger) *Server {
	s := &Server{
		pipeline:  pipe,
		providers: providers,
		logger:    logger.With().Str("component", "http-server").Logger(),
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
	r.Use(correlationIDMiddleware)
	r.Use(jsonContentTypeMiddleware)

	// Health endpoints
	r.Get("/healthz", s.healthHandler)
	r.Get("/readyz", s.readinessHandler)

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Post("/process", s.processBatch)
		r.Get("/search", s.searchPapers)
		r.Get("/batches/{batchID}", s.getBatch)
		r.Get("/batches/{batchID}/stream", s.streamBatch)
	})

	return r
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info().Str("address", s.httpServer.Addr).Msg("HTTP server starting")
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

// healthHandler returns basic liveness status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readinessHandler reports readiness along with provider credential status.
// A deployment without a search key still serves traffic; its searches fail
// with 502, and this endpoint is where that misconfiguration shows up.
func (s *Server) readinessHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, readinessResponse{
		Status: "ready",
		Providers: map[string]bool{
			"search": s.providers.Search,
			"images": s.providers.Images,
		},
	})
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
