package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/opensource-finance/fraudscore/internal/domain"
	"github.com/opensource-finance/fraudscore/internal/metrics"
	"github.com/opensource-finance/fraudscore/internal/scoring"
)

// Dependencies are the collaborators served by the API.
// Repo, Cache, Bus and Metrics are optional.
type Dependencies struct {
	Engine       *scoring.Engine
	Repo         domain.Repository
	Cache        domain.Cache
	Bus          domain.EventBus
	Metrics      *metrics.Metrics
	MaxBatchSize int
	Version      string
}

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, deps Dependencies) *Server {
	handler := NewHandler(deps)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)                  // CORS for browser clients
	router.Use(RecoverMiddleware)               // Recover from panics
	router.Use(TracingMiddleware)               // OpenTelemetry tracing
	router.Use(LoggingMiddleware)               // Request logging
	router.Use(MetricsMiddleware(deps.Metrics)) // Prometheus request metrics
	router.Use(middleware.RealIP)               // Extract real IP
	router.Use(middleware.Compress(5))          // Gzip compression

	// Operational endpoints
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)
	router.Handle("/metrics", deps.Metrics.Handler())

	router.Route("/api", func(r chi.Router) {
		// Scoring
		r.Post("/predict", handler.Predict)
		r.Post("/predict/batch", handler.PredictBatch)
		r.Post("/predict/async", handler.PredictAsync)

		// Model metadata
		r.Get("/model_info", handler.ModelInfo)

		// Stored scores
		r.Get("/scores", handler.ListScores)
		r.Get("/scores/{id}", handler.GetScore)
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
