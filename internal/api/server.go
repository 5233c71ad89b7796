package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/mattjoyce/urlclean/internal/cleaner"
	"github.com/mattjoyce/urlclean/internal/dispatch"
)

//go:generate mockgen -destination=mocks/mock_runner.go -package=mocks github.com/mattjoyce/urlclean/internal/api BatchRunner

// BatchRunner defines the batch operations the API needs.
type BatchRunner interface {
	Run(ctx context.Context, bulk dispatch.BulkJob) ([]dispatch.JobResult, error)
	Width() int
	Batches() uint64
}

// CacheCounter reports how many lookups the redirect cache holds.
type CacheCounter interface {
	Len(ctx context.Context) (int, error)
}

// Config holds API server configuration
type Config struct {
	Listen      string
	MaxJSONSize int64
	CORS        bool
}

// Server represents the HTTP API server
type Server struct {
	config    Config
	runner    BatchRunner
	rules     *cleaner.Config
	cache     CacheCounter
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

// New creates a new API server instance. rules is the post-startup-diff
// configuration served by /get-config.
func New(config Config, runner BatchRunner, rules *cleaner.Config, logger *slog.Logger) *Server {
	return &Server{
		config:    config,
		runner:    runner,
		rules:     rules,
		logger:    logger,
		startedAt: time.Now(),
	}
}

// WithCache reports the size of c on /healthz.
func (s *Server) WithCache(c CacheCounter) *Server {
	s.cache = c
	return s
}

// Handler returns the routed handler without starting a listener.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

// Start starts the HTTP server (blocking)
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.config.Listen,
		Handler:      s.setupRoutes(),
		ReadTimeout:  time.Minute,
		WriteTimeout: 10 * time.Minute, // large batches may expand redirects
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("API server starting", "listen", s.config.Listen, "workers", s.runner.Width())

	// Run server in a goroutine
	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for context cancellation or server error
	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// setupRoutes configures the HTTP router
func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)
	if s.config.CORS {
		r.Use(cors.New(cors.Options{
			AllowOriginFunc:  func(string) bool { return true },
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodHead, http.MethodOptions},
			AllowedHeaders:   []string{"*"},
			ExposedHeaders:   []string{"ETag", batchTraceHeader},
			AllowCredentials: true,
		}).Handler)
	}

	// Routes
	r.Get("/", s.handleIndex)
	r.Get("/healthz", s.handleHealthz)
	r.Get("/openapi.json", s.handleOpenAPI)
	r.Post("/clean", s.handleClean)
	r.Get("/get-max-json-size", s.handleMaxJSONSize)
	r.Get("/get-config", s.handleGetConfig)
	r.Get("/host-parts", s.handleHostParts)

	return r
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
