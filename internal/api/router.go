// Package api serves the extraction pipeline over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/spherical/doc-extractor/internal/domain"
	"github.com/spherical/doc-extractor/internal/extract"
	"github.com/spherical/doc-extractor/internal/observability"
)

// Extractor is the pipeline surface the handlers need.
type Extractor interface {
	Extract(ctx context.Context, name string, opts ...extract.Option) (*domain.ExtractionResult, error)
	ExtractBytes(ctx context.Context, name string, data []byte, opts ...extract.Option) (*domain.ExtractionResult, error)
	Result(ctx context.Context, id string) (*domain.ExtractionResult, error)
}

// Config holds router settings.
type Config struct {
	RequestTimeout time.Duration
	MaxUploadBytes int64
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
	// OCRAvailable is reported by the health check.
	OCRAvailable bool
}

// NewRouter creates the API router with all routes configured.
func NewRouter(ext Extractor, cfg Config, logger *observability.Logger) http.Handler {
	if logger == nil {
		logger = observability.Nop()
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 64 << 20
	}
	logger = logger.WithComponent("api")

	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(chimiddleware.Recoverer)
	if cfg.RequestTimeout > 0 {
		r.Use(chimiddleware.Timeout(cfg.RequestTimeout))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":  "healthy",
			"service": "doc-extractor",
			"ocr":     cfg.OCRAvailable,
		})
	})

	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	h := NewExtractionHandler(ext, cfg.MaxUploadBytes, logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/extract", h.Extract)
		r.Post("/extract/upload", h.Upload)
		r.Get("/results/{id}", h.GetResult)
	})

	return r
}

// requestLogger logs one line per request through zerolog.
func requestLogger(logger *observability.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			logger.Info().
				Str("request_id", chimiddleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Msg("HTTP request")
		})
	}
}
