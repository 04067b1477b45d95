// Package api exposes the HTTP control and query surface for the crawler
// service.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/carmarket/crawler/internal/metrics"
	"github.com/carmarket/crawler/internal/scraper"
	"github.com/carmarket/crawler/internal/store"
)

// Crawler is the engine surface the API depends on.
type Crawler interface {
	Stream(ctx context.Context, req scraper.Request) (scraper.Run, error)
	Running() bool
}

// Options carries the server's tunables.
type Options struct {
	// Defaults fills crawl request fields the caller omits.
	Defaults scraper.Request
	// APIKey, when non-empty, is required on every request via the
	// X-API-Key header or api_key query parameter.
	APIKey string
	// RequestTimeout bounds non-streaming requests (default 60s).
	RequestTimeout time.Duration
}

// Server wires HTTP handlers to the crawl engine and stores.
type Server struct {
	router chi.Router
	engine Crawler
	cars   store.CarRepository
	runs   store.RunRepository
	opts   Options
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(engine Crawler, cars store.CarRepository, runs store.RunRepository, opts Options, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 60 * time.Second
	}
	s := &Server{
		engine: engine,
		cars:   cars,
		runs:   runs,
		opts:   opts,
		logger: logger.Named("api"),
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	if opts.APIKey != "" {
		r.Use(apiKeyMiddleware(opts.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	// The stream endpoint writes for the lifetime of a run and cannot sit
	// behind the timeout handler, which buffers responses.
	r.Get("/v1/crawl/stream", s.streamCrawl)

	r.Group(func(r chi.Router) {
		r.Use(timeoutMiddleware(opts.RequestTimeout))
		r.Route("/v1", func(r chi.Router) {
			r.Post("/crawl", s.startCrawl)
			r.Get("/status", s.getStatus)
			r.Get("/cars", s.listCars)
			r.Get("/cars/{car_id}", s.getCar)
			r.Get("/search", s.searchCars)
			r.Get("/stats", s.getStats)
			r.Get("/runs", s.listRuns)
			r.Get("/runs/{run_id}", s.getRun)
		})
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.cars != nil {
		if _, err := s.cars.Count(r.Context()); err != nil {
			s.writeError(w, http.StatusServiceUnavailable, "store unavailable")
			return
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write response failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		dur := time.Since(start)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Duration("duration", dur),
		)
		metrics.ObserveHTTPRequest(r.Method, r.URL.Path, ww.status, dur)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type requestIDKey struct{}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
