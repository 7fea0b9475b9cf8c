package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/vacancy-crawler/internal/metrics"
	"github.com/JakeFAU/vacancy-crawler/internal/vacancy"
)

const (
	defaultRequestTimeout = 60 * time.Second
	queryTimeout          = 10 * time.Second
)

// Runs starts scrape runs and reports their progress. *scheduler.Scheduler
// satisfies it.
type Runs interface {
	Start() (string, error)
	Progress() vacancy.RunProgress
}

// Results answers the reporting queries. Every vacancy.ResultStore satisfies it.
type Results interface {
	ListSites(ctx context.Context) ([]vacancy.SiteWithStats, error)
	ListOutcomes(ctx context.Context, limit int) ([]vacancy.Outcome, error)
	ListVacancies(ctx context.Context) ([]vacancy.Record, error)
	SiteStats(ctx context.Context, siteID int64) (vacancy.SiteStats, error)
	AggregateStats(ctx context.Context, since time.Time) (vacancy.AggregateStats, error)
}

// Config wires the server's collaborators. StatsWindow bounds the success
// rate reported by /api/stats.
type Config struct {
	Runs           Runs
	Results        Results
	Clock          vacancy.Clock
	StatsWindow    time.Duration
	RequestTimeout time.Duration
	Logger         *zap.Logger
}

// Server wires HTTP handlers to the scheduler and result store.
type Server struct {
	router chi.Router
	cfg    Config
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(cfg Config) (*Server, error) {
	switch {
	case cfg.Runs == nil:
		return nil, errors.New("api server requires a run controller")
	case cfg.Results == nil:
		return nil, errors.New("api server requires a result store")
	case cfg.Clock == nil:
		return nil, errors.New("api server requires a clock")
	case cfg.StatsWindow <= 0:
		return nil, errors.New("api server requires a positive stats window")
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()

	s := &Server{cfg: cfg, logger: logger.Named("api")}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(cfg.RequestTimeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/scrape", s.startScrape)
		r.Get("/progress", s.progress)
		r.Get("/logs", s.listLogs)
		r.Get("/vacancies", s.listVacancies)
		r.Get("/stats", s.aggregateStats)
		r.Get("/sites", s.listSites)
		r.Get("/sites/{site_id}/stats", s.siteStats)
	})

	s.router = r
	return s, nil
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()
	if _, err := s.cfg.Results.ListOutcomes(ctx, 1); err != nil {
		s.logger.Warn("result store not ready", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "result store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
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
		s.logger.Info("request completed",
			zap.String("request_id", requestID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered",
					zap.String("request_id", requestID(r.Context())),
					zap.Any("error", rec),
				)
				writeError(w, http.StatusInternalServerError, "internal server error")
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

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload) //nolint:errcheck // headers already sent
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
