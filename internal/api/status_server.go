package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"layanan/internal/config"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// StatusSource reports what this process currently knows, for the local status endpoint.
type StatusSource interface {
	StatusSnapshot(ctx context.Context) any
}

// StatusFunc adapts a function to StatusSource.
type StatusFunc func(ctx context.Context) any

func (f StatusFunc) StatusSnapshot(ctx context.Context) any { return f(ctx) }

// StatusServer is a read-only HTTP endpoint on localhost exposing health,
// the tracked booking snapshot and Prometheus metrics.
type StatusServer struct {
	server  *http.Server
	sources map[string]StatusSource
	logger  *zerolog.Logger
	started time.Time
}

func NewStatusServer(cfg config.StatusServerConfig, logger *zerolog.Logger) *StatusServer {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	srv := &StatusServer{
		sources: make(map[string]StatusSource),
		logger:  logger,
		started: time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/health", srv.handleHealth)
	mux.HandleFunc("/api/v1/snapshot", srv.handleSnapshot)
	mux.Handle("/metrics", promhttp.Handler())

	srv.server = &http.Server{
		Addr:              fmt.Sprintf("127.0.0.1:%d", cfg.Port),
		Handler:           srv.loggingMiddleware(mux),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}
	return srv
}

// Register adds a named snapshot section. Call before Start.
func (s *StatusServer) Register(name string, src StatusSource) {
	s.sources[name] = src
}

func (s *StatusServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *StatusServer) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("status server listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *StatusServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *StatusServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *StatusServer) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	out := make(map[string]any, len(s.sources))
	for name, src := range s.sources {
		out[name] = src.StatusSnapshot(r.Context())
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *StatusServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("status request")
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
