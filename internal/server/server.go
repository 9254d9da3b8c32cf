package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/pingsantohq/wanwatch/internal/health"
	"github.com/pingsantohq/wanwatch/internal/scheduler"
)

const shutdownTimeout = 3 * time.Second

// Config controls HTTP server settings.
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type Readiness interface {
	Evaluate(now time.Time) health.Report
}

type Snapshotter interface {
	Snapshot() scheduler.Snapshot
}

// Dependencies holds external collaborators required by the server.
type Dependencies struct {
	Logger  *log.Logger
	Metrics http.Handler
	Health  Readiness
	Status  Snapshotter
	Now     func() time.Time
}

// Server exposes metrics, liveness, readiness and the monitor status.
type Server struct {
	*http.Server
	deps Dependencies
}

func New(cfg Config, deps Dependencies) *Server {
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:9320"
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 5 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if deps.Logger == nil {
		deps.Logger = log.New(io.Discard, "", 0)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	r := mux.NewRouter()
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics).Methods(http.MethodGet)
	}
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }).Methods(http.MethodGet)
	r.HandleFunc("/readyz", readyHandler(deps)).Methods(http.MethodGet)
	r.HandleFunc("/status", statusHandler(deps)).Methods(http.MethodGet)

	s := &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return &Server{Server: s, deps: deps}
}

// Serve listens until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.deps.Logger.Printf("status listening on http://%s", s.Addr)
		errCh <- s.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func readyHandler(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Health == nil {
			w.WriteHeader(http.StatusOK)
			return
		}
		report := deps.Health.Evaluate(deps.Now().UTC())
		status := http.StatusOK
		if !report.Ready {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, report, deps.Logger)
	}
}

func statusHandler(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Status == nil {
			http.Error(w, "monitor not running", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, deps.Status.Snapshot(), deps.Logger)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any, logger *log.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Printf("encode response failed: %v", err)
	}
}
