// Package bridge exposes the dispatcher over HTTP for editor extensions:
// completion in, final text out, with per-tree guardrail overrides. The
// transport contract follows the original bridge: no token streaming, one
// response per completed tree.
package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/rlmkit/recurse/internal/callenv"
	"github.com/rlmkit/recurse/internal/config"
	"github.com/rlmkit/recurse/internal/dispatch"
	"github.com/rlmkit/recurse/internal/events"
	"github.com/rlmkit/recurse/internal/log"
	"github.com/rlmkit/recurse/internal/runlog"
)

// Runner runs one dispatched call; satisfied by dispatch.Dispatcher.
type Runner interface {
	Run(ctx context.Context, call *callenv.Call, contextText []byte, agentArgs []string) (*dispatch.Result, error)
}

// Server is the HTTP bridge.
type Server struct {
	cfg        *config.Config
	dispatcher Runner
	runs       *runlog.Store // may be nil when no runlog is configured
	hub        *events.Hub
	logger     *slog.Logger
	server     *http.Server
	startedAt  time.Time
	probeAgent func() bool
}

// New creates a bridge server. runs may be nil.
func New(cfg *config.Config, dispatcher Runner, runs *runlog.Store) *Server {
	return &Server{
		cfg:        cfg,
		dispatcher: dispatcher,
		runs:       runs,
		hub:        events.NewHub(256),
		logger:     log.WithComponent("bridge"),
		startedAt:  time.Now(),
		probeAgent: func() bool { return agentOnPath(cfg.Agent.Command) },
	}
}

// Start runs the HTTP server until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.cfg.Bridge.Listen,
		Handler:      s.routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Minute, // completions block until the tree finishes
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("bridge starting", "listen", s.cfg.Bridge.Listen)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("bridge shutting down")
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

func (s *Server) routes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Post("/completion", s.handleCompletion)
	r.Get("/events", s.handleEvents)
	r.Get("/runs", s.handleRuns)

	return r
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
