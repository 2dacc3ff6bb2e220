// Package api is the HTTP control plane. Producers submit speech here; the
// CLI, the MCP tool layer, and the dashboard are all clients of this
// surface.
package api

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/speakuplabs/speakupd/internal/config"
	"github.com/speakuplabs/speakupd/internal/coordinator"
	"github.com/speakuplabs/speakupd/internal/events"
	"github.com/speakuplabs/speakupd/internal/history"
)

//go:embed web/index.html
var webFS embed.FS

// Server wires the coordinator and history store behind the HTTP surface.
type Server struct {
	coord   *coordinator.Coordinator
	store   *history.Store
	events  *events.Publisher
	cfg     config.HTTPConfig
	log     *slog.Logger
	version string
	metrics http.Handler
	started time.Time
}

func NewServer(coord *coordinator.Coordinator, store *history.Store, ev *events.Publisher, cfg config.HTTPConfig, metrics http.Handler, version string, log *slog.Logger) *Server {
	return &Server{
		coord:   coord,
		store:   store,
		events:  ev,
		cfg:     cfg,
		log:     log.With(slog.String("component", "api")),
		version: version,
		metrics: metrics,
		started: time.Now(),
	}
}

// Router builds the chi handler tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(chimiddleware.Recoverer)

	r.Get("/", s.handleDashboard)
	r.Route("/api", func(r chi.Router) {
		r.Post("/speak", s.handleSpeak)
		r.Post("/stop", s.handleStop)
		r.Get("/status", s.handleStatus)
		r.Get("/history", s.handleHistory)
		r.Get("/health", s.handleHealth)
	})
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	return r
}

// ListenAndServe runs the HTTP server until ctx is cancelled, then shuts it
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Bind, s.cfg.Port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", slog.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
