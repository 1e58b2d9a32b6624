// Package monitor serves the session's web monitoring UI: an overview page
// plus query history, datasets, and models, refreshed from the metastore.
package monitor

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/robfig/cron/v3"

	"github.com/mallard-db/mallard/internal/metastore"
	"github.com/mallard-db/mallard/internal/middleware"
)

// Config wires a monitor server to its session.
type Config struct {
	Addr      string
	SessionID string
	Mode      string // "local" or the remote agent URL
	StartedAt time.Time

	Datasets *metastore.DatasetRepo
	History  *metastore.HistoryRepo
	Models   *metastore.ModelRepo

	// RefreshSpec is the cron spec for dataset stat refresh; Refresh is the
	// session callback that recounts registered datasets.
	RefreshSpec string
	Refresh     func(ctx context.Context) error

	Logger *slog.Logger
}

// Server is the monitoring HTTP server plus its stat-refresh cron.
type Server struct {
	cfg      Config
	logger   *slog.Logger
	httpSrv  *http.Server
	listener net.Listener
	cron     *cron.Cron
}

// New builds a monitor server. Nothing listens until Start.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{cfg: cfg, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Get("/", s.handleOverview)
	r.Get("/queries", s.handleQueries)
	r.Get("/datasets", s.handleDatasets)
	r.Get("/models", s.handleModels)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	s.httpSrv = &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start binds the listen address, serves in the background, and starts the
// stat-refresh cron when configured.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.listener = ln

	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("monitor server stopped", "error", err)
		}
	}()

	if s.cfg.RefreshSpec != "" && s.cfg.Refresh != nil {
		c := cron.New()
		_, err := c.AddFunc(s.cfg.RefreshSpec, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := s.cfg.Refresh(ctx); err != nil {
				s.logger.Warn("dataset stat refresh failed", "error", err)
			}
		})
		if err != nil {
			s.logger.Warn("invalid stat refresh spec; refresh disabled",
				"spec", s.cfg.RefreshSpec, "error", err)
		} else {
			c.Start()
			s.cron = c
		}
	}
	return nil
}

// Addr returns the bound listen address, useful when Config.Addr used
// port 0.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.cfg.Addr
	}
	return s.listener.Addr().String()
}

// Shutdown stops the cron and gracefully shuts the HTTP server down.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.cron != nil {
		s.cron.Stop()
	}
	if s.listener == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}
