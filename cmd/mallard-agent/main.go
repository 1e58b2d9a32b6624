// Package main is the entry point for the mallard agent binary. The agent
// opens a DuckDB instance and serves the signed session protocol over HTTP:
// POST /session, POST /execute, DELETE /session, GET /health.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mallard-db/mallard/internal/agent"
	"github.com/mallard-db/mallard/internal/engine"
	"github.com/mallard-db/mallard/internal/middleware"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := loadAgentConfig()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	db, err := engine.Open(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open engine: %w", err)
	}
	defer db.Close()

	if cfg.MaxMemoryGB > 0 {
		if _, err := db.ExecContext(ctx, fmt.Sprintf("SET max_memory='%dGB'", cfg.MaxMemoryGB)); err != nil {
			return fmt.Errorf("set max_memory: %w", err)
		}
		logger.Info("memory limit set", "max_memory_gb", cfg.MaxMemoryGB)
	}

	if err := engine.InstallExtensions(ctx, db); err != nil {
		logger.Warn("extension setup incomplete", "error", err)
	}

	var rateLimit *middleware.RateLimitConfig
	if cfg.RateLimitRPS > 0 {
		rateLimit = &middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimitRPS,
			Burst:             cfg.RateLimitBurst,
		}
	}

	handler := agent.NewHandler(agent.HandlerConfig{
		DB:         db,
		AgentToken: cfg.AgentToken,
		StartTime:  time.Now(),
		Logger:     logger,
		RateLimit:  rateLimit,
	})

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("agent listening", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down agent")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
