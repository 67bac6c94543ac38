// Package main provides the entry point for the pixelframe API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/maauso/pixelframe-api/internal/bootstrap"
	"github.com/maauso/pixelframe-api/internal/config"
	"github.com/maauso/pixelframe-api/internal/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration from environment
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Create structured logger
	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	logger.Info("starting pixelframe API",
		slog.Int("port", cfg.Port),
		slog.String("log_format", cfg.LogFormat),
		slog.String("log_level", cfg.LogLevel),
		slog.String("temp_dir", cfg.TempDir),
		slog.String("job_store", cfg.JobStore),
		slog.Float64("render_fps", cfg.RenderFPS),
		slog.Int("export_fps", cfg.ExportFPS),
		slog.Bool("s3_enabled", cfg.S3Enabled()),
		slog.Bool("gcs_enabled", cfg.GCSEnabled()),
	)

	// Initialize dependencies using bootstrap
	deps, err := bootstrap.NewDependencies(context.Background(), cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize dependencies: %w", err)
	}

	// Initialize HTTP handlers and router
	handlerOpts := []server.HandlerOption{
		server.WithGridDefaults(cfg.GridDefaults()),
		server.WithDefaultStillFormat(cfg.DefaultStillFormat),
		server.WithDefaultVideoFormat(cfg.DefaultVideoFormat),
		server.WithMaxUploadBytes(cfg.MaxUploadBytes()),
	}
	routerCfg := server.DefaultConfig()
	if deps.Metrics != nil {
		handlerOpts = append(handlerOpts, server.WithSessionObserver(deps.Metrics.SetSessions))
		routerCfg.Metrics = deps.Metrics.Handler()
	}
	handlers := server.NewHandlers(deps.Sessions, deps.Opener, deps.Exports, logger, handlerOpts...)
	router := server.NewRouter(handlers, logger, routerCfg)

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  5 * time.Minute, // Allow for large clip uploads
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown handling
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening",
			slog.String("addr", srv.Addr),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server failed: %w", err)
		}
	}()

	// Wait for shutdown signal or error
	select {
	case sig := <-shutdownCh:
		logger.Info("received shutdown signal",
			slog.String("signal", sig.String()),
		)
	case err := <-errCh:
		_ = deps.Close(context.Background())
		return err
	}

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger.Info("shutting down server...")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	if err := deps.Close(ctx); err != nil {
		return fmt.Errorf("release dependencies: %w", err)
	}

	logger.Info("server stopped gracefully")
	return nil
}
