// Package main is the entry point for the Folio content API server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/foliocms/folio/internal/config"
	"github.com/foliocms/folio/internal/janitor"
	"github.com/foliocms/folio/internal/logging"
	"github.com/foliocms/folio/internal/media"
	"github.com/foliocms/folio/internal/repository"
	"github.com/foliocms/folio/internal/server"
)

func main() {
	configPath := flag.String("config", "folio.yaml", "path to configuration file")
	port := flag.Int("port", 0, "override listening port (default: from config or 5000)")
	host := flag.String("host", "", "override listening host (default: from config or 0.0.0.0)")
	logLevel := flag.String("log-level", "", "log level: debug, info, warn, error (default: from config or info)")
	logFormat := flag.String("log-format", "", "log format: text, json (default: from config or text)")
	shutdownTimeout := flag.Int("shutdown-timeout", 0, "graceful shutdown timeout in seconds (default: from config or 30)")
	maxUploadSize := flag.Int64("max-upload-size", 0, "maximum upload size in bytes (default: from config or 104857600)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Command-line flags override config file values.
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *logFormat != "" {
		cfg.Logging.Format = *logFormat
	}
	if *shutdownTimeout != 0 {
		cfg.Server.ShutdownTimeout = *shutdownTimeout
	}
	if *maxUploadSize != 0 {
		cfg.Server.MaxUploadSize = *maxUploadSize
	}

	// Initialize structured logging.
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)

	ctx := context.Background()

	repo, err := repository.Open(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize repository: %v\n", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("Repository initialized", "engine", cfg.Repository.Engine)

	mediaStore, err := media.Open(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize media store: %v\n", err)
		os.Exit(1)
	}
	slog.Info("Media store initialized", "backend", cfg.Media.Backend)

	srv, err := server.New(cfg, repo, mediaStore)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create server: %v\n", err)
		os.Exit(1)
	}

	// Background sweep of orphaned uploads, disabled when the interval is 0.
	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	if cfg.Media.SweepInterval > 0 {
		sweeper := janitor.New(repo, mediaStore, time.Duration(cfg.Media.SweepGrace)*time.Second)
		go sweeper.Run(sweepCtx, time.Duration(cfg.Media.SweepInterval)*time.Second)
		slog.Info("Orphan sweep enabled", "interval_seconds", cfg.Media.SweepInterval, "grace_seconds", cfg.Media.SweepGrace)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)

	// Start the server in a goroutine so we can handle shutdown signals.
	errCh := make(chan error, 1)
	go func() {
		slog.Info("Folio listening", "addr", addr)
		if err := srv.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// SIGTERM/SIGINT handler: stop accepting connections, wait for in-flight
	// requests with a timeout, then exit.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("Received signal, shutting down", "signal", sig)
		stopSweep()

		// Give in-flight requests time to complete.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Shutdown error", "error", err)
		}
		slog.Info("Server stopped")

	case err := <-errCh:
		if err != nil {
			fmt.Fprintf(os.Stderr, "server error: %v\n", err)
			os.Exit(1)
		}
	}
}
