// Package main provides the entry point for the paper corpus API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/litforge/paper-corpus-service/internal/cache"
	"github.com/litforge/paper-corpus-service/internal/checkpoint"
	"github.com/litforge/paper-corpus-service/internal/config"
	"github.com/litforge/paper-corpus-service/internal/database"
	"github.com/litforge/paper-corpus-service/internal/observability"
	"github.com/litforge/paper-corpus-service/internal/registry"
	httpserver "github.com/litforge/paper-corpus-service/internal/server/http"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Set up structured logging.
	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		AddSource:  cfg.Logging.AddSource,
		TimeFormat: cfg.Logging.TimeFormat,
	})
	logger = logger.With().Str("component", "server").Logger()
	logger.Info().Msg("paper-corpus-service API server starting")

	// Set up context with graceful shutdown via OS signals.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to PostgreSQL only when the extraction cache runs on it. The
	// registry and checkpoint stores are file-backed either way; without a
	// pool the readiness probe skips the database check.
	var db *database.DB
	if cfg.Cache.Backend == string(cache.BackendPostgres) {
		db, err = database.New(ctx, &cfg.Database, logger)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer db.Close()
		logger.Info().Msg("database connection established")

		// Run migrations automatically if configured.
		if cfg.Database.MigrationAutoRun {
			migrator, err := database.NewMigrator(db, cfg.Database.MigrationPath, logger)
			if err != nil {
				return fmt.Errorf("create migrator: %w", err)
			}
			defer func() {
				if closeErr := migrator.Close(); closeErr != nil {
					logger.Error().Err(closeErr).Msg("failed to close migrator")
				}
			}()
			if err := migrator.Up(); err != nil {
				return fmt.Errorf("run migrations: %w", err)
			}
			logger.Info().Msg("database migrations applied")
		}
	}

	// Open the registry and checkpoint stores.
	reg := registry.NewStore(registry.Config{
		Path:                     cfg.Registry.Path,
		TitleSimilarityThreshold: cfg.Registry.TitleSimilarityThreshold,
	}, logger)
	checkpoints := checkpoint.NewStore(checkpoint.Config{
		Dir:     cfg.Checkpoint.Dir,
		Enabled: cfg.Checkpoint.Enabled,
	}, logger)

	// Create the HTTP server. Metrics are served on the main router.
	srv := httpserver.NewServer(httpserver.Config{
		Address:         cfg.Server.HTTPAddress(),
		MetricsPath:     cfg.Metrics.Path,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     cfg.Server.IdleTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, reg, checkpoints, db, logger)

	// Channel to collect server errors.
	errCh := make(chan error, 1)

	// Start HTTP server in background.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	logger.Info().
		Str("http_address", cfg.Server.HTTPAddress()).
		Str("metrics_path", cfg.Metrics.Path).
		Msg("paper-corpus-service is ready")

	// Wait for shutdown signal or server error.
	select {
	case <-ctx.Done():
		logger.Info().Msg("received shutdown signal")
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error")
		return err
	}

	// Graceful shutdown.
	logger.Info().Msg("shutting down paper-corpus-service")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	}

	logger.Info().Msg("paper-corpus-service shutdown complete")
	return nil
}
