// Package main provides the entry point for the paper corpus pipeline worker.
//
// The worker runs in one of two modes: a long-running Kafka listener that
// consumes batch submissions from the intake topic, or a one-shot mode that
// processes a single batch submission read from a JSON file and exits.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/litforge/paper-corpus-service/internal/cache"
	"github.com/litforge/paper-corpus-service/internal/checkpoint"
	"github.com/litforge/paper-corpus-service/internal/config"
	"github.com/litforge/paper-corpus-service/internal/database"
	"github.com/litforge/paper-corpus-service/internal/dedup"
	"github.com/litforge/paper-corpus-service/internal/events"
	"github.com/litforge/paper-corpus-service/internal/filter"
	"github.com/litforge/paper-corpus-service/internal/intake"
	"github.com/litforge/paper-corpus-service/internal/llm"
	"github.com/litforge/paper-corpus-service/internal/observability"
	"github.com/litforge/paper-corpus-service/internal/pdf"
	"github.com/litforge/paper-corpus-service/internal/pipeline"
	"github.com/litforge/paper-corpus-service/internal/registry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	batchFile := flag.String("batch", "", "Process one batch submission from a JSON file, then exit")
	flag.Parse()

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
	logger = logger.With().Str("component", "worker").Logger()
	logger.Info().Msg("paper-corpus-service worker starting")

	// Set up context with graceful shutdown via OS signals.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to PostgreSQL when the extraction cache runs on it. The worker
	// owns the cache table, so it also applies migrations when configured.
	var db *database.DB
	var cacheDB cache.DBTX
	if cfg.Cache.Backend == string(cache.BackendPostgres) {
		db, err = database.New(ctx, &cfg.Database, logger)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer db.Close()
		cacheDB = db
		logger.Info().Msg("database connection established")

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

	// Create the extraction cache.
	extractionCache, err := cache.New(cache.Config{
		Backend: cache.Backend(cfg.Cache.Backend),
		Dir:     cfg.Cache.Dir,
	}, cacheDB, logger)
	if err != nil {
		return fmt.Errorf("create extraction cache: %w", err)
	}
	logger.Info().Str("backend", cfg.Cache.Backend).Msg("extraction cache created")

	// Create the PDF extractor.
	pdfExtractor := pdf.NewExtractor(pdf.ExtractorConfig{
		Downloader: pdf.DownloaderConfig{
			Timeout:       cfg.PDF.Timeout,
			MaxSize:       cfg.PDF.MaxSizeMB * 1024 * 1024,
			UserAgent:     cfg.PDF.UserAgent,
			RatePerSecond: cfg.PDF.RatePerSecond,
			Burst:         cfg.PDF.Burst,
		},
		StorageDir: cfg.PDF.StorageDir,
		MaxPages:   cfg.PDF.MaxPages,
	}, logger)

	// Create the LLM field extractor unless extraction is disabled.
	var fields pipeline.FieldExtractor
	if cfg.LLM.Provider != "none" {
		fieldExtractor, err := llm.NewFieldExtractor(llm.FactoryConfig{
			Provider:    cfg.LLM.Provider,
			Temperature: cfg.LLM.Temperature,
			Timeout:     cfg.LLM.Timeout,
			MaxRetries:  cfg.LLM.MaxRetries,
			OpenAI: llm.OpenAIConfig{
				APIKey:          cfg.LLM.OpenAI.APIKey,
				Model:           cfg.LLM.OpenAI.Model,
				BaseURL:         cfg.LLM.OpenAI.BaseURL,
				TokenSplitRatio: cfg.LLM.TokenSplitRatio,
				InputCostPer1K:  cfg.LLM.OpenAI.InputCostPer1K,
				OutputCostPer1K: cfg.LLM.OpenAI.OutputCostPer1K,
			},
			Anthropic: llm.AnthropicConfig{
				APIKey:          cfg.LLM.Anthropic.APIKey,
				Model:           cfg.LLM.Anthropic.Model,
				BaseURL:         cfg.LLM.Anthropic.BaseURL,
				InputCostPer1K:  cfg.LLM.Anthropic.InputCostPer1K,
				OutputCostPer1K: cfg.LLM.Anthropic.OutputCostPer1K,
			},
		})
		if err != nil {
			return fmt.Errorf("create field extractor: %w", err)
		}
		fields = fieldExtractor
		logger.Info().
			Str("provider", fieldExtractor.Provider()).
			Str("model", fieldExtractor.Model()).
			Msg("field extractor created")
	} else {
		logger.Info().Msg("field extraction disabled; papers are fetched and registered without it")
	}

	// Create the duplicate checker and relevance ranker.
	dedupChecker := dedup.NewChecker(dedup.CheckerConfig{
		TitleThreshold:  cfg.Dedup.TitleThreshold,
		AuthorThreshold: cfg.Dedup.AuthorThreshold,
	}, logger)
	ranker := filter.NewRanker()

	// Create the pipeline event publisher.
	publisher := events.NewPublisher(events.Config{
		Brokers:      cfg.Kafka.Brokers,
		Topic:        cfg.Kafka.Events.Topic,
		Enabled:      cfg.Kafka.Events.Enabled,
		BatchTimeout: cfg.Kafka.Events.BatchTimeout,
	}, logger)
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close event publisher")
		}
	}()
	if publisher.Enabled() {
		logger.Info().Str("topic", cfg.Kafka.Events.Topic).Msg("event publisher created")
	}

	// Create metrics (optional).
	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics("paper_corpus")
	}

	// Channel to collect background errors.
	errCh := make(chan error, 2)

	// Serve Prometheus metrics on a separate port if configured.
	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		metricsMux := http.NewServeMux()
		metricsMux.Handle(cfg.Metrics.Path, promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.MetricsPort),
			Handler:      metricsMux,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		}
		go func() {
			logger.Info().Str("address", metricsServer.Addr).Msg("metrics server starting")
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server error: %w", err)
			}
		}()
	}
	defer func() {
		if metricsServer == nil {
			return
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("metrics server shutdown error")
		}
	}()

	// Assemble the pipeline.
	pipe := pipeline.New(pipeline.Config{
		QueueCapacity:      cfg.Pipeline.QueueCapacity,
		MaxDownloads:       cfg.Pipeline.MaxDownloads,
		MaxConversions:     cfg.Pipeline.MaxConversions,
		MaxLLMCalls:        cfg.Pipeline.MaxLLMCalls,
		CheckpointInterval: cfg.Pipeline.CheckpointInterval,
		MaxPapers:          cfg.Pipeline.MaxPapers,
	}, pipeline.Collaborators{
		Registry:    reg,
		Checkpoints: checkpoints,
		PDF:         pdfExtractor,
		Fields:      fields,
		Cache:       extractionCache,
		Dedup:       dedupChecker,
		Ranker:      ranker,
		Events:      publisher,
		Metrics:     metrics,
	}, logger)

	// One-shot mode: process a single submission from a file and exit.
	if *batchFile != "" {
		return runBatchFile(ctx, pipe, *batchFile, logger)
	}

	if !cfg.Kafka.Intake.Enabled {
		return errors.New("no work source: enable the kafka intake listener or pass -batch")
	}

	// Consume batch submissions from Kafka.
	listener := intake.NewListener(intake.Config{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.Intake.Topic,
		GroupID: cfg.Kafka.Intake.GroupID,
	}, pipe, logger)
	defer func() {
		if err := listener.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close intake listener")
		}
	}()

	go func() {
		if err := listener.Run(ctx); err != nil && ctx.Err() == nil {
			errCh <- fmt.Errorf("intake listener error: %w", err)
		}
	}()

	readyLog := logger.Info().
		Str("topic", cfg.Kafka.Intake.Topic).
		Str("group_id", cfg.Kafka.Intake.GroupID)
	if metricsServer != nil {
		readyLog = readyLog.Str("metrics_address", metricsServer.Addr)
	}
	readyLog.Msg("paper-corpus-service worker is ready")

	// Wait for shutdown signal or background error.
	select {
	case <-ctx.Done():
		logger.Info().Msg("received shutdown signal")
	case err := <-errCh:
		logger.Error().Err(err).Msg("worker error")
		return err
	}

	logger.Info().Msg("paper-corpus-service worker shutdown complete")
	return nil
}

// runBatchFile processes one batch submission read from a JSON file. When the
// file carries no run id, a fresh one is generated and logged; put that id in
// the file to resume an interrupted run from its checkpoint.
func runBatchFile(ctx context.Context, pipe *pipeline.Pipeline, path string, logger zerolog.Logger) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read batch file: %w", err)
	}

	var submission intake.BatchSubmission
	if err := json.Unmarshal(data, &submission); err != nil {
		return fmt.Errorf("parse batch file: %w", err)
	}
	if submission.RunID == "" {
		submission.RunID = "run-" + uuid.NewString()
		logger.Info().Str("run_id", submission.RunID).Msg("generated run id for batch file")
	}

	results, err := pipe.ProcessBatch(ctx, pipeline.Batch{
		RunID:     submission.RunID,
		TopicSlug: submission.TopicSlug,
		Query:     submission.Query,
		Papers:    submission.Papers,
		Config:    submission.Config,
	})
	if err != nil {
		return fmt.Errorf("process batch: %w", err)
	}

	processed := 0
	for result := range results {
		processed++
		logger.Info().
			Str("title", result.Paper.Title).
			Str("action", string(result.Action)).
			Bool("from_cache", result.FromCache).
			Bool("abstract_only", result.AbstractOnly).
			Dur("duration", result.Duration).
			Msg("paper processed")
	}

	logger.Info().
		Str("run_id", submission.RunID).
		Int("processed", processed).
		Int("submitted", len(submission.Papers)).
		Msg("batch complete")
	return nil
}
