// Package observability provides logging and metrics support for the
// paper corpus service.
//
// # Overview
//
// The observability package provides:
//
//   - Structured logging with zerolog
//   - Prometheus metrics for runs, papers, cache, downloads, and LLM usage
//   - Context helpers for propagating request and run identifiers
//
// # Logging
//
// Create a logger from configuration:
//
//	cfg := observability.LoggingConfig{
//	    Level:     "info",
//	    Format:    "json",
//	    Output:    "stdout",
//	    AddSource: true,
//	}
//
//	logger := observability.NewLogger(cfg)
//	logger.Info().Str("run_id", runID).Msg("batch run started")
//
// Add run context to a logger:
//
//	logger = observability.WithRunContext(logger, runID, topicSlug)
//
// # Metrics
//
// Initialize metrics once per process; promauto registers them with the
// default Prometheus registry:
//
//	metrics := observability.NewMetrics("paper_corpus")
//
// Record through the helper methods, which are no-ops on a nil receiver:
//
//	metrics.RecordRunStarted()
//	metrics.RecordPaperProcessed("pdf", duration.Seconds())
//	metrics.RecordCacheHit()
//
// # Context Helpers
//
// Store and retrieve request context:
//
//	ctx = observability.WithRequestID(ctx, requestID)
//	ctx = observability.WithRun(ctx, runID, topicSlug)
//
//	reqID := observability.RequestIDFromContext(ctx)
//	runID, topicSlug := observability.RunFromContext(ctx)
//
// # Standard Fields
//
// Common fields used across the service:
//
//   - run_id: Pipeline run identifier
//   - topic: Corpus topic slug
//   - paper_id: Registry paper identifier
//   - doi: Paper DOI
//   - request_id: HTTP request identifier
//   - component: Emitting subsystem (pipeline, registry, intake, ...)
//
// # Thread Safety
//
// All components are safe for concurrent use from multiple goroutines.
package observability
