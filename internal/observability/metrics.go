package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the paper corpus service.
// Metrics are organized by subsystem: runs, papers, extraction cache, PDF
// acquisition, LLM operations, events, and registry state. All counters and
// histograms are registered via promauto for automatic registration with the
// default Prometheus registry.
//
// Every Record method is a no-op on a nil *Metrics, so instrumented code can
// run with metrics disabled without guarding each call site.
type Metrics struct {
	// RunsStarted counts the total number of pipeline runs initiated.
	RunsStarted prometheus.Counter

	// RunsCompleted counts the total number of runs that finished successfully.
	RunsCompleted prometheus.Counter

	// RunsFailed counts the total number of runs that ended in failure or cancellation.
	RunsFailed prometheus.Counter

	// RunsResumed counts the total number of runs restarted from a checkpoint.
	RunsResumed prometheus.Counter

	// RunDuration observes the end-to-end duration of runs in seconds.
	RunDuration prometheus.Histogram

	// PapersSubmitted counts the total number of papers submitted across all runs.
	PapersSubmitted prometheus.Counter

	// PapersResumed counts papers skipped because a checkpoint already covered them.
	PapersResumed prometheus.Counter

	// PapersProcessed counts papers processed to completion, labeled by content
	// source ("cache", "pdf", or "abstract").
	PapersProcessed *prometheus.CounterVec

	// PapersFailed counts papers that failed processing, labeled by pipeline stage.
	PapersFailed *prometheus.CounterVec

	// PaperDuration observes per-paper processing duration in seconds.
	PaperDuration prometheus.Histogram

	// ResolutionDecisions counts registry resolution outcomes, labeled by action
	// ("full_process", "backfill", "map_only", or "skip").
	ResolutionDecisions *prometheus.CounterVec

	// PapersDuplicate counts papers dropped as within-batch duplicates.
	PapersDuplicate prometheus.Counter

	// CacheHits counts extraction cache lookups that returned a stored result.
	CacheHits prometheus.Counter

	// CacheMisses counts extraction cache lookups that found nothing.
	CacheMisses prometheus.Counter

	// PDFDownloads counts successful PDF downloads.
	PDFDownloads prometheus.Counter

	// PDFDownloadsFailed counts PDF downloads that failed.
	PDFDownloadsFailed prometheus.Counter

	// PDFDownloadBytes observes the size of downloaded PDFs in bytes.
	PDFDownloadBytes prometheus.Histogram

	// AbstractFallbacks counts papers processed from their abstract because no
	// full text could be acquired.
	AbstractFallbacks prometheus.Counter

	// LLMRequestsTotal counts LLM extraction requests, labeled by model.
	LLMRequestsTotal *prometheus.CounterVec

	// LLMRequestsFailed counts failed LLM extraction requests.
	LLMRequestsFailed prometheus.Counter

	// LLMRequestDuration observes LLM request duration in seconds.
	LLMRequestDuration prometheus.Histogram

	// LLMTokensUsed counts tokens consumed by LLM requests, labeled by model
	// and token type ("input" or "output").
	LLMTokensUsed *prometheus.CounterVec

	// LLMCostUSD accumulates the estimated cost of LLM requests in US dollars.
	LLMCostUSD prometheus.Counter

	// EventsPublished counts pipeline events published, labeled by event type.
	EventsPublished *prometheus.CounterVec

	// EventPublishFailures counts pipeline events that could not be published.
	EventPublishFailures prometheus.Counter

	// RegistryEntries tracks the current number of papers in the registry.
	RegistryEntries prometheus.Gauge

	// CheckpointSaves counts checkpoint writes, both periodic and final.
	CheckpointSaves prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
// The namespace is used as a prefix for all metric names.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		// Runs
		RunsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_started_total",
			Help:      "Total number of pipeline runs started",
		}),
		RunsCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_completed_total",
			Help:      "Total number of pipeline runs completed successfully",
		}),
		RunsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_failed_total",
			Help:      "Total number of pipeline runs that failed or were cancelled",
		}),
		RunsResumed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_resumed_total",
			Help:      "Total number of pipeline runs resumed from a checkpoint",
		}),
		RunDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of pipeline runs in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1200, 1800, 3600},
		}),

		// Papers
		PapersSubmitted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "papers_submitted_total",
			Help:      "Total number of papers submitted for processing",
		}),
		PapersResumed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "papers_resumed_total",
			Help:      "Total number of papers skipped because a checkpoint covered them",
		}),
		PapersProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "papers_processed_total",
			Help:      "Total number of papers processed by content source",
		}, []string{"content_source"}),
		PapersFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "papers_failed_total",
			Help:      "Total number of papers that failed processing by stage",
		}, []string{"stage"}),
		PaperDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "paper_processing_duration_seconds",
			Help:      "Per-paper processing duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}),
		ResolutionDecisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolution_decisions_total",
			Help:      "Total number of registry resolution decisions by action",
		}, []string{"action"}),
		PapersDuplicate: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "papers_duplicate_total",
			Help:      "Total number of papers dropped as within-batch duplicates",
		}),

		// Extraction cache
		CacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extraction_cache_hits_total",
			Help:      "Total number of extraction cache hits",
		}),
		CacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extraction_cache_misses_total",
			Help:      "Total number of extraction cache misses",
		}),

		// PDF acquisition
		PDFDownloads: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pdf_downloads_total",
			Help:      "Total number of successful PDF downloads",
		}),
		PDFDownloadsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pdf_downloads_failed_total",
			Help:      "Total number of failed PDF downloads",
		}),
		PDFDownloadBytes: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pdf_download_bytes",
			Help:      "Size of downloaded PDFs in bytes",
			Buckets:   []float64{1e5, 5e5, 1e6, 5e6, 1e7, 5e7, 1e8},
		}),
		AbstractFallbacks: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "abstract_fallbacks_total",
			Help:      "Total number of papers processed from their abstract only",
		}),

		// LLM
		LLMRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Total number of LLM extraction requests by model",
		}, []string{"model"}),
		LLMRequestsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_failed_total",
			Help:      "Total number of failed LLM extraction requests",
		}),
		LLMRequestDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "Duration of LLM extraction requests in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}),
		LLMTokensUsed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_used_total",
			Help:      "Total number of tokens used by LLM requests",
		}, []string{"model", "token_type"}),
		LLMCostUSD: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_cost_usd_total",
			Help:      "Estimated cumulative cost of LLM requests in US dollars",
		}),

		// Events
		EventsPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Total number of pipeline events published by type",
		}, []string{"type"}),
		EventPublishFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_publish_failures_total",
			Help:      "Total number of pipeline events that failed to publish",
		}),

		// Registry and checkpoints
		RegistryEntries: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "registry_entries",
			Help:      "Current number of papers in the registry",
		}),
		CheckpointSaves: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkpoint_saves_total",
			Help:      "Total number of checkpoint writes",
		}),
	}
}

// RecordRunStarted records that a pipeline run has started.
func (m *Metrics) RecordRunStarted() {
	if m == nil {
		return
	}
	m.RunsStarted.Inc()
}

// RecordRunCompleted records that a run has completed.
func (m *Metrics) RecordRunCompleted(durationSeconds float64) {
	if m == nil {
		return
	}
	m.RunsCompleted.Inc()
	m.RunDuration.Observe(durationSeconds)
}

// RecordRunFailed records that a run has failed or was cancelled.
func (m *Metrics) RecordRunFailed(durationSeconds float64) {
	if m == nil {
		return
	}
	m.RunsFailed.Inc()
	m.RunDuration.Observe(durationSeconds)
}

// RecordRunResumed records a run resumed from a checkpoint and the number of
// papers the checkpoint already covered.
func (m *Metrics) RecordRunResumed(papersSkipped int) {
	if m == nil {
		return
	}
	m.RunsResumed.Inc()
	m.PapersResumed.Add(float64(papersSkipped))
}

// RecordPapersSubmitted records papers submitted for processing.
func (m *Metrics) RecordPapersSubmitted(count int) {
	if m == nil {
		return
	}
	m.PapersSubmitted.Add(float64(count))
}

// RecordPaperProcessed records a paper processed to completion.
func (m *Metrics) RecordPaperProcessed(contentSource string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.PapersProcessed.WithLabelValues(contentSource).Inc()
	m.PaperDuration.Observe(durationSeconds)
}

// RecordPaperFailed records a paper that failed processing.
func (m *Metrics) RecordPaperFailed(stage string) {
	if m == nil {
		return
	}
	m.PapersFailed.WithLabelValues(stage).Inc()
}

// RecordResolution records a registry resolution decision.
func (m *Metrics) RecordResolution(action string) {
	if m == nil {
		return
	}
	m.ResolutionDecisions.WithLabelValues(action).Inc()
}

// RecordDuplicates records papers dropped as within-batch duplicates.
func (m *Metrics) RecordDuplicates(count int) {
	if m == nil {
		return
	}
	m.PapersDuplicate.Add(float64(count))
}

// RecordCacheHit records an extraction cache hit.
func (m *Metrics) RecordCacheHit() {
	if m == nil {
		return
	}
	m.CacheHits.Inc()
}

// RecordCacheMiss records an extraction cache miss.
func (m *Metrics) RecordCacheMiss() {
	if m == nil {
		return
	}
	m.CacheMisses.Inc()
}

// RecordPDFDownloaded records a successful PDF download.
func (m *Metrics) RecordPDFDownloaded(sizeBytes int64) {
	if m == nil {
		return
	}
	m.PDFDownloads.Inc()
	m.PDFDownloadBytes.Observe(float64(sizeBytes))
}

// RecordPDFDownloadFailed records a failed PDF download.
func (m *Metrics) RecordPDFDownloadFailed() {
	if m == nil {
		return
	}
	m.PDFDownloadsFailed.Inc()
}

// RecordAbstractFallback records a paper processed from its abstract only.
func (m *Metrics) RecordAbstractFallback() {
	if m == nil {
		return
	}
	m.AbstractFallbacks.Inc()
}

// RecordLLMRequest records a completed LLM extraction request.
func (m *Metrics) RecordLLMRequest(model string, durationSeconds float64, inputTokens, outputTokens int, costUSD float64) {
	if m == nil {
		return
	}
	m.LLMRequestsTotal.WithLabelValues(model).Inc()
	m.LLMRequestDuration.Observe(durationSeconds)
	m.LLMTokensUsed.WithLabelValues(model, "input").Add(float64(inputTokens))
	m.LLMTokensUsed.WithLabelValues(model, "output").Add(float64(outputTokens))
	m.LLMCostUSD.Add(costUSD)
}

// RecordLLMRequestFailed records a failed LLM extraction request.
func (m *Metrics) RecordLLMRequestFailed() {
	if m == nil {
		return
	}
	m.LLMRequestsFailed.Inc()
}

// RecordEventPublished records a successfully published pipeline event.
func (m *Metrics) RecordEventPublished(eventType string) {
	if m == nil {
		return
	}
	m.EventsPublished.WithLabelValues(eventType).Inc()
}

// RecordEventPublishFailed records a pipeline event that failed to publish.
func (m *Metrics) RecordEventPublishFailed() {
	if m == nil {
		return
	}
	m.EventPublishFailures.Inc()
}

// SetRegistryEntries updates the registry size gauge.
func (m *Metrics) SetRegistryEntries(count int) {
	if m == nil {
		return
	}
	m.RegistryEntries.Set(float64(count))
}

// RecordCheckpointSave records a checkpoint write.
func (m *Metrics) RecordCheckpointSave() {
	if m == nil {
		return
	}
	m.CheckpointSaves.Inc()
}
