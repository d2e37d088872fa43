package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Note: prometheus/promauto registers metrics globally, so we need to use
// unique namespaces per test to avoid registration conflicts.

func TestNewMetrics(t *testing.T) {
	// Use unique namespace to avoid conflicts with other tests
	m := NewMetrics("test_corpus_new")

	assert.NotNil(t, m.RunsStarted)
	assert.NotNil(t, m.RunsCompleted)
	assert.NotNil(t, m.RunsFailed)
	assert.NotNil(t, m.RunsResumed)
	assert.NotNil(t, m.RunDuration)
	assert.NotNil(t, m.PapersSubmitted)
	assert.NotNil(t, m.PapersProcessed)
	assert.NotNil(t, m.PapersFailed)
	assert.NotNil(t, m.ResolutionDecisions)
	assert.NotNil(t, m.CacheHits)
	assert.NotNil(t, m.CacheMisses)
	assert.NotNil(t, m.PDFDownloads)
	assert.NotNil(t, m.PDFDownloadBytes)
	assert.NotNil(t, m.LLMRequestsTotal)
	assert.NotNil(t, m.LLMTokensUsed)
	assert.NotNil(t, m.EventsPublished)
	assert.NotNil(t, m.RegistryEntries)
	assert.NotNil(t, m.CheckpointSaves)
}

func TestRecordRunStarted(t *testing.T) {
	m := NewMetrics("test_corpus_run_started")

	initial := testutil.ToFloat64(m.RunsStarted)
	m.RecordRunStarted()
	assert.Equal(t, initial+1, testutil.ToFloat64(m.RunsStarted))
}

func TestRecordRunCompleted(t *testing.T) {
	m := NewMetrics("test_corpus_run_completed")

	initial := testutil.ToFloat64(m.RunsCompleted)
	m.RecordRunCompleted(42.5)
	assert.Equal(t, initial+1, testutil.ToFloat64(m.RunsCompleted))

	// Check histogram
	histCount, err := getHistogramSampleCount(m.RunDuration)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), histCount)
}

func TestRecordRunFailed(t *testing.T) {
	m := NewMetrics("test_corpus_run_failed")

	initial := testutil.ToFloat64(m.RunsFailed)
	m.RecordRunFailed(3.0)
	assert.Equal(t, initial+1, testutil.ToFloat64(m.RunsFailed))
}

func TestRecordRunResumed(t *testing.T) {
	m := NewMetrics("test_corpus_run_resumed")

	m.RecordRunResumed(17)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RunsResumed))
	assert.Equal(t, float64(17), testutil.ToFloat64(m.PapersResumed))
}

func TestRecordPapersSubmitted(t *testing.T) {
	m := NewMetrics("test_corpus_papers_submitted")

	initial := testutil.ToFloat64(m.PapersSubmitted)
	m.RecordPapersSubmitted(250)
	assert.Equal(t, initial+250, testutil.ToFloat64(m.PapersSubmitted))
}

func TestRecordPaperProcessed(t *testing.T) {
	m := NewMetrics("test_corpus_paper_processed")

	m.RecordPaperProcessed("pdf", 12.5)
	m.RecordPaperProcessed("cache", 0.01)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.PapersProcessed.WithLabelValues("pdf")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.PapersProcessed.WithLabelValues("cache")))

	histCount, err := getHistogramSampleCount(m.PaperDuration)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), histCount)
}

func TestRecordPaperFailed(t *testing.T) {
	m := NewMetrics("test_corpus_paper_failed")

	m.RecordPaperFailed("extraction")
	assert.Equal(t, float64(1), testutil.ToFloat64(m.PapersFailed.WithLabelValues("extraction")))
}

func TestRecordResolution(t *testing.T) {
	m := NewMetrics("test_corpus_resolution")

	m.RecordResolution("full_process")
	m.RecordResolution("full_process")
	m.RecordResolution("skip")
	assert.Equal(t, float64(2), testutil.ToFloat64(m.ResolutionDecisions.WithLabelValues("full_process")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ResolutionDecisions.WithLabelValues("skip")))
}

func TestRecordDuplicates(t *testing.T) {
	m := NewMetrics("test_corpus_duplicates")

	initial := testutil.ToFloat64(m.PapersDuplicate)
	m.RecordDuplicates(3)
	assert.Equal(t, initial+3, testutil.ToFloat64(m.PapersDuplicate))
}

func TestRecordCacheHitAndMiss(t *testing.T) {
	m := NewMetrics("test_corpus_cache")

	m.RecordCacheHit()
	m.RecordCacheMiss()
	m.RecordCacheMiss()
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CacheHits))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.CacheMisses))
}

func TestRecordPDFDownloaded(t *testing.T) {
	m := NewMetrics("test_corpus_pdf_downloaded")

	initial := testutil.ToFloat64(m.PDFDownloads)
	m.RecordPDFDownloaded(2_500_000)
	assert.Equal(t, initial+1, testutil.ToFloat64(m.PDFDownloads))

	histCount, err := getHistogramSampleCount(m.PDFDownloadBytes)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), histCount)
}

func TestRecordPDFDownloadFailed(t *testing.T) {
	m := NewMetrics("test_corpus_pdf_failed")

	initial := testutil.ToFloat64(m.PDFDownloadsFailed)
	m.RecordPDFDownloadFailed()
	assert.Equal(t, initial+1, testutil.ToFloat64(m.PDFDownloadsFailed))
}

func TestRecordAbstractFallback(t *testing.T) {
	m := NewMetrics("test_corpus_abstract_fallback")

	initial := testutil.ToFloat64(m.AbstractFallbacks)
	m.RecordAbstractFallback()
	assert.Equal(t, initial+1, testutil.ToFloat64(m.AbstractFallbacks))
}

func TestRecordLLMRequest(t *testing.T) {
	m := NewMetrics("test_corpus_llm_request")

	m.RecordLLMRequest("gpt-4-turbo", 2.5, 1200, 300, 0.021)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.LLMRequestsTotal.WithLabelValues("gpt-4-turbo")))
	assert.Equal(t, float64(1200), testutil.ToFloat64(m.LLMTokensUsed.WithLabelValues("gpt-4-turbo", "input")))
	assert.Equal(t, float64(300), testutil.ToFloat64(m.LLMTokensUsed.WithLabelValues("gpt-4-turbo", "output")))
	assert.InDelta(t, 0.021, testutil.ToFloat64(m.LLMCostUSD), 1e-9)
}

func TestRecordLLMRequestFailed(t *testing.T) {
	m := NewMetrics("test_corpus_llm_failed")

	initial := testutil.ToFloat64(m.LLMRequestsFailed)
	m.RecordLLMRequestFailed()
	assert.Equal(t, initial+1, testutil.ToFloat64(m.LLMRequestsFailed))
}

func TestRecordEventPublished(t *testing.T) {
	m := NewMetrics("test_corpus_event_published")

	m.RecordEventPublished("run.completed")
	assert.Equal(t, float64(1), testutil.ToFloat64(m.EventsPublished.WithLabelValues("run.completed")))
}

func TestRecordEventPublishFailed(t *testing.T) {
	m := NewMetrics("test_corpus_event_failed")

	initial := testutil.ToFloat64(m.EventPublishFailures)
	m.RecordEventPublishFailed()
	assert.Equal(t, initial+1, testutil.ToFloat64(m.EventPublishFailures))
}

func TestSetRegistryEntries(t *testing.T) {
	m := NewMetrics("test_corpus_registry_entries")

	m.SetRegistryEntries(4821)
	assert.Equal(t, float64(4821), testutil.ToFloat64(m.RegistryEntries))

	m.SetRegistryEntries(4820)
	assert.Equal(t, float64(4820), testutil.ToFloat64(m.RegistryEntries))
}

func TestRecordCheckpointSave(t *testing.T) {
	m := NewMetrics("test_corpus_checkpoint_save")

	initial := testutil.ToFloat64(m.CheckpointSaves)
	m.RecordCheckpointSave()
	assert.Equal(t, initial+1, testutil.ToFloat64(m.CheckpointSaves))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.RecordRunStarted()
		m.RecordRunCompleted(1.0)
		m.RecordRunFailed(1.0)
		m.RecordRunResumed(5)
		m.RecordPapersSubmitted(10)
		m.RecordPaperProcessed("pdf", 1.0)
		m.RecordPaperFailed("content")
		m.RecordResolution("skip")
		m.RecordDuplicates(2)
		m.RecordCacheHit()
		m.RecordCacheMiss()
		m.RecordPDFDownloaded(1024)
		m.RecordPDFDownloadFailed()
		m.RecordAbstractFallback()
		m.RecordLLMRequest("gpt-4-turbo", 1.0, 10, 5, 0.001)
		m.RecordLLMRequestFailed()
		m.RecordEventPublished("paper.processed")
		m.RecordEventPublishFailed()
		m.SetRegistryEntries(1)
		m.RecordCheckpointSave()
	})
}

// Helper to get histogram sample count
func getHistogramSampleCount(h prometheus.Histogram) (uint64, error) {
	ch := make(chan prometheus.Metric, 1)
	h.Collect(ch)
	close(ch)

	var m prometheus.Metric
	for m = range ch {
		break
	}

	out := &dto.Metric{}
	if err := m.Write(out); err != nil {
		return 0, err
	}

	return out.Histogram.GetSampleCount(), nil
}
