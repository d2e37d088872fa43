package pipeline

import (
	"sync"
	"time"
)

// Stats is a point-in-time snapshot of a batch run. Counters are
// cumulative for the run; ActiveWorkers and QueueDepth reflect the
// moment the snapshot was taken.
type Stats struct {
	// Submitted is the number of papers accepted into the run after
	// the per-run cap was applied.
	Submitted int `json:"submitted"`
	// Completed counts papers that produced a result, including
	// cache hits.
	Completed int `json:"completed"`
	// Failed counts papers whose processing errored. Failures are
	// terminal; the pipeline does not retry.
	Failed int `json:"failed"`
	// CacheHits counts completions served from the extraction cache.
	CacheHits int `json:"cache_hits"`
	// Deduplicated counts papers dropped as duplicates of the
	// in-memory index or of an earlier paper in the same batch.
	Deduplicated int `json:"deduplicated"`
	// Skipped counts papers the registry resolved as already
	// processed for this topic and requirements.
	Skipped int `json:"skipped"`
	// MapOnly counts papers that only needed a topic affiliation
	// added to an existing registry entry.
	MapOnly int `json:"map_only"`
	// Resumed counts papers excluded because a checkpoint showed a
	// prior interrupted run had already processed them.
	Resumed int `json:"resumed"`
	// PDFDownloads counts successful full-text fetches.
	PDFDownloads int `json:"pdf_downloads"`

	ActiveWorkers int           `json:"active_workers"`
	QueueDepth    int           `json:"queue_depth"`
	Elapsed       time.Duration `json:"elapsed_ns"`
}

// statsTracker accumulates run counters behind a mutex so workers can
// update them concurrently.
type statsTracker struct {
	mu        sync.Mutex
	stats     Stats
	startedAt time.Time
}

func newStatsTracker() *statsTracker {
	return &statsTracker{startedAt: time.Now()}
}

func (t *statsTracker) setSubmitted(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats.Submitted = n
}

func (t *statsTracker) incCompleted() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats.Completed++
}

func (t *statsTracker) incFailed() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats.Failed++
}

func (t *statsTracker) incCacheHits() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats.CacheHits++
}

func (t *statsTracker) addDeduplicated(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats.Deduplicated += n
}

func (t *statsTracker) incSkipped() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats.Skipped++
}

func (t *statsTracker) incMapOnly() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats.MapOnly++
}

func (t *statsTracker) addResumed(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats.Resumed += n
}

// reserveDownload claims one slot of the run's PDF download budget.
// A budget of zero or less means unlimited. The claim is rolled back
// with releaseDownload when the fetch fails, so failed attempts do not
// consume budget.
func (t *statsTracker) reserveDownload(budget int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if budget > 0 && t.stats.PDFDownloads >= budget {
		return false
	}
	t.stats.PDFDownloads++
	return true
}

func (t *statsTracker) releaseDownload() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stats.PDFDownloads > 0 {
		t.stats.PDFDownloads--
	}
}

// snapshot copies the counters and stamps in the live queue and worker
// readings supplied by the pipeline.
func (t *statsTracker) snapshot(queueDepth, activeWorkers int) Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.stats
	s.QueueDepth = queueDepth
	s.ActiveWorkers = activeWorkers
	s.Elapsed = time.Since(t.startedAt)
	return s
}
