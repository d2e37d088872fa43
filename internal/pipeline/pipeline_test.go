package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/litforge/paper-corpus-service/internal/cache"
	"github.com/litforge/paper-corpus-service/internal/checkpoint"
	"github.com/litforge/paper-corpus-service/internal/dedup"
	"github.com/litforge/paper-corpus-service/internal/domain"
	"github.com/litforge/paper-corpus-service/internal/filter"
	"github.com/litforge/paper-corpus-service/internal/llm"
	"github.com/litforge/paper-corpus-service/internal/observability"
	"github.com/litforge/paper-corpus-service/internal/pdf"
	"github.com/litforge/paper-corpus-service/internal/registry"
)

// The concrete collaborators must satisfy the pipeline's consumer
// interfaces.
var (
	_ PDFExtractor     = (*pdf.Extractor)(nil)
	_ FieldExtractor   = (llm.FieldExtractor)(nil)
	_ ExtractionCache  = (cache.Cache)(nil)
	_ DuplicateChecker = (*dedup.Checker)(nil)
	_ RelevanceRanker  = (*filter.Ranker)(nil)
)

// fakeFields is a scripted field extractor. Calls can be made to fail
// per paper title or to wait for a token before answering.
type fakeFields struct {
	mu       sync.Mutex
	calls    int
	requests []llm.ExtractionRequest
	failFor  map[string]error
	tokens   chan struct{}
}

func (f *fakeFields) ExtractFields(ctx context.Context, req llm.ExtractionRequest) (*llm.ExtractionResult, error) {
	if f.tokens != nil {
		select {
		case <-f.tokens:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.requests = append(f.requests, req)
	if err, ok := f.failFor[req.Title]; ok {
		return nil, err
	}
	return &llm.ExtractionResult{
		Fields: map[string]string{"sample_size": "412"},
		Model:  "fake-model",
	}, nil
}

func (f *fakeFields) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeFields) request(i int) llm.ExtractionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[i]
}

// fakePDF serves a canned full text.
type fakePDF struct {
	mu          sync.Mutex
	fetchCalls  int
	fetchErr    error
	failConvert bool
	markdown    string
	pdfPath     string
	mdPath      string
}

func (f *fakePDF) Fetch(ctx context.Context, paper *domain.Paper) (*pdf.DownloadResult, error) {
	f.mu.Lock()
	f.fetchCalls++
	f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	content := []byte("%PDF-1.4 fake body")
	return &pdf.DownloadResult{
		Content:     content,
		ContentHash: "deadbeef",
		SizeBytes:   int64(len(content)),
		ContentType: "application/pdf",
	}, nil
}

func (f *fakePDF) Convert(paper *domain.Paper, dl *pdf.DownloadResult) *pdf.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failConvert {
		return &pdf.Result{Success: false, ContentHash: dl.ContentHash, Error: "pdf: no extractable text"}
	}
	md := f.markdown
	if md == "" {
		md = "# " + paper.Title + "\n\nfull text"
	}
	return &pdf.Result{
		Success:      true,
		Markdown:     md,
		Pages:        7,
		ContentHash:  dl.ContentHash,
		PDFPath:      f.pdfPath,
		MarkdownPath: f.mdPath,
	}
}

func (f *fakePDF) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetchCalls
}

// fakeCache is an in-memory ExtractionCache with injectable errors.
type fakeCache struct {
	mu      sync.Mutex
	entries map[string]*llm.ExtractionResult
	getErr  error
	setErr  error
	gets    int
	sets    int
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]*llm.ExtractionResult)}
}

func cacheKey(paperID, hash string) string {
	return paperID + "|" + hash
}

func (f *fakeCache) Get(ctx context.Context, paperID, requirementsHash string) (*llm.ExtractionResult, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.getErr != nil {
		return nil, false, f.getErr
	}
	res, ok := f.entries[cacheKey(paperID, requirementsHash)]
	return res, ok, nil
}

func (f *fakeCache) Set(ctx context.Context, paperID, requirementsHash string, result *llm.ExtractionResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sets++
	if f.setErr != nil {
		return f.setErr
	}
	f.entries[cacheKey(paperID, requirementsHash)] = result
	return nil
}

// fakePublisher records published events.
type fakePublisher struct {
	mu     sync.Mutex
	events []*domain.PipelineEvent
	err    error
}

func (f *fakePublisher) Publish(ctx context.Context, event *domain.PipelineEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return f.err
}

func (f *fakePublisher) byType(eventType string) []*domain.PipelineEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.PipelineEvent
	for _, e := range f.events {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

// recordingDedup passes every paper through and records index updates.
type recordingDedup struct {
	mu      sync.Mutex
	indexed []*domain.Paper
}

func (r *recordingDedup) Partition(papers []*domain.Paper) ([]*domain.Paper, []dedup.Duplicate) {
	return papers, nil
}

func (r *recordingDedup) UpdateIndex(papers []*domain.Paper) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.indexed = append(r.indexed, papers...)
}

// droppingRanker violates the ordering-only contract on purpose.
type droppingRanker struct{}

func (droppingRanker) Rank(papers []*domain.Paper, query string) []*domain.Paper {
	return papers[:len(papers)-1]
}

func paperN(i int) *domain.Paper {
	return &domain.Paper{
		SourceID:        fmt.Sprintf("10.1234/corpus.%03d", i),
		DOI:             fmt.Sprintf("10.1234/corpus.%03d", i),
		Title:           fmt.Sprintf("Study Number %d of the Corpus Topic", i),
		Abstract:        fmt.Sprintf("We analyze phenomenon %d in depth.", i),
		Source:          domain.SourceTypeOpenAlex,
		PublicationYear: 2024,
		OpenAccess:      true,
	}
}

func paperBatch(n int) []*domain.Paper {
	papers := make([]*domain.Paper, 0, n)
	for i := 1; i <= n; i++ {
		papers = append(papers, paperN(i))
	}
	return papers
}

func testRequirements() []domain.ExtractionRequirement {
	return []domain.ExtractionRequirement{
		{Name: "sample_size", Description: "number of participants", Format: "number", Required: true},
		{Name: "methodology", Description: "study methodology"},
	}
}

func newTestRegistry(t *testing.T) *registry.Store {
	t.Helper()
	return registry.NewStore(registry.Config{Path: filepath.Join(t.TempDir(), "registry.json")}, zerolog.Nop())
}

func newTestCheckpoints(t *testing.T) *checkpoint.Store {
	t.Helper()
	return checkpoint.NewStore(checkpoint.Config{Dir: t.TempDir(), Enabled: true}, zerolog.Nop())
}

func drainResults(t *testing.T, ch <-chan PaperResult) []PaperResult {
	t.Helper()
	deadline := time.After(10 * time.Second)
	var out []PaperResult
	for {
		select {
		case res, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, res)
		case <-deadline:
			t.Fatal("timed out draining pipeline results")
		}
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()

	assert.Equal(t, defaultQueueCapacity, cfg.QueueCapacity)
	assert.Equal(t, defaultMaxDownloads, cfg.MaxDownloads)
	assert.Equal(t, defaultMaxConversions, cfg.MaxConversions)
	assert.Equal(t, defaultMaxLLMCalls, cfg.MaxLLMCalls)
	assert.Equal(t, defaultCheckpointInterval, cfg.CheckpointInterval)
	assert.Equal(t, defaultMaxPapers, cfg.MaxPapers)

	custom := Config{QueueCapacity: 7, MaxDownloads: 2, MaxPapers: -1}.withDefaults()
	assert.Equal(t, 7, custom.QueueCapacity)
	assert.Equal(t, 2, custom.MaxDownloads)
	assert.Equal(t, -1, custom.MaxPapers)
}

func TestProcessBatch_RequiresRunID(t *testing.T) {
	p := New(Config{}, Collaborators{Fields: &fakeFields{}}, zerolog.Nop())

	_, err := p.ProcessBatch(context.Background(), Batch{RunID: "  "})

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestProcessBatch_RegistryDrivenRun(t *testing.T) {
	reg := newTestRegistry(t)
	fields := &fakeFields{}
	events := &fakePublisher{}
	p := New(Config{}, Collaborators{
		Registry:    reg,
		Checkpoints: newTestCheckpoints(t),
		Fields:      fields,
		Events:      events,
	}, zerolog.Nop())

	papers := paperBatch(5)
	results, err := p.ProcessBatch(context.Background(), Batch{
		RunID:     "run-registry",
		TopicSlug: "transformer-models",
		Papers:    papers,
		Config:    &domain.RunConfig{Requirements: testRequirements()},
	})
	require.NoError(t, err)

	got := drainResults(t, results)
	require.Len(t, got, 5)
	for _, res := range got {
		assert.Equal(t, domain.ActionFullProcess, res.Action)
		assert.True(t, res.AbstractOnly, "no pdf extractor configured, expected abstract fallback")
		assert.NotEmpty(t, res.PaperID)
		require.NotNil(t, res.Extraction)
		assert.Equal(t, "412", res.Extraction.Fields["sample_size"])
	}

	// Every success was registered under the topic.
	assert.Equal(t, 5, reg.Stats().TotalEntries)
	for _, paper := range papers {
		match := reg.ResolveIdentity(paper)
		assert.True(t, match.Matched)
	}

	stats := p.Stats()
	assert.Equal(t, 5, stats.Submitted)
	assert.Equal(t, 5, stats.Completed)
	assert.Zero(t, stats.Failed)

	assert.Len(t, events.byType(domain.EventTypeRunStarted), 1)
	assert.Len(t, events.byType(domain.EventTypePaperProcessed), 5)
	assert.Len(t, events.byType(domain.EventTypeRunCompleted), 1)
}

func TestProcessBatch_SkipMapOnlyBackfill(t *testing.T) {
	reg := newTestRegistry(t)
	reqs := testRequirements()

	// Seed the registry: one paper fully processed for the topic, one
	// processed under a different topic.
	skipPaper := paperN(1)
	mapPaper := paperN(2)
	freshPaper := paperN(3)
	_, err := reg.RegisterPaper(skipPaper, "graph-learning", reqs, "", "", nil)
	require.NoError(t, err)
	mapEntry, err := reg.RegisterPaper(mapPaper, "other-topic", reqs, "", "", nil)
	require.NoError(t, err)

	fields := &fakeFields{}
	p := New(Config{}, Collaborators{Registry: reg, Fields: fields}, zerolog.Nop())

	results, err := p.ProcessBatch(context.Background(), Batch{
		RunID:     "run-actions",
		TopicSlug: "graph-learning",
		Papers:    []*domain.Paper{skipPaper, mapPaper, freshPaper},
		Config:    &domain.RunConfig{Requirements: reqs},
	})
	require.NoError(t, err)

	got := drainResults(t, results)
	require.Len(t, got, 1, "only the fresh paper should be processed")
	assert.Equal(t, domain.ActionFullProcess, got[0].Action)

	stats := p.Stats()
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, 1, stats.MapOnly)
	assert.Equal(t, 1, stats.Completed)

	// The map-only paper gained the topic without reprocessing.
	entry, ok := reg.GetEntry(mapEntry.PaperID)
	require.True(t, ok)
	assert.True(t, entry.HasTopic("graph-learning"))
	assert.True(t, entry.HasTopic("other-topic"))
}

func TestProcessBatch_BackfillKeepsPaperID(t *testing.T) {
	reg := newTestRegistry(t)
	paper := paperN(1)
	first, err := reg.RegisterPaper(paper, "graph-learning", testRequirements(), "", "", nil)
	require.NoError(t, err)

	changed := append(testRequirements(), domain.ExtractionRequirement{Name: "dataset", Description: "benchmark dataset"})
	fields := &fakeFields{}
	p := New(Config{}, Collaborators{Registry: reg, Fields: fields}, zerolog.Nop())

	results, err := p.ProcessBatch(context.Background(), Batch{
		RunID:     "run-backfill",
		TopicSlug: "graph-learning",
		Papers:    []*domain.Paper{paper},
		Config:    &domain.RunConfig{Requirements: changed},
	})
	require.NoError(t, err)

	got := drainResults(t, results)
	require.Len(t, got, 1)
	assert.Equal(t, domain.ActionBackfill, got[0].Action)
	assert.Equal(t, first.PaperID, got[0].PaperID)
	assert.Equal(t, 1, reg.Stats().TotalEntries)
}

func TestProcessBatch_DedupFallback(t *testing.T) {
	checker := dedup.NewChecker(dedup.CheckerConfig{}, zerolog.Nop())
	seen := paperN(1)
	checker.UpdateIndex([]*domain.Paper{seen})

	fields := &fakeFields{}
	p := New(Config{}, Collaborators{Dedup: checker, Fields: fields}, zerolog.Nop())

	results, err := p.ProcessBatch(context.Background(), Batch{
		RunID:  "run-dedup",
		Papers: []*domain.Paper{paperN(1), paperN(2)},
		Config: &domain.RunConfig{Requirements: testRequirements()},
	})
	require.NoError(t, err)

	got := drainResults(t, results)
	require.Len(t, got, 1)
	assert.Empty(t, got[0].PaperID, "no registry, no paper id")
	assert.Equal(t, "doi:10.1234/corpus.002", got[0].key)

	stats := p.Stats()
	assert.Equal(t, 1, stats.Deduplicated)
	assert.Equal(t, 1, stats.Completed)
}

func TestProcessBatch_UpdatesDedupIndexOnFinish(t *testing.T) {
	recorder := &recordingDedup{}
	p := New(Config{}, Collaborators{Dedup: recorder, Fields: &fakeFields{}}, zerolog.Nop())

	results, err := p.ProcessBatch(context.Background(), Batch{
		RunID:  "run-index",
		Papers: paperBatch(3),
		Config: &domain.RunConfig{Requirements: testRequirements()},
	})
	require.NoError(t, err)
	drainResults(t, results)

	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	assert.Len(t, recorder.indexed, 3, "all successes should refresh the dedup index")
}

func TestProcessBatch_FailuresCountedNotStreamed(t *testing.T) {
	reg := newTestRegistry(t)
	papers := paperBatch(5)
	fields := &fakeFields{failFor: map[string]error{
		papers[1].Title: errors.New("model overloaded"),
		papers[3].Title: errors.New("model overloaded"),
	}}
	events := &fakePublisher{}
	p := New(Config{}, Collaborators{Registry: reg, Fields: fields, Events: events}, zerolog.Nop())

	results, err := p.ProcessBatch(context.Background(), Batch{
		RunID:     "run-failures",
		TopicSlug: "graph-learning",
		Papers:    papers,
		Config:    &domain.RunConfig{Requirements: testRequirements()},
	})
	require.NoError(t, err)

	got := drainResults(t, results)
	assert.Len(t, got, 3)

	stats := p.Stats()
	assert.Equal(t, 3, stats.Completed)
	assert.Equal(t, 2, stats.Failed)

	// Failed papers never reach the registry.
	assert.Equal(t, 3, reg.Stats().TotalEntries)
	assert.False(t, reg.ResolveIdentity(papers[1]).Matched)
	assert.False(t, reg.ResolveIdentity(papers[3]).Matched)

	failedEvents := events.byType(domain.EventTypePaperFailed)
	require.Len(t, failedEvents, 2)
	var payload domain.PaperFailedPayload
	require.NoError(t, json.Unmarshal(failedEvents[0].Payload, &payload))
	assert.Equal(t, "extraction", payload.Stage)
	assert.Contains(t, payload.Error, "model overloaded")
}

func TestProcessBatch_CheckpointResume(t *testing.T) {
	checks := newTestCheckpoints(t)
	papers := paperBatch(5)

	// A prior interrupted run already finished the first three papers.
	done := []string{"doi:10.1234/corpus.001", "doi:10.1234/corpus.002", "doi:10.1234/corpus.003"}
	require.NoError(t, checks.Save("run-resume", done, false))

	fields := &fakeFields{}
	p := New(Config{}, Collaborators{Checkpoints: checks, Fields: fields}, zerolog.Nop())

	results, err := p.ProcessBatch(context.Background(), Batch{
		RunID:  "run-resume",
		Papers: papers,
		Config: &domain.RunConfig{Requirements: testRequirements()},
	})
	require.NoError(t, err)

	got := drainResults(t, results)
	require.Len(t, got, 2)
	keys := []string{got[0].key, got[1].key}
	assert.ElementsMatch(t, []string{"doi:10.1234/corpus.004", "doi:10.1234/corpus.005"}, keys)

	stats := p.Stats()
	assert.Equal(t, 3, stats.Resumed)
	assert.Equal(t, 2, stats.Completed)

	// The finished run clears its checkpoint.
	_, ok := checks.Load("run-resume")
	assert.False(t, ok)
}

func TestProcessBatch_CancellationPreservesCheckpoint(t *testing.T) {
	checks := newTestCheckpoints(t)
	papers := paperBatch(5)
	fields := &fakeFields{tokens: make(chan struct{}, 5)}
	events := &fakePublisher{}
	p := New(Config{MaxDownloads: 1}, Collaborators{Checkpoints: checks, Fields: fields, Events: events}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	results, err := p.ProcessBatch(ctx, Batch{
		RunID:  "run-cancel",
		Papers: papers,
		Config: &domain.RunConfig{Requirements: testRequirements()},
	})
	require.NoError(t, err)

	// Let three papers finish, then cancel and unblock the rest.
	var firstRun []PaperResult
	for i := 0; i < 3; i++ {
		fields.tokens <- struct{}{}
		select {
		case res, ok := <-results:
			require.True(t, ok)
			firstRun = append(firstRun, res)
		case <-time.After(10 * time.Second):
			t.Fatal("timed out waiting for pipeline result")
		}
	}
	cancel()
	for i := 0; i < 2; i++ {
		fields.tokens <- struct{}{}
	}
	firstRun = append(firstRun, drainResults(t, results)...)
	require.GreaterOrEqual(t, len(firstRun), 3)

	cp, ok := checks.Load("run-cancel")
	require.True(t, ok, "cancelled run must leave its checkpoint behind")
	assert.False(t, cp.Completed)
	require.GreaterOrEqual(t, len(cp.ProcessedPaperIDs), 3)
	assert.Len(t, events.byType(domain.EventTypeRunFailed), 1)

	// A second run with the same id resumes past the checkpointed papers.
	remaining := 5 - len(cp.ProcessedPaperIDs)
	results2, err := p.ProcessBatch(context.Background(), Batch{
		RunID:  "run-cancel",
		Papers: papers,
		Config: &domain.RunConfig{Requirements: testRequirements()},
	})
	require.NoError(t, err)
	for i := 0; i < remaining; i++ {
		fields.tokens <- struct{}{}
	}
	secondRun := drainResults(t, results2)
	assert.Len(t, secondRun, remaining)

	_, ok = checks.Load("run-cancel")
	assert.False(t, ok, "completed resume run must clear the checkpoint")
}

func TestProcessBatch_MaxPapersCap(t *testing.T) {
	fields := &fakeFields{}
	p := New(Config{}, Collaborators{Fields: fields}, zerolog.Nop())

	results, err := p.ProcessBatch(context.Background(), Batch{
		RunID:  "run-cap",
		Papers: paperBatch(7),
		Config: &domain.RunConfig{MaxPapers: 3, Requirements: testRequirements()},
	})
	require.NoError(t, err)

	got := drainResults(t, results)
	assert.Len(t, got, 3)
	assert.Equal(t, 3, p.Stats().Submitted)
}

func TestProcessBatch_EmptyBatch(t *testing.T) {
	events := &fakePublisher{}
	p := New(Config{}, Collaborators{Fields: &fakeFields{}, Events: events}, zerolog.Nop())

	results, err := p.ProcessBatch(context.Background(), Batch{RunID: "run-empty"})
	require.NoError(t, err)

	got := drainResults(t, results)
	assert.Empty(t, got)
	assert.Len(t, events.byType(domain.EventTypeRunStarted), 1)
	assert.Len(t, events.byType(domain.EventTypeRunCompleted), 1)
}

func TestProcessBatch_RankerOrdersProcessing(t *testing.T) {
	papers := []*domain.Paper{
		paperN(1),
		{
			SourceID: "10.1234/corpus.900",
			DOI:      "10.1234/corpus.900",
			Title:    "Spiking Neural Networks for Event Cameras",
			Abstract: "Spiking neural networks process event camera streams.",
		},
		paperN(2),
	}

	fields := &fakeFields{}
	p := New(Config{MaxDownloads: 1}, Collaborators{Fields: fields, Ranker: filter.NewRanker()}, zerolog.Nop())

	results, err := p.ProcessBatch(context.Background(), Batch{
		RunID:  "run-ranked",
		Query:  "spiking neural networks",
		Papers: papers,
		Config: &domain.RunConfig{Requirements: testRequirements()},
	})
	require.NoError(t, err)

	got := drainResults(t, results)
	require.Len(t, got, 3)
	assert.Equal(t, "Spiking Neural Networks for Event Cameras", got[0].Paper.Title,
		"most relevant paper should be processed first")
}

func TestProcessBatch_MisbehavingRankerIgnored(t *testing.T) {
	fields := &fakeFields{}
	p := New(Config{}, Collaborators{Fields: fields, Ranker: droppingRanker{}}, zerolog.Nop())

	results, err := p.ProcessBatch(context.Background(), Batch{
		RunID:  "run-bad-ranker",
		Query:  "anything at all",
		Papers: paperBatch(4),
		Config: &domain.RunConfig{Requirements: testRequirements()},
	})
	require.NoError(t, err)

	got := drainResults(t, results)
	assert.Len(t, got, 4, "ranking must never drop papers")
}

func TestProcessBatch_CacheHit(t *testing.T) {
	reqs := testRequirements()
	hash := domain.ComputeRequirementsHash(reqs)
	cached := &llm.ExtractionResult{Fields: map[string]string{"sample_size": "99"}, Model: "cached-model"}

	store := newFakeCache()
	store.entries[cacheKey("doi:10.1234/corpus.001", hash)] = cached

	fields := &fakeFields{}
	pdfx := &fakePDF{}
	p := New(Config{}, Collaborators{Fields: fields, Cache: store, PDF: pdfx}, zerolog.Nop())

	paper := paperN(1)
	paper.PDFURL = "https://example.org/corpus-001.pdf"
	results, err := p.ProcessBatch(context.Background(), Batch{
		RunID:  "run-cache-hit",
		Papers: []*domain.Paper{paper},
		Config: &domain.RunConfig{Requirements: reqs},
	})
	require.NoError(t, err)

	got := drainResults(t, results)
	require.Len(t, got, 1)
	assert.True(t, got[0].FromCache)
	assert.Equal(t, "99", got[0].Extraction.Fields["sample_size"])
	assert.Zero(t, fields.callCount(), "cache hit must not reach the extractor")
	assert.Zero(t, pdfx.fetchCount(), "cache hit must not download anything")
	assert.Equal(t, 1, p.Stats().CacheHits)
}

func TestProcessBatch_CacheMissWritesEntry(t *testing.T) {
	reqs := testRequirements()
	store := newFakeCache()
	fields := &fakeFields{}
	p := New(Config{}, Collaborators{Fields: fields, Cache: store}, zerolog.Nop())

	results, err := p.ProcessBatch(context.Background(), Batch{
		RunID:  "run-cache-miss",
		Papers: []*domain.Paper{paperN(1)},
		Config: &domain.RunConfig{Requirements: reqs},
	})
	require.NoError(t, err)
	drainResults(t, results)

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Equal(t, 1, store.sets)
	hash := domain.ComputeRequirementsHash(reqs)
	assert.Contains(t, store.entries, cacheKey("doi:10.1234/corpus.001", hash))
}

func TestProcessBatch_CacheReadErrorTreatedAsMiss(t *testing.T) {
	store := newFakeCache()
	store.getErr = errors.New("backend down")
	fields := &fakeFields{}
	p := New(Config{}, Collaborators{Fields: fields, Cache: store}, zerolog.Nop())

	results, err := p.ProcessBatch(context.Background(), Batch{
		RunID:  "run-cache-error",
		Papers: []*domain.Paper{paperN(1)},
		Config: &domain.RunConfig{Requirements: testRequirements()},
	})
	require.NoError(t, err)

	got := drainResults(t, results)
	require.Len(t, got, 1)
	assert.False(t, got[0].FromCache)
	assert.Equal(t, 1, fields.callCount())
}

func TestProcessBatch_PublisherErrorsDoNotFailRun(t *testing.T) {
	events := &fakePublisher{err: errors.New("broker unreachable")}
	p := New(Config{}, Collaborators{Fields: &fakeFields{}, Events: events}, zerolog.Nop())

	results, err := p.ProcessBatch(context.Background(), Batch{
		RunID:  "run-no-broker",
		Papers: paperBatch(2),
		Config: &domain.RunConfig{Requirements: testRequirements()},
	})
	require.NoError(t, err)

	got := drainResults(t, results)
	assert.Len(t, got, 2)
	assert.Zero(t, p.Stats().Failed)
}

func TestProcessBatch_RecordsMetrics(t *testing.T) {
	// promauto registers on the default registry, so the namespace must be
	// unique across the test binary.
	metrics := observability.NewMetrics("test_pipeline_metrics")
	fields := &fakeFields{failFor: map[string]error{
		"Study Number 3 of the Corpus Topic": errors.New("model refused"),
	}}
	p := New(Config{}, Collaborators{
		Registry:    newTestRegistry(t),
		Checkpoints: newTestCheckpoints(t),
		Fields:      fields,
		Cache:       newFakeCache(),
		Events:      &fakePublisher{},
		Metrics:     metrics,
	}, zerolog.Nop())

	results, err := p.ProcessBatch(context.Background(), Batch{
		RunID:     "run-metrics",
		TopicSlug: "transformer-models",
		Papers:    paperBatch(3),
		Config:    &domain.RunConfig{Requirements: testRequirements()},
	})
	require.NoError(t, err)
	drainResults(t, results)

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.RunsStarted))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.RunsCompleted))
	assert.Equal(t, float64(3), testutil.ToFloat64(metrics.PapersSubmitted))
	assert.Equal(t, float64(3), testutil.ToFloat64(metrics.ResolutionDecisions.WithLabelValues("full_process")))
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.PapersProcessed.WithLabelValues("abstract")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.PapersFailed.WithLabelValues("extraction")))
	assert.Equal(t, float64(3), testutil.ToFloat64(metrics.CacheMisses))
	assert.Equal(t, float64(3), testutil.ToFloat64(metrics.AbstractFallbacks))
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.LLMRequestsTotal.WithLabelValues("fake-model")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.LLMRequestsFailed))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.EventsPublished.WithLabelValues(domain.EventTypeRunStarted)))
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.EventsPublished.WithLabelValues(domain.EventTypePaperProcessed)))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.EventsPublished.WithLabelValues(domain.EventTypeRunCompleted)))
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.RegistryEntries))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.CheckpointSaves), "final checkpoint only; interval not reached")
}

func TestResumeKey(t *testing.T) {
	tests := []struct {
		name  string
		paper *domain.Paper
		entry *registry.Entry
		want  string
	}{
		{
			name:  "registry entry id wins",
			paper: paperN(1),
			entry: &registry.Entry{PaperID: "paper-abc123"},
			want:  "paper-abc123",
		},
		{
			name:  "primary identifier without entry",
			paper: paperN(1),
			want:  "doi:10.1234/corpus.001",
		},
		{
			name:  "title fallback",
			paper: &domain.Paper{Title: "An Untracked Manuscript!"},
			want:  "title:an untracked manuscript",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, resumeKey(tt.paper, tt.entry))
		})
	}
}
