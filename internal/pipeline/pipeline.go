// Package pipeline runs batches of candidate papers through resolution,
// ranking, checkpoint resume, and a bounded worker pool that downloads
// full texts, converts them to markdown, and extracts structured fields.
//
// Resolution is registry-driven when a registry store and topic slug are
// configured; otherwise the batch falls back to the duplicate-detection
// collaborator. Results are streamed to the caller in completion order,
// persisted to the registry as they arrive, and checkpointed at a fixed
// interval so interrupted runs resume without repeating work.
package pipeline

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/litforge/paper-corpus-service/internal/checkpoint"
	"github.com/litforge/paper-corpus-service/internal/dedup"
	"github.com/litforge/paper-corpus-service/internal/domain"
	"github.com/litforge/paper-corpus-service/internal/llm"
	"github.com/litforge/paper-corpus-service/internal/observability"
	"github.com/litforge/paper-corpus-service/internal/registry"
)

const (
	defaultQueueCapacity      = 100
	defaultMaxDownloads       = 5
	defaultMaxConversions     = 3
	defaultMaxLLMCalls        = 5
	defaultCheckpointInterval = 10
	defaultMaxPapers          = 100
)

// Config holds service-level pipeline settings. Per-run overrides arrive
// on the batch via domain.RunConfig.
type Config struct {
	// QueueCapacity bounds the pending work queue. The producer blocks
	// when the queue is full.
	QueueCapacity int

	// MaxDownloads caps the worker pool size and concurrent PDF
	// downloads.
	MaxDownloads int

	// MaxConversions caps concurrent PDF-to-markdown conversions.
	MaxConversions int

	// MaxLLMCalls caps concurrent field-extraction requests.
	MaxLLMCalls int

	// CheckpointInterval is the number of completions between
	// checkpoint saves.
	CheckpointInterval int

	// MaxPapers caps how many papers of a batch are accepted when the
	// run config does not set its own limit. Negative means unlimited.
	MaxPapers int
}

func (c Config) withDefaults() Config {
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = defaultQueueCapacity
	}
	if c.MaxDownloads <= 0 {
		c.MaxDownloads = defaultMaxDownloads
	}
	if c.MaxConversions <= 0 {
		c.MaxConversions = defaultMaxConversions
	}
	if c.MaxLLMCalls <= 0 {
		c.MaxLLMCalls = defaultMaxLLMCalls
	}
	if c.CheckpointInterval <= 0 {
		c.CheckpointInterval = defaultCheckpointInterval
	}
	if c.MaxPapers == 0 {
		c.MaxPapers = defaultMaxPapers
	}
	return c
}

// Collaborators bundles the pipeline's injectable dependencies. Registry,
// PDF, Fields, Cache, Dedup, Ranker, and Events may each be nil; the
// pipeline degrades per collaborator: dedup-only resolution without a
// registry, abstract-only content without a PDF extractor, no field
// extraction without an extractor, and so on. A nil Checkpoints store is
// replaced with a disabled one, and a nil Metrics records nothing.
type Collaborators struct {
	Registry    *registry.Store
	Checkpoints *checkpoint.Store
	PDF         PDFExtractor
	Fields      FieldExtractor
	Cache       ExtractionCache
	Dedup       DuplicateChecker
	Ranker      RelevanceRanker
	Events      EventPublisher
	Metrics     *observability.Metrics
}

// Batch is one unit of pipeline work: the candidate papers a search
// produced for a topic, plus the limits to run them under.
type Batch struct {
	// RunID keys checkpoints and events for this batch.
	RunID string

	// TopicSlug is the corpus topic the papers belong to. Registry-driven
	// resolution requires it; with an empty slug the batch is resolved by
	// the duplicate checker alone.
	TopicSlug string

	// Query is the search query that produced the batch, used for
	// relevance ranking.
	Query string

	// Papers are the candidate papers.
	Papers []*domain.Paper

	// Config carries per-run limits and extraction requirements. Nil
	// falls back to service defaults with no requirements.
	Config *domain.RunConfig
}

// PaperResult is one processed paper as delivered on the result stream.
type PaperResult struct {
	// Paper is the submitted paper.
	Paper *domain.Paper

	// PaperID is the registry id assigned or reused at registration,
	// empty in dedup-only mode.
	PaperID string

	// Action is how resolution classified the paper.
	Action domain.ProcessingAction

	// FromCache marks a result served from the extraction cache.
	FromCache bool

	// AbstractOnly marks a result synthesized from the abstract because
	// no PDF was available.
	AbstractOnly bool

	// Extraction holds the field-extraction output, nil when the run
	// requested no requirements.
	Extraction *llm.ExtractionResult

	// PDFPath and MarkdownPath reference stored artifacts, empty when
	// artifact storage is disabled or failed.
	PDFPath      string
	MarkdownPath string

	// Pages is the page count of the converted PDF.
	Pages int

	// Duration is the per-paper processing wall time.
	Duration time.Duration

	key      string
	existing *registry.Entry
}

// workItem is a paper that survived resolution and awaits processing.
type workItem struct {
	paper    *domain.Paper
	action   domain.ProcessingAction
	existing *registry.Entry
	key      string
}

// Pipeline coordinates batch runs. Safe for concurrent use; Stats reports
// on the most recently started run.
type Pipeline struct {
	cfg    Config
	logger zerolog.Logger

	registry *registry.Store
	checks   *checkpoint.Store
	pdf      PDFExtractor
	fields   FieldExtractor
	cache    ExtractionCache
	dedup    DuplicateChecker
	ranker   RelevanceRanker
	events   EventPublisher
	metrics  *observability.Metrics

	downloadGate *gate
	convertGate  *gate
	llmGate      *gate

	active atomic.Int32

	mu      sync.Mutex
	tracker *statsTracker
	queue   chan workItem
}

// New creates a pipeline from the given configuration and collaborators.
func New(cfg Config, c Collaborators, logger zerolog.Logger) *Pipeline {
	cfg = cfg.withDefaults()
	checks := c.Checkpoints
	if checks == nil {
		checks = checkpoint.NewStore(checkpoint.Config{}, logger)
	}
	return &Pipeline{
		cfg:          cfg,
		logger:       logger.With().Str("component", "pipeline").Logger(),
		registry:     c.Registry,
		checks:       checks,
		pdf:          c.PDF,
		fields:       c.Fields,
		cache:        c.Cache,
		dedup:        c.Dedup,
		ranker:       c.Ranker,
		events:       c.Events,
		metrics:      c.Metrics,
		downloadGate: newGate(cfg.MaxDownloads),
		convertGate:  newGate(cfg.MaxConversions),
		llmGate:      newGate(cfg.MaxLLMCalls),
	}
}

// ProcessBatch starts a run over the batch and returns the result stream.
// The channel delivers per-paper results in completion order and is
// closed when the run finishes; the caller must consume it until it
// closes. Failed papers are counted and logged but never appear on the
// stream.
func (p *Pipeline) ProcessBatch(ctx context.Context, batch Batch) (<-chan PaperResult, error) {
	if strings.TrimSpace(batch.RunID) == "" {
		return nil, domain.NewValidationError("run_id", "must not be empty")
	}
	out := make(chan PaperResult)
	go p.run(ctx, batch, out)
	return out, nil
}

// Stats returns a snapshot of the most recently started run. The zero
// Stats is returned before any run has started.
func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	tracker, queue := p.tracker, p.queue
	p.mu.Unlock()
	if tracker == nil {
		return Stats{}
	}
	depth := 0
	if queue != nil {
		depth = len(queue)
	}
	return tracker.snapshot(depth, int(p.active.Load()))
}

func (p *Pipeline) setRun(tracker *statsTracker) {
	p.mu.Lock()
	p.tracker = tracker
	p.queue = nil
	p.mu.Unlock()
}

func (p *Pipeline) setQueue(queue chan workItem) {
	p.mu.Lock()
	p.queue = queue
	p.mu.Unlock()
}

// run executes the batch lifecycle: resolve, rank, resume, execute,
// collect, finish. It owns the output channel and closes it on return.
func (p *Pipeline) run(ctx context.Context, batch Batch, out chan<- PaperResult) {
	defer close(out)

	logger := p.logger.With().Str("run_id", batch.RunID).Str("topic", batch.TopicSlug).Logger()
	tracker := newStatsTracker()
	p.setRun(tracker)
	p.metrics.RecordRunStarted()

	rc := p.runConfig(batch)
	papers := batch.Papers
	if rc.MaxPapers > 0 && len(papers) > rc.MaxPapers {
		logger.Info().
			Int("submitted", len(papers)).
			Int("max_papers", rc.MaxPapers).
			Msg("capping batch at configured paper limit")
		papers = papers[:rc.MaxPapers]
	}
	tracker.setSubmitted(len(papers))
	p.metrics.RecordPapersSubmitted(len(papers))

	items := p.resolve(papers, batch.TopicSlug, rc.Requirements, tracker, logger)
	items = p.rank(items, batch.Query, logger)

	// Resume: subtract papers an earlier interrupted run already finished.
	var processed []string
	if prior, ok := p.checks.Load(batch.RunID); ok {
		done := make(map[string]struct{}, len(prior.ProcessedPaperIDs))
		for _, id := range prior.ProcessedPaperIDs {
			done[id] = struct{}{}
		}
		kept := items[:0]
		for _, item := range items {
			if _, seen := done[item.key]; seen {
				continue
			}
			kept = append(kept, item)
		}
		resumed := len(items) - len(kept)
		items = kept
		processed = append(processed, prior.ProcessedPaperIDs...)
		tracker.addResumed(resumed)
		if resumed > 0 {
			p.metrics.RecordRunResumed(resumed)
			logger.Info().
				Int("already_processed", resumed).
				Int("remaining", len(items)).
				Msg("resuming run from checkpoint")
		}
	}

	p.publish(ctx, batch, domain.EventTypeRunStarted, domain.RunStartedPayload{
		RunID:            batch.RunID,
		TopicSlug:        batch.TopicSlug,
		PapersRequested:  len(papers),
		MaxDownloads:     p.cfg.MaxDownloads,
		RequirementsHash: domain.ComputeRequirementsHash(rc.Requirements),
		ResumedFrom:      len(processed),
	}, logger)
	logger.Info().
		Int("papers", len(papers)).
		Int("to_process", len(items)).
		Msg("starting batch run")

	outcome := p.execute(ctx, batch, rc, items, processed, tracker, out, logger)

	if ctx.Err() != nil {
		// Keep the checkpoint so the next run with this id resumes.
		if err := p.checks.Save(batch.RunID, outcome.processed, false); err != nil {
			logger.Warn().Err(err).Msg("failed to save checkpoint")
		} else if p.checks.Enabled() {
			p.metrics.RecordCheckpointSave()
		}
		p.publish(ctx, batch, domain.EventTypeRunFailed, domain.RunFailedPayload{
			RunID:     batch.RunID,
			TopicSlug: batch.TopicSlug,
			Error:     ctx.Err().Error(),
			Phase:     "execute",
		}, logger)
		p.metrics.RecordRunFailed(p.Stats().Elapsed.Seconds())
		logger.Warn().Err(ctx.Err()).Msg("run cancelled; checkpoint preserved for resume")
		return
	}

	// Finish: final checkpoint, refresh the dedup index with this run's
	// successes, then clear the checkpoint.
	if err := p.checks.Save(batch.RunID, outcome.processed, true); err != nil {
		logger.Warn().Err(err).Msg("failed to save checkpoint")
	} else if p.checks.Enabled() {
		p.metrics.RecordCheckpointSave()
	}
	if p.dedup != nil && len(outcome.papers) > 0 {
		p.dedup.UpdateIndex(outcome.papers)
	}
	if err := p.checks.Clear(batch.RunID); err != nil {
		logger.Warn().Err(err).Msg("failed to clear checkpoint")
	}
	if p.registry != nil {
		if err := p.registry.Flush(); err != nil {
			logger.Warn().Err(err).Msg("failed to flush registry")
		}
		p.metrics.SetRegistryEntries(p.registry.Stats().TotalEntries)
	}

	stats := p.Stats()
	p.metrics.RecordRunCompleted(stats.Elapsed.Seconds())
	p.publish(ctx, batch, domain.EventTypeRunCompleted, domain.RunCompletedPayload{
		RunID:           batch.RunID,
		TopicSlug:       batch.TopicSlug,
		PapersProcessed: stats.Completed,
		PapersFailed:    stats.Failed,
		PapersSkipped:   stats.Skipped + stats.MapOnly + stats.Deduplicated,
		PDFsDownloaded:  stats.PDFDownloads,
		Duration:        stats.Elapsed,
	}, logger)
	logger.Info().
		Int("completed", stats.Completed).
		Int("failed", stats.Failed).
		Int("skipped", stats.Skipped).
		Int("deduplicated", stats.Deduplicated).
		Int("pdf_downloads", stats.PDFDownloads).
		Dur("elapsed", stats.Elapsed).
		Msg("batch run finished")
}

// runConfig merges the batch's run config over the service defaults.
func (p *Pipeline) runConfig(batch Batch) domain.RunConfig {
	rc := domain.RunConfig{
		MaxPapers:          p.cfg.MaxPapers,
		CheckpointInterval: p.cfg.CheckpointInterval,
		QueueCapacity:      p.cfg.QueueCapacity,
	}
	if batch.Config == nil {
		return rc
	}
	override := *batch.Config
	if override.MaxPapers == 0 {
		override.MaxPapers = rc.MaxPapers
	}
	if override.CheckpointInterval <= 0 {
		override.CheckpointInterval = rc.CheckpointInterval
	}
	if override.QueueCapacity <= 0 {
		override.QueueCapacity = rc.QueueCapacity
	}
	return override
}

// resolve classifies each paper. With a registry and topic the registry
// decides; MAP_ONLY papers get their topic affiliation immediately and
// SKIP papers are dropped. Without a registry the duplicate checker
// screens the batch and survivors are fully processed.
func (p *Pipeline) resolve(papers []*domain.Paper, topic string, reqs []domain.ExtractionRequirement, tracker *statsTracker, logger zerolog.Logger) []workItem {
	items := make([]workItem, 0, len(papers))

	if p.registry != nil && topic != "" {
		for _, paper := range papers {
			if paper == nil {
				continue
			}
			action, entry := p.registry.DetermineAction(paper, topic, reqs)
			p.metrics.RecordResolution(string(action))
			switch action {
			case domain.ActionSkip:
				tracker.incSkipped()
				logger.Debug().Str("paper", resumeKey(paper, entry)).Msg("paper already processed; skipping")
			case domain.ActionMapOnly:
				tracker.incMapOnly()
				if entry != nil {
					added := p.registry.AddTopicAffiliation(entry.PaperID, topic)
					logger.Debug().
						Str("paper_id", entry.PaperID).
						Bool("added", added).
						Msg("mapped existing paper to topic")
				}
			default:
				items = append(items, workItem{
					paper:    paper,
					action:   action,
					existing: entry,
					key:      resumeKey(paper, entry),
				})
			}
		}
		return items
	}

	unique := papers
	if p.dedup != nil {
		var duplicates []dedup.Duplicate
		unique, duplicates = p.dedup.Partition(papers)
		tracker.addDeduplicated(len(duplicates))
		if len(duplicates) > 0 {
			p.metrics.RecordDuplicates(len(duplicates))
			logger.Info().Int("duplicates", len(duplicates)).Msg("dropped duplicate papers")
		}
	}
	for _, paper := range unique {
		if paper == nil {
			continue
		}
		items = append(items, workItem{
			paper:  paper,
			action: domain.ActionFullProcess,
			key:    resumeKey(paper, nil),
		})
	}
	return items
}

// rank reorders the work items by relevance to the query. Ranking never
// adds or removes papers; a collaborator that does is ignored.
func (p *Pipeline) rank(items []workItem, query string, logger zerolog.Logger) []workItem {
	if p.ranker == nil || strings.TrimSpace(query) == "" || len(items) < 2 {
		return items
	}
	papers := make([]*domain.Paper, len(items))
	byPaper := make(map[*domain.Paper]workItem, len(items))
	for i, item := range items {
		papers[i] = item.paper
		byPaper[item.paper] = item
	}
	ranked := p.ranker.Rank(papers, query)
	if len(ranked) != len(items) {
		logger.Warn().Msg("ranker changed paper count; keeping original order")
		return items
	}
	ordered := make([]workItem, 0, len(items))
	for _, paper := range ranked {
		item, ok := byPaper[paper]
		if !ok {
			logger.Warn().Msg("ranker returned unknown paper; keeping original order")
			return items
		}
		ordered = append(ordered, item)
	}
	return ordered
}

// runOutcome is what execute hands back to the finish step.
type runOutcome struct {
	// processed is the accumulated checkpoint id list, prior run
	// included.
	processed []string
	// papers are this run's successfully processed papers.
	papers []*domain.Paper
}

// execute fans the work items out to the worker pool and collects the
// results: registry persistence, periodic checkpoints, and forwarding to
// the caller's stream all happen here, on the collect side.
func (p *Pipeline) execute(ctx context.Context, batch Batch, rc domain.RunConfig, items []workItem, processed []string, tracker *statsTracker, out chan<- PaperResult, logger zerolog.Logger) runOutcome {
	outcome := runOutcome{processed: processed}
	if len(items) == 0 {
		return outcome
	}

	queue := make(chan workItem, rc.QueueCapacity)
	results := make(chan PaperResult)
	p.setQueue(queue)
	defer p.setQueue(nil)

	workers := p.cfg.MaxDownloads
	if workers > len(items) {
		workers = len(items)
	}
	logger.Debug().Int("workers", workers).Int("queue_capacity", rc.QueueCapacity).Msg("starting worker pool")

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.worker(ctx, batch, rc, queue, results, tracker, logger)
		}()
	}

	// Producer: blocks when the queue is full, which is the backpressure
	// bounding memory. Closing the queue tells the workers to drain out.
	go func() {
		defer close(queue)
		for _, item := range items {
			select {
			case queue <- item:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	completions := 0
	for res := range results {
		res = p.register(res, batch, rc, logger)
		outcome.processed = append(outcome.processed, res.key)
		outcome.papers = append(outcome.papers, res.Paper)
		completions++
		tracker.incCompleted()
		p.metrics.RecordPaperProcessed(res.contentSource(), res.Duration.Seconds())

		if completions%rc.CheckpointInterval == 0 {
			if err := p.checks.Save(batch.RunID, outcome.processed, false); err != nil {
				logger.Warn().Err(err).Msg("failed to save checkpoint")
			} else if p.checks.Enabled() {
				p.metrics.RecordCheckpointSave()
			}
		}

		p.publish(ctx, batch, domain.EventTypePaperProcessed, domain.PaperProcessedPayload{
			RunID:         batch.RunID,
			PaperID:       res.key,
			Action:        res.Action,
			ContentSource: res.contentSource(),
			FieldsFilled:  res.fieldsFilled(),
			Duration:      res.Duration,
		}, logger)

		select {
		case out <- res:
		case <-ctx.Done():
		}
	}
	return outcome
}

// worker drains the queue, processing one paper at a time. Failures are
// counted and logged here; only successes reach the results channel.
func (p *Pipeline) worker(ctx context.Context, batch Batch, rc domain.RunConfig, queue <-chan workItem, results chan<- PaperResult, tracker *statsTracker, logger zerolog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case item, ok := <-queue:
			if !ok {
				return
			}
			p.active.Add(1)
			res, err := p.processPaper(ctx, rc, item, tracker, logger)
			p.active.Add(-1)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				tracker.incFailed()
				p.metrics.RecordPaperFailed(failureStage(err))
				logger.Warn().Err(err).Str("paper", item.key).Msg("paper processing failed")
				p.publish(ctx, batch, domain.EventTypePaperFailed, domain.PaperFailedPayload{
					RunID:   batch.RunID,
					PaperID: item.key,
					Error:   err.Error(),
					Stage:   failureStage(err),
				}, logger)
				continue
			}
			select {
			case results <- *res:
			case <-ctx.Done():
				return
			}
		}
	}
}

// register persists a successful result to the registry. On backfill the
// existing entry is carried forward so the paper keeps its id and any
// artifact paths not replaced by this run.
func (p *Pipeline) register(res PaperResult, batch Batch, rc domain.RunConfig, logger zerolog.Logger) PaperResult {
	if p.registry == nil || batch.TopicSlug == "" {
		return res
	}
	entry, err := p.registry.RegisterPaper(res.Paper, batch.TopicSlug, rc.Requirements, res.PDFPath, res.MarkdownPath, res.existing)
	if err != nil {
		logger.Error().Err(err).Str("paper", res.key).Msg("failed to register processed paper")
		return res
	}
	res.PaperID = entry.PaperID
	return res
}

// publish emits a pipeline event, best effort. Terminal events still go
// out after cancellation, so the publish context is detached.
func (p *Pipeline) publish(ctx context.Context, batch Batch, eventType string, payload interface{}, logger zerolog.Logger) {
	if p.events == nil {
		return
	}
	event, err := domain.NewPipelineEvent(eventType, batch.RunID, batch.TopicSlug, payload)
	if err != nil {
		logger.Warn().Err(err).Str("event_type", eventType).Msg("failed to build pipeline event")
		return
	}
	if err := p.events.Publish(context.WithoutCancel(ctx), event); err != nil {
		p.metrics.RecordEventPublishFailed()
		logger.Warn().Err(err).Str("event_type", eventType).Msg("failed to publish pipeline event")
		return
	}
	p.metrics.RecordEventPublished(eventType)
}

// resumeKey is the stable id recorded in checkpoints and used as the
// extraction cache key. Registry-known papers keep their registry id;
// otherwise the paper's primary identifier, falling back to the
// normalized title.
func resumeKey(paper *domain.Paper, entry *registry.Entry) string {
	if entry != nil && entry.PaperID != "" {
		return entry.PaperID
	}
	if id := paper.PrimaryIdentifier(); id != "" {
		return id
	}
	return "title:" + domain.NormalizeTitle(paper.Title)
}

func (r PaperResult) contentSource() string {
	switch {
	case r.FromCache:
		return "cache"
	case r.AbstractOnly:
		return "abstract"
	default:
		return "pdf"
	}
}

func (r PaperResult) fieldsFilled() int {
	if r.Extraction == nil {
		return 0
	}
	return r.Extraction.FilledFields()
}
