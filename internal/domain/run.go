package domain

import (
	"time"

	"github.com/google/uuid"
)

// RunConfig holds the configuration parameters for a single corpus run.
// Persisted alongside the checkpoint so that resumed runs replay with the
// same limits.
type RunConfig struct {
	// MaxPapers is the maximum total number of papers to process.
	MaxPapers int `json:"max_papers"`

	// MaxPDFDownloads caps full-text downloads for the run. Papers beyond
	// the cap fall back to abstract-only processing.
	MaxPDFDownloads int `json:"max_pdf_downloads"`

	// CheckpointInterval is the number of processed papers between
	// checkpoint saves.
	CheckpointInterval int `json:"checkpoint_interval,omitempty"`

	// QueueCapacity bounds the pending work queue. Zero means the
	// pipeline default.
	QueueCapacity int `json:"queue_capacity,omitempty"`

	// Requirements are the extraction fields requested for this run.
	Requirements []ExtractionRequirement `json:"requirements,omitempty"`

	// RequireOpenAccess indicates whether to only download open access PDFs.
	RequireOpenAccess bool `json:"require_open_access"`

	// LLMModel specifies the model to use for field extraction.
	LLMModel string `json:"llm_model,omitempty"`

	// Custom holds any additional custom configuration.
	Custom map[string]interface{} `json:"custom,omitempty"`
}

// DefaultRunConfig returns a RunConfig with default values.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		MaxPapers:          100,
		MaxPDFDownloads:    25,
		CheckpointInterval: 10,
		RequireOpenAccess:  false,
	}
}

// CorpusRun represents one execution of the processing pipeline for a topic.
type CorpusRun struct {
	ID uuid.UUID `json:"id"`

	// RunID is the stable string key used for checkpoint files and events.
	RunID string `json:"run_id"`

	// TopicSlug identifies the corpus topic this run belongs to.
	TopicSlug string `json:"topic_slug"`

	// RequirementsHash fingerprints the extraction requirements in effect.
	RequirementsHash string `json:"requirements_hash"`

	// Status and progress
	Status          RunStatus `json:"status"`
	ErrorMessage    string    `json:"error_message,omitempty"`
	PapersRequested int       `json:"papers_requested"`
	PapersProcessed int       `json:"papers_processed"`
	PapersFailed    int       `json:"papers_failed"`
	PapersSkipped   int       `json:"papers_skipped"`
	PDFsDownloaded  int       `json:"pdfs_downloaded"`

	// Configuration for this run.
	Config RunConfig `json:"config"`

	// Timestamps
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewCorpusRun creates a pending run for the given topic. The topic slug is
// validated before the run is constructed.
func NewCorpusRun(runID, topicSlug string, config RunConfig) (*CorpusRun, error) {
	if runID == "" {
		return nil, NewValidationError("run_id", "must not be empty")
	}
	if err := ValidateTopicSlug(topicSlug); err != nil {
		return nil, err
	}

	now := time.Now()
	return &CorpusRun{
		ID:               uuid.New(),
		RunID:            runID,
		TopicSlug:        topicSlug,
		RequirementsHash: ComputeRequirementsHash(config.Requirements),
		Status:           RunStatusPending,
		Config:           config,
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

// Start transitions the run into the running state.
func (r *CorpusRun) Start() {
	now := time.Now()
	r.Status = RunStatusRunning
	r.StartedAt = &now
	r.UpdatedAt = now
}

// Finish transitions the run into a terminal state based on its counters.
// Runs with failures but at least one processed paper end partial; runs
// where everything failed end failed.
func (r *CorpusRun) Finish() {
	now := time.Now()
	switch {
	case r.PapersFailed == 0:
		r.Status = RunStatusCompleted
	case r.PapersProcessed > 0:
		r.Status = RunStatusPartial
	default:
		r.Status = RunStatusFailed
	}
	r.CompletedAt = &now
	r.UpdatedAt = now
}

// Fail transitions the run into the failed state with an error message.
func (r *CorpusRun) Fail(message string) {
	now := time.Now()
	r.Status = RunStatusFailed
	r.ErrorMessage = message
	r.CompletedAt = &now
	r.UpdatedAt = now
}

// Cancel transitions the run into the cancelled state.
func (r *CorpusRun) Cancel() {
	now := time.Now()
	r.Status = RunStatusCancelled
	r.CompletedAt = &now
	r.UpdatedAt = now
}

// Duration returns the duration of the run.
// Returns zero if the run has not started.
// Returns elapsed time from start if still running.
// Returns total duration if completed.
func (r *CorpusRun) Duration() time.Duration {
	if r.StartedAt == nil {
		return 0
	}

	if r.CompletedAt != nil {
		return r.CompletedAt.Sub(*r.StartedAt)
	}

	return time.Since(*r.StartedAt)
}

// IsActive returns true if the run is still in progress.
func (r *CorpusRun) IsActive() bool {
	return !r.Status.IsTerminal()
}

// RunProgress is a snapshot of a run's state used for progress reporting.
type RunProgress struct {
	// RunID references the corpus run.
	RunID string `json:"run_id"`

	// TopicSlug identifies the corpus topic.
	TopicSlug string `json:"topic_slug"`

	// Status is the current run lifecycle status.
	Status RunStatus `json:"status"`

	// PapersRequested is the total number of papers submitted to the run.
	PapersRequested int `json:"papers_requested"`

	// PapersProcessed is the number of papers processed so far.
	PapersProcessed int `json:"papers_processed"`

	// PapersFailed is the number of papers that failed during processing.
	PapersFailed int `json:"papers_failed"`

	// PapersSkipped is the number of papers skipped as already complete.
	PapersSkipped int `json:"papers_skipped"`

	// PDFsDownloaded is the number of full texts fetched so far.
	PDFsDownloaded int `json:"pdfs_downloaded"`

	// StartedAt records when run processing began.
	StartedAt time.Time `json:"started_at"`

	// LastUpdatedAt records when the progress was last updated.
	LastUpdatedAt time.Time `json:"last_updated_at"`
}
