package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event type constants for pipeline events.
const (
	EventTypeRunStarted     = "run.started"
	EventTypeRunCompleted   = "run.completed"
	EventTypeRunFailed      = "run.failed"
	EventTypePaperProcessed = "paper.processed"
	EventTypePaperFailed    = "paper.failed"
)

// PipelineEvent is the envelope for events published to the event stream.
type PipelineEvent struct {
	EventID      string                 `json:"event_id"`
	EventVersion int                    `json:"event_version"`
	EventType    string                 `json:"event_type"`
	RunID        string                 `json:"run_id"`
	TopicSlug    string                 `json:"topic_slug"`
	Payload      json.RawMessage        `json:"payload"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
}

// NewPipelineEvent creates a new pipeline event with the given parameters.
// The payload is JSON-serialized automatically.
func NewPipelineEvent(eventType, runID, topicSlug string, payload interface{}) (*PipelineEvent, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &PipelineEvent{
		EventID:      uuid.New().String(),
		EventVersion: 1,
		EventType:    eventType,
		RunID:        runID,
		TopicSlug:    topicSlug,
		Payload:      payloadBytes,
		CreatedAt:    time.Now(),
	}, nil
}

// WithMetadata sets the metadata on the event.
func (e *PipelineEvent) WithMetadata(metadata map[string]interface{}) *PipelineEvent {
	e.Metadata = metadata
	return e
}

// RunStartedPayload is the payload for run.started events.
type RunStartedPayload struct {
	RunID            string `json:"run_id"`
	TopicSlug        string `json:"topic_slug"`
	PapersRequested  int    `json:"papers_requested"`
	MaxDownloads     int    `json:"max_downloads"`
	RequirementsHash string `json:"requirements_hash"`
	ResumedFrom      int    `json:"resumed_from,omitempty"`
}

// RunCompletedPayload is the payload for run.completed events.
type RunCompletedPayload struct {
	RunID           string        `json:"run_id"`
	TopicSlug       string        `json:"topic_slug"`
	PapersProcessed int           `json:"papers_processed"`
	PapersFailed    int           `json:"papers_failed"`
	PapersSkipped   int           `json:"papers_skipped"`
	PDFsDownloaded  int           `json:"pdfs_downloaded"`
	Duration        time.Duration `json:"duration_ns"`
}

// RunFailedPayload is the payload for run.failed events.
type RunFailedPayload struct {
	RunID     string `json:"run_id"`
	TopicSlug string `json:"topic_slug"`
	Error     string `json:"error"`
	Phase     string `json:"phase"`
}

// PaperProcessedPayload is the payload for paper.processed events.
type PaperProcessedPayload struct {
	RunID         string           `json:"run_id"`
	PaperID       string           `json:"paper_id"`
	Action        ProcessingAction `json:"action"`
	ContentSource string           `json:"content_source"`
	FieldsFilled  int              `json:"fields_filled"`
	Duration      time.Duration    `json:"duration_ns"`
}

// PaperFailedPayload is the payload for paper.failed events.
type PaperFailedPayload struct {
	RunID   string `json:"run_id"`
	PaperID string `json:"paper_id"`
	Error   string `json:"error"`
	Stage   string `json:"stage"`
}
