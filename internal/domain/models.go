// Package domain provides domain models and business logic for the paper corpus service.
package domain

// ProcessingAction is the outcome of work determination for a discovered paper.
// It tells the pipeline what, if anything, still needs to happen.
type ProcessingAction string

const (
	// ActionFullProcess means the paper has never been seen: download,
	// convert, extract, and create a registry entry.
	ActionFullProcess ProcessingAction = "full_process"

	// ActionBackfill means the paper is known but the extraction requirements
	// changed since it was last processed: re-extract, reusing artifacts.
	ActionBackfill ProcessingAction = "backfill"

	// ActionMapOnly means the paper is known and up to date but new to this
	// topic: record the topic affiliation, no processing.
	ActionMapOnly ProcessingAction = "map_only"

	// ActionSkip means the paper is known, up to date, and already affiliated
	// with this topic: nothing to do.
	ActionSkip ProcessingAction = "skip"
)

// NeedsProcessing returns true if the action requires the paper to flow
// through the processing pipeline.
func (a ProcessingAction) NeedsProcessing() bool {
	switch a {
	case ActionFullProcess, ActionBackfill:
		return true
	default:
		return false
	}
}

// MatchMethod identifies which tier of identity resolution produced a match.
type MatchMethod string

const (
	MatchMethodDOI        MatchMethod = "doi"
	MatchMethodProviderID MatchMethod = "provider_id"
	MatchMethodTitle      MatchMethod = "title"
)

// RunStatus represents the lifecycle states of a pipeline run.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusPartial   RunStatus = "partial"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// IsTerminal returns true if the status represents a final state that will not change.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusPartial, RunStatusFailed, RunStatusCancelled:
		return true
	default:
		return false
	}
}

// SourceType represents the discovery source that provided paper data.
type SourceType string

const (
	SourceTypeSemanticScholar SourceType = "semantic_scholar"
	SourceTypeOpenAlex        SourceType = "openalex"
	SourceTypeScopus          SourceType = "scopus"
	SourceTypePubMed          SourceType = "pubmed"
	SourceTypeBioRxiv         SourceType = "biorxiv"
	SourceTypeArXiv           SourceType = "arxiv"
	SourceTypeUnknown         SourceType = "unknown"
)
