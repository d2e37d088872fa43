package httpserver

import (
	"github.com/litforge/paper-corpus-service/internal/domain"
)

// resolveRequest is the JSON request body for previewing work determination.
// Requirements may be empty, in which case known papers with any previous
// extraction hash come back as backfill candidates.
type resolveRequest struct {
	TopicSlug    string                         `json:"topic_slug"`
	Requirements []domain.ExtractionRequirement `json:"requirements,omitempty"`
	Papers       []domain.Paper                 `json:"papers"`
}

// resolveResult is the per-paper outcome of a resolve preview.
type resolveResult struct {
	Title      string  `json:"title"`
	Action     string  `json:"action"`
	Matched    bool    `json:"matched"`
	Method     string  `json:"method,omitempty"`
	Similarity float64 `json:"similarity,omitempty"`
	PaperID    string  `json:"paper_id,omitempty"`
}

type resolveResponse struct {
	TopicSlug string          `json:"topic_slug"`
	Results   []resolveResult `json:"results"`
}
