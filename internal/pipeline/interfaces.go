package pipeline

import (
	"context"

	"github.com/litforge/paper-corpus-service/internal/dedup"
	"github.com/litforge/paper-corpus-service/internal/domain"
	"github.com/litforge/paper-corpus-service/internal/llm"
	"github.com/litforge/paper-corpus-service/internal/pdf"
)

// PDFExtractor fetches a paper's full text and converts it to markdown.
// Fetch performs network I/O and is called under the download gate;
// Convert is CPU-bound and is called under the conversion gate.
type PDFExtractor interface {
	Fetch(ctx context.Context, paper *domain.Paper) (*pdf.DownloadResult, error)
	Convert(paper *domain.Paper, dl *pdf.DownloadResult) *pdf.Result
}

// FieldExtractor answers structured extraction requests against paper
// markdown. Satisfied by the llm package clients.
type FieldExtractor interface {
	ExtractFields(ctx context.Context, req llm.ExtractionRequest) (*llm.ExtractionResult, error)
}

// ExtractionCache stores extraction results keyed by paper id and
// requirements hash. A read error is reported so the pipeline can log
// it, but is always treated as a miss.
type ExtractionCache interface {
	Get(ctx context.Context, paperID, requirementsHash string) (*llm.ExtractionResult, bool, error)
	Set(ctx context.Context, paperID, requirementsHash string, result *llm.ExtractionResult) error
}

// DuplicateChecker screens a batch against papers seen in earlier runs.
// It is the resolution collaborator when no registry is configured, and
// its index is refreshed with the run's successes either way.
type DuplicateChecker interface {
	Partition(papers []*domain.Paper) (unique []*domain.Paper, duplicates []dedup.Duplicate)
	UpdateIndex(papers []*domain.Paper)
}

// RelevanceRanker orders papers by relevance to the originating query.
// Ranking must only reorder; it never drops papers.
type RelevanceRanker interface {
	Rank(papers []*domain.Paper, query string) []*domain.Paper
}

// EventPublisher emits pipeline lifecycle events. Publish failures are
// logged and never fail a run.
type EventPublisher interface {
	Publish(ctx context.Context, event *domain.PipelineEvent) error
}
