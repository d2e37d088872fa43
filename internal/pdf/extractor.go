package pdf

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/litforge/paper-corpus-service/internal/domain"
	"github.com/litforge/paper-corpus-service/internal/fsutil"
)

// Result is the outcome of turning a paper's PDF into markdown.
type Result struct {
	// Success reports whether usable markdown was produced.
	Success bool
	// Markdown is the rendered document. Empty unless Success.
	Markdown string
	// PDFPath is where the raw PDF was stored, when artifact storage is
	// configured and the write succeeded.
	PDFPath string
	// MarkdownPath is where the markdown was stored, under the same rules.
	MarkdownPath string
	// Pages is the number of pages text was read from.
	Pages int
	// ContentHash is the SHA-256 hex digest of the PDF bytes.
	ContentHash string
	// Error describes the failure when Success is false.
	Error string
}

// ExtractorConfig holds extractor configuration.
type ExtractorConfig struct {
	// Downloader configures the underlying HTTP downloader.
	Downloader DownloaderConfig
	// StorageDir is where PDFs and markdown files are written. Empty
	// disables artifact storage; extraction still works in-memory.
	StorageDir string
	// MaxPages limits how many pages are read per document. Zero reads all.
	MaxPages int
}

// Extractor downloads open-access PDFs and converts them to markdown.
// Download and Convert are separate steps so callers can bound network and
// CPU concurrency independently.
type Extractor struct {
	downloader *Downloader
	storageDir string
	maxPages   int
	logger     zerolog.Logger
}

// NewExtractor creates a new Extractor.
func NewExtractor(cfg ExtractorConfig, logger zerolog.Logger) *Extractor {
	return &Extractor{
		downloader: NewDownloader(cfg.Downloader),
		storageDir: cfg.StorageDir,
		maxPages:   cfg.MaxPages,
		logger:     logger,
	}
}

// Fetch downloads the paper's open-access PDF. Callers are expected to hold
// whatever download concurrency limit they enforce across this call.
func (e *Extractor) Fetch(ctx context.Context, paper *domain.Paper) (*DownloadResult, error) {
	if !paper.HasPDF() {
		return nil, fmt.Errorf("%w: paper has no PDF URL", ErrDownloadFailed)
	}
	return e.downloader.Download(ctx, strings.TrimSpace(paper.PDFURL))
}

// Convert extracts text from downloaded PDF bytes and renders it as
// markdown. Failures are reported in the result, not raised: a Result with
// Success=false tells the caller to fall back to the paper's abstract.
func (e *Extractor) Convert(paper *domain.Paper, dl *DownloadResult) *Result {
	text, pages, err := extractPlainText(dl.Content, e.maxPages)
	if err != nil {
		return &Result{Success: false, ContentHash: dl.ContentHash, Error: err.Error()}
	}

	if len(strings.TrimSpace(text)) < minTextLength {
		return &Result{
			Success:     false,
			ContentHash: dl.ContentHash,
			Error:       fmt.Sprintf("extracted text too short (%d chars), likely scanned or encrypted", len(strings.TrimSpace(text))),
		}
	}

	result := &Result{
		Success:     true,
		Markdown:    RenderMarkdown(paper.Title, text),
		Pages:       pages,
		ContentHash: dl.ContentHash,
	}

	e.storeArtifacts(paper, dl, result)

	return result
}

var unsafeSlugChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// artifactSlug derives a filesystem-safe name for the paper's stored files.
func artifactSlug(paper *domain.Paper, contentHash string) string {
	id := paper.PrimaryIdentifier()
	if id == "" {
		if len(contentHash) >= 16 {
			return contentHash[:16]
		}
		return contentHash
	}
	return unsafeSlugChars.ReplaceAllString(id, "-")
}

// storeArtifacts writes the PDF and markdown files when a storage dir is
// configured. Write failures are logged and the in-memory result stands;
// the entry simply carries no artifact paths.
func (e *Extractor) storeArtifacts(paper *domain.Paper, dl *DownloadResult, result *Result) {
	if e.storageDir == "" {
		return
	}

	slug := artifactSlug(paper, dl.ContentHash)

	pdfPath := filepath.Join(e.storageDir, slug+".pdf")
	if err := fsutil.WriteFileAtomic(pdfPath, dl.Content, 0o644); err != nil {
		e.logger.Warn().Err(err).Str("path", pdfPath).Msg("failed to store pdf artifact")
	} else {
		result.PDFPath = pdfPath
	}

	mdPath := filepath.Join(e.storageDir, slug+".md")
	if err := fsutil.WriteFileAtomic(mdPath, []byte(result.Markdown), 0o644); err != nil {
		e.logger.Warn().Err(err).Str("path", mdPath).Msg("failed to store markdown artifact")
	} else {
		result.MarkdownPath = mdPath
	}
}
