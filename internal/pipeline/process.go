package pipeline

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/litforge/paper-corpus-service/internal/domain"
	"github.com/litforge/paper-corpus-service/internal/llm"
	"github.com/litforge/paper-corpus-service/internal/pdf"
)

// stageError tags a per-paper failure with the stage it occurred in, so
// failure events can report where processing stopped.
type stageError struct {
	stage string
	err   error
}

func (e *stageError) Error() string {
	return e.stage + ": " + e.err.Error()
}

func (e *stageError) Unwrap() error {
	return e.err
}

func failureStage(err error) string {
	var se *stageError
	if errors.As(err, &se) {
		return se.stage
	}
	return "process"
}

// processPaper runs one paper through cache lookup, content acquisition,
// and field extraction. Each stage holds only its own gate. Collaborator
// calls already in flight run to completion; cancellation is observed
// between queue operations and when acquiring gates.
func (p *Pipeline) processPaper(ctx context.Context, rc domain.RunConfig, item workItem, tracker *statsTracker, logger zerolog.Logger) (*PaperResult, error) {
	started := time.Now()
	wantFields := p.fields != nil && len(rc.Requirements) > 0
	reqHash := domain.ComputeRequirementsHash(rc.Requirements)
	callCtx := context.WithoutCancel(ctx)

	res := &PaperResult{
		Paper:    item.paper,
		Action:   item.action,
		key:      item.key,
		existing: item.existing,
	}

	if p.cache != nil && wantFields {
		cached, ok, err := p.cache.Get(callCtx, item.key, reqHash)
		if err != nil {
			logger.Warn().Err(err).Str("paper", item.key).Msg("cache read failed; treating as miss")
		}
		if ok {
			tracker.incCacheHits()
			p.metrics.RecordCacheHit()
			res.FromCache = true
			res.Extraction = cached
			res.Duration = time.Since(started)
			return res, nil
		}
		p.metrics.RecordCacheMiss()
	}

	markdown := p.paperMarkdown(ctx, callCtx, rc, item, res, tracker, logger)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if markdown == "" {
		return nil, &stageError{stage: "content", err: errors.New("paper has no full text and no abstract")}
	}

	if !wantFields {
		res.Duration = time.Since(started)
		return res, nil
	}

	if err := p.llmGate.acquire(ctx); err != nil {
		return nil, err
	}
	llmStarted := time.Now()
	extraction, err := p.fields.ExtractFields(callCtx, llm.ExtractionRequest{
		Title:        item.paper.Title,
		Markdown:     markdown,
		Requirements: rc.Requirements,
	})
	p.llmGate.release()
	if err != nil {
		p.metrics.RecordLLMRequestFailed()
		return nil, &stageError{stage: "extraction", err: err}
	}
	p.metrics.RecordLLMRequest(extraction.Model, time.Since(llmStarted).Seconds(),
		extraction.InputTokens, extraction.OutputTokens, extraction.CostUSD)
	res.Extraction = extraction

	if p.cache != nil {
		if err := p.cache.Set(callCtx, item.key, reqHash, extraction); err != nil {
			logger.Warn().Err(err).Str("paper", item.key).Msg("failed to write extraction cache entry")
		}
	}

	res.Duration = time.Since(started)
	return res, nil
}

// paperMarkdown produces the markdown the extractor reads: a stored
// artifact on backfill, a freshly downloaded and converted PDF, or the
// abstract fallback. An empty return means no content was available.
func (p *Pipeline) paperMarkdown(ctx, callCtx context.Context, rc domain.RunConfig, item workItem, res *PaperResult, tracker *statsTracker, logger zerolog.Logger) string {
	// Backfill reuses the artifact from the paper's first processing
	// instead of downloading again.
	if item.existing != nil && item.existing.MarkdownPath != "" {
		data, err := os.ReadFile(item.existing.MarkdownPath)
		if err == nil && len(data) > 0 {
			res.PDFPath = item.existing.PDFPath
			res.MarkdownPath = item.existing.MarkdownPath
			return string(data)
		}
		if err != nil {
			logger.Debug().Err(err).Str("paper", item.key).Msg("stored markdown unavailable; reprocessing paper")
		}
	}

	if p.pdf != nil && item.paper.HasPDF() && (!rc.RequireOpenAccess || item.paper.OpenAccess) {
		if md := p.fetchAndConvert(ctx, callCtx, rc, item, res, tracker, logger); md != "" {
			return md
		}
		if ctx.Err() != nil {
			return ""
		}
	}

	if strings.TrimSpace(item.paper.Abstract) != "" {
		res.AbstractOnly = true
		p.metrics.RecordAbstractFallback()
		return pdf.AbstractMarkdown(item.paper.Title, item.paper.Abstract)
	}
	return ""
}

// fetchAndConvert downloads the paper's PDF under the download gate and
// converts it under the conversion gate. Any failure returns "" so the
// caller falls back to the abstract.
func (p *Pipeline) fetchAndConvert(ctx, callCtx context.Context, rc domain.RunConfig, item workItem, res *PaperResult, tracker *statsTracker, logger zerolog.Logger) string {
	if !tracker.reserveDownload(rc.MaxPDFDownloads) {
		logger.Debug().Str("paper", item.key).Msg("pdf download budget exhausted; falling back to abstract")
		return ""
	}
	if err := p.downloadGate.acquire(ctx); err != nil {
		tracker.releaseDownload()
		return ""
	}
	dl, err := p.pdf.Fetch(callCtx, item.paper)
	p.downloadGate.release()
	if err != nil {
		tracker.releaseDownload()
		p.metrics.RecordPDFDownloadFailed()
		logger.Debug().Err(err).Str("paper", item.key).Msg("pdf fetch failed; falling back to abstract")
		return ""
	}
	p.metrics.RecordPDFDownloaded(dl.SizeBytes)

	if err := p.convertGate.acquire(ctx); err != nil {
		return ""
	}
	conv := p.pdf.Convert(item.paper, dl)
	p.convertGate.release()
	if conv == nil || !conv.Success {
		reason := "no conversion result"
		if conv != nil {
			reason = conv.Error
		}
		logger.Debug().Str("paper", item.key).Str("reason", reason).Msg("pdf conversion failed; falling back to abstract")
		return ""
	}

	res.PDFPath = conv.PDFPath
	res.MarkdownPath = conv.MarkdownPath
	res.Pages = conv.Pages
	return conv.Markdown
}
