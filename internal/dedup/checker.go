package dedup

import (
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/litforge/paper-corpus-service/internal/domain"
)

// MatchType identifies which index flagged a paper as a duplicate.
type MatchType string

// Match types.
const (
	// MatchIdentifier means a DOI or provider id was already indexed.
	MatchIdentifier MatchType = "identifier"
	// MatchTitle means the normalized title matched an indexed paper.
	MatchTitle MatchType = "title"
)

// CheckResult contains the result of a duplicate check for a single paper.
type CheckResult struct {
	// IsDuplicate indicates whether the paper matched an indexed one.
	IsDuplicate bool

	// DuplicateOf is the identity label of the matched paper: its primary
	// identifier, or a title-derived label when it had none.
	DuplicateOf string

	// MatchType names the index that produced the match.
	MatchType MatchType

	// Score is the title similarity of the match. Identifier matches
	// report 1.0.
	Score float64
}

// Duplicate pairs a rejected paper with the match that rejected it.
type Duplicate struct {
	Paper *domain.Paper
	Match CheckResult
}

// CheckerConfig holds the configuration for the duplicate checker.
type CheckerConfig struct {
	// TitleThreshold is the trigram title similarity above which two
	// papers are considered potential duplicates. Default: 0.95.
	TitleThreshold float64

	// AuthorThreshold is the author overlap required to confirm a
	// title-similarity match when both papers carry author lists.
	// Default: 0.5.
	AuthorThreshold float64
}

// indexedPaper is one previously seen paper, reduced to what matching needs.
type indexedPaper struct {
	label   string
	title   string
	authors []domain.Author
}

// Checker detects duplicate papers against an in-memory index of everything
// it has been shown. Matching runs in two tiers: exact identifier keys
// first, then normalized-title similarity confirmed by author overlap.
//
// Partition never mutates the shared index; call UpdateIndex with the
// papers that actually survived processing.
type Checker struct {
	mu          sync.RWMutex
	cfg         CheckerConfig
	identifiers map[string]string
	entries     []indexedPaper
	logger      zerolog.Logger
}

// NewChecker creates a new Checker with the given configuration.
func NewChecker(cfg CheckerConfig, logger zerolog.Logger) *Checker {
	if cfg.TitleThreshold <= 0 {
		cfg.TitleThreshold = 0.95
	}
	if cfg.AuthorThreshold <= 0 {
		cfg.AuthorThreshold = 0.5
	}

	return &Checker{
		cfg:         cfg,
		identifiers: make(map[string]string),
		logger:      logger,
	}
}

// identityLabel names a paper for DuplicateOf reporting.
func identityLabel(p *domain.Paper) string {
	if id := p.PrimaryIdentifier(); id != "" {
		return id
	}
	return "title:" + domain.NormalizeTitle(p.Title)
}

// identifierKeys returns every identity key the paper can be indexed under.
// Unlike the registry, the checker is lenient: malformed identifiers are
// simply not indexed rather than rejected.
func identifierKeys(p *domain.Paper) []string {
	var keys []string

	if doi := strings.TrimSpace(p.DOI); doi != "" {
		keys = append(keys, domain.ProviderKey(domain.ProviderDOI, strings.ToLower(doi)))
	}

	if sid := strings.TrimSpace(p.SourceID); sid != "" {
		provider, normalized := domain.InferProvider(sid)
		key := domain.ProviderKey(provider, normalized)
		if len(keys) == 0 || keys[0] != key {
			keys = append(keys, key)
		}
	}

	return keys
}

// Partition splits a batch into papers not seen before and duplicates.
// Duplicates are detected against both the shared index and earlier papers
// in the same batch, so a batch containing the same paper twice keeps only
// the first occurrence. The shared index is not modified.
func (c *Checker) Partition(papers []*domain.Paper) (unique []*domain.Paper, duplicates []Duplicate) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	batchIdentifiers := make(map[string]string)
	var batchEntries []indexedPaper

	for _, p := range papers {
		if p == nil {
			continue
		}

		result := c.check(p, batchIdentifiers, batchEntries)
		if result.IsDuplicate {
			c.logger.Debug().
				Str("title", p.Title).
				Str("duplicate_of", result.DuplicateOf).
				Str("match_type", string(result.MatchType)).
				Float64("score", result.Score).
				Msg("duplicate paper dropped")
			duplicates = append(duplicates, Duplicate{Paper: p, Match: result})
			continue
		}

		unique = append(unique, p)

		label := identityLabel(p)
		for _, key := range identifierKeys(p) {
			if _, exists := batchIdentifiers[key]; !exists {
				batchIdentifiers[key] = label
			}
		}
		batchEntries = append(batchEntries, indexedPaper{
			label:   label,
			title:   domain.NormalizeTitle(p.Title),
			authors: p.Authors,
		})
	}

	return unique, duplicates
}

// check evaluates one paper against the shared index plus the batch-local
// view. Callers hold at least the read lock.
func (c *Checker) check(p *domain.Paper, batchIdentifiers map[string]string, batchEntries []indexedPaper) CheckResult {
	// Tier 1: exact identifier match.
	for _, key := range identifierKeys(p) {
		if label, ok := c.identifiers[key]; ok {
			return CheckResult{IsDuplicate: true, DuplicateOf: label, MatchType: MatchIdentifier, Score: 1.0}
		}
		if label, ok := batchIdentifiers[key]; ok {
			return CheckResult{IsDuplicate: true, DuplicateOf: label, MatchType: MatchIdentifier, Score: 1.0}
		}
	}

	// Tier 2: title similarity, confirmed by author overlap when possible.
	title := domain.NormalizeTitle(p.Title)
	if title == "" {
		return CheckResult{}
	}

	if match, ok := c.matchTitle(p, title, c.entries); ok {
		return match
	}
	if match, ok := c.matchTitle(p, title, batchEntries); ok {
		return match
	}

	return CheckResult{}
}

// matchTitle scans candidates for a confirmed title match.
func (c *Checker) matchTitle(p *domain.Paper, title string, candidates []indexedPaper) (CheckResult, bool) {
	for _, candidate := range candidates {
		if candidate.title == "" {
			continue
		}

		score := domain.TitleSimilarity(title, candidate.title)
		if score < c.cfg.TitleThreshold {
			continue
		}

		// Author lists on both sides must agree; with author data missing
		// on either side the title match stands on its own.
		if len(p.Authors) > 0 && len(candidate.authors) > 0 {
			if AuthorOverlap(p.Authors, candidate.authors) < c.cfg.AuthorThreshold {
				continue
			}
		}

		return CheckResult{
			IsDuplicate: true,
			DuplicateOf: candidate.label,
			MatchType:   MatchTitle,
			Score:       score,
		}, true
	}

	return CheckResult{}, false
}

// UpdateIndex adds papers to the shared index. Call it after a run with the
// papers that were successfully processed, so failed papers can be retried
// in a later batch without being flagged against themselves.
func (c *Checker) UpdateIndex(papers []*domain.Paper) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, p := range papers {
		if p == nil {
			continue
		}

		label := identityLabel(p)
		for _, key := range identifierKeys(p) {
			if _, exists := c.identifiers[key]; !exists {
				c.identifiers[key] = label
			}
		}
		c.entries = append(c.entries, indexedPaper{
			label:   label,
			title:   domain.NormalizeTitle(p.Title),
			authors: p.Authors,
		})
	}
}

// IndexSize returns how many papers the shared index holds.
func (c *Checker) IndexSize() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
