package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/litforge/paper-corpus-service/internal/domain"
	"github.com/litforge/paper-corpus-service/internal/fsutil"
)

// DefaultTitleSimilarityThreshold is the minimum trigram Jaccard score for
// the fuzzy title tier to accept a match.
const DefaultTitleSimilarityThreshold = 0.95

// Config holds registry store configuration.
type Config struct {
	// Path is the location of the registry JSON file.
	Path string

	// TitleSimilarityThreshold overrides the fuzzy-match acceptance score.
	// Zero means DefaultTitleSimilarityThreshold.
	TitleSimilarityThreshold float64
}

// Match is the outcome of identity resolution for one paper.
type Match struct {
	// Matched is true when one of the three tiers found an entry.
	Matched bool

	// Entry is a clone of the matched registry entry, nil when unmatched.
	Entry *Entry

	// Method names the tier that produced the match.
	Method domain.MatchMethod

	// Similarity is the title score. Only set for title matches.
	Similarity float64
}

// Store owns the registry file. It loads state once, caches it for the life
// of the instance, and serializes all access behind a mutex so pipeline
// workers can consult it concurrently. Two processes must not share one
// registry file; there is no cross-process locking.
type Store struct {
	path      string
	threshold float64
	logger    zerolog.Logger

	mu     sync.Mutex
	state  *State
	loaded bool
}

// NewStore creates a registry store for the given file path. Nothing is
// read from disk until the first operation.
func NewStore(cfg Config, logger zerolog.Logger) *Store {
	threshold := cfg.TitleSimilarityThreshold
	if threshold <= 0 {
		threshold = DefaultTitleSimilarityThreshold
	}

	return &Store{
		path:      cfg.Path,
		threshold: threshold,
		logger:    logger,
	}
}

// ensureLoadedLocked reads the registry file on first use. A missing file
// yields a fresh empty state. A corrupt file is quarantined to a .backup
// and replaced with a fresh state; corruption is never raised.
func (s *Store) ensureLoadedLocked() {
	if s.loaded {
		return
	}

	state := newState()
	err := fsutil.ReadJSON(s.path, state)
	switch {
	case err == nil:
		state.normalize()
		s.logger.Debug().
			Str("path", s.path).
			Int("entries", len(state.Entries)).
			Msg("registry loaded")
	case os.IsNotExist(err):
		state = newState()
		s.logger.Debug().Str("path", s.path).Msg("no registry file, starting empty")
	default:
		backupPath, qErr := fsutil.QuarantineCorrupt(s.path)
		if qErr != nil {
			s.logger.Error().Err(qErr).Str("path", s.path).Msg("failed to quarantine corrupt registry file")
		} else {
			s.logger.Warn().
				Err(err).
				Str("path", s.path).
				Str("backup", backupPath).
				Msg("registry file corrupt, starting fresh")
		}
		state = newState()
	}

	s.state = state
	s.loaded = true
}

// persistLocked writes the full state atomically with owner-only file and
// directory permissions. Failures leave the prior file untouched and the
// in-memory state authoritative.
func (s *Store) persistLocked() error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create registry directory: %w", err)
	}
	if err := os.Chmod(dir, 0o700); err != nil {
		return fmt.Errorf("failed to tighten registry directory permissions: %w", err)
	}

	return fsutil.WriteJSONAtomic(s.path, s.state)
}

// saveLocked persists and logs on failure. Mutations stay applied in memory
// either way; the next successful save writes them out.
func (s *Store) saveLocked() {
	if err := s.persistLocked(); err != nil {
		s.logger.Error().Err(err).Str("path", s.path).Msg("failed to persist registry, in-memory state remains authoritative")
	}
}

// ResolveIdentity finds the registry entry for a discovered paper using a
// three-tier lookup: exact DOI, exact provider key, then fuzzy title. First
// tier to match wins.
func (s *Store) ResolveIdentity(paper *domain.Paper) Match {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoadedLocked()

	return s.resolveLocked(paper)
}

func (s *Store) resolveLocked(paper *domain.Paper) Match {
	// Tier 1: exact DOI.
	if doi := strings.TrimSpace(paper.DOI); doi != "" {
		if paperID, ok := s.state.DOIIndex[strings.ToLower(doi)]; ok {
			if entry, ok := s.state.Entries[paperID]; ok {
				return Match{Matched: true, Entry: entry.Clone(), Method: domain.MatchMethodDOI}
			}
		}
	}

	// Tier 2: exact provider key inferred from the source id's shape.
	if sid := strings.TrimSpace(paper.SourceID); sid != "" {
		provider, normalized := domain.InferProvider(sid)
		if paperID, ok := s.state.ProviderIDIndex[domain.ProviderKey(provider, normalized)]; ok {
			if entry, ok := s.state.Entries[paperID]; ok {
				return Match{Matched: true, Entry: entry.Clone(), Method: domain.MatchMethodProviderID}
			}
		}
	}

	// Tier 3: best title similarity at or above the threshold.
	var (
		best      *Entry
		bestScore float64
	)
	for _, entry := range s.state.Entries {
		score := domain.TitleSimilarity(paper.Title, entry.TitleNormalized)
		if score < s.threshold {
			continue
		}
		// Tie-break on paper id so map iteration order cannot change the winner.
		if best == nil || score > bestScore || (score == bestScore && entry.PaperID < best.PaperID) {
			best = entry
			bestScore = score
		}
	}
	if best != nil {
		return Match{Matched: true, Entry: best.Clone(), Method: domain.MatchMethodTitle, Similarity: bestScore}
	}

	return Match{}
}

// DetermineAction runs the work-determination state machine for a paper
// seen under a topic with the given extraction requirements:
//
//	no identity match                  -> full_process, no entry
//	match, requirements hash changed   -> backfill
//	match, hash unchanged, topic known -> skip
//	match, hash unchanged, new topic   -> map_only
func (s *Store) DetermineAction(paper *domain.Paper, topicSlug string, requirements []domain.ExtractionRequirement) (domain.ProcessingAction, *Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoadedLocked()

	match := s.resolveLocked(paper)
	if !match.Matched {
		return domain.ActionFullProcess, nil
	}

	hash := domain.ComputeRequirementsHash(requirements)
	if hash != match.Entry.ExtractionTargetHash {
		return domain.ActionBackfill, match.Entry
	}

	if match.Entry.HasTopic(topicSlug) {
		return domain.ActionSkip, match.Entry
	}

	return domain.ActionMapOnly, match.Entry
}

// RegisterPaper writes a paper into the registry. With existing nil this is
// the new-paper path: a fresh entry with a new paper id. With existing set
// this is the backfill path: the persisted copy of that entry is mutated in
// place, preserving its paper id and adopting new artifact paths. The state
// is persisted atomically after the mutation; a failed save is logged and
// the in-memory state stays authoritative.
//
// Validation errors (malformed identifiers, invalid topic slug) are
// returned and nothing is stored.
func (s *Store) RegisterPaper(paper *domain.Paper, topicSlug string, requirements []domain.ExtractionRequirement, pdfPath, markdownPath string, existing *Entry) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoadedLocked()

	var target *Entry
	if existing != nil {
		if err := domain.ValidateTopicSlug(topicSlug); err != nil {
			return nil, err
		}

		// Mutate the persisted copy, not the caller's clone.
		target = s.state.Entries[existing.PaperID]
		if target == nil {
			// Entry vanished (cleared registry); re-adopt the caller's copy
			// so the paper id survives.
			target = existing.Clone()
		}
		target.applyRegistration(paper, topicSlug, requirements, pdfPath, markdownPath)
	} else {
		entry, err := newEntry(paper, topicSlug, requirements, pdfPath, markdownPath)
		if err != nil {
			return nil, err
		}
		target = entry
	}

	s.state.upsertEntry(target)
	s.saveLocked()

	return target.Clone(), nil
}

// AddTopicAffiliation adds a topic to the persisted copy of an entry, looked
// up by paper id. Returns false without writing when the id is unknown, the
// topic is already present, or the slug is invalid.
func (s *Store) AddTopicAffiliation(paperID, topicSlug string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoadedLocked()

	entry, ok := s.state.Entries[paperID]
	if !ok {
		return false
	}

	if err := domain.ValidateTopicSlug(topicSlug); err != nil {
		s.logger.Warn().Err(err).Str("paper_id", paperID).Msg("rejecting topic affiliation")
		return false
	}

	if !entry.addTopic(topicSlug) {
		return false
	}

	s.state.UpdatedAt = time.Now().UTC()
	s.saveLocked()
	return true
}

// GetEntry returns a clone of the entry with the given paper id.
func (s *Store) GetEntry(paperID string) (*Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoadedLocked()

	entry, ok := s.state.Entries[paperID]
	if !ok {
		return nil, false
	}
	return entry.Clone(), true
}

// Clear resets the registry to an empty state and persists it. This is the
// only operation that removes entries.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = newState()
	s.loaded = true

	if err := s.persistLocked(); err != nil {
		s.logger.Error().Err(err).Str("path", s.path).Msg("failed to persist cleared registry")
		return err
	}

	s.logger.Info().Str("path", s.path).Msg("registry cleared")
	return nil
}

// Flush forces a save of the current in-memory state. Used on shutdown.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoadedLocked()

	return s.persistLocked()
}

// Stats summarizes the registry for observability surfaces.
type Stats struct {
	TotalEntries      int            `json:"total_entries"`
	DOIIndexSize      int            `json:"doi_index_size"`
	ProviderIndexSize int            `json:"provider_index_size"`
	TopicCounts       map[string]int `json:"topic_counts"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// Stats returns a snapshot of registry size and topic distribution.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoadedLocked()

	topicCounts := make(map[string]int)
	for _, entry := range s.state.Entries {
		for _, topic := range entry.TopicAffiliations {
			topicCounts[topic]++
		}
	}

	return Stats{
		TotalEntries:      len(s.state.Entries),
		DOIIndexSize:      len(s.state.DOIIndex),
		ProviderIndexSize: len(s.state.ProviderIDIndex),
		TopicCounts:       topicCounts,
		CreatedAt:         s.state.CreatedAt,
		UpdatedAt:         s.state.UpdatedAt,
	}
}
