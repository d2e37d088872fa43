// Package checkpoint persists per-run progress so interrupted pipeline runs
// resume where they stopped instead of reprocessing completed papers.
package checkpoint

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/litforge/paper-corpus-service/internal/fsutil"
)

// Checkpoint is the persisted progress record for one run.
type Checkpoint struct {
	RunID             string    `json:"run_id"`
	ProcessedPaperIDs []string  `json:"processed_paper_ids"`
	TotalProcessed    int       `json:"total_processed"`
	Completed         bool      `json:"completed"`
	LastUpdated       time.Time `json:"last_updated"`
}

// Config holds checkpoint store configuration.
type Config struct {
	// Dir is the directory holding one checkpoint file per run.
	Dir string

	// Enabled turns checkpointing on. When false every operation is a
	// no-op returning success/empty.
	Enabled bool
}

// unsafeRunIDChars matches everything that must not appear in a filename.
var unsafeRunIDChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// Store reads and writes checkpoint files. Safe for concurrent use within
// one process; two processes must not share a checkpoint directory.
type Store struct {
	dir     string
	enabled bool
	logger  zerolog.Logger

	mu sync.Mutex
}

// NewStore creates a checkpoint store.
func NewStore(cfg Config, logger zerolog.Logger) *Store {
	return &Store{
		dir:     cfg.Dir,
		enabled: cfg.Enabled,
		logger:  logger,
	}
}

// Enabled reports whether checkpointing is active.
func (s *Store) Enabled() bool {
	return s.enabled
}

// path maps a run id to its checkpoint file, flattening any characters that
// are unsafe in filenames.
func (s *Store) path(runID string) string {
	safe := unsafeRunIDChars.ReplaceAllString(runID, "-")
	return filepath.Join(s.dir, "checkpoint_"+safe+".json")
}

// Save writes the checkpoint for a run, overwriting any prior one. The
// write is atomic (temp file, fsync, rename) so a crash never leaves a
// partial checkpoint. A disabled store reports success without writing.
func (s *Store) Save(runID string, processedIDs []string, completed bool) error {
	if !s.enabled {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("failed to create checkpoint directory: %w", err)
	}

	cp := Checkpoint{
		RunID:             runID,
		ProcessedPaperIDs: processedIDs,
		TotalProcessed:    len(processedIDs),
		Completed:         completed,
		LastUpdated:       time.Now().UTC(),
	}

	if err := fsutil.WriteJSONAtomic(s.path(runID), cp); err != nil {
		return err
	}

	s.logger.Debug().
		Str("run_id", runID).
		Int("processed", cp.TotalProcessed).
		Bool("completed", completed).
		Msg("checkpoint saved")
	return nil
}

// Load returns the checkpoint for a run, or ok=false when the store is
// disabled, the file is absent, or its content is unparseable. Corruption
// is logged, never raised; the next Save overwrites the bad file.
func (s *Store) Load(runID string) (*Checkpoint, bool) {
	if !s.enabled {
		return nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var cp Checkpoint
	err := fsutil.ReadJSON(s.path(runID), &cp)
	switch {
	case err == nil:
		return &cp, true
	case os.IsNotExist(err):
		return nil, false
	default:
		s.logger.Warn().Err(err).Str("run_id", runID).Msg("checkpoint unreadable, ignoring")
		return nil, false
	}
}

// ProcessedIDs returns the set of paper ids recorded in the latest
// checkpoint for a run. Empty set when there is no usable checkpoint.
func (s *Store) ProcessedIDs(runID string) map[string]struct{} {
	ids := make(map[string]struct{})

	cp, ok := s.Load(runID)
	if !ok {
		return ids
	}

	for _, id := range cp.ProcessedPaperIDs {
		ids[id] = struct{}{}
	}
	return ids
}

// Clear removes the checkpoint for a run. Idempotent: clearing a run that
// has no checkpoint succeeds.
func (s *Store) Clear(runID string) error {
	if !s.enabled {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path(runID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove checkpoint: %w", err)
	}

	s.logger.Debug().Str("run_id", runID).Msg("checkpoint cleared")
	return nil
}
