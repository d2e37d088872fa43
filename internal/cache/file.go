package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/rs/zerolog"

	"github.com/litforge/paper-corpus-service/internal/domain"
	"github.com/litforge/paper-corpus-service/internal/fsutil"
	"github.com/litforge/paper-corpus-service/internal/llm"
)

// Compile-time interface verification.
var _ Cache = (*FileCache)(nil)

// entry is the on-disk envelope for one cached result. The key fields are
// stored alongside the result and verified on read, so a filename collision
// can never surface the wrong paper's extraction.
type entry struct {
	PaperID          string               `json:"paper_id"`
	RequirementsHash string               `json:"requirements_hash"`
	Result           llm.ExtractionResult `json:"result"`
	CreatedAt        time.Time            `json:"created_at"`
}

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// FileCache stores one JSON file per entry. Writes go through the same
// temp-file-and-rename discipline as the registry, so a crash mid-write
// never leaves a truncated entry behind.
type FileCache struct {
	dir    string
	logger zerolog.Logger
}

// NewFileCache creates a file-backed cache rooted at dir.
func NewFileCache(dir string, logger zerolog.Logger) (*FileCache, error) {
	if dir == "" {
		return nil, domain.NewValidationError("dir", "cache directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	return &FileCache{dir: dir, logger: logger}, nil
}

// entryPath derives the entry filename. The hash prefix keeps names short;
// the full hash inside the entry disambiguates on read.
func (c *FileCache) entryPath(paperID, requirementsHash string) string {
	safeID := unsafeNameChars.ReplaceAllString(paperID, "-")
	hashPart := requirementsHash
	if len(hashPart) > 16 {
		hashPart = hashPart[:16]
	}
	return filepath.Join(c.dir, safeID+"_"+hashPart+".json")
}

// Get returns the cached result for the paper and requirement set. An
// absent or unparseable file is a miss; unparseable entries are logged and
// left in place for the next Set to overwrite.
func (c *FileCache) Get(ctx context.Context, paperID, requirementsHash string) (*llm.ExtractionResult, bool, error) {
	path := c.entryPath(paperID, requirementsHash)

	var e entry
	if err := fsutil.ReadJSON(path, &e); err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		c.logger.Warn().Err(err).Str("path", path).Msg("unreadable cache entry treated as miss")
		return nil, false, nil
	}

	if e.PaperID != paperID || e.RequirementsHash != requirementsHash {
		return nil, false, nil
	}

	return &e.Result, true, nil
}

// Set stores the result, replacing any previous entry for the same key.
func (c *FileCache) Set(ctx context.Context, paperID, requirementsHash string, result *llm.ExtractionResult) error {
	if paperID == "" {
		return domain.NewValidationError("paperID", "paper id is required")
	}
	if requirementsHash == "" {
		return domain.NewValidationError("requirementsHash", "requirements hash is required")
	}
	if result == nil {
		return domain.NewValidationError("result", "result cannot be nil")
	}

	e := entry{
		PaperID:          paperID,
		RequirementsHash: requirementsHash,
		Result:           *result,
		CreatedAt:        time.Now().UTC(),
	}

	if err := fsutil.WriteJSONAtomic(c.entryPath(paperID, requirementsHash), e); err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}

	return nil
}
