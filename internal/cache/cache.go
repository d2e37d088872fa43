// Package cache stores field-extraction results keyed by paper and
// requirement set, so re-running a batch never re-pays for LLM calls that
// already succeeded.
package cache

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/litforge/paper-corpus-service/internal/database"
	"github.com/litforge/paper-corpus-service/internal/llm"
)

// DBTX is the database interface supporting both pool and transaction
// contexts, re-exported so callers wiring the Postgres backend do not need
// to import the database package directly.
type DBTX = database.DBTX

// Backend identifies a cache storage backend.
type Backend string

// Supported cache backends.
const (
	// BackendFile stores one JSON file per entry under a directory.
	BackendFile Backend = "file"
	// BackendPostgres stores entries in the extraction_cache table.
	BackendPostgres Backend = "postgres"
	// BackendDisabled stores nothing; every lookup is a miss.
	BackendDisabled Backend = "disabled"
)

// Cache looks up and stores extraction results. A result is addressed by
// the pair (paper id, requirements hash): changing the requirement set
// invalidates prior entries without touching them.
//
// Get reports misses via the bool, not the error. Backend failures are
// returned as errors so callers can log them and treat the lookup as a
// miss; a cache problem must never fail the paper.
type Cache interface {
	// Get returns the cached result for the paper and requirement set,
	// and whether one was found.
	Get(ctx context.Context, paperID, requirementsHash string) (*llm.ExtractionResult, bool, error)

	// Set stores the result for the paper and requirement set, replacing
	// any previous entry.
	Set(ctx context.Context, paperID, requirementsHash string, result *llm.ExtractionResult) error
}

// Config holds cache configuration.
type Config struct {
	// Backend selects the storage backend. Empty means disabled.
	Backend Backend
	// Dir is the entry directory for the file backend.
	Dir string
}

// New creates a Cache for the configured backend. The db handle is only
// required for the postgres backend.
func New(cfg Config, db DBTX, logger zerolog.Logger) (Cache, error) {
	switch cfg.Backend {
	case BackendFile:
		return NewFileCache(cfg.Dir, logger)
	case BackendPostgres:
		if db == nil {
			return nil, fmt.Errorf("cache backend %q requires a database connection", cfg.Backend)
		}
		return NewPgCache(db), nil
	case BackendDisabled, "":
		return NewDisabled(), nil
	default:
		return nil, fmt.Errorf("unsupported cache backend: %q", cfg.Backend)
	}
}
