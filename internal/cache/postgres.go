package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/litforge/paper-corpus-service/internal/domain"
	"github.com/litforge/paper-corpus-service/internal/llm"
)

// Compile-time interface verification.
var _ Cache = (*PgCache)(nil)

// PgCache is a PostgreSQL-backed cache over the extraction_cache table.
// It accepts a DBTX so it works with both a pool and a transaction.
type PgCache struct {
	db DBTX
}

// NewPgCache creates a PostgreSQL-backed cache.
func NewPgCache(db DBTX) *PgCache {
	return &PgCache{db: db}
}

// Get returns the cached result for the paper and requirement set.
func (c *PgCache) Get(ctx context.Context, paperID, requirementsHash string) (*llm.ExtractionResult, bool, error) {
	query := `
		SELECT result
		FROM extraction_cache
		WHERE paper_id = $1 AND requirements_hash = $2`

	var raw []byte
	err := c.db.QueryRow(ctx, query, paperID, requirementsHash).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read cache entry: %w", err)
	}

	var result llm.ExtractionResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, false, fmt.Errorf("failed to parse cache entry: %w", err)
	}

	return &result, true, nil
}

// Set stores the result with an upsert, replacing any previous entry for
// the same (paper id, requirements hash) pair.
func (c *PgCache) Set(ctx context.Context, paperID, requirementsHash string, result *llm.ExtractionResult) error {
	if paperID == "" {
		return domain.NewValidationError("paperID", "paper id is required")
	}
	if requirementsHash == "" {
		return domain.NewValidationError("requirementsHash", "requirements hash is required")
	}
	if result == nil {
		return domain.NewValidationError("result", "result cannot be nil")
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal extraction result: %w", err)
	}

	query := `
		INSERT INTO extraction_cache (paper_id, requirements_hash, result, model, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
		ON CONFLICT (paper_id, requirements_hash) DO UPDATE SET
			result = EXCLUDED.result,
			model = EXCLUDED.model,
			updated_at = now()`

	_, err = c.db.Exec(ctx, query, paperID, requirementsHash, payload, result.Model)
	if err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}

	return nil
}
