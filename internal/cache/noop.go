package cache

import (
	"context"

	"github.com/litforge/paper-corpus-service/internal/llm"
)

// Compile-time interface verification.
var _ Cache = (*Disabled)(nil)

// Disabled is a Cache that stores nothing. Every Get is a miss and every
// Set succeeds silently.
type Disabled struct{}

// NewDisabled creates a disabled cache.
func NewDisabled() *Disabled {
	return &Disabled{}
}

// Get always reports a miss.
func (*Disabled) Get(ctx context.Context, paperID, requirementsHash string) (*llm.ExtractionResult, bool, error) {
	return nil, false, nil
}

// Set discards the result.
func (*Disabled) Set(ctx context.Context, paperID, requirementsHash string, result *llm.ExtractionResult) error {
	return nil
}
