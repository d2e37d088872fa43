package observability

import (
	"context"

	"github.com/rs/zerolog"
)

// Context keys for observability data.
type contextKey string

const (
	requestIDKey contextKey = "request_id"
	runIDKey     contextKey = "run_id"
	topicSlugKey contextKey = "topic_slug"
)

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext retrieves the request ID from context.
// Returns empty string if not present.
func RequestIDFromContext(ctx context.Context) string {
	if v := ctx.Value(requestIDKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

// WithRun adds pipeline run ID and topic slug to the context.
func WithRun(ctx context.Context, runID, topicSlug string) context.Context {
	ctx = context.WithValue(ctx, runIDKey, runID)
	ctx = context.WithValue(ctx, topicSlugKey, topicSlug)
	return ctx
}

// RunFromContext retrieves the pipeline run ID and topic slug from context.
// Returns empty strings if not present.
func RunFromContext(ctx context.Context) (runID, topicSlug string) {
	if v := ctx.Value(runIDKey); v != nil {
		if id, ok := v.(string); ok {
			runID = id
		}
	}
	if v := ctx.Value(topicSlugKey); v != nil {
		if slug, ok := v.(string); ok {
			topicSlug = slug
		}
	}
	return runID, topicSlug
}

// ContextLogger returns base enriched with whatever observability fields
// the context carries.
func ContextLogger(ctx context.Context, base zerolog.Logger) zerolog.Logger {
	if id := RequestIDFromContext(ctx); id != "" {
		base = base.With().Str("request_id", id).Logger()
	}
	if runID, topicSlug := RunFromContext(ctx); runID != "" {
		base = WithRunContext(base, runID, topicSlug)
	}
	return base
}
