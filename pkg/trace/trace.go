package trace

import (
	"context"

	"github.com/google/uuid"
)

type ctxKey struct{}

// NewRunID returns a fresh correlation id for one delivery run.
func NewRunID() string {
	return uuid.NewString()
}

// FromContext returns the run id stored in ctx, or "".
func FromContext(ctx context.Context) string {
	if id, ok := ctx.Value(ctxKey{}).(string); ok {
		return id
	}
	return ""
}

// WithContext stores the run id in ctx.
func WithContext(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, runID)
}
