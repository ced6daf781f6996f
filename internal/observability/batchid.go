package observability

import (
	"context"

	"github.com/google/uuid"
)

// batchIDKey is the context key for batch IDs.
type batchIDKey struct{}

// NewBatchID returns a fresh batch correlation ID.
func NewBatchID() string {
	return uuid.NewString()
}

// ContextWithBatchID adds a batch ID to the context.
func ContextWithBatchID(ctx context.Context, batchID string) context.Context {
	return context.WithValue(ctx, batchIDKey{}, batchID)
}

// BatchIDFromContext extracts the batch ID from context.
func BatchIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(batchIDKey{}).(string); ok {
		return id
	}
	return ""
}

// GetOrCreateBatchID reuses a batch ID already on ctx, so a runner request
// and the Execute call it triggers share one ID.
func GetOrCreateBatchID(ctx context.Context) (context.Context, string) {
	if id := BatchIDFromContext(ctx); id != "" {
		return ctx, id
	}
	id := NewBatchID()
	return ContextWithBatchID(ctx, id), id
}
