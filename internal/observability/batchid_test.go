package observability

import (
	"context"
	"testing"

	"github.com/google/uuid"
)

func TestNewBatchID_IsUUID(t *testing.T) {
	id1 := NewBatchID()
	id2 := NewBatchID()

	if _, err := uuid.Parse(id1); err != nil {
		t.Fatalf("expected uuid, got %q: %v", id1, err)
	}
	if id1 == id2 {
		t.Error("expected unique batch IDs")
	}
}

func TestBatchIDFromContext_Empty(t *testing.T) {
	if got := BatchIDFromContext(context.Background()); got != "" {
		t.Errorf("expected empty batch ID, got %q", got)
	}
}

func TestGetOrCreateBatchID(t *testing.T) {
	ctx, id := GetOrCreateBatchID(context.Background())
	if id == "" {
		t.Fatal("expected generated batch ID")
	}
	if BatchIDFromContext(ctx) != id {
		t.Error("expected batch ID stored on context")
	}

	ctx2, id2 := GetOrCreateBatchID(ctx)
	if id2 != id || ctx2 != ctx {
		t.Error("expected existing batch ID to be reused")
	}
}
