package handoff

import (
	"context"
	"testing"

	"github.com/slimquality/bia/pkg/bia/db"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	d, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("open memory db: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return NewStore(d, nil)
}

func TestRegisterAndPending(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Register(ctx, "t1", "conv-1", "Cliente irritado"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := store.Register(ctx, "t1", "conv-2", ""); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := store.Register(ctx, "t2", "conv-3", "Outro tenant"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	pending, err := store.Pending(ctx, "t1")
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("got %d pending, want 2", len(pending))
	}
	if pending[0].Reason != "Cliente irritado" {
		t.Errorf("reason = %q", pending[0].Reason)
	}
	if pending[1].Reason != "Auto-detected" {
		t.Errorf("empty reason should default to Auto-detected, got %q", pending[1].Reason)
	}
	for _, r := range pending {
		if r.TenantID != "t1" {
			t.Errorf("tenant leak: %+v", r)
		}
	}
}

func TestResolve(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Register(ctx, "t1", "conv-1", "motivo"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	pending, _ := store.Pending(ctx, "t1")
	if len(pending) != 1 {
		t.Fatalf("got %d pending, want 1", len(pending))
	}

	if err := store.Resolve(ctx, pending[0].ID); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if after, _ := store.Pending(ctx, "t1"); len(after) != 0 {
		t.Errorf("got %d pending after resolve, want 0", len(after))
	}

	t.Run("resolving twice fails", func(t *testing.T) {
		if err := store.Resolve(ctx, pending[0].ID); err == nil {
			t.Error("expected error for already-resolved handoff")
		}
	})
}
