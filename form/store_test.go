package form

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryStoreRoundtrip(t *testing.T) {
	store := NewMemoryStore(0)
	defer store.Close()
	ctx := context.Background()

	if _, err := store.Get(ctx, 1, "f"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}

	sess := NewSession(1, "f")
	sess.Values["a"] = "x"
	if err := store.Put(ctx, 1, "f", sess); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := store.Get(ctx, 1, "f")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Values["a"] != "x" {
		t.Fatalf("values lost: %v", got.Values)
	}

	if err := store.Remove(ctx, 1, "f"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := store.Get(ctx, 1, "f"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound after remove, got %v", err)
	}
	// Removing again must stay a no-op.
	if err := store.Remove(ctx, 1, "f"); err != nil {
		t.Fatalf("Remove twice: %v", err)
	}
}

func TestMemoryStoreCopiesSessions(t *testing.T) {
	store := NewMemoryStore(0)
	defer store.Close()
	ctx := context.Background()

	sess := NewSession(1, "f")
	if err := store.Put(ctx, 1, "f", sess); err != nil {
		t.Fatalf("Put: %v", err)
	}
	sess.Values["a"] = "after-put"

	got, err := store.Get(ctx, 1, "f")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if _, ok := got.Values["a"]; ok {
		t.Fatalf("mutation after Put leaked into the store: %v", got.Values)
	}

	got.Values["b"] = "after-get"
	got.Status = StatusCancelled
	again, err := store.Get(ctx, 1, "f")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if _, ok := again.Values["b"]; ok {
		t.Fatalf("mutation of a Get result leaked into the store: %v", again.Values)
	}
	if again.Status != StatusCollecting {
		t.Fatalf("status = %s, want collecting", again.Status)
	}
}

// Exercises ActiveFlow racing a writer on the same owner; run with -race.
func TestMemoryStoreActiveFlowDuringWrites(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	defer store.Close()
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			sess, err := store.Get(ctx, 1, "f")
			if errors.Is(err, ErrSessionNotFound) {
				sess = NewSession(1, "f")
			}
			sess.Touch()
			if err := store.Put(ctx, 1, "f", sess); err != nil {
				t.Errorf("Put: %v", err)
				return
			}
		}
	}()
	for i := 0; i < 200; i++ {
		if _, err := store.ActiveFlow(ctx, 1); err != nil && !errors.Is(err, ErrSessionNotFound) {
			t.Fatalf("ActiveFlow: %v", err)
		}
	}
	<-done
}

func TestMemoryStoreActiveFlow(t *testing.T) {
	store := NewMemoryStore(0)
	defer store.Close()
	ctx := context.Background()

	if _, err := store.ActiveFlow(ctx, 1); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}

	if err := store.Put(ctx, 1, "deposit", NewSession(1, "deposit")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	flow, err := store.ActiveFlow(ctx, 1)
	if err != nil || flow != "deposit" {
		t.Fatalf("ActiveFlow = %q, %v; want deposit", flow, err)
	}

	// A different owner remains isolated.
	if _, err := store.ActiveFlow(ctx, 2); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected isolation across owners, got %v", err)
	}
}

func TestMemoryStoreIdleExpiry(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	defer store.Close()
	ctx := context.Background()

	sess := NewSession(1, "f")
	sess.UpdatedAt = time.Now().Add(-2 * time.Minute)
	if err := store.Put(ctx, 1, "f", sess); err != nil {
		t.Fatalf("Put: %v", err)
	}

	if _, err := store.Get(ctx, 1, "f"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected expired session to be invisible, got %v", err)
	}
	if _, err := store.ActiveFlow(ctx, 1); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected expired session to be inactive, got %v", err)
	}

	store.evictIdle()
	store.mu.RLock()
	n := len(store.sessions)
	store.mu.RUnlock()
	if n != 0 {
		t.Fatalf("expected janitor to evict, %d sessions remain", n)
	}
}
