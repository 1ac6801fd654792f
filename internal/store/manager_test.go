package store

import (
	"context"
	"path/filepath"
	"testing"
)

func TestManager_CachesHandle(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "test.db"), DefaultRetryPolicy(), nil)
	defer m.Close()

	ctx := context.Background()
	first, err := m.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire() failed: %v", err)
	}
	second, err := m.Acquire(ctx)
	if err != nil {
		t.Fatalf("second Acquire() failed: %v", err)
	}
	if first != second {
		t.Error("Acquire() returned a new handle instead of the cached one")
	}
}

func TestManager_InvalidateForcesReopen(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "test.db"), DefaultRetryPolicy(), nil)
	defer m.Close()

	ctx := context.Background()
	first, err := m.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire() failed: %v", err)
	}

	m.Invalidate()

	second, err := m.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire() after Invalidate() failed: %v", err)
	}
	if first == second {
		t.Error("Acquire() returned the invalidated handle")
	}

	// The fresh handle must be usable.
	if err := second.Exec(ctx, `INSERT INTO items (name) VALUES (?)`, "reopened"); err != nil {
		t.Errorf("insert on reopened handle failed: %v", err)
	}
}
