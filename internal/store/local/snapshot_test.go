package local

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *SnapshotStore {
	t.Helper()
	s, err := NewSnapshotStore(filepath.Join(t.TempDir(), "snapshots.db"))
	if err != nil {
		t.Fatalf("NewSnapshotStore failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPutListDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	savedAt := time.Date(2025, 8, 29, 10, 30, 0, 0, time.UTC)
	if err := s.Put(ctx, "sess-1", []byte(`{"id":"sess-1"}`), savedAt); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	pending, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("Expected 1 pending snapshot, got %d", len(pending))
	}
	if pending[0].SessionID != "sess-1" {
		t.Errorf("Expected session id sess-1, got %q", pending[0].SessionID)
	}
	if string(pending[0].Data) != `{"id":"sess-1"}` {
		t.Errorf("Snapshot data mismatch: %s", pending[0].Data)
	}

	if err := s.Delete(ctx, "sess-1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	pending, _ = s.List(ctx)
	if len(pending) != 0 {
		t.Errorf("Expected no pending snapshots after delete, got %d", len(pending))
	}
}

func TestPut_ReplacesExisting(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := time.Date(2025, 8, 29, 10, 0, 0, 0, time.UTC)
	if err := s.Put(ctx, "sess-1", []byte(`{"v":1}`), first); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := s.Put(ctx, "sess-1", []byte(`{"v":2}`), first.Add(time.Minute)); err != nil {
		t.Fatalf("Put (replace) failed: %v", err)
	}

	pending, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("Expected 1 snapshot after replace, got %d", len(pending))
	}
	if string(pending[0].Data) != `{"v":2}` {
		t.Errorf("Expected latest snapshot to win, got %s", pending[0].Data)
	}
}
