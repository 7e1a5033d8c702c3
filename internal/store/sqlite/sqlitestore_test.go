package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"permaudit.io/internal/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestGetSet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, ok, err := s.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}
	if err := s.Set(ctx, "k", "v1"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set(ctx, "k", "v2"); err != nil {
		t.Fatalf("Set overwrite: %v", err)
	}
	v, ok, err := s.Get(ctx, "k")
	if err != nil || !ok || v != "v2" {
		t.Fatalf("expected v2, got %q ok=%v err=%v", v, ok, err)
	}
	if err := s.Set(ctx, " ", "x"); !errors.Is(err, store.ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
}

func TestLastScannedSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "permaudit.db")
	ctx := context.Background()
	at := time.Date(2024, 3, 15, 10, 30, 0, 123_000_000, time.UTC)

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := store.SetLastScannedAt(ctx, s, "cloud-1", at); err != nil {
		t.Fatalf("SetLastScannedAt: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	got, ok, err := store.LastScannedAt(ctx, s, "cloud-1")
	if err != nil || !ok {
		t.Fatalf("expected stored scan, ok=%v err=%v", ok, err)
	}
	if !got.Equal(at) {
		t.Fatalf("expected %s, got %s", at, got)
	}
}
