package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestInMemoryRoundTrip(t *testing.T) {
	kv := NewInMemory()
	ctx := context.Background()

	if _, ok, err := kv.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}
	if err := kv.Set(ctx, "k", "v"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, ok, err := kv.Get(ctx, "k")
	if err != nil || !ok || v != "v" {
		t.Fatalf("unexpected get: %q %v %v", v, ok, err)
	}
	if err := kv.Set(ctx, " ", "v"); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
}

func TestLastScannedAt(t *testing.T) {
	kv := NewInMemory()
	ctx := context.Background()

	if _, ok, err := LastScannedAt(ctx, kv, "org-1"); err != nil || ok {
		t.Fatalf("expected never scanned, got ok=%v err=%v", ok, err)
	}

	at := time.Date(2024, 3, 15, 10, 30, 0, 123_000_000, time.UTC)
	if err := SetLastScannedAt(ctx, kv, "org-1", at); err != nil {
		t.Fatalf("SetLastScannedAt: %v", err)
	}
	raw, _, _ := kv.Get(ctx, "lastScannedAt:org-1")
	if raw != "1710498600123" {
		t.Fatalf("unexpected stored value %q", raw)
	}
	got, ok, err := LastScannedAt(ctx, kv, "org-1")
	if err != nil || !ok {
		t.Fatalf("LastScannedAt: ok=%v err=%v", ok, err)
	}
	if !got.Equal(at) {
		t.Fatalf("expected %v, got %v", at, got)
	}
}

func TestLastScannedAtRejectsGarbage(t *testing.T) {
	kv := NewInMemory()
	ctx := context.Background()
	_ = kv.Set(ctx, LastScannedKey("org-1"), "yesterday")
	if _, _, err := LastScannedAt(ctx, kv, "org-1"); err == nil {
		t.Fatal("expected decode error")
	}
}
