package ids

import (
	"strings"
	"testing"
	"time"
)

func TestRunIDsAreSortable(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	a := newRunIDAt(base)
	b := newRunIDAt(base.Add(time.Second))
	if !strings.HasPrefix(a, "run_") {
		t.Fatalf("missing prefix: %s", a)
	}
	if a >= b {
		t.Fatalf("expected %s < %s", a, b)
	}
}

func TestRunStartedAt(t *testing.T) {
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	got, ok := RunStartedAt(newRunIDAt(at))
	if !ok || !got.Equal(at) {
		t.Fatalf("RunStartedAt() = %v, %v; want %v", got, ok, at)
	}
	if _, ok := RunStartedAt("01HZX"); ok {
		t.Fatal("expected failure without prefix")
	}
	if _, ok := RunStartedAt("run_not-a-ulid"); ok {
		t.Fatal("expected failure for malformed ulid")
	}
}
