package stream

import (
	"context"
	"testing"
	"time"
)

func TestPublishReachesAllSubscribers(t *testing.T) {
	h := New[string]()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := h.Subscribe(ctx)
	b := h.Subscribe(ctx)
	h.Publish("progress")

	for _, ch := range []<-chan string{a, b} {
		select {
		case got := <-ch:
			if got != "progress" {
				t.Fatalf("unexpected event %q", got)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
}

func TestSubscriptionClosesWithContext(t *testing.T) {
	h := New[int]()
	ctx, cancel := context.WithCancel(context.Background())
	ch := h.Subscribe(ctx)
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}
	if n := h.Subscribers(); n != 0 {
		t.Fatalf("expected no subscribers, got %d", n)
	}
}

func TestPublishDropsForSlowSubscriber(t *testing.T) {
	h := New[int]()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := h.Subscribe(ctx)

	for i := 0; i < bufferSize+5; i++ {
		h.Publish(i)
	}
	if got := len(ch); got != bufferSize {
		t.Fatalf("expected %d buffered events, got %d", bufferSize, got)
	}
}

func TestNilHubPublishIsNoop(t *testing.T) {
	var h *Hub[int]
	h.Publish(1)
}
