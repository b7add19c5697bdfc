package notify

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestHubCoalescesAndUnsubscribes(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	ch, err := hub.Subscribe(ctx)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := hub.Post(context.Background()); err != nil {
			t.Fatalf("post: %v", err)
		}
	}

	select {
	case <-ch:
	default:
		t.Fatalf("expected pending wakeup")
	}
	select {
	case <-ch:
		t.Fatalf("expected posts to coalesce")
	default:
	}

	cancel()
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatalf("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatalf("subscription not closed after cancel")
	}
}

func TestFileChannelWakesSubscriber(t *testing.T) {
	t.Parallel()

	channel, err := NewFileChannel(filepath.Join(t.TempDir(), "signal", "state.changed"))
	if err != nil {
		t.Fatalf("new channel: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := channel.Subscribe(ctx)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := channel.Post(ctx); err != nil {
		t.Fatalf("post: %v", err)
	}

	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatalf("no wakeup after post")
	}
}
