package relay_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"timelapse/internal/artifact"
	"timelapse/internal/relay"
)

func item(i int) artifact.Item {
	return artifact.New("01", time.Date(2024, 1, 1, 0, 0, i, 0, time.UTC), []byte{byte(i)})
}

func TestQueueDropsNewestWhenFull(t *testing.T) {
	q := relay.New(2)

	if !q.TryEnqueue(item(1)) || !q.TryEnqueue(item(2)) {
		t.Fatal("expected first two enqueues to succeed")
	}
	if q.TryEnqueue(item(3)) {
		t.Fatal("expected third enqueue to be dropped")
	}
	if q.Len() != 2 || q.Cap() != 2 {
		t.Fatalf("len=%d cap=%d", q.Len(), q.Cap())
	}

	ctx := context.Background()
	for _, want := range []artifact.Item{item(1), item(2)} {
		got, err := q.Dequeue(ctx)
		if err != nil {
			t.Fatalf("Dequeue: %v", err)
		}
		if got.Name != want.Name {
			t.Fatalf("Dequeue = %s, want %s", got.Name, want.Name)
		}
	}
}

func TestDequeueHonoursContext(t *testing.T) {
	q := relay.New(1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Dequeue(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}

func TestDequeueBlocksUntilItem(t *testing.T) {
	q := relay.New(1)
	done := make(chan artifact.Item, 1)
	go func() {
		got, err := q.Dequeue(context.Background())
		if err == nil {
			done <- got
		}
	}()

	select {
	case <-done:
		t.Fatal("dequeue returned before an item was available")
	case <-time.After(20 * time.Millisecond):
	}

	q.TryEnqueue(item(7))
	select {
	case got := <-done:
		if got.Name != item(7).Name {
			t.Fatalf("unexpected item %s", got.Name)
		}
	case <-time.After(time.Second):
		t.Fatal("dequeue did not wake up")
	}
}

func TestRemaining(t *testing.T) {
	q := relay.New(3)
	q.TryEnqueue(item(1))
	q.TryEnqueue(item(2))

	rest := q.Remaining()
	if len(rest) != 2 || rest[0].Name != item(1).Name {
		t.Fatalf("unexpected remaining items: %+v", rest)
	}
	if q.Len() != 0 {
		t.Fatalf("expected empty queue, got %d", q.Len())
	}
}
