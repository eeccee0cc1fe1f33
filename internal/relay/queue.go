// Package relay provides the bounded in-memory hand-off between the capture
// producer and the upload workers.
package relay

import (
	"context"

	"timelapse/internal/artifact"
)

// Queue is a bounded FIFO. Enqueue never blocks: when the queue is full the
// newest item is rejected.
type Queue struct {
	items chan artifact.Item
}

// New creates a queue holding at most capacity items.
func New(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{items: make(chan artifact.Item, capacity)}
}

// TryEnqueue adds item without blocking. It reports false when the queue is
// full and the item was dropped.
func (q *Queue) TryEnqueue(item artifact.Item) bool {
	select {
	case q.items <- item:
		return true
	default:
		return false
	}
}

// Dequeue blocks until an item is available or ctx is done.
func (q *Queue) Dequeue(ctx context.Context) (artifact.Item, error) {
	select {
	case item := <-q.items:
		return item, nil
	case <-ctx.Done():
		return artifact.Item{}, ctx.Err()
	}
}

// Remaining drains whatever is buffered without blocking. Used on shutdown
// to hand unsent items to durable storage.
func (q *Queue) Remaining() []artifact.Item {
	var out []artifact.Item
	for {
		select {
		case item := <-q.items:
			out = append(out, item)
		default:
			return out
		}
	}
}

// Len returns the number of buffered items.
func (q *Queue) Len() int { return len(q.items) }

// Cap returns the queue capacity.
func (q *Queue) Cap() int { return cap(q.items) }
