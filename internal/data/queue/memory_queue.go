package queue

import (
	"codeintel/internal/core/ports"
	"context"
	"io"
	"sync"
	"time"
)

var _ ports.WriteQueuePort = (*MemoryQueue)(nil)

// MemoryQueue is a bounded FIFO of write requests. Snapshot saves coalesce:
// a newer save replaces a queued one in place, since only the latest
// published snapshot is worth persisting.
type MemoryQueue struct {
	mu       sync.Mutex
	items    []ports.WriteRequest
	capacity int
	notify   chan struct{}
	closed   bool
}

func NewMemoryQueue(capacity int) *MemoryQueue {
	if capacity <= 0 {
		capacity = 1
	}
	return &MemoryQueue{
		items:    make([]ports.WriteRequest, 0, capacity),
		capacity: capacity,
		notify:   make(chan struct{}, 1),
	}
}

func (q *MemoryQueue) Enqueue(req ports.WriteRequest) ports.EnqueueResult {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ports.EnqueueDropped
	}
	if req.EnqueuedAt.IsZero() {
		req.EnqueuedAt = time.Now()
	}

	if req.Operation == ports.WriteOperationSaveSnapshot {
		for i := range q.items {
			if q.items[i].Operation == ports.WriteOperationSaveSnapshot {
				q.items[i] = req
				q.signal()
				return ports.EnqueueAccepted
			}
		}
	}
	if len(q.items) >= q.capacity {
		return ports.EnqueueDropped
	}
	q.items = append(q.items, req)
	q.signal()
	return ports.EnqueueAccepted
}

func (q *MemoryQueue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// DequeueBatch returns up to maxItems requests, waiting at most wait for the
// first one. A closed queue returns its remaining items together with io.EOF.
func (q *MemoryQueue) DequeueBatch(ctx context.Context, maxItems int, wait time.Duration) ([]ports.WriteRequest, error) {
	if maxItems <= 0 {
		maxItems = 1
	}

	var timer <-chan time.Time
	if wait > 0 {
		t := time.NewTimer(wait)
		defer t.Stop()
		timer = t.C
	}

	for {
		q.mu.Lock()
		if n := len(q.items); n > 0 {
			if n > maxItems {
				n = maxItems
			}
			batch := append([]ports.WriteRequest(nil), q.items[:n]...)
			q.items = append(q.items[:0], q.items[n:]...)
			drained := q.closed && len(q.items) == 0
			q.mu.Unlock()
			if drained {
				return batch, io.EOF
			}
			return batch, nil
		}
		closed := q.closed
		q.mu.Unlock()

		if closed {
			return nil, io.EOF
		}
		if wait <= 0 {
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer:
			return nil, nil
		case <-q.notify:
		}
	}
}

func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	q.signal()
	return nil
}

func (q *MemoryQueue) Len() int {
	if q == nil {
		return 0
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
