package queue

import (
	"codeintel/internal/core/ports"
	"codeintel/internal/data/store"
	"codeintel/internal/engine/changes"
	"context"
	"io"
	"testing"
	"time"
)

func analysesReq(path string) ports.WriteRequest {
	return ports.WriteRequest{
		Operation: ports.WriteOperationRecordAnalyses,
		Analyses:  []changes.ChangeAnalysis{{ID: path, Path: path}},
	}
}

func snapshotReq(version uint64) ports.WriteRequest {
	return ports.WriteRequest{
		Operation: ports.WriteOperationSaveSnapshot,
		Snapshot:  &store.Snapshot{ID: "snap", Version: version},
	}
}

func TestMemoryQueue_EnqueueDequeue(t *testing.T) {
	q := NewMemoryQueue(2)
	t.Cleanup(func() { _ = q.Close() })

	if got := q.Enqueue(analysesReq("a.go")); got != ports.EnqueueAccepted {
		t.Fatalf("expected enqueue accepted, got %s", got)
	}
	if got := q.Enqueue(analysesReq("b.go")); got != ports.EnqueueAccepted {
		t.Fatalf("expected enqueue accepted, got %s", got)
	}

	batch, err := q.DequeueBatch(context.Background(), 2, time.Millisecond)
	if err != nil {
		t.Fatalf("dequeue failed: %v", err)
	}
	if len(batch) != 2 {
		t.Fatalf("expected 2 items, got %d", len(batch))
	}
	if batch[0].Analyses[0].Path != "a.go" || batch[1].Analyses[0].Path != "b.go" {
		t.Fatalf("unexpected order: %#v", batch)
	}
	if batch[0].EnqueuedAt.IsZero() {
		t.Fatal("expected enqueue time to be stamped")
	}
	if q.Len() != 0 {
		t.Fatalf("expected empty queue, got %d", q.Len())
	}
}

func TestMemoryQueue_FullQueueDrops(t *testing.T) {
	q := NewMemoryQueue(1)
	t.Cleanup(func() { _ = q.Close() })

	if got := q.Enqueue(analysesReq("a.go")); got != ports.EnqueueAccepted {
		t.Fatalf("expected enqueue accepted, got %s", got)
	}
	if got := q.Enqueue(analysesReq("b.go")); got != ports.EnqueueDropped {
		t.Fatalf("expected enqueue dropped, got %s", got)
	}
}

func TestMemoryQueue_SnapshotSavesCoalesce(t *testing.T) {
	q := NewMemoryQueue(2)
	t.Cleanup(func() { _ = q.Close() })

	q.Enqueue(snapshotReq(1))
	q.Enqueue(analysesReq("a.go"))
	if got := q.Enqueue(snapshotReq(2)); got != ports.EnqueueAccepted {
		t.Fatalf("expected newer snapshot to replace the queued one, got %s", got)
	}
	if q.Len() != 2 {
		t.Fatalf("expected 2 queued items, got %d", q.Len())
	}

	batch, err := q.DequeueBatch(context.Background(), 10, 0)
	if err != nil {
		t.Fatalf("dequeue failed: %v", err)
	}
	if batch[0].Snapshot == nil || batch[0].Snapshot.Version != 2 {
		t.Fatalf("expected latest snapshot first, got %#v", batch[0])
	}
}

func TestMemoryQueue_WaitsForFirstItem(t *testing.T) {
	q := NewMemoryQueue(4)
	t.Cleanup(func() { _ = q.Close() })

	batch, err := q.DequeueBatch(context.Background(), 1, 5*time.Millisecond)
	if err != nil || batch != nil {
		t.Fatalf("expected empty timeout result, got %v %v", batch, err)
	}

	done := make(chan []ports.WriteRequest, 1)
	go func() {
		b, _ := q.DequeueBatch(context.Background(), 1, time.Second)
		done <- b
	}()
	q.Enqueue(analysesReq("late.go"))

	select {
	case b := <-done:
		if len(b) != 1 {
			t.Fatalf("expected the late item, got %d", len(b))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("dequeue did not wake up")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := q.DequeueBatch(ctx, 1, time.Second); err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestMemoryQueue_CloseReturnsEOFWhenDrained(t *testing.T) {
	q := NewMemoryQueue(1)
	if got := q.Enqueue(analysesReq("a.go")); got != ports.EnqueueAccepted {
		t.Fatalf("expected enqueue accepted, got %s", got)
	}
	if err := q.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if got := q.Enqueue(analysesReq("b.go")); got != ports.EnqueueDropped {
		t.Fatalf("expected closed queue to drop, got %s", got)
	}

	batch, err := q.DequeueBatch(context.Background(), 2, 0)
	if len(batch) != 1 {
		t.Fatalf("expected 1 item after close, got %d", len(batch))
	}
	if err != io.EOF {
		t.Fatalf("expected io.EOF with final drained batch, got %v", err)
	}

	batch, err = q.DequeueBatch(context.Background(), 1, 0)
	if err != io.EOF {
		t.Fatalf("expected io.EOF on empty closed queue, got %v", err)
	}
	if len(batch) != 0 {
		t.Fatalf("expected 0 items, got %d", len(batch))
	}
}
