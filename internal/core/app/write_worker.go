package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"codeintel/internal/core/ports"
	"codeintel/internal/data/queue"
	"codeintel/internal/engine/changes"
	"codeintel/internal/shared/observability"
)

func (e *Engine) initWriteQueue() error {
	if e == nil || e.Config == nil || e.store == nil {
		return nil
	}
	if !e.Config.WriteQueue.QueueEnabled() {
		return nil
	}
	e.writeQueue = queue.NewMemoryQueue(e.Config.WriteQueue.MemoryCapacity)
	return e.startWriteWorker()
}

func (e *Engine) startWriteWorker() error {
	if e == nil || e.writeQueue == nil || e.workerCancel != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.workerCancel = cancel
	e.workerDone = make(chan struct{})
	go e.runWriteWorker(ctx)
	return nil
}

func (e *Engine) runWriteWorker(ctx context.Context) {
	defer close(e.workerDone)

	batchSize := e.Config.WriteQueue.BatchSize
	if batchSize <= 0 {
		batchSize = 1
	}
	flushInterval := e.Config.WriteQueue.FlushInterval
	if flushInterval <= 0 {
		flushInterval = 100 * time.Millisecond
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		batch, err := e.writeQueue.DequeueBatch(ctx, batchSize, flushInterval)
		if errors.Is(err, context.Canceled) {
			return
		}
		if err != nil && !errors.Is(err, io.EOF) {
			slog.Warn("write queue dequeue failed", "error", err)
			continue
		}

		if len(batch) > 0 {
			e.flushWrites(ctx, batch)
		}
		e.updateQueueMetrics()
		if errors.Is(err, io.EOF) {
			return
		}
	}
}

func (e *Engine) flushWrites(ctx context.Context, batch []ports.WriteRequest) {
	started := time.Now()
	if err := e.applyWriteBatch(ctx, batch); err != nil {
		observability.WriteQueueApplyErrorsTotal.Inc()
		slog.Warn("write worker apply failed", "error", err, "batch_size", len(batch))
		return
	}
	observability.WriteQueueProcessedTotal.Add(float64(len(batch)))
	observability.WriteQueueFlushLatencySeconds.Observe(time.Since(started).Seconds())
}

// enqueueWrite hands req to the worker. Without a queue, or when the queue
// is full, the write is applied synchronously.
func (e *Engine) enqueueWrite(req ports.WriteRequest) {
	if e == nil || e.store == nil {
		return
	}
	if e.writeQueue == nil {
		if err := e.applyWriteRequest(context.Background(), req); err != nil {
			slog.Warn("persisting snapshot failed", "operation", req.Operation, "error", err)
		}
		return
	}
	switch e.writeQueue.Enqueue(req) {
	case ports.EnqueueAccepted:
		observability.WriteQueueEnqueuedTotal.Inc()
		e.updateQueueMetrics()
	case ports.EnqueueDropped:
		observability.WriteQueueDroppedTotal.Inc()
		slog.Warn("write queue full, applying synchronously", "operation", req.Operation)
		if err := e.applyWriteRequest(context.Background(), req); err != nil {
			slog.Warn("persisting snapshot failed", "operation", req.Operation, "error", err)
		}
	}
}

func (e *Engine) recordAnalyses(list []changes.ChangeAnalysis) {
	e.enqueueWrite(ports.WriteRequest{
		Operation: ports.WriteOperationRecordAnalyses,
		Analyses:  sortedAnalyses(list),
	})
}

func (e *Engine) applyWriteBatch(ctx context.Context, batch []ports.WriteRequest) error {
	var errs []error
	for _, req := range batch {
		if err := e.applyWriteRequest(ctx, req); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (e *Engine) applyWriteRequest(ctx context.Context, req ports.WriteRequest) error {
	switch req.Operation {
	case ports.WriteOperationSaveSnapshot:
		if req.Snapshot == nil {
			return fmt.Errorf("save_snapshot request without snapshot")
		}
		return e.store.SaveSnapshot(ctx, *req.Snapshot)
	case ports.WriteOperationRecordAnalyses:
		return e.store.RecordAnalyses(ctx, req.Analyses)
	default:
		return fmt.Errorf("unsupported write operation %q", req.Operation)
	}
}

func (e *Engine) stopWriteWorker(ctx context.Context) error {
	if e == nil {
		return nil
	}
	if e.workerCancel != nil {
		e.workerCancel()
		e.workerCancel = nil
	}
	if e.workerDone != nil {
		select {
		case <-e.workerDone:
		case <-ctx.Done():
			return ctx.Err()
		}
		e.workerDone = nil
	}
	if err := e.drainWriteQueue(ctx); err != nil {
		return err
	}
	if e.writeQueue != nil {
		if err := e.writeQueue.Close(); err != nil {
			return err
		}
		e.writeQueue = nil
	}
	return nil
}

func (e *Engine) drainWriteQueue(ctx context.Context) error {
	if e == nil || e.writeQueue == nil {
		return nil
	}
	batchSize := e.Config.WriteQueue.BatchSize
	if batchSize <= 0 {
		batchSize = 1
	}
	for {
		batch, err := e.writeQueue.DequeueBatch(ctx, batchSize, 0)
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		if len(batch) == 0 {
			return nil
		}
		if applyErr := e.applyWriteBatch(ctx, batch); applyErr != nil {
			return applyErr
		}
	}
}

func (e *Engine) updateQueueMetrics() {
	if e == nil || e.writeQueue == nil {
		return
	}
	observability.WriteQueueDepth.Set(float64(e.writeQueue.Len()))
}
