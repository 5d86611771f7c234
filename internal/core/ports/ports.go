package ports

import (
	"context"
	"time"

	"codeintel/internal/data/store"
	"codeintel/internal/engine/changes"
)

// SnapshotStore persists published snapshots and the change-analysis log.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, snap store.Snapshot) error
	LoadLatest(ctx context.Context) (store.Snapshot, bool, error)
	RecordAnalyses(ctx context.Context, list []changes.ChangeAnalysis) error
	AnalysisHistory(ctx context.Context, path string, limit int) ([]changes.ChangeAnalysis, error)
	Close() error
}

type WriteOperation string

const (
	WriteOperationSaveSnapshot   WriteOperation = "save_snapshot"
	WriteOperationRecordAnalyses WriteOperation = "record_analyses"
)

// WriteRequest is one persistence job handed to the write worker.
type WriteRequest struct {
	Operation  WriteOperation
	Snapshot   *store.Snapshot
	Analyses   []changes.ChangeAnalysis
	EnqueuedAt time.Time
}

type EnqueueResult string

const (
	EnqueueAccepted EnqueueResult = "accepted"
	EnqueueDropped  EnqueueResult = "dropped"
)

// WriteQueuePort is the bounded hand-off between the single writer and the
// persistence worker.
type WriteQueuePort interface {
	Enqueue(req WriteRequest) EnqueueResult
	DequeueBatch(ctx context.Context, maxItems int, wait time.Duration) ([]WriteRequest, error)
	Close() error
	Len() int
}
