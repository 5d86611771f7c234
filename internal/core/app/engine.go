// Package app wires the analysis engines into one Engine: it owns the
// published snapshot, serializes writers, feeds the change analyzer and
// answers the tool-facing queries.
package app

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"codeintel/internal/core/config"
	codeerrors "codeintel/internal/core/errors"
	"codeintel/internal/core/ports"
	"codeintel/internal/engine/changes"
	"codeintel/internal/engine/complexity"
	"codeintel/internal/engine/embedding"
	"codeintel/internal/engine/facts"
	"codeintel/internal/engine/patterns"
	"codeintel/internal/engine/semantic"
	"codeintel/internal/shared/observability"
	"codeintel/internal/shared/util"
)

// Options carries the collaborators an Engine does not build itself.
type Options struct {
	// Provider re-extracts facts for changed files in watch mode.
	Provider facts.Provider
	// Store persists snapshots. Nil keeps everything in memory.
	Store ports.SnapshotStore
	// Clock drives the change analyzer's debounce timer.
	Clock changes.Clock
}

type Engine struct {
	Config *config.Config

	complexity *complexity.Analyzer
	patterns   *patterns.Engine
	semantic   *semantic.Engine
	embedder   embedding.Embedder
	provider   facts.Provider
	analyzer   *changes.Analyzer
	clock      changes.Clock

	current atomic.Pointer[Snapshot]
	writeMu sync.Mutex
	writers atomic.Int32

	store        ports.SnapshotStore
	writeQueue   ports.WriteQueuePort
	workerCancel context.CancelFunc
	workerDone   chan struct{}

	closeOnce sync.Once
}

var _ changes.Committer = (*Engine)(nil)

func New(cfg *config.Config, opts Options) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := config.Validate(cfg); err != nil {
		return nil, codeerrors.Wrap(err, codeerrors.CodeValidationError, "invalid configuration")
	}

	sem, err := semantic.NewEngine(semantic.Options{
		EntryPointGlobs:   cfg.Semantic.EntryPointGlobs,
		KeyDirectoryLimit: cfg.Semantic.KeyDirectoryLimit,
		DomainMinFiles:    cfg.Semantic.DomainMinFiles,
	})
	if err != nil {
		return nil, err
	}

	if opts.Clock == nil {
		opts.Clock = changes.RealClock()
	}

	e := &Engine{
		Config: cfg,
		complexity: complexity.NewAnalyzer(complexity.Thresholds{
			Low:      cfg.Complexity.LowThreshold,
			Moderate: cfg.Complexity.ModerateThreshold,
			High:     cfg.Complexity.HighThreshold,
		}, cfg.Complexity.NestingWeight),
		patterns: patterns.NewEngine(cfg.Patterns.MinConfidence),
		semantic: sem,
		embedder: embedding.NewHashingEmbedder(cfg.Embedding.Dimensions, cfg.Embedding.CacheSize),
		provider: opts.Provider,
		clock:    opts.Clock,
		store:    opts.Store,
	}
	e.current.Store(emptySnapshot(e.embedder))

	e.analyzer = changes.NewAnalyzer(e, changes.Config{
		Debounce: cfg.Watch.Debounce,
		Options: changes.Options{
			LowImpactThreshold: cfg.Changes.LowImpactThreshold,
			HubFanIn:           cfg.Changes.HubFanIn,
			HubFanOut:          cfg.Changes.HubFanOut,
		},
		Clock:   opts.Clock,
		Limiter: util.PerMinute(cfg.Analysis.ProjectRescansPerMinute),
	})

	if err := e.initWriteQueue(); err != nil {
		e.analyzer.Close()
		return nil, err
	}
	return e, nil
}

func (e *Engine) now() time.Time {
	return e.clock.Now().UTC()
}

// Snapshot returns the last published snapshot.
func (e *Engine) Snapshot() *Snapshot {
	return e.current.Load()
}

// Baseline is the committed state the change analyzer measures against.
func (e *Engine) Baseline() changes.Baseline {
	return baseline{s: e.current.Load()}
}

// Analyzer exposes the change analyzer so callers can submit events.
func (e *Engine) Analyzer() *changes.Analyzer {
	return e.analyzer
}

// Stale reports whether a newer snapshot is being computed.
func (e *Engine) Stale() bool {
	return e.writers.Load() > 0 || e.analyzer.Busy()
}

// Restore publishes the newest persisted snapshot, if any. It reports
// whether a snapshot was loaded.
func (e *Engine) Restore(ctx context.Context) (bool, error) {
	if e.store == nil {
		return false, nil
	}
	rec, ok, err := e.store.LoadLatest(ctx)
	if err != nil || !ok {
		return false, err
	}
	snap, err := snapshotFromRecord(rec, e.embedder, e.Config.Analysis.MaxCycles)
	if err != nil {
		return false, codeerrors.AddContext(err, codeerrors.CtxOperation, "restore_snapshot")
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	e.current.Store(snap)
	e.analyzer.Restore(rec.Analyses)
	observeSnapshot(snap)
	return true, nil
}

// publish swaps in next and hands it to the persistence worker. Callers hold
// writeMu.
func (e *Engine) publish(next *Snapshot, analyses []changes.ChangeAnalysis) {
	e.current.Store(next)
	observeSnapshot(next)
	if e.store == nil {
		return
	}
	rec := next.toRecord(e.recentAnalyses(analyses))
	e.enqueueWrite(ports.WriteRequest{Operation: ports.WriteOperationSaveSnapshot, Snapshot: &rec})
	if len(analyses) > 0 {
		e.enqueueWrite(ports.WriteRequest{
			Operation: ports.WriteOperationRecordAnalyses,
			Analyses:  sortedAnalyses(analyses),
		})
	}
}

// recentAnalyses is the last analysis of every known path, with batch
// taking precedence since it has not reached the analyzer yet.
func (e *Engine) recentAnalyses(batch []changes.ChangeAnalysis) []changes.ChangeAnalysis {
	byPath := make(map[string]changes.ChangeAnalysis)
	for _, p := range e.current.Load().Paths() {
		if res, ok := e.analyzer.Last(p); ok {
			byPath[p] = res
		}
	}
	for _, res := range batch {
		byPath[res.Path] = res
	}
	out := make([]changes.ChangeAnalysis, 0, len(byPath))
	for _, p := range util.SortedStringKeys(byPath) {
		out = append(out, byPath[p])
	}
	return out
}

func observeSnapshot(s *Snapshot) {
	observability.GraphNodes.Set(float64(s.Metrics.NodeCount))
	observability.GraphEdges.Set(float64(s.Metrics.EdgeCount))
	observability.GraphCycles.Set(float64(len(s.Cycles.Cycles)))
	observability.SnapshotVersion.Set(float64(s.Version))
	observability.IndexEntries.Set(float64(s.Index.Len()))
}

// Close stops the analyzer, drains pending writes and closes the store.
func (e *Engine) Close(ctx context.Context) error {
	var err error
	e.closeOnce.Do(func() {
		e.analyzer.Close()

		drainTimeout := 10 * time.Second
		if e.Config.WriteQueue.ShutdownDrainTimeout > 0 {
			drainTimeout = e.Config.WriteQueue.ShutdownDrainTimeout
		}
		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, drainTimeout)
			defer cancel()
		}
		e.writeMu.Lock()
		defer e.writeMu.Unlock()
		if err = e.stopWriteWorker(ctx); err != nil {
			return
		}
		if e.store != nil {
			err = e.store.Close()
		}
	})
	return err
}
