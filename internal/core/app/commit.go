package app

import (
	"context"
	"log/slog"
	"sync"

	codeerrors "codeintel/internal/core/errors"
	"codeintel/internal/engine/changes"
	"codeintel/internal/engine/facts"
	"codeintel/internal/shared/observability"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// IngestReport summarizes one facts batch.
type IngestReport struct {
	Version  uint64        `json:"version"`
	Accepted int           `json:"accepted"`
	Skipped  []SkippedUnit `json:"skipped,omitempty"`
}

type SkippedUnit struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// Ingest upserts a batch of extraction facts and publishes a new snapshot.
// Malformed units are skipped and reported; the rest of the batch is still
// applied. Structural failures abort the batch and leave the published
// snapshot unchanged.
func (e *Engine) Ingest(ctx context.Context, batch []facts.FileFacts) (IngestReport, error) {
	ctx, span := observability.Tracer.Start(ctx, "Engine.Ingest", trace.WithAttributes(
		attribute.Int("files", len(batch)),
	))
	defer span.End()

	e.writers.Add(1)
	defer e.writers.Add(-1)

	var report IngestReport
	order := make([]string, 0, len(batch))
	byPath := make(map[string]facts.FileFacts, len(batch))
	for _, f := range batch {
		f.Normalize()
		if err := facts.Validate(f); err != nil {
			report.Skipped = append(report.Skipped, skipMalformed(f.Path, err))
			continue
		}
		if _, dup := byPath[f.Path]; !dup {
			order = append(order, f.Path)
		}
		byPath[f.Path] = f
	}
	valid := make([]facts.FileFacts, 0, len(order))
	for _, p := range order {
		valid = append(valid, byPath[p])
	}

	units, err := e.analyzeFiles(ctx, valid)
	if err != nil {
		return report, err
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	next, err := e.rebuild(e.current.Load(), units, nil, true, e.now())
	if err != nil {
		span.RecordError(err)
		return report, codeerrors.AddContext(err, codeerrors.CtxOperation, "ingest")
	}
	e.publish(next, nil)

	report.Version = next.Version
	report.Accepted = len(units)
	return report, nil
}

func skipMalformed(path string, err error) SkippedUnit {
	observability.MalformedFactsTotal.Inc()
	slog.Warn("skipping malformed facts", "path", path, "error", err)
	return SkippedUnit{Path: path, Reason: err.Error()}
}

// Commit applies one analyzed batch of file changes. Changed files are
// re-extracted through the provider outside the writer lock; analyses whose
// path changed again in the meantime are discarded right before the new
// snapshot is built.
func (e *Engine) Commit(ctx context.Context, batch changes.Batch) ([]changes.ChangeAnalysis, error) {
	ctx, span := observability.Tracer.Start(ctx, "Engine.Commit", trace.WithAttributes(
		attribute.Int("changes", len(batch.Changes)),
	))
	defer span.End()

	e.writers.Add(1)
	defer e.writers.Add(-1)

	byPath := make(map[string]changes.FileChange, len(batch.Changes))
	for _, c := range batch.Changes {
		byPath[c.Path] = c
	}

	var toExtract []changes.FileChange
	for _, res := range batch.Analyses {
		if res.Has(changes.ActionReanalyzeFile) {
			toExtract = append(toExtract, byPath[res.Path])
		}
	}
	extracted := e.extractChanged(ctx, toExtract)

	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	base := e.current.Load()

	var (
		applied  []changes.ChangeAnalysis
		upserts  []facts.FileFacts
		removals []string
		relearn  bool
		rescan   bool
	)
	for _, res := range batch.Analyses {
		if !batch.IsCurrent(res) {
			continue
		}
		switch {
		case res.Has(changes.ActionRemoveEntities):
			if _, known := base.Files[res.Path]; known {
				removals = append(removals, res.Path)
			}
		case res.Has(changes.ActionReanalyzeFile):
			f, ok := extracted[res.Path]
			if !ok {
				continue
			}
			upserts = append(upserts, f)
		}
		relearn = relearn || res.Has(changes.ActionRelearnConcepts)
		rescan = rescan || res.Has(changes.ActionFullRescan)
		applied = append(applied, res)
	}

	if len(upserts) == 0 && len(removals) == 0 && !relearn && !rescan {
		if len(applied) > 0 && e.store != nil {
			e.recordAnalyses(applied)
		}
		return applied, nil
	}

	if rescan {
		upserts = rescanSet(base, upserts, removals)
	}
	units, err := e.analyzeFiles(ctx, upserts)
	if err != nil {
		return nil, err
	}
	next, err := e.rebuild(base, units, removals, relearn || rescan, e.now())
	if err != nil {
		span.RecordError(err)
		return nil, codeerrors.AddContext(err, codeerrors.CtxOperation, "commit_changes")
	}
	e.publish(next, applied)
	return applied, nil
}

// rescanSet is every known file not being removed, with fresh facts taking
// the place of their previous version.
func rescanSet(base *Snapshot, upserts []facts.FileFacts, removals []string) []facts.FileFacts {
	fresh := make(map[string]facts.FileFacts, len(upserts))
	for _, f := range upserts {
		fresh[f.Path] = f
	}
	gone := make(map[string]bool, len(removals))
	for _, p := range removals {
		gone[p] = true
	}
	out := make([]facts.FileFacts, 0, len(base.Files)+len(upserts))
	for _, p := range base.Paths() {
		if gone[p] {
			continue
		}
		if f, ok := fresh[p]; ok {
			out = append(out, f)
			delete(fresh, p)
			continue
		}
		out = append(out, base.Files[p])
	}
	for _, f := range upserts {
		if _, ok := fresh[f.Path]; ok {
			out = append(out, f)
		}
	}
	return out
}

// extractChanged asks the provider for fresh facts of each change. Files
// the provider fails on are logged as malformed and left out. The change's
// own hash replaces whatever the provider reported so the next identical
// write matches the baseline.
func (e *Engine) extractChanged(ctx context.Context, list []changes.FileChange) map[string]facts.FileFacts {
	out := make(map[string]facts.FileFacts, len(list))
	if len(list) == 0 {
		return out
	}
	if e.provider == nil {
		slog.Warn("no extraction provider configured, skipping changed files", "count", len(list))
		return out
	}

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.Config.Analysis.Workers)
	for _, c := range list {
		g.Go(func() error {
			f, err := e.provider.Extract(ctx, c.Path, c.Content)
			if err == nil {
				f.Path = c.Path
				if f.Language == "" {
					f.Language = c.Language
				}
				if c.Hash != "" {
					f.Hash = c.Hash
				}
				f.Normalize()
				err = facts.Validate(f)
			}
			if err != nil {
				skipMalformed(c.Path, err)
				return nil
			}
			mu.Lock()
			out[c.Path] = f
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}
