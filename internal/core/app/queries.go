package app

import (
	"context"
	"time"

	codeerrors "codeintel/internal/core/errors"
	"codeintel/internal/engine/changes"
	"codeintel/internal/engine/complexity"
	"codeintel/internal/engine/embedding"
	"codeintel/internal/engine/facts"
	"codeintel/internal/engine/graph"
	"codeintel/internal/engine/patterns"
	"codeintel/internal/engine/semantic"
	"codeintel/internal/shared/observability"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Result wraps every query answer with the snapshot it was read from. Stale
// is set while a newer snapshot is being computed; the value is still the
// last complete one.
type Result[T any] struct {
	Value       T         `json:"value"`
	SnapshotID  string    `json:"snapshot_id,omitempty"`
	Version     uint64    `json:"version"`
	Stale       bool      `json:"stale"`
	GeneratedAt time.Time `json:"generated_at"`
}

func wrap[T any](e *Engine, s *Snapshot, v T) Result[T] {
	return Result[T]{
		Value:       v,
		SnapshotID:  s.ID,
		Version:     s.Version,
		Stale:       e.Stale(),
		GeneratedAt: s.CreatedAt,
	}
}

type DependencyGraph struct {
	Nodes     []graph.Node  `json:"nodes"`
	Edges     []graph.Edge  `json:"edges"`
	Cycles    []graph.Cycle `json:"cycles"`
	Truncated bool          `json:"truncated,omitempty"`
	Metrics   graph.Metrics `json:"metrics"`
}

func (e *Engine) GetDependencyGraph(ctx context.Context) (Result[DependencyGraph], error) {
	if err := ctx.Err(); err != nil {
		return Result[DependencyGraph]{}, err
	}
	s := e.Snapshot()
	return wrap(e, s, DependencyGraph{
		Nodes:     s.Graph.Nodes(),
		Edges:     s.Graph.Edges(),
		Cycles:    s.Cycles.Cycles,
		Truncated: s.Cycles.Truncated,
		Metrics:   s.Metrics,
	}), nil
}

// Complexity answers a complexity lookup. File is set when the target named
// a file; Units lists the matching unit results otherwise.
type Complexity struct {
	File  *complexity.FileComplexity `json:"file,omitempty"`
	Units []complexity.Result        `json:"units,omitempty"`
}

// GetComplexity accepts a file path, a symbol id (path#Name) or a bare
// qualified symbol name, which may match units in several files.
func (e *Engine) GetComplexity(ctx context.Context, target string) (Result[Complexity], error) {
	if err := ctx.Err(); err != nil {
		return Result[Complexity]{}, err
	}
	s := e.Snapshot()
	key := facts.NormalizePath(target)
	if fc, ok := s.Complexity[key]; ok {
		return wrap(e, s, Complexity{File: &fc}), nil
	}

	var units []complexity.Result
	if file, name, ok := facts.SplitSymbolID(target); ok {
		for _, u := range s.Complexity[facts.NormalizePath(file)].Units {
			if u.Name == name || u.ID == target {
				units = append(units, u)
			}
		}
	} else {
		for _, p := range s.Paths() {
			for _, u := range s.Complexity[p].Units {
				if u.Name == target {
					units = append(units, u)
				}
			}
		}
	}
	if len(units) == 0 {
		return Result[Complexity]{}, codeerrors.AddContext(
			codeerrors.Newf(codeerrors.CodeNotFound, "no complexity result for %q", target),
			codeerrors.CtxEntity, target)
	}
	return wrap(e, s, Complexity{Units: units}), nil
}

// GetPatterns lists detected patterns, restricted to path when it is set.
func (e *Engine) GetPatterns(ctx context.Context, path string) (Result[[]patterns.DetectedPattern], error) {
	if err := ctx.Err(); err != nil {
		return Result[[]patterns.DetectedPattern]{}, err
	}
	s := e.Snapshot()
	if path == "" {
		return wrap(e, s, s.Patterns.All()), nil
	}
	return wrap(e, s, append([]patterns.DetectedPattern(nil), s.Patterns.Patterns(facts.NormalizePath(path))...)), nil
}

func (e *Engine) RecommendPatterns(ctx context.Context, rc patterns.RecommendContext, k int) (Result[[]patterns.Recommendation], error) {
	if err := ctx.Err(); err != nil {
		return Result[[]patterns.Recommendation]{}, err
	}
	s := e.Snapshot()
	return wrap(e, s, s.Patterns.Recommend(rc, k)), nil
}

func (e *Engine) GetBlueprint(ctx context.Context) (Result[semantic.Blueprint], error) {
	if err := ctx.Err(); err != nil {
		return Result[semantic.Blueprint]{}, err
	}
	s := e.Snapshot()
	return wrap(e, s, s.Blueprint), nil
}

// SearchConcepts returns at most k index entries by descending similarity.
func (e *Engine) SearchConcepts(ctx context.Context, query string, k int) (Result[[]embedding.SearchResult], error) {
	_, span := observability.Tracer.Start(ctx, "Engine.SearchConcepts", trace.WithAttributes(
		attribute.Int("k", k),
	))
	defer span.End()

	if err := ctx.Err(); err != nil {
		return Result[[]embedding.SearchResult]{}, err
	}
	s := e.Snapshot()
	return wrap(e, s, s.Index.Search(query, k)), nil
}

// GetLastChangeAnalysis returns the newest committed analysis of path,
// falling back to the persisted log for paths not seen since startup.
func (e *Engine) GetLastChangeAnalysis(ctx context.Context, path string) (Result[changes.ChangeAnalysis], error) {
	if err := ctx.Err(); err != nil {
		return Result[changes.ChangeAnalysis]{}, err
	}
	s := e.Snapshot()
	key := facts.NormalizePath(path)
	if res, ok := e.analyzer.Last(key); ok {
		return wrap(e, s, res), nil
	}
	if e.store != nil {
		history, err := e.store.AnalysisHistory(ctx, key, 1)
		if err != nil {
			return Result[changes.ChangeAnalysis]{}, err
		}
		if len(history) > 0 {
			return wrap(e, s, history[0]), nil
		}
	}
	return Result[changes.ChangeAnalysis]{}, codeerrors.AddContext(
		codeerrors.Newf(codeerrors.CodeNotFound, "no change analysis recorded for %q", key),
		codeerrors.CtxPath, key)
}

func (e *Engine) AnalyzeImpact(ctx context.Context, path string) (Result[graph.ImpactReport], error) {
	if err := ctx.Err(); err != nil {
		return Result[graph.ImpactReport]{}, err
	}
	s := e.Snapshot()
	report, err := s.Graph.AnalyzeImpact(facts.NormalizePath(path))
	if err != nil {
		return Result[graph.ImpactReport]{}, codeerrors.AddContext(
			codeerrors.Wrap(err, codeerrors.CodeNotFound, "impact target not found"), codeerrors.CtxPath, path)
	}
	return wrap(e, s, report), nil
}

// Hotspots lists the n files with the highest complexity.
func (e *Engine) Hotspots(ctx context.Context, n int) (Result[[]complexity.Hotspot], error) {
	if err := ctx.Err(); err != nil {
		return Result[[]complexity.Hotspot]{}, err
	}
	s := e.Snapshot()
	return wrap(e, s, complexity.TopComplexity(s.Complexity, n)), nil
}
