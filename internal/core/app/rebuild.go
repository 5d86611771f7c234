package app

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"codeintel/internal/engine/complexity"
	"codeintel/internal/engine/embedding"
	"codeintel/internal/engine/facts"
	"codeintel/internal/engine/graph"
	"codeintel/internal/engine/patterns"
	"codeintel/internal/engine/semantic"
	"codeintel/internal/shared/observability"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// analyzedFile holds the per-file results that depend on nothing but the
// file's own facts.
type analyzedFile struct {
	Facts      facts.FileFacts
	Complexity complexity.FileComplexity
	Patterns   []patterns.DetectedPattern
}

// analyzeFiles runs complexity and pattern detection on a bounded worker
// pool. Output order matches files.
func (e *Engine) analyzeFiles(ctx context.Context, files []facts.FileFacts) ([]analyzedFile, error) {
	start := time.Now()
	defer func() {
		observability.AnalysisDuration.WithLabelValues("file_units").Observe(time.Since(start).Seconds())
	}()

	out := make([]analyzedFile, len(files))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.Config.Analysis.Workers)
	for i, f := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			fc := e.complexity.AnalyzeFile(f)
			if fc.Overflow {
				observability.OverflowClampsTotal.Inc()
				slog.Warn("complexity metrics clamped", "path", f.Path)
			}
			out[i] = analyzedFile{Facts: f, Complexity: fc, Patterns: e.patterns.DetectPatterns(f)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// rebuild derives the next snapshot from base. Upserted files replace their
// previous facts and removals drop every entity owned by the path. Concepts
// are re-learned only when relearn is set; otherwise the base concept set
// is kept with concepts pointing into removed files pruned.
func (e *Engine) rebuild(base *Snapshot, upserts []analyzedFile, removals []string, relearn bool, now time.Time) (*Snapshot, error) {
	start := time.Now()
	defer func() {
		observability.AnalysisDuration.WithLabelValues("snapshot_rebuild").Observe(time.Since(start).Seconds())
	}()

	next := &Snapshot{
		ID:         uuid.NewString(),
		Version:    base.Version + 1,
		CreatedAt:  now,
		Files:      make(map[string]facts.FileFacts, len(base.Files)+len(upserts)),
		Complexity: make(map[string]complexity.FileComplexity, len(base.Complexity)+len(upserts)),
		Patterns:   base.Patterns.Clone(),
		Index:      base.Index.Clone(),
	}
	for p, f := range base.Files {
		next.Files[p] = f
	}
	for p, fc := range base.Complexity {
		next.Complexity[p] = fc
	}

	upsertFacts := make([]facts.FileFacts, 0, len(upserts))
	for _, u := range upserts {
		next.Files[u.Facts.Path] = u.Facts
		next.Complexity[u.Facts.Path] = u.Complexity
		next.Patterns.Observe(u.Facts.Path, u.Patterns)
		upsertFacts = append(upsertFacts, u.Facts)
	}
	for _, p := range removals {
		delete(next.Files, p)
		delete(next.Complexity, p)
		next.Patterns.Forget(p)
	}

	g, err := graph.Apply(base.Graph, next.lookup, upsertFacts, removals)
	if err != nil {
		return nil, err
	}
	next.Graph = g
	next.Metrics = g.ComputeMetrics()
	next.Cycles = g.DetectCycles(e.Config.Analysis.MaxCycles)

	if relearn {
		next.Concepts = e.learnConcepts(next)
	} else {
		next.Concepts = withoutPaths(base.Concepts, removals)
	}
	next.Blueprint = semantic.GenerateBlueprint(next.Concepts)
	next.referenced = referencedPaths(next.Patterns, next.Concepts)

	for _, p := range removals {
		next.Index.RemovePath(p)
	}
	for _, u := range upserts {
		next.Index.RemovePath(u.Facts.Path)
		indexFile(next.Index, u.Facts, next.Patterns.Patterns(u.Facts.Path), now)
	}
	if relearn {
		indexConcepts(next.Index, next.Concepts, now)
	}
	pruned := next.Index.Prune(liveSources(next))
	observability.IndexPrunedTotal.Add(float64(len(pruned)))
	return next, nil
}

func (e *Engine) learnConcepts(s *Snapshot) semantic.ConceptSet {
	start := time.Now()
	defer func() {
		observability.AnalysisDuration.WithLabelValues("concepts").Observe(time.Since(start).Seconds())
	}()

	files := make([]facts.FileFacts, 0, len(s.Files))
	for _, p := range s.Paths() {
		files = append(files, s.Files[p])
	}
	return e.semantic.ExtractConcepts(semantic.Input{
		Files:    files,
		Graph:    s.Graph,
		Patterns: s.Patterns.All(),
	})
}

// withoutPaths drops concept locations in removed files, then concepts
// left without any location and relationships to them.
func withoutPaths(set semantic.ConceptSet, removals []string) semantic.ConceptSet {
	if len(removals) == 0 {
		return set
	}
	gone := make(map[string]bool, len(removals))
	for _, p := range removals {
		gone[p] = true
	}

	out := semantic.ConceptSet{}
	kept := make(map[string]bool, len(set.Concepts))
	for _, c := range set.Concepts {
		if len(c.Locations) > 0 {
			locs := make([]semantic.Location, 0, len(c.Locations))
			for _, loc := range c.Locations {
				if !gone[loc.Path] {
					locs = append(locs, loc)
				}
			}
			if len(locs) == 0 {
				continue
			}
			c.Locations = locs
		}
		kept[c.ID] = true
		out.Concepts = append(out.Concepts, c)
	}
	for _, r := range set.Relationships {
		if kept[r.Source] && kept[r.Target] {
			out.Relationships = append(out.Relationships, r)
		}
	}
	return out
}

func symbolText(path string, sym facts.Symbol) string {
	return strings.Join([]string{sym.QualifiedName(), string(sym.Kind), path}, " ")
}

func patternText(p patterns.DetectedPattern) string {
	return strings.Join([]string{string(p.Kind), "pattern", p.Symbol, p.Path}, " ")
}

// indexFile embeds the exported symbols and detected patterns of one file.
func indexFile(ix *embedding.Index, f facts.FileFacts, ps []patterns.DetectedPattern, now time.Time) {
	for _, sym := range f.Symbols {
		if !sym.Exported {
			continue
		}
		src := embedding.Source{Kind: embedding.SourceSymbol, EntityID: facts.SymbolID(f.Path, sym), Path: f.Path}
		ix.Put(src, symbolText(f.Path, sym), now)
	}
	for _, p := range ps {
		src := embedding.Source{Kind: embedding.SourcePattern, EntityID: p.ID, Path: p.Path}
		ix.Put(src, patternText(p), now)
	}
}

// indexConcepts makes the concept entries of ix match set exactly.
func indexConcepts(ix *embedding.Index, set semantic.ConceptSet, now time.Time) {
	keep := make(map[string]bool, len(set.Concepts))
	for _, c := range set.Concepts {
		keep[c.ID] = true
	}
	ix.RemoveKind(embedding.SourceConcept, keep)
	for _, c := range set.Concepts {
		ix.Put(embedding.Source{Kind: embedding.SourceConcept, EntityID: c.ID}, c.Text(), now)
	}
}

// reindexAll rebuilds every index entry of s from its sources.
func reindexAll(s *Snapshot, now time.Time) {
	for _, p := range s.Paths() {
		indexFile(s.Index, s.Files[p], s.Patterns.Patterns(p), now)
	}
	indexConcepts(s.Index, s.Concepts, now)
}

// liveSources reports whether an index source still has a backing entity
// in s.
func liveSources(s *Snapshot) func(embedding.Source) bool {
	concepts := make(map[string]bool, len(s.Concepts.Concepts))
	for _, c := range s.Concepts.Concepts {
		concepts[c.ID] = true
	}
	return func(src embedding.Source) bool {
		switch src.Kind {
		case embedding.SourceConcept:
			return concepts[src.EntityID]
		case embedding.SourcePattern:
			for _, p := range s.Patterns.Patterns(src.Path) {
				if p.ID == src.EntityID {
					return true
				}
			}
			return false
		case embedding.SourceSymbol:
			return s.Graph.HasNode(src.EntityID)
		default:
			return false
		}
	}
}
