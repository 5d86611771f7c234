package app

import (
	"sort"
	"time"

	"codeintel/internal/data/store"
	"codeintel/internal/engine/changes"
	"codeintel/internal/engine/complexity"
	"codeintel/internal/engine/embedding"
	"codeintel/internal/engine/facts"
	"codeintel/internal/engine/graph"
	"codeintel/internal/engine/patterns"
	"codeintel/internal/engine/semantic"
	"codeintel/internal/shared/util"
)

// Snapshot is one published, immutable state of every engine. Readers load
// it through Engine.Snapshot and never see a partially rebuilt value; the
// writer builds a fresh Snapshot and swaps the pointer.
type Snapshot struct {
	ID        string
	Version   uint64
	CreatedAt time.Time

	Files      map[string]facts.FileFacts
	Graph      *graph.Graph
	Metrics    graph.Metrics
	Cycles     graph.CycleReport
	Complexity map[string]complexity.FileComplexity
	Patterns   *patterns.Catalog
	Concepts   semantic.ConceptSet
	Blueprint  semantic.Blueprint
	Index      *embedding.Index

	referenced map[string]bool
}

func emptySnapshot(embedder embedding.Embedder) *Snapshot {
	g := graph.New()
	return &Snapshot{
		Files:      make(map[string]facts.FileFacts),
		Graph:      g,
		Metrics:    g.ComputeMetrics(),
		Complexity: make(map[string]complexity.FileComplexity),
		Patterns:   patterns.NewCatalog(),
		Blueprint:  semantic.GenerateBlueprint(semantic.ConceptSet{}),
		Index:      embedding.NewIndex(embedder),
		referenced: make(map[string]bool),
	}
}

// baseline exposes a snapshot to the change analyzer.
type baseline struct{ s *Snapshot }

var _ changes.Baseline = baseline{}

func (b baseline) Graph() *graph.Graph {
	return b.s.Graph
}

func (b baseline) Metrics() graph.Metrics {
	return b.s.Metrics
}

func (b baseline) Hash(path string) (string, bool) {
	f, ok := b.s.Files[path]
	if !ok || f.Hash == "" {
		return "", false
	}
	return f.Hash, true
}

func (b baseline) Referenced(path string) bool {
	return b.s.referenced[path]
}

// Paths returns the analyzed file paths in sorted order.
func (s *Snapshot) Paths() []string {
	return util.SortedStringKeys(s.Files)
}

func (s *Snapshot) lookup(path string) (facts.FileFacts, bool) {
	f, ok := s.Files[path]
	return f, ok
}

func referencedPaths(catalog *patterns.Catalog, set semantic.ConceptSet) map[string]bool {
	out := make(map[string]bool)
	for _, p := range catalog.Paths() {
		out[p] = true
	}
	for _, c := range set.Concepts {
		for _, loc := range c.Locations {
			if loc.Path != "" {
				out[loc.Path] = true
			}
		}
	}
	return out
}

// toRecord flattens the snapshot into its persisted form.
func (s *Snapshot) toRecord(analyses []changes.ChangeAnalysis) store.Snapshot {
	rec := store.Snapshot{
		ID:            s.ID,
		Version:       s.Version,
		CreatedAt:     s.CreatedAt,
		Nodes:         s.Graph.Nodes(),
		Edges:         s.Graph.Edges(),
		Patterns:      s.Patterns.All(),
		Concepts:      s.Concepts.Concepts,
		Relationships: s.Concepts.Relationships,
		Index:         s.Index.Entries(),
		Analyses:      analyses,
	}
	for _, p := range s.Paths() {
		rec.Files = append(rec.Files, s.Files[p])
	}
	for _, p := range util.SortedStringKeys(s.Complexity) {
		rec.Complexity = append(rec.Complexity, s.Complexity[p])
	}
	return rec
}

// snapshotFromRecord restores a persisted snapshot without re-extracting.
// The graph is rebuilt node by node so a dangling edge fails with
// InvalidReference instead of being dropped. Index entries whose vectors do
// not fit the configured embedder are re-embedded from their sources.
func snapshotFromRecord(rec store.Snapshot, embedder embedding.Embedder, maxCycles int) (*Snapshot, error) {
	b := graph.NewBuilder()
	for _, n := range rec.Nodes {
		if err := b.AddNode(n); err != nil {
			return nil, err
		}
	}
	for _, e := range rec.Edges {
		if err := b.AddEdge(e); err != nil {
			return nil, err
		}
	}
	g := b.Build()

	s := &Snapshot{
		ID:         rec.ID,
		Version:    rec.Version,
		CreatedAt:  rec.CreatedAt,
		Files:      make(map[string]facts.FileFacts, len(rec.Files)),
		Graph:      g,
		Metrics:    g.ComputeMetrics(),
		Cycles:     g.DetectCycles(maxCycles),
		Complexity: make(map[string]complexity.FileComplexity, len(rec.Complexity)),
		Patterns:   patterns.NewCatalog(),
		Concepts:   semantic.ConceptSet{Concepts: rec.Concepts, Relationships: rec.Relationships},
		Index:      embedding.NewIndex(embedder),
	}
	for _, f := range rec.Files {
		s.Files[f.Path] = f
	}
	for _, fc := range rec.Complexity {
		s.Complexity[fc.Path] = fc
	}

	byPath := make(map[string][]patterns.DetectedPattern)
	for _, p := range rec.Patterns {
		byPath[p.Path] = append(byPath[p.Path], p)
	}
	for p, ps := range byPath {
		s.Patterns.Observe(p, ps)
	}

	if err := s.Concepts.Validate(); err != nil {
		return nil, err
	}
	s.Blueprint = semantic.GenerateBlueprint(s.Concepts)
	s.referenced = referencedPaths(s.Patterns, s.Concepts)

	restored := true
	for _, entry := range rec.Index {
		if err := s.Index.Restore(entry); err != nil {
			restored = false
			break
		}
	}
	if !restored {
		s.Index = embedding.NewIndex(embedder)
		reindexAll(s, s.CreatedAt)
	}
	return s, nil
}

// sortedAnalyses orders analyses by path, then time, for persistence.
func sortedAnalyses(list []changes.ChangeAnalysis) []changes.ChangeAnalysis {
	out := append([]changes.ChangeAnalysis(nil), list...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Path != out[j].Path {
			return out[i].Path < out[j].Path
		}
		return out[i].AnalyzedAt.Before(out[j].AnalyzedAt)
	})
	return out
}
