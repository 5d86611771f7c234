package graph

import (
	"errors"
	"reflect"
	"testing"

	codeerrors "codeintel/internal/core/errors"
	"codeintel/internal/engine/facts"
)

func file(path string, imports ...string) facts.FileFacts {
	f := facts.FileFacts{Path: path, Language: "go"}
	for _, imp := range imports {
		f.Imports = append(f.Imports, facts.Import{Target: imp})
	}
	f.Normalize()
	return f
}

func mustFromFacts(t *testing.T, files ...facts.FileFacts) *Graph {
	t.Helper()
	g, err := FromFacts(files)
	if err != nil {
		t.Fatalf("FromFacts failed: %v", err)
	}
	return g
}

func lookupOf(files ...facts.FileFacts) Lookup {
	byPath := make(map[string]facts.FileFacts, len(files))
	for _, f := range files {
		byPath[f.Path] = f
	}
	return func(p string) (facts.FileFacts, bool) {
		f, ok := byPath[p]
		return f, ok
	}
}

func TestBuilder_AddEdgeRejectsUnknownEndpoints(t *testing.T) {
	b := NewBuilder()
	if err := b.AddNode(Node{ID: "a", Kind: NodeFile, Path: "a"}); err != nil {
		t.Fatal(err)
	}

	err := b.AddEdge(Edge{Source: "a", Target: "missing", Type: EdgeImport})
	if !codeerrors.IsCode(err, codeerrors.CodeInvalidReference) {
		t.Fatalf("expected InvalidReference, got %v", err)
	}
	err = b.AddEdge(Edge{Source: "missing", Target: "a", Type: EdgeImport})
	if !codeerrors.IsCode(err, codeerrors.CodeInvalidReference) {
		t.Fatalf("expected InvalidReference, got %v", err)
	}
	if err := b.AddNode(Node{}); err == nil {
		t.Error("expected error for empty node id")
	}

	g := b.Build()
	if g.EdgeCount() != 0 {
		t.Errorf("rejected edges must not be stored, got %d", g.EdgeCount())
	}
}

func TestBuilder_MultiEdgesOfDifferentTypes(t *testing.T) {
	b := NewBuilder()
	_ = b.AddNode(Node{ID: "a", Kind: NodeSymbol})
	_ = b.AddNode(Node{ID: "b", Kind: NodeSymbol})
	for _, e := range []Edge{
		{Source: "a", Target: "b", Type: EdgeCall},
		{Source: "a", Target: "b", Type: EdgeCall},
		{Source: "a", Target: "b", Type: EdgeInheritance},
	} {
		if err := b.AddEdge(e); err != nil {
			t.Fatal(err)
		}
	}
	g := b.Build()

	edges := g.OutEdges("a")
	if len(edges) != 2 {
		t.Fatalf("expected 2 typed edges, got %+v", edges)
	}
	if edges[0].Type != EdgeCall || edges[0].Weight != 2 {
		t.Errorf("expected repeated call edge to accumulate weight 2, got %+v", edges[0])
	}
	if edges[1].Type != EdgeInheritance {
		t.Errorf("expected inheritance edge, got %+v", edges[1])
	}
}

func TestFromFacts_ResolvesImportsAndSymbols(t *testing.T) {
	repo := facts.FileFacts{
		Path: "store/repo.go", Language: "go", Module: "store",
		Symbols: []facts.Symbol{
			{Name: "Base", Kind: facts.KindStruct, Exported: true},
			{Name: "Repo", Kind: facts.KindStruct, Exported: true, Bases: []string{"Base"}},
			{Name: "Get", Parent: "Repo", Kind: facts.KindMethod, Exported: true},
		},
	}
	svc := facts.FileFacts{
		Path: "service/user.go", Language: "go", Module: "service",
		Imports: []facts.Import{{Target: "store", Names: []string{"Repo"}}, {Target: "fmt"}},
		Symbols: []facts.Symbol{
			{Name: "Load", Kind: facts.KindFunction, Calls: []string{"store.Get", "helper", "fmt.Println"}},
			{Name: "helper", Kind: facts.KindFunction},
		},
	}
	g := mustFromFacts(t, repo, svc)

	if !g.hasEdge("service/user.go", "store/repo.go", EdgeImport) {
		t.Error("expected module import to resolve to store/repo.go")
	}
	if !g.hasEdge("service/user.go", ExternalID("fmt"), EdgeImport) {
		t.Error("expected fmt to be recorded as an external module")
	}
	if n, _ := g.Node(ExternalID("fmt")); !n.External || n.Kind != NodeModule {
		t.Errorf("expected external module node, got %+v", n)
	}
	if !g.hasEdge("service/user.go", "store/repo.go#Repo", EdgeReference) {
		t.Error("expected reference edge to imported symbol")
	}
	if !g.hasEdge("service/user.go#Load", "store/repo.go#Repo.Get", EdgeCall) {
		t.Error("expected qualified call to resolve to Repo.Get")
	}
	if !g.hasEdge("service/user.go#Load", "service/user.go#helper", EdgeCall) {
		t.Error("expected local call edge")
	}
	if !g.hasEdge("store/repo.go#Repo", "store/repo.go#Base", EdgeInheritance) {
		t.Error("expected inheritance edge")
	}
	if got := g.FileSymbols("store/repo.go"); len(got) != 3 {
		t.Errorf("expected 3 symbols, got %v", got)
	}
	if got := g.ModuleFiles("store"); !reflect.DeepEqual(got, []string{"store/repo.go"}) {
		t.Errorf("unexpected module files %v", got)
	}
}

func TestFromFacts_ResolvesExtensionlessImports(t *testing.T) {
	g := mustFromFacts(t,
		file("src/api/handler.ts", "./service", "../lib"),
		file("src/api/service.ts"),
		file("src/lib/index.ts"),
	)
	if !g.hasEdge("src/api/handler.ts", "src/api/service.ts", EdgeImport) {
		t.Error("expected ./service to resolve to service.ts")
	}
	if !g.hasEdge("src/api/handler.ts", "src/lib/index.ts", EdgeImport) {
		t.Error("expected ../lib to resolve to lib/index.ts")
	}
}

func TestApply_RemovalLeavesNoOrphans(t *testing.T) {
	a := file("a.go", "b.go")
	b := file("b.go", "c.go")
	c := file("c.go", "a.go")
	c.Symbols = []facts.Symbol{{Name: "C", Kind: facts.KindFunction}}
	g := mustFromFacts(t, a, b, c)

	if len(g.DetectCycles(0).Cycles) != 1 {
		t.Fatal("expected the a->b->c cycle")
	}

	next, err := Apply(g, lookupOf(a, b), nil, []string{"c.go"})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	for _, n := range next.Nodes() {
		if n.Path == "c.go" || n.ID == "c.go" {
			t.Errorf("expected no node for removed file, found %+v", n)
		}
	}
	for _, e := range next.Edges() {
		if e.Source == "c.go" || e.Target == "c.go" {
			t.Errorf("expected no edge touching removed file, found %+v", e)
		}
	}
	if got := next.DetectCycles(0).Cycles; len(got) != 0 {
		t.Errorf("expected cycle to disappear, got %v", got)
	}
	if !next.hasEdge("b.go", ExternalID("c.go"), EdgeImport) {
		t.Error("expected dangling import to become external")
	}

	// The base snapshot is untouched.
	if !g.HasNode("c.go") || len(g.DetectCycles(0).Cycles) != 1 {
		t.Error("Apply must not mutate the base graph")
	}
}

func TestApply_UpsertResolvesPreviouslyExternalImport(t *testing.T) {
	a := file("a.go", "b.go")
	g := mustFromFacts(t, a)
	if !g.HasNode(ExternalID("b.go")) {
		t.Fatal("expected b.go to be external before it exists")
	}

	b := file("b.go")
	next, err := Apply(g, lookupOf(a, b), []facts.FileFacts{b}, nil)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if !next.hasEdge("a.go", "b.go", EdgeImport) {
		t.Error("expected import to resolve after b.go appeared")
	}
	if next.HasNode(ExternalID("b.go")) {
		t.Error("expected stale external node to be dropped")
	}
}

func TestApply_UpdateRebuildsDependentEdges(t *testing.T) {
	lib := file("lib.go")
	lib.Symbols = []facts.Symbol{{Name: "Old", Kind: facts.KindFunction}}
	app := file("app.go", "lib.go")
	app.Symbols = []facts.Symbol{{Name: "Main", Kind: facts.KindFunction, Calls: []string{"New"}}}
	g := mustFromFacts(t, lib, app)
	if g.hasEdge("app.go#Main", "lib.go#New", EdgeCall) {
		t.Fatal("call must not resolve before New exists")
	}

	lib2 := file("lib.go")
	lib2.Symbols = []facts.Symbol{{Name: "New", Kind: facts.KindFunction}}
	next, err := Apply(g, lookupOf(lib2, app), []facts.FileFacts{lib2}, nil)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if next.HasNode("lib.go#Old") {
		t.Error("expected old symbol to be removed")
	}
	if !next.hasEdge("app.go#Main", "lib.go#New", EdgeCall) {
		t.Error("expected dependent call edge to be re-resolved")
	}
}

func TestApply_MissingDependentFacts(t *testing.T) {
	g := mustFromFacts(t, file("a.go", "b.go"), file("b.go"))
	_, err := Apply(g, lookupOf(), nil, []string{"b.go"})
	if !codeerrors.IsCode(err, codeerrors.CodeIndexInconsistency) {
		t.Fatalf("expected IndexInconsistency, got %v", err)
	}
}

func TestGraph_FindPath(t *testing.T) {
	g := mustFromFacts(t,
		file("a.go", "b.go"),
		file("b.go", "c.go"),
		file("c.go"),
	)
	path, ok := g.FindPath("a.go", "c.go")
	if !ok || !reflect.DeepEqual(path, []string{"a.go", "b.go", "c.go"}) {
		t.Errorf("unexpected path %v (%v)", path, ok)
	}
	if _, ok := g.FindPath("c.go", "a.go"); ok {
		t.Error("expected no reverse path")
	}
	if path, ok := g.FindPath("a.go", "a.go"); !ok || len(path) != 1 {
		t.Errorf("expected trivial path, got %v", path)
	}
}

func TestGraph_AnalyzeImpact(t *testing.T) {
	core := file("core/core.go")
	core.Symbols = []facts.Symbol{{Name: "Do", Kind: facts.KindFunction, Exported: true}}
	mid := file("mid/mid.go", "core/core.go")
	mid.Symbols = []facts.Symbol{{Name: "Run", Kind: facts.KindFunction, Calls: []string{"Do"}}}
	top := file("top/top.go", "mid/mid.go")
	g := mustFromFacts(t, core, mid, top)

	report, err := g.AnalyzeImpact("core/core.go")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(report.DirectImporters, []string{"mid/mid.go"}) {
		t.Errorf("unexpected direct importers %v", report.DirectImporters)
	}
	if !reflect.DeepEqual(report.TransitiveImporters, []string{"top/top.go"}) {
		t.Errorf("unexpected transitive importers %v", report.TransitiveImporters)
	}
	if !reflect.DeepEqual(report.ExternallyUsedSymbols, []string{"Do"}) {
		t.Errorf("unexpected used symbols %v", report.ExternallyUsedSymbols)
	}
	if !reflect.DeepEqual(report.BlastRadius, []string{"mid/mid.go", "top/top.go"}) {
		t.Errorf("unexpected blast radius %v", report.BlastRadius)
	}

	byModule, err := g.AnalyzeImpact("core")
	if err != nil || byModule.TargetPath != "core/core.go" {
		t.Errorf("expected module lookup to resolve to its file, got %+v (%v)", byModule, err)
	}
}

func TestGraph_AnalyzeImpact_TargetNotFound(t *testing.T) {
	g := New()
	_, err := g.AnalyzeImpact("missing.go")
	if !errors.Is(err, ErrImpactTargetNotFound) {
		t.Fatalf("expected ErrImpactTargetNotFound, got %v", err)
	}
	var targetErr *ImpactTargetError
	if !errors.As(err, &targetErr) || targetErr.Target != "missing.go" {
		t.Errorf("expected ImpactTargetError for missing.go, got %v", err)
	}
}
