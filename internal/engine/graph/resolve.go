package graph

import (
	"path"
	"sort"
	"strings"

	codeerrors "codeintel/internal/core/errors"
	"codeintel/internal/engine/facts"
)

// Lookup returns the current facts for a file path.
type Lookup func(path string) (facts.FileFacts, bool)

const externalPrefix = "ext:"

// ExternalID is the node id of an import target outside the project. The
// prefix keeps it from ever colliding with a file path.
func ExternalID(target string) string {
	return externalPrefix + target
}

// importTargetsFor lists the import strings that resolve to a file at p.
func importTargetsFor(p string) []string {
	stem := strings.TrimSuffix(p, path.Ext(p))
	targets := []string{p, stem}
	switch path.Base(stem) {
	case "index", "__init__":
		targets = append(targets, path.Dir(stem))
	}
	return targets
}

// FromFacts builds a graph from a complete set of file facts.
func FromFacts(files []facts.FileFacts) (*Graph, error) {
	byPath := make(map[string]facts.FileFacts, len(files))
	for _, f := range files {
		byPath[f.Path] = f
	}
	lookup := func(p string) (facts.FileFacts, bool) {
		f, ok := byPath[p]
		return f, ok
	}
	return Apply(New(), lookup, files, nil)
}

// Apply produces a new graph from base with upserted files replaced and
// removed files deleted. Only the changed files, the files whose edges
// pointed into them and the files whose unresolved imports may now resolve
// are re-resolved; lookup supplies facts for the latter two groups.
func Apply(base *Graph, lookup Lookup, upserts []facts.FileFacts, removals []string) (*Graph, error) {
	if base == nil {
		base = New()
	}
	b := BuilderFrom(base)
	g := b.Graph()

	changed := make(map[string]struct{}, len(upserts)+len(removals))
	upsertByPath := make(map[string]facts.FileFacts, len(upserts))
	for _, f := range upserts {
		changed[f.Path] = struct{}{}
		upsertByPath[f.Path] = f
	}
	for _, p := range removals {
		changed[p] = struct{}{}
	}

	reresolve := make(map[string]struct{})
	markImportersOf := func(id string) {
		for k := range g.in[id] {
			if owner, ok := g.FileOf(k.source); ok {
				if _, isChanged := changed[owner]; !isChanged {
					reresolve[owner] = struct{}{}
				}
			}
		}
	}

	touchedModules := make(map[string]struct{})
	for p := range changed {
		markImportersOf(p)
		for sym := range g.fileSymbols[p] {
			markImportersOf(sym)
		}
		if n, ok := g.nodes[p]; ok && n.Kind == NodeFile {
			touchedModules[n.Module] = struct{}{}
		}
	}
	var resolvedExternals []string
	for _, f := range upserts {
		touchedModules[f.Module] = struct{}{}
		for _, target := range importTargetsFor(f.Path) {
			if _, ok := g.nodes[ExternalID(target)]; ok {
				resolvedExternals = append(resolvedExternals, ExternalID(target))
			}
		}
	}
	for m := range touchedModules {
		for file := range g.modules[m] {
			markImportersOf(file)
		}
		if _, ok := g.nodes[ExternalID(m)]; ok {
			resolvedExternals = append(resolvedExternals, ExternalID(m))
		}
	}
	for _, ext := range resolvedExternals {
		markImportersOf(ext)
	}

	// Clear everything owned by changed files.
	for p := range changed {
		for _, sym := range sortedSet(g.fileSymbols[p]) {
			b.RemoveNode(sym)
		}
		if n, ok := g.nodes[p]; ok && n.Kind == NodeFile {
			b.RemoveNode(p)
		}
	}
	for p := range reresolve {
		b.RemoveOutEdges(p)
		for sym := range g.fileSymbols[p] {
			b.RemoveOutEdges(sym)
		}
	}
	// Externals that may now resolve to project files are rebuilt by the
	// importers' re-resolution; drop them so no stale edge survives.
	for _, ext := range resolvedExternals {
		b.RemoveNode(ext)
	}

	// Nodes first so edges between upserted files resolve regardless of order.
	paths := make([]string, 0, len(upsertByPath))
	for p := range upsertByPath {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		if err := addFileNodes(b, upsertByPath[p]); err != nil {
			return nil, err
		}
	}

	resolveSet := make([]string, 0, len(paths)+len(reresolve))
	resolveSet = append(resolveSet, paths...)
	for p := range reresolve {
		resolveSet = append(resolveSet, p)
	}
	sort.Strings(resolveSet)

	for _, p := range resolveSet {
		f, ok := upsertByPath[p]
		if !ok {
			f, ok = lookup(p)
			if !ok {
				return nil, codeerrors.AddContext(
					codeerrors.New(codeerrors.CodeIndexInconsistency, "no facts for dependent file"),
					codeerrors.CtxPath, p)
			}
		}
		if err := addFileEdges(b, f); err != nil {
			return nil, err
		}
	}

	dropOrphanModules(b)
	return b.Build(), nil
}

func addFileNodes(b *Builder, f facts.FileFacts) error {
	if err := b.AddNode(Node{
		ID:       f.Path,
		Kind:     NodeFile,
		Path:     f.Path,
		Module:   f.Module,
		Language: f.Language,
	}); err != nil {
		return err
	}
	for _, sym := range f.Symbols {
		if err := b.AddNode(Node{
			ID:         facts.SymbolID(f.Path, sym),
			Kind:       NodeSymbol,
			Path:       f.Path,
			Name:       sym.QualifiedName(),
			Module:     f.Module,
			Language:   f.Language,
			SymbolKind: string(sym.Kind),
			Exported:   sym.Exported,
		}); err != nil {
			return err
		}
	}
	return nil
}

func addFileEdges(b *Builder, f facts.FileFacts) error {
	g := b.Graph()
	imported := make([]string, 0, len(f.Imports))
	for _, imp := range f.Imports {
		targets := resolveImport(g, f.Path, imp.Target)
		if len(targets) == 0 {
			ext := ExternalID(imp.Target)
			if err := b.AddNode(Node{ID: ext, Kind: NodeModule, Name: imp.Target, External: true}); err != nil {
				return err
			}
			targets = []string{ext}
		}
		for _, t := range targets {
			if err := b.AddEdge(Edge{Source: f.Path, Target: t, Type: EdgeImport, Weight: 1}); err != nil {
				return err
			}
			if n := g.nodes[t]; n.Kind == NodeFile {
				imported = append(imported, t)
			}
			for _, name := range imp.Names {
				if id, ok := findSymbol(g, t, name, false); ok {
					if err := b.AddEdge(Edge{Source: f.Path, Target: id, Type: EdgeReference, Weight: 1}); err != nil {
						return err
					}
				}
			}
		}
	}

	for _, sym := range f.Symbols {
		from := facts.SymbolID(f.Path, sym)
		for _, call := range sym.Calls {
			if id, ok := resolveSymbol(g, f.Path, sym.Parent, imported, call, false); ok {
				if err := b.AddEdge(Edge{Source: from, Target: id, Type: EdgeCall, Weight: 1}); err != nil {
					return err
				}
			}
		}
		for _, base := range sym.Bases {
			if id, ok := resolveSymbol(g, f.Path, "", imported, base, true); ok {
				if err := b.AddEdge(Edge{Source: from, Target: id, Type: EdgeInheritance, Weight: 1}); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// resolveImport maps an import target to project files: an exact path, a
// path without extension or an index file, then every file of a module with
// that name. No match means the import is external.
func resolveImport(g *Graph, from, target string) []string {
	if n, ok := g.nodes[target]; ok && n.Kind == NodeFile {
		return []string{target}
	}
	var byStem []string
	for file := range g.fileSymbols {
		if file == from {
			continue
		}
		if n, ok := g.nodes[file]; !ok || n.Kind != NodeFile {
			continue
		}
		stem := strings.TrimSuffix(file, path.Ext(file))
		if stem == target || stem == target+"/index" || stem == target+"/__init__" {
			byStem = append(byStem, file)
		}
	}
	if len(byStem) > 0 {
		sort.Strings(byStem)
		return byStem
	}
	var members []string
	for file := range g.modules[target] {
		if file != from {
			members = append(members, file)
		}
	}
	sort.Strings(members)
	return members
}

// resolveSymbol finds the declaration a call or base name refers to. The
// declaring file is searched first, then imported files. Qualified names
// like "pkg.Func" fall back to their last segment.
func resolveSymbol(g *Graph, file, parent string, imported []string, name string, typesOnly bool) (string, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", false
	}
	candidates := []string{name}
	if parent != "" && !strings.Contains(name, ".") {
		candidates = append([]string{parent + "." + name}, candidates...)
	}
	if idx := strings.LastIndex(name, "."); idx >= 0 && idx < len(name)-1 {
		candidates = append(candidates, name[idx+1:])
	}
	for _, c := range candidates {
		if id, ok := findSymbol(g, file, c, typesOnly); ok {
			return id, true
		}
	}
	for _, c := range candidates {
		for _, imp := range imported {
			if id, ok := findSymbol(g, imp, c, typesOnly); ok {
				return id, true
			}
		}
	}
	return "", false
}

func findSymbol(g *Graph, file, name string, typesOnly bool) (string, bool) {
	direct := file + "#" + name
	if n, ok := g.nodes[direct]; ok && (!typesOnly || isTypeLike(n.SymbolKind)) {
		return direct, true
	}
	// Unqualified method names match the first member in id order.
	var match string
	for id := range g.fileSymbols[file] {
		n := g.nodes[id]
		if typesOnly && !isTypeLike(n.SymbolKind) {
			continue
		}
		if strings.HasSuffix(n.Name, "."+name) && (match == "" || id < match) {
			match = id
		}
	}
	return match, match != ""
}

func isTypeLike(kind string) bool {
	return facts.SymbolKind(kind).IsTypeLike()
}

// dropOrphanModules removes external module nodes nothing imports anymore.
func dropOrphanModules(b *Builder) {
	g := b.Graph()
	var orphans []string
	for id, n := range g.nodes {
		if n.Kind == NodeModule && len(g.in[id]) == 0 {
			orphans = append(orphans, id)
		}
	}
	for _, id := range orphans {
		b.RemoveNode(id)
	}
}
