// Package graph holds the dependency graph of files, external modules and
// symbols. A Graph is immutable once built; mutations go through a Builder
// that works on a private copy so readers never see a partial rebuild.
package graph

import (
	"sort"
)

type NodeKind string

const (
	NodeFile   NodeKind = "file"
	NodeModule NodeKind = "module"
	NodeSymbol NodeKind = "symbol"
)

type EdgeType string

const (
	EdgeImport      EdgeType = "import"
	EdgeCall        EdgeType = "call"
	EdgeInheritance EdgeType = "inheritance"
	EdgeReference   EdgeType = "reference"
)

type Node struct {
	ID   string   `json:"id"`
	Kind NodeKind `json:"kind"`
	// Path is the declaring file for file and symbol nodes.
	Path string `json:"path,omitempty"`
	// Name is the qualified symbol name, or the module name for module nodes.
	Name       string `json:"name,omitempty"`
	Module     string `json:"module,omitempty"`
	Language   string `json:"language,omitempty"`
	SymbolKind string `json:"symbol_kind,omitempty"`
	Exported   bool   `json:"exported,omitempty"`
	// External marks module nodes for import targets outside the project.
	External bool `json:"external,omitempty"`
}

type Edge struct {
	Source string   `json:"source"`
	Target string   `json:"target"`
	Type   EdgeType `json:"type"`
	Weight float64  `json:"weight"`
}

type edgeKey struct {
	source string
	target string
	typ    EdgeType
}

type Graph struct {
	nodes map[string]Node
	edges map[edgeKey]float64
	out   map[string]map[edgeKey]struct{}
	in    map[string]map[edgeKey]struct{}

	// fileSymbols maps a file path to the ids of symbols it declares.
	fileSymbols map[string]map[string]struct{}
	// modules maps a module name to the files that belong to it.
	modules map[string]map[string]struct{}
}

func New() *Graph {
	return &Graph{
		nodes:       make(map[string]Node),
		edges:       make(map[edgeKey]float64),
		out:         make(map[string]map[edgeKey]struct{}),
		in:          make(map[string]map[edgeKey]struct{}),
		fileSymbols: make(map[string]map[string]struct{}),
		modules:     make(map[string]map[string]struct{}),
	}
}

func (g *Graph) clone() *Graph {
	c := &Graph{
		nodes:       make(map[string]Node, len(g.nodes)),
		edges:       make(map[edgeKey]float64, len(g.edges)),
		out:         make(map[string]map[edgeKey]struct{}, len(g.out)),
		in:          make(map[string]map[edgeKey]struct{}, len(g.in)),
		fileSymbols: make(map[string]map[string]struct{}, len(g.fileSymbols)),
		modules:     make(map[string]map[string]struct{}, len(g.modules)),
	}
	for id, n := range g.nodes {
		c.nodes[id] = n
	}
	for k, w := range g.edges {
		c.edges[k] = w
	}
	c.out = cloneKeySets(g.out)
	c.in = cloneKeySets(g.in)
	c.fileSymbols = cloneStringSets(g.fileSymbols)
	c.modules = cloneStringSets(g.modules)
	return c
}

func (g *Graph) NodeCount() int {
	return len(g.nodes)
}

func (g *Graph) EdgeCount() int {
	return len(g.edges)
}

func (g *Graph) HasNode(id string) bool {
	_, ok := g.nodes[id]
	return ok
}

func (g *Graph) Node(id string) (Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Nodes returns every node sorted by id.
func (g *Graph) Nodes() []Node {
	res := make([]Node, 0, len(g.nodes))
	for _, id := range g.sortedNodeIDs() {
		res = append(res, g.nodes[id])
	}
	return res
}

// Edges returns every edge sorted by source, target, then type.
func (g *Graph) Edges() []Edge {
	res := make([]Edge, 0, len(g.edges))
	for k, w := range g.edges {
		res = append(res, Edge{Source: k.source, Target: k.target, Type: k.typ, Weight: w})
	}
	sortEdges(res)
	return res
}

func (g *Graph) OutEdges(id string) []Edge {
	return g.collect(g.out[id])
}

func (g *Graph) InEdges(id string) []Edge {
	return g.collect(g.in[id])
}

func (g *Graph) collect(keys map[edgeKey]struct{}) []Edge {
	res := make([]Edge, 0, len(keys))
	for k := range keys {
		res = append(res, Edge{Source: k.source, Target: k.target, Type: k.typ, Weight: g.edges[k]})
	}
	sortEdges(res)
	return res
}

// Files returns the paths of every file node, sorted.
func (g *Graph) Files() []string {
	res := make([]string, 0, len(g.fileSymbols))
	for id, n := range g.nodes {
		if n.Kind == NodeFile {
			res = append(res, id)
		}
	}
	sort.Strings(res)
	return res
}

// FileSymbols returns the ids of the symbols declared in path, sorted.
func (g *Graph) FileSymbols(path string) []string {
	return sortedSet(g.fileSymbols[path])
}

// ModuleFiles returns the files belonging to module, sorted.
func (g *Graph) ModuleFiles(module string) []string {
	return sortedSet(g.modules[module])
}

// FileOf maps any node id to the file that owns it. Module nodes have no file.
func (g *Graph) FileOf(id string) (string, bool) {
	n, ok := g.nodes[id]
	if !ok || n.Kind == NodeModule {
		return "", false
	}
	return n.Path, true
}

// successors returns the distinct targets of id's out edges, sorted.
func (g *Graph) successors(id string) []string {
	seen := make(map[string]struct{}, len(g.out[id]))
	for k := range g.out[id] {
		seen[k.target] = struct{}{}
	}
	return sortedSet(seen)
}

func (g *Graph) predecessors(id string) []string {
	seen := make(map[string]struct{}, len(g.in[id]))
	for k := range g.in[id] {
		seen[k.source] = struct{}{}
	}
	return sortedSet(seen)
}

func (g *Graph) hasEdge(source, target string, typ EdgeType) bool {
	_, ok := g.edges[edgeKey{source: source, target: target, typ: typ}]
	return ok
}

func (g *Graph) sortedNodeIDs() []string {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func sortEdges(edges []Edge) {
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Source != edges[j].Source {
			return edges[i].Source < edges[j].Source
		}
		if edges[i].Target != edges[j].Target {
			return edges[i].Target < edges[j].Target
		}
		return edges[i].Type < edges[j].Type
	})
}

func sortedSet(set map[string]struct{}) []string {
	res := make([]string, 0, len(set))
	for v := range set {
		res = append(res, v)
	}
	sort.Strings(res)
	return res
}

func cloneKeySets(src map[string]map[edgeKey]struct{}) map[string]map[edgeKey]struct{} {
	dst := make(map[string]map[edgeKey]struct{}, len(src))
	for id, keys := range src {
		c := make(map[edgeKey]struct{}, len(keys))
		for k := range keys {
			c[k] = struct{}{}
		}
		dst[id] = c
	}
	return dst
}

func cloneStringSets(src map[string]map[string]struct{}) map[string]map[string]struct{} {
	dst := make(map[string]map[string]struct{}, len(src))
	for k, set := range src {
		c := make(map[string]struct{}, len(set))
		for v := range set {
			c[v] = struct{}{}
		}
		dst[k] = c
	}
	return dst
}
