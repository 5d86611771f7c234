package graph

import (
	codeerrors "codeintel/internal/core/errors"
)

// Builder accumulates mutations on a private copy of a graph. Build hands the
// copy out as an immutable Graph; the builder must not be used afterwards.
type Builder struct {
	g *Graph
}

func NewBuilder() *Builder {
	return &Builder{g: New()}
}

// BuilderFrom starts a builder from a copy of base.
func BuilderFrom(base *Graph) *Builder {
	if base == nil {
		return NewBuilder()
	}
	return &Builder{g: base.clone()}
}

// AddNode inserts n, replacing the attributes of an existing node with the
// same id. Edges attached to the id are kept.
func (b *Builder) AddNode(n Node) error {
	if n.ID == "" {
		return codeerrors.New(codeerrors.CodeValidationError, "node id must not be empty")
	}
	if prev, ok := b.g.nodes[n.ID]; ok {
		b.unindex(prev)
	}
	b.g.nodes[n.ID] = n
	b.index(n)
	return nil
}

// AddEdge adds e, or adds its weight to an existing edge of the same type
// between the same endpoints. Both endpoints must already exist.
func (b *Builder) AddEdge(e Edge) error {
	if _, ok := b.g.nodes[e.Source]; !ok {
		return codeerrors.AddContext(
			codeerrors.Newf(codeerrors.CodeInvalidReference, "edge source %q does not exist", e.Source),
			codeerrors.CtxNode, e.Source)
	}
	if _, ok := b.g.nodes[e.Target]; !ok {
		return codeerrors.AddContext(
			codeerrors.Newf(codeerrors.CodeInvalidReference, "edge target %q does not exist", e.Target),
			codeerrors.CtxNode, e.Target)
	}
	switch e.Type {
	case EdgeImport, EdgeCall, EdgeInheritance, EdgeReference:
	default:
		return codeerrors.Newf(codeerrors.CodeValidationError, "unknown edge type %q", e.Type)
	}
	weight := e.Weight
	if weight <= 0 {
		weight = 1
	}
	k := edgeKey{source: e.Source, target: e.Target, typ: e.Type}
	b.g.edges[k] += weight
	addKey(b.g.out, e.Source, k)
	addKey(b.g.in, e.Target, k)
	return nil
}

// RemoveNode deletes the node and every edge touching it.
func (b *Builder) RemoveNode(id string) {
	n, ok := b.g.nodes[id]
	if !ok {
		return
	}
	for k := range b.g.out[id] {
		b.dropEdge(k)
	}
	for k := range b.g.in[id] {
		b.dropEdge(k)
	}
	delete(b.g.out, id)
	delete(b.g.in, id)
	delete(b.g.nodes, id)
	b.unindex(n)
}

// RemoveOutEdges deletes every edge leaving id.
func (b *Builder) RemoveOutEdges(id string) {
	for k := range b.g.out[id] {
		b.dropEdge(k)
	}
}

// Graph exposes the graph under construction for read-only lookups.
func (b *Builder) Graph() *Graph {
	return b.g
}

func (b *Builder) Build() *Graph {
	g := b.g
	b.g = nil
	return g
}

func (b *Builder) dropEdge(k edgeKey) {
	delete(b.g.edges, k)
	if keys := b.g.out[k.source]; keys != nil {
		delete(keys, k)
		if len(keys) == 0 {
			delete(b.g.out, k.source)
		}
	}
	if keys := b.g.in[k.target]; keys != nil {
		delete(keys, k)
		if len(keys) == 0 {
			delete(b.g.in, k.target)
		}
	}
}

func (b *Builder) index(n Node) {
	switch n.Kind {
	case NodeFile:
		addString(b.g.modules, n.Module, n.ID)
		if b.g.fileSymbols[n.ID] == nil {
			b.g.fileSymbols[n.ID] = make(map[string]struct{})
		}
	case NodeSymbol:
		addString(b.g.fileSymbols, n.Path, n.ID)
	}
}

func (b *Builder) unindex(n Node) {
	switch n.Kind {
	case NodeFile:
		removeString(b.g.modules, n.Module, n.ID)
		if len(b.g.fileSymbols[n.ID]) == 0 {
			delete(b.g.fileSymbols, n.ID)
		}
	case NodeSymbol:
		removeString(b.g.fileSymbols, n.Path, n.ID)
		if _, fileExists := b.g.nodes[n.Path]; !fileExists && len(b.g.fileSymbols[n.Path]) == 0 {
			delete(b.g.fileSymbols, n.Path)
		}
	}
}

func addKey(m map[string]map[edgeKey]struct{}, id string, k edgeKey) {
	if m[id] == nil {
		m[id] = make(map[edgeKey]struct{})
	}
	m[id][k] = struct{}{}
}

func addString(m map[string]map[string]struct{}, key, value string) {
	if m[key] == nil {
		m[key] = make(map[string]struct{})
	}
	m[key][value] = struct{}{}
}

func removeString(m map[string]map[string]struct{}, key, value string) {
	set := m[key]
	if set == nil {
		return
	}
	delete(set, value)
	if len(set) == 0 {
		delete(m, key)
	}
}
