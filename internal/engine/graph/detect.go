package graph

import (
	"sort"
	"strings"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// DefaultMaxCycles bounds enumeration when the caller passes no limit.
const DefaultMaxCycles = 1000

// Cycle is one elementary cycle. Nodes starts at the smallest id and repeats
// it at the end, so a self-loop is [a, a].
type Cycle struct {
	Nodes    []string `json:"nodes"`
	Severity Severity `json:"severity"`
}

// Len is the number of edges in the cycle.
func (c Cycle) Len() int {
	return len(c.Nodes) - 1
}

func (c Cycle) Key() string {
	return strings.Join(c.Nodes, "\x00")
}

type CycleReport struct {
	Cycles []Cycle `json:"cycles"`
	// Truncated is set when enumeration stopped at the limit.
	Truncated bool `json:"truncated,omitempty"`
}

// DetectCycles enumerates the elementary cycles of the graph. Components are
// found with an iterative Tarjan pass and cycles inside each component with
// an iterative Johnson search, so neither depends on recursion depth. Results
// are independent of insertion order.
func (g *Graph) DetectCycles(limit int) CycleReport {
	if limit <= 0 {
		limit = DefaultMaxCycles
	}
	ids := g.sortedNodeIDs()
	adjacency := make(map[string][]string, len(ids))
	for _, id := range ids {
		adjacency[id] = g.successors(id)
	}

	_, components := stronglyConnectedComponents(ids, adjacency)
	sort.Slice(components, func(i, j int) bool { return components[i][0] < components[j][0] })

	var report CycleReport
	for _, comp := range components {
		if len(comp) == 1 && !g.hasAnyEdge(comp[0], comp[0]) {
			continue
		}
		remaining := limit - len(report.Cycles)
		found, truncated := elementaryCycles(comp, adjacency, remaining)
		for _, nodes := range found {
			report.Cycles = append(report.Cycles, Cycle{Nodes: nodes, Severity: g.cycleSeverity(nodes)})
		}
		if truncated {
			report.Truncated = true
			break
		}
	}

	sort.Slice(report.Cycles, func(i, j int) bool {
		return lessPath(report.Cycles[i].Nodes, report.Cycles[j].Nodes)
	})
	return report
}

// CyclicNodes returns the set of nodes that sit on at least one cycle.
func (g *Graph) CyclicNodes() map[string]bool {
	ids := g.sortedNodeIDs()
	adjacency := make(map[string][]string, len(ids))
	for _, id := range ids {
		adjacency[id] = g.successors(id)
	}
	_, components := stronglyConnectedComponents(ids, adjacency)
	res := make(map[string]bool)
	for _, comp := range components {
		if len(comp) > 1 || g.hasAnyEdge(comp[0], comp[0]) {
			for _, id := range comp {
				res[id] = true
			}
		}
	}
	return res
}

func (g *Graph) hasAnyEdge(source, target string) bool {
	for k := range g.out[source] {
		if k.target == target {
			return true
		}
	}
	return false
}

func (g *Graph) cycleSeverity(nodes []string) Severity {
	length := len(nodes) - 1
	if length <= 1 {
		return SeverityLow
	}
	for i := 0; i < length; i++ {
		if !g.hasEdge(nodes[i], nodes[i+1], EdgeImport) {
			return SeverityMedium
		}
	}
	if length <= 3 {
		return SeverityHigh
	}
	return SeverityCritical
}

func lessPath(a, b []string) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

// stronglyConnectedComponents is Tarjan's algorithm with an explicit frame
// stack. Components come out in reverse topological order of the
// condensation; each component is sorted.
func stronglyConnectedComponents(nodes []string, adjacency map[string][]string) (map[string]int, [][]string) {
	type frame struct {
		node string
		next int
	}

	index := 0
	stack := make([]string, 0, len(nodes))
	onStack := make(map[string]bool, len(nodes))
	indexByNode := make(map[string]int, len(nodes))
	lowLink := make(map[string]int, len(nodes))
	componentOf := make(map[string]int, len(nodes))
	components := make([][]string, 0)

	visit := func(v string, frames []frame) []frame {
		indexByNode[v] = index
		lowLink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true
		return append(frames, frame{node: v})
	}

	for _, root := range nodes {
		if _, seen := indexByNode[root]; seen {
			continue
		}
		frames := visit(root, nil)
		for len(frames) > 0 {
			top := &frames[len(frames)-1]
			v := top.node
			if top.next < len(adjacency[v]) {
				w := adjacency[v][top.next]
				top.next++
				if _, seen := indexByNode[w]; !seen {
					frames = visit(w, frames)
				} else if onStack[w] && indexByNode[w] < lowLink[v] {
					lowLink[v] = indexByNode[w]
				}
				continue
			}

			frames = frames[:len(frames)-1]
			if len(frames) > 0 {
				parent := frames[len(frames)-1].node
				if lowLink[v] < lowLink[parent] {
					lowLink[parent] = lowLink[v]
				}
			}
			if lowLink[v] != indexByNode[v] {
				continue
			}

			component := make([]string, 0)
			for {
				last := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[last] = false
				component = append(component, last)
				if last == v {
					break
				}
			}
			sort.Strings(component)
			compID := len(components)
			components = append(components, component)
			for _, n := range component {
				componentOf[n] = compID
			}
		}
	}

	return componentOf, components
}

// elementaryCycles runs Johnson's circuit search inside one strongly
// connected component. Each round takes the smallest node s that still sits
// in a non-trivial component of the subgraph induced by nodes >= s, and
// searches only that component, so every cycle is found exactly once and
// already begins at its smallest id.
func elementaryCycles(component []string, adjacency map[string][]string, limit int) ([][]string, bool) {
	if limit <= 0 {
		return nil, true
	}
	rank := make(map[string]int, len(component))
	for i, id := range component {
		rank[id] = i
	}

	type frame struct {
		node      string
		neighbors []string
		next      int
		found     bool
	}

	var cycles [][]string
	for i := 0; i < len(component); i++ {
		s, members := leastCyclicComponent(component[i:], adjacency, rank, i)
		if s == "" {
			break
		}
		i = rank[s]
		neighbors := func(v string) []string {
			res := make([]string, 0, len(adjacency[v]))
			for _, w := range adjacency[v] {
				if members[w] {
					res = append(res, w)
				}
			}
			return res
		}

		blocked := make(map[string]bool)
		blockedBy := make(map[string]map[string]bool)
		unblock := func(u string) {
			work := []string{u}
			for len(work) > 0 {
				n := work[len(work)-1]
				work = work[:len(work)-1]
				if !blocked[n] {
					continue
				}
				blocked[n] = false
				for w := range blockedBy[n] {
					work = append(work, w)
				}
				delete(blockedBy, n)
			}
		}

		path := []string{s}
		blocked[s] = true
		frames := []frame{{node: s, neighbors: neighbors(s)}}
		for len(frames) > 0 {
			top := &frames[len(frames)-1]
			if top.next < len(top.neighbors) {
				w := top.neighbors[top.next]
				top.next++
				if w == s {
					cycle := make([]string, len(path)+1)
					copy(cycle, path)
					cycle[len(path)] = s
					cycles = append(cycles, cycle)
					top.found = true
					if len(cycles) >= limit {
						return cycles, true
					}
				} else if !blocked[w] {
					blocked[w] = true
					path = append(path, w)
					frames = append(frames, frame{node: w, neighbors: neighbors(w)})
				}
				continue
			}

			v := top.node
			found := top.found
			if found {
				unblock(v)
			} else {
				for _, w := range top.neighbors {
					if blockedBy[w] == nil {
						blockedBy[w] = make(map[string]bool)
					}
					blockedBy[w][v] = true
				}
			}
			frames = frames[:len(frames)-1]
			path = path[:len(path)-1]
			if found && len(frames) > 0 {
				frames[len(frames)-1].found = true
			}
		}
	}
	return cycles, false
}

// leastCyclicComponent finds, within the subgraph induced by nodes (all of
// rank >= minRank), the non-trivial strongly connected component holding the
// smallest node. It returns that node and the component's members.
func leastCyclicComponent(nodes []string, adjacency map[string][]string, rank map[string]int, minRank int) (string, map[string]bool) {
	restricted := make(map[string][]string, len(nodes))
	for _, v := range nodes {
		for _, w := range adjacency[v] {
			if r, ok := rank[w]; ok && r >= minRank {
				restricted[v] = append(restricted[v], w)
			}
		}
	}
	_, components := stronglyConnectedComponents(nodes, restricted)

	best := ""
	var members []string
	for _, comp := range components {
		if len(comp) == 1 && !containsString(restricted[comp[0]], comp[0]) {
			continue
		}
		if best == "" || rank[comp[0]] < rank[best] {
			best = comp[0]
			members = comp
		}
	}
	if best == "" {
		return "", nil
	}
	set := make(map[string]bool, len(members))
	for _, m := range members {
		set[m] = true
	}
	return best, set
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
