package graph

import (
	"sort"
	"strings"
)

type NodeMetrics struct {
	FanIn   int  `json:"fan_in"`
	FanOut  int  `json:"fan_out"`
	Depth   int  `json:"depth"`
	InCycle bool `json:"in_cycle"`
	// Importance = FanIn*2 + FanOut + (API surface ? 10 : 0).
	Importance float64 `json:"importance"`
}

// Metrics is recomputed from scratch for every snapshot.
type Metrics struct {
	NodeCount      int                    `json:"node_count"`
	EdgeCount      int                    `json:"edge_count"`
	CyclicNodes    int                    `json:"cyclic_nodes"`
	CyclicityRatio float64                `json:"cyclicity_ratio"`
	MaxDepth       int                    `json:"max_depth"`
	MaxFanIn       int                    `json:"max_fan_in"`
	MaxFanOut      int                    `json:"max_fan_out"`
	Nodes          map[string]NodeMetrics `json:"nodes"`
}

// ComputeMetrics derives fan-in/out as edge counts per node, the share of
// nodes on a cycle, and the longest acyclic path. Depth is measured over the
// condensation of strongly connected components so cycles cannot inflate it.
func (g *Graph) ComputeMetrics() Metrics {
	ids := g.sortedNodeIDs()
	adjacency := make(map[string][]string, len(ids))
	for _, id := range ids {
		adjacency[id] = g.successors(id)
	}

	m := Metrics{
		NodeCount: len(ids),
		EdgeCount: len(g.edges),
		Nodes:     make(map[string]NodeMetrics, len(ids)),
	}
	if len(ids) == 0 {
		return m
	}

	componentOf, components := stronglyConnectedComponents(ids, adjacency)

	// Tarjan emits components in reverse topological order, so every
	// successor component already has its depth when a component is visited.
	depthByComp := make([]int, len(components))
	for comp, members := range components {
		best := 0
		for _, from := range members {
			for _, to := range adjacency[from] {
				toComp := componentOf[to]
				if toComp == comp {
					continue
				}
				if d := depthByComp[toComp] + 1; d > best {
					best = d
				}
			}
		}
		depthByComp[comp] = best
		if best > m.MaxDepth {
			m.MaxDepth = best
		}
	}

	for _, id := range ids {
		comp := componentOf[id]
		inCycle := len(components[comp]) > 1 || g.hasAnyEdge(id, id)
		nm := NodeMetrics{
			FanIn:   len(g.in[id]),
			FanOut:  len(g.out[id]),
			Depth:   depthByComp[comp],
			InCycle: inCycle,
		}
		nm.Importance = CalculateImportanceScore(nm.FanIn, nm.FanOut, g.nodes[id])
		if inCycle {
			m.CyclicNodes++
		}
		if nm.FanIn > m.MaxFanIn {
			m.MaxFanIn = nm.FanIn
		}
		if nm.FanOut > m.MaxFanOut {
			m.MaxFanOut = nm.FanOut
		}
		m.Nodes[id] = nm
	}
	m.CyclicityRatio = float64(m.CyclicNodes) / float64(m.NodeCount)
	return m
}

// Hubs lists the nodes whose fan-in or fan-out meets the given thresholds,
// sorted by importance then id.
func (m Metrics) Hubs(fanIn, fanOut int) []string {
	var hubs []string
	for id, nm := range m.Nodes {
		if nm.FanIn >= fanIn || nm.FanOut >= fanOut {
			hubs = append(hubs, id)
		}
	}
	sort.Slice(hubs, func(i, j int) bool {
		a, b := m.Nodes[hubs[i]], m.Nodes[hubs[j]]
		if a.Importance != b.Importance {
			return a.Importance > b.Importance
		}
		return hubs[i] < hubs[j]
	})
	return hubs
}

// CalculateImportanceScore ranks a node's architectural significance:
//
//	Score = (FanIn * 2) + (FanOut * 1) + (IsAPI ? 10 : 0)
func CalculateImportanceScore(fanIn, fanOut int, n Node) float64 {
	score := float64(fanIn*2) + float64(fanOut)
	if n.Kind != NodeModule && isAPIPath(n.Path) {
		score += 10
	}
	return score
}

// isAPIPath returns true when the file path suggests a public API surface.
func isAPIPath(p string) bool {
	lower := strings.ToLower(p)
	keywords := []string{"api", "gateway", "handler", "server", "service"}
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
