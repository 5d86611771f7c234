package graph

import (
	"errors"
	"fmt"
	"sort"
)

var ErrImpactTargetNotFound = errors.New("impact target not found")

type ImpactReport struct {
	TargetPath            string   `json:"target_path"`
	TargetModule          string   `json:"target_module"`
	DirectImporters       []string `json:"direct_importers"`
	TransitiveImporters   []string `json:"transitive_importers"`
	ExternallyUsedSymbols []string `json:"externally_used_symbols"`
	BlastRadius           []string `json:"blast_radius"`
}

type ImpactTargetError struct {
	Target string
}

func (e *ImpactTargetError) Error() string {
	return fmt.Sprintf("%v: %s", ErrImpactTargetNotFound, e.Target)
}

func (e *ImpactTargetError) Unwrap() error {
	return ErrImpactTargetNotFound
}

// AnalyzeImpact reports who depends on a file. A module name is accepted too
// and is reported against its first file.
func (g *Graph) AnalyzeImpact(path string) (ImpactReport, error) {
	n, ok := g.nodes[path]
	if !ok || n.Kind != NodeFile {
		files := g.ModuleFiles(path)
		if len(files) == 0 {
			return ImpactReport{}, &ImpactTargetError{Target: path}
		}
		return g.analyzeImpactForFile(files[0], path), nil
	}
	return g.analyzeImpactForFile(path, n.Module), nil
}

func (g *Graph) analyzeImpactForFile(targetPath, targetModule string) ImpactReport {
	report := ImpactReport{
		TargetPath:   targetPath,
		TargetModule: targetModule,
	}

	direct := g.Dependents(targetPath)
	report.DirectImporters = direct

	directSet := make(map[string]bool, len(direct))
	for _, importer := range direct {
		directSet[importer] = true
	}

	queue := append([]string(nil), direct...)
	seen := make(map[string]bool, len(queue)+1)
	seen[targetPath] = true
	for _, f := range queue {
		seen[f] = true
	}

	transitive := make([]string, 0)
	for len(queue) > 0 {
		curr := queue[0]
		queue = queue[1:]
		for _, next := range g.Dependents(curr) {
			if seen[next] {
				continue
			}
			seen[next] = true
			queue = append(queue, next)
			if !directSet[next] {
				transitive = append(transitive, next)
			}
		}
	}
	sort.Strings(transitive)
	report.TransitiveImporters = transitive

	used := make(map[string]struct{})
	for sym := range g.fileSymbols[targetPath] {
		for k := range g.in[sym] {
			if owner, ok := g.FileOf(k.source); ok && owner != targetPath {
				used[g.nodes[sym].Name] = struct{}{}
			}
		}
	}
	report.ExternallyUsedSymbols = sortedSet(used)
	report.BlastRadius = g.AffectedFiles(targetPath)
	return report
}

// Dependents returns the files with an import edge into path, sorted.
func (g *Graph) Dependents(path string) []string {
	set := make(map[string]struct{})
	for k := range g.in[path] {
		if k.typ == EdgeImport && k.source != path {
			set[k.source] = struct{}{}
		}
	}
	return sortedSet(set)
}

// BlastRadius returns every node that can reach id through dependency edges,
// following edges backwards. For a file the search also starts from the
// symbols it declares. The start nodes are not included.
func (g *Graph) BlastRadius(id string) []string {
	start := map[string]bool{id: true}
	for sym := range g.fileSymbols[id] {
		start[sym] = true
	}
	queue := make([]string, 0, len(start))
	for s := range start {
		queue = append(queue, s)
	}
	seen := make(map[string]bool, len(start))
	for s := range start {
		seen[s] = true
	}
	var reached []string
	for len(queue) > 0 {
		curr := queue[0]
		queue = queue[1:]
		for k := range g.in[curr] {
			if seen[k.source] {
				continue
			}
			seen[k.source] = true
			reached = append(reached, k.source)
			queue = append(queue, k.source)
		}
	}
	sort.Strings(reached)
	return reached
}

// AffectedFiles maps the blast radius of a file to the distinct files that
// own the reached nodes, excluding the file itself.
func (g *Graph) AffectedFiles(path string) []string {
	set := make(map[string]struct{})
	for _, id := range g.BlastRadius(path) {
		if owner, ok := g.FileOf(id); ok && owner != path {
			set[owner] = struct{}{}
		}
	}
	return sortedSet(set)
}

// FindPath returns the shortest import chain from one file to another.
func (g *Graph) FindPath(from, to string) ([]string, bool) {
	if !g.HasNode(from) || !g.HasNode(to) {
		return nil, false
	}
	if from == to {
		return []string{from}, true
	}

	queue := []string{from}
	visited := map[string]bool{from: true}
	prev := make(map[string]string)

	for len(queue) > 0 {
		curr := queue[0]
		queue = queue[1:]

		neighbors := make([]string, 0, len(g.out[curr]))
		for k := range g.out[curr] {
			if k.typ == EdgeImport {
				neighbors = append(neighbors, k.target)
			}
		}
		sort.Strings(neighbors)

		for _, next := range neighbors {
			if visited[next] {
				continue
			}
			visited[next] = true
			prev[next] = curr

			if next == to {
				path := []string{to}
				for node := to; node != from; {
					p := prev[node]
					path = append(path, p)
					node = p
				}
				for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
					path[i], path[j] = path[j], path[i]
				}
				return path, true
			}

			queue = append(queue, next)
		}
	}

	return nil, false
}
