package semantic

import (
	"fmt"
	"sort"
	"strings"

	codeerrors "codeintel/internal/core/errors"
	"codeintel/internal/engine/facts"
	"codeintel/internal/engine/graph"
	"codeintel/internal/engine/patterns"
	"codeintel/internal/shared/text"

	"github.com/bmatcuk/doublestar/v4"
)

const (
	maxDomainConcepts = 50
	maxLocations      = 20
)

// genericWords never become domain concepts. Both the word and its stem
// are checked.
var genericWords = map[string]bool{
	"new": true, "get": true, "set": true, "is": true, "has": true, "from": true,
	"default": true, "init": true, "main": true, "string": true, "error": true,
	"err": true, "test": true, "run": true, "type": true, "value": true, "data": true,
	"info": true, "util": true, "helper": true, "impl": true, "option": true,
	"handle": true, "handler": true, "make": true, "create": true, "update": true,
	"delete": true, "list": true, "find": true, "load": true, "save": true,
}

type Options struct {
	EntryPointGlobs   []string
	KeyDirectoryLimit int
	DomainMinFiles    int
}

func DefaultOptions() Options {
	return Options{
		EntryPointGlobs: []string{
			"**/cmd/*/main.go", "main.go", "**/__main__.py", "**/main.py",
			"**/index.{js,ts}", "**/server.{js,ts}", "**/src/main.rs",
		},
		KeyDirectoryLimit: 10,
		DomainMinFiles:    2,
	}
}

// Input is everything concept extraction reads. Graph and Patterns may be
// empty; fan-in and pattern-usage concepts are then omitted.
type Input struct {
	Files    []facts.FileFacts
	Graph    *graph.Graph
	Patterns []patterns.DetectedPattern
}

type Engine struct {
	opts  Options
	roles []roleRule
}

func NewEngine(opts Options) (*Engine, error) {
	for _, g := range opts.EntryPointGlobs {
		if !doublestar.ValidatePattern(g) {
			return nil, codeerrors.AddContext(
				codeerrors.Newf(codeerrors.CodeValidationError, "invalid entry point glob %q", g),
				codeerrors.CtxOperation, "semantic.NewEngine")
		}
	}
	if opts.KeyDirectoryLimit <= 0 {
		opts.KeyDirectoryLimit = DefaultOptions().KeyDirectoryLimit
	}
	if opts.DomainMinFiles <= 0 {
		opts.DomainMinFiles = DefaultOptions().DomainMinFiles
	}
	return &Engine{opts: opts, roles: compileRoleRules()}, nil
}

type dirInfo struct {
	path    string
	files   []string
	symbols int
	fanIn   int
	score   float64
	role    Role
	hasRole bool
}

// ExtractConcepts derives the full concept set from the current facts. The
// result depends only on the input, not on its order.
func (e *Engine) ExtractConcepts(in Input) ConceptSet {
	files := append([]facts.FileFacts(nil), in.Files...)
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })

	var set ConceptSet
	dirs := e.directories(files, in.Graph)
	keyDirs := make(map[string]bool)
	for i, d := range dirs {
		if i >= e.opts.KeyDirectoryLimit {
			break
		}
		keyDirs[d.path] = true
		set.Concepts = append(set.Concepts, directoryConcept(d))
	}
	rels := make(map[Relationship]bool)
	link := func(source, dir string, typ RelationType) {
		if keyDirs[dir] {
			rels[Relationship{Source: source, Target: dirID(dir), Type: typ}] = true
		}
	}

	for _, d := range dirs {
		if !d.hasRole {
			continue
		}
		c := Concept{
			ID:          "role:" + string(d.role) + ":" + d.path,
			Type:        ConceptRole,
			Name:        string(d.role),
			Description: fmt.Sprintf("%s acts as the %s layer", d.path, d.role),
			Locations:   []Location{{Path: d.path}},
			Score:       float64(len(d.files)),
			Role:        d.role,
		}
		set.Concepts = append(set.Concepts, c)
		link(c.ID, d.path, RelLocatedIn)
	}

	for _, f := range files {
		c, ok := e.entryPoint(f)
		if !ok {
			continue
		}
		set.Concepts = append(set.Concepts, c)
		link(c.ID, f.Dir(), RelLocatedIn)
	}

	for _, c := range e.domainConcepts(files) {
		set.Concepts = append(set.Concepts, c)
		for _, dir := range locationDirs(c.Locations) {
			link(c.ID, dir, RelAppearsIn)
		}
	}

	for _, c := range patternConcepts(in.Patterns) {
		set.Concepts = append(set.Concepts, c)
		for _, dir := range locationDirs(c.Locations) {
			link(c.ID, dir, RelUsedIn)
		}
	}

	for r := range rels {
		set.Relationships = append(set.Relationships, r)
	}
	sortConcepts(set.Concepts)
	sortRelationships(set.Relationships)
	return set
}

// directories ranks every directory by symbol density and inbound import
// fan-in, each normalized to the largest value in the project.
func (e *Engine) directories(files []facts.FileFacts, g *graph.Graph) []*dirInfo {
	byDir := make(map[string]*dirInfo)
	var order []string
	for _, f := range files {
		dir := f.Dir()
		d, ok := byDir[dir]
		if !ok {
			d = &dirInfo{path: dir}
			byDir[dir] = d
			order = append(order, dir)
		}
		d.files = append(d.files, f.Path)
		d.symbols += len(f.Symbols)
	}

	maxDensity, maxFanIn := 0.0, 0
	for _, dir := range order {
		d := byDir[dir]
		d.fanIn = dirFanIn(g, d)
		if density := d.density(); density > maxDensity {
			maxDensity = density
		}
		if d.fanIn > maxFanIn {
			maxFanIn = d.fanIn
		}
		d.role, d.hasRole = roleOf(e.roles, d.path, d.files)
	}

	res := make([]*dirInfo, 0, len(order))
	for _, dir := range order {
		d := byDir[dir]
		if maxDensity > 0 {
			d.score += 0.5 * d.density() / maxDensity
		}
		if maxFanIn > 0 {
			d.score += 0.5 * float64(d.fanIn) / float64(maxFanIn)
		}
		res = append(res, d)
	}
	sort.SliceStable(res, func(i, j int) bool {
		if res[i].score != res[j].score {
			return res[i].score > res[j].score
		}
		if res[i].symbols != res[j].symbols {
			return res[i].symbols > res[j].symbols
		}
		return res[i].path < res[j].path
	})
	return res
}

func (d *dirInfo) density() float64 {
	if len(d.files) == 0 {
		return 0
	}
	return float64(d.symbols) / float64(len(d.files))
}

// dirFanIn counts files outside d that import a file inside it.
func dirFanIn(g *graph.Graph, d *dirInfo) int {
	if g == nil {
		return 0
	}
	importers := make(map[string]bool)
	for _, f := range d.files {
		for _, e := range g.InEdges(f) {
			if e.Type != graph.EdgeImport {
				continue
			}
			src, ok := g.Node(e.Source)
			if !ok || src.Kind != graph.NodeFile || dirOf(src.Path) == d.path {
				continue
			}
			importers[src.ID] = true
		}
	}
	return len(importers)
}

func directoryConcept(d *dirInfo) Concept {
	desc := fmt.Sprintf("%d file(s), %d symbol(s), imported by %d file(s) elsewhere", len(d.files), d.symbols, d.fanIn)
	if d.hasRole {
		desc += fmt.Sprintf("; %s layer", d.role)
	}
	locs := make([]Location, 0, len(d.files))
	for _, f := range d.files {
		locs = append(locs, Location{Path: f})
	}
	return Concept{
		ID:          dirID(d.path),
		Type:        ConceptKeyDirectory,
		Name:        d.path,
		Description: desc,
		Locations:   capLocations(locs),
		Score:       d.score,
		Directory: &DirectoryStats{
			Files:   len(d.files),
			Symbols: d.symbols,
			FanIn:   d.fanIn,
			Density: d.density(),
			Role:    d.role,
		},
		Role: d.role,
	}
}

func (e *Engine) entryPoint(f facts.FileFacts) (Concept, bool) {
	for _, sym := range f.Symbols {
		if sym.Parent == "" && sym.Kind == facts.KindFunction && (sym.Name == "main" || sym.Name == "Main") {
			return Concept{
				ID:          "entry:" + f.Path,
				Type:        ConceptEntryPoint,
				Name:        f.Path,
				Description: fmt.Sprintf("%s declares %s", f.Path, sym.Name),
				Locations:   []Location{{Path: f.Path, Symbol: sym.Name, Line: sym.Line}},
				Score:       1,
			}, true
		}
	}
	for _, g := range e.opts.EntryPointGlobs {
		if ok, _ := doublestar.Match(g, f.Path); ok {
			return Concept{
				ID:          "entry:" + f.Path,
				Type:        ConceptEntryPoint,
				Name:        f.Path,
				Description: fmt.Sprintf("%s matches entry point pattern %s", f.Path, g),
				Locations:   []Location{{Path: f.Path}},
				Score:       1,
			}, true
		}
	}
	return Concept{}, false
}

type domainTerm struct {
	stem      string
	surfaces  map[string]int
	files     map[string]bool
	locations []Location
}

// domainConcepts collects the stemmed vocabulary of top-level declarations
// and keeps the words used in at least DomainMinFiles files.
func (e *Engine) domainConcepts(files []facts.FileFacts) []Concept {
	terms := make(map[string]*domainTerm)
	for _, f := range files {
		for _, sym := range f.Symbols {
			if sym.Parent != "" || !(sym.Exported || sym.Kind.IsTypeLike()) {
				continue
			}
			for _, w := range text.Words(sym.Name) {
				stem := text.Stem(w)
				if genericWords[stem] || genericWords[w] || len(stem) < 3 {
					continue
				}
				t, ok := terms[stem]
				if !ok {
					t = &domainTerm{stem: stem, surfaces: make(map[string]int), files: make(map[string]bool)}
					terms[stem] = t
				}
				t.surfaces[w]++
				t.files[f.Path] = true
				t.locations = append(t.locations, Location{Path: f.Path, Symbol: sym.QualifiedName(), Line: sym.Line})
			}
		}
	}

	var kept []*domainTerm
	for _, t := range terms {
		if len(t.files) >= e.opts.DomainMinFiles {
			kept = append(kept, t)
		}
	}
	sort.Slice(kept, func(i, j int) bool {
		if len(kept[i].files) != len(kept[j].files) {
			return len(kept[i].files) > len(kept[j].files)
		}
		return kept[i].stem < kept[j].stem
	})
	if len(kept) > maxDomainConcepts {
		kept = kept[:maxDomainConcepts]
	}

	res := make([]Concept, 0, len(kept))
	for _, t := range kept {
		name := dominantSurface(t.surfaces)
		res = append(res, Concept{
			ID:          "domain:" + t.stem,
			Type:        ConceptDomain,
			Name:        name,
			Description: fmt.Sprintf("%s appears in %d file(s)", name, len(t.files)),
			Locations:   capLocations(t.locations),
			Score:       float64(len(t.files)),
		})
	}
	return res
}

func patternConcepts(ps []patterns.DetectedPattern) []Concept {
	byKind := make(map[patterns.Kind][]patterns.DetectedPattern)
	for _, p := range ps {
		byKind[p.Kind] = append(byKind[p.Kind], p)
	}
	var res []Concept
	for _, kind := range patterns.Kinds() {
		group := byKind[kind]
		if len(group) == 0 {
			continue
		}
		sort.Slice(group, func(i, j int) bool { return group[i].ID < group[j].ID })
		total := 0.0
		locs := make([]Location, 0, len(group))
		for _, p := range group {
			total += p.Confidence
			line := 0
			if len(p.Locations) > 0 {
				line = p.Locations[0].Line
			}
			locs = append(locs, Location{Path: p.Path, Symbol: p.Symbol, Line: line})
		}
		res = append(res, Concept{
			ID:          "pattern:" + string(kind),
			Type:        ConceptPatternUsage,
			Name:        string(kind) + " pattern",
			Description: fmt.Sprintf("%s used %d time(s), mean confidence %.2f", kind, len(group), total/float64(len(group))),
			Locations:   capLocations(locs),
			Score:       float64(len(group)),
		})
	}
	return res
}

func dominantSurface(surfaces map[string]int) string {
	best, bestCount := "", -1
	for s, n := range surfaces {
		if n > bestCount || (n == bestCount && s < best) {
			best, bestCount = s, n
		}
	}
	return best
}

func locationDirs(locs []Location) []string {
	seen := make(map[string]bool)
	var dirs []string
	for _, l := range locs {
		d := dirOf(l.Path)
		if !seen[d] {
			seen[d] = true
			dirs = append(dirs, d)
		}
	}
	return dirs
}

func capLocations(locs []Location) []Location {
	if len(locs) > maxLocations {
		return locs[:maxLocations]
	}
	return locs
}

func dirID(dir string) string {
	return "dir:" + dir
}

func dirOf(p string) string {
	i := strings.LastIndex(p, "/")
	if i < 0 {
		return "."
	}
	return p[:i]
}
