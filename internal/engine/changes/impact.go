package changes

import (
	"math"
	"path"

	"codeintel/internal/engine/facts"
	"codeintel/internal/engine/graph"
	"codeintel/internal/shared/util"
)

const (
	DefaultLowImpactThreshold = 0.3
	DefaultHubFanIn           = 10
	DefaultHubFanOut          = 15

	baseImpact       = 0.15
	unlinkBaseImpact = 0.35
	addDirImpact     = 0.05
	cycleWeight      = 0.25
	connectWeight    = 0.3
	blastWeight      = 0.3
)

type Options struct {
	LowImpactThreshold float64
	HubFanIn           int
	HubFanOut          int
}

func DefaultOptions() Options {
	return Options{
		LowImpactThreshold: DefaultLowImpactThreshold,
		HubFanIn:           DefaultHubFanIn,
		HubFanOut:          DefaultHubFanOut,
	}
}

func (o Options) withDefaults() Options {
	if o.LowImpactThreshold <= 0 {
		o.LowImpactThreshold = DefaultLowImpactThreshold
	}
	if o.HubFanIn <= 0 {
		o.HubFanIn = DefaultHubFanIn
	}
	if o.HubFanOut <= 0 {
		o.HubFanOut = DefaultHubFanOut
	}
	return o
}

// Baseline is the committed state a batch is analyzed against.
type Baseline interface {
	Graph() *graph.Graph
	Metrics() graph.Metrics
	// Hash returns the content hash recorded for path at its last analysis.
	Hash(path string) (string, bool)
	// Referenced reports whether a detected pattern or semantic concept
	// points into path.
	Referenced(path string) bool
}

// Expand replaces every unlinkDir with one unlink per known file beneath the
// directory. A directory with no known files is kept as is.
func Expand(b Baseline, changes []FileChange) []FileChange {
	var out []FileChange
	var files []string
	for _, c := range changes {
		if c.Type != ChangeUnlinkDir {
			out = append(out, c)
			continue
		}
		if files == nil {
			files = b.Graph().Files()
		}
		under := util.FilterUnder(files, c.Path)
		if len(under) == 0 {
			out = append(out, c)
			continue
		}
		for _, p := range under {
			out = append(out, FileChange{Type: ChangeUnlink, Path: p})
		}
	}
	return out
}

// Assess scores a single change against the baseline and picks the
// invalidation scope and the recomputation it requires. ID, Generation and
// AnalyzedAt are left for the caller.
func Assess(b Baseline, c FileChange, opts Options) ChangeAnalysis {
	opts = opts.withDefaults()
	a := ChangeAnalysis{Path: c.Path, Type: c.Type}

	switch c.Type {
	case ChangeAddDir:
		a.ImpactScore = addDirImpact
		a.Scope = ScopeFile
		a.HashKnown = true
		a.Actions = []Action{ActionNone}
		return a
	case ChangeUnlinkDir:
		// Only reached when no known file lives under the directory.
		a.ImpactScore = addDirImpact
		a.Scope = ScopeFile
		a.HashKnown = true
		a.Actions = []Action{ActionNone}
		return a
	}

	g := b.Graph()
	m := b.Metrics()
	nm := m.Nodes[c.Path]
	a.InCycle = nm.InCycle
	a.FanIn = nm.FanIn
	a.FanOut = nm.FanOut

	prev, hadPrev := b.Hash(c.Path)
	a.PreviousHash = prev

	if !c.Type.IsRemoval() {
		a.Hash = c.Hash
		if a.Hash == "" && c.Content != nil {
			a.Hash = facts.HashContent(c.Content)
		}
		a.HashKnown = a.Hash != ""
		if a.HashKnown && hadPrev && a.Hash == prev {
			a.Scope = ScopeFile
			a.Actions = []Action{ActionNone}
			return a
		}
	} else {
		a.HashKnown = true
	}

	a.Affected = g.AffectedFiles(c.Path)
	hub := nm.FanIn >= opts.HubFanIn || nm.FanOut >= opts.HubFanOut

	base := baseImpact
	if c.Type.IsRemoval() {
		base = unlinkBaseImpact
	}
	score := base + connectWeight*connectivity(nm, opts) + blastWeight*blastShare(len(a.Affected), len(g.Files()))
	if a.InCycle {
		score += cycleWeight
	}
	a.ImpactScore = clamp01(score)

	direct := g.Dependents(c.Path)
	switch {
	case a.InCycle || hub:
		a.Scope = ScopeProject
	case a.ImpactScore < opts.LowImpactThreshold && len(direct) == 0:
		a.Scope = ScopeFile
	case len(a.Affected) == 0 || sameDirectory(a.Affected):
		a.Scope = ScopeModule
	default:
		a.Scope = ScopeProject
	}
	if !a.HashKnown {
		a.Scope = widen(a.Scope, ScopeModule)
	}

	a.RequiresRelearning = a.Scope.AtLeast(ScopeModule) || b.Referenced(c.Path)
	a.Actions = actionsFor(a)
	return a
}

func connectivity(nm graph.NodeMetrics, opts Options) float64 {
	in := float64(nm.FanIn) / float64(opts.HubFanIn)
	out := float64(nm.FanOut) / float64(opts.HubFanOut)
	return math.Min(1, math.Max(in, out))
}

func blastShare(affected, files int) float64 {
	if files <= 1 {
		return 0
	}
	return math.Min(1, float64(affected)/float64(files-1))
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

func sameDirectory(paths []string) bool {
	dir := path.Dir(paths[0])
	for _, p := range paths[1:] {
		if path.Dir(p) != dir {
			return false
		}
	}
	return true
}

func actionsFor(a ChangeAnalysis) []Action {
	set := make(map[Action]bool)
	if a.Type.IsRemoval() {
		set[ActionRemoveEntities] = true
		set[ActionUpdateGraph] = true
		set[ActionReindexEmbeddings] = true
	} else {
		set[ActionReanalyzeFile] = true
		set[ActionUpdateGraph] = true
		set[ActionReindexEmbeddings] = true
	}
	if len(a.Affected) > 0 && a.Scope.AtLeast(ScopeModule) {
		set[ActionReanalyzeDependents] = true
	}
	if a.RequiresRelearning {
		set[ActionRelearnConcepts] = true
	}
	if a.Scope == ScopeProject {
		set[ActionFullRescan] = true
	}
	return orderedActions(set)
}

func orderedActions(set map[Action]bool) []Action {
	out := make([]Action, 0, len(set))
	for _, act := range actionOrder {
		if set[act] {
			out = append(out, act)
		}
	}
	return out
}

// downgradeRescan swaps a full rescan for a dependents pass. Used when the
// rescan limiter has no tokens left.
func downgradeRescan(a *ChangeAnalysis) {
	set := make(map[Action]bool, len(a.Actions))
	for _, act := range a.Actions {
		set[act] = true
	}
	delete(set, ActionFullRescan)
	set[ActionReanalyzeDependents] = true
	a.Actions = orderedActions(set)
}
