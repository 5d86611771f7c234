// Package changes turns a stream of file system changes into batched,
// scoped invalidation decisions.
package changes

import (
	"time"
)

type ChangeType string

const (
	ChangeAdd       ChangeType = "add"
	ChangeModify    ChangeType = "change"
	ChangeUnlink    ChangeType = "unlink"
	ChangeAddDir    ChangeType = "addDir"
	ChangeUnlinkDir ChangeType = "unlinkDir"
)

func (t ChangeType) Valid() bool {
	switch t {
	case ChangeAdd, ChangeModify, ChangeUnlink, ChangeAddDir, ChangeUnlinkDir:
		return true
	}
	return false
}

// IsRemoval reports whether the change deletes entities.
func (t ChangeType) IsRemoval() bool {
	return t == ChangeUnlink || t == ChangeUnlinkDir
}

type FileStats struct {
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// FileChange is one normalized watcher event. Content, Hash and Stats are
// only present for add and change events. An empty Hash with nil Content
// means the new content is unknown.
type FileChange struct {
	Type     ChangeType `json:"type"`
	Path     string     `json:"path"`
	Stats    *FileStats `json:"stats,omitempty"`
	Content  []byte     `json:"-"`
	Hash     string     `json:"hash,omitempty"`
	Language string     `json:"language,omitempty"`
}

type Scope string

const (
	ScopeFile    Scope = "file"
	ScopeModule  Scope = "module"
	ScopeProject Scope = "project"
)

func (s Scope) rank() int {
	switch s {
	case ScopeFile:
		return 0
	case ScopeModule:
		return 1
	case ScopeProject:
		return 2
	}
	return -1
}

// AtLeast reports whether s is as wide as other.
func (s Scope) AtLeast(other Scope) bool {
	return s.rank() >= other.rank()
}

func widen(a, b Scope) Scope {
	if b.rank() > a.rank() {
		return b
	}
	return a
}

type Action string

const (
	ActionNone                Action = "none"
	ActionReanalyzeFile       Action = "reanalyze-file"
	ActionUpdateGraph         Action = "update-graph"
	ActionReanalyzeDependents Action = "reanalyze-dependents"
	ActionRelearnConcepts     Action = "relearn-concepts"
	ActionReindexEmbeddings   Action = "reindex-embeddings"
	ActionRemoveEntities      Action = "remove-entities"
	ActionFullRescan          Action = "full-rescan"
)

var actionOrder = []Action{
	ActionNone,
	ActionReanalyzeFile,
	ActionUpdateGraph,
	ActionReanalyzeDependents,
	ActionRelearnConcepts,
	ActionReindexEmbeddings,
	ActionRemoveEntities,
	ActionFullRescan,
}

// ChangeAnalysis is the outcome of analyzing one path in a batch.
type ChangeAnalysis struct {
	ID                 string     `json:"id"`
	Path               string     `json:"path"`
	Type               ChangeType `json:"type"`
	ImpactScore        float64    `json:"impact_score"`
	Scope              Scope      `json:"scope"`
	RequiresRelearning bool       `json:"requires_relearning"`
	Actions            []Action   `json:"actions"`
	// Affected lists the files whose results depend on Path, sorted.
	Affected     []string  `json:"affected,omitempty"`
	InCycle      bool      `json:"in_cycle"`
	FanIn        int       `json:"fan_in"`
	FanOut       int       `json:"fan_out"`
	Hash         string    `json:"hash,omitempty"`
	PreviousHash string    `json:"previous_hash,omitempty"`
	HashKnown    bool      `json:"hash_known"`
	Generation   uint64    `json:"generation"`
	AnalyzedAt   time.Time `json:"analyzed_at"`
}

func (a ChangeAnalysis) Has(action Action) bool {
	for _, x := range a.Actions {
		if x == action {
			return true
		}
	}
	return false
}

type State string

const (
	StateIdle       State = "idle"
	StateDebouncing State = "debouncing"
	StateAnalyzing  State = "analyzing"
)
