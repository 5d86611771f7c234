package embedding

import (
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	codeerrors "codeintel/internal/core/errors"
)

type SourceKind string

const (
	SourceConcept SourceKind = "concept"
	SourcePattern SourceKind = "pattern"
	SourceSymbol  SourceKind = "symbol"
)

// Source is a weak reference to the entity an index entry was built from.
// Path is the file the entity lives in, empty for project-wide entities.
type Source struct {
	Kind     SourceKind `json:"kind"`
	EntityID string     `json:"entity_id"`
	Path     string     `json:"path,omitempty"`
}

// EntryID is the index id of the entity: kind:entityID.
func EntryID(s Source) string {
	return string(s.Kind) + ":" + s.EntityID
}

type IndexedConcept struct {
	ID        string    `json:"id"`
	Source    Source    `json:"source"`
	Text      string    `json:"text"`
	Vector    []float32 `json:"vector"`
	IndexedAt time.Time `json:"indexed_at"`
}

type SearchResult struct {
	Entry      IndexedConcept `json:"entry"`
	Similarity float64        `json:"similarity"`
}

// Index is a flat cosine-similarity index. Point updates touch a single
// entry; there is no rebuild step.
type Index struct {
	mu       sync.RWMutex
	embedder Embedder
	entries  map[string]IndexedConcept
	byPath   map[string]map[string]struct{}
}

func NewIndex(embedder Embedder) *Index {
	return &Index{
		embedder: embedder,
		entries:  make(map[string]IndexedConcept),
		byPath:   make(map[string]map[string]struct{}),
	}
}

func (ix *Index) Dimensions() int {
	return ix.embedder.Dimensions()
}

// Clone returns an independent index sharing the embedder and the
// (read-only) vectors.
func (ix *Index) Clone() *Index {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	cp := NewIndex(ix.embedder)
	for id, e := range ix.entries {
		cp.entries[id] = e
	}
	for p, ids := range ix.byPath {
		set := make(map[string]struct{}, len(ids))
		for id := range ids {
			set[id] = struct{}{}
		}
		cp.byPath[p] = set
	}
	return cp
}

// Put embeds text and stores it under the source's id, replacing any
// previous vector for that id.
func (ix *Index) Put(src Source, text string, now time.Time) IndexedConcept {
	entry := IndexedConcept{
		ID:        EntryID(src),
		Source:    src,
		Text:      text,
		Vector:    ix.embedder.Embed(text),
		IndexedAt: now,
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.putLocked(entry)
	return entry
}

// Restore stores a pre-computed entry loaded from a persisted snapshot.
func (ix *Index) Restore(entry IndexedConcept) error {
	if entry.ID == "" {
		entry.ID = EntryID(entry.Source)
	}
	if len(entry.Vector) != ix.embedder.Dimensions() {
		return codeerrors.AddContext(
			codeerrors.Newf(codeerrors.CodeValidationError, "vector has %d dimensions, index uses %d",
				len(entry.Vector), ix.embedder.Dimensions()),
			codeerrors.CtxEntity, entry.ID)
	}
	for i, v := range entry.Vector {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return codeerrors.AddContext(
				codeerrors.Newf(codeerrors.CodeValidationError, "vector component %d is not finite", i),
				codeerrors.CtxEntity, entry.ID)
		}
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.putLocked(entry)
	return nil
}

func (ix *Index) putLocked(entry IndexedConcept) {
	if old, ok := ix.entries[entry.ID]; ok {
		ix.unlinkPathLocked(old)
	}
	ix.entries[entry.ID] = entry
	if p := entry.Source.Path; p != "" {
		set, ok := ix.byPath[p]
		if !ok {
			set = make(map[string]struct{})
			ix.byPath[p] = set
		}
		set[entry.ID] = struct{}{}
	}
}

func (ix *Index) unlinkPathLocked(e IndexedConcept) {
	if p := e.Source.Path; p != "" {
		delete(ix.byPath[p], e.ID)
		if len(ix.byPath[p]) == 0 {
			delete(ix.byPath, p)
		}
	}
}

func (ix *Index) Remove(id string) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.removeLocked(id)
}

func (ix *Index) removeLocked(id string) bool {
	e, ok := ix.entries[id]
	if !ok {
		return false
	}
	ix.unlinkPathLocked(e)
	delete(ix.entries, id)
	return true
}

// RemovePath drops every entry whose source lives in path and returns their
// ids, sorted.
func (ix *Index) RemovePath(path string) []string {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	var ids []string
	for id := range ix.byPath[path] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		ix.removeLocked(id)
	}
	return ids
}

// RemoveKind drops every entry of a source kind except those in keep.
func (ix *Index) RemoveKind(kind SourceKind, keep map[string]bool) []string {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	var ids []string
	for id, e := range ix.entries {
		if e.Source.Kind == kind && !keep[e.Source.EntityID] {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	for _, id := range ids {
		ix.removeLocked(id)
	}
	return ids
}

// Prune removes entries whose backing entity no longer exists according to
// live. Each removal is logged as an index inconsistency.
func (ix *Index) Prune(live func(Source) bool) []string {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	var ids []string
	for id, e := range ix.entries {
		if !live(e.Source) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	for _, id := range ids {
		err := codeerrors.AddContext(
			codeerrors.New(codeerrors.CodeIndexInconsistency, "index entry has no backing entity"),
			codeerrors.CtxEntity, id)
		slog.Warn("pruning index entry", "id", id, "error", err)
		ix.removeLocked(id)
	}
	return ids
}

// Search embeds query and returns at most k entries by descending
// similarity, ties broken by id. Entries with no similarity are omitted.
func (ix *Index) Search(query string, k int) []SearchResult {
	return ix.SearchVector(ix.embedder.Embed(query), k)
}

func (ix *Index) SearchVector(query []float32, k int) []SearchResult {
	if k <= 0 {
		return nil
	}
	ix.mu.RLock()
	results := make([]SearchResult, 0, len(ix.entries))
	for _, e := range ix.entries {
		sim := Cosine(query, e.Vector)
		if math.IsNaN(sim) || sim <= 0 {
			continue
		}
		results = append(results, SearchResult{Entry: e, Similarity: sim})
	}
	ix.mu.RUnlock()

	sort.Slice(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		return results[i].Entry.ID < results[j].Entry.ID
	})
	if len(results) > k {
		results = results[:k]
	}
	return results
}

func (ix *Index) Get(id string) (IndexedConcept, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	e, ok := ix.entries[id]
	return e, ok
}

func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries)
}

// Entries returns every entry sorted by id.
func (ix *Index) Entries() []IndexedConcept {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	out := make([]IndexedConcept, 0, len(ix.entries))
	for _, e := range ix.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ReferencesPath reports whether any entry still points into path.
func (ix *Index) ReferencesPath(path string) bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.byPath[path]) > 0
}
