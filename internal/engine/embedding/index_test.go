package embedding

import (
	"math"
	"testing"
	"time"

	codeerrors "codeintel/internal/core/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func norm(v []float32) float64 {
	s := 0.0
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}

func TestHashingEmbedder(t *testing.T) {
	a := NewHashingEmbedder(64, 8)
	b := NewHashingEmbedder(64, 8)

	v1 := a.Embed("UserRepository findByEmail")
	v2 := b.Embed("UserRepository findByEmail")
	require.Len(t, v1, 64)
	assert.Equal(t, v1, v2, "equal text embeds identically across instances")
	assert.InDelta(t, 1.0, norm(v1), 1e-6)

	a.Embed("UserRepository findByEmail")
	stats := a.CacheStats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)

	empty := a.Embed("")
	assert.Zero(t, norm(empty))
	assert.Zero(t, Cosine(empty, v1))
}

func TestHashingEmbedderDefaults(t *testing.T) {
	e := NewHashingEmbedder(0, 0)
	assert.Equal(t, DefaultDimensions, e.Dimensions())
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, Cosine([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.InDelta(t, 0.0, Cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Zero(t, Cosine([]float32{1}, []float32{1, 2}))
}

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	ix := NewIndex(NewHashingEmbedder(128, 32))
	ix.Put(Source{Kind: SourceSymbol, EntityID: "internal/store/user.go#UserStore", Path: "internal/store/user.go"},
		"UserStore save user find user", epoch)
	ix.Put(Source{Kind: SourceSymbol, EntityID: "internal/api/router.go#Router", Path: "internal/api/router.go"},
		"Router http handler route", epoch)
	ix.Put(Source{Kind: SourcePattern, EntityID: "repository:internal/store/user.go#UserStore", Path: "internal/store/user.go"},
		"repository UserStore user persistence", epoch)
	ix.Put(Source{Kind: SourceConcept, EntityID: "domain:user"}, "user domain concept", epoch)
	return ix
}

func TestIndexSearch(t *testing.T) {
	ix := newTestIndex(t)
	require.Equal(t, 4, ix.Len())

	results := ix.Search("UserStore save user find user", 3)
	require.NotEmpty(t, results)
	assert.LessOrEqual(t, len(results), 3)
	assert.Equal(t, "symbol:internal/store/user.go#UserStore", results[0].Entry.ID)
	assert.InDelta(t, 1.0, results[0].Similarity, 1e-6)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Similarity, results[i].Similarity)
		assert.Positive(t, results[i].Similarity)
	}

	assert.Equal(t, results, ix.Search("UserStore save user find user", 3), "search is deterministic")
	assert.Nil(t, ix.Search("user", 0))
	assert.Nil(t, ix.Search("user", -1))
}

func TestIndexSearchTieBreaksByID(t *testing.T) {
	ix := NewIndex(NewHashingEmbedder(32, 4))
	ix.Put(Source{Kind: SourceSymbol, EntityID: "b"}, "order service", epoch)
	ix.Put(Source{Kind: SourceSymbol, EntityID: "a"}, "order service", epoch)

	results := ix.Search("order service", 5)
	require.Len(t, results, 2)
	assert.Equal(t, "symbol:a", results[0].Entry.ID)
	assert.Equal(t, "symbol:b", results[1].Entry.ID)
}

func TestIndexPutReplaces(t *testing.T) {
	ix := NewIndex(NewHashingEmbedder(32, 4))
	src := Source{Kind: SourceSymbol, EntityID: "x", Path: "a.go"}
	ix.Put(src, "alpha", epoch)
	src.Path = "b.go"
	ix.Put(src, "beta", epoch.Add(time.Minute))

	assert.Equal(t, 1, ix.Len())
	assert.False(t, ix.ReferencesPath("a.go"))
	assert.True(t, ix.ReferencesPath("b.go"))
	e, ok := ix.Get("symbol:x")
	require.True(t, ok)
	assert.Equal(t, "beta", e.Text)
}

func TestIndexRemoval(t *testing.T) {
	ix := newTestIndex(t)

	removed := ix.RemovePath("internal/store/user.go")
	assert.Equal(t, []string{
		"pattern:repository:internal/store/user.go#UserStore",
		"symbol:internal/store/user.go#UserStore",
	}, removed)
	assert.False(t, ix.ReferencesPath("internal/store/user.go"))
	for _, r := range ix.Search("UserStore save user", 10) {
		assert.NotEqual(t, "internal/store/user.go", r.Entry.Source.Path)
	}

	assert.True(t, ix.Remove("concept:domain:user"))
	assert.False(t, ix.Remove("concept:domain:user"))
	assert.Equal(t, 1, ix.Len())
}

func TestIndexRemoveKind(t *testing.T) {
	ix := newTestIndex(t)
	ix.Put(Source{Kind: SourceConcept, EntityID: "domain:order"}, "order", epoch)

	removed := ix.RemoveKind(SourceConcept, map[string]bool{"domain:order": true})
	assert.Equal(t, []string{"concept:domain:user"}, removed)
	_, ok := ix.Get("concept:domain:order")
	assert.True(t, ok)
}

func TestIndexPrune(t *testing.T) {
	ix := newTestIndex(t)
	pruned := ix.Prune(func(s Source) bool { return s.Kind != SourcePattern })
	assert.Equal(t, []string{"pattern:repository:internal/store/user.go#UserStore"}, pruned)
	assert.Equal(t, 3, ix.Len())
	assert.Empty(t, ix.Prune(func(Source) bool { return true }))
}

func TestIndexRestore(t *testing.T) {
	src := newTestIndex(t)
	dst := NewIndex(NewHashingEmbedder(128, 32))
	for _, e := range src.Entries() {
		require.NoError(t, dst.Restore(e))
	}
	assert.Equal(t, src.Entries(), dst.Entries())
	assert.Equal(t, src.Search("user", 4), dst.Search("user", 4))

	err := dst.Restore(IndexedConcept{Source: Source{Kind: SourceSymbol, EntityID: "bad"}, Vector: []float32{1, 0}})
	require.Error(t, err)
	assert.True(t, codeerrors.IsCode(err, codeerrors.CodeValidationError))
	_, ok := dst.Get("symbol:bad")
	assert.False(t, ok)
}

func TestIndexRestoreRejectsNonFiniteVectors(t *testing.T) {
	ix := NewIndex(NewHashingEmbedder(4, 2))
	for _, bad := range []float32{float32(math.NaN()), float32(math.Inf(1)), float32(math.Inf(-1))} {
		err := ix.Restore(IndexedConcept{
			Source: Source{Kind: SourceSymbol, EntityID: "bad"},
			Vector: []float32{1, bad, 0, 0},
		})
		require.Error(t, err)
		assert.True(t, codeerrors.IsCode(err, codeerrors.CodeValidationError))
	}
	assert.Zero(t, ix.Len())

	require.NoError(t, ix.Restore(IndexedConcept{Source: Source{Kind: SourceSymbol, EntityID: "ok"}, Vector: []float32{1, 0, 0, 0}}))
	res := ix.SearchVector([]float32{float32(math.NaN()), 0, 0, 0}, 3)
	assert.Empty(t, res)
}

func TestIndexCloneIsIndependent(t *testing.T) {
	ix := newTestIndex(t)
	cp := ix.Clone()
	cp.RemovePath("internal/store/user.go")

	assert.Equal(t, 4, ix.Len())
	assert.True(t, ix.ReferencesPath("internal/store/user.go"))
	assert.Equal(t, 2, cp.Len())
}
