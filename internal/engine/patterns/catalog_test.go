package patterns

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func detected(kind Kind, path, symbol string, conf float64) DetectedPattern {
	return DetectedPattern{
		ID:         patternID(kind, path, symbol),
		Kind:       kind,
		Path:       path,
		Symbol:     symbol,
		Confidence: conf,
	}
}

func TestCatalog_ObserveForget(t *testing.T) {
	c := NewCatalog()
	c.Observe("a.go", []DetectedPattern{
		detected(KindFactory, "a.go", "NewThing", 0.5),
		detected(KindBuilder, "a.go", "ThingBuilder", 0.7),
	})
	c.Observe("b.go", []DetectedPattern{detected(KindFactory, "b.go", "MakeOther", 0.6)})

	assert.Equal(t, 3, c.Len())
	assert.Equal(t, map[Kind]int{KindFactory: 2, KindBuilder: 1}, c.Frequencies())
	assert.Equal(t, []string{"a.go", "b.go"}, c.Paths())

	// Re-observing replaces, never accumulates.
	c.Observe("a.go", []DetectedPattern{detected(KindBuilder, "a.go", "ThingBuilder", 0.7)})
	assert.Equal(t, map[Kind]int{KindFactory: 1, KindBuilder: 1}, c.Frequencies())

	c.Forget("b.go")
	assert.Equal(t, map[Kind]int{KindBuilder: 1}, c.Frequencies())

	c.Observe("a.go", nil)
	assert.Zero(t, c.Len())
	assert.Empty(t, c.Paths())
}

func TestCatalog_CloneIsIndependent(t *testing.T) {
	c := NewCatalog()
	c.Observe("a.go", []DetectedPattern{detected(KindFactory, "a.go", "NewThing", 0.5)})
	cp := c.Clone()
	cp.Forget("a.go")

	assert.Equal(t, 1, c.Len())
	assert.Zero(t, cp.Len())
}

func TestCatalog_Recommend(t *testing.T) {
	c := NewCatalog()
	c.Observe("internal/store/user_store.go", []DetectedPattern{
		detected(KindRepository, "internal/store/user_store.go", "UserStore", 0.8),
	})
	c.Observe("internal/store/order_store.go", []DetectedPattern{
		detected(KindRepository, "internal/store/order_store.go", "OrderStore", 0.9),
	})
	c.Observe("pkg/http/request_builder.go", []DetectedPattern{
		detected(KindBuilder, "pkg/http/request_builder.go", "RequestBuilder", 0.7),
	})

	recs := c.Recommend(RecommendContext{Name: "ProductStore", Path: "internal/store/product_store.go"}, 5)
	require.Len(t, recs, 2, "only observed kinds are recommended")
	assert.Equal(t, KindRepository, recs[0].Kind)
	assert.Equal(t, 2, recs[0].Frequency)
	assert.Equal(t, []string{
		"repository:internal/store/order_store.go#OrderStore",
		"repository:internal/store/user_store.go#UserStore",
	}, recs[0].Examples)
	assert.Greater(t, recs[0].Similarity, recs[1].Similarity)
	assert.GreaterOrEqual(t, recs[0].Score, recs[1].Score)

	top := c.Recommend(RecommendContext{Name: "HeaderBuilder"}, 1)
	require.Len(t, top, 1)
	assert.Equal(t, KindBuilder, top[0].Kind)

	assert.Nil(t, c.Recommend(RecommendContext{Name: "x"}, 0))
	assert.Nil(t, NewCatalog().Recommend(RecommendContext{Name: "x"}, 3))
}
