// Package embedding turns concepts, patterns and symbols into fixed-size
// vectors and keeps them in a searchable index.
package embedding

import (
	"math"

	"codeintel/internal/shared/text"
	"codeintel/internal/shared/util"

	"github.com/cespare/xxhash/v2"
)

const (
	DefaultDimensions = 256
	DefaultCacheSize  = 1024

	bigramWeight = 0.5
)

type Embedder interface {
	Embed(s string) []float32
	Dimensions() int
}

// HashingEmbedder maps stemmed identifier tokens and adjacent-token bigrams
// into a fixed number of buckets with a signed hash, then L2-normalizes.
// Equal text always yields the identical vector. Returned slices are shared
// with the cache and must not be modified.
type HashingEmbedder struct {
	dims  int
	cache *util.LRU[string, []float32]
}

func NewHashingEmbedder(dims, cacheSize int) *HashingEmbedder {
	if dims <= 0 {
		dims = DefaultDimensions
	}
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	return &HashingEmbedder{dims: dims, cache: util.NewLRU[string, []float32](cacheSize)}
}

func (e *HashingEmbedder) Dimensions() int {
	return e.dims
}

func (e *HashingEmbedder) Embed(s string) []float32 {
	return e.cache.GetOrCompute(s, e.compute)
}

func (e *HashingEmbedder) CacheStats() util.CacheStats {
	return e.cache.Stats()
}

func (e *HashingEmbedder) compute(s string) []float32 {
	vec := make([]float64, e.dims)
	tokens := text.Tokens(s)
	for i, tok := range tokens {
		e.add(vec, tok, 1)
		if i > 0 {
			e.add(vec, tokens[i-1]+"_"+tok, bigramWeight)
		}
	}
	return normalize(vec)
}

func (e *HashingEmbedder) add(vec []float64, feature string, weight float64) {
	h := xxhash.Sum64String(feature)
	idx := int(h % uint64(e.dims))
	if h>>63 == 1 {
		weight = -weight
	}
	vec[idx] += weight
}

func normalize(vec []float64) []float32 {
	norm := 0.0
	for _, v := range vec {
		norm += v * v
	}
	out := make([]float32, len(vec))
	if norm == 0 {
		return out
	}
	norm = math.Sqrt(norm)
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out
}

// Cosine is the cosine similarity of two equal-length vectors, 0 when either
// is all zeros.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
