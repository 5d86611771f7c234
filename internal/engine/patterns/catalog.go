package patterns

import (
	"math"
	"path"
	"sort"
	"strings"

	"codeintel/internal/shared/text"

	"github.com/hbollon/go-edlib"
)

// Recommendation weights: token overlap with prior usage, name similarity to
// the closest observed symbol, and how common the kind is in the project.
const (
	recommendContextWeight   = 0.6
	recommendNameWeight      = 0.25
	recommendFrequencyWeight = 0.15
)

// RecommendContext describes the code a caller wants suggestions for.
type RecommendContext struct {
	Name        string `json:"name,omitempty"`
	Path        string `json:"path,omitempty"`
	Description string `json:"description,omitempty"`
}

type Recommendation struct {
	Kind           Kind     `json:"kind"`
	Score          float64  `json:"score"`
	Similarity     float64  `json:"similarity"`
	NameSimilarity float64  `json:"name_similarity"`
	Frequency      int      `json:"frequency"`
	Examples       []string `json:"examples,omitempty"`
}

// Catalog records detected patterns per file. Replacing or forgetting a
// path removes exactly that file's contribution. A Catalog is not safe for
// concurrent mutation; the engine clones it before applying updates.
type Catalog struct {
	byPath map[string][]DetectedPattern
}

func NewCatalog() *Catalog {
	return &Catalog{byPath: make(map[string][]DetectedPattern)}
}

func (c *Catalog) Clone() *Catalog {
	cp := &Catalog{byPath: make(map[string][]DetectedPattern, len(c.byPath))}
	for p, ps := range c.byPath {
		cp.byPath[p] = ps
	}
	return cp
}

// Observe replaces the contribution of path.
func (c *Catalog) Observe(path string, ps []DetectedPattern) {
	if len(ps) == 0 {
		delete(c.byPath, path)
		return
	}
	cp := append([]DetectedPattern(nil), ps...)
	sortPatterns(cp)
	c.byPath[path] = cp
}

func (c *Catalog) Forget(path string) {
	delete(c.byPath, path)
}

// Paths lists every path with at least one pattern.
func (c *Catalog) Paths() []string {
	paths := make([]string, 0, len(c.byPath))
	for p := range c.byPath {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func (c *Catalog) Patterns(path string) []DetectedPattern {
	return c.byPath[path]
}

// All returns every pattern sorted by id.
func (c *Catalog) All() []DetectedPattern {
	var all []DetectedPattern
	for _, ps := range c.byPath {
		all = append(all, ps...)
	}
	sortPatterns(all)
	return all
}

func (c *Catalog) Len() int {
	n := 0
	for _, ps := range c.byPath {
		n += len(ps)
	}
	return n
}

func (c *Catalog) Frequencies() map[Kind]int {
	freq := make(map[Kind]int)
	for _, ps := range c.byPath {
		for _, p := range ps {
			freq[p.Kind]++
		}
	}
	return freq
}

// Recommend ranks observed kinds by how closely ctx resembles the places
// they were seen. Kinds never observed are not recommended.
func (c *Catalog) Recommend(ctx RecommendContext, k int) []Recommendation {
	if k <= 0 {
		return nil
	}
	byKind := make(map[Kind][]DetectedPattern)
	maxFreq := 0
	for _, p := range c.All() {
		byKind[p.Kind] = append(byKind[p.Kind], p)
		if n := len(byKind[p.Kind]); n > maxFreq {
			maxFreq = n
		}
	}
	if maxFreq == 0 {
		return nil
	}

	query := text.TokenSet(ctx.Name, ctx.Path, ctx.Description)
	name := strings.ToLower(lastSegment(ctx.Name))

	var recs []Recommendation
	for _, kind := range Kinds() {
		ps := byKind[kind]
		if len(ps) == 0 {
			continue
		}
		profile := make(map[string]int)
		nameSim := 0.0
		for _, p := range ps {
			for tok, n := range text.TokenSet(p.Symbol, path.Dir(p.Path)) {
				profile[tok] += n
			}
			if name != "" {
				if s := jaroWinkler(name, strings.ToLower(lastSegment(p.Symbol))); s > nameSim {
					nameSim = s
				}
			}
		}
		sim := text.Cosine(query, profile)
		freq := math.Log1p(float64(len(ps))) / math.Log1p(float64(maxFreq))
		recs = append(recs, Recommendation{
			Kind:           kind,
			Score:          recommendContextWeight*sim + recommendNameWeight*nameSim + recommendFrequencyWeight*freq,
			Similarity:     sim,
			NameSimilarity: nameSim,
			Frequency:      len(ps),
			Examples:       examples(ps, 3),
		})
	}

	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].Score != recs[j].Score {
			return recs[i].Score > recs[j].Score
		}
		return recs[i].Kind < recs[j].Kind
	})
	if len(recs) > k {
		recs = recs[:k]
	}
	return recs
}

func jaroWinkler(a, b string) float64 {
	if a == b {
		return 1
	}
	if a == "" || b == "" {
		return 0
	}
	score, err := edlib.StringsSimilarity(a, b, edlib.JaroWinkler)
	if err != nil {
		return 0
	}
	return float64(score)
}

// examples returns the ids of the n most confident patterns.
func examples(ps []DetectedPattern, n int) []string {
	sorted := append([]DetectedPattern(nil), ps...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Confidence != sorted[j].Confidence {
			return sorted[i].Confidence > sorted[j].Confidence
		}
		return sorted[i].ID < sorted[j].ID
	})
	var ids []string
	for i := 0; i < len(sorted) && i < n; i++ {
		ids = append(ids, sorted[i].ID)
	}
	return ids
}

func lastSegment(name string) string {
	if i := strings.LastIndexAny(name, ".#/"); i >= 0 {
		return name[i+1:]
	}
	return name
}
