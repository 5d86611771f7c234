package patterns

import (
	"log/slog"
	"math"
	"sort"

	"codeintel/internal/engine/facts"
)

// DefaultMinConfidence is the confidence below which candidates are dropped.
const DefaultMinConfidence = 0.3

// HintWeight is the evidence weight of an extractor pattern hint.
const HintWeight = 0.3

// confidenceRate controls how quickly accumulated evidence saturates.
const confidenceRate = 2.0

type Engine struct {
	minConfidence float64
}

func NewEngine(minConfidence float64) *Engine {
	if minConfidence <= 0 || minConfidence > 1 {
		minConfidence = DefaultMinConfidence
	}
	return &Engine{minConfidence: minConfidence}
}

// Confidence maps accumulated evidence to [0, 1]:
//
//	strength(kind) * (1 - exp(-2 * sum(weights)))
//
// It grows with every additional piece of evidence and never reaches the
// kind's strength.
func Confidence(kind Kind, evidence []Evidence) float64 {
	weights := make([]float64, 0, len(evidence))
	for _, ev := range evidence {
		if ev.Weight > 0 {
			weights = append(weights, ev.Weight)
		}
	}
	// Summation order is fixed so the result does not depend on rule order.
	sort.Float64s(weights)
	total := 0.0
	for _, w := range weights {
		total += w
	}
	c := kind.strength() * (1 - math.Exp(-confidenceRate*total))
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// DetectPatterns runs every rule against one file. Hints from the extractor
// strengthen candidates found by the rules but never create one. Output is
// sorted by pattern id and is identical for identical input.
func (e *Engine) DetectPatterns(f facts.FileFacts) []DetectedPattern {
	v := newFileView(f)
	cands := newCandidates()
	for _, kind := range Kinds() {
		detectors[kind](v, cands)
	}
	e.applyHints(f, cands)

	var res []DetectedPattern
	for _, cand := range cands.byKey {
		if !cand.anchored {
			continue
		}
		evidence := append([]Evidence(nil), cand.evidence...)
		sortEvidence(evidence)
		conf := Confidence(cand.kind, evidence)
		if conf < e.minConfidence {
			continue
		}
		res = append(res, DetectedPattern{
			ID:         patternID(cand.kind, f.Path, cand.symbol),
			Kind:       cand.kind,
			Path:       f.Path,
			Symbol:     cand.symbol,
			Locations:  locationsOf(f.Path, cand, evidence),
			Confidence: conf,
			Evidence:   evidence,
		})
	}
	sortPatterns(res)
	return res
}

func (e *Engine) applyHints(f facts.FileFacts, cands *candidates) {
	for _, h := range f.PatternHints {
		kind, ok := ParseKind(h.Kind)
		if !ok {
			slog.Debug("ignoring unknown pattern hint", "path", f.Path, "kind", h.Kind)
			continue
		}
		desc := h.Description
		if desc == "" {
			desc = "extractor reported " + string(kind)
		}
		var targets []*candidate
		if h.Symbol != "" {
			if cand := cands.get(kind, h.Symbol); cand != nil {
				targets = append(targets, cand)
			}
		} else {
			for _, cand := range cands.byKey {
				if cand.kind == kind {
					targets = append(targets, cand)
				}
			}
		}
		for _, cand := range targets {
			cand.evidence = append(cand.evidence, Evidence{
				Rule:        "hint.extractor",
				Description: desc,
				Weight:      HintWeight,
				Location:    Location{Path: f.Path, Symbol: cand.symbol, Line: cand.line},
			})
		}
	}
}

func locationsOf(path string, cand *candidate, evidence []Evidence) []Location {
	seen := make(map[Location]bool)
	locs := []Location{{Path: path, Symbol: cand.symbol, Line: cand.line}}
	seen[locs[0]] = true
	for _, ev := range evidence {
		if ev.Location.Symbol == "" || seen[ev.Location] {
			continue
		}
		seen[ev.Location] = true
		locs = append(locs, ev.Location)
	}
	sort.SliceStable(locs[1:], func(i, j int) bool {
		a, b := locs[1+i], locs[1+j]
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.Symbol < b.Symbol
	})
	return locs
}
