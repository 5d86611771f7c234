// Package patterns detects structural design patterns in extraction facts and
// keeps a frequency catalog of what has been observed across the project.
package patterns

import (
	"fmt"
	"sort"
)

type Kind string

const (
	KindSingleton  Kind = "singleton"
	KindFactory    Kind = "factory"
	KindBuilder    Kind = "builder"
	KindObserver   Kind = "observer"
	KindStrategy   Kind = "strategy"
	KindDecorator  Kind = "decorator"
	KindAdapter    Kind = "adapter"
	KindRepository Kind = "repository"
)

// Kinds lists every pattern kind in a fixed order.
func Kinds() []Kind {
	return []Kind{
		KindSingleton, KindFactory, KindBuilder, KindObserver,
		KindStrategy, KindDecorator, KindAdapter, KindRepository,
	}
}

// ParseKind maps a free-form name (as emitted by extractor hints) to a Kind.
func ParseKind(s string) (Kind, bool) {
	for _, k := range Kinds() {
		if string(k) == s {
			return k, true
		}
	}
	return "", false
}

// strength is the ceiling confidence of each kind: how much a perfect match
// of its rules can be trusted.
func (k Kind) strength() float64 {
	switch k {
	case KindSingleton:
		return 0.95
	case KindRepository:
		return 0.9
	case KindFactory, KindBuilder:
		return 0.85
	case KindObserver:
		return 0.8
	case KindDecorator:
		return 0.75
	case KindStrategy, KindAdapter:
		return 0.7
	default:
		return 0
	}
}

type Location struct {
	Path   string `json:"path"`
	Symbol string `json:"symbol,omitempty"`
	Line   int    `json:"line,omitempty"`
}

func (l Location) String() string {
	if l.Symbol == "" {
		return l.Path
	}
	return fmt.Sprintf("%s#%s:%d", l.Path, l.Symbol, l.Line)
}

// Evidence is one rule match supporting a candidate.
type Evidence struct {
	Rule        string   `json:"rule"`
	Description string   `json:"description"`
	Weight      float64  `json:"weight"`
	Location    Location `json:"location"`
}

type DetectedPattern struct {
	// ID is kind:path#symbol and is stable across runs.
	ID         string     `json:"id"`
	Kind       Kind       `json:"kind"`
	Path       string     `json:"path"`
	Symbol     string     `json:"symbol"`
	Locations  []Location `json:"locations"`
	Confidence float64    `json:"confidence"`
	Evidence   []Evidence `json:"evidence"`
}

func patternID(kind Kind, path, symbol string) string {
	return string(kind) + ":" + path + "#" + symbol
}

// sortEvidence orders evidence by weight descending, then description, rule
// and location so repeated runs produce identical slices.
func sortEvidence(ev []Evidence) {
	sort.SliceStable(ev, func(i, j int) bool {
		a, b := ev[i], ev[j]
		if a.Weight != b.Weight {
			return a.Weight > b.Weight
		}
		if a.Description != b.Description {
			return a.Description < b.Description
		}
		if a.Rule != b.Rule {
			return a.Rule < b.Rule
		}
		return a.Location.String() < b.Location.String()
	})
}

func sortPatterns(ps []DetectedPattern) {
	sort.Slice(ps, func(i, j int) bool { return ps[i].ID < ps[j].ID })
}
