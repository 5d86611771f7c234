package patterns

import (
	"math"
	"math/rand"
	"testing"

	"codeintel/internal/engine/facts"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func findPattern(ps []DetectedPattern, kind Kind, symbol string) (DetectedPattern, bool) {
	for _, p := range ps {
		if p.Kind == kind && p.Symbol == symbol {
			return p, true
		}
	}
	return DetectedPattern{}, false
}

func singletonFile() facts.FileFacts {
	return facts.FileFacts{
		Path:     "src/config/AppConfig.java",
		Language: "java",
		Symbols: []facts.Symbol{
			{Name: "AppConfig", Kind: facts.KindClass, Line: 3},
			{Name: "instance", Parent: "AppConfig", Kind: facts.KindField, Type: "AppConfig", Modifiers: []string{"private", "static"}, Line: 4},
			{Name: "AppConfig", Parent: "AppConfig", Kind: facts.KindMethod, Modifiers: []string{"private"}, Line: 5},
			{Name: "getInstance", Parent: "AppConfig", Kind: facts.KindMethod, Modifiers: []string{"public", "static"}, Returns: []string{"AppConfig"}, Line: 8},
		},
	}
}

func TestDetectPatterns_Singleton(t *testing.T) {
	ps := NewEngine(DefaultMinConfidence).DetectPatterns(singletonFile())

	require.Len(t, ps, 1)
	p := ps[0]
	assert.Equal(t, "singleton:src/config/AppConfig.java#AppConfig", p.ID)
	assert.Equal(t, KindSingleton, p.Kind)
	assert.InDelta(t, 0.95*(1-math.Exp(-3.0)), p.Confidence, 1e-9)

	require.Len(t, p.Evidence, 3)
	assert.Equal(t, "singleton.static_accessor", p.Evidence[0].Rule)
	assert.Equal(t, "singleton.private_constructor", p.Evidence[1].Rule)
	assert.Equal(t, "singleton.static_instance", p.Evidence[2].Rule)

	require.Len(t, p.Locations, 4)
	assert.Equal(t, Location{Path: "src/config/AppConfig.java", Symbol: "AppConfig", Line: 3}, p.Locations[0])
	assert.Equal(t, "AppConfig.instance", p.Locations[1].Symbol)
	assert.Equal(t, "AppConfig.getInstance", p.Locations[3].Symbol)
}

func TestDetectPatterns_GoSingletonWithOnce(t *testing.T) {
	f := facts.FileFacts{
		Path:     "internal/registry/registry.go",
		Language: "go",
		Symbols: []facts.Symbol{
			{Name: "Registry", Kind: facts.KindStruct, Exported: true, Line: 5},
			{Name: "defaultRegistry", Kind: facts.KindVariable, Type: "*Registry", Line: 9},
			{Name: "Default", Kind: facts.KindFunction, Exported: true, Returns: []string{"*Registry"}, Calls: []string{"once.Do"}, Line: 12},
		},
	}
	ps := NewEngine(DefaultMinConfidence).DetectPatterns(f)

	p, ok := findPattern(ps, KindSingleton, "Registry")
	require.True(t, ok)
	assert.InDelta(t, 0.95*(1-math.Exp(-2.6)), p.Confidence, 1e-9)
}

func TestDetectPatterns_Builder(t *testing.T) {
	f := facts.FileFacts{
		Path:     "pkg/http/request_builder.go",
		Language: "go",
		Symbols: []facts.Symbol{
			{Name: "RequestBuilder", Kind: facts.KindStruct, Line: 1},
			{Name: "WithHeader", Parent: "RequestBuilder", Kind: facts.KindMethod, Returns: []string{"*RequestBuilder"}, Line: 5},
			{Name: "WithBody", Parent: "RequestBuilder", Kind: facts.KindMethod, Returns: []string{"*RequestBuilder"}, Line: 10},
			{Name: "Build", Parent: "RequestBuilder", Kind: facts.KindMethod, Returns: []string{"*Request", "error"}, Line: 15},
			{Name: "NewRequestBuilder", Kind: facts.KindFunction, Returns: []string{"*RequestBuilder"}, Line: 20},
		},
	}
	ps := NewEngine(DefaultMinConfidence).DetectPatterns(f)

	require.Len(t, ps, 1)
	p := ps[0]
	assert.Equal(t, KindBuilder, p.Kind)
	assert.Equal(t, "RequestBuilder", p.Symbol)
	assert.InDelta(t, 0.85*(1-math.Exp(-2.6)), p.Confidence, 1e-9)

	rules := make([]string, 0, len(p.Evidence))
	for _, ev := range p.Evidence {
		rules = append(rules, ev.Rule)
	}
	assert.Equal(t, []string{"builder.build_method", "builder.name", "builder.fluent_setter", "builder.fluent_setter"}, rules)
	assert.Equal(t, "RequestBuilder.WithBody", p.Evidence[2].Location.Symbol)
}

func TestDetectPatterns_FactoryAndStrategy(t *testing.T) {
	f := facts.FileFacts{
		Path:     "shapes/shape.go",
		Language: "go",
		Symbols: []facts.Symbol{
			{Name: "Shape", Kind: facts.KindInterface, Line: 1},
			{Name: "Area", Parent: "Shape", Kind: facts.KindMethod, Returns: []string{"float64"}, Line: 2},
			{Name: "Circle", Kind: facts.KindStruct, Bases: []string{"Shape"}, Line: 5},
			{Name: "Square", Kind: facts.KindStruct, Bases: []string{"Shape"}, Line: 9},
			{Name: "CreateShape", Kind: facts.KindFunction, Returns: []string{"Shape"}, Line: 13, Shape: &facts.UnitShape{
				Decisions: []facts.DecisionPoint{{Kind: facts.DecisionSwitch}, {Kind: facts.DecisionCase}, {Kind: facts.DecisionCase}},
			}},
		},
	}
	ps := NewEngine(DefaultMinConfidence).DetectPatterns(f)

	require.Len(t, ps, 2)
	assert.Equal(t, "factory:shapes/shape.go#CreateShape", ps[0].ID)
	assert.InDelta(t, 0.85*(1-math.Exp(-2.2)), ps[0].Confidence, 1e-9)
	assert.Equal(t, "strategy:shapes/shape.go#Shape", ps[1].ID)
	assert.InDelta(t, 0.7*(1-math.Exp(-1.4)), ps[1].Confidence, 1e-9)
}

func TestDetectPatterns_DecoratorAndAdapter(t *testing.T) {
	f := facts.FileFacts{
		Path:     "middleware/logging.go",
		Language: "go",
		Symbols: []facts.Symbol{
			{Name: "Handler", Kind: facts.KindInterface, Line: 1},
			{Name: "ServeHTTP", Parent: "Handler", Kind: facts.KindMethod, Line: 2},
			{Name: "LoggingHandler", Kind: facts.KindStruct, Bases: []string{"Handler"}, Line: 5},
			{Name: "next", Parent: "LoggingHandler", Kind: facts.KindField, Type: "Handler", Line: 6},
			{Name: "ServeHTTP", Parent: "LoggingHandler", Kind: facts.KindMethod, Calls: []string{"log.Printf", "next.ServeHTTP"}, Line: 9},
			{Name: "LegacyAdapter", Kind: facts.KindStruct, Bases: []string{"Handler"}, Line: 15},
			{Name: "legacy", Parent: "LegacyAdapter", Kind: facts.KindField, Type: "*legacy.Server", Line: 16},
			{Name: "ServeHTTP", Parent: "LegacyAdapter", Kind: facts.KindMethod, Calls: []string{"legacy.Handle"}, Line: 19},
		},
	}
	ps := NewEngine(DefaultMinConfidence).DetectPatterns(f)

	dec, ok := findPattern(ps, KindDecorator, "LoggingHandler")
	require.True(t, ok)
	assert.InDelta(t, 0.75*(1-math.Exp(-1.6)), dec.Confidence, 1e-9)

	ad, ok := findPattern(ps, KindAdapter, "LegacyAdapter")
	require.True(t, ok)
	assert.InDelta(t, 0.7*(1-math.Exp(-1.8)), ad.Confidence, 1e-9)

	_, ok = findPattern(ps, KindAdapter, "LoggingHandler")
	assert.False(t, ok, "wrapping the implemented interface is not adaptation")
}

func TestDetectPatterns_Repository(t *testing.T) {
	f := facts.FileFacts{
		Path:     "internal/store/user_store.go",
		Language: "go",
		Symbols: []facts.Symbol{
			{Name: "UserStore", Kind: facts.KindStruct, Line: 3},
			{Name: "FindByID", Parent: "UserStore", Kind: facts.KindMethod, Returns: []string{"*User", "error"}, Line: 10},
			{Name: "Save", Parent: "UserStore", Kind: facts.KindMethod, Returns: []string{"error"}, Line: 20},
			{Name: "Delete", Parent: "UserStore", Kind: facts.KindMethod, Returns: []string{"error"}, Line: 30},
			{Name: "List", Parent: "UserStore", Kind: facts.KindMethod, Returns: []string{"[]*User", "error"}, Line: 40},
		},
	}
	ps := NewEngine(DefaultMinConfidence).DetectPatterns(f)

	require.Len(t, ps, 1)
	assert.Equal(t, KindRepository, ps[0].Kind)
	assert.InDelta(t, 0.9*(1-math.Exp(-2.6)), ps[0].Confidence, 1e-9)
}

func observerFile(hints ...facts.PatternHint) facts.FileFacts {
	return facts.FileFacts{
		Path:     "events/bus.go",
		Language: "go",
		Symbols: []facts.Symbol{
			{Name: "EventBus", Kind: facts.KindStruct, Line: 1},
			{Name: "listeners", Parent: "EventBus", Kind: facts.KindField, Type: "[]Listener", Line: 2},
			{Name: "Subscribe", Parent: "EventBus", Kind: facts.KindMethod, Line: 5},
			{Name: "Publish", Parent: "EventBus", Kind: facts.KindMethod, Line: 9},
		},
		PatternHints: hints,
	}
}

func TestDetectPatterns_Hints(t *testing.T) {
	e := NewEngine(DefaultMinConfidence)

	plain := e.DetectPatterns(observerFile())
	require.Len(t, plain, 1)
	assert.InDelta(t, 0.8*(1-math.Exp(-2.6)), plain[0].Confidence, 1e-9)

	hinted := e.DetectPatterns(observerFile(
		facts.PatternHint{Kind: "observer", Symbol: "EventBus", Description: "event emitter"},
		facts.PatternHint{Kind: "singleton", Symbol: "EventBus"},
		facts.PatternHint{Kind: "mediator"},
	))
	require.Len(t, hinted, 1, "hints never create candidates on their own")
	assert.InDelta(t, 0.8*(1-math.Exp(-3.2)), hinted[0].Confidence, 1e-9)
	assert.Greater(t, hinted[0].Confidence, plain[0].Confidence)

	var hintEvidence []Evidence
	for _, ev := range hinted[0].Evidence {
		if ev.Rule == "hint.extractor" {
			hintEvidence = append(hintEvidence, ev)
		}
	}
	require.Len(t, hintEvidence, 1)
	assert.Equal(t, HintWeight, hintEvidence[0].Weight)
}

func TestDetectPatterns_HintOnly(t *testing.T) {
	f := facts.FileFacts{
		Path:         "a.go",
		Language:     "go",
		Symbols:      []facts.Symbol{{Name: "Thing", Kind: facts.KindStruct}},
		PatternHints: []facts.PatternHint{{Kind: "factory", Symbol: "Thing"}},
	}
	assert.Empty(t, NewEngine(DefaultMinConfidence).DetectPatterns(f))
}

func TestDetectPatterns_Idempotent(t *testing.T) {
	e := NewEngine(DefaultMinConfidence)
	f := singletonFile()
	first := e.DetectPatterns(f)
	second := e.DetectPatterns(f)
	assert.Equal(t, first, second)

	r := rand.New(rand.NewSource(7))
	for i := 0; i < 10; i++ {
		shuffled := f
		shuffled.Symbols = append([]facts.Symbol(nil), f.Symbols...)
		r.Shuffle(len(shuffled.Symbols), func(a, b int) {
			shuffled.Symbols[a], shuffled.Symbols[b] = shuffled.Symbols[b], shuffled.Symbols[a]
		})
		assert.Equal(t, first, e.DetectPatterns(shuffled))
	}
}

func TestDetectPatterns_MinConfidence(t *testing.T) {
	assert.Empty(t, NewEngine(0.95).DetectPatterns(singletonFile()))
}

func TestConfidence(t *testing.T) {
	one := []Evidence{{Weight: 0.3}}
	two := []Evidence{{Weight: 0.3}, {Weight: 0.3}}

	assert.Zero(t, Confidence(KindFactory, nil))
	assert.Less(t, Confidence(KindFactory, one), Confidence(KindFactory, two))
	assert.Less(t, Confidence(KindFactory, two), KindFactory.strength())
	assert.Less(t, Confidence(KindAdapter, one), Confidence(KindSingleton, one))
	assert.Equal(t, Confidence(KindBuilder, []Evidence{{Weight: 0.1}, {Weight: 0.7}}),
		Confidence(KindBuilder, []Evidence{{Weight: 0.7}, {Weight: 0.1}}))
}

func TestBaseTypeName(t *testing.T) {
	tests := map[string]string{
		"*pkg.Repo[T]":      "Repo",
		"[]*User":           "User",
		"List<User>":        "List",
		"Handler":           "Handler",
		" &models::Account": "Account",
	}
	for in, want := range tests {
		assert.Equal(t, want, baseTypeName(in), in)
	}
}
