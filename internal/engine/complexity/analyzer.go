package complexity

import (
	"math"
	"sort"

	"codeintel/internal/engine/facts"
)

// MetricCeiling is the largest value any metric may take. Larger or
// non-finite values are clamped and flagged.
const MetricCeiling = 1e12

// Maintainability index coefficients:
//
//	MI = max(0, (171 - 5.2 ln V - 0.23 G - 16.2 ln LOC) * 100 / 171)
//
// clamped to [0, 100]. ln arguments below 1 are raised to 1 so empty units
// do not produce negative logarithms.
const (
	miBase       = 171.0
	miVolume     = 5.2
	miCyclomatic = 0.23
	miLines      = 16.2
)

type Thresholds struct {
	Low      float64
	Moderate float64
	High     float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{Low: 85, Moderate: 65, High: 40}
}

type Analyzer struct {
	thresholds    Thresholds
	nestingWeight int
}

func NewAnalyzer(thresholds Thresholds, nestingWeight int) *Analyzer {
	if nestingWeight <= 0 {
		nestingWeight = 1
	}
	return &Analyzer{thresholds: thresholds, nestingWeight: nestingWeight}
}

func NewDefaultAnalyzer() *Analyzer {
	return NewAnalyzer(DefaultThresholds(), 1)
}

// LevelFor buckets a maintainability index. Higher index means lower
// complexity.
func (a *Analyzer) LevelFor(mi float64) Level {
	switch {
	case mi >= a.thresholds.Low:
		return LevelLow
	case mi >= a.thresholds.Moderate:
		return LevelModerate
	case mi >= a.thresholds.High:
		return LevelHigh
	default:
		return LevelVeryHigh
	}
}

// AnalyzeUnit computes the metrics of one callable symbol. Symbols without a
// shape are treated as straight-line code.
func (a *Analyzer) AnalyzeUnit(path string, sym facts.Symbol) Result {
	shape := facts.UnitShape{}
	if sym.Shape != nil {
		shape = *sym.Shape
	}

	r := Result{
		ID:        facts.SymbolID(path, sym),
		Name:      sym.QualifiedName(),
		Path:      path,
		StartLine: sym.Line,
		EndLine:   sym.EndLine,
		Lines: LineMetrics{
			Physical: shape.Lines.Physical,
			Logical:  shape.Lines.Logical,
			Comment:  shape.Lines.Comment,
		},
	}

	cyclomatic, cognitive, maxDepth := a.decisionMetrics(shape.Decisions)
	r.MaxNesting = shape.MaxNesting
	if maxDepth > r.MaxNesting {
		r.MaxNesting = maxDepth
	}

	cl := &clamp{}
	r.Cyclomatic = cl.int("cyclomatic", cyclomatic)
	r.Cognitive = cl.int("cognitive", cognitive)
	r.Halstead = computeHalstead(shape.Operators, shape.Operands, cl)
	r.MaintainabilityIndex = maintainabilityIndex(r.Halstead.Volume, r.Cyclomatic, linesOfCode(r.Lines))
	r.Level = a.LevelFor(r.MaintainabilityIndex)
	r.Overflow, r.ClampedFields = cl.result()
	return r
}

// AnalyzeFile analyzes every callable symbol of f and aggregates them. The
// file index is computed from the merged operator/operand counts, the total
// cyclomatic complexity and the file's lines of code.
func (a *Analyzer) AnalyzeFile(f facts.FileFacts) FileComplexity {
	fc := FileComplexity{
		Path:     f.Path,
		Language: f.Language,
		Lines: LineMetrics{
			Physical: f.Lines.Physical,
			Logical:  f.Lines.Logical,
			Comment:  f.Lines.Comment,
		},
	}

	operators := make(map[string]int)
	operands := make(map[string]int)
	unitLines := LineMetrics{}
	for _, sym := range f.Symbols {
		if !sym.Kind.IsCallable() {
			continue
		}
		r := a.AnalyzeUnit(f.Path, sym)
		fc.Units = append(fc.Units, r)
		unitLines.Physical += r.Lines.Physical
		unitLines.Logical += r.Lines.Logical
		unitLines.Comment += r.Lines.Comment
		if sym.Shape != nil {
			for k, v := range sym.Shape.Operators {
				operators[k] = addSaturating(operators[k], v)
			}
			for k, v := range sym.Shape.Operands {
				operands[k] = addSaturating(operands[k], v)
			}
		}
	}
	sort.Slice(fc.Units, func(i, j int) bool {
		if fc.Units[i].StartLine != fc.Units[j].StartLine {
			return fc.Units[i].StartLine < fc.Units[j].StartLine
		}
		return fc.Units[i].ID < fc.Units[j].ID
	})
	fc.Aggregate()

	if fc.Lines.Physical == 0 && fc.Lines.Logical == 0 {
		fc.Lines = unitLines
	}

	cl := &clamp{}
	fc.Halstead = computeHalstead(operators, operands, cl)
	cyclomatic := fc.TotalCyclomatic
	if cyclomatic == 0 {
		cyclomatic = 1
	}
	fc.MaintainabilityIndex = maintainabilityIndex(fc.Halstead.Volume, cyclomatic, linesOfCode(fc.Lines))
	fc.Level = a.LevelFor(fc.MaintainabilityIndex)
	if overflow, _ := cl.result(); overflow {
		fc.Overflow = true
	}
	return fc
}

// decisionMetrics returns cyclomatic and cognitive complexity. Cyclomatic
// counts every branch point except switch heads (their cases count instead).
// Cognitive adds 1 plus depth*nestingWeight for structural points, a flat 1
// for else-if and boolean operators, and nothing for individual cases.
func (a *Analyzer) decisionMetrics(decisions []facts.DecisionPoint) (float64, float64, int) {
	cyclomatic := 1.0
	cognitive := 0.0
	maxDepth := 0
	for _, d := range decisions {
		if d.Depth > maxDepth {
			maxDepth = d.Depth
		}
		switch d.Kind {
		case facts.DecisionIf, facts.DecisionWhile, facts.DecisionFor,
			facts.DecisionCatch, facts.DecisionTernary:
			cyclomatic++
			cognitive += 1 + float64(d.Depth)*float64(a.nestingWeight)
		case facts.DecisionSwitch:
			cognitive += 1 + float64(d.Depth)*float64(a.nestingWeight)
		case facts.DecisionElseIf, facts.DecisionLogicalAnd, facts.DecisionLogicalOr:
			cyclomatic++
			cognitive++
		case facts.DecisionCase:
			cyclomatic++
		}
	}
	return cyclomatic, cognitive, maxDepth
}

// computeHalstead sums counts in float64 so huge inputs clamp instead of
// wrapping.
func computeHalstead(operators, operands map[string]int, cl *clamp) Halstead {
	h := Halstead{}
	var totalOperators, totalOperands float64
	for _, count := range operators {
		if count > 0 {
			h.DistinctOperators++
			totalOperators += float64(count)
		}
	}
	for _, count := range operands {
		if count > 0 {
			h.DistinctOperands++
			totalOperands += float64(count)
		}
	}
	length := totalOperators + totalOperands
	h.TotalOperators = cl.int("halstead.total_operators", totalOperators)
	h.TotalOperands = cl.int("halstead.total_operands", totalOperands)
	h.Length = cl.int("halstead.length", length)
	h.Vocabulary = h.DistinctOperators + h.DistinctOperands

	if h.Vocabulary > 0 {
		h.Volume = cl.float("halstead.volume", float64(h.Length)*math.Log2(float64(h.Vocabulary)))
	}
	if h.DistinctOperands > 0 {
		h.Difficulty = cl.float("halstead.difficulty",
			(float64(h.DistinctOperators)/2.0)*(float64(h.TotalOperands)/float64(h.DistinctOperands)))
	}
	h.Effort = cl.float("halstead.effort", h.Difficulty*h.Volume)
	return h
}

func addSaturating(a, b int) int {
	if b > 0 && a > math.MaxInt-b {
		return math.MaxInt
	}
	return a + b
}

func linesOfCode(lines LineMetrics) int {
	if lines.Logical > 0 {
		return lines.Logical
	}
	return lines.Physical
}

func maintainabilityIndex(volume float64, cyclomatic, loc int) float64 {
	v := math.Max(volume, 1)
	l := math.Max(float64(loc), 1)
	mi := (miBase - miVolume*math.Log(v) - miCyclomatic*float64(cyclomatic) - miLines*math.Log(l)) * 100 / miBase
	if math.IsNaN(mi) || mi < 0 {
		return 0
	}
	if mi > 100 {
		return 100
	}
	return mi
}

// clamp records which metrics had to be limited to MetricCeiling.
type clamp struct {
	fields []string
}

func (c *clamp) float(name string, v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v > MetricCeiling {
		c.fields = append(c.fields, name)
		return MetricCeiling
	}
	if v < 0 {
		return 0
	}
	return v
}

func (c *clamp) int(name string, v float64) int {
	return int(c.float(name, v))
}

func (c *clamp) result() (bool, []string) {
	return len(c.fields) > 0, c.fields
}
