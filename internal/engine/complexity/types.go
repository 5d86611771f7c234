// Package complexity computes per-unit and per-file complexity metrics from
// the unit shapes supplied by the extraction layer.
package complexity

type Level string

const (
	LevelLow      Level = "low"
	LevelModerate Level = "moderate"
	LevelHigh     Level = "high"
	LevelVeryHigh Level = "very_high"
)

// Halstead holds the operator/operand derived measures.
type Halstead struct {
	DistinctOperators int     `json:"distinct_operators"`
	DistinctOperands  int     `json:"distinct_operands"`
	TotalOperators    int     `json:"total_operators"`
	TotalOperands     int     `json:"total_operands"`
	Vocabulary        int     `json:"vocabulary"`
	Length            int     `json:"length"`
	Volume            float64 `json:"volume"`
	Difficulty        float64 `json:"difficulty"`
	Effort            float64 `json:"effort"`
}

type LineMetrics struct {
	Physical int `json:"physical"`
	Logical  int `json:"logical"`
	Comment  int `json:"comment"`
}

// Result contains the metrics for one unit (function or method).
type Result struct {
	// ID is the symbol id the result is keyed by.
	ID   string `json:"id"`
	Name string `json:"name"`
	Path string `json:"path"`

	StartLine int `json:"start_line,omitempty"`
	EndLine   int `json:"end_line,omitempty"`

	// Cyclomatic is decision points + 1.
	Cyclomatic int `json:"cyclomatic"`
	// Cognitive weights structural decision points by nesting depth.
	Cognitive  int `json:"cognitive"`
	MaxNesting int `json:"max_nesting"`

	Halstead             Halstead    `json:"halstead"`
	Lines                LineMetrics `json:"lines"`
	MaintainabilityIndex float64     `json:"maintainability_index"`
	Level                Level       `json:"level"`

	// Overflow is set when a metric was clamped to MetricCeiling.
	Overflow      bool     `json:"overflow,omitempty"`
	ClampedFields []string `json:"clamped_fields,omitempty"`
}

// FileComplexity aggregates the unit results of one file.
type FileComplexity struct {
	Path     string   `json:"path"`
	Language string   `json:"language"`
	Units    []Result `json:"units"`

	TotalCyclomatic   int     `json:"total_cyclomatic"`
	TotalCognitive    int     `json:"total_cognitive"`
	AverageCyclomatic float64 `json:"average_cyclomatic"`
	AverageCognitive  float64 `json:"average_cognitive"`
	MaxCyclomatic     int     `json:"max_cyclomatic"`
	MaxCognitive      int     `json:"max_cognitive"`
	UnitCount         int     `json:"unit_count"`

	Halstead             Halstead    `json:"halstead"`
	Lines                LineMetrics `json:"lines"`
	MaintainabilityIndex float64     `json:"maintainability_index"`
	Level                Level       `json:"level"`

	Overflow bool `json:"overflow,omitempty"`
}

// Aggregate computes the sum, max and average metrics from Units.
func (fc *FileComplexity) Aggregate() {
	fc.UnitCount = len(fc.Units)
	fc.TotalCyclomatic, fc.TotalCognitive = 0, 0
	fc.MaxCyclomatic, fc.MaxCognitive = 0, 0
	fc.AverageCyclomatic, fc.AverageCognitive = 0, 0
	if fc.UnitCount == 0 {
		return
	}

	for _, u := range fc.Units {
		fc.TotalCyclomatic += u.Cyclomatic
		fc.TotalCognitive += u.Cognitive

		if u.Cyclomatic > fc.MaxCyclomatic {
			fc.MaxCyclomatic = u.Cyclomatic
		}
		if u.Cognitive > fc.MaxCognitive {
			fc.MaxCognitive = u.Cognitive
		}
		if u.Overflow {
			fc.Overflow = true
		}
	}

	fc.AverageCyclomatic = float64(fc.TotalCyclomatic) / float64(fc.UnitCount)
	fc.AverageCognitive = float64(fc.TotalCognitive) / float64(fc.UnitCount)
}
