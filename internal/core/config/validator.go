package config

import (
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/gobwas/glob"
)

func validateVersion(cfg *Config) error {
	if cfg.Version < 1 {
		return fmt.Errorf("version must be >= 1, got %d", cfg.Version)
	}
	if cfg.Version > 1 {
		return fmt.Errorf("unsupported config version %d; supported version is 1", cfg.Version)
	}
	return nil
}

func validateDatabase(cfg *Config) error {
	driver := strings.ToLower(strings.TrimSpace(cfg.DB.Driver))
	if driver != "sqlite" {
		return fmt.Errorf("db.driver must be sqlite, got %q", cfg.DB.Driver)
	}
	if strings.TrimSpace(cfg.DB.Path) == "" {
		return fmt.Errorf("db.path must not be empty")
	}
	if cfg.DB.RetainSnapshots < 1 {
		return fmt.Errorf("db.retain_snapshots must be >= 1, got %d", cfg.DB.RetainSnapshots)
	}
	return nil
}

func validateWatch(cfg *Config) error {
	if cfg.Watch.Debounce < 0 {
		return fmt.Errorf("watch.debounce must not be negative, got %s", cfg.Watch.Debounce)
	}
	for i, p := range cfg.WatchPaths {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("watch_paths[%d] must not be empty", i)
		}
	}
	return nil
}

func validateExclude(cfg *Config) error {
	for _, pattern := range cfg.Exclude.Dirs {
		if _, err := glob.Compile(pattern); err != nil {
			return fmt.Errorf("exclude.dirs: invalid pattern %q: %w", pattern, err)
		}
	}
	for _, pattern := range cfg.Exclude.Files {
		if _, err := glob.Compile(pattern); err != nil {
			return fmt.Errorf("exclude.files: invalid pattern %q: %w", pattern, err)
		}
	}
	return nil
}

func validateAnalysis(cfg *Config) error {
	if cfg.Analysis.Workers < 1 {
		return fmt.Errorf("analysis.workers must be >= 1, got %d", cfg.Analysis.Workers)
	}
	if cfg.Analysis.MaxCycles < 1 {
		return fmt.Errorf("analysis.max_cycles must be >= 1, got %d", cfg.Analysis.MaxCycles)
	}
	return nil
}

func validateComplexity(cfg *Config) error {
	c := cfg.Complexity
	for name, v := range map[string]float64{
		"low_threshold":      c.LowThreshold,
		"moderate_threshold": c.ModerateThreshold,
		"high_threshold":     c.HighThreshold,
	} {
		if v < 0 || v > 100 {
			return fmt.Errorf("complexity.%s must be within [0,100], got %v", name, v)
		}
	}
	if !(c.LowThreshold > c.ModerateThreshold && c.ModerateThreshold > c.HighThreshold) {
		return fmt.Errorf("complexity thresholds must be strictly decreasing: low=%v moderate=%v high=%v",
			c.LowThreshold, c.ModerateThreshold, c.HighThreshold)
	}
	return nil
}

func validatePatterns(cfg *Config) error {
	if cfg.Patterns.MinConfidence < 0 || cfg.Patterns.MinConfidence > 1 {
		return fmt.Errorf("patterns.min_confidence must be within [0,1], got %v", cfg.Patterns.MinConfidence)
	}
	return nil
}

func validateSemantic(cfg *Config) error {
	for _, pattern := range cfg.Semantic.EntryPointGlobs {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("semantic.entry_point_globs: invalid pattern %q", pattern)
		}
	}
	return nil
}

func validateEmbedding(cfg *Config) error {
	if cfg.Embedding.Dimensions < 8 {
		return fmt.Errorf("embedding.dimensions must be >= 8, got %d", cfg.Embedding.Dimensions)
	}
	return nil
}

func validateChanges(cfg *Config) error {
	if cfg.Changes.LowImpactThreshold <= 0 || cfg.Changes.LowImpactThreshold >= 1 {
		return fmt.Errorf("changes.low_impact_threshold must be within (0,1), got %v", cfg.Changes.LowImpactThreshold)
	}
	return nil
}

func validateObservability(cfg *Config) error {
	if cfg.Observability.EnableTracing && strings.TrimSpace(cfg.Observability.OTLPEndpoint) == "" {
		return fmt.Errorf("observability.otlp_endpoint is required when enable_tracing is set")
	}
	return nil
}
