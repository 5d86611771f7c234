package config

import (
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const DefaultDebounce = 100 * time.Millisecond

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	ApplyEnvOverrides(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with every default applied, as if an empty
// file had been loaded.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

func Validate(cfg *Config) error {
	if err := validateVersion(cfg); err != nil {
		return err
	}
	if err := validateDatabase(cfg); err != nil {
		return err
	}
	if err := validateWatch(cfg); err != nil {
		return err
	}
	if err := validateExclude(cfg); err != nil {
		return err
	}
	if err := validateAnalysis(cfg); err != nil {
		return err
	}
	if err := validateComplexity(cfg); err != nil {
		return err
	}
	if err := validatePatterns(cfg); err != nil {
		return err
	}
	if err := validateSemantic(cfg); err != nil {
		return err
	}
	if err := validateEmbedding(cfg); err != nil {
		return err
	}
	if err := validateChanges(cfg); err != nil {
		return err
	}
	return validateObservability(cfg)
}

func applyDefaults(cfg *Config) {
	if cfg.Version == 0 {
		cfg.Version = 1
	}

	if strings.TrimSpace(cfg.Paths.StateDir) == "" {
		cfg.Paths.StateDir = ".codeintel"
	}

	if strings.TrimSpace(cfg.DB.Driver) == "" {
		cfg.DB.Driver = "sqlite"
	}
	if strings.TrimSpace(cfg.DB.Path) == "" {
		cfg.DB.Path = "snapshots.db"
	}
	if cfg.DB.BusyTimeout <= 0 {
		cfg.DB.BusyTimeout = 5 * time.Second
	}
	if cfg.DB.RetainSnapshots <= 0 {
		cfg.DB.RetainSnapshots = 5
	}

	if len(cfg.WatchPaths) == 0 {
		cfg.WatchPaths = []string{"."}
	}
	if len(cfg.Exclude.Dirs) == 0 {
		cfg.Exclude.Dirs = []string{".git", "node_modules", "vendor", ".codeintel"}
	}

	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = DefaultDebounce
	}

	if cfg.Extraction.Timeout <= 0 {
		cfg.Extraction.Timeout = 30 * time.Second
	}

	if cfg.Analysis.Workers <= 0 {
		cfg.Analysis.Workers = runtime.GOMAXPROCS(0)
	}
	if cfg.Analysis.MaxCycles <= 0 {
		cfg.Analysis.MaxCycles = 1000
	}
	if cfg.Analysis.ProjectRescansPerMinute <= 0 {
		cfg.Analysis.ProjectRescansPerMinute = 6
	}

	// Maintainability index buckets on the 0-100 scale.
	if cfg.Complexity.LowThreshold == 0 {
		cfg.Complexity.LowThreshold = 85
	}
	if cfg.Complexity.ModerateThreshold == 0 {
		cfg.Complexity.ModerateThreshold = 65
	}
	if cfg.Complexity.HighThreshold == 0 {
		cfg.Complexity.HighThreshold = 40
	}
	if cfg.Complexity.NestingWeight <= 0 {
		cfg.Complexity.NestingWeight = 1
	}

	if cfg.Patterns.MinConfidence == 0 {
		cfg.Patterns.MinConfidence = 0.3
	}

	if len(cfg.Semantic.EntryPointGlobs) == 0 {
		cfg.Semantic.EntryPointGlobs = []string{
			"**/cmd/*/main.go",
			"main.go",
			"**/__main__.py",
			"**/main.py",
			"**/index.{js,ts}",
			"**/server.{js,ts}",
			"**/src/main.rs",
		}
	}
	if cfg.Semantic.KeyDirectoryLimit <= 0 {
		cfg.Semantic.KeyDirectoryLimit = 10
	}
	if cfg.Semantic.DomainMinFiles <= 0 {
		cfg.Semantic.DomainMinFiles = 2
	}

	if cfg.Embedding.Dimensions <= 0 {
		cfg.Embedding.Dimensions = 256
	}
	if cfg.Embedding.CacheSize <= 0 {
		cfg.Embedding.CacheSize = 1024
	}

	if cfg.Changes.LowImpactThreshold == 0 {
		cfg.Changes.LowImpactThreshold = 0.3
	}
	if cfg.Changes.HubFanIn <= 0 {
		cfg.Changes.HubFanIn = 10
	}
	if cfg.Changes.HubFanOut <= 0 {
		cfg.Changes.HubFanOut = 15
	}

	if strings.TrimSpace(cfg.Observability.Address) == "" {
		cfg.Observability.Address = "127.0.0.1:9464"
	}
	if strings.TrimSpace(cfg.Observability.ServiceName) == "" {
		cfg.Observability.ServiceName = "codeintel"
	}

	if cfg.WriteQueue.MemoryCapacity <= 0 {
		cfg.WriteQueue.MemoryCapacity = 64
	}
	if cfg.WriteQueue.BatchSize <= 0 {
		cfg.WriteQueue.BatchSize = 8
	}
	if cfg.WriteQueue.FlushInterval <= 0 {
		cfg.WriteQueue.FlushInterval = 100 * time.Millisecond
	}
	if cfg.WriteQueue.ShutdownDrainTimeout <= 0 {
		cfg.WriteQueue.ShutdownDrainTimeout = 10 * time.Second
	}
}
