package config

import "time"

type Config struct {
	Version       int           `toml:"version"`
	Paths         Paths         `toml:"paths"`
	DB            Database      `toml:"db"`
	WatchPaths    []string      `toml:"watch_paths"`
	Exclude       Exclude       `toml:"exclude"`
	Watch         Watch         `toml:"watch"`
	Extraction    Extraction    `toml:"extraction"`
	Analysis      Analysis      `toml:"analysis"`
	Complexity    Complexity    `toml:"complexity"`
	Patterns      Patterns      `toml:"patterns"`
	Semantic      Semantic      `toml:"semantic"`
	Embedding     Embedding     `toml:"embedding"`
	Changes       Changes       `toml:"changes"`
	Observability Observability `toml:"observability"`
	WriteQueue    WriteQueue    `toml:"write_queue"`
}

type Paths struct {
	ProjectRoot string `toml:"project_root"`
	StateDir    string `toml:"state_dir"`
}

type Database struct {
	Enabled         bool          `toml:"enabled"`
	Driver          string        `toml:"driver"`
	Path            string        `toml:"path"`
	BusyTimeout     time.Duration `toml:"busy_timeout"`
	RetainSnapshots int           `toml:"retain_snapshots"`
	Compress        *bool         `toml:"compress"`
}

func (d Database) CompressionEnabled() bool {
	if d.Compress == nil {
		return true
	}
	return *d.Compress
}

type Exclude struct {
	Dirs  []string `toml:"dirs"`
	Files []string `toml:"files"`
}

type Watch struct {
	Debounce time.Duration `toml:"debounce"`
}

// Extraction configures the external extractor invoked for changed files in
// watch mode. Command receives the file path as its final argument and the
// file content on stdin, and must print one FileFacts JSON document.
type Extraction struct {
	Command []string      `toml:"command"`
	Timeout time.Duration `toml:"timeout"`
}

type Analysis struct {
	Workers                 int `toml:"workers"`
	MaxCycles               int `toml:"max_cycles"`
	ProjectRescansPerMinute int `toml:"project_rescans_per_minute"`
}

// Complexity thresholds bucket the maintainability index into levels. An
// index at or above LowThreshold is low complexity; below HighThreshold is
// very high.
type Complexity struct {
	LowThreshold      float64 `toml:"low_threshold"`
	ModerateThreshold float64 `toml:"moderate_threshold"`
	HighThreshold     float64 `toml:"high_threshold"`
	NestingWeight     int     `toml:"nesting_weight"`
}

type Patterns struct {
	MinConfidence float64 `toml:"min_confidence"`
}

type Semantic struct {
	EntryPointGlobs   []string `toml:"entry_point_globs"`
	KeyDirectoryLimit int      `toml:"key_directory_limit"`
	DomainMinFiles    int      `toml:"domain_min_files"`
}

type Embedding struct {
	Dimensions int `toml:"dimensions"`
	CacheSize  int `toml:"cache_size"`
}

type Changes struct {
	LowImpactThreshold float64 `toml:"low_impact_threshold"`
	HubFanIn           int     `toml:"hub_fan_in"`
	HubFanOut          int     `toml:"hub_fan_out"`
}

type Observability struct {
	Enabled       bool   `toml:"enabled"`
	Address       string `toml:"address"`
	OTLPEndpoint  string `toml:"otlp_endpoint"`
	EnableTracing bool   `toml:"enable_tracing"`
	ServiceName   string `toml:"service_name"`
}

type WriteQueue struct {
	Enabled              *bool         `toml:"enabled"`
	MemoryCapacity       int           `toml:"memory_capacity"`
	BatchSize            int           `toml:"batch_size"`
	FlushInterval        time.Duration `toml:"flush_interval"`
	ShutdownDrainTimeout time.Duration `toml:"shutdown_drain_timeout"`
}

func (w WriteQueue) QueueEnabled() bool {
	if w.Enabled == nil {
		return true
	}
	return *w.Enabled
}
