package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "codeintel.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
watch_paths = ["./src"]

[exclude]
dirs = [".git"]
files = ["*.log"]

[watch]
debounce = "250ms"

[analysis]
workers = 3
max_cycles = 50

[changes]
low_impact_threshold = 0.25
hub_fan_in = 4

[embedding]
dimensions = 64
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(cfg.WatchPaths) != 1 || cfg.WatchPaths[0] != "./src" {
		t.Errorf("Expected watch_paths [./src], got %v", cfg.WatchPaths)
	}
	if cfg.Watch.Debounce != 250*time.Millisecond {
		t.Errorf("Expected debounce 250ms, got %v", cfg.Watch.Debounce)
	}
	if cfg.Analysis.Workers != 3 || cfg.Analysis.MaxCycles != 50 {
		t.Errorf("Unexpected analysis section: %+v", cfg.Analysis)
	}
	if cfg.Changes.LowImpactThreshold != 0.25 || cfg.Changes.HubFanIn != 4 {
		t.Errorf("Unexpected changes section: %+v", cfg.Changes)
	}
	if cfg.Changes.HubFanOut != 15 {
		t.Errorf("Expected default hub_fan_out 15, got %d", cfg.Changes.HubFanOut)
	}
	if cfg.Embedding.Dimensions != 64 {
		t.Errorf("Expected dimensions 64, got %d", cfg.Embedding.Dimensions)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Watch.Debounce != DefaultDebounce {
		t.Errorf("Expected default debounce %v, got %v", DefaultDebounce, cfg.Watch.Debounce)
	}
	if cfg.Embedding.Dimensions != 256 {
		t.Errorf("Expected 256 dimensions, got %d", cfg.Embedding.Dimensions)
	}
	if cfg.Patterns.MinConfidence != 0.3 {
		t.Errorf("Expected min confidence 0.3, got %v", cfg.Patterns.MinConfidence)
	}
	if !cfg.WriteQueue.QueueEnabled() || !cfg.DB.CompressionEnabled() {
		t.Error("Expected write queue and compression enabled by default")
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("Default config should validate: %v", err)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "future version",
			content: "version = 2\n",
			wantErr: "unsupported config version",
		},
		{
			name:    "non-decreasing thresholds",
			content: "[complexity]\nlow_threshold = 50\nmoderate_threshold = 60\nhigh_threshold = 40\n",
			wantErr: "strictly decreasing",
		},
		{
			name:    "confidence out of range",
			content: "[patterns]\nmin_confidence = 1.5\n",
			wantErr: "patterns.min_confidence",
		},
		{
			name:    "bad entry glob",
			content: "[semantic]\nentry_point_globs = [\"[\"]\n",
			wantErr: "entry_point_globs",
		},
		{
			name:    "tracing without endpoint",
			content: "[observability]\nenable_tracing = true\n",
			wantErr: "otlp_endpoint",
		},
		{
			name:    "tiny embedding",
			content: "[embedding]\ndimensions = 4\n",
			wantErr: "embedding.dimensions",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("CODEINTEL_WATCH_DEBOUNCE", "2s")
	t.Setenv("CODEINTEL_ANALYSIS_WORKERS", "7")
	t.Setenv("CODEINTEL_CHANGES_LOW_IMPACT_THRESHOLD", "0.4")
	t.Setenv("CODEINTEL_DB_ENABLED", "TRUE")
	t.Setenv("CODEINTEL_EMBEDDING_DIMENSIONS", "not-a-number")

	cfg := Default()
	ApplyEnvOverrides(cfg)

	if cfg.Watch.Debounce != 2*time.Second {
		t.Errorf("Expected debounce 2s, got %v", cfg.Watch.Debounce)
	}
	if cfg.Analysis.Workers != 7 {
		t.Errorf("Expected 7 workers, got %d", cfg.Analysis.Workers)
	}
	if cfg.Changes.LowImpactThreshold != 0.4 {
		t.Errorf("Expected threshold 0.4, got %v", cfg.Changes.LowImpactThreshold)
	}
	if !cfg.DB.Enabled {
		t.Error("Expected db enabled")
	}
	if cfg.Embedding.Dimensions != 256 {
		t.Errorf("Expected invalid override to be ignored, got %d", cfg.Embedding.Dimensions)
	}
}

func TestResolvePaths(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "codeintel.toml"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	sub := filepath.Join(root, "pkg", "inner")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}

	cfg := Default()
	cfg.WatchPaths = []string{sub}
	paths, err := ResolvePaths(cfg, root)
	if err != nil {
		t.Fatalf("ResolvePaths failed: %v", err)
	}
	if paths.ProjectRoot != filepath.Clean(root) {
		t.Errorf("Expected project root %s, got %s", root, paths.ProjectRoot)
	}
	wantDB := filepath.Join(root, ".codeintel", "snapshots.db")
	if paths.DBPath != wantDB {
		t.Errorf("Expected db path %s, got %s", wantDB, paths.DBPath)
	}

	if _, err := ResolvePaths(cfg, " "); err == nil {
		t.Error("Expected error for empty cwd")
	}
}

func TestResolveRelative(t *testing.T) {
	if got := ResolveRelative("/base", "sub/dir"); got != filepath.Clean("/base/sub/dir") {
		t.Errorf("unexpected relative resolution %s", got)
	}
	if got := ResolveRelative("/base", "/abs"); got != "/abs" {
		t.Errorf("expected absolute path preserved, got %s", got)
	}
	if got := ResolveRelative("/base", ""); got != "/base" {
		t.Errorf("expected base for empty value, got %s", got)
	}
}
