package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// ApplyEnvOverrides applies environment variable overrides to the configuration.
// Pattern: CODEINTEL_[SECTION]_[KEY] (e.g., CODEINTEL_WATCH_DEBOUNCE).
func ApplyEnvOverrides(cfg *Config) {
	// Paths
	setEnvString(&cfg.Paths.ProjectRoot, "CODEINTEL_PATHS_PROJECT_ROOT")
	setEnvString(&cfg.Paths.StateDir, "CODEINTEL_PATHS_STATE_DIR")

	// Database
	setEnvBool(&cfg.DB.Enabled, "CODEINTEL_DB_ENABLED")
	setEnvString(&cfg.DB.Path, "CODEINTEL_DB_PATH")
	setEnvDuration(&cfg.DB.BusyTimeout, "CODEINTEL_DB_BUSY_TIMEOUT")
	setEnvInt(&cfg.DB.RetainSnapshots, "CODEINTEL_DB_RETAIN_SNAPSHOTS")

	// Watch
	setEnvDuration(&cfg.Watch.Debounce, "CODEINTEL_WATCH_DEBOUNCE")

	// Analysis
	setEnvInt(&cfg.Analysis.Workers, "CODEINTEL_ANALYSIS_WORKERS")
	setEnvInt(&cfg.Analysis.MaxCycles, "CODEINTEL_ANALYSIS_MAX_CYCLES")

	// Changes
	setEnvFloat64(&cfg.Changes.LowImpactThreshold, "CODEINTEL_CHANGES_LOW_IMPACT_THRESHOLD")
	setEnvInt(&cfg.Changes.HubFanIn, "CODEINTEL_CHANGES_HUB_FAN_IN")
	setEnvInt(&cfg.Changes.HubFanOut, "CODEINTEL_CHANGES_HUB_FAN_OUT")

	// Embedding
	setEnvInt(&cfg.Embedding.Dimensions, "CODEINTEL_EMBEDDING_DIMENSIONS")

	// Observability
	setEnvBool(&cfg.Observability.Enabled, "CODEINTEL_OBSERVABILITY_ENABLED")
	setEnvString(&cfg.Observability.Address, "CODEINTEL_OBSERVABILITY_ADDRESS")
	setEnvString(&cfg.Observability.OTLPEndpoint, "CODEINTEL_OBSERVABILITY_OTLP_ENDPOINT")
	setEnvBool(&cfg.Observability.EnableTracing, "CODEINTEL_OBSERVABILITY_ENABLE_TRACING")
}

func setEnvString(target *string, key string) {
	if val, ok := os.LookupEnv(key); ok {
		slog.Debug("applying env override", "key", key, "value", val)
		*target = val
	}
}

func setEnvInt(target *int, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = i
		}
	}
}

func setEnvBool(target *bool, key string) {
	if val, ok := os.LookupEnv(key); ok {
		b, err := strconv.ParseBool(strings.ToLower(val))
		if err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = b
		}
	}
}

func setEnvFloat64(target *float64, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = f
		}
	}
}

func setEnvDuration(target *time.Duration, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = d
		}
	}
}
