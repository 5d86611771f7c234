package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"codeintel/internal/core/app"
	"codeintel/internal/core/config"
	"codeintel/internal/data/store"
	"codeintel/internal/engine/facts"
	"codeintel/internal/shared/observability"
	"codeintel/internal/shared/util"
)

// runtime is everything a command needs once config is loaded: the engine,
// the resolved paths and the shutdown hooks.
type runtime struct {
	cfg    *config.Config
	paths  config.ResolvedPaths
	engine *app.Engine

	shutdownTracing func(context.Context) error
}

func configureLogging(w io.Writer, verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}

// loadConfig reads path when it is set. Otherwise the default locations are
// tried in order and a defaulted config is used when none exists.
func loadConfig(path, cwd string) (*config.Config, string, error) {
	if strings.TrimSpace(path) != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, "", err
		}
		return cfg, path, nil
	}

	for _, candidate := range defaultConfigCandidates(cwd) {
		cfg, err := config.Load(candidate)
		if err == nil {
			return cfg, candidate, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, "", fmt.Errorf("load %s: %w", candidate, err)
		}
	}

	cfg := config.Default()
	config.ApplyEnvOverrides(cfg)
	if err := config.Validate(cfg); err != nil {
		return nil, "", err
	}
	return cfg, "", nil
}

func defaultConfigCandidates(cwd string) []string {
	return []string{
		filepath.Join(cwd, "codeintel.toml"),
		filepath.Join(cwd, "data", "config", "codeintel.toml"),
	}
}

func openRuntime(ctx context.Context, opts *rootOptions) (*runtime, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("detect working directory: %w", err)
	}
	cfg, cfgPath, err := loadConfig(opts.configPath, cwd)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfgPath != "" {
		slog.Debug("config loaded", "path", cfgPath)
	}
	paths, err := config.ResolvePaths(cfg, cwd)
	if err != nil {
		return nil, fmt.Errorf("resolve paths: %w", err)
	}

	rt := &runtime{cfg: cfg, paths: paths}
	if cfg.Observability.EnableTracing {
		shutdown, err := observability.InitTracing(ctx, cfg.Observability.ServiceName, cfg.Observability.OTLPEndpoint)
		if err != nil {
			return nil, err
		}
		rt.shutdownTracing = shutdown
	}

	engineOpts := app.Options{}
	if len(cfg.Extraction.Command) > 0 {
		provider, err := facts.NewCommandProvider(cfg.Extraction.Command, cfg.Extraction.Timeout)
		if err != nil {
			rt.close(ctx)
			return nil, err
		}
		engineOpts.Provider = provider
	}
	if cfg.DB.Enabled {
		st, err := openStore(cfg, paths)
		if err != nil {
			rt.close(ctx)
			return nil, err
		}
		engineOpts.Store = st
	}

	rt.engine, err = app.New(cfg, engineOpts)
	if err != nil {
		if engineOpts.Store != nil {
			_ = engineOpts.Store.Close()
		}
		rt.close(ctx)
		return nil, err
	}

	restored, err := rt.engine.Restore(ctx)
	if err != nil {
		slog.Warn("could not restore persisted snapshot", "error", err)
	} else if restored {
		slog.Info("restored snapshot", "version", rt.engine.Snapshot().Version)
	}

	if opts.factsPath != "" {
		if _, err := rt.ingest(ctx, opts.factsPath); err != nil {
			rt.close(ctx)
			return nil, err
		}
	}
	return rt, nil
}

func openStore(cfg *config.Config, paths config.ResolvedPaths) (*store.Store, error) {
	if err := util.EnsureDir(filepath.Dir(paths.DBPath)); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	return store.Open(paths.DBPath, store.Options{
		BusyTimeout: cfg.DB.BusyTimeout,
		Retain:      cfg.DB.RetainSnapshots,
		Compress:    cfg.DB.CompressionEnabled(),
	})
}

func (rt *runtime) ingest(ctx context.Context, path string) (app.IngestReport, error) {
	batch, err := facts.LoadBatch(path)
	if err != nil {
		return app.IngestReport{}, fmt.Errorf("load facts %s: %w", path, err)
	}
	report, err := rt.engine.Ingest(ctx, batch)
	if err != nil {
		return report, err
	}
	slog.Info("facts ingested", "path", path, "accepted", report.Accepted, "skipped", len(report.Skipped), "version", report.Version)
	return report, nil
}

func (rt *runtime) close(ctx context.Context) {
	if rt.engine != nil {
		if err := rt.engine.Close(ctx); err != nil {
			slog.Error("engine shutdown failed", "error", err)
		}
	}
	if rt.shutdownTracing != nil {
		if err := rt.shutdownTracing(ctx); err != nil {
			slog.Warn("tracing shutdown failed", "error", err)
		}
	}
}
