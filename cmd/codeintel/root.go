package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"codeintel/internal/core/app"

	"github.com/spf13/cobra"
)

const versionString = "0.3.0"

type rootOptions struct {
	configPath string
	factsPath  string
	format     string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "codeintel",
		Short: "Codebase intelligence over extracted source facts",
		Long: `codeintel builds a dependency graph, complexity metrics, design patterns,
semantic concepts and a similarity index from extractor facts, and keeps them
current as files change.`,
		Version:       versionString,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			configureLogging(cmd.ErrOrStderr(), opts.verbose)
			switch outputFormat(opts.format) {
			case formatJSON, formatText:
				return nil
			}
			return fmt.Errorf("unsupported format %q (want json or text)", opts.format)
		},
	}
	root.SetVersionTemplate("codeintel v{{.Version}}\n")

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "Path to config file (default: ./codeintel.toml or ./data/config/codeintel.toml)")
	flags.StringVar(&opts.factsPath, "facts", "", "Facts batch (JSON or YAML) to ingest before running the command")
	flags.StringVar(&opts.format, "format", string(formatText), "Output format (json, text)")
	flags.BoolVar(&opts.verbose, "verbose", false, "Enable verbose logging")

	root.AddCommand(
		newAnalyzeCmd(opts),
		newWatchCmd(opts),
		newSearchCmd(opts),
		newComplexityCmd(opts),
		newBlueprintCmd(opts),
		newPatternsCmd(opts),
		newImpactCmd(opts),
		newHotspotsCmd(opts),
		newLastChangeCmd(opts),
	)
	return root
}

// withRuntime opens the engine for the duration of fn.
func withRuntime(cmd *cobra.Command, opts *rootOptions, fn func(context.Context, *runtime) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	rt, err := openRuntime(ctx, opts)
	if err != nil {
		return err
	}
	defer rt.close(context.Background())
	return fn(ctx, rt)
}

func newAnalyzeCmd(opts *rootOptions) *cobra.Command {
	var top int
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Ingest a facts batch and print a summary",
		Example: `  codeintel analyze --facts facts.json
  codeintel analyze --facts facts.yaml --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(opts.factsPath) == "" {
				return fmt.Errorf("analyze requires --facts")
			}
			started := time.Now()
			factsPath := opts.factsPath
			local := *opts
			local.factsPath = ""
			return withRuntime(cmd, &local, func(ctx context.Context, rt *runtime) error {
				report, err := rt.ingest(ctx, factsPath)
				if err != nil {
					return err
				}
				summary, err := buildSummary(ctx, rt.engine, report, top)
				if err != nil {
					return err
				}
				summary.Duration = time.Since(started).Round(time.Millisecond).String()
				return render(cmd.OutOrStdout(), opts.format, summary)
			})
		},
	}
	cmd.Flags().IntVar(&top, "top", 5, "Number of complexity hotspots to list")
	return cmd
}

func newWatchCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch [root]",
		Short: "Watch a directory and keep the analysis current",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			cmd.SetContext(ctx)

			return withRuntime(cmd, opts, func(ctx context.Context, rt *runtime) error {
				root := rt.paths.ProjectRoot
				if len(args) == 1 {
					root = args[0]
				}
				if rt.cfg.Observability.Enabled {
					server := NewObservabilityServer(rt.cfg.Observability.Address, app.NewHealthService(rt.engine))
					if err := server.Start(ctx); err != nil {
						return err
					}
					defer func() {
						shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
						defer cancel()
						_ = server.Stop(shutdownCtx)
					}()
				}
				return rt.engine.Watch(ctx, root)
			})
		},
	}
}

func newSearchCmd(opts *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search concepts, patterns and symbols by similarity",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, opts, func(ctx context.Context, rt *runtime) error {
				res, err := rt.engine.SearchConcepts(ctx, strings.Join(args, " "), limit)
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), opts.format, res)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "Maximum results")
	return cmd
}

func newComplexityCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "complexity <path|symbol>",
		Short: "Show complexity metrics for a file or symbol",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, opts, func(ctx context.Context, rt *runtime) error {
				res, err := rt.engine.GetComplexity(ctx, args[0])
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), opts.format, res)
			})
		},
	}
}

func newBlueprintCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "blueprint",
		Short: "Print the project blueprint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, opts, func(ctx context.Context, rt *runtime) error {
				res, err := rt.engine.GetBlueprint(ctx)
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), opts.format, res)
			})
		},
	}
}

func newPatternsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "patterns [path]",
		Short: "List detected design patterns",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			return withRuntime(cmd, opts, func(ctx context.Context, rt *runtime) error {
				res, err := rt.engine.GetPatterns(ctx, path)
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), opts.format, res)
			})
		},
	}
}

func newImpactCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "impact <path>",
		Short: "Show which files are affected by a change to path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, opts, func(ctx context.Context, rt *runtime) error {
				res, err := rt.engine.AnalyzeImpact(ctx, args[0])
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), opts.format, res)
			})
		},
	}
}

func newHotspotsCmd(opts *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "hotspots",
		Short: "List the least maintainable units",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, opts, func(ctx context.Context, rt *runtime) error {
				res, err := rt.engine.Hotspots(ctx, limit)
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), opts.format, res)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "Maximum results")
	return cmd
}

func newLastChangeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "last-change <path>",
		Short: "Show the most recent change analysis of a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, opts, func(ctx context.Context, rt *runtime) error {
				res, err := rt.engine.GetLastChangeAnalysis(ctx, args[0])
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), opts.format, res)
			})
		},
	}
}
