package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"codeintel/internal/core/app"
	"codeintel/internal/engine/changes"
	"codeintel/internal/engine/complexity"
	"codeintel/internal/engine/embedding"
	"codeintel/internal/engine/graph"
	"codeintel/internal/engine/patterns"
	"codeintel/internal/engine/semantic"
)

type outputFormat string

const (
	formatJSON outputFormat = "json"
	formatText outputFormat = "text"
)

// analysisSummary is what `analyze` prints after an ingest.
type analysisSummary struct {
	Version        uint64               `json:"version"`
	Files          int                  `json:"files"`
	Accepted       int                  `json:"accepted"`
	Skipped        []app.SkippedUnit    `json:"skipped,omitempty"`
	Nodes          int                  `json:"nodes"`
	Edges          int                  `json:"edges"`
	Cycles         []graph.Cycle        `json:"cycles,omitempty"`
	CyclicityRatio float64              `json:"cyclicity_ratio"`
	MaxDepth       int                  `json:"max_depth"`
	Patterns       int                  `json:"patterns"`
	Concepts       int                  `json:"concepts"`
	IndexEntries   int                  `json:"index_entries"`
	Hotspots       []complexity.Hotspot `json:"hotspots,omitempty"`
	Duration       string               `json:"duration,omitempty"`
}

func buildSummary(ctx context.Context, engine *app.Engine, report app.IngestReport, top int) (analysisSummary, error) {
	hotspots, err := engine.Hotspots(ctx, top)
	if err != nil {
		return analysisSummary{}, err
	}
	snap := engine.Snapshot()
	return analysisSummary{
		Version:        snap.Version,
		Files:          len(snap.Files),
		Accepted:       report.Accepted,
		Skipped:        report.Skipped,
		Nodes:          snap.Metrics.NodeCount,
		Edges:          snap.Metrics.EdgeCount,
		Cycles:         snap.Cycles.Cycles,
		CyclicityRatio: snap.Metrics.CyclicityRatio,
		MaxDepth:       snap.Metrics.MaxDepth,
		Patterns:       len(snap.Patterns.All()),
		Concepts:       len(snap.Concepts.Concepts),
		IndexEntries:   snap.Index.Len(),
		Hotspots:       hotspots.Value,
	}, nil
}

func render(w io.Writer, format string, v any) error {
	var (
		out string
		err error
	)
	if outputFormat(format) == formatJSON {
		out, err = formatJSONValue(v)
	} else {
		out, err = formatTextValue(v)
	}
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, out)
	return err
}

func formatJSONValue(v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal output: %w", err)
	}
	return string(data), nil
}

func formatTextValue(v any) (string, error) {
	var b strings.Builder
	switch r := v.(type) {
	case analysisSummary:
		writeSummary(&b, r)
	case app.Result[[]embedding.SearchResult]:
		writeHeader(&b, "Search results", r.Version, r.Stale)
		for i, res := range r.Value {
			fmt.Fprintf(&b, "%2d. %.3f  %-8s %s\n", i+1, res.Similarity, res.Entry.Source.Kind, res.Entry.Text)
		}
	case app.Result[app.Complexity]:
		writeHeader(&b, "Complexity", r.Version, r.Stale)
		if r.Value.File != nil {
			fc := r.Value.File
			fmt.Fprintf(&b, "%s (%s): MI %.1f, max cyclomatic %d, max cognitive %d\n",
				fc.Path, fc.Level, fc.MaintainabilityIndex, fc.MaxCyclomatic, fc.MaxCognitive)
			writeUnits(&b, fc.Units)
		} else {
			writeUnits(&b, r.Value.Units)
		}
	case app.Result[semantic.Blueprint]:
		writeHeader(&b, "Blueprint", r.Version, r.Stale)
		writeConcepts(&b, "Entry points", r.Value.EntryPoints)
		writeConcepts(&b, "Key directories", r.Value.KeyDirectories)
		fmt.Fprintf(&b, "Concepts: %d, relationships: %d\n", len(r.Value.Concepts), len(r.Value.Relationships))
	case app.Result[[]patterns.DetectedPattern]:
		writeHeader(&b, "Patterns", r.Version, r.Stale)
		for _, p := range r.Value {
			fmt.Fprintf(&b, "- %-10s %s#%s (%.2f)\n", p.Kind, p.Path, p.Symbol, p.Confidence)
		}
	case app.Result[graph.ImpactReport]:
		writeHeader(&b, "Impact", r.Version, r.Stale)
		fmt.Fprintf(&b, "Target: %s (%s)\n", r.Value.TargetPath, r.Value.TargetModule)
		writeList(&b, "Direct importers", r.Value.DirectImporters)
		writeList(&b, "Transitive importers", r.Value.TransitiveImporters)
		writeList(&b, "Externally used symbols", r.Value.ExternallyUsedSymbols)
	case app.Result[[]complexity.Hotspot]:
		writeHeader(&b, "Hotspots", r.Version, r.Stale)
		writeHotspots(&b, r.Value)
	case app.Result[changes.ChangeAnalysis]:
		writeHeader(&b, "Last change", r.Version, r.Stale)
		a := r.Value
		fmt.Fprintf(&b, "%s %s at %s\n", a.Type, a.Path, a.AnalyzedAt.Format("2006-01-02 15:04:05"))
		fmt.Fprintf(&b, "Impact %.2f, scope %s, relearn %v\n", a.ImpactScore, a.Scope, a.RequiresRelearning)
		actions := make([]string, 0, len(a.Actions))
		for _, act := range a.Actions {
			actions = append(actions, string(act))
		}
		fmt.Fprintf(&b, "Actions: %s\n", strings.Join(actions, ", "))
		writeList(&b, "Affected", a.Affected)
	default:
		return formatJSONValue(v)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func writeHeader(b *strings.Builder, title string, version uint64, stale bool) {
	fmt.Fprintf(b, "%s (snapshot v%d", title, version)
	if stale {
		b.WriteString(", update pending")
	}
	b.WriteString(")\n")
	b.WriteString(strings.Repeat("=", len(title)) + "\n")
}

func writeSummary(b *strings.Builder, s analysisSummary) {
	b.WriteString("Analysis summary\n")
	b.WriteString("================\n")
	fmt.Fprintf(b, "Snapshot:  v%d\n", s.Version)
	fmt.Fprintf(b, "Files:     %d (%d accepted, %d skipped)\n", s.Files, s.Accepted, len(s.Skipped))
	fmt.Fprintf(b, "Graph:     %d nodes, %d edges, max depth %d\n", s.Nodes, s.Edges, s.MaxDepth)
	fmt.Fprintf(b, "Cycles:    %d (cyclicity %.2f)\n", len(s.Cycles), s.CyclicityRatio)
	fmt.Fprintf(b, "Patterns:  %d\n", s.Patterns)
	fmt.Fprintf(b, "Concepts:  %d (%d index entries)\n", s.Concepts, s.IndexEntries)
	if s.Duration != "" {
		fmt.Fprintf(b, "Duration:  %s\n", s.Duration)
	}
	for _, sk := range s.Skipped {
		fmt.Fprintf(b, "skipped %s: %s\n", sk.Path, sk.Reason)
	}
	for _, c := range s.Cycles {
		fmt.Fprintf(b, "cycle [%s]: %s\n", c.Severity, strings.Join(c.Nodes, " -> "))
	}
	if len(s.Hotspots) > 0 {
		b.WriteString("\nHotspots\n")
		writeHotspots(b, s.Hotspots)
	}
}

func writeUnits(b *strings.Builder, units []complexity.Result) {
	for _, u := range units {
		fmt.Fprintf(b, "  %-40s cyc %3d  cog %3d  nest %2d  MI %5.1f  %s\n",
			u.ID, u.Cyclomatic, u.Cognitive, u.MaxNesting, u.MaintainabilityIndex, u.Level)
	}
}

func writeHotspots(b *strings.Builder, list []complexity.Hotspot) {
	for i, h := range list {
		fmt.Fprintf(b, "%2d. %-40s MI %5.1f  cyc %3d  cog %3d  %s\n", i+1, h.ID, h.Index, h.Cyclomatic, h.Cognitive, h.Level)
	}
}

func writeConcepts(b *strings.Builder, title string, list []semantic.Concept) {
	fmt.Fprintf(b, "%s (%d)\n", title, len(list))
	for _, c := range list {
		fmt.Fprintf(b, "- %s: %s\n", c.Name, c.Description)
	}
}

func writeList(b *strings.Builder, title string, items []string) {
	fmt.Fprintf(b, "%s (%d)\n", title, len(items))
	for _, item := range items {
		fmt.Fprintf(b, "- %s\n", item)
	}
}
