package facts

import (
	"strings"

	codeerrors "codeintel/internal/core/errors"
)

// Validate rejects facts that are missing required fields. The returned
// error carries CodeMalformedFacts and the offending path.
func Validate(f FileFacts) error {
	if strings.TrimSpace(f.Path) == "" {
		return codeerrors.New(codeerrors.CodeMalformedFacts, "file facts missing path")
	}
	if strings.TrimSpace(f.Language) == "" {
		return malformed(f.Path, "file facts missing language")
	}
	if err := validateLines(f.Path, "file", f.Lines); err != nil {
		return err
	}
	for i, imp := range f.Imports {
		if strings.TrimSpace(imp.Target) == "" {
			return malformedf(f.Path, "import %d has empty target", i)
		}
	}
	for i, sym := range f.Symbols {
		if strings.TrimSpace(sym.Name) == "" {
			return malformedf(f.Path, "symbol %d has empty name", i)
		}
		if strings.ContainsAny(sym.Name, "#") || strings.ContainsAny(sym.Parent, "#") {
			return malformedf(f.Path, "symbol %q contains reserved character '#'", sym.Name)
		}
		if !knownSymbolKinds[sym.Kind] {
			return malformedf(f.Path, "symbol %q has unknown kind %q", sym.Name, sym.Kind)
		}
		if sym.Shape != nil {
			if err := validateShape(f.Path, sym); err != nil {
				return err
			}
		}
	}
	for i, hint := range f.PatternHints {
		if strings.TrimSpace(hint.Kind) == "" {
			return malformedf(f.Path, "pattern hint %d has empty kind", i)
		}
	}
	return nil
}

func validateShape(path string, sym Symbol) error {
	shape := sym.Shape
	if shape.MaxNesting < 0 {
		return malformedf(path, "symbol %q has negative max nesting", sym.Name)
	}
	for _, d := range shape.Decisions {
		if !knownDecisionKinds[d.Kind] {
			return malformedf(path, "symbol %q has unknown decision kind %q", sym.Name, d.Kind)
		}
		if d.Depth < 0 {
			return malformedf(path, "symbol %q has negative decision depth", sym.Name)
		}
	}
	for op, n := range shape.Operators {
		if n < 0 {
			return malformedf(path, "symbol %q has negative count for operator %q", sym.Name, op)
		}
	}
	for op, n := range shape.Operands {
		if n < 0 {
			return malformedf(path, "symbol %q has negative count for operand %q", sym.Name, op)
		}
	}
	return validateLines(path, sym.Name, shape.Lines)
}

func validateLines(path, owner string, lc LineCounts) error {
	if lc.Physical < 0 || lc.Logical < 0 || lc.Comment < 0 || lc.Blank < 0 {
		return malformedf(path, "%s has negative line counts", owner)
	}
	return nil
}

func malformed(path, msg string) error {
	return codeerrors.AddContext(codeerrors.New(codeerrors.CodeMalformedFacts, msg), codeerrors.CtxPath, path)
}

func malformedf(path, format string, args ...interface{}) error {
	return codeerrors.AddContext(codeerrors.Newf(codeerrors.CodeMalformedFacts, format, args...), codeerrors.CtxPath, path)
}
