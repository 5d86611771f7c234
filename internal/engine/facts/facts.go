// Package facts defines the flat per-file records produced by the external
// extraction layer. The engine treats these as the sole source of AST-derived
// information; it never parses source text itself.
package facts

import (
	"encoding/hex"
	"path"
	"path/filepath"
	"strings"

	"github.com/cespare/xxhash/v2"
)

type SymbolKind string

const (
	KindFunction  SymbolKind = "function"
	KindMethod    SymbolKind = "method"
	KindClass     SymbolKind = "class"
	KindStruct    SymbolKind = "struct"
	KindInterface SymbolKind = "interface"
	KindEnum      SymbolKind = "enum"
	KindType      SymbolKind = "type"
	KindVariable  SymbolKind = "variable"
	KindConstant  SymbolKind = "constant"
	KindField     SymbolKind = "field"
)

var knownSymbolKinds = map[SymbolKind]bool{
	KindFunction: true, KindMethod: true, KindClass: true, KindStruct: true,
	KindInterface: true, KindEnum: true, KindType: true, KindVariable: true,
	KindConstant: true, KindField: true,
}

// IsCallable reports whether symbols of this kind carry a unit shape.
func (k SymbolKind) IsCallable() bool {
	return k == KindFunction || k == KindMethod
}

// IsTypeLike reports whether the kind declares a type that can own members.
func (k SymbolKind) IsTypeLike() bool {
	switch k {
	case KindClass, KindStruct, KindInterface, KindEnum, KindType:
		return true
	}
	return false
}

type DecisionKind string

const (
	DecisionIf         DecisionKind = "if"
	DecisionElseIf     DecisionKind = "else_if"
	DecisionWhile      DecisionKind = "while"
	DecisionFor        DecisionKind = "for"
	DecisionCase       DecisionKind = "case"
	DecisionCatch      DecisionKind = "catch"
	DecisionLogicalAnd DecisionKind = "logical_and"
	DecisionLogicalOr  DecisionKind = "logical_or"
	DecisionTernary    DecisionKind = "ternary"
	DecisionSwitch     DecisionKind = "switch"
)

var knownDecisionKinds = map[DecisionKind]bool{
	DecisionIf: true, DecisionElseIf: true, DecisionWhile: true, DecisionFor: true,
	DecisionCase: true, DecisionCatch: true, DecisionLogicalAnd: true,
	DecisionLogicalOr: true, DecisionTernary: true, DecisionSwitch: true,
}

// DecisionPoint is one branch point inside a unit. Depth is the nesting level
// at which it occurs, 0 being the unit body.
type DecisionPoint struct {
	Kind  DecisionKind `json:"kind" yaml:"kind"`
	Depth int          `json:"depth" yaml:"depth"`
}

type LineCounts struct {
	Physical int `json:"physical" yaml:"physical"`
	Logical  int `json:"logical" yaml:"logical"`
	Comment  int `json:"comment" yaml:"comment"`
	Blank    int `json:"blank,omitempty" yaml:"blank,omitempty"`
}

// UnitShape summarizes the AST of a single callable unit.
type UnitShape struct {
	Decisions  []DecisionPoint `json:"decisions,omitempty" yaml:"decisions,omitempty"`
	MaxNesting int             `json:"max_nesting,omitempty" yaml:"max_nesting,omitempty"`
	Operators  map[string]int  `json:"operators,omitempty" yaml:"operators,omitempty"`
	Operands   map[string]int  `json:"operands,omitempty" yaml:"operands,omitempty"`
	Lines      LineCounts      `json:"lines" yaml:"lines"`
}

type Parameter struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type,omitempty" yaml:"type,omitempty"`
}

type Symbol struct {
	Name       string      `json:"name" yaml:"name"`
	Kind       SymbolKind  `json:"kind" yaml:"kind"`
	Parent     string      `json:"parent,omitempty" yaml:"parent,omitempty"`
	Exported   bool        `json:"exported,omitempty" yaml:"exported,omitempty"`
	Modifiers  []string    `json:"modifiers,omitempty" yaml:"modifiers,omitempty"`
	Type       string      `json:"type,omitempty" yaml:"type,omitempty"`
	Returns    []string    `json:"returns,omitempty" yaml:"returns,omitempty"`
	Parameters []Parameter `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	Bases      []string    `json:"bases,omitempty" yaml:"bases,omitempty"`
	Calls      []string    `json:"calls,omitempty" yaml:"calls,omitempty"`
	Line       int         `json:"line,omitempty" yaml:"line,omitempty"`
	EndLine    int         `json:"end_line,omitempty" yaml:"end_line,omitempty"`
	Shape      *UnitShape  `json:"shape,omitempty" yaml:"shape,omitempty"`
}

// QualifiedName is Parent.Name for members and Name otherwise.
func (s Symbol) QualifiedName() string {
	if s.Parent == "" {
		return s.Name
	}
	return s.Parent + "." + s.Name
}

func (s Symbol) HasModifier(mod string) bool {
	for _, m := range s.Modifiers {
		if strings.EqualFold(m, mod) {
			return true
		}
	}
	return false
}

// Import is one import statement. Target is a file path or module name as
// written by the extractor; Names lists imported symbols when the language
// imports them individually.
type Import struct {
	Target string   `json:"target" yaml:"target"`
	Names  []string `json:"names,omitempty" yaml:"names,omitempty"`
	Alias  string   `json:"alias,omitempty" yaml:"alias,omitempty"`
	Line   int      `json:"line,omitempty" yaml:"line,omitempty"`
}

// PatternHint is an extractor-side suggestion that a symbol implements a
// pattern kind. Hints add evidence but never produce a pattern on their own.
type PatternHint struct {
	Kind        string `json:"kind" yaml:"kind"`
	Symbol      string `json:"symbol,omitempty" yaml:"symbol,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

type FileFacts struct {
	Path         string        `json:"path" yaml:"path"`
	Language     string        `json:"language" yaml:"language"`
	Module       string        `json:"module,omitempty" yaml:"module,omitempty"`
	Hash         string        `json:"hash,omitempty" yaml:"hash,omitempty"`
	Lines        LineCounts    `json:"lines" yaml:"lines"`
	Symbols      []Symbol      `json:"symbols,omitempty" yaml:"symbols,omitempty"`
	Imports      []Import      `json:"imports,omitempty" yaml:"imports,omitempty"`
	PatternHints []PatternHint `json:"pattern_hints,omitempty" yaml:"pattern_hints,omitempty"`
}

// Dir returns the slash-separated directory of the file, "." for root files.
func (f FileFacts) Dir() string {
	return path.Dir(f.Path)
}

// SymbolID is the stable graph id of a symbol declared in file.
func SymbolID(file string, sym Symbol) string {
	return file + "#" + sym.QualifiedName()
}

// SplitSymbolID separates a symbol id into its file path and qualified name.
// ok is false for ids that do not name a symbol.
func SplitSymbolID(id string) (file, name string, ok bool) {
	idx := strings.LastIndex(id, "#")
	if idx <= 0 || idx == len(id)-1 {
		return id, "", false
	}
	return id[:idx], id[idx+1:], true
}

// NormalizePath cleans p and converts it to the slash form used as node ids.
func NormalizePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	clean := filepath.ToSlash(filepath.Clean(p))
	return strings.TrimPrefix(clean, "./")
}

// HashContent returns the hex xxhash64 digest used to detect no-op writes.
func HashContent(content []byte) string {
	var buf [8]byte
	sum := xxhash.Sum64(content)
	for i := 7; i >= 0; i-- {
		buf[i] = byte(sum)
		sum >>= 8
	}
	return hex.EncodeToString(buf[:])
}

// Normalize fills derived fields in place: slash paths, default module and
// unit line totals.
func (f *FileFacts) Normalize() {
	f.Path = NormalizePath(f.Path)
	f.Language = strings.ToLower(strings.TrimSpace(f.Language))
	if strings.TrimSpace(f.Module) == "" {
		f.Module = f.Dir()
	}
	for i := range f.Imports {
		target := strings.TrimSpace(f.Imports[i].Target)
		if strings.HasPrefix(target, "./") || strings.HasPrefix(target, "../") {
			target = NormalizePath(path.Join(f.Dir(), target))
		}
		f.Imports[i].Target = target
	}
	for i := range f.Symbols {
		s := &f.Symbols[i]
		s.Name = strings.TrimSpace(s.Name)
		if s.Shape != nil && s.Shape.Lines.Physical == 0 && s.EndLine >= s.Line && s.Line > 0 {
			s.Shape.Lines.Physical = s.EndLine - s.Line + 1
		}
	}
}
