package facts

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	codeerrors "codeintel/internal/core/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	valid := FileFacts{
		Path:     "pkg/a.go",
		Language: "go",
		Symbols: []Symbol{{
			Name: "Run", Kind: KindFunction,
			Shape: &UnitShape{Decisions: []DecisionPoint{{Kind: DecisionIf}}},
		}},
		Imports: []Import{{Target: "pkg/b.go"}},
	}
	require.NoError(t, Validate(valid))

	tests := []struct {
		name   string
		mutate func(f *FileFacts)
	}{
		{"missing path", func(f *FileFacts) { f.Path = "" }},
		{"missing language", func(f *FileFacts) { f.Language = " " }},
		{"empty import", func(f *FileFacts) { f.Imports = []Import{{Target: ""}} }},
		{"empty symbol", func(f *FileFacts) { f.Symbols = []Symbol{{Kind: KindFunction}} }},
		{"unknown kind", func(f *FileFacts) { f.Symbols = []Symbol{{Name: "x", Kind: "gizmo"}} }},
		{"reserved char", func(f *FileFacts) { f.Symbols = []Symbol{{Name: "a#b", Kind: KindFunction}} }},
		{"unknown decision", func(f *FileFacts) {
			f.Symbols = []Symbol{{Name: "x", Kind: KindFunction, Shape: &UnitShape{
				Decisions: []DecisionPoint{{Kind: "goto"}},
			}}}
		}},
		{"negative operand", func(f *FileFacts) {
			f.Symbols = []Symbol{{Name: "x", Kind: KindFunction, Shape: &UnitShape{
				Operands: map[string]int{"a": -1},
			}}}
		}},
		{"negative lines", func(f *FileFacts) { f.Lines.Comment = -2 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := valid
			f.Symbols = append([]Symbol(nil), valid.Symbols...)
			tt.mutate(&f)
			err := Validate(f)
			require.Error(t, err)
			assert.True(t, codeerrors.IsCode(err, codeerrors.CodeMalformedFacts))
		})
	}
}

func TestNormalize(t *testing.T) {
	f := FileFacts{
		Path:     "./src/api/../api/handler.ts",
		Language: " TypeScript ",
		Imports:  []Import{{Target: "./service"}, {Target: "../lib/db"}, {Target: "express"}},
		Symbols: []Symbol{{
			Name: "handle", Kind: KindFunction, Line: 10, EndLine: 19, Shape: &UnitShape{},
		}},
	}
	f.Normalize()

	assert.Equal(t, "src/api/handler.ts", f.Path)
	assert.Equal(t, "typescript", f.Language)
	assert.Equal(t, "src/api", f.Module)
	assert.Equal(t, "src/api/service", f.Imports[0].Target)
	assert.Equal(t, "src/lib/db", f.Imports[1].Target)
	assert.Equal(t, "express", f.Imports[2].Target)
	assert.Equal(t, 10, f.Symbols[0].Shape.Lines.Physical)
}

func TestSymbolIDs(t *testing.T) {
	method := Symbol{Name: "Get", Parent: "Repo", Kind: KindMethod}
	id := SymbolID("store/repo.go", method)
	assert.Equal(t, "store/repo.go#Repo.Get", id)

	file, name, ok := SplitSymbolID(id)
	require.True(t, ok)
	assert.Equal(t, "store/repo.go", file)
	assert.Equal(t, "Repo.Get", name)

	_, _, ok = SplitSymbolID("store/repo.go")
	assert.False(t, ok)
}

func TestHashContent(t *testing.T) {
	a := HashContent([]byte("package main"))
	b := HashContent([]byte("package main"))
	c := HashContent([]byte("package main\n"))
	assert.Len(t, a, 16)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestLoadBatch(t *testing.T) {
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "facts.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"files":[{"path":"a.go","language":"go"}]}`), 0o644))
	files, err := LoadBatch(jsonPath)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "a.go", files[0].Path)

	arrayPath := filepath.Join(dir, "facts.out")
	require.NoError(t, os.WriteFile(arrayPath, []byte(`[{"path":"b.go","language":"go"}]`), 0o644))
	files, err = LoadBatch(arrayPath)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "b.go", files[0].Path)

	yamlPath := filepath.Join(dir, "facts.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(`
files:
  - path: c.py
    language: python
    symbols:
      - name: main
        kind: function
        shape:
          decisions:
            - kind: if
              depth: 1
`), 0o644))
	files, err = LoadBatch(yamlPath)
	require.NoError(t, err)
	require.Len(t, files, 1)
	require.Len(t, files[0].Symbols, 1)
	require.NotNil(t, files[0].Symbols[0].Shape)
	assert.Equal(t, DecisionIf, files[0].Symbols[0].Shape.Decisions[0].Kind)
	assert.Equal(t, 1, files[0].Symbols[0].Shape.Decisions[0].Depth)
}

func TestStaticProvider(t *testing.T) {
	p := StaticProvider{"a.go": {Path: "a.go", Language: "go"}}
	f, err := p.Extract(context.Background(), "./a.go", []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, HashContent([]byte("x")), f.Hash)

	_, err = p.Extract(context.Background(), "missing.go", nil)
	assert.True(t, codeerrors.IsCode(err, codeerrors.CodeNotFound))
}

func TestNewCommandProviderRejectsEmpty(t *testing.T) {
	_, err := NewCommandProvider(nil, 0)
	assert.Error(t, err)
}

func TestCommandProvider_ContentHashWins(t *testing.T) {
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	script := `cat >/dev/null; printf '{"path":"%s","language":"go","hash":"sha256:abc"}' "$1"`
	p, err := NewCommandProvider([]string{sh, "-c", script, "extract"}, 5*time.Second)
	require.NoError(t, err)

	f, err := p.Extract(context.Background(), "a.go", []byte("v1"))
	require.NoError(t, err)
	assert.Equal(t, "a.go", f.Path)
	assert.Equal(t, HashContent([]byte("v1")), f.Hash)
}
