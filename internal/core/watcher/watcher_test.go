package watcher

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"codeintel/internal/engine/changes"
	"codeintel/internal/engine/facts"
)

func TestNewWatcher_RejectsEmptyRoot(t *testing.T) {
	w, err := NewWatcher("  ", nil, nil)
	if !errors.Is(err, os.ErrInvalid) {
		t.Fatalf("expected os.ErrInvalid, got %v", err)
	}
	if w != nil {
		t.Fatal("expected nil watcher when root is invalid")
	}
}

func TestNewWatcher_RejectsBadGlob(t *testing.T) {
	if _, err := NewWatcher(t.TempDir(), []string{"[oops"}, nil); err == nil {
		t.Fatal("expected glob compile error")
	}
}

func startWatcher(t *testing.T, root string, excludeDirs, excludeFiles []string) *Watcher {
	t.Helper()
	w, err := NewWatcher(root, excludeDirs, excludeFiles)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = w.Close() })
	if err := w.Watch(); err != nil {
		t.Fatal(err)
	}
	return w
}

// waitFor drains events until one matches or the timeout passes.
func waitFor(t *testing.T, w *Watcher, match func(changes.FileChange) bool) changes.FileChange {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case c, ok := <-w.Events():
			if !ok {
				t.Fatal("event channel closed")
			}
			if match(c) {
				return c
			}
		case <-timeout:
			t.Fatal("timed out waiting for file change")
		}
	}
}

func TestWatcher_EmitsNormalizedChanges(t *testing.T) {
	root := t.TempDir()
	w := startWatcher(t, root, []string{"vendor"}, []string{"*.gen.go"})

	content := []byte("package main\n")
	if err := os.WriteFile(filepath.Join(root, "main.go"), content, 0o644); err != nil {
		t.Fatal(err)
	}
	c := waitFor(t, w, func(c changes.FileChange) bool { return c.Path == "main.go" && c.Hash != "" })
	if c.Type != changes.ChangeAdd && c.Type != changes.ChangeModify {
		t.Fatalf("unexpected change type %s", c.Type)
	}
	if c.Language != "go" {
		t.Fatalf("expected go language, got %q", c.Language)
	}
	if c.Hash != facts.HashContent(content) || string(c.Content) != string(content) {
		t.Fatalf("expected content and hash of the written file, got %#v", c)
	}
	if c.Stats == nil || c.Stats.Size != int64(len(content)) {
		t.Fatalf("expected stats, got %#v", c.Stats)
	}

	if err := os.Remove(filepath.Join(root, "main.go")); err != nil {
		t.Fatal(err)
	}
	c = waitFor(t, w, func(c changes.FileChange) bool { return c.Type == changes.ChangeUnlink })
	if c.Path != "main.go" || c.Content != nil || c.Hash != "" {
		t.Fatalf("unlink must carry no content, got %#v", c)
	}
}

func TestWatcher_NewDirectoryIsWatched(t *testing.T) {
	root := t.TempDir()
	w := startWatcher(t, root, nil, nil)

	sub := filepath.Join(root, "pkg", "store")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	waitFor(t, w, func(c changes.FileChange) bool { return c.Type == changes.ChangeAddDir && c.Path == "pkg" })

	// Give the recursive registration a moment before writing inside it.
	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(sub, "repo.go"), []byte("package store"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, w, func(c changes.FileChange) bool { return c.Path == "pkg/store/repo.go" })

	if err := os.RemoveAll(filepath.Join(root, "pkg")); err != nil {
		t.Fatal(err)
	}
	waitFor(t, w, func(c changes.FileChange) bool {
		return c.Type == changes.ChangeUnlinkDir && (c.Path == "pkg" || c.Path == "pkg/store")
	})
}

func TestWatcher_Filters(t *testing.T) {
	w, err := NewWatcher(t.TempDir(), []string{"node_modules", ".*"}, []string{"*.gen.go"})
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	if !w.shouldExcludeDir("/x/node_modules") || !w.shouldExcludeDir("/x/.git") {
		t.Fatal("expected excluded directories to match")
	}
	if w.shouldExcludeDir("/x/internal") {
		t.Fatal("did not expect internal to be excluded")
	}
	if !w.shouldExcludeFile("/x/api.gen.go") {
		t.Fatal("expected generated file to be excluded")
	}
	if _, ok := w.languageOf("README.md"); ok {
		t.Fatal("expected unknown extension to be ignored")
	}
	if lang, ok := w.languageOf("web/App.TSX"); !ok || lang != "typescript" {
		t.Fatalf("expected typescript, got %q %v", lang, ok)
	}

	w.SetLanguages(map[string]string{"md": "markdown"})
	if lang, ok := w.languageOf("README.md"); !ok || lang != "markdown" {
		t.Fatalf("expected markdown after override, got %q %v", lang, ok)
	}
	w.SetLanguages(nil)
	if _, ok := w.languageOf("anything.bin"); !ok {
		t.Fatal("expected an empty table to accept every file")
	}
}

func TestWatcher_CloseClosesEvents(t *testing.T) {
	w := startWatcher(t, t.TempDir(), nil, nil)
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if _, ok := <-w.Events(); ok {
		t.Fatal("expected closed event channel")
	}
	if err := w.Close(); err != nil {
		t.Fatal("second close must be a no-op")
	}
}
