// Package watcher turns fsnotify events under a project root into
// normalized file changes for the change analyzer.
package watcher

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"codeintel/internal/engine/changes"
	"codeintel/internal/engine/facts"
	"codeintel/internal/shared/observability"

	"github.com/fsnotify/fsnotify"
	"github.com/gobwas/glob"
)

const eventBuffer = 256

// DefaultLanguages maps file extensions to the language tag reported with a
// change.
var DefaultLanguages = map[string]string{
	".go":    "go",
	".py":    "python",
	".js":    "javascript",
	".jsx":   "javascript",
	".ts":    "typescript",
	".tsx":   "typescript",
	".java":  "java",
	".kt":    "kotlin",
	".rs":    "rust",
	".rb":    "ruby",
	".cs":    "csharp",
	".php":   "php",
	".swift": "swift",
	".c":     "c",
	".h":     "c",
	".cpp":   "cpp",
	".hpp":   "cpp",
}

type Watcher struct {
	fsWatcher    *fsnotify.Watcher
	root         string
	excludeDirs  []glob.Glob
	excludeFiles []glob.Glob
	languages    map[string]string

	events chan changes.FileChange
	done   chan struct{}
	wg     sync.WaitGroup

	mu   sync.Mutex
	dirs map[string]bool
	once sync.Once
}

// NewWatcher creates a watcher for root. Exclude patterns are gobwas globs
// matched against base names.
func NewWatcher(root string, excludeDirs, excludeFiles []string) (*Watcher, error) {
	if strings.TrimSpace(root) == "" {
		return nil, os.ErrInvalid
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	compiledDirs := make([]glob.Glob, 0, len(excludeDirs))
	for _, pattern := range excludeDirs {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, err
		}
		compiledDirs = append(compiledDirs, g)
	}

	compiledFiles := make([]glob.Glob, 0, len(excludeFiles))
	for _, pattern := range excludeFiles {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, err
		}
		compiledFiles = append(compiledFiles, g)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		fsWatcher:    fsw,
		root:         absRoot,
		excludeDirs:  compiledDirs,
		excludeFiles: compiledFiles,
		languages:    DefaultLanguages,
		events:       make(chan changes.FileChange, eventBuffer),
		done:         make(chan struct{}),
		dirs:         make(map[string]bool),
	}, nil
}

// SetLanguages replaces the extension to language table. An empty table
// accepts every file.
func (w *Watcher) SetLanguages(languages map[string]string) {
	normalized := make(map[string]string, len(languages))
	for ext, lang := range languages {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		normalized[ext] = lang
	}
	w.languages = normalized
}

// Events delivers normalized changes. It is closed by Close.
func (w *Watcher) Events() <-chan changes.FileChange {
	return w.events
}

// Watch registers every non-excluded directory under the root and starts
// the event loop.
func (w *Watcher) Watch() error {
	if err := w.watchRecursive(w.root); err != nil {
		return err
	}
	w.wg.Add(1)
	go w.run()
	return nil
}

func (w *Watcher) watchRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root && w.shouldExcludeDir(path) {
			return filepath.SkipDir
		}
		if err := w.fsWatcher.Add(path); err != nil {
			return err
		}
		w.mu.Lock()
		w.dirs[path] = true
		w.mu.Unlock()
		return nil
	})
}

func (w *Watcher) run() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			observability.WatcherEventsTotal.Inc()
			w.handle(event)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			slog.Error("watcher error", "error", err)
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	switch {
	case event.Has(fsnotify.Create):
		info, err := os.Stat(event.Name)
		if err != nil {
			return
		}
		if info.IsDir() {
			if w.shouldExcludeDir(event.Name) {
				return
			}
			if err := w.watchRecursive(event.Name); err != nil {
				slog.Warn("failed to watch new directory", "path", event.Name, "error", err)
				return
			}
			w.emit(changes.FileChange{Type: changes.ChangeAddDir, Path: w.rel(event.Name)})
			w.emitExistingFiles(event.Name)
			return
		}
		w.emitFile(changes.ChangeAdd, event.Name)

	case event.Has(fsnotify.Write):
		w.emitFile(changes.ChangeModify, event.Name)

	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		w.mu.Lock()
		wasDir := w.dirs[event.Name]
		if wasDir {
			for dir := range w.dirs {
				if dir == event.Name || strings.HasPrefix(dir, event.Name+string(filepath.Separator)) {
					delete(w.dirs, dir)
				}
			}
		}
		w.mu.Unlock()

		if wasDir {
			_ = w.fsWatcher.Remove(event.Name)
			w.emit(changes.FileChange{Type: changes.ChangeUnlinkDir, Path: w.rel(event.Name)})
			return
		}
		if _, ok := w.languageOf(event.Name); !ok || w.shouldExcludeFile(event.Name) {
			return
		}
		w.emit(changes.FileChange{Type: changes.ChangeUnlink, Path: w.rel(event.Name)})
	}
}

// emitFile reads path and emits an add or change carrying its content. A
// file that vanished in between becomes an unlink.
func (w *Watcher) emitFile(typ changes.ChangeType, path string) {
	lang, ok := w.languageOf(path)
	if !ok || w.shouldExcludeFile(path) {
		return
	}
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		w.emit(changes.FileChange{Type: changes.ChangeUnlink, Path: w.rel(path)})
		return
	}
	if err != nil || info.IsDir() {
		return
	}

	change := changes.FileChange{
		Type:     typ,
		Path:     w.rel(path),
		Language: lang,
		Stats:    &changes.FileStats{Size: info.Size(), ModTime: info.ModTime()},
	}
	content, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("failed to read changed file", "path", path, "error", err)
	} else {
		change.Content = content
		change.Hash = facts.HashContent(content)
	}
	w.emit(change)
}

func (w *Watcher) emitExistingFiles(root string) {
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != root && w.shouldExcludeDir(path) {
				return filepath.SkipDir
			}
			return nil
		}
		w.emitFile(changes.ChangeAdd, path)
		return nil
	})
}

func (w *Watcher) emit(c changes.FileChange) {
	select {
	case w.events <- c:
	case <-w.done:
	}
}

func (w *Watcher) rel(path string) string {
	r, err := filepath.Rel(w.root, path)
	if err != nil {
		return facts.NormalizePath(path)
	}
	return facts.NormalizePath(r)
}

func (w *Watcher) languageOf(path string) (string, bool) {
	if len(w.languages) == 0 {
		return "", true
	}
	lang, ok := w.languages[strings.ToLower(filepath.Ext(path))]
	return lang, ok
}

func (w *Watcher) shouldExcludeDir(path string) bool {
	base := filepath.Base(path)
	for _, g := range w.excludeDirs {
		if g.Match(base) {
			return true
		}
	}
	return false
}

func (w *Watcher) shouldExcludeFile(path string) bool {
	base := filepath.Base(path)
	for _, g := range w.excludeFiles {
		if g.Match(base) {
			return true
		}
	}
	return false
}

// Close stops the event loop and closes Events.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		err = w.fsWatcher.Close()
		w.wg.Wait()
		close(w.events)
	})
	return err
}
