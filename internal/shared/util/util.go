package util

import (
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
)

// NormalizePatternPath cleans a path for glob and prefix matching: forward
// slashes, no leading "./", "" for the root.
func NormalizePatternPath(s string) string {
	trimmed := strings.TrimSpace(strings.ReplaceAll(s, "\\", "/"))
	clean := path.Clean(trimmed)
	if clean == "." {
		return ""
	}
	return strings.TrimPrefix(clean, "./")
}

// HasPathPrefix reports whether p is dir itself or lies beneath it.
func HasPathPrefix(p, dir string) bool {
	p = NormalizePatternPath(p)
	dir = NormalizePatternPath(dir)
	if dir == "" {
		return true
	}
	if p == dir {
		return true
	}
	return strings.HasPrefix(p, dir+"/")
}

// FilterUnder returns the paths lying under dir, sorted.
func FilterUnder(paths []string, dir string) []string {
	var res []string
	for _, p := range paths {
		if HasPathPrefix(p, dir) {
			res = append(res, p)
		}
	}
	sort.Strings(res)
	return res
}

func SortedStringKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// EnsureDir creates dir and its parents with 0755.
func EnsureDir(dir string) error {
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// WriteFileWithDirs writes data to p, creating parent directories first.
func WriteFileWithDirs(p string, data []byte, perm fs.FileMode) error {
	if err := EnsureDir(filepath.Dir(p)); err != nil {
		return err
	}
	return os.WriteFile(p, data, perm)
}

// HeapAllocMB is the current heap allocation in MiB.
func HeapAllocMB() uint64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return m.Alloc / 1024 / 1024
}
