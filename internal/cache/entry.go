// Package cache stores task outputs and logs keyed by fingerprint, locally
// and in a remote artifact store.
package cache

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// File is one output file of a task.
type File struct {
	// Path is relative to the package directory, using forward slashes.
	Path    string
	Mode    fs.FileMode
	Content []byte
}

// Meta describes the execution that produced an entry.
type Meta struct {
	Hash     string        `json:"hash"`
	Duration time.Duration `json:"duration"`
	ExitCode int           `json:"exitCode"`
	// LogOnly marks entries of tasks with caching disabled. They hold the log
	// but no outputs and never count as hits.
	LogOnly bool `json:"logOnly,omitempty"`
}

// Entry is the cached result of one task execution.
type Entry struct {
	Files []File
	Log   []byte
	Meta  Meta
}

// LogFile returns the path of a task's log file inside its package.
func LogFile(pkgDir, task string) string {
	return filepath.Join(pkgDir, ".turbo", "turbo-"+task+".log")
}

// CollectOutputs reads the files under pkgDir matched by the output globs.
func CollectOutputs(pkgDir string, globs []string) ([]File, error) {
	fsys := os.DirFS(pkgDir)
	seen := make(map[string]bool)
	var paths []string
	for _, g := range globs {
		matches, err := doublestar.Glob(fsys, g, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("output glob %q: %w", g, err)
		}
		for _, m := range matches {
			if seen[m] || strings.HasPrefix(m, ".turbo/") || strings.HasPrefix(m, "node_modules/") {
				continue
			}
			seen[m] = true
			paths = append(paths, m)
		}
	}
	sort.Strings(paths)

	files := make([]File, 0, len(paths))
	for _, p := range paths {
		abs := filepath.Join(pkgDir, filepath.FromSlash(p))
		info, err := os.Stat(abs)
		if err != nil {
			return nil, err
		}
		content, err := os.ReadFile(abs)
		if err != nil {
			return nil, err
		}
		files = append(files, File{Path: p, Mode: info.Mode().Perm(), Content: content})
	}
	return files, nil
}

// Restore writes the entry's output files into pkgDir and the log to the
// task's log file.
func Restore(pkgDir, task string, e *Entry) error {
	for _, f := range e.Files {
		target, err := safeJoin(pkgDir, f.Path)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		mode := f.Mode
		if mode == 0 {
			mode = 0o644
		}
		if err := os.WriteFile(target, f.Content, mode); err != nil {
			return err
		}
		if err := os.Chmod(target, mode); err != nil {
			return err
		}
	}
	return WriteLog(pkgDir, task, e.Log)
}

// WriteLog writes a task's log file.
func WriteLog(pkgDir, task string, log []byte) error {
	logPath := LogFile(pkgDir, task)
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(logPath, log, 0o644)
}

// safeJoin joins a slash-separated relative path to dir, rejecting paths
// that escape it.
func safeJoin(dir, rel string) (string, error) {
	clean := path.Clean(rel)
	if path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") || clean == "." {
		return "", fmt.Errorf("invalid artifact path %q", rel)
	}
	return filepath.Join(dir, filepath.FromSlash(clean)), nil
}
