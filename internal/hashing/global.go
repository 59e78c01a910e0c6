package hashing

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Lockfiles are checked in order; the first one present is hashed.
var Lockfiles = []string{
	"package-lock.json",
	"yarn.lock",
	"pnpm-lock.yaml",
	"bun.lockb",
	"npm-shrinkwrap.json",
}

// GlobalHashInputs are the run-wide inputs shared by every fingerprint.
type GlobalHashInputs struct {
	// Files maps repo-relative paths matched by globalDependencies to their hashes.
	Files map[string]string `json:"files"`
	// EnvNames lists the global environment variable names, sorted.
	EnvNames     []string `json:"env"`
	Lockfile     string   `json:"lockfile,omitempty"`
	LockfileHash string   `json:"lockfileHash,omitempty"`

	envValues []string
}

// ComputeGlobalInputs resolves globalDependencies against root. Entries
// starting with "$" name environment variables; the rest are globs relative
// to the repository root.
func ComputeGlobalInputs(root string, deps []string, getenv func(string) string) (*GlobalHashInputs, error) {
	g := &GlobalHashInputs{Files: make(map[string]string)}
	fsys := os.DirFS(root)

	envSeen := make(map[string]bool)
	for _, dep := range deps {
		if name, ok := strings.CutPrefix(dep, "$"); ok {
			if !envSeen[name] {
				envSeen[name] = true
				g.EnvNames = append(g.EnvNames, name)
			}
			continue
		}

		matches, err := doublestar.Glob(fsys, dep, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("global dependency %q: %w", dep, err)
		}
		for _, rel := range matches {
			if _, done := g.Files[rel]; done {
				continue
			}
			h, err := HashFile(filepath.Join(root, filepath.FromSlash(rel)))
			if err != nil {
				return nil, fmt.Errorf("hashing global dependency %s: %w", rel, err)
			}
			g.Files[rel] = h
		}
	}

	sort.Strings(g.EnvNames)
	for _, name := range g.EnvNames {
		g.envValues = append(g.envValues, name+"="+getenv(name))
	}

	for _, name := range Lockfiles {
		path := filepath.Join(root, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		h, err := HashFile(path)
		if err != nil {
			return nil, fmt.Errorf("hashing lockfile: %w", err)
		}
		g.Lockfile = name
		g.LockfileHash = h
		break
	}

	return g, nil
}

// Digest folds the global inputs into a single hash.
func (g *GlobalHashInputs) Digest() string {
	d := newDigest()
	d.str("global")

	paths := make([]string, 0, len(g.Files))
	for p := range g.Files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	d.count(len(paths))
	for _, p := range paths {
		d.str(p)
		d.str(g.Files[p])
	}

	d.count(len(g.envValues))
	for _, kv := range g.envValues {
		d.str(kv)
	}

	d.str(g.Lockfile)
	d.str(g.LockfileHash)
	return d.sum()
}
