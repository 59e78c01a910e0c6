package hashing

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"sort"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/hashicorp/go-hclog"

	"github.com/AlexRogalskiy/turborepo/internal/hashindex"
	"github.com/AlexRogalskiy/turborepo/internal/logging"
	"github.com/AlexRogalskiy/turborepo/internal/workspace"
)

// skippedDirs are never part of a package's inputs.
var skippedDirs = map[string]bool{
	"node_modules": true,
	".git":         true,
	".turbo":       true,
}

// PackageHasherOptions configures a PackageHasher.
type PackageHasherOptions struct {
	// Index stores base file hashes between runs. Optional.
	Index *hashindex.Index
	// Changed lists repo-relative files changed since the base ref. A non-nil
	// slice enables incremental mode: files not listed reuse their indexed hash.
	Changed []string
	Logger  hclog.Logger
}

// PackageHasher computes per-package file hashes. Each package is walked at
// most once per run.
type PackageHasher struct {
	root    string
	pkgs    *workspace.Graph
	index   *hashindex.Index
	changed map[string]bool
	logger  hclog.Logger

	mu    sync.Mutex
	files map[string]*packageFiles
}

type packageFiles struct {
	once  sync.Once
	files map[string]string
	err   error
}

// NewPackageHasher creates a hasher for the packages of pkgs rooted at root.
func NewPackageHasher(root string, pkgs *workspace.Graph, opts PackageHasherOptions) *PackageHasher {
	h := &PackageHasher{
		root:   root,
		pkgs:   pkgs,
		index:  opts.Index,
		logger: logging.OrNull(opts.Logger),
		files:  make(map[string]*packageFiles),
	}
	if opts.Changed != nil {
		h.changed = make(map[string]bool, len(opts.Changed))
		for _, f := range opts.Changed {
			h.changed[filepath.ToSlash(f)] = true
		}
	}
	return h
}

// Incremental reports whether file hashes are reused from the index.
func (h *PackageHasher) Incremental() bool {
	return h.changed != nil && h.index != nil
}

// Files returns the hash of every input file of a package, keyed by
// package-relative slash path.
func (h *PackageHasher) Files(ctx context.Context, pkg *workspace.Package) (map[string]string, error) {
	h.mu.Lock()
	pf, ok := h.files[pkg.Name]
	if !ok {
		pf = &packageFiles{}
		h.files[pkg.Name] = pf
	}
	h.mu.Unlock()

	pf.once.Do(func() {
		pf.files, pf.err = h.walk(ctx, pkg)
	})
	return pf.files, pf.err
}

// PackageHash digests a package's input files, excluding files matched by
// the task's output globs.
func (h *PackageHasher) PackageHash(ctx context.Context, pkg *workspace.Package, outputs []string) (string, error) {
	files, err := h.Files(ctx, pkg)
	if err != nil {
		return "", err
	}

	paths := make([]string, 0, len(files))
	for p := range files {
		if matchesAny(outputs, p) {
			continue
		}
		paths = append(paths, p)
	}
	sort.Strings(paths)

	d := newDigest()
	d.count(len(paths))
	for _, p := range paths {
		d.str(p)
		d.str(files[p])
	}
	return d.sum(), nil
}

func (h *PackageHasher) walk(ctx context.Context, pkg *workspace.Package) (map[string]string, error) {
	pkgDir := filepath.Join(h.root, filepath.FromSlash(pkg.Dir))
	nested := h.nestedPackageDirs(pkg)

	var base map[string]hashindex.FileRecord
	if h.Incremental() {
		var err error
		base, err = h.index.Load(ctx, pkg.Name)
		if err != nil {
			h.logger.Warn("hash index unavailable, hashing all files", "package", pkg.Name, "error", err)
			base = nil
		}
	}

	files := make(map[string]string)
	records := make(map[string]hashindex.FileRecord)
	reused := 0

	err := filepath.WalkDir(pkgDir, func(abs string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		rel, err := filepath.Rel(pkgDir, abs)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if rel == "." {
				return nil
			}
			if skippedDirs[d.Name()] || nested[rel] {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		size, modTime := info.Size(), info.ModTime().UnixNano()

		repoRel := path.Join(pkg.Dir, rel)
		if rec, ok := base[rel]; ok && !h.changed[repoRel] && rec.Matches(size, modTime) {
			files[rel] = rec.Hash
			records[rel] = rec
			reused++
			return nil
		}

		sum, err := HashFile(abs)
		if err != nil {
			return err
		}
		files[rel] = sum
		records[rel] = hashindex.FileRecord{Hash: sum, Size: size, ModTime: modTime}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("hashing package %s: %w", pkg.Name, err)
	}

	if h.index != nil {
		if err := h.index.Save(ctx, pkg.Name, records); err != nil {
			h.logger.Warn("could not update hash index", "package", pkg.Name, "error", err)
		}
	}
	h.logger.Debug("hashed package files", "package", pkg.Name, "files", len(files), "reused", reused)
	return files, nil
}

// nestedPackageDirs returns, relative to pkg, the directories of other
// packages located inside it.
func (h *PackageHasher) nestedPackageDirs(pkg *workspace.Package) map[string]bool {
	nested := make(map[string]bool)
	if h.pkgs == nil {
		return nested
	}
	for _, other := range h.pkgs.Packages() {
		if other.Name == pkg.Name {
			continue
		}
		if pkg.Dir == "." || pkg.Dir == "" {
			if other.Dir != "." && other.Dir != "" {
				nested[other.Dir] = true
			}
			continue
		}
		if rel, ok := cutDirPrefix(other.Dir, pkg.Dir); ok {
			nested[rel] = true
		}
	}
	return nested
}

func cutDirPrefix(dir, parent string) (string, bool) {
	if len(dir) <= len(parent)+1 || dir[:len(parent)] != parent || dir[len(parent)] != '/' {
		return "", false
	}
	return dir[len(parent)+1:], true
}

func matchesAny(globs []string, p string) bool {
	for _, g := range globs {
		if ok, _ := doublestar.Match(g, p); ok {
			return true
		}
	}
	return false
}
