package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

// pnpmWorkspaceFile is the pnpm workspace manifest.
const pnpmWorkspaceFile = "pnpm-workspace.yaml"

// Discover finds every workspace package under rootDir and builds the
// package graph.
//
// Workspace globs come from the root package.json "workspaces" field or,
// failing that, from pnpm-workspace.yaml. Patterns prefixed with "!" exclude
// matches. Anything under node_modules is ignored.
func Discover(rootDir string) (*Graph, error) {
	patterns, err := workspaceGlobs(rootDir)
	if err != nil {
		return nil, err
	}

	dirs, err := matchPackageDirs(rootDir, patterns)
	if err != nil {
		return nil, err
	}

	pkgs := make([]Package, 0, len(dirs))
	for _, dir := range dirs {
		manifest, err := ReadPackageJSON(filepath.Join(rootDir, filepath.FromSlash(dir), "package.json"))
		if err != nil {
			return nil, fmt.Errorf("reading workspace package %q: %w", dir, err)
		}
		name := manifest.Name
		if name == "" {
			name = path.Base(dir)
		}
		pkgs = append(pkgs, Package{
			Name:         name,
			Dir:          dir,
			Scripts:      manifest.Scripts,
			Dependencies: manifest.AllDependencies(),
		})
	}

	return NewGraph(pkgs)
}

func workspaceGlobs(rootDir string) ([]string, error) {
	root, err := ReadPackageJSON(filepath.Join(rootDir, "package.json"))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	if root != nil && len(root.Workspaces) > 0 {
		return root.Workspaces, nil
	}

	data, err := os.ReadFile(filepath.Join(rootDir, pnpmWorkspaceFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var manifest struct {
		Packages []string `yaml:"packages"`
	}
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("%s: %w", pnpmWorkspaceFile, err)
	}
	return manifest.Packages, nil
}

// matchPackageDirs expands workspace globs into sorted, repository-relative
// directories that contain a package.json.
func matchPackageDirs(rootDir string, patterns []string) ([]string, error) {
	fsys := os.DirFS(rootDir)
	included := make(map[string]bool)
	var excludes []string

	for _, pattern := range patterns {
		if strings.HasPrefix(pattern, "!") {
			excludes = append(excludes, cleanGlob(pattern[1:]))
			continue
		}
		pattern = cleanGlob(pattern)
		matches, err := doublestar.Glob(fsys, path.Join(pattern, "package.json"))
		if err != nil {
			return nil, fmt.Errorf("invalid workspace glob %q: %w", pattern, err)
		}
		for _, m := range matches {
			dir := path.Dir(m)
			if dir == "." || isNodeModules(dir) {
				continue
			}
			included[dir] = true
		}
	}

	dirs := make([]string, 0, len(included))
	for dir := range included {
		excluded := false
		for _, ex := range excludes {
			if ok, _ := doublestar.Match(ex, dir); ok {
				excluded = true
				break
			}
		}
		if !excluded {
			dirs = append(dirs, dir)
		}
	}
	sort.Strings(dirs)
	return dirs, nil
}

func cleanGlob(pattern string) string {
	pattern = strings.TrimPrefix(filepath.ToSlash(pattern), "./")
	return strings.TrimSuffix(pattern, "/")
}

func isNodeModules(dir string) bool {
	for _, part := range strings.Split(dir, "/") {
		if part == "node_modules" {
			return true
		}
	}
	return false
}
