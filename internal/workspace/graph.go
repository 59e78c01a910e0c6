// Package workspace models the packages of a monorepo and the dependency
// graph between them.
package workspace

import (
	"fmt"
	"sort"

	"github.com/AlexRogalskiy/turborepo/internal/topsort"
)

// Package is one workspace package.
type Package struct {
	// Name is the package name from its manifest.
	Name string
	// Dir is the package directory relative to the repository root, using
	// forward slashes.
	Dir string
	// Scripts maps script names to shell commands.
	Scripts map[string]string
	// Dependencies lists the names of workspace packages this package depends on.
	Dependencies []string
}

// Command returns the script registered for task, if any.
func (p *Package) Command(task string) (string, bool) {
	cmd, ok := p.Scripts[task]
	return cmd, ok
}

// Graph is the static dependency graph of workspace packages.
type Graph struct {
	packages map[string]*Package
	deps     topsort.Graph
	rdeps    topsort.Graph
}

// NewGraph builds a graph from packages.
//
// Dependencies naming packages outside the workspace are external (registry)
// dependencies and are dropped. Duplicate names and self-dependencies are errors.
func NewGraph(pkgs []Package) (*Graph, error) {
	g := &Graph{
		packages: make(map[string]*Package, len(pkgs)),
		deps:     make(topsort.Graph, len(pkgs)),
	}

	for i := range pkgs {
		p := pkgs[i]
		if p.Name == "" {
			return nil, fmt.Errorf("package in %q has no name", p.Dir)
		}
		if existing, ok := g.packages[p.Name]; ok {
			return nil, fmt.Errorf("duplicate package name %q in %q and %q", p.Name, existing.Dir, p.Dir)
		}
		g.packages[p.Name] = &p
	}

	for name, p := range g.packages {
		var internal []string
		seen := make(map[string]bool)
		for _, dep := range p.Dependencies {
			if dep == name {
				return nil, fmt.Errorf("package %q depends on itself", name)
			}
			if _, ok := g.packages[dep]; !ok || seen[dep] {
				continue
			}
			seen[dep] = true
			internal = append(internal, dep)
		}
		sort.Strings(internal)
		p.Dependencies = internal
		g.deps[name] = internal
	}
	g.rdeps = topsort.Reverse(g.deps)

	return g, nil
}

// Get retrieves a package by name.
func (g *Graph) Get(name string) (*Package, bool) {
	p, ok := g.packages[name]
	return p, ok
}

// Len returns the number of packages.
func (g *Graph) Len() int {
	return len(g.packages)
}

// Names returns all package names sorted.
func (g *Graph) Names() []string {
	names := make([]string, 0, len(g.packages))
	for name := range g.packages {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Packages returns all packages sorted by name.
func (g *Graph) Packages() []*Package {
	names := g.Names()
	pkgs := make([]*Package, len(names))
	for i, name := range names {
		pkgs[i] = g.packages[name]
	}
	return pkgs
}

// Dependencies returns the direct workspace dependencies of a package, sorted.
func (g *Graph) Dependencies(name string) []string {
	return g.deps[name]
}

// TransitiveDependents returns every package that depends, directly or
// indirectly, on any of names. The input packages are not included unless
// they depend on one another.
func (g *Graph) TransitiveDependents(names []string) []string {
	return topsort.Closure(g.rdeps, names)
}

// PackageForPath returns the package whose directory contains the
// repository-relative slash path, preferring the deepest match.
func (g *Graph) PackageForPath(path string) (*Package, bool) {
	var best *Package
	for _, p := range g.packages {
		if !isWithin(path, p.Dir) {
			continue
		}
		if best == nil || len(p.Dir) > len(best.Dir) {
			best = p
		}
	}
	return best, best != nil
}

func isWithin(path, dir string) bool {
	if dir == "" || dir == "." {
		return true
	}
	return path == dir || (len(path) > len(dir) && path[:len(dir)] == dir && path[len(dir)] == '/')
}
