package run

import (
	"path"
	"sort"

	"github.com/bmatcuk/doublestar/v4"

	turboerrors "github.com/AlexRogalskiy/turborepo/internal/errors"
	"github.com/AlexRogalskiy/turborepo/internal/workspace"
)

// resolveScope returns the packages whose requested tasks seed the graph,
// or nil for every package.
//
// Scope globs select packages by name. A changed-file list selects the
// packages containing a changed file, plus their dependents when
// includeDependents is set; a change to a global dependency selects every
// package.
func resolveScope(pkgs *workspace.Graph, scope []string, changed []string, globalDeps []string, includeDependents bool) ([]string, error) {
	var selected map[string]bool

	if len(scope) > 0 {
		selected = make(map[string]bool)
		for _, pattern := range scope {
			if !doublestar.ValidatePattern(pattern) {
				return nil, turboerrors.Configf("invalid scope pattern %q", pattern)
			}
			for _, name := range pkgs.Names() {
				if ok, _ := doublestar.Match(pattern, name); ok {
					selected[name] = true
				}
			}
		}
	}

	if changed != nil && !touchesGlobal(changed, globalDeps) {
		touched := make(map[string]bool)
		for _, f := range changed {
			if pkg, ok := pkgs.PackageForPath(f); ok {
				touched[pkg.Name] = true
			}
		}
		names := setToSorted(touched)
		if includeDependents {
			for _, dep := range pkgs.TransitiveDependents(names) {
				touched[dep] = true
			}
		}

		if selected == nil {
			selected = touched
		} else {
			for name := range selected {
				if !touched[name] {
					delete(selected, name)
				}
			}
		}
	}

	if selected == nil {
		return nil, nil
	}
	return setToSorted(selected), nil
}

func touchesGlobal(changed, globalDeps []string) bool {
	for _, f := range changed {
		if path.Base(f) == f && isLockfile(f) {
			return true
		}
		for _, g := range globalDeps {
			if ok, _ := doublestar.Match(g, f); ok {
				return true
			}
		}
	}
	return false
}

func setToSorted(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
