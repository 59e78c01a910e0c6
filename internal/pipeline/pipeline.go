package pipeline

import (
	"fmt"
	"sort"
	"strings"

	"github.com/AlexRogalskiy/turborepo/internal/config"
	turboerrors "github.com/AlexRogalskiy/turborepo/internal/errors"
)

// DefaultOutputs are the output globs of a task that declares none.
var DefaultOutputs = []string{"dist/**", "build/**"}

// Entry is the effective configuration of one task.
type Entry struct {
	DependsOn []DependencySpec `json:"dependsOn" yaml:"dependsOn"`
	Outputs   []string         `json:"outputs" yaml:"outputs"`
	Cache     bool             `json:"cache" yaml:"cache"`
}

// TaskDependencies returns the same-package and topological dependencies in
// declaration order.
func (e Entry) TaskDependencies() []DependencySpec {
	var deps []DependencySpec
	for _, d := range e.DependsOn {
		if d.Kind != EnvVar {
			deps = append(deps, d)
		}
	}
	return deps
}

// EnvVars returns the sorted, de-duplicated environment variable names the
// task depends on.
func (e Entry) EnvVars() []string {
	seen := make(map[string]bool)
	var names []string
	for _, d := range e.DependsOn {
		if d.Kind == EnvVar && !seen[d.Name] {
			seen[d.Name] = true
			names = append(names, d.Name)
		}
	}
	sort.Strings(names)
	return names
}

// partial is a pipeline entry with unset fields left nil.
type partial struct {
	dependsOn []DependencySpec
	hasDeps   bool
	outputs   []string
	cache     *bool
}

// Pipeline holds parsed pipeline entries keyed by their turbo.json key.
type Pipeline struct {
	entries map[string]partial
}

// New parses every pipeline entry of cfg. Dependency items are parsed here
// once and never again.
func New(cfg *config.TurboJSON) (*Pipeline, error) {
	p := &Pipeline{entries: make(map[string]partial, len(cfg.Pipeline))}
	for key, raw := range cfg.Pipeline {
		entry := partial{
			outputs: raw.Outputs,
			cache:   raw.Cache,
		}
		if raw.DependsOn != nil {
			entry.hasDeps = true
			entry.dependsOn = make([]DependencySpec, 0, len(raw.DependsOn))
			for _, item := range raw.DependsOn {
				dep, err := ParseDependency(item)
				if err != nil {
					return nil, turboerrors.Configf("pipeline.%s.dependsOn: %v", key, err)
				}
				entry.dependsOn = append(entry.dependsOn, dep)
			}
		}
		p.entries[key] = entry
	}
	return p, nil
}

// Key returns the pipeline key of a package override.
func Key(pkg, task string) string {
	return pkg + "#" + task
}

// HasTask reports whether task is defined by a bare entry, by any package
// override, or by the wildcard entry.
func (p *Pipeline) HasTask(task string) bool {
	if _, ok := p.entries[task]; ok {
		return true
	}
	if _, ok := p.entries[config.WildcardTask]; ok {
		return true
	}
	suffix := "#" + task
	for key := range p.entries {
		if strings.HasSuffix(key, suffix) {
			return true
		}
	}
	return false
}

// Resolve returns the effective entry for task in pkg.
//
// Fields are looked up independently in "pkg#task", then "task", then "*".
// Fields that no level sets take their defaults. A task with no entry at any
// level is a configuration error.
func (p *Pipeline) Resolve(task, pkg string) (Entry, error) {
	levels := make([]partial, 0, 3)
	for _, key := range []string{Key(pkg, task), task, config.WildcardTask} {
		if entry, ok := p.entries[key]; ok {
			levels = append(levels, entry)
		}
	}
	if len(levels) == 0 {
		return Entry{}, &turboerrors.TurboError{
			Kind:    turboerrors.KindConfig,
			Package: pkg,
			Task:    task,
			Message: fmt.Sprintf("could not find task %q in pipeline", task),
		}
	}

	resolved := Entry{
		DependsOn: []DependencySpec{},
		Outputs:   DefaultOutputs,
		Cache:     true,
	}
	var depsSet, outputsSet, cacheSet bool
	for _, level := range levels {
		if !depsSet && level.hasDeps {
			resolved.DependsOn, depsSet = level.dependsOn, true
		}
		if !outputsSet && level.outputs != nil {
			resolved.Outputs, outputsSet = level.outputs, true
		}
		if !cacheSet && level.cache != nil {
			resolved.Cache, cacheSet = *level.cache, true
		}
	}

	resolved.DependsOn = append([]DependencySpec(nil), resolved.DependsOn...)
	if resolved.DependsOn == nil {
		resolved.DependsOn = []DependencySpec{}
	}
	resolved.Outputs = append([]string{}, resolved.Outputs...)
	return resolved, nil
}
