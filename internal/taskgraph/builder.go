package taskgraph

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	turboerrors "github.com/AlexRogalskiy/turborepo/internal/errors"
	"github.com/AlexRogalskiy/turborepo/internal/pipeline"
	"github.com/AlexRogalskiy/turborepo/internal/topsort"
	"github.com/AlexRogalskiy/turborepo/internal/workspace"
)

// Options controls graph construction.
type Options struct {
	// Tasks are the requested task names.
	Tasks []string
	// Packages restricts the packages whose requested tasks seed the graph.
	// Nil means every package. Dependencies outside the set are still added
	// when an edge reaches them.
	Packages []string
	// PassThroughArgs are appended to every command.
	PassThroughArgs []string
	// Warn receives non-fatal problems such as dropped edges.
	Warn func(msg string)
}

// Build creates one node per (package, task) pair reachable from the
// requested tasks and links them by their pipeline dependencies.
//
// A requested task must be declared in the pipeline. A same-package
// dependency on a script the package lacks is dropped with a warning. A
// topological dependency only considers direct workspace dependencies that
// define the script. Cycles are reported as *CycleError.
func Build(opts Options, pkgs *workspace.Graph, p *pipeline.Pipeline) (*Graph, error) {
	warn := opts.Warn
	if warn == nil {
		warn = func(string) {}
	}

	for _, task := range opts.Tasks {
		if !p.HasTask(task) {
			return nil, turboerrors.Configf("could not find task %q in pipeline", task)
		}
	}

	scope := opts.Packages
	if scope == nil {
		scope = pkgs.Names()
	}
	scope = append([]string(nil), scope...)
	sort.Strings(scope)

	b := &builder{
		pkgs:   pkgs,
		p:      p,
		args:   opts.PassThroughArgs,
		warn:   warn,
		warned: make(map[string]bool),
		nodes:  make(map[string]*Node),
	}

	var queue []string
	for _, name := range scope {
		pkg, ok := pkgs.Get(name)
		if !ok {
			return nil, turboerrors.Configf("unknown package %q", name)
		}
		for _, task := range opts.Tasks {
			if _, ok := pkg.Command(task); ok {
				queue = append(queue, ID(name, task))
			}
		}
	}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if _, done := b.nodes[id]; done {
			continue
		}
		preds, err := b.expand(id)
		if err != nil {
			return nil, err
		}
		queue = append(queue, preds...)
	}

	return b.finish()
}

type builder struct {
	pkgs   *workspace.Graph
	p      *pipeline.Pipeline
	args   []string
	warn   func(string)
	warned map[string]bool
	nodes  map[string]*Node
}

// expand creates the node for id and returns its predecessor IDs.
func (b *builder) expand(id string) ([]string, error) {
	pkgName, task := SplitID(id)
	pkg, _ := b.pkgs.Get(pkgName)
	command, _ := pkg.Command(task)

	entry, err := b.p.Resolve(task, pkgName)
	if err != nil {
		return nil, err
	}

	deps := make(map[string]bool)
	for _, dep := range entry.TaskDependencies() {
		switch dep.Kind {
		case pipeline.SamePackageTask:
			if _, ok := pkg.Command(dep.Name); !ok {
				b.warnOnce(fmt.Sprintf("%s depends on %q, but package %q has no %q script; dependency ignored",
					id, dep.Name, pkgName, dep.Name))
				continue
			}
			deps[ID(pkgName, dep.Name)] = true
		case pipeline.TopologicalTask:
			for _, upstream := range b.pkgs.Dependencies(pkgName) {
				up, _ := b.pkgs.Get(upstream)
				if _, ok := up.Command(dep.Name); ok {
					deps[ID(upstream, dep.Name)] = true
				}
			}
		}
	}

	node := &Node{
		ID:      id,
		Package: pkg,
		Task:    task,
		Command: withArgs(command, b.args),
		Entry:   entry,
		EnvVars: entry.EnvVars(),
		Deps:    sortedIDs(deps),
	}
	b.nodes[id] = node
	return node.Deps, nil
}

func (b *builder) warnOnce(msg string) {
	if b.warned[msg] {
		return
	}
	b.warned[msg] = true
	b.warn(msg)
}

// finish rejects cycles, computes dependents and fixes the topological order.
func (b *builder) finish() (*Graph, error) {
	ids := make([]string, 0, len(b.nodes))
	g := make(topsort.Graph, len(b.nodes))
	for id, n := range b.nodes {
		ids = append(ids, id)
		g[id] = n.Deps
	}
	ids = sortIDs(ids)

	order, err := topsort.Sort(g, ids)
	if err != nil {
		var cycleErr *topsort.CycleError
		if errors.As(err, &cycleErr) {
			return nil, &CycleError{Cycle: cycleErr.Path}
		}
		return nil, err
	}

	for _, id := range ids {
		for _, dep := range b.nodes[id].Deps {
			pred := b.nodes[dep]
			pred.Dependents = append(pred.Dependents, id)
		}
	}
	for _, n := range b.nodes {
		n.Dependents = sortIDs(n.Dependents)
	}

	return &Graph{nodes: b.nodes, order: order}, nil
}

func sortedIDs(set map[string]bool) []string {
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	return sortIDs(ids)
}

// sortIDs orders IDs by package name, then task name.
func sortIDs(ids []string) []string {
	sort.Slice(ids, func(i, j int) bool {
		pi, ti := SplitID(ids[i])
		pj, tj := SplitID(ids[j])
		if pi != pj {
			return pi < pj
		}
		return ti < tj
	})
	return ids
}

// withArgs appends shell-quoted arguments to a command.
func withArgs(command string, args []string) string {
	if len(args) == 0 {
		return command
	}
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, command)
	for _, arg := range args {
		parts = append(parts, shellQuote(arg))
	}
	return strings.Join(parts, " ")
}

func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, " \t\n'\"\\$`|&;<>()*?[]{}~!#") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
