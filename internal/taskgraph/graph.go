// Package taskgraph builds the graph of (package, task) nodes for a run.
package taskgraph

import (
	"fmt"
	"io"
	"strings"
	"sync"

	turboerrors "github.com/AlexRogalskiy/turborepo/internal/errors"
	"github.com/AlexRogalskiy/turborepo/internal/pipeline"
	"github.com/AlexRogalskiy/turborepo/internal/workspace"
)

// ID returns the node identifier for a task in a package: "pkg#task".
func ID(pkg, task string) string {
	return pipeline.Key(pkg, task)
}

// SplitID splits a node identifier into package and task.
func SplitID(id string) (pkg, task string) {
	pkg, task, _ = strings.Cut(id, "#")
	return pkg, task
}

// Node is one (package, task) pair of the run.
type Node struct {
	ID      string
	Package *workspace.Package
	Task    string
	// Command is the script to run, including pass-through arguments.
	Command string
	Entry   pipeline.Entry
	// EnvVars are the names of environment variables hashed for this task only.
	EnvVars []string
	// Deps are predecessor IDs sorted by package then task.
	Deps []string
	// Dependents are successor IDs, sorted the same way.
	Dependents []string

	fpMu        sync.Mutex
	fingerprint string
}

// Fingerprint returns the node's fingerprint, or "" before it is computed.
func (n *Node) Fingerprint() string {
	n.fpMu.Lock()
	defer n.fpMu.Unlock()
	return n.fingerprint
}

// SetFingerprint records the node's fingerprint. A fingerprint can be set
// once; setting a different value later is an error.
func (n *Node) SetFingerprint(fp string) error {
	n.fpMu.Lock()
	defer n.fpMu.Unlock()
	if n.fingerprint != "" && n.fingerprint != fp {
		return fmt.Errorf("fingerprint of %s already set", n.ID)
	}
	n.fingerprint = fp
	return nil
}

// CycleError reports a dependency cycle between tasks.
type CycleError struct {
	// Cycle lists node IDs; the first and last entries are the same node.
	Cycle []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("invalid task dependency graph: cyclic dependency detected: %s", strings.Join(e.Cycle, " -> "))
}

// ExitCode reports a cycle as a configuration error.
func (e *CycleError) ExitCode() int {
	return turboerrors.ExitConfigError
}

// Graph is the acyclic task graph of a run.
type Graph struct {
	nodes map[string]*Node
	order []string
}

// Get retrieves a node by ID.
func (g *Graph) Get(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Order returns node IDs with every node after all of its predecessors.
func (g *Graph) Order() []string {
	return append([]string(nil), g.order...)
}

// Nodes returns the nodes in topological order.
func (g *Graph) Nodes() []*Node {
	nodes := make([]*Node, len(g.order))
	for i, id := range g.order {
		nodes[i] = g.nodes[id]
	}
	return nodes
}

// WriteDOT writes the graph in Graphviz DOT format. Edges point from a task
// to the tasks it depends on.
func (g *Graph) WriteDOT(w io.Writer) error {
	var b strings.Builder
	b.WriteString("digraph {\n")
	b.WriteString("\tcompound = \"true\"\n")
	b.WriteString("\tnewrank = \"true\"\n")
	for _, id := range g.order {
		n := g.nodes[id]
		if len(n.Deps) == 0 {
			fmt.Fprintf(&b, "\t%q\n", id)
			continue
		}
		for _, dep := range n.Deps {
			fmt.Fprintf(&b, "\t%q -> %q\n", id, dep)
		}
	}
	b.WriteString("}\n")
	_, err := io.WriteString(w, b.String())
	return err
}
