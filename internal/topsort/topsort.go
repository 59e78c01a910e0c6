// Package topsort provides topological sorting with cycle detection.
package topsort

import (
	"fmt"
	"sort"
	"strings"
)

// Graph represents a directed graph for topological sorting.
// The keys are node names, values are lists of dependencies (edges point to dependencies).
type Graph map[string][]string

// CycleError reports a dependency cycle. Path starts and ends with the same
// node, e.g. [a b a] for "a depends on b, b depends on a".
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("circular dependency detected: %s", strings.Join(e.Path, " -> "))
}

// Sort performs topological sort on the graph, returning nodes in dependency order.
// Dependencies appear before dependents in the result.
// Returns a *CycleError if a cycle is detected, or an error if a dependency is undefined.
//
// The nodes parameter specifies which nodes to sort. If nil, all nodes in the graph are sorted.
// When nodes is provided, only those nodes and their transitive dependencies are included.
// Traversal follows the order of nodes and of each dependency list, so callers that
// pass sorted input get a deterministic result.
func Sort(g Graph, nodes []string) ([]string, error) {
	if nodes == nil {
		nodes = make([]string, 0, len(g))
		for name := range g {
			nodes = append(nodes, name)
		}
		sort.Strings(nodes)
	}

	var result []string
	visited := make(map[string]bool)
	inStack := make(map[string]bool)
	var stack []string

	var visit func(name string) error
	visit = func(name string) error {
		if inStack[name] {
			return &CycleError{Path: cyclePath(stack, name)}
		}
		if visited[name] {
			return nil
		}

		deps, exists := g[name]
		if !exists {
			return fmt.Errorf("node %q not found in graph", name)
		}

		inStack[name] = true
		stack = append(stack, name)

		for _, dep := range deps {
			if err := visit(dep); err != nil {
				return err
			}
		}

		stack = stack[:len(stack)-1]
		visited[name] = true
		inStack[name] = false
		result = append(result, name)

		return nil
	}

	for _, name := range nodes {
		if err := visit(name); err != nil {
			return nil, err
		}
	}

	return result, nil
}

// cyclePath extracts the cycle closed by revisiting name from the DFS stack.
func cyclePath(stack []string, name string) []string {
	start := 0
	for i, n := range stack {
		if n == name {
			start = i
			break
		}
	}
	path := make([]string, 0, len(stack)-start+1)
	path = append(path, stack[start:]...)
	return append(path, name)
}

// Reverse returns the graph with every edge flipped, so values list dependents.
// Dependent lists are sorted.
func Reverse(g Graph) Graph {
	r := make(Graph, len(g))
	for name := range g {
		if _, ok := r[name]; !ok {
			r[name] = nil
		}
		for _, dep := range g[name] {
			r[dep] = append(r[dep], name)
		}
	}
	for name := range r {
		sort.Strings(r[name])
	}
	return r
}

// Closure returns the sorted set of nodes reachable from start (excluding the
// start nodes themselves unless reachable through a cycle).
func Closure(g Graph, start []string) []string {
	seen := make(map[string]bool)
	var walk func(string)
	walk = func(name string) {
		for _, next := range g[name] {
			if seen[next] {
				continue
			}
			seen[next] = true
			walk(next)
		}
	}
	for _, name := range start {
		walk(name)
	}

	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
