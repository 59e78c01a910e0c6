// Package pipeline resolves the effective configuration of a task from the
// pipeline section of turbo.json.
package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DependencyKind classifies a dependsOn item.
type DependencyKind int

const (
	// SamePackageTask is a task in the same package ("build").
	SamePackageTask DependencyKind = iota
	// TopologicalTask is the same-named task in every direct workspace dependency ("^build").
	TopologicalTask
	// EnvVar is an environment variable whose value is hashed ("$NODE_ENV").
	EnvVar
)

func (k DependencyKind) String() string {
	switch k {
	case TopologicalTask:
		return "topological"
	case EnvVar:
		return "env"
	default:
		return "task"
	}
}

const (
	topologicalPrefix = "^"
	envPrefix         = "$"
)

// DependencySpec is one parsed dependsOn item.
type DependencySpec struct {
	Kind DependencyKind
	// Name is the task name or environment variable name, without prefix.
	Name string
}

// ParseDependency classifies a raw dependsOn item.
func ParseDependency(raw string) (DependencySpec, error) {
	kind := SamePackageTask
	name := raw
	switch {
	case strings.HasPrefix(raw, topologicalPrefix):
		kind, name = TopologicalTask, raw[len(topologicalPrefix):]
	case strings.HasPrefix(raw, envPrefix):
		kind, name = EnvVar, raw[len(envPrefix):]
	}
	if name == "" {
		return DependencySpec{}, fmt.Errorf("empty dependency %q", raw)
	}
	if kind != EnvVar && strings.ContainsAny(name, "^$#") {
		return DependencySpec{}, fmt.Errorf("invalid task dependency %q", raw)
	}
	return DependencySpec{Kind: kind, Name: name}, nil
}

// String returns the dependency in its turbo.json form.
func (d DependencySpec) String() string {
	switch d.Kind {
	case TopologicalTask:
		return topologicalPrefix + d.Name
	case EnvVar:
		return envPrefix + d.Name
	default:
		return d.Name
	}
}

// MarshalJSON encodes the dependency in its turbo.json form.
func (d DependencySpec) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// MarshalYAML encodes the dependency in its turbo.json form.
func (d DependencySpec) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}
