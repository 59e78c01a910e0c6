// Package run wires the package graph, pipeline, hashing, cache and
// scheduler into a single `turbo run` invocation.
package run

import (
	"fmt"

	"github.com/AlexRogalskiy/turborepo/internal/runner"
)

// DryRunFormat selects the dry run report format.
type DryRunFormat string

const (
	DryRunNone DryRunFormat = ""
	DryRunText DryRunFormat = "text"
	DryRunJSON DryRunFormat = "json"
	DryRunYAML DryRunFormat = "yaml"
)

// ParseDryRunFormat parses a --dry-run value.
func ParseDryRunFormat(s string) (DryRunFormat, error) {
	switch f := DryRunFormat(s); f {
	case DryRunNone, DryRunText, DryRunJSON, DryRunYAML:
		return f, nil
	default:
		return "", fmt.Errorf("invalid dry run format %q (expected text, json or yaml)", s)
	}
}

// Options are the parameters of one run.
type Options struct {
	// Cwd is the directory turbo was started in; the repository root is
	// found by walking up from it.
	Cwd   string
	Tasks []string
	// PassThroughArgs are appended to every task command.
	PassThroughArgs []string

	Concurrency int
	Continue    bool

	// Scope restricts the packages whose tasks are requested, by name glob.
	Scope []string
	// Since restricts the run to packages changed since a git ref.
	Since string
	// SinceBaseBranch compares against the configured baseBranch instead
	// of Since.
	SinceBaseBranch   bool
	IncludeDependents bool

	DryRun DryRunFormat
	// GraphFile, when GraphSet, receives the task graph in DOT format
	// instead of running. Empty writes to stdout.
	GraphSet  bool
	GraphFile string

	Force      bool
	NoCache    bool
	RemoteOnly bool
	// CacheDir overrides the configured cache directory.
	CacheDir string

	// Token, Team and API override the remote cache settings.
	Token string
	Team  string
	API   string

	OutputLogs  runner.LogMode
	MetricsFile string
}

// DefaultOptions returns the options of a plain `turbo run`.
func DefaultOptions() Options {
	return Options{
		Cwd:               ".",
		Concurrency:       runner.DefaultConcurrency(),
		IncludeDependents: true,
		OutputLogs:        runner.LogsFull,
	}
}
