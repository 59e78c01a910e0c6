// Package turbo provides public constants for tools that invoke the turbo
// CLI and need to interpret its result.
package turbo

// Exit codes returned by the turbo CLI.
const (
	// ExitSuccess indicates every requested task succeeded or was restored from cache.
	ExitSuccess = 0

	// ExitFailure indicates at least one task failed.
	ExitFailure = 1

	// ExitConfigError indicates an invalid pipeline, an unknown task or a dependency cycle.
	ExitConfigError = 2

	// ExitEnvError indicates an environment problem (no repository root, git unavailable, etc.).
	ExitEnvError = 3
)
