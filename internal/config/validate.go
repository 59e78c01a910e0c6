package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// WildcardTask is the pipeline key that applies to every task.
const WildcardTask = "*"

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks a pipeline document for semantic errors the schema cannot express.
// Pipeline keys are checked in sorted order so the reported error is stable.
func Validate(cfg *TurboJSON) error {
	if err := validateGlobalDependencies(cfg.GlobalDependencies); err != nil {
		return err
	}

	keys := make([]string, 0, len(cfg.Pipeline))
	for key := range cfg.Pipeline {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if err := ValidatePipelineKey(key); err != nil {
			return err
		}
		if err := validatePipelineEntry(key, cfg.Pipeline[key]); err != nil {
			return err
		}
	}

	return validateSignature(cfg.Signature())
}

// ValidatePipelineKey checks a pipeline key: "task", "package#task" or "*".
func ValidatePipelineKey(key string) error {
	field := fmt.Sprintf("pipeline.%s", key)
	if key == "" {
		return &ValidationError{Field: "pipeline", Message: "task name must not be empty"}
	}
	if key == WildcardTask {
		return nil
	}
	pkg, task, hasPkg := strings.Cut(key, "#")
	if !hasPkg {
		return nil
	}
	if pkg == "" || task == "" {
		return &ValidationError{Field: field, Message: `must be of the form "package#task"`}
	}
	if strings.Contains(task, "#") {
		return &ValidationError{Field: field, Message: `must contain at most one "#"`}
	}
	if task == WildcardTask {
		return &ValidationError{Field: field, Message: "package overrides must name a task"}
	}
	return nil
}

func validatePipelineEntry(key string, entry PipelineJSON) error {
	for i, dep := range entry.DependsOn {
		if err := ValidateDependency(dep); err != nil {
			return &ValidationError{
				Field:   fmt.Sprintf("pipeline.%s.dependsOn[%d]", key, i),
				Message: err.Error(),
			}
		}
	}
	for i, pattern := range entry.Outputs {
		if !doublestar.ValidatePattern(pattern) {
			return &ValidationError{
				Field:   fmt.Sprintf("pipeline.%s.outputs[%d]", key, i),
				Message: fmt.Sprintf("invalid glob pattern %q", pattern),
			}
		}
	}
	return nil
}

// ValidateDependency checks one dependsOn item: "task", "^task" or "$ENV".
func ValidateDependency(dep string) error {
	name := dep
	switch {
	case strings.HasPrefix(dep, "^"):
		name = dep[1:]
	case strings.HasPrefix(dep, "$"):
		name = dep[1:]
		if name == "" {
			return fmt.Errorf("environment variable name must not be empty")
		}
		if strings.ContainsAny(name, "=$^# ") {
			return fmt.Errorf("invalid environment variable name %q", name)
		}
		return nil
	}
	if name == "" {
		return fmt.Errorf("task name must not be empty")
	}
	if strings.ContainsAny(name, "^$#") {
		return fmt.Errorf("invalid task reference %q", dep)
	}
	return nil
}

func validateGlobalDependencies(deps []string) error {
	for i, dep := range deps {
		field := fmt.Sprintf("globalDependencies[%d]", i)
		if strings.HasPrefix(dep, "$") {
			if len(dep) == 1 {
				return &ValidationError{Field: field, Message: "environment variable name must not be empty"}
			}
			continue
		}
		if !doublestar.ValidatePattern(dep) {
			return &ValidationError{Field: field, Message: fmt.Sprintf("invalid glob pattern %q", dep)}
		}
	}
	return nil
}

func validateSignature(sig *SignatureJSON) error {
	if sig == nil || !sig.Enabled {
		return nil
	}
	if sig.Key == "" && sig.KeyEnv == "" {
		return &ValidationError{
			Field:   "remoteCache.signature",
			Message: `signing is enabled but neither "key" nor "keyEnv" is set`,
		}
	}
	return nil
}
