// Package errors provides structured error types and exit codes for turbo.
package errors

import (
	"errors"
	"fmt"
)

// Exit codes returned by the turbo CLI.
const (
	ExitSuccess          = 0 // Success
	ExitRuntimeError     = 1 // Runtime error (task failed, etc.)
	ExitConfigError      = 2 // Configuration error (invalid turbo.json, cycle, unknown task)
	ExitEnvironmentError = 3 // Environment error (no repository root, git unavailable, etc.)
)

// ErrorKind represents the type of error.
type ErrorKind int

const (
	KindRuntime ErrorKind = iota
	KindConfig
	KindExecution
	KindCacheIntegrity
	KindTransport
	KindEnvironment
)

func (k ErrorKind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindExecution:
		return "execution"
	case KindCacheIntegrity:
		return "cache integrity"
	case KindTransport:
		return "transport"
	case KindEnvironment:
		return "environment"
	default:
		return "runtime"
	}
}

// TurboError is the base error type for turbo.
type TurboError struct {
	Kind    ErrorKind
	Message string
	Package string // Package name if applicable
	Task    string // Task name if applicable
	Cause   error  // Underlying error
}

func (e *TurboError) Error() string {
	msg := e.Message
	if e.Cause != nil && msg == "" {
		msg = e.Cause.Error()
	}
	if e.Package != "" && e.Task != "" {
		return fmt.Sprintf("%s#%s: %s", e.Package, e.Task, msg)
	}
	if e.Package != "" {
		return fmt.Sprintf("[%s] %s", e.Package, msg)
	}
	return msg
}

func (e *TurboError) Unwrap() error {
	return e.Cause
}

// ExitCode returns the appropriate exit code for this error.
func (e *TurboError) ExitCode() int {
	switch e.Kind {
	case KindConfig:
		return ExitConfigError
	case KindEnvironment:
		return ExitEnvironmentError
	default:
		return ExitRuntimeError
	}
}

// New creates a new runtime error.
func New(message string) *TurboError {
	return &TurboError{
		Kind:    KindRuntime,
		Message: message,
	}
}

// Config creates a new configuration error.
func Config(message string) *TurboError {
	return &TurboError{
		Kind:    KindConfig,
		Message: message,
	}
}

// Configf creates a new configuration error with formatting.
func Configf(format string, args ...interface{}) *TurboError {
	return Config(fmt.Sprintf(format, args...))
}

// Environment creates a new environment error.
func Environment(message string) *TurboError {
	return &TurboError{
		Kind:    KindEnvironment,
		Message: message,
	}
}

// Environmentf creates a new environment error with formatting.
func Environmentf(format string, args ...interface{}) *TurboError {
	return Environment(fmt.Sprintf(format, args...))
}

// Execution creates an error for a task whose command exited unsuccessfully.
func Execution(pkg, task string, exitCode int, cause error) *TurboError {
	return &TurboError{
		Kind:    KindExecution,
		Package: pkg,
		Task:    task,
		Message: fmt.Sprintf("command exited (%d)", exitCode),
		Cause:   cause,
	}
}

// Transport creates an error for a failed remote cache request.
func Transport(message string, cause error) *TurboError {
	return &TurboError{
		Kind:    KindTransport,
		Message: message,
		Cause:   cause,
	}
}

// CacheIntegrity creates an error for an artifact that failed signature verification.
func CacheIntegrity(hash, reason string) *TurboError {
	return &TurboError{
		Kind:    KindCacheIntegrity,
		Message: fmt.Sprintf("artifact %s failed verification: %s", hash, reason),
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) *TurboError {
	return &TurboError{
		Kind:    KindRuntime,
		Message: message,
		Cause:   err,
	}
}

// WrapKind wraps an error with additional context and an explicit kind.
func WrapKind(kind ErrorKind, err error, message string) *TurboError {
	return &TurboError{
		Kind:    kind,
		Message: message,
		Cause:   err,
	}
}

// IsKind reports whether any error in err's chain is a TurboError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var te *TurboError
	for err != nil {
		if !errors.As(err, &te) {
			return false
		}
		if te.Kind == kind {
			return true
		}
		err = te.Cause
	}
	return false
}

// GetExitCode returns the exit code for an error.
// Joined errors report the most severe code among their members.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		code := ExitSuccess
		for _, e := range joined.Unwrap() {
			if c := GetExitCode(e); c > code {
				code = c
			}
		}
		if code == ExitSuccess {
			code = ExitRuntimeError
		}
		return code
	}
	var coded interface{ ExitCode() int }
	if errors.As(err, &coded) {
		return coded.ExitCode()
	}
	return ExitRuntimeError
}
