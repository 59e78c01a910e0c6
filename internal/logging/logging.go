// Package logging builds the hclog logger shared by every turbo subsystem.
package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/hashicorp/go-hclog"
	"github.com/mattn/go-isatty"
)

// EnvLogLevel is the environment variable that sets the log level.
const EnvLogLevel = "TURBO_LOG_LEVEL"

// Options controls logger construction.
type Options struct {
	// Name is the root logger name.
	Name string
	// Verbosity is the number of -v flags given (0-3).
	Verbosity int
	// Output defaults to os.Stderr.
	Output io.Writer
	// Getenv defaults to os.Getenv.
	Getenv func(string) string
}

// ResolveLevel determines the log level from TURBO_LOG_LEVEL and the -v count.
// Verbosity flags only ever lower the threshold set by the environment.
// Without either, only warnings and errors are logged.
func ResolveLevel(envValue string, verbosity int) (hclog.Level, error) {
	level := hclog.NoLevel
	if envValue != "" {
		level = hclog.LevelFromString(envValue)
		if level == hclog.NoLevel {
			return hclog.NoLevel, fmt.Errorf("%s value %q is not a valid log level", EnvLogLevel, envValue)
		}
	}

	var fromFlags hclog.Level
	switch {
	case verbosity >= 3:
		fromFlags = hclog.Trace
	case verbosity == 2:
		fromFlags = hclog.Debug
	case verbosity == 1:
		fromFlags = hclog.Info
	}
	if fromFlags != hclog.NoLevel && (level == hclog.NoLevel || level > fromFlags) {
		level = fromFlags
	}

	if level == hclog.NoLevel {
		level = hclog.Warn
	}
	return level, nil
}

// New creates the root logger.
func New(opts Options) (hclog.Logger, error) {
	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	level, err := ResolveLevel(getenv(EnvLogLevel), opts.Verbosity)
	if err != nil {
		return nil, err
	}

	output := opts.Output
	color := hclog.ColorOff
	if output == nil {
		output = os.Stderr
		if isatty.IsTerminal(os.Stderr.Fd()) {
			color = hclog.AutoColor
		}
	}

	name := opts.Name
	if name == "" {
		name = "turbo"
	}

	return hclog.New(&hclog.LoggerOptions{
		Name:   name,
		Level:  level,
		Color:  color,
		Output: output,
	}), nil
}

// OrNull returns l, or a logger that discards everything when l is nil.
func OrNull(l hclog.Logger) hclog.Logger {
	if l == nil {
		return hclog.NewNullLogger()
	}
	return l
}
