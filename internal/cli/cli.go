// Package cli provides the turbo command-line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattn/go-isatty"

	turboerrors "github.com/AlexRogalskiy/turborepo/internal/errors"
	"github.com/AlexRogalskiy/turborepo/internal/output"
)

// Streams are the outputs of one invocation.
type Streams struct {
	Out   io.Writer
	Err   io.Writer
	Color bool
}

// usageError is a malformed command line. It exits like a configuration error.
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }
func (e *usageError) ExitCode() int { return turboerrors.ExitConfigError }

func usageErrorf(format string, args ...interface{}) error {
	return &usageError{err: fmt.Errorf(format, args...)}
}

// Run executes the CLI with the given arguments and returns an exit code.
// An interrupt stops dispatching new tasks; tasks already started run to
// completion and their results are cached.
func Run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fd := os.Stdout.Fd()
	return Execute(ctx, args, Streams{
		Out:   os.Stdout,
		Err:   os.Stderr,
		Color: isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd),
	})
}

// Execute runs the CLI against explicit streams.
func Execute(ctx context.Context, args []string, s Streams) int {
	out := output.NewWithWriters(s.Out, s.Err, s.Color)
	root := newRootCmd(&app{out: out, streams: s})
	root.SetArgs(args)
	root.SetOut(s.Out)
	root.SetErr(s.Err)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return turboerrors.ExitSuccess
	}

	var uerr *usageError
	switch {
	case errors.As(err, &uerr):
		out.ErrorPrefix("%v", err)
		out.Errorln("Run 'turbo --help' for usage.")
	case errors.Is(err, context.Canceled):
		out.Errorln("")
		out.ErrorPrefix("run canceled")
	default:
		out.ErrorPrefix("%v", err)
	}
	return turboerrors.GetExitCode(err)
}
