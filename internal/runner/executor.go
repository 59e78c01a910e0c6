package runner

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// ExecRequest describes one task command to run.
type ExecRequest struct {
	TaskID  string
	Dir     string
	Command string
	// Env is the full environment of the command. Nil inherits the current process environment.
	Env []string
	// Output receives combined stdout and stderr.
	Output io.Writer
}

// Executor runs task commands.
type Executor interface {
	// Execute runs the command and returns its exit code. The error is
	// non-nil only when the command could not be run at all.
	Execute(ctx context.Context, req ExecRequest) (int, error)
}

// ShellExecutor runs commands through the platform shell, with the
// package's and the repository's node_modules/.bin on PATH.
type ShellExecutor struct {
	// Root is the repository root.
	Root string
}

// Execute implements Executor.
func (e ShellExecutor) Execute(ctx context.Context, req ExecRequest) (int, error) {
	cmd := buildShellCommand(ctx, req.Command)
	cmd.Dir = req.Dir
	cmd.Stdout = req.Output
	cmd.Stderr = req.Output

	env := req.Env
	if env == nil {
		env = os.Environ()
	}
	var binDirs []string
	binDirs = append(binDirs, filepath.Join(req.Dir, "node_modules", ".bin"))
	if e.Root != "" {
		binDirs = append(binDirs, filepath.Join(e.Root, "node_modules", ".bin"))
	}
	cmd.Env = prependPath(env, binDirs)

	err := cmd.Run()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	if err != nil {
		return -1, err
	}
	return 0, nil
}

// buildShellCommand creates a cross-platform shell command.
func buildShellCommand(ctx context.Context, cmdStr string) *exec.Cmd {
	if runtime.GOOS == "windows" {
		return exec.CommandContext(ctx, "cmd.exe", "/d", "/s", "/c", cmdStr)
	}
	return exec.CommandContext(ctx, "sh", "-c", cmdStr)
}

// prependPath returns env with dirs placed in front of PATH.
func prependPath(env []string, dirs []string) []string {
	out := make([]string, 0, len(env)+1)
	found := false
	for _, kv := range env {
		key, value, _ := strings.Cut(kv, "=")
		if strings.EqualFold(key, "PATH") && !found {
			found = true
			parts := append(append([]string(nil), dirs...), value)
			out = append(out, key+"="+strings.Join(parts, string(os.PathListSeparator)))
			continue
		}
		out = append(out, kv)
	}
	if !found {
		out = append(out, "PATH="+strings.Join(dirs, string(os.PathListSeparator)))
	}
	return out
}
