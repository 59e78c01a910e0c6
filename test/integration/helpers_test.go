// Package integration contains integration tests for turbo.
package integration

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"

	"github.com/AlexRogalskiy/turborepo/internal/config"
	"github.com/AlexRogalskiy/turborepo/internal/output"
	"github.com/AlexRogalskiy/turborepo/internal/run"
	"github.com/AlexRogalskiy/turborepo/internal/testing/mocks"
)

var (
	fixturesDirOnce sync.Once
	fixturesDirPath string
)

// fixturesDir returns the path to the test fixtures directory.
func fixturesDir() string {
	fixturesDirOnce.Do(func() {
		_, filename, _, _ := runtime.Caller(0)
		fixturesDirPath = filepath.Join(filepath.Dir(filename), "..", "fixtures")
	})
	return fixturesDirPath
}

// copyFixture copies a fixture into a temporary directory so runs can
// write logs and outputs.
func copyFixture(t *testing.T, name string) string {
	t.Helper()
	dst := filepath.Join(t.TempDir(), name)
	if err := os.CopyFS(dst, os.DirFS(filepath.Join(fixturesDir(), name))); err != nil {
		t.Fatalf("failed to copy fixture %s: %v", name, err)
	}
	return dst
}

type testEngine struct {
	*run.Engine
	exec   *mocks.Executor
	stdout *bytes.Buffer
	stderr *bytes.Buffer
}

func newTestEngine(environ ...string) *testEngine {
	var stdout, stderr bytes.Buffer
	exec := mocks.NewExecutor()
	return &testEngine{
		Engine: &run.Engine{
			Out:      output.NewWithWriters(&stdout, &stderr, false),
			Executor: exec,
			Settings: config.DefaultSettings(),
			Environ:  append([]string{}, environ...),
		},
		exec:   exec,
		stdout: &stdout,
		stderr: &stderr,
	}
}

func options(root string, tasks ...string) run.Options {
	opts := run.DefaultOptions()
	opts.Cwd = root
	opts.Tasks = tasks
	return opts
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func indexOf(items []string, item string) int {
	for i, s := range items {
		if s == item {
			return i
		}
	}
	return -1
}
