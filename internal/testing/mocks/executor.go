// Package mocks provides shared test doubles for turbo packages.
package mocks

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AlexRogalskiy/turborepo/internal/runner"
)

// ExecResult scripts the behavior of one task.
type ExecResult struct {
	ExitCode int
	Output   string
	Err      error
	// Delay holds the task before it completes, unless ctx is canceled first.
	Delay time.Duration
	// Files are written relative to the task directory before completing.
	Files map[string]string
}

// Executor implements runner.Executor for testing.
// Use NewExecutor() to create instances with a fluent builder API.
type Executor struct {
	results map[string]ExecResult

	// ExecFunc, when set, replaces scripted results.
	ExecFunc func(ctx context.Context, req runner.ExecRequest) (int, error)

	mu    sync.Mutex
	calls []runner.ExecRequest

	running    int32
	maxRunning int32
}

// NewExecutor creates an executor where every task succeeds silently.
func NewExecutor() *Executor {
	return &Executor{results: make(map[string]ExecResult)}
}

// WithResult scripts the result for a task ID ("pkg#task").
func (m *Executor) WithResult(taskID string, r ExecResult) *Executor {
	m.results[taskID] = r
	return m
}

// WithExecFunc sets the function called by Execute.
func (m *Executor) WithExecFunc(fn func(ctx context.Context, req runner.ExecRequest) (int, error)) *Executor {
	m.ExecFunc = fn
	return m
}

// Execute implements runner.Executor.
func (m *Executor) Execute(ctx context.Context, req runner.ExecRequest) (int, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	r := m.results[req.TaskID]
	m.mu.Unlock()

	n := atomic.AddInt32(&m.running, 1)
	defer atomic.AddInt32(&m.running, -1)
	for {
		cur := atomic.LoadInt32(&m.maxRunning)
		if n <= cur || atomic.CompareAndSwapInt32(&m.maxRunning, cur, n) {
			break
		}
	}

	if m.ExecFunc != nil {
		return m.ExecFunc(ctx, req)
	}

	if r.Delay > 0 {
		select {
		case <-time.After(r.Delay):
		case <-ctx.Done():
			return -1, ctx.Err()
		}
	}
	for rel, content := range r.Files {
		path := filepath.Join(req.Dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return -1, err
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return -1, err
		}
	}
	if r.Output != "" && req.Output != nil {
		io.WriteString(req.Output, r.Output)
	}
	return r.ExitCode, r.Err
}

// Test inspection methods

// Calls returns the task IDs executed, in call order.
func (m *Executor) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, len(m.calls))
	for i, c := range m.calls {
		ids[i] = c.TaskID
	}
	return ids
}

// Requests returns the recorded requests.
func (m *Executor) Requests() []runner.ExecRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]runner.ExecRequest(nil), m.calls...)
}

// CallCount returns how many times a task was executed.
func (m *Executor) CallCount(taskID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.TaskID == taskID {
			n++
		}
	}
	return n
}

// MaxConcurrent returns the highest number of simultaneous executions seen.
func (m *Executor) MaxConcurrent() int {
	return int(atomic.LoadInt32(&m.maxRunning))
}

// Reset clears execution tracking state.
func (m *Executor) Reset() {
	m.mu.Lock()
	m.calls = nil
	m.mu.Unlock()
	atomic.StoreInt32(&m.maxRunning, 0)
}
