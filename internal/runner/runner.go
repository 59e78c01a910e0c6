// Package runner executes a task graph with bounded parallelism.
package runner

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/AlexRogalskiy/turborepo/internal/cache"
	"github.com/AlexRogalskiy/turborepo/internal/logging"
	"github.com/AlexRogalskiy/turborepo/internal/taskgraph"
)

const (
	// minWorkers keeps at least one worker even if runtime.NumCPU reports 0.
	minWorkers = 1

	// MaxConcurrency caps --concurrency. Tasks are subprocesses; more workers
	// than this only add scheduling overhead.
	MaxConcurrency = 256
)

// DefaultConcurrency returns the default number of workers.
func DefaultConcurrency() int {
	return max(minWorkers, runtime.NumCPU())
}

// ValidateConcurrency checks a --concurrency value.
func ValidateConcurrency(n int) error {
	if n < minWorkers || n > MaxConcurrency {
		return fmt.Errorf("concurrency %d out of range [%d-%d]", n, minWorkers, MaxConcurrency)
	}
	return nil
}

// Outcome is what a TaskFunc reports for one node.
type Outcome struct {
	// Status must be StatusSucceeded, StatusCached or StatusFailed.
	Status      Status
	Fingerprint string
	ExitCode    int
	CacheSource cache.Source
	Output      []byte
	Err         error
}

// TaskFunc runs one node. It is called at most once per node, only after
// every predecessor has succeeded or been restored from cache.
type TaskFunc func(ctx context.Context, n *taskgraph.Node) Outcome

// RunOptions configures a Scheduler.
type RunOptions struct {
	// Concurrency is the number of workers. Zero means DefaultConcurrency.
	Concurrency int
	// Continue keeps running independent tasks after a failure.
	Continue bool
	Logger   hclog.Logger
}

// Scheduler dispatches graph nodes to a worker pool as their dependencies
// complete.
type Scheduler struct {
	opts   RunOptions
	logger hclog.Logger
}

// New creates a scheduler.
func New(opts RunOptions) *Scheduler {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency()
	}
	return &Scheduler{opts: opts, logger: logging.OrNull(opts.Logger)}
}

type completion struct {
	id      string
	start   time.Time
	end     time.Time
	outcome Outcome
}

// Run executes every node of g with fn and returns the result of each.
//
// When a node fails, its transitive dependents are marked failed without
// running. Without Continue no further nodes are dispatched; nodes already
// running are allowed to finish. Canceling ctx stops dispatch the same way,
// leaving undispatched nodes pending. fn never sees the cancellation, so a
// dispatched task runs to completion and its result is recorded.
func (s *Scheduler) Run(ctx context.Context, g *taskgraph.Graph, fn TaskFunc) *RunResult {
	result := newRunResult(g)
	st := &runState{
		g:         g,
		result:    result,
		remaining: make(map[string]int, g.Len()),
	}
	for _, n := range g.Nodes() {
		st.remaining[n.ID] = len(n.Deps)
		if len(n.Deps) == 0 {
			st.ready = append(st.ready, n.ID)
		}
	}

	workers := min(s.opts.Concurrency, max(g.Len(), minWorkers))
	jobs := make(chan string)
	done := make(chan completion)

	taskCtx := context.WithoutCancel(ctx)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				n, _ := g.Get(id)
				start := time.Now()
				out := fn(taskCtx, n)
				done <- completion{id: id, start: start, end: time.Now(), outcome: out}
			}
		}()
	}

	ctxDone := ctx.Done()
	stopped := false
	inFlight := 0
	for {
		if ctx.Err() != nil {
			stopped = true
		}
		for !stopped && inFlight < workers && len(st.ready) > 0 {
			id := st.ready[0]
			st.ready = st.ready[1:]
			result.setStatus(id, StatusRunning)
			jobs <- id
			inFlight++
		}
		if inFlight == 0 {
			break
		}

		select {
		case c := <-done:
			inFlight--
			if failed := st.complete(c); failed && !s.opts.Continue {
				if !stopped {
					s.logger.Debug("stopping dispatch after failure", "task", c.id)
				}
				stopped = true
			}
		case <-ctxDone:
			ctxDone = nil
			stopped = true
			s.logger.Debug("run canceled, waiting for running tasks", "running", inFlight)
		}
	}
	close(jobs)
	wg.Wait()

	if ctx.Err() != nil {
		for _, tr := range result.Tasks {
			if !tr.Status.Done() {
				result.Canceled = true
				break
			}
		}
	}
	result.Duration = time.Since(result.Start)
	return result
}

// runState is owned by the dispatch loop.
type runState struct {
	g         *taskgraph.Graph
	result    *RunResult
	remaining map[string]int
	ready     []string
}

// complete records a finished node and releases or fails its dependents. It
// reports whether the node failed.
func (st *runState) complete(c completion) bool {
	out := c.outcome
	st.result.mu.Lock()
	tr := st.result.byID[c.id]
	tr.Start = c.start
	tr.Duration = c.end.Sub(c.start)
	tr.Fingerprint = out.Fingerprint
	tr.ExitCode = out.ExitCode
	tr.CacheSource = out.CacheSource
	tr.Output = out.Output
	tr.Err = out.Err
	status := out.Status
	if status != StatusSucceeded && status != StatusCached {
		status = StatusFailed
	}
	tr.Status = status
	st.result.mu.Unlock()

	n, _ := st.g.Get(c.id)
	if status == StatusFailed {
		st.failDependents(n)
		return true
	}

	for _, dep := range n.Dependents {
		st.remaining[dep]--
		if st.remaining[dep] == 0 && st.result.Status(dep) == StatusPending {
			st.ready = append(st.ready, dep)
		}
	}
	return false
}

func (st *runState) failDependents(n *taskgraph.Node) {
	queue := append([]string(nil), n.Dependents...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		st.result.mu.Lock()
		tr := st.result.byID[id]
		if tr.Status != StatusPending {
			st.result.mu.Unlock()
			continue
		}
		tr.Status = StatusFailed
		tr.Err = fmt.Errorf("%w: %s", ErrDependencyFailed, n.ID)
		st.result.mu.Unlock()

		dep, _ := st.g.Get(id)
		queue = append(queue, dep.Dependents...)
	}
}
