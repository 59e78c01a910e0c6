package runner

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AlexRogalskiy/turborepo/internal/cache"
	"github.com/AlexRogalskiy/turborepo/internal/taskgraph"
)

// Status is the state of a task in a run.
type Status int

const (
	StatusPending Status = iota
	StatusRunning
	StatusSucceeded
	StatusFailed
	StatusCached
)

func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	case StatusCached:
		return "cached"
	default:
		return "pending"
	}
}

// Done reports whether the status is final.
func (s Status) Done() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusCached
}

// ErrDependencyFailed marks tasks that were not run because a dependency failed.
var ErrDependencyFailed = errors.New("dependency failed")

// TaskResult is the outcome of one task.
type TaskResult struct {
	ID          string
	Package     string
	Task        string
	Status      Status
	Fingerprint string
	Start       time.Time
	Duration    time.Duration
	ExitCode    int
	// CacheSource is set for cached tasks.
	CacheSource cache.Source
	// Output is the captured or replayed task log.
	Output []byte
	Err    error
}

// RunResult is the outcome of a run. Tasks are listed in graph order.
type RunResult struct {
	ID       string
	Start    time.Time
	Duration time.Duration
	// Canceled is set when the run stopped before every task finished.
	Canceled bool
	Tasks    []*TaskResult

	mu   sync.Mutex
	byID map[string]*TaskResult
}

func newRunResult(g *taskgraph.Graph) *RunResult {
	r := &RunResult{
		ID:    uuid.NewString(),
		Start: time.Now(),
		byID:  make(map[string]*TaskResult, g.Len()),
	}
	for _, n := range g.Nodes() {
		tr := &TaskResult{ID: n.ID, Package: n.Package.Name, Task: n.Task}
		r.Tasks = append(r.Tasks, tr)
		r.byID[n.ID] = tr
	}
	return r
}

// Get returns the result of a task.
func (r *RunResult) Get(id string) (*TaskResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tr, ok := r.byID[id]
	return tr, ok
}

// Status returns the current status of a task.
func (r *RunResult) Status(id string) Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	if tr, ok := r.byID[id]; ok {
		return tr.Status
	}
	return StatusPending
}

func (r *RunResult) setStatus(id string, s Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[id].Status = s
}

// Count returns the number of tasks with status s.
func (r *RunResult) Count(s Status) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, tr := range r.Tasks {
		if tr.Status == s {
			n++
		}
	}
	return n
}

// Failed returns the failed tasks in graph order.
func (r *RunResult) Failed() []*TaskResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	var failed []*TaskResult
	for _, tr := range r.Tasks {
		if tr.Status == StatusFailed {
			failed = append(failed, tr)
		}
	}
	return failed
}

// Err combines the errors of tasks that failed on their own. Tasks skipped
// because a dependency failed are not repeated.
func (r *RunResult) Err() error {
	var errs []error
	for _, tr := range r.Failed() {
		if tr.Err != nil && !errors.Is(tr.Err, ErrDependencyFailed) {
			errs = append(errs, tr.Err)
		}
	}
	return combineErrors(errs)
}

func combineErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	return errors.Join(errs...)
}

// FormatDuration formats a duration in a human-readable way.
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	m := int(d.Minutes())
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dm%ds", m, s)
}
