package runner

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/AlexRogalskiy/turborepo/internal/cache"
	turboerrors "github.com/AlexRogalskiy/turborepo/internal/errors"
	"github.com/AlexRogalskiy/turborepo/internal/logging"
	"github.com/AlexRogalskiy/turborepo/internal/output"
	"github.com/AlexRogalskiy/turborepo/internal/taskgraph"
)

// LogMode controls which task logs are printed.
type LogMode string

const (
	// LogsFull prints live output and replays cached logs.
	LogsFull LogMode = "full"
	// LogsHashOnly prints only the cache status line of each task.
	LogsHashOnly LogMode = "hash-only"
	// LogsNewOnly prints live output and hides cached logs.
	LogsNewOnly LogMode = "new-only"
	// LogsNone prints nothing per task.
	LogsNone LogMode = "none"
)

// ParseLogMode parses an --output-logs value.
func ParseLogMode(s string) (LogMode, error) {
	switch m := LogMode(s); m {
	case LogsFull, LogsHashOnly, LogsNewOnly, LogsNone:
		return m, nil
	case "":
		return LogsFull, nil
	default:
		return "", fmt.Errorf("invalid output logs mode %q (expected full, hash-only, new-only or none)", s)
	}
}

// Hasher fingerprints nodes.
type Hasher interface {
	Fingerprint(ctx context.Context, g *taskgraph.Graph, n *taskgraph.Node) (string, error)
}

// Cache stores task results by fingerprint.
type Cache interface {
	Lookup(ctx context.Context, fp string, cacheable bool) *cache.Hit
	Store(ctx context.Context, fp string, e *cache.Entry, cacheable bool) error
}

// TaskRunner runs a single node: fingerprint, cache lookup, then either
// restore or execute and store.
type TaskRunner struct {
	Root   string
	Graph  *taskgraph.Graph
	Hasher Hasher
	// Cache is optional; without it every task executes.
	Cache    Cache
	Executor Executor
	Out      *output.Writer
	LogMode  LogMode
	// Force marks runs that ignore existing cache entries.
	Force  bool
	Env    []string
	Logger hclog.Logger
}

func (r *TaskRunner) logger() hclog.Logger {
	return logging.OrNull(r.Logger)
}

// Run is a TaskFunc.
func (r *TaskRunner) Run(ctx context.Context, n *taskgraph.Node) Outcome {
	fp, err := r.Hasher.Fingerprint(ctx, r.Graph, n)
	if err != nil {
		err = turboerrors.Wrap(err, fmt.Sprintf("%s: computing fingerprint: %v", n.ID, err))
		r.Out.TaskFailed(n.ID, err)
		return Outcome{Status: StatusFailed, Err: err}
	}
	pkgDir := filepath.Join(r.Root, filepath.FromSlash(n.Package.Dir))

	if r.Cache != nil {
		if hit := r.Cache.Lookup(ctx, fp, n.Entry.Cache); hit != nil {
			if err := cache.Restore(pkgDir, n.Task, hit.Entry); err != nil {
				r.logger().Warn("could not restore cached outputs, executing", "task", n.ID, "error", err)
			} else {
				r.replay(n, fp, hit.Entry.Log)
				return Outcome{
					Status:      StatusCached,
					Fingerprint: fp,
					CacheSource: hit.Source,
					Output:      hit.Entry.Log,
				}
			}
		}
	}

	return r.execute(ctx, n, fp, pkgDir)
}

func (r *TaskRunner) replay(n *taskgraph.Node, fp string, log []byte) {
	switch r.LogMode {
	case LogsFull:
		r.Out.TaskCacheHit(n.ID, fp, true)
		lw := r.Out.TaskWriter(n.ID)
		lw.Write(log)
		lw.Flush()
	case LogsHashOnly:
		r.Out.TaskCacheHit(n.ID, fp, false)
	}
}

func (r *TaskRunner) execute(ctx context.Context, n *taskgraph.Node, fp, pkgDir string) Outcome {
	if r.LogMode != LogsNone {
		if r.Force || !n.Entry.Cache {
			r.Out.TaskCacheBypass(n.ID, fp)
		} else {
			r.Out.TaskCacheMiss(n.ID, fp)
		}
	}

	var buf bytes.Buffer
	var w io.Writer = &buf
	var lw *output.LineWriter
	if r.LogMode == LogsFull || r.LogMode == LogsNewOnly {
		lw = r.Out.TaskWriter(n.ID)
		w = io.MultiWriter(&buf, lw)
	}

	start := time.Now()
	code, err := r.Executor.Execute(ctx, ExecRequest{
		TaskID:  n.ID,
		Dir:     pkgDir,
		Command: n.Command,
		Env:     r.Env,
		Output:  w,
	})
	if lw != nil {
		lw.Flush()
	}
	duration := time.Since(start)
	log := buf.Bytes()

	if werr := cache.WriteLog(pkgDir, n.Task, log); werr != nil {
		r.logger().Warn("could not write task log", "task", n.ID, "error", werr)
	}

	if err != nil || code != 0 {
		if err == nil {
			err = fmt.Errorf("exit status %d", code)
		}
		terr := turboerrors.Execution(n.Package.Name, n.Task, code, err)
		r.Out.TaskFailed(n.ID, terr)
		return Outcome{Status: StatusFailed, Fingerprint: fp, ExitCode: code, Output: log, Err: terr}
	}

	if r.Cache != nil {
		entry := &cache.Entry{Log: log, Meta: cache.Meta{Duration: duration}}
		if n.Entry.Cache {
			files, err := cache.CollectOutputs(pkgDir, n.Entry.Outputs)
			if err != nil {
				r.logger().Warn("could not collect outputs, not caching", "task", n.ID, "error", err)
				return Outcome{Status: StatusSucceeded, Fingerprint: fp, Output: log}
			}
			entry.Files = files
		}
		if err := r.Cache.Store(ctx, fp, entry, n.Entry.Cache); err != nil {
			r.logger().Warn("could not store cache entry", "task", n.ID, "error", err)
		}
	}

	return Outcome{Status: StatusSucceeded, Fingerprint: fp, Output: log}
}
