package cli

import (
	"fmt"
	"math"
	"runtime"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AlexRogalskiy/turborepo/internal/run"
	"github.com/AlexRogalskiy/turborepo/internal/runner"
)

const (
	// graphToStdout is the --graph value used when no file is given.
	graphToStdout = "-"
	// sinceBaseBranch is the --since value used when no ref is given. It is
	// not a valid git ref name.
	sinceBaseBranch = "<baseBranch>"
)

type runFlags struct {
	concurrency       string
	continueOnError   bool
	since             string
	scope             []string
	includeDependents bool
	dryRun            string
	graph             string
	force             bool
	noCache           bool
	remoteOnly        bool
	cwd               string
	cacheDir          string
	outputLogs        string
	metricsFile       string
	token             string
	team              string
	api               string
}

func newRunCmd(a *app) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run <task...> [flags] [-- <args>]",
		Short: "Run tasks across the workspace",
		Long: `Run one or more pipeline tasks in every package that defines them,
after the tasks they depend on. Arguments after -- are passed to every
task command and are part of its fingerprint.`,
		Example: `  turbo run build
  turbo run build test --concurrency 4
  turbo run test --scope "@acme/*" --since=origin/main
  turbo run lint --since
  turbo run build --dry-run=json
  turbo run lint -- --fix`,
		Args: func(cmd *cobra.Command, args []string) error {
			tasks, _ := splitArgs(cmd, args)
			if len(tasks) == 0 {
				return usageErrorf("at least one task is required")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			tasks, passThrough := splitArgs(cmd, args)
			opts, err := f.options(cmd, tasks, passThrough)
			if err != nil {
				return err
			}
			engine := &run.Engine{
				Out:      a.out,
				Logger:   a.logger,
				Executor: a.executor,
			}
			_, err = engine.Run(cmd.Context(), opts)
			return err
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.concurrency, "concurrency", strconv.Itoa(runner.DefaultConcurrency()),
		"maximum number of concurrent tasks, as a number or a percentage of CPUs (e.g. 50%)")
	flags.BoolVar(&f.continueOnError, "continue", false, "keep running independent tasks after a failure")
	flags.StringVar(&f.since, "since", "", "only include packages changed since this git ref (default: turbo.json baseBranch)")
	flags.Lookup("since").NoOptDefVal = sinceBaseBranch
	flags.StringArrayVar(&f.scope, "scope", nil, "restrict the run to packages matching this name glob (repeatable)")
	flags.BoolVar(&f.includeDependents, "include-dependents", true, "with --since, also include dependents of changed packages")
	flags.StringVar(&f.dryRun, "dry-run", "", "print what would run without executing (text, json or yaml)")
	flags.Lookup("dry-run").NoOptDefVal = string(run.DryRunText)
	flags.StringVar(&f.graph, "graph", "", "write the task graph in DOT format to stdout or a file")
	flags.Lookup("graph").NoOptDefVal = graphToStdout
	flags.BoolVar(&f.force, "force", false, "ignore existing cache entries")
	flags.BoolVar(&f.noCache, "no-cache", false, "do not write results to the cache")
	flags.BoolVar(&f.remoteOnly, "remote-only", false, "skip the local cache")
	flags.StringVar(&f.cwd, "cwd", ".", "directory to start looking for the repository root from")
	flags.StringVar(&f.cacheDir, "cache-dir", "", "local cache directory (default node_modules/.cache/turbo)")
	flags.StringVar(&f.outputLogs, "output-logs", string(runner.LogsFull), "task log output: full, hash-only, new-only or none")
	flags.StringVar(&f.metricsFile, "metrics-file", "", "write run metrics in Prometheus text format to this file")
	flags.StringVar(&f.token, "token", "", "remote cache API token")
	flags.StringVar(&f.team, "team", "", "remote cache team slug")
	flags.StringVar(&f.api, "api", "", "remote cache API URL")
	return cmd
}

// splitArgs separates task names from the arguments after "--".
func splitArgs(cmd *cobra.Command, args []string) (tasks, passThrough []string) {
	dash := cmd.ArgsLenAtDash()
	if dash < 0 {
		return args, nil
	}
	return args[:dash], args[dash:]
}

func (f *runFlags) options(cmd *cobra.Command, tasks, passThrough []string) (run.Options, error) {
	opts := run.DefaultOptions()
	opts.Tasks = tasks
	opts.PassThroughArgs = passThrough

	concurrency, err := parseConcurrency(f.concurrency, runtime.NumCPU())
	if err != nil {
		return opts, usageErrorf("invalid --concurrency: %v", err)
	}
	opts.Concurrency = concurrency

	dryRun, err := run.ParseDryRunFormat(f.dryRun)
	if err != nil {
		return opts, usageErrorf("%v", err)
	}
	opts.DryRun = dryRun

	logs, err := runner.ParseLogMode(f.outputLogs)
	if err != nil {
		return opts, usageErrorf("%v", err)
	}
	opts.OutputLogs = logs

	if cmd.Flags().Changed("graph") {
		if dryRun != run.DryRunNone {
			return opts, usageErrorf("--graph and --dry-run cannot be combined")
		}
		opts.GraphSet = true
		if f.graph != graphToStdout {
			opts.GraphFile = f.graph
		}
	}

	opts.Cwd = f.cwd
	opts.Continue = f.continueOnError
	if f.since == sinceBaseBranch {
		opts.SinceBaseBranch = true
	} else {
		opts.Since = f.since
	}
	opts.Scope = f.scope
	opts.IncludeDependents = f.includeDependents
	opts.Force = f.force
	opts.NoCache = f.noCache
	opts.RemoteOnly = f.remoteOnly
	opts.CacheDir = f.cacheDir
	opts.MetricsFile = f.metricsFile
	opts.Token = f.token
	opts.Team = f.team
	opts.API = f.api
	return opts, nil
}

// parseConcurrency accepts a task count or a percentage of cpus. A
// percentage never resolves below one.
func parseConcurrency(s string, cpus int) (int, error) {
	s = strings.TrimSpace(s)
	if pct, ok := strings.CutSuffix(s, "%"); ok {
		p, err := strconv.ParseFloat(pct, 64)
		if err != nil || p <= 0 {
			return 0, fmt.Errorf("%q is not a positive percentage", s)
		}
		return max(1, int(math.Floor(float64(cpus)*p/100))), nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%q is not a positive integer or percentage", s)
	}
	return n, nil
}
