package run

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/AlexRogalskiy/turborepo/internal/cache"
	"github.com/AlexRogalskiy/turborepo/internal/client"
	"github.com/AlexRogalskiy/turborepo/internal/config"
	turboerrors "github.com/AlexRogalskiy/turborepo/internal/errors"
	"github.com/AlexRogalskiy/turborepo/internal/hashindex"
	"github.com/AlexRogalskiy/turborepo/internal/hashing"
	"github.com/AlexRogalskiy/turborepo/internal/logging"
	"github.com/AlexRogalskiy/turborepo/internal/metrics"
	"github.com/AlexRogalskiy/turborepo/internal/output"
	"github.com/AlexRogalskiy/turborepo/internal/pipeline"
	"github.com/AlexRogalskiy/turborepo/internal/runner"
	"github.com/AlexRogalskiy/turborepo/internal/scm"
	"github.com/AlexRogalskiy/turborepo/internal/taskgraph"
	"github.com/AlexRogalskiy/turborepo/internal/version"
	"github.com/AlexRogalskiy/turborepo/internal/workspace"
)

// Engine executes runs. The zero value is not usable; Out is required.
type Engine struct {
	Out    *output.Writer
	Logger hclog.Logger
	// Executor runs task commands. Defaults to a runner.ShellExecutor.
	Executor runner.Executor
	// Transport overrides the remote cache client built from Settings.
	Transport cache.Transport
	// Settings overrides the settings loaded for the repository.
	Settings *config.Settings
	// Environ is the environment snapshot of the run. Defaults to os.Environ().
	Environ []string
}

// workspaceState is everything a run needs before touching the caches.
type workspaceState struct {
	root     string
	cfg      *config.TurboJSON
	settings *config.Settings
	pkgs     *workspace.Graph
	graph    *taskgraph.Graph
	changed  []string
}

func (e *Engine) logger() hclog.Logger {
	return logging.OrNull(e.Logger)
}

func (e *Engine) environ() []string {
	if e.Environ == nil {
		return os.Environ()
	}
	return e.Environ
}

// Run executes the requested tasks. Dry runs and graph output return a nil
// result. A canceled run returns its partial result with the context error.
func (e *Engine) Run(ctx context.Context, opts Options) (*runner.RunResult, error) {
	if len(opts.Tasks) == 0 {
		return nil, turboerrors.Config("at least one task is required")
	}
	if opts.Concurrency == 0 {
		opts.Concurrency = runner.DefaultConcurrency()
	}
	if err := runner.ValidateConcurrency(opts.Concurrency); err != nil {
		return nil, turboerrors.WrapKind(turboerrors.KindConfig, err, "")
	}

	ws, err := e.load(ctx, opts)
	if err != nil {
		return nil, err
	}

	if opts.GraphSet {
		return nil, e.writeGraph(ws.graph, ws.root, opts.GraphFile)
	}

	rc, err := hashing.NewRunContext(ws.root, ws.cfg.GlobalDependencies, e.environ())
	if err != nil {
		return nil, turboerrors.Wrap(err, fmt.Sprintf("computing global hash: %v", err))
	}

	cacheDir := opts.CacheDir
	if cacheDir == "" {
		cacheDir = ws.settings.CacheDir
	}
	if !filepath.IsAbs(cacheDir) {
		cacheDir = filepath.Join(ws.root, cacheDir)
	}

	index, err := hashindex.Open(filepath.Join(cacheDir, hashindex.FileName))
	if err != nil {
		e.logger().Warn("file hash index unavailable, hashing every file", "error", err)
		index = nil
	} else {
		defer index.Close()
	}

	hasher := hashing.NewPackageHasher(ws.root, ws.pkgs, hashing.PackageHasherOptions{
		Index:   index,
		Changed: ws.changed,
		Logger:  e.logger().Named("hash"),
	})
	engine := hashing.NewEngine(rc, hasher)

	if opts.DryRun != DryRunNone {
		report, err := buildDryRun(ctx, ws.graph, engine, rc)
		if err != nil {
			return nil, err
		}
		return nil, renderDryRun(e.Out, opts.DryRun, report)
	}

	registry, m := metrics.NewRegistry()
	manager, err := e.cacheManager(ws, cacheDir, opts, m)
	if err != nil {
		return nil, err
	}

	executor := e.Executor
	if executor == nil {
		executor = &runner.ShellExecutor{Root: ws.root}
	}
	tr := &runner.TaskRunner{
		Root:     ws.root,
		Graph:    ws.graph,
		Hasher:   engine,
		Cache:    manager,
		Executor: executor,
		Out:      e.Out,
		LogMode:  opts.OutputLogs,
		Force:    opts.Force,
		Env:      e.environ(),
		Logger:   e.logger().Named("task"),
	}
	if tr.LogMode == "" {
		tr.LogMode = runner.LogsFull
	}

	sched := runner.New(runner.RunOptions{
		Concurrency: opts.Concurrency,
		Continue:    opts.Continue,
		Logger:      e.logger().Named("scheduler"),
	})
	result := sched.Run(ctx, ws.graph, tr.Run)

	m.RecordRun(result)
	printSummary(e.Out, result, tr.LogMode)

	if opts.MetricsFile != "" {
		if err := metrics.WriteFile(opts.MetricsFile, registry); err != nil {
			e.logger().Warn("could not write metrics file", "path", opts.MetricsFile, "error", err)
		}
	}

	if result.Canceled {
		return result, fmt.Errorf("run canceled: %w", ctx.Err())
	}
	return result, result.Err()
}

// load resolves the repository, its configuration and the task graph.
func (e *Engine) load(ctx context.Context, opts Options) (*workspaceState, error) {
	cwd := opts.Cwd
	if cwd == "" {
		cwd = "."
	}
	root, err := workspace.FindRootFrom(cwd)
	if err != nil {
		return nil, turboerrors.WrapKind(turboerrors.KindEnvironment, err, "")
	}
	e.logger().Debug("found repository root", "root", root)

	cfg, warnings, err := config.ReadTurboConfig(root)
	for _, w := range warnings {
		e.Out.Warning("%s", w)
	}
	if err != nil {
		return nil, turboerrors.WrapKind(turboerrors.KindConfig, err, "")
	}

	settings, err := e.settings(root, opts)
	if err != nil {
		return nil, turboerrors.WrapKind(turboerrors.KindConfig, err, "")
	}

	pkgs, err := workspace.Discover(root)
	if err != nil {
		return nil, turboerrors.WrapKind(turboerrors.KindConfig, err, "")
	}
	e.logger().Debug("discovered packages", "count", len(pkgs.Names()))

	p, err := pipeline.New(cfg)
	if err != nil {
		return nil, err
	}

	since := opts.Since
	if opts.SinceBaseBranch {
		since = cfg.BaseBranch
	}
	var changed []string
	if since != "" {
		changed, err = scm.ChangedFiles(ctx, root, since)
		if err != nil {
			return nil, err
		}
		e.logger().Debug("changed files", "since", since, "count", len(changed))
	}

	scope, err := resolveScope(pkgs, opts.Scope, changed, cfg.GlobalDependencies, opts.IncludeDependents)
	if err != nil {
		return nil, err
	}
	if scope != nil {
		e.logger().Debug("package scope", "packages", strings.Join(scope, ","))
	}

	g, err := taskgraph.Build(taskgraph.Options{
		Tasks:           opts.Tasks,
		Packages:        scope,
		PassThroughArgs: opts.PassThroughArgs,
		Warn:            func(msg string) { e.Out.Warning("%s", msg) },
	}, pkgs, p)
	if err != nil {
		return nil, err
	}

	return &workspaceState{
		root:     root,
		cfg:      cfg,
		settings: settings,
		pkgs:     pkgs,
		graph:    g,
		changed:  changed,
	}, nil
}

// settings resolves the run settings, with flags applied last.
func (e *Engine) settings(root string, opts Options) (*config.Settings, error) {
	var s config.Settings
	if e.Settings != nil {
		s = *e.Settings
	} else {
		loaded, err := config.LoadSettings(root)
		if err != nil {
			return nil, err
		}
		s = *loaded
	}
	if opts.Token != "" {
		s.Token = opts.Token
	}
	if opts.Team != "" {
		s.TeamSlug = opts.Team
	}
	if opts.API != "" {
		s.APIURL = opts.API
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (e *Engine) writeGraph(g *taskgraph.Graph, root, file string) error {
	if file == "" {
		return g.WriteDOT(e.Out.Out())
	}
	if !filepath.IsAbs(file) {
		file = filepath.Join(root, file)
	}
	f, err := os.Create(file)
	if err != nil {
		return fmt.Errorf("creating graph file: %w", err)
	}
	if err := g.WriteDOT(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	e.Out.Info("Generated task graph in %s", file)
	return nil
}

func (e *Engine) cacheManager(ws *workspaceState, cacheDir string, opts Options, m *metrics.Metrics) (*cache.Manager, error) {
	teamID := ws.settings.TeamID
	if teamID == "" {
		teamID = ws.cfg.TeamID()
	}

	var signer *cache.Signer
	if sig := ws.cfg.Signature(); sig != nil && sig.Enabled {
		getenv := envLookup(e.environ())
		key := sig.ResolveKey(getenv)
		if key == "" {
			return nil, turboerrors.Config("remote cache signature is enabled but no signing key is configured")
		}
		signer = cache.NewSigner(key, teamID)
	}

	transport := e.Transport
	if transport == nil && ws.settings.IsLoggedIn() {
		transport = client.New(ws.settings.APIURL, client.Options{
			Token:    ws.settings.Token,
			TeamID:   teamID,
			TeamSlug: ws.settings.TeamSlug,
			Timeout:  time.Duration(ws.settings.RemoteCacheTimeout) * time.Second,
			RetryMax: client.DefaultRetryMax,
			Version:  version.String(),
			Logger:   e.logger().Named("client"),
		})
	}

	var remote *cache.RemoteStore
	if transport != nil {
		remote = cache.NewRemoteStore(transport, cache.RemoteOptions{
			Signer:   signer,
			Logger:   e.logger().Named("remote"),
			Observer: m,
		})
	} else if opts.RemoteOnly {
		e.Out.Warning("--remote-only given but no remote cache is configured; caching is disabled")
	}

	return cache.NewManager(cache.Options{
		Local:      cache.NewLocalStore(cacheDir),
		Remote:     remote,
		SkipReads:  opts.Force,
		SkipWrites: opts.NoCache,
		RemoteOnly: opts.RemoteOnly,
		Logger:     e.logger().Named("cache"),
		Observer:   m,
	}), nil
}

func envLookup(environ []string) func(string) string {
	env := make(map[string]string, len(environ))
	for _, kv := range environ {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	return func(name string) string { return env[name] }
}

func isLockfile(name string) bool {
	for _, l := range hashing.Lockfiles {
		if name == l {
			return true
		}
	}
	return false
}
