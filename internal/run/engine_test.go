package run_test

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/AlexRogalskiy/turborepo/internal/config"
	turboerrors "github.com/AlexRogalskiy/turborepo/internal/errors"
	"github.com/AlexRogalskiy/turborepo/internal/output"
	"github.com/AlexRogalskiy/turborepo/internal/run"
	"github.com/AlexRogalskiy/turborepo/internal/runner"
	"github.com/AlexRogalskiy/turborepo/internal/testing/mocks"
)

const turboJSON = `{
  "pipeline": {
    "build": {"dependsOn": ["^build"], "outputs": ["dist/**"]},
    "test": {"dependsOn": ["build", "$CI_SHARD"], "cache": false}
  }
}`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// newRepo creates a workspace where app depends on lib.
func newRepo(t *testing.T, turbo string) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "package.json"), `{"name": "monorepo", "workspaces": ["packages/*"]}`)
	writeFile(t, filepath.Join(root, "turbo.json"), turbo)
	writeFile(t, filepath.Join(root, "packages", "lib", "package.json"),
		`{"name": "lib", "scripts": {"build": "tsc", "test": "jest"}}`)
	writeFile(t, filepath.Join(root, "packages", "lib", "src", "index.ts"), "export const x = 1\n")
	writeFile(t, filepath.Join(root, "packages", "app", "package.json"),
		`{"name": "app", "dependencies": {"lib": "*"}, "scripts": {"build": "next build", "test": "jest"}}`)
	writeFile(t, filepath.Join(root, "packages", "app", "src", "main.ts"), "import { x } from 'lib'\n")
	return root
}

type harness struct {
	engine *run.Engine
	exec   *mocks.Executor
	stdout *bytes.Buffer
	stderr *bytes.Buffer
}

func newHarness() *harness {
	var stdout, stderr bytes.Buffer
	exec := mocks.NewExecutor().
		WithResult("lib#build", mocks.ExecResult{Output: "built lib\n", Files: map[string]string{"dist/index.js": "lib"}}).
		WithResult("app#build", mocks.ExecResult{Output: "built app\n", Files: map[string]string{"dist/main.js": "app"}})
	return &harness{
		engine: &run.Engine{
			Out:      output.NewWithWriters(&stdout, &stderr, false),
			Executor: exec,
			Settings: config.DefaultSettings(),
			Environ:  []string{},
		},
		exec:   exec,
		stdout: &stdout,
		stderr: &stderr,
	}
}

func (h *harness) reset() {
	h.exec.Reset()
	h.stdout.Reset()
	h.stderr.Reset()
}

func buildOptions(root string) run.Options {
	opts := run.DefaultOptions()
	opts.Cwd = root
	opts.Tasks = []string{"build"}
	opts.Concurrency = 4
	return opts
}

func TestEngine_BuildsDependenciesFirst(t *testing.T) {
	root := newRepo(t, turboJSON)
	h := newHarness()

	result, err := h.engine.Run(context.Background(), buildOptions(root))
	require.NoError(t, err)

	assert.Equal(t, []string{"lib#build", "app#build"}, h.exec.Calls())
	assert.Equal(t, 2, result.Count(runner.StatusSucceeded))
	assert.NotEmpty(t, result.ID)
	assert.FileExists(t, filepath.Join(root, "packages", "app", "dist", "main.js"))
	assert.FileExists(t, filepath.Join(root, "packages", "lib", ".turbo", "turbo-build.log"))
	assert.Contains(t, h.stdout.String(), "2 successful, 2 total")
	assert.Contains(t, h.stdout.String(), "0 cached, 2 total")
}

func TestEngine_SecondRunIsFullyCached(t *testing.T) {
	root := newRepo(t, turboJSON)
	h := newHarness()

	first, err := h.engine.Run(context.Background(), buildOptions(root))
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(filepath.Join(root, "packages", "app", "dist")))
	h.reset()

	second, err := h.engine.Run(context.Background(), buildOptions(root))
	require.NoError(t, err)

	assert.Empty(t, h.exec.Calls())
	assert.Equal(t, 2, second.Count(runner.StatusCached))
	for _, id := range []string{"lib#build", "app#build"} {
		a, _ := first.Get(id)
		b, _ := second.Get(id)
		assert.Equal(t, a.Fingerprint, b.Fingerprint, id)
	}
	assert.FileExists(t, filepath.Join(root, "packages", "app", "dist", "main.js"))
	assert.Contains(t, h.stdout.String(), "built app")
	assert.Contains(t, h.stdout.String(), "2 cached, 2 total")
	assert.Contains(t, h.stdout.String(), ">>> FULL TURBO")
}

func TestEngine_EditInvalidatesDependents(t *testing.T) {
	root := newRepo(t, turboJSON)
	h := newHarness()

	first, err := h.engine.Run(context.Background(), buildOptions(root))
	require.NoError(t, err)
	writeFile(t, filepath.Join(root, "packages", "lib", "src", "index.ts"), "export const x = 2\n")
	h.reset()

	second, err := h.engine.Run(context.Background(), buildOptions(root))
	require.NoError(t, err)

	assert.Equal(t, []string{"lib#build", "app#build"}, h.exec.Calls())
	for _, id := range []string{"lib#build", "app#build"} {
		a, _ := first.Get(id)
		b, _ := second.Get(id)
		assert.NotEqual(t, a.Fingerprint, b.Fingerprint, id)
	}
}

func TestEngine_EditInDependentKeepsDependencyCached(t *testing.T) {
	root := newRepo(t, turboJSON)
	h := newHarness()

	_, err := h.engine.Run(context.Background(), buildOptions(root))
	require.NoError(t, err)
	writeFile(t, filepath.Join(root, "packages", "app", "src", "main.ts"), "changed\n")
	h.reset()

	result, err := h.engine.Run(context.Background(), buildOptions(root))
	require.NoError(t, err)
	assert.Equal(t, []string{"app#build"}, h.exec.Calls())
	assert.Equal(t, runner.StatusCached, result.Status("lib#build"))
}

func TestEngine_TaskFailure(t *testing.T) {
	root := newRepo(t, turboJSON)
	h := newHarness()
	h.exec.WithResult("lib#build", mocks.ExecResult{ExitCode: 2, Output: "type error\n"})

	opts := buildOptions(root)
	opts.OutputLogs = runner.LogsNone
	result, err := h.engine.Run(context.Background(), opts)
	require.Error(t, err)

	assert.Equal(t, turboerrors.ExitRuntimeError, turboerrors.GetExitCode(err))
	assert.Equal(t, runner.StatusFailed, result.Status("lib#build"))
	assert.Equal(t, runner.StatusFailed, result.Status("app#build"))
	assert.Equal(t, []string{"lib#build"}, h.exec.Calls())
	assert.Contains(t, h.stdout.String(), "type error")
	assert.Contains(t, h.stdout.String(), "2 of 2 tasks failed")
}

func TestEngine_ForceAndNoCache(t *testing.T) {
	root := newRepo(t, turboJSON)
	h := newHarness()

	opts := buildOptions(root)
	opts.NoCache = true
	_, err := h.engine.Run(context.Background(), opts)
	require.NoError(t, err)
	h.reset()

	_, err = h.engine.Run(context.Background(), buildOptions(root))
	require.NoError(t, err)
	assert.Len(t, h.exec.Calls(), 2, "--no-cache must not write entries")
	h.reset()

	opts = buildOptions(root)
	opts.Force = true
	_, err = h.engine.Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Len(t, h.exec.Calls(), 2, "--force must not read entries")
}

func TestEngine_ScopeLimitsRoots(t *testing.T) {
	root := newRepo(t, turboJSON)
	h := newHarness()

	opts := buildOptions(root)
	opts.Scope = []string{"li*"}
	result, err := h.engine.Run(context.Background(), opts)
	require.NoError(t, err)

	assert.Equal(t, []string{"lib#build"}, h.exec.Calls())
	assert.Len(t, result.Tasks, 1)
}

func TestEngine_RemoteCacheSharedAcrossMachines(t *testing.T) {
	transport := mocks.NewTransport()

	for i, wantCalls := range []int{2, 0} {
		root := newRepo(t, turboJSON)
		h := newHarness()
		h.engine.Transport = transport

		result, err := h.engine.Run(context.Background(), buildOptions(root))
		require.NoError(t, err, "run %d", i)
		assert.Len(t, h.exec.Calls(), wantCalls, "run %d", i)
		if wantCalls == 0 {
			tr, _ := result.Get("app#build")
			assert.Equal(t, "remote", string(tr.CacheSource))
		}
	}
	assert.Equal(t, 2, transport.Puts())
}

func TestEngine_SignatureRequiresKey(t *testing.T) {
	root := newRepo(t, `{
  "pipeline": {"build": {"outputs": ["dist/**"]}},
  "remoteCache": {"signature": {"enabled": true, "keyEnv": "TURBO_SIGNING_KEY"}}
}`)
	h := newHarness()

	_, err := h.engine.Run(context.Background(), buildOptions(root))
	require.Error(t, err)
	assert.Equal(t, turboerrors.ExitConfigError, turboerrors.GetExitCode(err))

	h.engine.Environ = []string{"TURBO_SIGNING_KEY=secret"}
	h.engine.Transport = mocks.NewTransport()
	_, err = h.engine.Run(context.Background(), buildOptions(root))
	require.NoError(t, err)
}

func TestEngine_ConfigErrors(t *testing.T) {
	tests := []struct {
		name  string
		turbo string
		tasks []string
	}{
		{"unknown task", turboJSON, []string{"deploy"}},
		{"cycle", `{"pipeline": {"build": {"dependsOn": ["test"]}, "test": {"dependsOn": ["build"]}}}`, []string{"build"}},
		{"invalid document", `{"pipeline": []}`, []string{"build"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := newRepo(t, tt.turbo)
			h := newHarness()
			opts := buildOptions(root)
			opts.Tasks = tt.tasks

			_, err := h.engine.Run(context.Background(), opts)
			require.Error(t, err)
			assert.Equal(t, turboerrors.ExitConfigError, turboerrors.GetExitCode(err))
			assert.Empty(t, h.exec.Calls())
		})
	}
}

func TestEngine_NoRepository(t *testing.T) {
	h := newHarness()
	opts := buildOptions(t.TempDir())
	_, err := h.engine.Run(context.Background(), opts)
	require.Error(t, err)
	assert.Equal(t, turboerrors.ExitEnvironmentError, turboerrors.GetExitCode(err))
}

func TestEngine_InvalidConcurrency(t *testing.T) {
	root := newRepo(t, turboJSON)
	opts := buildOptions(root)
	opts.Concurrency = -1
	_, err := newHarness().engine.Run(context.Background(), opts)
	require.Error(t, err)
	assert.Equal(t, turboerrors.ExitConfigError, turboerrors.GetExitCode(err))
}

func TestEngine_DryRunJSON(t *testing.T) {
	root := newRepo(t, turboJSON)
	h := newHarness()

	opts := buildOptions(root)
	opts.Tasks = []string{"test"}
	opts.DryRun = run.DryRunJSON
	result, err := h.engine.Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Nil(t, result)
	assert.Empty(t, h.exec.Calls())

	var report run.DryRunReport
	require.NoError(t, json.Unmarshal(h.stdout.Bytes(), &report))
	assert.NotEmpty(t, report.ID)
	assert.NotEmpty(t, report.GlobalHash)

	ids := make([]string, len(report.Tasks))
	byID := make(map[string]run.DryRunTask)
	for i, task := range report.Tasks {
		ids[i] = task.TaskID
		byID[task.TaskID] = task
	}
	assert.ElementsMatch(t, []string{"lib#build", "app#build", "lib#test", "app#test"}, ids)

	appTest := byID["app#test"]
	assert.Equal(t, []string{"app#build"}, appTest.Dependencies)
	assert.Equal(t, []string{"CI_SHARD"}, appTest.EnvVars)
	assert.False(t, appTest.Cache)
	assert.Equal(t, "jest", appTest.Command)
	assert.Len(t, appTest.Hash, 64)
	assert.Contains(t, byID["lib#build"].Dependents, "app#build")
	assert.Contains(t, byID["lib#build"].Dependents, "lib#test")
}

func TestEngine_DryRunMatchesRealRun(t *testing.T) {
	root := newRepo(t, turboJSON)
	h := newHarness()

	opts := buildOptions(root)
	opts.DryRun = run.DryRunYAML
	_, err := h.engine.Run(context.Background(), opts)
	require.NoError(t, err)

	var report run.DryRunReport
	require.NoError(t, yaml.Unmarshal(h.stdout.Bytes(), &report))
	h.reset()

	result, err := h.engine.Run(context.Background(), buildOptions(root))
	require.NoError(t, err)
	for _, task := range report.Tasks {
		assert.Equal(t, task.Hash, mustFingerprint(t, result, task.TaskID), task.TaskID)
	}
}

func mustFingerprint(t *testing.T, result *runner.RunResult, id string) string {
	t.Helper()
	tr, ok := result.Get(id)
	require.True(t, ok, id)
	return tr.Fingerprint
}

func TestEngine_DryRunText(t *testing.T) {
	root := newRepo(t, turboJSON)
	h := newHarness()

	opts := buildOptions(root)
	opts.DryRun = run.DryRunText
	_, err := h.engine.Run(context.Background(), opts)
	require.NoError(t, err)

	out := h.stdout.String()
	assert.Contains(t, out, "=== DRY RUN ===")
	assert.Contains(t, out, "app#build")
	assert.Contains(t, out, "Enabled")
	assert.Contains(t, out, "next build")
}

func TestEngine_GraphToStdout(t *testing.T) {
	root := newRepo(t, turboJSON)
	h := newHarness()

	opts := buildOptions(root)
	opts.GraphSet = true
	_, err := h.engine.Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Contains(t, h.stdout.String(), `"app#build" -> "lib#build"`)
	assert.Empty(t, h.exec.Calls())
}

func TestEngine_GraphToFile(t *testing.T) {
	root := newRepo(t, turboJSON)
	h := newHarness()

	opts := buildOptions(root)
	opts.GraphSet = true
	opts.GraphFile = "graph.dot"
	_, err := h.engine.Run(context.Background(), opts)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(root, "graph.dot"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "digraph")
}

func TestEngine_MetricsFile(t *testing.T) {
	root := newRepo(t, turboJSON)
	h := newHarness()

	opts := buildOptions(root)
	opts.MetricsFile = filepath.Join(t.TempDir(), "turbo.prom")
	_, err := h.engine.Run(context.Background(), opts)
	require.NoError(t, err)

	data, err := os.ReadFile(opts.MetricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `turbo_task_runs_total{status="succeeded"} 2`)
}

func TestEngine_Canceled(t *testing.T) {
	root := newRepo(t, turboJSON)
	h := newHarness()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result, err := h.engine.Run(ctx, buildOptions(root))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, result)
	assert.True(t, result.Canceled)
	assert.Empty(t, h.exec.Calls())
}

func TestEngine_CancelLetsRunningTaskFinish(t *testing.T) {
	root := newRepo(t, turboJSON)
	h := newHarness()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.exec.WithExecFunc(func(taskCtx context.Context, req runner.ExecRequest) (int, error) {
		if req.TaskID == "lib#build" {
			cancel()
			time.Sleep(20 * time.Millisecond)
			if err := taskCtx.Err(); err != nil {
				return -1, err
			}
		}
		return 0, nil
	})

	result, err := h.engine.Run(ctx, buildOptions(root))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, result.Canceled)
	assert.Equal(t, runner.StatusSucceeded, result.Status("lib#build"))
	assert.Equal(t, runner.StatusPending, result.Status("app#build"))
	assert.Contains(t, h.stdout.String(), "1 of 2 tasks did not run")

	h.reset()
	h.exec.WithExecFunc(nil)
	result, err = h.engine.Run(context.Background(), buildOptions(root))
	require.NoError(t, err)
	assert.Equal(t, []string{"app#build"}, h.exec.Calls())
	assert.Equal(t, runner.StatusCached, result.Status("lib#build"))
}

func TestEngine_TaskBecomesCacheable(t *testing.T) {
	root := newRepo(t, `{"pipeline": {"build": {"dependsOn": ["^build"], "outputs": ["dist/**"], "cache": false}}}`)
	h := newHarness()

	_, err := h.engine.Run(context.Background(), buildOptions(root))
	require.NoError(t, err)
	require.Len(t, h.exec.Calls(), 2)

	writeFile(t, filepath.Join(root, "turbo.json"), turboJSON)
	h.reset()
	_, err = h.engine.Run(context.Background(), buildOptions(root))
	require.NoError(t, err)
	assert.Len(t, h.exec.Calls(), 2, "log-only results are never hits")

	h.reset()
	result, err := h.engine.Run(context.Background(), buildOptions(root))
	require.NoError(t, err)
	assert.Empty(t, h.exec.Calls())
	assert.Equal(t, 2, result.Count(runner.StatusCached))
}

func TestEngine_UnverifiedRemoteArtifactsRerun(t *testing.T) {
	const signed = `{
  "pipeline": {"build": {"dependsOn": ["^build"], "outputs": ["dist/**"]}},
  "remoteCache": {"signature": {"enabled": true, "keyEnv": "TURBO_SIGNING_KEY"}}
}`
	tests := []struct {
		name   string
		mangle func(tr *mocks.Transport, fp string)
	}{
		{"tampered body", func(tr *mocks.Transport, fp string) { tr.Tamper(fp) }},
		{"forged tag", func(tr *mocks.Transport, fp string) { tr.SetTag(fp, "forged") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := mocks.NewTransport()
			machine := func() *harness {
				h := newHarness()
				h.engine.Transport = transport
				h.engine.Environ = []string{"TURBO_SIGNING_KEY=secret"}
				return h
			}

			first, err := machine().engine.Run(context.Background(), buildOptions(newRepo(t, signed)))
			require.NoError(t, err)
			for _, id := range []string{"lib#build", "app#build"} {
				fp := mustFingerprint(t, first, id)
				require.True(t, transport.Has(fp))
				tt.mangle(transport, fp)
			}

			h := machine()
			second, err := h.engine.Run(context.Background(), buildOptions(newRepo(t, signed)))
			require.NoError(t, err)
			assert.ElementsMatch(t, []string{"lib#build", "app#build"}, h.exec.Calls())
			assert.Zero(t, second.Count(runner.StatusCached))
		})
	}
}

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
}

func runGit(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
		"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com",
	)
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, string(out))
}

// newGitRepo creates a committed workspace whose baseBranch is the "base" tag.
func newGitRepo(t *testing.T) string {
	t.Helper()
	requireGit(t)
	root := newRepo(t, `{
  "baseBranch": "base",
  "pipeline": {"build": {"dependsOn": ["^build"], "outputs": ["dist/**"]}}
}`)
	writeFile(t, filepath.Join(root, ".gitignore"), "dist/\n.turbo/\nnode_modules/\n")
	runGit(t, root, "init", "-q")
	runGit(t, root, "add", ".")
	runGit(t, root, "commit", "-q", "-m", "base")
	runGit(t, root, "tag", "base")
	return root
}

func TestEngine_SinceCleanTreeRunsNothing(t *testing.T) {
	root := newGitRepo(t)
	h := newHarness()

	opts := buildOptions(root)
	opts.Since = "HEAD"
	result, err := h.engine.Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Empty(t, h.exec.Calls())
	assert.Empty(t, result.Tasks)
}

func TestEngine_SinceBaseBranch(t *testing.T) {
	root := newGitRepo(t)
	h := newHarness()

	opts := buildOptions(root)
	opts.SinceBaseBranch = true
	opts.IncludeDependents = false

	_, err := h.engine.Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Empty(t, h.exec.Calls())

	writeFile(t, filepath.Join(root, "packages", "lib", "src", "index.ts"), "export const x = 2\n")
	runGit(t, root, "commit", "-q", "-am", "edit lib")
	_, err = h.engine.Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"lib#build"}, h.exec.Calls())
}

func TestParseDryRunFormat(t *testing.T) {
	for _, s := range []string{"", "text", "json", "yaml"} {
		f, err := run.ParseDryRunFormat(s)
		require.NoError(t, err)
		assert.Equal(t, run.DryRunFormat(s), f)
	}
	_, err := run.ParseDryRunFormat("xml")
	assert.Error(t, err)
}

func TestEngine_SettingsFlagsValidated(t *testing.T) {
	root := newRepo(t, turboJSON)
	opts := buildOptions(root)
	opts.API = "not a url"
	_, err := newHarness().engine.Run(context.Background(), opts)
	require.Error(t, err)
	assert.Equal(t, turboerrors.ExitConfigError, turboerrors.GetExitCode(err))
}
