package integration

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/AlexRogalskiy/turborepo/internal/runner"
	"github.com/AlexRogalskiy/turborepo/internal/workspace"
)

func TestDiscoverBasicFixture(t *testing.T) {
	t.Parallel()
	g, err := workspace.Discover(filepath.Join(fixturesDir(), "basic"))
	if err != nil {
		t.Fatalf("failed to discover packages: %v", err)
	}

	want := []string{"@basic/ui", "@basic/utils", "web"}
	if got := g.Names(); len(got) != len(want) {
		t.Fatalf("expected packages %v, got %v", want, got)
	}
	deps := g.Dependencies("web")
	if len(deps) != 2 || deps[0] != "@basic/ui" || deps[1] != "@basic/utils" {
		t.Errorf("expected web to depend on ui and utils, got %v", deps)
	}
}

func TestRunBuildOrder(t *testing.T) {
	t.Parallel()
	root := copyFixture(t, "basic")
	e := newTestEngine()

	result, err := e.Run(context.Background(), options(root, "build"))
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	calls := e.exec.Calls()
	if len(calls) != 3 {
		t.Fatalf("expected 3 executions, got %v", calls)
	}
	if indexOf(calls, "@basic/utils#build") > indexOf(calls, "@basic/ui#build") {
		t.Errorf("utils must build before ui: %v", calls)
	}
	if indexOf(calls, "@basic/ui#build") > indexOf(calls, "web#build") {
		t.Errorf("ui must build before web: %v", calls)
	}
	if n := result.Count(runner.StatusSucceeded); n != 3 {
		t.Errorf("expected 3 succeeded tasks, got %d", n)
	}
}

func TestRunRepeatIsCached(t *testing.T) {
	t.Parallel()
	root := copyFixture(t, "basic")
	e := newTestEngine()

	if _, err := e.Run(context.Background(), options(root, "build", "test")); err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	e.exec.Reset()

	result, err := e.Run(context.Background(), options(root, "build", "test"))
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if calls := e.exec.Calls(); len(calls) != 0 {
		t.Errorf("expected no executions on a repeated run, got %v", calls)
	}
	if n := result.Count(runner.StatusCached); n != len(result.Tasks) {
		t.Errorf("expected every task cached, got %d of %d", n, len(result.Tasks))
	}
}

func TestUncachedTaskAlwaysRuns(t *testing.T) {
	t.Parallel()
	root := copyFixture(t, "basic")
	e := newTestEngine()

	for i := 0; i < 2; i++ {
		e.exec.Reset()
		if _, err := e.Run(context.Background(), options(root, "lint")); err != nil {
			t.Fatalf("run %d failed: %v", i, err)
		}
		if calls := e.exec.Calls(); len(calls) != 2 {
			t.Errorf("run %d: expected lint in ui and utils, got %v", i, calls)
		}
	}
}

func TestGlobalDependencyInvalidatesEverything(t *testing.T) {
	t.Parallel()
	root := copyFixture(t, "basic")
	e := newTestEngine()

	if _, err := e.Run(context.Background(), options(root, "build")); err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	writeFile(t, filepath.Join(root, "tsconfig.base.json"), `{"compilerOptions": {"strict": false}}`)
	e.exec.Reset()

	if _, err := e.Run(context.Background(), options(root, "build")); err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if calls := e.exec.Calls(); len(calls) != 3 {
		t.Errorf("expected every build to rerun, got %v", calls)
	}
}

func TestEnvDependencyIsLocal(t *testing.T) {
	t.Parallel()
	root := copyFixture(t, "basic")

	first := newTestEngine("NODE_ENV=development")
	a, err := first.Run(context.Background(), options(root, "test"))
	if err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	second := newTestEngine("NODE_ENV=production")
	b, err := second.Run(context.Background(), options(root, "test"))
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}

	for _, id := range []string{"web#build", "@basic/utils#build"} {
		ta, _ := a.Get(id)
		tb, _ := b.Get(id)
		if ta.Fingerprint != tb.Fingerprint {
			t.Errorf("%s fingerprint changed with NODE_ENV", id)
		}
	}
	ta, _ := a.Get("web#test")
	tb, _ := b.Get("web#test")
	if ta.Fingerprint == tb.Fingerprint {
		t.Error("web#test fingerprint must depend on NODE_ENV")
	}
	if calls := second.exec.Calls(); len(calls) != 2 {
		t.Errorf("expected only the test tasks to rerun, got %v", calls)
	}
}
