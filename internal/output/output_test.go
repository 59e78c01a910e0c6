package output

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

// newTestWriter creates a Writer with captured output for testing.
func newTestWriter() (*Writer, *bytes.Buffer, *bytes.Buffer) {
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	return NewWithWriters(stdout, stderr, false), stdout, stderr
}

func TestNew(t *testing.T) {
	w := New()
	assert.NotNil(t, w.out)
	assert.NotNil(t, w.err)
}

func TestWriter_PrintAndErrorln(t *testing.T) {
	w, stdout, stderr := newTestWriter()

	w.Print("hello %s", "world")
	w.Errorln("bad %d", 1)

	assert.Equal(t, "hello world", stdout.String())
	assert.Equal(t, "bad 1\n", stderr.String())
}

func TestWriter_Warning(t *testing.T) {
	w, _, stderr := newTestWriter()
	w.Warning("task %q has no script", "lint")
	assert.Equal(t, "warning: task \"lint\" has no script\n", stderr.String())
}

func TestWriter_ErrorPrefix(t *testing.T) {
	w, _, stderr := newTestWriter()
	w.ErrorPrefix("could not find turbo.json")
	assert.Equal(t, "turbo: could not find turbo.json\n", stderr.String())
}

func TestWriter_TaskLines(t *testing.T) {
	w, stdout, stderr := newTestWriter()

	w.TaskCacheMiss("web#build", "0123abcd")
	w.TaskCacheHit("lib#build", "89ef", true)
	w.TaskCacheHit("lib#lint", "7777", false)
	w.TaskCacheBypass("lib#test", "5555")
	w.TaskFailed("web#build", errors.New("command exited (1)"))

	assert.Equal(t,
		"web:build: cache miss, executing 0123abcd\n"+
			"lib:build: cache hit, replaying output 89ef\n"+
			"lib:lint: cache hit, suppressing output 7777\n"+
			"lib:test: cache bypass, force executing 5555\n",
		stdout.String())
	assert.Equal(t, "web:build: ERROR: command exited (1)\n", stderr.String())
}

func TestWriter_TaskPrefixColored(t *testing.T) {
	w := NewWithWriters(&bytes.Buffer{}, &bytes.Buffer{}, true)
	prefix := w.TaskPrefix("web#build")

	assert.Contains(t, prefix, "web:build: ")
	assert.True(t, strings.HasSuffix(prefix, reset))
	assert.Equal(t, prefix, w.TaskPrefix("web#build"), "prefix color must be stable")
}

func TestLineWriter(t *testing.T) {
	w, stdout, _ := newTestWriter()
	lw := w.TaskWriter("lib#build")

	fmt.Fprint(lw, "compil")
	fmt.Fprint(lw, "ing\ndone\npartial")
	assert.Equal(t, "lib:build: compiling\nlib:build: done\n", stdout.String())

	lw.Flush()
	assert.Equal(t, "lib:build: compiling\nlib:build: done\nlib:build: partial\n", stdout.String())

	lw.Flush()
	assert.Equal(t, 3, strings.Count(stdout.String(), "\n"))
}

func TestLineWriter_ConcurrentTasksKeepLinesWhole(t *testing.T) {
	w, stdout, _ := newTestWriter()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			lw := w.TaskWriter(fmt.Sprintf("pkg%d#build", i))
			for j := 0; j < 50; j++ {
				fmt.Fprintf(lw, "line %d\n", j)
			}
		}(i)
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSuffix(stdout.String(), "\n"), "\n")
	assert.Len(t, lines, 400)
	for _, line := range lines {
		assert.Regexp(t, `^pkg\d:build: line \d+$`, line)
	}
}

func TestTable(t *testing.T) {
	w, stdout, _ := newTestWriter()

	w.Table([]string{"Task", "Hash"}, [][]string{
		{"lib#build", "abc"},
		{"app#build", "defg"},
	})

	assert.Equal(t,
		"Task       Hash\n"+
			"---------  ----\n"+
			"lib#build  abc\n"+
			"app#build  defg\n",
		stdout.String())
}

func TestStatusLabel(t *testing.T) {
	assert.Equal(t, "Cached", StatusLabel("cached"))
	assert.Equal(t, "Succeeded", StatusLabel("succeeded"))
}

func TestSummaryItems(t *testing.T) {
	w, stdout, _ := newTestWriter()

	w.SummaryItem("Tasks", "2 successful, 2 total")
	w.SummaryFailed("Failed", "web#build")

	assert.Equal(t,
		"     Tasks:    2 successful, 2 total\n"+
			"    Failed:    web#build\n",
		stdout.String())
}

func TestDryRunMarkers(t *testing.T) {
	w, stdout, _ := newTestWriter()
	w.DryRunStart()
	w.DryRunEnd()
	assert.Equal(t, "\n=== DRY RUN ===\n\n\n=== END DRY RUN ===\n", stdout.String())
}
