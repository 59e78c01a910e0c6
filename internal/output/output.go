// Package output provides formatted output utilities for the CLI.
package output

import (
	"bytes"
	"fmt"
	"hash/fnv"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Writer handles CLI output formatting. It is safe for concurrent use;
// tasks running in parallel share one Writer.
type Writer struct {
	mu    sync.Mutex
	out   io.Writer
	err   io.Writer
	color bool
}

// New creates a new Writer with default settings.
func New() *Writer {
	return &Writer{
		out:   os.Stdout,
		err:   os.Stderr,
		color: isTerminal(),
	}
}

// NewWithWriters creates a Writer with custom io.Writers (for testing).
func NewWithWriters(out, err io.Writer, color bool) *Writer {
	return &Writer{
		out:   out,
		err:   err,
		color: color,
	}
}

// Out returns the underlying stdout writer.
func (w *Writer) Out() io.Writer {
	return w.out
}

// Print writes to stdout.
func (w *Writer) Print(format string, args ...interface{}) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fmt.Fprintf(w.out, format, args...)
}

// Println writes a line to stdout.
func (w *Writer) Println(format string, args ...interface{}) {
	w.Print(format+"\n", args...)
}

// Errorln writes a line to stderr.
func (w *Writer) Errorln(format string, args ...interface{}) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fmt.Fprintf(w.err, format+"\n", args...)
}

// Info prints an info message.
func (w *Writer) Info(format string, args ...interface{}) {
	w.Println(format, args...)
}

// Warning prints a warning message.
func (w *Writer) Warning(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if w.color {
		w.Errorln("%swarning:%s %s", yellow, reset, msg)
	} else {
		w.Errorln("warning: %s", msg)
	}
}

// ErrorPrefix prints an error message with turbo prefix to stderr.
func (w *Writer) ErrorPrefix(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if w.color {
		w.Errorln("%sturbo:%s %s", red, reset, msg)
	} else {
		w.Errorln("turbo: %s", msg)
	}
}

// TaskPrefix returns the "pkg:task: " prefix used for a task's output lines.
func (w *Writer) TaskPrefix(taskID string) string {
	prefix := strings.Replace(taskID, "#", ":", 1) + ": "
	if !w.color {
		return prefix
	}
	return prefixColor(taskID) + prefix + reset
}

// TaskCacheMiss prints that a task missed the cache and is executing.
func (w *Writer) TaskCacheMiss(taskID, hash string) {
	w.Println("%scache miss, executing %s", w.TaskPrefix(taskID), w.dim(hash))
}

// TaskCacheHit prints that a task was restored from the cache.
func (w *Writer) TaskCacheHit(taskID, hash string, replaying bool) {
	if replaying {
		w.Println("%scache hit, replaying output %s", w.TaskPrefix(taskID), w.dim(hash))
	} else {
		w.Println("%scache hit, suppressing output %s", w.TaskPrefix(taskID), w.dim(hash))
	}
}

// TaskCacheBypass prints that a task is executing without consulting the cache.
func (w *Writer) TaskCacheBypass(taskID, hash string) {
	w.Println("%scache bypass, force executing %s", w.TaskPrefix(taskID), w.dim(hash))
}

// TaskFailed prints task failure to stderr.
func (w *Writer) TaskFailed(taskID string, err error) {
	if w.color {
		w.Errorln("%s%sERROR:%s %v", w.TaskPrefix(taskID), red, reset, err)
	} else {
		w.Errorln("%sERROR: %v", w.TaskPrefix(taskID), err)
	}
}

// TaskWriter returns an io.Writer that prefixes every line written to it
// with the task prefix. Call Flush when the task finishes to emit a
// trailing partial line.
func (w *Writer) TaskWriter(taskID string) *LineWriter {
	return &LineWriter{w: w, prefix: w.TaskPrefix(taskID)}
}

// Section prints a section header.
func (w *Writer) Section(title string) {
	w.Println("")
	if w.color {
		w.Println("%s=== %s ===%s", bold, title, reset)
	} else {
		w.Println("=== %s ===", title)
	}
}

// Table prints a simple table.
func (w *Writer) Table(headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	var headerParts []string
	for i, h := range headers {
		headerParts = append(headerParts, fmt.Sprintf("%-*s", widths[i], h))
	}
	w.Println("%s", strings.TrimRight(strings.Join(headerParts, "  "), " "))

	var sepParts []string
	for _, width := range widths {
		sepParts = append(sepParts, strings.Repeat("-", width))
	}
	w.Println("%s", strings.Join(sepParts, "  "))

	for _, row := range rows {
		var rowParts []string
		for i, cell := range row {
			if i < len(widths) {
				rowParts = append(rowParts, fmt.Sprintf("%-*s", widths[i], cell))
			}
		}
		w.Println("%s", strings.TrimRight(strings.Join(rowParts, "  "), " "))
	}
}

// StatusLabel formats a task status for display ("cached" -> "Cached").
func StatusLabel(status string) string {
	return titleCaser.String(status)
}

var titleCaser = cases.Title(language.English)

// SummaryItem prints a labeled summary item with value.
func (w *Writer) SummaryItem(label, value string) {
	if w.color {
		w.Println("%s%10s:%s    %s", bold, label, reset, value)
	} else {
		w.Println("%10s:    %s", label, value)
	}
}

// SummaryFailed prints a failed items summary.
func (w *Writer) SummaryFailed(label, value string) {
	if w.color {
		w.Println("%s%10s:%s    %s%s%s", bold, label, reset, red, value, reset)
	} else {
		w.Println("%10s:    %s", label, value)
	}
}

// FinalSuccess prints a final success message.
func (w *Writer) FinalSuccess(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if w.color {
		w.Println("%s%s%s", green, msg, reset)
	} else {
		w.Println("%s", msg)
	}
}

// FinalFailure prints a final failure message.
func (w *Writer) FinalFailure(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if w.color {
		w.Println("%s%s%s", red, msg, reset)
	} else {
		w.Println("%s", msg)
	}
}

// DryRunStart prints the dry run header.
func (w *Writer) DryRunStart() {
	w.Println("")
	if w.color {
		w.Println("%s=== DRY RUN ===%s", bold+yellow, reset)
	} else {
		w.Println("=== DRY RUN ===")
	}
	w.Println("")
}

// DryRunEnd prints the dry run footer.
func (w *Writer) DryRunEnd() {
	w.Println("")
	if w.color {
		w.Println("%s=== END DRY RUN ===%s", bold+yellow, reset)
	} else {
		w.Println("=== END DRY RUN ===")
	}
}

func (w *Writer) dim(s string) string {
	if !w.color {
		return s
	}
	return dim + s + reset
}

// LineWriter prefixes each complete line before writing it to the parent Writer.
type LineWriter struct {
	w      *Writer
	prefix string
	buf    bytes.Buffer
}

func (l *LineWriter) Write(p []byte) (int, error) {
	l.buf.Write(p)
	for {
		line, err := l.buf.ReadBytes('\n')
		if err != nil {
			// Keep the incomplete tail for the next write.
			l.buf.Reset()
			l.buf.Write(line)
			return len(p), nil
		}
		l.w.Print("%s%s", l.prefix, line)
	}
}

// Flush writes any buffered partial line followed by a newline.
func (l *LineWriter) Flush() {
	if l.buf.Len() == 0 {
		return
	}
	l.w.Print("%s%s\n", l.prefix, l.buf.String())
	l.buf.Reset()
}

// isTerminal returns true if stdout is a terminal.
func isTerminal() bool {
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// ANSI color codes.
const (
	reset   = "\033[0m"
	bold    = "\033[1m"
	dim     = "\033[2m"
	red     = "\033[31m"
	green   = "\033[32m"
	yellow  = "\033[33m"
	blue    = "\033[34m"
	magenta = "\033[35m"
	cyan    = "\033[36m"
)

var prefixPalette = []string{cyan, magenta, green, yellow, blue}

// prefixColor picks a stable color per task so interleaved output stays readable.
func prefixColor(taskID string) string {
	h := fnv.New32a()
	h.Write([]byte(taskID))
	return prefixPalette[h.Sum32()%uint32(len(prefixPalette))]
}
