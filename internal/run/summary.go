package run

import (
	"fmt"
	"strings"
	"time"

	"github.com/AlexRogalskiy/turborepo/internal/output"
	"github.com/AlexRogalskiy/turborepo/internal/runner"
)

// printSummary reports the totals of a finished run. Failed task output is
// repeated when the log mode kept it off the terminal.
func printSummary(out *output.Writer, result *runner.RunResult, mode runner.LogMode) {
	total := len(result.Tasks)
	cached := result.Count(runner.StatusCached)
	successful := result.Count(runner.StatusSucceeded) + cached
	failed := result.Failed()

	out.Println("")
	out.SummaryItem("Tasks", fmt.Sprintf("%d successful, %d total", successful, total))
	out.SummaryItem("Cached", fmt.Sprintf("%d cached, %d total", cached, total))
	out.SummaryItem("Time", runner.FormatDuration(result.Duration.Round(time.Millisecond)))

	if len(failed) > 0 {
		names := make([]string, len(failed))
		for i, tr := range failed {
			names[i] = tr.ID
		}
		out.SummaryFailed("Failed", strings.Join(names, ", "))

		if mode == runner.LogsHashOnly || mode == runner.LogsNone {
			for _, tr := range failed {
				if len(tr.Output) == 0 {
					continue
				}
				out.Section(tr.ID)
				out.Print("%s", tr.Output)
			}
		}
		out.Println("")
		out.FinalFailure("%d of %d tasks failed", len(failed), total)
		return
	}

	if result.Canceled {
		out.Println("")
		out.FinalFailure("run canceled, %d of %d tasks did not run", result.Count(runner.StatusPending), total)
		return
	}

	if total > 0 && cached == total {
		out.FinalSuccess(">>> FULL TURBO")
	}
}
