package run

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/AlexRogalskiy/turborepo/internal/hashing"
	"github.com/AlexRogalskiy/turborepo/internal/output"
	"github.com/AlexRogalskiy/turborepo/internal/taskgraph"
	"github.com/AlexRogalskiy/turborepo/internal/version"
)

// DryRunReport describes what a run would do.
type DryRunReport struct {
	ID         string       `json:"id" yaml:"id"`
	Version    string       `json:"version" yaml:"version"`
	GlobalHash string       `json:"globalHash" yaml:"globalHash"`
	Tasks      []DryRunTask `json:"tasks" yaml:"tasks"`
}

// DryRunTask is one node of a dry run.
type DryRunTask struct {
	TaskID       string   `json:"taskId" yaml:"taskId"`
	Package      string   `json:"package" yaml:"package"`
	Task         string   `json:"task" yaml:"task"`
	Command      string   `json:"command" yaml:"command"`
	Hash         string   `json:"hash" yaml:"hash"`
	Outputs      []string `json:"outputs" yaml:"outputs"`
	Cache        bool     `json:"cache" yaml:"cache"`
	Dependencies []string `json:"dependencies" yaml:"dependencies"`
	Dependents   []string `json:"dependents" yaml:"dependents"`
	EnvVars      []string `json:"envVars" yaml:"envVars"`
}

// buildDryRun fingerprints every node in graph order without executing.
func buildDryRun(ctx context.Context, g *taskgraph.Graph, engine *hashing.Engine, rc *hashing.RunContext) (*DryRunReport, error) {
	report := &DryRunReport{
		ID:         uuid.NewString(),
		Version:    version.String(),
		GlobalHash: rc.GlobalDigest(),
		Tasks:      make([]DryRunTask, 0, g.Len()),
	}
	for _, n := range g.Nodes() {
		fp, err := engine.Fingerprint(ctx, g, n)
		if err != nil {
			return nil, fmt.Errorf("%s: computing fingerprint: %w", n.ID, err)
		}
		report.Tasks = append(report.Tasks, DryRunTask{
			TaskID:       n.ID,
			Package:      n.Package.Name,
			Task:         n.Task,
			Command:      n.Command,
			Hash:         fp,
			Outputs:      nonNil(n.Entry.Outputs),
			Cache:        n.Entry.Cache,
			Dependencies: nonNil(n.Deps),
			Dependents:   nonNil(n.Dependents),
			EnvVars:      nonNil(n.EnvVars),
		})
	}
	return report, nil
}

func renderDryRun(out *output.Writer, format DryRunFormat, report *DryRunReport) error {
	switch format {
	case DryRunJSON:
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return err
		}
		out.Println("%s", data)
		return nil
	case DryRunYAML:
		enc := yaml.NewEncoder(out.Out())
		enc.SetIndent(2)
		if err := enc.Encode(report); err != nil {
			return err
		}
		return enc.Close()
	default:
		renderDryRunText(out, report)
		return nil
	}
}

func renderDryRunText(out *output.Writer, report *DryRunReport) {
	out.DryRunStart()
	out.SummaryItem("Global Hash", report.GlobalHash)
	out.SummaryItem("Tasks", fmt.Sprintf("%d", len(report.Tasks)))
	out.Println("")

	rows := make([][]string, 0, len(report.Tasks))
	for _, t := range report.Tasks {
		cacheState := "enabled"
		if !t.Cache {
			cacheState = "disabled"
		}
		rows = append(rows, []string{t.TaskID, t.Hash, output.StatusLabel(cacheState), dash(t.Dependencies)})
	}
	out.Table([]string{"Task", "Hash", "Cache", "Dependencies"}, rows)

	for _, t := range report.Tasks {
		out.Section(t.TaskID)
		out.SummaryItem("Command", t.Command)
		out.SummaryItem("Outputs", dash(t.Outputs))
		out.SummaryItem("Dependents", dash(t.Dependents))
		out.SummaryItem("Env", dash(t.EnvVars))
	}
	out.DryRunEnd()
}

func dash(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
