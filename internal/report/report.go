// Package report renders a stored run for humans or tools.
package report

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/apercallc/ai-terminal/internal/agent"
	"github.com/apercallc/ai-terminal/internal/convo"
	"github.com/apercallc/ai-terminal/internal/redact"
	"github.com/apercallc/ai-terminal/internal/runs"
)

// Renderer serializes a Run to bytes.
type Renderer interface {
	Render(run *runs.Run) ([]byte, error)
}

// ForFormat returns the renderer for "markdown" (or "md") and "json".
func ForFormat(format string) (Renderer, error) {
	switch strings.ToLower(format) {
	case "", "markdown", "md":
		return &MarkdownRenderer{Redactor: redact.Default()}, nil
	case "json":
		return &JSONRenderer{}, nil
	}
	return nil, fmt.Errorf("unsupported format %q: use markdown or json", format)
}

// JSONRenderer renders a Run as indented JSON.
type JSONRenderer struct{}

func (r *JSONRenderer) Render(run *runs.Run) ([]byte, error) {
	return json.MarshalIndent(run, "", "  ")
}

// MarkdownRenderer renders a Run as a human-readable Markdown report.
// Commands and output pass through Redactor when it is set.
type MarkdownRenderer struct {
	Redactor *redact.Redactor
	// Now is used for the duration of runs that have not stopped.
	Now func() time.Time
}

func (r *MarkdownRenderer) Render(run *runs.Run) ([]byte, error) {
	if run == nil {
		return nil, fmt.Errorf("render report: nil run")
	}
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	snap := run.Snapshot

	var sb strings.Builder
	fmt.Fprintf(&sb, "# aiterm run %s\n\n", run.ID)

	sb.WriteString("## Summary\n\n")
	fmt.Fprintf(&sb, "- Goal: %s\n", run.Goal)
	fmt.Fprintf(&sb, "- State: %s\n", snap.Label())
	fmt.Fprintf(&sb, "- Mode: %s\n", run.Mode)
	if run.Provider != "" {
		fmt.Fprintf(&sb, "- Provider: %s\n", run.Provider)
	}
	if run.WorkDir != "" {
		fmt.Fprintf(&sb, "- Directory: %s\n", run.WorkDir)
	}
	fmt.Fprintf(&sb, "- Started: %s\n", run.StartTime.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&sb, "- Duration: %s\n", run.Duration(now()).Round(time.Second))
	if snap.Error != "" {
		fmt.Fprintf(&sb, "- Error: %s\n", snap.Error)
	}
	sb.WriteString("\n")

	sb.WriteString("## Plan\n\n")
	if snap.Plan == nil || len(snap.Plan.Steps) == 0 {
		sb.WriteString("_No plan was produced._\n")
	} else {
		if snap.Plan.Summary != "" {
			sb.WriteString(snap.Plan.Summary + "\n\n")
		}
		statuses := snap.StepStatuses()
		sb.WriteString("| # | Step | Command | Risk | Status |\n")
		sb.WriteString("|---|------|---------|------|--------|\n")
		for i, step := range snap.Plan.Steps {
			fmt.Fprintf(&sb, "| %d | %s | `%s` | %s | %s |\n",
				i+1,
				cell(step.Description),
				cell(r.command(step.Command)),
				step.RiskLevel,
				statuses[i],
			)
		}
	}
	sb.WriteString("\n")

	sb.WriteString("## Execution History\n\n")
	if len(snap.History) == 0 {
		sb.WriteString("_No commands were executed._\n")
	}
	for i, rec := range snap.History {
		writeRecord(&sb, i+1, rec, r)
	}
	return []byte(sb.String()), nil
}

func writeRecord(sb *strings.Builder, n int, rec agent.ExecutionRecord, r *MarkdownRenderer) {
	result := "succeeded"
	if !rec.Success {
		result = "failed"
	}
	fmt.Fprintf(sb, "### %d. %s (exit %d, %s, %s)\n\n", n, result, rec.ExitCode, rec.Duration.Round(time.Millisecond), rec.RiskLevel)
	fmt.Fprintf(sb, "```sh\n%s\n```\n\n", r.command(rec.Command))
	out := strings.TrimRight(r.output(rec.Command, rec.Output), "\n")
	if out == "" {
		sb.WriteString("_No output._\n\n")
		return
	}
	fmt.Fprintf(sb, "```\n%s\n```\n\n", out)
}

func (r *MarkdownRenderer) command(cmd string) string {
	if r.Redactor == nil {
		return cmd
	}
	return r.Redactor.Command(cmd)
}

func (r *MarkdownRenderer) output(cmd, out string) string {
	out = convo.Truncate(out)
	if r.Redactor == nil {
		return out
	}
	if r.Redactor.Denied(cmd) {
		return redact.DeniedPlaceholder
	}
	return r.Redactor.String(out)
}

// cell escapes text for a Markdown table cell.
func cell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}
