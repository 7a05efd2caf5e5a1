package report_test

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apercallc/ai-terminal/internal/agent"
	"github.com/apercallc/ai-terminal/internal/redact"
	"github.com/apercallc/ai-terminal/internal/report"
	"github.com/apercallc/ai-terminal/internal/runs"
)

func sampleRun() *runs.Run {
	start := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)
	stop := start.Add(42 * time.Second)
	plan := agent.CommandPlan{
		Goal:    "set up node project",
		Summary: "Initialise npm and add express.",
		Steps: []agent.CommandStep{
			{ID: "step-1", Command: "npm init -y", Description: "Init", RiskLevel: agent.RiskLow},
			{ID: "step-2", Command: "npm i express | tee log", Description: "Add express", RiskLevel: agent.RiskMedium},
		},
	}
	return &runs.Run{
		ID:        "0123abcd",
		Goal:      plan.Goal,
		Mode:      "safe",
		Provider:  "openai",
		WorkDir:   "/tmp/proj",
		StartTime: start,
		StopTime:  &stop,
		Snapshot: agent.Snapshot{
			State:            agent.StateError,
			Goal:             plan.Goal,
			Plan:             &plan,
			CurrentStepIndex: -1,
			Error:            agent.ErrMaxRetries,
			History: []agent.ExecutionRecord{
				{Command: "npm init -y", ExitCode: 0, Output: "Wrote package.json", Success: true, RiskLevel: agent.RiskLow},
				{Command: "NPM_TOKEN=abc123 npm i express", ExitCode: 1, Output: "token: abc123\nnpm ERR! failed", RiskLevel: agent.RiskMedium},
				{Command: "printenv", ExitCode: 0, Output: "HOME=/root", RiskLevel: agent.RiskSafe},
			},
		},
	}
}

func TestMarkdownReportSections(t *testing.T) {
	r := &report.MarkdownRenderer{Redactor: redact.Default()}
	out, err := r.Render(sampleRun())
	require.NoError(t, err)
	md := string(out)

	for _, want := range []string{
		"# aiterm run 0123abcd",
		"- Goal: set up node project",
		"- State: error",
		"- Duration: 42s",
		"- Error: " + agent.ErrMaxRetries,
		"| 1 | Init | `npm init -y` | low | done |",
		"| 2 | Add express | `npm i express \\| tee log` | medium | failed |",
		"### 1. succeeded (exit 0",
		"### 2. failed (exit 1",
		"Wrote package.json",
	} {
		assert.Contains(t, md, want)
	}
}

func TestMarkdownReportRedacts(t *testing.T) {
	r := &report.MarkdownRenderer{Redactor: redact.Default()}
	out, err := r.Render(sampleRun())
	require.NoError(t, err)
	md := string(out)

	assert.NotContains(t, md, "abc123")
	assert.NotContains(t, md, "HOME=/root")
	assert.Contains(t, md, redact.DeniedPlaceholder)
}

func TestMarkdownReportEmptyRun(t *testing.T) {
	now := time.Date(2026, 5, 4, 12, 1, 0, 0, time.UTC)
	r := &report.MarkdownRenderer{Now: func() time.Time { return now }}
	run := &runs.Run{
		ID:        "x",
		Goal:      "nothing",
		StartTime: now.Add(-time.Minute),
		Snapshot:  agent.Snapshot{State: agent.StateError, Error: "planning failed", CurrentStepIndex: -1},
	}
	out, err := r.Render(run)
	require.NoError(t, err)
	md := string(out)
	assert.Contains(t, md, "_No plan was produced._")
	assert.Contains(t, md, "_No commands were executed._")
	assert.Contains(t, md, "- Duration: 1m0s")
}

func TestJSONReportRoundTrip(t *testing.T) {
	run := sampleRun()
	out, err := (&report.JSONRenderer{}).Render(run)
	require.NoError(t, err)

	var got runs.Run
	require.NoError(t, json.Unmarshal(out, &got))
	if diff := cmp.Diff(run, &got); diff != "" {
		t.Errorf("round-trip (-want +got):\n%s", diff)
	}
}

func TestForFormat(t *testing.T) {
	for _, f := range []string{"", "markdown", "MD"} {
		r, err := report.ForFormat(f)
		require.NoError(t, err)
		assert.IsType(t, &report.MarkdownRenderer{}, r)
	}
	r, err := report.ForFormat("json")
	require.NoError(t, err)
	assert.IsType(t, &report.JSONRenderer{}, r)

	_, err = report.ForFormat("pdf")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "pdf"))
}

func TestRenderNilRun(t *testing.T) {
	_, err := (&report.MarkdownRenderer{}).Render(nil)
	assert.Error(t, err)
}
