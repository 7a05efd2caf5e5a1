package planner

import (
	"fmt"
	"strings"

	"github.com/apercallc/ai-terminal/internal/agent"
	"github.com/apercallc/ai-terminal/internal/convo"
)

const planFormat = `Respond with JSON only, in this shape:
{"plan":{"goal":"...","summary":"...","steps":[{"id":"step-1","command":"...","description":"...","riskLevel":"safe|low|medium|high|critical","expectedOutcome":"...","rollback":"..."}]}}`

const analysisFormat = `Respond with JSON only, in this shape:
{"analysis":{"cause":"...","fix":{"command":"...","description":"...","riskLevel":"safe|low|medium|high|critical"},"shouldRetry":true}}`

const verifyFormat = `Respond with JSON only, in this shape:
{"verification":{"success":true,"reason":"..."}}`

func planPrompt(goal string) string {
	return fmt.Sprintf("Create a step-by-step plan of shell commands for this goal:\n%s\n\n%s", goal, planFormat)
}

func analysisPrompt(step agent.CommandStep, output string, exitCode int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The command for step %s failed.\n", step.ID)
	fmt.Fprintf(&b, "Command: %s\n", step.Command)
	if step.Description != "" {
		fmt.Fprintf(&b, "Purpose: %s\n", step.Description)
	}
	fmt.Fprintf(&b, "Exit code: %d\n", exitCode)
	fmt.Fprintf(&b, "Output:\n%s\n\n", convo.Truncate(output))
	b.WriteString("Explain the cause and propose a single corrected command. ")
	b.WriteString("Set shouldRetry to false if no safe fix exists.\n\n")
	b.WriteString(analysisFormat)
	return b.String()
}

func verifyPrompt(step agent.CommandStep, output string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Did this command achieve its purpose?\n")
	fmt.Fprintf(&b, "Command: %s\n", step.Command)
	if step.ExpectedOutcome != "" {
		fmt.Fprintf(&b, "Expected outcome: %s\n", step.ExpectedOutcome)
	}
	fmt.Fprintf(&b, "Output:\n%s\n\n", convo.Truncate(output))
	b.WriteString(verifyFormat)
	return b.String()
}
