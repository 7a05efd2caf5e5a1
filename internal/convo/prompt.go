package convo

import (
	"strings"

	"github.com/apercallc/ai-terminal/internal/environment"
)

const basePrompt = `You are a terminal assistant that turns goals into shell commands.
Prefer simple, idempotent, non-interactive commands. Never use sudo unless the
goal requires it. One command per step; do not chain unrelated work with && or ;.
Always answer with the JSON object requested by the user message and nothing else.`

// SystemPrompt renders the system message for info. A nil info omits the
// environment section.
func SystemPrompt(info *environment.SystemInfo) string {
	if info == nil {
		return basePrompt
	}
	lines := info.Lines()
	if len(lines) == 0 {
		return basePrompt
	}
	var b strings.Builder
	b.WriteString(basePrompt)
	b.WriteString("\n\nEnvironment:\n")
	b.WriteString(strings.Join(lines, "\n"))
	return b.String()
}
