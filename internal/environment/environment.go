// Package environment describes the machine the agent is running on so the
// planner can tailor commands to it.
package environment

import (
	"context"
	"fmt"
	"strings"
)

// SystemInfo holds facts about the host that are folded into the system prompt.
type SystemInfo struct {
	OS        string `json:"os"`
	Arch      string `json:"arch"`
	Shell     string `json:"shell"`
	Home      string `json:"home"`
	User      string `json:"user"`
	Term      string `json:"term,omitempty"`
	WorkDir   string `json:"workDir"`
	GitBranch string `json:"gitBranch,omitempty"`
}

// Provider gathers SystemInfo.
type Provider interface {
	SystemInfo(ctx context.Context) (SystemInfo, error)
}

// Lines renders the non-empty fields as "- Key: value" lines.
func (s SystemInfo) Lines() []string {
	fields := []struct{ key, value string }{
		{"OS", s.OS},
		{"Architecture", s.Arch},
		{"Shell", s.Shell},
		{"User", s.User},
		{"Home directory", s.Home},
		{"Terminal", s.Term},
		{"Working directory", s.WorkDir},
		{"Git branch", s.GitBranch},
	}
	var lines []string
	for _, f := range fields {
		if v := strings.TrimSpace(f.value); v != "" {
			lines = append(lines, fmt.Sprintf("- %s: %s", f.key, v))
		}
	}
	return lines
}

// IsZero reports whether no field is set.
func (s SystemInfo) IsZero() bool {
	return s == SystemInfo{}
}
