// Package redact strips credentials from commands and output before they are
// written to the audit log.
package redact

import (
	"path/filepath"
	"regexp"
	"strings"
)

const (
	Placeholder       = "[REDACTED]"
	DeniedPlaceholder = "[REDACTED BY POLICY]"
)

type rule struct {
	re   *regexp.Regexp
	repl string
}

// Redactor applies a fixed rule set. It is safe for concurrent use.
type Redactor struct {
	deny  []*regexp.Regexp
	rules []rule
}

// Default returns the built-in rule set.
func Default() *Redactor {
	keep := `${1}` + Placeholder
	return &Redactor{
		deny: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\bcat\s+\S*\.ssh/`),
			regexp.MustCompile(`(?i)\bid_(rsa|ed25519|ecdsa)\b`),
			regexp.MustCompile(`(?i)\bkubectl\s+get\s+secrets?\b.*\s-o\s*(yaml|json)\b`),
			regexp.MustCompile(`(?i)\bgcloud\s+auth\s+print-(access|identity)-token\b`),
			regexp.MustCompile(`(?i)\baws\s+configure\s+get\b`),
		},
		rules: []rule{
			{regexp.MustCompile(`(?i)(authorization\s*:\s*(?:bearer|basic|token)\s+)([^\s"']+)`), keep},
			{regexp.MustCompile(`(?i)(--(?:token|password|passwd|api[_-]?key|secret|private[_-]?key)[=\s]\s*)([^\s]+)`), keep},
			{regexp.MustCompile(`(?i)(\b(?:token|secret|password|passwd|api[_-]?key)\b\s*[:=]\s*)([^\s"',]+)`), keep},
			{regexp.MustCompile(`(\b[A-Z][A-Z0-9_]*(?:KEY|TOKEN|SECRET|PASSWORD|PASSWD|CREDENTIALS?)=)([^\s]+)`), keep},
			{regexp.MustCompile(`(://[^/\s:@]+:)([^@\s/]+)(@)`), `${1}` + Placeholder + `${3}`},
			{regexp.MustCompile(`\bsk-[A-Za-z0-9_-]{16,}`), Placeholder},
			{regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`), Placeholder},
			{regexp.MustCompile(`\bgh[pousr]_[A-Za-z0-9]{30,}\b`), Placeholder},
		},
	}
}

// Denied reports whether command reads a secret store outright, in which case
// neither it nor its output should be recorded.
func (r *Redactor) Denied(command string) bool {
	fields := strings.Fields(command)
	if len(fields) > 0 {
		switch strings.ToLower(filepath.Base(fields[0])) {
		case "env", "printenv":
			return true
		}
	}
	for _, re := range r.deny {
		if re.MatchString(command) {
			return true
		}
	}
	return false
}

// String replaces every credential-looking span of s.
func (r *Redactor) String(s string) string {
	for _, rl := range r.rules {
		s = rl.re.ReplaceAllString(s, rl.repl)
	}
	return s
}

// Command returns the audit form of command.
func (r *Redactor) Command(command string) string {
	if r.Denied(command) {
		return DeniedPlaceholder
	}
	return r.String(command)
}
