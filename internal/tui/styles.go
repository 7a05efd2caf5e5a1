// Package tui is the interactive terminal view of a running goal.
package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/apercallc/ai-terminal/internal/agent"
)

var (
	colorPrimary = lipgloss.Color("82")
	colorMuted   = lipgloss.Color("240")
	colorDanger  = lipgloss.Color("196")
	colorWarning = lipgloss.Color("214")
	colorInfo    = lipgloss.Color("39")
)

// Styles holds every style the run view uses.
type Styles struct {
	Header  lipgloss.Style
	Title   lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Error   lipgloss.Style
	Warning lipgloss.Style
	Current lipgloss.Style
	Command lipgloss.Style
	Box     lipgloss.Style
	Footer  lipgloss.Style
}

// DefaultStyles returns the built-in palette.
func DefaultStyles() Styles {
	return Styles{
		Header: lipgloss.NewStyle().
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 1).
			Bold(true),
		Title:   lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true),
		Muted:   lipgloss.NewStyle().Foreground(colorMuted),
		Success: lipgloss.NewStyle().Foreground(colorPrimary),
		Error:   lipgloss.NewStyle().Foreground(colorDanger).Bold(true),
		Warning: lipgloss.NewStyle().Foreground(colorWarning),
		Current: lipgloss.NewStyle().Foreground(colorInfo).Bold(true),
		Command: lipgloss.NewStyle().Bold(true),
		Box: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorMuted).
			Padding(0, 1),
		Footer: lipgloss.NewStyle().Foreground(colorMuted),
	}
}

// Risk styles a risk level by severity.
func (s Styles) Risk(level agent.RiskLevel) string {
	switch level {
	case agent.RiskMedium:
		return s.Warning.Render(string(level))
	case agent.RiskHigh, agent.RiskCritical:
		return s.Error.Render(string(level))
	}
	return s.Success.Render(string(level))
}

// Status renders the plan-list marker for a step.
func (s Styles) Status(st agent.StepStatus) string {
	switch st {
	case agent.StepDone:
		return s.Success.Render("✓")
	case agent.StepCurrent:
		return s.Current.Render("▶")
	case agent.StepStatusFailed:
		return s.Error.Render("✗")
	case agent.StepCancelled:
		return s.Muted.Render("–")
	}
	return s.Muted.Render("·")
}
