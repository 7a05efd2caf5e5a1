// Package agent holds the goal-execution data model and the lifecycle state
// machine that is the single source of truth for what the agent is doing.
package agent

import (
	"strings"
	"time"
)

// RiskLevel is the declared risk of running a command.
type RiskLevel string

const (
	RiskSafe     RiskLevel = "safe"
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// ParseRiskLevel normalises s into a RiskLevel. ok is false when s is not one
// of the known levels.
func ParseRiskLevel(s string) (level RiskLevel, ok bool) {
	switch RiskLevel(strings.ToLower(strings.TrimSpace(s))) {
	case RiskSafe:
		return RiskSafe, true
	case RiskLow:
		return RiskLow, true
	case RiskMedium:
		return RiskMedium, true
	case RiskHigh:
		return RiskHigh, true
	case RiskCritical:
		return RiskCritical, true
	}
	return "", false
}

// Source records who originated an executed command.
type Source string

const (
	SourceUser   Source = "user"
	SourceAI     Source = "ai"
	SourceSystem Source = "system"
)

// CommandStep is one command within a plan.
type CommandStep struct {
	ID              string    `json:"id"`
	Command         string    `json:"command"`
	Description     string    `json:"description"`
	RiskLevel       RiskLevel `json:"riskLevel"`
	ExpectedOutcome string    `json:"expectedOutcome"`
	Rollback        string    `json:"rollback,omitempty"`
}

// WithFix returns a copy of s that runs command instead, keeping the step id.
func (s CommandStep) WithFix(command, description string, risk RiskLevel) CommandStep {
	fixed := s
	fixed.Command = command
	if description != "" {
		fixed.Description = description
	}
	if risk != "" {
		fixed.RiskLevel = risk
	}
	return fixed
}

// CommandPlan is the ordered list of steps produced for a goal.
type CommandPlan struct {
	Goal    string        `json:"goal"`
	Summary string        `json:"summary"`
	Steps   []CommandStep `json:"steps"`
}

// Clone returns a deep copy of p.
func (p CommandPlan) Clone() CommandPlan {
	p.Steps = append([]CommandStep(nil), p.Steps...)
	return p
}

// ExecutionRecord is the outcome of one attempt at running a step. Retries
// produce one record each.
type ExecutionRecord struct {
	ID        string        `json:"id"`
	Timestamp time.Time     `json:"timestamp"`
	Command   string        `json:"command"`
	Source    Source        `json:"source"`
	RiskLevel RiskLevel     `json:"riskLevel"`
	Approved  bool          `json:"approved"`
	ExitCode  int           `json:"exitCode"`
	Output    string        `json:"output"`
	Duration  time.Duration `json:"duration"`
	Success   bool          `json:"success"`
	SessionID string        `json:"sessionId"`
}

// State is a lifecycle state of the agent.
type State string

const (
	StateIdle             State = "idle"
	StatePlanning         State = "planning"
	StateAwaitingApproval State = "awaiting_approval"
	StateExecuting        State = "executing"
	StateAnalyzing        State = "analyzing"
	StateComplete         State = "complete"
	StateError            State = "error"
	StateCancelled        State = "cancelled"
)

// Active reports whether s carries a valid step cursor.
func (s State) Active() bool {
	return s == StateAwaitingApproval || s == StateExecuting || s == StateAnalyzing
}

// Terminal reports whether s ends a goal run.
func (s State) Terminal() bool {
	return s == StateComplete || s == StateError || s == StateCancelled
}

// Snapshot is an immutable view of the agent lifecycle. Values returned by
// Machine are deep copies; mutating them does not affect the machine.
type Snapshot struct {
	State            State             `json:"state"`
	Goal             string            `json:"goal"`
	Plan             *CommandPlan      `json:"plan,omitempty"`
	CurrentStepIndex int               `json:"currentStepIndex"`
	CurrentStep      *CommandStep      `json:"currentStep,omitempty"`
	History          []ExecutionRecord `json:"history"`
	RetryCount       int               `json:"retryCount"`
	Error            string            `json:"error,omitempty"`
}

// InitialSnapshot is the state after construction or RESET.
func InitialSnapshot() Snapshot {
	return Snapshot{State: StateIdle, CurrentStepIndex: -1}
}

// Clone returns a deep copy of s.
func (s Snapshot) Clone() Snapshot {
	out := s
	if s.Plan != nil {
		p := s.Plan.Clone()
		out.Plan = &p
	}
	if s.CurrentStep != nil {
		step := *s.CurrentStep
		out.CurrentStep = &step
	}
	out.History = append([]ExecutionRecord(nil), s.History...)
	return out
}

// Label is the UI-facing state name; a retry shows as "retrying".
func (s Snapshot) Label() string {
	if s.State == StateExecuting && s.RetryCount > 0 {
		return "retrying"
	}
	return string(s.State)
}
