// Package planner asks the model provider for plans, failure analyses and
// success verdicts, and turns its free-text answers into typed values.
package planner

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/apercallc/ai-terminal/internal/agent"
	"github.com/apercallc/ai-terminal/internal/convo"
	"github.com/apercallc/ai-terminal/internal/llm"
)

// DefaultTemperature keeps model answers close to deterministic.
const DefaultTemperature = 0.1

// Analysis is the model's diagnosis of a failed step.
type Analysis struct {
	Cause          string
	FixCommand     string
	FixDescription string
	FixRiskLevel   agent.RiskLevel
	ShouldRetry    bool
}

// FixFor returns the step to run on the next attempt.
func (a Analysis) FixFor(step agent.CommandStep) agent.CommandStep {
	return step.WithFix(a.FixCommand, a.FixDescription, a.FixRiskLevel)
}

// Verification is a success verdict for a step's output.
type Verification struct {
	Success bool
	Reason  string
}

// Planner wraps a model provider. It records every prompt and raw answer in
// the conversation so later calls see earlier ones.
type Planner struct {
	mu       sync.RWMutex
	provider llm.Provider

	convo       *convo.Context
	temperature float64
	log         *zap.Logger
}

// Option configures a Planner.
type Option func(*Planner)

// WithTemperature overrides the sampling temperature sent with every request.
func WithTemperature(t float64) Option {
	return func(p *Planner) { p.temperature = t }
}

// WithLogger sets the planner logger. A nil logger is ignored.
func WithLogger(log *zap.Logger) Option {
	return func(p *Planner) {
		if log != nil {
			p.log = log
		}
	}
}

// New returns a Planner. provider may be nil and set later with SetProvider.
func New(provider llm.Provider, c *convo.Context, opts ...Option) *Planner {
	if c == nil {
		c = convo.New()
	}
	p := &Planner{
		provider:    provider,
		convo:       c,
		temperature: DefaultTemperature,
		log:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SetProvider swaps the model provider. Calls already in flight finish on the
// provider they started with; the conversation is kept.
func (p *Planner) SetProvider(provider llm.Provider) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.provider = provider
}

// Context returns the conversation the planner writes to.
func (p *Planner) Context() *convo.Context {
	return p.convo
}

func (p *Planner) complete(ctx context.Context, prompt string) (string, error) {
	p.mu.RLock()
	provider := p.provider
	p.mu.RUnlock()
	if provider == nil {
		return "", ErrNoProvider
	}

	p.convo.AddUserMessage(prompt)
	resp, err := provider.Complete(ctx, p.convo.BuildMessages(), llm.Options{
		Temperature: llm.Temperature(p.temperature),
	})
	if err != nil {
		return "", fmt.Errorf("%s completion: %w", provider.Name(), err)
	}
	p.convo.AddAssistantMessage(resp.Content)
	if resp.Usage != nil {
		p.log.Debug("completion usage",
			zap.String("provider", provider.Name()),
			zap.Int("prompt_tokens", resp.Usage.PromptTokens),
			zap.Int("completion_tokens", resp.Usage.CompletionTokens))
	}
	return resp.Content, nil
}

type planResponse struct {
	Plan *struct {
		Goal    string `json:"goal"`
		Summary string `json:"summary"`
		Steps   []struct {
			ID              string `json:"id"`
			Command         string `json:"command"`
			Description     string `json:"description"`
			RiskLevel       string `json:"riskLevel"`
			ExpectedOutcome string `json:"expectedOutcome"`
			Rollback        string `json:"rollback"`
		} `json:"steps"`
	} `json:"plan"`
}

// CreatePlan asks the model for a plan for goal. Unknown risk levels become
// low; missing step ids become step-N.
func (p *Planner) CreatePlan(ctx context.Context, goal string) (agent.CommandPlan, error) {
	text, err := p.complete(ctx, planPrompt(goal))
	if err != nil {
		return agent.CommandPlan{}, err
	}

	resp, err := decode[planResponse](text)
	if err != nil {
		return agent.CommandPlan{}, fmt.Errorf("%w: %w", ErrPlanInvalid, err)
	}
	if resp.Plan == nil {
		return agent.CommandPlan{}, ErrPlanInvalid
	}
	if len(resp.Plan.Steps) == 0 {
		return agent.CommandPlan{}, ErrEmptyPlan
	}

	plan := agent.CommandPlan{
		Goal:    strings.TrimSpace(resp.Plan.Goal),
		Summary: resp.Plan.Summary,
		Steps:   make([]agent.CommandStep, 0, len(resp.Plan.Steps)),
	}
	if plan.Goal == "" {
		plan.Goal = goal
	}
	for i, s := range resp.Plan.Steps {
		risk, ok := agent.ParseRiskLevel(s.RiskLevel)
		if !ok {
			risk = agent.RiskLow
		}
		id := strings.TrimSpace(s.ID)
		if id == "" {
			id = fmt.Sprintf("step-%d", i+1)
		}
		plan.Steps = append(plan.Steps, agent.CommandStep{
			ID:              id,
			Command:         s.Command,
			Description:     s.Description,
			RiskLevel:       risk,
			ExpectedOutcome: s.ExpectedOutcome,
			Rollback:        s.Rollback,
		})
	}
	p.log.Debug("plan created", zap.String("goal", goal), zap.Int("steps", len(plan.Steps)))
	return plan, nil
}

type analysisResponse struct {
	Analysis *struct {
		Cause string `json:"cause"`
		Fix   struct {
			Command     string `json:"command"`
			Description string `json:"description"`
			RiskLevel   string `json:"riskLevel"`
		} `json:"fix"`
		ShouldRetry *bool `json:"shouldRetry"`
	} `json:"analysis"`
}

// AnalyzeError asks the model why step failed. An unusable answer yields a
// fallback that retries the original command at its original risk.
func (p *Planner) AnalyzeError(ctx context.Context, step agent.CommandStep, output string, exitCode int) (Analysis, error) {
	text, err := p.complete(ctx, analysisPrompt(step, output, exitCode))
	if err != nil {
		return Analysis{}, err
	}

	fallback := Analysis{
		Cause:        "Unable to analyze the failure",
		FixCommand:   step.Command,
		FixRiskLevel: step.RiskLevel,
		ShouldRetry:  true,
	}
	resp, err := decode[analysisResponse](text)
	if err != nil || resp.Analysis == nil {
		p.log.Warn("unparsable error analysis, retrying original command",
			zap.String("step", step.ID), zap.Error(err))
		return fallback, nil
	}

	a := resp.Analysis
	out := Analysis{
		Cause:          a.Cause,
		FixCommand:     strings.TrimSpace(a.Fix.Command),
		FixDescription: a.Fix.Description,
		ShouldRetry:    a.ShouldRetry == nil || *a.ShouldRetry,
	}
	if out.FixCommand == "" {
		out.FixCommand = step.Command
	}
	risk, ok := agent.ParseRiskLevel(a.Fix.RiskLevel)
	if !ok {
		risk = step.RiskLevel
	}
	out.FixRiskLevel = risk
	return out, nil
}

type verificationResponse struct {
	Verification *struct {
		Success bool   `json:"success"`
		Reason  string `json:"reason"`
	} `json:"verification"`
}

// VerifySuccess asks the model whether output shows step succeeded. When the
// answer is unusable the keyword heuristic decides. A provider error is
// returned together with the heuristic verdict.
func (p *Planner) VerifySuccess(ctx context.Context, step agent.CommandStep, output string) (Verification, error) {
	text, err := p.complete(ctx, verifyPrompt(step, output))
	if err != nil {
		return HeuristicVerdict(output), err
	}
	resp, err := decode[verificationResponse](text)
	if err != nil || resp.Verification == nil {
		return HeuristicVerdict(output), nil
	}
	return Verification{Success: resp.Verification.Success, Reason: resp.Verification.Reason}, nil
}

var failureKeywords = []string{"error", "failed", "not found"}

// HeuristicVerdict treats output mentioning an error keyword as a failure.
func HeuristicVerdict(output string) Verification {
	lower := strings.ToLower(output)
	for _, kw := range failureKeywords {
		if strings.Contains(lower, kw) {
			return Verification{Success: false, Reason: fmt.Sprintf("Output contains %q", kw)}
		}
	}
	return Verification{Success: true, Reason: "Command completed with normal output"}
}
