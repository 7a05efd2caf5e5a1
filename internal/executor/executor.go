// Package executor drives the agent state machine: it plans goals, runs
// approved steps in the shell session and handles failures and cancellation.
package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/apercallc/ai-terminal/internal/agent"
	"github.com/apercallc/ai-terminal/internal/audit"
	"github.com/apercallc/ai-terminal/internal/environment"
	"github.com/apercallc/ai-terminal/internal/llm"
	"github.com/apercallc/ai-terminal/internal/planner"
	"github.com/apercallc/ai-terminal/internal/redact"
	"github.com/apercallc/ai-terminal/internal/shell"
)

// DefaultCommandTimeout bounds how long a single command is awaited.
const DefaultCommandTimeout = 120 * time.Second

// Mode selects whether steps wait for approval.
type Mode string

const (
	ModeSafe Mode = "safe"
	ModeAuto Mode = "auto"
)

// ParseMode accepts "safe" or "auto" in any case.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeSafe:
		return ModeSafe, nil
	case ModeAuto:
		return ModeAuto, nil
	}
	return "", fmt.Errorf("unknown mode %q (want safe or auto)", s)
}

var (
	ErrNoSession           = errors.New("no shell session attached")
	ErrNoActiveRun         = errors.New("no goal is running")
	ErrNotAwaitingApproval = errors.New("no step is awaiting approval")
)

// Options configures New. Planner is required.
type Options struct {
	Planner        *planner.Planner
	Machine        *agent.Machine       // NewMachine() if nil
	Environment    environment.Provider // system info is skipped if nil
	Audit          audit.Logger         // audit.Nop if nil
	Redactor       *redact.Redactor     // redact.Default() if nil
	Session        shell.Session
	Mode           Mode // ModeSafe if empty
	CommandTimeout time.Duration
	Logger         *zap.Logger
}

// Executor owns one goal run at a time.
type Executor struct {
	machine  *agent.Machine
	planner  *planner.Planner
	env      environment.Provider
	audit    audit.Logger
	redactor *redact.Redactor
	timeout  time.Duration
	log      *zap.Logger

	// gate orders run dispatches against cancellation.
	gate sync.Mutex

	mu      sync.Mutex
	session shell.Session
	mode    Mode
	run     *run
}

// run is the cancellation token of one ExecuteGoal call.
type run struct {
	goal   string
	ctx    context.Context
	cancel context.CancelFunc
}

// New returns an Executor. Unset options fall back to a fresh machine, the
// Nop audit log, the default redactor and timeout, and safe mode.
func New(opts Options) *Executor {
	e := &Executor{
		machine:  opts.Machine,
		planner:  opts.Planner,
		env:      opts.Environment,
		audit:    opts.Audit,
		redactor: opts.Redactor,
		timeout:  opts.CommandTimeout,
		log:      opts.Logger,
		session:  opts.Session,
		mode:     opts.Mode,
	}
	if e.machine == nil {
		e.machine = agent.NewMachine()
	}
	if e.planner == nil {
		e.planner = planner.New(nil, nil)
	}
	if e.audit == nil {
		e.audit = audit.Nop{}
	}
	if e.redactor == nil {
		e.redactor = redact.Default()
	}
	if e.timeout <= 0 {
		e.timeout = DefaultCommandTimeout
	}
	if e.log == nil {
		e.log = zap.NewNop()
	}
	if e.mode == "" {
		e.mode = ModeSafe
	}
	return e
}

// Machine returns the state machine the executor drives.
func (e *Executor) Machine() *agent.Machine { return e.machine }

func (e *Executor) SetProvider(p llm.Provider) { e.planner.SetProvider(p) }

// SetSession replaces the shell session used by later steps.
func (e *Executor) SetSession(s shell.Session) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.session = s
}

// SetMode switches between safe and auto approval for later steps.
func (e *Executor) SetMode(m Mode) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mode = m
}

func (e *Executor) Mode() Mode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mode
}

func (e *Executor) currentSession() shell.Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session
}

func (e *Executor) currentRun() *run {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.run
}

// ExecuteGoal plans goal and, in auto mode, runs every step before
// returning. In safe mode it returns once the first step awaits approval.
// Cancelling ctx cancels the run.
func (e *Executor) ExecuteGoal(ctx context.Context, goal string) error {
	r := e.startRun(ctx, goal)
	defer e.release(r)

	if e.env != nil {
		info, err := e.env.SystemInfo(r.ctx)
		if err != nil {
			e.log.Warn("system info unavailable", zap.Error(err))
		} else {
			e.planner.Context().SetSystemInfo(info)
		}
	}

	if _, ok := e.dispatch(r, agent.StartPlanning{Goal: goal}); !ok {
		return r.ctx.Err()
	}
	plan, err := e.planner.CreatePlan(r.ctx, goal)
	if err != nil {
		if r.ctx.Err() != nil {
			return r.ctx.Err()
		}
		e.dispatch(r, agent.PlanFailed{Error: err.Error()})
		return fmt.Errorf("planning: %w", err)
	}
	if _, ok := e.dispatch(r, agent.PlanReady{Plan: plan}); !ok {
		return r.ctx.Err()
	}
	e.log.Info("plan ready", zap.String("goal", goal), zap.Int("steps", len(plan.Steps)))

	e.advance(r)
	return r.ctx.Err()
}

// ApproveCurrentStep runs the step awaiting approval, then continues
// automatically if the executor is in auto mode.
func (e *Executor) ApproveCurrentStep() error {
	r := e.currentRun()
	if r == nil {
		return ErrNoActiveRun
	}
	defer e.release(r)

	snap, ok := e.dispatch(r, agent.ApproveStep{})
	if !ok || snap.CurrentStep == nil {
		return ErrNotAwaitingApproval
	}
	e.executeStep(r, *snap.CurrentStep)
	e.advance(r)
	return nil
}

// RejectCurrentStep cancels the run at the step awaiting approval.
func (e *Executor) RejectCurrentStep() error {
	r := e.currentRun()
	if r == nil {
		return ErrNoActiveRun
	}
	defer e.release(r)

	step := e.machine.Snapshot().CurrentStep
	if step == nil {
		return ErrNotAwaitingApproval
	}
	if _, ok := e.dispatch(r, agent.RejectStep{StepID: step.ID}); !ok {
		return ErrNotAwaitingApproval
	}
	return nil
}

// Cancel aborts the current run. No step result is dispatched after Cancel
// returns.
func (e *Executor) Cancel() {
	e.gate.Lock()
	defer e.gate.Unlock()
	if r := e.currentRun(); r != nil {
		r.cancel()
	}
	e.machine.Dispatch(agent.Cancel{})
}

// Reset cancels any run and returns the machine and conversation to their
// initial state.
func (e *Executor) Reset() {
	e.gate.Lock()
	defer e.gate.Unlock()
	e.mu.Lock()
	r := e.run
	e.run = nil
	e.mu.Unlock()
	if r != nil {
		r.cancel()
	}
	e.machine.Dispatch(agent.Reset{})
	e.planner.Context().Clear()
}

func (e *Executor) startRun(ctx context.Context, goal string) *run {
	runCtx, cancel := context.WithCancel(ctx)
	r := &run{goal: goal, ctx: runCtx, cancel: cancel}

	e.gate.Lock()
	e.mu.Lock()
	prev := e.run
	e.run = r
	e.mu.Unlock()
	e.gate.Unlock()
	if prev != nil {
		prev.cancel()
	}

	context.AfterFunc(runCtx, func() { e.abandon(r) })
	return r
}

// abandon moves a still-current, unfinished run to cancelled once its
// context is done.
func (e *Executor) abandon(r *run) {
	e.gate.Lock()
	defer e.gate.Unlock()
	if e.currentRun() != r {
		return
	}
	s := e.machine.Snapshot().State
	if s == agent.StateIdle || s.Terminal() {
		return
	}
	e.log.Info("run context done, cancelling", zap.String("goal", r.goal), zap.String("state", string(s)))
	e.machine.Dispatch(agent.Cancel{})
}

// release frees the run token once the run has reached a terminal state.
func (e *Executor) release(r *run) {
	if e.machine.Snapshot().State.Terminal() {
		r.cancel()
	}
}

// dispatch applies ev unless r has been cancelled or superseded. The returned
// snapshot is the state right after ev.
func (e *Executor) dispatch(r *run, ev agent.Event) (agent.Snapshot, bool) {
	e.gate.Lock()
	defer e.gate.Unlock()
	if r.ctx.Err() != nil || e.currentRun() != r {
		e.log.Debug("dropping event from stale run", zap.String("event", string(ev.Kind())))
		return agent.Snapshot{}, false
	}
	if !e.machine.Dispatch(ev) {
		return agent.Snapshot{}, false
	}
	return e.machine.Snapshot(), true
}
