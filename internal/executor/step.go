package executor

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/apercallc/ai-terminal/internal/agent"
	"github.com/apercallc/ai-terminal/internal/audit"
	"github.com/apercallc/ai-terminal/internal/convo"
)

// advance keeps approving and running steps while the executor is in auto
// mode and the run is awaiting approval.
func (e *Executor) advance(r *run) {
	for e.Mode() == ModeAuto {
		snap, ok := e.dispatch(r, agent.AutoApprove{})
		if !ok || snap.CurrentStep == nil {
			return
		}
		e.executeStep(r, *snap.CurrentStep)
	}
}

// executeStep runs step and, on failure, the fixes proposed by the planner
// until the step completes, retries run out or the run is cancelled.
func (e *Executor) executeStep(r *run, step agent.CommandStep) {
	for attempt := 1; ; attempt++ {
		rec, err := e.attempt(r, step, attempt)
		if r.ctx.Err() != nil {
			return
		}
		if rec.Success {
			e.dispatch(r, agent.StepComplete{Record: rec})
			return
		}
		if _, ok := e.dispatch(r, agent.StepFailed{Record: rec}); !ok {
			return
		}
		if errors.Is(err, ErrNoSession) {
			e.dispatch(r, agent.AnalysisFailed{Error: "Cannot execute: " + err.Error()})
			return
		}
		next, retry := e.handleFailure(r, step, rec)
		if !retry {
			return
		}
		step = next
	}
}

// handleFailure asks the planner for a fix and dispatches RETRY. It returns
// the step to run next when the machine is still executing afterwards.
func (e *Executor) handleFailure(r *run, step agent.CommandStep, rec agent.ExecutionRecord) (agent.CommandStep, bool) {
	analysis, err := e.planner.AnalyzeError(r.ctx, step, rec.Output, rec.ExitCode)
	if r.ctx.Err() != nil {
		return agent.CommandStep{}, false
	}
	if err != nil {
		e.log.Warn("error analysis failed", zap.String("step", step.ID), zap.Error(err))
		e.dispatch(r, agent.AnalysisFailed{Error: "Error analysis failed: " + err.Error()})
		return agent.CommandStep{}, false
	}
	if !analysis.ShouldRetry {
		msg := "Step " + step.ID + " cannot be retried"
		if analysis.Cause != "" {
			msg += ": " + analysis.Cause
		}
		e.dispatch(r, agent.AnalysisFailed{Error: msg})
		return agent.CommandStep{}, false
	}

	fix := analysis.FixFor(step)
	e.log.Info("retrying step",
		zap.String("step", step.ID),
		zap.String("cause", analysis.Cause),
		zap.String("fix", e.redactor.Command(fix.Command)))
	snap, ok := e.dispatch(r, agent.Retry{StepID: step.ID, Fix: &fix})
	if !ok || snap.State != agent.StateExecuting || snap.CurrentStep == nil {
		return agent.CommandStep{}, false
	}
	return *snap.CurrentStep, true
}

// attempt runs step once. The returned error is ErrNoSession, a context
// error, or a shell write error; validation and command failures only show
// up in the record.
func (e *Executor) attempt(r *run, step agent.CommandStep, n int) (agent.ExecutionRecord, error) {
	start := time.Now()
	rec := agent.ExecutionRecord{
		ID:        uuid.NewString(),
		Timestamp: start,
		Command:   step.Command,
		Source:    agent.SourceAI,
		RiskLevel: step.RiskLevel,
		Approved:  true,
		ExitCode:  -1,
	}

	session := e.currentSession()
	if session == nil {
		rec.Output = ErrNoSession.Error()
		return rec, ErrNoSession
	}
	rec.SessionID = session.ID()

	if err := ValidateCommand(step.Command); err != nil {
		rec.Output = "Command rejected: " + err.Error()
		e.log.Warn("command rejected", zap.String("step", step.ID), zap.Error(err))
		return rec, nil
	}

	entry := audit.Entry{
		ID:        rec.ID,
		SessionID: rec.SessionID,
		Goal:      r.goal,
		StepID:    step.ID,
		Command:   step.Command,
		Source:    string(rec.Source),
		RiskLevel: string(rec.RiskLevel),
		Approved:  rec.Approved,
		Attempt:   n,
	}
	e.writeAudit(entry, audit.PhaseStart, start)

	e.log.Debug("running command", zap.String("step", step.ID), zap.Int("attempt", n))
	res, err := runCommand(r.ctx, session, step.Command, e.timeout)
	rec.Duration = time.Since(start)
	rec.Output = res.Output
	rec.ExitCode = res.ExitCode
	if err != nil {
		entry.Error = err.Error()
		entry.Output = res.Output
		e.writeAudit(entry, audit.PhaseFinish, time.Now())
		if r.ctx.Err() != nil {
			return rec, r.ctx.Err()
		}
		rec.Output = joinOutput(res.Output, fmt.Sprintf("shell error: %v", err))
		return rec, err
	}
	if res.TimedOut {
		e.log.Warn("command timed out, using partial output",
			zap.String("step", step.ID), zap.Duration("timeout", e.timeout))
	}

	verdict, err := e.planner.VerifySuccess(r.ctx, step, res.Output)
	if r.ctx.Err() != nil {
		return rec, r.ctx.Err()
	}
	if err != nil {
		e.log.Warn("verification failed, using heuristic", zap.String("step", step.ID), zap.Error(err))
	}
	rec.Success = verdict.Success
	e.planner.Context().RecordOutput(step.ID, res.Output)

	code, success := rec.ExitCode, rec.Success
	entry.ExitCode = &code
	entry.Success = &success
	entry.Duration = rec.Duration
	entry.Output = res.Output
	if res.TimedOut {
		entry.Error = "timed out"
	}
	e.writeAudit(entry, audit.PhaseFinish, time.Now())
	return rec, nil
}

// writeAudit redacts entry and writes it. Failures are logged and dropped.
func (e *Executor) writeAudit(entry audit.Entry, phase audit.Phase, at time.Time) {
	entry.Phase = phase
	entry.Timestamp = at
	if e.redactor.Denied(entry.Command) {
		entry.Output = ""
	} else if entry.Output != "" {
		entry.Output = e.redactor.String(convo.Truncate(entry.Output))
	}
	entry.Command = e.redactor.Command(entry.Command)
	if err := e.audit.Write(entry); err != nil {
		e.log.Warn("audit write failed", zap.Error(err))
	}
}

func joinOutput(output, note string) string {
	if output == "" {
		return note
	}
	return output + "\n" + note
}
