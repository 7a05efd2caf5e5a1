package agent_test

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/apercallc/ai-terminal/internal/agent"
)

func makePlan(n int) agent.CommandPlan {
	plan := agent.CommandPlan{Goal: "goal", Summary: "summary"}
	for i := 0; i < n; i++ {
		plan.Steps = append(plan.Steps, agent.CommandStep{
			ID:        fmt.Sprintf("step-%d", i+1),
			Command:   fmt.Sprintf("echo %d", i+1),
			RiskLevel: agent.RiskLow,
		})
	}
	return plan
}

// genEvent draws an arbitrary event, valid or not for the current state.
func genEvent(t *rapid.T, label string) agent.Event {
	switch rapid.IntRange(0, 11).Draw(t, label+"_kind") {
	case 0:
		return agent.StartPlanning{Goal: "g"}
	case 1:
		return agent.PlanReady{Plan: makePlan(rapid.IntRange(0, 4).Draw(t, label+"_steps"))}
	case 2:
		return agent.PlanFailed{Error: "boom"}
	case 3:
		return agent.ApproveStep{}
	case 4:
		return agent.AutoApprove{}
	case 5:
		return agent.RejectStep{}
	case 6:
		return agent.StepComplete{Record: agent.ExecutionRecord{ID: label, Success: true}}
	case 7:
		return agent.StepFailed{Record: agent.ExecutionRecord{ID: label}}
	case 8:
		return agent.Retry{}
	case 9:
		return agent.AnalysisFailed{Error: "analysis"}
	case 10:
		return agent.Cancel{}
	default:
		return agent.Reset{}
	}
}

// Feature: aiterm, Property 1: cursor stays inside the plan while active
func TestCursorStaysInRange(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		m := agent.NewMachine(agent.WithMaxRetries(rapid.IntRange(0, 4).Draw(t, "max_retries")))
		n := rapid.IntRange(1, 40).Draw(t, "n")
		for i := 0; i < n; i++ {
			m.Dispatch(genEvent(t, fmt.Sprintf("ev%d", i)))
			s := m.Snapshot()
			if s.State.Active() {
				if s.Plan == nil {
					t.Fatalf("active state %s without a plan", s.State)
				}
				if s.CurrentStepIndex < 0 || s.CurrentStepIndex >= len(s.Plan.Steps) {
					t.Fatalf("cursor %d outside [0,%d) in %s", s.CurrentStepIndex, len(s.Plan.Steps), s.State)
				}
				if s.CurrentStep == nil {
					t.Fatalf("active state %s without a current step", s.State)
				}
			} else if s.CurrentStepIndex != -1 || s.CurrentStep != nil {
				t.Fatalf("inactive state %s has cursor %d", s.State, s.CurrentStepIndex)
			}
		}
	})
}

// Feature: aiterm, Property 2: history never shrinks except on reset or a new goal
func TestHistoryAppendOnly(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		m := agent.NewMachine()
		n := rapid.IntRange(1, 40).Draw(t, "n")
		prev := m.Snapshot().History
		for i := 0; i < n; i++ {
			ev := genEvent(t, fmt.Sprintf("ev%d", i))
			m.Dispatch(ev)
			cur := m.Snapshot().History
			switch ev.(type) {
			case agent.Reset, agent.StartPlanning:
				prev = cur
				continue
			}
			if len(cur) < len(prev) {
				t.Fatalf("history shrank from %d to %d on %s", len(prev), len(cur), ev.Kind())
			}
			for j := range prev {
				if cur[j].ID != prev[j].ID {
					t.Fatalf("history reordered at %d", j)
				}
			}
			prev = cur
		}
	})
}

func analyzingMachine(t require.TestingT, maxRetries int) *agent.Machine {
	m := agent.NewMachine(agent.WithMaxRetries(maxRetries))
	m.Dispatch(agent.StartPlanning{Goal: "g"})
	m.Dispatch(agent.PlanReady{Plan: makePlan(2)})
	m.Dispatch(agent.ApproveStep{})
	require.True(t, m.Dispatch(agent.StepFailed{Record: agent.ExecutionRecord{ID: "r"}}))
	return m
}

// Feature: aiterm, Property 3: retry ceiling is exact
func TestRetryCeiling(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		maxRetries := rapid.IntRange(0, 6).Draw(t, "max_retries")

		m := analyzingMachine(t, maxRetries)
		for i := 0; i < maxRetries; i++ {
			m.Dispatch(agent.Retry{StepID: "step-1"})
		}
		s := m.Snapshot()
		if maxRetries > 0 {
			if s.State != agent.StateExecuting || s.RetryCount != maxRetries {
				t.Fatalf("after %d retries: state=%s retryCount=%d", maxRetries, s.State, s.RetryCount)
			}
		}

		m.Dispatch(agent.Retry{StepID: "step-1"})
		s = m.Snapshot()
		if s.State != agent.StateError || s.Error != agent.ErrMaxRetries {
			t.Fatalf("after %d retries: state=%s error=%q", maxRetries+1, s.State, s.Error)
		}
	})
}

func TestRetryThroughFailureCycles(t *testing.T) {
	m := analyzingMachine(t, 2)

	require.True(t, m.Dispatch(agent.Retry{StepID: "step-1"}))
	require.True(t, m.Dispatch(agent.StepFailed{}))
	require.True(t, m.Dispatch(agent.Retry{StepID: "step-1"}))
	require.True(t, m.Dispatch(agent.StepFailed{}))
	assert.Equal(t, 2, m.Snapshot().RetryCount)

	require.True(t, m.Dispatch(agent.Retry{StepID: "step-1"}))
	s := m.Snapshot()
	assert.Equal(t, agent.StateError, s.State)
	assert.Len(t, s.History, 3)
}

func TestRetryAppliesFix(t *testing.T) {
	m := analyzingMachine(t, 3)
	fix := agent.CommandStep{ID: "step-1", Command: "echo fixed", RiskLevel: agent.RiskMedium}

	require.True(t, m.Dispatch(agent.Retry{StepID: "step-1", Fix: &fix}))
	s := m.Snapshot()
	require.NotNil(t, s.CurrentStep)
	assert.Equal(t, "echo fixed", s.CurrentStep.Command)
	assert.Equal(t, "echo 1", s.Plan.Steps[0].Command, "plan must stay unchanged")
}

func TestRetryForOtherStepIsNoOp(t *testing.T) {
	m := analyzingMachine(t, 3)
	assert.False(t, m.Dispatch(agent.Retry{StepID: "step-2"}))
	assert.Equal(t, agent.StateAnalyzing, m.Snapshot().State)
}

// Feature: aiterm, Property 4: completing a step resets retries or finishes the plan
func TestStepCompleteAdvancesOrCompletes(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 6).Draw(t, "steps")
		m := agent.NewMachine(agent.WithMaxRetries(5))
		m.Dispatch(agent.StartPlanning{Goal: "g"})
		m.Dispatch(agent.PlanReady{Plan: makePlan(n)})

		for i := 0; i < n; i++ {
			m.Dispatch(agent.ApproveStep{})
			retries := rapid.IntRange(0, 3).Draw(t, fmt.Sprintf("retries_%d", i))
			for r := 0; r < retries; r++ {
				m.Dispatch(agent.StepFailed{})
				m.Dispatch(agent.Retry{})
			}
			m.Dispatch(agent.StepComplete{Record: agent.ExecutionRecord{Success: true}})

			s := m.Snapshot()
			if i < n-1 {
				if s.State != agent.StateAwaitingApproval || s.RetryCount != 0 || s.CurrentStepIndex != i+1 {
					t.Fatalf("step %d: state=%s retry=%d cursor=%d", i, s.State, s.RetryCount, s.CurrentStepIndex)
				}
			} else if s.State != agent.StateComplete || s.CurrentStep != nil {
				t.Fatalf("final step: state=%s current=%v", s.State, s.CurrentStep)
			}
		}
	})
}

func TestSubscriberSeesTwoStepSequence(t *testing.T) {
	m := agent.NewMachine()
	var states []agent.State
	m.Subscribe(func(s agent.Snapshot) { states = append(states, s.State) })

	m.Dispatch(agent.StartPlanning{Goal: "g"})
	m.Dispatch(agent.PlanReady{Plan: makePlan(2)})
	m.Dispatch(agent.ApproveStep{})
	m.Dispatch(agent.StepComplete{})
	m.Dispatch(agent.StepComplete{})

	want := []agent.State{
		agent.StatePlanning,
		agent.StateAwaitingApproval,
		agent.StateExecuting,
		agent.StateAwaitingApproval,
		agent.StateComplete,
	}
	if diff := cmp.Diff(want, states); diff != "" {
		t.Errorf("notification sequence mismatch (-want +got):\n%s", diff)
	}
}

func TestNoOpEventsDoNotNotify(t *testing.T) {
	m := agent.NewMachine()
	calls := 0
	m.Subscribe(func(agent.Snapshot) { calls++ })

	for _, ev := range []agent.Event{
		agent.PlanReady{Plan: makePlan(1)},
		agent.PlanFailed{},
		agent.ApproveStep{},
		agent.AutoApprove{},
		agent.RejectStep{},
		agent.StepComplete{},
		agent.StepFailed{},
		agent.Retry{},
		agent.AnalysisFailed{},
	} {
		assert.False(t, m.Dispatch(ev), "%s from idle must be a no-op", ev.Kind())
	}
	assert.Zero(t, calls)
	assert.Equal(t, agent.InitialSnapshot(), m.Snapshot())
}

func TestStepCompleteAfterCancelIsIgnored(t *testing.T) {
	m := agent.NewMachine()
	m.Dispatch(agent.StartPlanning{Goal: "g"})
	m.Dispatch(agent.PlanReady{Plan: makePlan(2)})
	m.Dispatch(agent.ApproveStep{})
	m.Dispatch(agent.Cancel{})

	assert.False(t, m.Dispatch(agent.StepComplete{}))
	assert.False(t, m.Dispatch(agent.StepFailed{}))
	s := m.Snapshot()
	assert.Equal(t, agent.StateCancelled, s.State)
	assert.Empty(t, s.History)
}

func TestApproveAndAutoApproveShareTransition(t *testing.T) {
	for _, ev := range []agent.Event{agent.ApproveStep{}, agent.AutoApprove{}} {
		m := agent.NewMachine()
		m.Dispatch(agent.StartPlanning{Goal: "g"})
		m.Dispatch(agent.PlanReady{Plan: makePlan(1)})
		require.True(t, m.Dispatch(ev))
		assert.Equal(t, agent.StateExecuting, m.Snapshot().State)
	}
	assert.NotEqual(t, agent.ApproveStep{}.Kind(), agent.AutoApprove{}.Kind())
}

func TestRejectCancels(t *testing.T) {
	m := agent.NewMachine()
	m.Dispatch(agent.StartPlanning{Goal: "g"})
	m.Dispatch(agent.PlanReady{Plan: makePlan(1)})
	require.True(t, m.Dispatch(agent.RejectStep{StepID: "step-1"}))
	assert.Equal(t, agent.StateCancelled, m.Snapshot().State)
}

func TestStartPlanningDiscardsPreviousRun(t *testing.T) {
	m := agent.NewMachine()
	m.Dispatch(agent.StartPlanning{Goal: "first"})
	m.Dispatch(agent.PlanReady{Plan: makePlan(1)})
	m.Dispatch(agent.ApproveStep{})
	m.Dispatch(agent.StepComplete{Record: agent.ExecutionRecord{ID: "r1"}})
	require.Equal(t, agent.StateComplete, m.Snapshot().State)

	m.Dispatch(agent.StartPlanning{Goal: "second"})
	s := m.Snapshot()
	assert.Equal(t, agent.StatePlanning, s.State)
	assert.Equal(t, "second", s.Goal)
	assert.Nil(t, s.Plan)
	assert.Empty(t, s.History)
}

func TestEmptyPlanIsAnError(t *testing.T) {
	m := agent.NewMachine()
	m.Dispatch(agent.StartPlanning{Goal: "g"})
	require.True(t, m.Dispatch(agent.PlanReady{Plan: agent.CommandPlan{}}))
	assert.Equal(t, agent.StateError, m.Snapshot().State)
}

func TestSnapshotsAreIsolated(t *testing.T) {
	m := agent.NewMachine()
	var seen agent.Snapshot
	m.Subscribe(func(s agent.Snapshot) { seen = s })
	m.Dispatch(agent.StartPlanning{Goal: "g"})
	m.Dispatch(agent.PlanReady{Plan: makePlan(2)})

	seen.Plan.Steps[0].Command = "rm -rf /"
	seen.CurrentStep.Command = "rm -rf /"

	s := m.Snapshot()
	assert.Equal(t, "echo 1", s.Plan.Steps[0].Command)
	assert.Equal(t, "echo 1", s.CurrentStep.Command)
}

func TestUnsubscribeStopsNotifications(t *testing.T) {
	m := agent.NewMachine()
	var order []string
	unsubA := m.Subscribe(func(agent.Snapshot) { order = append(order, "a") })
	m.Subscribe(func(agent.Snapshot) { order = append(order, "b") })

	m.Dispatch(agent.StartPlanning{Goal: "g"})
	unsubA()
	unsubA()
	m.Dispatch(agent.Cancel{})

	assert.Equal(t, []string{"a", "b", "b"}, order)
}

func TestSnapshotLabel(t *testing.T) {
	s := agent.Snapshot{State: agent.StateExecuting, RetryCount: 1}
	assert.Equal(t, "retrying", s.Label())
	s.RetryCount = 0
	assert.Equal(t, "executing", s.Label())
}

func TestParseRiskLevel(t *testing.T) {
	level, ok := agent.ParseRiskLevel(" HIGH ")
	assert.True(t, ok)
	assert.Equal(t, agent.RiskHigh, level)

	_, ok = agent.ParseRiskLevel("spicy")
	assert.False(t, ok)
}
