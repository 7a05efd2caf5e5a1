package tui

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/apercallc/ai-terminal/internal/agent"
	"github.com/apercallc/ai-terminal/internal/executor"
	"github.com/apercallc/ai-terminal/internal/shell"
)

type fakeController struct {
	mu         sync.Mutex
	approved   int
	rejected   int
	cancelled  int
	mode       executor.Mode
	approveErr error
}

func (f *fakeController) ApproveCurrentStep() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.approved++
	return f.approveErr
}

func (f *fakeController) RejectCurrentStep() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejected++
	return nil
}

func (f *fakeController) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled++
}

func (f *fakeController) SetMode(m executor.Mode) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mode = m
}

func (f *fakeController) Mode() executor.Mode {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mode
}

func key(s string) tea.KeyMsg {
	if s == "enter" {
		return tea.KeyMsg{Type: tea.KeyEnter}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func awaiting() agent.Snapshot {
	plan := agent.CommandPlan{
		Goal: "init project",
		Steps: []agent.CommandStep{
			{ID: "step-1", Command: "npm init -y", Description: "Create package.json", RiskLevel: agent.RiskLow},
			{ID: "step-2", Command: "npm i express", Description: "Install express", RiskLevel: agent.RiskMedium},
		},
	}
	step := plan.Steps[0]
	return agent.Snapshot{
		State:            agent.StateAwaitingApproval,
		Goal:             plan.Goal,
		Plan:             &plan,
		CurrentStepIndex: 0,
		CurrentStep:      &step,
	}
}

func executing() agent.Snapshot {
	s := awaiting()
	s.State = agent.StateExecuting
	return s
}

func newTestModel(ctrl Controller) Model {
	m := New(ctrl, DefaultStyles())
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	return next.(Model)
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func TestAwaitingApprovalView(t *testing.T) {
	m := newTestModel(&fakeController{mode: executor.ModeSafe})
	m, _ = update(t, m, SnapshotMsg(awaiting()))

	view := m.View()
	for _, want := range []string{"awaiting_approval", "[safe]", "Goal: init project", "Create package.json", "Install express", "$ npm init -y", "risk: low", "[a] approve"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestApproveRunsControllerOnce(t *testing.T) {
	ctrl := &fakeController{}
	m := newTestModel(ctrl)
	m, _ = update(t, m, SnapshotMsg(awaiting()))

	m, cmd := update(t, m, key("a"))
	if cmd == nil {
		t.Fatal("expected approve command")
	}
	if !m.busy {
		t.Error("model should be busy while approval runs")
	}
	if _, again := update(t, m, key("enter")); again != nil {
		t.Error("second approval while busy should be ignored")
	}

	m, _ = update(t, m, cmd())
	if ctrl.approved != 1 {
		t.Errorf("approved = %d, want 1", ctrl.approved)
	}
	if m.busy {
		t.Error("busy not cleared after action")
	}
}

func TestApproveErrorShown(t *testing.T) {
	ctrl := &fakeController{approveErr: errors.New("boom")}
	m := newTestModel(ctrl)
	m, _ = update(t, m, SnapshotMsg(awaiting()))
	m, cmd := update(t, m, key("enter"))
	m, _ = update(t, m, cmd())
	if !strings.Contains(m.View(), "approve: boom") {
		t.Errorf("error not shown:\n%s", m.View())
	}
}

func TestApproveIgnoredOutsideApproval(t *testing.T) {
	m := newTestModel(&fakeController{})
	m, _ = update(t, m, SnapshotMsg(executing()))
	if _, cmd := update(t, m, key("a")); cmd != nil {
		t.Error("approve should be ignored while executing")
	}
	if _, cmd := update(t, m, key("r")); cmd != nil {
		t.Error("reject should be ignored while executing")
	}
}

func TestReject(t *testing.T) {
	ctrl := &fakeController{}
	m := newTestModel(ctrl)
	m, _ = update(t, m, SnapshotMsg(awaiting()))
	_, cmd := update(t, m, key("r"))
	if cmd == nil {
		t.Fatal("expected reject command")
	}
	cmd()
	if ctrl.rejected != 1 {
		t.Errorf("rejected = %d, want 1", ctrl.rejected)
	}
}

func TestOutputHidesMarkers(t *testing.T) {
	m := newTestModel(&fakeController{})
	m, _ = update(t, m, SnapshotMsg(executing()))
	m, _ = update(t, m, ChunkMsg(shell.Chunk{Data: "hel"}))
	m, _ = update(t, m, ChunkMsg(shell.Chunk{Data: "lo\n__AITERM_DONE_1_abcdef__0\nwor"}))

	view := m.output.View()
	if !strings.Contains(view, "$ npm init -y") {
		t.Errorf("command header missing:\n%s", view)
	}
	if !strings.Contains(view, "hello") {
		t.Errorf("output missing:\n%s", view)
	}
	if strings.Contains(view, "AITERM") {
		t.Errorf("marker leaked:\n%s", view)
	}
	if strings.Contains(view, "wor") {
		t.Errorf("partial line shown before newline:\n%s", view)
	}

	m, _ = update(t, m, DoneMsg{})
	if !strings.Contains(m.output.View(), "wor") {
		t.Errorf("pending line not flushed at end:\n%s", m.output.View())
	}
}

func TestRetryPrintsNewCommandHeader(t *testing.T) {
	m := newTestModel(&fakeController{})
	m, _ = update(t, m, SnapshotMsg(executing()))

	retry := executing()
	retry.RetryCount = 1
	fixed := retry.CurrentStep.WithFix("npm init --yes", "", "")
	retry.CurrentStep = &fixed
	m, _ = update(t, m, SnapshotMsg(retry))

	if got := strings.Count(strings.Join(m.lines, "\n"), "$ npm init"); got != 2 {
		t.Errorf("command headers = %d, want 2: %q", got, m.lines)
	}
	if !strings.Contains(m.View(), "retry: 1") {
		t.Errorf("retry count not shown:\n%s", m.View())
	}
}

func TestOutputScrollbackIsBounded(t *testing.T) {
	m := newTestModel(&fakeController{})
	var sb strings.Builder
	for i := 0; i < maxOutputLines+50; i++ {
		fmt.Fprintf(&sb, "line %d\n", i)
	}
	m, _ = update(t, m, ChunkMsg(shell.Chunk{Data: sb.String()}))
	if len(m.lines) != maxOutputLines {
		t.Fatalf("lines = %d, want %d", len(m.lines), maxOutputLines)
	}
	if m.lines[0] != "line 50" {
		t.Errorf("oldest kept line = %q", m.lines[0])
	}
}

func TestToggleMode(t *testing.T) {
	ctrl := &fakeController{mode: executor.ModeSafe}
	m := newTestModel(ctrl)
	m, cmd := update(t, m, key("m"))
	if cmd == nil {
		t.Fatal("expected mode command")
	}
	cmd()
	if ctrl.mode != executor.ModeAuto {
		t.Errorf("mode = %v, want auto", ctrl.mode)
	}
	if !strings.Contains(m.View(), "[auto]") {
		t.Errorf("header does not show auto mode:\n%s", m.View())
	}
}

func TestQuitCancelsActiveRun(t *testing.T) {
	ctrl := &fakeController{}
	m := newTestModel(ctrl)
	m, _ = update(t, m, SnapshotMsg(executing()))

	_, cmd := update(t, m, key("q"))
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	batch, ok := cmd().(tea.BatchMsg)
	if !ok {
		t.Fatalf("expected batch, got %T", cmd())
	}
	quit := false
	for _, c := range batch {
		if c == nil {
			continue
		}
		if _, ok := c().(tea.QuitMsg); ok {
			quit = true
		}
	}
	if !quit {
		t.Error("batch did not quit")
	}
	if ctrl.cancelled != 1 {
		t.Errorf("cancelled = %d, want 1", ctrl.cancelled)
	}
}

func TestQuitAfterDone(t *testing.T) {
	ctrl := &fakeController{}
	m := newTestModel(ctrl)
	done := awaiting()
	done.State = agent.StateComplete
	done.CurrentStep = nil
	done.CurrentStepIndex = -1
	done.History = []agent.ExecutionRecord{{Success: true}, {Success: true}}
	m, _ = update(t, m, SnapshotMsg(done))
	m, _ = update(t, m, DoneMsg{})

	if !strings.Contains(m.View(), "run finished: complete") {
		t.Errorf("finished footer missing:\n%s", m.View())
	}
	_, cmd := update(t, m, key("q"))
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q should quit directly when the run is over")
	}
	if ctrl.cancelled != 0 {
		t.Error("finished run must not be cancelled")
	}
}

func TestDoneErrorShown(t *testing.T) {
	m := newTestModel(&fakeController{})
	m, _ = update(t, m, DoneMsg{Err: errors.New("planning: no provider")})
	if !strings.Contains(m.View(), "planning: no provider") {
		t.Errorf("error missing:\n%s", m.View())
	}
}
