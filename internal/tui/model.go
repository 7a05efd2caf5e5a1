package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/apercallc/ai-terminal/internal/agent"
	"github.com/apercallc/ai-terminal/internal/executor"
	"github.com/apercallc/ai-terminal/internal/shell"
)

// maxOutputLines bounds the scrollback kept in the output pane.
const maxOutputLines = 2000

// Controller is the subset of the executor the view drives. Calls may block
// and are always made from commands, never from Update.
type Controller interface {
	ApproveCurrentStep() error
	RejectCurrentStep() error
	Cancel()
	SetMode(executor.Mode)
	Mode() executor.Mode
}

// SnapshotMsg carries a state machine snapshot into the program.
type SnapshotMsg agent.Snapshot

// ChunkMsg carries shell output into the program.
type ChunkMsg shell.Chunk

// DoneMsg reports that the initial goal call returned. In safe mode that
// happens as soon as the first step awaits approval.
type DoneMsg struct{ Err error }

type actionMsg struct {
	action string
	err    error
}

// Model renders a live goal run.
type Model struct {
	ctrl   Controller
	styles Styles

	snapshot agent.Snapshot
	mode     executor.Mode
	busy     bool
	err      error

	lines    []string
	pending  string
	shownKey string

	output viewport.Model
	width  int
	height int
}

// New returns a model in the idle state.
func New(ctrl Controller, styles Styles) Model {
	return Model{
		ctrl:     ctrl,
		styles:   styles,
		snapshot: agent.InitialSnapshot(),
		mode:     ctrl.Mode(),
		output:   viewport.New(80, 10),
		width:    80,
		height:   24,
	}
}

// Snapshot returns the last snapshot the model received.
func (m Model) Snapshot() agent.Snapshot { return m.snapshot }

func (m Model) Init() tea.Cmd { return nil }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.resize()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case SnapshotMsg:
		m.applySnapshot(agent.Snapshot(msg))
		return m, nil

	case ChunkMsg:
		m.appendOutput(msg.Data)
		return m, nil

	case actionMsg:
		m.busy = false
		if msg.err != nil {
			m.err = fmt.Errorf("%s: %w", msg.action, msg.err)
		}
		return m, nil

	case DoneMsg:
		m.flushPending()
		if msg.Err != nil {
			m.err = msg.Err
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.output, cmd = m.output.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		if m.running() {
			return m, tea.Batch(m.call("cancel", func() error { m.ctrl.Cancel(); return nil }), tea.Quit)
		}
		return m, tea.Quit

	case "a", "enter":
		if m.snapshot.State != agent.StateAwaitingApproval || m.busy {
			return m, nil
		}
		m.busy = true
		m.err = nil
		return m, m.call("approve", m.ctrl.ApproveCurrentStep)

	case "r":
		if m.snapshot.State != agent.StateAwaitingApproval || m.busy {
			return m, nil
		}
		m.busy = true
		return m, m.call("reject", m.ctrl.RejectCurrentStep)

	case "c":
		if !m.running() {
			return m, nil
		}
		return m, m.call("cancel", func() error { m.ctrl.Cancel(); return nil })

	case "m":
		next := executor.ModeAuto
		if m.mode == executor.ModeAuto {
			next = executor.ModeSafe
		}
		m.mode = next
		ctrl := m.ctrl
		return m, func() tea.Msg { ctrl.SetMode(next); return nil }
	}

	var cmd tea.Cmd
	m.output, cmd = m.output.Update(msg)
	return m, cmd
}

func (m Model) call(action string, fn func() error) tea.Cmd {
	return func() tea.Msg {
		return actionMsg{action: action, err: fn()}
	}
}

func (m Model) running() bool {
	return m.snapshot.State != agent.StateIdle && !m.snapshot.State.Terminal()
}

func (m *Model) applySnapshot(s agent.Snapshot) {
	m.snapshot = s
	if s.State != agent.StateExecuting || s.CurrentStep == nil {
		m.flushPending()
		m.resize()
		return
	}
	key := fmt.Sprintf("%d/%d", s.CurrentStepIndex, s.RetryCount)
	if key != m.shownKey {
		m.shownKey = key
		m.flushPending()
		m.pushLine(m.styles.Command.Render("$ " + s.CurrentStep.Command))
	}
	m.resize()
}

// appendOutput adds shell output, holding back the trailing partial line so
// completion markers can be filtered as whole lines.
func (m *Model) appendOutput(data string) {
	data = strings.ReplaceAll(m.pending+data, "\r\n", "\n")
	parts := strings.Split(data, "\n")
	m.pending = parts[len(parts)-1]
	for _, line := range parts[:len(parts)-1] {
		if !executor.IsMarkerLine(line) {
			m.pushLine(line)
		}
	}
	m.refreshOutput()
}

func (m *Model) flushPending() {
	if m.pending != "" && !executor.IsMarkerLine(m.pending) {
		m.pushLine(m.pending)
	}
	m.pending = ""
	m.refreshOutput()
}

func (m *Model) pushLine(line string) {
	m.lines = append(m.lines, line)
	if over := len(m.lines) - maxOutputLines; over > 0 {
		m.lines = append(m.lines[:0:0], m.lines[over:]...)
	}
}

func (m *Model) refreshOutput() {
	atBottom := m.output.AtBottom()
	m.output.SetContent(strings.Join(m.lines, "\n"))
	if atBottom {
		m.output.GotoBottom()
	}
}

func (m *Model) resize() {
	m.output.Width = m.width
	h := m.height - lipgloss.Height(m.top()) - lipgloss.Height(m.footer()) - 1
	if h < 3 {
		h = 3
	}
	m.output.Height = h
	m.refreshOutput()
}

func (m Model) View() string {
	return lipgloss.JoinVertical(lipgloss.Left,
		m.top(),
		m.output.View(),
		m.footer(),
	)
}

func (m Model) top() string {
	s := m.snapshot
	var sb strings.Builder

	header := fmt.Sprintf("aiterm  %s  [%s]", s.Label(), m.mode)
	sb.WriteString(m.styles.Header.Render(header))
	sb.WriteString("\n")
	if s.Goal != "" {
		sb.WriteString(m.styles.Title.Render("Goal: ") + s.Goal + "\n")
	}

	if s.Plan != nil {
		statuses := s.StepStatuses()
		for i, step := range s.Plan.Steps {
			desc := step.Description
			if desc == "" {
				desc = step.Command
			}
			fmt.Fprintf(&sb, " %s %d. %s\n", m.styles.Status(statuses[i]), i+1, desc)
		}
	} else if s.State == agent.StatePlanning {
		sb.WriteString(m.styles.Muted.Render("Planning...") + "\n")
	}

	if step := s.CurrentStep; step != nil {
		var box strings.Builder
		box.WriteString(m.styles.Command.Render("$ "+step.Command) + "\n")
		fmt.Fprintf(&box, "risk: %s", m.styles.Risk(step.RiskLevel))
		if s.RetryCount > 0 {
			fmt.Fprintf(&box, "  retry: %d", s.RetryCount)
		}
		if step.Description != "" {
			box.WriteString("\n" + m.styles.Muted.Render(step.Description))
		}
		if step.ExpectedOutcome != "" {
			box.WriteString("\n" + m.styles.Muted.Render("expect: "+step.ExpectedOutcome))
		}
		sb.WriteString(m.styles.Box.Render(box.String()))
		sb.WriteString("\n")
	}

	return strings.TrimRight(sb.String(), "\n")
}

func (m Model) footer() string {
	var parts []string
	if s := m.snapshot; s.Error != "" {
		parts = append(parts, m.styles.Error.Render(s.Error))
	}
	if m.err != nil {
		parts = append(parts, m.styles.Error.Render(m.err.Error()))
	}

	var keys string
	switch {
	case m.snapshot.State.Terminal():
		keys = "run finished: " + m.snapshot.Label() + "  [q] quit"
	case m.busy:
		keys = "working...  [c] cancel  [q] quit"
	case m.snapshot.State == agent.StateAwaitingApproval:
		keys = "[a] approve  [r] reject  [c] cancel  [m] toggle mode  [q] quit"
	default:
		keys = "[c] cancel  [m] toggle mode  [q] quit"
	}
	parts = append(parts, m.styles.Footer.Render(keys))
	return strings.Join(parts, "\n")
}
