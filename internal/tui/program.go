package tui

import (
	"context"
	"errors"
	"io"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/apercallc/ai-terminal/internal/agent"
	"github.com/apercallc/ai-terminal/internal/shell"
)

// RunOptions wires a live run into the program.
type RunOptions struct {
	Controller Controller
	Machine    *agent.Machine
	Session    shell.Session // optional; output pane stays empty without it
	// Execute starts the goal. It is called on its own goroutine and its
	// error is shown when it returns.
	Execute func(ctx context.Context) error
	Input   io.Reader
	Output  io.Writer
}

// Run shows the view until the user quits, then cancels any unfinished run
// and waits for Execute to return. It returns the last snapshot displayed.
func Run(ctx context.Context, opts RunOptions) (agent.Snapshot, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	progOpts := []tea.ProgramOption{tea.WithContext(ctx), tea.WithAltScreen()}
	if opts.Input != nil {
		progOpts = append(progOpts, tea.WithInput(opts.Input))
	}
	if opts.Output != nil {
		progOpts = append(progOpts, tea.WithOutput(opts.Output))
	}
	p := tea.NewProgram(New(opts.Controller, DefaultStyles()), progOpts...)

	unsubscribe := opts.Machine.Subscribe(func(s agent.Snapshot) {
		p.Send(SnapshotMsg(s))
	})
	defer unsubscribe()

	if opts.Session != nil {
		chunks, stop := opts.Session.Subscribe()
		defer stop()
		go func() {
			for {
				select {
				case c, ok := <-chunks:
					if !ok {
						return
					}
					p.Send(ChunkMsg(c))
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	execDone := make(chan struct{})
	go func() {
		defer close(execDone)
		err := opts.Execute(ctx)
		p.Send(DoneMsg{Err: err})
	}()

	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) {
		err = nil
	}

	if s := opts.Machine.Snapshot(); !s.State.Terminal() && s.State != agent.StateIdle {
		opts.Controller.Cancel()
	}
	cancel()
	<-execDone

	return opts.Machine.Snapshot(), err
}
