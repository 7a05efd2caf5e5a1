package executor

import (
	"context"
	"strings"
	"time"

	"github.com/apercallc/ai-terminal/internal/shell"
)

type commandResult struct {
	Output   string
	ExitCode int
	TimedOut bool
}

// runCommand writes command to session and waits for its marker. A timeout
// is not an error: the output gathered so far is returned with TimedOut set.
func runCommand(ctx context.Context, session shell.Session, command string, timeout time.Duration) (commandResult, error) {
	m := newMarker(time.Now())
	ch, unsubscribe := session.Subscribe()
	defer unsubscribe()

	if err := session.Write(command + "\n" + m.echo() + "\n"); err != nil {
		return commandResult{ExitCode: -1}, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var buf strings.Builder
	for {
		select {
		case c, ok := <-ch:
			if !ok {
				return commandResult{Output: buf.String(), ExitCode: -1}, shell.ErrClosed
			}
			if c.SessionID != "" && c.SessionID != session.ID() {
				continue
			}
			buf.WriteString(c.Data)
			if out, code, done := m.parse(buf.String()); done {
				return commandResult{Output: out, ExitCode: code}, nil
			}
		case <-timer.C:
			return commandResult{Output: buf.String(), ExitCode: -1, TimedOut: true}, nil
		case <-ctx.Done():
			return commandResult{Output: buf.String(), ExitCode: -1}, ctx.Err()
		}
	}
}
