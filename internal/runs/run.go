// Package runs persists finished and in-progress goal runs so they can be
// inspected and reported on later.
package runs

import (
	"time"

	"github.com/apercallc/ai-terminal/internal/agent"
)

// Run is one goal execution as seen from the CLI.
type Run struct {
	ID        string         `json:"id"`
	Goal      string         `json:"goal"`
	Mode      string         `json:"mode"`
	Provider  string         `json:"provider,omitempty"`
	WorkDir   string         `json:"work_dir"`
	StartTime time.Time      `json:"start_time"`
	StopTime  *time.Time     `json:"stop_time,omitempty"`
	Snapshot  agent.Snapshot `json:"snapshot"`
}

// Duration is the wall time of the run, or the time so far if it has not stopped.
func (r *Run) Duration(now time.Time) time.Duration {
	if r.StopTime != nil {
		return r.StopTime.Sub(r.StartTime)
	}
	return now.Sub(r.StartTime)
}
