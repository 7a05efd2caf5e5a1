package agent

// StepStatus is the display status of one plan step.
type StepStatus string

const (
	StepPending      StepStatus = "pending"
	StepCurrent      StepStatus = "current"
	StepDone         StepStatus = "done"
	StepStatusFailed StepStatus = "failed"
	StepCancelled    StepStatus = "cancelled"
)

// StepStatuses derives a status for every plan step. Completed steps are
// counted from successful history records, so the result is stable after the
// cursor has been cleared by a terminal transition.
func (s Snapshot) StepStatuses() []StepStatus {
	if s.Plan == nil {
		return nil
	}
	done := 0
	for _, rec := range s.History {
		if rec.Success {
			done++
		}
	}
	out := make([]StepStatus, len(s.Plan.Steps))
	for i := range out {
		switch {
		case i < done || s.State == StateComplete:
			out[i] = StepDone
		case i > done:
			out[i] = StepPending
		case s.State == StateError:
			out[i] = StepStatusFailed
		case s.State == StateCancelled:
			out[i] = StepCancelled
		case s.State.Active():
			out[i] = StepCurrent
		default:
			out[i] = StepPending
		}
	}
	return out
}
