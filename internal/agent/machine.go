package agent

import (
	"sync"
)

// DefaultMaxRetries is the retry ceiling used when none is configured.
const DefaultMaxRetries = 3

// ErrMaxRetries is the snapshot error set when a step exhausts its retries.
const ErrMaxRetries = "Max retries exceeded"

// Listener receives a snapshot after every accepted transition.
type Listener func(Snapshot)

// Machine is a synchronous state container. Dispatch applies Transition and
// notifies listeners in registration order before returning.
type Machine struct {
	maxRetries int

	dispatchMu sync.Mutex // serializes transition + notification

	mu        sync.RWMutex
	snapshot  Snapshot
	listeners []*subscription
}

type subscription struct {
	fn Listener
}

// Option configures a Machine.
type Option func(*Machine)

// WithMaxRetries sets how many retries a single step may use. A value of N
// permits exactly N retries; the (N+1)th RETRY moves to error.
func WithMaxRetries(n int) Option {
	return func(m *Machine) {
		if n >= 0 {
			m.maxRetries = n
		}
	}
}

// NewMachine returns a machine in the idle state.
func NewMachine(opts ...Option) *Machine {
	m := &Machine{
		maxRetries: DefaultMaxRetries,
		snapshot:   InitialSnapshot(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// MaxRetries returns the configured retry ceiling.
func (m *Machine) MaxRetries() int {
	return m.maxRetries
}

// Snapshot returns a deep copy of the current snapshot.
func (m *Machine) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot.Clone()
}

// Subscribe registers fn and returns a function that removes it. Listeners run
// on the dispatching goroutine and must not call Dispatch.
func (m *Machine) Subscribe(fn Listener) (unsubscribe func()) {
	sub := &subscription{fn: fn}
	m.mu.Lock()
	m.listeners = append(m.listeners, sub)
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			for i, s := range m.listeners {
				if s == sub {
					m.listeners = append(m.listeners[:i:i], m.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// Dispatch applies ev. It returns true when the event was accepted (and
// listeners were notified), false when it was a no-op for the current state.
func (m *Machine) Dispatch(ev Event) bool {
	m.dispatchMu.Lock()
	defer m.dispatchMu.Unlock()

	m.mu.Lock()
	next, ok := Transition(m.snapshot, ev, m.maxRetries)
	if !ok {
		m.mu.Unlock()
		return false
	}
	m.snapshot = next
	listeners := append([]*subscription(nil), m.listeners...)
	m.mu.Unlock()

	for _, l := range listeners {
		l.fn(next.Clone())
	}
	return true
}

// Transition is the pure transition function. It never mutates s and returns
// ok=false for (state, event) pairs that are no-ops.
func Transition(s Snapshot, ev Event, maxRetries int) (next Snapshot, ok bool) {
	switch e := ev.(type) {
	case StartPlanning:
		next = InitialSnapshot()
		next.State = StatePlanning
		next.Goal = e.Goal
		return next, true

	case PlanReady:
		if s.State != StatePlanning {
			return s, false
		}
		next = s.Clone()
		if len(e.Plan.Steps) == 0 {
			return toError(next, "Plan contains no steps"), true
		}
		plan := e.Plan.Clone()
		step := plan.Steps[0]
		next.State = StateAwaitingApproval
		next.Plan = &plan
		next.CurrentStepIndex = 0
		next.CurrentStep = &step
		next.RetryCount = 0
		next.Error = ""
		return next, true

	case PlanFailed:
		if s.State != StatePlanning {
			return s, false
		}
		return toError(s.Clone(), e.Error), true

	case ApproveStep, AutoApprove:
		if s.State != StateAwaitingApproval {
			return s, false
		}
		next = s.Clone()
		next.State = StateExecuting
		return next, true

	case RejectStep:
		if s.State != StateAwaitingApproval {
			return s, false
		}
		return toCancelled(s.Clone()), true

	case StepComplete:
		if !s.State.Active() || s.Plan == nil {
			return s, false
		}
		next = s.Clone()
		next.History = append(next.History, e.Record)
		nextIndex := s.CurrentStepIndex + 1
		if nextIndex < len(s.Plan.Steps) {
			step := next.Plan.Steps[nextIndex]
			next.State = StateAwaitingApproval
			next.CurrentStepIndex = nextIndex
			next.CurrentStep = &step
			next.RetryCount = 0
			return next, true
		}
		next.State = StateComplete
		next.CurrentStepIndex = -1
		next.CurrentStep = nil
		return next, true

	case StepFailed:
		if s.State != StateExecuting {
			return s, false
		}
		next = s.Clone()
		next.History = append(next.History, e.Record)
		next.State = StateAnalyzing
		return next, true

	case Retry:
		if s.State != StateAnalyzing && s.State != StateExecuting {
			return s, false
		}
		if e.StepID != "" && s.CurrentStep != nil && s.CurrentStep.ID != e.StepID {
			return s, false
		}
		next = s.Clone()
		if s.RetryCount >= maxRetries {
			return toError(next, ErrMaxRetries), true
		}
		next.State = StateExecuting
		next.RetryCount = s.RetryCount + 1
		if e.Fix != nil {
			fix := *e.Fix
			next.CurrentStep = &fix
		}
		return next, true

	case AnalysisFailed:
		if s.State != StateAnalyzing {
			return s, false
		}
		return toError(s.Clone(), e.Error), true

	case Cancel:
		return toCancelled(s.Clone()), true

	case Reset:
		return InitialSnapshot(), true
	}
	return s, false
}

func toError(s Snapshot, msg string) Snapshot {
	s.State = StateError
	s.Error = msg
	s.CurrentStepIndex = -1
	s.CurrentStep = nil
	return s
}

func toCancelled(s Snapshot) Snapshot {
	s.State = StateCancelled
	s.CurrentStepIndex = -1
	s.CurrentStep = nil
	return s
}
