package agent

// EventKind names a state-machine event.
type EventKind string

const (
	EventStartPlanning  EventKind = "START_PLANNING"
	EventPlanReady      EventKind = "PLAN_READY"
	EventPlanFailed     EventKind = "PLAN_FAILED"
	EventApproveStep    EventKind = "APPROVE_STEP"
	EventAutoApprove    EventKind = "AUTO_APPROVE"
	EventRejectStep     EventKind = "REJECT_STEP"
	EventStepComplete   EventKind = "STEP_COMPLETE"
	EventStepFailed     EventKind = "STEP_FAILED"
	EventRetry          EventKind = "RETRY"
	EventAnalysisFailed EventKind = "ANALYSIS_FAILED"
	EventCancel         EventKind = "CANCEL"
	EventReset          EventKind = "RESET"
)

// Event is an input to Machine.Dispatch.
type Event interface {
	Kind() EventKind
}

type StartPlanning struct{ Goal string }

type PlanReady struct{ Plan CommandPlan }

type PlanFailed struct{ Error string }

// ApproveStep is a user approval of the current step.
type ApproveStep struct{}

// AutoApprove is an approval issued by auto mode. Same transition as
// ApproveStep; kept separate so audit consumers can tell them apart.
type AutoApprove struct{}

type RejectStep struct{ StepID string }

type StepComplete struct{ Record ExecutionRecord }

type StepFailed struct{ Record ExecutionRecord }

// Retry re-enters executing for the current step. Fix, when set, replaces the
// current step for the next attempt (the plan itself is unchanged).
type Retry struct {
	StepID string
	Fix    *CommandStep
}

// AnalysisFailed moves an analyzing run to error when no safe retry exists.
type AnalysisFailed struct{ Error string }

type Cancel struct{}

type Reset struct{}

func (StartPlanning) Kind() EventKind  { return EventStartPlanning }
func (PlanReady) Kind() EventKind      { return EventPlanReady }
func (PlanFailed) Kind() EventKind     { return EventPlanFailed }
func (ApproveStep) Kind() EventKind    { return EventApproveStep }
func (AutoApprove) Kind() EventKind    { return EventAutoApprove }
func (RejectStep) Kind() EventKind     { return EventRejectStep }
func (StepComplete) Kind() EventKind   { return EventStepComplete }
func (StepFailed) Kind() EventKind     { return EventStepFailed }
func (Retry) Kind() EventKind          { return EventRetry }
func (AnalysisFailed) Kind() EventKind { return EventAnalysisFailed }
func (Cancel) Kind() EventKind         { return EventCancel }
func (Reset) Kind() EventKind          { return EventReset }
