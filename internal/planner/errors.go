package planner

import "errors"

var (
	// ErrPlanInvalid is returned when a plan response has no usable "plan" object.
	ErrPlanInvalid = errors.New("model returned an invalid plan")
	// ErrEmptyPlan is returned when a plan response contains no steps.
	ErrEmptyPlan = errors.New("model returned a plan with no steps")
	// ErrNoProvider is returned when no model provider is configured.
	ErrNoProvider = errors.New("no model provider configured")

	errNoJSON = errors.New("no JSON object found")
)

// ParseError is returned when a model response does not contain the
// expected JSON document.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return "failed to parse model response: " + e.Err.Error()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
