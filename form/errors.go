package form

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionNotFound indicates no active session exists for (owner, flow).
	ErrSessionNotFound = errors.New("form: session not found")
	// ErrFlowUnknown indicates the flow id has no registered schema.
	ErrFlowUnknown = errors.New("form: unknown flow")
	// ErrDependencyUnmet indicates a field was validated before its declared
	// dependency was collected. This is an internal invariant violation.
	ErrDependencyUnmet = errors.New("form: field dependency unmet")
)

// ValidationError reports user input rejected by a field validator.
// The Reason restates the constraint and is shown to the user verbatim.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "form: invalid input: " + e.Reason
	}
	return fmt.Sprintf("form: invalid %s: %s", e.Field, e.Reason)
}

// Invalid constructs a ValidationError for the given field.
func Invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// SubmissionError reports a failed external submission. Message, when set,
// carries the upstream operation's own description and is surfaced to the
// user; otherwise a generic failure text is used.
type SubmissionError struct {
	Message string
	Err     error
}

func (e *SubmissionError) Error() string {
	if e.Message != "" {
		return "form: submission failed: " + e.Message
	}
	if e.Err != nil {
		return "form: submission failed: " + e.Err.Error()
	}
	return "form: submission failed"
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// UserMessage returns the text shown to the user for this failure.
func (e *SubmissionError) UserMessage() string {
	if e.Message != "" {
		return e.Message
	}
	return "The operation could not be completed. Please start over."
}
