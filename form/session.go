package form

import "time"

// Status tags the explicit state of a form session.
type Status string

const (
	// StatusCollecting means the session is waiting for the next field value.
	StatusCollecting Status = "collecting"
	// StatusReady means every field is collected and confirmation is pending.
	StatusReady Status = "ready"
	// StatusSubmitting means the completion handler is being invoked.
	StatusSubmitting Status = "submitting"
	// StatusCompleted is terminal: the submission succeeded.
	StatusCompleted Status = "completed"
	// StatusFailed is terminal: the submission failed; values are discarded.
	StatusFailed Status = "failed"
	// StatusCancelled is terminal: the user aborted the flow.
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further input is accepted in this status.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Session accumulates field values for one (owner, flow) pair.
type Session struct {
	Owner     int64     `json:"owner"`
	FlowID    string    `json:"flow_id"`
	Values    Values    `json:"values"`
	Status    Status    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewSession creates a fresh collecting session.
func NewSession(owner int64, flowID string) *Session {
	now := time.Now().UTC()
	return &Session{
		Owner:     owner,
		FlowID:    flowID,
		Values:    make(Values),
		Status:    StatusCollecting,
		StartedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy that can be mutated independently.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Values = s.Values.Clone()
	return &c
}

// Active reports whether the session still accepts user input.
func (s *Session) Active() bool {
	return s != nil && !s.Status.Terminal()
}

// Touch updates the idle-eviction timestamp after a mutation.
func (s *Session) Touch() {
	s.UpdatedAt = time.Now().UTC()
}
