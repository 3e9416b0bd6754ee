package errors

import "fmt"

// ClarificationCode identifies why the engine needs more information from the user.
type ClarificationCode string

const (
	// ClarifyNoDate means no date or time could be parsed from the query.
	ClarifyNoDate ClarificationCode = "NO_DATE"
	// ClarifyWhichEvent means the event to act on is referenced but not resolved.
	ClarifyWhichEvent ClarificationCode = "WHICH_EVENT"
	// ClarifyNoMatchingEvent means no existing event matched the search criteria.
	ClarifyNoMatchingEvent ClarificationCode = "NO_MATCHING_EVENT"
	// ClarifyUnresolvedAttendee means a named attendee has no known address.
	ClarifyUnresolvedAttendee ClarificationCode = "UNRESOLVED_ATTENDEE"
	// ClarifyInvalidRange means the resolved interval does not satisfy start < end.
	ClarifyInvalidRange ClarificationCode = "INVALID_RANGE"
	// ClarifyInvalidDuration means the requested duration is not positive.
	ClarifyInvalidDuration ClarificationCode = "INVALID_DURATION"
)

// Clarification is a recoverable "needs more info" condition.
// It is returned next to a result, never in place of one, and callers own the phrasing.
type Clarification struct {
	Code   ClarificationCode `json:"code"`
	Reason string            `json:"reason"`
	// Field names the entity that is missing or ambiguous (e.g. "start", "attendees").
	Field string `json:"field,omitempty"`
	// Candidates carries unresolved values, such as attendee names.
	Candidates []string `json:"candidates,omitempty"`
}

// NeedsMoreInfo creates a clarification condition.
func NeedsMoreInfo(code ClarificationCode, field, format string, args ...any) *Clarification {
	return &Clarification{
		Code:   code,
		Field:  field,
		Reason: fmt.Sprintf(format, args...),
	}
}

// WithCandidates attaches candidate values to the clarification.
func (c *Clarification) WithCandidates(values ...string) *Clarification {
	c.Candidates = append(c.Candidates, values...)
	return c
}

func (c *Clarification) String() string {
	if c == nil {
		return ""
	}
	return fmt.Sprintf("[%s] %s", c.Code, c.Reason)
}
