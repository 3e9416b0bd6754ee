// Package schedule extracts calendar entities from English queries and
// resolves which existing event a reschedule request refers to.
package schedule

import (
	"time"

	"github.com/hrygo/calroute/server/scheduler/rrule"
)

// Entities holds the structured fields extracted from a query.
type Entities struct {
	Title string `json:"title"`

	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	DurationMinutes int       `json:"duration_minutes"`
	// HasTime is false when only a date was given and the start fell back to the default hour.
	HasTime        bool   `json:"has_time"`
	TimeExpression string `json:"time_expression,omitempty"`

	Attendees           []string `json:"attendees,omitempty"`
	UnresolvedAttendees []string `json:"unresolved_attendees,omitempty"`
	Location            string   `json:"location,omitempty"`

	Recurrence *rrule.Rule `json:"-"`
	// RRULE is Recurrence in its string form.
	RRULE string `json:"rrule,omitempty"`
}

// IsRecurring reports whether a recurrence rule was extracted.
func (e *Entities) IsRecurring() bool {
	return e.Recurrence != nil
}

// Duration returns the event duration.
func (e *Entities) Duration() time.Duration {
	return time.Duration(e.DurationMinutes) * time.Minute
}
