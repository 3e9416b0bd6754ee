// Package schedule holds the calendar-facing side of the engine: the
// CalendarStore contract, the conflict engine and a store-backed adapter.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"
)

// ErrInvalidInterval is returned when an interval does not satisfy start < end.
var ErrInvalidInterval = errors.New("event interval must start before it ends")

// ErrEventNotFound is returned by CalendarStore implementations for unknown IDs.
var ErrEventNotFound = errors.New("event not found")

// CalendarStore is the external calendar the engine reads from and writes to.
// The engine never owns calendar data; implementations may wrap any provider.
type CalendarStore interface {
	// ListEvents returns events overlapping [start, end), ordered by start.
	// Recurring events are expanded into instances.
	ListEvents(ctx context.Context, start, end time.Time) ([]*EventInterval, error)

	// CreateEvent creates a new event.
	CreateEvent(ctx context.Context, create *CreateEventRequest) (*EventInterval, error)

	// UpdateEvent applies a partial update.
	UpdateEvent(ctx context.Context, id string, patch *EventPatch) (*EventInterval, error)

	// DeleteEvent deletes an event and reports whether it existed.
	DeleteEvent(ctx context.Context, id string) (bool, error)

	// MoveEvent shifts an event to newStart, keeping its duration.
	MoveEvent(ctx context.Context, id string, newStart time.Time) (*EventInterval, error)
}

// EventInterval is one concrete occurrence on the calendar, half-open [Start, End).
type EventInterval struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	Location   string    `json:"location,omitempty"`
	Attendees  []string  `json:"attendees,omitempty"`
	Recurrence string    `json:"recurrence,omitempty"`
}

// Validate checks the Start < End invariant.
func (e *EventInterval) Validate() error {
	if !e.Start.Before(e.End) {
		return fmt.Errorf("%w: %s >= %s", ErrInvalidInterval, e.Start.Format(time.RFC3339), e.End.Format(time.RFC3339))
	}
	return nil
}

// Duration returns End - Start.
func (e *EventInterval) Duration() time.Duration {
	return e.End.Sub(e.Start)
}

// Overlaps reports whether two half-open intervals intersect.
// Touching boundaries (a.End == b.Start) do not overlap.
func (e *EventInterval) Overlaps(start, end time.Time) bool {
	return e.Start.Before(end) && start.Before(e.End)
}

// CreateEventRequest represents the request to create an event.
type CreateEventRequest struct {
	Title       string
	Description string
	Location    string
	Start       time.Time
	End         time.Time
	Timezone    string
	Attendees   []string
	Recurrence  string
}

// Validate checks required fields and the interval invariant.
func (r *CreateEventRequest) Validate() error {
	if r.Title == "" {
		return fmt.Errorf("title is required")
	}
	if r.Start.IsZero() {
		return fmt.Errorf("start is required")
	}
	if !r.Start.Before(r.End) {
		return ErrInvalidInterval
	}
	return nil
}

// EventPatch represents a partial update; nil fields are left unchanged.
type EventPatch struct {
	Title       *string
	Description *string
	Location    *string
	Start       *time.Time
	End         *time.Time
	Attendees   *[]string
	Recurrence  *string
}

func sortByStart(events []*EventInterval) {
	slices.SortStableFunc(events, func(a, b *EventInterval) int {
		return a.Start.Compare(b.Start)
	})
}
