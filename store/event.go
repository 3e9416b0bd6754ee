package store

import (
	"context"
	"time"

	"github.com/lithammer/shortuuid/v4"
)

// Event is the object representing a calendar event.
type Event struct {
	ID             int32
	UID            string
	CreatedTs      int64
	UpdatedTs      int64
	Title          string
	Description    string
	Location       string
	StartTs        int64
	EndTs          int64
	Timezone       string
	Attendees      []string
	RecurrenceRule *string
}

// FindEvent is the find condition for event.
type FindEvent struct {
	ID  *int32
	UID *string

	// Overlap window: events with start < EndTs and end > StartTs.
	StartTs *int64
	EndTs   *int64

	// Pagination
	Limit  *int
	Offset *int
}

// UpdateEvent is the update request for event.
type UpdateEvent struct {
	UID            string
	UpdatedTs      *int64
	Title          *string
	Description    *string
	Location       *string
	StartTs        *int64
	EndTs          *int64
	Attendees      *[]string
	RecurrenceRule *string
}

// DeleteEvent is the delete request for event.
type DeleteEvent struct {
	UID string
}

// CreateEvent creates a new event, generating a UID when none is set.
func (s *Store) CreateEvent(ctx context.Context, create *Event) (*Event, error) {
	if create.UID == "" {
		create.UID = shortuuid.New()
	}
	return s.driver.CreateEvent(ctx, create)
}

// ListEvents lists events with filter, ordered by start time.
func (s *Store) ListEvents(ctx context.Context, find *FindEvent) ([]*Event, error) {
	return s.driver.ListEvents(ctx, find)
}

// GetEvent gets an event by uid. It returns nil when none matches.
func (s *Store) GetEvent(ctx context.Context, find *FindEvent) (*Event, error) {
	list, err := s.driver.ListEvents(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

// UpdateEvent updates an event.
func (s *Store) UpdateEvent(ctx context.Context, update *UpdateEvent) error {
	return s.driver.UpdateEvent(ctx, update)
}

// DeleteEvent deletes an event and reports whether a row was removed.
func (s *Store) DeleteEvent(ctx context.Context, delete *DeleteEvent) (bool, error) {
	n, err := s.driver.DeleteEvent(ctx, delete)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// StartTime returns the event start as time.Time.
func (e *Event) StartTime() time.Time {
	return time.Unix(e.StartTs, 0)
}

// EndTime returns the event end as time.Time.
func (e *Event) EndTime() time.Time {
	return time.Unix(e.EndTs, 0)
}
