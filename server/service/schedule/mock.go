package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockCalendarStore is an in-memory CalendarStore for tests and the CLI dry-run mode.
type MockCalendarStore struct {
	mu     sync.Mutex
	events map[string]*EventInterval
	nextID int

	// FailListCalls makes the next N ListEvents calls return ListErr.
	FailListCalls int
	ListErr       error
	ListCalls     int
}

// NewMockCalendarStore creates a mock store seeded with events.
func NewMockCalendarStore(events ...*EventInterval) *MockCalendarStore {
	m := &MockCalendarStore{events: make(map[string]*EventInterval)}
	for _, e := range events {
		if e.ID == "" {
			m.nextID++
			e.ID = fmt.Sprintf("evt-%d", m.nextID)
		}
		m.events[e.ID] = e
	}
	return m
}

// ListEvents implements CalendarStore. Recurrence is not expanded.
func (m *MockCalendarStore) ListEvents(_ context.Context, start, end time.Time) ([]*EventInterval, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ListCalls++
	if m.FailListCalls > 0 {
		m.FailListCalls--
		err := m.ListErr
		if err == nil {
			err = fmt.Errorf("calendar temporarily unavailable")
		}
		return nil, err
	}

	var out []*EventInterval
	for _, e := range m.events {
		if e.Overlaps(start, end) {
			cp := *e
			out = append(out, &cp)
		}
	}
	sortByStart(out)
	return out, nil
}

// CreateEvent implements CalendarStore.
func (m *MockCalendarStore) CreateEvent(_ context.Context, create *CreateEventRequest) (*EventInterval, error) {
	if err := create.Validate(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	e := &EventInterval{
		ID:         fmt.Sprintf("evt-%d", m.nextID),
		Title:      create.Title,
		Start:      create.Start,
		End:        create.End,
		Location:   create.Location,
		Attendees:  create.Attendees,
		Recurrence: create.Recurrence,
	}
	m.events[e.ID] = e
	cp := *e
	return &cp, nil
}

// UpdateEvent implements CalendarStore.
func (m *MockCalendarStore) UpdateEvent(_ context.Context, id string, patch *EventPatch) (*EventInterval, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.events[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEventNotFound, id)
	}
	next := *e
	if patch.Title != nil {
		next.Title = *patch.Title
	}
	if patch.Location != nil {
		next.Location = *patch.Location
	}
	if patch.Start != nil {
		next.Start = *patch.Start
	}
	if patch.End != nil {
		next.End = *patch.End
	}
	if patch.Attendees != nil {
		next.Attendees = *patch.Attendees
	}
	if patch.Recurrence != nil {
		next.Recurrence = *patch.Recurrence
	}
	if err := next.Validate(); err != nil {
		return nil, err
	}
	m.events[id] = &next
	cp := next
	return &cp, nil
}

// DeleteEvent implements CalendarStore.
func (m *MockCalendarStore) DeleteEvent(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.events[id]; !ok {
		return false, nil
	}
	delete(m.events, id)
	return true, nil
}

// MoveEvent implements CalendarStore.
func (m *MockCalendarStore) MoveEvent(ctx context.Context, id string, newStart time.Time) (*EventInterval, error) {
	m.mu.Lock()
	e, ok := m.events[id]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEventNotFound, id)
	}
	newEnd := newStart.Add(e.Duration())
	return m.UpdateEvent(ctx, id, &EventPatch{Start: &newStart, End: &newEnd})
}
