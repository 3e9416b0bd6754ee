package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hrygo/calroute/server/scheduler/rrule"
	"github.com/hrygo/calroute/store"
)

// storeCalendar is the local SQLite reference CalendarStore.
type storeCalendar struct {
	store    *store.Store
	location *time.Location
	now      func() time.Time
}

// NewStoreCalendar returns a CalendarStore backed by the local store.
func NewStoreCalendar(st *store.Store, loc *time.Location) CalendarStore {
	if loc == nil {
		loc = time.Local
	}
	return &storeCalendar{store: st, location: loc, now: time.Now}
}

// ListEvents returns events between start and end, with recurring events expanded.
func (s *storeCalendar) ListEvents(ctx context.Context, start, end time.Time) ([]*EventInterval, error) {
	// Recurring templates may start long before the window, so only the upper bound
	// is pushed down to the query; the lower bound is applied per instance.
	endTs := end.Unix()
	list, err := s.store.ListEvents(ctx, &store.FindEvent{EndTs: &endTs})
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}

	var instances []*EventInterval
	truncated := false

	for _, ev := range list {
		if len(instances) >= MaxInstances {
			truncated = true
			break
		}

		base := s.toInterval(ev)
		if base.Recurrence == "" {
			if base.Overlaps(start, end) {
				instances = append(instances, base)
			}
			continue
		}

		rule, err := rrule.NewParser().Parse(base.Recurrence)
		if err != nil {
			slog.Warn("invalid recurrence rule, using base event",
				"uid", ev.UID,
				"rule", base.Recurrence,
				"error", err,
			)
			if base.Overlaps(start, end) {
				instances = append(instances, base)
			}
			continue
		}

		duration := base.Duration()
		gen := rrule.NewGenerator(rule, base.Start, s.location)
		for _, occ := range gen.Between(start.Add(-duration), end) {
			inst := *base
			inst.Start = occ
			inst.End = occ.Add(duration)
			if !inst.Overlaps(start, end) {
				continue
			}
			instances = append(instances, &inst)
			if len(instances) >= MaxInstances {
				truncated = true
				break
			}
		}
	}

	if truncated {
		slog.Warn("event instance expansion truncated",
			"count", len(instances),
			"limit", MaxInstances,
		)
	}

	sortByStart(instances)
	return instances, nil
}

// CreateEvent creates an event after validating the interval.
func (s *storeCalendar) CreateEvent(ctx context.Context, create *CreateEventRequest) (*EventInterval, error) {
	if err := create.Validate(); err != nil {
		return nil, err
	}
	if create.Recurrence != "" {
		if _, err := rrule.NewParser().Parse(create.Recurrence); err != nil {
			return nil, fmt.Errorf("invalid recurrence: %w", err)
		}
	}

	timezone := create.Timezone
	if timezone == "" {
		timezone = s.location.String()
	}
	ev := &store.Event{
		Title:       create.Title,
		Description: create.Description,
		Location:    create.Location,
		StartTs:     create.Start.Unix(),
		EndTs:       create.End.Unix(),
		Timezone:    timezone,
		Attendees:   create.Attendees,
	}
	if create.Recurrence != "" {
		ev.RecurrenceRule = &create.Recurrence
	}

	created, err := s.store.CreateEvent(ctx, ev)
	if err != nil {
		return nil, fmt.Errorf("failed to create event: %w", err)
	}
	return s.toInterval(created), nil
}

// UpdateEvent applies patch to the event with uid id.
func (s *storeCalendar) UpdateEvent(ctx context.Context, id string, patch *EventPatch) (*EventInterval, error) {
	existing, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}

	start, end := existing.StartTime(), existing.EndTime()
	if patch.Start != nil {
		start = *patch.Start
	}
	if patch.End != nil {
		end = *patch.End
	}
	if !start.Before(end) {
		return nil, ErrInvalidInterval
	}

	updatedTs := s.now().Unix()
	update := &store.UpdateEvent{
		UID:            id,
		UpdatedTs:      &updatedTs,
		Title:          patch.Title,
		Description:    patch.Description,
		Location:       patch.Location,
		Attendees:      patch.Attendees,
		RecurrenceRule: patch.Recurrence,
	}
	if patch.Start != nil {
		ts := start.Unix()
		update.StartTs = &ts
	}
	if patch.End != nil {
		ts := end.Unix()
		update.EndTs = &ts
	}

	if err := s.store.UpdateEvent(ctx, update); err != nil {
		return nil, fmt.Errorf("failed to update event: %w", err)
	}
	updated, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.toInterval(updated), nil
}

// DeleteEvent deletes the event with uid id.
func (s *storeCalendar) DeleteEvent(ctx context.Context, id string) (bool, error) {
	deleted, err := s.store.DeleteEvent(ctx, &store.DeleteEvent{UID: id})
	if err != nil {
		return false, fmt.Errorf("failed to delete event: %w", err)
	}
	return deleted, nil
}

// MoveEvent moves the event to newStart and preserves its duration.
func (s *storeCalendar) MoveEvent(ctx context.Context, id string, newStart time.Time) (*EventInterval, error) {
	existing, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	newEnd := newStart.Add(existing.EndTime().Sub(existing.StartTime()))
	return s.UpdateEvent(ctx, id, &EventPatch{Start: &newStart, End: &newEnd})
}

func (s *storeCalendar) get(ctx context.Context, id string) (*store.Event, error) {
	ev, err := s.store.GetEvent(ctx, &store.FindEvent{UID: &id})
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	if ev == nil {
		return nil, fmt.Errorf("%w: %s", ErrEventNotFound, id)
	}
	return ev, nil
}

func (s *storeCalendar) toInterval(ev *store.Event) *EventInterval {
	interval := &EventInterval{
		ID:        ev.UID,
		Title:     ev.Title,
		Start:     ev.StartTime().In(s.location),
		End:       ev.EndTime().In(s.location),
		Location:  ev.Location,
		Attendees: ev.Attendees,
	}
	if ev.RecurrenceRule != nil {
		interval.Recurrence = *ev.RecurrenceRule
	}
	return interval
}
