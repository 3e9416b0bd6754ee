package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hrygo/calroute/plugin/ai/timeout"
	"github.com/hrygo/calroute/server/scheduler/suggestion"
)

// ConflictResult is the outcome of a conflict check.
type ConflictResult struct {
	HasConflict bool            `json:"has_conflict"`
	Conflicting []EventInterval `json:"conflicting"`
	Proposed    EventInterval   `json:"proposed"`
	// CandidateWindow is every event fetched for the check.
	CandidateWindow []EventInterval `json:"candidate_window"`
	// Alternatives are free slots after the proposed start, set only on conflict.
	Alternatives []suggestion.FreeSlot `json:"alternatives,omitempty"`
}

// ConflictEngine detects overlaps between a proposed interval and the calendar.
type ConflictEngine struct {
	store    CalendarStore
	location *time.Location
	finder   *suggestion.FreeSlotFinder
	logger   *slog.Logger
}

// NewConflictEngine creates a conflict engine. A nil store is a configuration error.
func NewConflictEngine(store CalendarStore, loc *time.Location, finder *suggestion.FreeSlotFinder, logger *slog.Logger) (*ConflictEngine, error) {
	if store == nil {
		return nil, fmt.Errorf("calendar store is required")
	}
	if loc == nil {
		loc = time.Local
	}
	if finder == nil {
		finder = suggestion.NewFreeSlotFinder()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ConflictEngine{store: store, location: loc, finder: finder, logger: logger}, nil
}

// Location returns the user timezone conflicts are resolved in.
func (c *ConflictEngine) Location() *time.Location {
	return c.location
}

// CheckConflicts flags every event E in the week starting at the proposed day
// with E.Start < proposedEnd && proposedStart < E.End. The event with
// excludeID (the one being moved) is ignored.
func (c *ConflictEngine) CheckConflicts(ctx context.Context, start time.Time, durationMinutes int, excludeID string) (*ConflictResult, error) {
	if durationMinutes <= 0 {
		return nil, fmt.Errorf("duration must be positive, got %d minutes", durationMinutes)
	}

	start = start.In(c.location)
	proposed := EventInterval{
		ID:    excludeID,
		Start: start,
		End:   start.Add(time.Duration(durationMinutes) * time.Minute),
	}

	windowStart := startOfDay(start)
	windowEnd := windowStart.Add(ConflictWindow)

	events, err := c.fetchWindow(ctx, windowStart, windowEnd)
	if err != nil {
		return nil, err
	}

	result := &ConflictResult{
		Proposed:        proposed,
		CandidateWindow: make([]EventInterval, 0, len(events)),
	}
	busy := make([]suggestion.Interval, 0, len(events))
	for _, e := range events {
		result.CandidateWindow = append(result.CandidateWindow, *e)
		if excludeID != "" && e.ID == excludeID {
			continue
		}
		busy = append(busy, suggestion.Interval{Start: e.Start, End: e.End})
		if e.Overlaps(proposed.Start, proposed.End) {
			result.Conflicting = append(result.Conflicting, *e)
		}
	}
	result.HasConflict = len(result.Conflicting) > 0

	if result.HasConflict {
		result.Alternatives = c.finder.Suggest(durationMinutes, busy, proposed.Start, windowEnd)
		c.logger.Info("conflicts detected",
			"requested_start", proposed.Start,
			"conflict_count", len(result.Conflicting),
			"alternatives", len(result.Alternatives),
		)
	}

	return result, nil
}

// SuggestFreeSlots lists free slots in [from, from+windowDays).
func (c *ConflictEngine) SuggestFreeSlots(ctx context.Context, durationMinutes int, from time.Time, windowDays int) ([]suggestion.FreeSlot, error) {
	if windowDays <= 0 {
		windowDays = 7
	}
	from = from.In(c.location)
	return c.SuggestFreeSlotsBetween(ctx, durationMinutes, from, from.AddDate(0, 0, windowDays))
}

// SuggestFreeSlotsBetween lists free slots that fit entirely in [from, end).
func (c *ConflictEngine) SuggestFreeSlotsBetween(ctx context.Context, durationMinutes int, from, end time.Time) ([]suggestion.FreeSlot, error) {
	if durationMinutes <= 0 {
		return nil, fmt.Errorf("duration must be positive, got %d minutes", durationMinutes)
	}
	from, end = from.In(c.location), end.In(c.location)
	if !from.Before(end) {
		return nil, nil
	}

	events, err := c.fetchWindow(ctx, from, end)
	if err != nil {
		return nil, err
	}
	busy := make([]suggestion.Interval, 0, len(events))
	for _, e := range events {
		busy = append(busy, suggestion.Interval{Start: e.Start, End: e.End})
	}
	return c.finder.Suggest(durationMinutes, busy, from, end), nil
}

// ListEvents reads [start, end) in the user timezone with the same single re-fetch
// as conflict checks.
func (c *ConflictEngine) ListEvents(ctx context.Context, start, end time.Time) ([]*EventInterval, error) {
	return c.fetchWindow(ctx, start.In(c.location), end.In(c.location))
}

// fetchWindow reads the window, re-fetching once on failure. Each attempt is
// bounded by timeout.StoreTimeout. Caller cancellation is not retried.
func (c *ConflictEngine) fetchWindow(ctx context.Context, start, end time.Time) ([]*EventInterval, error) {
	var lastErr error
	for attempt := 1; attempt <= fetchAttempts; attempt++ {
		actx, cancel := context.WithTimeout(ctx, timeout.StoreTimeout)
		events, err := c.store.ListEvents(actx, start, end)
		cancel()
		if err == nil {
			return events, nil
		}
		lastErr = err
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			break
		}
		c.logger.Warn("calendar fetch failed",
			"attempt", attempt,
			"window_start", start,
			"error", err,
		)
	}
	return nil, fmt.Errorf("failed to list events: %w", lastErr)
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
