// Package suggestion finds free time slots between existing events.
package suggestion

import (
	"sort"
	"time"
)

const (
	// MaxSlots is the maximum number of slots returned by Suggest.
	MaxSlots = 5

	// Default working-day band used when WorkingHours is enabled.
	DefaultDayStartHour = 8
	DefaultDayEndHour   = 22
)

// Interval is a busy period. Start must be before End.
type Interval struct {
	Start time.Time
	End   time.Time
}

// FreeSlot is a proposed slot of exactly the requested duration.
type FreeSlot struct {
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	DurationMinutes int       `json:"duration_minutes"`
}

// WorkingHours restricts slots to a daily band [StartHour:00, EndHour:00).
type WorkingHours struct {
	StartHour int
	EndHour   int
	Location  *time.Location
}

// DefaultWorkingHours returns the 08:00-22:00 band in loc.
func DefaultWorkingHours(loc *time.Location) *WorkingHours {
	return &WorkingHours{StartHour: DefaultDayStartHour, EndHour: DefaultDayEndHour, Location: loc}
}

// FreeSlotFinder walks the gaps between events.
type FreeSlotFinder struct {
	now          func() time.Time
	workingHours *WorkingHours
	maxSlots     int
}

// Option configures a FreeSlotFinder.
type Option func(*FreeSlotFinder)

// WithClock injects the clock used to skip past time.
func WithClock(now func() time.Time) Option {
	return func(f *FreeSlotFinder) {
		if now != nil {
			f.now = now
		}
	}
}

// WithWorkingHours limits slots to a daily band.
func WithWorkingHours(wh *WorkingHours) Option {
	return func(f *FreeSlotFinder) {
		f.workingHours = wh
	}
}

// WithMaxSlots overrides MaxSlots.
func WithMaxSlots(n int) Option {
	return func(f *FreeSlotFinder) {
		if n > 0 {
			f.maxSlots = n
		}
	}
}

// NewFreeSlotFinder creates a finder. Without options it uses time.Now,
// no working-hours band and MaxSlots.
func NewFreeSlotFinder(opts ...Option) *FreeSlotFinder {
	f := &FreeSlotFinder{
		now:      time.Now,
		maxSlots: MaxSlots,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Suggest returns up to the configured maximum of chronological free slots
// of durationMinutes within [windowStart, windowEnd), never before now.
// Each gap (before the first event, between events, after the last one)
// yields at most one slot starting at the gap's beginning.
func (f *FreeSlotFinder) Suggest(durationMinutes int, events []Interval, windowStart, windowEnd time.Time) []FreeSlot {
	if durationMinutes <= 0 {
		return nil
	}
	duration := time.Duration(durationMinutes) * time.Minute

	current := windowStart
	if now := f.now(); now.After(current) {
		current = now
	}
	if !current.Before(windowEnd) {
		return nil
	}

	busyRanges := make([]Interval, 0, len(events))
	for _, e := range events {
		if e.End.After(e.Start) {
			busyRanges = append(busyRanges, e)
		}
	}
	if f.workingHours != nil {
		busyRanges = append(busyRanges, f.workingHours.offHours(current, windowEnd)...)
	}

	// Sort busy ranges by start time
	sort.SliceStable(busyRanges, func(i, j int) bool {
		return busyRanges[i].Start.Before(busyRanges[j].Start)
	})

	var freeSlots []FreeSlot
	emit := func(start time.Time) bool {
		freeSlots = append(freeSlots, FreeSlot{
			Start:           start,
			End:             start.Add(duration),
			DurationMinutes: durationMinutes,
		})
		return len(freeSlots) < f.maxSlots
	}

	for _, busy := range busyRanges {
		if !busy.End.After(current) {
			continue
		}
		if !busy.Start.Before(windowEnd) {
			break
		}

		if busy.Start.After(current) && busy.Start.Sub(current) >= duration {
			if !emit(current) {
				return freeSlots
			}
		}

		if busy.End.After(current) {
			current = busy.End
		}
	}

	// Final gap
	if current.Before(windowEnd) && windowEnd.Sub(current) >= duration {
		emit(current)
	}

	return freeSlots
}

// offHours returns the complement of the working band as busy intervals
// covering [from, to).
func (wh *WorkingHours) offHours(from, to time.Time) []Interval {
	loc := wh.Location
	if loc == nil {
		loc = from.Location()
	}
	from, to = from.In(loc), to.In(loc)

	var out []Interval
	day := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, loc)
	for !day.After(to) {
		next := day.AddDate(0, 0, 1)
		open := time.Date(day.Year(), day.Month(), day.Day(), wh.StartHour, 0, 0, 0, loc)
		closeAt := time.Date(day.Year(), day.Month(), day.Day(), wh.EndHour, 0, 0, 0, loc)
		if open.After(day) {
			out = append(out, Interval{Start: day, End: open})
		}
		if closeAt.Before(next) {
			out = append(out, Interval{Start: closeAt, End: next})
		}
		day = next
	}
	return out
}
