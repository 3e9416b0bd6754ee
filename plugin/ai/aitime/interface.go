// Package aitime parses English natural-language time expressions.
package aitime

import (
	"context"
	"time"
)

// TimeService defines the time parsing service interface.
type TimeService interface {
	// Normalize standardizes time expressions.
	// Supports: "tomorrow at 3pm", "friday afternoon", "2026-01-28", "15:00"
	Normalize(ctx context.Context, input string, timezone string) (time.Time, error)

	// ParseNaturalTime parses natural language time expressions.
	// reference: reference time point (usually current time)
	// Returns: time range
	ParseNaturalTime(ctx context.Context, input string, reference time.Time) (TimeRange, error)
}

// TimeRange represents a half-open time range [Start, End).
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t falls within the range.
func (r TimeRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End)
}
