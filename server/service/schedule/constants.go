package schedule

import "time"

// Package-level constants for calendar operations.

const (
	// ConflictWindow is the span fetched from the calendar store for conflict checks,
	// starting at the beginning of the proposed day.
	ConflictWindow = 7 * 24 * time.Hour

	// DefaultDurationMinutes is used when a caller passes a non-positive duration
	// to the store adapter.
	DefaultDurationMinutes = 60

	// MaxInstances is the maximum number of instances to expand for recurring events.
	// This prevents excessive memory usage for events with open-ended recurrence.
	MaxInstances = 500

	// fetchAttempts bounds the idempotent re-fetch of a conflict window.
	fetchAttempts = 2
)
