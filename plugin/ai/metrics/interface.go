// Package metrics provides routing metrics for the calendar intent engine.
package metrics

import "time"

// MetricsService records routing and signal metrics.
// Implementations must be safe for concurrent use.
type MetricsService interface {
	// RecordDecision records one final routing decision.
	RecordDecision(action, source, tier string, latency time.Duration)

	// RecordSignal records one signal collector run (explicit, semantic, llm, learned).
	RecordSignal(source string, latency time.Duration, ok bool)

	// RecordFallback records a local recovery from an upstream problem.
	RecordFallback(component, reason string)
}

// NoopService discards all metrics.
type NoopService struct{}

func (NoopService) RecordDecision(string, string, string, time.Duration) {}
func (NoopService) RecordSignal(string, time.Duration, bool)             {}
func (NoopService) RecordFallback(string, string)                       {}

var _ MetricsService = NoopService{}
