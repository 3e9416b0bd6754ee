package metrics

import (
	"sync"
	"time"
)

// MockMetricsService records calls in memory for tests.
type MockMetricsService struct {
	mu        sync.Mutex
	Decisions []DecisionRecord
	Signals   []SignalRecord
	Fallbacks []FallbackRecord
}

// DecisionRecord is one RecordDecision call.
type DecisionRecord struct {
	Action, Source, Tier string
	Latency              time.Duration
}

// SignalRecord is one RecordSignal call.
type SignalRecord struct {
	Source  string
	Latency time.Duration
	OK      bool
}

// FallbackRecord is one RecordFallback call.
type FallbackRecord struct {
	Component, Reason string
}

// NewMockMetricsService creates a new MockMetricsService.
func NewMockMetricsService() *MockMetricsService {
	return &MockMetricsService{}
}

func (m *MockMetricsService) RecordDecision(action, source, tier string, latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Decisions = append(m.Decisions, DecisionRecord{Action: action, Source: source, Tier: tier, Latency: latency})
}

func (m *MockMetricsService) RecordSignal(source string, latency time.Duration, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Signals = append(m.Signals, SignalRecord{Source: source, Latency: latency, OK: ok})
}

func (m *MockMetricsService) RecordFallback(component, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Fallbacks = append(m.Fallbacks, FallbackRecord{Component: component, Reason: reason})
}

// FallbackCount returns how many fallbacks were recorded for component.
func (m *MockMetricsService) FallbackCount(component string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, f := range m.Fallbacks {
		if f.Component == component {
			n++
		}
	}
	return n
}

var _ MetricsService = (*MockMetricsService)(nil)
