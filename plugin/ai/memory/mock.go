package memory

import (
	"context"
	"errors"
	"sync"
)

// MockPersister is an in-memory Persister for testing.
type MockPersister struct {
	mu          sync.Mutex
	corrections []CorrectionRecord
	successes   []SuccessRecord

	// FailSaves makes every Save call fail.
	FailSaves bool
}

var _ Persister = (*MockPersister)(nil)

// NewMockPersister creates a MockPersister seeded with records.
func NewMockPersister(corrections []CorrectionRecord, successes []SuccessRecord) *MockPersister {
	return &MockPersister{corrections: corrections, successes: successes}
}

func (m *MockPersister) LoadCorrections(_ context.Context, limit int) ([]CorrectionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]CorrectionRecord(nil), tail(m.corrections, limit)...), nil
}

func (m *MockPersister) LoadSuccesses(_ context.Context, limit int) ([]SuccessRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SuccessRecord(nil), tail(m.successes, limit)...), nil
}

func (m *MockPersister) SaveCorrection(_ context.Context, rec CorrectionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailSaves {
		return errors.New("persister unavailable")
	}
	m.corrections = append(m.corrections, rec)
	return nil
}

func (m *MockPersister) SaveSuccess(_ context.Context, rec SuccessRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailSaves {
		return errors.New("persister unavailable")
	}
	m.successes = append(m.successes, rec)
	return nil
}

// SavedCorrections returns the number of persisted corrections.
func (m *MockPersister) SavedCorrections() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.corrections)
}
