package router

import "log/slog"

// LearnedConfidence is the confidence of a learned override.
const LearnedConfidence = 0.95

// HistoryMatcher turns past user corrections into the learned signal.
type HistoryMatcher struct {
	lookup LearnedLookup
	logger *slog.Logger
}

// NewHistoryMatcher creates a history matcher. lookup may be nil.
func NewHistoryMatcher(lookup LearnedLookup, logger *slog.Logger) *HistoryMatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &HistoryMatcher{lookup: lookup, logger: logger}
}

// Match returns the learned signal, or nil when no similar correction exists.
// Entities carries the Jaccard similarity of the matched record.
func (m *HistoryMatcher) Match(query string) *Signal {
	if m.lookup == nil {
		return nil
	}
	label, similarity, ok := m.lookup.LookupLearnedAction(query)
	if !ok {
		return nil
	}
	action, ok := ParseActionKind(label)
	if !ok {
		m.logger.Warn("ignoring correction with unknown action",
			"input", truncate(query, 50),
			"action", label,
		)
		return nil
	}
	return &Signal{
		Action:     action,
		Confidence: LearnedConfidence,
		Source:     SourceLearned,
		Entities:   map[string]any{"similarity": similarity},
	}
}
