// Package router decides which calendar action a natural-language query asks for.
// Four independent signals (pattern rules, embedding similarity, an LLM
// classifier and learned corrections) are collected concurrently and
// arbitrated under a fixed confidence model.
package router

import "context"

// Signal is one classifier's guess at the intended action.
type Signal struct {
	Action     ActionKind     `json:"action"`
	Confidence float64        `json:"confidence"`
	Source     Source         `json:"source"`
	Entities   map[string]any `json:"entities,omitempty"`
}

// Decision is the arbitrated routing result.
type Decision struct {
	Action        ActionKind     `json:"action"`
	Confidence    float64        `json:"confidence"`
	Source        Source         `json:"source"`
	Entities      map[string]any `json:"entities,omitempty"`
	SelfCorrected bool           `json:"self_corrected"`
	Tier          Tier           `json:"tier"`
	Reason        string         `json:"reason,omitempty"`
	// Reinforced is set when the semantic signal agreed with a high-confidence LLM action.
	Reinforced bool `json:"reinforced,omitempty"`
}

// Classification is the structured answer of a Classifier.
type Classification struct {
	Intent     string         `json:"intent"`
	Confidence float64        `json:"confidence"`
	Reasoning  string         `json:"reasoning,omitempty"`
	Entities   map[string]any `json:"entities,omitempty"`
	Filters    map[string]any `json:"filters,omitempty"`
	// Raw is the model output the classification was parsed from.
	Raw string `json:"-"`
}

// Classifier classifies a fully rendered prompt.
type Classifier interface {
	Classify(ctx context.Context, prompt string) (*Classification, error)
}

// EmbeddingProvider encodes text into vectors. ai.EmbeddingService satisfies it.
type EmbeddingProvider interface {
	Encode(ctx context.Context, text string) ([]float32, error)
	EncodeBatch(ctx context.Context, texts []string) ([][]float32, error)
	// HighFidelity reports a provider calibrated well enough for a lower threshold.
	HighFidelity() bool
}

// LearnedLookup finds the action a user previously corrected a similar query to.
// memory.CorrectionMemory satisfies it.
type LearnedLookup interface {
	LookupLearnedAction(query string) (string, float64, bool)
}
