package router

import "regexp"

const (
	// HighTierThreshold is exclusive: an LLM confidence above it is high tier.
	HighTierThreshold = 0.85
	// MediumTierThreshold is inclusive.
	MediumTierThreshold = 0.6
)

// Inputs are the signals for one query. Any signal may be nil.
type Inputs struct {
	Explicit     *Signal
	Semantic     *Signal
	LLM          *Signal
	Learned      *Signal
	ScheduleLike bool
}

var scheduleLikePattern = regexp.MustCompile(`\b(?:schedule|create|book)\b|\badd\s+(?:[\w'-]+\s+){0,4}to\s+(?:my\s+|the\s+)?calendar\b|\bnew\s+(?:event|meeting)\b`)

// scheduleNounPattern catches "schedule" used as a noun ("what's on my schedule").
var scheduleNounPattern = regexp.MustCompile(`\b(?:my|the|your|our|his|her|their|on)\s+schedule\b`)

// IsScheduleLikeQuery reports whether the query asks to put something on the calendar.
func IsScheduleLikeQuery(query string) bool {
	q := normalizeQuery(query)
	q = scheduleNounPattern.ReplaceAllString(q, " ")
	return scheduleLikePattern.MatchString(q)
}

// criticalPairs are known-costly confusions where the explicit rule wins
// over a high-confidence LLM answer.
var criticalPairs = map[[2]ActionKind]bool{
	{ActionList, ActionCreate}: true,
	{ActionCreate, ActionList}: true,
}

// IsCriticalMisclassification reports whether explicit vs llm is a guarded pair.
func IsCriticalMisclassification(explicit, llm ActionKind) bool {
	return criticalPairs[[2]ActionKind{explicit, llm}]
}

// ConfidenceTier classifies an LLM confidence.
func ConfidenceTier(c float64) Tier {
	switch {
	case c > HighTierThreshold:
		return TierHigh
	case c >= MediumTierThreshold:
		return TierMedium
	default:
		return TierLow
	}
}

// Arbitrate combines the signals into one decision. It has no side effects.
//
// Order: learned override, schedule-like override, then the LLM confidence
// tier. In the high tier the LLM wins unless the explicit rule disagrees on a
// critical pair. The medium and low tiers prefer explicit, then semantic, then
// llm; with nothing at all the decision is list from the default source.
func Arbitrate(in Inputs) Decision {
	if in.Learned != nil {
		return decisionFrom(in.Learned, LearnedConfidence, TierLearned, "learned correction")
	}

	if in.ScheduleLike {
		var agree *Signal
		best := 0.0
		for _, s := range []*Signal{in.Explicit, in.Semantic, in.LLM} {
			if s == nil || s.Action != ActionCreate {
				continue
			}
			if agree == nil {
				agree = s
			}
			best = max(best, s.Confidence)
		}
		if agree != nil {
			return decisionFrom(agree, best, TierScheduleLike, "schedule-like query with a create signal")
		}
	}

	tier := TierLow
	if in.LLM != nil {
		tier = ConfidenceTier(in.LLM.Confidence)
	}

	if tier == TierHigh {
		if in.Explicit != nil && in.Explicit.Action != in.LLM.Action &&
			IsCriticalMisclassification(in.Explicit.Action, in.LLM.Action) {
			return decisionFrom(in.Explicit, in.Explicit.Confidence, TierHigh,
				"explicit rule overrides "+string(in.LLM.Action)+" from llm")
		}
		d := decisionFrom(in.LLM, in.LLM.Confidence, TierHigh, "high-confidence llm")
		if in.Semantic != nil && in.Semantic.Action == in.LLM.Action {
			d.Reinforced = true
		}
		return d
	}

	for _, s := range []*Signal{in.Explicit, in.Semantic, in.LLM} {
		if s != nil {
			return decisionFrom(s, s.Confidence, tier, string(tier)+" tier, "+string(s.Source)+" preferred")
		}
	}
	return Decision{
		Action:     ActionList,
		Confidence: 0,
		Source:     SourceDefault,
		Tier:       tier,
		Reason:     "no signal",
	}
}

// NeedsValidation reports whether a decision should be re-checked by the classifier.
func (d Decision) NeedsValidation() bool {
	return d.Tier == TierMedium
}

func decisionFrom(s *Signal, confidence float64, tier Tier, reason string) Decision {
	var entities map[string]any
	if len(s.Entities) > 0 {
		entities = make(map[string]any, len(s.Entities))
		for k, v := range s.Entities {
			entities[k] = v
		}
	}
	return Decision{
		Action:     s.Action,
		Confidence: confidence,
		Source:     s.Source,
		Entities:   entities,
		Tier:       tier,
		Reason:     reason,
	}
}
