package router

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultRuleName names the catch-all rule that ends every rule table.
const DefaultRuleName = "default"

// Rule is a named predicate mapped to an action with a fixed confidence.
type Rule struct {
	Name       string
	Action     ActionKind
	Confidence float64
	Match      func(query string) bool
	// Default marks the catch-all rule. It carries no evidence of intent.
	Default bool
}

var (
	countPattern    = regexp.MustCompile(`\bhow many\b|\bcount\b|\bnumber of\b|\btotal (?:meetings|events|appointments)\b`)
	attachPattern   = regexp.MustCompile(`\b(?:add|attach|set|include|invite|put)\b.+\bto\s+(?:my|the|this|that|our|tomorrow's|today's)\s+(?:[\w:'-]+\s+){0,2}(?:event|meeting|call|appointment|sync|standup|stand-up|review|interview|1:1|session|invite)s?\b`)
	movePattern     = regexp.MustCompile(`\b(?:move|moved|reschedule|re-schedule|postpone|shift|bump|delay|push|rearrange)\b`)
	updatePattern   = regexp.MustCompile(`\b(?:update|change|modify|edit|rename|extend|shorten|adjust)\b`)
	listPattern     = regexp.MustCompile(`\b(?:what|which)\b.*\b(?:meetings?|events?|appointments?|calls?|plans?|schedule|calendar|agenda|on)\b|\b(?:show|list|view|display|see|check)\b|\bdo i have\b|\bwhat'?s\s+(?:on|next|up|coming)\b|\bam i (?:busy|booked)\b|\bmy (?:schedule|agenda|day|week)\b|\bupcoming\b`)
	conflictPattern = regexp.MustCompile(`\b(?:conflicts?|conflicting|clash(?:es|ing)?|overlap(?:s|ping)?|double[- ]?booked|collid(?:e|es|ing)|collisions?)\b`)
	freePattern     = regexp.MustCompile(`\bfree\b|\bavailab(?:le|ility)\b|\bopen (?:slots?|time)\b|\bwhen can i\b|\bfind (?:a |some )?(?:time|slot)\b|\bgaps?\b`)
	searchPattern   = regexp.MustCompile(`\b(?:search|find|look for|look up|lookup|where is|when is|when's|where's)\b`)
	createPattern   = regexp.MustCompile(`\b(?:schedule|book|create|add|set up|setup|arrange|plan|organize|organise|new|put|block)\b`)
	calendarNoun    = regexp.MustCompile(`\b(?:meetings?|events?|appointments?|calls?|calendar|1:1|one on one|syncs?|standups?|stand-ups?|reviews?|interviews?|lunch|dinner|breakfast|coffee|sessions?|reminders?|demo|workshop|catch[- ]up|retro|offsite|time)\b`)
	deletePattern   = regexp.MustCompile(`\b(?:delete|cancel|remove|drop|clear|call off|scrap|erase)\b`)
	scheduleVocab   = regexp.MustCompile(`\b(?:schedule|book|create|add|set up|new)\b`)
	// listQuestion is a query that opens as a question or a display command.
	listQuestion = regexp.MustCompile(`^(?:(?:please|can you|could you)\s+)?(?:what|which|when|do i|does|did|am i|is there|are there|any|show|list|view|display|can i see|let me see|check my)\b|\?$`)
)

// builtinRules is the rule table in evaluation order. Order is precedence.
func builtinRules() []Rule {
	return []Rule{
		{Name: "count", Action: ActionCount, Confidence: 0.9, Match: countPattern.MatchString},
		{Name: "update_before_create", Action: ActionUpdate, Confidence: 0.85, Match: attachPattern.MatchString},
		{Name: "move", Action: ActionMove, Confidence: 0.9, Match: movePattern.MatchString},
		{Name: "update", Action: ActionUpdate, Confidence: 0.85, Match: updatePattern.MatchString},
		{Name: "list", Action: ActionList, Confidence: 0.85, Match: func(q string) bool {
			if !listPattern.MatchString(q) || conflictPattern.MatchString(q) || freePattern.MatchString(q) {
				return false
			}
			// "book a meeting to review my week" asks to create, not to list.
			return !scheduleVocab.MatchString(q) || !calendarNoun.MatchString(q) || listQuestion.MatchString(q)
		}},
		{Name: "conflict", Action: ActionAnalyzeConflicts, Confidence: 0.85, Match: func(q string) bool {
			return conflictPattern.MatchString(q) && !scheduleVocab.MatchString(q)
		}},
		{Name: "free_time", Action: ActionFindFreeTime, Confidence: 0.8, Match: freePattern.MatchString},
		{Name: "search", Action: ActionSearch, Confidence: 0.8, Match: searchPattern.MatchString},
		{Name: "create", Action: ActionCreate, Confidence: 0.85, Match: func(q string) bool {
			return createPattern.MatchString(q) && calendarNoun.MatchString(q)
		}},
		{Name: "delete", Action: ActionDelete, Confidence: 0.9, Match: deletePattern.MatchString},
	}
}

func defaultRule() Rule {
	return Rule{
		Name:       DefaultRuleName,
		Action:     ActionList,
		Confidence: 0.3,
		Match:      func(string) bool { return true },
		Default:    true,
	}
}

// PatternMatcher evaluates an ordered rule table top to bottom.
// The first rule whose predicate holds decides.
type PatternMatcher struct {
	rules []Rule
	index map[string]int
}

// NewPatternMatcher builds the built-in table. Custom rules are compiled and
// evaluated after the built-ins, ahead of the default rule.
func NewPatternMatcher(custom ...RuleSpec) (*PatternMatcher, error) {
	rules := builtinRules()
	if len(custom) > 0 {
		compiled, err := compileRules(custom)
		if err != nil {
			return nil, err
		}
		rules = append(rules, compiled...)
	}
	rules = append(rules, defaultRule())

	index := make(map[string]int, len(rules))
	for i, r := range rules {
		if _, dup := index[r.Name]; dup {
			return nil, fmt.Errorf("duplicate rule name %q", r.Name)
		}
		index[r.Name] = i
	}
	return &PatternMatcher{rules: rules, index: index}, nil
}

// Rules returns the rule table in evaluation order.
func (m *PatternMatcher) Rules() []Rule {
	out := make([]Rule, len(m.rules))
	copy(out, m.rules)
	return out
}

// Match returns the signal of the first matching rule and the rule itself.
func (m *PatternMatcher) Match(query string) (*Signal, Rule) {
	q := normalizeQuery(query)
	for _, r := range m.rules {
		if r.Match(q) {
			return r.signal(), r
		}
	}
	// Unreachable while the default rule is last.
	r := defaultRule()
	return r.signal(), r
}

// MatchRule evaluates a single named rule.
func (m *PatternMatcher) MatchRule(name, query string) (*Signal, bool) {
	i, ok := m.index[name]
	if !ok {
		return nil, false
	}
	r := m.rules[i]
	if !r.Match(normalizeQuery(query)) {
		return nil, false
	}
	return r.signal(), true
}

func (r Rule) signal() *Signal {
	return &Signal{
		Action:     r.Action,
		Confidence: r.Confidence,
		Source:     SourceExplicit,
		Entities:   map[string]any{"rule": r.Name},
	}
}

// normalizeQuery lowercases and collapses whitespace. Curly apostrophes are straightened.
func normalizeQuery(q string) string {
	q = strings.ReplaceAll(q, "’", "'")
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}
