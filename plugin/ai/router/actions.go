package router

import "strings"

// ActionKind is the calendar action a query asks for.
type ActionKind string

const (
	ActionList             ActionKind = "list"
	ActionCreate           ActionKind = "create"
	ActionUpdate           ActionKind = "update"
	ActionDelete           ActionKind = "delete"
	ActionSearch           ActionKind = "search"
	ActionCount            ActionKind = "count"
	ActionAnalyzeConflicts ActionKind = "analyze_conflicts"
	ActionMove             ActionKind = "move"
	ActionFindFreeTime     ActionKind = "find_free_time"
)

// actionInfo describes how the engine treats an action.
type actionInfo struct {
	// description is shown to the classifier model.
	description string
	// needsEntities marks actions that resolve a concrete time window.
	needsEntities bool
	synonyms      []string
}

// actionTable is the exhaustive per-action dispatch table.
var actionTable = map[ActionKind]actionInfo{
	ActionList: {
		description: "show or list upcoming events",
		synonyms:    []string{"query", "view", "show", "schedule_query", "read", "get"},
	},
	ActionCreate: {
		description:   "create or schedule a new event",
		needsEntities: true,
		synonyms:      []string{"schedule", "add", "book", "new", "schedule_create", "insert"},
	},
	ActionUpdate: {
		description: "change details of an existing event (title, attendees, location)",
		synonyms:    []string{"edit", "modify", "change", "schedule_update", "patch"},
	},
	ActionDelete: {
		description: "cancel or delete an event",
		synonyms:    []string{"cancel", "remove", "schedule_delete"},
	},
	ActionSearch: {
		description: "find a specific event by keyword",
		synonyms:    []string{"find", "lookup", "look_up"},
	},
	ActionCount: {
		description: "count events in a period",
		synonyms:    []string{"how_many", "tally"},
	},
	ActionAnalyzeConflicts: {
		description:   "check for overlapping or double-booked events",
		needsEntities: true,
		synonyms:      []string{"conflicts", "conflict", "check_conflicts", "analyze_conflict"},
	},
	ActionMove: {
		description:   "move or reschedule an existing event to a new time",
		needsEntities: true,
		synonyms:      []string{"reschedule", "postpone", "shift"},
	},
	ActionFindFreeTime: {
		description: "find free or available time slots",
		synonyms:    []string{"free_time", "availability", "find_free", "free_slots", "free"},
	},
}

var allActions = []ActionKind{
	ActionList,
	ActionCreate,
	ActionUpdate,
	ActionDelete,
	ActionSearch,
	ActionCount,
	ActionAnalyzeConflicts,
	ActionMove,
	ActionFindFreeTime,
}

// AllActionKinds returns every action in a stable order.
func AllActionKinds() []ActionKind {
	out := make([]ActionKind, len(allActions))
	copy(out, allActions)
	return out
}

// Valid reports whether a is a known action.
func (a ActionKind) Valid() bool {
	_, ok := actionTable[a]
	return ok
}

// NeedsEntities reports whether the action requires a resolved time window.
func (a ActionKind) NeedsEntities() bool {
	return actionTable[a].needsEntities
}

// Description returns a short human-readable description.
func (a ActionKind) Description() string {
	return actionTable[a].description
}

func (a ActionKind) String() string {
	return string(a)
}

// ParseActionKind maps a label or common synonym to an ActionKind.
// Labels are matched case-insensitively; spaces and hyphens count as underscores.
func ParseActionKind(s string) (ActionKind, bool) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.NewReplacer(" ", "_", "-", "_").Replace(key)
	if key == "" {
		return "", false
	}
	if a := ActionKind(key); a.Valid() {
		return a, true
	}
	for _, a := range allActions {
		for _, syn := range actionTable[a].synonyms {
			if syn == key {
				return a, true
			}
		}
	}
	return "", false
}

// Source identifies which signal produced a decision.
type Source string

const (
	SourceExplicit Source = "explicit"
	SourceSemantic Source = "semantic"
	SourceLLM      Source = "llm"
	SourceLearned  Source = "learned"
	SourceDefault  Source = "default"
)

// Tier is the arbitration step that produced a decision.
type Tier string

const (
	TierLearned      Tier = "learned"
	TierScheduleLike Tier = "schedule_like"
	TierHigh         Tier = "high"
	TierMedium       Tier = "medium"
	TierLow          Tier = "low"
)
