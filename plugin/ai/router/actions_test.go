package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestActionTable_IsExhaustive(t *testing.T) {
	assert.Len(t, actionTable, len(AllActionKinds()))
	for _, a := range AllActionKinds() {
		info, ok := actionTable[a]
		if assert.True(t, ok, "missing dispatch entry for %s", a) {
			assert.NotEmpty(t, info.description, a)
		}
	}
}

func TestActionKind_NeedsEntities(t *testing.T) {
	var need []ActionKind
	for _, a := range AllActionKinds() {
		if a.NeedsEntities() {
			need = append(need, a)
		}
	}
	assert.ElementsMatch(t, []ActionKind{ActionCreate, ActionMove, ActionAnalyzeConflicts}, need)
}

func TestParseActionKind(t *testing.T) {
	tests := []struct {
		in   string
		want ActionKind
		ok   bool
	}{
		{"list", ActionList, true},
		{"  CREATE ", ActionCreate, true},
		{"analyze-conflicts", ActionAnalyzeConflicts, true},
		{"find free time", ActionFindFreeTime, true},
		{"reschedule", ActionMove, true},
		{"schedule", ActionCreate, true},
		{"schedule_query", ActionList, true},
		{"cancel", ActionDelete, true},
		{"how_many", ActionCount, true},
		{"", "", false},
		{"teleport", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseActionKind(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestParseActionKind_SynonymsAreUnambiguous(t *testing.T) {
	seen := map[string]ActionKind{}
	for _, a := range AllActionKinds() {
		for _, syn := range actionTable[a].synonyms {
			prev, dup := seen[syn]
			assert.False(t, dup, "synonym %q used by %s and %s", syn, prev, a)
			assert.False(t, ActionKind(syn).Valid(), "synonym %q shadows an action", syn)
			seen[syn] = a
		}
	}
}
