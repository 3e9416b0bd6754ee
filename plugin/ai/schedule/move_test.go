package schedule

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/calroute/internal/errors"
	"github.com/hrygo/calroute/plugin/ai/aitime"
	calendar "github.com/hrygo/calroute/server/service/schedule"
)

func newTestMoveResolver(store calendar.CalendarStore, embedder Embedder) *MoveResolver {
	parser := aitime.NewParser(testLoc).WithNow(func() time.Time { return testNow })
	return NewMoveResolver(parser, store, embedder, nil)
}

func event(id, title string, start time.Time, minutes int) *calendar.EventInterval {
	return &calendar.EventInterval{ID: id, Title: title, Start: start, End: start.Add(time.Duration(minutes) * time.Minute)}
}

func TestResolveMove_StandupToAfternoon(t *testing.T) {
	store := calendar.NewMockCalendarStore(event("standup", "Standup", at(time.January, 26, 9, 0), 30))
	r := newTestMoveResolver(store, nil)

	res, clarification, err := r.Resolve(context.Background(), "move my standup to the afternoon")
	require.NoError(t, err)
	require.Nil(t, clarification)
	assert.Equal(t, "standup", res.Event.ID)
	assert.Equal(t, MatchedBySemantic, res.MatchedBy)
	assert.True(t, res.NewStart.Equal(at(time.January, 26, 14, 0)), "new start = %s", res.NewStart)
	assert.True(t, res.NewEnd.Equal(at(time.January, 26, 14, 30)), "new end = %s", res.NewEnd)
	assert.Equal(t, "the afternoon", res.NewTimeExpression)
}

func TestResolveMove_Matching(t *testing.T) {
	events := func() *calendar.MockCalendarStore {
		return calendar.NewMockCalendarStore(
			event("lunch", "Lunch", at(time.January, 26, 12, 0), 60),
			event("planning", "Weekly planning sync", at(time.January, 28, 11, 0), 60),
		)
	}

	tests := []struct {
		name      string
		query     string
		wantID    string
		matchedBy string
		newStart  time.Time
	}{
		{
			name:      "substring containment keeps clock on date-only target",
			query:     "move planning to friday",
			wantID:    "planning",
			matchedBy: MatchedBySubstring,
			newStart:  at(time.January, 30, 11, 0),
		},
		{
			name:      "first event when nothing matches",
			query:     "move it to tomorrow at 10am",
			wantID:    "lunch",
			matchedBy: MatchedByFirst,
			newStart:  at(time.January, 27, 10, 0),
		},
		{
			name:      "that day keeps the event date",
			query:     "push the weekly planning sync to that day at 5pm",
			wantID:    "planning",
			matchedBy: MatchedBySemantic,
			newStart:  at(time.January, 28, 17, 0),
		},
		{
			name:      "bare day part",
			query:     "reschedule lunch for the evening",
			wantID:    "lunch",
			matchedBy: MatchedBySemantic,
			newStart:  at(time.January, 26, 18, 0),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestMoveResolver(events(), nil)
			res, clarification, err := r.Resolve(context.Background(), tt.query)
			require.NoError(t, err)
			require.Nil(t, clarification, "clarification: %s", clarification)
			assert.Equal(t, tt.wantID, res.Event.ID)
			assert.Equal(t, tt.matchedBy, res.MatchedBy)
			assert.True(t, res.NewStart.Equal(tt.newStart), "new start = %s, want %s", res.NewStart, tt.newStart)
			assert.Equal(t, res.Event.Duration(), res.NewEnd.Sub(res.NewStart))
		})
	}
}

func TestResolveMove_DateInCriteriaNarrowsSearch(t *testing.T) {
	store := calendar.NewMockCalendarStore(
		event("today", "Standup", at(time.January, 26, 9, 0), 15),
		event("tomorrow", "Standup", at(time.January, 27, 9, 0), 15),
	)
	r := newTestMoveResolver(store, nil)

	res, clarification, err := r.Resolve(context.Background(), "reschedule tomorrow's standup to friday at 4pm")
	require.NoError(t, err)
	require.Nil(t, clarification)
	assert.Equal(t, "tomorrow", res.Event.ID)
	assert.True(t, res.Criteria.HasDate)
	assert.Equal(t, "standup", res.Criteria.Title)
	assert.True(t, res.NewStart.Equal(at(time.January, 30, 16, 0)))
	assert.True(t, res.NewEnd.Equal(at(time.January, 30, 16, 15)))
}

func TestResolveMove_BareClockKeepsEventDate(t *testing.T) {
	// Now is Monday the 26th; the standup is on Friday.
	store := calendar.NewMockCalendarStore(event("standup", "Standup", at(time.January, 30, 9, 0), 15))
	r := newTestMoveResolver(store, nil)

	tests := []struct {
		query    string
		newStart time.Time
	}{
		{"move friday's standup to 3pm", at(time.January, 30, 15, 0)},
		{"move the standup on friday to 3:30pm", at(time.January, 30, 15, 30)},
		{"move the standup on friday to the afternoon", at(time.January, 30, 14, 0)},
		{"move the standup to 10am", at(time.January, 30, 10, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			res, clarification, err := r.Resolve(context.Background(), tt.query)
			require.NoError(t, err)
			require.Nil(t, clarification, "clarification: %s", clarification)
			assert.Equal(t, "standup", res.Event.ID)
			assert.True(t, res.NewStart.Equal(tt.newStart), "new start = %s, want %s", res.NewStart, tt.newStart)
		})
	}
}

func TestResolveMove_TrailingDuration(t *testing.T) {
	store := calendar.NewMockCalendarStore(event("standup", "Standup", at(time.January, 26, 9, 0), 15))
	r := newTestMoveResolver(store, nil)

	res, clarification, err := r.Resolve(context.Background(), "reschedule standup to tomorrow for 30 minutes")
	require.NoError(t, err)
	require.Nil(t, clarification)
	assert.Equal(t, 30, res.Criteria.DurationMinutes)
	assert.Equal(t, "tomorrow", res.NewTimeExpression)
	assert.True(t, res.NewStart.Equal(at(time.January, 27, 9, 0)), "new start = %s", res.NewStart)
	assert.True(t, res.NewEnd.Equal(at(time.January, 27, 9, 30)), "new end = %s", res.NewEnd)
}

type keywordEmbedder struct{ calls int }

func (e *keywordEmbedder) Encode(_ context.Context, text string) ([]float32, error) {
	e.calls++
	s := strings.ToLower(text)
	if strings.Contains(s, "scrum") || strings.Contains(s, "standup") {
		return []float32{1, 0}, nil
	}
	return []float32{0, 1}, nil
}

type brokenEmbedder struct{}

func (brokenEmbedder) Encode(context.Context, string) ([]float32, error) {
	return nil, fmt.Errorf("embedding service down")
}

func TestResolveMove_UsesEmbedder(t *testing.T) {
	store := calendar.NewMockCalendarStore(
		event("lunch", "Lunch", at(time.January, 26, 12, 0), 60),
		event("standup", "Daily Standup", at(time.January, 26, 9, 0), 15),
	)

	embedder := &keywordEmbedder{}
	res, clarification, err := newTestMoveResolver(store, embedder).Resolve(context.Background(), "move my scrum to the evening")
	require.NoError(t, err)
	require.Nil(t, clarification)
	assert.Equal(t, "standup", res.Event.ID)
	assert.Equal(t, MatchedBySemantic, res.MatchedBy)
	assert.InDelta(t, 1.0, res.MatchScore, 1e-9)
	assert.True(t, res.NewStart.Equal(at(time.January, 26, 18, 0)))
	assert.Positive(t, embedder.calls)

	// A failing embedder falls back to token overlap.
	res, clarification, err = newTestMoveResolver(store, brokenEmbedder{}).Resolve(context.Background(), "move the daily standup to the morning")
	require.NoError(t, err)
	require.Nil(t, clarification)
	assert.Equal(t, "standup", res.Event.ID)
	assert.True(t, res.NewStart.Equal(at(time.January, 26, 10, 0)))
}

func TestResolveMove_Clarifications(t *testing.T) {
	tests := []struct {
		name  string
		query string
		store *calendar.MockCalendarStore
		code  errors.ClarificationCode
		field string
	}{
		{name: "template placeholder", query: "move {{step_1.event_id}} to 3pm", code: errors.ClarifyWhichEvent, field: "event"},
		{name: "step variable", query: "reschedule $event to friday", code: errors.ClarifyWhichEvent, field: "event"},
		{name: "angle placeholder", query: "move <event> to friday", code: errors.ClarifyWhichEvent, field: "event"},
		{name: "bracket placeholder", query: "move [event] to friday", code: errors.ClarifyWhichEvent, field: "event"},
		{name: "no events", query: "move standup to 3pm", code: errors.ClarifyNoMatchingEvent, field: "event"},
		{name: "no target", query: "move my standup", code: errors.ClarifyNoDate, field: "new_time"},
		{
			name:  "unparseable target",
			query: "move standup to whenever",
			store: calendar.NewMockCalendarStore(event("s", "Standup", at(time.January, 26, 9, 0), 15)),
			code:  errors.ClarifyNoDate,
			field: "new_time",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := tt.store
			if store == nil {
				store = calendar.NewMockCalendarStore()
			}
			res, clarification, err := newTestMoveResolver(store, nil).Resolve(context.Background(), tt.query)
			require.NoError(t, err)
			assert.Nil(t, res)
			require.NotNil(t, clarification)
			assert.Equal(t, tt.code, clarification.Code)
			assert.Equal(t, tt.field, clarification.Field)
		})
	}
}

func TestResolveMove_StoreError(t *testing.T) {
	store := calendar.NewMockCalendarStore()
	store.FailListCalls = 1
	_, _, err := newTestMoveResolver(store, nil).Resolve(context.Background(), "move standup to 3pm")
	require.Error(t, err)
}

func TestExtractMoveCriteria(t *testing.T) {
	r := newTestMoveResolver(calendar.NewMockCalendarStore(), nil)

	tests := []struct {
		query  string
		title  string
		target string
	}{
		{"move my standup to the afternoon", "standup", "the afternoon"},
		{"please reschedule the 1:1 with john for next monday at 2pm", "1:1 with john", "next monday at 2pm"},
		{"push our design review back to 4pm", "design review", "4pm"},
		{"can you move the trip to paris to friday", "trip to paris", "friday"},
		{"reschedule standup to tomorrow for 30 minutes", "standup", "tomorrow"},
		{"move lunch to friday for an hour", "lunch", "friday"},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			c, clarification := r.ExtractMoveCriteria(tt.query)
			require.Nil(t, clarification)
			assert.Equal(t, tt.title, c.Title)
			assert.Equal(t, tt.target, c.NewTimeExpression)
		})
	}
}
