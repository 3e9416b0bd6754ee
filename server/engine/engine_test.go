package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/calroute/internal/errors"
	"github.com/hrygo/calroute/plugin/ai/router"
	"github.com/hrygo/calroute/plugin/ai/schedule"
	calendar "github.com/hrygo/calroute/server/service/schedule"
	"github.com/hrygo/calroute/server/scheduler/suggestion"
)

var testLoc = func() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		panic(err)
	}
	return loc
}()

// Monday 2026-01-26 08:00 in New York.
var testNow = time.Date(2026, 1, 26, 8, 0, 0, 0, testLoc)

func at(day, hour, minute int) time.Time {
	return time.Date(2026, time.January, day, hour, minute, 0, 0, testLoc)
}

func event(id, title string, start time.Time, minutes int) *calendar.EventInterval {
	return &calendar.EventInterval{ID: id, Title: title, Start: start, End: start.Add(time.Duration(minutes) * time.Minute)}
}

func newTestEngine(t *testing.T, store calendar.CalendarStore, override func(*Options)) *Engine {
	t.Helper()
	opts := Options{
		Calendar: store,
		Location: testLoc,
		Now:      func() time.Time { return testNow },
		Contacts: schedule.NewStaticContactResolver(map[string]string{"John": "john@example.com"}),
	}
	if override != nil {
		override(&opts)
	}
	e, err := New(opts)
	require.NoError(t, err)
	return e
}

func TestNew_RequiresCalendar(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestActionTable_CoversEveryAction(t *testing.T) {
	e := newTestEngine(t, calendar.NewMockCalendarStore(), nil)
	assert.Len(t, e.dispatch, len(router.AllActionKinds()))
	for _, a := range router.AllActionKinds() {
		assert.NotNil(t, e.dispatch[a], "missing handler for %s", a)
	}
}

func TestRoute_CreateDetectsConflictAndProposesSlot(t *testing.T) {
	store := calendar.NewMockCalendarStore(event("standup", "Standup", at(27, 14, 0), 60))
	e := newTestEngine(t, store, nil)

	res := e.Route(context.Background(), "schedule a design review tomorrow at 2:30pm for 30 minutes", RouteContext{UserID: "u1"})
	require.NoError(t, res.Err)
	assert.Equal(t, router.ActionCreate, res.Decision.Action)
	assert.Equal(t, router.TierScheduleLike, res.Decision.Tier)
	require.Nil(t, res.Clarification)

	require.NotNil(t, res.Entities)
	assert.Equal(t, "Design Review", res.Entities.Title)
	assert.True(t, res.Entities.Start.Equal(at(27, 14, 30)), "start = %s", res.Entities.Start)

	require.NotNil(t, res.Conflicts)
	assert.True(t, res.Conflicts.HasConflict)
	require.Len(t, res.Conflicts.Conflicting, 1)
	assert.Equal(t, "standup", res.Conflicts.Conflicting[0].ID)
	require.NotEmpty(t, res.Conflicts.Alternatives)
	assert.True(t, res.Conflicts.Alternatives[0].Start.Equal(at(27, 15, 0)))
}

func TestRoute_CreateWithoutDateAsksForOne(t *testing.T) {
	e := newTestEngine(t, calendar.NewMockCalendarStore(), nil)

	res := e.Route(context.Background(), "schedule a meeting with the team", RouteContext{})
	assert.Equal(t, router.ActionCreate, res.Decision.Action)
	require.NotNil(t, res.Clarification)
	assert.Equal(t, errors.ClarifyNoDate, res.Clarification.Code)
	assert.Nil(t, res.Conflicts)
	assert.NoError(t, res.Err)
}

func TestRoute_ListGuardAgainstConfidentCreate(t *testing.T) {
	svc, err := router.NewService(router.Config{
		LLM: router.NewLLMClassifier(router.NewStubClassifier("create", 0.95), nil, nil),
	})
	require.NoError(t, err)
	e := newTestEngine(t, calendar.NewMockCalendarStore(), func(o *Options) { o.Router = svc })

	res := e.Route(context.Background(), "what meetings do I have tomorrow", RouteContext{UserID: "u1"})
	assert.Equal(t, router.ActionList, res.Decision.Action)
	require.NotNil(t, res.Range)
	assert.True(t, res.Range.Start.Equal(at(27, 0, 0)))
	assert.True(t, res.Range.End.Equal(at(28, 0, 0)))
}

func TestRoute_MoveStandupToAfternoon(t *testing.T) {
	store := calendar.NewMockCalendarStore(
		event("standup", "Standup", at(26, 9, 0), 30),
		event("lunch", "Lunch", at(26, 12, 0), 60),
	)
	e := newTestEngine(t, store, nil)

	res := e.Route(context.Background(), "move my standup to the afternoon", RouteContext{})
	require.NoError(t, res.Err)
	assert.Equal(t, router.ActionMove, res.Decision.Action)
	require.Nil(t, res.Clarification)
	require.NotNil(t, res.Move)
	assert.Equal(t, "standup", res.Move.Event.ID)
	assert.True(t, res.Move.NewStart.Equal(at(26, 14, 0)), "new start = %s", res.Move.NewStart)
	assert.True(t, res.Move.NewEnd.Equal(at(26, 14, 30)))

	require.NotNil(t, res.Conflicts)
	assert.False(t, res.Conflicts.HasConflict)
}

func TestRoute_MoveStoreFailureKeepsDecision(t *testing.T) {
	store := calendar.NewMockCalendarStore(event("standup", "Standup", at(26, 9, 0), 30))
	store.FailListCalls = 1
	e := newTestEngine(t, store, nil)

	res := e.Route(context.Background(), "move my standup to the afternoon", RouteContext{})
	assert.Equal(t, router.ActionMove, res.Decision.Action)
	assert.Error(t, res.Err)
	assert.Nil(t, res.Move)
}

func TestRoute_AnalyzeConflictsReportsOverlaps(t *testing.T) {
	store := calendar.NewMockCalendarStore(
		event("a", "Design sync", at(27, 10, 0), 60),
		event("b", "Vendor call", at(27, 10, 30), 60),
		event("c", "Lunch", at(27, 13, 0), 60),
		event("d", "Standup", at(28, 10, 0), 30),
	)
	e := newTestEngine(t, store, nil)

	res := e.Route(context.Background(), "any conflicts tomorrow?", RouteContext{})
	require.NoError(t, res.Err)
	assert.Equal(t, router.ActionAnalyzeConflicts, res.Decision.Action)
	require.NotNil(t, res.Range)
	require.Len(t, res.Overlaps, 1)
	assert.Equal(t, "a", res.Overlaps[0].First.ID)
	assert.Equal(t, "b", res.Overlaps[0].Second.ID)
}

func TestRoute_FindFreeTimeTomorrow(t *testing.T) {
	store := calendar.NewMockCalendarStore(event("standup", "Standup", at(27, 14, 0), 60))
	e := newTestEngine(t, store, func(o *Options) {
		o.WorkingHours = suggestion.DefaultWorkingHours(testLoc)
	})

	res := e.Route(context.Background(), "when am I free tomorrow for 45 minutes", RouteContext{})
	require.NoError(t, res.Err)
	assert.Equal(t, router.ActionFindFreeTime, res.Decision.Action)
	require.NotNil(t, res.Entities)
	assert.Equal(t, 45, res.Entities.DurationMinutes)
	require.Len(t, res.FreeSlots, 2)
	assert.True(t, res.FreeSlots[0].Start.Equal(at(27, 8, 0)))
	assert.True(t, res.FreeSlots[1].Start.Equal(at(27, 15, 0)))
	for _, s := range res.FreeSlots {
		assert.Equal(t, 45, s.DurationMinutes)
	}
}

func TestRoute_FindFreeTimeStaysInNamedRange(t *testing.T) {
	// Today is booked from 10:00 until midnight.
	store := calendar.NewMockCalendarStore(event("offsite", "Offsite", at(26, 10, 0), 14*60))
	e := newTestEngine(t, store, nil)

	res := e.Route(context.Background(), "when am I free today", RouteContext{})
	require.NoError(t, res.Err)
	assert.Equal(t, router.ActionFindFreeTime, res.Decision.Action)
	require.NotNil(t, res.Range)
	assert.True(t, res.Range.End.Equal(at(27, 0, 0)))
	require.Len(t, res.FreeSlots, 1)
	assert.True(t, res.FreeSlots[0].Start.Equal(at(26, 8, 0)), "slot = %s", res.FreeSlots[0].Start)
	for _, s := range res.FreeSlots {
		assert.False(t, s.End.After(res.Range.End), "slot %s ends after the range", s.Start)
	}
}

func TestParseTimeAndRange(t *testing.T) {
	e := newTestEngine(t, calendar.NewMockCalendarStore(), nil)
	ctx := context.Background()

	got, err := e.ParseTime(ctx, "friday at 3pm")
	require.NoError(t, err)
	assert.True(t, got.Equal(at(30, 15, 0)), "got %s", got)

	r, err := e.ParseRange(ctx, "tomorrow")
	require.NoError(t, err)
	assert.True(t, r.Start.Equal(at(27, 0, 0)))
	assert.True(t, r.End.Equal(at(28, 0, 0)))

	r, err = e.ParseRange(ctx, "friday")
	require.NoError(t, err)
	assert.True(t, r.Start.Equal(at(30, 0, 0)))
	assert.True(t, r.End.Equal(at(31, 0, 0)))

	_, err = e.ParseRange(ctx, "someday")
	assert.Error(t, err)
}

func TestCheckConflictsExpr(t *testing.T) {
	store := calendar.NewMockCalendarStore(event("standup", "Standup", at(27, 14, 0), 60))
	e := newTestEngine(t, store, nil)
	ctx := context.Background()

	result, clarification, err := e.CheckConflictsExpr(ctx, "tomorrow at 2:30pm", 30, "")
	require.NoError(t, err)
	require.Nil(t, clarification)
	assert.True(t, result.HasConflict)

	result, clarification, err = e.CheckConflictsExpr(ctx, "tomorrow at 2:30pm", 30, "standup")
	require.NoError(t, err)
	require.Nil(t, clarification)
	assert.False(t, result.HasConflict)

	tests := []struct {
		name     string
		expr     string
		duration int
		code     errors.ClarificationCode
	}{
		{name: "empty", expr: " ", duration: 30, code: errors.ClarifyNoDate},
		{name: "gibberish", expr: "whenever works", duration: 30, code: errors.ClarifyNoDate},
		{name: "zero duration", expr: "tomorrow at 3pm", duration: 0, code: errors.ClarifyInvalidDuration},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, clarification, err := e.CheckConflictsExpr(ctx, tt.expr, tt.duration, "")
			require.NoError(t, err)
			assert.Nil(t, result)
			require.NotNil(t, clarification)
			assert.Equal(t, tt.code, clarification.Code)
		})
	}
}

func TestSuggestFreeSlots(t *testing.T) {
	store := calendar.NewMockCalendarStore(event("standup", "Standup", at(26, 9, 0), 30))
	e := newTestEngine(t, store, nil)

	slots, err := e.SuggestFreeSlots(context.Background(), 60, 1)
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.True(t, slots[0].Start.Equal(at(26, 8, 0)), "first slot = %s", slots[0].Start)
	assert.True(t, slots[1].Start.Equal(at(26, 9, 30)), "second slot = %s", slots[1].Start)
}

func TestRecordCorrection_TeachesRouter(t *testing.T) {
	e := newTestEngine(t, calendar.NewMockCalendarStore(), nil)
	ctx := context.Background()

	require.NoError(t, e.RecordCorrection(ctx, "what's next on my plate", router.ActionCreate, router.ActionList))

	res := e.Route(ctx, "what's up next on my plate", RouteContext{})
	assert.Equal(t, router.ActionList, res.Decision.Action)
	assert.Equal(t, router.SourceLearned, res.Decision.Source)
	assert.InDelta(t, router.LearnedConfidence, res.Decision.Confidence, 1e-9)
}

func TestRecordFeedback_Validation(t *testing.T) {
	e := newTestEngine(t, calendar.NewMockCalendarStore(), nil)
	ctx := context.Background()

	err := e.RecordCorrection(ctx, "", router.ActionCreate, router.ActionList)
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidArgument))
	err = e.RecordCorrection(ctx, "q", router.ActionCreate, "teleport")
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidArgument))
	err = e.RecordSuccess(ctx, "q", "teleport", "")
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidArgument))

	require.NoError(t, e.RecordSuccess(ctx, "show my agenda", router.ActionList, `{"intent":"list"}`))
	successes := e.Memory().Successes()
	require.Len(t, successes, 1)
	assert.Equal(t, "list", successes[0].Action)
}

func TestFindOverlaps(t *testing.T) {
	events := []*calendar.EventInterval{
		event("c", "C", at(26, 12, 0), 60),
		event("a", "A", at(26, 9, 0), 200),
		event("b", "B", at(26, 10, 0), 30),
		event("d", "D", at(26, 13, 0), 30), // touches C
	}
	pairs := findOverlaps(events)
	require.Len(t, pairs, 2)
	assert.Equal(t, [2]string{"a", "b"}, [2]string{pairs[0].First.ID, pairs[0].Second.ID})
	assert.Equal(t, [2]string{"a", "c"}, [2]string{pairs[1].First.ID, pairs[1].Second.ID})
}
