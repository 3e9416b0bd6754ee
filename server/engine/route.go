package engine

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/hrygo/calroute/internal/errors"
	"github.com/hrygo/calroute/internal/observability"
	"github.com/hrygo/calroute/plugin/ai/aitime"
	"github.com/hrygo/calroute/plugin/ai/router"
	"github.com/hrygo/calroute/plugin/ai/schedule"
	calendar "github.com/hrygo/calroute/server/service/schedule"
	"github.com/hrygo/calroute/server/scheduler/suggestion"
)

// RouteContext carries per-request caller information.
type RouteContext struct {
	// UserID keys the LLM rate limiter and request logs. May be empty.
	UserID string
}

// OverlapPair is two existing events that overlap each other.
type OverlapPair struct {
	First  calendar.EventInterval `json:"first"`
	Second calendar.EventInterval `json:"second"`
}

// RouteResult is the routing decision plus whatever the engine could resolve
// for the chosen action. A clarification means the caller should ask the user.
type RouteResult struct {
	Decision router.Decision `json:"decision"`

	Entities  *schedule.Entities       `json:"entities,omitempty"`
	Range     *aitime.TimeRange        `json:"range,omitempty"`
	Conflicts *calendar.ConflictResult `json:"conflicts,omitempty"`
	Overlaps  []OverlapPair            `json:"overlaps,omitempty"`
	FreeSlots []suggestion.FreeSlot    `json:"free_slots,omitempty"`
	Move      *schedule.MoveResolution `json:"move,omitempty"`

	Clarification *errors.Clarification `json:"clarification,omitempty"`
	// Err is a calendar failure while resolving details. The decision still stands.
	Err error `json:"-"`
}

// actionHandler fills action-specific details into res.
type actionHandler func(ctx context.Context, query string, res *RouteResult) error

// actionTable has one entry per ActionKind.
func (e *Engine) actionTable() map[router.ActionKind]actionHandler {
	return map[router.ActionKind]actionHandler{
		router.ActionList:             e.resolveRange,
		router.ActionCreate:           e.prepareCreate,
		router.ActionUpdate:           e.resolveRange,
		router.ActionDelete:           e.resolveRange,
		router.ActionSearch:           e.resolveRange,
		router.ActionCount:            e.resolveRange,
		router.ActionAnalyzeConflicts: e.analyzeConflicts,
		router.ActionMove:             e.prepareMove,
		router.ActionFindFreeTime:     e.findFreeTime,
	}
}

// Route decides the action for query and resolves its details: entities and
// conflicts for create, the matched event and new time for move, free slots
// for find_free_time and the date range for the read-style actions.
func (e *Engine) Route(ctx context.Context, query string, rc RouteContext) RouteResult {
	reqCtx := observability.NewRequestContext(e.logger, "route", rc.UserID)
	ctx = observability.WithRequestContext(ctx, reqCtx)
	reqCtx.Debug("route started",
		slog.Int(observability.LogFieldQueryLen, len(query)),
	)

	res := RouteResult{Decision: e.router.Route(ctx, query, rc.UserID)}
	handler, ok := e.dispatch[res.Decision.Action]
	if !ok {
		reqCtx.Warn("no handler for action", slog.String("action", string(res.Decision.Action)))
		return res
	}
	if err := handler(ctx, query, &res); err != nil {
		res.Err = err
		reqCtx.Error("failed to resolve action details", err,
			slog.String("action", string(res.Decision.Action)),
		)
	}
	if res.Clarification != nil {
		reqCtx.Info("clarification needed",
			slog.String("code", string(res.Clarification.Code)),
			slog.String("field", res.Clarification.Field),
		)
	}
	reqCtx.Debug("route completed",
		slog.Int64(observability.LogFieldDuration, reqCtx.DurationMs()),
	)
	return res
}

func (e *Engine) resolveRange(ctx context.Context, query string, res *RouteResult) error {
	if r, ok := e.rangeOf(ctx, query); ok {
		res.Range = &r
	}
	return nil
}

func (e *Engine) rangeOf(ctx context.Context, query string) (aitime.TimeRange, bool) {
	phrase, ok := aitime.FindRangePhrase(query)
	if !ok {
		return aitime.TimeRange{}, false
	}
	r, err := e.ParseRange(ctx, phrase)
	if err != nil {
		return aitime.TimeRange{}, false
	}
	return r, true
}

func (e *Engine) prepareCreate(ctx context.Context, query string, res *RouteResult) error {
	ent, clarification := e.ExtractEntities(ctx, query, router.ActionCreate)
	res.Entities = ent
	res.Clarification = clarification
	if !hasInterval(ent, clarification) {
		return nil
	}
	conflicts, err := e.conflicts.CheckConflicts(ctx, ent.Start, ent.DurationMinutes, "")
	if err != nil {
		return err
	}
	res.Conflicts = conflicts
	return nil
}

// analyzeConflicts checks a concrete proposed time when the query has one and
// otherwise reports overlaps among existing events in the named range.
func (e *Engine) analyzeConflicts(ctx context.Context, query string, res *RouteResult) error {
	ent, clarification := e.ExtractEntities(ctx, query, router.ActionAnalyzeConflicts)
	if hasInterval(ent, clarification) && ent.HasTime {
		res.Entities = ent
		res.Clarification = clarification
		conflicts, err := e.conflicts.CheckConflicts(ctx, ent.Start, ent.DurationMinutes, "")
		if err != nil {
			return err
		}
		res.Conflicts = conflicts
		return nil
	}

	r, ok := e.rangeOf(ctx, query)
	if !ok {
		start := aitime.StartOfDay(e.now().In(e.location))
		r = aitime.TimeRange{Start: start, End: start.AddDate(0, 0, DefaultWindowDays)}
	}
	res.Range = &r
	events, err := e.conflicts.ListEvents(ctx, r.Start, r.End)
	if err != nil {
		return err
	}
	res.Overlaps = findOverlaps(events)
	return nil
}

func (e *Engine) prepareMove(ctx context.Context, query string, res *RouteResult) error {
	move, clarification, err := e.mover.Resolve(ctx, query)
	if err != nil {
		return err
	}
	res.Move = move
	res.Clarification = clarification
	if move == nil {
		return nil
	}
	minutes := int(move.NewEnd.Sub(move.NewStart) / time.Minute)
	conflicts, err := e.conflicts.CheckConflicts(ctx, move.NewStart, minutes, move.Event.ID)
	if err != nil {
		return err
	}
	res.Conflicts = conflicts
	return nil
}

// findFreeTime searches the named range, or the default window from now.
func (e *Engine) findFreeTime(ctx context.Context, query string, res *RouteResult) error {
	ent, _ := e.ExtractEntities(ctx, query, router.ActionFindFreeTime)
	res.Entities = ent

	from := e.now().In(e.location)
	end := from.AddDate(0, 0, DefaultWindowDays)
	if r, ok := e.rangeOf(ctx, query); ok {
		res.Range = &r
		if r.Start.After(from) {
			from = r.Start
		}
		end = r.End
	}
	slots, err := e.conflicts.SuggestFreeSlotsBetween(ctx, ent.DurationMinutes, from, end)
	if err != nil {
		return err
	}
	res.FreeSlots = slots
	return nil
}

// hasInterval reports whether extraction produced a usable start and end.
func hasInterval(ent *schedule.Entities, clarification *errors.Clarification) bool {
	if ent == nil || ent.Start.IsZero() || !ent.Start.Before(ent.End) {
		return false
	}
	return clarification == nil || clarification.Code == errors.ClarifyUnresolvedAttendee
}

// findOverlaps returns every pair of events that overlap, ordered by the first start.
func findOverlaps(events []*calendar.EventInterval) []OverlapPair {
	sorted := make([]*calendar.EventInterval, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Start.Before(sorted[j].Start)
	})

	var pairs []OverlapPair
	for i, a := range sorted {
		for _, b := range sorted[i+1:] {
			if !b.Start.Before(a.End) {
				break
			}
			if a.Overlaps(b.Start, b.End) {
				pairs = append(pairs, OverlapPair{First: *a, Second: *b})
			}
		}
	}
	return pairs
}
