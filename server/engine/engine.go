// Package engine is the public surface of the calendar intent engine. It
// wires the router, entity extraction, conflict detection, free-slot search,
// move resolution and the correction memory behind one type.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hrygo/calroute/internal/errors"
	"github.com/hrygo/calroute/internal/observability"
	"github.com/hrygo/calroute/plugin/ai/aitime"
	"github.com/hrygo/calroute/plugin/ai/memory"
	"github.com/hrygo/calroute/plugin/ai/router"
	"github.com/hrygo/calroute/plugin/ai/schedule"
	"github.com/hrygo/calroute/plugin/ai/timeout"
	calendar "github.com/hrygo/calroute/server/service/schedule"
	"github.com/hrygo/calroute/server/scheduler/suggestion"
)

// DefaultWindowDays is the free-slot search window when the caller passes none.
const DefaultWindowDays = 7

// Options configures an Engine. Calendar is the only required field.
type Options struct {
	Calendar calendar.CalendarStore
	// Router defaults to a pattern-only router.
	Router *router.Service
	// Memory defaults to an empty in-process memory.
	Memory *memory.CorrectionMemory

	Location *time.Location
	// Now overrides the clock for extraction, move resolution and free slots.
	Now func() time.Time

	Contacts schedule.ContactResolver
	Titles   schedule.TitleGenerator
	// Embedder enables semantic title matching for move requests.
	Embedder schedule.Embedder
	// WorkingHours limits suggested slots to a daily band. Nil means no band.
	WorkingHours *suggestion.WorkingHours

	Logger *slog.Logger
}

// Engine answers natural-language calendar requests.
type Engine struct {
	router    *router.Service
	memory    *memory.CorrectionMemory
	extractor *schedule.EntityExtractor
	mover     *schedule.MoveResolver
	times     aitime.TimeService
	conflicts *calendar.ConflictEngine
	location  *time.Location
	now       func() time.Time
	logger    *slog.Logger

	dispatch map[router.ActionKind]actionHandler
}

// New creates an engine. A nil calendar store is a configuration error.
func New(opts Options) (*Engine, error) {
	if opts.Calendar == nil {
		return nil, fmt.Errorf("calendar store is required")
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Memory == nil {
		opts.Memory = memory.NewCorrectionMemory(memory.Options{Logger: opts.Logger})
	}
	if opts.Router == nil {
		svc, err := router.NewService(router.Config{
			History: router.NewHistoryMatcher(opts.Memory, opts.Logger),
			Logger:  opts.Logger,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create router: %w", err)
		}
		opts.Router = svc
	}

	extractor := schedule.NewEntityExtractor(schedule.ExtractorOptions{
		Location: opts.Location,
		Now:      opts.Now,
		Contacts: opts.Contacts,
		Titles:   opts.Titles,
		Logger:   opts.Logger,
	})

	finderOpts := []suggestion.Option{suggestion.WithClock(opts.Now)}
	if opts.WorkingHours != nil {
		finderOpts = append(finderOpts, suggestion.WithWorkingHours(opts.WorkingHours))
	}
	conflicts, err := calendar.NewConflictEngine(opts.Calendar, opts.Location, suggestion.NewFreeSlotFinder(finderOpts...), opts.Logger)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		router:    opts.Router,
		memory:    opts.Memory,
		extractor: extractor,
		mover:     schedule.NewMoveResolver(extractor.Parser(), opts.Calendar, opts.Embedder, opts.Logger),
		times:     aitime.NewService(extractor.Parser()),
		conflicts: conflicts,
		location:  opts.Location,
		now:       opts.Now,
		logger:    opts.Logger,
	}
	e.dispatch = e.actionTable()
	return e, nil
}

// Location returns the user timezone.
func (e *Engine) Location() *time.Location {
	return e.location
}

// Memory returns the correction memory.
func (e *Engine) Memory() *memory.CorrectionMemory {
	return e.memory
}

// ExtractEntities resolves the structured fields of query. For find_free_time
// a missing date is not a clarification: only the duration matters.
func (e *Engine) ExtractEntities(ctx context.Context, query string, action router.ActionKind) (*schedule.Entities, *errors.Clarification) {
	ent, clarification := e.extractor.Extract(ctx, query)
	if clarification != nil && action == router.ActionFindFreeTime && clarification.Code == errors.ClarifyNoDate {
		clarification = nil
	}
	return ent, clarification
}

// CheckConflicts checks a proposed interval against the calendar and proposes
// free slots on conflict.
func (e *Engine) CheckConflicts(ctx context.Context, start time.Time, durationMinutes int, excludeID string) (*calendar.ConflictResult, error) {
	return e.conflicts.CheckConflicts(ctx, start, durationMinutes, excludeID)
}

// CheckConflictsExpr is CheckConflicts for a natural-language start such as
// "tomorrow at 3pm". Unparseable input and non-positive durations are clarifications.
func (e *Engine) CheckConflictsExpr(ctx context.Context, expr string, durationMinutes int, excludeID string) (*calendar.ConflictResult, *errors.Clarification, error) {
	if durationMinutes <= 0 {
		return nil, errors.NeedsMoreInfo(errors.ClarifyInvalidDuration, "duration", "duration must be positive, got %d minutes", durationMinutes), nil
	}
	if strings.TrimSpace(expr) == "" {
		return nil, errors.NeedsMoreInfo(errors.ClarifyNoDate, "start", "no start time given"), nil
	}
	start, err := e.times.Normalize(ctx, expr, "")
	if err != nil {
		return nil, errors.NeedsMoreInfo(errors.ClarifyNoDate, "start", "could not understand %q as a time", expr), nil
	}
	result, err := e.conflicts.CheckConflicts(ctx, start, durationMinutes, excludeID)
	return result, nil, err
}

// ParseTime resolves a natural-language time such as "friday at 3pm" in the user timezone.
func (e *Engine) ParseTime(ctx context.Context, expr string) (time.Time, error) {
	return e.times.Normalize(ctx, expr, "")
}

// ParseRange resolves "this week", "tomorrow" or a single day such as
// "friday" to a range relative to now.
func (e *Engine) ParseRange(ctx context.Context, phrase string) (aitime.TimeRange, error) {
	return e.times.ParseNaturalTime(ctx, phrase, e.now().In(e.location))
}

// SuggestFreeSlots lists free slots of durationMinutes from now over windowDays days.
func (e *Engine) SuggestFreeSlots(ctx context.Context, durationMinutes, windowDays int) ([]suggestion.FreeSlot, error) {
	if windowDays <= 0 {
		windowDays = DefaultWindowDays
	}
	return e.conflicts.SuggestFreeSlots(ctx, durationMinutes, e.now(), windowDays)
}

// ResolveMove finds the event a reschedule request refers to and its new time.
func (e *Engine) ResolveMove(ctx context.Context, query string) (*schedule.MoveResolution, *errors.Clarification, error) {
	return e.mover.Resolve(ctx, query)
}

// RecordCorrection teaches the engine that query meant correct, not wrong.
func (e *Engine) RecordCorrection(ctx context.Context, query string, wrong, correct router.ActionKind) error {
	if strings.TrimSpace(query) == "" {
		return errors.InvalidArgument("query is required")
	}
	if !correct.Valid() {
		return errors.InvalidArgument(fmt.Sprintf("unknown action %q", correct))
	}
	if wrong != "" && !wrong.Valid() {
		return errors.InvalidArgument(fmt.Sprintf("unknown action %q", wrong))
	}
	rec := e.memory.RecordCorrection(ctx, query, string(wrong), string(correct))
	observability.Logger(ctx).Info("routing correction recorded",
		"input", truncate(query, timeout.MaxTruncateLength),
		"wrong", rec.WrongAction,
		"correct", rec.CorrectAction,
	)
	return nil
}

// RecordSuccess stores a confirmed routing as a few-shot example.
// classification is the raw model answer and may be empty.
func (e *Engine) RecordSuccess(ctx context.Context, query string, action router.ActionKind, classification string) error {
	if strings.TrimSpace(query) == "" {
		return errors.InvalidArgument("query is required")
	}
	if !action.Valid() {
		return errors.InvalidArgument(fmt.Sprintf("unknown action %q", action))
	}
	e.memory.RecordSuccess(ctx, query, string(action), classification)
	return nil
}

func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
