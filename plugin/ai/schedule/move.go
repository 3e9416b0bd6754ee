package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/hrygo/calroute/internal/errors"
	"github.com/hrygo/calroute/plugin/ai/aitime"
	"github.com/hrygo/calroute/plugin/ai/memory"
	"github.com/hrygo/calroute/plugin/ai/vector"
	calendar "github.com/hrygo/calroute/server/service/schedule"
)

const (
	// MatchThreshold is the minimum similarity for a semantic title match.
	MatchThreshold = 0.7
	// MoveSearchDays is how far ahead events are searched when the query names no date.
	MoveSearchDays = 14
)

// How an event was chosen.
const (
	MatchedBySemantic  = "semantic"
	MatchedBySubstring = "substring"
	MatchedByFirst     = "first"
)

// Embedder encodes text for semantic title matching.
type Embedder interface {
	Encode(ctx context.Context, text string) ([]float32, error)
}

var (
	placeholderPattern = regexp.MustCompile(`\{\{[^}]*\}\}|\$[A-Za-z_]\w*|<[A-Za-z_ ]+>|\[(?:event|meeting|title|id)[^\]]*\]`)
	targetSplitPattern = regexp.MustCompile(`\b(?:to|for)\b`)
	forPattern         = regexp.MustCompile(`\bfor\b`)
	moveVerbPattern    = regexp.MustCompile(`^(?:(?:please|can you|could you)\s+)*(?:move|reschedule|re-schedule|shift|push|bump|postpone|change|rearrange|delay|put)\s+(?:back\s+|forward\s+)?`)
	articlePattern     = regexp.MustCompile(`\b(?:my|the|our|this|that|a|an)\b`)
	trailingMovePart   = regexp.MustCompile(`\s+(?:back|forward|over|out)$`)
	bareDayPartPattern = regexp.MustCompile(`^(?:the\s+)?(?:in\s+the\s+|this\s+|that\s+)?(morning|afternoon|evening|night)$`)
	sameDayPattern     = regexp.MustCompile(`\b(?:that|the same|same)\s+day\b`)
)

// MoveCriteria identifies the event to move and where it goes.
type MoveCriteria struct {
	// Title is the event reference with verbs, articles and dates removed.
	Title string `json:"title"`
	// Date restricts the search to one day when HasDate is set.
	Date    time.Time `json:"date"`
	HasDate bool      `json:"has_date"`
	// NewTimeExpression is the text after the last "to" or "for".
	NewTimeExpression string `json:"new_time_expression"`
	// DurationMinutes is set by a trailing "for 30 minutes"; zero keeps the event's length.
	DurationMinutes int `json:"duration_minutes,omitempty"`
}

// MoveResolution is a matched event and its new interval.
type MoveResolution struct {
	Event             calendar.EventInterval `json:"event"`
	NewStart          time.Time              `json:"new_start"`
	NewEnd            time.Time              `json:"new_end"`
	MatchScore        float64                `json:"match_score"`
	MatchedBy         string                 `json:"matched_by"`
	NewTimeExpression string                 `json:"new_time_expression"`
	Criteria          MoveCriteria           `json:"criteria"`
}

// MoveResolver finds the event a reschedule request refers to and its new time.
type MoveResolver struct {
	parser   *aitime.Parser
	store    calendar.CalendarStore
	embedder Embedder
	logger   *slog.Logger
}

// NewMoveResolver creates a resolver. embedder may be nil, in which case
// titles are compared by token overlap.
func NewMoveResolver(parser *aitime.Parser, store calendar.CalendarStore, embedder Embedder, logger *slog.Logger) *MoveResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &MoveResolver{parser: parser, store: store, embedder: embedder, logger: logger}
}

// Resolve extracts criteria, picks the best matching event and computes its new interval.
// Store failures are errors; unresolvable input is a clarification.
func (r *MoveResolver) Resolve(ctx context.Context, query string) (*MoveResolution, *errors.Clarification, error) {
	criteria, clarification := r.ExtractMoveCriteria(query)
	if clarification != nil {
		return nil, clarification, nil
	}

	from := aitime.StartOfDay(r.parser.Now())
	to := from.AddDate(0, 0, MoveSearchDays)
	if criteria.HasDate {
		from = aitime.StartOfDay(criteria.Date)
		to = from.AddDate(0, 0, 1)
	}
	events, err := r.store.ListEvents(ctx, from, to)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list events: %w", err)
	}

	event, score, matchedBy, clarification := r.MatchEvent(ctx, criteria, events)
	if clarification != nil {
		return nil, clarification, nil
	}

	newStart, clarification := r.ResolveNewTime(criteria.NewTimeExpression, event)
	if clarification != nil {
		return nil, clarification, nil
	}

	length := event.Duration()
	if criteria.DurationMinutes > 0 {
		length = time.Duration(criteria.DurationMinutes) * time.Minute
	}

	r.logger.Debug("move resolved",
		"event_id", event.ID,
		"title", event.Title,
		"matched_by", matchedBy,
		"score", score,
		"new_start", newStart,
	)
	return &MoveResolution{
		Event:             *event,
		NewStart:          newStart,
		NewEnd:            newStart.Add(length),
		MatchScore:        score,
		MatchedBy:         matchedBy,
		NewTimeExpression: criteria.NewTimeExpression,
		Criteria:          *criteria,
	}, nil, nil
}

// ExtractMoveCriteria splits a move request into the event reference and the
// new time expression.
func (r *MoveResolver) ExtractMoveCriteria(query string) (*MoveCriteria, *errors.Clarification) {
	if ph := placeholderPattern.FindString(query); ph != "" {
		return nil, errors.NeedsMoreInfo(errors.ClarifyWhichEvent, "event", "event reference %s was not resolved", ph).
			WithCandidates(ph)
	}

	s := strings.ToLower(strings.Join(strings.Fields(query), " "))
	criteria := &MoveCriteria{}

	// "to tomorrow for 30 minutes": the trailing duration is not the target.
	if idx := forPattern.FindAllStringIndex(s, -1); len(idx) > 0 {
		last := idx[len(idx)-1]
		tail := strings.Trim(s[last[1]:], " .!?")
		if d, ok := parseDuration(tail); ok && d.span == tail {
			criteria.DurationMinutes = d.minutes
			s = strings.TrimSpace(s[:last[0]])
		}
	}

	head := s
	if idx := targetSplitPattern.FindAllStringIndex(s, -1); len(idx) > 0 {
		last := idx[len(idx)-1]
		head = strings.TrimSpace(s[:last[0]])
		criteria.NewTimeExpression = strings.TrimSpace(strings.Trim(s[last[1]:], " .!?"))
	}

	head = moveVerbPattern.ReplaceAllString(head, "")
	head = trailingMovePart.ReplaceAllString(head, "")
	if res, err := r.parser.ParseDetailed(head); err == nil && res.HasDate {
		criteria.Date = res.Time
		criteria.HasDate = true
		for _, span := range res.Spans {
			head = removePhrase(head, span)
		}
	}
	head = strings.ReplaceAll(head, "'s", " ")
	head = articlePattern.ReplaceAllString(head, " ")
	criteria.Title = strings.Join(strings.Fields(strings.Trim(head, " ,.")), " ")

	if criteria.NewTimeExpression == "" {
		return nil, errors.NeedsMoreInfo(errors.ClarifyNoDate, "new_time", "no new time given in %q", query)
	}
	return criteria, nil
}

// MatchEvent picks the event the criteria refer to: semantic similarity at or
// above MatchThreshold, then case-insensitive containment, then the first event.
func (r *MoveResolver) MatchEvent(ctx context.Context, criteria *MoveCriteria, events []*calendar.EventInterval) (*calendar.EventInterval, float64, string, *errors.Clarification) {
	candidates := events
	if criteria.HasDate {
		candidates = candidates[:0:0]
		for _, e := range events {
			if sameDate(e.Start.In(r.parser.Location()), criteria.Date) {
				candidates = append(candidates, e)
			}
		}
	}
	if len(candidates) == 0 {
		return nil, 0, "", errors.NeedsMoreInfo(errors.ClarifyNoMatchingEvent, "event", "no event matches %q", criteria.Title)
	}
	if criteria.Title == "" {
		return candidates[0], 0, MatchedByFirst, nil
	}

	best, bestScore := r.bestTitleMatch(ctx, criteria.Title, candidates)
	if best >= 0 && bestScore >= MatchThreshold {
		return candidates[best], bestScore, MatchedBySemantic, nil
	}

	needle := strings.ToLower(criteria.Title)
	for _, e := range candidates {
		title := strings.ToLower(e.Title)
		if title != "" && (strings.Contains(title, needle) || strings.Contains(needle, title)) {
			return e, memory.Jaccard(needle, title), MatchedBySubstring, nil
		}
	}
	return candidates[0], 0, MatchedByFirst, nil
}

// bestTitleMatch scores every candidate title against title with the
// embedder, or by token overlap without one, and returns the best index.
func (r *MoveResolver) bestTitleMatch(ctx context.Context, title string, candidates []*calendar.EventInterval) (int, float64) {
	if r.embedder != nil {
		idx, score, err := r.embeddedMatch(ctx, title, candidates)
		if err == nil {
			return idx, score
		}
		r.logger.Warn("title embedding failed, using token overlap", "error", err)
	}
	best, bestScore := -1, 0.0
	for i, e := range candidates {
		if score := memory.Jaccard(title, e.Title); score > bestScore {
			best, bestScore = i, score
		}
	}
	return best, bestScore
}

func (r *MoveResolver) embeddedMatch(ctx context.Context, title string, candidates []*calendar.EventInterval) (int, float64, error) {
	query, err := r.embedder.Encode(ctx, title)
	if err != nil {
		return -1, 0, err
	}
	vectors := make([][]float32, 0, len(candidates))
	for _, e := range candidates {
		v, err := r.embedder.Encode(ctx, e.Title)
		if err != nil {
			return -1, 0, err
		}
		vectors = append(vectors, v)
	}
	score, idx := vector.MaxSimilarity(query, vectors)
	return idx, score, nil
}

// ResolveNewTime turns the new time expression into a start for event.
// "that day", bare day-parts and a bare clock keep the event's date; a date
// without a clock keeps the event's clock time.
func (r *MoveResolver) ResolveNewTime(expr string, event *calendar.EventInterval) (time.Time, *errors.Clarification) {
	loc := r.parser.Location()
	current := event.Start.In(loc)
	e := strings.TrimSpace(strings.ToLower(expr))

	if m := bareDayPartPattern.FindStringSubmatch(e); m != nil {
		return onDate(current, aitime.DayPartHours[m[1]], 0), nil
	}

	if sameDayPattern.MatchString(e) {
		rest := strings.TrimSpace(sameDayPattern.ReplaceAllString(e, " "))
		if rest == "" {
			return current, nil
		}
		if m := bareDayPartPattern.FindStringSubmatch(strings.TrimSpace(strings.TrimPrefix(rest, "in"))); m != nil {
			return onDate(current, aitime.DayPartHours[m[1]], 0), nil
		}
		if res, err := r.parser.ParseDetailed(rest); err == nil && res.HasTime {
			return onDate(current, res.Time.Hour(), res.Time.Minute()), nil
		}
		return current, nil
	}

	res, err := r.parser.ParseDetailed(e)
	if err != nil {
		return time.Time{}, errors.NeedsMoreInfo(errors.ClarifyNoDate, "new_time", "could not understand %q as a time", expr)
	}
	switch {
	case res.HasDate && !res.HasTime:
		return onDate(res.Time, current.Hour(), current.Minute()), nil
	case res.HasTime && !res.HasDate:
		return onDate(current, res.Time.Hour(), res.Time.Minute()), nil
	}
	return res.Time, nil
}

func onDate(day time.Time, hour, minute int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, day.Location())
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.In(a.Location()).Date()
	return ay == by && am == bm && ad == bd
}
