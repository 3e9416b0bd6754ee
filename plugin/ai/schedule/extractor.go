package schedule

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/hrygo/calroute/internal/errors"
	"github.com/hrygo/calroute/plugin/ai/aitime"
)

// DefaultTitle is used when nothing in the query names the event.
const DefaultTitle = "New Event"

// ExtractorOptions configures an EntityExtractor.
type ExtractorOptions struct {
	Location *time.Location
	// Now overrides the clock, mainly for tests.
	Now      func() time.Time
	Contacts ContactResolver
	// Titles is optional; the pattern chain is used when it is nil or fails.
	Titles TitleGenerator
	Logger *slog.Logger
}

// EntityExtractor turns a scheduling query into Entities.
type EntityExtractor struct {
	parser   *aitime.Parser
	contacts ContactResolver
	titles   TitleGenerator
	logger   *slog.Logger
}

// NewEntityExtractor creates an extractor.
func NewEntityExtractor(opts ExtractorOptions) *EntityExtractor {
	parser := aitime.NewParser(opts.Location)
	if opts.Now != nil {
		parser = parser.WithNow(opts.Now)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &EntityExtractor{
		parser:   parser,
		contacts: opts.Contacts,
		titles:   opts.Titles,
		logger:   logger,
	}
}

// Parser returns the time parser, configured with the user's timezone and clock.
func (x *EntityExtractor) Parser() *aitime.Parser {
	return x.parser
}

// Extract resolves title, time, duration, attendees, location and recurrence.
// The returned entities are always non-nil; a clarification reports what could
// not be resolved (NO_DATE, INVALID_RANGE, UNRESOLVED_ATTENDEE, in that order).
func (x *EntityExtractor) Extract(ctx context.Context, query string) (*Entities, *errors.Clarification) {
	text := CanonicalizeOneOnOne(strings.Join(strings.Fields(query), " "))
	now := x.parser.Now()
	ent := &Entities{}
	var consumed []string

	rec, recurring := parseRecurrence(text, now, x.parser)
	if recurring {
		ent.Recurrence = rec.rule
		consumed = append(consumed, rec.spans...)
	}

	people := extractAttendees(ctx, text, x.contacts, x.logger)
	ent.Attendees = people.emails
	ent.UnresolvedAttendees = people.unresolved
	consumed = append(consumed, people.spans...)

	location, locationSpan := extractLocation(text)
	ent.Location = location
	consumed = append(consumed, locationSpan)

	dur, hasDuration := parseDuration(text)
	if hasDuration {
		consumed = append(consumed, dur.span)
	}
	span, hasRange := parseClockRange(text)
	if hasRange {
		consumed = append(consumed, span.span)
	}

	// The time parser sees the query without recurrence, duration and place phrases.
	timeText := strings.ToLower(text)
	var strip []string
	if recurring {
		strip = append(strip, rec.spans...)
	}
	if hasDuration {
		strip = append(strip, dur.span)
	}
	for _, s := range append(strip, locationSpan) {
		timeText = removePhrase(timeText, s)
	}
	result, timeErr := x.resolveTime(timeText)
	if timeErr == nil {
		consumed = append(consumed, result.Spans...)
		ent.TimeExpression = combineSpans(result.Spans)
	}

	var anchor time.Time
	if recurring {
		anchor = rec.anchor
	}

	var start time.Time
	switch {
	case hasRange:
		day, pinned := now, false
		if timeErr == nil && result.HasDate {
			day, pinned = result.Time, true
		} else if !anchor.IsZero() {
			day, pinned = anchor, true
		}
		start, ent.End = span.apply(day)
		if !pinned && start.Before(now) {
			start, ent.End = start.AddDate(0, 0, 1), ent.End.AddDate(0, 0, 1)
		}
		ent.HasTime = true
		ent.TimeExpression = strings.TrimSpace(ent.TimeExpression + " " + span.span)
	case timeErr == nil:
		start = result.Time
		ent.HasTime = result.HasTime
		if !anchor.IsZero() && !result.HasDate {
			start = atClock(anchor, result.Time, result.HasTime)
		}
	case !anchor.IsZero():
		start = atClock(anchor, time.Time{}, false)
	}

	if !start.IsZero() && ent.Recurrence != nil {
		aligned := alignToRule(start, ent.Recurrence)
		if !aligned.Equal(start) && !ent.End.IsZero() {
			ent.End = ent.End.Add(aligned.Sub(start))
		}
		start = aligned
	}
	ent.Start = start

	switch {
	case hasRange:
		ent.DurationMinutes = span.minutes()
	case hasDuration:
		ent.DurationMinutes = dur.minutes
	default:
		ent.DurationMinutes = DefaultDuration(text)
	}
	if !start.IsZero() && ent.End.IsZero() {
		ent.End = start.Add(ent.Duration())
	}

	ent.Title = x.title(ctx, text, consumed)
	if ent.Recurrence != nil {
		ent.RRULE = ent.Recurrence.String()
	}

	x.logger.Debug("entities extracted",
		"title", ent.Title,
		"start", ent.Start,
		"duration_minutes", ent.DurationMinutes,
		"attendees", len(ent.Attendees),
		"rrule", ent.RRULE,
	)

	switch {
	case start.IsZero():
		return ent, errors.NeedsMoreInfo(errors.ClarifyNoDate, "start", "no date or time found in %q", query)
	case !ent.Start.Before(ent.End):
		return ent, errors.NeedsMoreInfo(errors.ClarifyInvalidRange, "end", "event must end after it starts")
	case len(ent.UnresolvedAttendees) > 0:
		return ent, errors.NeedsMoreInfo(errors.ClarifyUnresolvedAttendee, "attendees",
			"no contact found for %s", strings.Join(ent.UnresolvedAttendees, ", ")).
			WithCandidates(ent.UnresolvedAttendees...)
	}
	return ent, nil
}

// resolveTime parses text, then re-parses the combined date and time phrases
// ("tomorrow" + "8am" → "tomorrow at 8am") so stray words cannot shift the result.
func (x *EntityExtractor) resolveTime(text string) (aitime.Result, error) {
	first, err := x.parser.ParseDetailed(text)
	if err != nil {
		return aitime.Result{}, err
	}
	expr := combineSpans(first.Spans)
	if expr == "" {
		return first, nil
	}
	combined, err := x.parser.ParseDetailed(expr)
	if err != nil || combined.HasDate != first.HasDate || combined.HasTime != first.HasTime {
		return first, nil
	}
	combined.Spans = first.Spans
	return combined, nil
}

func (x *EntityExtractor) title(ctx context.Context, text string, consumed []string) string {
	if x.titles != nil {
		title, err := x.titles.GenerateTitle(ctx, text)
		if err == nil && title != "" {
			return title
		}
		x.logger.Warn("title generation failed, using pattern fallback",
			"error", err,
		)
	}
	if title := fallbackTitle(text, consumed); title != "" {
		return title
	}
	return DefaultTitle
}

// combineSpans joins a date phrase and time phrase into one expression.
func combineSpans(spans []string) string {
	switch len(spans) {
	case 0:
		return ""
	case 1:
		return spans[0]
	}
	date, clock := spans[0], strings.Join(spans[1:], " ")
	if strings.HasPrefix(clock, "at ") || strings.HasPrefix(clock, "in ") || strings.HasPrefix(clock, "this ") {
		return date + " " + clock
	}
	if _, ok := aitime.DayPartHours[clock]; ok {
		return date + " " + clock
	}
	return date + " at " + clock
}

// atClock places day's date at clock's time, or DefaultHour when there is no clock.
func atClock(day, clock time.Time, hasClock bool) time.Time {
	hour, minute := aitime.DefaultHour, 0
	if hasClock {
		hour, minute = clock.Hour(), clock.Minute()
	}
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, day.Location())
}

// removePhrase blanks every occurrence of phrase in the lowercased s.
func removePhrase(s, phrase string) string {
	phrase = strings.ToLower(strings.TrimSpace(phrase))
	if phrase == "" {
		return s
	}
	return strings.ReplaceAll(s, phrase, " ")
}
