package aitime

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrNoTime is returned when an input holds no recognizable date or time.
var ErrNoTime = errors.New("unable to parse time")

// Patterns for time parsing. Inputs are lowercased before matching.
var (
	relativeOffsetPattern = regexp.MustCompile(`\bin\s+(\d+|an?|one|two|three|four|five|six|seven|eight|nine|ten|eleven|twelve|half an?)\s+(minutes?|mins?|hours?|hrs?|days?|weeks?)\b`)
	fromNowPattern        = regexp.MustCompile(`\b(\d+)\s+(minutes?|mins?|hours?|hrs?|days?|weeks?)\s+from\s+now\b`)

	ordinalWeekdayPattern = regexp.MustCompile(`\b(first|second|third|fourth|last|1st|2nd|3rd|4th)\s+(monday|tuesday|wednesday|thursday|friday|saturday|sunday|mon|tue|tues|wed|thu|thur|thurs|fri|sat|sun)(?:\s+(?:of|in)\s+(?:the\s+|this\s+)?(next month|month|january|february|march|april|may|june|july|august|september|october|november|december))?\b`)

	isoDatePattern       = regexp.MustCompile(`\b(\d{4})-(\d{1,2})-(\d{1,2})\b`)
	slashDatePattern     = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})(?:/(\d{2}|\d{4}))?\b`)
	monthDayPattern      = regexp.MustCompile(`\b(jan|january|feb|february|mar|march|apr|april|may|jun|june|jul|july|aug|august|sep|sept|september|oct|october|nov|november|dec|december)\.?\s+(\d{1,2})(?:st|nd|rd|th)?(?:,?\s+(\d{4}))?\b`)
	dayMonthPattern      = regexp.MustCompile(`\b(\d{1,2})(?:st|nd|rd|th)?\s+(?:of\s+)?(jan|january|feb|february|mar|march|apr|april|may|jun|june|jul|july|aug|august|sep|sept|september|oct|october|nov|november|dec|december)\b(?:,?\s+(\d{4}))?`)
	relativeDayPattern   = regexp.MustCompile(`\b(day after tomorrow|tomorrow|today|tonight|yesterday)\b`)
	weekdayPattern       = regexp.MustCompile(`\b(?:(next|this|last|coming)\s+)?(monday|tuesday|wednesday|thursday|friday|saturday|sunday|mon|tues|tue|wed|thurs|thur|thu|fri|sat|sun)\b`)
	periodPattern        = regexp.MustCompile(`\b(next|this)\s+(week|weekend|month)\b`)
	clockAMPMPattern     = regexp.MustCompile(`\b(\d{1,2})(?::(\d{2}))?\s*(am|pm)\b`)
	clock24Pattern       = regexp.MustCompile(`\b(\d{1,2}):(\d{2})\b`)
	oclockPattern        = regexp.MustCompile(`\b(\d{1,2})\s*o'?clock\b`)
	atHourPattern        = regexp.MustCompile(`\bat\s+(\d{1,2})\b`)
	dayPartPattern       = regexp.MustCompile(`\b(?:in the\s+|this\s+)?(morning|afternoon|evening|night|tonight|noon|midday|midnight|lunchtime|lunch|end of day|eod)\b`)
	dayPartMorningPhrase = regexp.MustCompile(`\b(morning|am)\b`)
)

// DayPartHours maps day-part words to the hour they resolve to when no clock time is given.
var DayPartHours = map[string]int{
	"morning":    10,
	"afternoon":  14,
	"evening":    18,
	"night":      18,
	"tonight":    18,
	"noon":       12,
	"midday":     12,
	"lunch":      12,
	"lunchtime":  12,
	"midnight":   0,
	"end of day": 17,
	"eod":        17,
}

// DefaultHour is used when only a date is given.
const DefaultHour = 9

var weekdayNames = map[string]time.Weekday{
	"sunday": time.Sunday, "sun": time.Sunday,
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday, "tues": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday, "thur": time.Thursday, "thurs": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
}

var monthNames = map[string]time.Month{
	"jan": time.January, "january": time.January,
	"feb": time.February, "february": time.February,
	"mar": time.March, "march": time.March,
	"apr": time.April, "april": time.April,
	"may": time.May,
	"jun": time.June, "june": time.June,
	"jul": time.July, "july": time.July,
	"aug": time.August, "august": time.August,
	"sep": time.September, "sept": time.September, "september": time.September,
	"oct": time.October, "october": time.October,
	"nov": time.November, "november": time.November,
	"dec": time.December, "december": time.December,
}

var ordinalNames = map[string]int{
	"first": 1, "1st": 1,
	"second": 2, "2nd": 2,
	"third": 3, "3rd": 3,
	"fourth": 4, "4th": 4,
	"last": -1,
}

var numberWords = map[string]int{
	"a": 1, "an": 1, "one": 1, "two": 2, "three": 3, "four": 4, "five": 5, "six": 6,
	"seven": 7, "eight": 8, "nine": 9, "ten": 10, "eleven": 11, "twelve": 12,
}

// WeekdayFromName resolves full or abbreviated English weekday names.
func WeekdayFromName(name string) (time.Weekday, bool) {
	wd, ok := weekdayNames[strings.ToLower(strings.TrimSpace(name))]
	return wd, ok
}

// OrdinalFromName resolves "first".."fourth" to 1..4 and "last" to -1.
func OrdinalFromName(name string) (int, bool) {
	n, ok := ordinalNames[strings.ToLower(strings.TrimSpace(name))]
	return n, ok
}

// Result is a parsed expression with the parts that were actually present.
type Result struct {
	Time    time.Time
	HasDate bool
	HasTime bool
	// DayPart is the day-part word that set or adjusted the hour, if any.
	DayPart string
	// Spans are the matched phrases, lowercased.
	Spans []string
}

// Parser parses natural language time expressions.
type Parser struct {
	timezone *time.Location
	now      func() time.Time
}

// NewParser creates a new time parser with the given timezone.
func NewParser(timezone *time.Location) *Parser {
	if timezone == nil {
		timezone = time.Local
	}
	return &Parser{
		timezone: timezone,
		now:      time.Now,
	}
}

// WithTimezone returns a new parser with the given timezone.
func (p *Parser) WithTimezone(tz *time.Location) *Parser {
	return &Parser{
		timezone: tz,
		now:      p.now,
	}
}

// WithNow returns a new parser reading the current time from now.
func (p *Parser) WithNow(now func() time.Time) *Parser {
	return &Parser{
		timezone: p.timezone,
		now:      now,
	}
}

// Location returns the parser's timezone.
func (p *Parser) Location() *time.Location {
	return p.timezone
}

// Now returns the parser's current time in its timezone.
func (p *Parser) Now() time.Time {
	return p.now().In(p.timezone)
}

// Parse parses a time expression and returns the parsed time.
func (p *Parser) Parse(input string) (time.Time, error) {
	r, err := p.ParseDetailed(input)
	if err != nil {
		return time.Time{}, err
	}
	return r.Time, nil
}

// ParseDetailed parses a time expression and reports which parts were present.
// A time without a date resolves to today, or tomorrow if that time has passed.
// A date without a time resolves to DefaultHour.
func (p *Parser) ParseDetailed(input string) (Result, error) {
	raw := strings.TrimSpace(input)
	if raw == "" {
		return Result{}, fmt.Errorf("empty input: %w", ErrNoTime)
	}

	now := p.Now()

	if r, ok := p.tryStandardFormats(raw, now); ok {
		return r, nil
	}

	s := normalize(raw)
	var r Result

	// "in 2 hours" is a complete instant; "in 3 days" is only a date.
	if d, span, ok := parseRelativeOffset(s); ok {
		r.Spans = append(r.Spans, span)
		if d < 24*time.Hour {
			r.Time = now.Add(d).Truncate(time.Minute)
			r.HasDate, r.HasTime = true, true
			return r, nil
		}
		r.HasDate = true
		day := startOfDay(now).AddDate(0, 0, int(d/(24*time.Hour)))
		return p.finish(r, day, s, now, false)
	}

	day, span, weekdayOnly, ok := p.parseDate(s, now)
	if ok {
		r.Spans = append(r.Spans, span)
		r.HasDate = true
	}
	return p.finish(r, day, s, now, weekdayOnly)
}

// finish applies the time of day to day (or today when no date was found).
func (p *Parser) finish(r Result, day time.Time, s string, now time.Time, weekdayOnly bool) (Result, error) {
	hour, minute, dayPart, spans, found := parseTimeOfDay(s)
	r.Spans = append(r.Spans, spans...)
	r.DayPart = dayPart

	if !r.HasDate && !found {
		return Result{}, fmt.Errorf("%q: %w", s, ErrNoTime)
	}
	if !r.HasDate {
		day = startOfDay(now)
	}
	if found {
		r.HasTime = true
	} else {
		hour, minute = DefaultHour, 0
	}

	r.Time = time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, p.timezone)

	if r.HasTime && r.Time.Before(now) {
		switch {
		case !r.HasDate:
			r.Time = r.Time.AddDate(0, 0, 1)
		case weekdayOnly && sameDay(day, now):
			r.Time = r.Time.AddDate(0, 0, 7)
		}
	}
	return r, nil
}

// tryStandardFormats attempts to parse standard date/time formats.
func (p *Parser) tryStandardFormats(input string, now time.Time) (Result, bool) {
	formats := []struct {
		layout  string
		hasDate bool
		hasTime bool
	}{
		{time.RFC3339, true, true},
		{"2006-01-02T15:04:05", true, true},
		{"2006-01-02 15:04:05", true, true},
		{"2006-01-02 15:04", true, true},
		{"2006-01-02", true, false},
		{"2006/01/02 15:04", true, true},
		{"2006/01/02", true, false},
		{"01/02/2006 15:04", true, true},
		{"01/02/2006", true, false},
		{"15:04:05", false, true},
		{"15:04", false, true},
	}

	for _, f := range formats {
		t, err := time.ParseInLocation(f.layout, input, p.timezone)
		if err != nil {
			continue
		}
		if f.layout == time.RFC3339 {
			t = t.In(p.timezone)
		}
		r := Result{Time: t, HasDate: f.hasDate, HasTime: f.hasTime, Spans: []string{strings.ToLower(input)}}
		if !f.hasDate {
			r.Time = time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), t.Second(), 0, p.timezone)
			if r.Time.Before(now) {
				r.Time = r.Time.AddDate(0, 0, 1)
			}
		}
		return r, true
	}
	return Result{}, false
}

// parseDate finds the first date phrase in s. weekdayOnly reports a bare
// weekday ("friday"), which rolls a week forward once its time has passed.
func (p *Parser) parseDate(s string, now time.Time) (day time.Time, span string, weekdayOnly bool, ok bool) {
	today := startOfDay(now)

	// A bare "last friday" is the previous week's Friday, handled with weekdays below.
	if m := ordinalWeekdayPattern.FindStringSubmatch(s); m != nil && (m[1] != "last" || m[3] != "") {
		n := ordinalNames[m[1]]
		wd := weekdayNames[m[2]]
		switch m[3] {
		case "":
			return NextNthWeekday(today, wd, n), m[0], false, true
		case "month":
			if d, ok := NthWeekdayOfMonth(today.Year(), today.Month(), wd, n, p.timezone); ok {
				return d, m[0], false, true
			}
		case "next month":
			next := time.Date(today.Year(), today.Month()+1, 1, 0, 0, 0, 0, p.timezone)
			if d, ok := NthWeekdayOfMonth(next.Year(), next.Month(), wd, n, p.timezone); ok {
				return d, m[0], false, true
			}
		default:
			month := monthNames[m[3]]
			year := today.Year()
			if month < today.Month() {
				year++
			}
			if d, ok := NthWeekdayOfMonth(year, month, wd, n, p.timezone); ok {
				return d, m[0], false, true
			}
		}
	}

	if m := isoDatePattern.FindStringSubmatch(s); m != nil {
		y, _ := strconv.Atoi(m[1])
		mo, _ := strconv.Atoi(m[2])
		d, _ := strconv.Atoi(m[3])
		if valid(y, mo, d) {
			return time.Date(y, time.Month(mo), d, 0, 0, 0, 0, p.timezone), m[0], false, true
		}
	}

	if m := monthDayPattern.FindStringSubmatch(s); m != nil {
		if d, ok := p.monthDay(today, monthNames[m[1]], m[2], m[3]); ok {
			return d, m[0], false, true
		}
	}

	if m := dayMonthPattern.FindStringSubmatch(s); m != nil {
		if d, ok := p.monthDay(today, monthNames[m[2]], m[1], m[3]); ok {
			return d, m[0], false, true
		}
	}

	if m := slashDatePattern.FindStringSubmatch(s); m != nil {
		mo, _ := strconv.Atoi(m[1])
		if d, ok := p.monthDay(today, time.Month(mo), m[2], m[3]); ok && mo >= 1 && mo <= 12 {
			return d, m[0], false, true
		}
	}

	if m := relativeDayPattern.FindStringSubmatch(s); m != nil {
		offset := map[string]int{
			"day after tomorrow": 2,
			"tomorrow":           1,
			"today":              0,
			"tonight":            0,
			"yesterday":          -1,
		}[m[1]]
		return today.AddDate(0, 0, offset), m[0], false, true
	}

	if m := weekdayPattern.FindStringSubmatch(s); m != nil {
		wd := weekdayNames[m[2]]
		return resolveWeekday(today, wd, m[1]), m[0], m[1] == "", true
	}

	if m := periodPattern.FindStringSubmatch(s); m != nil {
		monday := today.AddDate(0, 0, -daysSinceMonday(today))
		switch m[1] + " " + m[2] {
		case "next week":
			return monday.AddDate(0, 0, 7), m[0], false, true
		case "this week":
			return today, m[0], false, true
		case "this weekend":
			return monday.AddDate(0, 0, 5), m[0], false, true
		case "next weekend":
			return monday.AddDate(0, 0, 12), m[0], false, true
		case "next month":
			return time.Date(today.Year(), today.Month()+1, 1, 0, 0, 0, 0, p.timezone), m[0], false, true
		case "this month":
			return today, m[0], false, true
		}
	}

	return time.Time{}, "", false, false
}

// monthDay builds a date, rolling a year-less date that already passed into next year.
func (p *Parser) monthDay(today time.Time, month time.Month, dayStr, yearStr string) (time.Time, bool) {
	d, err := strconv.Atoi(dayStr)
	if err != nil {
		return time.Time{}, false
	}
	year := today.Year()
	explicitYear := yearStr != ""
	if explicitYear {
		year, _ = strconv.Atoi(yearStr)
		if year < 100 {
			year += 2000
		}
	}
	if !valid(year, int(month), d) {
		return time.Time{}, false
	}
	t := time.Date(year, month, d, 0, 0, 0, 0, p.timezone)
	if !explicitYear && t.Before(today) {
		t = t.AddDate(1, 0, 0)
	}
	return t, true
}

// parseTimeOfDay finds a clock time or day-part in s.
func parseTimeOfDay(s string) (hour, minute int, dayPart string, spans []string, found bool) {
	hour = -1
	explicitMeridiem := false

	if m := clockAMPMPattern.FindStringSubmatch(s); m != nil {
		h, _ := strconv.Atoi(m[1])
		mi, _ := strconv.Atoi(m[2])
		if h >= 1 && h <= 12 && mi < 60 {
			switch {
			case m[3] == "pm" && h < 12:
				h += 12
			case m[3] == "am" && h == 12:
				h = 0
			}
			hour, minute, explicitMeridiem = h, mi, true
			spans = append(spans, m[0])
		}
	}
	if hour == -1 {
		if m := clock24Pattern.FindStringSubmatch(s); m != nil {
			h, _ := strconv.Atoi(m[1])
			mi, _ := strconv.Atoi(m[2])
			if h <= 23 && mi < 60 {
				hour, minute = h, mi
				explicitMeridiem = h == 0 || h > 12
				spans = append(spans, m[0])
			}
		}
	}
	if hour == -1 {
		if m := oclockPattern.FindStringSubmatch(s); m != nil {
			h, _ := strconv.Atoi(m[1])
			if h >= 1 && h <= 12 {
				hour, minute = h, 0
				spans = append(spans, m[0])
			}
		}
	}
	if hour == -1 {
		if m := atHourPattern.FindStringSubmatch(s); m != nil {
			h, _ := strconv.Atoi(m[1])
			if h >= 0 && h <= 23 {
				hour, minute = h, 0
				explicitMeridiem = h == 0 || h > 12
				spans = append(spans, m[0])
			}
		}
	}

	if m := dayPartPattern.FindStringSubmatch(s); m != nil {
		dayPart = m[1]
		spans = append(spans, m[0])
	}

	if hour == -1 {
		if dayPart == "" {
			return 0, 0, "", spans, false
		}
		return DayPartHours[dayPart], 0, dayPart, spans, true
	}

	if !explicitMeridiem && hour <= 12 {
		switch dayPart {
		case "afternoon", "evening", "night", "tonight":
			if hour < 12 {
				hour += 12
			}
		case "morning":
			if hour == 12 {
				hour = 0
			}
		default:
			// Bare 1-6 defaults to PM; 7-11 stays AM.
			if hour >= 1 && hour <= 6 && !dayPartMorningPhrase.MatchString(s) {
				hour += 12
			}
		}
	}
	return hour, minute, dayPart, spans, true
}

func parseRelativeOffset(s string) (time.Duration, string, bool) {
	var n float64
	var unit, span string

	if m := relativeOffsetPattern.FindStringSubmatch(s); m != nil {
		span, unit = m[0], m[2]
		switch {
		case strings.HasPrefix(m[1], "half"):
			n = 0.5
		default:
			if v, err := strconv.Atoi(m[1]); err == nil {
				n = float64(v)
			} else {
				n = float64(numberWords[m[1]])
			}
		}
	} else if m := fromNowPattern.FindStringSubmatch(s); m != nil {
		v, _ := strconv.Atoi(m[1])
		span, unit, n = m[0], m[2], float64(v)
	} else {
		return 0, "", false
	}

	var base time.Duration
	switch {
	case strings.HasPrefix(unit, "min"):
		base = time.Minute
	case strings.HasPrefix(unit, "h"):
		base = time.Hour
	case strings.HasPrefix(unit, "day"):
		base = 24 * time.Hour
	case strings.HasPrefix(unit, "week"):
		base = 7 * 24 * time.Hour
	}
	return time.Duration(n * float64(base)), span, true
}

// resolveWeekday picks the date for "friday", "next friday", "last friday".
// Bare and "this"/"coming" mean the next occurrence on or after today.
// "next" means the occurrence in the following Monday-based week.
func resolveWeekday(today time.Time, wd time.Weekday, modifier string) time.Time {
	monday := today.AddDate(0, 0, -daysSinceMonday(today))
	offsetFromMonday := (int(wd) + 6) % 7
	switch modifier {
	case "next":
		return monday.AddDate(0, 0, 7+offsetFromMonday)
	case "last":
		return monday.AddDate(0, 0, -7+offsetFromMonday)
	default:
		diff := (int(wd) - int(today.Weekday()) + 7) % 7
		return today.AddDate(0, 0, diff)
	}
}

// NthWeekdayOfMonth returns the nth wd of the month (n in 1..4, or -1 for the
// last one). It finds the first matching weekday on or after the 1st and adds
// (n-1) weeks; for -1 it steps back from the month's last day.
func NthWeekdayOfMonth(year int, month time.Month, wd time.Weekday, n int, loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = time.Local
	}
	if n == -1 {
		last := time.Date(year, month+1, 0, 0, 0, 0, 0, loc)
		back := (int(last.Weekday()) - int(wd) + 7) % 7
		return last.AddDate(0, 0, -back), true
	}
	if n < 1 || n > 5 {
		return time.Time{}, false
	}
	first := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	ahead := (int(wd) - int(first.Weekday()) + 7) % 7
	d := first.AddDate(0, 0, ahead+(n-1)*7)
	if d.Month() != month {
		return time.Time{}, false
	}
	return d, true
}

// NextNthWeekday returns the first nth-wd-of-a-month falling on or after ref's date.
func NextNthWeekday(ref time.Time, wd time.Weekday, n int) time.Time {
	day := startOfDay(ref)
	for i := 0; i < 13; i++ {
		m := time.Date(day.Year(), day.Month()+time.Month(i), 1, 0, 0, 0, 0, day.Location())
		if d, ok := NthWeekdayOfMonth(m.Year(), m.Month(), wd, n, day.Location()); ok && !d.Before(day) {
			return d
		}
	}
	return day
}

// StartOfDay returns midnight of t's date in t's location.
func StartOfDay(t time.Time) time.Time {
	return startOfDay(t)
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func daysSinceMonday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

func valid(y, m, d int) bool {
	if m < 1 || m > 12 || d < 1 {
		return false
	}
	return d <= time.Date(y, time.Month(m)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func normalize(s string) string {
	s = strings.ToLower(s)
	s = strings.NewReplacer("a.m.", "am", "p.m.", "pm", "’", "'").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}
