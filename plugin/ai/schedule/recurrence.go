package schedule

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/hrygo/calroute/plugin/ai/aitime"
	"github.com/hrygo/calroute/server/scheduler/rrule"
)

const (
	weekdayAlt = `monday|tuesday|wednesday|thursday|friday|saturday|sunday|mon|tue|tues|wed|thu|thur|thurs|fri|sat|sun`
	ordinalAlt = `first|second|third|fourth|fifth|last|1st|2nd|3rd|4th|5th`
	countAlt   = `\d+|two|three|four|five|six|seven|eight|nine|ten|eleven|twelve`
)

var (
	ordinalEveryPattern = regexp.MustCompile(`\b(?:every|each)\s+(` + ordinalAlt + `)\s+(` + weekdayAlt + `)\b(?:\s+(?:of|in)\s+(?:the|each|every)\s+month\b)?`)
	ordinalOfPattern    = regexp.MustCompile(`\b(?:on\s+)?(?:the\s+)?(` + ordinalAlt + `)\s+(` + weekdayAlt + `)\s+(?:of|in)\s+(?:each|every)\s+month\b`)
	monthlyOnPattern    = regexp.MustCompile(`\bmonthly\s+on\s+the\s+(` + ordinalAlt + `)\s+(` + weekdayAlt + `)\b`)

	everyIntervalPattern = regexp.MustCompile(`\bevery\s+(other|second|` + countAlt + `)\s+(days?|weeks?|months?|years?|(?:` + weekdayAlt + `)s?)\b`)
	weekdayListPattern   = regexp.MustCompile(`\b(?:every|each)\s+((?:` + weekdayAlt + `)s?(?:\s*(?:,|and|&|,\s*and)\s*(?:` + weekdayAlt + `)s?)*)\b`)
	pluralWeekdayPattern = regexp.MustCompile(`\bon\s+((?:monday|tuesday|wednesday|thursday|friday|saturday|sunday)s(?:\s*(?:,|and|&|,\s*and)\s*(?:monday|tuesday|wednesday|thursday|friday|saturday|sunday)s)*)\b`)
	weekdayNamePattern   = regexp.MustCompile(`(` + weekdayAlt + `)s?`)

	everyWeekdayPattern = regexp.MustCompile(`\b(?:every\s+(?:weekday|work\s*day|business\s+day)|on\s+weekdays|weekdays)\b`)
	everyWeekendPattern = regexp.MustCompile(`\b(?:every\s+weekend|on\s+weekends|weekends)\b`)
	everyDayPartPattern = regexp.MustCompile(`\bevery\s+(?:morning|afternoon|evening|night)\b`)
	dailyPattern        = regexp.MustCompile(`\b(?:every\s*day|each\s+day|daily|nightly)\b`)
	weeklyPattern       = regexp.MustCompile(`\b(?:every\s+week|each\s+week|weekly)\b`)
	monthlyPattern      = regexp.MustCompile(`\b(?:every\s+month|each\s+month|monthly)\b`)
	yearlyPattern       = regexp.MustCompile(`\b(?:every\s+year|each\s+year|yearly|annually)\b`)

	countForPattern   = regexp.MustCompile(`\bfor\s+(?:the\s+next\s+)?(` + countAlt + `)\s+(days?|weeks?|months?|years?|times|occurrences|sessions)\b`)
	countTimesPattern = regexp.MustCompile(`\b(` + countAlt + `)\s+(times|occurrences)\b`)
	untilPattern      = regexp.MustCompile(`\b(?:until|till|through|thru|ending)\s+(.+?)(?:\s+(?:at|from|for|with|in|on|every)\b|[,.;]|$)`)
)

var countWords = map[string]int{
	"two": 2, "three": 3, "four": 4, "five": 5, "six": 6, "seven": 7, "eight": 8,
	"nine": 9, "ten": 10, "eleven": 11, "twelve": 12, "other": 2, "second": 2,
}

var ordinals = map[string]int{
	"first": 1, "1st": 1, "second": 2, "2nd": 2, "third": 3, "3rd": 3,
	"fourth": 4, "4th": 4, "fifth": 5, "5th": 5, "last": -1,
}

var weekdayOrder = []rrule.Weekday{rrule.Monday, rrule.Tuesday, rrule.Wednesday, rrule.Thursday, rrule.Friday, rrule.Saturday, rrule.Sunday}

// recurrenceMatch is a recurrence phrase and the rule it denotes.
type recurrenceMatch struct {
	rule *rrule.Rule
	// anchor is the date of the first occurrence when the phrase pins one (ordinal weekdays).
	anchor time.Time
	spans  []string
}

// parseRecurrence finds a recurrence phrase in query. now anchors ordinal
// weekdays; parser resolves "until" dates.
func parseRecurrence(query string, now time.Time, parser *aitime.Parser) (*recurrenceMatch, bool) {
	s := strings.ToLower(strings.Join(strings.Fields(query), " "))

	m := matchFrequency(s, now)
	if m == nil {
		return nil, false
	}

	if c := countForPattern.FindStringSubmatch(s); c != nil {
		if n := atoiWord(c[1]); n > 0 {
			m.rule.Count = occurrencesFor(m.rule, n, c[2])
			m.spans = append(m.spans, c[0])
		}
	} else if c := countTimesPattern.FindStringSubmatch(s); c != nil {
		if n := atoiWord(c[1]); n > 0 {
			m.rule.Count = n
			m.spans = append(m.spans, c[0])
		}
	}

	if u := untilPattern.FindStringSubmatchIndex(s); u != nil && parser != nil {
		phrase := s[u[2]:u[3]]
		if r, err := parser.ParseDetailed(phrase); err == nil && r.HasDate {
			day := aitime.StartOfDay(r.Time)
			m.rule.Until = day.Add(24*time.Hour - time.Second)
			m.spans = append(m.spans, s[u[0]:u[3]])
		}
	}
	return m, true
}

func matchFrequency(s string, now time.Time) *recurrenceMatch {
	for _, p := range []*regexp.Regexp{ordinalEveryPattern, ordinalOfPattern, monthlyOnPattern} {
		if m := p.FindStringSubmatch(s); m != nil {
			n := ordinals[m[1]]
			wd, _ := aitime.WeekdayFromName(m[2])
			rule := &rrule.Rule{
				Frequency: rrule.Monthly,
				Interval:  1,
				ByDay:     []rrule.DayRule{{Ordinal: n, Day: rrule.FromTime(wd)}},
			}
			return &recurrenceMatch{rule: rule, anchor: aitime.NextNthWeekday(now, wd, n), spans: []string{m[0]}}
		}
	}

	if m := everyIntervalPattern.FindStringSubmatch(s); m != nil {
		interval := atoiWord(m[1])
		unit := m[2]
		rule := &rrule.Rule{Interval: interval}
		switch {
		case strings.HasPrefix(unit, "day"):
			rule.Frequency = rrule.Daily
		case strings.HasPrefix(unit, "week"):
			rule.Frequency = rrule.Weekly
		case strings.HasPrefix(unit, "month"):
			rule.Frequency = rrule.Monthly
		case strings.HasPrefix(unit, "year"):
			rule.Frequency = rrule.Yearly
		default:
			wd, ok := aitime.WeekdayFromName(strings.TrimSuffix(unit, "s"))
			if !ok {
				wd, _ = aitime.WeekdayFromName(unit)
			}
			rule.Frequency = rrule.Weekly
			rule.ByDay = rrule.Every(rrule.FromTime(wd))
		}
		return &recurrenceMatch{rule: rule, spans: []string{m[0]}}
	}

	if m := everyWeekdayPattern.FindString(s); m != "" {
		return weekly(m, rrule.Monday, rrule.Tuesday, rrule.Wednesday, rrule.Thursday, rrule.Friday)
	}
	if m := everyWeekendPattern.FindString(s); m != "" {
		return weekly(m, rrule.Saturday, rrule.Sunday)
	}

	for _, p := range []*regexp.Regexp{weekdayListPattern, pluralWeekdayPattern} {
		if m := p.FindStringSubmatch(s); m != nil {
			if days := weekdayList(m[1]); len(days) > 0 {
				return weekly(m[0], days...)
			}
		}
	}

	// "every morning" keeps the day-part for the time parser.
	if everyDayPartPattern.MatchString(s) {
		return &recurrenceMatch{rule: &rrule.Rule{Frequency: rrule.Daily, Interval: 1}, spans: []string{"every"}}
	}

	simple := []struct {
		pattern *regexp.Regexp
		freq    rrule.Frequency
	}{
		{dailyPattern, rrule.Daily},
		{weeklyPattern, rrule.Weekly},
		{monthlyPattern, rrule.Monthly},
		{yearlyPattern, rrule.Yearly},
	}
	for _, f := range simple {
		if m := f.pattern.FindString(s); m != "" {
			return &recurrenceMatch{rule: &rrule.Rule{Frequency: f.freq, Interval: 1}, spans: []string{m}}
		}
	}
	return nil
}

func weekly(span string, days ...rrule.Weekday) *recurrenceMatch {
	return &recurrenceMatch{
		rule:  &rrule.Rule{Frequency: rrule.Weekly, Interval: 1, ByDay: rrule.Every(days...)},
		spans: []string{span},
	}
}

// weekdayList parses "monday, wednesday and friday" into codes in week order.
func weekdayList(s string) []rrule.Weekday {
	present := make(map[rrule.Weekday]bool)
	for _, m := range weekdayNamePattern.FindAllStringSubmatch(s, -1) {
		if wd, ok := aitime.WeekdayFromName(m[1]); ok {
			present[rrule.FromTime(wd)] = true
		}
	}
	var days []rrule.Weekday
	for _, d := range weekdayOrder {
		if present[d] {
			days = append(days, d)
		}
	}
	return days
}

// occurrencesFor converts "for N <unit>" into a COUNT for rule.
func occurrencesFor(rule *rrule.Rule, n int, unit string) int {
	if unit == "times" || unit == "occurrences" || unit == "sessions" {
		return n
	}
	perWeek := 1
	if len(rule.ByDay) > 0 {
		perWeek = len(rule.ByDay)
	}

	var count int
	switch rule.Frequency {
	case rrule.Daily:
		switch {
		case strings.HasPrefix(unit, "week"):
			count = n * 7
		case strings.HasPrefix(unit, "month"):
			count = n * 30
		case strings.HasPrefix(unit, "year"):
			count = n * 365
		default:
			count = n
		}
	case rrule.Weekly:
		switch {
		case strings.HasPrefix(unit, "day"):
			count = (n + 6) / 7 * perWeek
		case strings.HasPrefix(unit, "month"):
			count = (n*52 + 11) / 12 * perWeek
		case strings.HasPrefix(unit, "year"):
			count = n * 52 * perWeek
		default:
			count = n * perWeek
		}
	case rrule.Monthly:
		switch {
		case strings.HasPrefix(unit, "year"):
			count = n * 12
		case strings.HasPrefix(unit, "week"):
			count = (n + 3) / 4
		default:
			count = n
		}
	default:
		count = n
	}

	if rule.Interval > 1 {
		count = (count + rule.Interval - 1) / rule.Interval
	}
	return max(count, 1)
}

// alignToRule moves start forward to the first day a plain BYDAY rule allows.
func alignToRule(start time.Time, rule *rrule.Rule) time.Time {
	if rule == nil || len(rule.ByDay) == 0 {
		return start
	}
	allowed := make(map[time.Weekday]bool)
	for _, d := range rule.ByDay {
		if d.Ordinal != 0 {
			return start
		}
		allowed[d.Day.Time()] = true
	}
	for i := 0; i < 7; i++ {
		if allowed[start.Weekday()] {
			return start
		}
		start = start.AddDate(0, 0, 1)
	}
	return start
}

func atoiWord(s string) int {
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return countWords[s]
}
