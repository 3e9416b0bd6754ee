package schedule

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultDurationMinutes applies when no duration is stated.
	DefaultDurationMinutes = 60
	// ShortDurationMinutes applies to 1:1s, calls and standups.
	ShortDurationMinutes = 30
)

var (
	hourAndHalfPattern = regexp.MustCompile(`\b(an|one|a|\d+)\s+(?:hours?|hrs?)\s+and\s+a\s+half\b`)
	numericDurPattern  = regexp.MustCompile(`\b(\d+(?:\.\d+)?)\s*-?\s*(hours?|hrs?|h|minutes?|mins?|m)\b`)
	wordDurPattern     = regexp.MustCompile(`\b(half an? hour|an hour|one hour|a quarter of an hour|quarter of an hour|two hours|three hours)\b`)
	clockRangePattern  = regexp.MustCompile(`\b(?:from\s+)?(\d{1,2})(?::(\d{2}))?\s*(am|pm)?\s*(?:-|–|to|until|till)\s*(\d{1,2})(?::(\d{2}))?\s*(am|pm)\b`)
	shortEventPattern  = regexp.MustCompile(`(?i)(?:\b1:1\b|\bcall\b|\bstand-?up\b|\bcheck-?in\b|\bhuddle\b|\bscrum\b)`)
)

var wordDurations = map[string]int{
	"half an hour":         30,
	"half a hour":          30,
	"an hour":              60,
	"one hour":             60,
	"a quarter of an hour": 15,
	"quarter of an hour":   15,
	"two hours":            120,
	"three hours":          180,
}

// durationMatch is a duration phrase found in a query.
type durationMatch struct {
	minutes int
	span    string
}

// parseDuration finds an explicit duration. Phrases preceded by "in" are
// relative offsets ("in 2 hours") and are ignored.
func parseDuration(query string) (durationMatch, bool) {
	s := strings.ToLower(query)

	if m := hourAndHalfPattern.FindStringSubmatchIndex(s); m != nil && !precededByIn(s, m[0]) {
		n := 1
		if v, err := strconv.Atoi(s[m[2]:m[3]]); err == nil {
			n = v
		}
		return durationMatch{minutes: n*60 + 30, span: s[m[0]:m[1]]}, true
	}

	for _, m := range numericDurPattern.FindAllStringSubmatchIndex(s, -1) {
		if precededByIn(s, m[0]) || fromNow(s, m[1]) {
			continue
		}
		v, err := strconv.ParseFloat(s[m[2]:m[3]], 64)
		if err != nil || v <= 0 {
			continue
		}
		unit := s[m[4]:m[5]]
		minutes := v
		if strings.HasPrefix(unit, "h") {
			minutes = v * 60
		}
		return durationMatch{minutes: int(minutes + 0.5), span: s[m[0]:m[1]]}, true
	}

	for _, m := range wordDurPattern.FindAllStringSubmatchIndex(s, -1) {
		if precededByIn(s, m[0]) {
			continue
		}
		phrase := s[m[2]:m[3]]
		return durationMatch{minutes: wordDurations[phrase], span: phrase}, true
	}
	return durationMatch{}, false
}

// clockRange is an explicit "2pm to 4pm" or "2-4pm" span.
type clockRange struct {
	startHour, startMinute int
	endHour, endMinute     int
	span                   string
}

// parseClockRange finds a start-end clock span. A missing start meridiem
// borrows the end's unless that would put the start after the end.
func parseClockRange(query string) (clockRange, bool) {
	s := strings.ToLower(query)
	m := clockRangePattern.FindStringSubmatch(s)
	if m == nil {
		return clockRange{}, false
	}
	sh, _ := strconv.Atoi(m[1])
	sm, _ := strconv.Atoi(m[2])
	eh, _ := strconv.Atoi(m[4])
	em, _ := strconv.Atoi(m[5])
	if sh < 1 || sh > 12 || eh < 1 || eh > 12 || sm > 59 || em > 59 {
		return clockRange{}, false
	}

	endHour := to24(eh, m[6])
	startMeridiem := m[3]
	if startMeridiem == "" {
		startMeridiem = m[6]
		if to24(sh, startMeridiem)*60+sm > endHour*60+em {
			startMeridiem = "am"
		}
	}
	return clockRange{
		startHour:   to24(sh, startMeridiem),
		startMinute: sm,
		endHour:     endHour,
		endMinute:   em,
		span:        m[0],
	}, true
}

func (r clockRange) minutes() int {
	return (r.endHour*60 + r.endMinute) - (r.startHour*60 + r.startMinute)
}

func (r clockRange) apply(day time.Time) (time.Time, time.Time) {
	start := time.Date(day.Year(), day.Month(), day.Day(), r.startHour, r.startMinute, 0, 0, day.Location())
	end := time.Date(day.Year(), day.Month(), day.Day(), r.endHour, r.endMinute, 0, 0, day.Location())
	return start, end
}

// DefaultDuration returns the duration implied by the kind of event.
func DefaultDuration(text string) int {
	if shortEventPattern.MatchString(CanonicalizeOneOnOne(text)) {
		return ShortDurationMinutes
	}
	return DefaultDurationMinutes
}

func to24(hour int, meridiem string) int {
	switch {
	case meridiem == "pm" && hour < 12:
		return hour + 12
	case meridiem == "am" && hour == 12:
		return 0
	}
	return hour
}

// fromNow reports "2 hours from now", which is an offset, not a duration.
func fromNow(s string, end int) bool {
	return strings.HasPrefix(strings.TrimSpace(s[end:]), "from now")
}

func precededByIn(s string, idx int) bool {
	return strings.HasSuffix(strings.TrimRight(s[:idx], " "), " in") || strings.TrimRight(s[:idx], " ") == "in"
}
