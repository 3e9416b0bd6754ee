// Package rrule provides RRULE (Recurrence Rule) parsing and generation.
// Supports the subset of iCalendar RFC 5545 produced by the entity extractor,
// including ordinal BYDAY entries such as 1FR and -1FR.
package rrule

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hrygo/calroute/plugin/ai/aitime"
)

// Frequency represents the recurrence frequency.
type Frequency string

const (
	Secondly Frequency = "SECONDLY"
	Minutely Frequency = "MINUTELY"
	Hourly   Frequency = "HOURLY"
	Daily    Frequency = "DAILY"
	Weekly   Frequency = "WEEKLY"
	Monthly  Frequency = "MONTHLY"
	Yearly   Frequency = "YEARLY"
)

// Weekday represents the day of week for recurrence.
type Weekday string

const (
	Sunday    Weekday = "SU"
	Monday    Weekday = "MO"
	Tuesday   Weekday = "TU"
	Wednesday Weekday = "WE"
	Thursday  Weekday = "TH"
	Friday    Weekday = "FR"
	Saturday  Weekday = "SA"
)

var weekdays = map[Weekday]time.Weekday{
	Sunday:    time.Sunday,
	Monday:    time.Monday,
	Tuesday:   time.Tuesday,
	Wednesday: time.Wednesday,
	Thursday:  time.Thursday,
	Friday:    time.Friday,
	Saturday:  time.Saturday,
}

// FromTime converts a time.Weekday to its RRULE code.
func FromTime(wd time.Weekday) Weekday {
	for code, d := range weekdays {
		if d == wd {
			return code
		}
	}
	return Monday
}

// Time returns the time.Weekday for the code.
func (w Weekday) Time() time.Weekday {
	return weekdays[w]
}

// DayRule is one BYDAY entry. Ordinal 0 means every matching weekday in the
// period; 1..5 and -1 select a single occurrence within the month.
type DayRule struct {
	Ordinal int
	Day     Weekday
}

// Every returns plain BYDAY entries for days.
func Every(days ...Weekday) []DayRule {
	out := make([]DayRule, len(days))
	for i, d := range days {
		out[i] = DayRule{Day: d}
	}
	return out
}

func (d DayRule) String() string {
	if d.Ordinal == 0 {
		return string(d.Day)
	}
	return strconv.Itoa(d.Ordinal) + string(d.Day)
}

// Rule represents a parsed recurrence rule.
type Rule struct {
	Frequency  Frequency // FREQ
	Interval   int       // INTERVAL (default 1)
	Count      int       // COUNT (number of occurrences)
	Until      time.Time // UNTIL (end date)
	ByHour     []int     // BYHOUR
	ByMinute   []int     // BYMINUTE
	ByDay      []DayRule // BYDAY
	ByMonthDay []int     // BYMONTHDAY
	ByMonth    []int     // BYMONTH
	Wkst       Weekday   // WKST (week start)
}

// Parser parses RRULE strings.
type Parser struct{}

// NewParser creates a new RRULE parser.
func NewParser() *Parser {
	return &Parser{}
}

// Parse parses an RRULE string into a Rule struct.
// Example: "FREQ=MONTHLY;BYDAY=-1FR;COUNT=6"
func (p *Parser) Parse(rrule string) (*Rule, error) {
	rule := &Rule{Interval: 1}

	rrule = strings.TrimPrefix(strings.TrimSpace(rrule), "RRULE:")
	if rrule == "" {
		return rule, nil
	}

	for _, part := range strings.Split(rrule, ";") {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			continue
		}
		key := strings.ToUpper(strings.TrimSpace(kv[0]))
		value := strings.ToUpper(strings.TrimSpace(kv[1]))

		var err error
		switch key {
		case "FREQ":
			rule.Frequency = Frequency(value)
		case "INTERVAL":
			rule.Interval, err = strconv.Atoi(value)
		case "COUNT":
			rule.Count, err = strconv.Atoi(value)
		case "UNTIL":
			rule.Until, err = parseUntil(value)
		case "BYDAY":
			rule.ByDay, err = parseByDay(value)
		case "BYMONTHDAY":
			rule.ByMonthDay, err = parseIntList(value)
		case "BYMONTH":
			rule.ByMonth, err = parseIntList(value)
		case "BYHOUR":
			rule.ByHour, err = parseIntList(value)
		case "BYMINUTE":
			rule.ByMinute, err = parseIntList(value)
		case "WKST":
			rule.Wkst = Weekday(value)
		}
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", key, value, err)
		}
	}

	switch rule.Frequency {
	case "":
		return nil, fmt.Errorf("missing required FREQ in RRULE")
	case Secondly, Minutely, Hourly, Daily, Weekly, Monthly, Yearly:
	default:
		return nil, fmt.Errorf("unsupported FREQ %q", rule.Frequency)
	}
	if rule.Interval < 1 {
		rule.Interval = 1
	}
	if rule.Count < 0 {
		return nil, fmt.Errorf("COUNT must not be negative")
	}

	return rule, nil
}

func parseUntil(value string) (time.Time, error) {
	for _, layout := range []string{"20060102T150405Z", "20060102T150405", "20060102"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date")
}

func parseByDay(value string) ([]DayRule, error) {
	parts := strings.Split(value, ",")
	days := make([]DayRule, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if len(part) < 2 {
			continue
		}
		day := Weekday(part[len(part)-2:])
		if _, ok := weekdays[day]; !ok {
			return nil, fmt.Errorf("unknown weekday %q", day)
		}
		rule := DayRule{Day: day}
		if prefix := strings.TrimPrefix(part[:len(part)-2], "+"); prefix != "" {
			n, err := strconv.Atoi(prefix)
			if err != nil || n == 0 || n < -1 || n > 5 {
				return nil, fmt.Errorf("bad ordinal in %q", part)
			}
			rule.Ordinal = n
		}
		days = append(days, rule)
	}
	return days, nil
}

func parseIntList(value string) ([]int, error) {
	parts := strings.Split(value, ",")
	nums := make([]int, 0, len(parts))
	for _, part := range parts {
		num, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		nums = append(nums, num)
	}
	return nums, nil
}

// maxEmptyPeriods stops expansion of rules that can never match (e.g. BYMONTHDAY=31;BYMONTH=2).
const maxEmptyPeriods = 1000

// Generator generates occurrences from a recurrence rule.
// The start time is always the first occurrence; later occurrences keep its
// clock time in the generator's timezone.
type Generator struct {
	rule     *Rule
	start    time.Time
	timezone *time.Location
}

// NewGenerator creates a new occurrence generator.
func NewGenerator(rule *Rule, start time.Time, timezone *time.Location) *Generator {
	if timezone == nil {
		timezone = time.UTC
	}
	return &Generator{
		rule:     rule,
		start:    start.In(timezone),
		timezone: timezone,
	}
}

// All generates all occurrences up to the limit.
// If COUNT is specified in the rule, it generates at most that many.
// If UNTIL is specified, it stops after that date.
func (g *Generator) All(maxOccurrences int) []time.Time {
	limit := maxOccurrences
	if g.rule.Count > 0 && (limit <= 0 || g.rule.Count < limit) {
		limit = g.rule.Count
	}
	if limit <= 0 {
		return nil
	}

	var occurrences []time.Time
	g.each(func(t time.Time) bool {
		occurrences = append(occurrences, t)
		return len(occurrences) < limit
	})
	return occurrences
}

// Between generates occurrences between start and end (inclusive).
func (g *Generator) Between(start, end time.Time) []time.Time {
	var occurrences []time.Time
	emitted := 0
	g.each(func(t time.Time) bool {
		if t.After(end) {
			return false
		}
		emitted++
		if !t.Before(start) {
			occurrences = append(occurrences, t)
		}
		return g.rule.Count == 0 || emitted < g.rule.Count
	})
	return occurrences
}

// each walks occurrences in chronological order until yield returns false,
// UNTIL is passed or the rule stops producing candidates.
func (g *Generator) each(yield func(time.Time) bool) {
	if !g.withinUntil(g.start) || !yield(g.start) {
		return
	}

	if d, ok := g.fixedStep(); ok {
		for t := g.start.Add(d); g.withinUntil(t); t = t.Add(d) {
			if !yield(t) {
				return
			}
		}
		return
	}

	empty := 0
	for period := 0; empty < maxEmptyPeriods; period++ {
		candidates := g.candidates(period)
		produced := false
		for _, t := range candidates {
			if !t.After(g.start) {
				continue
			}
			if !g.withinUntil(t) {
				return
			}
			produced = true
			if !yield(t) {
				return
			}
		}
		if produced {
			empty = 0
		} else {
			empty++
		}
	}
}

func (g *Generator) withinUntil(t time.Time) bool {
	return g.rule.Until.IsZero() || !t.After(g.rule.Until)
}

func (g *Generator) fixedStep() (time.Duration, bool) {
	interval := time.Duration(g.interval())
	switch g.rule.Frequency {
	case Hourly:
		return interval * time.Hour, true
	case Minutely:
		return interval * time.Minute, true
	case Secondly:
		return interval * time.Second, true
	}
	return 0, false
}

func (g *Generator) interval() int {
	if g.rule.Interval < 1 {
		return 1
	}
	return g.rule.Interval
}

// candidates returns the sorted occurrences of the given period (day, week,
// month or year, counted from the start's period).
func (g *Generator) candidates(period int) []time.Time {
	s := g.start
	step := period * g.interval()

	switch g.rule.Frequency {
	case Daily:
		day := g.at(s.Year(), s.Month(), s.Day()+step)
		if g.matchesDay(day) && g.matchesMonth(day) {
			return []time.Time{day}
		}
		return nil

	case Weekly:
		weekStart := g.at(s.Year(), s.Month(), s.Day()-g.daysSinceWeekStart(s)+7*step)
		var out []time.Time
		for i := 0; i < 7; i++ {
			day := g.at(weekStart.Year(), weekStart.Month(), weekStart.Day()+i)
			if len(g.rule.ByDay) == 0 {
				if day.Weekday() == s.Weekday() {
					out = append(out, day)
				}
				continue
			}
			if g.matchesDay(day) && g.matchesMonth(day) {
				out = append(out, day)
			}
		}
		return out

	case Monthly:
		first := time.Date(s.Year(), s.Month()+time.Month(step), 1, 0, 0, 0, 0, g.timezone)
		if !g.matchesMonth(first) {
			return nil
		}
		return g.monthCandidates(first.Year(), first.Month())

	case Yearly:
		year := s.Year() + step
		if len(g.rule.ByMonth) == 0 && len(g.rule.ByDay) == 0 && len(g.rule.ByMonthDay) == 0 {
			if d, ok := g.exactDate(year, s.Month(), s.Day()); ok {
				return []time.Time{d}
			}
			return nil
		}
		var out []time.Time
		for m := time.January; m <= time.December; m++ {
			if len(g.rule.ByMonth) == 0 && m != s.Month() {
				continue
			}
			if !g.matchesMonth(time.Date(year, m, 1, 0, 0, 0, 0, g.timezone)) {
				continue
			}
			out = append(out, g.monthCandidates(year, m)...)
		}
		return out
	}
	return nil
}

func (g *Generator) monthCandidates(year int, month time.Month) []time.Time {
	last := time.Date(year, month+1, 0, 0, 0, 0, 0, g.timezone).Day()
	picked := make(map[int]bool)

	for _, md := range g.rule.ByMonthDay {
		day := md
		if md < 0 {
			day = last + md + 1
		}
		if day >= 1 && day <= last {
			picked[day] = true
		}
	}

	for _, dr := range g.rule.ByDay {
		wd := dr.Day.Time()
		if dr.Ordinal != 0 {
			if d, ok := aitime.NthWeekdayOfMonth(year, month, wd, dr.Ordinal, g.timezone); ok {
				picked[d.Day()] = true
			}
			continue
		}
		for day := 1; day <= last; day++ {
			if time.Date(year, month, day, 0, 0, 0, 0, g.timezone).Weekday() == wd {
				picked[day] = true
			}
		}
	}

	if len(g.rule.ByMonthDay) == 0 && len(g.rule.ByDay) == 0 && g.start.Day() <= last {
		picked[g.start.Day()] = true
	}

	var out []time.Time
	for day := 1; day <= last; day++ {
		if picked[day] {
			out = append(out, g.at(year, month, day))
		}
	}
	return out
}

// at builds a date carrying the start's clock time.
func (g *Generator) at(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, g.start.Hour(), g.start.Minute(), g.start.Second(), 0, g.timezone)
}

func (g *Generator) exactDate(year int, month time.Month, day int) (time.Time, bool) {
	t := g.at(year, month, day)
	return t, t.Month() == month && t.Day() == day
}

func (g *Generator) matchesDay(t time.Time) bool {
	if len(g.rule.ByDay) == 0 {
		return true
	}
	for _, dr := range g.rule.ByDay {
		if dr.Day.Time() == t.Weekday() {
			return true
		}
	}
	return false
}

func (g *Generator) matchesMonth(t time.Time) bool {
	if len(g.rule.ByMonth) == 0 {
		return true
	}
	for _, m := range g.rule.ByMonth {
		if time.Month(m) == t.Month() {
			return true
		}
	}
	return false
}

func (g *Generator) daysSinceWeekStart(t time.Time) int {
	wkst := time.Monday
	if g.rule.Wkst != "" {
		wkst = g.rule.Wkst.Time()
	}
	return (int(t.Weekday()) - int(wkst) + 7) % 7
}

// String returns the RRULE string representation.
func (r *Rule) String() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("FREQ=%s", r.Frequency))

	if r.Interval > 1 {
		parts = append(parts, fmt.Sprintf("INTERVAL=%d", r.Interval))
	}

	if r.Count > 0 {
		parts = append(parts, fmt.Sprintf("COUNT=%d", r.Count))
	}

	if !r.Until.IsZero() {
		parts = append(parts, fmt.Sprintf("UNTIL=%s", r.Until.UTC().Format("20060102T150405Z")))
	}

	if len(r.ByDay) > 0 {
		dayStrs := make([]string, len(r.ByDay))
		for i, day := range r.ByDay {
			dayStrs[i] = day.String()
		}
		parts = append(parts, fmt.Sprintf("BYDAY=%s", strings.Join(dayStrs, ",")))
	}

	if len(r.ByMonthDay) > 0 {
		parts = append(parts, fmt.Sprintf("BYMONTHDAY=%s", intListToString(r.ByMonthDay)))
	}

	if len(r.ByMonth) > 0 {
		parts = append(parts, fmt.Sprintf("BYMONTH=%s", intListToString(r.ByMonth)))
	}

	if r.Wkst != "" {
		parts = append(parts, fmt.Sprintf("WKST=%s", r.Wkst))
	}

	return strings.Join(parts, ";")
}

func intListToString(nums []int) string {
	strs := make([]string, len(nums))
	for i, num := range nums {
		strs[i] = strconv.Itoa(num)
	}
	return strings.Join(strs, ",")
}
