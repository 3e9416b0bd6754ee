package aitime

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Service implements TimeService on top of a Parser.
type Service struct {
	parser *Parser
}

// NewService creates a time service. The parser supplies the default
// timezone and the clock.
func NewService(parser *Parser) *Service {
	return &Service{parser: parser}
}

// Normalize resolves input to an instant. An empty or unknown timezone uses
// the parser's own.
func (s *Service) Normalize(_ context.Context, input string, timezone string) (time.Time, error) {
	parser := s.parser
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err == nil {
			parser = parser.WithTimezone(loc)
		}
	}
	return parser.Parse(input)
}

// ParseNaturalTime resolves input to a range: range keywords first, then a
// single date or time relative to reference.
func (s *Service) ParseNaturalTime(_ context.Context, input string, reference time.Time) (TimeRange, error) {
	tr, err := ParseRange(input, reference)
	if err == nil {
		return tr, nil
	}

	parser := NewParser(reference.Location()).WithNow(func() time.Time { return reference })
	r, err := parser.ParseDetailed(input)
	if err != nil {
		return TimeRange{}, err
	}

	// A bare date covers the whole day; a specific time defaults to one hour.
	if !r.HasTime {
		start := startOfDay(r.Time)
		return TimeRange{Start: start, End: start.AddDate(0, 0, 1)}, nil
	}
	return TimeRange{
		Start: r.Time,
		End:   r.Time.Add(time.Hour),
	}, nil
}

// ParseRange parses range keywords like "today", "this week", "next month".
func ParseRange(input string, ref time.Time) (TimeRange, error) {
	loc := ref.Location()
	key := strings.TrimSuffix(normalize(input), "'s")
	dayStart := time.Date(ref.Year(), ref.Month(), ref.Day(), 0, 0, 0, 0, loc)

	dayRanges := map[string]int{
		"today":              0,
		"tonight":            0,
		"tomorrow":           1,
		"day after tomorrow": 2,
		"yesterday":          -1,
	}
	if offset, ok := dayRanges[key]; ok {
		start := dayStart.AddDate(0, 0, offset)
		return TimeRange{Start: start, End: start.AddDate(0, 0, 1)}, nil
	}

	monday := dayStart.AddDate(0, 0, -daysSinceMonday(dayStart))
	weekRanges := map[string]int{
		"this week": 0,
		"next week": 7,
		"last week": -7,
	}
	if offset, ok := weekRanges[key]; ok {
		start := monday.AddDate(0, 0, offset)
		return TimeRange{Start: start, End: start.AddDate(0, 0, 7)}, nil
	}

	switch key {
	case "this weekend", "weekend", "the weekend":
		start := monday.AddDate(0, 0, 5)
		return TimeRange{Start: start, End: start.AddDate(0, 0, 2)}, nil
	case "next weekend":
		start := monday.AddDate(0, 0, 12)
		return TimeRange{Start: start, End: start.AddDate(0, 0, 2)}, nil
	}

	monthStart := time.Date(ref.Year(), ref.Month(), 1, 0, 0, 0, 0, loc)
	switch key {
	case "this month":
		return TimeRange{Start: monthStart, End: monthStart.AddDate(0, 1, 0)}, nil
	case "next month":
		start := monthStart.AddDate(0, 1, 0)
		return TimeRange{Start: start, End: start.AddDate(0, 1, 0)}, nil
	case "last month":
		start := monthStart.AddDate(0, -1, 0)
		return TimeRange{Start: start, End: monthStart}, nil
	}

	return TimeRange{}, fmt.Errorf("unable to parse time range: %s", input)
}

// FindRangePhrase returns the first range keyword contained in text.
func FindRangePhrase(text string) (string, bool) {
	s := normalize(text)
	for _, phrase := range []string{
		"day after tomorrow", "next weekend", "this weekend", "next week", "this week", "last week",
		"next month", "this month", "last month", "tomorrow", "tonight", "today", "yesterday",
	} {
		if containsWord(s, phrase) {
			return phrase, true
		}
	}
	return "", false
}

func containsWord(s, phrase string) bool {
	idx := strings.Index(s, phrase)
	for idx >= 0 {
		before := idx == 0 || !isWordByte(s[idx-1])
		end := idx + len(phrase)
		after := end == len(s) || !isWordByte(s[end])
		if before && after {
			return true
		}
		next := strings.Index(s[idx+1:], phrase)
		if next < 0 {
			break
		}
		idx += next + 1
	}
	return false
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= '0' && b <= '9'
}

// Ensure Service implements TimeService
var _ TimeService = (*Service)(nil)
