package schedule

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/hrygo/calroute/plugin/ai"
	"github.com/hrygo/calroute/plugin/ai/timeout"
)

// MaxTitleLength is the maximum title length in runes.
const MaxTitleLength = 60

// TitleGenerator produces a concise event title from a query.
type TitleGenerator interface {
	GenerateTitle(ctx context.Context, query string) (string, error)
}

var (
	quotedPattern    = regexp.MustCompile(`["“”']([^"“”']{2,})["“”']`)
	oneOnOnePattern  = regexp.MustCompile(`(?i)\b(?:1\s*:\s*1|1\s*-?\s*on\s*-?\s*1|one\s*-?\s*on\s*-?\s*one|1on1)\b|\b1:1\b`)
	eventNounPattern = regexp.MustCompile(`(?i)\b((?:[a-z0-9][\w'&-]*\s+){0,2}?)(meeting|event|call|sync|standup|stand-up|review|interview|check-in|huddle|retro|retrospective|demo|workshop|lunch|dinner|breakfast|coffee|appointment|presentation|session)\b`)
	withNamePattern  = regexp.MustCompile(`\bwith\s+([A-Z][\w'-]*(?:\s+[A-Z][\w'-]*)?)`)

	// Words removed from the start of the cleaned remainder.
	leadingActionPattern = regexp.MustCompile(`(?i)^(?:(?:please|can you|could you|i need to|i want to|i'd like to|let's|lets|help me)\s+)*(?:schedule|create|book|add|set up|setup|put|plan|arrange|organize|organise|make|new|remind me to|remind me about)?\s*(?:(?:a|an|the|my|our|some)\s+)?(?:new\s+)?`)
	trailingNoisePattern = regexp.MustCompile(`(?i)(?:\s+(?:on|at|for|from|to|in|the|and|,))+$`)
	calendarNounPattern  = regexp.MustCompile(`(?i)\b(?:to|on|in)\s+(?:my\s+|the\s+)?calendar\b`)
	multiSpacePattern    = regexp.MustCompile(`\s{2,}`)
)

// Generic nouns that name an event family but make a poor title on their own.
var genericNouns = map[string]bool{"meeting": true, "event": true, "call": true, "session": true, "appointment": true}

// Leading words dropped from an "X meeting" match.
var titleStopwords = map[string]bool{
	"a": true, "an": true, "the": true, "my": true, "our": true, "schedule": true, "book": true,
	"create": true, "add": true, "set": true, "up": true, "new": true, "plan": true,
	"arrange": true, "put": true, "please": true, "some": true, "for": true, "to": true,
}

var smallWords = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "or": true, "but": true, "nor": true,
	"for": true, "on": true, "at": true, "to": true, "from": true, "by": true, "of": true,
	"in": true, "with": true, "via": true, "vs": true, "per": true,
}

// canonicalTitleTokens maps common spellings to their display form.
var canonicalTitleTokens = map[string]string{
	"standup":  "Standup",
	"stand-up": "Standup",
	"1:1":      "1:1",
	"qbr":      "QBR",
	"okr":      "OKR",
	"okrs":     "OKRs",
	"hr":       "HR",
	"ai":       "AI",
	"ui":       "UI",
	"ux":       "UX",
	"api":      "API",
}

// CanonicalizeOneOnOne rewrites "one on one", "1-on-1" and similar spellings to "1:1".
func CanonicalizeOneOnOne(s string) string {
	return oneOnOnePattern.ReplaceAllString(s, "1:1")
}

// TitleCase capitalizes words, lowering small words except at the start.
// Tokens with digits or existing inner capitals are kept as written.
func TitleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		lower := strings.ToLower(w)
		if canon, ok := canonicalTitleTokens[lower]; ok {
			words[i] = canon
			continue
		}
		if i > 0 && smallWords[lower] {
			words[i] = lower
			continue
		}
		if hasDigit(w) || hasInnerUpper(w) {
			continue
		}
		r, size := utf8.DecodeRuneInString(lower)
		words[i] = string(unicode.ToUpper(r)) + lower[size:]
	}
	return strings.Join(words, " ")
}

// LimitTitle trims s to MaxTitleLength runes, cutting at a word boundary when possible.
func LimitTitle(s string) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= MaxTitleLength {
		return s
	}
	runes := []rune(s)[:MaxTitleLength]
	cut := string(runes)
	if i := strings.LastIndex(cut, " "); i > MaxTitleLength/2 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " ,.-")
}

// fallbackTitle runs the pattern chain: quoted text, 1:1, "X meeting" families,
// "with <Name>", then the cleaned remainder. strip lists phrases (dates, times,
// durations, attendees, places) already consumed by other extractors.
func fallbackTitle(query string, strip []string) string {
	if m := quotedPattern.FindStringSubmatch(query); m != nil {
		return LimitTitle(TitleCase(CanonicalizeOneOnOne(m[1])))
	}

	canonical := CanonicalizeOneOnOne(query)
	name := ""
	if m := withNamePattern.FindStringSubmatch(canonical); m != nil && !isNonName(firstWord(m[1])) {
		name = trimNonNames(m[1])
	}

	if strings.Contains(canonical, "1:1") {
		if name != "" {
			return LimitTitle("1:1 with " + TitleCase(name))
		}
		return "1:1"
	}

	if m := eventNounPattern.FindStringSubmatch(canonical); m != nil {
		var kept []string
		for _, w := range strings.Fields(m[1]) {
			lw := strings.ToLower(w)
			if titleStopwords[lw] || isNonName(w) {
				continue
			}
			kept = append(kept, w)
		}
		noun := strings.ToLower(m[2])
		if len(kept) > 0 || !genericNouns[noun] {
			title := strings.Join(append(kept, m[2]), " ")
			if name != "" && len(kept) == 0 {
				title += " with " + name
			}
			return LimitTitle(TitleCase(title))
		}
	}

	if name != "" {
		return LimitTitle("Meeting with " + TitleCase(name))
	}

	return LimitTitle(TitleCase(cleanRemainder(canonical, strip)))
}

// cleanRemainder removes action words and consumed phrases from the query.
func cleanRemainder(query string, strip []string) string {
	s := calendarNounPattern.ReplaceAllString(query, " ")
	lower := strings.ToLower(s)
	for _, phrase := range strip {
		phrase = strings.TrimSpace(strings.ToLower(phrase))
		if phrase == "" {
			continue
		}
		for {
			i := strings.Index(lower, phrase)
			if i < 0 {
				break
			}
			s = s[:i] + " " + s[i+len(phrase):]
			lower = lower[:i] + " " + lower[i+len(phrase):]
		}
	}
	s = multiSpacePattern.ReplaceAllString(strings.TrimSpace(s), " ")
	s = leadingActionPattern.ReplaceAllString(s, "")
	for {
		trimmed := trailingNoisePattern.ReplaceAllString(s, "")
		trimmed = strings.Trim(trimmed, " ,.;:!?-")
		if trimmed == s {
			break
		}
		s = trimmed
	}
	return s
}

// LLMTitleGenerator asks the chat model for a short title.
type LLMTitleGenerator struct {
	llm ai.LLMService
}

// NewLLMTitleGenerator creates a title generator backed by an LLM.
func NewLLMTitleGenerator(llm ai.LLMService) *LLMTitleGenerator {
	return &LLMTitleGenerator{llm: llm}
}

const titleSystemPrompt = `You write calendar event titles.

Rules:
1. Reply with the title only, no quotes and no explanation.
2. At most 60 characters.
3. Remove dates, times, durations, locations and verbs like "schedule" or "book".
4. Keep people's names when the event is with them (e.g. "1:1 with John").
5. Use Title Case.`

// GenerateTitle implements TitleGenerator.
func (g *LLMTitleGenerator) GenerateTitle(ctx context.Context, query string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout.TitleGenerationTimeout)
	defer cancel()

	resp, err := g.llm.Chat(ctx, []ai.Message{
		{Role: "system", Content: titleSystemPrompt},
		{Role: "user", Content: fmt.Sprintf("User Input: %s", query)},
	}, ai.WithMaxTokens(32), ai.WithTemperature(0))
	if err != nil {
		return "", fmt.Errorf("title generation failed: %w", err)
	}
	title := sanitizeGeneratedTitle(resp)
	if title == "" {
		return "", fmt.Errorf("title generation returned no text")
	}
	return title, nil
}

func sanitizeGeneratedTitle(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimPrefix(s, "Title:")
	s = strings.Trim(s, " \"'“”`.")
	return LimitTitle(CanonicalizeOneOnOne(s))
}

func hasDigit(s string) bool {
	return strings.IndexFunc(s, unicode.IsDigit) >= 0
}

func hasInnerUpper(s string) bool {
	for i, r := range s {
		if i > 0 && unicode.IsUpper(r) {
			return true
		}
	}
	return false
}

func firstWord(s string) string {
	if f := strings.Fields(s); len(f) > 0 {
		return f[0]
	}
	return ""
}
