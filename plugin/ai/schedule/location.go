package schedule

import (
	"regexp"
	"strings"
)

var (
	virtualPattern = regexp.MustCompile(`(?i)\b(?:via|on|over|using)\s+(zoom|google meet|meet|teams|microsoft teams|skype|webex|slack huddle|slack|hangouts|phone)\b`)
	roomPattern    = regexp.MustCompile(`(?i)\b((?:conference\s+|meeting\s+)?room\s+[A-Za-z0-9][\w-]*)`)
	placePattern   = regexp.MustCompile(`\b(?:at|in)\s+(?:the\s+)?([A-Z][\w'&-]*(?:\s+(?:[A-Z][\w'&-]*|of|de|on))*)`)
	commonPlace    = regexp.MustCompile(`(?i)\b(?:at|in)\s+(?:the\s+|my\s+)?(office|home|hq|headquarters|cafeteria|lobby|gym|library|cafe|coffee shop|kitchen)\b`)
)

var virtualNames = map[string]string{
	"zoom":            "Zoom",
	"google meet":     "Google Meet",
	"meet":            "Google Meet",
	"teams":           "Microsoft Teams",
	"microsoft teams": "Microsoft Teams",
	"skype":           "Skype",
	"webex":           "Webex",
	"slack":           "Slack",
	"slack huddle":    "Slack",
	"hangouts":        "Google Hangouts",
	"phone":           "Phone",
}

// Capitalized words after "at"/"in" that start a time, not a place.
var timeWords = map[string]bool{
	"monday": true, "tuesday": true, "wednesday": true, "thursday": true, "friday": true,
	"saturday": true, "sunday": true, "mon": true, "tue": true, "wed": true, "thu": true, "fri": true,
	"january": true, "february": true, "march": true, "april": true, "may": true, "june": true,
	"july": true, "august": true, "september": true, "october": true, "november": true, "december": true,
	"jan": true, "feb": true, "mar": true, "apr": true, "jun": true, "jul": true, "aug": true,
	"sep": true, "sept": true, "oct": true, "nov": true, "dec": true,
	"noon": true, "midnight": true, "morning": true, "afternoon": true, "evening": true,
	"today": true, "tomorrow": true, "tonight": true, "next": true, "this": true, "the": true,
	"eod": true, "am": true, "pm": true,
}

// extractLocation returns the place and the phrase it was found in.
// Precedence: virtual venue, room, known lowercase place, then a capitalized place.
func extractLocation(query string) (location, span string) {
	if m := virtualPattern.FindStringSubmatch(query); m != nil {
		return virtualNames[strings.ToLower(m[1])], m[0]
	}
	if m := roomPattern.FindStringSubmatch(query); m != nil {
		return TitleCase(m[1]), m[0]
	}
	if m := commonPlace.FindStringSubmatch(query); m != nil {
		return TitleCase(m[1]), m[0]
	}
	for _, m := range placePattern.FindAllStringSubmatch(query, -1) {
		place := strings.TrimRight(m[1], " ")
		if timeWords[strings.ToLower(firstWord(place))] || isNonName(firstWord(place)) {
			continue
		}
		// A trailing connector belongs to the next phrase.
		for _, suffix := range []string{" of", " de", " on"} {
			place = strings.TrimSuffix(place, suffix)
		}
		return place, m[0]
	}
	return "", ""
}
