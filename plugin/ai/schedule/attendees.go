package schedule

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"github.com/hrygo/calroute/plugin/ai/timeout"
)

// ContactResolver maps a person's name to an email address.
// A missing contact is (_, false, nil), not an error.
type ContactResolver interface {
	Resolve(ctx context.Context, name string) (email string, ok bool, err error)
}

// StaticContactResolver resolves names from a fixed, case-insensitive table.
type StaticContactResolver struct {
	mu       sync.RWMutex
	contacts map[string]string
}

// NewStaticContactResolver creates a resolver from name → email pairs.
func NewStaticContactResolver(contacts map[string]string) *StaticContactResolver {
	r := &StaticContactResolver{contacts: make(map[string]string, len(contacts))}
	for name, email := range contacts {
		r.contacts[strings.ToLower(strings.TrimSpace(name))] = email
	}
	return r
}

// Add registers or replaces a contact.
func (r *StaticContactResolver) Add(name, email string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.contacts[strings.ToLower(strings.TrimSpace(name))] = email
}

// Resolve implements ContactResolver. A full name falls back to its first name.
func (r *StaticContactResolver) Resolve(_ context.Context, name string) (string, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	key := strings.ToLower(strings.TrimSpace(name))
	if email, ok := r.contacts[key]; ok {
		return email, true, nil
	}
	if first, _, found := strings.Cut(key, " "); found {
		if email, ok := r.contacts[first]; ok {
			return email, true, nil
		}
	}
	return "", false, nil
}

var (
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	// A capitalized name list after "with": "with John", "with Sarah Lee and Tom".
	withClausePattern = regexp.MustCompile(`\bwith\s+((?:[A-Z][\w'-]*)(?:\s+[A-Z][\w'-]*)?(?:\s*(?:,|and|&)\s*(?:[A-Z][\w'-]*)(?:\s+[A-Z][\w'-]*)?)*)`)
	nameSplitPattern  = regexp.MustCompile(`\s*(?:,|\band\b|&)\s*`)
)

// Capitalized words that follow "with" but are not people.
var nonNames = map[string]bool{
	"monday": true, "tuesday": true, "wednesday": true, "thursday": true, "friday": true,
	"saturday": true, "sunday": true,
	"january": true, "february": true, "march": true, "april": true, "may": true, "june": true,
	"july": true, "august": true, "september": true, "october": true, "november": true, "december": true,
	"today": true, "tomorrow": true, "tonight": true, "next": true, "this": true,
	"zoom": true, "meet": true, "teams": true, "skype": true, "slack": true, "webex": true, "google": true,
	"the": true, "my": true, "our": true, "a": true, "an": true, "i": true, "everyone": true, "team": true,
}

func isNonName(word string) bool {
	return nonNames[strings.ToLower(strings.Trim(word, ",.'"))]
}

// trimNonNames drops trailing words such as "John Tomorrow" → "John".
func trimNonNames(name string) string {
	words := strings.Fields(name)
	for i, w := range words {
		if isNonName(w) {
			words = words[:i]
			break
		}
	}
	return strings.Join(words, " ")
}

// attendeeMatch is the outcome of attendee extraction.
type attendeeMatch struct {
	emails     []string
	unresolved []string
	spans      []string
}

// extractAttendees finds emails and resolves names listed after "with".
// Resolver errors are logged and the name is reported unresolved.
func extractAttendees(ctx context.Context, query string, resolver ContactResolver, logger *slog.Logger) attendeeMatch {
	var out attendeeMatch
	seen := make(map[string]bool)
	add := func(email string) {
		key := strings.ToLower(email)
		if !seen[key] {
			seen[key] = true
			out.emails = append(out.emails, email)
		}
	}

	for _, email := range emailPattern.FindAllString(query, -1) {
		add(email)
		out.spans = append(out.spans, email)
	}

	withoutEmails := emailPattern.ReplaceAllString(query, " ")
	for _, m := range withClausePattern.FindAllStringSubmatch(withoutEmails, -1) {
		var names []string
		for _, part := range nameSplitPattern.Split(m[1], -1) {
			if name := trimNonNames(part); name != "" {
				names = append(names, name)
			}
		}
		if len(names) == 0 {
			continue
		}
		out.spans = append(out.spans, "with "+strings.Join(names, " "), m[0])

		for _, name := range names {
			email, ok := resolveName(ctx, resolver, name, logger)
			if ok {
				add(email)
				continue
			}
			out.unresolved = append(out.unresolved, name)
		}
	}
	return out
}

func resolveName(ctx context.Context, resolver ContactResolver, name string, logger *slog.Logger) (string, bool) {
	if resolver == nil {
		return "", false
	}
	ctx, cancel := context.WithTimeout(ctx, timeout.ContactResolveTimeout)
	defer cancel()

	email, ok, err := resolver.Resolve(ctx, name)
	if err != nil {
		logger.Warn("contact resolution failed",
			"name", name,
			"error", err,
		)
		return "", false
	}
	return email, ok && email != ""
}
