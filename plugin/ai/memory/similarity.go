package memory

import (
	"strings"
	"unicode"
)

// Tokenize lowercases s and splits it on every rune that is not a letter or
// digit. Single-character tokens are kept so "1:1" still yields a token.
func Tokenize(s string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

// Jaccard returns |A∩B| / |A∪B| over the token sets of a and b.
// Two inputs without tokens score 0.
func Jaccard(a, b string) float64 {
	return JaccardSets(Tokenize(a), Tokenize(b))
}

// JaccardSets is Jaccard over pre-tokenized sets.
func JaccardSets(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}
	intersection := 0
	for tok := range small {
		if _, ok := large[tok]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	return float64(intersection) / float64(union)
}
