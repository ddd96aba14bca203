package engine

import "strings"

// normalizeText lower-cases text and collapses whitespace.
func normalizeText(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// tokenize splits normalized text into words, stripping punctuation from the
// edges of each token.
func tokenize(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,!?;:'\"()[]")
		if f != "" {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// containsWord reports whether normalized text contains word as a whole
// token (not a substring of a longer word).
func containsWord(text, word string) bool {
	for _, token := range tokenize(text) {
		if token == word {
			return true
		}
	}
	return false
}

// containsAny reports whether text contains any of the given substrings.
// Matching is substring-based: "cook" matches "cooking".
func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// tokenSet builds a set of unique tokens from text.
func tokenSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, token := range tokenize(text) {
		set[token] = struct{}{}
	}
	return set
}

// overlapCount returns the number of tokens shared by the two sets.
func overlapCount(a, b map[string]struct{}) int {
	if len(b) < len(a) {
		a, b = b, a
	}
	n := 0
	for token := range a {
		if _, ok := b[token]; ok {
			n++
		}
	}
	return n
}
