package search

import (
	"regexp"
	"strings"
)

// identifierPattern matches identifier-like substrings so names such as
// parse_config or HTTPServer survive punctuation as single tokens.
var identifierPattern = regexp.MustCompile(`\b[A-Za-z_][A-Za-z0-9_]*\b`)

// Tokenize returns the de-duplicated union of identifier tokens (case kept)
// and lower-cased whitespace-separated words.
//
// The result is a bag of words: position carries no meaning and repeated
// terms collapse, so every term frequency seen by BM25 is 0 or 1. Slice order
// follows first appearance only to keep output deterministic.
func Tokenize(text string) []string {
	idents := identifierPattern.FindAllString(text, -1)
	words := strings.Fields(strings.ToLower(text))

	seen := make(map[string]struct{}, len(idents)+len(words))
	tokens := make([]string, 0, len(idents)+len(words))
	for _, group := range [][]string{idents, words} {
		for _, tok := range group {
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			tokens = append(tokens, tok)
		}
	}
	return tokens
}
