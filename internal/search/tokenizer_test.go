package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "identifiers keep case, words are lowered",
			text: "ParseConfig reads",
			want: []string{"ParseConfig", "reads", "parseconfig"},
		},
		{
			name: "punctuation splits identifiers",
			text: "cfg.load_file(path)",
			want: []string{"cfg", "load_file", "path", "cfg.load_file(path)"},
		},
		{
			name: "duplicates removed",
			text: "a a A",
			want: []string{"a", "A"},
		},
		{
			name: "identifiers cannot start with a digit",
			text: "404 x2",
			want: []string{"x2", "404"},
		},
		{
			name: "empty",
			text: "   ",
			want: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ElementsMatch(t, tt.want, Tokenize(tt.text))
		})
	}
}

func TestTokenize_NoDuplicates(t *testing.T) {
	tokens := Tokenize("def foo(): return foo() + Foo + foo")
	seen := map[string]bool{}
	for _, tok := range tokens {
		assert.False(t, seen[tok], "duplicate token %q", tok)
		seen[tok] = true
	}
}
