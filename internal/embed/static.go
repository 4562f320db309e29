package embed

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"
	"sync"
	"unicode"
)

var errEmbedderClosed = errors.New("embedder is closed")

// StaticEmbedder is a feature-hashing embedder: identifier sub-words and
// character trigrams are hashed into a fixed number of buckets. It is
// deterministic, needs no model files and trades semantic quality for speed.
type StaticEmbedder struct {
	dims int

	mu     sync.RWMutex
	closed bool
}

const (
	wordWeight    = 0.7
	trigramWeight = 0.3
)

var wordPattern = regexp.MustCompile(`[A-Za-z0-9]+`)

// keywordNoise are language keywords too common to carry meaning.
var keywordNoise = map[string]struct{}{
	"func": {}, "function": {}, "def": {}, "class": {}, "return": {},
	"import": {}, "const": {}, "var": {}, "let": {}, "int": {},
	"string": {}, "bool": {}, "void": {}, "true": {}, "false": {},
	"nil": {}, "null": {}, "this": {}, "self": {}, "new": {},
	"public": {}, "private": {}, "val": {}, "fun": {},
}

// NewStaticEmbedder creates an embedder producing dims-sized vectors.
// dims <= 0 selects DefaultDimensions.
func NewStaticEmbedder(dims int) *StaticEmbedder {
	if dims <= 0 {
		dims = DefaultDimensions
	}
	return &StaticEmbedder{dims: dims}
}

// Embed returns a unit vector for text; blank text maps to the zero vector.
func (e *StaticEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return nil, errEmbedderClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	text = strings.TrimSpace(text)
	vec := make([]float32, e.dims)
	if text == "" {
		return vec, nil
	}

	for _, w := range subwords(text) {
		if _, noise := keywordNoise[w]; noise {
			continue
		}
		vec[e.bucket(w)] += wordWeight
	}
	for _, g := range trigrams(text) {
		vec[e.bucket(g)] += trigramWeight
	}
	return normalizeVector(vec), nil
}

// EmbedBatch embeds each text in order.
func (e *StaticEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("embed text %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

func (e *StaticEmbedder) Dimensions() int { return e.dims }

// ModelName encodes the dimensions so indexes of different sizes never mix.
func (e *StaticEmbedder) ModelName() string {
	return fmt.Sprintf("static-hash-%d", e.dims)
}

func (e *StaticEmbedder) Available(context.Context) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.closed
}

func (e *StaticEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

func (e *StaticEmbedder) bucket(s string) int {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return int(h.Sum64() % uint64(e.dims))
}

// subwords splits text into lower-cased words, breaking snake_case and
// camelCase identifiers apart.
func subwords(text string) []string {
	var out []string
	for _, word := range wordPattern.FindAllString(text, -1) {
		for _, part := range strings.Split(word, "_") {
			for _, w := range splitCamel(part) {
				out = append(out, strings.ToLower(w))
			}
		}
	}
	return out
}

// splitCamel splits "parseHTTPRequest" into "parse", "HTTP", "Request".
func splitCamel(s string) []string {
	if s == "" {
		return nil
	}
	runes := []rune(s)
	var parts []string
	start := 0
	for i := 1; i < len(runes); i++ {
		if !unicode.IsUpper(runes[i]) {
			continue
		}
		prevLower := unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1])
		nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
		if prevLower || (nextLower && unicode.IsUpper(runes[i-1])) {
			parts = append(parts, string(runes[start:i]))
			start = i
		}
	}
	return append(parts, string(runes[start:]))
}

// trigrams returns sliding 3-rune windows over the lower-cased letters and
// digits of text.
func trigrams(text string) []string {
	var b strings.Builder
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	runes := []rune(b.String())
	if len(runes) < 3 {
		return nil
	}
	out := make([]string, 0, len(runes)-2)
	for i := 0; i+3 <= len(runes); i++ {
		out = append(out, string(runes[i:i+3]))
	}
	return out
}

var _ Embedder = (*StaticEmbedder)(nil)
