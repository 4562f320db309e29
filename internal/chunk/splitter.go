package chunk

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Splitter breaks text into chunks of at most Size characters, preferring
// the earliest separator that occurs in the text and recursing into pieces
// that are still too large. Consecutive chunks share up to Overlap
// characters. Separators stay attached to the start of the following piece.
type Splitter struct {
	Size       int
	Overlap    int
	Separators []string
}

// NewSplitter validates size and overlap. Zero values select the defaults.
func NewSplitter(size, overlap int) (*Splitter, error) {
	if size == 0 {
		size = DefaultChunkSize
	}
	if overlap == 0 {
		overlap = DefaultChunkOverlap
	}
	if size < 0 || overlap < 0 {
		return nil, fmt.Errorf("chunk size and overlap must be non-negative (size=%d, overlap=%d)", size, overlap)
	}
	if overlap >= size {
		return nil, fmt.Errorf("chunk overlap %d must be smaller than chunk size %d", overlap, size)
	}
	return &Splitter{Size: size, Overlap: overlap, Separators: DefaultSeparators}, nil
}

// Split returns the chunks of text. Blank text yields no chunks.
func (s *Splitter) Split(text string) []Chunk {
	pieces := s.split(text, s.Separators)
	out := make([]Chunk, len(pieces))
	for i, p := range pieces {
		out[i] = Chunk{Index: i, Content: p}
	}
	return out
}

func length(s string) int { return utf8.RuneCountInString(s) }

func (s *Splitter) split(text string, separators []string) []string {
	sep := ""
	var rest []string
	for i, candidate := range separators {
		if candidate == "" {
			break
		}
		if strings.Contains(text, candidate) {
			sep = candidate
			rest = separators[i+1:]
			break
		}
	}

	var (
		final []string
		small []string
	)
	for _, piece := range splitKeep(text, sep) {
		if length(piece) < s.Size {
			small = append(small, piece)
			continue
		}
		if len(small) > 0 {
			final = append(final, s.merge(small)...)
			small = nil
		}
		if len(rest) == 0 {
			final = append(final, piece)
		} else {
			final = append(final, s.split(piece, rest)...)
		}
	}
	if len(small) > 0 {
		final = append(final, s.merge(small)...)
	}
	return final
}

// splitKeep splits on sep, prefixing every piece after the first with sep.
// An empty sep splits into single characters.
func splitKeep(text, sep string) []string {
	var parts []string
	if sep == "" {
		for _, r := range text {
			parts = append(parts, string(r))
		}
		return parts
	}
	raw := strings.Split(text, sep)
	for i, p := range raw {
		if i > 0 {
			p = sep + p
		}
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

// merge packs small pieces into chunks up to Size, carrying up to Overlap
// characters of trailing pieces into the next chunk.
func (s *Splitter) merge(pieces []string) []string {
	var (
		out     []string
		current []string
		total   int
	)
	emit := func() {
		if doc := strings.TrimSpace(strings.Join(current, "")); doc != "" {
			out = append(out, doc)
		}
	}

	for _, p := range pieces {
		n := length(p)
		if total+n > s.Size && len(current) > 0 {
			emit()
			for total > s.Overlap || (total+n > s.Size && total > 0) {
				total -= length(current[0])
				current = current[1:]
			}
		}
		current = append(current, p)
		total += n
	}
	if len(current) > 0 {
		emit()
	}
	return out
}
