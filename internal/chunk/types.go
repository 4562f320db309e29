// Package chunk splits source files into overlapping text chunks for
// indexing.
package chunk

import (
	"path/filepath"
	"sort"
	"strings"
)

// Chunk size defaults, in characters.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// DefaultSeparators are tried in order: paragraphs, lines, words, characters.
var DefaultSeparators = []string{"\n\n", "\n", " ", ""}

// Chunk is one piece of a file.
type Chunk struct {
	Index   int // position within the file, 0-based
	Content string
}

// languages maps indexed extensions to a display language.
var languages = map[string]string{
	".go":         "Go",
	".py":         "Python",
	".js":         "JavaScript",
	".ts":         "TypeScript",
	".tsx":        "TypeScript",
	".jsx":        "JavaScript",
	".java":       "Java",
	".kt":         "Kotlin",
	".rs":         "Rust",
	".rb":         "Ruby",
	".c":          "C",
	".h":          "C",
	".cpp":        "C++",
	".cs":         "C#",
	".md":         "Markdown",
	".txt":        "Text",
	".yml":        "YAML",
	".yaml":       "YAML",
	".json":       "JSON",
	".xml":        "XML",
	".gradle":     "Gradle",
	".properties": "Properties",
	".sql":        "SQL",
	".sh":         "Shell",
}

// DefaultExtensions returns every extension with a known language, sorted.
func DefaultExtensions() []string {
	out := make([]string, 0, len(languages))
	for ext := range languages {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// Language returns the display language for path, or "" if unknown.
func Language(path string) string {
	return languages[strings.ToLower(filepath.Ext(path))]
}
