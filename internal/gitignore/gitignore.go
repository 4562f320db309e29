package gitignore

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
)

// Pattern is one compiled ignore line.
type Pattern struct {
	raw     string
	re      *regexp.Regexp
	negate  bool
	dirOnly bool
	rooted  bool
	base    string
}

// String returns the line the pattern was compiled from.
func (p Pattern) String() string { return p.raw }

// Compile parses a single ignore line. base scopes the pattern to a
// subdirectory (slash separated, "" for the root). Blank lines and comments
// return ok=false.
func Compile(line, base string) (p Pattern, ok bool) {
	keepSpace := strings.HasSuffix(line, `\ `)
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return Pattern{}, false
	}

	p = Pattern{raw: line, base: strings.Trim(filepath.ToSlash(base), "/")}
	glob := line

	switch {
	case strings.HasPrefix(glob, `\#`), strings.HasPrefix(glob, `\!`):
		glob = glob[1:]
	case strings.HasPrefix(glob, "!"):
		p.negate = true
		glob = glob[1:]
	}
	if keepSpace && strings.HasSuffix(glob, `\`) {
		glob = strings.TrimSuffix(glob, `\`) + " "
	}
	if strings.HasSuffix(glob, "/") {
		p.dirOnly = true
		glob = strings.TrimSuffix(glob, "/")
	}
	if strings.HasPrefix(glob, "/") {
		p.rooted = true
		glob = glob[1:]
	} else if strings.Contains(glob, "/") && !strings.HasPrefix(glob, "*") {
		// "doc/frotz" is relative to the base, not any depth.
		p.rooted = true
	}
	if glob == "" {
		return Pattern{}, false
	}

	p.re = regexp.MustCompile("^" + translate(glob) + "$")
	return p, true
}

// matches reports whether rel (slash separated, relative to the root)
// is selected by the pattern, ignoring negation.
func (p Pattern) matches(rel string, isDir bool) bool {
	if p.base != "" {
		if rel == p.base || !strings.HasPrefix(rel, p.base+"/") {
			return false
		}
		rel = strings.TrimPrefix(rel, p.base+"/")
	}

	parts := strings.Split(rel, "/")
	last := len(parts) - 1

	if p.rooted {
		for i := range parts {
			if !p.re.MatchString(strings.Join(parts[:i+1], "/")) {
				continue
			}
			// Ancestors are directories, the leaf only if isDir says so.
			if i < last || !p.dirOnly || isDir {
				return true
			}
		}
		return false
	}

	for i, part := range parts {
		if p.re.MatchString(part) && (i < last || !p.dirOnly || isDir) {
			return true
		}
	}
	return !p.dirOnly && p.re.MatchString(rel)
}

// translate converts a glob into a regular expression body.
func translate(glob string) string {
	var b strings.Builder
	for i := 0; i < len(glob); i++ {
		c := glob[i]
		switch {
		case strings.HasPrefix(glob[i:], "**/") && (i == 0 || glob[i-1] == '/'):
			b.WriteString("(?:.*/)?")
			i += 2
		case glob[i:] == "/**":
			// A trailing /** also selects the directory itself so walkers
			// can prune it.
			b.WriteString("(?:/.*)?")
			i += 2
		case strings.HasPrefix(glob[i:], "**"):
			b.WriteString(".*")
			i++
		case c == '*':
			b.WriteString("[^/]*")
		case c == '?':
			b.WriteString("[^/]")
		case c == '[':
			end := strings.IndexByte(glob[i+1:], ']')
			if end < 0 {
				b.WriteString(`\[`)
				continue
			}
			class := glob[i+1 : i+1+end]
			if strings.HasPrefix(class, "!") {
				class = "^" + class[1:]
			}
			b.WriteString("[" + class + "]")
			i += end + 1
		case c == '\\' && i+1 < len(glob):
			i++
			b.WriteString(regexp.QuoteMeta(string(glob[i])))
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	return b.String()
}

// Matcher evaluates an ordered list of patterns. The last matching pattern
// wins, so a later "!keep.log" re-includes what "*.log" excluded.
// It is safe for concurrent use.
type Matcher struct {
	mu       sync.RWMutex
	patterns []Pattern
}

// New returns a matcher seeded with root-level patterns.
func New(lines ...string) *Matcher {
	m := &Matcher{}
	for _, line := range lines {
		m.Add(line)
	}
	return m
}

// Add appends a root-level pattern.
func (m *Matcher) Add(line string) {
	m.AddWithBase(line, "")
}

// AddWithBase appends a pattern that only applies below base.
func (m *Matcher) AddWithBase(line, base string) {
	p, ok := Compile(line, base)
	if !ok {
		return
	}
	m.mu.Lock()
	m.patterns = append(m.patterns, p)
	m.mu.Unlock()
}

// Load reads an ignore file and scopes its patterns to base.
func (m *Matcher) Load(path, base string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open ignore file: %w", err)
	}
	defer func() { _ = f.Close() }()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		m.AddWithBase(sc.Text(), base)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("failed to read ignore file: %w", err)
	}
	return nil
}

// Len returns the number of compiled patterns.
func (m *Matcher) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.patterns)
}

// Match reports whether rel should be ignored.
func (m *Matcher) Match(rel string, isDir bool) bool {
	rel = strings.Trim(filepath.ToSlash(rel), "/")

	m.mu.RLock()
	defer m.mu.RUnlock()

	ignored := false
	for _, p := range m.patterns {
		if p.matches(rel, isDir) {
			ignored = !p.negate
		}
	}
	return ignored
}

// MatchAny reports whether rel is selected by any of the globs.
// Negations are ignored.
func MatchAny(rel string, isDir bool, globs []string) bool {
	rel = strings.Trim(filepath.ToSlash(rel), "/")
	for _, g := range globs {
		if p, ok := Compile(g, ""); ok && !p.negate && p.matches(rel, isDir) {
			return true
		}
	}
	return false
}
