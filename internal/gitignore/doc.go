// Package gitignore compiles gitignore-style globs and matches repository
// paths against them.
//
// The same matcher serves two callers: .gitignore files discovered while
// walking a repository, and the exclude/include globs from configuration
// (for example "**/node_modules/**" or "*.min.js").
//
// Supported syntax: *, ?, **, character classes, rooted patterns (/build),
// directory-only patterns (build/), negation (!keep.log) and nested ignore
// files scoped to their directory.
//
//	m := gitignore.New("*.log", "!important.log", "/build/")
//	if m.Match("logs/error.log", false) {
//	    // skip
//	}
package gitignore
