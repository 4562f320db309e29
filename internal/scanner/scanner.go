package scanner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Aman-CERP/coderag/internal/gitignore"
)

// ignoreCacheSize bounds the number of parsed .gitignore files kept.
const ignoreCacheSize = 1000

// skipDirs are never descended into.
var skipDirs = map[string]bool{
	".git":     true,
	".hg":      true,
	".svn":     true,
	".coderag": true,
	".idea":    true,
	".vscode":  true,
}

// sensitivePatterns are never indexed, whatever the configuration says.
var sensitivePatterns = []string{
	".env",
	".env.*",
	"*.pem",
	"*.key",
	"*.p12",
	"*.pfx",
	"*credentials*",
	"*secrets*",
	".netrc",
	".npmrc",
	".pypirc",
	"id_rsa",
	"id_dsa",
	"id_ecdsa",
	"id_ed25519",
}

// Scanner walks repositories. One Scanner may serve many scans; parsed
// .gitignore files are cached across them.
type Scanner struct {
	ignoreCache *lru.Cache[string, *gitignore.Matcher]
	sensitive   *gitignore.Matcher
	mu          sync.Mutex
}

// New creates a Scanner.
func New() (*Scanner, error) {
	cache, err := lru.New[string, *gitignore.Matcher](ignoreCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create gitignore cache: %w", err)
	}
	return &Scanner{
		ignoreCache: cache,
		sensitive:   gitignore.New(sensitivePatterns...),
	}, nil
}

// scan holds the per-call state.
type scan struct {
	*Scanner
	root       string
	opts       Options
	exclude    *gitignore.Matcher
	extensions map[string]bool
	maxSize    int64
}

// Scan streams the indexable files under opts.RootDir in lexical order.
// The channel is closed when the walk ends or ctx is cancelled.
func (s *Scanner) Scan(ctx context.Context, opts Options) (<-chan Result, error) {
	root := opts.RootDir
	if root == "" {
		root = "."
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to stat root directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root path is not a directory: %s", abs)
	}

	sc := &scan{
		Scanner: s,
		root:    abs,
		opts:    opts,
		exclude: gitignore.New(opts.Exclude...),
		maxSize: opts.MaxFileSize,
	}
	if sc.maxSize <= 0 {
		sc.maxSize = DefaultMaxFileSize
	}
	if len(opts.Extensions) > 0 {
		sc.extensions = make(map[string]bool, len(opts.Extensions))
		for _, ext := range opts.Extensions {
			sc.extensions[strings.ToLower(ext)] = true
		}
	}

	results := make(chan Result, 64)
	go func() {
		defer close(results)
		sc.walk(ctx, results)
	}()
	return results, nil
}

// Collect runs Scan and gathers every file, sorted by path.
func (s *Scanner) Collect(ctx context.Context, opts Options) ([]*FileInfo, error) {
	results, err := s.Scan(ctx, opts)
	if err != nil {
		return nil, err
	}

	var files []*FileInfo
	var firstErr error
	for r := range results {
		if r.Error != nil {
			if firstErr == nil {
				firstErr = r.Error
			}
			continue
		}
		files = append(files, r.File)
	}
	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

func (sc *scan) walk(ctx context.Context, results chan<- Result) {
	err := filepath.WalkDir(sc.root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			// Unreadable entries are skipped.
			return nil
		}

		rel, err := filepath.Rel(sc.root, path)
		if err != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if sc.skipDir(rel, d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if sc.skipFile(rel, d.Name()) {
			return nil
		}

		info, err := d.Info()
		if err != nil || info.Size() > sc.maxSize {
			return nil
		}
		if isBinaryFile(path) {
			return nil
		}

		select {
		case results <- Result{File: describe(rel, path, info.Size(), info.ModTime())}:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		select {
		case results <- Result{Error: err}:
		case <-ctx.Done():
		}
	}
}

func (sc *scan) skipDir(rel, name string) bool {
	if skipDirs[name] {
		return true
	}
	if sc.exclude.Match(rel, true) {
		return true
	}
	return sc.opts.RespectGitignore && sc.isGitignored(rel, true)
}

func (sc *scan) skipFile(rel, name string) bool {
	if sc.sensitive.Match(name, false) {
		return true
	}
	if sc.extensions != nil && !sc.extensions[strings.ToLower(filepath.Ext(name))] {
		return true
	}
	if sc.exclude.Match(rel, false) {
		return true
	}
	if len(sc.opts.Include) > 0 && !gitignore.MatchAny(rel, false, sc.opts.Include) {
		return true
	}
	return sc.opts.RespectGitignore && sc.isGitignored(rel, false)
}

// isGitignored consults the root .gitignore and every nested one between
// the root and rel.
func (sc *scan) isGitignored(rel string, isDir bool) bool {
	if m := sc.ignoreMatcher(sc.root, ""); m.Match(rel, isDir) {
		return true
	}

	dir, base := sc.root, ""
	parts := strings.Split(rel, "/")
	for _, part := range parts[:len(parts)-1] {
		dir = filepath.Join(dir, part)
		if base == "" {
			base = part
		} else {
			base += "/" + part
		}
		if m := sc.ignoreMatcher(dir, base); m.Match(rel, isDir) {
			return true
		}
	}
	return false
}

// ignoreMatcher returns the cached matcher for dir/.gitignore. Directories
// without one get an empty matcher so the file system is asked once.
func (s *Scanner) ignoreMatcher(dir, base string) *gitignore.Matcher {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m, ok := s.ignoreCache.Get(dir); ok {
		return m
	}
	m := gitignore.New()
	path := filepath.Join(dir, ".gitignore")
	if _, err := os.Stat(path); err == nil {
		_ = m.Load(path, base)
	}
	s.ignoreCache.Add(dir, m)
	return m
}

// InvalidateGitignoreCache drops every cached .gitignore matcher.
func (s *Scanner) InvalidateGitignoreCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ignoreCache.Purge()
}

// CachedIgnoreFiles returns the number of cached .gitignore matchers.
func (s *Scanner) CachedIgnoreFiles() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ignoreCache.Len()
}

// isBinaryFile looks for a NUL byte in the first 512 bytes.
func isBinaryFile(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer func() { _ = f.Close() }()

	buf := make([]byte, 512)
	n, err := f.Read(buf)
	if err != nil {
		return false
	}
	return bytes.IndexByte(buf[:n], 0) >= 0
}
