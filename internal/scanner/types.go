// Package scanner discovers indexable files in a repository, honoring the
// extension filter, include/exclude globs, .gitignore rules and the
// sensitive-file denylist.
package scanner

import (
	"time"

	"github.com/Aman-CERP/coderag/internal/chunk"
)

// ContentType classifies a file for result metadata.
type ContentType string

const (
	ContentTypeCode     ContentType = "code"
	ContentTypeMarkdown ContentType = "markdown"
	ContentTypeText     ContentType = "text"
	ContentTypeConfig   ContentType = "config"
)

// FileInfo describes a discovered file.
type FileInfo struct {
	Path        string // slash-separated, relative to the root
	AbsPath     string
	Size        int64
	ModTime     time.Time
	Language    string // display language, "" if unknown
	ContentType ContentType
}

// Options configures a scan.
type Options struct {
	// RootDir is the repository root. Defaults to ".".
	RootDir string

	// Include restricts results to paths matching one of these globs.
	// Empty means everything.
	Include []string

	// Exclude drops matching files and prunes matching directories.
	Exclude []string

	// Extensions restricts results to these extensions (".go").
	// Empty means any extension.
	Extensions []string

	// RespectGitignore applies .gitignore files found in the tree.
	RespectGitignore bool

	// MaxFileSize in bytes. 0 means DefaultMaxFileSize.
	MaxFileSize int64
}

// Result is one item streamed from Scan.
type Result struct {
	File  *FileInfo
	Error error
}

// DefaultMaxFileSize skips files larger than 1MB.
const DefaultMaxFileSize = 1 << 20

// DetectContentType maps a display language to a content type.
func DetectContentType(language string) ContentType {
	switch language {
	case "Markdown":
		return ContentTypeMarkdown
	case "Text", "":
		return ContentTypeText
	case "YAML", "JSON", "XML", "Properties", "Gradle":
		return ContentTypeConfig
	default:
		return ContentTypeCode
	}
}

// describe builds the FileInfo for a path that passed every filter.
func describe(rel, abs string, size int64, mod time.Time) *FileInfo {
	lang := chunk.Language(rel)
	return &FileInfo{
		Path:        rel,
		AbsPath:     abs,
		Size:        size,
		ModTime:     mod,
		Language:    lang,
		ContentType: DetectContentType(lang),
	}
}
