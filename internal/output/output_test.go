package output

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/coderag/internal/search"
)

func TestWriter_Status_PrintsIconAndMessage(t *testing.T) {
	// Given: a writer with a buffer
	buf := &bytes.Buffer{}
	w := New(buf)

	// When: printing a status message
	w.Status("🔍", "Scanning repository...")

	// Then: output contains icon and message
	output := buf.String()
	assert.Contains(t, output, "🔍")
	assert.Contains(t, output, "Scanning repository...")
}

func TestWriter_Success_PrintsCheckmark(t *testing.T) {
	// Given: a writer with a buffer
	buf := &bytes.Buffer{}
	w := New(buf)

	// When: printing a success message
	w.Success("Index complete!")

	// Then: output contains checkmark and message
	output := buf.String()
	assert.Contains(t, output, "✅")
	assert.Contains(t, output, "Index complete!")
}

func TestWriter_Warning_PrintsWarningIcon(t *testing.T) {
	// Given: a writer with a buffer
	buf := &bytes.Buffer{}
	w := New(buf)

	// When: printing a warning message
	w.Warning("Sparse index unavailable")

	// Then: output contains warning icon and message
	output := buf.String()
	assert.Contains(t, output, "⚠️")
	assert.Contains(t, output, "Sparse index unavailable")
}

func TestWriter_Error_PrintsErrorIcon(t *testing.T) {
	// Given: a writer with a buffer
	buf := &bytes.Buffer{}
	w := New(buf)

	// When: printing an error message
	w.Error("Index locked")

	// Then: output contains error icon and message
	output := buf.String()
	assert.Contains(t, output, "❌")
	assert.Contains(t, output, "Index locked")
}

func TestWriter_Code_PrintsCodeBlock(t *testing.T) {
	// Given: a writer with a buffer
	buf := &bytes.Buffer{}
	w := New(buf)

	// When: printing a code block
	code := `{"key": "value"}`
	w.Code(code)

	// Then: output contains the code
	output := buf.String()
	assert.Contains(t, output, `{"key": "value"}`)
}

func TestWriter_Progress_SilentWhenNotTerminal(t *testing.T) {
	// Given: a writer on a buffer (not a terminal)
	buf := &bytes.Buffer{}
	w := New(buf)

	// When: printing progress
	w.Progress(50, 100, "Indexing files")
	w.Progress(0, 0, "Processing")

	// Then: nothing is drawn, so piped output stays clean
	assert.Empty(t, buf.String())
}

func TestWriter_Progress_DrawsOnColorWriter(t *testing.T) {
	// Given: a writer forced into terminal mode
	buf := &bytes.Buffer{}
	w := &Writer{out: buf, useColor: true, styles: NoColorStyles()}

	// When: printing progress at completion
	w.Progress(100, 100, "Indexing files")

	// Then: the bar, percentage and trailing newline are printed
	output := buf.String()
	assert.Contains(t, output, "100%")
	assert.Contains(t, output, "Indexing files")
	assert.True(t, strings.HasSuffix(output, "\n"))
}

func TestWriter_Statusf_FormatsMessage(t *testing.T) {
	// Given: a writer with a buffer
	buf := &bytes.Buffer{}
	w := New(buf)

	// When: printing a formatted status message
	w.Statusf("📂", "Found %d files in %s", 42, "/path/to/project")

	// Then: output contains formatted message
	output := buf.String()
	assert.Contains(t, output, "📂")
	assert.Contains(t, output, "Found 42 files in /path/to/project")
}

func TestProgressBar_Render(t *testing.T) {
	tests := []struct {
		name     string
		current  int
		total    int
		width    int
		wantFull int // number of filled characters
	}{
		{
			name:     "0 percent",
			current:  0,
			total:    100,
			width:    10,
			wantFull: 0,
		},
		{
			name:     "50 percent",
			current:  50,
			total:    100,
			width:    10,
			wantFull: 5,
		},
		{
			name:     "100 percent",
			current:  100,
			total:    100,
			width:    10,
			wantFull: 10,
		},
		{
			name:     "25 percent",
			current:  25,
			total:    100,
			width:    20,
			wantFull: 5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bar := renderProgressBar(tt.current, tt.total, tt.width)

			// Count filled characters (█)
			filled := strings.Count(bar, "█")
			assert.Equal(t, tt.wantFull, filled)

			// Total width should be correct
			assert.Equal(t, tt.width, len([]rune(bar)))
		})
	}
}

func TestWriter_Newline_PrintsEmptyLine(t *testing.T) {
	// Given: a writer with a buffer
	buf := &bytes.Buffer{}
	w := New(buf)

	// When: printing a newline
	w.Newline()

	// Then: output is just a newline
	assert.Equal(t, "\n", buf.String())
}

func TestNew_BufferIsNotTerminal(t *testing.T) {
	// Given/When: creating a writer on a buffer
	w := New(&bytes.Buffer{})

	// Then: color is disabled
	assert.False(t, w.useColor)
	assert.False(t, IsTTY(&bytes.Buffer{}))
}

func TestWriter_JSON_Indents(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	require.NoError(t, w.JSON(map[string]int{"total_results": 2}))

	assert.Equal(t, "{\n  \"total_results\": 2\n}\n", buf.String())
}

func TestWriter_KeyValue(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	w.KeyValue("documents", 42)

	assert.Contains(t, buf.String(), "documents:")
	assert.Contains(t, buf.String(), "42")
}

func TestWriter_SearchResult(t *testing.T) {
	// Given: a fused result with one file-backed hit and one bare hit
	res := &search.SearchResult{
		Documents: []search.RawHit{
			{ID: "a", Content: "func Sort() {}\n", Metadata: map[string]any{"source": "pkg/sort.go", "chunk": 2}, Source: search.SourceDense},
			{ID: "raw-id", Content: strings.Repeat("line\n", 10), Metadata: map[string]any{}, Source: search.SourceSparse},
		},
		Scores:  []float64{0.016288, 0.009677},
		Method:  search.MethodEnsembleRRF,
		Weights: search.CodeWeights(),
		Elapsed: 3 * time.Millisecond,
	}
	buf := &bytes.Buffer{}
	w := New(buf)

	// When: rendering
	w.SearchResult("sort function", res)

	// Then: order, locations, scores and truncation are visible
	out := buf.String()
	assert.Contains(t, out, `Results for "sort function"`)
	assert.Contains(t, out, "ensemble_rrf")
	assert.Contains(t, out, "dense=0.40 sparse=0.60")
	assert.Contains(t, out, " 1. pkg/sort.go#2  0.016288  [dense]")
	assert.Contains(t, out, " 2. raw-id  0.009677  [sparse]")
	assert.Contains(t, out, "...")
	assert.Less(t, strings.Index(out, "pkg/sort.go"), strings.Index(out, "raw-id"))
}

func TestWriter_SearchResult_Empty(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	w.SearchResult("nothing", &search.SearchResult{Method: search.MethodEnsembleRRF, Weights: search.SemanticWeights()})

	assert.Contains(t, buf.String(), "No matching documents")
}
