package output

import (
	"fmt"
	"strings"
	"time"

	"github.com/Aman-CERP/coderag/internal/search"
)

// snippetLines caps the content preview per hit.
const snippetLines = 6

// SearchResult renders a fused result for humans: one block per document in
// fused order, with its score, path and a short preview.
func (w *Writer) SearchResult(query string, res *search.SearchResult) {
	w.Header(fmt.Sprintf("Results for %q", query))
	w.KeyValue("method", res.Method)
	w.KeyValue("weights", fmt.Sprintf("dense=%.2f sparse=%.2f", res.Weights.Dense, res.Weights.Sparse))
	w.KeyValue("time", res.Elapsed.Round(time.Microsecond))
	w.KeyValue("results", res.TotalResults())
	w.Newline()

	if res.TotalResults() == 0 {
		w.Warning("No matching documents")
		return
	}

	for i, doc := range res.Documents {
		score := w.styles.Score.Render(fmt.Sprintf("%.6f", res.Scores[i]))
		_, _ = fmt.Fprintf(w.out, "%2d. %s  %s  %s\n", i+1, location(doc), score, w.styles.Label.Render("["+string(doc.Source)+"]"))
		w.Code(preview(doc.Content, snippetLines))
		w.Newline()
	}
}

// location is "path:chunk" when the hit carries file metadata, else its ID.
func location(doc search.RawHit) string {
	path, ok := doc.Metadata["source"].(string)
	if !ok || path == "" {
		return doc.ID
	}
	if chunk, ok := doc.Metadata["chunk"]; ok {
		return fmt.Sprintf("%s#%v", path, chunk)
	}
	return path
}

func preview(content string, maxLines int) string {
	lines := strings.Split(strings.TrimRight(content, "\n"), "\n")
	if len(lines) > maxLines {
		lines = append(lines[:maxLines], "...")
	}
	return strings.Join(lines, "\n")
}
