// Package search implements hybrid code retrieval: a dense (embedding) and a
// sparse (BM25) retriever queried concurrently, with their ranked lists merged
// by weighted Reciprocal Rank Fusion (RRF).
package search

import "strings"

// QueryType is an optional caller-supplied tag describing a query.
type QueryType string

const (
	QueryTypeCode     QueryType = "code"
	QueryTypeSemantic QueryType = "semantic"
	QueryTypeGeneral  QueryType = "general"
)

// codeIndicators mark a query as code-flavored when found anywhere in the
// lower-cased text. "def " keeps its trailing space so "define" does not match.
var codeIndicators = []string{
	"function",
	"class",
	"method",
	"def ",
	"import",
	"async",
	"await",
	"=>",
}

// SearchQuery is a single retrieval request. It is a value type and is never
// mutated after construction.
type SearchQuery struct {
	Text string

	// Type is carried for logging and metrics only. Weight selection uses
	// IsCodeQuery, not this tag.
	Type QueryType

	UserID         string
	ConversationID string
}

// NewSearchQuery returns a query with the general type tag.
func NewSearchQuery(text string) SearchQuery {
	return SearchQuery{Text: text, Type: QueryTypeGeneral}
}

// IsCodeQuery reports whether the text contains any code indicator.
// The result is recomputed on every call.
func (q SearchQuery) IsCodeQuery() bool {
	lower := strings.ToLower(q.Text)
	for _, ind := range codeIndicators {
		if strings.Contains(lower, ind) {
			return true
		}
	}
	return false
}

// Classify returns QueryTypeCode or QueryTypeSemantic from the text heuristic.
func (q SearchQuery) Classify() QueryType {
	if q.IsCodeQuery() {
		return QueryTypeCode
	}
	return QueryTypeSemantic
}

// typeTag returns the explicit tag, defaulting to general.
func (q SearchQuery) typeTag() QueryType {
	if q.Type == "" {
		return QueryTypeGeneral
	}
	return q.Type
}
