package search

import (
	"context"
	"log/slog"
	"math"
	"sort"

	"github.com/Aman-CERP/coderag/internal/store"
)

// BM25 Okapi parameters.
const (
	bm25K1      = 1.5
	bm25B       = 0.75
	bm25Epsilon = 0.25
)

// bm25Index is an immutable BM25 Okapi index. Negative IDF values (terms in
// more than half the corpus) are floored to epsilon times the mean IDF.
type bm25Index struct {
	termFreqs []map[string]int
	docLens   []int
	avgDocLen float64
	idf       map[string]float64
}

func newBM25Index(corpus [][]string) *bm25Index {
	idx := &bm25Index{
		termFreqs: make([]map[string]int, len(corpus)),
		docLens:   make([]int, len(corpus)),
		idf:       make(map[string]float64),
	}

	docFreq := make(map[string]int)
	total := 0
	for i, tokens := range corpus {
		tf := make(map[string]int, len(tokens))
		for _, tok := range tokens {
			tf[tok]++
		}
		for term := range tf {
			docFreq[term]++
		}
		idx.termFreqs[i] = tf
		idx.docLens[i] = len(tokens)
		total += len(tokens)
	}
	if len(corpus) > 0 {
		idx.avgDocLen = float64(total) / float64(len(corpus))
	}

	n := float64(len(corpus))
	idfSum := 0.0
	var negative []string
	for term, freq := range docFreq {
		f := float64(freq)
		v := math.Log(n-f+0.5) - math.Log(f+0.5)
		idx.idf[term] = v
		idfSum += v
		if v < 0 {
			negative = append(negative, term)
		}
	}
	if len(idx.idf) > 0 {
		floor := bm25Epsilon * idfSum / float64(len(idx.idf))
		for _, term := range negative {
			idx.idf[term] = floor
		}
	}
	return idx
}

// scores returns the BM25 score of every document, in corpus order.
func (idx *bm25Index) scores(query []string) []float64 {
	out := make([]float64, len(idx.termFreqs))
	if idx.avgDocLen == 0 {
		return out
	}
	for _, term := range query {
		idf, ok := idx.idf[term]
		if !ok {
			continue
		}
		for i, tf := range idx.termFreqs {
			f := float64(tf[term])
			if f == 0 {
				continue
			}
			norm := bm25K1 * (1 - bm25B + bm25B*float64(idx.docLens[i])/idx.avgDocLen)
			out[i] += idf * (f * (bm25K1 + 1)) / (f + norm)
		}
	}
	return out
}

// SparseRetriever ranks a fixed corpus by BM25 Okapi. The index is built
// once at construction and is read-only afterwards, so Search is safe for
// concurrent use. Reindexing means building a new SparseRetriever.
type SparseRetriever struct {
	docs  []store.Document
	index *bm25Index
}

// NewSparseRetriever tokenizes and indexes docs. It returns ErrEmptyCorpus
// when docs is empty; the sparse path must then be omitted.
func NewSparseRetriever(docs []store.Document) (*SparseRetriever, error) {
	if len(docs) == 0 {
		return nil, ErrEmptyCorpus
	}

	corpus := make([][]string, len(docs))
	for i, d := range docs {
		corpus[i] = Tokenize(d.Content)
	}

	owned := make([]store.Document, len(docs))
	copy(owned, docs)

	r := &SparseRetriever{docs: owned, index: newBM25Index(corpus)}
	slog.Debug("sparse_index_built",
		slog.Int("documents", len(docs)),
		slog.Int("terms", len(r.index.idf)),
		slog.Float64("avg_doc_len", r.index.avgDocLen))
	return r, nil
}

// Len returns the number of indexed documents.
func (s *SparseRetriever) Len() int {
	return len(s.docs)
}

// Search returns up to k documents with a positive BM25 score, best first.
// Equal scores keep corpus order.
func (s *SparseRetriever) Search(ctx context.Context, query string, k int) ([]RawHit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 {
		return []RawHit{}, nil
	}

	scores := s.index.scores(Tokenize(query))

	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})
	if len(order) > k {
		order = order[:k]
	}

	hits := make([]RawHit, 0, len(order))
	for _, idx := range order {
		if scores[idx] <= 0 {
			continue
		}
		doc := s.docs[idx]
		meta := doc.Meta()
		meta["index"] = idx
		hits = append(hits, newHit(doc.ID, doc.Content, meta, scores[idx], SourceSparse))
	}
	return hits, nil
}

var _ Retriever = (*SparseRetriever)(nil)
