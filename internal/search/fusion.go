package search

import "sort"

// FusedHit is one document after fusion. Hit is the first occurrence seen
// (dense before sparse); Score is the summed weighted RRF contribution.
type FusedHit struct {
	Hit   RawHit
	Score float64
}

// RRFFusion merges ranked hit lists with weighted Reciprocal Rank Fusion.
//
// Algorithm: score(d) = Σ w_R / (K + r + 1), r the 0-indexed rank of d in list R.
type RRFFusion struct {
	K int
}

// NewRRFFusion creates a fusion with K=60.
func NewRRFFusion() *RRFFusion {
	return &RRFFusion{K: DefaultRRFConstant}
}

// NewRRFFusionWithK creates a fusion with a custom K. k <= 0 means 60.
func NewRRFFusionWithK(k int) *RRFFusion {
	if k <= 0 {
		k = DefaultRRFConstant
	}
	return &RRFFusion{K: k}
}

// Contribution is the score a hit at rank (0-indexed) adds for weight w.
func (f *RRFFusion) Contribution(w float64, rank int) float64 {
	return w / float64(f.K+rank+1)
}

// Fuse merges dense and sparse hits. The output holds every distinct ID from
// both lists exactly once, sorted by descending score; equal scores keep
// first-insertion order, dense entries first. The output is not truncated.
func (f *RRFFusion) Fuse(dense, sparse []RawHit, weights RetrievalWeights) []FusedHit {
	fused := make([]FusedHit, 0, len(dense)+len(sparse))
	pos := make(map[string]int, len(dense)+len(sparse))

	add := func(hits []RawHit, w float64) {
		for rank, h := range hits {
			c := f.Contribution(w, rank)
			if i, ok := pos[h.ID]; ok {
				fused[i].Score += c
				continue
			}
			pos[h.ID] = len(fused)
			fused = append(fused, FusedHit{Hit: h, Score: c})
		}
	}
	add(dense, weights.Dense)
	add(sparse, weights.Sparse)

	sort.SliceStable(fused, func(i, j int) bool {
		return fused[i].Score > fused[j].Score
	})
	return fused
}
