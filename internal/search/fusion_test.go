package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hits(source Source, ids ...string) []RawHit {
	out := make([]RawHit, len(ids))
	for i, id := range ids {
		out[i] = RawHit{ID: id, Content: "content of " + id, Source: source, Score: float64(len(ids) - i)}
	}
	return out
}

func fusedIDs(fused []FusedHit) []string {
	ids := make([]string, len(fused))
	for i, f := range fused {
		ids[i] = f.Hit.ID
	}
	return ids
}

func TestRRFFusion_ConcreteScenario(t *testing.T) {
	// Given: dense [A, B], sparse [B, C], weights (0.4, 0.6)
	f := NewRRFFusion()
	dense := hits(SourceDense, "A", "B")
	sparse := hits(SourceSparse, "B", "C")

	// When: fusing
	fused := f.Fuse(dense, sparse, CodeWeights())

	// Then: order is B, C, A with the expected scores
	require.Equal(t, []string{"B", "C", "A"}, fusedIDs(fused))
	assert.InDelta(t, 0.4/62+0.6/61, fused[0].Score, 1e-12)
	assert.InDelta(t, 0.016288, fused[0].Score, 1e-6)
	assert.InDelta(t, 0.009677, fused[1].Score, 1e-6)
	assert.InDelta(t, 0.006557, fused[2].Score, 1e-6)
}

func TestRRFFusion_UnionCompleteness(t *testing.T) {
	dense := hits(SourceDense, "a", "b", "c", "d")
	sparse := hits(SourceSparse, "c", "e", "a", "f")

	fused := NewRRFFusion().Fuse(dense, sparse, DefaultRetrievalWeights())

	assert.ElementsMatch(t, []string{"a", "b", "c", "d", "e", "f"}, fusedIDs(fused))
}

func TestRRFFusion_NotTruncated(t *testing.T) {
	// Given: disjoint lists of k=3 each
	fused := NewRRFFusion().Fuse(
		hits(SourceDense, "a", "b", "c"),
		hits(SourceSparse, "x", "y", "z"),
		DefaultRetrievalWeights())

	// Then: all 2k documents survive
	assert.Len(t, fused, 6)
}

func TestRRFFusion_RankMonotonicity(t *testing.T) {
	f := NewRRFFusion()
	for _, w := range []float64{0.2, 0.5, 1.0} {
		for r := 0; r < 100; r++ {
			assert.Greater(t, f.Contribution(w, r), f.Contribution(w, r+1))
		}
	}
}

func TestRRFFusion_OneSideEmpty(t *testing.T) {
	tests := []struct {
		name   string
		dense  []RawHit
		sparse []RawHit
		weight float64
	}{
		{name: "sparse empty", dense: hits(SourceDense, "a", "b", "c"), weight: 0.7},
		{name: "dense empty", sparse: hits(SourceSparse, "a", "b", "c"), weight: 0.3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewRRFFusion()
			fused := f.Fuse(tt.dense, tt.sparse, RetrievalWeights{Dense: 0.7, Sparse: 0.3})

			// Then: ranking equals the non-empty side, reweighted by RRF
			require.Equal(t, []string{"a", "b", "c"}, fusedIDs(fused))
			for r, fh := range fused {
				assert.InDelta(t, f.Contribution(tt.weight, r), fh.Score, 1e-12)
			}
		})
	}
}

func TestRRFFusion_BothEmpty(t *testing.T) {
	fused := NewRRFFusion().Fuse(nil, nil, DefaultRetrievalWeights())
	assert.NotNil(t, fused)
	assert.Empty(t, fused)
}

func TestRRFFusion_TiesKeepDenseFirst(t *testing.T) {
	// Given: equal weights and disjoint lists, so rank r scores tie across sides
	fused := NewRRFFusion().Fuse(
		hits(SourceDense, "d0", "d1"),
		hits(SourceSparse, "s0", "s1"),
		RetrievalWeights{Dense: 0.5, Sparse: 0.5})

	// Then: at each tie the dense document comes first
	assert.Equal(t, []string{"d0", "s0", "d1", "s1"}, fusedIDs(fused))
}

func TestRRFFusion_RepresentativeIsFirstInserted(t *testing.T) {
	dense := []RawHit{{ID: "x", Content: "dense copy", Source: SourceDense, Score: 0.9}}
	sparse := []RawHit{{ID: "x", Content: "sparse copy", Source: SourceSparse, Score: 12.5}}

	fused := NewRRFFusion().Fuse(dense, sparse, DefaultRetrievalWeights())

	require.Len(t, fused, 1)
	assert.Equal(t, SourceDense, fused[0].Hit.Source)
	assert.Equal(t, "dense copy", fused[0].Hit.Content)
	assert.InDelta(t, 0.6/61+0.4/61, fused[0].Score, 1e-12)
}

func TestRRFFusion_IdentityIgnoresScoreAndMetadata(t *testing.T) {
	dense := []RawHit{{ID: "same", Score: 1, Metadata: map[string]any{"a": 1}}}
	sparse := []RawHit{{ID: "same", Score: 99, Metadata: map[string]any{"b": 2}}}

	fused := NewRRFFusion().Fuse(dense, sparse, DefaultRetrievalWeights())
	assert.Len(t, fused, 1)
}

func TestNewRRFFusionWithK(t *testing.T) {
	assert.Equal(t, 10, NewRRFFusionWithK(10).K)
	assert.Equal(t, DefaultRRFConstant, NewRRFFusionWithK(0).K)
	assert.Equal(t, DefaultRRFConstant, NewRRFFusionWithK(-5).K)
}

func TestNewHit_FallbackID(t *testing.T) {
	long := "ŝ" + "abcdefghijklmnopqrstuvwxyzabcdefghijklmnopqrstuvwxyz"

	h := newHit("", long, nil, 1, SourceDense)
	assert.Equal(t, []rune(long)[:50], []rune(h.ID))
	assert.NotNil(t, h.Metadata)

	assert.Equal(t, "short", newHit("", "short", nil, 1, SourceDense).ID)
	assert.Equal(t, "explicit", newHit("explicit", long, nil, 1, SourceDense).ID)
}
