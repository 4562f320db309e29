package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHNSW(t *testing.T, dims int) *HNSWStore {
	t.Helper()
	s, err := NewHNSWStore(DefaultVectorIndexConfig(dims))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestHNSWStore_SearchReturnsNearestFirst(t *testing.T) {
	// Given: three orthogonal-ish vectors
	s := newTestHNSW(t, 3)
	ctx := context.Background()
	require.NoError(t, s.Add(ctx,
		[]string{"x", "y", "z"},
		[][]float32{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}))

	// When: searching near x
	got, err := s.Search(ctx, []float32{0.9, 0.1, 0}, 2)

	// Then: x ranks first with the highest score
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "x", got[0].ID)
	assert.Greater(t, got[0].Score, got[1].Score)
	assert.InDelta(t, 1.0, got[0].Score, 0.05)
}

func TestHNSWStore_DimensionMismatch(t *testing.T) {
	s := newTestHNSW(t, 3)

	err := s.Add(context.Background(), []string{"a"}, [][]float32{{1, 2}})
	var dm ErrDimensionMismatch
	require.ErrorAs(t, err, &dm)
	assert.Equal(t, 3, dm.Expected)
	assert.Equal(t, 2, dm.Got)

	_, err = s.Search(context.Background(), []float32{1}, 1)
	assert.ErrorAs(t, err, &dm)
}

func TestHNSWStore_ReAddOrphansOldNode(t *testing.T) {
	s := newTestHNSW(t, 2)
	ctx := context.Background()
	require.NoError(t, s.Add(ctx, []string{"a", "b"}, [][]float32{{1, 0}, {0, 1}}))

	// When: re-adding a with a new vector
	require.NoError(t, s.Add(ctx, []string{"a"}, [][]float32{{0, 1}}))

	// Then: a appears once and the old node is an orphan
	assert.Equal(t, 2, s.Count())
	stats := s.Stats()
	assert.Equal(t, 3, stats.GraphNodes)
	assert.Equal(t, 1, stats.Orphans)

	got, err := s.Search(ctx, []float32{0, 1}, 5)
	require.NoError(t, err)
	ids := map[string]int{}
	for _, m := range got {
		ids[m.ID]++
	}
	assert.Equal(t, 1, ids["a"])
}

func TestHNSWStore_EmptyAndReset(t *testing.T) {
	s := newTestHNSW(t, 2)
	ctx := context.Background()

	got, err := s.Search(ctx, []float32{1, 0}, 3)
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, s.Add(ctx, []string{"a"}, [][]float32{{1, 0}}))
	assert.True(t, s.Contains("a"))
	s.Reset()
	assert.Equal(t, 0, s.Count())
	assert.False(t, s.Contains("a"))
}

func TestHNSWStore_SaveLoadRoundTrip(t *testing.T) {
	// Given: a saved index
	path := filepath.Join(t.TempDir(), VectorFileName)
	s := newTestHNSW(t, 3)
	ctx := context.Background()
	require.NoError(t, s.Add(ctx, []string{"x", "y"}, [][]float32{{1, 0, 0}, {0, 1, 0}}))
	require.NoError(t, s.Save(path))

	dims, err := ReadVectorDimensions(path)
	require.NoError(t, err)
	assert.Equal(t, 3, dims)

	// When: loading into a fresh store
	loaded := newTestHNSW(t, 3)
	require.NoError(t, loaded.Load(path))

	// Then: searches behave the same
	assert.Equal(t, 2, loaded.Count())
	got, err := loaded.Search(ctx, []float32{0, 1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "y", got[0].ID)
}

func TestReadVectorDimensions_MissingIndex(t *testing.T) {
	dims, err := ReadVectorDimensions(filepath.Join(t.TempDir(), VectorFileName))
	require.NoError(t, err)
	assert.Equal(t, 0, dims)
}

func TestNewHNSWStore_RejectsZeroDimensions(t *testing.T) {
	_, err := NewHNSWStore(VectorIndexConfig{})
	assert.Error(t, err)
}
