package index

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestIndex(t *testing.T) *FlatIndex {
	t.Helper()
	idx := NewFlatIndex(filepath.Join(t.TempDir(), "paper.idx"), 4)
	require.NoError(t, idx.Initialize(context.Background()))
	return idx
}

func TestFlatIndexSearchEmpty(t *testing.T) {
	idx := newTestIndex(t)
	hits, err := idx.Search(context.Background(), []float32{1, 0, 0, 0}, 5)
	require.NoError(t, err)
	require.Empty(t, hits)
}

func TestFlatIndexSelfSimilarity(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)
	vec := []float32{0.3, 1.2, -0.5, 2.0}
	added, err := idx.Add(ctx, [][]float32{vec}, []int64{101}, []Metadata{{PaperID: "p1", SectionType: "results"}})
	require.NoError(t, err)
	require.Equal(t, 1, added)

	hits, err := idx.Search(ctx, vec, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, int64(101), hits[0].ExternalID)
	require.GreaterOrEqual(t, hits[0].Score, 0.999)
	require.Equal(t, "p1", hits[0].Metadata.PaperID)
}

func TestFlatIndexOrderingAndTopK(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)
	_, err := idx.Add(ctx, [][]float32{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
		{0.9, 0.1, 0, 0},
	}, []int64{1, 2, 3}, nil)
	require.NoError(t, err)

	hits, err := idx.Search(ctx, []float32{1, 0, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	require.Equal(t, int64(1), hits[0].ExternalID)
	require.Equal(t, int64(3), hits[1].ExternalID)
	require.Greater(t, hits[0].Score, hits[1].Score)
}

func TestFlatIndexDuplicateAddSkipped(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)
	vec := []float32{1, 0, 0, 0}
	added, err := idx.Add(ctx, [][]float32{vec}, []int64{7}, nil)
	require.NoError(t, err)
	require.Equal(t, 1, added)
	added, err = idx.Add(ctx, [][]float32{vec}, []int64{7}, nil)
	require.NoError(t, err)
	require.Equal(t, 0, added)
	require.Equal(t, 1, idx.Stats().TotalVectors)
}

func TestFlatIndexDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)
	_, err := idx.Add(ctx, [][]float32{{1, 0}}, []int64{1}, nil)
	require.Error(t, err)
	_, err = idx.Search(ctx, []float32{1, 0}, 1)
	require.Error(t, err)
}

func TestFlatIndexTombstoneFiltering(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)
	_, err := idx.Add(ctx, [][]float32{
		{1, 0, 0, 0},
		{0.9, 0.1, 0, 0},
	}, []int64{1, 2}, nil)
	require.NoError(t, err)

	require.Equal(t, 1, idx.Delete(ctx, []int64{1}))
	require.False(t, idx.Contains(1))
	require.True(t, idx.Contains(2))
	require.InDelta(t, 0.5, idx.TombstoneRatio(), 1e-9)

	hits, err := idx.Search(ctx, []float32{1, 0, 0, 0}, 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, int64(2), hits[0].ExternalID)

	// re-adding a tombstoned id revives it without duplicating the vector
	added, err := idx.Add(ctx, [][]float32{{1, 0, 0, 0}}, []int64{1}, nil)
	require.NoError(t, err)
	require.Equal(t, 0, added)
	require.True(t, idx.Contains(1))
	require.Equal(t, 0, idx.Stats().Tombstones)
}

func TestFlatIndexSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "paper.idx")
	idx := NewFlatIndex(path, 4)
	require.NoError(t, idx.Initialize(ctx))
	_, err := idx.Add(ctx, [][]float32{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
	}, []int64{10, 20}, []Metadata{
		{PaperID: "p1", SectionType: "results", ContentPreview: "alpha"},
		{PaperID: "p2", SectionType: "methods", ContentPreview: "beta"},
	})
	require.NoError(t, err)
	idx.Delete(ctx, []int64{20})
	require.NoError(t, idx.Save(ctx))

	reloaded := NewFlatIndex(path, 4)
	require.NoError(t, reloaded.Initialize(ctx))
	st := reloaded.Stats()
	require.Equal(t, 2, st.TotalVectors)
	require.Equal(t, 1, st.Tombstones)

	hits, err := reloaded.Search(ctx, []float32{1, 0, 0, 0}, 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, int64(10), hits[0].ExternalID)
	require.Equal(t, "alpha", hits[0].Metadata.ContentPreview)
}

func TestFlatIndexLoadDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "paper.idx")
	idx := NewFlatIndex(path, 4)
	require.NoError(t, idx.Initialize(ctx))
	_, err := idx.Add(ctx, [][]float32{{1, 0, 0, 0}}, []int64{1}, nil)
	require.NoError(t, err)
	require.NoError(t, idx.Save(ctx))

	other := NewFlatIndex(path, 8)
	require.Error(t, other.Initialize(ctx))
}

func TestFlatIndexReplaceWith(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)
	_, err := idx.Add(ctx, [][]float32{{1, 0, 0, 0}}, []int64{1}, nil)
	require.NoError(t, err)
	idx.Delete(ctx, []int64{1})

	fresh := NewFlatIndex(filepath.Join(t.TempDir(), "fresh.idx"), 4)
	require.NoError(t, fresh.Initialize(ctx))
	_, err = fresh.Add(ctx, [][]float32{{0, 1, 0, 0}}, []int64{2}, nil)
	require.NoError(t, err)

	require.NoError(t, idx.ReplaceWith(fresh))
	require.False(t, idx.Contains(1))
	require.True(t, idx.Contains(2))
	require.Equal(t, 0, idx.Stats().Tombstones)
}
