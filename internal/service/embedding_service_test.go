package service

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/paperbrief/internal/index"
)

type fakeEmbedder struct {
	dimension int
	calls     int
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	vecs, err := f.EmbedBatch(ctx, []string{text}, taskType)
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	f.calls++
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		vec := make([]float32, f.dimension)
		for i := range vec {
			vec[i] = float32(len(text)%7 + i)
		}
		out = append(out, vec)
	}
	return out, nil
}

func (f *fakeEmbedder) ModelName() string {
	return "fake-embed"
}

func newTestEmbeddingService(t *testing.T, dimension int) *EmbeddingService {
	t.Helper()
	idx := index.NewFlatIndex(filepath.Join(t.TempDir(), "test.idx"), dimension)
	require.NoError(t, idx.Initialize(context.Background()))
	return NewEmbeddingService(&fakeEmbedder{dimension: dimension}, nil, nil, idx)
}

func TestEmbedQueryNormalizes(t *testing.T) {
	s := newTestEmbeddingService(t, 8)
	vec, err := s.EmbedQuery(context.Background(), "plant growth")
	require.NoError(t, err)
	require.Len(t, vec, 8)
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	require.InDelta(t, 1.0, math.Sqrt(norm), 1e-6)
}

func TestEmbedQueryRejectsEmpty(t *testing.T) {
	s := newTestEmbeddingService(t, 8)
	_, err := s.EmbedQuery(context.Background(), "")
	require.Error(t, err)
}

func TestEmbedQueryDimensionMismatch(t *testing.T) {
	idx := index.NewFlatIndex(filepath.Join(t.TempDir(), "test.idx"), 16)
	require.NoError(t, idx.Initialize(context.Background()))
	s := NewEmbeddingService(&fakeEmbedder{dimension: 8}, nil, nil, idx)
	_, err := s.EmbedQuery(context.Background(), "query")
	require.Error(t, err)
}
