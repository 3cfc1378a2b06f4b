package service

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/paperbrief/internal/model"
)

func TestSectionWeight(t *testing.T) {
	require.Equal(t, 1.0, SectionWeight("results"))
	require.Equal(t, 1.0, SectionWeight("RESULTS"))
	require.Equal(t, 0.9, SectionWeight("conclusions"))
	require.Equal(t, 0.8, SectionWeight("discussion"))
	require.Equal(t, 0.7, SectionWeight("methods"))
	require.Equal(t, 0.6, SectionWeight("abstract"))
	require.Equal(t, 0.5, SectionWeight("introduction"))
	require.Equal(t, 0.5, SectionWeight("unknown"))
	require.Equal(t, 0.5, SectionWeight("appendix"))
}

func TestRankWeightsBySection(t *testing.T) {
	r := NewRetriever(nil, nil, nil, 0)
	chunks := []model.RankedChunk{
		{Chunk: model.SectionChunk{SectionID: 1, SectionType: "introduction"}, Score: 0.95},
		{Chunk: model.SectionChunk{SectionID: 2, SectionType: "results"}, Score: 0.80},
		{Chunk: model.SectionChunk{SectionID: 3, SectionType: "methods"}, Score: 0.90},
	}
	ranked := r.Rank(chunks)
	// results 0.80*1.0=0.80 beats methods 0.90*0.7=0.63 beats intro 0.95*0.5=0.475
	require.Equal(t, int64(2), ranked[0].Chunk.SectionID)
	require.Equal(t, int64(3), ranked[1].Chunk.SectionID)
	require.Equal(t, int64(1), ranked[2].Chunk.SectionID)
	require.InDelta(t, 0.80, ranked[0].WeightedScore, 1e-9)
	require.InDelta(t, 0.63, ranked[1].WeightedScore, 1e-9)
}

func TestRankStableOnTies(t *testing.T) {
	r := NewRetriever(nil, nil, nil, 0)
	chunks := []model.RankedChunk{
		{Chunk: model.SectionChunk{SectionID: 1, SectionType: "results"}, Score: 0.5},
		{Chunk: model.SectionChunk{SectionID: 2, SectionType: "results"}, Score: 0.5},
	}
	ranked := r.Rank(chunks)
	require.Equal(t, int64(1), ranked[0].Chunk.SectionID)
	require.Equal(t, int64(2), ranked[1].Chunk.SectionID)
}

func TestRankDoesNotMutateInput(t *testing.T) {
	r := NewRetriever(nil, nil, nil, 0)
	chunks := []model.RankedChunk{
		{Chunk: model.SectionChunk{SectionID: 1, SectionType: "introduction"}, Score: 0.9},
		{Chunk: model.SectionChunk{SectionID: 2, SectionType: "results"}, Score: 0.5},
	}
	_ = r.Rank(chunks)
	require.Equal(t, int64(1), chunks[0].Chunk.SectionID)
	require.Equal(t, 0.0, chunks[0].WeightedScore)
}
