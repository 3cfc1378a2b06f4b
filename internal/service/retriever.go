package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/paperbrief/internal/index"
	"github.com/xxxsen/paperbrief/internal/model"
	appErr "github.com/xxxsen/paperbrief/internal/pkg/errors"
	"github.com/xxxsen/paperbrief/internal/repo"
)

// Evidence weight per section type. Results outrank conclusions outrank
// discussion; unknown sections get the floor weight.
var sectionWeights = map[string]float64{
	"results":      1.0,
	"conclusions":  0.9,
	"discussion":   0.8,
	"methods":      0.7,
	"abstract":     0.6,
	"introduction": 0.5,
	"unknown":      0.5,
}

const defaultSectionWeight = 0.5

func SectionWeight(sectionType string) float64 {
	if w, ok := sectionWeights[strings.ToLower(sectionType)]; ok {
		return w
	}
	return defaultSectionWeight
}

// Retriever joins index hits back to stored chunks and applies evidence
// ranking. A hit whose chunk row is gone (deleted between index sync and
// query) is skipped, not an error.
type Retriever struct {
	embSvc        *EmbeddingService
	chunkRepo     *repo.ChunkRepo
	idx           *index.FlatIndex
	bruteForceMax int
}

func NewRetriever(embSvc *EmbeddingService, chunkRepo *repo.ChunkRepo, idx *index.FlatIndex, bruteForceMax int) *Retriever {
	return &Retriever{
		embSvc:        embSvc,
		chunkRepo:     chunkRepo,
		idx:           idx,
		bruteForceMax: bruteForceMax,
	}
}

// Retrieve embeds the query, searches the index, and resolves each hit to
// its full chunk. Scores are raw cosine similarities, unweighted.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int) ([]model.RankedChunk, error) {
	vec, err := r.embSvc.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	hits, err := r.idx.Search(ctx, vec, topK)
	if err != nil {
		return nil, err
	}
	out := make([]model.RankedChunk, 0, len(hits))
	for _, hit := range hits {
		chunk, err := r.chunkRepo.GetByID(ctx, hit.ExternalID)
		if err != nil {
			if appErr.IsNotFound(err) {
				logutil.GetLogger(ctx).Warn("index hit has no chunk row, skipping",
					zap.Int64("section_id", hit.ExternalID))
				continue
			}
			return nil, err
		}
		out = append(out, model.RankedChunk{
			Chunk: *chunk,
			Score: hit.Score,
		})
	}
	logutil.GetLogger(ctx).Info("chunks retrieved",
		zap.Int("hits", len(hits)),
		zap.Int("resolved", len(out)),
	)
	return out, nil
}

// RetrieveWithinPaper answers a query against a single paper's sections with
// an exact cosine scan over stored embeddings, bypassing the index. The
// candidate set must stay under the configured brute-force cap.
func (r *Retriever) RetrieveWithinPaper(ctx context.Context, query string, paperID string, topK int) ([]model.RankedChunk, error) {
	vec, err := r.embSvc.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	sectionIDs, err := r.chunkRepo.SectionIDsByPaper(ctx, paperID)
	if err != nil {
		return nil, err
	}
	if len(sectionIDs) == 0 {
		return nil, fmt.Errorf("%w: paper %s", appErr.ErrNotFound, paperID)
	}
	if r.bruteForceMax > 0 && len(sectionIDs) > r.bruteForceMax {
		return nil, fmt.Errorf("%w: paper has %d sections, scan capped at %d", appErr.ErrInvalid, len(sectionIDs), r.bruteForceMax)
	}
	chunks, err := r.embSvc.BruteForceSearch(ctx, vec, sectionIDs, topK)
	if err != nil {
		return nil, err
	}
	logutil.GetLogger(ctx).Info("paper scoped retrieval done",
		zap.String("paper_id", paperID),
		zap.Int("candidates", len(sectionIDs)),
		zap.Int("resolved", len(chunks)),
	)
	return chunks, nil
}

// Rank weights each score by section type and reorders descending. The sort
// is stable: ties keep their similarity order.
func (r *Retriever) Rank(chunks []model.RankedChunk) []model.RankedChunk {
	ranked := make([]model.RankedChunk, len(chunks))
	copy(ranked, chunks)
	for i := range ranked {
		ranked[i].WeightedScore = ranked[i].Score * SectionWeight(ranked[i].Chunk.SectionType)
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].WeightedScore > ranked[j].WeightedScore
	})
	return ranked
}

// SearchText is the lexical counterpart of Retrieve, backed by Postgres
// full-text search.
func (r *Retriever) SearchText(ctx context.Context, query string, limit int) ([]model.TextMatch, error) {
	return r.chunkRepo.SearchText(ctx, query, limit)
}

func (r *Retriever) IndexStats() index.Stats {
	return r.idx.Stats()
}
