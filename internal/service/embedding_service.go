package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/paperbrief/internal/ai"
	"github.com/xxxsen/paperbrief/internal/index"
	"github.com/xxxsen/paperbrief/internal/model"
	appErr "github.com/xxxsen/paperbrief/internal/pkg/errors"
	"github.com/xxxsen/paperbrief/internal/pkg/timeutil"
	"github.com/xxxsen/paperbrief/internal/repo"
	"github.com/xxxsen/paperbrief/internal/vecmath"
)

// Gemini task types; other providers may ignore them.
const (
	TaskTypeDocument = "RETRIEVAL_DOCUMENT"
	TaskTypeQuery    = "RETRIEVAL_QUERY"
)

const backfillBatchPause = 100 * time.Millisecond

// EmbeddingService owns the text-to-vector path: query embedding for search,
// document embedding plus persistence for ingest and backfill. An unavailable
// provider fails fast; callers never receive a placeholder vector.
type EmbeddingService struct {
	embedder  ai.IEmbedder
	chunkRepo *repo.ChunkRepo
	embRepo   *repo.EmbeddingRepo
	idx       *index.FlatIndex
	dimension int
}

func NewEmbeddingService(embedder ai.IEmbedder, chunkRepo *repo.ChunkRepo, embRepo *repo.EmbeddingRepo, idx *index.FlatIndex) *EmbeddingService {
	return &EmbeddingService{
		embedder:  embedder,
		chunkRepo: chunkRepo,
		embRepo:   embRepo,
		idx:       idx,
		dimension: idx.Dimension(),
	}
}

func (s *EmbeddingService) ModelName() string {
	return s.embedder.ModelName()
}

// EmbedQuery returns the normalized query vector.
func (s *EmbeddingService) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: empty query text", appErr.ErrInvalid)
	}
	vec, err := s.embedder.Embed(ctx, text, TaskTypeQuery)
	if err != nil {
		return nil, err
	}
	if len(vec) != s.dimension {
		return nil, fmt.Errorf("%w: model returned %d, index wants %d", appErr.ErrDimensionMismatch, len(vec), s.dimension)
	}
	return vecmath.NormalizeL2(vec), nil
}

// EmbedSections embeds the given chunks, persists one row per section, and
// adds the vectors to the live index. Used by ingest and by the backfill job.
func (s *EmbeddingService) EmbedSections(ctx context.Context, chunks []model.SectionChunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}
	texts := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		texts = append(texts, chunk.Content)
	}
	vectors, err := s.embedder.EmbedBatch(ctx, texts, TaskTypeDocument)
	if err != nil {
		return 0, err
	}
	if len(vectors) != len(chunks) {
		return 0, fmt.Errorf("embedding count mismatch: want %d, got %d", len(chunks), len(vectors))
	}
	now := timeutil.NowMillis()
	saved := 0
	indexVecs := make([][]float32, 0, len(chunks))
	indexIDs := make([]int64, 0, len(chunks))
	indexMeta := make([]index.Metadata, 0, len(chunks))
	for i, chunk := range chunks {
		vec := vectors[i]
		if len(vec) != s.dimension {
			return saved, fmt.Errorf("%w: model returned %d, index wants %d", appErr.ErrDimensionMismatch, len(vec), s.dimension)
		}
		if err := s.embRepo.Save(ctx, &model.SectionEmbedding{
			SectionID: chunk.SectionID,
			ModelName: s.embedder.ModelName(),
			Vector:    vec,
			Ctime:     now,
		}); err != nil {
			return saved, fmt.Errorf("save embedding for section %d: %w", chunk.SectionID, err)
		}
		saved++
		indexVecs = append(indexVecs, vec)
		indexIDs = append(indexIDs, chunk.SectionID)
		indexMeta = append(indexMeta, index.Metadata{
			PaperID:        chunk.PaperID,
			SectionType:    chunk.SectionType,
			ContentPreview: Preview(chunk.Content, 100),
		})
	}
	if _, err := s.idx.Add(ctx, indexVecs, indexIDs, indexMeta); err != nil {
		return saved, fmt.Errorf("add vectors to index: %w", err)
	}
	return saved, nil
}

// Backfill embeds sections that have no vector for the current model yet,
// one batch at a time with a short pause between batches. Safe to re-run;
// already embedded sections are excluded by the query itself.
func (s *EmbeddingService) Backfill(ctx context.Context, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 32
	}
	total := 0
	for {
		chunks, err := s.embRepo.ListPendingSections(ctx, s.embedder.ModelName(), batchSize)
		if err != nil {
			return total, err
		}
		if len(chunks) == 0 {
			return total, nil
		}
		saved, err := s.EmbedSections(ctx, chunks)
		total += saved
		if err != nil {
			return total, err
		}
		logutil.GetLogger(ctx).Info("backfill batch done",
			zap.Int("batch", saved),
			zap.Int("total", total),
		)
		if len(chunks) < batchSize {
			return total, nil
		}
		select {
		case <-ctx.Done():
			return total, ctx.Err()
		case <-time.After(backfillBatchPause):
		}
	}
}

func (s *EmbeddingService) CountPending(ctx context.Context) (int64, error) {
	return s.embRepo.CountPending(ctx, s.embedder.ModelName())
}

// BruteForceSearch scans stored embeddings for the given sections with exact
// cosine similarity, bypassing the index. Meant for small candidate sets,
// for example all sections of one paper.
func (s *EmbeddingService) BruteForceSearch(ctx context.Context, query []float32, sectionIDs []int64, k int) ([]model.RankedChunk, error) {
	if len(query) != s.dimension {
		return nil, fmt.Errorf("%w: got %d, want %d", appErr.ErrDimensionMismatch, len(query), s.dimension)
	}
	items, err := s.embRepo.ListBySectionIDs(ctx, s.embedder.ModelName(), sectionIDs)
	if err != nil {
		return nil, err
	}
	ranked := make([]model.RankedChunk, 0, len(items))
	for _, item := range items {
		score := vecmath.Cosine(query, item.Vector)
		ranked = append(ranked, model.RankedChunk{
			Chunk: model.SectionChunk{
				SectionID:   item.SectionID,
				PaperID:     item.PaperID,
				SectionType: item.SectionType,
				Content:     item.Content,
			},
			Score:         score,
			WeightedScore: score,
		})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	if k > 0 && len(ranked) > k {
		ranked = ranked[:k]
	}
	return ranked, nil
}

func (s *EmbeddingService) Stats(ctx context.Context) (*model.EmbeddingStats, error) {
	return s.embRepo.Stats(ctx, s.embedder.ModelName())
}

// Preview truncates s to max runes with a trailing ellipsis mark.
func Preview(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
