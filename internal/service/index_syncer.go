package service

import (
	"context"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/paperbrief/internal/index"
	"github.com/xxxsen/paperbrief/internal/repo"
)

const syncPageSize = 500

// IndexSyncer reconciles the in-memory index with the embeddings table. Sync
// is additive and fills cold-start or crash gaps; Rebuild produces a fresh
// tombstone-free index and swaps it in.
type IndexSyncer struct {
	embRepo   *repo.EmbeddingRepo
	idx       *index.FlatIndex
	modelName string
}

func NewIndexSyncer(embRepo *repo.EmbeddingRepo, idx *index.FlatIndex, modelName string) *IndexSyncer {
	return &IndexSyncer{
		embRepo:   embRepo,
		idx:       idx,
		modelName: modelName,
	}
}

// Sync pages through stored embeddings and adds every vector the index does
// not hold yet. Returns the number of vectors added.
func (s *IndexSyncer) Sync(ctx context.Context) (int, error) {
	added := 0
	var cursor int64
	for {
		items, err := s.embRepo.ListEmbedded(ctx, s.modelName, cursor, syncPageSize)
		if err != nil {
			return added, err
		}
		if len(items) == 0 {
			break
		}
		vectors := make([][]float32, 0, len(items))
		ids := make([]int64, 0, len(items))
		metas := make([]index.Metadata, 0, len(items))
		for _, item := range items {
			cursor = item.EmbeddingID
			if s.idx.Contains(item.SectionID) {
				continue
			}
			vectors = append(vectors, item.Vector)
			ids = append(ids, item.SectionID)
			metas = append(metas, index.Metadata{
				PaperID:        item.PaperID,
				SectionType:    item.SectionType,
				ContentPreview: Preview(item.Content, 100),
			})
		}
		if len(vectors) > 0 {
			n, err := s.idx.Add(ctx, vectors, ids, metas)
			added += n
			if err != nil {
				return added, err
			}
		}
		if len(items) < syncPageSize {
			break
		}
	}
	if added > 0 {
		logutil.GetLogger(ctx).Info("index synced from store", zap.Int("added", added))
	}
	return added, nil
}

// SaveIndex persists the current index file pair.
func (s *IndexSyncer) SaveIndex(ctx context.Context) error {
	return s.idx.Save(ctx)
}

// TombstoneRatio exposes the live index's dead-weight fraction for the
// rebuild trigger.
func (s *IndexSyncer) TombstoneRatio() float64 {
	return s.idx.TombstoneRatio()
}

// Rebuild constructs a fresh index from every stored embedding, excluding
// sections whose rows are gone, then swaps it into place and persists it.
// Searches keep hitting the old state until the swap.
func (s *IndexSyncer) Rebuild(ctx context.Context) (int, error) {
	fresh := index.NewFlatIndex(s.idx.FilePath(), s.idx.Dimension())
	if err := fresh.InitializeEmpty(ctx); err != nil {
		return 0, err
	}
	total := 0
	var cursor int64
	for {
		items, err := s.embRepo.ListEmbedded(ctx, s.modelName, cursor, syncPageSize)
		if err != nil {
			return 0, err
		}
		if len(items) == 0 {
			break
		}
		vectors := make([][]float32, 0, len(items))
		ids := make([]int64, 0, len(items))
		metas := make([]index.Metadata, 0, len(items))
		for _, item := range items {
			cursor = item.EmbeddingID
			vectors = append(vectors, item.Vector)
			ids = append(ids, item.SectionID)
			metas = append(metas, index.Metadata{
				PaperID:        item.PaperID,
				SectionType:    item.SectionType,
				ContentPreview: Preview(item.Content, 100),
			})
		}
		n, err := fresh.Add(ctx, vectors, ids, metas)
		total += n
		if err != nil {
			return total, err
		}
		if len(items) < syncPageSize {
			break
		}
	}
	if err := s.idx.ReplaceWith(fresh); err != nil {
		return total, err
	}
	if err := s.idx.Save(ctx); err != nil {
		return total, err
	}
	logutil.GetLogger(ctx).Info("index rebuilt", zap.Int("vectors", total))
	return total, nil
}
