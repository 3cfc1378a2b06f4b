package service

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/paperbrief/internal/index"
	"github.com/xxxsen/paperbrief/internal/model"
	appErr "github.com/xxxsen/paperbrief/internal/pkg/errors"
	"github.com/xxxsen/paperbrief/internal/pkg/timeutil"
	"github.com/xxxsen/paperbrief/internal/repo"
)

var knownSectionTypes = map[string]struct{}{
	"abstract":     {},
	"introduction": {},
	"methods":      {},
	"results":      {},
	"discussion":   {},
	"conclusions":  {},
	"unknown":      {},
}

const bulkIngestWorkers = 4

// StoreResult reports which sections of one request made it in. Storage is
// partial-success: a bad section fails alone, earlier inserts stay.
type StoreResult struct {
	PaperID    string  `json:"paper_id"`
	SectionIDs []int64 `json:"section_ids"`
	Failed     int     `json:"failed"`
}

// IngestService writes sections, keeps tokens attached, and retires papers.
// Embedding of stored sections happens out of band via backfill unless the
// caller asks for it inline.
type IngestService struct {
	chunkRepo *repo.ChunkRepo
	embSvc    *EmbeddingService
	idx       *index.FlatIndex
}

func NewIngestService(chunkRepo *repo.ChunkRepo, embSvc *EmbeddingService, idx *index.FlatIndex) *IngestService {
	return &IngestService{
		chunkRepo: chunkRepo,
		embSvc:    embSvc,
		idx:       idx,
	}
}

func normalizeSectionType(sectionType string) string {
	st := strings.ToLower(strings.TrimSpace(sectionType))
	if _, ok := knownSectionTypes[st]; !ok {
		return "unknown"
	}
	return st
}

func validateSection(in *model.SectionInput) error {
	if strings.TrimSpace(in.Content) == "" {
		return fmt.Errorf("%w: empty section content", appErr.ErrInvalid)
	}
	if in.ByteEnd < in.ByteStart || in.TokenEnd < in.TokenStart {
		return fmt.Errorf("%w: section offsets out of order", appErr.ErrInvalid)
	}
	return nil
}

// Store inserts the sections of one paper, returning the ids of every
// section that made it. Invalid sections are counted, logged, and skipped.
func (s *IngestService) Store(ctx context.Context, paperID string, sections []model.SectionInput) (*StoreResult, error) {
	if strings.TrimSpace(paperID) == "" {
		return nil, fmt.Errorf("%w: paper_id is required", appErr.ErrInvalid)
	}
	if len(sections) == 0 {
		return nil, fmt.Errorf("%w: no sections", appErr.ErrInvalid)
	}
	result := &StoreResult{PaperID: paperID, SectionIDs: make([]int64, 0, len(sections))}
	now := timeutil.NowMillis()
	for i := range sections {
		in := &sections[i]
		if err := validateSection(in); err != nil {
			logutil.GetLogger(ctx).Warn("section rejected",
				zap.String("paper_id", paperID),
				zap.Int("position", i),
				zap.Error(err),
			)
			result.Failed++
			continue
		}
		chunk := &model.SectionChunk{
			PaperID:     paperID,
			SectionType: normalizeSectionType(in.SectionType),
			Content:     in.Content,
			ByteStart:   in.ByteStart,
			ByteEnd:     in.ByteEnd,
			TokenStart:  in.TokenStart,
			TokenEnd:    in.TokenEnd,
			Ctime:       now,
		}
		sectionID, err := s.chunkRepo.Create(ctx, chunk)
		if err != nil {
			logutil.GetLogger(ctx).Error("section insert failed",
				zap.String("paper_id", paperID),
				zap.Int("position", i),
				zap.Error(err),
			)
			result.Failed++
			continue
		}
		if len(in.Tokens) > 0 {
			if err := s.chunkRepo.AttachTokens(ctx, sectionID, in.Tokens); err != nil {
				logutil.GetLogger(ctx).Error("attach tokens failed",
					zap.Int64("section_id", sectionID), zap.Error(err))
			}
		}
		result.SectionIDs = append(result.SectionIDs, sectionID)
	}
	logutil.GetLogger(ctx).Info("paper stored",
		zap.String("paper_id", paperID),
		zap.Int("stored", len(result.SectionIDs)),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

type PaperInput struct {
	PaperID  string               `json:"paper_id"`
	Sections []model.SectionInput `json:"sections"`
}

// StoreBulk ingests many papers through a worker pool. Per-paper failures
// surface in each paper's StoreResult; a nil result slot marks a paper whose
// request was rejected outright.
func (s *IngestService) StoreBulk(ctx context.Context, papers []PaperInput) ([]*StoreResult, error) {
	pool, err := ants.NewPool(bulkIngestWorkers)
	if err != nil {
		return nil, err
	}
	defer pool.Release()

	results := make([]*StoreResult, len(papers))
	var wg sync.WaitGroup
	for i := range papers {
		i := i
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			res, err := s.Store(ctx, papers[i].PaperID, papers[i].Sections)
			if err != nil {
				logutil.GetLogger(ctx).Warn("bulk ingest paper rejected",
					zap.String("paper_id", papers[i].PaperID), zap.Error(err))
				return
			}
			results[i] = res
		})
		if submitErr != nil {
			wg.Done()
			return nil, submitErr
		}
	}
	wg.Wait()
	return results, nil
}

// AttachTokens stores the tokenization of an existing section.
func (s *IngestService) AttachTokens(ctx context.Context, sectionID int64, tokens []string) error {
	if len(tokens) == 0 {
		return fmt.Errorf("%w: empty tokens", appErr.ErrInvalid)
	}
	return s.chunkRepo.AttachTokens(ctx, sectionID, tokens)
}

// EmbedPaper embeds every not-yet-embedded section of one paper inline.
func (s *IngestService) EmbedPaper(ctx context.Context, paperID string) (int, error) {
	chunks, err := s.chunkRepo.ListByPaper(ctx, paperID)
	if err != nil {
		return 0, err
	}
	if len(chunks) == 0 {
		return 0, appErr.ErrNotFound
	}
	pending := make([]model.SectionChunk, 0, len(chunks))
	for _, chunk := range chunks {
		if s.idx.Contains(chunk.SectionID) {
			continue
		}
		pending = append(pending, chunk)
	}
	return s.embSvc.EmbedSections(ctx, pending)
}

// DeletePaper removes the paper's sections (embeddings cascade) and
// tombstones its index entries. The vectors disappear from the file at the
// next rebuild.
func (s *IngestService) DeletePaper(ctx context.Context, paperID string) (int64, error) {
	sectionIDs, err := s.chunkRepo.SectionIDsByPaper(ctx, paperID)
	if err != nil {
		return 0, err
	}
	if len(sectionIDs) == 0 {
		return 0, appErr.ErrNotFound
	}
	deleted, err := s.chunkRepo.DeleteByPaper(ctx, paperID)
	if err != nil {
		return 0, err
	}
	tombstoned := s.idx.Delete(ctx, sectionIDs)
	logutil.GetLogger(ctx).Info("paper deleted",
		zap.String("paper_id", paperID),
		zap.Int64("sections", deleted),
		zap.Int("tombstoned", tombstoned),
	)
	return deleted, nil
}

func (s *IngestService) GetChunk(ctx context.Context, sectionID int64) (*model.SectionChunk, error) {
	return s.chunkRepo.GetByID(ctx, sectionID)
}

func (s *IngestService) ListByPaper(ctx context.Context, paperID string) ([]model.SectionChunk, error) {
	return s.chunkRepo.ListByPaper(ctx, paperID)
}

func (s *IngestService) ListByType(ctx context.Context, paperID, sectionType string) ([]model.SectionChunk, error) {
	return s.chunkRepo.ListByType(ctx, paperID, normalizeSectionType(sectionType))
}

func (s *IngestService) Structure(ctx context.Context, paperID string) (*model.PaperStructure, error) {
	structure, err := s.chunkRepo.Structure(ctx, paperID)
	if err != nil {
		return nil, err
	}
	if structure.TotalSections == 0 {
		return nil, appErr.ErrNotFound
	}
	return structure, nil
}

func (s *IngestService) ChunkStats(ctx context.Context) (*model.ChunkStats, error) {
	return s.chunkRepo.Stats(ctx)
}
