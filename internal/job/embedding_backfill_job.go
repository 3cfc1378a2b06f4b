package job

import (
	"context"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/paperbrief/internal/service"
)

type EmbeddingBackfillJob struct {
	embSvc    *service.EmbeddingService
	batchSize int
}

func NewEmbeddingBackfillJob(embSvc *service.EmbeddingService, batchSize int) *EmbeddingBackfillJob {
	return &EmbeddingBackfillJob{embSvc: embSvc, batchSize: batchSize}
}

func (j *EmbeddingBackfillJob) Name() string {
	return "embedding_backfill"
}

func (j *EmbeddingBackfillJob) Run(ctx context.Context) error {
	if j.embSvc == nil {
		return nil
	}
	processed, err := j.embSvc.Backfill(ctx, j.batchSize)
	if processed > 0 {
		logutil.GetLogger(ctx).Info("backfill processed sections", zap.Int("count", processed))
	}
	return err
}
