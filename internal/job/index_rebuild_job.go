package job

import (
	"context"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/paperbrief/internal/service"
)

type IndexRebuildJob struct {
	syncer *service.IndexSyncer
	// Rebuild only once tombstones exceed this fraction of the index.
	tombstoneRatio float64
}

func NewIndexRebuildJob(syncer *service.IndexSyncer, tombstoneRatio float64) *IndexRebuildJob {
	return &IndexRebuildJob{syncer: syncer, tombstoneRatio: tombstoneRatio}
}

func (j *IndexRebuildJob) Name() string {
	return "index_rebuild"
}

func (j *IndexRebuildJob) Run(ctx context.Context) error {
	if j.syncer == nil {
		return nil
	}
	ratio := j.syncer.TombstoneRatio()
	if ratio < j.tombstoneRatio {
		return nil
	}
	logutil.GetLogger(ctx).Info("tombstone ratio above threshold, rebuilding",
		zap.Float64("ratio", ratio),
		zap.Float64("threshold", j.tombstoneRatio),
	)
	_, err := j.syncer.Rebuild(ctx)
	return err
}
