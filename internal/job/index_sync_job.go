package job

import (
	"context"

	"github.com/xxxsen/paperbrief/internal/service"
)

type IndexSyncJob struct {
	syncer *service.IndexSyncer
}

func NewIndexSyncJob(syncer *service.IndexSyncer) *IndexSyncJob {
	return &IndexSyncJob{syncer: syncer}
}

func (j *IndexSyncJob) Name() string {
	return "index_sync"
}

func (j *IndexSyncJob) Run(ctx context.Context) error {
	if j.syncer == nil {
		return nil
	}
	_, err := j.syncer.Sync(ctx)
	return err
}
