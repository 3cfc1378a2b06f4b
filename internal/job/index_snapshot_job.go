package job

import (
	"context"

	"github.com/xxxsen/paperbrief/internal/service"
)

type IndexSnapshotJob struct {
	snapshot *service.SnapshotService
	syncer   *service.IndexSyncer
}

// NewIndexSnapshotJob persists the index periodically. With a snapshot
// service the file pair also goes to the configured file store; without one
// the job degrades to a local save.
func NewIndexSnapshotJob(snapshot *service.SnapshotService, syncer *service.IndexSyncer) *IndexSnapshotJob {
	return &IndexSnapshotJob{snapshot: snapshot, syncer: syncer}
}

func (j *IndexSnapshotJob) Name() string {
	return "index_snapshot"
}

func (j *IndexSnapshotJob) Run(ctx context.Context) error {
	if j.snapshot != nil {
		return j.snapshot.Snapshot(ctx)
	}
	if j.syncer == nil {
		return nil
	}
	return j.syncer.SaveIndex(ctx)
}
