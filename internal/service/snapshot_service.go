package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/paperbrief/internal/filestore"
	"github.com/xxxsen/paperbrief/internal/index"
)

// SnapshotService saves the index and ships the file pair to a file store.
// The upload is best effort per file but all-or-nothing in reporting: a
// failed sidecar upload fails the snapshot even if the vector file went up.
type SnapshotService struct {
	idx   *index.FlatIndex
	store filestore.IFileStore
}

func NewSnapshotService(idx *index.FlatIndex, store filestore.IFileStore) *SnapshotService {
	return &SnapshotService{idx: idx, store: store}
}

func (s *SnapshotService) Snapshot(ctx context.Context) error {
	if err := s.idx.Save(ctx); err != nil {
		return fmt.Errorf("save index before snapshot: %w", err)
	}
	indexPath, sidecarPath := s.idx.FilePair()
	for _, path := range []string{indexPath, sidecarPath} {
		if err := s.upload(ctx, path); err != nil {
			return err
		}
	}
	logutil.GetLogger(ctx).Info("index snapshot uploaded",
		zap.String("store", s.store.Name()),
		zap.String("index", filepath.Base(indexPath)),
	)
	return nil
}

func (s *SnapshotService) upload(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s for snapshot: %w", path, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}
	key := "snapshots/" + filepath.Base(path)
	if err := s.store.Put(ctx, key, f, info.Size()); err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	return nil
}
