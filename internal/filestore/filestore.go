package filestore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// IFileStore is the snapshot target for index file pairs. Keys are relative
// names; the backend decides layout.
type IFileStore interface {
	Name() string
	Put(ctx context.Context, key string, reader io.Reader, size int64) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Exists(ctx context.Context, key string) (bool, error)
}

type FileStoreFactory func(args interface{}) (IFileStore, error)

var registry = map[string]FileStoreFactory{}

func Register(name string, factory FileStoreFactory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	registry[key] = factory
}

func NewFileStore(name string, args interface{}) (IFileStore, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return nil, fmt.Errorf("filestore type is required")
	}
	factory := registry[key]
	if factory == nil {
		return nil, fmt.Errorf("unsupported filestore type: %s", name)
	}
	return factory(args)
}

func decodeConfig(args interface{}, dst interface{}) error {
	if args == nil {
		return fmt.Errorf("filestore config is required")
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode filestore config: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode filestore config: %w", err)
	}
	return nil
}
