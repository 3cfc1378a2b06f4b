package index

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	appErr "github.com/xxxsen/paperbrief/internal/pkg/errors"
	"github.com/xxxsen/paperbrief/internal/pkg/timeutil"
	"github.com/xxxsen/paperbrief/internal/vecmath"
)

// Metadata is the lightweight per-vector snapshot kept beside the index so a
// search hit can be displayed without a store round trip.
type Metadata struct {
	PaperID        string `json:"paper_id"`
	SectionType    string `json:"section_type"`
	ContentPreview string `json:"content_preview"`
}

type SearchHit struct {
	ExternalID int64    `json:"external_id"`
	Score      float64  `json:"score"`
	InternalID int      `json:"internal_id"`
	Metadata   Metadata `json:"metadata"`
}

type Stats struct {
	TotalVectors    int    `json:"total_vectors"`
	Dimension       int    `json:"dimension"`
	MetadataEntries int    `json:"metadata_entries"`
	Tombstones      int    `json:"tombstones"`
	CreatedAt       string `json:"created_at"`
}

// FlatIndex is an exhaustive inner-product index over L2-normalized vectors,
// so scores are exact cosine similarities. It is append-only: internal ids
// are assigned densely in insertion order and stay stable until a rebuild,
// which is why callers must always re-resolve by external id and never
// persist internal ids. Deletion is tombstoning plus periodic rebuild.
//
// All methods take the internal single-writer/multi-reader lock; Search may
// run concurrently with Search, never with Add/Save/Load.
type FlatIndex struct {
	mu        sync.RWMutex
	path      string
	dimension int
	ready     bool

	vectors    []float32 // row-major, len == count*dimension
	ids        []int64   // internal id -> external id
	positions  map[int64]int
	metadata   map[int64]Metadata
	tombstones map[int64]struct{}
	createdAt  string
}

func NewFlatIndex(path string, dimension int) *FlatIndex {
	return &FlatIndex{
		path:       path,
		dimension:  dimension,
		positions:  make(map[int64]int),
		metadata:   make(map[int64]Metadata),
		tombstones: make(map[int64]struct{}),
	}
}

// InitializeEmpty marks the index ready without touching disk. Used for
// scratch indexes built during a rebuild.
func (x *FlatIndex) InitializeEmpty(ctx context.Context) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.ready = true
	x.createdAt = timeutil.NowISO()
	return nil
}

// Initialize loads the persisted file pair when present, otherwise starts an
// empty index of the configured dimension.
func (x *FlatIndex) Initialize(ctx context.Context) error {
	if _, err := os.Stat(x.path); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("stat index file: %w", err)
		}
		x.mu.Lock()
		x.ready = true
		x.createdAt = timeutil.NowISO()
		x.mu.Unlock()
		logutil.GetLogger(ctx).Info("created empty vector index", zap.Int("dimension", x.dimension))
		return nil
	}
	if err := x.Load(ctx); err != nil {
		return err
	}
	return nil
}

// Add normalizes and appends vectors, extending the internal to external id
// map from the current size. Re-adding a live external id is a conflict;
// re-adding a tombstoned one clears the tombstone.
func (x *FlatIndex) Add(ctx context.Context, vectors [][]float32, externalIDs []int64, metadata []Metadata) (int, error) {
	if len(vectors) != len(externalIDs) {
		return 0, fmt.Errorf("%w: %d vectors for %d ids", appErr.ErrInvalid, len(vectors), len(externalIDs))
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	if !x.ready {
		return 0, appErr.ErrIndexNotReady
	}
	added := 0
	for i, vec := range vectors {
		if len(vec) != x.dimension {
			return added, fmt.Errorf("%w: got %d, want %d", appErr.ErrDimensionMismatch, len(vec), x.dimension)
		}
		extID := externalIDs[i]
		if _, ok := x.positions[extID]; ok {
			delete(x.tombstones, extID)
			continue
		}
		normalized := vecmath.NormalizeL2(vecmath.Clone(vec))
		internalID := len(x.ids)
		x.vectors = append(x.vectors, normalized...)
		x.ids = append(x.ids, extID)
		x.positions[extID] = internalID
		if metadata != nil && i < len(metadata) {
			x.metadata[extID] = metadata[i]
		}
		added++
	}
	logutil.GetLogger(ctx).Debug("vectors added to index", zap.Int("added", added), zap.Int("total", len(x.ids)))
	return added, nil
}

// Search returns the top k live entries by inner product against the
// normalized query. An empty index yields an empty result, never an error.
func (x *FlatIndex) Search(ctx context.Context, query []float32, k int) ([]SearchHit, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if !x.ready {
		return nil, appErr.ErrIndexNotReady
	}
	if k <= 0 || len(x.ids) == 0 {
		return []SearchHit{}, nil
	}
	if len(query) != x.dimension {
		return nil, fmt.Errorf("%w: got %d, want %d", appErr.ErrDimensionMismatch, len(query), x.dimension)
	}
	q := vecmath.NormalizeL2(vecmath.Clone(query))
	hits := make([]SearchHit, 0, len(x.ids))
	for internalID, extID := range x.ids {
		if _, dead := x.tombstones[extID]; dead {
			continue
		}
		row := x.vectors[internalID*x.dimension : (internalID+1)*x.dimension]
		hits = append(hits, SearchHit{
			ExternalID: extID,
			Score:      vecmath.Dot(q, row),
			InternalID: internalID,
			Metadata:   x.metadata[extID],
		})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Contains reports whether the external id is present and live.
func (x *FlatIndex) Contains(externalID int64) bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if _, dead := x.tombstones[externalID]; dead {
		return false
	}
	_, ok := x.positions[externalID]
	return ok
}

// Delete tombstones the given external ids. Vectors stay in the file until
// the next rebuild; search filters them out. Returns how many ids were newly
// tombstoned.
func (x *FlatIndex) Delete(ctx context.Context, externalIDs []int64) int {
	x.mu.Lock()
	defer x.mu.Unlock()
	deleted := 0
	for _, id := range externalIDs {
		if _, ok := x.positions[id]; !ok {
			continue
		}
		if _, dead := x.tombstones[id]; dead {
			continue
		}
		x.tombstones[id] = struct{}{}
		deleted++
	}
	if deleted > 0 {
		logutil.GetLogger(ctx).Info("index entries tombstoned", zap.Int("count", deleted), zap.Int("total_tombstones", len(x.tombstones)))
	}
	return deleted
}

// TombstoneRatio is the fraction of stored vectors that are dead weight.
func (x *FlatIndex) TombstoneRatio() float64 {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if len(x.ids) == 0 {
		return 0
	}
	return float64(len(x.tombstones)) / float64(len(x.ids))
}

// ReplaceWith atomically swaps in the contents of a freshly built index.
// Used by rebuilds so searches never observe a half-filled index.
func (x *FlatIndex) ReplaceWith(fresh *FlatIndex) error {
	fresh.mu.RLock()
	defer fresh.mu.RUnlock()
	x.mu.Lock()
	defer x.mu.Unlock()
	if fresh.dimension != x.dimension {
		return appErr.ErrDimensionMismatch
	}
	x.vectors = fresh.vectors
	x.ids = fresh.ids
	x.positions = fresh.positions
	x.metadata = fresh.metadata
	x.tombstones = make(map[int64]struct{})
	x.createdAt = timeutil.NowISO()
	x.ready = true
	return nil
}

func (x *FlatIndex) Stats() Stats {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return Stats{
		TotalVectors:    len(x.ids),
		Dimension:       x.dimension,
		MetadataEntries: len(x.metadata),
		Tombstones:      len(x.tombstones),
		CreatedAt:       x.createdAt,
	}
}

func (x *FlatIndex) Dimension() int {
	return x.dimension
}

func (x *FlatIndex) FilePath() string {
	return x.path
}
