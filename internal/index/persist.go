package index

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/paperbrief/internal/pkg/timeutil"
)

// The binary file holds only the raw vectors; the JSON sidecar carries the
// id mapping and metadata and is mandatory for correct resolution.
const (
	indexMagic   = "PBIX"
	indexVersion = uint32(1)
)

type sidecar struct {
	IDMapping  map[string]int64    `json:"id_mapping"`
	Metadata   map[string]Metadata `json:"metadata"`
	Tombstones []int64             `json:"tombstones,omitempty"`
	Dimension  int                 `json:"dimension"`
	CreatedAt  string              `json:"created_at"`
}

// SidecarPath derives the metadata path from the index path.
func SidecarPath(indexPath string) string {
	if strings.HasSuffix(indexPath, ".idx") {
		return strings.TrimSuffix(indexPath, ".idx") + "_metadata.json"
	}
	return indexPath + "_metadata.json"
}

// FilePair returns both on-disk paths, for snapshot upload.
func (x *FlatIndex) FilePair() (string, string) {
	return x.path, SidecarPath(x.path)
}

// Save writes the full file pair with a temp-file-plus-rename so the old
// snapshot survives any failure. It takes the writer lock: save never runs
// concurrently with add.
func (x *FlatIndex) Save(ctx context.Context) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if !x.ready {
		return fmt.Errorf("save: index not initialized")
	}

	var buf bytes.Buffer
	buf.WriteString(indexMagic)
	if err := binary.Write(&buf, binary.LittleEndian, indexVersion); err != nil {
		return err
	}
	if err := binary.Write(&buf, binary.LittleEndian, uint32(x.dimension)); err != nil {
		return err
	}
	if err := binary.Write(&buf, binary.LittleEndian, uint64(len(x.ids))); err != nil {
		return err
	}
	if err := binary.Write(&buf, binary.LittleEndian, x.vectors); err != nil {
		return err
	}
	if err := atomicWrite(x.path, buf.Bytes()); err != nil {
		return fmt.Errorf("write index file: %w", err)
	}

	side := sidecar{
		IDMapping:  make(map[string]int64, len(x.ids)),
		Metadata:   make(map[string]Metadata, len(x.metadata)),
		Tombstones: make([]int64, 0, len(x.tombstones)),
		Dimension:  x.dimension,
		CreatedAt:  timeutil.NowISO(),
	}
	for internalID, extID := range x.ids {
		side.IDMapping[strconv.Itoa(internalID)] = extID
	}
	for extID, meta := range x.metadata {
		side.Metadata[strconv.FormatInt(extID, 10)] = meta
	}
	for extID := range x.tombstones {
		side.Tombstones = append(side.Tombstones, extID)
	}
	blob, err := json.MarshalIndent(side, "", "  ")
	if err != nil {
		return err
	}
	if err := atomicWrite(SidecarPath(x.path), blob); err != nil {
		return fmt.Errorf("write index sidecar: %w", err)
	}
	logutil.GetLogger(ctx).Info("vector index saved",
		zap.String("path", x.path),
		zap.Int("vectors", len(x.ids)),
	)
	return nil
}

// Load replaces the in-memory state from the file pair. The sidecar must
// agree with the binary file on dimension and vector count.
func (x *FlatIndex) Load(ctx context.Context) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	raw, err := os.ReadFile(x.path)
	if err != nil {
		return fmt.Errorf("read index file: %w", err)
	}
	r := bytes.NewReader(raw)
	magic := make([]byte, len(indexMagic))
	if _, err := r.Read(magic); err != nil || string(magic) != indexMagic {
		return fmt.Errorf("bad index file magic")
	}
	var version, dimension uint32
	var count uint64
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return err
	}
	if version != indexVersion {
		return fmt.Errorf("unsupported index version: %d", version)
	}
	if err := binary.Read(r, binary.LittleEndian, &dimension); err != nil {
		return err
	}
	if int(dimension) != x.dimension {
		return fmt.Errorf("index dimension %d does not match configured %d", dimension, x.dimension)
	}
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return err
	}
	vectors := make([]float32, count*uint64(dimension))
	if err := binary.Read(r, binary.LittleEndian, vectors); err != nil {
		return fmt.Errorf("read vectors: %w", err)
	}

	blob, err := os.ReadFile(SidecarPath(x.path))
	if err != nil {
		return fmt.Errorf("read index sidecar: %w", err)
	}
	var side sidecar
	if err := json.Unmarshal(blob, &side); err != nil {
		return fmt.Errorf("decode index sidecar: %w", err)
	}
	if uint64(len(side.IDMapping)) != count {
		return fmt.Errorf("sidecar id mapping has %d entries for %d vectors", len(side.IDMapping), count)
	}

	ids := make([]int64, count)
	positions := make(map[int64]int, count)
	for key, extID := range side.IDMapping {
		internalID, err := strconv.Atoi(key)
		if err != nil || internalID < 0 || uint64(internalID) >= count {
			return fmt.Errorf("sidecar has invalid internal id %q", key)
		}
		ids[internalID] = extID
		positions[extID] = internalID
	}
	metadata := make(map[int64]Metadata, len(side.Metadata))
	for key, meta := range side.Metadata {
		extID, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return fmt.Errorf("sidecar has invalid external id %q", key)
		}
		metadata[extID] = meta
	}
	tombstones := make(map[int64]struct{}, len(side.Tombstones))
	for _, extID := range side.Tombstones {
		tombstones[extID] = struct{}{}
	}

	x.vectors = vectors
	x.ids = ids
	x.positions = positions
	x.metadata = metadata
	x.tombstones = tombstones
	x.createdAt = side.CreatedAt
	x.ready = true
	logutil.GetLogger(ctx).Info("vector index loaded",
		zap.String("path", x.path),
		zap.Uint64("vectors", count),
		zap.Int("tombstones", len(tombstones)),
	)
	return nil
}

func atomicWrite(path string, data []byte) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	if _, err := w.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
