package index

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/marketlens/kwscout/internal/domain"
)

// Snapshot layout: a directory with keywords.json (the record list without
// embeddings), meta.json, and chunk_NNN.bin files of little-endian float32
// vectors, chunkSize vectors per file.
type snapshotMeta struct {
	Dimensions int `json:"dimensions"`
	ChunkSize  int `json:"chunk_size"`
	Total      int `json:"total"`
}

// SnapshotSource loads a precomputed corpus snapshot from disk.
type SnapshotSource struct {
	dir string
}

// NewSnapshotSource creates a source reading from the given directory.
func NewSnapshotSource(dir string) *SnapshotSource {
	return &SnapshotSource{dir: dir}
}

// Load reads the record list and embedding chunks and stitches them together.
func (s *SnapshotSource) Load(_ context.Context) ([]domain.KeywordRecord, error) {
	meta, err := s.readMeta()
	if err != nil {
		return nil, err
	}

	records, err := s.readKeywords()
	if err != nil {
		return nil, err
	}
	if len(records) != meta.Total {
		return nil, fmt.Errorf(
			"snapshot keyword count %d does not match meta total %d",
			len(records), meta.Total,
		)
	}

	vectors, err := s.readChunks(meta)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(records) {
		return nil, fmt.Errorf(
			"snapshot vector count %d does not match keyword count %d",
			len(vectors), len(records),
		)
	}

	for i := range records {
		records[i].Embedding = vectors[i]
	}
	return records, nil
}

func (s *SnapshotSource) readMeta() (snapshotMeta, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, "meta.json"))
	if err != nil {
		return snapshotMeta{}, fmt.Errorf("read snapshot meta: %w", err)
	}
	var meta snapshotMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return snapshotMeta{}, fmt.Errorf("parse snapshot meta: %w", err)
	}
	if meta.Dimensions <= 0 || meta.ChunkSize <= 0 {
		return snapshotMeta{}, fmt.Errorf(
			"invalid snapshot meta: dimensions=%d chunk_size=%d",
			meta.Dimensions, meta.ChunkSize,
		)
	}
	return meta, nil
}

func (s *SnapshotSource) readKeywords() ([]domain.KeywordRecord, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, "keywords.json"))
	if err != nil {
		return nil, fmt.Errorf("read snapshot keywords: %w", err)
	}
	var records []domain.KeywordRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse snapshot keywords: %w", err)
	}
	return records, nil
}

func (s *SnapshotSource) readChunks(meta snapshotMeta) ([][]float32, error) {
	paths, err := filepath.Glob(filepath.Join(s.dir, "chunk_*.bin"))
	if err != nil {
		return nil, fmt.Errorf("list snapshot chunks: %w", err)
	}
	sort.Strings(paths)

	vectors := make([][]float32, 0, meta.Total)
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read chunk %s: %w", filepath.Base(path), err)
		}
		chunk, err := decodeChunk(data, meta.Dimensions)
		if err != nil {
			return nil, fmt.Errorf("chunk %s: %w", filepath.Base(path), err)
		}
		if len(chunk) > meta.ChunkSize {
			return nil, fmt.Errorf(
				"chunk %s holds %d vectors, max %d",
				filepath.Base(path), len(chunk), meta.ChunkSize,
			)
		}
		vectors = append(vectors, chunk...)
	}
	return vectors, nil
}

// decodeChunk parses little-endian float32 vectors of the given dimension.
func decodeChunk(data []byte, dims int) ([][]float32, error) {
	rowBytes := dims * 4
	if len(data)%rowBytes != 0 {
		return nil, fmt.Errorf("size %d is not a multiple of row size %d", len(data), rowBytes)
	}
	vectors := make([][]float32, len(data)/rowBytes)
	for i := range vectors {
		row := make([]float32, dims)
		base := i * rowBytes
		for j := 0; j < dims; j++ {
			bits := binary.LittleEndian.Uint32(data[base+j*4:])
			row[j] = math.Float32frombits(bits)
		}
		vectors[i] = row
	}
	return vectors, nil
}
