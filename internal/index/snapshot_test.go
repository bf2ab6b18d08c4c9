package index

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/marketlens/kwscout/internal/domain"
)

func writeSnapshot(t *testing.T, dir string, records []domain.KeywordRecord, vectors [][]float32, chunkSize int) {
	t.Helper()

	dims := len(vectors[0])
	meta := snapshotMeta{Dimensions: dims, ChunkSize: chunkSize, Total: len(records)}
	metaData, _ := json.Marshal(meta)
	if err := os.WriteFile(filepath.Join(dir, "meta.json"), metaData, 0o600); err != nil {
		t.Fatalf("write meta: %v", err)
	}

	kwData, _ := json.Marshal(records)
	if err := os.WriteFile(filepath.Join(dir, "keywords.json"), kwData, 0o600); err != nil {
		t.Fatalf("write keywords: %v", err)
	}

	for chunk := 0; chunk*chunkSize < len(vectors); chunk++ {
		start := chunk * chunkSize
		end := start + chunkSize
		if end > len(vectors) {
			end = len(vectors)
		}
		buf := make([]byte, 0, (end-start)*dims*4)
		for _, vec := range vectors[start:end] {
			for _, f := range vec {
				var b [4]byte
				binary.LittleEndian.PutUint32(b[:], math.Float32bits(f))
				buf = append(buf, b[:]...)
			}
		}
		name := filepath.Join(dir, fmt.Sprintf("chunk_%03d.bin", chunk))
		if err := os.WriteFile(name, buf, 0o600); err != nil {
			t.Fatalf("write chunk: %v", err)
		}
	}
}

func TestSnapshotSource_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	records := []domain.KeywordRecord{
		{Text: "crm software"},
		{Text: "email marketing"},
		{Text: "invoice generator"},
	}
	vectors := [][]float32{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
		{0, 0, 1, 0},
	}
	writeSnapshot(t, dir, records, vectors, 2) // forces two chunks

	loaded, err := NewSnapshotSource(dir).Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded) != 3 {
		t.Fatalf("expected 3 records, got %d", len(loaded))
	}
	for i, r := range loaded {
		if r.Text != records[i].Text {
			t.Errorf("record %d text = %q, want %q", i, r.Text, records[i].Text)
		}
		if len(r.Embedding) != 4 {
			t.Fatalf("record %d embedding dims = %d, want 4", i, len(r.Embedding))
		}
		for j := range r.Embedding {
			if r.Embedding[j] != vectors[i][j] {
				t.Errorf("record %d embedding[%d] = %f, want %f",
					i, j, r.Embedding[j], vectors[i][j])
			}
		}
	}
}

func TestSnapshotSource_CountMismatch(t *testing.T) {
	dir := t.TempDir()
	records := []domain.KeywordRecord{{Text: "only one"}}
	vectors := [][]float32{{1, 0}, {0, 1}} // one vector too many
	writeSnapshot(t, dir, records, vectors, 10)

	// Overwrite meta so keyword count passes but vector count diverges.
	meta, _ := json.Marshal(snapshotMeta{Dimensions: 2, ChunkSize: 10, Total: 1})
	if err := os.WriteFile(filepath.Join(dir, "meta.json"), meta, 0o600); err != nil {
		t.Fatalf("write meta: %v", err)
	}

	if _, err := NewSnapshotSource(dir).Load(context.Background()); err == nil {
		t.Fatal("expected count mismatch error")
	}
}

func TestSnapshotSource_MissingDir(t *testing.T) {
	if _, err := NewSnapshotSource(filepath.Join(t.TempDir(), "nope")).Load(context.Background()); err == nil {
		t.Fatal("expected error for missing snapshot dir")
	}
}
