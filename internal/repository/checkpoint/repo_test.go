package checkpoint

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/marketlens/kwscout/internal/db"
	"github.com/marketlens/kwscout/internal/domain"
)

type memStore struct {
	data map[string][]byte
}

func (m *memStore) Get(_ context.Context, key string) ([]byte, error) {
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	return nil, db.ErrKeyNotFound
}

func (m *memStore) Set(_ context.Context, key string, value []byte) error {
	m.data[key] = value
	return nil
}

func (m *memStore) SetWithTTL(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.data[key] = value
	return nil
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	repo := New(&memStore{data: make(map[string][]byte)}, 0)
	ctx := context.Background()

	p := domain.NewCollectionProgress("run-1", "ai meeting notes", 10)
	p.Stage = domain.StageGeneratingKeywords
	p.Seeds = []string{"s1", "s2", "s3"}
	p.MarkProcessed("s1")
	p.SeedSimilarities["s1"] = 0.83
	p.CountGenerated = 15
	p.CountNew = 4
	p.NewKeywords = []string{"a", "b", "c", "d"}

	if err := repo.Save(ctx, p); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := repo.Load(ctx, "run-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Stage != domain.StageGeneratingKeywords {
		t.Errorf("stage = %s", got.Stage)
	}
	if !got.ProcessedSeeds["s1"] || got.ProcessedSeeds["s2"] {
		t.Errorf("processed seeds lost: %v", got.ProcessedSeeds)
	}
	if got.NextSeedIndex() != 1 {
		t.Errorf("resume index = %d, want 1", got.NextSeedIndex())
	}
	if got.SeedSimilarities["s1"] != 0.83 {
		t.Errorf("seed similarity lost: %v", got.SeedSimilarities)
	}
	if len(got.NewKeywords) != got.CountNew {
		t.Errorf("invariant broken: %d keywords vs count %d", len(got.NewKeywords), got.CountNew)
	}
}

func TestLoad_MissingRun(t *testing.T) {
	repo := New(&memStore{data: make(map[string][]byte)}, 0)
	_, err := repo.Load(context.Background(), "nope")
	if !errors.Is(err, domain.ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
}
