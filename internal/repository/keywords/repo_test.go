package keywords

import (
	"context"
	"testing"

	"github.com/marketlens/kwscout/internal/domain"
)

type memStore struct {
	data map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string][]byte)}
}

func (m *memStore) MGet(_ context.Context, keys []string) ([][]byte, error) {
	out := make([][]byte, len(keys))
	for i, k := range keys {
		out[i] = m.data[k]
	}
	return out, nil
}

func (m *memStore) Set(_ context.Context, key string, value []byte) error {
	m.data[key] = value
	return nil
}

func TestPersistAndLookup(t *testing.T) {
	repo := New(newMemStore())
	ctx := context.Background()

	records := []domain.KeywordRecord{
		{Text: "CRM Software", Metrics: &domain.MarketMetrics{Volume: 1000, CPC: 2.5}},
		{Text: "lead scoring tool"},
	}
	if err := repo.Persist(ctx, records); err != nil {
		t.Fatalf("Persist: %v", err)
	}

	got, err := repo.LookupByText(ctx, []string{"crm software", "unknown phrase", "LEAD scoring TOOL"})
	if err != nil {
		t.Fatalf("LookupByText: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}
	if got[0].Text != "CRM Software" {
		t.Errorf("display casing lost: %q", got[0].Text)
	}
	if got[0].Metrics == nil || got[0].Metrics.Volume != 1000 {
		t.Errorf("metrics lost: %+v", got[0].Metrics)
	}
	if got[1].NormalizedKey != "lead scoring tool" {
		t.Errorf("normalized key = %q", got[1].NormalizedKey)
	}
}

func TestPersist_IdempotentUpsert(t *testing.T) {
	store := newMemStore()
	repo := New(store)
	ctx := context.Background()

	rec := domain.KeywordRecord{Text: "ai note taker", Metrics: &domain.MarketMetrics{Volume: 10}}
	_ = repo.Persist(ctx, []domain.KeywordRecord{rec})
	rec.Metrics.Volume = 20
	_ = repo.Persist(ctx, []domain.KeywordRecord{rec})

	if len(store.data) != 1 {
		t.Fatalf("expected 1 stored key, got %d", len(store.data))
	}
	got, _ := repo.LookupByText(ctx, []string{"ai note taker"})
	if got[0].Metrics.Volume != 20 {
		t.Errorf("upsert did not overwrite: volume=%d", got[0].Metrics.Volume)
	}
}

func TestPersist_DropsEmbeddings(t *testing.T) {
	repo := New(newMemStore())
	ctx := context.Background()

	rec := domain.KeywordRecord{Text: "kw", Embedding: []float32{1, 2, 3}}
	_ = repo.Persist(ctx, []domain.KeywordRecord{rec})

	got, _ := repo.LookupByText(ctx, []string{"kw"})
	if len(got[0].Embedding) != 0 {
		t.Error("embedding should not round-trip through the keyword store")
	}
}

func TestLookupByText_Empty(t *testing.T) {
	repo := New(newMemStore())
	got, err := repo.LookupByText(context.Background(), nil)
	if err != nil || got != nil {
		t.Fatalf("expected nil, nil; got %v, %v", got, err)
	}
}
