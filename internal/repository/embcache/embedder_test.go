package embcache

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/marketlens/kwscout/internal/db"
	"github.com/marketlens/kwscout/internal/domain"
)

type memStore struct {
	data    map[string][]byte
	lastTTL time.Duration
}

func newMemStore() *memStore { return &memStore{data: make(map[string][]byte)} }

func (m *memStore) Get(_ context.Context, key string) ([]byte, error) {
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	return nil, db.ErrKeyNotFound
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

func (m *memStore) SetWithTTL(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.data[key] = value
	m.lastTTL = ttl
	return nil
}

type countingEmbedder struct {
	calls atomic.Int32
}

func (e *countingEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	e.calls.Add(1)
	return domain.EmbeddingResult{
		Embedding:   []float32{float32(len(text)), 1},
		TotalTokens: 3,
	}, nil
}

func TestEmbed_CachesSecondCall(t *testing.T) {
	inner := &countingEmbedder{}
	c := New(inner, newMemStore(), 0, nil, zap.NewNop())
	ctx := context.Background()

	first, err := c.Embed(ctx, "hello world")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	second, err := c.Embed(ctx, "hello world")
	if err != nil {
		t.Fatalf("Embed cached: %v", err)
	}

	if inner.calls.Load() != 1 {
		t.Errorf("expected 1 inner call, got %d", inner.calls.Load())
	}
	if len(second.Embedding) != len(first.Embedding) {
		t.Fatalf("cached vector differs in length")
	}
	for i := range first.Embedding {
		if first.Embedding[i] != second.Embedding[i] {
			t.Errorf("cached vector differs at %d", i)
		}
	}
	if second.TotalTokens != 0 {
		t.Errorf("cache hit should consume no tokens, got %d", second.TotalTokens)
	}
}

func TestBatchEmbed_OnlyMissesHitProvider(t *testing.T) {
	inner := &countingEmbedder{}
	c := New(inner, newMemStore(), 0, nil, zap.NewNop())
	ctx := context.Background()

	if _, err := c.Embed(ctx, "alpha"); err != nil {
		t.Fatalf("warm cache: %v", err)
	}
	inner.calls.Store(0)

	res, err := c.BatchEmbed(ctx, []string{"alpha", "beta", "gamma"})
	if err != nil {
		t.Fatalf("BatchEmbed: %v", err)
	}
	if len(res.Embeddings) != 3 {
		t.Fatalf("expected 3 vectors, got %d", len(res.Embeddings))
	}
	for i, vec := range res.Embeddings {
		if len(vec) == 0 {
			t.Errorf("vector %d is empty", i)
		}
	}
	// alpha was cached; only beta and gamma reach the inner embedder.
	if inner.calls.Load() != 2 {
		t.Errorf("expected 2 inner calls, got %d", inner.calls.Load())
	}
}

func TestBatchEmbed_AllCachedSkipsProvider(t *testing.T) {
	inner := &countingEmbedder{}
	c := New(inner, newMemStore(), 0, nil, zap.NewNop())
	ctx := context.Background()

	_, _ = c.Embed(ctx, "one")
	_, _ = c.Embed(ctx, "two")
	inner.calls.Store(0)

	if _, err := c.BatchEmbed(ctx, []string{"one", "two"}); err != nil {
		t.Fatalf("BatchEmbed: %v", err)
	}
	if inner.calls.Load() != 0 {
		t.Errorf("expected 0 inner calls, got %d", inner.calls.Load())
	}
}

func TestEmbed_WritesWithTTL(t *testing.T) {
	inner := &countingEmbedder{}
	s := newMemStore()
	c := New(inner, s, time.Hour, nil, zap.NewNop())

	if _, err := c.Embed(context.Background(), "expiring text"); err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if s.lastTTL != time.Hour {
		t.Errorf("cache write ttl = %v, want %v", s.lastTTL, time.Hour)
	}
}
