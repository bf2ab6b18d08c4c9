package index

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"

	"github.com/marketlens/kwscout/internal/domain"
)

// --- Mocks ---

type mockSource struct {
	records []domain.KeywordRecord
	err     error
	loads   atomic.Int32
}

func (m *mockSource) Load(_ context.Context) ([]domain.KeywordRecord, error) {
	m.loads.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	out := make([]domain.KeywordRecord, len(m.records))
	copy(out, m.records)
	return out, nil
}

type mockEmbedder struct {
	vecs  map[string][]float32
	calls atomic.Int32
}

func (m *mockEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	m.calls.Add(1)
	vec, ok := m.vecs[text]
	if !ok {
		return domain.EmbeddingResult{}, errors.New("no vector for " + text)
	}
	return domain.EmbeddingResult{Embedding: vec}, nil
}

func corpusRecords() []domain.KeywordRecord {
	return []domain.KeywordRecord{
		{Text: "crm software", Embedding: []float32{1, 0, 0}},
		{Text: "sales pipeline tool", Embedding: []float32{0.9, 0.1, 0}},
		{Text: "email marketing", Embedding: []float32{0, 1, 0}},
		{Text: "invoice generator", Embedding: []float32{0, 0, 1}},
	}
}

func newTestIndex(t *testing.T) (*Index, *mockEmbedder) {
	t.Helper()
	embed := &mockEmbedder{vecs: map[string][]float32{
		"crm for startups": {1, 0.05, 0},
	}}
	idx := New(&mockSource{records: corpusRecords()}, embed, zap.NewNop())
	if err := idx.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return idx, embed
}

// --- Initialization ---

func TestInitialize_EmptyCorpus(t *testing.T) {
	idx := New(&mockSource{}, &mockEmbedder{}, zap.NewNop())
	err := idx.Initialize(context.Background())
	if !errors.Is(err, domain.ErrInitialization) {
		t.Fatalf("expected ErrInitialization, got %v", err)
	}
}

func TestInitialize_Idempotent(t *testing.T) {
	src := &mockSource{records: corpusRecords()}
	idx := New(src, &mockEmbedder{}, zap.NewNop())

	for i := 0; i < 3; i++ {
		if err := idx.Initialize(context.Background()); err != nil {
			t.Fatalf("Initialize #%d: %v", i, err)
		}
	}
	if src.loads.Load() != 1 {
		t.Errorf("expected 1 load, got %d", src.loads.Load())
	}
}

func TestInitialize_ConcurrentCallersShareOneLoad(t *testing.T) {
	src := &mockSource{records: corpusRecords()}
	idx := New(src, &mockEmbedder{}, zap.NewNop())

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = idx.Initialize(context.Background())
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("caller %d: %v", i, err)
		}
	}
	if src.loads.Load() != 1 {
		t.Errorf("expected 1 load for concurrent callers, got %d", src.loads.Load())
	}
}

func TestInitialize_FailureRollsBackAndRetries(t *testing.T) {
	src := &mockSource{err: errors.New("disk gone")}
	idx := New(src, &mockEmbedder{}, zap.NewNop())

	if err := idx.Initialize(context.Background()); err == nil {
		t.Fatal("expected first Initialize to fail")
	}
	if idx.Size() != 0 {
		t.Errorf("expected no partial state, size=%d", idx.Size())
	}

	src.err = nil
	src.records = corpusRecords()
	if err := idx.Initialize(context.Background()); err != nil {
		t.Fatalf("retry Initialize: %v", err)
	}
	if idx.Size() != 4 {
		t.Errorf("expected 4 records after retry, got %d", idx.Size())
	}
}

func TestInitialize_EmbedsRecordsWithoutVectors(t *testing.T) {
	records := []domain.KeywordRecord{
		{Text: "crm software", Embedding: []float32{1, 0, 0}},
		{Text: "lead scoring"},
	}
	embed := &mockEmbedder{vecs: map[string][]float32{
		"lead scoring": {0, 1, 0},
	}}
	idx := New(&mockSource{records: records}, embed, zap.NewNop())
	if err := idx.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if embed.calls.Load() == 0 {
		t.Error("expected embedder to fill in the missing vector")
	}
}

// --- FindSimilar ---

func TestFindSimilar_BeforeInitialize(t *testing.T) {
	idx := New(&mockSource{records: corpusRecords()}, &mockEmbedder{}, zap.NewNop())
	_, err := idx.FindSimilar(context.Background(), "anything", 3)
	if !errors.Is(err, domain.ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
}

func TestFindSimilar_SortedAndBounded(t *testing.T) {
	idx, _ := newTestIndex(t)

	matches, err := idx.FindSimilar(context.Background(), "crm for startups", 10)
	if err != nil {
		t.Fatalf("FindSimilar: %v", err)
	}
	if len(matches) != 4 {
		t.Fatalf("expected min(10, corpus)=4 matches, got %d", len(matches))
	}
	for i := 1; i < len(matches); i++ {
		if matches[i].Similarity > matches[i-1].Similarity {
			t.Errorf("not sorted descending at %d: %f > %f",
				i, matches[i].Similarity, matches[i-1].Similarity)
		}
	}
	if matches[0].Record.Text != "crm software" {
		t.Errorf("expected crm software first, got %q", matches[0].Record.Text)
	}
}

func TestFindSimilar_TopKSubsetOfLargerK(t *testing.T) {
	idx, _ := newTestIndex(t)

	small, err := idx.FindSimilar(context.Background(), "crm for startups", 2)
	if err != nil {
		t.Fatalf("FindSimilar small: %v", err)
	}
	large, err := idx.FindSimilar(context.Background(), "crm for startups", 7)
	if err != nil {
		t.Fatalf("FindSimilar large: %v", err)
	}
	for i, m := range small {
		if large[i].Record.Text != m.Record.Text {
			t.Errorf("prefix mismatch at %d: %q vs %q", i, m.Record.Text, large[i].Record.Text)
		}
	}
}

func TestFindSimilar_TiesBrokenByCorpusOrder(t *testing.T) {
	records := []domain.KeywordRecord{
		{Text: "alpha", Embedding: []float32{0, 1, 0}},
		{Text: "beta", Embedding: []float32{1, 0, 0}},
		{Text: "gamma", Embedding: []float32{1, 0, 0}},
	}
	embed := &mockEmbedder{vecs: map[string][]float32{"q": {1, 0, 0}}}
	idx := New(&mockSource{records: records}, embed, zap.NewNop())
	if err := idx.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	matches, err := idx.FindSimilar(context.Background(), "q", 2)
	if err != nil {
		t.Fatalf("FindSimilar: %v", err)
	}
	if matches[0].Record.Text != "beta" || matches[1].Record.Text != "gamma" {
		t.Errorf("tie not broken by corpus order: %q, %q",
			matches[0].Record.Text, matches[1].Record.Text)
	}
}

// --- Exists ---

func TestExists_ExactMatchSkipsEmbedding(t *testing.T) {
	idx, embed := newTestIndex(t)
	before := embed.calls.Load()

	found, err := idx.Exists(context.Background(), "  CRM   Software ", 0.95, true)
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if !found {
		t.Error("expected normalized exact match")
	}
	if embed.calls.Load() != before {
		t.Error("exact-only path must not call the embedder")
	}
}

func TestExists_ExactOnlyMiss(t *testing.T) {
	idx, embed := newTestIndex(t)
	before := embed.calls.Load()

	found, err := idx.Exists(context.Background(), "crm for startups", 0.95, true)
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if found {
		t.Error("expected miss for unseen phrase")
	}
	if embed.calls.Load() != before {
		t.Error("exact-only path must not call the embedder")
	}
}

func TestExists_FuzzyThreshold(t *testing.T) {
	idx, _ := newTestIndex(t)

	near, err := idx.Exists(context.Background(), "crm for startups", 0.9, false)
	if err != nil {
		t.Fatalf("Exists fuzzy: %v", err)
	}
	if !near {
		t.Error("expected near-duplicate above threshold")
	}

	far, err := idx.Exists(context.Background(), "crm for startups", 0.9999, false)
	if err != nil {
		t.Fatalf("Exists strict: %v", err)
	}
	if far {
		t.Error("expected miss below strict threshold")
	}
}

func TestExists_BeforeInitialize(t *testing.T) {
	idx := New(&mockSource{records: corpusRecords()}, &mockEmbedder{}, zap.NewNop())
	_, err := idx.Exists(context.Background(), "anything", 0.9, true)
	if !errors.Is(err, domain.ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
}
