// Package index holds the in-process embedding index over the reference
// keyword corpus. Lookup is brute-force cosine over pre-normalized vectors;
// at corpus sizes of tens of thousands this is latency-bound on the
// embedding call, not the scan.
package index

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/marketlens/kwscout/internal/domain"
)

// Source supplies the reference keyword records. Records may carry
// precomputed embeddings; records without one are embedded at load time.
type Source interface {
	Load(ctx context.Context) ([]domain.KeywordRecord, error)
}

// Match is one similarity hit against the corpus.
type Match struct {
	Record     domain.KeywordRecord
	Similarity float64
}

// Index answers top-K similarity and existence queries over the corpus.
// Read-only after a successful Initialize; safe for concurrent use.
type Index struct {
	source   Source
	embedder domain.Embedder
	logger   *zap.Logger

	mu       sync.Mutex
	ready    bool
	inflight chan struct{}
	lastErr  error

	records []domain.KeywordRecord
	vectors [][]float32
	byKey   map[string]int
}

// New creates an index over the given source. Initialize must be called
// before queries.
func New(source Source, embedder domain.Embedder, logger *zap.Logger) *Index {
	return &Index{
		source:   source,
		embedder: embedder,
		logger:   logger,
	}
}

// Initialize loads the corpus and prepares normalized vectors. Idempotent:
// concurrent callers share one in-flight load instead of duplicating work.
// On failure all partial state is cleared so a later call retries cleanly.
func (idx *Index) Initialize(ctx context.Context) error {
	idx.mu.Lock()
	if idx.ready {
		idx.mu.Unlock()
		return nil
	}
	if idx.inflight != nil {
		done := idx.inflight
		idx.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return fmt.Errorf("await index initialization: %w", ctx.Err())
		}
		idx.mu.Lock()
		defer idx.mu.Unlock()
		if idx.ready {
			return nil
		}
		return idx.lastErr
	}

	done := make(chan struct{})
	idx.inflight = done
	idx.lastErr = nil
	idx.mu.Unlock()

	records, vectors, byKey, err := idx.load(ctx)

	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.inflight = nil
	close(done)

	if err != nil {
		idx.records = nil
		idx.vectors = nil
		idx.byKey = nil
		idx.lastErr = err
		return err
	}

	idx.records = records
	idx.vectors = vectors
	idx.byKey = byKey
	idx.ready = true
	idx.logger.Info("Embedding index initialized",
		zap.Int("records", len(records)),
	)
	return nil
}

func (idx *Index) load(ctx context.Context) (
	[]domain.KeywordRecord, [][]float32, map[string]int, error,
) {
	records, err := idx.source.Load(ctx)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load corpus: %w: %w", err, domain.ErrInitialization)
	}
	if len(records) == 0 {
		return nil, nil, nil, fmt.Errorf("corpus is empty: %w", domain.ErrInitialization)
	}

	vectors := make([][]float32, len(records))
	byKey := make(map[string]int, len(records))
	var missing []int

	for i := range records {
		if records[i].NormalizedKey == "" {
			records[i].NormalizedKey = domain.NormalizeKeyword(records[i].Text)
		}
		if _, dup := byKey[records[i].NormalizedKey]; !dup {
			byKey[records[i].NormalizedKey] = i
		}
		if len(records[i].Embedding) > 0 {
			vectors[i] = Normalize(records[i].Embedding)
		} else {
			missing = append(missing, i)
		}
	}

	if len(missing) > 0 {
		texts := make([]string, len(missing))
		for j, i := range missing {
			texts[j] = records[i].Text
		}
		res, err := domain.EmbedBatch(ctx, idx.embedder, texts)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("embed corpus records: %w: %w", err, domain.ErrInitialization)
		}
		if len(res.Embeddings) != len(missing) {
			return nil, nil, nil, fmt.Errorf(
				"embedding count mismatch: got %d for %d texts: %w",
				len(res.Embeddings), len(missing), domain.ErrInitialization,
			)
		}
		for j, i := range missing {
			vectors[i] = Normalize(res.Embeddings[j])
		}
	}

	return records, vectors, byKey, nil
}

// Size returns the number of corpus records, or 0 before initialization.
func (idx *Index) Size() int {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return len(idx.records)
}

// FindSimilar embeds the query and returns the topK most similar corpus
// records by descending cosine similarity, ties broken by corpus order.
func (idx *Index) FindSimilar(ctx context.Context, queryText string, topK int) ([]Match, error) {
	records, vectors, err := idx.snapshot()
	if err != nil {
		return nil, err
	}
	if topK <= 0 {
		return nil, nil
	}

	res, err := idx.embedder.Embed(ctx, queryText)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	query := Normalize(res.Embedding)

	order := make([]int, len(records))
	scores := make([]float64, len(records))
	for i := range records {
		order[i] = i
		scores[i] = Dot(query, vectors[i])
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})

	if topK > len(order) {
		topK = len(order)
	}
	matches := make([]Match, topK)
	for i := 0; i < topK; i++ {
		matches[i] = Match{Record: records[order[i]], Similarity: scores[order[i]]}
	}
	return matches, nil
}

// Exists reports whether text is already in the corpus. With exactMatchOnly
// the check is a normalized map lookup and never touches the embedding
// provider; otherwise a near-duplicate with similarity ≥ threshold also
// counts.
func (idx *Index) Exists(ctx context.Context, text string, threshold float64, exactMatchOnly bool) (bool, error) {
	idx.mu.Lock()
	if !idx.ready {
		idx.mu.Unlock()
		return false, domain.ErrNotInitialized
	}
	_, exact := idx.byKey[domain.NormalizeKeyword(text)]
	idx.mu.Unlock()

	if exact || exactMatchOnly {
		return exact, nil
	}

	matches, err := idx.FindSimilar(ctx, text, 1)
	if err != nil {
		return false, err
	}
	return len(matches) > 0 && matches[0].Similarity >= threshold, nil
}

// snapshot returns the immutable record and vector slices after verifying
// the record/vector count invariant.
func (idx *Index) snapshot() ([]domain.KeywordRecord, [][]float32, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if !idx.ready {
		return nil, nil, domain.ErrNotInitialized
	}
	if len(idx.records) != len(idx.vectors) {
		return nil, nil, fmt.Errorf(
			"%d records vs %d vectors: %w",
			len(idx.records), len(idx.vectors), domain.ErrInconsistentState,
		)
	}
	return idx.records, idx.vectors, nil
}
