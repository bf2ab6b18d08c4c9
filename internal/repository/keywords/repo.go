// Package keywords persists keyword records with their market metrics,
// keyed by normalized text.
package keywords

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/marketlens/kwscout/internal/domain"
)

var keyPrefix = domain.KeyPrefix + "kw:"

// store is the consumer interface for keyword persistence (ISP).
type store interface {
	MGet(ctx context.Context, keys []string) ([][]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Repo implements the persisted keyword store contract: batched exact
// lookup by normalized text and idempotent upsert.
type Repo struct {
	store store
}

// New creates a keyword repository.
func New(s store) *Repo {
	return &Repo{store: s}
}

// LookupByText returns the stored records for the given texts. Texts are
// normalized before lookup; unknown texts are simply absent from the result.
// One batched round trip regardless of input size.
func (r *Repo) LookupByText(ctx context.Context, texts []string) ([]domain.KeywordRecord, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	keys := make([]string, len(texts))
	for i, t := range texts {
		keys[i] = keyFor(domain.NormalizeKeyword(t))
	}

	values, err := r.store.MGet(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("lookup keywords: %w", err)
	}

	records := make([]domain.KeywordRecord, 0, len(values))
	for i, data := range values {
		if data == nil {
			continue
		}
		var rec domain.KeywordRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("decode keyword %q: %w", texts[i], err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// Persist upserts records keyed by their normalized text. Embeddings are not
// stored here; the index owns vectors.
func (r *Repo) Persist(ctx context.Context, records []domain.KeywordRecord) error {
	for _, rec := range records {
		key := rec.NormalizedKey
		if key == "" {
			key = domain.NormalizeKeyword(rec.Text)
		}
		stored := rec
		stored.NormalizedKey = key
		stored.Embedding = nil

		data, err := json.Marshal(stored)
		if err != nil {
			return fmt.Errorf("encode keyword %q: %w", rec.Text, err)
		}
		if err := r.store.Set(ctx, keyFor(key), data); err != nil {
			return fmt.Errorf("persist keyword %q: %w", rec.Text, err)
		}
	}
	return nil
}

func keyFor(normalized string) string {
	return keyPrefix + normalized
}
