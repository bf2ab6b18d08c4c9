package existence

import (
	"context"

	"github.com/marketlens/kwscout/internal/domain"
)

// IndexChecker is the in-process exact-match tier.
type IndexChecker interface {
	Exists(ctx context.Context, text string, threshold float64, exactMatchOnly bool) (bool, error)
}

// KeywordReader is the persisted-store tier, queried as one batched lookup.
type KeywordReader interface {
	LookupByText(ctx context.Context, texts []string) ([]domain.KeywordRecord, error)
}
