package collect

import (
	"context"

	"github.com/marketlens/kwscout/internal/domain"
	"github.com/marketlens/kwscout/internal/usecase/existence"
)

// SeedGenerator produces ranked seed candidates from a pitch and facets.
type SeedGenerator interface {
	GenerateSeeds(ctx context.Context, pitch string, facets domain.Facets) ([]domain.SeedCandidate, error)
}

// Expander turns one seed into a batch of candidate phrases.
type Expander interface {
	Expand(ctx context.Context, seed string, targetCount int) ([]string, error)
}

// Checker classifies phrases into existing vs new.
type Checker interface {
	Check(ctx context.Context, phrases []string) (existence.Result, error)
}

// CheckpointStore persists and reloads run checkpoints.
type CheckpointStore interface {
	Save(ctx context.Context, p *domain.CollectionProgress) error
	Load(ctx context.Context, runID string) (*domain.CollectionProgress, error)
}

// Embedder vectorizes text for the similarity down-selection step.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}
