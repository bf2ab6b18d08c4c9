package seeds

import (
	"context"

	"github.com/marketlens/kwscout/internal/domain"
)

// Generator produces free text from a prompt.
type Generator interface {
	Complete(ctx context.Context, req domain.CompletionRequest) (domain.CompletionResult, error)
}

// Embedder vectorizes text into embeddings.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}
