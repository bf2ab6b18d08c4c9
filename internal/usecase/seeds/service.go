package seeds

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/marketlens/kwscout/internal/dedupe"
	"github.com/marketlens/kwscout/internal/domain"
	"github.com/marketlens/kwscout/internal/domain/phrase"
	"github.com/marketlens/kwscout/internal/index"
	"github.com/marketlens/kwscout/internal/retry"
)

// Service turns a pitch plus optional facets into seed phrases ranked by
// embedding similarity to the pitch.
type Service struct {
	gen         Generator
	embed       Embedder
	seedCount   int
	maxTokens   int
	temperature float32
	retryCfg    retry.Config
	logger      *zap.Logger
}

// Options tunes seed generation.
type Options struct {
	SeedCount   int // phrases requested from the generator
	MaxTokens   int
	Temperature float32
	Retry       retry.Config
}

// New creates a seed ranking service.
func New(gen Generator, embed Embedder, opts Options, logger *zap.Logger) *Service {
	if opts.SeedCount <= 0 {
		opts.SeedCount = 10
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 512
	}
	if opts.Temperature <= 0 {
		opts.Temperature = 0.7
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		gen:         gen,
		embed:       embed,
		seedCount:   opts.SeedCount,
		maxTokens:   opts.MaxTokens,
		temperature: opts.Temperature,
		retryCfg:    opts.Retry,
		logger:      logger,
	}
}

// GenerateSeeds produces seed candidates sorted by descending similarity to
// the pitch. A blank pitch is a caller error. Generation failure after
// retries is fatal: seeds are foundational and cannot be skipped.
func (s *Service) GenerateSeeds(
	ctx context.Context, pitch string, facets domain.Facets,
) ([]domain.SeedCandidate, error) {
	if strings.TrimSpace(pitch) == "" {
		return nil, domain.ErrEmptyPitch
	}

	prompt := buildPrompt(pitch, facets, s.seedCount)

	var raw string
	err := retry.Do(ctx, s.retryCfg, func(ctx context.Context) error {
		res, err := s.gen.Complete(ctx, domain.CompletionRequest{
			Prompt:      prompt,
			MaxTokens:   s.maxTokens,
			Temperature: s.temperature,
		})
		if err != nil {
			return err
		}
		raw = res.Text
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrSeedGeneration, err)
	}

	parsed := dedupe.Dedupe(phrase.Parse(raw))
	if len(parsed) == 0 {
		return nil, fmt.Errorf("%w: no usable phrases in model output", domain.ErrSeedGeneration)
	}

	candidates, err := s.rankBySimilarity(ctx, pitch, parsed)
	if err != nil {
		return nil, err
	}

	s.logger.Info("seeds generated",
		zap.Int("requested", s.seedCount),
		zap.Int("parsed", len(parsed)))

	return candidates, nil
}

// rankBySimilarity embeds the pitch once, batch-embeds the seeds, and sorts
// by descending cosine similarity. Ties keep generation order.
func (s *Service) rankBySimilarity(
	ctx context.Context, pitch string, seeds []string,
) ([]domain.SeedCandidate, error) {
	var pitchVec []float32
	err := retry.Do(ctx, s.retryCfg, func(ctx context.Context) error {
		res, err := s.embed.Embed(ctx, pitch)
		if err != nil {
			return err
		}
		pitchVec = index.Normalize(res.Embedding)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("embed pitch: %w", err)
	}

	var batch domain.BatchEmbeddingResult
	err = retry.Do(ctx, s.retryCfg, func(ctx context.Context) error {
		var err error
		batch, err = domain.EmbedBatch(ctx, s.embed, seeds)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("embed seeds: %w", err)
	}

	candidates := make([]domain.SeedCandidate, len(seeds))
	for i, seed := range seeds {
		candidates[i] = domain.SeedCandidate{
			Seed:              seed,
			SimilarityToPitch: index.Dot(pitchVec, index.Normalize(batch.Embeddings[i])),
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].SimilarityToPitch > candidates[j].SimilarityToPitch
	})

	return candidates, nil
}

// buildPrompt combines the pitch and facets into a single generation prompt.
func buildPrompt(pitch string, facets domain.Facets, count int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Product pitch: %s\n", pitch)

	writeFacet(&b, "Topics", facets.Topics)
	writeFacet(&b, "Target personas", facets.Personas)
	writeFacet(&b, "Pain points", facets.PainPoints)
	writeFacet(&b, "Features", facets.Features)
	writeFacet(&b, "Competitors", facets.Competitors)

	fmt.Fprintf(&b,
		"\nList %d short search phrases (2-4 words each) that potential buyers "+
			"of this product would type into a search engine. "+
			"Return one phrase per line with no numbering or commentary.",
		count)

	return b.String()
}

func writeFacet(b *strings.Builder, label string, values []string) {
	if len(values) == 0 {
		return
	}
	fmt.Fprintf(b, "%s: %s\n", label, strings.Join(values, ", "))
}
