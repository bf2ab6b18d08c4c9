// Package expand turns one seed phrase into a batch of candidate keyword
// phrases via a single generation call.
package expand

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/marketlens/kwscout/internal/domain"
	"github.com/marketlens/kwscout/internal/domain/phrase"
)

// Generator produces free text from a prompt.
type Generator interface {
	Complete(ctx context.Context, req domain.CompletionRequest) (domain.CompletionResult, error)
}

// Service expands seeds into candidate keyword phrases. Retry-vs-skip on
// failure is the orchestrator's decision, not this service's.
type Service struct {
	gen         Generator
	maxTokens   int
	temperature float32
	logger      *zap.Logger
}

// New creates a keyword expansion service.
func New(gen Generator, maxTokens int, temperature float32, logger *zap.Logger) *Service {
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	if temperature <= 0 {
		temperature = 0.8
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{gen: gen, maxTokens: maxTokens, temperature: temperature, logger: logger}
}

// Expand issues one generation call for the seed and parses the output into
// bounded phrases. Phrases violating the word-count or length policy are
// dropped, not corrected. The result may hold fewer than targetCount phrases.
func (s *Service) Expand(ctx context.Context, seed string, targetCount int) ([]string, error) {
	res, err := s.gen.Complete(ctx, domain.CompletionRequest{
		Prompt:      buildPrompt(seed, targetCount),
		MaxTokens:   s.maxTokens,
		Temperature: s.temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("expand %q: %w", seed, err)
	}

	phrases := phrase.Parse(res.Text)
	if len(phrases) > targetCount {
		phrases = phrases[:targetCount]
	}

	s.logger.Debug("seed expanded",
		zap.String("seed", seed),
		zap.Int("requested", targetCount),
		zap.Int("parsed", len(phrases)))

	return phrases, nil
}

func buildPrompt(seed string, count int) string {
	return fmt.Sprintf(
		"Generate %d short search phrases (2-4 words each) closely related to %q. "+
			"Mix buyer-intent phrasings (best, pricing, buy), comparison phrasings "+
			"(vs, alternative), and problem-solving phrasings (how to, fix). "+
			"Return one phrase per line with no numbering or commentary.",
		count, seed)
}
