// Package gemini provides a text generation provider backed by the Google
// Generative AI API, guarded by a circuit breaker and a client-side rate limit.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"time"

	genai "github.com/google/generative-ai-go/genai"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"

	"github.com/marketlens/kwscout/internal/domain"
	"github.com/marketlens/kwscout/internal/metrics"
)

// Generator is a text generation provider using the Gemini API.
type Generator struct {
	client  *genai.Client
	model   string
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	logger  *zap.Logger
}

// Config holds the Gemini provider settings.
type Config struct {
	APIKey            string
	Model             string
	RequestsPerMinute int // 0 = unlimited
	Logger            *zap.Logger
}

// NewGenerator creates a Gemini text generation provider.
func NewGenerator(ctx context.Context, cfg *Config) (*Generator, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "gemini",
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn("circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerMinute > 0 {
		burst := cfg.RequestsPerMinute / 10
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), burst)
	}

	return &Generator{
		client:  client,
		model:   cfg.Model,
		breaker: breaker,
		limiter: limiter,
		logger:  log,
	}, nil
}

// Complete implements domain.TextGenerator.
func (g *Generator) Complete(ctx context.Context, req domain.CompletionRequest) (domain.CompletionResult, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return domain.CompletionResult{}, fmt.Errorf("rate limiter: %w", err)
	}

	start := time.Now()

	result, err := g.breaker.Execute(func() (interface{}, error) {
		model := g.client.GenerativeModel(g.model)
		model.SetTemperature(req.Temperature)
		if req.MaxTokens > 0 {
			model.SetMaxOutputTokens(int32(req.MaxTokens))
		}

		resp, err := model.GenerateContent(ctx, genai.Text(req.Prompt))
		if err != nil {
			return nil, err
		}
		return resp, nil
	})

	duration := time.Since(start)

	if err != nil {
		metrics.GenerationRequestsTotal.WithLabelValues("gemini", g.model, "error").Inc()
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return domain.CompletionResult{}, fmt.Errorf("generation unavailable: %w",
				errors.Join(domain.ErrRateLimited, domain.ErrGenerationProviderError))
		}
		return domain.CompletionResult{}, fmt.Errorf("generation request failed: %s: %w",
			err.Error(), domain.ErrGenerationProviderError)
	}

	resp, ok := result.(*genai.GenerateContentResponse)
	if !ok || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		metrics.GenerationRequestsTotal.WithLabelValues("gemini", g.model, "error").Inc()
		return domain.CompletionResult{}, fmt.Errorf("empty completion response: %w", domain.ErrGenerationProviderError)
	}

	metrics.GenerationRequestsTotal.WithLabelValues("gemini", g.model, "success").Inc()
	metrics.GenerationRequestDuration.WithLabelValues("gemini", g.model).Observe(duration.Seconds())

	var text string
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text += string(t)
		}
	}

	var promptTokens, totalTokens int
	if resp.UsageMetadata != nil {
		promptTokens = int(resp.UsageMetadata.PromptTokenCount)
		totalTokens = int(resp.UsageMetadata.TotalTokenCount)
		metrics.GenerationTokensTotal.WithLabelValues("gemini", g.model, "prompt").Add(float64(promptTokens))
		metrics.GenerationTokensTotal.WithLabelValues("gemini", g.model, "total").Add(float64(totalTokens))
	}

	return domain.CompletionResult{
		Text:         text,
		PromptTokens: promptTokens,
		TotalTokens:  totalTokens,
	}, nil
}

// HealthCheck verifies the API key by counting tokens on a trivial input.
func (g *Generator) HealthCheck(ctx context.Context) error {
	model := g.client.GenerativeModel(g.model)
	if _, err := model.CountTokens(ctx, genai.Text("ping")); err != nil {
		return fmt.Errorf("count tokens: %w", err)
	}
	return nil
}

// Close releases the underlying API client.
func (g *Generator) Close() error {
	if g.client != nil {
		return g.client.Close() //nolint:wrapcheck // direct delegation
	}
	return nil
}
