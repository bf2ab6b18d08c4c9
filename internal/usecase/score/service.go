// Package score annotates discovered keywords with opportunity metrics
// derived from stored market data.
package score

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/marketlens/kwscout/internal/domain"
	"github.com/marketlens/kwscout/internal/domain/opportunity"
	"github.com/marketlens/kwscout/internal/retry"
)

// KeywordStore is the persisted market-metrics store.
type KeywordStore interface {
	LookupByText(ctx context.Context, texts []string) ([]domain.KeywordRecord, error)
	Persist(ctx context.Context, records []domain.KeywordRecord) error
}

// Service scores keyword batches.
type Service struct {
	store    KeywordStore
	retryCfg retry.Config
	logger   *zap.Logger
}

// New creates a scoring service.
func New(store KeywordStore, retryCfg retry.Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, retryCfg: retryCfg, logger: logger}
}

// ScoreKeywords looks up market metrics for the given texts in one batched
// query and annotates each with the opportunity formula, sorted by
// descending opportunity score. Keywords without stored metrics are
// returned unscored at the end, in input order.
func (s *Service) ScoreKeywords(ctx context.Context, texts []string) ([]domain.ScoredKeyword, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var records []domain.KeywordRecord
	err := retry.Do(ctx, s.retryCfg, func(ctx context.Context) error {
		var err error
		records, err = s.store.LookupByText(ctx, texts)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("lookup metrics: %w", err)
	}

	byKey := make(map[string]domain.KeywordRecord, len(records))
	for _, r := range records {
		byKey[r.NormalizedKey] = r
	}

	var scored, unscored []domain.ScoredKeyword
	for _, text := range texts {
		rec, ok := byKey[domain.NormalizeKeyword(text)]
		if !ok || rec.Metrics == nil {
			unscored = append(unscored, domain.ScoredKeyword{Text: text})
			continue
		}
		m := opportunity.Score(*rec.Metrics)
		scored = append(scored, domain.ScoredKeyword{
			Text:        text,
			Metrics:     rec.Metrics,
			Opportunity: &m,
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Opportunity.OpportunityScore > scored[j].Opportunity.OpportunityScore
	})

	s.logger.Debug("keywords scored",
		zap.Int("requested", len(texts)),
		zap.Int("scored", len(scored)),
		zap.Int("unscored", len(unscored)))

	return append(scored, unscored...), nil
}

// PersistMetrics upserts market metrics for keywords, typically after a
// metrics-provider refresh. The upsert is idempotent.
func (s *Service) PersistMetrics(ctx context.Context, records []domain.KeywordRecord) error {
	if len(records) == 0 {
		return nil
	}
	err := retry.Do(ctx, s.retryCfg, func(ctx context.Context) error {
		return s.store.Persist(ctx, records)
	})
	if err != nil {
		return fmt.Errorf("persist metrics: %w", err)
	}
	return nil
}
