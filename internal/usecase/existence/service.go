// Package existence classifies candidate phrases into already-known vs new.
// Tier one is the in-process embedding index (exact match, cheap, parallel);
// tier two is a single batched lookup against the persisted keyword store.
package existence

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/marketlens/kwscout/internal/domain"
	"github.com/marketlens/kwscout/internal/retry"
)

// Result partitions a checked batch. Every input phrase appears in exactly
// one of the two lists; New preserves input order.
type Result struct {
	Existing []string
	New      []string
}

// Service checks candidate phrases against the index and the keyword store.
type Service struct {
	index    IndexChecker
	keywords KeywordReader
	retryCfg retry.Config
	logger   *zap.Logger
}

// New creates an existence checking service.
func New(index IndexChecker, keywords KeywordReader, retryCfg retry.Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{index: index, keywords: keywords, retryCfg: retryCfg, logger: logger}
}

// Check classifies phrases as existing or new. Index checks run in parallel,
// each wrapped in bounded retry; the store is consulted once for the
// remainder with a single batched query.
func (s *Service) Check(ctx context.Context, phrases []string) (Result, error) {
	if len(phrases) == 0 {
		return Result{}, nil
	}

	inIndex := make([]bool, len(phrases))

	g, gctx := errgroup.WithContext(ctx)
	for i, p := range phrases {
		i, p := i, p
		g.Go(func() error {
			var found bool
			err := retry.Do(gctx, s.retryCfg, func(ctx context.Context) error {
				var err error
				found, err = s.index.Exists(ctx, p, 0, true)
				return err
			})
			if err != nil {
				return fmt.Errorf("index check %q: %w", p, err)
			}
			inIndex[i] = found
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	var res Result
	var remainder []string
	for i, p := range phrases {
		if inIndex[i] {
			res.Existing = append(res.Existing, p)
		} else {
			remainder = append(remainder, p)
		}
	}

	if len(remainder) == 0 {
		return res, nil
	}

	var records []domain.KeywordRecord
	err := retry.Do(ctx, s.retryCfg, func(ctx context.Context) error {
		var err error
		records, err = s.keywords.LookupByText(ctx, remainder)
		return err
	})
	if err != nil {
		return Result{}, fmt.Errorf("store lookup: %w", err)
	}

	known := make(map[string]struct{}, len(records))
	for _, r := range records {
		known[r.NormalizedKey] = struct{}{}
	}

	for _, p := range remainder {
		if _, ok := known[domain.NormalizeKeyword(p)]; ok {
			res.Existing = append(res.Existing, p)
		} else {
			res.New = append(res.New, p)
		}
	}

	s.logger.Debug("existence check",
		zap.Int("checked", len(phrases)),
		zap.Int("existing", len(res.Existing)),
		zap.Int("new", len(res.New)))

	return res, nil
}
