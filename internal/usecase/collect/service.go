// Package collect drives the keyword discovery pipeline: ranked seeds are
// expanded, deduplicated, and existence-checked across bounded-concurrency
// batches until the target count of new keywords is reached or seeds run out.
package collect

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/marketlens/kwscout/internal/dedupe"
	"github.com/marketlens/kwscout/internal/domain"
	"github.com/marketlens/kwscout/internal/index"
	"github.com/marketlens/kwscout/internal/metrics"
	"github.com/marketlens/kwscout/internal/retry"
)

// ProgressFunc receives throttled progress snapshots during a run.
type ProgressFunc func(domain.Snapshot)

// Options tunes the pipeline.
type Options struct {
	SeedBatchSize      int           // seeds in flight at once
	SeedTimeout        time.Duration // per-seed work deadline
	KeywordsPerSeed    int           // expansion batch size per seed
	SelectionOvershoot int           // min excess before similarity down-select
	ProgressInterval   time.Duration // min gap between progress callbacks
	Retry              retry.Config
}

func (o Options) withDefaults() Options {
	if o.SeedBatchSize <= 0 {
		o.SeedBatchSize = 3
	}
	if o.SeedTimeout <= 0 {
		o.SeedTimeout = 60 * time.Second
	}
	if o.KeywordsPerSeed <= 0 {
		o.KeywordsPerSeed = 20
	}
	if o.SelectionOvershoot <= 0 {
		o.SelectionOvershoot = 10
	}
	if o.ProgressInterval <= 0 {
		o.ProgressInterval = time.Second
	}
	return o
}

// Service orchestrates one discovery run. All mutation of the shared
// checkpoint happens on the orchestrator goroutine after a seed's work
// fully resolves, applied in the batch's original seed order.
type Service struct {
	seeds       SeedGenerator
	expander    Expander
	checker     Checker
	checkpoints CheckpointStore
	embed       Embedder
	opts        Options
	logger      *zap.Logger
}

// Params starts a fresh run.
type Params struct {
	RunID  string
	Pitch  string
	Facets domain.Facets
	Target int
}

// New creates a collection orchestrator.
func New(
	seeds SeedGenerator, expander Expander, checker Checker,
	checkpoints CheckpointStore, embed Embedder,
	opts Options, logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		seeds:       seeds,
		expander:    expander,
		checker:     checker,
		checkpoints: checkpoints,
		embed:       embed,
		opts:        opts.withDefaults(),
		logger:      logger,
	}
}

// Run executes a full discovery run from scratch. Partial results (fewer
// than the target) are a valid terminal state when seeds run out.
func (s *Service) Run(ctx context.Context, p Params, onProgress ProgressFunc) (*domain.CollectionProgress, error) {
	progress := domain.NewCollectionProgress(p.RunID, p.Pitch, p.Target)
	return s.run(ctx, progress, p.Facets, onProgress)
}

// Resume reloads a checkpoint and re-enters the pipeline at the first seed
// not yet processed. Completed runs are returned unchanged.
func (s *Service) Resume(ctx context.Context, runID string, onProgress ProgressFunc) (*domain.CollectionProgress, error) {
	progress, err := s.checkpoints.Load(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	if progress.Stage == domain.StageComplete {
		return progress, nil
	}
	progress.Error = ""
	return s.run(ctx, progress, domain.Facets{}, onProgress)
}

func (s *Service) run(
	ctx context.Context, progress *domain.CollectionProgress,
	facets domain.Facets, onProgress ProgressFunc,
) (*domain.CollectionProgress, error) {
	start := time.Now()
	defer func() {
		metrics.PipelineRunDuration.Observe(time.Since(start).Seconds())
	}()

	reporter := newReporter(onProgress, s.opts.ProgressInterval)

	if len(progress.Seeds) == 0 {
		if err := s.generateSeeds(ctx, progress, facets, reporter); err != nil {
			return s.fail(ctx, progress, err)
		}
	}

	progress.Stage = domain.StageGeneratingKeywords
	s.saveCheckpoint(ctx, progress)
	reporter.report(progress, true)

	if err := s.collectKeywords(ctx, progress, reporter); err != nil {
		return s.fail(ctx, progress, err)
	}

	if progress.CountNew > progress.Target {
		if err := s.downSelect(ctx, progress, reporter); err != nil {
			return s.fail(ctx, progress, err)
		}
	}

	progress.Stage = domain.StageComplete
	s.saveCheckpoint(ctx, progress)
	reporter.report(progress, true)
	metrics.PipelineRunsTotal.WithLabelValues(string(domain.StageComplete)).Inc()

	s.logger.Info("discovery run complete",
		zap.String("run_id", progress.RunID),
		zap.Int("new_keywords", progress.CountNew),
		zap.Int("target", progress.Target),
		zap.Int("failed_seeds", len(progress.FailedSeeds)))

	return progress, nil
}

// generateSeeds runs the foundational seed step. Failure here is fatal to
// the run: there is nothing to expand without seeds.
func (s *Service) generateSeeds(
	ctx context.Context, progress *domain.CollectionProgress,
	facets domain.Facets, reporter *reporter,
) error {
	progress.Stage = domain.StageGeneratingSeeds
	s.saveCheckpoint(ctx, progress)
	reporter.report(progress, true)

	candidates, err := s.seeds.GenerateSeeds(ctx, progress.Pitch, facets)
	if err != nil {
		return err
	}

	progress.Seeds = make([]string, len(candidates))
	for i, c := range candidates {
		progress.Seeds[i] = c.Seed
		progress.SeedSimilarities[c.Seed] = c.SimilarityToPitch
	}
	return nil
}

// seedResult carries one seed's resolved work back to the orchestrator.
type seedResult struct {
	seed      string
	generated int
	batchDups int
	existing  []string
	fresh     []string
	err       error
}

// collectKeywords processes seeds in fixed-size concurrent batches. Results
// are applied in original seed order after the whole batch resolves, so the
// checkpoint and the global dedupe set have a single writer.
func (s *Service) collectKeywords(
	ctx context.Context, progress *domain.CollectionProgress, reporter *reporter,
) error {
	seen := make(map[string]struct{}, len(progress.NewKeywords))
	for _, kw := range progress.NewKeywords {
		seen[domain.NormalizeKeyword(kw)] = struct{}{}
	}

	for progress.CountNew < progress.Target {
		batch := s.nextBatch(progress)
		if len(batch) == 0 {
			break
		}

		results := make([]seedResult, len(batch))

		g, gctx := errgroup.WithContext(ctx)
		for i, seed := range batch {
			i, seed := i, seed
			g.Go(func() error {
				results[i] = s.processSeed(gctx, seed)
				return nil
			})
		}
		_ = g.Wait() // seed failures are recorded per slot, never group errors

		if err := ctx.Err(); err != nil {
			return fmt.Errorf("run canceled: %w", err)
		}

		for _, r := range results {
			s.applySeedResult(progress, seen, r)
		}

		s.saveCheckpoint(ctx, progress)
		reporter.report(progress, false)
	}
	return nil
}

// nextBatch picks the next unprocessed seeds, bounded by the batch width.
func (s *Service) nextBatch(progress *domain.CollectionProgress) []string {
	var batch []string
	for _, seed := range progress.Seeds {
		if progress.ProcessedSeeds[seed] {
			continue
		}
		batch = append(batch, seed)
		if len(batch) == s.opts.SeedBatchSize {
			break
		}
	}
	return batch
}

// processSeed runs expand → dedupe → check for one seed under its own
// timeout. Expansion is wrapped in bounded retry; the checker retries
// internally. The result is self-contained so the orchestrator can apply
// it without touching shared state here.
func (s *Service) processSeed(ctx context.Context, seed string) seedResult {
	ctx, cancel := context.WithTimeout(ctx, s.opts.SeedTimeout)
	defer cancel()

	res := seedResult{seed: seed}

	var raw []string
	err := retry.Do(ctx, s.opts.Retry, func(ctx context.Context) error {
		var err error
		raw, err = s.expander.Expand(ctx, seed, s.opts.KeywordsPerSeed)
		return err
	})
	if err != nil {
		res.err = &domain.SeedFailure{Seed: seed, Err: fmt.Errorf("expand: %w", err)}
		return res
	}

	local := dedupe.Dedupe(raw)
	res.generated = len(raw)
	res.batchDups = len(raw) - len(local)

	check, err := s.checker.Check(ctx, local)
	if err != nil {
		res.err = &domain.SeedFailure{Seed: seed, Err: fmt.Errorf("check: %w", err)}
		return res
	}

	res.existing = check.Existing
	res.fresh = check.New
	return res
}

// applySeedResult folds one resolved seed into the checkpoint. Runs on the
// orchestrator goroutine only.
func (s *Service) applySeedResult(
	progress *domain.CollectionProgress, seen map[string]struct{}, r seedResult,
) {
	progress.MarkProcessed(r.seed)

	if r.err != nil {
		progress.FailedSeeds = append(progress.FailedSeeds, r.seed)
		metrics.PipelineSeedsTotal.WithLabelValues("failed").Inc()
		s.logger.Warn("seed failed", zap.String("seed", r.seed), zap.Error(r.err))
		return
	}
	metrics.PipelineSeedsTotal.WithLabelValues("ok").Inc()

	progress.CountGenerated += r.generated
	progress.CountDuplicates += r.batchDups
	progress.CountExisting += len(r.existing)
	metrics.PipelineKeywordsTotal.WithLabelValues("generated").Add(float64(r.generated))
	metrics.PipelineKeywordsTotal.WithLabelValues("duplicate").Add(float64(r.batchDups))
	metrics.PipelineKeywordsTotal.WithLabelValues("existing").Add(float64(len(r.existing)))

	for _, kw := range r.fresh {
		key := domain.NormalizeKeyword(kw)
		if _, dup := seen[key]; dup {
			progress.CountDuplicates++
			metrics.PipelineKeywordsTotal.WithLabelValues("duplicate").Inc()
			continue
		}
		seen[key] = struct{}{}
		progress.NewKeywords = append(progress.NewKeywords, kw)
		progress.CountNew++
		metrics.PipelineKeywordsTotal.WithLabelValues("new").Inc()
	}
}

// downSelect trims an overshoot back to the target. Large excesses with a
// usable pitch are ranked by embedding similarity; marginal overshoot keeps
// collection order to avoid paying for similarity scoring.
func (s *Service) downSelect(
	ctx context.Context, progress *domain.CollectionProgress, reporter *reporter,
) error {
	progress.Stage = domain.StageSelectingTop
	s.saveCheckpoint(ctx, progress)
	reporter.report(progress, true)

	excess := progress.CountNew - progress.Target
	if strings.TrimSpace(progress.Pitch) != "" && excess >= s.opts.SelectionOvershoot {
		kept, err := s.selectBySimilarity(ctx, progress.Pitch, progress.NewKeywords, progress.Target)
		if err != nil {
			return fmt.Errorf("similarity selection: %w", err)
		}
		progress.NewKeywords = kept
	} else {
		progress.NewKeywords = progress.NewKeywords[:progress.Target]
	}
	progress.CountNew = len(progress.NewKeywords)
	return nil
}

// selectBySimilarity keeps the target keywords most similar to the pitch.
func (s *Service) selectBySimilarity(
	ctx context.Context, pitch string, keywords []string, target int,
) ([]string, error) {
	var pitchVec []float32
	err := retry.Do(ctx, s.opts.Retry, func(ctx context.Context) error {
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
	err = retry.Do(ctx, s.opts.Retry, func(ctx context.Context) error {
		var err error
		batch, err = domain.EmbedBatch(ctx, s.embed, keywords)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("embed keywords: %w", err)
	}

	type scored struct {
		keyword    string
		similarity float64
	}
	ranked := make([]scored, len(keywords))
	for i, kw := range keywords {
		ranked[i] = scored{
			keyword:    kw,
			similarity: index.Dot(pitchVec, index.Normalize(batch.Embeddings[i])),
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].similarity > ranked[j].similarity
	})

	kept := make([]string, target)
	for i := 0; i < target; i++ {
		kept[i] = ranked[i].keyword
	}
	return kept, nil
}

// fail records a terminal error, keeping the last good checkpoint state so
// resume can re-enter from before the fatal point.
func (s *Service) fail(
	ctx context.Context, progress *domain.CollectionProgress, err error,
) (*domain.CollectionProgress, error) {
	progress.Stage = domain.StageError
	progress.Error = err.Error()
	s.saveCheckpoint(ctx, progress)
	metrics.PipelineRunsTotal.WithLabelValues(string(domain.StageError)).Inc()

	s.logger.Error("discovery run failed",
		zap.String("run_id", progress.RunID),
		zap.Error(err))

	return progress, err
}

// saveCheckpoint persists the run state. Checkpointing is best-effort:
// a failed save costs resume granularity, not the run.
func (s *Service) saveCheckpoint(ctx context.Context, progress *domain.CollectionProgress) {
	if err := s.checkpoints.Save(ctx, progress); err != nil {
		s.logger.Warn("checkpoint save failed",
			zap.String("run_id", progress.RunID),
			zap.Error(err))
	}
}

// reporter throttles progress callbacks. Stage transitions always report.
type reporter struct {
	fn       ProgressFunc
	interval time.Duration
	last     time.Time
}

func newReporter(fn ProgressFunc, interval time.Duration) *reporter {
	return &reporter{fn: fn, interval: interval}
}

func (r *reporter) report(progress *domain.CollectionProgress, force bool) {
	if r.fn == nil {
		return
	}
	now := time.Now()
	if !force && now.Sub(r.last) < r.interval {
		return
	}
	r.last = now
	r.fn(progress.Snapshot())
}
