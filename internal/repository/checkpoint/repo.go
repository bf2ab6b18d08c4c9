// Package checkpoint round-trips CollectionProgress so interrupted discovery
// runs resume without redoing completed seeds.
package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/marketlens/kwscout/internal/db"
	"github.com/marketlens/kwscout/internal/domain"
)

var keyPrefix = domain.KeyPrefix + "run:"

// store is the consumer interface for checkpoint persistence (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Repo persists checkpoints as JSON documents keyed by run ID.
type Repo struct {
	store store
	ttl   time.Duration
}

// New creates a checkpoint repository. ttl 0 keeps checkpoints forever;
// otherwise each Save refreshes the expiry.
func New(s store, ttl time.Duration) *Repo {
	return &Repo{store: s, ttl: ttl}
}

// Save writes the full (non-truncated) checkpoint.
func (r *Repo) Save(ctx context.Context, p *domain.CollectionProgress) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode checkpoint %s: %w", p.RunID, err)
	}
	key := keyPrefix + p.RunID
	if r.ttl > 0 {
		err = r.store.SetWithTTL(ctx, key, data, r.ttl)
	} else {
		err = r.store.Set(ctx, key, data)
	}
	if err != nil {
		return fmt.Errorf("save checkpoint %s: %w", p.RunID, err)
	}
	return nil
}

// Load restores a checkpoint by run ID.
func (r *Repo) Load(ctx context.Context, runID string) (*domain.CollectionProgress, error) {
	data, err := r.store.Get(ctx, keyPrefix+runID)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return nil, fmt.Errorf("run %s: %w", runID, domain.ErrRunNotFound)
		}
		return nil, fmt.Errorf("load checkpoint %s: %w", runID, err)
	}

	var p domain.CollectionProgress
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode checkpoint %s: %w", runID, err)
	}
	if p.ProcessedSeeds == nil {
		p.ProcessedSeeds = make(map[string]bool)
	}
	if p.SeedSimilarities == nil {
		p.SeedSimilarities = make(map[string]float64)
	}
	return &p, nil
}
