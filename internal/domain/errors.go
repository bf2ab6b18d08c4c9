package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInitialization signals that the embedding index failed to load.
	// Fatal; no partial state is retained and Initialize may be retried.
	ErrInitialization = errors.New("index initialization failed")
	// ErrNotInitialized signals a query against an index before successful Initialize.
	ErrNotInitialized = errors.New("index not initialized")
	// ErrInconsistentState signals a record/vector count divergence in the index.
	ErrInconsistentState = errors.New("index state inconsistent")
	// ErrEmptyPitch signals a blank pitch from the caller.
	ErrEmptyPitch = errors.New("pitch is empty")
	// ErrSeedGeneration signals that seed generation failed after retries.
	// Fatal to the run; keywords cannot be collected without seeds.
	ErrSeedGeneration = errors.New("seed generation failed")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrGenerationProviderError signals a text generation provider failure.
	ErrGenerationProviderError = errors.New("generation provider error")
	// ErrRunNotFound signals a missing discovery run.
	ErrRunNotFound = errors.New("run not found")
	// ErrRateLimited signals a rate limit hit at a provider.
	ErrRateLimited = errors.New("rate limited")
)

// SeedFailure records a per-seed failure that was isolated and skipped.
// It never aborts the run.
type SeedFailure struct {
	Seed string
	Err  error
}

func (e *SeedFailure) Error() string {
	return fmt.Sprintf("seed %q failed: %v", e.Seed, e.Err)
}

func (e *SeedFailure) Unwrap() error { return e.Err }
