package domain

// Stage is the pipeline state of a discovery run.
type Stage string

// Pipeline stages. Error is reachable from any stage.
const (
	StageInitializing       Stage = "initializing"
	StageGeneratingSeeds    Stage = "generating-seeds"
	StageGeneratingKeywords Stage = "generating-keywords"
	StageSelectingTop       Stage = "selecting-top-keywords"
	StageComplete           Stage = "complete"
	StageError              Stage = "error"
)

// DisplayListLimit bounds the truncated list views in snapshots.
const DisplayListLimit = 50

// CollectionProgress is the resumable checkpoint of one discovery run.
// It is created at pipeline start, mutated only by the orchestrator
// (single writer), and round-trips through the checkpoint store to
// reproduce the same resume point.
//
// Invariants: ProcessedSeeds is a subset of Seeds;
// len(NewKeywords) == CountNew.
type CollectionProgress struct {
	RunID            string             `json:"run_id"`
	Pitch            string             `json:"pitch"`
	Target           int                `json:"target"`
	Stage            Stage              `json:"stage"`
	Seeds            []string           `json:"seeds"`
	ProcessedSeeds   map[string]bool    `json:"processed_seeds"`
	SeedSimilarities map[string]float64 `json:"seed_similarities"`
	CountGenerated   int                `json:"count_generated"`
	CountDuplicates  int                `json:"count_duplicates"`
	CountExisting    int                `json:"count_existing"`
	CountNew         int                `json:"count_new"`
	NewKeywords      []string           `json:"new_keywords"`
	FailedSeeds      []string           `json:"failed_seeds,omitempty"`
	Error            string             `json:"error,omitempty"`
}

// NewCollectionProgress creates a fresh checkpoint in the initializing stage.
func NewCollectionProgress(runID, pitch string, target int) *CollectionProgress {
	return &CollectionProgress{
		RunID:            runID,
		Pitch:            pitch,
		Target:           target,
		Stage:            StageInitializing,
		ProcessedSeeds:   make(map[string]bool),
		SeedSimilarities: make(map[string]float64),
	}
}

// MarkProcessed records a seed as done regardless of outcome, so resume
// never redoes it.
func (p *CollectionProgress) MarkProcessed(seed string) {
	p.ProcessedSeeds[seed] = true
}

// NextSeedIndex returns the index of the first seed not yet processed.
func (p *CollectionProgress) NextSeedIndex() int {
	for i, s := range p.Seeds {
		if !p.ProcessedSeeds[s] {
			return i
		}
	}
	return len(p.Seeds)
}

// Snapshot is the bounded view of a run for progress reporting and display.
// Working lists are unbounded in CollectionProgress; snapshots truncate them.
type Snapshot struct {
	RunID           string   `json:"run_id"`
	Stage           Stage    `json:"stage"`
	SeedsTotal      int      `json:"seeds_total"`
	SeedsProcessed  int      `json:"seeds_processed"`
	CountGenerated  int      `json:"count_generated"`
	CountDuplicates int      `json:"count_duplicates"`
	CountExisting   int      `json:"count_existing"`
	CountNew        int      `json:"count_new"`
	Target          int      `json:"target"`
	RecentKeywords  []string `json:"recent_keywords,omitempty"`
	Error           string   `json:"error,omitempty"`
}

// Snapshot produces the truncated display view of the checkpoint.
func (p *CollectionProgress) Snapshot() Snapshot {
	recent := p.NewKeywords
	if len(recent) > DisplayListLimit {
		recent = recent[len(recent)-DisplayListLimit:]
	}
	// Copy so snapshot consumers never alias the working list.
	recentCopy := make([]string, len(recent))
	copy(recentCopy, recent)

	return Snapshot{
		RunID:           p.RunID,
		Stage:           p.Stage,
		SeedsTotal:      len(p.Seeds),
		SeedsProcessed:  len(p.ProcessedSeeds),
		CountGenerated:  p.CountGenerated,
		CountDuplicates: p.CountDuplicates,
		CountExisting:   p.CountExisting,
		CountNew:        p.CountNew,
		Target:          p.Target,
		RecentKeywords:  recentCopy,
		Error:           p.Error,
	}
}
