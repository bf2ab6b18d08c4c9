package kwscout

// Facets describe the product from several angles. All fields are optional;
// non-empty ones are folded into the seed generation prompt.
type Facets struct {
	Topics      []string `json:"topics,omitempty"`
	Personas    []string `json:"personas,omitempty"`
	PainPoints  []string `json:"pain_points,omitempty"`
	Features    []string `json:"features,omitempty"`
	Competitors []string `json:"competitors,omitempty"`
}

// DiscoveryRequest starts a new discovery run.
type DiscoveryRequest struct {
	Pitch  string `json:"pitch"`
	Facets Facets `json:"facets"`
	Target int    `json:"target,omitempty"`
}

// StartResult is the accepted-run acknowledgement.
type StartResult struct {
	RunID string `json:"run_id"`
	Stage Stage  `json:"stage"`
}

// Stage is a pipeline stage name.
type Stage string

// Pipeline stages in execution order. StageComplete and StageError are
// terminal.
const (
	StageInitializing       Stage = "initializing"
	StageGeneratingSeeds    Stage = "generating-seeds"
	StageGeneratingKeywords Stage = "generating-keywords"
	StageSelectingTop       Stage = "selecting-top-keywords"
	StageComplete           Stage = "complete"
	StageError              Stage = "error"
)

// Terminal reports whether the stage is a terminal one.
func (s Stage) Terminal() bool {
	return s == StageComplete || s == StageError
}

// Progress is a point-in-time view of a discovery run.
type Progress struct {
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

// MonthlyPoint is one month of search volume.
type MonthlyPoint struct {
	Period string `json:"period"`
	Volume int64  `json:"volume"`
}

// MarketMetrics holds the market data a keyword is scored from.
type MarketMetrics struct {
	Volume        int64          `json:"volume"`
	Competition   int            `json:"competition"`
	CPC           float64        `json:"cpc"`
	TopPageBid    float64        `json:"top_page_bid"`
	GrowthYoY     float64        `json:"growth_yoy"`
	MonthlySeries []MonthlyPoint `json:"monthly_series,omitempty"`
}

// OpportunityMetrics are the derived scoring components.
type OpportunityMetrics struct {
	Volatility       float64 `json:"volatility"`
	TrendStrength    float64 `json:"trend_strength"`
	BidEfficiency    float64 `json:"bid_efficiency"`
	TAC              float64 `json:"tac"`
	SAC              float64 `json:"sac"`
	OpportunityScore float64 `json:"opportunity_score"`
}

// ScoredKeyword is a discovered keyword with optional metrics and score.
// Keywords without market data carry nil Metrics and Opportunity.
type ScoredKeyword struct {
	Text        string              `json:"text"`
	Metrics     *MarketMetrics      `json:"metrics,omitempty"`
	Opportunity *OpportunityMetrics `json:"opportunity,omitempty"`
}

// KeywordsResult is the scored keyword list of a completed run.
type KeywordsResult struct {
	RunID    string          `json:"run_id"`
	Stage    Stage           `json:"stage"`
	Keywords []ScoredKeyword `json:"keywords"`
}

// HealthReport is the service health summary.
type HealthReport struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	IndexSize int               `json:"index_size"`
}
