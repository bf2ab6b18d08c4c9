package domain

import "strings"

// KeyPrefix namespaces all kwscout keys in the store.
const KeyPrefix = "kwscout:"

// MonthlyPoint is one entry of a keyword's volume time series.
type MonthlyPoint struct {
	Period string `json:"period"`
	Volume int64  `json:"volume"`
}

// MarketMetrics holds the advertising economics of a keyword.
// Competition is an index in [0,100]; CPC and TopPageBid are currency values.
type MarketMetrics struct {
	Volume        int64          `json:"volume"`
	Competition   int            `json:"competition"`
	CPC           float64        `json:"cpc"`
	TopPageBid    float64        `json:"top_page_bid"`
	GrowthYoY     float64        `json:"growth_yoy"`
	MonthlySeries []MonthlyPoint `json:"monthly_series,omitempty"`
}

// KeywordRecord is one known keyword with its embedding and optional market data.
// Records are immutable once loaded into the index; NormalizedKey is the
// identity for existence checks, Text preserves display casing.
type KeywordRecord struct {
	Text          string         `json:"text"`
	NormalizedKey string         `json:"normalized_key"`
	Embedding     []float32      `json:"embedding,omitempty"`
	Metrics       *MarketMetrics `json:"metrics,omitempty"`
}

// ScoredKeyword is a discovered keyword annotated with opportunity metrics.
type ScoredKeyword struct {
	Text        string              `json:"text"`
	Metrics     *MarketMetrics      `json:"metrics,omitempty"`
	Opportunity *OpportunityMetrics `json:"opportunity,omitempty"`
}

// OpportunityMetrics is the derived, stateless scoring output. It is always
// reproducible from a record's market metrics and never authoritative.
type OpportunityMetrics struct {
	Volatility       float64 `json:"volatility"`
	TrendStrength    float64 `json:"trend_strength"`
	BidEfficiency    float64 `json:"bid_efficiency"`
	TAC              float64 `json:"tac"`
	SAC              float64 `json:"sac"`
	OpportunityScore float64 `json:"opportunity_score"`
}

// NormalizeKeyword produces the comparison identity for a phrase:
// trimmed, lowercased, inner whitespace collapsed to single spaces.
// Inflected forms remain distinct ("tool" != "tools").
func NormalizeKeyword(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}
