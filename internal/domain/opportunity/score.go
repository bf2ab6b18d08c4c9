// Package opportunity computes the composite commercial-attractiveness score
// of a keyword from its volume time series and advertising economics.
// All functions are pure; outputs are rounded for display stability only
// and must not feed back into further computation.
package opportunity

import (
	"math"

	"github.com/marketlens/kwscout/internal/domain"
)

const (
	ratioPrecision    = 4
	currencyPrecision = 2
)

// Score derives the full opportunity metrics from market data.
func Score(m domain.MarketMetrics) domain.OpportunityMetrics {
	volatility := Volatility(m.MonthlySeries)
	trend := TrendStrength(m.GrowthYoY, volatility)
	bidEff := BidEfficiency(m.TopPageBid, m.CPC)

	tac := float64(m.Volume) * m.CPC
	// 101 keeps the factor strictly positive at competition=100 so the log
	// term stays defined whenever tac > 0.
	sac := tac * float64(101-m.Competition) / 100

	var score float64
	if sac > 0 {
		logTerm := math.Log10(sac)
		score = logTerm * logTerm * math.Sqrt(trend) * math.Sqrt(bidEff)
	}

	return domain.OpportunityMetrics{
		Volatility:       round(volatility, ratioPrecision),
		TrendStrength:    round(trend, ratioPrecision),
		BidEfficiency:    round(bidEff, ratioPrecision),
		TAC:              round(tac, currencyPrecision),
		SAC:              round(sac, currencyPrecision),
		OpportunityScore: round(score, ratioPrecision),
	}
}

// Volatility measures mean relative deviation of the series from an
// exponential curve fit through its first and last points. Returns 0 for
// fewer than 2 points or a zero first point.
func Volatility(series []domain.MonthlyPoint) float64 {
	if len(series) < 2 {
		return 0
	}
	first := float64(series[0].Volume)
	if first == 0 {
		return 0
	}
	last := float64(series[len(series)-1].Volume)
	growthFactor := last / first

	var sum float64
	var counted int
	for i, p := range series {
		exponent := float64(i) / float64(len(series)-1)
		predicted := first * math.Pow(growthFactor, exponent)
		if predicted == 0 {
			continue
		}
		sum += math.Abs(float64(p.Volume)-predicted) / predicted
		counted++
	}
	if counted == 0 {
		return 0
	}
	return sum / float64(counted)
}

// TrendStrength transforms YoY growth into a non-negative scale, damped by
// volatility. Dividing by 1+volatility avoids the blow-up a raw division by
// volatility would produce near zero.
func TrendStrength(growthYoY, volatility float64) float64 {
	base := math.Max(0, 1+growthYoY/100)
	return base / (1 + volatility)
}

// BidEfficiency is topPageBid/cpc, defined as 0 when cpc is 0.
func BidEfficiency(topPageBid, cpc float64) float64 {
	if cpc == 0 {
		return 0
	}
	return topPageBid / cpc
}

func round(v float64, places int) float64 {
	factor := math.Pow(10, float64(places))
	return math.Round(v*factor) / factor
}
