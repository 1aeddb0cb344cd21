package features

import (
	"math"
	"math/rand"
	"time"
)

// FundingFeatures holds funding rate features (slots 81-88)
type FundingFeatures struct {
	FundingCurrent   float64 `json:"funding_current"`
	FundingPredicted float64 `json:"funding_predicted"`
	FundingTrend8h   float64 `json:"funding_trend_8h"`
	FundingTrend24h  float64 `json:"funding_trend_24h"`
	FundingExtreme   bool    `json:"funding_extreme"` // |rate| > 0.1%
	FundingVsPriceDiv float64 `json:"funding_vs_price_div"`
	TimeToFunding    int     `json:"time_to_funding"` // minutes
	FundingPercentile float64 `json:"funding_percentile"`
}

// fundingExtremeThreshold marks a funding rate as crowded positioning
const fundingExtremeThreshold = 0.001

// maxFundingHistory keeps roughly 30 days of 8-hour funding settlements
const maxFundingHistory = 90

// FundingAnalyzer computes funding features and keeps rolling funding and
// price history for percentile and divergence.
type FundingAnalyzer struct {
	fundingHistory []float64
	priceAtFunding []float64
}

// NewFundingAnalyzer creates a funding analyzer with empty history
func NewFundingAnalyzer() *FundingAnalyzer {
	return &FundingAnalyzer{}
}

// Calculate computes funding features from the current funding snapshot
func (a *FundingAnalyzer) Calculate(currentFunding float64, nextFundingTime time.Time, currentPrice float64) FundingFeatures {
	f := FundingFeatures{FundingPercentile: 50.0}

	f.FundingCurrent = currentFunding
	f.FundingPredicted = currentFunding

	a.fundingHistory = append(a.fundingHistory, currentFunding)
	a.priceAtFunding = append(a.priceAtFunding, currentPrice)
	if len(a.fundingHistory) > maxFundingHistory {
		a.fundingHistory = a.fundingHistory[len(a.fundingHistory)-maxFundingHistory:]
		a.priceAtFunding = a.priceAtFunding[len(a.priceAtFunding)-maxFundingHistory:]
	}

	f.FundingExtreme = math.Abs(currentFunding) > fundingExtremeThreshold

	now := time.Now().UTC()
	if nextFundingTime.After(now) {
		f.TimeToFunding = int(nextFundingTime.Sub(now).Minutes())
	} else {
		// Funding settles every 8 hours at 00:00, 08:00, 16:00 UTC
		hoursUntil := 8 - now.Hour()%8
		if hoursUntil == 8 {
			hoursUntil = 0
		}
		f.TimeToFunding = hoursUntil*60 - now.Minute()
	}

	if len(a.fundingHistory) > 1 {
		f.FundingPercentile = percentile(currentFunding, a.fundingHistory)
	}

	// 8h trend is the change across the last 3 settlements, 24h across the
	// last 4
	f.FundingTrend8h = a.trend(3)
	f.FundingTrend24h = a.trend(4)

	f.FundingVsPriceDiv = a.divergence()

	return f
}

func (a *FundingAnalyzer) trend(window int) float64 {
	if len(a.fundingHistory) < window {
		return 0
	}
	recent := a.fundingHistory[len(a.fundingHistory)-window:]
	return recent[len(recent)-1] - recent[0]
}

// divergence is signed when the 3-settlement funding trend and price trend
// disagree: positive means funding rising into falling price.
func (a *FundingAnalyzer) divergence() float64 {
	if len(a.fundingHistory) < 3 || len(a.priceAtFunding) < 3 {
		return 0
	}

	recentFunding := a.fundingHistory[len(a.fundingHistory)-3:]
	recentPrices := a.priceAtFunding[len(a.priceAtFunding)-3:]

	fundingChange := recentFunding[2] - recentFunding[0]
	fundingBullish := fundingChange > 0

	if recentPrices[0] == 0 {
		return 0
	}
	priceChange := (recentPrices[2] - recentPrices[0]) / recentPrices[0]
	priceBullish := priceChange > 0

	if fundingBullish == priceBullish {
		return 0
	}

	divergence := math.Abs(fundingChange*1000) + math.Abs(priceChange*100)
	if fundingBullish {
		return divergence
	}
	return -divergence
}

// Synthetic returns plausible funding features for paper trading without a
// live funding feed.
func (a *FundingAnalyzer) Synthetic(rng *rand.Rand) FundingFeatures {
	f := FundingFeatures{}
	f.FundingCurrent = uniform(rng, -0.001, 0.001)
	f.FundingPredicted = f.FundingCurrent + uniform(rng, -0.0001, 0.0001)
	f.FundingTrend8h = uniform(rng, -0.0003, 0.0003)
	f.FundingTrend24h = uniform(rng, -0.0005, 0.0005)
	f.FundingExtreme = math.Abs(f.FundingCurrent) > fundingExtremeThreshold
	f.TimeToFunding = rng.Intn(481)
	f.FundingPercentile = uniform(rng, 30, 70)
	f.FundingVsPriceDiv = uniform(rng, -0.5, 0.5)
	return f
}
