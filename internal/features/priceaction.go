package features

import (
	"math"

	"github.com/coinpulse/signalengine/internal/exchange"
)

// PriceActionFeatures holds price structure features (slots 21-35)
type PriceActionFeatures struct {
	BodyPercent    float64 `json:"body_percent"`
	UpperWickRatio float64 `json:"upper_wick_ratio"`
	LowerWickRatio float64 `json:"lower_wick_ratio"`

	RangeExpansion   float64 `json:"range_expansion"`
	BreakoutStrength float64 `json:"breakout_strength"`

	SwingHighDist float64 `json:"swing_high_dist"`
	SwingLowDist  float64 `json:"swing_low_dist"`

	HHCount int `json:"hh_count"`
	LLCount int `json:"ll_count"`
	HLCount int `json:"hl_count"`
	LHCount int `json:"lh_count"`

	TrendStructure        int     `json:"trend_structure"` // 1 up, -1 down, 0 neutral
	ConsolidationBars     int     `json:"consolidation_bars"`
	VolatilityContraction bool    `json:"volatility_contraction"`
	KeyLevelDistance      float64 `json:"key_level_distance"`
}

type swingPoint struct {
	index int
	price float64
}

// findSwingPoints returns pivots that are the extreme of the surrounding
// lookback bars on both sides.
func findSwingPoints(highs, lows []float64, lookback int) (swingHighs, swingLows []swingPoint) {
	for i := lookback; i < len(highs)-lookback; i++ {
		isHigh := true
		isLow := true
		for j := i - lookback; j <= i+lookback; j++ {
			if highs[j] > highs[i] {
				isHigh = false
			}
			if lows[j] < lows[i] {
				isLow = false
			}
		}
		if isHigh {
			swingHighs = append(swingHighs, swingPoint{i, highs[i]})
		}
		if isLow {
			swingLows = append(swingLows, swingPoint{i, lows[i]})
		}
	}
	return swingHighs, swingLows
}

// analyzeMarketStructure counts higher-high/lower-high and higher-low/lower-low
// transitions over the most recent 10 swing pairs.
func analyzeMarketStructure(swingHighs, swingLows []swingPoint) (hh, ll, hl, lh int) {
	if len(swingHighs) >= 2 {
		limit := len(swingHighs)
		if limit > 10 {
			limit = 10
		}
		for i := 1; i < limit; i++ {
			if swingHighs[len(swingHighs)-i].price > swingHighs[len(swingHighs)-i-1].price {
				hh++
			} else {
				lh++
			}
		}
	}

	if len(swingLows) >= 2 {
		limit := len(swingLows)
		if limit > 10 {
			limit = 10
		}
		for i := 1; i < limit; i++ {
			if swingLows[len(swingLows)-i].price > swingLows[len(swingLows)-i-1].price {
				hl++
			} else {
				ll++
			}
		}
	}

	return hh, ll, hl, lh
}

// volatilityContraction reports whether the recent average range dropped
// below 70% of the preceding window's average.
func volatilityContraction(ranges []float64, period int) bool {
	if len(ranges) < period {
		return false
	}

	recent := ranges[len(ranges)-period:]

	var earlier []float64
	if len(ranges) >= period*2 {
		earlier = ranges[len(ranges)-period*2 : len(ranges)-period]
	} else {
		earlier = ranges[:period]
	}

	var recentSum, earlierSum float64
	for _, r := range recent {
		recentSum += r
	}
	for _, r := range earlier {
		earlierSum += r
	}

	avgRecent := recentSum / float64(len(recent))
	avgEarlier := earlierSum / float64(len(earlier))

	return avgRecent < avgEarlier*0.7
}

// supportResistance derives S/R levels from tight swing points over the last
// 50 bars, keeping up to 5 of each.
func supportResistance(candles []exchange.Candle) (support, resistance []float64) {
	const lookback = 50
	if len(candles) < lookback {
		return nil, nil
	}

	recent := candles[len(candles)-lookback:]
	highs := make([]float64, len(recent))
	lows := make([]float64, len(recent))
	for i, c := range recent {
		highs[i] = c.High
		lows[i] = c.Low
	}

	swingHighs, swingLows := findSwingPoints(highs, lows, 3)

	for _, sh := range lastN(swingHighs, 5) {
		resistance = append(resistance, sh.price)
	}
	for _, sl := range lastN(swingLows, 5) {
		support = append(support, sl.price)
	}
	return support, resistance
}

func lastN(points []swingPoint, n int) []swingPoint {
	if len(points) <= n {
		return points
	}
	return points[len(points)-n:]
}

// PriceActionAnalyzer computes price action features
type PriceActionAnalyzer struct{}

// NewPriceActionAnalyzer creates a price action analyzer
func NewPriceActionAnalyzer() *PriceActionAnalyzer {
	return &PriceActionAnalyzer{}
}

// Calculate computes all price action features from the given candles
func (a *PriceActionAnalyzer) Calculate(candles []exchange.Candle) PriceActionFeatures {
	var f PriceActionFeatures
	if len(candles) < 2 {
		return f
	}

	current := candles[len(candles)-1]

	if current.Range() > 0 {
		f.BodyPercent = current.Body() / current.Range()
		f.UpperWickRatio = current.UpperWick() / current.Range()
		f.LowerWickRatio = current.LowerWick() / current.Range()
	}

	// Range expansion vs 20-bar average
	avgRange := current.Range()
	if len(candles) >= 20 {
		var sum float64
		for _, c := range candles[len(candles)-20:] {
			sum += c.Range()
		}
		avgRange = sum / 20
	}
	if avgRange > 0 {
		f.RangeExpansion = current.Range() / avgRange
	} else {
		f.RangeExpansion = 1.0
	}

	highs := make([]float64, len(candles))
	lows := make([]float64, len(candles))
	for i, c := range candles {
		highs[i] = c.High
		lows[i] = c.Low
	}

	swingHighs, swingLows := findSwingPoints(highs, lows, 5)

	currentPrice := current.Close
	if len(swingHighs) > 0 {
		f.SwingHighDist = (swingHighs[len(swingHighs)-1].price - currentPrice) / currentPrice
	}
	if len(swingLows) > 0 {
		f.SwingLowDist = (currentPrice - swingLows[len(swingLows)-1].price) / currentPrice
	}

	f.HHCount, f.LLCount, f.HLCount, f.LHCount = analyzeMarketStructure(swingHighs, swingLows)

	switch {
	case f.HHCount > f.LHCount && f.HLCount > f.LLCount:
		f.TrendStructure = 1
	case f.LHCount > f.HHCount && f.LLCount > f.HLCount:
		f.TrendStructure = -1
	}

	// Breakout strength vs the prior 19-bar range, excluding the current bar
	if len(candles) >= 20 {
		window := candles[len(candles)-20 : len(candles)-1]
		recentHigh := window[0].High
		recentLow := window[0].Low
		for _, c := range window[1:] {
			if c.High > recentHigh {
				recentHigh = c.High
			}
			if c.Low < recentLow {
				recentLow = c.Low
			}
		}
		recentRange := recentHigh - recentLow

		if recentRange > 0 {
			if current.Close > recentHigh {
				f.BreakoutStrength = (current.Close - recentHigh) / recentRange
			} else if current.Close < recentLow {
				f.BreakoutStrength = (recentLow - current.Close) / recentRange
			}
		}
	}

	// Consolidation: bars in the last 10 with range under half the average
	if len(candles) >= 10 {
		window := candles[len(candles)-10:]
		var sum float64
		for _, c := range window {
			sum += c.Range()
		}
		avg := sum / float64(len(window))
		for _, c := range window {
			if c.Range() < avg*0.5 {
				f.ConsolidationBars++
			}
		}
	}

	ranges := make([]float64, len(candles))
	for i, c := range candles {
		ranges[i] = c.Range()
	}
	f.VolatilityContraction = volatilityContraction(ranges, 10)

	support, resistance := supportResistance(candles)
	nearestSupport := nearestLevel(support, currentPrice)
	nearestResistance := nearestLevel(resistance, currentPrice)

	distSupport := math.Abs(currentPrice-nearestSupport) / currentPrice
	distResistance := math.Abs(nearestResistance-currentPrice) / currentPrice
	f.KeyLevelDistance = math.Min(distSupport, distResistance)

	return f
}

// nearestLevel returns the level closest to price, or the price itself when
// no levels exist.
func nearestLevel(levels []float64, price float64) float64 {
	if len(levels) == 0 {
		return price
	}
	nearest := levels[0]
	for _, l := range levels[1:] {
		if math.Abs(l-price) < math.Abs(nearest-price) {
			nearest = l
		}
	}
	return nearest
}
