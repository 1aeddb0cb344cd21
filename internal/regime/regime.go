// Package regime classifies market conditions into five regimes used for
// strategy selection. CHOPPY is the only untradeable regime.
package regime

import (
	"fmt"
	"sync"

	"github.com/coinpulse/signalengine/internal/features"
)

// Type is a market regime classification
type Type string

const (
	TrendingUp     Type = "TRENDING_UP"
	TrendingDown   Type = "TRENDING_DOWN"
	Ranging        Type = "RANGING"
	HighVolatility Type = "HIGH_VOLATILITY"
	Choppy         Type = "CHOPPY"
)

// Result is the outcome of one regime classification
type Result struct {
	Type             Type    `json:"regime_type"`
	Confidence       float64 `json:"confidence"`        // 0-1
	ExhaustionRisk   float64 `json:"exhaustion_risk"`   // 0-1
	StructureQuality float64 `json:"structure_quality"` // 0-1
	Reasoning        string  `json:"reasoning"`
}

// Tradeable reports whether signals may be generated in this regime
func (r Result) Tradeable() bool {
	return r.Type != Choppy
}

// exhaustionIndicators are the weighted inputs to trend exhaustion risk
type exhaustionIndicators struct {
	rsiDivergence     float64
	volumeDeclining   float64
	bodyShrinking     float64
	extremeRSI        float64
	onchainDivergence float64
}

func (e exhaustionIndicators) risk() float64 {
	weighted := e.rsiDivergence*0.30 +
		e.volumeDeclining*0.20 +
		e.bodyShrinking*0.15 +
		e.extremeRSI*0.15 +
		e.onchainDivergence*0.20
	if weighted > 1 {
		return 1
	}
	if weighted < 0 {
		return 0
	}
	return weighted
}

// maxRegimeHistory bounds the classification history used for stability
const maxRegimeHistory = 100

// Detector classifies regimes and tracks classification history
type Detector struct {
	mu      sync.RWMutex
	last    *Result
	history []Type
}

// NewDetector creates a regime detector with empty history
func NewDetector() *Detector {
	return &Detector{}
}

// Detect classifies the current market regime from a feature snapshot.
// The checks cascade: high volatility trumps everything, then choppiness,
// then ADX-confirmed trends, then ranging.
func (d *Detector) Detect(f *features.AllFeatures) Result {
	tech := &f.Technical

	exhaustionRisk := calculateExhaustion(f).risk()
	structureQuality := structureQuality(f)

	if tech.ATRPercentile > 80 {
		confidence := tech.ATRPercentile / 100
		if confidence > 0.95 {
			confidence = 0.95
		}
		return d.record(Result{
			Type:             HighVolatility,
			Confidence:       confidence,
			ExhaustionRisk:   exhaustionRisk,
			StructureQuality: structureQuality,
			Reasoning:        fmt.Sprintf("High volatility: ATR percentile %.1f%%", tech.ATRPercentile),
		})
	}

	chop := choppiness(f)
	if chop > 50 && tech.ADX < 25 {
		return d.record(Result{
			Type:             Choppy,
			Confidence:       0.7,
			ExhaustionRisk:   exhaustionRisk,
			StructureQuality: structureQuality,
			Reasoning:        fmt.Sprintf("Choppy market: ADX %.1f, no clear direction", tech.ADX),
		})
	}

	if tech.ADX >= 25 {
		emaUp := tech.EMA9 > tech.EMA21 && tech.EMA21 > tech.EMA50
		emaDown := tech.EMA9 < tech.EMA21 && tech.EMA21 < tech.EMA50

		if emaUp {
			return d.record(Result{
				Type:             TrendingUp,
				Confidence:       trendConfidence(f, 1),
				ExhaustionRisk:   exhaustionRisk,
				StructureQuality: structureQuality,
				Reasoning:        fmt.Sprintf("Uptrend: ADX %.1f, EMA aligned up", tech.ADX),
			})
		}
		if emaDown {
			return d.record(Result{
				Type:             TrendingDown,
				Confidence:       trendConfidence(f, -1),
				ExhaustionRisk:   exhaustionRisk,
				StructureQuality: structureQuality,
				Reasoning:        fmt.Sprintf("Downtrend: ADX %.1f, EMA aligned down", tech.ADX),
			})
		}
	}

	if chop < 50 {
		return d.record(Result{
			Type:             Ranging,
			Confidence:       0.75,
			ExhaustionRisk:   exhaustionRisk,
			StructureQuality: structureQuality,
			Reasoning:        fmt.Sprintf("Ranging: Choppiness %.1f, clear S/R levels", chop),
		})
	}

	return d.record(Result{
		Type:             Choppy,
		Confidence:       0.5,
		ExhaustionRisk:   exhaustionRisk,
		StructureQuality: structureQuality,
		Reasoning:        "Unclear market conditions",
	})
}

// choppiness approximates a choppiness index from indecision signals
func choppiness(f *features.AllFeatures) float64 {
	tech := &f.Technical
	pa := &f.PriceAction

	c := 50.0

	switch {
	case tech.ADX < 20:
		c += 20
	case tech.ADX < 25:
		c += 10
	default:
		c -= 10
	}

	if pa.UpperWickRatio > 0.3 && pa.LowerWickRatio > 0.3 {
		c += 15
	}
	if pa.BodyPercent < 0.3 {
		c += 10
	}
	if f.MTF.TFDivergence {
		c += 15
	}

	if c > 100 {
		return 100
	}
	if c < 0 {
		return 0
	}
	return c
}

func calculateExhaustion(f *features.AllFeatures) exhaustionIndicators {
	tech := &f.Technical
	pa := &f.PriceAction

	var ind exhaustionIndicators

	if tech.RSI14 > 70 || tech.RSI14 < 30 {
		ind.extremeRSI = 1.0
	} else if tech.RSI14 > 60 || tech.RSI14 < 40 {
		ind.extremeRSI = 0.5
	}

	if pa.BodyPercent < 0.3 {
		ind.bodyShrinking = 1.0 - pa.BodyPercent/0.3
	}

	// Positive netflow means coins moving onto exchanges, a sell signal
	// against an extended trend
	if f.Onchain.ExchangeNetflow > 0 {
		ind.onchainDivergence = f.Onchain.ExchangeNetflow / 10000
		if ind.onchainDivergence > 1 {
			ind.onchainDivergence = 1
		}
	}

	return ind
}

func structureQuality(f *features.AllFeatures) float64 {
	pa := &f.PriceAction

	quality := 0.5

	if pa.TrendStructure != 0 {
		quality += 0.3
	}
	if pa.HHCount >= 2 || pa.LLCount >= 2 {
		quality += 0.1
	}
	if pa.ConsolidationBars < 5 {
		quality += 0.1
	}

	if quality > 1 {
		return 1
	}
	return quality
}

func trendConfidence(f *features.AllFeatures, direction int) float64 {
	tech := &f.Technical
	mtf := &f.MTF

	confidence := 0.65

	if tech.ADX > 30 {
		confidence += 0.1
	}
	if tech.ADX > 40 {
		confidence += 0.1
	}

	if mtf.TF15mTrend == direction && mtf.TF5mTrend == direction {
		confidence += 0.1
	}

	if f.PriceAction.TrendStructure == direction {
		confidence += 0.05
	}

	if confidence > 0.95 {
		return 0.95
	}
	return confidence
}

func (d *Detector) record(r Result) Result {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.last = &r
	d.history = append(d.history, r.Type)
	if len(d.history) > maxRegimeHistory {
		d.history = d.history[len(d.history)-maxRegimeHistory:]
	}
	return r
}

// Last returns the most recent classification, or nil before the first
func (d *Detector) Last() *Result {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.last
}

// Stability is the share of the last `lookback` classifications that agreed
// with the most common one. Below `lookback` samples it returns 0.5.
func (d *Detector) Stability(lookback int) float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if len(d.history) < lookback {
		return 0.5
	}

	recent := d.history[len(d.history)-lookback:]
	counts := make(map[Type]int)
	for _, t := range recent {
		counts[t]++
	}
	best := 0
	for _, c := range counts {
		if c > best {
			best = c
		}
	}
	return float64(best) / float64(lookback)
}
