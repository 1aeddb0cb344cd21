package features

import (
	"math"

	"github.com/coinpulse/signalengine/internal/exchange"
	"github.com/coinpulse/signalengine/internal/indicators"
)

// MTFFeatures holds multi-timeframe alignment features (slots 36-50)
type MTFFeatures struct {
	TF15mTrend    int     `json:"tf_15m_trend"` // -1, 0, 1
	TF15mStrength float64 `json:"tf_15m_strength"`
	TF15mRSI      float64 `json:"tf_15m_rsi"`

	TF5mTrend    int     `json:"tf_5m_trend"`
	TF5mStrength float64 `json:"tf_5m_strength"`
	TF5mRSI      float64 `json:"tf_5m_rsi"`

	TF3mMomentum float64 `json:"tf_3m_momentum"`
	TF1mMomentum float64 `json:"tf_1m_momentum"`

	MTFAlignment       int     `json:"mtf_alignment"`
	MTFConfluenceScore float64 `json:"mtf_confluence_score"` // 0-100

	HTFSupportDist    float64 `json:"htf_support_dist"`
	HTFResistanceDist float64 `json:"htf_resistance_dist"`

	TFDivergence         bool    `json:"tf_divergence"`
	MomentumAcceleration float64 `json:"momentum_acceleration"`
	TrendAgeBars         int     `json:"trend_age_bars"`
}

// trendDirection classifies trend via 9/21 EMA stacking with the price
// confirming on the same side. Strength is the EMA separation relative to
// price, capped at 1.
func trendDirection(candles []exchange.Candle) (direction int, strength float64) {
	const emaShort, emaLong = 9, 21
	if len(candles) < emaLong {
		return 0, 0
	}

	closes := closePrices(candles)
	emaS := indicators.EMA(closes, emaShort)
	emaL := indicators.EMA(closes, emaLong)
	currentPrice := closes[len(closes)-1]

	switch {
	case emaS > emaL && currentPrice > emaS:
		direction = 1
	case emaS < emaL && currentPrice < emaS:
		direction = -1
	}

	strength = math.Min(1.0, math.Abs(emaS-emaL)/currentPrice*100)
	return direction, strength
}

// momentum is the percentage move over the last `period` bars
func momentum(candles []exchange.Candle, period int) float64 {
	if len(candles) < period {
		return 0
	}
	closes := closePrices(candles)
	previous := closes[len(closes)-period]
	if previous == 0 {
		return 0
	}
	return (closes[len(closes)-1] - previous) / previous * 100
}

// momentumAcceleration is the change between two consecutive momentum windows
func momentumAcceleration(candles []exchange.Candle, period int) float64 {
	if len(candles) < period*2 {
		return 0
	}
	closes := closePrices(candles)

	var recent, previous float64
	if closes[len(closes)-period] != 0 {
		recent = (closes[len(closes)-1] - closes[len(closes)-period]) / closes[len(closes)-period] * 100
	}
	if closes[len(closes)-period*2] != 0 {
		previous = (closes[len(closes)-period] - closes[len(closes)-period*2]) / closes[len(closes)-period*2] * 100
	}
	return recent - previous
}

// tfDivergence reports whether non-neutral timeframe directions disagree
func tfDivergence(directions ...int) bool {
	var nonNeutral []int
	for _, d := range directions {
		if d != 0 {
			nonNeutral = append(nonNeutral, d)
		}
	}
	if len(nonNeutral) < 2 {
		return false
	}
	for _, d := range nonNeutral[1:] {
		if d != nonNeutral[0] {
			return true
		}
	}
	return false
}

// trendAge counts consecutive closing bars that moved with the trend
func trendAge(candles []exchange.Candle, direction int) int {
	if len(candles) < 10 || direction == 0 {
		return 0
	}
	closes := closePrices(candles)

	age := 0
	for i := len(closes) - 1; i > 0; i-- {
		if direction == 1 && closes[i] > closes[i-1] {
			age++
		} else if direction == -1 && closes[i] < closes[i-1] {
			age++
		} else {
			break
		}
	}
	return age
}

// htfLevels returns the extreme high/low over up to the last 100 bars
func htfLevels(candles []exchange.Candle) (support, resistance float64) {
	lookback := 100
	if len(candles) < lookback {
		lookback = len(candles)
	}
	if lookback < 10 {
		return 0, math.Inf(1)
	}

	recent := candles[len(candles)-lookback:]
	support = recent[0].Low
	resistance = recent[0].High
	for _, c := range recent[1:] {
		if c.Low < support {
			support = c.Low
		}
		if c.High > resistance {
			resistance = c.High
		}
	}
	return support, resistance
}

func closePrices(candles []exchange.Candle) []float64 {
	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	return closes
}

// MTFAnalyzer computes multi-timeframe features
type MTFAnalyzer struct{}

// NewMTFAnalyzer creates a multi-timeframe analyzer
func NewMTFAnalyzer() *MTFAnalyzer {
	return &MTFAnalyzer{}
}

// Calculate computes MTF features from candle series keyed by timeframe
func (a *MTFAnalyzer) Calculate(candles map[string][]exchange.Candle) MTFFeatures {
	f := MTFFeatures{TF15mRSI: 50.0, TF5mRSI: 50.0}

	candles15m := candles["15m"]
	candles5m := candles["5m"]
	candles3m := candles["3m"]
	candles1m := candles["1m"]

	if len(candles15m) > 0 {
		f.TF15mTrend, f.TF15mStrength = trendDirection(candles15m)
		f.TF15mRSI = indicators.RSI(closePrices(candles15m), 14)
	}

	if len(candles5m) > 0 {
		f.TF5mTrend, f.TF5mStrength = trendDirection(candles5m)
		f.TF5mRSI = indicators.RSI(closePrices(candles5m), 14)
	}

	if len(candles3m) > 0 {
		f.TF3mMomentum = momentum(candles3m, 10)
	}
	if len(candles1m) > 0 {
		f.TF1mMomentum = momentum(candles1m, 10)
	}

	directions := []int{f.TF15mTrend, f.TF5mTrend}
	if len(candles3m) > 0 {
		directions = append(directions, sign(f.TF3mMomentum))
	}

	bullish, bearish := 0, 0
	for _, d := range directions {
		if d == 1 {
			bullish++
		} else if d == -1 {
			bearish++
		}
	}
	aligned := bullish
	if bearish > aligned {
		aligned = bearish
	}
	f.MTFAlignment = aligned

	nonNeutral := 0
	for _, d := range directions {
		if d != 0 {
			nonNeutral++
		}
	}
	if nonNeutral > 0 {
		f.MTFConfluenceScore = float64(aligned) / float64(len(directions)) * 100
	}

	momentum3mDir := 0
	if f.TF3mMomentum > 0.1 {
		momentum3mDir = 1
	} else if f.TF3mMomentum < -0.1 {
		momentum3mDir = -1
	}
	f.TFDivergence = tfDivergence(f.TF15mTrend, f.TF5mTrend, momentum3mDir)

	if len(candles1m) > 0 {
		f.MomentumAcceleration = momentumAcceleration(candles1m, 5)
	}

	if len(candles15m) > 0 {
		f.TrendAgeBars = trendAge(candles15m, f.TF15mTrend)

		support, resistance := htfLevels(candles15m)
		currentPrice := candles15m[len(candles15m)-1].Close
		if support > 0 {
			f.HTFSupportDist = (currentPrice - support) / currentPrice
		}
		if resistance > 0 && !math.IsInf(resistance, 1) {
			f.HTFResistanceDist = (resistance - currentPrice) / currentPrice
		}
	}

	return f
}

func sign(v float64) int {
	if v > 0 {
		return 1
	}
	if v < 0 {
		return -1
	}
	return 0
}
