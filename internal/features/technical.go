// Package features computes the 100-slot feature vector describing the
// current BTC market: technical indicators, price action, multi-timeframe
// alignment, onchain flows, liquidation structure, funding, and
// microstructure.
package features

import (
	"github.com/coinpulse/signalengine/internal/exchange"
	"github.com/coinpulse/signalengine/internal/indicators"
)

// TechnicalFeatures holds indicator features (slots 1-20)
type TechnicalFeatures struct {
	RSI7  float64 `json:"rsi_7"`
	RSI14 float64 `json:"rsi_14"`

	EMA9   float64 `json:"ema_9"`
	EMA21  float64 `json:"ema_21"`
	EMA50  float64 `json:"ema_50"`
	EMA200 float64 `json:"ema_200"`

	MACDLine      float64 `json:"macd_line"`
	MACDSignal    float64 `json:"macd_signal"`
	MACDHistogram float64 `json:"macd_histogram"`

	BBUpper    float64 `json:"bb_upper"`
	BBLower    float64 `json:"bb_lower"`
	BBPosition float64 `json:"bb_position"`

	ATR14         float64 `json:"atr_14"`
	ATRPercentile float64 `json:"atr_percentile"`

	ADX     float64 `json:"adx"`
	PlusDI  float64 `json:"plus_di"`
	MinusDI float64 `json:"minus_di"`

	StochK float64 `json:"stoch_k"`
	StochD float64 `json:"stoch_d"`

	VWAP float64 `json:"vwap"`
}

// maxATRHistory bounds the ATR percentile window to roughly 30 days
const maxATRHistory = 30 * 24

// TechnicalAnalyzer computes indicator features and keeps the rolling ATR
// history used for the percentile.
type TechnicalAnalyzer struct {
	atrHistory []float64
}

// NewTechnicalAnalyzer creates a technical analyzer with empty history
func NewTechnicalAnalyzer() *TechnicalAnalyzer {
	return &TechnicalAnalyzer{}
}

// Calculate computes all technical features from the given candles
func (a *TechnicalAnalyzer) Calculate(candles []exchange.Candle) TechnicalFeatures {
	var f TechnicalFeatures
	if len(candles) < 2 {
		// Not enough history to compute anything; keep neutral values
		// instead of zeroes so downstream scoring stays centered.
		return TechnicalFeatures{RSI7: 50, RSI14: 50, BBPosition: 0.5, ATRPercentile: 50, StochK: 50, StochD: 50}
	}

	closes := make([]float64, len(candles))
	highs := make([]float64, len(candles))
	lows := make([]float64, len(candles))
	volumes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
		highs[i] = c.High
		lows[i] = c.Low
		volumes[i] = c.Volume
	}

	f.RSI7 = indicators.RSI(closes, 7)
	f.RSI14 = indicators.RSI(closes, 14)

	f.EMA9 = indicators.EMA(closes, 9)
	f.EMA21 = indicators.EMA(closes, 21)
	f.EMA50 = indicators.EMA(closes, 50)
	f.EMA200 = indicators.EMA(closes, 200)

	f.MACDLine, f.MACDSignal, f.MACDHistogram = indicators.MACD(closes)
	f.BBUpper, f.BBLower, f.BBPosition = indicators.Bollinger(closes)

	f.ATR14 = indicators.ATR(highs, lows, closes, 14)
	a.atrHistory = append(a.atrHistory, f.ATR14)
	if len(a.atrHistory) > maxATRHistory {
		a.atrHistory = a.atrHistory[len(a.atrHistory)-maxATRHistory:]
	}
	f.ATRPercentile = indicators.ATRPercentile(f.ATR14, a.atrHistory)

	f.ADX, f.PlusDI, f.MinusDI = indicators.ADX(highs, lows, closes, 14)
	f.StochK, f.StochD = indicators.Stochastic(highs, lows, closes)
	f.VWAP = indicators.VWAP(closes, volumes)

	return f
}
