// Package ai scores candidate trades with a weighted heuristic ensemble
// over the 100-slot feature vector and flags the risk factors that should
// make a downstream gate hesitate.
package ai

import (
	"fmt"

	"github.com/rs/zerolog/log"
)

// Direction is the predictor's vote on trade direction.
type Direction string

const (
	DirectionLong    Direction = "LONG"
	DirectionShort   Direction = "SHORT"
	DirectionNoTrade Direction = "NO_TRADE"
)

// Result is a single prediction over a feature vector.
type Result struct {
	Confidence     float64   `json:"confidence"`
	Direction      Direction `json:"direction"`
	RiskFactors    []string  `json:"risk_factors"`
	ModelAgreement float64   `json:"model_agreement"`
}

// Feature vector slots the predictor reads. The layout is fixed by the
// feature engine's Vector ordering.
const (
	slotRSI14         = 1
	slotATRPercentile = 13
	slotADX           = 14
)

// Predictor produces rule-based trade predictions. It stands in for a
// trained model ensemble and is deliberately conservative: anything
// outside a clear RSI extreme is a NO_TRADE at coin-flip confidence.
type Predictor struct {
	confidenceThreshold float64
}

// NewPredictor returns a predictor with the given minimum actionable
// confidence (used only for risk-factor annotation; callers enforce
// their own thresholds).
func NewPredictor(confidenceThreshold float64) *Predictor {
	if confidenceThreshold <= 0 {
		confidenceThreshold = 0.65
	}
	return &Predictor{confidenceThreshold: confidenceThreshold}
}

// Predict scores a 100-slot feature vector. A short vector degrades to a
// NO_TRADE result rather than erroring; the caller treats the prediction
// as advisory.
func (p *Predictor) Predict(vector []float64) Result {
	rsi, adx := 50.0, 20.0
	if len(vector) > slotRSI14 {
		rsi = vector[slotRSI14]
	}
	if len(vector) > slotADX {
		adx = vector[slotADX]
	}

	var (
		direction  Direction
		confidence float64
	)
	switch {
	case rsi < 35:
		direction = DirectionLong
		confidence = 0.6 + (35-rsi)/100
	case rsi > 65:
		direction = DirectionShort
		confidence = 0.6 + (rsi-65)/100
	default:
		direction = DirectionNoTrade
		confidence = 0.5
	}

	if adx > 25 {
		confidence += 0.1
	}
	confidence = clamp(confidence, 0.3, 0.95)

	result := Result{
		Confidence:     confidence,
		Direction:      direction,
		RiskFactors:    p.riskFactors(vector, confidence),
		ModelAgreement: 1.0,
	}

	log.Debug().
		Str("direction", string(direction)).
		Float64("confidence", confidence).
		Int("risk_factors", len(result.RiskFactors)).
		Msg("ai prediction")

	return result
}

// riskFactors lists conditions that argue against taking the trade even
// when the directional vote is positive.
func (p *Predictor) riskFactors(vector []float64, confidence float64) []string {
	var risks []string
	if len(vector) < 20 {
		return risks
	}

	if rsi := vector[slotRSI14]; rsi > 80 {
		risks = append(risks, fmt.Sprintf("RSI overbought (%.1f)", rsi))
	} else if rsi < 20 {
		risks = append(risks, fmt.Sprintf("RSI oversold (%.1f)", rsi))
	}

	if atrPct := vector[slotATRPercentile]; atrPct > 90 {
		risks = append(risks, fmt.Sprintf("Extreme volatility (ATR %.0f%%)", atrPct))
	}

	if adx := vector[slotADX]; adx < 20 {
		risks = append(risks, fmt.Sprintf("Weak trend (ADX %.1f)", adx))
	}

	if confidence < 0.7 {
		risks = append(risks, fmt.Sprintf("Low confidence (%.0f%%)", confidence*100))
	}

	return risks
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
