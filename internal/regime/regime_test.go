package regime

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/coinpulse/signalengine/internal/features"
)

// trendingUpFeatures builds a snapshot that classifies as TRENDING_UP
func trendingUpFeatures() *features.AllFeatures {
	f := &features.AllFeatures{}
	f.Technical.ADX = 32
	f.Technical.RSI14 = 55
	f.Technical.ATRPercentile = 50
	f.Technical.EMA9 = 103
	f.Technical.EMA21 = 102
	f.Technical.EMA50 = 101
	f.PriceAction.BodyPercent = 0.6
	f.PriceAction.TrendStructure = 1
	f.PriceAction.HHCount = 3
	f.MTF.TF15mTrend = 1
	f.MTF.TF5mTrend = 1
	return f
}

func TestDetectHighVolatility(t *testing.T) {
	d := NewDetector()

	f := trendingUpFeatures()
	f.Technical.ATRPercentile = 92

	r := d.Detect(f)

	assert.Equal(t, HighVolatility, r.Type)
	assert.InDelta(t, 0.92, r.Confidence, 1e-9)
	assert.True(t, r.Tradeable())
}

func TestDetectHighVolatilityConfidenceCap(t *testing.T) {
	d := NewDetector()

	f := trendingUpFeatures()
	f.Technical.ATRPercentile = 99

	r := d.Detect(f)
	assert.Equal(t, 0.95, r.Confidence)
}

func TestDetectTrendingUp(t *testing.T) {
	d := NewDetector()

	r := d.Detect(trendingUpFeatures())

	assert.Equal(t, TrendingUp, r.Type)
	// 0.65 base + 0.1 ADX>30 + 0.1 MTF aligned + 0.05 structure
	assert.InDelta(t, 0.90, r.Confidence, 1e-9)
	assert.True(t, r.Tradeable())
}

func TestDetectTrendingDown(t *testing.T) {
	d := NewDetector()

	f := trendingUpFeatures()
	f.Technical.EMA9 = 101
	f.Technical.EMA21 = 102
	f.Technical.EMA50 = 103
	f.PriceAction.TrendStructure = -1
	f.MTF.TF15mTrend = -1
	f.MTF.TF5mTrend = -1

	r := d.Detect(f)

	assert.Equal(t, TrendingDown, r.Type)
	assert.InDelta(t, 0.90, r.Confidence, 1e-9)
}

func TestDetectChoppy(t *testing.T) {
	d := NewDetector()

	f := &features.AllFeatures{}
	f.Technical.ADX = 15
	f.Technical.RSI14 = 50
	f.Technical.ATRPercentile = 50
	f.PriceAction.BodyPercent = 0.2
	f.PriceAction.UpperWickRatio = 0.4
	f.PriceAction.LowerWickRatio = 0.4

	r := d.Detect(f)

	assert.Equal(t, Choppy, r.Type)
	assert.Equal(t, 0.7, r.Confidence)
	assert.False(t, r.Tradeable())
}

func TestDetectRanging(t *testing.T) {
	d := NewDetector()

	// Strong ADX but EMAs not aligned in either direction
	f := &features.AllFeatures{}
	f.Technical.ADX = 28
	f.Technical.RSI14 = 50
	f.Technical.ATRPercentile = 50
	f.Technical.EMA9 = 100
	f.Technical.EMA21 = 102
	f.Technical.EMA50 = 101
	f.PriceAction.BodyPercent = 0.6

	r := d.Detect(f)

	assert.Equal(t, Ranging, r.Type)
	assert.Equal(t, 0.75, r.Confidence)
}

func TestExhaustionRisk(t *testing.T) {
	f := &features.AllFeatures{}
	f.Technical.RSI14 = 75 // extreme
	f.PriceAction.BodyPercent = 0.15
	f.Onchain.ExchangeNetflow = 20000 // clamped to 1.0

	risk := calculateExhaustion(f).risk()

	// 1.0*0.15 + 0.5*0.15 + 1.0*0.20
	assert.InDelta(t, 0.425, risk, 1e-9)
}

func TestExhaustionRiskNeutral(t *testing.T) {
	f := &features.AllFeatures{}
	f.Technical.RSI14 = 50
	f.PriceAction.BodyPercent = 0.6
	f.Onchain.ExchangeNetflow = -500

	assert.Equal(t, 0.0, calculateExhaustion(f).risk())
}

func TestStructureQuality(t *testing.T) {
	f := &features.AllFeatures{}
	f.PriceAction.TrendStructure = 1
	f.PriceAction.HHCount = 3
	f.PriceAction.ConsolidationBars = 2

	assert.InDelta(t, 1.0, structureQuality(f), 1e-9)

	f = &features.AllFeatures{}
	f.PriceAction.ConsolidationBars = 8
	assert.InDelta(t, 0.5, structureQuality(f), 1e-9)
}

func TestStability(t *testing.T) {
	d := NewDetector()

	// Too little history
	assert.Equal(t, 0.5, d.Stability(10))

	up := trendingUpFeatures()
	for i := 0; i < 8; i++ {
		d.Detect(up)
	}
	choppy := &features.AllFeatures{}
	choppy.Technical.ADX = 15
	choppy.Technical.RSI14 = 50
	choppy.PriceAction.BodyPercent = 0.2
	for i := 0; i < 2; i++ {
		d.Detect(choppy)
	}

	assert.InDelta(t, 0.8, d.Stability(10), 1e-9)
	assert.Equal(t, Choppy, d.Last().Type)
}

func TestHistoryBounded(t *testing.T) {
	d := NewDetector()
	f := trendingUpFeatures()
	for i := 0; i < 150; i++ {
		d.Detect(f)
	}
	assert.Len(t, d.history, 100)
}
