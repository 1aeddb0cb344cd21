package strategy

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coinpulse/signalengine/internal/features"
	"github.com/coinpulse/signalengine/internal/regime"
)

// trendLongSetup builds features that pass trend momentum LONG validation
// with a perfect quality score.
func trendLongSetup() *features.AllFeatures {
	f := &features.AllFeatures{CurrentPrice: 102.1}
	f.Technical.EMA9 = 103
	f.Technical.EMA21 = 102
	f.Technical.EMA50 = 101
	f.Technical.RSI14 = 50
	f.Technical.MACDHistogram = 0.5
	f.PriceAction.KeyLevelDistance = 0.001
	f.MTF.MTFConfluenceScore = 100
	f.MTF.TF3mMomentum = 0.5
	f.Onchain.WhaleActivityScore = 65
	f.Liquidation.DistanceToLongLiq = 0.05
	f.Liquidation.DistanceToShortLiq = 0.05
	f.Funding.FundingCurrent = 0.0002
	f.Microstructure.CVDTrend = 0.1
	f.Microstructure.AggressorRatio = 0.6
	f.Microstructure.OrderbookImbalance = 0.2
	return f
}

func uptrend() regime.Result {
	return regime.Result{Type: regime.TrendingUp, Confidence: 0.9}
}

func TestGenerateTrendMomentumLong(t *testing.T) {
	g := NewGenerator(DefaultGeneratorConfig())

	s := g.Generate(trendLongSetup(), uptrend())
	require.NotNil(t, s)

	assert.Equal(t, Long, s.Direction)
	assert.Equal(t, TrendMomentum, s.Strategy)
	assert.Equal(t, 102.1, s.EntryPrice)
	assert.InDelta(t, 102.1*0.9975, s.StopLoss, 1e-9)
	assert.InDelta(t, 102.1*1.005, s.TakeProfit, 1e-9)
	assert.Equal(t, 150.0, s.PositionMargin)
	assert.Equal(t, 20, s.Leverage)
	assert.Equal(t, 0.9, s.Confidence)
	assert.Equal(t, 100, s.SetupQuality)
	assert.Equal(t, "TRENDING_UP", s.Regime)
	assert.Contains(t, s.Reasoning, "TREND_MOMENTUM")

	assert.Regexp(t, regexp.MustCompile(`^SIG_\d{8}_[0-9A-F]{6}$`), s.SignalID)
	assert.WithinDuration(t, time.Now().UTC(), s.CreatedAt, 5*time.Second)
}

func TestSignalEconomics(t *testing.T) {
	s := &Signal{
		EntryPrice:     50000,
		StopLoss:       49875,
		TakeProfit:     50250,
		PositionMargin: 150,
		Leverage:       20,
	}

	assert.Equal(t, 3000.0, s.NotionalValue())
	assert.InDelta(t, 7.5, s.RiskAmount(), 1e-9)
	assert.InDelta(t, 15.0, s.RewardAmount(), 1e-9)
	assert.InDelta(t, 2.0, s.RiskRewardRatio(), 1e-9)
}

func TestGenerateRejectsChoppy(t *testing.T) {
	g := NewGenerator(DefaultGeneratorConfig())
	r := regime.Result{Type: regime.Choppy, Confidence: 0.7}

	assert.Nil(t, g.Generate(trendLongSetup(), r))
}

func TestGenerateRejectsLowQuality(t *testing.T) {
	g := NewGenerator(DefaultGeneratorConfig())

	f := trendLongSetup()
	f.MTF.MTFConfluenceScore = 0
	f.MTF.TF3mMomentum = -0.5
	f.Technical.MACDHistogram = -0.5
	f.PriceAction.KeyLevelDistance = 0.02
	f.Onchain.WhaleActivityScore = 30
	f.Microstructure.AggressorRatio = 0.4

	assert.Nil(t, g.Generate(f, uptrend()))
}

func TestValidateDirectionVsRegime(t *testing.T) {
	tests := []struct {
		name      string
		direction Direction
		result    regime.Result
		allowed   bool
	}{
		{"long in uptrend", Long, regime.Result{Type: regime.TrendingUp}, true},
		{"short in uptrend", Short, regime.Result{Type: regime.TrendingUp}, false},
		{"short in exhausted uptrend", Short, regime.Result{Type: regime.TrendingUp, ExhaustionRisk: 0.8}, true},
		{"long in downtrend", Long, regime.Result{Type: regime.TrendingDown}, false},
		{"long in exhausted downtrend", Long, regime.Result{Type: regime.TrendingDown, ExhaustionRisk: 0.75}, true},
		{"short in ranging", Short, regime.Result{Type: regime.Ranging}, true},
		{"long in high volatility", Long, regime.Result{Type: regime.HighVolatility}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.allowed, validateDirectionVsRegime(tt.direction, tt.result))
		})
	}
}

func TestValidateTrendMomentumRejections(t *testing.T) {
	base := trendLongSetup()
	assert.True(t, validateTrendMomentum(base, Long))

	far := trendLongSetup()
	far.CurrentPrice = 105 // too far from EMA21
	assert.False(t, validateTrendMomentum(far, Long))

	hotRSI := trendLongSetup()
	hotRSI.Technical.RSI14 = 70
	assert.False(t, validateTrendMomentum(hotRSI, Long))

	sellingCVD := trendLongSetup()
	sellingCVD.Microstructure.CVDTrend = -0.2
	assert.False(t, validateTrendMomentum(sellingCVD, Long))

	crowded := trendLongSetup()
	crowded.Funding.FundingCurrent = 0.0008
	assert.False(t, validateTrendMomentum(crowded, Long))
}

func TestValidateLiquidationHunt(t *testing.T) {
	f := &features.AllFeatures{}
	f.Liquidation.DistanceToShortLiq = 0.01
	f.Liquidation.ShortLiqDensity2Pct = 8_000_000
	f.Liquidation.DistanceToLongLiq = 0.05
	f.Microstructure.OrderbookImbalance = 0.2
	f.Microstructure.CVDTrend = 0.1

	direction, ok := validateLiquidationHunt(f, regime.Result{Type: regime.TrendingUp})
	assert.True(t, ok)
	assert.Equal(t, Long, direction)

	// The same zone cannot be hunted short in an uptrend
	_, ok = validateLiquidationHunt(f, regime.Result{Type: regime.TrendingDown})
	assert.False(t, ok)

	// Ranging hunts either side
	direction, ok = validateLiquidationHunt(f, regime.Result{Type: regime.Ranging})
	assert.True(t, ok)
	assert.Equal(t, Long, direction)

	// Thin zones are skipped
	f.Liquidation.ShortLiqDensity2Pct = 1_000_000
	_, ok = validateLiquidationHunt(f, regime.Result{Type: regime.TrendingUp})
	assert.False(t, ok)
}

func TestValidateFundingFade(t *testing.T) {
	f := &features.AllFeatures{}
	f.Funding.FundingExtreme = true
	f.Funding.FundingCurrent = 0.0015
	f.Technical.RSI14 = 65

	// Overheated longs in a range fade short
	direction, ok := validateFundingFade(f, regime.Result{Type: regime.Ranging})
	assert.True(t, ok)
	assert.Equal(t, Short, direction)

	// In an uptrend, a short needs both exhaustion and an overbought RSI
	_, ok = validateFundingFade(f, regime.Result{Type: regime.TrendingUp})
	assert.False(t, ok)
	f.Technical.RSI14 = 75
	direction, ok = validateFundingFade(f, regime.Result{Type: regime.TrendingUp, ExhaustionRisk: 0.8})
	assert.True(t, ok)
	assert.Equal(t, Short, direction)

	// Negative extreme fades long when oversold
	f.Funding.FundingCurrent = -0.0015
	f.Technical.RSI14 = 35
	direction, ok = validateFundingFade(f, regime.Result{Type: regime.Ranging})
	assert.True(t, ok)
	assert.Equal(t, Long, direction)
}

func TestValidateRangeScalping(t *testing.T) {
	f := &features.AllFeatures{}
	f.Technical.RSI14 = 30
	f.PriceAction.LowerWickRatio = 0.6
	f.Microstructure.CVD = 50000

	direction, ok := validateRangeScalping(f)
	assert.True(t, ok)
	assert.Equal(t, Long, direction)

	f = &features.AllFeatures{}
	f.Technical.RSI14 = 70
	f.PriceAction.UpperWickRatio = 0.6
	f.Microstructure.CVD = -50000

	direction, ok = validateRangeScalping(f)
	assert.True(t, ok)
	assert.Equal(t, Short, direction)

	// Oversold without wick confirmation is not a scalp
	f = &features.AllFeatures{}
	f.Technical.RSI14 = 30
	f.Microstructure.CVD = 50000
	_, ok = validateRangeScalping(f)
	assert.False(t, ok)
}

func TestSetupQualityScoring(t *testing.T) {
	assert.Equal(t, 100, setupQuality(trendLongSetup(), Long))

	// Neutral everything bottoms out at the floor scores
	f := &features.AllFeatures{}
	f.PriceAction.KeyLevelDistance = 0.02
	f.Technical.MACDHistogram = -1
	f.MTF.TF3mMomentum = -1
	f.Microstructure.AggressorRatio = 0.4
	// 0 cvd + 5 aggressor + 5 level + 5 whale + 5 momentum + 10 neutral book
	assert.Equal(t, 30, setupQuality(f, Long))
}
