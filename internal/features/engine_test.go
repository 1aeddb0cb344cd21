package features

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coinpulse/signalengine/internal/exchange"
)

func TestVectorLayout(t *testing.T) {
	f := &AllFeatures{}
	f.Technical.RSI7 = 7
	f.Technical.VWAP = 20
	f.PriceAction.BodyPercent = 21
	f.PriceAction.KeyLevelDistance = 35
	f.MTF.TF15mTrend = 1
	f.MTF.TrendAgeBars = 50
	f.Onchain.ExchangeInflow = 51
	f.Onchain.StablecoinSupplyRatio = 70
	f.Liquidation.LongLiqDensity1Pct = 71
	f.Liquidation.LiqCascadeRisk = 80
	f.Funding.FundingCurrent = 81
	f.Funding.FundingPercentile = 88
	f.Microstructure.CVD = 89
	f.Microstructure.POCDistance = 100

	v := f.Vector()
	require.Len(t, v, 100)

	assert.Equal(t, 7.0, v[0])
	assert.Equal(t, 20.0, v[19])
	assert.Equal(t, 21.0, v[20])
	assert.Equal(t, 35.0, v[34])
	assert.Equal(t, 1.0, v[35])
	assert.Equal(t, 50.0, v[49])
	assert.Equal(t, 51.0, v[50])
	assert.Equal(t, 70.0, v[69])
	assert.Equal(t, 71.0, v[70])
	assert.Equal(t, 80.0, v[79])
	assert.Equal(t, 81.0, v[80])
	assert.Equal(t, 88.0, v[87])
	assert.Equal(t, 89.0, v[88])
	assert.Equal(t, 100.0, v[99])
}

func TestVectorBoolEncoding(t *testing.T) {
	f := &AllFeatures{}
	f.PriceAction.VolatilityContraction = true
	f.MTF.TFDivergence = true
	f.Funding.FundingExtreme = true

	v := f.Vector()
	assert.Equal(t, 1.0, v[33]) // volatility contraction
	assert.Equal(t, 1.0, v[47]) // timeframe divergence
	assert.Equal(t, 1.0, v[84]) // funding extreme
}

func TestMapFlattensAllGroups(t *testing.T) {
	f := &AllFeatures{
		Timestamp:    time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		CurrentPrice: 50000,
	}
	f.Technical.RSI14 = 65.5
	f.Microstructure.CVD = 12345

	m, err := f.Map()
	require.NoError(t, err)

	assert.Equal(t, 50000.0, m["current_price"])
	assert.Equal(t, 65.5, m["rsi_14"])
	assert.Equal(t, 12345.0, m["cvd"])
	assert.Contains(t, m, "funding_current")
	assert.Contains(t, m, "liq_cascade_risk")
	assert.Contains(t, m, "mtf_confluence_score")
	assert.Contains(t, m, "whale_activity_score")
	assert.Contains(t, m, "body_percent")
	assert.Equal(t, "2025-06-01T12:00:00Z", m["timestamp"])
}

func TestEngineCalculateMock(t *testing.T) {
	engine := NewEngine(EngineConfig{UseMock: true})

	data := exchange.NewMarketData()
	for _, tf := range exchange.Timeframes {
		data.SetCandles(tf, risingCandles(60, 50000, 10))
	}

	f := engine.Calculate(context.Background(), data)
	require.NotNil(t, f)

	assert.Equal(t, 50590.0, f.CurrentPrice)
	assert.Len(t, f.Vector(), 100)

	// Candle-derived features are real even in mock mode
	assert.Equal(t, 100.0, f.Technical.RSI14)
	assert.Equal(t, 1, f.MTF.TF15mTrend)

	// External features come from the synthetic generators
	assert.GreaterOrEqual(t, f.Onchain.ExchangeInflow, 5000.0)
	assert.GreaterOrEqual(t, f.Liquidation.LongLiqDensity1Pct, 1_000_000.0)
	assert.GreaterOrEqual(t, f.Microstructure.TapeSpeed, 50.0)

	assert.Same(t, f, engine.Last())
}

func TestEngineFundingFromMarketData(t *testing.T) {
	engine := NewEngine(EngineConfig{UseMock: true})

	data := exchange.NewMarketData()
	data.SetCandles("5m", risingCandles(30, 50000, 10))
	data.SetFunding(&exchange.FundingRate{
		Timestamp:       time.Now().UTC(),
		FundingRate:     0.0004,
		MarkPrice:       50290,
		NextFundingTime: time.Now().UTC().Add(3 * time.Hour),
	})

	f := engine.Calculate(context.Background(), data)

	// Live funding beats the synthetic generator
	assert.Equal(t, 0.0004, f.Funding.FundingCurrent)
	assert.InDelta(t, 180, f.Funding.TimeToFunding, 1)
}

func TestEngineLastBeforeCalculate(t *testing.T) {
	engine := NewEngine(EngineConfig{UseMock: true})
	assert.Nil(t, engine.Last())
}
