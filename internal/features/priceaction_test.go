package features

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/coinpulse/signalengine/internal/exchange"
)

func TestPriceActionCandleAnatomy(t *testing.T) {
	analyzer := NewPriceActionAnalyzer()

	candles := flatCandles(2, 100, 1)
	candles[1] = exchange.Candle{
		Open: 100, High: 110, Low: 90, Close: 105,
		Volume: 100, IsClosed: true,
	}

	f := analyzer.Calculate(candles)

	assert.InDelta(t, 0.25, f.BodyPercent, 1e-9)
	assert.InDelta(t, 0.25, f.UpperWickRatio, 1e-9)
	assert.InDelta(t, 0.50, f.LowerWickRatio, 1e-9)
	// Below 20 bars the expansion baseline is the current bar itself
	assert.InDelta(t, 1.0, f.RangeExpansion, 1e-9)
}

func TestPriceActionBreakout(t *testing.T) {
	analyzer := NewPriceActionAnalyzer()

	candles := flatCandles(25, 100, 1)
	last := &candles[len(candles)-1]
	last.Open = 100
	last.High = 106
	last.Low = 100
	last.Close = 105

	f := analyzer.Calculate(candles)

	// Prior 19-bar range is 99-101; close at 105 clears the high by twice
	// the range
	assert.InDelta(t, 2.0, f.BreakoutStrength, 1e-9)
}

func TestPriceActionBreakdown(t *testing.T) {
	analyzer := NewPriceActionAnalyzer()

	candles := flatCandles(25, 100, 1)
	last := &candles[len(candles)-1]
	last.Open = 100
	last.High = 100
	last.Low = 94
	last.Close = 95

	f := analyzer.Calculate(candles)

	assert.InDelta(t, 2.0, f.BreakoutStrength, 1e-9)
}

func TestPriceActionConsolidation(t *testing.T) {
	analyzer := NewPriceActionAnalyzer()

	// Eight narrow bars and two wide bars in the last ten
	candles := flatCandles(30, 100, 0.5)
	n := len(candles)
	for _, i := range []int{n - 1, n - 2} {
		candles[i].High = 110
		candles[i].Low = 90
	}

	f := analyzer.Calculate(candles)

	// avg range = (8*1 + 2*20) / 10 = 4.8; the eight narrow bars sit under
	// half of it
	assert.Equal(t, 8, f.ConsolidationBars)
}

func TestPriceActionUptrendStructure(t *testing.T) {
	analyzer := NewPriceActionAnalyzer()

	// Rising sawtooth: swing highs and lows both step up each cycle
	candles := make([]exchange.Candle, 64)
	ts := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := range candles {
		price := 1000 + float64(i)*2 + 30*math.Sin(float64(i)*2*math.Pi/16)
		candles[i] = exchange.Candle{
			Timestamp: ts.Add(time.Duration(i) * 5 * time.Minute),
			Open:      price,
			High:      price + 1,
			Low:       price - 1,
			Close:     price,
			Volume:    100,
			IsClosed:  true,
		}
	}

	f := analyzer.Calculate(candles)

	assert.Equal(t, 1, f.TrendStructure)
	assert.Greater(t, f.HHCount, 0)
	assert.Greater(t, f.HLCount, 0)
}

func TestPriceActionVolatilityContraction(t *testing.T) {
	// Wide ranges followed by narrow ranges
	ranges := make([]float64, 20)
	for i := 0; i < 10; i++ {
		ranges[i] = 10
	}
	for i := 10; i < 20; i++ {
		ranges[i] = 2
	}
	assert.True(t, volatilityContraction(ranges, 10))

	// Steady ranges do not contract
	for i := range ranges {
		ranges[i] = 5
	}
	assert.False(t, volatilityContraction(ranges, 10))
}

func TestPriceActionKeyLevelDistance(t *testing.T) {
	analyzer := NewPriceActionAnalyzer()

	// Without swing-derived levels the distance defaults to zero
	f := analyzer.Calculate(flatCandles(30, 100, 1))
	assert.Equal(t, 0.0, f.KeyLevelDistance)
}
