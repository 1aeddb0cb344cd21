package features

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/coinpulse/signalengine/internal/exchange"
)

// risingCandles builds n candles with closes start, start+step, ... where
// each candle has a fixed 2-point range around the close.
func risingCandles(n int, start, step float64) []exchange.Candle {
	candles := make([]exchange.Candle, n)
	ts := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := range candles {
		close := start + float64(i)*step
		candles[i] = exchange.Candle{
			Timestamp: ts.Add(time.Duration(i) * 5 * time.Minute),
			Open:      close - step,
			High:      close + 1,
			Low:       close - 1,
			Close:     close,
			Volume:    100,
			IsClosed:  true,
		}
	}
	return candles
}

func flatCandles(n int, price, halfRange float64) []exchange.Candle {
	candles := make([]exchange.Candle, n)
	ts := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := range candles {
		candles[i] = exchange.Candle{
			Timestamp: ts.Add(time.Duration(i) * 5 * time.Minute),
			Open:      price,
			High:      price + halfRange,
			Low:       price - halfRange,
			Close:     price,
			Volume:    100,
			IsClosed:  true,
		}
	}
	return candles
}

func TestTechnicalAnalyzerUptrend(t *testing.T) {
	analyzer := NewTechnicalAnalyzer()
	candles := risingCandles(60, 100, 1)

	f := analyzer.Calculate(candles)

	// Strictly rising closes have no losses
	assert.Equal(t, 100.0, f.RSI7)
	assert.Equal(t, 100.0, f.RSI14)

	assert.Greater(t, f.EMA9, f.EMA21)
	assert.Greater(t, f.EMA21, f.EMA50)

	assert.Greater(t, f.MACDLine, 0.0)
	assert.InDelta(t, f.MACDLine-f.MACDSignal, f.MACDHistogram, 1e-9)

	assert.Greater(t, f.BBUpper, f.BBLower)
	assert.GreaterOrEqual(t, f.BBPosition, 0.0)
	assert.LessOrEqual(t, f.BBPosition, 1.0)

	// Constant high-low range of 2 with gap-free candles yields ATR 2
	assert.InDelta(t, 2.0, f.ATR14, 1e-9)

	assert.GreaterOrEqual(t, f.StochK, 0.0)
	assert.LessOrEqual(t, f.StochK, 100.0)
	assert.Greater(t, f.VWAP, 0.0)
	assert.Less(t, f.VWAP, f.EMA9)
}

func TestTechnicalAnalyzerShortSeries(t *testing.T) {
	analyzer := NewTechnicalAnalyzer()
	candles := risingCandles(5, 100, 1)

	f := analyzer.Calculate(candles)

	// Below the RSI period, values stay neutral
	assert.Equal(t, 50.0, f.RSI14)
	// EMA falls back to the last close
	assert.Equal(t, 104.0, f.EMA200)
	assert.Equal(t, 0.0, f.MACDLine)
	assert.Equal(t, 0.0, f.ATR14)
}

func TestTechnicalAnalyzerSingleCandleStaysNeutral(t *testing.T) {
	analyzer := NewTechnicalAnalyzer()

	for _, candles := range [][]exchange.Candle{nil, risingCandles(1, 100, 1)} {
		f := analyzer.Calculate(candles)

		assert.Equal(t, 50.0, f.RSI7)
		assert.Equal(t, 50.0, f.RSI14)
		assert.Equal(t, 0.5, f.BBPosition)
		assert.Equal(t, 50.0, f.ATRPercentile)
		assert.Equal(t, 50.0, f.StochK)
		assert.Equal(t, 50.0, f.StochD)
	}
}

func TestTechnicalAnalyzerATRPercentileGrows(t *testing.T) {
	analyzer := NewTechnicalAnalyzer()

	// Seed history with narrow-range bars, then widen
	for i := 0; i < 3; i++ {
		analyzer.Calculate(flatCandles(30, 100, 0.5))
	}
	f := analyzer.Calculate(risingCandles(30, 100, 2))

	assert.Greater(t, f.ATRPercentile, 50.0)
}
