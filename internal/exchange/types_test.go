package exchange

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCandleProperties(t *testing.T) {
	bullish := Candle{Open: 100, High: 112, Low: 98, Close: 110}
	assert.True(t, bullish.IsBullish())
	assert.InDelta(t, 10.0, bullish.Body(), 1e-9)
	assert.InDelta(t, 14.0, bullish.Range(), 1e-9)
	assert.InDelta(t, 10.0/14.0, bullish.BodyPercent(), 1e-9)
	assert.InDelta(t, 2.0, bullish.UpperWick(), 1e-9)
	assert.InDelta(t, 2.0, bullish.LowerWick(), 1e-9)

	bearish := Candle{Open: 110, High: 112, Low: 98, Close: 100}
	assert.False(t, bearish.IsBullish())
	assert.InDelta(t, 10.0, bearish.Body(), 1e-9)

	doji := Candle{Open: 100, High: 100, Low: 100, Close: 100}
	assert.Zero(t, doji.BodyPercent())
}

func TestOrderBookProperties(t *testing.T) {
	ob := &OrderBook{
		Bids: []OrderBookLevel{{Price: 50000, Quantity: 2}, {Price: 49990, Quantity: 3}},
		Asks: []OrderBookLevel{{Price: 50010, Quantity: 1}, {Price: 50020, Quantity: 1}},
	}

	assert.InDelta(t, 50000.0, ob.BestBid(), 1e-9)
	assert.InDelta(t, 50010.0, ob.BestAsk(), 1e-9)
	assert.InDelta(t, 50005.0, ob.MidPrice(), 1e-9)
	assert.InDelta(t, 10.0, ob.Spread(), 1e-9)
	assert.InDelta(t, 10.0/50005.0*100, ob.SpreadPercent(), 1e-9)

	// (5 - 2) / 7 bid-heavy
	assert.InDelta(t, 3.0/7.0, ob.Imbalance(10), 1e-9)

	empty := &OrderBook{}
	assert.Zero(t, empty.BestBid())
	assert.Zero(t, empty.SpreadPercent())
	assert.Zero(t, empty.Imbalance(10))
}

func TestMarketDataCandleUpdates(t *testing.T) {
	data := NewMarketData()
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// Live candle updates replace in place
	data.UpdateCandle("1m", Candle{Timestamp: ts, Close: 50000})
	data.UpdateCandle("1m", Candle{Timestamp: ts, Close: 50100})
	require.Len(t, data.Candles("1m"), 1)
	assert.InDelta(t, 50100.0, data.Candles("1m")[0].Close, 1e-9)
	assert.InDelta(t, 50100.0, data.LastPrice(), 1e-9)

	// New timestamp appends
	data.UpdateCandle("1m", Candle{Timestamp: ts.Add(time.Minute), Close: 50200, IsClosed: true})
	require.Len(t, data.Candles("1m"), 2)

	// Unknown timeframe is ignored
	data.UpdateCandle("30m", Candle{Timestamp: ts, Close: 1})
	assert.Empty(t, data.Candles("30m"))
}

func TestMarketDataCandleRingBuffer(t *testing.T) {
	data := NewMarketData()
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < maxCandles+50; i++ {
		data.UpdateCandle("5m", Candle{
			Timestamp: start.Add(time.Duration(i) * 5 * time.Minute),
			Close:     float64(i),
			IsClosed:  true,
		})
	}

	candles := data.Candles("5m")
	require.Len(t, candles, maxCandles)
	// Oldest 50 evicted
	assert.InDelta(t, 50.0, candles[0].Close, 1e-9)
	assert.InDelta(t, float64(maxCandles+49), candles[len(candles)-1].Close, 1e-9)
}

func TestMarketDataTrades(t *testing.T) {
	data := NewMarketData()

	for i := 0; i < maxTrades+10; i++ {
		data.AddTrade(Trade{Price: float64(i), Quantity: 1})
	}

	trades := data.RecentTrades(100)
	require.Len(t, trades, 100)
	assert.InDelta(t, float64(maxTrades+9), trades[99].Price, 1e-9)

	all := data.RecentTrades(maxTrades * 2)
	assert.Len(t, all, maxTrades)
}

func TestMarketDataClosedCandles(t *testing.T) {
	data := NewMarketData()
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	data.UpdateCandle("1m", Candle{Timestamp: ts, Close: 1, IsClosed: true})
	data.UpdateCandle("1m", Candle{Timestamp: ts.Add(time.Minute), Close: 2, IsClosed: true})
	data.UpdateCandle("1m", Candle{Timestamp: ts.Add(2 * time.Minute), Close: 3})

	closed := data.ClosedCandles("1m")
	require.Len(t, closed, 2)
	assert.InDelta(t, 2.0, closed[1].Close, 1e-9)
}
