package exchange

import (
	"sync"
	"time"
)

// Timeframes tracked by the market data store
var Timeframes = []string{"1m", "3m", "5m", "15m"}

const (
	maxCandles = 500
	maxTrades  = 1000
)

// Candle is a single OHLCV candlestick
type Candle struct {
	Timestamp   time.Time
	Open        float64
	High        float64
	Low         float64
	Close       float64
	Volume      float64
	QuoteVolume float64
	Trades      int64
	IsClosed    bool
}

// Body returns the absolute candle body size
func (c Candle) Body() float64 {
	if c.Close > c.Open {
		return c.Close - c.Open
	}
	return c.Open - c.Close
}

// Range returns the high-low range
func (c Candle) Range() float64 {
	return c.High - c.Low
}

// BodyPercent returns the body as a fraction of the range
func (c Candle) BodyPercent() float64 {
	r := c.Range()
	if r == 0 {
		return 0
	}
	return c.Body() / r
}

// UpperWick returns the distance from the body top to the high
func (c Candle) UpperWick() float64 {
	top := c.Open
	if c.Close > top {
		top = c.Close
	}
	return c.High - top
}

// LowerWick returns the distance from the body bottom to the low
func (c Candle) LowerWick() float64 {
	bottom := c.Open
	if c.Close < bottom {
		bottom = c.Close
	}
	return bottom - c.Low
}

// IsBullish reports whether the candle closed above its open
func (c Candle) IsBullish() bool {
	return c.Close > c.Open
}

// Trade is an aggregated trade
type Trade struct {
	Timestamp    time.Time
	Price        float64
	Quantity     float64
	IsBuyerMaker bool
}

// IsBuy reports whether the buyer was the aggressor
func (t Trade) IsBuy() bool {
	return !t.IsBuyerMaker
}

// OrderBookLevel is one price level of the book
type OrderBookLevel struct {
	Price    float64
	Quantity float64
}

// OrderBook is a depth snapshot
type OrderBook struct {
	Timestamp time.Time
	Bids      []OrderBookLevel
	Asks      []OrderBookLevel
}

// BestBid returns the top bid price, 0 when the book is empty
func (ob *OrderBook) BestBid() float64 {
	if len(ob.Bids) == 0 {
		return 0
	}
	return ob.Bids[0].Price
}

// BestAsk returns the top ask price, 0 when the book is empty
func (ob *OrderBook) BestAsk() float64 {
	if len(ob.Asks) == 0 {
		return 0
	}
	return ob.Asks[0].Price
}

// MidPrice returns the bid/ask midpoint
func (ob *OrderBook) MidPrice() float64 {
	return (ob.BestBid() + ob.BestAsk()) / 2
}

// Spread returns the bid/ask spread
func (ob *OrderBook) Spread() float64 {
	return ob.BestAsk() - ob.BestBid()
}

// SpreadPercent returns the spread as a percentage of the mid price
func (ob *OrderBook) SpreadPercent() float64 {
	mid := ob.MidPrice()
	if mid == 0 {
		return 0
	}
	return ob.Spread() / mid * 100
}

// Imbalance returns (bidVolume - askVolume) / total over the top N levels,
// in [-1, 1]. Positive means bid-heavy.
func (ob *OrderBook) Imbalance(levels int) float64 {
	var bidVol, askVol float64
	for i, b := range ob.Bids {
		if i >= levels {
			break
		}
		bidVol += b.Quantity
	}
	for i, a := range ob.Asks {
		if i >= levels {
			break
		}
		askVol += a.Quantity
	}
	total := bidVol + askVol
	if total == 0 {
		return 0
	}
	return (bidVol - askVol) / total
}

// FundingRate is a funding/mark-price snapshot
type FundingRate struct {
	Timestamp       time.Time
	FundingRate     float64
	MarkPrice       float64
	NextFundingTime time.Time
}

// MarketData is a thread-safe in-memory store for live market state.
// Candle and trade histories are bounded ring buffers.
type MarketData struct {
	mu sync.RWMutex

	candles    map[string][]Candle
	trades     []Trade
	orderbook  *OrderBook
	funding    *FundingRate
	lastPrice  float64
	lastUpdate time.Time
}

// NewMarketData creates an empty market data store covering all tracked timeframes
func NewMarketData() *MarketData {
	candles := make(map[string][]Candle, len(Timeframes))
	for _, tf := range Timeframes {
		candles[tf] = make([]Candle, 0, maxCandles)
	}
	return &MarketData{
		candles: candles,
		trades:  make([]Trade, 0, maxTrades),
	}
}

// SetCandles replaces the full candle history for a timeframe
func (m *MarketData) SetCandles(timeframe string, candles []Candle) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(candles) > maxCandles {
		candles = candles[len(candles)-maxCandles:]
	}
	m.candles[timeframe] = append([]Candle(nil), candles...)
	if len(candles) > 0 {
		m.lastPrice = candles[len(candles)-1].Close
	}
	m.touch()
}

// UpdateCandle appends a closed candle, or replaces the live candle when the
// timestamps match.
func (m *MarketData) UpdateCandle(timeframe string, candle Candle) {
	m.mu.Lock()
	defer m.mu.Unlock()

	candles, ok := m.candles[timeframe]
	if !ok {
		return
	}

	if n := len(candles); n > 0 && candles[n-1].Timestamp.Equal(candle.Timestamp) {
		candles[n-1] = candle
	} else {
		candles = append(candles, candle)
		if len(candles) > maxCandles {
			candles = candles[1:]
		}
	}
	m.candles[timeframe] = candles
	m.lastPrice = candle.Close
	m.touch()
}

// AddTrade appends a trade to the bounded trade history
func (m *MarketData) AddTrade(trade Trade) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.trades = append(m.trades, trade)
	if len(m.trades) > maxTrades {
		m.trades = m.trades[1:]
	}
	m.lastPrice = trade.Price
	m.touch()
}

// SetOrderBook replaces the current depth snapshot
func (m *MarketData) SetOrderBook(ob *OrderBook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orderbook = ob
	m.touch()
}

// SetFunding replaces the current funding snapshot
func (m *MarketData) SetFunding(f *FundingRate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.funding = f
	m.touch()
}

// Candles returns a copy of the candle history for a timeframe, oldest first
func (m *MarketData) Candles(timeframe string) []Candle {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Candle(nil), m.candles[timeframe]...)
}

// ClosedCandles returns only the closed candles for a timeframe
func (m *MarketData) ClosedCandles(timeframe string) []Candle {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Candle, 0, len(m.candles[timeframe]))
	for _, c := range m.candles[timeframe] {
		if c.IsClosed {
			out = append(out, c)
		}
	}
	return out
}

// RecentTrades returns up to count most recent trades, oldest first
func (m *MarketData) RecentTrades(count int) []Trade {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if count > len(m.trades) {
		count = len(m.trades)
	}
	return append([]Trade(nil), m.trades[len(m.trades)-count:]...)
}

// OrderBook returns the latest depth snapshot, nil before the first update
func (m *MarketData) OrderBook() *OrderBook {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.orderbook
}

// Funding returns the latest funding snapshot, nil before the first update
func (m *MarketData) Funding() *FundingRate {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.funding
}

// LastPrice returns the most recently observed trade or close price
func (m *MarketData) LastPrice() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastPrice
}

// LastUpdate returns the time of the most recent data update
func (m *MarketData) LastUpdate() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastUpdate
}

func (m *MarketData) touch() {
	m.lastUpdate = time.Now().UTC()
}
