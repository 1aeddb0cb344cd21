package features

import (
	"math"
	"math/rand"
	"sort"

	"github.com/coinpulse/signalengine/internal/exchange"
)

// MicrostructureFeatures holds order flow features (slots 89-100)
type MicrostructureFeatures struct {
	CVD      float64 `json:"cvd"` // cumulative volume delta, USD
	CVDTrend float64 `json:"cvd_trend"`

	OrderbookImbalance   float64 `json:"orderbook_imbalance"`
	OrderbookImbalance10 float64 `json:"orderbook_imbalance_10"`

	LargeOrderFlow float64 `json:"large_order_flow"`
	TapeSpeed      float64 `json:"tape_speed"` // trades per minute
	AggressorRatio float64 `json:"aggressor_ratio"`

	SpreadCurrent    float64 `json:"spread_current"`
	SpreadPercentile float64 `json:"spread_percentile"`
	DepthRatio       float64 `json:"depth_ratio"`

	VWAPDistance float64 `json:"vwap_distance"`
	POCDistance  float64 `json:"poc_distance"`
}

const (
	maxCVDHistory    = 100
	maxSpreadHistory = 1000

	// largeOrderThreshold is the minimum USD value for a trade to count as
	// large order flow.
	largeOrderThreshold = 100_000

	// volumeProfileLevels bounds the volume profile size
	volumeProfileLevels = 50
)

// MicrostructureAnalyzer computes order flow features and keeps rolling CVD,
// spread, and volume profile state.
type MicrostructureAnalyzer struct {
	cvdHistory    []float64
	spreadHistory []float64
	volumeProfile map[float64]float64
}

// NewMicrostructureAnalyzer creates a microstructure analyzer
func NewMicrostructureAnalyzer() *MicrostructureAnalyzer {
	return &MicrostructureAnalyzer{
		volumeProfile: make(map[float64]float64),
	}
}

// Calculate computes all microstructure features
func (a *MicrostructureAnalyzer) Calculate(trades []exchange.Trade, orderbook *exchange.OrderBook, currentPrice, vwap float64) MicrostructureFeatures {
	f := MicrostructureFeatures{AggressorRatio: 0.5, SpreadPercentile: 50.0}

	f.CVD, f.CVDTrend = a.cvd(trades)

	if orderbook != nil {
		f.OrderbookImbalance, f.OrderbookImbalance10 = notionalImbalance(orderbook)
		f.SpreadCurrent = orderbook.SpreadPercent()
		f.DepthRatio = depthRatio(orderbook, 0.001)
	}

	f.LargeOrderFlow = largeOrderFlow(trades)
	f.TapeSpeed = float64(len(trades))
	if len(trades) > 0 {
		buys := 0
		for _, t := range trades {
			if t.IsBuy() {
				buys++
			}
		}
		f.AggressorRatio = float64(buys) / float64(len(trades))
	}

	f.SpreadPercentile = a.spreadPercentile(f.SpreadCurrent)

	if vwap != 0 {
		f.VWAPDistance = (currentPrice - vwap) / vwap
	}

	a.updateVolumeProfile(trades)
	if poc := a.pointOfControl(); poc > 0 && currentPrice > 0 {
		f.POCDistance = (currentPrice - poc) / currentPrice
	}

	return f
}

// cvd returns the cumulative volume delta over the trade window and its
// trend across the last 10 samples.
func (a *MicrostructureAnalyzer) cvd(trades []exchange.Trade) (cvd, trend float64) {
	if len(trades) == 0 {
		return 0, 0
	}

	var buyVolume, sellVolume float64
	for _, t := range trades {
		notional := t.Quantity * t.Price
		if t.IsBuy() {
			buyVolume += notional
		} else {
			sellVolume += notional
		}
	}
	cvd = buyVolume - sellVolume

	a.cvdHistory = append(a.cvdHistory, cvd)
	if len(a.cvdHistory) > maxCVDHistory {
		a.cvdHistory = a.cvdHistory[len(a.cvdHistory)-maxCVDHistory:]
	}

	if len(a.cvdHistory) >= 10 {
		recent := a.cvdHistory[len(a.cvdHistory)-10:]
		if recent[0] != 0 {
			trend = (recent[len(recent)-1] - recent[0]) / math.Abs(recent[0])
		}
	}

	return cvd, trend
}

func (a *MicrostructureAnalyzer) spreadPercentile(currentSpread float64) float64 {
	a.spreadHistory = append(a.spreadHistory, currentSpread)
	if len(a.spreadHistory) > maxSpreadHistory {
		a.spreadHistory = a.spreadHistory[len(a.spreadHistory)-maxSpreadHistory:]
	}

	if len(a.spreadHistory) < 2 {
		return 50.0
	}
	return percentile(currentSpread, a.spreadHistory)
}

// updateVolumeProfile accumulates traded notional into price levels rounded
// to the nearest 10, trimming to the top levels by volume.
func (a *MicrostructureAnalyzer) updateVolumeProfile(trades []exchange.Trade) {
	for _, t := range trades {
		level := math.Round(t.Price/10) * 10
		a.volumeProfile[level] += t.Quantity * t.Price
	}

	if len(a.volumeProfile) > volumeProfileLevels*2 {
		type levelVolume struct {
			level  float64
			volume float64
		}
		all := make([]levelVolume, 0, len(a.volumeProfile))
		for l, v := range a.volumeProfile {
			all = append(all, levelVolume{l, v})
		}
		sort.Slice(all, func(i, j int) bool { return all[i].volume > all[j].volume })

		trimmed := make(map[float64]float64, volumeProfileLevels)
		for _, lv := range all[:volumeProfileLevels] {
			trimmed[lv.level] = lv.volume
		}
		a.volumeProfile = trimmed
	}
}

// pointOfControl returns the price level with the highest traded volume
func (a *MicrostructureAnalyzer) pointOfControl() float64 {
	var poc, best float64
	for level, volume := range a.volumeProfile {
		if volume > best {
			best = volume
			poc = level
		}
	}
	return poc
}

// notionalImbalance returns the full book and top-10 notional imbalance
func notionalImbalance(ob *exchange.OrderBook) (full, top10 float64) {
	var totalBid, totalAsk float64
	for _, b := range ob.Bids {
		totalBid += b.Quantity * b.Price
	}
	for _, a := range ob.Asks {
		totalAsk += a.Quantity * a.Price
	}
	if total := totalBid + totalAsk; total > 0 {
		full = (totalBid - totalAsk) / total
	}

	var bid10, ask10 float64
	for i, b := range ob.Bids {
		if i >= 10 {
			break
		}
		bid10 += b.Quantity * b.Price
	}
	for i, a := range ob.Asks {
		if i >= 10 {
			break
		}
		ask10 += a.Quantity * a.Price
	}
	if total := bid10 + ask10; total > 0 {
		top10 = (bid10 - ask10) / total
	}

	return full, top10
}

// depthRatio returns the share of book liquidity within priceRangePct of
// the mid price.
func depthRatio(ob *exchange.OrderBook, priceRangePct float64) float64 {
	if len(ob.Bids) == 0 || len(ob.Asks) == 0 {
		return 0
	}

	mid := ob.MidPrice()
	rangeUp := mid * (1 + priceRangePct)
	rangeDown := mid * (1 - priceRangePct)

	var bidDepth, askDepth, totalBid, totalAsk float64
	for _, b := range ob.Bids {
		totalBid += b.Quantity
		if b.Price >= rangeDown {
			bidDepth += b.Quantity
		}
	}
	for _, a := range ob.Asks {
		totalAsk += a.Quantity
		if a.Price <= rangeUp {
			askDepth += a.Quantity
		}
	}

	total := totalBid + totalAsk
	if total == 0 {
		return 0
	}
	return (bidDepth + askDepth) / total
}

// Synthetic returns plausible microstructure features for paper trading
// without a live trade feed.
func (a *MicrostructureAnalyzer) Synthetic(rng *rand.Rand) MicrostructureFeatures {
	return MicrostructureFeatures{
		CVD:                  uniform(rng, -1_000_000, 1_000_000),
		CVDTrend:             uniform(rng, -0.1, 0.1),
		OrderbookImbalance:   uniform(rng, -0.3, 0.3),
		OrderbookImbalance10: uniform(rng, -0.4, 0.4),
		LargeOrderFlow:       uniform(rng, 500_000, 5_000_000),
		TapeSpeed:            uniform(rng, 50, 500),
		AggressorRatio:       uniform(rng, 0.4, 0.6),
		SpreadCurrent:        uniform(rng, 0.01, 0.05),
		SpreadPercentile:     uniform(rng, 30, 70),
		DepthRatio:           uniform(rng, 0.1, 0.4),
		VWAPDistance:         uniform(rng, -0.01, 0.01),
		POCDistance:          uniform(rng, -0.02, 0.02),
	}
}

func largeOrderFlow(trades []exchange.Trade) float64 {
	var total float64
	for _, t := range trades {
		if notional := t.Quantity * t.Price; notional >= largeOrderThreshold {
			total += notional
		}
	}
	return total
}
