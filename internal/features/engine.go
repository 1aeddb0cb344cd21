package features

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/coinpulse/signalengine/internal/exchange"
)

// AllFeatures is the full feature snapshot computed on each engine tick.
// The vector layout is fixed: technical 1-20, price action 21-35,
// multi-timeframe 36-50, on-chain 51-70, liquidation 71-80, funding 81-88,
// microstructure 89-100.
type AllFeatures struct {
	Timestamp    time.Time `json:"timestamp"`
	CurrentPrice float64   `json:"current_price"`

	Technical      TechnicalFeatures      `json:"technical"`
	PriceAction    PriceActionFeatures    `json:"price_action"`
	MTF            MTFFeatures            `json:"mtf"`
	Onchain        OnchainFeatures        `json:"onchain"`
	Liquidation    LiquidationFeatures    `json:"liquidation"`
	Funding        FundingFeatures        `json:"funding"`
	Microstructure MicrostructureFeatures `json:"microstructure"`
}

func boolToFloat(b bool) float64 {
	if b {
		return 1.0
	}
	return 0.0
}

// Vector flattens the snapshot into the 100-slot feature vector
func (f *AllFeatures) Vector() []float64 {
	features := make([]float64, 0, 100)

	t := &f.Technical
	features = append(features,
		t.RSI7, t.RSI14,
		t.EMA9, t.EMA21, t.EMA50, t.EMA200,
		t.MACDLine, t.MACDSignal, t.MACDHistogram,
		t.BBUpper, t.BBLower, t.BBPosition,
		t.ATR14, t.ATRPercentile,
		t.ADX, t.PlusDI, t.MinusDI,
		t.StochK, t.StochD,
		t.VWAP,
	)

	pa := &f.PriceAction
	features = append(features,
		pa.BodyPercent, pa.UpperWickRatio, pa.LowerWickRatio,
		pa.RangeExpansion, pa.BreakoutStrength,
		pa.SwingHighDist, pa.SwingLowDist,
		float64(pa.HHCount), float64(pa.LLCount), float64(pa.HLCount), float64(pa.LHCount),
		float64(pa.TrendStructure), float64(pa.ConsolidationBars),
		boolToFloat(pa.VolatilityContraction),
		pa.KeyLevelDistance,
	)

	m := &f.MTF
	features = append(features,
		float64(m.TF15mTrend), m.TF15mStrength, m.TF15mRSI,
		float64(m.TF5mTrend), m.TF5mStrength, m.TF5mRSI,
		m.TF3mMomentum, m.TF1mMomentum,
		float64(m.MTFAlignment), m.MTFConfluenceScore,
		m.HTFSupportDist, m.HTFResistanceDist,
		boolToFloat(m.TFDivergence),
		m.MomentumAcceleration, float64(m.TrendAgeBars),
	)

	oc := &f.Onchain
	features = append(features,
		oc.ExchangeInflow, oc.ExchangeOutflow, oc.ExchangeNetflow,
		oc.FlowVelocity, oc.FlowPercentile,
		float64(oc.LargeTxCount), oc.WhaleAccumulation, oc.WhaleDistribution,
		oc.SmartMoneyFlow, oc.WhaleActivityScore,
		oc.MinerReserve, oc.MinerOutflow, oc.HashRateTrend,
		float64(oc.ActiveAddresses), float64(oc.TransactionCount),
		oc.NVTRatio, oc.SOPR, oc.PuellMultiple,
		oc.SupplyOnExchange, oc.StablecoinSupplyRatio,
	)

	lq := &f.Liquidation
	features = append(features,
		lq.LongLiqDensity1Pct, lq.LongLiqDensity2Pct,
		lq.ShortLiqDensity1Pct, lq.ShortLiqDensity2Pct,
		lq.DistanceToLongLiq, lq.DistanceToShortLiq,
		lq.LiqImbalance, lq.RecentLiqVolume1h,
		lq.RecentLiqVolume24h, lq.LiqCascadeRisk,
	)

	fd := &f.Funding
	features = append(features,
		fd.FundingCurrent, fd.FundingPredicted,
		fd.FundingTrend8h, fd.FundingTrend24h,
		boolToFloat(fd.FundingExtreme),
		fd.FundingVsPriceDiv, float64(fd.TimeToFunding),
		fd.FundingPercentile,
	)

	mc := &f.Microstructure
	features = append(features,
		mc.CVD, mc.CVDTrend,
		mc.OrderbookImbalance, mc.OrderbookImbalance10,
		mc.LargeOrderFlow, mc.TapeSpeed,
		mc.AggressorRatio, mc.SpreadCurrent,
		mc.SpreadPercentile, mc.DepthRatio,
		mc.VWAPDistance, mc.POCDistance,
	)

	return features
}

// Map flattens all feature fields into a single-level map keyed by their
// snake_case names, for the JSONB feature snapshot column.
func (f *AllFeatures) Map() (map[string]interface{}, error) {
	result := map[string]interface{}{
		"timestamp":     f.Timestamp.UTC().Format(time.RFC3339),
		"current_price": f.CurrentPrice,
	}

	groups := []interface{}{
		f.Technical, f.PriceAction, f.MTF, f.Onchain,
		f.Liquidation, f.Funding, f.Microstructure,
	}
	for _, g := range groups {
		raw, err := json.Marshal(g)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal feature group: %w", err)
		}
		var fields map[string]interface{}
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, fmt.Errorf("failed to flatten feature group: %w", err)
		}
		for k, v := range fields {
			result[k] = v
		}
	}

	return result, nil
}

// Engine combines all feature analyzers into one snapshot per tick
type Engine struct {
	technical      *TechnicalAnalyzer
	priceAction    *PriceActionAnalyzer
	mtf            *MTFAnalyzer
	onchain        *OnchainProvider
	liquidation    *LiquidationProvider
	funding        *FundingAnalyzer
	microstructure *MicrostructureAnalyzer

	useMock bool
	rng     *rand.Rand

	mu   sync.RWMutex
	last *AllFeatures
}

// EngineConfig configures the feature engine and its external providers
type EngineConfig struct {
	GlassnodeAPIKey string
	CoinglassAPIKey string
	ProviderTTL     time.Duration

	// UseMock switches external data sources to synthetic values for
	// paper trading without API keys.
	UseMock bool
}

// NewEngine creates a feature engine with all analyzers initialized
func NewEngine(cfg EngineConfig) *Engine {
	if cfg.ProviderTTL <= 0 {
		cfg.ProviderTTL = 5 * time.Minute
	}
	return &Engine{
		technical:      NewTechnicalAnalyzer(),
		priceAction:    NewPriceActionAnalyzer(),
		mtf:            NewMTFAnalyzer(),
		onchain:        NewOnchainProvider(cfg.GlassnodeAPIKey, cfg.ProviderTTL),
		liquidation:    NewLiquidationProvider(cfg.CoinglassAPIKey, cfg.ProviderTTL),
		funding:        NewFundingAnalyzer(),
		microstructure: NewMicrostructureAnalyzer(),
		useMock:        cfg.UseMock,
		rng:            rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Calculate computes the full 100-feature snapshot from current market data.
// External provider failures degrade to cached or synthetic values rather
// than failing the snapshot.
func (e *Engine) Calculate(ctx context.Context, data *exchange.MarketData) *AllFeatures {
	f := &AllFeatures{
		Timestamp:    time.Now().UTC(),
		CurrentPrice: data.LastPrice(),
		Technical:    TechnicalFeatures{RSI7: 50, RSI14: 50, BBPosition: 0.5, ATRPercentile: 50, StochK: 50, StochD: 50},
		Funding:      FundingFeatures{FundingPercentile: 50},
		Microstructure: MicrostructureFeatures{
			AggressorRatio:   0.5,
			SpreadPercentile: 50,
		},
	}

	candles5m := data.Candles("5m")
	if len(candles5m) > 0 {
		f.Technical = e.technical.Calculate(candles5m)
		f.PriceAction = e.priceAction.Calculate(candles5m)
	}

	byTimeframe := make(map[string][]exchange.Candle, len(exchange.Timeframes))
	for _, tf := range exchange.Timeframes {
		byTimeframe[tf] = data.Candles(tf)
	}
	f.MTF = e.mtf.Calculate(byTimeframe)

	if e.useMock {
		f.Onchain = e.onchain.syntheticFeatures()
		f.Liquidation = e.liquidation.syntheticFeatures()
	} else {
		f.Onchain = e.onchain.Calculate(ctx)
		f.Liquidation = e.liquidation.Calculate(ctx, f.CurrentPrice)
	}

	if funding := data.Funding(); funding != nil {
		f.Funding = e.funding.Calculate(funding.FundingRate, funding.NextFundingTime, f.CurrentPrice)
	} else if e.useMock {
		f.Funding = e.funding.Synthetic(e.rng)
	}

	if e.useMock {
		f.Microstructure = e.microstructure.Synthetic(e.rng)
	} else {
		f.Microstructure = e.microstructure.Calculate(
			data.RecentTrades(maxTradeWindow),
			data.OrderBook(),
			f.CurrentPrice,
			f.Technical.VWAP,
		)
	}

	e.mu.Lock()
	e.last = f
	e.mu.Unlock()

	log.Debug().
		Time("timestamp", f.Timestamp).
		Float64("price", f.CurrentPrice).
		Msg("calculated feature snapshot")

	return f
}

// maxTradeWindow bounds the trade slice passed to the microstructure
// analyzer to roughly one minute of aggregated trades.
const maxTradeWindow = 1000

// Last returns the most recent feature snapshot, or nil before the first
// calculation.
func (e *Engine) Last() *AllFeatures {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.last
}
