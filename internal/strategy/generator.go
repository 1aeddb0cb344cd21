package strategy

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/coinpulse/signalengine/internal/features"
	"github.com/coinpulse/signalengine/internal/regime"
)

// minSetupQuality is the lowest score a setup may have and still produce
// a signal.
const minSetupQuality = 70

// GeneratorConfig holds the fixed trade parameters
type GeneratorConfig struct {
	TPPercent      float64 // take profit distance, fraction of entry
	SLPercent      float64 // stop loss distance, fraction of entry
	PositionMargin float64
	Leverage       int
}

// DefaultGeneratorConfig returns the production trade parameters: 0.5% TP,
// 0.25% SL, $150 margin at 20x.
func DefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{
		TPPercent:      0.005,
		SLPercent:      0.0025,
		PositionMargin: 150,
		Leverage:       20,
	}
}

// Generator produces signals from feature snapshots
type Generator struct {
	cfg GeneratorConfig
}

// NewGenerator creates a signal generator
func NewGenerator(cfg GeneratorConfig) *Generator {
	return &Generator{cfg: cfg}
}

// Generate returns a signal when current conditions support one, or nil.
// The direction is validated against the regime twice: once inside strategy
// selection and once as a final guard.
func (g *Generator) Generate(f *features.AllFeatures, r regime.Result) *Signal {
	if !r.Tradeable() {
		log.Debug().Str("regime", string(r.Type)).Msg("regime not tradeable")
		return nil
	}

	strategyType, direction, ok := g.selectStrategy(f, r)
	if !ok {
		log.Debug().Msg("no valid strategy/direction found")
		return nil
	}

	if !validateDirectionVsRegime(direction, r) {
		log.Warn().
			Str("direction", string(direction)).
			Str("regime", string(r.Type)).
			Float64("exhaustion", r.ExhaustionRisk).
			Msg("rejected signal against regime direction")
		return nil
	}

	quality := setupQuality(f, direction)
	if quality < minSetupQuality {
		log.Debug().Int("setup_quality", quality).Msg("setup quality too low")
		return nil
	}

	now := time.Now().UTC()
	entry := f.CurrentPrice
	stopLoss, takeProfit := g.prices(entry, direction)

	signal := &Signal{
		SignalID:       newSignalID(now),
		CreatedAt:      now,
		Direction:      direction,
		Strategy:       strategyType,
		EntryPrice:     entry,
		StopLoss:       stopLoss,
		TakeProfit:     takeProfit,
		PositionMargin: g.cfg.PositionMargin,
		Leverage:       g.cfg.Leverage,
		Confidence:     r.Confidence,
		SetupQuality:   quality,
		Regime:         string(r.Type),
		Reasoning:      reasoning(f, r, strategyType, direction),
	}

	log.Info().
		Str("signal_id", signal.SignalID).
		Str("direction", string(direction)).
		Str("strategy", string(strategyType)).
		Str("regime", string(r.Type)).
		Msg("generated signal")
	return signal
}

// validateDirectionVsRegime enforces trend-aligned directions, with a
// counter-trend exception when exhaustion risk exceeds 0.7.
func validateDirectionVsRegime(direction Direction, r regime.Result) bool {
	if r.Type == regime.TrendingUp && direction == Short {
		if r.ExhaustionRisk > 0.7 {
			log.Info().Float64("exhaustion", r.ExhaustionRisk).Msg("counter-trend SHORT allowed on exhaustion")
			return true
		}
		return false
	}
	if r.Type == regime.TrendingDown && direction == Long {
		if r.ExhaustionRisk > 0.7 {
			log.Info().Float64("exhaustion", r.ExhaustionRisk).Msg("counter-trend LONG allowed on exhaustion")
			return true
		}
		return false
	}
	return true
}

// selectStrategy picks the strategy and direction for current conditions.
// Special conditions (extreme funding, nearby liquidation zones) take
// priority over the regime-default strategy.
func (g *Generator) selectStrategy(f *features.AllFeatures, r regime.Result) (Type, Direction, bool) {
	if f.Funding.FundingExtreme {
		if direction, ok := validateFundingFade(f, r); ok {
			log.Info().Str("direction", string(direction)).Msg("strategy: FUNDING_FADE")
			return FundingFade, direction, true
		}
	}

	liq := &f.Liquidation
	if liq.DistanceToLongLiq < 0.02 || liq.DistanceToShortLiq < 0.02 {
		if direction, ok := validateLiquidationHunt(f, r); ok {
			log.Info().Str("direction", string(direction)).Msg("strategy: LIQUIDATION_HUNT")
			return LiquidationHunt, direction, true
		}
	}

	switch r.Type {
	case regime.TrendingUp:
		if validateTrendMomentum(f, Long) {
			log.Info().Msg("strategy: TREND_MOMENTUM LONG")
			return TrendMomentum, Long, true
		}
	case regime.TrendingDown:
		if validateTrendMomentum(f, Short) {
			log.Info().Msg("strategy: TREND_MOMENTUM SHORT")
			return TrendMomentum, Short, true
		}
	case regime.Ranging:
		if direction, ok := validateRangeScalping(f); ok {
			log.Info().Str("direction", string(direction)).Msg("strategy: RANGE_SCALPING")
			return RangeScalping, direction, true
		}
	case regime.HighVolatility:
		if direction, ok := validateLiquidationHunt(f, r); ok {
			log.Info().Str("direction", string(direction)).Msg("strategy: LIQUIDATION_HUNT (high volatility)")
			return LiquidationHunt, direction, true
		}
	}

	return "", "", false
}

// validateTrendMomentum requires EMA alignment, a pullback into the EMA21
// zone, mid-range RSI, and order flow agreeing with the direction.
func validateTrendMomentum(f *features.AllFeatures, direction Direction) bool {
	tech := &f.Technical
	micro := &f.Microstructure

	ema21Distance := math.Abs(f.CurrentPrice-tech.EMA21) / tech.EMA21

	if direction == Long {
		if !(tech.EMA9 > tech.EMA21 && tech.EMA21 > tech.EMA50) {
			return false
		}
		if ema21Distance > 0.003 {
			return false
		}
		if tech.RSI14 < 40 || tech.RSI14 > 60 {
			return false
		}
		if micro.CVDTrend < 0 {
			return false
		}
		// Crowded longs make a long entry expensive
		if f.Funding.FundingCurrent > 0.0005 {
			return false
		}
		return true
	}

	if !(tech.EMA9 < tech.EMA21 && tech.EMA21 < tech.EMA50) {
		return false
	}
	if ema21Distance > 0.003 {
		return false
	}
	if tech.RSI14 < 40 || tech.RSI14 > 60 {
		return false
	}
	if micro.CVDTrend > 0 {
		return false
	}
	return true
}

// validateLiquidationHunt hunts the liquidation zone matching the regime:
// short liquidations above in uptrends (go long), long liquidations below
// in downtrends (go short), either side when ranging or volatile.
func validateLiquidationHunt(f *features.AllFeatures, r regime.Result) (Direction, bool) {
	liq := &f.Liquidation
	micro := &f.Microstructure

	huntShorts := liq.DistanceToShortLiq < 0.02 && liq.ShortLiqDensity2Pct > 5_000_000 &&
		micro.OrderbookImbalance > 0.1 && micro.CVDTrend > 0
	huntLongs := liq.DistanceToLongLiq < 0.02 && liq.LongLiqDensity2Pct > 5_000_000 &&
		micro.OrderbookImbalance < -0.1 && micro.CVDTrend < 0

	switch r.Type {
	case regime.TrendingUp:
		if huntShorts {
			log.Info().Float64("zone_dist", liq.DistanceToShortLiq).Msg("liquidation hunt: LONG in uptrend")
			return Long, true
		}
		return "", false
	case regime.TrendingDown:
		if huntLongs {
			log.Info().Float64("zone_dist", liq.DistanceToLongLiq).Msg("liquidation hunt: SHORT in downtrend")
			return Short, true
		}
		return "", false
	}

	if huntShorts {
		return Long, true
	}
	if huntLongs {
		return Short, true
	}
	return "", false
}

// validateFundingFade fades crowded funding, trend-aligned by default with
// a counter-trend exception above 0.7 exhaustion risk.
func validateFundingFade(f *features.AllFeatures, r regime.Result) (Direction, bool) {
	funding := &f.Funding
	tech := &f.Technical

	allowCounterTrend := r.ExhaustionRisk > 0.7

	switch r.Type {
	case regime.TrendingUp:
		if funding.FundingCurrent < -0.001 && tech.RSI14 < 50 {
			return Long, true
		}
		if funding.FundingCurrent > 0.001 && allowCounterTrend && tech.RSI14 > 70 {
			return Short, true
		}
		return "", false
	case regime.TrendingDown:
		if funding.FundingCurrent > 0.001 && tech.RSI14 > 50 {
			return Short, true
		}
		if funding.FundingCurrent < -0.001 && allowCounterTrend && tech.RSI14 < 30 {
			return Long, true
		}
		return "", false
	}

	if funding.FundingCurrent > 0.001 && tech.RSI14 > 60 {
		return Short, true
	}
	if funding.FundingCurrent < -0.001 && tech.RSI14 < 40 {
		return Long, true
	}
	return "", false
}

// validateRangeScalping trades range edges: oversold with a long lower wick
// at support, overbought with a long upper wick at resistance.
func validateRangeScalping(f *features.AllFeatures) (Direction, bool) {
	tech := &f.Technical
	pa := &f.PriceAction
	micro := &f.Microstructure

	if tech.RSI14 < 35 && pa.LowerWickRatio > 0.5 && micro.CVD > 0 {
		return Long, true
	}
	if tech.RSI14 > 65 && pa.UpperWickRatio > 0.5 && micro.CVD < 0 {
		return Short, true
	}
	return "", false
}

// setupQuality scores the setup 0-100: MTF confluence 20, order flow 20,
// key level proximity 15, on-chain 15, momentum 15, book imbalance 15.
func setupQuality(f *features.AllFeatures, direction Direction) int {
	mtf := &f.MTF
	tech := &f.Technical
	micro := &f.Microstructure
	pa := &f.PriceAction

	score := mtf.MTFConfluenceScore / 100 * 20

	if direction == Long {
		if micro.CVDTrend > 0 {
			score += 10
		}
		if micro.AggressorRatio > 0.5 {
			score += 10
		} else {
			score += 5
		}
	} else {
		if micro.CVDTrend < 0 {
			score += 10
		}
		if micro.AggressorRatio < 0.5 {
			score += 10
		} else {
			score += 5
		}
	}

	switch {
	case pa.KeyLevelDistance < 0.005:
		score += 15
	case pa.KeyLevelDistance < 0.01:
		score += 10
	default:
		score += 5
	}

	switch {
	case f.Onchain.WhaleActivityScore > 60:
		score += 15
	case f.Onchain.WhaleActivityScore > 40:
		score += 10
	default:
		score += 5
	}

	momentumUp := tech.MACDHistogram > 0
	mtfUp := mtf.TF3mMomentum > 0
	if direction == Short {
		momentumUp = tech.MACDHistogram < 0
		mtfUp = mtf.TF3mMomentum < 0
	}
	switch {
	case momentumUp && mtfUp:
		score += 15
	case momentumUp || mtfUp:
		score += 10
	default:
		score += 5
	}

	switch {
	case micro.OrderbookImbalance > 0.1 && direction == Long:
		score += 15
	case micro.OrderbookImbalance < -0.1 && direction == Short:
		score += 15
	case math.Abs(micro.OrderbookImbalance) < 0.1:
		score += 10
	default:
		score += 5
	}

	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}
	return int(score)
}

func (g *Generator) prices(entry float64, direction Direction) (stopLoss, takeProfit float64) {
	if direction == Long {
		return entry * (1 - g.cfg.SLPercent), entry * (1 + g.cfg.TPPercent)
	}
	return entry * (1 + g.cfg.SLPercent), entry * (1 - g.cfg.TPPercent)
}

func reasoning(f *features.AllFeatures, r regime.Result, strategyType Type, direction Direction) string {
	parts := []string{
		fmt.Sprintf("Regime: %s", r.Type),
		fmt.Sprintf("Strategy: %s", strategyType),
		fmt.Sprintf("Direction: %s", direction),
		fmt.Sprintf("RSI: %.1f", f.Technical.RSI14),
		fmt.Sprintf("ADX: %.1f", f.Technical.ADX),
		fmt.Sprintf("MTF: %d/3 aligned", f.MTF.MTFAlignment),
		fmt.Sprintf("Funding: %.3f%%", f.Funding.FundingCurrent*100),
	}
	return strings.Join(parts, " | ")
}
