package features

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

// LiquidationFeatures holds liquidation structure features (slots 71-80)
type LiquidationFeatures struct {
	LongLiqDensity1Pct  float64 `json:"long_liq_density_1pct"`
	LongLiqDensity2Pct  float64 `json:"long_liq_density_2pct"`
	ShortLiqDensity1Pct float64 `json:"short_liq_density_1pct"`
	ShortLiqDensity2Pct float64 `json:"short_liq_density_2pct"`

	DistanceToLongLiq  float64 `json:"distance_to_long_liq"`
	DistanceToShortLiq float64 `json:"distance_to_short_liq"`

	LiqImbalance      float64 `json:"liq_imbalance"`
	RecentLiqVolume1h  float64 `json:"recent_liq_volume_1h"`
	RecentLiqVolume24h float64 `json:"recent_liq_volume_24h"`
	LiqCascadeRisk     float64 `json:"liq_cascade_risk"` // 0-1
}

// LiquidationLevel is one level of the liquidation heatmap
type LiquidationLevel struct {
	Price  float64
	Volume float64
	Side   string // "long" or "short"
}

const (
	coinglassBaseURL = "https://open-api.coinglass.com/public/v2"

	// significantZoneVolume is the minimum USD volume for a level to count
	// as a liquidation zone.
	significantZoneVolume = 1_000_000
)

// LiquidationProvider fetches the Coinglass liquidation heatmap behind a
// circuit breaker. Without an API key it synthesizes plausible values.
type LiquidationProvider struct {
	apiKey   string
	cacheTTL time.Duration
	client   *http.Client
	breaker  *gobreaker.CircuitBreaker

	mu         sync.Mutex
	levels     []LiquidationLevel
	lastUpdate time.Time
	rng        *rand.Rand
}

// NewLiquidationProvider creates a liquidation data provider. An empty
// apiKey switches the provider to synthetic data.
func NewLiquidationProvider(apiKey string, cacheTTL time.Duration) *LiquidationProvider {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "coinglass",
		MaxRequests: 3,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
	})

	return &LiquidationProvider{
		apiKey:   apiKey,
		cacheTTL: cacheTTL,
		client:   &http.Client{Timeout: providerTimeout},
		breaker:  breaker,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Degraded reports whether the provider runs on synthetic data
func (p *LiquidationProvider) Degraded() bool {
	return p.apiKey == ""
}

// Calculate returns the current liquidation features for the given price
func (p *LiquidationProvider) Calculate(ctx context.Context, currentPrice float64) LiquidationFeatures {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.apiKey == "" {
		return p.syntheticFeatures()
	}

	p.refreshLevels(ctx)

	var f LiquidationFeatures
	if len(p.levels) == 0 {
		return f
	}

	f.LongLiqDensity1Pct = density(p.levels, currentPrice, "long", 0.01)
	f.LongLiqDensity2Pct = density(p.levels, currentPrice, "long", 0.02)
	f.ShortLiqDensity1Pct = density(p.levels, currentPrice, "short", 0.01)
	f.ShortLiqDensity2Pct = density(p.levels, currentPrice, "short", 0.02)

	f.DistanceToLongLiq = nearestZone(p.levels, currentPrice, "long")
	f.DistanceToShortLiq = nearestZone(p.levels, currentPrice, "short")

	f.LiqImbalance = imbalance(p.levels)

	f.RecentLiqVolume1h = p.fetchRecentVolume(ctx, "h1")
	f.RecentLiqVolume24h = p.fetchRecentVolume(ctx, "h24")

	f.LiqCascadeRisk = cascadeRisk(&f)

	return f
}

func (p *LiquidationProvider) refreshLevels(ctx context.Context) {
	if time.Since(p.lastUpdate) < p.cacheTTL {
		return
	}

	result, err := p.breaker.Execute(func() (interface{}, error) {
		url := coinglassBaseURL + "/liquidation_heatmap?symbol=BTC"

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("coinglassSecret", p.apiKey)

		resp, err := p.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("coinglass returned status %d", resp.StatusCode)
		}

		var body struct {
			Success bool `json:"success"`
			Data    []struct {
				Price  float64 `json:"price"`
				Volume float64 `json:"volume"`
				Side   string  `json:"side"`
			} `json:"data"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return nil, fmt.Errorf("decode coinglass response: %w", err)
		}
		if !body.Success {
			return nil, fmt.Errorf("coinglass request unsuccessful")
		}

		levels := make([]LiquidationLevel, 0, len(body.Data))
		for _, item := range body.Data {
			side := item.Side
			if side == "" {
				side = "long"
			}
			levels = append(levels, LiquidationLevel{
				Price:  item.Price,
				Volume: item.Volume,
				Side:   side,
			})
		}
		return levels, nil
	})
	if err != nil {
		log.Warn().Err(err).Msg("Liquidation heatmap fetch failed")
		return
	}

	p.levels = result.([]LiquidationLevel)
	p.lastUpdate = time.Now().UTC()
}

func (p *LiquidationProvider) fetchRecentVolume(ctx context.Context, timeType string) float64 {
	result, err := p.breaker.Execute(func() (interface{}, error) {
		url := coinglassBaseURL + "/liquidation_info?symbol=BTC&time_type=" + timeType

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("coinglassSecret", p.apiKey)

		resp, err := p.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("coinglass returned status %d", resp.StatusCode)
		}

		var body struct {
			Success bool `json:"success"`
			Data    struct {
				VolUSD float64 `json:"volUsd"`
			} `json:"data"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return nil, fmt.Errorf("decode coinglass response: %w", err)
		}
		return body.Data.VolUSD, nil
	})
	if err != nil {
		log.Warn().Err(err).Str("time_type", timeType).Msg("Liquidation volume fetch failed")
		return 0
	}
	return result.(float64)
}

func (p *LiquidationProvider) syntheticFeatures() LiquidationFeatures {
	var f LiquidationFeatures

	f.LongLiqDensity1Pct = uniform(p.rng, 1_000_000, 20_000_000)
	f.LongLiqDensity2Pct = f.LongLiqDensity1Pct * uniform(p.rng, 1.5, 3)
	f.ShortLiqDensity1Pct = uniform(p.rng, 1_000_000, 20_000_000)
	f.ShortLiqDensity2Pct = f.ShortLiqDensity1Pct * uniform(p.rng, 1.5, 3)

	f.DistanceToLongLiq = uniform(p.rng, 0.005, 0.03)
	f.DistanceToShortLiq = uniform(p.rng, 0.005, 0.03)

	total := f.LongLiqDensity2Pct + f.ShortLiqDensity2Pct
	if total > 0 {
		f.LiqImbalance = (f.LongLiqDensity2Pct - f.ShortLiqDensity2Pct) / total
	}

	f.RecentLiqVolume1h = uniform(p.rng, 5_000_000, 50_000_000)
	f.RecentLiqVolume24h = f.RecentLiqVolume1h * uniform(p.rng, 10, 30)
	f.LiqCascadeRisk = uniform(p.rng, 0.1, 0.4)

	return f
}

// density sums liquidation volume within pctRange of the price on one side.
// Long liquidations sit below price, short liquidations above.
func density(levels []LiquidationLevel, currentPrice float64, side string, pctRange float64) float64 {
	if len(levels) == 0 || currentPrice == 0 {
		return 0
	}

	var total float64
	if side == "long" {
		threshold := currentPrice * (1 - pctRange)
		for _, l := range levels {
			if l.Side == "long" && l.Price >= threshold && l.Price < currentPrice {
				total += l.Volume
			}
		}
	} else {
		threshold := currentPrice * (1 + pctRange)
		for _, l := range levels {
			if l.Side == "short" && l.Price <= threshold && l.Price > currentPrice {
				total += l.Volume
			}
		}
	}
	return total
}

// nearestZone returns the relative distance to the nearest significant
// liquidation zone on one side, defaulting to 10% when none exists.
func nearestZone(levels []LiquidationLevel, currentPrice float64, side string) float64 {
	if len(levels) == 0 || currentPrice == 0 {
		return 0
	}

	if side == "long" {
		best := 0.0
		found := false
		for _, l := range levels {
			if l.Side == "long" && l.Volume >= significantZoneVolume && l.Price < currentPrice {
				if !found || l.Price > best {
					best = l.Price
					found = true
				}
			}
		}
		if found {
			return (currentPrice - best) / currentPrice
		}
	} else {
		best := 0.0
		found := false
		for _, l := range levels {
			if l.Side == "short" && l.Volume >= significantZoneVolume && l.Price > currentPrice {
				if !found || l.Price < best {
					best = l.Price
					found = true
				}
			}
		}
		if found {
			return (best - currentPrice) / currentPrice
		}
	}

	return 0.1
}

// imbalance returns (long - short) / total liquidation volume in [-1, 1]
func imbalance(levels []LiquidationLevel) float64 {
	var longVol, shortVol float64
	for _, l := range levels {
		if l.Side == "long" {
			longVol += l.Volume
		} else if l.Side == "short" {
			shortVol += l.Volume
		}
	}
	total := longVol + shortVol
	if total == 0 {
		return 0
	}
	return (longVol - shortVol) / total
}

// cascadeRisk composes a 0-1 cascade liquidation risk from density and
// zone proximity.
func cascadeRisk(f *LiquidationFeatures) float64 {
	risk := 0.0

	if f.LongLiqDensity1Pct > 10_000_000 {
		risk += 0.2
	}
	if f.ShortLiqDensity1Pct > 10_000_000 {
		risk += 0.2
	}

	if f.DistanceToLongLiq < 0.01 {
		risk += 0.3
	} else if f.DistanceToLongLiq < 0.02 {
		risk += 0.15
	}

	if f.DistanceToShortLiq < 0.01 {
		risk += 0.3
	} else if f.DistanceToShortLiq < 0.02 {
		risk += 0.15
	}

	if risk > 1 {
		return 1
	}
	return risk
}
