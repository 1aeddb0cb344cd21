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

// OnchainFeatures holds onchain flow features (slots 51-70)
type OnchainFeatures struct {
	ExchangeInflow  float64 `json:"exchange_inflow"`
	ExchangeOutflow float64 `json:"exchange_outflow"`
	ExchangeNetflow float64 `json:"exchange_netflow"`
	FlowVelocity    float64 `json:"flow_velocity"`
	FlowPercentile  float64 `json:"flow_percentile"`

	LargeTxCount       int     `json:"large_tx_count"`
	WhaleAccumulation  float64 `json:"whale_accumulation"`
	WhaleDistribution  float64 `json:"whale_distribution"`
	SmartMoneyFlow     float64 `json:"smart_money_flow"`
	WhaleActivityScore float64 `json:"whale_activity_score"`

	MinerReserve  float64 `json:"miner_reserve"`
	MinerOutflow  float64 `json:"miner_outflow"`
	HashRateTrend float64 `json:"hash_rate_trend"`

	ActiveAddresses  int     `json:"active_addresses"`
	TransactionCount int     `json:"transaction_count"`
	NVTRatio         float64 `json:"nvt_ratio"`
	SOPR             float64 `json:"sopr"`
	PuellMultiple    float64 `json:"puell_multiple"`

	SupplyOnExchange     float64 `json:"supply_on_exchange"`
	StablecoinSupplyRatio float64 `json:"stablecoin_supply_ratio"`
}

const (
	glassnodeBaseURL = "https://api.glassnode.com/v1/metrics"
	providerTimeout  = 10 * time.Second
)

// OnchainProvider fetches Glassnode metrics behind a circuit breaker, with a
// TTL cache. Without an API key it synthesizes plausible values so the
// feature vector keeps its full width in degraded mode.
type OnchainProvider struct {
	apiKey   string
	cacheTTL time.Duration
	client   *http.Client
	breaker  *gobreaker.CircuitBreaker

	mu          sync.Mutex
	cache       map[string]float64
	lastUpdate  time.Time
	flowHistory []float64
	rng         *rand.Rand
}

// NewOnchainProvider creates an onchain data provider. An empty apiKey
// switches the provider to synthetic data.
func NewOnchainProvider(apiKey string, cacheTTL time.Duration) *OnchainProvider {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "glassnode",
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

	return &OnchainProvider{
		apiKey:   apiKey,
		cacheTTL: cacheTTL,
		client:   &http.Client{Timeout: providerTimeout},
		breaker:  breaker,
		cache:    make(map[string]float64),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Degraded reports whether the provider runs on synthetic data
func (p *OnchainProvider) Degraded() bool {
	return p.apiKey == ""
}

// Calculate returns the current onchain features
func (p *OnchainProvider) Calculate(ctx context.Context) OnchainFeatures {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.apiKey == "" {
		return p.syntheticFeatures()
	}

	p.refreshCache(ctx)

	var f OnchainFeatures
	f.SOPR = 1.0
	f.PuellMultiple = 1.0
	f.FlowPercentile = 50.0
	f.WhaleActivityScore = 50.0

	f.ExchangeInflow = p.cache["exchange_inflow"]
	f.ExchangeOutflow = p.cache["exchange_outflow"]
	f.ExchangeNetflow = f.ExchangeInflow - f.ExchangeOutflow

	p.flowHistory = append(p.flowHistory, f.ExchangeNetflow)
	if len(p.flowHistory) > maxATRHistory {
		p.flowHistory = p.flowHistory[len(p.flowHistory)-maxATRHistory:]
	}
	f.FlowPercentile = percentile(f.ExchangeNetflow, p.flowHistory)
	if len(p.flowHistory) >= 2 {
		f.FlowVelocity = f.ExchangeNetflow - p.flowHistory[len(p.flowHistory)-2]
	}

	f.ActiveAddresses = int(p.cache["active_addresses"])
	f.TransactionCount = int(p.cache["transaction_count"])
	if v, ok := p.cache["sopr"]; ok {
		f.SOPR = v
	}
	f.MinerReserve = p.cache["miner_reserve"]
	f.SupplyOnExchange = p.cache["supply_on_exchange"]

	f.WhaleActivityScore = whaleScore(&f)

	return f
}

// refreshCache pulls all metrics when the cache TTL expired. Individual
// fetch failures leave the previous cached value in place.
func (p *OnchainProvider) refreshCache(ctx context.Context) {
	if time.Since(p.lastUpdate) < p.cacheTTL {
		return
	}

	metrics := map[string]string{
		"exchange_inflow":    "transactions/transfers_to_exchanges_count",
		"exchange_outflow":   "transactions/transfers_from_exchanges_count",
		"active_addresses":   "addresses/active_count",
		"transaction_count":  "transactions/count",
		"sopr":               "indicators/sopr",
		"miner_reserve":      "mining/balance",
		"supply_on_exchange": "distribution/balance_exchanges",
	}

	for key, metric := range metrics {
		value, err := p.fetchMetric(ctx, metric)
		if err != nil {
			log.Warn().Err(err).Str("metric", metric).Msg("Onchain metric fetch failed")
			continue
		}
		p.cache[key] = value
	}

	p.lastUpdate = time.Now().UTC()
	log.Debug().Msg("Onchain cache refreshed")
}

func (p *OnchainProvider) fetchMetric(ctx context.Context, metric string) (float64, error) {
	result, err := p.breaker.Execute(func() (interface{}, error) {
		url := fmt.Sprintf("%s/%s?a=BTC&i=24h&api_key=%s", glassnodeBaseURL, metric, p.apiKey)

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}

		resp, err := p.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("glassnode returned status %d", resp.StatusCode)
		}

		var points []struct {
			V float64 `json:"v"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&points); err != nil {
			return nil, fmt.Errorf("decode glassnode response: %w", err)
		}
		if len(points) == 0 {
			return nil, fmt.Errorf("empty glassnode response for %s", metric)
		}

		return points[len(points)-1].V, nil
	})
	if err != nil {
		return 0, err
	}
	return result.(float64), nil
}

// syntheticFeatures generates values in realistic ranges for degraded mode
func (p *OnchainProvider) syntheticFeatures() OnchainFeatures {
	var f OnchainFeatures

	f.ExchangeInflow = uniform(p.rng, 5000, 15000)
	f.ExchangeOutflow = uniform(p.rng, 4000, 14000)
	f.ExchangeNetflow = f.ExchangeInflow - f.ExchangeOutflow
	f.FlowVelocity = uniform(p.rng, -500, 500)
	f.FlowPercentile = uniform(p.rng, 30, 70)

	f.LargeTxCount = int(uniform(p.rng, 50, 150))
	f.WhaleAccumulation = uniform(p.rng, 0, 100)
	f.WhaleDistribution = uniform(p.rng, 0, 100)
	f.WhaleActivityScore = uniform(p.rng, 40, 60)

	f.ActiveAddresses = int(uniform(p.rng, 800000, 1200000))
	f.TransactionCount = int(uniform(p.rng, 200000, 400000))
	f.SOPR = uniform(p.rng, 0.98, 1.02)
	f.PuellMultiple = 1.0

	return f
}

func uniform(rng *rand.Rand, min, max float64) float64 {
	return min + rng.Float64()*(max-min)
}

// whaleScore composes a 0-100 activity score from whale metrics
func whaleScore(f *OnchainFeatures) float64 {
	score := 50.0

	if f.LargeTxCount > 100 {
		score += 10
	} else if f.LargeTxCount < 20 {
		score -= 10
	}

	netWhale := f.WhaleAccumulation - f.WhaleDistribution
	if netWhale > 0 {
		adj := netWhale * 2
		if adj > 20 {
			adj = 20
		}
		score += adj
	} else {
		adj := -netWhale * 2
		if adj > 20 {
			adj = 20
		}
		score -= adj
	}

	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// percentile returns the percentage of history values below current
func percentile(current float64, history []float64) float64 {
	if len(history) == 0 {
		return 50.0
	}
	below := 0
	for _, v := range history {
		if v < current {
			below++
		}
	}
	return float64(below) / float64(len(history)) * 100
}
