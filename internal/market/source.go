package market

import (
	"context"

	"github.com/rs/zerolog/log"
)

// PriceSource supplies the latest trade price for the configured symbol.
// The exchange client implements it.
type PriceSource interface {
	FetchPrice(ctx context.Context) (float64, error)
}

// CachedPriceSource fronts a PriceSource with the Redis cache. A fresh
// fetch refreshes the cache; when the fetch fails, a cached price
// within TTL is served so a brief exchange outage does not stall the
// verifier's tracking loop.
type CachedPriceSource struct {
	source PriceSource
	cache  *RedisCache
	symbol string
}

// NewCachedPriceSource wraps source. A nil cache passes fetches through.
func NewCachedPriceSource(source PriceSource, cache *RedisCache, symbol string) *CachedPriceSource {
	return &CachedPriceSource{source: source, cache: cache, symbol: symbol}
}

// FetchPrice implements PriceSource.
func (s *CachedPriceSource) FetchPrice(ctx context.Context) (float64, error) {
	price, err := s.source.FetchPrice(ctx)
	if err == nil {
		if s.cache != nil {
			// Best effort, the fetch already succeeded
			_ = s.cache.SetPrice(ctx, s.symbol, price)
		}
		return price, nil
	}

	if cached, ok := s.cache.GetPrice(ctx, s.symbol); ok {
		log.Warn().
			Err(err).
			Float64("cached_price", cached).
			Str("symbol", s.symbol).
			Msg("Price fetch failed, serving cached price")
		return cached, nil
	}

	return 0, err
}
