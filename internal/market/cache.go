// Package market provides the optional Redis cache in front of the
// exchange price feed, plus the latest-snapshot store the status API
// reads from.
package market

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/coinpulse/signalengine/internal/metrics"
)

const (
	priceKeyPrefix    = "signalengine:price:"
	snapshotKeyPrefix = "signalengine:snapshot:"

	// Cache operations must never stall a tick
	opTimeout = 500 * time.Millisecond
)

// PriceEntry is a cached last-trade price with its fetch time.
type PriceEntry struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timestamp"`
}

// Snapshot is the engine's view of the market at its last tick, kept
// for the status endpoint and cross-process diagnostics.
type Snapshot struct {
	Symbol    string                 `json:"symbol"`
	Price     float64                `json:"price"`
	Regime    string                 `json:"regime"`
	Features  map[string]interface{} `json:"features,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// RedisCache caches prices and snapshots in Redis. A nil *RedisCache
// is valid and all operations degrade to misses, which is how the bots
// run when Redis is not configured.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

// NewRedisCache wraps a Redis client. A nil client returns a nil cache.
// Zero TTL defaults to five minutes.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if client == nil {
		return nil
	}
	if ttl == 0 {
		ttl = 5 * time.Minute
	}
	return &RedisCache{client: client, ttl: ttl, now: time.Now}
}

// GetPrice retrieves a cached price. Any Redis error is a miss.
func (c *RedisCache) GetPrice(ctx context.Context, symbol string) (float64, bool) {
	if c == nil || c.client == nil {
		return 0, false
	}
	metrics.RecordRedisOperation("get")

	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	cached, err := c.client.Get(opCtx, priceKeyPrefix+symbol).Result()
	if err != nil {
		if err != redis.Nil {
			log.Debug().Err(err).Str("symbol", symbol).Msg("Redis get error, treating as cache miss")
		}
		return 0, false
	}

	var entry PriceEntry
	if err := json.Unmarshal([]byte(cached), &entry); err != nil {
		log.Warn().Err(err).Str("symbol", symbol).Msg("Failed to unmarshal cached price")
		return 0, false
	}
	return entry.Price, true
}

// SetPrice stores a price with the configured TTL. Failure is logged
// and returned but callers are expected to carry on.
func (c *RedisCache) SetPrice(ctx context.Context, symbol string, price float64) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("cache not initialized")
	}
	metrics.RecordRedisOperation("set")

	entry := PriceEntry{Symbol: symbol, Price: price, Timestamp: c.now()}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal price entry: %w", err)
	}

	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := c.client.Set(opCtx, priceKeyPrefix+symbol, data, c.ttl).Err(); err != nil {
		log.Warn().Err(err).Str("symbol", symbol).Msg("Failed to cache price")
		return err
	}
	return nil
}

// SetSnapshot stores the engine's latest market snapshot.
func (c *RedisCache) SetSnapshot(ctx context.Context, snap *Snapshot) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("cache not initialized")
	}
	metrics.RecordRedisOperation("set")

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := c.client.Set(opCtx, snapshotKeyPrefix+snap.Symbol, data, c.ttl).Err(); err != nil {
		log.Warn().Err(err).Str("symbol", snap.Symbol).Msg("Failed to cache snapshot")
		return err
	}
	return nil
}

// GetSnapshot retrieves the latest snapshot for a symbol, or nil when
// none is cached.
func (c *RedisCache) GetSnapshot(ctx context.Context, symbol string) (*Snapshot, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}
	metrics.RecordRedisOperation("get")

	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	cached, err := c.client.Get(opCtx, snapshotKeyPrefix+symbol).Result()
	if err != nil {
		if err != redis.Nil {
			log.Debug().Err(err).Str("symbol", symbol).Msg("Redis get error, treating as cache miss")
		}
		return nil, false
	}

	var snap Snapshot
	if err := json.Unmarshal([]byte(cached), &snap); err != nil {
		log.Warn().Err(err).Str("symbol", symbol).Msg("Failed to unmarshal cached snapshot")
		return nil, false
	}
	return &snap, true
}

// Delete removes the cached price for a symbol.
func (c *RedisCache) Delete(ctx context.Context, symbol string) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("cache not initialized")
	}
	metrics.RecordRedisOperation("delete")

	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := c.client.Del(opCtx, priceKeyPrefix+symbol).Err(); err != nil {
		return fmt.Errorf("failed to delete cache key: %w", err)
	}
	return nil
}

// Health checks the Redis connection.
func (c *RedisCache) Health(ctx context.Context) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("cache not initialized")
	}

	opCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := c.client.Ping(opCtx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}
