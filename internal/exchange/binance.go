package exchange

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Client wraps the Binance futures REST API for read-only market data.
// All calls go through a shared rate limiter and the retry helper.
type Client struct {
	api         *futures.Client
	symbol      string
	limiter     *rate.Limiter
	retryConfig RetryConfig
}

// ClientConfig contains configuration for the Binance client
type ClientConfig struct {
	APIKey      string
	APISecret   string
	Testnet     bool
	Symbol      string
	RetryConfig RetryConfig
}

// NewClient creates a new Binance futures market data client
func NewClient(config ClientConfig) *Client {
	if config.Testnet {
		futures.UseTestnet = true
		log.Info().Msg("Binance futures client initialized (TESTNET mode)")
	} else {
		log.Info().Msg("Binance futures client initialized (LIVE data mode)")
	}

	api := futures.NewClient(config.APIKey, config.APISecret)

	// Binance allows 2400 weight/min on futures; 10 req/s keeps us well under
	limiter := rate.NewLimiter(rate.Limit(10), 20)

	return &Client{
		api:         api,
		symbol:      config.Symbol,
		limiter:     limiter,
		retryConfig: config.RetryConfig,
	}
}

// Symbol returns the configured trading symbol
func (c *Client) Symbol() string {
	return c.symbol
}

// FetchCandles fetches historical klines for a timeframe, oldest first
func (c *Client) FetchCandles(ctx context.Context, timeframe string, limit int) ([]Candle, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	var klines []*futures.Kline
	err := WithRetry(ctx, c.retryConfig, func() error {
		var retryErr error
		klines, retryErr = c.api.NewKlinesService().
			Symbol(c.symbol).
			Interval(timeframe).
			Limit(limit).
			Do(ctx)
		return retryErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s candles: %w", timeframe, err)
	}

	candles := make([]Candle, 0, len(klines))
	for _, k := range klines {
		candle, err := convertKline(k)
		if err != nil {
			log.Warn().Err(err).Str("timeframe", timeframe).Msg("Skipping malformed kline")
			continue
		}
		candles = append(candles, candle)
	}

	log.Debug().
		Str("timeframe", timeframe).
		Int("count", len(candles)).
		Msg("Historical candles fetched")

	return candles, nil
}

// FetchFundingRate fetches the current funding rate and mark price
func (c *Client) FetchFundingRate(ctx context.Context) (*FundingRate, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	var premiums []*futures.PremiumIndex
	err := WithRetry(ctx, c.retryConfig, func() error {
		var retryErr error
		premiums, retryErr = c.api.NewPremiumIndexService().
			Symbol(c.symbol).
			Do(ctx)
		return retryErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch funding rate: %w", err)
	}
	if len(premiums) == 0 {
		return nil, fmt.Errorf("no premium index data for %s", c.symbol)
	}

	p := premiums[0]
	fundingRate, _ := strconv.ParseFloat(p.LastFundingRate, 64)
	markPrice, _ := strconv.ParseFloat(p.MarkPrice, 64)

	return &FundingRate{
		Timestamp:       time.Now().UTC(),
		FundingRate:     fundingRate,
		MarkPrice:       markPrice,
		NextFundingTime: time.UnixMilli(p.NextFundingTime).UTC(),
	}, nil
}

// FetchOrderBook fetches a depth snapshot
func (c *Client) FetchOrderBook(ctx context.Context, limit int) (*OrderBook, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	var depth *futures.DepthResponse
	err := WithRetry(ctx, c.retryConfig, func() error {
		var retryErr error
		depth, retryErr = c.api.NewDepthService().
			Symbol(c.symbol).
			Limit(limit).
			Do(ctx)
		return retryErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch order book: %w", err)
	}

	ob := &OrderBook{
		Timestamp: time.Now().UTC(),
		Bids:      make([]OrderBookLevel, 0, len(depth.Bids)),
		Asks:      make([]OrderBookLevel, 0, len(depth.Asks)),
	}
	for _, b := range depth.Bids {
		price, qty, err := b.Parse()
		if err != nil {
			continue
		}
		ob.Bids = append(ob.Bids, OrderBookLevel{Price: price, Quantity: qty})
	}
	for _, a := range depth.Asks {
		price, qty, err := a.Parse()
		if err != nil {
			continue
		}
		ob.Asks = append(ob.Asks, OrderBookLevel{Price: price, Quantity: qty})
	}

	return ob, nil
}

// FetchPrice fetches the current ticker price
func (c *Client) FetchPrice(ctx context.Context) (float64, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, fmt.Errorf("rate limiter: %w", err)
	}

	var prices []*futures.SymbolPrice
	err := WithRetry(ctx, c.retryConfig, func() error {
		var retryErr error
		prices, retryErr = c.api.NewListPricesService().
			Symbol(c.symbol).
			Do(ctx)
		return retryErr
	})
	if err != nil {
		return 0, fmt.Errorf("failed to fetch price: %w", err)
	}
	if len(prices) == 0 {
		return 0, fmt.Errorf("no price data for %s", c.symbol)
	}

	price, err := strconv.ParseFloat(prices[0].Price, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse price %q: %w", prices[0].Price, err)
	}

	return price, nil
}

// Bootstrap loads historical candles for all timeframes plus initial order
// book and funding snapshots into the market data store.
func (c *Client) Bootstrap(ctx context.Context, data *MarketData) error {
	for _, tf := range Timeframes {
		candles, err := c.FetchCandles(ctx, tf, maxCandles)
		if err != nil {
			return fmt.Errorf("bootstrap %s candles: %w", tf, err)
		}
		data.SetCandles(tf, candles)
		log.Info().
			Str("timeframe", tf).
			Int("count", len(candles)).
			Msg("Loaded historical candles")
	}

	ob, err := c.FetchOrderBook(ctx, 20)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to fetch initial order book")
	} else {
		data.SetOrderBook(ob)
	}

	funding, err := c.FetchFundingRate(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to fetch initial funding rate")
	} else {
		data.SetFunding(funding)
	}

	return nil
}

func convertKline(k *futures.Kline) (Candle, error) {
	open, err := strconv.ParseFloat(k.Open, 64)
	if err != nil {
		return Candle{}, fmt.Errorf("parse open %q: %w", k.Open, err)
	}
	high, err := strconv.ParseFloat(k.High, 64)
	if err != nil {
		return Candle{}, fmt.Errorf("parse high %q: %w", k.High, err)
	}
	low, err := strconv.ParseFloat(k.Low, 64)
	if err != nil {
		return Candle{}, fmt.Errorf("parse low %q: %w", k.Low, err)
	}
	closePrice, err := strconv.ParseFloat(k.Close, 64)
	if err != nil {
		return Candle{}, fmt.Errorf("parse close %q: %w", k.Close, err)
	}
	volume, _ := strconv.ParseFloat(k.Volume, 64)
	quoteVolume, _ := strconv.ParseFloat(k.QuoteAssetVolume, 64)

	return Candle{
		Timestamp:   time.UnixMilli(k.OpenTime).UTC(),
		Open:        open,
		High:        high,
		Low:         low,
		Close:       closePrice,
		Volume:      volume,
		QuoteVolume: quoteVolume,
		Trades:      k.TradeNum,
		IsClosed:    true,
	}, nil
}
