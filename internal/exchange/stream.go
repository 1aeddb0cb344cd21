package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	readTimeout    = 30 * time.Second
	reconnectDelay = 5 * time.Second
	writeTimeout   = 10 * time.Second
)

// Stream maintains a combined Binance futures websocket subscription and
// feeds every update into the market data store. It reconnects forever until
// the context is cancelled.
type Stream struct {
	baseURL string
	symbol  string
	data    *MarketData
}

// NewStream creates a stream for the given symbol. baseURL is the websocket
// endpoint without a path, e.g. wss://fstream.binance.com.
func NewStream(baseURL, symbol string, data *MarketData) *Stream {
	return &Stream{
		baseURL: baseURL,
		symbol:  strings.ToLower(symbol),
		data:    data,
	}
}

// URL returns the combined raw stream URL
func (s *Stream) URL() string {
	streams := []string{
		s.symbol + "@kline_1m",
		s.symbol + "@kline_3m",
		s.symbol + "@kline_5m",
		s.symbol + "@kline_15m",
		s.symbol + "@aggTrade",
		s.symbol + "@depth20@100ms",
		s.symbol + "@markPrice@1s",
	}
	return s.baseURL + "/ws/" + strings.Join(streams, "/")
}

// Run connects and processes messages until ctx is cancelled. Connection
// failures trigger a reconnect after a fixed delay.
func (s *Stream) Run(ctx context.Context) error {
	url := s.URL()
	log.Info().Str("url", url).Msg("Starting market data stream")

	for {
		if err := s.runOnce(ctx, url); err != nil {
			if ctx.Err() != nil {
				log.Info().Msg("Market data stream stopped")
				return ctx.Err()
			}
			log.Warn().Err(err).Dur("delay", reconnectDelay).Msg("Stream disconnected, reconnecting")
		}

		select {
		case <-ctx.Done():
			log.Info().Msg("Market data stream stopped")
			return ctx.Err()
		case <-time.After(reconnectDelay):
		}
	}
}

func (s *Stream) runOnce(ctx context.Context, url string) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	log.Info().Msg("WebSocket connected")

	// Close the connection when the context ends so ReadMessage unblocks
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
			return fmt.Errorf("set read deadline: %w", err)
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			if ne, ok := err.(interface{ Timeout() bool }); ok && ne.Timeout() {
				// Quiet stream, ping to keep the connection alive
				deadline := time.Now().Add(writeTimeout)
				if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
					return fmt.Errorf("ping: %w", err)
				}
				continue
			}
			return fmt.Errorf("read: %w", err)
		}

		if err := s.processMessage(message); err != nil {
			log.Error().Err(err).Msg("Failed to process stream message")
		}
	}
}

type streamEvent struct {
	EventType string          `json:"e"`
	Kline     json.RawMessage `json:"k"`

	// aggTrade fields
	TradeTime    int64  `json:"T"`
	Price        string `json:"p"`
	Quantity     string `json:"q"`
	IsBuyerMaker bool   `json:"m"`

	// depth fields
	Bids [][]string `json:"b"`
	Asks [][]string `json:"a"`

	// markPrice fields
	FundingRate string `json:"r"`
}

type klinePayload struct {
	StartTime   int64  `json:"t"`
	Interval    string `json:"i"`
	Open        string `json:"o"`
	High        string `json:"h"`
	Low         string `json:"l"`
	Close       string `json:"c"`
	Volume      string `json:"v"`
	QuoteVolume string `json:"q"`
	Trades      int64  `json:"n"`
	IsClosed    bool   `json:"x"`
}

func (s *Stream) processMessage(message []byte) error {
	var event streamEvent
	if err := json.Unmarshal(message, &event); err != nil {
		return fmt.Errorf("unmarshal event: %w", err)
	}

	switch event.EventType {
	case "kline":
		return s.handleKline(event.Kline)
	case "aggTrade":
		s.handleTrade(&event)
	case "depthUpdate":
		s.handleDepth(&event)
	case "markPriceUpdate":
		s.handleMarkPrice(&event)
	}

	return nil
}

func (s *Stream) handleKline(raw json.RawMessage) error {
	var k klinePayload
	if err := json.Unmarshal(raw, &k); err != nil {
		return fmt.Errorf("unmarshal kline: %w", err)
	}

	open, _ := strconv.ParseFloat(k.Open, 64)
	high, _ := strconv.ParseFloat(k.High, 64)
	low, _ := strconv.ParseFloat(k.Low, 64)
	closePrice, _ := strconv.ParseFloat(k.Close, 64)
	volume, _ := strconv.ParseFloat(k.Volume, 64)
	quoteVolume, _ := strconv.ParseFloat(k.QuoteVolume, 64)

	candle := Candle{
		Timestamp:   time.UnixMilli(k.StartTime).UTC(),
		Open:        open,
		High:        high,
		Low:         low,
		Close:       closePrice,
		Volume:      volume,
		QuoteVolume: quoteVolume,
		Trades:      k.Trades,
		IsClosed:    k.IsClosed,
	}

	s.data.UpdateCandle(k.Interval, candle)
	return nil
}

func (s *Stream) handleTrade(event *streamEvent) {
	price, _ := strconv.ParseFloat(event.Price, 64)
	quantity, _ := strconv.ParseFloat(event.Quantity, 64)

	s.data.AddTrade(Trade{
		Timestamp:    time.UnixMilli(event.TradeTime).UTC(),
		Price:        price,
		Quantity:     quantity,
		IsBuyerMaker: event.IsBuyerMaker,
	})
}

func (s *Stream) handleDepth(event *streamEvent) {
	ob := &OrderBook{
		Timestamp: time.Now().UTC(),
		Bids:      parseLevels(event.Bids),
		Asks:      parseLevels(event.Asks),
	}
	s.data.SetOrderBook(ob)
}

func (s *Stream) handleMarkPrice(event *streamEvent) {
	fundingRate, _ := strconv.ParseFloat(event.FundingRate, 64)
	markPrice, _ := strconv.ParseFloat(event.Price, 64)

	funding := &FundingRate{
		Timestamp:   time.Now().UTC(),
		FundingRate: fundingRate,
		MarkPrice:   markPrice,
	}
	if event.TradeTime > 0 {
		funding.NextFundingTime = time.UnixMilli(event.TradeTime).UTC()
	} else {
		funding.NextFundingTime = time.Now().UTC()
	}

	s.data.SetFunding(funding)
}

func parseLevels(raw [][]string) []OrderBookLevel {
	levels := make([]OrderBookLevel, 0, len(raw))
	for _, l := range raw {
		if len(l) < 2 {
			continue
		}
		price, err := strconv.ParseFloat(l[0], 64)
		if err != nil {
			continue
		}
		quantity, err := strconv.ParseFloat(l[1], 64)
		if err != nil {
			continue
		}
		levels = append(levels, OrderBookLevel{Price: price, Quantity: quantity})
	}
	return levels
}
