package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/coinpulse/signalengine/internal/ai"
	"github.com/coinpulse/signalengine/internal/alerts"
	"github.com/coinpulse/signalengine/internal/api"
	"github.com/coinpulse/signalengine/internal/config"
	"github.com/coinpulse/signalengine/internal/daily"
	"github.com/coinpulse/signalengine/internal/db"
	"github.com/coinpulse/signalengine/internal/engine"
	"github.com/coinpulse/signalengine/internal/exchange"
	"github.com/coinpulse/signalengine/internal/features"
	"github.com/coinpulse/signalengine/internal/gates"
	"github.com/coinpulse/signalengine/internal/market"
	"github.com/coinpulse/signalengine/internal/metrics"
	"github.com/coinpulse/signalengine/internal/regime"
	"github.com/coinpulse/signalengine/internal/strategy"
)

const (
	liveStreamURL    = "wss://fstream.binance.com"
	testnetStreamURL = "wss://stream.binancefuture.com"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	setupLogging(cfg)

	log.Info().
		Str("symbol", cfg.Binance.Symbol).
		Str("environment", cfg.App.Environment).
		Msg("Starting Signal Engine")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := db.New(ctx, cfg.Database.GetDSN())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer database.Close()
	log.Info().Msg("Database connection established")

	cache := setupCache(ctx, cfg)
	notifier := setupTelegram(cfg)

	// Market data: REST bootstrap, then the websocket stream keeps
	// candles, trades, book and funding current.
	client := exchange.NewClient(exchange.ClientConfig{
		APIKey:    cfg.Binance.APIKey,
		APISecret: cfg.Binance.APISecret,
		Testnet:   cfg.Binance.Testnet,
		Symbol:    cfg.Binance.Symbol,
	})
	data := exchange.NewMarketData()
	if err := client.Bootstrap(ctx, data); err != nil {
		log.Fatal().Err(err).Msg("Failed to bootstrap market data")
	}
	stream := exchange.NewStream(streamURL(cfg), cfg.Binance.Symbol, data)

	var predictor *ai.Predictor
	if cfg.AI.Enabled {
		predictor = ai.NewPredictor(cfg.AI.ConfidenceThreshold)
	}

	eng := engine.New(engine.Config{
		Symbol:            cfg.Binance.Symbol,
		TickInterval:      time.Duration(cfg.Engine.TickInterval) * time.Second,
		HeartbeatInterval: time.Duration(cfg.Engine.HeartbeatInterval) * time.Second,
	}, engine.Deps{
		Store: database,
		Data:  data,
		Features: features.NewEngine(features.EngineConfig{
			GlassnodeAPIKey: cfg.Providers.GlassnodeAPIKey,
			CoinglassAPIKey: cfg.Providers.CoinglassAPIKey,
			ProviderTTL:     time.Duration(cfg.Providers.CacheTTL) * time.Second,
			UseMock:         cfg.Providers.UseMock,
		}),
		Regimes: regime.NewDetector(),
		Generator: strategy.NewGenerator(strategy.GeneratorConfig{
			TPPercent:      cfg.Trading.TPPercent,
			SLPercent:      cfg.Trading.SLPercent,
			PositionMargin: cfg.Trading.PositionMargin,
			Leverage:       cfg.Trading.Leverage,
		}),
		Predictor: predictor,
		Gates:     gates.NewSystem(gateConfig(cfg)),
		Daily:     daily.NewManager(database),
		Notifier:  notifier,
		Cache:     cache,
	})

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error { return stream.Run(ctx) })
	group.Go(func() error { return eng.Run(ctx) })

	if cfg.Monitoring.EnableMetrics {
		metricsServer := metrics.NewServer(cfg.Monitoring.PrometheusPort, log.Logger)
		if err := metricsServer.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start metrics server")
		}
		updater := metrics.NewUpdater(database.Pool().(*pgxpool.Pool), 15*time.Second)
		group.Go(func() error {
			updater.Start(ctx)
			return nil
		})
		group.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return metricsServer.Shutdown(shutdownCtx)
		})
	}

	if cfg.API.Enabled {
		apiServer := api.NewServer(api.Config{
			Host:   cfg.API.Host,
			Port:   cfg.API.Port,
			Symbol: cfg.Binance.Symbol,
			Store:  database,
			Cache:  cache,
		})
		group.Go(apiServer.Start)
		group.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return apiServer.Stop(shutdownCtx)
		})
	}

	if err := group.Wait(); err != nil && err != context.Canceled {
		log.Fatal().Err(err).Msg("Signal engine exited with error")
	}
	log.Info().Msg("Signal engine stopped gracefully")
}

// streamURL picks the websocket endpoint matching the REST environment.
func streamURL(cfg *config.Config) string {
	if cfg.Binance.Testnet {
		return testnetStreamURL
	}
	return liveStreamURL
}

// gateConfig maps the loaded thresholds onto the gate pipeline.
func gateConfig(cfg *config.Config) gates.Config {
	return gates.Config{
		ContextMinScore:   cfg.Gates.ContextMinScore,
		RegimeMinConf:     cfg.Gates.RegimeConfidenceMin,
		MaxExhaustionRisk: cfg.Gates.ExhaustionRiskMax,
		MinStructure:      cfg.Gates.StructureQualityMin,
		MinSetupQuality:   int(cfg.Gates.SetupQualityMin),
		MinMTFAlignment:   cfg.Gates.MTFConfluenceMin,
		AIMinConfidence:   cfg.Gates.AIConfidenceMin,
		DailyTarget:       cfg.Trading.DailyTarget,
		DailyStop:         cfg.Trading.DailyStop,
		MaxDailyTrades:    cfg.Trading.MaxTrades,
		MaxConsecLosses:   cfg.Trading.MaxConsecLosses,
		LossCooldown:      time.Duration(cfg.Trading.CooldownMinutes) * time.Minute,
		FundingBufferMins: cfg.Gates.FundingBufferMinutes,
	}
}

// setupCache connects to Redis when enabled, nil otherwise.
func setupCache(ctx context.Context, cfg *config.Config) *market.RedisCache {
	if !cfg.Redis.Enabled {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Msg("Redis unreachable, running without cache")
		return nil
	}
	log.Info().Str("host", cfg.Redis.Host).Msg("Redis cache connected")
	return market.NewRedisCache(client, time.Duration(cfg.Providers.CacheTTL)*time.Second)
}

// setupTelegram wires the shared bot client into both the alert
// manager and the notifier. Returns nil when disabled.
func setupTelegram(cfg *config.Config) *alerts.Notifier {
	if !cfg.Telegram.Enabled || cfg.Telegram.Token == "" {
		log.Info().Msg("Telegram notifications disabled")
		return nil
	}
	alerter, err := alerts.NewTelegramAlerter(cfg.Telegram.Token, []int64{cfg.Telegram.ChatID})
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create Telegram alerter, running without notifications")
		return nil
	}
	alerts.SetDefaultManager(alerts.NewManager(alerter))
	return alerts.NewNotifier(alerter)
}

// setupLogging configures zerolog per the loaded config.
func setupLogging(cfg *config.Config) {
	if cfg.App.LogFormat == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	level, err := zerolog.ParseLevel(cfg.App.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}
