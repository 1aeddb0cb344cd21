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

	"github.com/coinpulse/signalengine/internal/alerts"
	"github.com/coinpulse/signalengine/internal/config"
	"github.com/coinpulse/signalengine/internal/daily"
	"github.com/coinpulse/signalengine/internal/db"
	"github.com/coinpulse/signalengine/internal/exchange"
	"github.com/coinpulse/signalengine/internal/health"
	"github.com/coinpulse/signalengine/internal/iq"
	"github.com/coinpulse/signalengine/internal/market"
	"github.com/coinpulse/signalengine/internal/metrics"
	"github.com/coinpulse/signalengine/internal/reports"
	"github.com/coinpulse/signalengine/internal/tracker"
	"github.com/coinpulse/signalengine/internal/verifier"
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
		Msg("Starting Verifier")

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

	// The verifier reads prices over REST only; the cache keeps
	// tracking alive through short exchange outages.
	client := exchange.NewClient(exchange.ClientConfig{
		APIKey:    cfg.Binance.APIKey,
		APISecret: cfg.Binance.APISecret,
		Testnet:   cfg.Binance.Testnet,
		Symbol:    cfg.Binance.Symbol,
	})
	prices := market.NewCachedPriceSource(client, cache, cfg.Binance.Symbol)

	scorer := iq.NewCalculator()
	seedScorer(ctx, database, scorer)

	v := verifier.New(verifier.Config{
		CheckInterval:     time.Duration(cfg.Verifier.SignalCheckInterval) * time.Second,
		HealthInterval:    time.Duration(cfg.Verifier.HealthCheckInterval) * time.Second,
		// Config counts Monday=0..Sunday=6; time.Weekday counts Sunday=0.
		WeeklyReportDay:   time.Weekday((cfg.Verifier.WeeklyReportDay + 1) % 7),
		HeartbeatInterval: 30 * time.Second,
	}, verifier.Deps{
		Store: database,
		Tracker: tracker.New(database, prices, scorer, tracker.Config{
			WinAmount:      cfg.Trading.NotionalValue * cfg.Trading.TPPercent,
			LossAmount:     -cfg.Trading.NotionalValue * cfg.Trading.SLPercent,
			NotionalValue:  cfg.Trading.NotionalValue,
			MaxHoldMinutes: cfg.Trading.MaxHoldMinutes,
		}),
		Daily:    daily.NewManager(database),
		Monitor:  health.NewMonitor(database, db.BotNameEngine),
		Scorer:   scorer,
		Reports:  reports.NewGenerator(database),
		Notifier: notifier,
	})

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error { return v.Run(ctx) })

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

	if err := group.Wait(); err != nil && err != context.Canceled {
		log.Fatal().Err(err).Msg("Verifier exited with error")
	}
	log.Info().Msg("Verifier stopped gracefully")
}

// seedScorer preloads the IQ trend window from persisted results so
// degradation detection survives restarts.
func seedScorer(ctx context.Context, database *db.DB, scorer *iq.Calculator) {
	recent, err := database.GetRecentResults(ctx, 20)
	if err != nil {
		log.Warn().Err(err).Msg("Could not seed IQ history")
		return
	}

	var scores []int
	for i := len(recent) - 1; i >= 0; i-- {
		if recent[i].TradeIQ != nil {
			scores = append(scores, *recent[i].TradeIQ)
		}
	}
	if len(scores) > 0 {
		scorer.Seed(scores)
		log.Info().Int("count", len(scores)).Msg("IQ history seeded")
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
