// Package verifier runs the independent outcome loop: it resolves
// pending signals against live prices, maintains the daily budget,
// watches the engine's heartbeat and publishes reports. It shares
// nothing with the engine but the database.
package verifier

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/coinpulse/signalengine/internal/alerts"
	"github.com/coinpulse/signalengine/internal/daily"
	"github.com/coinpulse/signalengine/internal/db"
	"github.com/coinpulse/signalengine/internal/health"
	"github.com/coinpulse/signalengine/internal/iq"
	"github.com/coinpulse/signalengine/internal/metrics"
	"github.com/coinpulse/signalengine/internal/reports"
	"github.com/coinpulse/signalengine/internal/tracker"
)

// Store is the persistence surface the verifier writes to directly.
type Store interface {
	PingHeartbeat(ctx context.Context, hb *db.Heartbeat) error
}

// Config holds the verifier loop intervals.
type Config struct {
	CheckInterval     time.Duration
	HealthInterval    time.Duration
	HeartbeatInterval time.Duration
	WeeklyReportDay   time.Weekday
}

// Verifier drives signal resolution and monitoring.
type Verifier struct {
	cfg     Config
	store   Store
	tracker *tracker.Tracker
	daily   *daily.Manager
	monitor *health.Monitor
	scorer  *iq.Calculator
	reports *reports.Generator

	notifier *alerts.Notifier

	lastDailyStatus db.DailyStatus
	lastIQLevel     string
	lastError       string

	now func() time.Time
}

// Deps bundles the components the verifier drives. Notifier may be
// nil; the verifier degrades to logging only.
type Deps struct {
	Store    Store
	Tracker  *tracker.Tracker
	Daily    *daily.Manager
	Monitor  *health.Monitor
	Scorer   *iq.Calculator
	Reports  *reports.Generator
	Notifier *alerts.Notifier
}

// New creates a verifier. Zero intervals fall back to production
// defaults (30s checks, 60s health, 30s heartbeats, weekly on Sunday).
func New(cfg Config, deps Deps) *Verifier {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = 30 * time.Second
	}
	if cfg.HealthInterval <= 0 {
		cfg.HealthInterval = 60 * time.Second
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}

	return &Verifier{
		cfg:             cfg,
		store:           deps.Store,
		tracker:         deps.Tracker,
		daily:           deps.Daily,
		monitor:         deps.Monitor,
		scorer:          deps.Scorer,
		reports:         deps.Reports,
		notifier:        deps.Notifier,
		lastDailyStatus: db.DailyStatusActive,
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// Run drives the check, health, heartbeat and schedule loops until
// ctx is done.
func (v *Verifier) Run(ctx context.Context) error {
	log.Info().
		Dur("check_interval", v.cfg.CheckInterval).
		Msg("verifier started")

	check := time.NewTicker(v.cfg.CheckInterval)
	defer check.Stop()
	healthTick := time.NewTicker(v.cfg.HealthInterval)
	defer healthTick.Stop()
	heartbeat := time.NewTicker(v.cfg.HeartbeatInterval)
	defer heartbeat.Stop()
	schedule := time.NewTicker(time.Minute)
	defer schedule.Stop()

	v.sendHeartbeat(ctx)

	// Pin the current date so the first schedule tick after a restart
	// does not replay the rollover.
	if _, err := v.daily.CheckNewDay(ctx); err != nil {
		log.Error().Err(err).Msg("failed to pin trading day")
	}

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("verifier stopping")
			return ctx.Err()
		case <-check.C:
			if err := v.CheckOnce(ctx); err != nil {
				v.lastError = err.Error()
				metrics.RecordError("check", "verifier")
				log.Error().Err(err).Msg("signal check failed")
			} else {
				v.lastError = ""
			}
		case <-healthTick.C:
			v.checkEngineHealth(ctx)
		case <-heartbeat.C:
			v.sendHeartbeat(ctx)
		case <-schedule.C:
			if err := v.rollover(ctx); err != nil {
				metrics.RecordError("rollover", "verifier")
				log.Error().Err(err).Msg("day rollover failed")
			}
		}
	}
}

// CheckOnce resolves pending signals once and folds any outcomes into
// the daily budget.
func (v *Verifier) CheckOnce(ctx context.Context) error {
	results, err := v.tracker.CheckSignals(ctx)
	if err != nil {
		return fmt.Errorf("failed to check signals: %w", err)
	}

	for _, res := range results {
		if !res.Changed {
			continue
		}
		if err := v.applyOutcome(ctx, res); err != nil {
			log.Error().Err(err).Str("signal_id", res.SignalID).Msg("failed to apply outcome")
		}
	}

	v.checkIQDegradation(ctx)
	return nil
}

// applyOutcome records one resolution: budget, metrics, notifications
// and the daily completion transition when a limit is hit.
func (v *Verifier) applyOutcome(ctx context.Context, res tracker.Result) error {
	state, err := v.daily.ApplyResult(ctx, daily.Result{
		Status:    res.Status,
		ResultPnL: res.ResultPnL,
	})
	if err != nil {
		return fmt.Errorf("failed to update daily budget: %w", err)
	}

	metrics.RecordResolution(string(res.Status), res.ResultPnL)
	metrics.UpdateDailyState(state.PnL, state.TradeCount)
	if res.TradeIQ > 0 {
		metrics.RecordTradeIQ(float64(res.TradeIQ))
	}

	log.Info().
		Str("signal_id", res.SignalID).
		Str("status", string(res.Status)).
		Float64("pnl", res.ResultPnL).
		Int("trade_iq", res.TradeIQ).
		Str("daily_status", string(state.Status)).
		Msg("signal resolved")

	if v.notifier != nil {
		if err := v.notifier.TradeResult(ctx, res, state); err != nil {
			log.Warn().Err(err).Msg("failed to send trade result alert")
		}
	}

	if state.Status.Terminal() && state.Status != v.lastDailyStatus {
		log.Info().Str("status", string(state.Status)).Msg("daily limit reached")
		if v.notifier != nil {
			if err := v.notifier.DailyComplete(ctx, state, state.Status); err != nil {
				log.Warn().Err(err).Msg("failed to send daily completion alert")
			}
		}
	}
	v.lastDailyStatus = state.Status
	return nil
}

// checkIQDegradation alerts once per level change when recent trade
// quality slides.
func (v *Verifier) checkIQDegradation(ctx context.Context) {
	deg := v.scorer.CheckDegradation()
	if deg == nil {
		v.lastIQLevel = ""
		return
	}
	if deg.Level == v.lastIQLevel {
		return
	}
	v.lastIQLevel = deg.Level

	log.Warn().
		Str("level", deg.Level).
		Str("message", deg.Message).
		Msg("trade quality degradation")
	if v.notifier != nil {
		if err := v.notifier.Alert(ctx, "TRADE_QUALITY", deg.Level, deg.Message, deg.Action); err != nil {
			log.Warn().Err(err).Msg("failed to send degradation alert")
		}
	}
}

// checkEngineHealth classifies the engine's heartbeat staleness.
func (v *Verifier) checkEngineHealth(ctx context.Context) {
	check, err := v.monitor.Check(ctx)
	if err != nil {
		metrics.RecordError("health_check", "verifier")
		log.Error().Err(err).Msg("engine health check failed")
		return
	}

	metrics.UpdateHeartbeatAge(db.BotNameEngine, check.MinutesAgo*60)

	if !check.AlertNeeded {
		return
	}

	log.Warn().
		Str("status", string(check.Status)).
		Float64("minutes_ago", check.MinutesAgo).
		Msg("engine health alert")

	if check.Status == health.StatusCritical {
		alerts.AlertHeartbeatStale(ctx, db.BotNameEngine, check.MinutesAgo)
	}
	if v.notifier != nil {
		if err := v.notifier.HealthAlert(ctx, db.BotNameEngine, check); err != nil {
			log.Warn().Err(err).Msg("failed to send health alert")
		}
	}
}

// rollover closes out the previous trading day when the UTC date
// changes: end-of-day report, fresh budget, and the weekly summary
// after the configured weekday completes.
func (v *Verifier) rollover(ctx context.Context) error {
	rolled, err := v.daily.CheckNewDay(ctx)
	if err != nil {
		return err
	}
	if !rolled {
		return nil
	}

	yesterday := v.now().AddDate(0, 0, -1)
	yesterdayKey := yesterday.Format("2006-01-02")

	var previousPnL float64
	report, err := v.reports.GenerateDaily(ctx, yesterdayKey)
	if err != nil {
		log.Error().Err(err).Str("date", yesterdayKey).Msg("failed to generate daily report")
	} else {
		previousPnL = report.PnL
		if err := v.reports.SaveDailyStats(ctx, report); err != nil {
			log.Error().Err(err).Str("date", yesterdayKey).Msg("failed to save daily stats")
		}
		if v.notifier != nil {
			if err := v.notifier.EndOfDay(ctx, report); err != nil {
				log.Warn().Err(err).Msg("failed to send end of day report")
			}
		}
	}

	state, err := v.daily.CurrentState(ctx)
	if err != nil {
		return fmt.Errorf("failed to load fresh daily state: %w", err)
	}
	v.lastDailyStatus = state.Status
	if v.notifier != nil {
		if err := v.notifier.NewDay(ctx, state, previousPnL); err != nil {
			log.Warn().Err(err).Msg("failed to send new day alert")
		}
	}

	if yesterday.Weekday() == v.cfg.WeeklyReportDay {
		weekly, err := v.reports.GenerateWeekly(ctx, yesterdayKey)
		if err != nil {
			log.Error().Err(err).Msg("failed to generate weekly report")
		} else if v.notifier != nil {
			if err := v.notifier.WeeklySummary(ctx, weekly); err != nil {
				log.Warn().Err(err).Msg("failed to send weekly summary")
			}
		}
	}

	log.Info().Str("date", v.daily.Today()).Msg("new trading day")
	return nil
}

// sendHeartbeat reports liveness and the current budget.
func (v *Verifier) sendHeartbeat(ctx context.Context) {
	status := "running"
	if v.lastError != "" {
		status = "error"
	}

	hb := &db.Heartbeat{
		BotName:   db.BotNameVerifier,
		Timestamp: v.now(),
		Status:    status,
	}
	if state, err := v.daily.CurrentState(ctx); err == nil {
		hb.SignalsToday = &state.TradeCount
		hb.DailyPnL = &state.PnL
	}
	if v.lastError != "" {
		hb.ErrorMessage = &v.lastError
	}

	if err := v.store.PingHeartbeat(ctx, hb); err != nil {
		metrics.RecordError("heartbeat", "verifier")
		log.Error().Err(err).Msg("failed to ping heartbeat")
	}
}
