// Package engine runs the signal generation loop: once per tick it
// builds the feature set from live market data, classifies the regime,
// generates a candidate signal and admits or rejects it through the
// gate pipeline. Admitted signals are persisted for the verifier to
// track; the engine itself never touches signal outcomes.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/coinpulse/signalengine/internal/ai"
	"github.com/coinpulse/signalengine/internal/alerts"
	"github.com/coinpulse/signalengine/internal/daily"
	"github.com/coinpulse/signalengine/internal/db"
	"github.com/coinpulse/signalengine/internal/exchange"
	"github.com/coinpulse/signalengine/internal/features"
	"github.com/coinpulse/signalengine/internal/gates"
	"github.com/coinpulse/signalengine/internal/learning"
	"github.com/coinpulse/signalengine/internal/market"
	"github.com/coinpulse/signalengine/internal/metrics"
	"github.com/coinpulse/signalengine/internal/regime"
	"github.com/coinpulse/signalengine/internal/strategy"
)

// Store is the persistence surface the engine writes to.
type Store interface {
	InsertSignal(ctx context.Context, signal *db.Signal) error
	SaveFeatureSnapshot(ctx context.Context, snap *db.FeatureSnapshot) error
	IncrementTradeCount(ctx context.Context, date string) error
	PingHeartbeat(ctx context.Context, hb *db.Heartbeat) error
	GetUnanalyzedResults(ctx context.Context, limit int) ([]*db.Signal, error)
	MarkSignalAnalyzed(ctx context.Context, signalID string, lessonID *string) error
	SaveLesson(ctx context.Context, lesson *db.Lesson) error
}

// Config holds the engine loop intervals and identity.
type Config struct {
	Symbol            string
	TickInterval      time.Duration
	HeartbeatInterval time.Duration
	AnalyzeInterval   time.Duration
}

// minAnalyzeBatch is the smallest number of resolved signals worth a
// learning pass; below this the pattern stats are pure noise.
const minAnalyzeBatch = 5

// Engine orchestrates one symbol's signal pipeline.
type Engine struct {
	cfg   Config
	store Store
	data  *exchange.MarketData

	features  *features.Engine
	regimes   *regime.Detector
	generator *strategy.Generator
	predictor *ai.Predictor
	gates     *gates.System
	daily     *daily.Manager
	learner   *learning.Engine

	notifier *alerts.Notifier
	cache    *market.RedisCache

	lastTradeTime time.Time
	lastRegime    regime.Type
	lastError     string

	now func() time.Time
}

// Deps bundles the pipeline components the engine drives. Notifier and
// Cache may be nil; the engine degrades to logging only.
type Deps struct {
	Store     Store
	Data      *exchange.MarketData
	Features  *features.Engine
	Regimes   *regime.Detector
	Generator *strategy.Generator
	Predictor *ai.Predictor
	Gates     *gates.System
	Daily     *daily.Manager
	Notifier  *alerts.Notifier
	Cache     *market.RedisCache
}

// New creates an engine. Zero intervals fall back to the defaults used
// in production (60s ticks, 30s heartbeats, hourly learning passes).
func New(cfg Config, deps Deps) *Engine {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 60 * time.Second
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}
	if cfg.AnalyzeInterval <= 0 {
		cfg.AnalyzeInterval = time.Hour
	}
	if cfg.Symbol == "" {
		cfg.Symbol = "BTCUSDT"
	}

	return &Engine{
		cfg:       cfg,
		store:     deps.Store,
		data:      deps.Data,
		features:  deps.Features,
		regimes:   deps.Regimes,
		generator: deps.Generator,
		predictor: deps.Predictor,
		gates:     deps.Gates,
		daily:     deps.Daily,
		learner:   learning.NewEngine(),
		notifier:  deps.Notifier,
		cache:     deps.Cache,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Run drives the tick, heartbeat and learning loops until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	log.Info().
		Str("symbol", e.cfg.Symbol).
		Dur("tick_interval", e.cfg.TickInterval).
		Msg("signal engine started")

	tick := time.NewTicker(e.cfg.TickInterval)
	defer tick.Stop()
	heartbeat := time.NewTicker(e.cfg.HeartbeatInterval)
	defer heartbeat.Stop()
	analyze := time.NewTicker(e.cfg.AnalyzeInterval)
	defer analyze.Stop()

	// Announce ourselves before the first tick fires.
	e.sendHeartbeat(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("signal engine stopping")
			return ctx.Err()
		case <-tick.C:
			if err := e.Tick(ctx); err != nil {
				e.lastError = err.Error()
				metrics.RecordError("tick", "engine")
				log.Error().Err(err).Msg("tick failed")
			} else {
				e.lastError = ""
			}
		case <-heartbeat.C:
			e.sendHeartbeat(ctx)
		case <-analyze.C:
			if err := e.analyzeResults(ctx); err != nil {
				metrics.RecordError("learning", "engine")
				log.Error().Err(err).Msg("learning pass failed")
			}
		}
	}
}

// Tick runs one pass of the pipeline: day rollover, feature build,
// regime detection, signal generation and gate evaluation.
func (e *Engine) Tick(ctx context.Context) error {
	start := e.now()
	defer func() {
		metrics.RecordTick(float64(e.now().Sub(start).Milliseconds()))
	}()

	rolled, err := e.daily.CheckNewDay(ctx)
	if err != nil {
		return fmt.Errorf("failed to check day rollover: %w", err)
	}
	if rolled {
		log.Info().Str("date", e.daily.Today()).Msg("new trading day")
	}

	price := e.data.LastPrice()
	if price == 0 {
		log.Debug().Msg("waiting for market data")
		return nil
	}

	featStart := e.now()
	feats := e.features.Calculate(ctx, e.data)
	metrics.RecordFeatureBuild(float64(e.now().Sub(featStart).Milliseconds()))

	reg := e.regimes.Detect(feats)
	e.observeRegime(ctx, reg)
	e.publishSnapshot(ctx, price, feats, reg)

	state, err := e.daily.CurrentState(ctx)
	if err != nil {
		return fmt.Errorf("failed to load daily state: %w", err)
	}
	if state.Status.Terminal() {
		log.Debug().Str("status", string(state.Status)).Msg("daily limit reached, generation paused")
		return nil
	}

	sig := e.generator.Generate(feats, reg)
	if sig == nil {
		return nil
	}

	var prediction *ai.Result
	if e.predictor != nil {
		p := e.predictor.Predict(feats.Vector())
		prediction = &p
		metrics.AIConfidence.Set(p.Confidence)
	}

	verdict := e.gates.Evaluate(feats, reg, sig, state, e.lastTradeTime, prediction)
	metrics.GateOverallScore.Set(verdict.OverallScore)
	if !verdict.Passed {
		metrics.RecordGateFailure(verdict.BlockingGate)
		log.Debug().
			Str("signal_id", sig.SignalID).
			Str("blocking_gate", verdict.BlockingGate).
			Float64("overall_score", verdict.OverallScore).
			Msg("signal rejected")
		return nil
	}

	return e.admitSignal(ctx, sig, feats, verdict, prediction, state)
}

// admitSignal persists the signal, its feature snapshot and the daily
// trade count bump, then notifies.
func (e *Engine) admitSignal(
	ctx context.Context,
	sig *strategy.Signal,
	feats *features.AllFeatures,
	verdict gates.SystemResult,
	prediction *ai.Result,
	state *db.DailyState,
) error {
	record := e.toRecord(sig, verdict, prediction)

	if err := e.store.InsertSignal(ctx, record); err != nil {
		// One retry; the insert is a no-op if the first attempt
		// actually landed.
		log.Warn().Err(err).Str("signal_id", record.SignalID).Msg("retrying signal insert")
		if err := e.store.InsertSignal(ctx, record); err != nil {
			alerts.AlertStoreError(ctx, "insert_signal", err)
			return fmt.Errorf("failed to insert signal: %w", err)
		}
	}
	if err := e.store.SaveFeatureSnapshot(ctx, snapshotFor(record.SignalID, feats)); err != nil {
		// The signal row is already committed; tracking survives
		// without the snapshot.
		log.Warn().Err(err).Str("signal_id", record.SignalID).Msg("failed to save feature snapshot")
	}
	if err := e.store.IncrementTradeCount(ctx, state.Date); err != nil {
		log.Warn().Err(err).Str("date", state.Date).Msg("failed to increment trade count")
	}

	e.lastTradeTime = record.CreatedAt
	metrics.RecordSignalGenerated(record.Strategy, string(record.Direction))

	log.Info().
		Str("signal_id", record.SignalID).
		Str("direction", string(record.Direction)).
		Str("strategy", record.Strategy).
		Float64("entry", record.EntryPrice).
		Float64("confidence", record.Confidence).
		Msg("signal admitted")

	if e.notifier != nil {
		if err := e.notifier.SignalAlert(ctx, record, state); err != nil {
			log.Warn().Err(err).Msg("failed to send signal alert")
		}
	}
	return nil
}

// toRecord maps a generated signal plus its gate verdict onto the
// persisted row.
func (e *Engine) toRecord(sig *strategy.Signal, verdict gates.SystemResult, prediction *ai.Result) *db.Signal {
	g1 := verdict.Score(gates.GateContext)
	g2 := verdict.Score(gates.GateRegime)
	g3 := verdict.Score(gates.GateQuality)
	g4 := verdict.Score(gates.GateAI)
	g5 := verdict.Passed

	confidence := sig.Confidence
	if prediction != nil {
		confidence = prediction.Confidence
	}

	return &db.Signal{
		SignalID:       sig.SignalID,
		CreatedAt:      sig.CreatedAt,
		Direction:      db.Direction(sig.Direction),
		Strategy:       string(sig.Strategy),
		EntryPrice:     sig.EntryPrice,
		StopLoss:       sig.StopLoss,
		TakeProfit:     sig.TakeProfit,
		PositionMargin: sig.PositionMargin,
		Leverage:       sig.Leverage,
		Confidence:     confidence,
		SetupQuality:   sig.SetupQuality,
		Regime:         sig.Regime,
		Reasoning:      sig.Reasoning,
		Gate1Score:     &g1,
		Gate2Score:     &g2,
		Gate3Score:     &g3,
		Gate4Score:     &g4,
		Gate5Passed:    &g5,
		Status:         db.SignalStatusPending,
	}
}

// observeRegime reports a regime transition once per change.
func (e *Engine) observeRegime(ctx context.Context, reg regime.Result) {
	if reg.Type == e.lastRegime {
		return
	}
	if e.lastRegime != "" {
		metrics.RecordRegimeChange(string(e.lastRegime), string(reg.Type))
		log.Info().
			Str("from", string(e.lastRegime)).
			Str("to", string(reg.Type)).
			Float64("confidence", reg.Confidence).
			Msg("regime change")
		if e.notifier != nil {
			if err := e.notifier.RegimeChange(ctx, string(e.lastRegime), string(reg.Type), reg.Confidence); err != nil {
				log.Warn().Err(err).Msg("failed to send regime change alert")
			}
		}
	}
	e.lastRegime = reg.Type
}

// publishSnapshot pushes the latest price and feature snapshot to the
// cache for the status API. Best effort.
func (e *Engine) publishSnapshot(ctx context.Context, price float64, feats *features.AllFeatures, reg regime.Result) {
	if e.cache == nil {
		return
	}
	if err := e.cache.SetPrice(ctx, e.cfg.Symbol, price); err != nil {
		log.Debug().Err(err).Msg("failed to cache price")
	}

	featureMap, err := feats.Map()
	if err != nil {
		featureMap = nil
	}
	snap := &market.Snapshot{
		Symbol:    e.cfg.Symbol,
		Price:     price,
		Regime:    string(reg.Type),
		Features:  featureMap,
		Timestamp: e.now(),
	}
	if err := e.cache.SetSnapshot(ctx, snap); err != nil {
		log.Debug().Err(err).Msg("failed to cache snapshot")
	}
}

// sendHeartbeat reports liveness and current loop status.
func (e *Engine) sendHeartbeat(ctx context.Context) {
	state, err := e.daily.CurrentState(ctx)
	if err != nil {
		state = nil
	}

	hb := &db.Heartbeat{
		BotName:   db.BotNameEngine,
		Timestamp: e.now(),
		Status:    e.status(state),
	}
	if state != nil {
		hb.SignalsToday = &state.TradeCount
		hb.DailyPnL = &state.PnL
	}
	if last := e.regimes.Last(); last != nil {
		regimeName := string(last.Type)
		hb.CurrentRegime = &regimeName
	}
	if e.lastError != "" {
		hb.ErrorMessage = &e.lastError
	}

	if err := e.store.PingHeartbeat(ctx, hb); err != nil {
		metrics.RecordError("heartbeat", "engine")
		log.Error().Err(err).Msg("failed to ping heartbeat")
	}
}

// status derives the heartbeat status string for the current loop.
func (e *Engine) status(state *db.DailyState) string {
	switch {
	case e.lastError != "":
		return "error"
	case state != nil && state.Status.Terminal():
		return "daily_limit"
	case e.data.LastPrice() == 0:
		return "waiting"
	default:
		return "running"
	}
}

// analyzeResults runs a learning pass over resolved signals that have
// not been analyzed yet, stores any emitted lessons and marks the
// signals so they are not re-counted.
func (e *Engine) analyzeResults(ctx context.Context) error {
	signals, err := e.store.GetUnanalyzedResults(ctx, 50)
	if err != nil {
		return fmt.Errorf("failed to load unanalyzed results: %w", err)
	}
	if len(signals) < minAnalyzeBatch {
		log.Debug().Int("count", len(signals)).Msg("not enough resolved signals for a learning pass")
		return nil
	}

	results := make([]learning.TradeResult, 0, len(signals))
	for _, sig := range signals {
		results = append(results, toTradeResult(sig))
	}

	lessons := e.learner.Analyze(results)

	// Map each signal to the lesson that cites it, when one does.
	lessonBySignal := make(map[string]string)
	for _, lesson := range lessons {
		if err := e.store.SaveLesson(ctx, lesson); err != nil {
			log.Error().Err(err).Str("lesson_id", lesson.LessonID).Msg("failed to save lesson")
			continue
		}
		for _, id := range lesson.SignalIDs {
			lessonBySignal[id] = lesson.LessonID
		}
	}

	for _, sig := range signals {
		var lessonID *string
		if id, ok := lessonBySignal[sig.SignalID]; ok {
			lessonID = &id
		}
		if err := e.store.MarkSignalAnalyzed(ctx, sig.SignalID, lessonID); err != nil {
			log.Warn().Err(err).Str("signal_id", sig.SignalID).Msg("failed to mark signal analyzed")
		}
	}

	log.Info().
		Int("signals", len(signals)).
		Int("lessons", len(lessons)).
		Msg("learning pass complete")
	return nil
}

// toTradeResult flattens a resolved signal row for pattern analysis.
func toTradeResult(sig *db.Signal) learning.TradeResult {
	res := learning.TradeResult{
		SignalID:     sig.SignalID,
		Direction:    string(sig.Direction),
		Strategy:     sig.Strategy,
		Regime:       sig.Regime,
		SetupQuality: sig.SetupQuality,
		Confidence:   sig.Confidence,
		Result:       sig.Status,
	}
	if sig.ResultPnL != nil {
		res.PnL = *sig.ResultPnL
	}
	if sig.MFE != nil {
		res.MFE = *sig.MFE
	}
	if sig.MAE != nil {
		res.MAE = *sig.MAE
	}
	if sig.DurationMinutes != nil {
		res.DurationMinutes = *sig.DurationMinutes
	}
	return res
}

// snapshotFor extracts the persisted feature columns from the full set.
func snapshotFor(signalID string, f *features.AllFeatures) *db.FeatureSnapshot {
	allFeatures, err := f.Map()
	if err != nil {
		allFeatures = nil
	}
	return &db.FeatureSnapshot{
		SignalID:        signalID,
		Timestamp:       f.Timestamp,
		RSI14:           f.Technical.RSI14,
		EMA9:            f.Technical.EMA9,
		EMA21:           f.Technical.EMA21,
		EMA50:           f.Technical.EMA50,
		MACDHistogram:   f.Technical.MACDHistogram,
		ATR14:           f.Technical.ATR14,
		ADX:             f.Technical.ADX,
		BBPosition:      f.Technical.BBPosition,
		CVD:             f.Microstructure.CVD,
		ExchangeNetflow: f.Onchain.ExchangeNetflow,
		WhaleActivity:   f.Onchain.WhaleActivityScore,
		FundingRate:     f.Funding.FundingCurrent,
		LongLiqDensity:  f.Liquidation.LongLiqDensity1Pct,
		ShortLiqDensity: f.Liquidation.ShortLiqDensity1Pct,
		AllFeatures:     allFeatures,
	}
}
