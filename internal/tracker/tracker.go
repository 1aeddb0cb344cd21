// Package tracker resolves pending signals against live price:
// TP/SL hits, timeouts, MFE/MAE excursions, and the resulting
// daily-budget and quality-score updates.
package tracker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/coinpulse/signalengine/internal/db"
	"github.com/coinpulse/signalengine/internal/iq"
)

// Store is the signal persistence the tracker needs.
type Store interface {
	GetPendingSignals(ctx context.Context) ([]*db.Signal, error)
	AddPriceTracking(ctx context.Context, signalID string, price float64) error
	UpdateSignalResult(ctx context.Context, signalID string, status db.SignalStatus,
		resultPrice, resultPnL float64, resultReason string,
		mfe, mae float64, durationMinutes, tradeIQ int) error
}

// PriceSource supplies the latest trade price.
type PriceSource interface {
	FetchPrice(ctx context.Context) (float64, error)
}

// Config holds tracker economics.
type Config struct {
	WinAmount      float64
	LossAmount     float64
	NotionalValue  float64
	MaxHoldMinutes int
}

// DefaultConfig matches the fixed $150 x20 position: +$15 win,
// -$7.50 loss, $3000 notional, 4h max hold.
func DefaultConfig() Config {
	return Config{
		WinAmount:      15.0,
		LossAmount:     -7.50,
		NotionalValue:  3000,
		MaxHoldMinutes: 240,
	}
}

// Result is the outcome of checking one signal on one tick.
type Result struct {
	SignalID        string          `json:"signal_id"`
	Status          db.SignalStatus `json:"status"`
	EntryPrice      float64         `json:"entry_price"`
	CurrentPrice    float64         `json:"current_price"`
	ResultPrice     float64         `json:"result_price,omitempty"`
	ResultPnL       float64         `json:"result_pnl,omitempty"`
	ResultReason    string          `json:"result_reason,omitempty"`
	MFE             float64         `json:"mfe"`
	MAE             float64         `json:"mae"`
	DurationMinutes int             `json:"duration_minutes"`
	TradeIQ         int             `json:"trade_iq,omitempty"`
	Changed         bool            `json:"changed"`
}

type extremes struct {
	max float64
	min float64
}

// Tracker polls pending signals and writes their resolutions.
type Tracker struct {
	store  Store
	prices PriceSource
	scorer *iq.Calculator
	cfg    Config
	now    func() time.Time

	mu       sync.Mutex
	extremes map[string]*extremes
}

// New returns a tracker. scorer may be nil when quality scoring is
// handled elsewhere.
func New(store Store, prices PriceSource, scorer *iq.Calculator, cfg Config) *Tracker {
	if cfg.MaxHoldMinutes == 0 {
		cfg = DefaultConfig()
	}
	return &Tracker{
		store:    store,
		prices:   prices,
		scorer:   scorer,
		cfg:      cfg,
		now:      time.Now,
		extremes: make(map[string]*extremes),
	}
}

// CheckSignals runs one tracking tick over all pending signals. A
// price fetch failure skips the tick without error: tracking is
// retried on the next tick and signals cannot regress.
func (t *Tracker) CheckSignals(ctx context.Context) ([]Result, error) {
	price, err := t.prices.FetchPrice(ctx)
	if err != nil || price == 0 {
		log.Warn().Err(err).Msg("Could not fetch current price, skipping tick")
		return nil, nil
	}

	pending, err := t.store.GetPendingSignals(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load pending signals: %w", err)
	}

	var results []Result
	for _, signal := range pending {
		result := t.checkSignal(ctx, signal, price)
		results = append(results, result)

		if !result.Changed {
			continue
		}
		if err := t.persistResult(ctx, result); err != nil {
			log.Error().Err(err).Str("signal_id", result.SignalID).Msg("Failed to persist signal result")
		}
	}

	return results, nil
}

// persistResult writes a terminal outcome, retrying once on a store
// error before giving up.
func (t *Tracker) persistResult(ctx context.Context, result Result) error {
	write := func() error {
		return t.store.UpdateSignalResult(ctx, result.SignalID, result.Status,
			result.ResultPrice, result.ResultPnL, result.ResultReason,
			result.MFE, result.MAE, result.DurationMinutes, result.TradeIQ)
	}
	if err := write(); err != nil {
		log.Warn().Err(err).Str("signal_id", result.SignalID).Msg("Retrying result update")
		return write()
	}
	return nil
}

func (t *Tracker) checkSignal(ctx context.Context, signal *db.Signal, price float64) Result {
	t.updateExtremes(signal.SignalID, price)

	if err := t.store.AddPriceTracking(ctx, signal.SignalID, price); err != nil {
		log.Warn().Err(err).Str("signal_id", signal.SignalID).Msg("Failed to record price sample")
	}

	duration := int(t.now().UTC().Sub(signal.CreatedAt).Minutes())
	mfe, mae := t.excursions(signal.SignalID, signal.EntryPrice, signal.Direction)

	result := Result{
		SignalID:        signal.SignalID,
		Status:          db.SignalStatusPending,
		EntryPrice:      signal.EntryPrice,
		CurrentPrice:    price,
		MFE:             mfe,
		MAE:             mae,
		DurationMinutes: duration,
	}

	// TP is checked before SL: a price that satisfies both resolves
	// in the trader's favor.
	switch signal.Direction {
	case db.DirectionLong:
		if price >= signal.TakeProfit {
			t.resolve(&result, db.SignalStatusWin, signal.TakeProfit, t.cfg.WinAmount, "TP_HIT")
		} else if price <= signal.StopLoss {
			t.resolve(&result, db.SignalStatusLoss, signal.StopLoss, t.cfg.LossAmount, "SL_HIT")
		}
	case db.DirectionShort:
		if price <= signal.TakeProfit {
			t.resolve(&result, db.SignalStatusWin, signal.TakeProfit, t.cfg.WinAmount, "TP_HIT")
		} else if price >= signal.StopLoss {
			t.resolve(&result, db.SignalStatusLoss, signal.StopLoss, t.cfg.LossAmount, "SL_HIT")
		}
	}

	if !result.Changed && duration >= t.cfg.MaxHoldMinutes {
		pnlPct := (price - signal.EntryPrice) / signal.EntryPrice
		if signal.Direction == db.DirectionShort {
			pnlPct = -pnlPct
		}
		t.resolve(&result, db.SignalStatusTimeout, price, pnlPct*t.cfg.NotionalValue, "TIMEOUT")
	}

	if result.Changed {
		if t.scorer != nil {
			score := t.scorer.Calculate(signal, iq.Outcome{
				Status:    result.Status,
				ResultPnL: result.ResultPnL,
				MFE:       result.MFE,
				MAE:       result.MAE,
			})
			result.TradeIQ = score.Total
		}
		t.mu.Lock()
		delete(t.extremes, signal.SignalID)
		t.mu.Unlock()

		log.Info().
			Str("signal_id", result.SignalID).
			Str("status", string(result.Status)).
			Float64("pnl", result.ResultPnL).
			Str("reason", result.ResultReason).
			Int("duration_min", result.DurationMinutes).
			Msg("Signal resolved")
	}

	return result
}

func (t *Tracker) resolve(result *Result, status db.SignalStatus, price, pnl float64, reason string) {
	result.Status = status
	result.ResultPrice = price
	result.ResultPnL = pnl
	result.ResultReason = reason
	result.Changed = true
}

func (t *Tracker) updateExtremes(signalID string, price float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.extremes[signalID]
	if !ok {
		t.extremes[signalID] = &extremes{max: price, min: price}
		return
	}
	if price > e.max {
		e.max = price
	}
	if price < e.min {
		e.min = price
	}
}

// excursions returns the non-negative percent MFE/MAE from entry using
// the recorded extremes.
func (t *Tracker) excursions(signalID string, entry float64, direction db.Direction) (float64, float64) {
	t.mu.Lock()
	e, ok := t.extremes[signalID]
	t.mu.Unlock()
	if !ok || entry == 0 {
		return 0, 0
	}

	var mfe, mae float64
	if direction == db.DirectionLong {
		mfe = (e.max - entry) / entry * 100
		mae = (entry - e.min) / entry * 100
	} else {
		mfe = (entry - e.min) / entry * 100
		mae = (e.max - entry) / entry * 100
	}
	if mfe < 0 {
		mfe = 0
	}
	if mae < 0 {
		mae = 0
	}
	return mfe, mae
}
