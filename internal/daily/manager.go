// Package daily maintains the per-UTC-day trading budget: PnL,
// trade counts, loss streaks, and the terminal status transitions.
package daily

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/coinpulse/signalengine/internal/db"
)

// Store is the daily-state persistence the manager needs.
type Store interface {
	GetDailyState(ctx context.Context, date string) (*db.DailyState, error)
	UpdateDailyState(ctx context.Context, state *db.DailyState) error
	ResetDailyState(ctx context.Context, date string) (*db.DailyState, error)
}

// Result is the slice of a resolved signal the budget cares about.
type Result struct {
	Status    db.SignalStatus
	ResultPnL float64
}

// Progress reports headroom against the daily limits.
type Progress struct {
	PnL             float64 `json:"pnl"`
	Target          float64 `json:"target"`
	TargetProgress  float64 `json:"target_progress"`
	TradesRemaining int     `json:"trades_remaining"`
	CanTrade        bool    `json:"can_trade"`
}

// Manager owns DailyState mutation on the verifier side. The engine
// only ever reads the row and bumps trade_count on entry.
type Manager struct {
	store       Store
	dailyTarget float64
	dailyStop   float64
	maxTrades   int
	now         func() time.Time

	currentDate string
}

// NewManager returns a manager with the production limits: +$10
// target, -$15 stop, 3 trades.
func NewManager(store Store) *Manager {
	return &Manager{
		store:       store,
		dailyTarget: 10.0,
		dailyStop:   -15.0,
		maxTrades:   3,
		now:         time.Now,
	}
}

// Today returns the current UTC date key.
func (m *Manager) Today() string {
	return m.now().UTC().Format("2006-01-02")
}

// CurrentState loads today's row, creating it when absent.
func (m *Manager) CurrentState(ctx context.Context) (*db.DailyState, error) {
	return m.store.GetDailyState(ctx, m.Today())
}

// CheckNewDay resets the budget when the UTC date has rolled over
// since the last call. Returns true on rollover.
func (m *Manager) CheckNewDay(ctx context.Context) (bool, error) {
	today := m.Today()
	if m.currentDate == today {
		return false, nil
	}

	rolled := m.currentDate != ""
	m.currentDate = today
	if !rolled {
		// First call after startup just pins the date.
		return false, nil
	}

	if _, err := m.store.ResetDailyState(ctx, today); err != nil {
		return false, fmt.Errorf("failed to roll daily state to %s: %w", today, err)
	}
	log.Info().Str("date", today).Msg("New trading day")
	return true, nil
}

// ApplyResult folds a resolved signal into today's state and persists
// the transition. Terminal statuses are sticky: once set they are
// never downgraded.
func (m *Manager) ApplyResult(ctx context.Context, result Result) (*db.DailyState, error) {
	state, err := m.CurrentState(ctx)
	if err != nil {
		return nil, err
	}

	state.PnL += result.ResultPnL
	state.HasPosition = false
	if result.Status == db.SignalStatusWin {
		state.Wins++
		state.ConsecutiveLosses = 0
	} else {
		state.Losses++
		state.ConsecutiveLosses++
	}

	m.transition(state)

	if err := m.store.UpdateDailyState(ctx, state); err != nil {
		return nil, err
	}

	log.Info().
		Str("date", state.Date).
		Str("result", string(result.Status)).
		Float64("pnl", state.PnL).
		Int("consecutive_losses", state.ConsecutiveLosses).
		Str("status", string(state.Status)).
		Msg("Daily state updated with result")

	return state, nil
}

func (m *Manager) transition(state *db.DailyState) {
	if state.Status.Terminal() {
		return
	}

	now := m.now().UTC()
	switch {
	case state.PnL >= m.dailyTarget:
		state.Status = db.DailyStatusTargetHit
		state.TargetHitAt = &now
	case state.PnL <= m.dailyStop:
		state.Status = db.DailyStatusStopHit
		state.StopHitAt = &now
	case state.TradeCount >= m.maxTrades:
		state.Status = db.DailyStatusMaxTrades
	}
}

// GetProgress summarises headroom for status surfaces.
func (m *Manager) GetProgress(state *db.DailyState) Progress {
	var targetProgress float64
	if m.dailyTarget > 0 {
		targetProgress = state.PnL / m.dailyTarget * 100
		if targetProgress > 100 {
			targetProgress = 100
		}
		if targetProgress < -100 {
			targetProgress = -100
		}
	}

	return Progress{
		PnL:             state.PnL,
		Target:          m.dailyTarget,
		TargetProgress:  targetProgress,
		TradesRemaining: m.maxTrades - state.TradeCount,
		CanTrade:        state.Status == db.DailyStatusActive && state.TradeCount < m.maxTrades,
	}
}

// WinRate returns wins over resolved trades for the given state.
func WinRate(state *db.DailyState) float64 {
	total := state.Wins + state.Losses
	if total == 0 {
		return 0
	}
	return float64(state.Wins) / float64(total)
}
