package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
)

// DailyStatus represents the daily budget state machine status (database enum)
type DailyStatus string

const (
	DailyStatusActive    DailyStatus = "ACTIVE"
	DailyStatusTargetHit DailyStatus = "TARGET_HIT"
	DailyStatusStopHit   DailyStatus = "STOP_HIT"
	DailyStatusMaxTrades DailyStatus = "MAX_TRADES"
)

// Terminal reports whether no further trades are allowed today
func (s DailyStatus) Terminal() bool {
	return s != DailyStatusActive
}

// DailyState represents one UTC day's trading budget, keyed by YYYY-MM-DD
type DailyState struct {
	Date              string
	PnL               float64
	TradeCount        int
	Wins              int
	Losses            int
	ConsecutiveLosses int
	HasPosition       bool
	Status            DailyStatus
	TargetHitAt       *time.Time
	StopHitAt         *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

const dailyStateColumns = `
	date, pnl, trade_count, wins, losses, consecutive_losses, has_position,
	status, target_hit_at, stop_hit_at, created_at, updated_at`

// GetDailyState retrieves the state row for the given date, creating a fresh
// ACTIVE row when none exists yet.
func (db *DB) GetDailyState(ctx context.Context, date string) (*DailyState, error) {
	query := `SELECT ` + dailyStateColumns + ` FROM daily_state WHERE date = $1`

	var s DailyState
	err := db.pool.QueryRow(ctx, query, date).Scan(
		&s.Date, &s.PnL, &s.TradeCount, &s.Wins, &s.Losses,
		&s.ConsecutiveLosses, &s.HasPosition, &s.Status,
		&s.TargetHitAt, &s.StopHitAt, &s.CreatedAt, &s.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return db.insertDailyState(ctx, date)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get daily state for %s: %w", date, err)
	}

	return &s, nil
}

func (db *DB) insertDailyState(ctx context.Context, date string) (*DailyState, error) {
	now := time.Now().UTC()
	state := &DailyState{
		Date:      date,
		Status:    DailyStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}

	query := `
		INSERT INTO daily_state (date, pnl, trade_count, wins, losses,
			consecutive_losses, has_position, status, created_at, updated_at)
		VALUES ($1, 0, 0, 0, 0, 0, FALSE, $2, $3, $3)
		ON CONFLICT (date) DO NOTHING
	`
	if _, err := db.pool.Exec(ctx, query, date, DailyStatusActive, now); err != nil {
		return nil, fmt.Errorf("failed to create daily state for %s: %w", date, err)
	}

	log.Info().Str("date", date).Msg("Created fresh daily state")
	return state, nil
}

// UpdateDailyState persists the full daily state row
func (db *DB) UpdateDailyState(ctx context.Context, state *DailyState) error {
	query := `
		UPDATE daily_state SET
			pnl = $2,
			trade_count = $3,
			wins = $4,
			losses = $5,
			consecutive_losses = $6,
			has_position = $7,
			status = $8,
			target_hit_at = $9,
			stop_hit_at = $10,
			updated_at = $11
		WHERE date = $1
	`

	state.UpdatedAt = time.Now().UTC()
	_, err := db.pool.Exec(ctx, query,
		state.Date, state.PnL, state.TradeCount, state.Wins, state.Losses,
		state.ConsecutiveLosses, state.HasPosition, state.Status,
		state.TargetHitAt, state.StopHitAt, state.UpdatedAt,
	)
	if err != nil {
		log.Error().
			Err(err).
			Str("date", state.Date).
			Msg("Failed to update daily state")
		return fmt.Errorf("failed to update daily state: %w", err)
	}

	log.Debug().
		Str("date", state.Date).
		Float64("pnl", state.PnL).
		Int("trades", state.TradeCount).
		Str("status", string(state.Status)).
		Msg("Daily state updated")

	return nil
}

// ResetDailyState resets (or creates) the state row for the given date
func (db *DB) ResetDailyState(ctx context.Context, date string) (*DailyState, error) {
	now := time.Now().UTC()
	query := `
		INSERT INTO daily_state (date, pnl, trade_count, wins, losses,
			consecutive_losses, has_position, status, created_at, updated_at)
		VALUES ($1, 0, 0, 0, 0, 0, FALSE, $2, $3, $3)
		ON CONFLICT (date) DO UPDATE SET
			pnl = 0,
			trade_count = 0,
			wins = 0,
			losses = 0,
			consecutive_losses = 0,
			has_position = FALSE,
			status = $2,
			target_hit_at = NULL,
			stop_hit_at = NULL,
			updated_at = $3
	`
	if _, err := db.pool.Exec(ctx, query, date, DailyStatusActive, now); err != nil {
		return nil, fmt.Errorf("failed to reset daily state for %s: %w", date, err)
	}

	log.Info().Str("date", date).Msg("Daily state reset")

	return &DailyState{
		Date:      date,
		Status:    DailyStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// IncrementTradeCount bumps trade_count for the given date and flags an open
// hypothetical position.
func (db *DB) IncrementTradeCount(ctx context.Context, date string) error {
	query := `
		UPDATE daily_state SET
			trade_count = trade_count + 1,
			has_position = TRUE,
			updated_at = $2
		WHERE date = $1
	`
	_, err := db.pool.Exec(ctx, query, date, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to increment trade count: %w", err)
	}
	return nil
}
