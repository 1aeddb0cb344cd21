package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
)

// DailyStats is the persisted daily performance summary, keyed by YYYY-MM-DD
type DailyStats struct {
	Date           string
	TotalSignals   int
	Wins           int
	Losses         int
	WinRate        float64
	TotalPnL       float64
	AvgTradeIQ     int
	AccountBalance float64
	TargetHit      bool
	StopHit        bool
	CreatedAt      time.Time
}

// SaveDailyStats upserts the daily statistics row
func (db *DB) SaveDailyStats(ctx context.Context, stats *DailyStats) error {
	query := `
		INSERT INTO daily_stats (date, total_signals, wins, losses, win_rate,
			total_pnl, avg_trade_iq, account_balance, target_hit, stop_hit, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (date) DO UPDATE SET
			total_signals = EXCLUDED.total_signals,
			wins = EXCLUDED.wins,
			losses = EXCLUDED.losses,
			win_rate = EXCLUDED.win_rate,
			total_pnl = EXCLUDED.total_pnl,
			avg_trade_iq = EXCLUDED.avg_trade_iq,
			account_balance = EXCLUDED.account_balance,
			target_hit = EXCLUDED.target_hit,
			stop_hit = EXCLUDED.stop_hit
	`

	if stats.CreatedAt.IsZero() {
		stats.CreatedAt = time.Now().UTC()
	}

	_, err := db.pool.Exec(ctx, query,
		stats.Date, stats.TotalSignals, stats.Wins, stats.Losses,
		stats.WinRate, stats.TotalPnL, stats.AvgTradeIQ,
		stats.AccountBalance, stats.TargetHit, stats.StopHit, stats.CreatedAt,
	)
	if err != nil {
		log.Error().
			Err(err).
			Str("date", stats.Date).
			Msg("Failed to save daily stats")
		return fmt.Errorf("failed to save daily stats: %w", err)
	}

	log.Debug().
		Str("date", stats.Date).
		Float64("total_pnl", stats.TotalPnL).
		Float64("win_rate", stats.WinRate).
		Msg("Daily stats saved")

	return nil
}

// GetStatsForPeriod retrieves daily stats rows in [startDate, endDate], oldest first
func (db *DB) GetStatsForPeriod(ctx context.Context, startDate, endDate string) ([]*DailyStats, error) {
	query := `
		SELECT date, total_signals, wins, losses, win_rate, total_pnl,
			avg_trade_iq, account_balance, target_hit, stop_hit, created_at
		FROM daily_stats
		WHERE date >= $1 AND date <= $2
		ORDER BY date
	`

	rows, err := db.pool.Query(ctx, query, startDate, endDate)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily stats: %w", err)
	}
	defer rows.Close()

	var stats []*DailyStats
	for rows.Next() {
		var s DailyStats
		if err := rows.Scan(
			&s.Date, &s.TotalSignals, &s.Wins, &s.Losses, &s.WinRate,
			&s.TotalPnL, &s.AvgTradeIQ, &s.AccountBalance, &s.TargetHit,
			&s.StopHit, &s.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan daily stats row: %w", err)
		}
		stats = append(stats, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating daily stats rows: %w", err)
	}
	return stats, nil
}

// GetLatestBalance returns the most recent recorded account balance, or the
// provided initial balance when no stats exist yet.
func (db *DB) GetLatestBalance(ctx context.Context, initialBalance float64) (float64, error) {
	query := `SELECT account_balance FROM daily_stats ORDER BY date DESC LIMIT 1`

	var balance float64
	err := db.pool.QueryRow(ctx, query).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return initialBalance, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get latest balance: %w", err)
	}
	return balance, nil
}
