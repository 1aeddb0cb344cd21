package db

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// Direction represents signal direction (database enum)
type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
)

// Opposite returns the opposite direction
func (d Direction) Opposite() Direction {
	if d == DirectionLong {
		return DirectionShort
	}
	return DirectionLong
}

// SignalStatus represents signal lifecycle status (database enum)
type SignalStatus string

const (
	SignalStatusPending SignalStatus = "PENDING"
	SignalStatusWin     SignalStatus = "WIN"
	SignalStatusLoss    SignalStatus = "LOSS"
	SignalStatusTimeout SignalStatus = "TIMEOUT"
)

// Signal represents a hypothetical trade signal record
type Signal struct {
	SignalID  string
	CreatedAt time.Time

	Direction      Direction
	Strategy       string
	EntryPrice     float64
	StopLoss       float64
	TakeProfit     float64
	PositionMargin float64
	Leverage       int

	Confidence   float64
	SetupQuality int
	Regime       string
	Reasoning    string

	Gate1Score  *float64
	Gate2Score  *float64
	Gate3Score  *float64
	Gate4Score  *float64
	Gate5Passed *bool

	Status       SignalStatus
	ResultPrice  *float64
	ResultTime   *time.Time
	ResultPnL    *float64
	ResultReason *string

	MFE             *float64
	MAE             *float64
	DurationMinutes *int
	TradeIQ         *int

	ResultAnalyzed bool
	LessonID       *string

	UpdatedAt time.Time
}

const signalColumns = `
	signal_id, created_at, direction, strategy, entry_price, stop_loss,
	take_profit, position_margin, leverage, confidence, setup_quality,
	regime, reasoning, gate_1_score, gate_2_score, gate_3_score,
	gate_4_score, gate_5_passed, status, result_price, result_time,
	result_pnl, result_reason, mfe, mae, duration_minutes, trade_iq,
	result_analyzed, lesson_id, updated_at`

// InsertSignal inserts a new signal into the database
func (db *DB) InsertSignal(ctx context.Context, signal *Signal) error {
	query := `
		INSERT INTO signals (
			signal_id, created_at, direction, strategy, entry_price, stop_loss,
			take_profit, position_margin, leverage, confidence, setup_quality,
			regime, reasoning, gate_1_score, gate_2_score, gate_3_score,
			gate_4_score, gate_5_passed, status, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20
		)
		ON CONFLICT (signal_id) DO NOTHING
	`

	_, err := db.pool.Exec(ctx, query,
		signal.SignalID,
		signal.CreatedAt,
		signal.Direction,
		signal.Strategy,
		signal.EntryPrice,
		signal.StopLoss,
		signal.TakeProfit,
		signal.PositionMargin,
		signal.Leverage,
		signal.Confidence,
		signal.SetupQuality,
		signal.Regime,
		signal.Reasoning,
		signal.Gate1Score,
		signal.Gate2Score,
		signal.Gate3Score,
		signal.Gate4Score,
		signal.Gate5Passed,
		signal.Status,
		signal.UpdatedAt,
	)

	if err != nil {
		log.Error().
			Err(err).
			Str("signal_id", signal.SignalID).
			Str("strategy", signal.Strategy).
			Msg("Failed to insert signal")
		return fmt.Errorf("failed to insert signal: %w", err)
	}

	log.Debug().
		Str("signal_id", signal.SignalID).
		Str("direction", string(signal.Direction)).
		Str("strategy", signal.Strategy).
		Msg("Signal inserted into database")

	return nil
}

// GetSignal retrieves a signal by ID
func (db *DB) GetSignal(ctx context.Context, signalID string) (*Signal, error) {
	query := `SELECT ` + signalColumns + ` FROM signals WHERE signal_id = $1`

	var s Signal
	err := db.pool.QueryRow(ctx, query, signalID).Scan(
		&s.SignalID, &s.CreatedAt, &s.Direction, &s.Strategy, &s.EntryPrice,
		&s.StopLoss, &s.TakeProfit, &s.PositionMargin, &s.Leverage,
		&s.Confidence, &s.SetupQuality, &s.Regime, &s.Reasoning,
		&s.Gate1Score, &s.Gate2Score, &s.Gate3Score, &s.Gate4Score,
		&s.Gate5Passed, &s.Status, &s.ResultPrice, &s.ResultTime,
		&s.ResultPnL, &s.ResultReason, &s.MFE, &s.MAE, &s.DurationMinutes,
		&s.TradeIQ, &s.ResultAnalyzed, &s.LessonID, &s.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get signal %s: %w", signalID, err)
	}

	return &s, nil
}

// GetPendingSignals retrieves all unresolved signals oldest first
func (db *DB) GetPendingSignals(ctx context.Context) ([]*Signal, error) {
	query := `SELECT ` + signalColumns + ` FROM signals WHERE status = $1 ORDER BY created_at`

	rows, err := db.pool.Query(ctx, query, SignalStatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending signals: %w", err)
	}
	defer rows.Close()

	return scanSignals(rows)
}

// GetSignalsToday retrieves all signals created since UTC midnight, newest first
func (db *DB) GetSignalsToday(ctx context.Context) ([]*Signal, error) {
	midnight := time.Now().UTC().Truncate(24 * time.Hour)
	query := `SELECT ` + signalColumns + ` FROM signals WHERE created_at >= $1 ORDER BY created_at DESC`

	rows, err := db.pool.Query(ctx, query, midnight)
	if err != nil {
		return nil, fmt.Errorf("failed to query today's signals: %w", err)
	}
	defer rows.Close()

	return scanSignals(rows)
}

// GetRecentResults retrieves recently resolved signals, newest result first
func (db *DB) GetRecentResults(ctx context.Context, limit int) ([]*Signal, error) {
	query := `SELECT ` + signalColumns + ` FROM signals
		WHERE status IN ($1, $2, $3)
		ORDER BY result_time DESC
		LIMIT $4`

	rows, err := db.pool.Query(ctx, query,
		SignalStatusWin, SignalStatusLoss, SignalStatusTimeout, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent results: %w", err)
	}
	defer rows.Close()

	return scanSignals(rows)
}

// GetUnanalyzedResults retrieves resolved signals not yet processed by the
// learning pass, newest result first
func (db *DB) GetUnanalyzedResults(ctx context.Context, limit int) ([]*Signal, error) {
	query := `SELECT ` + signalColumns + ` FROM signals
		WHERE status IN ($1, $2, $3) AND result_analyzed = FALSE
		ORDER BY result_time DESC
		LIMIT $4`

	rows, err := db.pool.Query(ctx, query,
		SignalStatusWin, SignalStatusLoss, SignalStatusTimeout, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query unanalyzed results: %w", err)
	}
	defer rows.Close()

	return scanSignals(rows)
}

// GetSignalsForPeriod retrieves signals created within [start, end]
func (db *DB) GetSignalsForPeriod(ctx context.Context, start, end time.Time) ([]*Signal, error) {
	query := `SELECT ` + signalColumns + ` FROM signals
		WHERE created_at >= $1 AND created_at <= $2
		ORDER BY created_at`

	rows, err := db.pool.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query signals for period: %w", err)
	}
	defer rows.Close()

	return scanSignals(rows)
}

// UpdateSignalResult records the outcome of a resolved signal
func (db *DB) UpdateSignalResult(
	ctx context.Context,
	signalID string,
	status SignalStatus,
	resultPrice float64,
	resultPnL float64,
	resultReason string,
	mfe float64,
	mae float64,
	durationMinutes int,
	tradeIQ int,
) error {
	query := `
		UPDATE signals SET
			status = $2,
			result_price = $3,
			result_time = $4,
			result_pnl = $5,
			result_reason = $6,
			mfe = $7,
			mae = $8,
			duration_minutes = $9,
			trade_iq = $10,
			updated_at = $4
		WHERE signal_id = $1
	`

	now := time.Now().UTC()
	tag, err := db.pool.Exec(ctx, query,
		signalID, status, resultPrice, now, resultPnL, resultReason,
		mfe, mae, durationMinutes, tradeIQ,
	)
	if err != nil {
		log.Error().
			Err(err).
			Str("signal_id", signalID).
			Str("status", string(status)).
			Msg("Failed to update signal result")
		return fmt.Errorf("failed to update signal result: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("signal %s not found", signalID)
	}

	log.Info().
		Str("signal_id", signalID).
		Str("status", string(status)).
		Float64("result_pnl", resultPnL).
		Str("reason", resultReason).
		Msg("Signal result recorded")

	return nil
}

// MarkSignalAnalyzed marks a resolved signal as processed by the learning pass
func (db *DB) MarkSignalAnalyzed(ctx context.Context, signalID string, lessonID *string) error {
	query := `UPDATE signals SET result_analyzed = TRUE, lesson_id = $2, updated_at = $3 WHERE signal_id = $1`

	_, err := db.pool.Exec(ctx, query, signalID, lessonID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to mark signal analyzed: %w", err)
	}
	return nil
}

func scanSignals(rows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}) ([]*Signal, error) {
	var signals []*Signal
	for rows.Next() {
		var s Signal
		if err := rows.Scan(
			&s.SignalID, &s.CreatedAt, &s.Direction, &s.Strategy, &s.EntryPrice,
			&s.StopLoss, &s.TakeProfit, &s.PositionMargin, &s.Leverage,
			&s.Confidence, &s.SetupQuality, &s.Regime, &s.Reasoning,
			&s.Gate1Score, &s.Gate2Score, &s.Gate3Score, &s.Gate4Score,
			&s.Gate5Passed, &s.Status, &s.ResultPrice, &s.ResultTime,
			&s.ResultPnL, &s.ResultReason, &s.MFE, &s.MAE, &s.DurationMinutes,
			&s.TradeIQ, &s.ResultAnalyzed, &s.LessonID, &s.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan signal row: %w", err)
		}
		signals = append(signals, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating signal rows: %w", err)
	}
	return signals, nil
}
