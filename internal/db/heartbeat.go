package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
)

// Bot names used in heartbeat rows
const (
	BotNameEngine   = "signal_engine"
	BotNameVerifier = "verifier"
)

// Heartbeat statuses written by the signal engine loop
const (
	HeartbeatStatusRunning    = "running"
	HeartbeatStatusWaiting    = "waiting"
	HeartbeatStatusDailyLimit = "daily_limit"
	HeartbeatStatusError      = "error"
)

// Heartbeat represents a liveness ping row
type Heartbeat struct {
	ID            int64
	BotName       string
	Timestamp     time.Time
	Status        string
	SignalsToday  *int
	CurrentRegime *string
	DailyPnL      *float64
	ErrorMessage  *string
}

// PingHeartbeat inserts a heartbeat row for the given bot
func (db *DB) PingHeartbeat(ctx context.Context, hb *Heartbeat) error {
	query := `
		INSERT INTO heartbeat (bot_name, timestamp, status, signals_today,
			current_regime, daily_pnl, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (bot_name, timestamp) DO NOTHING
	`

	if hb.Timestamp.IsZero() {
		hb.Timestamp = time.Now().UTC()
	}

	_, err := db.pool.Exec(ctx, query,
		hb.BotName, hb.Timestamp, hb.Status, hb.SignalsToday,
		hb.CurrentRegime, hb.DailyPnL, hb.ErrorMessage,
	)
	if err != nil {
		log.Error().
			Err(err).
			Str("bot_name", hb.BotName).
			Str("status", hb.Status).
			Msg("Failed to insert heartbeat")
		return fmt.Errorf("failed to insert heartbeat: %w", err)
	}

	log.Debug().
		Str("bot_name", hb.BotName).
		Str("status", hb.Status).
		Msg("Heartbeat recorded")

	return nil
}

// GetLastHeartbeat retrieves the most recent heartbeat for a bot.
// Returns nil without error when the bot has never pinged.
func (db *DB) GetLastHeartbeat(ctx context.Context, botName string) (*Heartbeat, error) {
	query := `
		SELECT id, bot_name, timestamp, status, signals_today, current_regime,
			daily_pnl, error_message
		FROM heartbeat
		WHERE bot_name = $1
		ORDER BY timestamp DESC
		LIMIT 1
	`

	var hb Heartbeat
	err := db.pool.QueryRow(ctx, query, botName).Scan(
		&hb.ID, &hb.BotName, &hb.Timestamp, &hb.Status, &hb.SignalsToday,
		&hb.CurrentRegime, &hb.DailyPnL, &hb.ErrorMessage,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last heartbeat for %s: %w", botName, err)
	}

	return &hb, nil
}
