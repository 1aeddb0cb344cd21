package metrics

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// Updater periodically updates metrics from the database
type Updater struct {
	db       *pgxpool.Pool
	interval time.Duration
	stopCh   chan struct{}
}

// NewUpdater creates a new metrics updater
func NewUpdater(db *pgxpool.Pool, interval time.Duration) *Updater {
	return &Updater{
		db:       db,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the metrics update loop
func (u *Updater) Start(ctx context.Context) {
	ticker := time.NewTicker(u.interval)
	defer ticker.Stop()

	// Update immediately on start
	u.update(ctx)

	for {
		select {
		case <-ticker.C:
			u.update(ctx)
		case <-u.stopCh:
			log.Info().Msg("Metrics updater stopped")
			return
		case <-ctx.Done():
			log.Info().Msg("Metrics updater context cancelled")
			return
		}
	}
}

// Stop stops the metrics updater
func (u *Updater) Stop() {
	close(u.stopCh)
}

// update fetches and updates all metrics
func (u *Updater) update(ctx context.Context) {
	log.Debug().Msg("Updating metrics from database")

	u.updateSignalMetrics(ctx)
	u.updateDailyMetrics(ctx)
	u.updateIQMetrics(ctx)
	u.updateHeartbeatMetrics(ctx)
	u.updateDatabaseMetrics()

	log.Debug().Msg("Metrics updated successfully")
}

// updateSignalMetrics updates win rate, total PnL, and the pending gauge
func (u *Updater) updateSignalMetrics(ctx context.Context) {
	var totalPnL float64
	var resolved, wins, pending int64

	query := `
		SELECT
			COALESCE(SUM(result_pnl) FILTER (WHERE status != 'PENDING'), 0) as total_pnl,
			COUNT(*) FILTER (WHERE status IN ('WIN', 'LOSS')) as resolved,
			COUNT(*) FILTER (WHERE status = 'WIN') as wins,
			COUNT(*) FILTER (WHERE status = 'PENDING') as pending
		FROM signals
	`

	err := u.db.QueryRow(ctx, query).Scan(&totalPnL, &resolved, &wins, &pending)
	if err != nil {
		log.Error().Err(err).Msg("Failed to fetch signal metrics")
		return
	}

	TotalPnL.Set(totalPnL)
	PendingSignals.Set(float64(pending))

	if resolved > 0 {
		WinRate.Set(float64(wins) / float64(resolved))
	} else {
		WinRate.Set(0)
	}
}

// updateDailyMetrics mirrors the current day's budget row
func (u *Updater) updateDailyMetrics(ctx context.Context) {
	query := `
		SELECT pnl, trade_count
		FROM daily_state
		WHERE date = (NOW() AT TIME ZONE 'UTC')::date::text
	`

	var pnl float64
	var tradeCount int
	err := u.db.QueryRow(ctx, query).Scan(&pnl, &tradeCount)
	if err != nil {
		// No row yet for today is normal just after midnight
		log.Debug().Err(err).Msg("No daily state row for today")
		return
	}

	UpdateDailyState(pnl, tradeCount)
}

// updateIQMetrics updates the trailing average trade IQ
func (u *Updater) updateIQMetrics(ctx context.Context) {
	query := `
		SELECT COALESCE(AVG(trade_iq), 0)
		FROM (
			SELECT trade_iq
			FROM signals
			WHERE trade_iq IS NOT NULL AND trade_iq > 0
			ORDER BY result_time DESC
			LIMIT 20
		) recent
	`

	var avgIQ float64
	err := u.db.QueryRow(ctx, query).Scan(&avgIQ)
	if err != nil {
		log.Error().Err(err).Msg("Failed to fetch trade IQ metrics")
		return
	}

	AvgTradeIQ.Set(avgIQ)
}

// updateHeartbeatMetrics exposes heartbeat ages for both bots
func (u *Updater) updateHeartbeatMetrics(ctx context.Context) {
	query := `
		SELECT bot_name, EXTRACT(EPOCH FROM (NOW() - MAX(timestamp)))
		FROM heartbeat
		GROUP BY bot_name
	`

	rows, err := u.db.Query(ctx, query)
	if err != nil {
		log.Error().Err(err).Msg("Failed to fetch heartbeat metrics")
		return
	}
	defer rows.Close()

	for rows.Next() {
		var botName string
		var ageSeconds float64
		if err := rows.Scan(&botName, &ageSeconds); err != nil {
			continue
		}
		UpdateHeartbeatAge(botName, ageSeconds)
	}
}

// updateDatabaseMetrics updates database connection pool metrics
func (u *Updater) updateDatabaseMetrics() {
	stat := u.db.Stat()
	UpdateDatabaseConnections(stat.AcquiredConns(), stat.IdleConns())
}
