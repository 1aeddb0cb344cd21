package db

import (
	"context"
	"fmt"
	"time"
)

// PricePoint is a single tracked price observation for an open signal
type PricePoint struct {
	ID        int64
	SignalID  string
	Timestamp time.Time
	Price     float64
}

// AddPriceTracking records a price observation for MFE/MAE reconstruction
func (db *DB) AddPriceTracking(ctx context.Context, signalID string, price float64) error {
	query := `
		INSERT INTO price_tracking (signal_id, timestamp, price)
		VALUES ($1, $2, $3)
		ON CONFLICT (signal_id, timestamp) DO NOTHING
	`

	_, err := db.pool.Exec(ctx, query, signalID, time.Now().UTC(), price)
	if err != nil {
		return fmt.Errorf("failed to add price tracking for %s: %w", signalID, err)
	}
	return nil
}

// GetPriceHistory retrieves tracked prices for a signal, oldest first
func (db *DB) GetPriceHistory(ctx context.Context, signalID string) ([]PricePoint, error) {
	query := `
		SELECT id, signal_id, timestamp, price
		FROM price_tracking
		WHERE signal_id = $1
		ORDER BY timestamp
	`

	rows, err := db.pool.Query(ctx, query, signalID)
	if err != nil {
		return nil, fmt.Errorf("failed to query price history for %s: %w", signalID, err)
	}
	defer rows.Close()

	var points []PricePoint
	for rows.Next() {
		var p PricePoint
		if err := rows.Scan(&p.ID, &p.SignalID, &p.Timestamp, &p.Price); err != nil {
			return nil, fmt.Errorf("failed to scan price point: %w", err)
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating price points: %w", err)
	}
	return points, nil
}

// FeatureSnapshot preserves the key features present when a signal was emitted.
// AllFeatures carries the complete named map as JSONB.
type FeatureSnapshot struct {
	ID              int64
	SignalID        string
	Timestamp       time.Time
	RSI14           float64
	EMA9            float64
	EMA21           float64
	EMA50           float64
	MACDHistogram   float64
	ATR14           float64
	ADX             float64
	BBPosition      float64
	CVD             float64
	ExchangeNetflow float64
	WhaleActivity   float64
	FundingRate     float64
	LongLiqDensity  float64
	ShortLiqDensity float64
	AllFeatures     map[string]interface{}
}

// SaveFeatureSnapshot stores the feature snapshot backing a signal
func (db *DB) SaveFeatureSnapshot(ctx context.Context, snap *FeatureSnapshot) error {
	query := `
		INSERT INTO feature_snapshots (
			signal_id, timestamp, rsi_14, ema_9, ema_21, ema_50,
			macd_histogram, atr_14, adx, bb_position, cvd, exchange_netflow,
			whale_activity, funding_rate, long_liq_density, short_liq_density,
			all_features
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`

	if snap.Timestamp.IsZero() {
		snap.Timestamp = time.Now().UTC()
	}

	_, err := db.pool.Exec(ctx, query,
		snap.SignalID, snap.Timestamp, snap.RSI14, snap.EMA9, snap.EMA21,
		snap.EMA50, snap.MACDHistogram, snap.ATR14, snap.ADX, snap.BBPosition,
		snap.CVD, snap.ExchangeNetflow, snap.WhaleActivity, snap.FundingRate,
		snap.LongLiqDensity, snap.ShortLiqDensity, snap.AllFeatures,
	)
	if err != nil {
		return fmt.Errorf("failed to save feature snapshot for %s: %w", snap.SignalID, err)
	}
	return nil
}
