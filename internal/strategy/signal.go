// Package strategy generates hypothetical trade signals from feature
// snapshots and regime classifications. Four strategies cover the tradeable
// regimes; every strategy validates its direction against the regime before
// a signal is produced.
package strategy

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Direction is the side of a hypothetical trade
type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
)

// Type identifies the strategy that produced a signal
type Type string

const (
	TrendMomentum   Type = "TREND_MOMENTUM"
	LiquidationHunt Type = "LIQUIDATION_HUNT"
	FundingFade     Type = "FUNDING_FADE"
	RangeScalping   Type = "RANGE_SCALPING"
)

// Signal is a fully specified hypothetical trade
type Signal struct {
	SignalID  string    `json:"signal_id"`
	CreatedAt time.Time `json:"created_at"`

	Direction  Direction `json:"direction"`
	Strategy   Type      `json:"strategy"`
	EntryPrice float64   `json:"entry_price"`
	StopLoss   float64   `json:"stop_loss"`
	TakeProfit float64   `json:"take_profit"`

	PositionMargin float64 `json:"position_margin"`
	Leverage       int     `json:"leverage"`

	Confidence   float64 `json:"confidence"`
	SetupQuality int     `json:"setup_quality"`
	Regime       string  `json:"regime"`
	Reasoning    string  `json:"reasoning"`
}

// NotionalValue is margin times leverage
func (s *Signal) NotionalValue() float64 {
	return s.PositionMargin * float64(s.Leverage)
}

// RiskAmount is the USD loss if the stop is hit
func (s *Signal) RiskAmount() float64 {
	slDistance := math.Abs(s.EntryPrice-s.StopLoss) / s.EntryPrice
	return s.NotionalValue() * slDistance
}

// RewardAmount is the USD gain if the target is hit
func (s *Signal) RewardAmount() float64 {
	tpDistance := math.Abs(s.TakeProfit-s.EntryPrice) / s.EntryPrice
	return s.NotionalValue() * tpDistance
}

// RiskRewardRatio returns reward over risk, or 0 when risk is zero
func (s *Signal) RiskRewardRatio() float64 {
	risk := s.RiskAmount()
	if risk == 0 {
		return 0
	}
	return s.RewardAmount() / risk
}

// newSignalID builds an ID like SIG_20250601_A1B2C3
func newSignalID(now time.Time) string {
	unique := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return fmt.Sprintf("SIG_%s_%s", now.UTC().Format("20060102"), unique)
}
