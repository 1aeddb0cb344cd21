// Package reports builds daily and weekly performance summaries from
// resolved signals and persisted daily statistics.
package reports

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/coinpulse/signalengine/internal/db"
)

// Store is the persistence the generator reads and writes.
type Store interface {
	GetSignalsForPeriod(ctx context.Context, start, end time.Time) ([]*db.Signal, error)
	GetDailyState(ctx context.Context, date string) (*db.DailyState, error)
	GetStatsForPeriod(ctx context.Context, startDate, endDate string) ([]*db.DailyStats, error)
	GetLatestBalance(ctx context.Context, initialBalance float64) (float64, error)
	SaveDailyStats(ctx context.Context, stats *db.DailyStats) error
}

// TradeSummary is the best or worst trade of a period.
type TradeSummary struct {
	SignalID string  `json:"signal_id"`
	PnL      float64 `json:"pnl"`
	Strategy string  `json:"strategy"`
	TradeIQ  int     `json:"iq"`
}

// DaySummary is the best or worst day of a week.
type DaySummary struct {
	Date   string  `json:"date"`
	PnL    float64 `json:"pnl"`
	Trades int     `json:"trades"`
}

// DailyReport summarises one UTC day.
type DailyReport struct {
	Date           string         `json:"date"`
	Status         string         `json:"status"`
	Trades         int            `json:"trades"`
	Wins           int            `json:"wins"`
	Losses         int            `json:"losses"`
	WinRate        float64        `json:"win_rate"`
	PnL            float64        `json:"pnl"`
	AvgIQ          float64        `json:"avg_iq"`
	BestTrade      *TradeSummary  `json:"best_trade,omitempty"`
	WorstTrade     *TradeSummary  `json:"worst_trade,omitempty"`
	AccountBalance float64        `json:"account_balance"`
}

// WeeklyReport summarises a trailing 7-day window.
type WeeklyReport struct {
	StartDate     string      `json:"start_date"`
	EndDate       string      `json:"end_date"`
	TotalTrades   int         `json:"total_trades"`
	TotalWins     int         `json:"total_wins"`
	TotalLosses   int         `json:"total_losses"`
	WinRate       float64     `json:"win_rate"`
	TotalPnL      float64     `json:"total_pnl"`
	AvgDailyPnL   float64     `json:"avg_daily_pnl"`
	AvgIQ         float64     `json:"avg_iq"`
	BestDay       *DaySummary `json:"best_day,omitempty"`
	WorstDay      *DaySummary `json:"worst_day,omitempty"`
	TargetHitDays int         `json:"target_hit_days"`
	StopHitDays   int         `json:"stop_hit_days"`
}

// Generator builds reports against a running account balance seeded
// at the initial deposit.
type Generator struct {
	store          Store
	initialBalance float64
	now            func() time.Time
}

// NewGenerator returns a generator starting from a $500 balance.
func NewGenerator(store Store) *Generator {
	return &Generator{store: store, initialBalance: 500, now: time.Now}
}

// GenerateDaily builds the report for the given date; an empty date
// means yesterday (the UTC-midnight report).
func (g *Generator) GenerateDaily(ctx context.Context, targetDate string) (*DailyReport, error) {
	if targetDate == "" {
		targetDate = g.now().UTC().AddDate(0, 0, -1).Format("2006-01-02")
	}

	start, err := time.Parse("2006-01-02", targetDate)
	if err != nil {
		return nil, fmt.Errorf("invalid report date %q: %w", targetDate, err)
	}
	end := start.AddDate(0, 0, 1)

	signals, err := g.store.GetSignalsForPeriod(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to load signals for %s: %w", targetDate, err)
	}

	report := &DailyReport{Date: targetDate, Status: "NO_DATA"}
	if state, err := g.store.GetDailyState(ctx, targetDate); err == nil && state != nil {
		report.Status = string(state.Status)
	}

	report.Wins, report.Losses, report.PnL, report.AvgIQ = aggregate(signals)
	report.Trades = report.Wins + report.Losses
	if report.Trades > 0 {
		report.WinRate = float64(report.Wins) / float64(report.Trades)
	}
	report.BestTrade, report.WorstTrade = extremeTrades(signals)

	balance, err := g.store.GetLatestBalance(ctx, g.initialBalance)
	if err != nil {
		return nil, err
	}
	report.AccountBalance = balance + report.PnL

	log.Info().
		Str("date", targetDate).
		Int("trades", report.Trades).
		Float64("pnl", report.PnL).
		Float64("balance", report.AccountBalance).
		Msg("Daily report generated")

	return report, nil
}

// GenerateWeekly builds the trailing-week report ending at endDate
// (empty means today).
func (g *Generator) GenerateWeekly(ctx context.Context, endDate string) (*WeeklyReport, error) {
	if endDate == "" {
		endDate = g.now().UTC().Format("2006-01-02")
	}

	end, err := time.Parse("2006-01-02", endDate)
	if err != nil {
		return nil, fmt.Errorf("invalid report date %q: %w", endDate, err)
	}
	start := end.AddDate(0, 0, -7)
	startDate := start.Format("2006-01-02")

	signals, err := g.store.GetSignalsForPeriod(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to load signals for week ending %s: %w", endDate, err)
	}

	report := &WeeklyReport{StartDate: startDate, EndDate: endDate}
	report.TotalWins, report.TotalLosses, report.TotalPnL, report.AvgIQ = aggregate(signals)
	report.TotalTrades = report.TotalWins + report.TotalLosses
	if report.TotalTrades > 0 {
		report.WinRate = float64(report.TotalWins) / float64(report.TotalTrades)
	}
	report.AvgDailyPnL = report.TotalPnL / 7

	stats, err := g.store.GetStatsForPeriod(ctx, startDate, endDate)
	if err != nil {
		return nil, err
	}
	if len(stats) > 0 {
		best, worst := stats[0], stats[0]
		for _, s := range stats[1:] {
			if s.TotalPnL > best.TotalPnL {
				best = s
			}
			if s.TotalPnL < worst.TotalPnL {
				worst = s
			}
		}
		report.BestDay = &DaySummary{Date: best.Date, PnL: best.TotalPnL, Trades: best.TotalSignals}
		report.WorstDay = &DaySummary{Date: worst.Date, PnL: worst.TotalPnL, Trades: worst.TotalSignals}
		for _, s := range stats {
			if s.TargetHit {
				report.TargetHitDays++
			}
			if s.StopHit {
				report.StopHitDays++
			}
		}
	}

	return report, nil
}

// SaveDailyStats persists a daily report as the durable stats row.
func (g *Generator) SaveDailyStats(ctx context.Context, report *DailyReport) error {
	return g.store.SaveDailyStats(ctx, &db.DailyStats{
		Date:           report.Date,
		TotalSignals:   report.Trades,
		Wins:           report.Wins,
		Losses:         report.Losses,
		WinRate:        report.WinRate,
		TotalPnL:       report.PnL,
		AvgTradeIQ:     int(report.AvgIQ),
		AccountBalance: report.AccountBalance,
		TargetHit:      report.Status == string(db.DailyStatusTargetHit),
		StopHit:        report.Status == string(db.DailyStatusStopHit),
	})
}

// aggregate sums wins, losses, pnl and average IQ over resolved
// signals. Timeouts contribute PnL but count as neither win nor loss.
func aggregate(signals []*db.Signal) (wins, losses int, pnl, avgIQ float64) {
	var iqSum, iqCount int
	for _, s := range signals {
		switch s.Status {
		case db.SignalStatusWin:
			wins++
		case db.SignalStatusLoss:
			losses++
		}
		if s.ResultPnL != nil {
			pnl += *s.ResultPnL
		}
		if s.TradeIQ != nil && *s.TradeIQ > 0 {
			iqSum += *s.TradeIQ
			iqCount++
		}
	}
	if iqCount > 0 {
		avgIQ = float64(iqSum) / float64(iqCount)
	}
	return wins, losses, pnl, avgIQ
}

func extremeTrades(signals []*db.Signal) (best, worst *TradeSummary) {
	if len(signals) == 0 {
		return nil, nil
	}

	pnl := func(s *db.Signal) float64 {
		if s.ResultPnL == nil {
			return 0
		}
		return *s.ResultPnL
	}

	bestSig, worstSig := signals[0], signals[0]
	for _, s := range signals[1:] {
		if pnl(s) > pnl(bestSig) {
			bestSig = s
		}
		if pnl(s) < pnl(worstSig) {
			worstSig = s
		}
	}

	summary := func(s *db.Signal) *TradeSummary {
		ts := &TradeSummary{SignalID: s.SignalID, PnL: pnl(s), Strategy: s.Strategy}
		if s.TradeIQ != nil {
			ts.TradeIQ = *s.TradeIQ
		}
		return ts
	}
	return summary(bestSig), summary(worstSig)
}
