package reports

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coinpulse/signalengine/internal/db"
)

type fakeStore struct {
	signals []*db.Signal
	state   *db.DailyState
	stats   []*db.DailyStats
	balance float64
	saved   []*db.DailyStats
}

func (f *fakeStore) GetSignalsForPeriod(context.Context, time.Time, time.Time) ([]*db.Signal, error) {
	return f.signals, nil
}

func (f *fakeStore) GetDailyState(context.Context, string) (*db.DailyState, error) {
	return f.state, nil
}

func (f *fakeStore) GetStatsForPeriod(context.Context, string, string) ([]*db.DailyStats, error) {
	return f.stats, nil
}

func (f *fakeStore) GetLatestBalance(_ context.Context, initial float64) (float64, error) {
	if f.balance == 0 {
		return initial, nil
	}
	return f.balance, nil
}

func (f *fakeStore) SaveDailyStats(_ context.Context, stats *db.DailyStats) error {
	f.saved = append(f.saved, stats)
	return nil
}

func resolvedSignal(id string, status db.SignalStatus, pnl float64, tradeIQ int) *db.Signal {
	return &db.Signal{
		SignalID:  id,
		Status:    status,
		Strategy:  "TREND_MOMENTUM",
		ResultPnL: &pnl,
		TradeIQ:   &tradeIQ,
	}
}

func TestGenerateDaily(t *testing.T) {
	store := &fakeStore{
		signals: []*db.Signal{
			resolvedSignal("SIG_20250601_AAAAAA", db.SignalStatusWin, 15, 85),
			resolvedSignal("SIG_20250601_BBBBBB", db.SignalStatusLoss, -7.5, 60),
			resolvedSignal("SIG_20250601_CCCCCC", db.SignalStatusTimeout, 6, 70),
		},
		state: &db.DailyState{Date: "2025-06-01", Status: db.DailyStatusTargetHit},
	}
	g := NewGenerator(store)

	report, err := g.GenerateDaily(context.Background(), "2025-06-01")
	require.NoError(t, err)

	assert.Equal(t, "2025-06-01", report.Date)
	assert.Equal(t, "TARGET_HIT", report.Status)
	assert.Equal(t, 2, report.Trades, "timeouts are not counted as wins or losses")
	assert.Equal(t, 1, report.Wins)
	assert.Equal(t, 0.5, report.WinRate)
	assert.InDelta(t, 13.5, report.PnL, 1e-9)
	assert.InDelta(t, 215.0/3, report.AvgIQ, 1e-9)
	require.NotNil(t, report.BestTrade)
	assert.Equal(t, "SIG_20250601_AAAAAA", report.BestTrade.SignalID)
	assert.Equal(t, "SIG_20250601_BBBBBB", report.WorstTrade.SignalID)
	assert.InDelta(t, 513.5, report.AccountBalance, 1e-9)
}

func TestGenerateDailyDefaultsToYesterday(t *testing.T) {
	store := &fakeStore{}
	g := NewGenerator(store)
	g.now = func() time.Time { return time.Date(2025, 6, 2, 0, 5, 0, 0, time.UTC) }

	report, err := g.GenerateDaily(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, "2025-06-01", report.Date)
	assert.Equal(t, "NO_DATA", report.Status)
	assert.Nil(t, report.BestTrade)
	assert.Equal(t, 500.0, report.AccountBalance)
}

func TestGenerateDailyRunningBalance(t *testing.T) {
	pnl := 15.0
	store := &fakeStore{
		signals: []*db.Signal{resolvedSignal("SIG_20250601_DDDDDD", db.SignalStatusWin, pnl, 80)},
		balance: 612.5,
	}
	g := NewGenerator(store)

	report, err := g.GenerateDaily(context.Background(), "2025-06-01")
	require.NoError(t, err)
	assert.InDelta(t, 627.5, report.AccountBalance, 1e-9)
}

func TestGenerateWeekly(t *testing.T) {
	store := &fakeStore{
		signals: []*db.Signal{
			resolvedSignal("SIG_20250526_AAAAAA", db.SignalStatusWin, 15, 90),
			resolvedSignal("SIG_20250527_BBBBBB", db.SignalStatusWin, 15, 80),
			resolvedSignal("SIG_20250528_CCCCCC", db.SignalStatusLoss, -7.5, 55),
		},
		stats: []*db.DailyStats{
			{Date: "2025-05-26", TotalPnL: 15, TotalSignals: 1, TargetHit: true},
			{Date: "2025-05-27", TotalPnL: 15, TotalSignals: 1, TargetHit: true},
			{Date: "2025-05-28", TotalPnL: -7.5, TotalSignals: 1, StopHit: true},
		},
	}
	g := NewGenerator(store)

	report, err := g.GenerateWeekly(context.Background(), "2025-06-01")
	require.NoError(t, err)

	assert.Equal(t, "2025-05-25", report.StartDate)
	assert.Equal(t, 3, report.TotalTrades)
	assert.InDelta(t, 2.0/3, report.WinRate, 1e-9)
	assert.InDelta(t, 22.5, report.TotalPnL, 1e-9)
	assert.InDelta(t, 22.5/7, report.AvgDailyPnL, 1e-9)
	require.NotNil(t, report.BestDay)
	assert.Equal(t, "2025-05-26", report.BestDay.Date)
	assert.Equal(t, "2025-05-28", report.WorstDay.Date)
	assert.Equal(t, 2, report.TargetHitDays)
	assert.Equal(t, 1, report.StopHitDays)
}

func TestSaveDailyStats(t *testing.T) {
	store := &fakeStore{}
	g := NewGenerator(store)

	err := g.SaveDailyStats(context.Background(), &DailyReport{
		Date:           "2025-06-01",
		Status:         "TARGET_HIT",
		Trades:         2,
		Wins:           2,
		WinRate:        1.0,
		PnL:            30,
		AvgIQ:          87.5,
		AccountBalance: 530,
	})
	require.NoError(t, err)

	require.Len(t, store.saved, 1)
	saved := store.saved[0]
	assert.Equal(t, "2025-06-01", saved.Date)
	assert.True(t, saved.TargetHit)
	assert.False(t, saved.StopHit)
	assert.Equal(t, 87, saved.AvgTradeIQ)
	assert.Equal(t, 530.0, saved.AccountBalance)
}
