package alerts

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coinpulse/signalengine/internal/db"
	"github.com/coinpulse/signalengine/internal/health"
	"github.com/coinpulse/signalengine/internal/reports"
	"github.com/coinpulse/signalengine/internal/tracker"
)

type fakeSender struct {
	messages []string
}

func (f *fakeSender) SendHTML(_ context.Context, text string) error {
	f.messages = append(f.messages, text)
	return nil
}

func newTestNotifier() (*Notifier, *fakeSender) {
	sender := &fakeSender{}
	n := NewNotifier(sender)
	n.now = func() time.Time {
		return time.Date(2025, 6, 2, 14, 30, 45, 0, time.UTC)
	}
	return n, sender
}

func TestSignalAlertFormat(t *testing.T) {
	n, sender := newTestNotifier()

	sig := &db.Signal{
		SignalID:     "SIG_20250602_ABC123",
		Direction:    db.DirectionLong,
		Strategy:     "TREND_MOMENTUM",
		EntryPrice:   50000,
		StopLoss:     49875,
		TakeProfit:   50250,
		Confidence:   0.82,
		SetupQuality: 85,
		Regime:       "TRENDING_UP",
	}
	state := &db.DailyState{Date: "2025-06-02", TradeCount: 1, PnL: 4.5}

	require.NoError(t, n.SignalAlert(context.Background(), sig, state))
	require.Len(t, sender.messages, 1)

	msg := sender.messages[0]
	assert.Contains(t, msg, "🔔 <b>NEW TRADE SIGNAL</b>")
	assert.Contains(t, msg, "🟢 <b>Direction:</b> LONG")
	assert.Contains(t, msg, "Entry: <code>$50000.00</code>")
	assert.Contains(t, msg, "Stop Loss: <code>$49875.00</code> (-0.25%)")
	assert.Contains(t, msg, "Take Profit: <code>$50250.00</code> (+0.50%)")
	assert.Contains(t, msg, "AI Confidence: <b>82%</b>")
	assert.Contains(t, msg, "Risk:Reward: 1:2.0")
	assert.Contains(t, msg, "This is trade #2/3")
	assert.Contains(t, msg, "Current PnL: $+4.50")
	assert.Contains(t, msg, "Target: $5.50 remaining")
	assert.Contains(t, msg, "SIG_20250602_ABC123")
	assert.Contains(t, msg, "14:30:45 UTC")
}

func TestSignalAlertShortUsesRedEmoji(t *testing.T) {
	n, sender := newTestNotifier()

	sig := &db.Signal{
		SignalID:   "SIG_20250602_DEF456",
		Direction:  db.DirectionShort,
		Strategy:   "RANGE_REVERSAL",
		EntryPrice: 50000,
		StopLoss:   50125,
		TakeProfit: 49750,
	}
	require.NoError(t, n.SignalAlert(context.Background(), sig, &db.DailyState{}))
	require.Len(t, sender.messages, 1)
	assert.Contains(t, sender.messages[0], "🔴 <b>Direction:</b> SHORT")
}

func TestRegimeChangeFormat(t *testing.T) {
	n, sender := newTestNotifier()

	require.NoError(t, n.RegimeChange(context.Background(), "RANGING", "TRENDING_UP", 0.85))
	require.Len(t, sender.messages, 1)

	msg := sender.messages[0]
	assert.Contains(t, msg, "🔄 <b>REGIME CHANGE</b>")
	assert.Contains(t, msg, "↔️ <b>From:</b> RANGING")
	assert.Contains(t, msg, "🐂 <b>To:</b> TRENDING_UP")
	assert.Contains(t, msg, "<b>Confidence:</b> 85%")
	assert.Contains(t, msg, "Favor LONG setups")
}

func TestRegimeChangeUnknownRegime(t *testing.T) {
	n, sender := newTestNotifier()

	require.NoError(t, n.RegimeChange(context.Background(), "MYSTERY", "CHOPPY", 0.5))
	msg := sender.messages[0]
	assert.Contains(t, msg, "❓ <b>From:</b> MYSTERY")
	assert.Contains(t, msg, "〰️ <b>To:</b> CHOPPY")
	assert.Contains(t, msg, "consider standing aside")
}

func TestIQAssessmentBands(t *testing.T) {
	assert.Equal(t, "🌟 Excellent", IQAssessment(80))
	assert.Equal(t, "✅ Good", IQAssessment(60))
	assert.Equal(t, "⚠️ Average", IQAssessment(40))
	assert.Equal(t, "❌ Poor", IQAssessment(39))
}

func TestTradeResultWin(t *testing.T) {
	n, sender := newTestNotifier()

	result := tracker.Result{
		SignalID:        "SIG_20250602_ABC123",
		Status:          db.SignalStatusWin,
		EntryPrice:      50000,
		ResultPrice:     50250,
		ResultPnL:       15,
		MFE:             0.6,
		MAE:             0.1,
		DurationMinutes: 42,
		TradeIQ:         88,
	}
	state := &db.DailyState{
		Date: "2025-06-02", TradeCount: 1, Wins: 1, PnL: 15,
		Status: db.DailyStatusTargetHit,
	}

	require.NoError(t, n.TradeResult(context.Background(), result, state))
	require.Len(t, sender.messages, 1)

	msg := sender.messages[0]
	assert.Contains(t, msg, "✅ <b>WIN - Take Profit Hit!</b>")
	assert.Contains(t, msg, "PnL: <b>$+15.00</b> 🟢")
	assert.Contains(t, msg, "Duration: 42m")
	assert.Contains(t, msg, "MFE (Max Profit): +0.60%")
	assert.Contains(t, msg, "Trade IQ: 88/100 🌟 Excellent")
	assert.Contains(t, msg, "🎯 <b>Daily Progress (2025-06-02):</b>")
	assert.Contains(t, msg, "🎉 Target reached! Done for today.")
}

func TestTradeResultLossWithTradesLeft(t *testing.T) {
	n, sender := newTestNotifier()

	result := tracker.Result{
		SignalID:    "SIG_20250602_DEF456",
		Status:      db.SignalStatusLoss,
		EntryPrice:  50000,
		ResultPrice: 49875,
		ResultPnL:   -7.5,
		TradeIQ:     55,
	}
	state := &db.DailyState{
		Date: "2025-06-02", TradeCount: 1, Losses: 1, PnL: -7.5,
		Status: db.DailyStatusActive,
	}

	require.NoError(t, n.TradeResult(context.Background(), result, state))
	msg := sender.messages[0]
	assert.Contains(t, msg, "❌ <b>LOSS - Stop Loss Hit</b>")
	assert.Contains(t, msg, "PnL: <b>$-7.50</b> 🔴")
	assert.Contains(t, msg, "Trade IQ: 55/100 ⚠️ Average")
	assert.Contains(t, msg, "💪 2 trades left | $17.50 to target")
}

func TestTradeResultTimeout(t *testing.T) {
	n, sender := newTestNotifier()

	result := tracker.Result{
		SignalID: "SIG_20250602_GHI789",
		Status:   db.SignalStatusTimeout,
	}
	state := &db.DailyState{Date: "2025-06-02", TradeCount: 3, Status: db.DailyStatusMaxTrades}

	require.NoError(t, n.TradeResult(context.Background(), result, state))
	msg := sender.messages[0]
	assert.Contains(t, msg, "⏱️ <b>TIMEOUT - Position Closed</b>")
	assert.Contains(t, msg, "Max trades reached. Done for today.")
}

func TestDailyCompleteTargetHit(t *testing.T) {
	n, sender := newTestNotifier()

	state := &db.DailyState{
		Date: "2025-06-02", TradeCount: 2, Wins: 2, PnL: 12.5,
		Status: db.DailyStatusTargetHit,
	}
	require.NoError(t, n.DailyComplete(context.Background(), state, db.DailyStatusTargetHit))
	msg := sender.messages[0]
	assert.Contains(t, msg, "🎯 <b>DAILY TARGET REACHED!</b>")
	assert.Contains(t, msg, "Win Rate: 100%")
	assert.Contains(t, msg, "PnL: <b>$+12.50</b>")
	assert.Contains(t, msg, "See you tomorrow at 00:00 UTC")
}

func TestDailyCompleteStopHit(t *testing.T) {
	n, sender := newTestNotifier()

	state := &db.DailyState{
		Date: "2025-06-02", TradeCount: 2, Losses: 2, PnL: -15,
		Status: db.DailyStatusStopHit,
	}
	require.NoError(t, n.DailyComplete(context.Background(), state, db.DailyStatusStopHit))
	msg := sender.messages[0]
	assert.Contains(t, msg, "⛔ <b>DAILY STOP HIT</b>")
	assert.Contains(t, msg, "Tomorrow is a new day. Keep learning!")
}

func TestNewDayFormat(t *testing.T) {
	n, sender := newTestNotifier()

	state := &db.DailyState{Date: "2025-06-03"}
	require.NoError(t, n.NewDay(context.Background(), state, 12.5))
	msg := sender.messages[0]
	assert.Contains(t, msg, "🌅 <b>NEW TRADING DAY</b>")
	assert.Contains(t, msg, "Date: 2025-06-03")
	assert.Contains(t, msg, "Target: +$10.00 (2%)")
	assert.Contains(t, msg, "Stop: -$15.00 (3%)")
	assert.Contains(t, msg, "Previous PnL: $+12.50")
}

func TestAlertWithAction(t *testing.T) {
	n, sender := newTestNotifier()

	require.NoError(t, n.Alert(context.Background(), "IQ DEGRADATION", "WARNING",
		"Average trade IQ dropped to 58", "Review recent signals"))
	msg := sender.messages[0]
	assert.Contains(t, msg, "⚠️ <b>IQ DEGRADATION - WARNING</b>")
	assert.Contains(t, msg, "Average trade IQ dropped to 58")
	assert.Contains(t, msg, "📋 <b>Action:</b> Review recent signals")
}

func TestAlertCriticalWithoutAction(t *testing.T) {
	n, sender := newTestNotifier()

	require.NoError(t, n.Alert(context.Background(), "HEALTH CHECK", "CRITICAL",
		"signal_engine has not pinged for 12 minutes", ""))
	msg := sender.messages[0]
	assert.Contains(t, msg, "🚨 <b>HEALTH CHECK - CRITICAL</b>")
	assert.False(t, strings.Contains(msg, "Action:"))
}

func TestHealthAlertCritical(t *testing.T) {
	n, sender := newTestNotifier()

	check := health.CheckResult{
		Status:  health.StatusCritical,
		Message: "signal_engine last seen 12.0 minutes ago",
	}
	require.NoError(t, n.HealthAlert(context.Background(), "signal_engine", check))
	msg := sender.messages[0]
	assert.Contains(t, msg, "CRITICAL")
	assert.Contains(t, msg, "Restart signal_engine")
}

func TestHealthAlertRecovery(t *testing.T) {
	n, sender := newTestNotifier()

	check := health.CheckResult{
		Status:    health.StatusHealthy,
		Message:   "signal_engine recovered",
		Recovered: true,
	}
	require.NoError(t, n.HealthAlert(context.Background(), "signal_engine", check))
	msg := sender.messages[0]
	assert.Contains(t, msg, "ℹ️ <b>HEALTH CHECK - INFO</b>")
	assert.False(t, strings.Contains(msg, "Action:"))
}

func TestEndOfDayFormat(t *testing.T) {
	n, sender := newTestNotifier()

	report := &reports.DailyReport{
		Date:           "2025-06-02",
		Status:         "TARGET_HIT",
		Trades:         2,
		Wins:           2,
		WinRate:        1.0,
		PnL:            13.5,
		AvgIQ:          71.7,
		AccountBalance: 513.5,
	}
	require.NoError(t, n.EndOfDay(context.Background(), report))
	msg := sender.messages[0]
	assert.Contains(t, msg, "📊 <b>END OF DAY SUMMARY</b>")
	assert.Contains(t, msg, "Status: TARGET_HIT ✅")
	assert.Contains(t, msg, "Win Rate: 100%")
	assert.Contains(t, msg, "Average: 72/100")
	assert.Contains(t, msg, "Balance: $513.50")
}

func TestWeeklySummaryFormat(t *testing.T) {
	n, sender := newTestNotifier()

	report := &reports.WeeklyReport{
		StartDate:     "2025-05-26",
		EndDate:       "2025-06-01",
		TotalTrades:   9,
		TotalWins:     6,
		TotalLosses:   3,
		WinRate:       6.0 / 9.0,
		TotalPnL:      52.5,
		AvgDailyPnL:   7.5,
		AvgIQ:         74,
		TargetHitDays: 3,
		StopHitDays:   1,
	}
	require.NoError(t, n.WeeklySummary(context.Background(), report))
	msg := sender.messages[0]
	assert.Contains(t, msg, "📊 <b>WEEKLY SUMMARY</b>")
	assert.Contains(t, msg, "2025-05-26 to 2025-06-01")
	assert.Contains(t, msg, "Win Rate: 67%")
	assert.Contains(t, msg, "Total PnL: <b>$+52.50</b>")
	assert.Contains(t, msg, "🎯 Target Hit: 3 days")
	assert.Contains(t, msg, "⚪ Neutral: 3 days")
}

func TestErrorCritical(t *testing.T) {
	n, sender := newTestNotifier()

	require.NoError(t, n.Error(context.Background(), "database connection lost", true))
	msg := sender.messages[0]
	assert.Contains(t, msg, "🚨 <b>CRITICAL ERROR</b>")
	assert.Contains(t, msg, "❌ database connection lost")
}

func TestNilSenderDropsQuietly(t *testing.T) {
	n := NewNotifier(nil)
	require.NoError(t, n.Error(context.Background(), "whatever", false))
}
