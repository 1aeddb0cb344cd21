package alerts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/coinpulse/signalengine/internal/daily"
	"github.com/coinpulse/signalengine/internal/db"
	"github.com/coinpulse/signalengine/internal/health"
	"github.com/coinpulse/signalengine/internal/reports"
	"github.com/coinpulse/signalengine/internal/tracker"
)

// Sender delivers a pre-formatted HTML message to the operator chat.
// TelegramSender is the production implementation; tests inject a fake.
type Sender interface {
	SendHTML(ctx context.Context, text string) error
}

const messageDivider = "═══════════════════════════"

// Notifier builds the operator-facing Telegram messages for both bots.
// All formatting lives here so the engine and verifier loops only ever
// hand over domain structs.
type Notifier struct {
	sender Sender
	now    func() time.Time
}

// NewNotifier wraps a sender. A nil sender disables delivery, which is
// how the bots run when Telegram is not configured.
func NewNotifier(sender Sender) *Notifier {
	return &Notifier{sender: sender, now: time.Now}
}

func (n *Notifier) send(ctx context.Context, text string) error {
	if n.sender == nil {
		log.Debug().Msg("Telegram disabled, dropping notification")
		return nil
	}
	if err := n.sender.SendHTML(ctx, text); err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	return nil
}

func (n *Notifier) timestamp() string {
	return n.now().UTC().Format("15:04:05") + " UTC"
}

// SignalAlert announces a freshly persisted signal. daily reflects the
// state BEFORE trade_count was bumped, matching the "trade #N" math.
func (n *Notifier) SignalAlert(ctx context.Context, sig *db.Signal, state *db.DailyState) error {
	directionEmoji := "🟢"
	if sig.Direction == db.DirectionShort {
		directionEmoji = "🔴"
	}

	riskPct := abs((sig.StopLoss - sig.EntryPrice) / sig.EntryPrice * 100)
	rewardPct := abs((sig.TakeProfit - sig.EntryPrice) / sig.EntryPrice * 100)
	riskReward := 0.0
	if riskPct > 0 {
		riskReward = rewardPct / riskPct
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🔔 <b>NEW TRADE SIGNAL</b>\n%s\n\n", messageDivider)
	fmt.Fprintf(&b, "%s <b>Direction:</b> %s\n", directionEmoji, sig.Direction)
	fmt.Fprintf(&b, "📈 <b>Strategy:</b> %s\n\n", sig.Strategy)
	fmt.Fprintf(&b, "💰 <b>Price Levels:</b>\n")
	fmt.Fprintf(&b, "├── Entry: <code>$%.2f</code>\n", sig.EntryPrice)
	fmt.Fprintf(&b, "├── Stop Loss: <code>$%.2f</code> (-%.2f%%)\n", sig.StopLoss, riskPct)
	fmt.Fprintf(&b, "└── Take Profit: <code>$%.2f</code> (+%.2f%%)\n\n", sig.TakeProfit, rewardPct)
	fmt.Fprintf(&b, "📊 <b>Signal Quality:</b>\n")
	fmt.Fprintf(&b, "├── AI Confidence: <b>%.0f%%</b>\n", sig.Confidence*100)
	fmt.Fprintf(&b, "├── Setup Score: %d/100\n", sig.SetupQuality)
	fmt.Fprintf(&b, "├── Risk:Reward: 1:%.1f\n", riskReward)
	fmt.Fprintf(&b, "└── Regime: %s\n\n", sig.Regime)
	fmt.Fprintf(&b, "📅 <b>Today's Progress:</b>\n")
	fmt.Fprintf(&b, "├── This is trade #%d/3\n", state.TradeCount+1)
	fmt.Fprintf(&b, "├── Current PnL: $%+.2f\n", state.PnL)
	fmt.Fprintf(&b, "└── Target: $%.2f remaining\n\n", 10.0-state.PnL)
	fmt.Fprintf(&b, "🆔 <code>%s</code>\n⏰ %s", sig.SignalID, n.timestamp())

	return n.send(ctx, b.String())
}

var regimeEmoji = map[string]string{
	"TRENDING_UP":     "🐂",
	"TRENDING_DOWN":   "🐻",
	"RANGING":         "↔️",
	"HIGH_VOLATILITY": "⚡",
	"CHOPPY":          "〰️",
}

func emojiFor(regime string) string {
	if e, ok := regimeEmoji[regime]; ok {
		return e
	}
	return "❓"
}

func regimeImplication(regime string) string {
	switch regime {
	case "TRENDING_UP":
		return "✅ Favor LONG setups, watch for exhaustion"
	case "TRENDING_DOWN":
		return "✅ Favor SHORT setups, watch for reversal"
	case "RANGING":
		return "↔️ Range trading, buy support and sell resistance"
	case "HIGH_VOLATILITY":
		return "⚠️ High volatility, reduce size and tighten risk"
	default:
		return "⚠️ Unreadable market, consider standing aside"
	}
}

// RegimeChange announces a market regime transition.
func (n *Notifier) RegimeChange(ctx context.Context, oldRegime, newRegime string, confidence float64) error {
	var b strings.Builder
	fmt.Fprintf(&b, "🔄 <b>REGIME CHANGE</b>\n%s\n\n", messageDivider)
	fmt.Fprintf(&b, "%s <b>From:</b> %s\n", emojiFor(oldRegime), oldRegime)
	fmt.Fprintf(&b, "%s <b>To:</b> %s\n\n", emojiFor(newRegime), newRegime)
	fmt.Fprintf(&b, "📊 <b>Confidence:</b> %.0f%%\n\n", confidence*100)
	fmt.Fprintf(&b, "💡 <b>Trading Implication:</b>\n└── %s\n\n", regimeImplication(newRegime))
	fmt.Fprintf(&b, "⏰ %s", n.timestamp())

	return n.send(ctx, b.String())
}

// IQAssessment maps a trade IQ score to an operator-facing label.
func IQAssessment(tradeIQ int) string {
	switch {
	case tradeIQ >= 80:
		return "🌟 Excellent"
	case tradeIQ >= 60:
		return "✅ Good"
	case tradeIQ >= 40:
		return "⚠️ Average"
	default:
		return "❌ Poor"
	}
}

// TradeResult announces a resolved signal together with the folded
// daily state and the next-action hint.
func (n *Notifier) TradeResult(ctx context.Context, result tracker.Result, state *db.DailyState) error {
	var emoji, title, resultColor string
	switch result.Status {
	case db.SignalStatusWin:
		emoji, title, resultColor = "✅", "WIN - Take Profit Hit!", "🟢"
	case db.SignalStatusLoss:
		emoji, title, resultColor = "❌", "LOSS - Stop Loss Hit", "🔴"
	default:
		emoji, title, resultColor = "⏱️", "TIMEOUT - Position Closed", "🟡"
	}

	var dailyEmoji, nextAction string
	switch {
	case state.Status == db.DailyStatusTargetHit:
		dailyEmoji, nextAction = "🎯", "🎉 Target reached! Done for today."
	case state.Status == db.DailyStatusStopHit:
		dailyEmoji, nextAction = "⛔", "Tomorrow is a new day! 💪"
	case state.TradeCount >= 3:
		dailyEmoji, nextAction = "📊", "Max trades reached. Done for today."
	default:
		remaining := 3 - state.TradeCount
		plural := ""
		if remaining > 1 {
			plural = "s"
		}
		dailyEmoji = "🟢"
		nextAction = fmt.Sprintf("💪 %d trade%s left | $%.2f to target", remaining, plural, 10.0-state.PnL)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s <b>%s</b>\n%s\n\n", emoji, title, messageDivider)
	fmt.Fprintf(&b, "💰 <b>Trade Details:</b>\n")
	fmt.Fprintf(&b, "├── Entry: <code>$%.2f</code>\n", result.EntryPrice)
	fmt.Fprintf(&b, "├── Exit: <code>$%.2f</code>\n", result.ResultPrice)
	fmt.Fprintf(&b, "├── PnL: <b>$%+.2f</b> %s\n", result.ResultPnL, resultColor)
	fmt.Fprintf(&b, "└── Duration: %dm\n\n", result.DurationMinutes)
	fmt.Fprintf(&b, "📊 <b>Performance:</b>\n")
	fmt.Fprintf(&b, "├── MFE (Max Profit): +%.2f%%\n", result.MFE)
	fmt.Fprintf(&b, "├── MAE (Max Loss): -%.2f%%\n", result.MAE)
	fmt.Fprintf(&b, "└── Trade IQ: %d/100 %s\n\n", result.TradeIQ, IQAssessment(result.TradeIQ))
	fmt.Fprintf(&b, "%s <b>Daily Progress (%s):</b>\n", dailyEmoji, state.Date)
	fmt.Fprintf(&b, "├── Trades: %d/3\n", state.TradeCount)
	fmt.Fprintf(&b, "├── W/L: %dW - %dL\n", state.Wins, state.Losses)
	fmt.Fprintf(&b, "├── PnL: <b>$%+.2f</b>\n", state.PnL)
	fmt.Fprintf(&b, "└── Status: %s\n\n", state.Status)
	fmt.Fprintf(&b, "📌 <b>Next:</b> %s\n\n", nextAction)
	fmt.Fprintf(&b, "🆔 <code>%s</code>", result.SignalID)

	return n.send(ctx, b.String())
}

// DailyComplete announces that the day is over, for whichever of the
// three limits tripped first.
func (n *Notifier) DailyComplete(ctx context.Context, state *db.DailyState, completionType db.DailyStatus) error {
	var emoji, title, footer string
	switch completionType {
	case db.DailyStatusTargetHit:
		emoji, title = "🎯", "DAILY TARGET REACHED!"
		footer = "🏆 Great job! See you tomorrow at 00:00 UTC."
	case db.DailyStatusStopHit:
		emoji, title = "⛔", "DAILY STOP HIT"
		footer = "💪 Tomorrow is a new day. Keep learning!"
	default:
		emoji, title = "📊", "MAX TRADES REACHED"
		footer = "📈 Daily limit reached. See you tomorrow."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s <b>%s</b>\n%s\n\n", emoji, title, messageDivider)
	fmt.Fprintf(&b, "📅 <b>Date:</b> %s\n\n", state.Date)
	fmt.Fprintf(&b, "📊 <b>Day Summary:</b>\n")
	fmt.Fprintf(&b, "├── Trades: %d/3\n", state.TradeCount)
	fmt.Fprintf(&b, "├── Wins: %d\n", state.Wins)
	fmt.Fprintf(&b, "├── Losses: %d\n", state.Losses)
	fmt.Fprintf(&b, "├── Win Rate: %.0f%%\n", daily.WinRate(state)*100)
	fmt.Fprintf(&b, "└── PnL: <b>$%+.2f</b>\n\n", state.PnL)
	fmt.Fprintf(&b, "🔒 Trading paused until tomorrow.\n\n%s\n\n⏰ %s", footer, n.timestamp())

	return n.send(ctx, b.String())
}

// NewDay announces the UTC-midnight rollover with the fresh limits.
func (n *Notifier) NewDay(ctx context.Context, state *db.DailyState, previousPnL float64) error {
	var b strings.Builder
	fmt.Fprintf(&b, "🌅 <b>NEW TRADING DAY</b>\n%s\n\n", messageDivider)
	fmt.Fprintf(&b, "📅 Date: %s\n\n", state.Date)
	fmt.Fprintf(&b, "📊 <b>Daily Limits:</b>\n")
	fmt.Fprintf(&b, "├── 🎯 Target: +$10.00 (2%%)\n")
	fmt.Fprintf(&b, "├── ⛔ Stop: -$15.00 (3%%)\n")
	fmt.Fprintf(&b, "└── 📈 Max Trades: 3\n\n")
	fmt.Fprintf(&b, "💰 <b>Starting Balance:</b>\n└── Previous PnL: $%+.2f\n\n", previousPnL)
	fmt.Fprintf(&b, "⏰ %s", n.timestamp())

	return n.send(ctx, b.String())
}

// Alert relays a health or IQ warning. action is optional.
func (n *Notifier) Alert(ctx context.Context, alertType, level, message, action string) error {
	emoji := "ℹ️"
	switch level {
	case "CRITICAL":
		emoji = "🚨"
	case "WARNING":
		emoji = "⚠️"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s <b>%s - %s</b>\n%s\n\n%s\n", emoji, alertType, level, messageDivider, message)
	if action != "" {
		fmt.Fprintf(&b, "\n📋 <b>Action:</b> %s\n", action)
	}
	fmt.Fprintf(&b, "\n⏰ %s", n.timestamp())

	return n.send(ctx, b.String())
}

// HealthAlert formats a heartbeat check that needs operator attention.
func (n *Notifier) HealthAlert(ctx context.Context, botName string, check health.CheckResult) error {
	level := "WARNING"
	action := "Check the bot logs"
	if check.Status == health.StatusCritical || check.Status == health.StatusUnknown {
		level = "CRITICAL"
		action = "Restart " + botName
	}
	if check.Recovered {
		level = "INFO"
		action = ""
	}
	return n.Alert(ctx, "HEALTH CHECK", level, check.Message, action)
}

// EndOfDay sends the nightly report summary.
func (n *Notifier) EndOfDay(ctx context.Context, report *reports.DailyReport) error {
	statusEmoji := "📊"
	switch report.Status {
	case string(db.DailyStatusTargetHit):
		statusEmoji = "✅"
	case string(db.DailyStatusStopHit):
		statusEmoji = "❌"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📊 <b>END OF DAY SUMMARY</b>\n%s\n📅 %s\n\n", messageDivider, report.Date)
	fmt.Fprintf(&b, "📈 <b>Performance:</b>\n")
	fmt.Fprintf(&b, "├── Status: %s %s\n", report.Status, statusEmoji)
	fmt.Fprintf(&b, "├── Trades: %d/3\n", report.Trades)
	fmt.Fprintf(&b, "├── Wins: %d | Losses: %d\n", report.Wins, report.Losses)
	fmt.Fprintf(&b, "├── Win Rate: %.0f%%\n", report.WinRate*100)
	fmt.Fprintf(&b, "└── PnL: <b>$%+.2f</b>\n\n", report.PnL)
	fmt.Fprintf(&b, "🧠 <b>Bot IQ:</b>\n└── Average: %.0f/100\n\n", report.AvgIQ)
	fmt.Fprintf(&b, "💰 <b>Account:</b>\n└── Balance: $%.2f\n\n", report.AccountBalance)
	fmt.Fprintf(&b, "📆 <b>Tomorrow:</b>\n├── Target: +$10.00\n└── Stop: -$15.00\n\n")
	fmt.Fprintf(&b, "🌙 Good night! See you tomorrow.")

	return n.send(ctx, b.String())
}

// WeeklySummary sends the Sunday trailing-week report.
func (n *Notifier) WeeklySummary(ctx context.Context, report *reports.WeeklyReport) error {
	neutralDays := 7 - report.TargetHitDays - report.StopHitDays
	if neutralDays < 0 {
		neutralDays = 0
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📊 <b>WEEKLY SUMMARY</b>\n%s\n📅 %s to %s\n\n", messageDivider, report.StartDate, report.EndDate)
	fmt.Fprintf(&b, "📈 <b>Performance:</b>\n")
	fmt.Fprintf(&b, "├── Total Trades: %d\n", report.TotalTrades)
	fmt.Fprintf(&b, "├── Wins: %d | Losses: %d\n", report.TotalWins, report.TotalLosses)
	fmt.Fprintf(&b, "├── Win Rate: %.0f%%\n", report.WinRate*100)
	fmt.Fprintf(&b, "├── Total PnL: <b>$%+.2f</b>\n", report.TotalPnL)
	fmt.Fprintf(&b, "└── Avg Daily: $%+.2f\n\n", report.AvgDailyPnL)
	fmt.Fprintf(&b, "🧠 <b>Bot IQ:</b>\n└── Weekly Avg: %.0f/100\n\n", report.AvgIQ)
	fmt.Fprintf(&b, "📅 <b>Daily Breakdown:</b>\n")
	fmt.Fprintf(&b, "├── 🎯 Target Hit: %d days\n", report.TargetHitDays)
	fmt.Fprintf(&b, "├── ⛔ Stop Hit: %d days\n", report.StopHitDays)
	fmt.Fprintf(&b, "└── ⚪ Neutral: %d days\n\n", neutralDays)
	fmt.Fprintf(&b, "🎯 Keep it up! 💪")

	return n.send(ctx, b.String())
}

// Error relays an engine or verifier failure to the operator.
func (n *Notifier) Error(ctx context.Context, errMsg string, critical bool) error {
	emoji, title := "⚠️", "WARNING"
	if critical {
		emoji, title = "🚨", "CRITICAL ERROR"
	}
	text := fmt.Sprintf("%s <b>%s</b>\n%s\n\n❌ %s\n\n⏰ %s",
		emoji, title, messageDivider, errMsg, n.timestamp())
	return n.send(ctx, text)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
