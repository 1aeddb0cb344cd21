// Package learning mines resolved trades for recurring patterns and
// distils them into persisted lessons.
package learning

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/coinpulse/signalengine/internal/db"
)

// TradeResult is the flattened view of a resolved signal the engine
// analyzes; Features carries the persisted feature snapshot.
type TradeResult struct {
	SignalID        string
	Direction       string
	Strategy        string
	Regime          string
	SetupQuality    int
	Confidence      float64
	Result          db.SignalStatus
	PnL             float64
	MFE             float64
	MAE             float64
	DurationMinutes int
	Features        map[string]interface{}
}

// Pattern type labels on emitted lessons.
const (
	PatternWinning = "winning_pattern"
	PatternLosing  = "losing_pattern"
	PatternSession = "session_performance"
	PatternRegime  = "regime_analysis"
)

type patternStats struct {
	wins     int
	losses   int
	totalPnL float64
	signals  []string
}

// Engine accumulates trade results and emits lessons once pattern
// sample sizes become meaningful.
type Engine struct {
	minSampleSize int
	history       []TradeResult
	lessons       []*db.Lesson
	patterns      map[string]*patternStats
	now           func() time.Time
}

// NewEngine returns an engine requiring 5 samples per pattern before
// drawing conclusions.
func NewEngine() *Engine {
	return &Engine{
		minSampleSize: 5,
		patterns:      make(map[string]*patternStats),
		now:           time.Now,
	}
}

// AddResult folds one trade into the pattern statistics without
// triggering analysis.
func (e *Engine) AddResult(result TradeResult) {
	e.history = append(e.history, result)

	for _, pattern := range extractPatterns(result) {
		stats, ok := e.patterns[pattern]
		if !ok {
			stats = &patternStats{}
			e.patterns[pattern] = stats
		}
		if result.Result == db.SignalStatusWin {
			stats.wins++
		} else {
			stats.losses++
		}
		stats.totalPnL += result.PnL
		stats.signals = append(stats.signals, result.SignalID)
	}
}

// Analyze folds in new results and returns any lessons the updated
// statistics now support.
func (e *Engine) Analyze(results []TradeResult) []*db.Lesson {
	for _, r := range results {
		e.AddResult(r)
	}

	if len(e.history) < e.minSampleSize {
		return nil
	}

	var fresh []*db.Lesson
	fresh = append(fresh, e.winningPatterns()...)
	fresh = append(fresh, e.losingPatterns()...)
	fresh = append(fresh, e.sessionPerformance()...)
	fresh = append(fresh, e.regimePerformance()...)

	e.lessons = append(e.lessons, fresh...)

	if len(fresh) > 0 {
		log.Info().Int("lessons", len(fresh)).Int("history", len(e.history)).Msg("Learning pass produced lessons")
	}
	return fresh
}

// extractPatterns labels a trade with every pattern bucket it belongs
// to: strategy+direction, regime, quality band, confidence band, and
// notable feature zones.
func extractPatterns(result TradeResult) []string {
	patterns := []string{
		result.Strategy + "_" + result.Direction,
		"regime_" + result.Regime,
	}

	switch {
	case result.SetupQuality >= 90:
		patterns = append(patterns, "quality_90_plus")
	case result.SetupQuality >= 80:
		patterns = append(patterns, "quality_80_89")
	case result.SetupQuality >= 70:
		patterns = append(patterns, "quality_70_79")
	}

	switch {
	case result.Confidence >= 0.85:
		patterns = append(patterns, "confidence_high")
	case result.Confidence >= 0.75:
		patterns = append(patterns, "confidence_medium")
	default:
		patterns = append(patterns, "confidence_low")
	}

	if rsi := featureFloat(result.Features, "rsi_14", 50); rsi < 30 {
		patterns = append(patterns, "rsi_oversold")
	} else if rsi > 70 {
		patterns = append(patterns, "rsi_overbought")
	}

	if adx := featureFloat(result.Features, "adx", 25); adx > 35 {
		patterns = append(patterns, "adx_strong")
	} else if adx < 20 {
		patterns = append(patterns, "adx_weak")
	}

	return patterns
}

func featureFloat(features map[string]interface{}, key string, def float64) float64 {
	if features == nil {
		return def
	}
	switch v := features[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return def
	}
}

func (e *Engine) winningPatterns() []*db.Lesson {
	var lessons []*db.Lesson
	for _, pattern := range sortedPatternKeys(e.patterns) {
		stats := e.patterns[pattern]
		total := stats.wins + stats.losses
		if total < e.minSampleSize {
			continue
		}
		winRate := float64(stats.wins) / float64(total)
		if winRate < 0.65 {
			continue
		}
		lessons = append(lessons, &db.Lesson{
			LessonID:        e.newLessonID(),
			CreatedAt:       e.now().UTC(),
			SignalIDs:       lastN(stats.signals, 10),
			PatternType:     PatternWinning,
			Observation:     fmt.Sprintf("Pattern '%s' has %.0f%% win rate over %d trades", pattern, winRate*100, total),
			Conclusion:      "This pattern is highly effective",
			ActionSuggested: fmt.Sprintf("Prioritize signals matching '%s'", pattern),
			SampleSize:      total,
			Confidence:      minFloat(0.95, winRate),
		})
	}
	return lessons
}

func (e *Engine) losingPatterns() []*db.Lesson {
	var lessons []*db.Lesson
	for _, pattern := range sortedPatternKeys(e.patterns) {
		stats := e.patterns[pattern]
		total := stats.wins + stats.losses
		if total < e.minSampleSize {
			continue
		}
		lossRate := float64(stats.losses) / float64(total)
		if lossRate < 0.60 {
			continue
		}
		lessons = append(lessons, &db.Lesson{
			LessonID:        e.newLessonID(),
			CreatedAt:       e.now().UTC(),
			SignalIDs:       lastN(stats.signals, 10),
			PatternType:     PatternLosing,
			Observation:     fmt.Sprintf("Pattern '%s' has %.0f%% loss rate over %d trades", pattern, lossRate*100, total),
			Conclusion:      "This pattern is underperforming",
			ActionSuggested: fmt.Sprintf("Avoid or reduce signals matching '%s'", pattern),
			SampleSize:      total,
			Confidence:      minFloat(0.95, lossRate),
		})
	}
	return lessons
}

// sessionPerformance buckets trades by the UTC session they were
// opened in; it needs a deeper history than the per-pattern checks.
func (e *Engine) sessionPerformance() []*db.Lesson {
	if len(e.history) < 20 {
		return nil
	}

	type wl struct{ wins, losses int }
	sessions := make(map[string]*wl)
	for _, trade := range e.history {
		hour := int(featureFloat(trade.Features, "hour", 12))
		var session string
		switch {
		case hour >= 13 && hour < 16:
			session = "overlap"
		case hour >= 16 && hour < 21:
			session = "ny"
		case hour >= 8 && hour < 13:
			session = "london"
		default:
			session = "asia"
		}
		s, ok := sessions[session]
		if !ok {
			s = &wl{}
			sessions[session] = s
		}
		if trade.Result == db.SignalStatusWin {
			s.wins++
		} else {
			s.losses++
		}
	}

	names := make([]string, 0, len(sessions))
	for name := range sessions {
		names = append(names, name)
	}
	sort.Strings(names)

	var lessons []*db.Lesson
	for _, session := range names {
		s := sessions[session]
		total := s.wins + s.losses
		if total < 5 {
			continue
		}
		winRate := float64(s.wins) / float64(total)
		switch {
		case winRate >= 0.70:
			lessons = append(lessons, &db.Lesson{
				LessonID:        e.newLessonID(),
				CreatedAt:       e.now().UTC(),
				PatternType:     PatternSession,
				Observation:     fmt.Sprintf("%s session has %.0f%% win rate", strings.ToUpper(session), winRate*100),
				Conclusion:      fmt.Sprintf("Best performance in %s session", session),
				ActionSuggested: fmt.Sprintf("Prioritize trading during %s session", session),
				SampleSize:      total,
				Confidence:      winRate,
			})
		case winRate <= 0.35:
			lessons = append(lessons, &db.Lesson{
				LessonID:        e.newLessonID(),
				CreatedAt:       e.now().UTC(),
				PatternType:     PatternSession,
				Observation:     fmt.Sprintf("%s session has only %.0f%% win rate", strings.ToUpper(session), winRate*100),
				Conclusion:      fmt.Sprintf("Poor performance in %s session", session),
				ActionSuggested: fmt.Sprintf("Reduce trading during %s session", session),
				SampleSize:      total,
				Confidence:      1 - winRate,
			})
		}
	}
	return lessons
}

func (e *Engine) regimePerformance() []*db.Lesson {
	type stat struct {
		wins, losses int
		pnl          float64
	}
	regimes := make(map[string]*stat)
	for _, trade := range e.history {
		s, ok := regimes[trade.Regime]
		if !ok {
			s = &stat{}
			regimes[trade.Regime] = s
		}
		if trade.Result == db.SignalStatusWin {
			s.wins++
		} else {
			s.losses++
		}
		s.pnl += trade.PnL
	}

	names := make([]string, 0, len(regimes))
	for name := range regimes {
		names = append(names, name)
	}
	sort.Strings(names)

	var lessons []*db.Lesson
	for _, regime := range names {
		s := regimes[regime]
		total := s.wins + s.losses
		if total < 5 {
			continue
		}
		winRate := float64(s.wins) / float64(total)
		avgPnL := s.pnl / float64(total)

		conclusion := "Consistent across regimes"
		if avgPnL > 5 || avgPnL < -5 {
			conclusion = "Performance varies by regime"
		}
		action := "Avoid"
		if avgPnL > 0 {
			action = "Favor"
		}
		confidence := winRate - 0.5
		if confidence < 0 {
			confidence = -confidence
		}
		lessons = append(lessons, &db.Lesson{
			LessonID:        e.newLessonID(),
			CreatedAt:       e.now().UTC(),
			PatternType:     PatternRegime,
			Observation:     fmt.Sprintf("%s regime: %.0f%% win rate, avg PnL $%.2f", regime, winRate*100, avgPnL),
			Conclusion:      conclusion,
			ActionSuggested: fmt.Sprintf("%s trading in %s", action, regime),
			SampleSize:      total,
			Confidence:      confidence + 0.5,
		})
	}
	return lessons
}

// InsightsSummary totals emitted lessons by pattern type.
type InsightsSummary struct {
	TotalLessons    int `json:"total_lessons"`
	WinningPatterns int `json:"winning_patterns"`
	LosingPatterns  int `json:"losing_patterns"`
}

// GetInsightsSummary reports lesson counts.
func (e *Engine) GetInsightsSummary() InsightsSummary {
	summary := InsightsSummary{TotalLessons: len(e.lessons)}
	for _, l := range e.lessons {
		switch l.PatternType {
		case PatternWinning:
			summary.WinningPatterns++
		case PatternLosing:
			summary.LosingPatterns++
		}
	}
	return summary
}

// GetActionRecommendations returns the top suggested actions from
// high-confidence lessons, strongest first.
func (e *Engine) GetActionRecommendations() []string {
	confident := make([]*db.Lesson, 0, len(e.lessons))
	for _, l := range e.lessons {
		if l.Confidence >= 0.7 {
			confident = append(confident, l)
		}
	}
	sort.SliceStable(confident, func(i, j int) bool {
		return confident[i].Confidence > confident[j].Confidence
	})

	if len(confident) > 5 {
		confident = confident[:5]
	}
	actions := make([]string, 0, len(confident))
	for _, l := range confident {
		actions = append(actions, l.ActionSuggested)
	}
	return actions
}

func (e *Engine) newLessonID() string {
	unique := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return fmt.Sprintf("LESSON_%s_%s", e.now().UTC().Format("20060102"), unique)
}

func sortedPatternKeys(patterns map[string]*patternStats) []string {
	keys := make([]string, 0, len(patterns))
	for k := range patterns {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func lastN(s []string, n int) []string {
	if len(s) <= n {
		return append([]string(nil), s...)
	}
	return append([]string(nil), s[len(s)-n:]...)
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
