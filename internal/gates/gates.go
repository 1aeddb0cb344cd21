// Package gates implements the five-gate validation pipeline every
// candidate signal must clear before it is persisted. Gates run in
// order and short-circuit on the first failure; the daily-limit gate
// is evaluated last and vetoes everything when it fails.
package gates

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/coinpulse/signalengine/internal/ai"
	"github.com/coinpulse/signalengine/internal/db"
	"github.com/coinpulse/signalengine/internal/features"
	"github.com/coinpulse/signalengine/internal/regime"
	"github.com/coinpulse/signalengine/internal/strategy"
)

// Status is the outcome of a single gate.
type Status string

const (
	StatusPassed  Status = "PASSED"
	StatusFailed  Status = "FAILED"
	StatusSkipped Status = "SKIPPED"
)

// Gate names, in evaluation order.
const (
	GateContext     = "CONTEXT"
	GateRegime      = "REGIME"
	GateQuality     = "SIGNAL_QUALITY"
	GateAI          = "AI_CONFIRMATION"
	GateDailyLimits = "DAILY_LIMITS"
)

// Result is the outcome of one gate evaluation.
type Result struct {
	Name   string  `json:"name"`
	Status Status  `json:"status"`
	Score  float64 `json:"score"`
	Reason string  `json:"reason"`
}

// SystemResult is the aggregate outcome of a full pipeline run.
type SystemResult struct {
	Passed       bool     `json:"passed"`
	Results      []Result `json:"results"`
	OverallScore float64  `json:"overall_score"`
	BlockingGate string   `json:"blocking_gate,omitempty"`
}

// Score returns the recorded score for the named gate, or 0 if the
// pipeline short-circuited before reaching it.
func (s *SystemResult) Score(name string) float64 {
	for _, r := range s.Results {
		if r.Name == name {
			return r.Score
		}
	}
	return 0
}

// Config holds the pipeline thresholds.
type Config struct {
	ContextMinScore   float64
	RegimeMinConf     float64
	MaxExhaustionRisk float64
	MinStructure      float64
	MinSetupQuality   int
	MinMTFAlignment   int
	AIMinConfidence   float64
	AISkipScore       float64
	MaxRiskFactors    int
	DailyTarget       float64
	DailyStop         float64
	MaxDailyTrades    int
	MaxConsecLosses   int
	LossCooldown      time.Duration
	FundingBufferMins int
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		ContextMinScore:   0.5,
		RegimeMinConf:     0.65,
		MaxExhaustionRisk: 0.5,
		MinStructure:      0.6,
		MinSetupQuality:   70,
		MinMTFAlignment:   2,
		AIMinConfidence:   0.65,
		AISkipScore:       0.65,
		MaxRiskFactors:    1,
		DailyTarget:       10.0,
		DailyStop:         -15.0,
		MaxDailyTrades:    3,
		MaxConsecLosses:   2,
		LossCooldown:      60 * time.Minute,
		FundingBufferMins: 20,
	}
}

// System evaluates candidate signals against all five gates.
type System struct {
	cfg Config
	now func() time.Time
}

// NewSystem returns a gate system with the given thresholds. Zero-value
// fields fall back to DefaultConfig.
func NewSystem(cfg Config) *System {
	def := DefaultConfig()
	if cfg.ContextMinScore == 0 {
		cfg.ContextMinScore = def.ContextMinScore
	}
	if cfg.RegimeMinConf == 0 {
		cfg.RegimeMinConf = def.RegimeMinConf
	}
	if cfg.MaxExhaustionRisk == 0 {
		cfg.MaxExhaustionRisk = def.MaxExhaustionRisk
	}
	if cfg.MinStructure == 0 {
		cfg.MinStructure = def.MinStructure
	}
	if cfg.MinSetupQuality == 0 {
		cfg.MinSetupQuality = def.MinSetupQuality
	}
	if cfg.MinMTFAlignment == 0 {
		cfg.MinMTFAlignment = def.MinMTFAlignment
	}
	if cfg.AIMinConfidence == 0 {
		cfg.AIMinConfidence = def.AIMinConfidence
	}
	if cfg.AISkipScore == 0 {
		cfg.AISkipScore = def.AISkipScore
	}
	if cfg.MaxRiskFactors == 0 {
		cfg.MaxRiskFactors = def.MaxRiskFactors
	}
	if cfg.DailyTarget == 0 {
		cfg.DailyTarget = def.DailyTarget
	}
	if cfg.DailyStop == 0 {
		cfg.DailyStop = def.DailyStop
	}
	if cfg.MaxDailyTrades == 0 {
		cfg.MaxDailyTrades = def.MaxDailyTrades
	}
	if cfg.MaxConsecLosses == 0 {
		cfg.MaxConsecLosses = def.MaxConsecLosses
	}
	if cfg.LossCooldown == 0 {
		cfg.LossCooldown = def.LossCooldown
	}
	if cfg.FundingBufferMins == 0 {
		cfg.FundingBufferMins = def.FundingBufferMins
	}
	return &System{cfg: cfg, now: time.Now}
}

// Evaluate runs the pipeline for one candidate. lastTradeTime is the
// close time of the most recent trade today (zero when none); it feeds
// the post-loss cooldown check.
func (s *System) Evaluate(
	f *features.AllFeatures,
	r regime.Result,
	sig *strategy.Signal,
	daily *db.DailyState,
	lastTradeTime time.Time,
	prediction *ai.Result,
) SystemResult {
	var out SystemResult

	gates := []func() Result{
		func() Result { return s.gateContext(f) },
		func() Result { return s.gateRegime(r) },
		func() Result { return s.gateQuality(f, sig) },
		func() Result { return s.gateAI(sig, prediction) },
		func() Result { return s.gateDailyLimits(daily, lastTradeTime) },
	}

	for i, gate := range gates {
		res := gate()
		out.Results = append(out.Results, res)

		if res.Status == StatusFailed {
			out.Passed = false
			out.BlockingGate = res.Name
			if res.Name == GateDailyLimits {
				out.OverallScore = 0
			} else {
				out.OverallScore = meanScore(out.Results)
			}
			log.Info().
				Str("gate", res.Name).
				Str("reason", res.Reason).
				Int("gates_run", i+1).
				Msg("signal blocked")
			return out
		}
	}

	out.Passed = true
	out.OverallScore = meanScore(out.Results)
	log.Info().Float64("overall_score", out.OverallScore).Msg("all gates passed")
	return out
}

func meanScore(results []Result) float64 {
	if len(results) == 0 {
		return 0
	}
	var sum float64
	for _, r := range results {
		sum += r.Score
	}
	return sum / float64(len(results))
}

// gateContext scores the trading session by UTC hour and applies the
// pre-funding buffer. The 21:00-24:00 dead zone is a hard fail.
func (s *System) gateContext(f *features.AllFeatures) Result {
	hour := s.now().UTC().Hour()

	var (
		score   float64
		session string
	)
	switch {
	case hour >= 13 && hour < 16:
		score, session = 1.0, "US/EU overlap"
	case hour >= 16 && hour < 21:
		score, session = 0.9, "New York"
	case hour >= 8 && hour < 13:
		score, session = 0.8, "London"
	case hour < 8:
		score, session = 0.5, "Asia"
	default:
		return Result{
			Name:   GateContext,
			Status: StatusFailed,
			Score:  0,
			Reason: fmt.Sprintf("Dead zone session (hour %d UTC)", hour),
		}
	}

	reason := session + " session"
	if f != nil && f.Funding.TimeToFunding <= s.cfg.FundingBufferMins {
		score *= 0.5
		reason += fmt.Sprintf(", funding in %dm", f.Funding.TimeToFunding)
	}

	if score < s.cfg.ContextMinScore {
		return Result{Name: GateContext, Status: StatusFailed, Score: score, Reason: reason}
	}
	return Result{Name: GateContext, Status: StatusPassed, Score: score, Reason: reason}
}

func (s *System) gateRegime(r regime.Result) Result {
	switch {
	case r.Type == regime.Choppy:
		return Result{
			Name:   GateRegime,
			Status: StatusFailed,
			Score:  0,
			Reason: "Choppy regime is untradeable",
		}
	case r.ExhaustionRisk >= s.cfg.MaxExhaustionRisk:
		return Result{
			Name:   GateRegime,
			Status: StatusFailed,
			Score:  r.Confidence,
			Reason: fmt.Sprintf("Exhaustion risk %.2f too high", r.ExhaustionRisk),
		}
	case r.StructureQuality < s.cfg.MinStructure:
		return Result{
			Name:   GateRegime,
			Status: StatusFailed,
			Score:  r.Confidence,
			Reason: fmt.Sprintf("Structure quality %.2f below %.2f", r.StructureQuality, s.cfg.MinStructure),
		}
	case r.Confidence < s.cfg.RegimeMinConf:
		return Result{
			Name:   GateRegime,
			Status: StatusFailed,
			Score:  r.Confidence,
			Reason: fmt.Sprintf("Regime confidence %.2f below %.2f", r.Confidence, s.cfg.RegimeMinConf),
		}
	}
	return Result{
		Name:   GateRegime,
		Status: StatusPassed,
		Score:  r.Confidence,
		Reason: fmt.Sprintf("%s regime, confidence %.2f", r.Type, r.Confidence),
	}
}

func (s *System) gateQuality(f *features.AllFeatures, sig *strategy.Signal) Result {
	score := float64(sig.SetupQuality) / 100

	if sig.SetupQuality < s.cfg.MinSetupQuality {
		return Result{
			Name:   GateQuality,
			Status: StatusFailed,
			Score:  score,
			Reason: fmt.Sprintf("Setup quality %d below %d", sig.SetupQuality, s.cfg.MinSetupQuality),
		}
	}
	if f.MTF.MTFAlignment < s.cfg.MinMTFAlignment {
		return Result{
			Name:   GateQuality,
			Status: StatusFailed,
			Score:  score,
			Reason: fmt.Sprintf("MTF alignment %d/3 below %d", f.MTF.MTFAlignment, s.cfg.MinMTFAlignment),
		}
	}
	if sig.Direction == strategy.Long && f.Technical.RSI14 > 80 {
		return Result{
			Name:   GateQuality,
			Status: StatusFailed,
			Score:  0,
			Reason: fmt.Sprintf("Long into overbought RSI %.1f", f.Technical.RSI14),
		}
	}
	if sig.Direction == strategy.Short && f.Technical.RSI14 < 20 {
		return Result{
			Name:   GateQuality,
			Status: StatusFailed,
			Score:  0,
			Reason: fmt.Sprintf("Short into oversold RSI %.1f", f.Technical.RSI14),
		}
	}
	return Result{
		Name:   GateQuality,
		Status: StatusPassed,
		Score:  score,
		Reason: fmt.Sprintf("Setup quality %d", sig.SetupQuality),
	}
}

func (s *System) gateAI(sig *strategy.Signal, prediction *ai.Result) Result {
	if prediction == nil {
		return Result{
			Name:   GateAI,
			Status: StatusSkipped,
			Score:  s.cfg.AISkipScore,
			Reason: "AI confirmation unavailable",
		}
	}
	if prediction.Direction == ai.DirectionNoTrade {
		return Result{
			Name:   GateAI,
			Status: StatusFailed,
			Score:  0,
			Reason: "AI recommends no trade",
		}
	}
	if string(prediction.Direction) != string(sig.Direction) {
		return Result{
			Name:   GateAI,
			Status: StatusFailed,
			Score:  0,
			Reason: fmt.Sprintf("AI direction %s disagrees with %s setup", prediction.Direction, sig.Direction),
		}
	}
	if prediction.Confidence < s.cfg.AIMinConfidence {
		return Result{
			Name:   GateAI,
			Status: StatusFailed,
			Score:  prediction.Confidence,
			Reason: fmt.Sprintf("AI confidence %.2f below %.2f", prediction.Confidence, s.cfg.AIMinConfidence),
		}
	}
	if len(prediction.RiskFactors) > s.cfg.MaxRiskFactors {
		return Result{
			Name:   GateAI,
			Status: StatusFailed,
			Score:  prediction.Confidence,
			Reason: fmt.Sprintf("%d risk factors flagged", len(prediction.RiskFactors)),
		}
	}
	return Result{
		Name:   GateAI,
		Status: StatusPassed,
		Score:  prediction.Confidence,
		Reason: fmt.Sprintf("AI confidence %.2f", prediction.Confidence),
	}
}

// gateDailyLimits enforces the daily budget. Checks run in priority
// order so the reason names the first limit actually breached.
func (s *System) gateDailyLimits(daily *db.DailyState, lastTradeTime time.Time) Result {
	fail := func(reason string) Result {
		return Result{Name: GateDailyLimits, Status: StatusFailed, Score: 0, Reason: reason}
	}

	switch {
	case daily.PnL >= s.cfg.DailyTarget:
		return fail(fmt.Sprintf("Daily target hit (+$%.2f)", daily.PnL))
	case daily.PnL <= s.cfg.DailyStop:
		return fail(fmt.Sprintf("Daily stop hit ($%.2f)", daily.PnL))
	case daily.TradeCount >= s.cfg.MaxDailyTrades:
		return fail(fmt.Sprintf("Max %d trades reached", s.cfg.MaxDailyTrades))
	case daily.Status.Terminal():
		return fail(fmt.Sprintf("Daily status %s", daily.Status))
	}

	if daily.ConsecutiveLosses >= s.cfg.MaxConsecLosses && !lastTradeTime.IsZero() {
		since := s.now().Sub(lastTradeTime)
		if since < s.cfg.LossCooldown {
			remaining := s.cfg.LossCooldown - since
			return fail(fmt.Sprintf("Loss cooldown, %.0fm remaining", remaining.Minutes()))
		}
	}

	if daily.HasPosition {
		return fail("Position already open")
	}

	return Result{
		Name:   GateDailyLimits,
		Status: StatusPassed,
		Score:  1.0,
		Reason: fmt.Sprintf("%d/%d trades, PnL $%.2f", daily.TradeCount, s.cfg.MaxDailyTrades, daily.PnL),
	}
}
