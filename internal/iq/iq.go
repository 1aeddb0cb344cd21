// Package iq scores the execution quality of closed signals on a 0-100
// scale and watches the rolling score history for degradation.
package iq

import (
	"fmt"
	"sync"

	"github.com/coinpulse/signalengine/internal/db"
)

const maxHistory = 100

// Trend labels for the rolling score history.
const (
	TrendImproving = "improving"
	TrendDeclining = "declining"
	TrendStable    = "stable"
)

// Score is one trade's quality breakdown. Component scores are 0-100
// before weighting.
type Score struct {
	Total            int                `json:"total"`
	DecisionQuality  float64            `json:"decision_quality"`
	ExecutionQuality float64            `json:"execution_quality"`
	RiskAdherence    float64            `json:"risk_adherence"`
	Details          map[string]float64 `json:"details"`
}

// Trend summarises the recent score history.
type Trend struct {
	Avg10    float64 `json:"avg_10"`
	Avg20    float64 `json:"avg_20"`
	Trend    string  `json:"trend"`
	Warning  bool    `json:"warning"`
	Critical bool    `json:"critical"`
}

// Degradation is an actionable alert derived from the trend.
type Degradation struct {
	Level   string `json:"level"`
	Message string `json:"message"`
	Action  string `json:"action"`
}

// Calculator computes weighted IQ scores: decision quality 45%,
// execution quality 30%, risk adherence 25%.
type Calculator struct {
	decisionWeight  float64
	executionWeight float64
	riskWeight      float64
	warnThreshold   float64
	critThreshold   float64

	mu      sync.Mutex
	history []int
}

// NewCalculator returns a calculator with the production weights.
func NewCalculator() *Calculator {
	return &Calculator{
		decisionWeight:  0.45,
		executionWeight: 0.30,
		riskWeight:      0.25,
		warnThreshold:   60,
		critThreshold:   50,
	}
}

// Outcome is the subset of a resolved signal the calculator needs.
type Outcome struct {
	Status    db.SignalStatus
	ResultPnL float64
	MFE       float64
	MAE       float64
}

// Calculate scores one resolved trade and records it in the rolling
// history.
func (c *Calculator) Calculate(signal *db.Signal, outcome Outcome) Score {
	details := make(map[string]float64)

	decision := c.decisionQuality(signal, outcome, details)
	execution := c.executionQuality(outcome, details)
	risk := c.riskAdherence(signal, outcome, details)

	total := int(c.decisionWeight*decision + c.executionWeight*execution + c.riskWeight*risk)
	if total < 0 {
		total = 0
	}
	if total > 100 {
		total = 100
	}

	c.mu.Lock()
	c.history = append(c.history, total)
	if len(c.history) > maxHistory {
		c.history = c.history[len(c.history)-maxHistory:]
	}
	c.mu.Unlock()

	return Score{
		Total:            total,
		DecisionQuality:  decision,
		ExecutionQuality: execution,
		RiskAdherence:    risk,
		Details:          details,
	}
}

// decisionQuality weighs confidence and setup quality against the
// outcome, plus timing precision from MFE/MAE.
func (c *Calculator) decisionQuality(signal *db.Signal, outcome Outcome, details map[string]float64) float64 {
	isWin := outcome.Status == db.SignalStatusWin

	var confScore float64
	if isWin {
		confScore = signal.Confidence * 100
	} else {
		confScore = (1 - signal.Confidence) * 100
	}

	var setupScore float64
	if isWin {
		setupScore = float64(signal.SetupQuality)
	} else {
		setupScore = 100 - float64(signal.SetupQuality)*0.5
	}

	var timingScore float64
	mfe, mae := outcome.MFE, outcome.MAE
	if mfe > mae {
		if mfe+mae > 0 {
			timingScore = mfe / (mfe + mae) * 100
		} else {
			timingScore = 50
		}
		if timingScore > 100 {
			timingScore = 100
		}
	} else {
		timingScore = 50 - mae*10
		if timingScore < 0 {
			timingScore = 0
		}
	}

	details["confidence_vs_outcome"] = confScore
	details["setup_quality_vs_outcome"] = setupScore
	details["timing_precision"] = timingScore

	return confScore*0.4 + setupScore*0.3 + timingScore*0.3
}

// executionQuality: advisory signals have no fills to audit, so
// slippage and entry are fixed baselines and exit efficiency tracks
// how the position closed.
func (c *Calculator) executionQuality(outcome Outcome, details map[string]float64) float64 {
	const (
		slippageScore = 90.0
		entryScore    = 80.0
	)

	var exitScore float64
	switch outcome.Status {
	case db.SignalStatusWin:
		exitScore = 100
	case db.SignalStatusTimeout:
		exitScore = 50
	default:
		exitScore = 40
	}

	details["slippage_control"] = slippageScore
	details["entry_precision"] = entryScore
	details["exit_efficiency"] = exitScore

	return slippageScore*0.5 + entryScore*0.3 + exitScore*0.2
}

func (c *Calculator) riskAdherence(signal *db.Signal, outcome Outcome, details map[string]float64) float64 {
	const plannedMargin = 150.0

	var positionScore float64
	deviation := signal.PositionMargin - plannedMargin
	if deviation < 0 {
		deviation = -deviation
	}
	if deviation < 1 {
		positionScore = 100
	} else {
		positionScore = 100 - deviation/plannedMargin*100
		if positionScore < 0 {
			positionScore = 0
		}
	}

	var slScore float64
	switch outcome.Status {
	case db.SignalStatusWin, db.SignalStatusLoss:
		slScore = 100
	default:
		slScore = 80
	}

	var rrScore float64
	switch outcome.Status {
	case db.SignalStatusWin:
		rrScore = 100
	case db.SignalStatusLoss:
		rrScore = 80
	default:
		if outcome.ResultPnL > 0 {
			rrScore = 70
		} else {
			rrScore = 50
		}
	}

	details["position_accuracy"] = positionScore
	details["sl_discipline"] = slScore
	details["rr_achieved"] = rrScore

	return positionScore*0.5 + slScore*0.3 + rrScore*0.2
}

// GetTrend returns the rolling trend. With fewer than 10 scores the
// trend is stable and unalerted.
func (c *Calculator) GetTrend() Trend {
	c.mu.Lock()
	history := append([]int(nil), c.history...)
	c.mu.Unlock()

	if len(history) < 10 {
		avg := mean(history)
		return Trend{Avg10: avg, Avg20: avg, Trend: TrendStable}
	}

	avg10 := mean(history[len(history)-10:])
	avg20 := avg10
	if len(history) >= 20 {
		avg20 = mean(history[len(history)-20:])
	}

	trend := TrendStable
	if avg10 > avg20+5 {
		trend = TrendImproving
	} else if avg10 < avg20-5 {
		trend = TrendDeclining
	}

	return Trend{
		Avg10:    avg10,
		Avg20:    avg20,
		Trend:    trend,
		Warning:  avg10 < c.warnThreshold,
		Critical: avg10 < c.critThreshold,
	}
}

// CheckDegradation returns an alert when the rolling IQ warrants one,
// or nil when the bot is trading at an acceptable level.
func (c *Calculator) CheckDegradation() *Degradation {
	trend := c.GetTrend()

	if trend.Critical {
		return &Degradation{
			Level:   "CRITICAL",
			Message: fmt.Sprintf("IQ critically low: %.0f/100 (last 10 trades)", trend.Avg10),
			Action:  "PAUSE trading and review",
		}
	}
	if trend.Warning {
		return &Degradation{
			Level:   "WARNING",
			Message: fmt.Sprintf("IQ declining: %.0f/100 (last 10 trades)", trend.Avg10),
			Action:  "Review recent trades",
		}
	}
	if trend.Trend == TrendDeclining && trend.Avg10 < 70 {
		return &Degradation{
			Level:   "INFO",
			Message: fmt.Sprintf("IQ trend declining: %.0f/100", trend.Avg10),
			Action:  "Monitor closely",
		}
	}
	return nil
}

// Seed preloads the history, typically from persisted trade IQ values
// at startup so trend analysis survives restarts.
func (c *Calculator) Seed(scores []int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = append([]int(nil), scores...)
	if len(c.history) > maxHistory {
		c.history = c.history[len(c.history)-maxHistory:]
	}
}

func mean(values []int) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum int
	for _, v := range values {
		sum += v
	}
	return float64(sum) / float64(len(values))
}
