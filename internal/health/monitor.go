// Package health watches the signal engine's heartbeat from the
// verifier side and decides when staleness warrants an alert.
package health

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/coinpulse/signalengine/internal/db"
)

// Status is the observed liveness of the watched bot.
type Status string

const (
	StatusHealthy  Status = "HEALTHY"
	StatusWarning  Status = "WARNING"
	StatusCritical Status = "CRITICAL"
	StatusUnknown  Status = "UNKNOWN"
)

// CheckResult is one health evaluation.
type CheckResult struct {
	Status      Status     `json:"status"`
	Message     string     `json:"message"`
	LastSeen    *time.Time `json:"last_seen,omitempty"`
	MinutesAgo  float64    `json:"minutes_ago,omitempty"`
	BotStatus   string     `json:"bot_status,omitempty"`
	AlertNeeded bool       `json:"alert_needed"`
	Recovered   bool       `json:"recovered"`
}

// HeartbeatSource reads the latest heartbeat for a bot.
type HeartbeatSource interface {
	GetLastHeartbeat(ctx context.Context, botName string) (*db.Heartbeat, error)
}

// Monitor classifies heartbeat staleness: WARNING past 3 minutes,
// CRITICAL past 10, with a 5-minute cooldown between alerts.
type Monitor struct {
	source          HeartbeatSource
	botName         string
	warningTimeout  time.Duration
	criticalTimeout time.Duration
	alertCooldown   time.Duration
	now             func() time.Time

	lastStatus    Status
	lastAlertTime time.Time
}

// NewMonitor watches the given bot with production timeouts.
func NewMonitor(source HeartbeatSource, botName string) *Monitor {
	return &Monitor{
		source:          source,
		botName:         botName,
		warningTimeout:  3 * time.Minute,
		criticalTimeout: 10 * time.Minute,
		alertCooldown:   5 * time.Minute,
		now:             time.Now,
		lastStatus:      StatusUnknown,
	}
}

// Check evaluates the latest heartbeat. AlertNeeded is set on entering
// CRITICAL, on the HEALTHY to WARNING transition, and on recovery back
// to HEALTHY, all subject to the cooldown.
func (m *Monitor) Check(ctx context.Context) (CheckResult, error) {
	hb, err := m.source.GetLastHeartbeat(ctx, m.botName)
	if err != nil {
		return CheckResult{Status: StatusUnknown}, fmt.Errorf("failed to read heartbeat: %w", err)
	}

	result := m.classify(hb)

	alertNeeded := false
	switch result.Status {
	case StatusCritical:
		alertNeeded = true
	case StatusWarning:
		alertNeeded = m.lastStatus == StatusHealthy
	case StatusHealthy:
		if m.lastStatus == StatusWarning || m.lastStatus == StatusCritical {
			alertNeeded = true
			result.Recovered = true
		}
	}

	if alertNeeded && !m.lastAlertTime.IsZero() && !result.Recovered {
		if m.now().Sub(m.lastAlertTime) < m.alertCooldown {
			alertNeeded = false
		}
	}
	if alertNeeded {
		m.lastAlertTime = m.now()
	}

	m.lastStatus = result.Status
	result.AlertNeeded = alertNeeded

	if result.Status != StatusHealthy {
		log.Warn().
			Str("bot", m.botName).
			Str("status", string(result.Status)).
			Str("message", result.Message).
			Msg("Heartbeat check")
	}

	return result, nil
}

func (m *Monitor) classify(hb *db.Heartbeat) CheckResult {
	if hb == nil {
		return CheckResult{
			Status:  StatusUnknown,
			Message: fmt.Sprintf("No heartbeat recorded for %s", m.botName),
		}
	}

	age := m.now().UTC().Sub(hb.Timestamp)
	minutesAgo := age.Minutes()
	result := CheckResult{
		LastSeen:   &hb.Timestamp,
		MinutesAgo: minutesAgo,
		BotStatus:  hb.Status,
	}

	switch {
	case age >= m.criticalTimeout:
		result.Status = StatusCritical
		result.Message = fmt.Sprintf("%s silent for %.0f minutes", m.botName, minutesAgo)
	case age >= m.warningTimeout:
		result.Status = StatusWarning
		result.Message = fmt.Sprintf("%s last seen %.1f minutes ago", m.botName, minutesAgo)
	default:
		result.Status = StatusHealthy
		result.Message = fmt.Sprintf("%s healthy (%s)", m.botName, hb.Status)
	}
	return result
}
