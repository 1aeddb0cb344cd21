package health

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coinpulse/signalengine/internal/db"
)

type fakeHeartbeats struct {
	hb *db.Heartbeat
}

func (f *fakeHeartbeats) GetLastHeartbeat(context.Context, string) (*db.Heartbeat, error) {
	return f.hb, nil
}

func monitorAt(age time.Duration) (*Monitor, *fakeHeartbeats, time.Time) {
	now := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	src := &fakeHeartbeats{}
	if age >= 0 {
		src.hb = &db.Heartbeat{
			BotName:   db.BotNameEngine,
			Timestamp: now.Add(-age),
			Status:    db.HeartbeatStatusRunning,
		}
	}
	m := NewMonitor(src, db.BotNameEngine)
	m.now = func() time.Time { return now }
	return m, src, now
}

func TestCheckHealthy(t *testing.T) {
	m, _, _ := monitorAt(30 * time.Second)

	result, err := m.Check(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StatusHealthy, result.Status)
	assert.False(t, result.AlertNeeded)
	assert.InDelta(t, 0.5, result.MinutesAgo, 1e-9)
	assert.Equal(t, db.HeartbeatStatusRunning, result.BotStatus)
}

func TestCheckWarningAlertsOnTransition(t *testing.T) {
	m, src, now := monitorAt(30 * time.Second)
	ctx := context.Background()

	_, err := m.Check(ctx)
	require.NoError(t, err)

	src.hb.Timestamp = now.Add(-4 * time.Minute)
	result, err := m.Check(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusWarning, result.Status)
	assert.True(t, result.AlertNeeded)

	// Second WARNING in a row is not a healthy->warning transition.
	result, err = m.Check(ctx)
	require.NoError(t, err)
	assert.False(t, result.AlertNeeded)
}

func TestCheckCriticalRespectsCooldown(t *testing.T) {
	m, _, _ := monitorAt(15 * time.Minute)
	ctx := context.Background()

	result, err := m.Check(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusCritical, result.Status)
	assert.True(t, result.AlertNeeded)

	// Within the 5-minute cooldown the repeat alert is suppressed.
	result, err = m.Check(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusCritical, result.Status)
	assert.False(t, result.AlertNeeded)
}

func TestCheckCriticalRealertsAfterCooldown(t *testing.T) {
	now := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	src := &fakeHeartbeats{hb: &db.Heartbeat{
		BotName:   db.BotNameEngine,
		Timestamp: now.Add(-15 * time.Minute),
		Status:    db.HeartbeatStatusRunning,
	}}
	m := NewMonitor(src, db.BotNameEngine)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	result, err := m.Check(ctx)
	require.NoError(t, err)
	assert.True(t, result.AlertNeeded)

	now = now.Add(6 * time.Minute)
	result, err = m.Check(ctx)
	require.NoError(t, err)
	assert.True(t, result.AlertNeeded)
}

func TestCheckRecoveryAlert(t *testing.T) {
	m, src, now := monitorAt(15 * time.Minute)
	ctx := context.Background()

	_, err := m.Check(ctx)
	require.NoError(t, err)

	src.hb.Timestamp = now.Add(-10 * time.Second)
	result, err := m.Check(ctx)
	require.NoError(t, err)

	assert.Equal(t, StatusHealthy, result.Status)
	assert.True(t, result.Recovered)
	assert.True(t, result.AlertNeeded, "recovery bypasses the cooldown")
}

func TestCheckNoHeartbeat(t *testing.T) {
	m, _, _ := monitorAt(-1)

	result, err := m.Check(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StatusUnknown, result.Status)
	assert.Contains(t, result.Message, "No heartbeat")
	assert.False(t, result.AlertNeeded)
}
