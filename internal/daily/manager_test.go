package daily

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coinpulse/signalengine/internal/db"
)

// fakeStore keeps daily rows in memory and records resets.
type fakeStore struct {
	states map[string]*db.DailyState
	resets []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{states: make(map[string]*db.DailyState)}
}

func (f *fakeStore) GetDailyState(_ context.Context, date string) (*db.DailyState, error) {
	if s, ok := f.states[date]; ok {
		return s, nil
	}
	s := &db.DailyState{Date: date, Status: db.DailyStatusActive}
	f.states[date] = s
	return s, nil
}

func (f *fakeStore) UpdateDailyState(_ context.Context, state *db.DailyState) error {
	f.states[state.Date] = state
	return nil
}

func (f *fakeStore) ResetDailyState(_ context.Context, date string) (*db.DailyState, error) {
	f.resets = append(f.resets, date)
	s := &db.DailyState{Date: date, Status: db.DailyStatusActive}
	f.states[date] = s
	return s, nil
}

func managerAt(t *testing.T, ts time.Time) (*Manager, *fakeStore) {
	t.Helper()
	store := newFakeStore()
	m := NewManager(store)
	m.now = func() time.Time { return ts }
	return m, store
}

func TestApplyResultWin(t *testing.T) {
	m, _ := managerAt(t, time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC))

	state, err := m.ApplyResult(context.Background(), Result{Status: db.SignalStatusWin, ResultPnL: 15})
	require.NoError(t, err)

	assert.Equal(t, "2025-06-02", state.Date)
	assert.Equal(t, 15.0, state.PnL)
	assert.Equal(t, 1, state.Wins)
	assert.Equal(t, 0, state.ConsecutiveLosses)
	assert.False(t, state.HasPosition)
	assert.Equal(t, db.DailyStatusTargetHit, state.Status)
	require.NotNil(t, state.TargetHitAt)
}

func TestApplyResultLossStreak(t *testing.T) {
	m, _ := managerAt(t, time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC))
	ctx := context.Background()

	state, err := m.ApplyResult(ctx, Result{Status: db.SignalStatusLoss, ResultPnL: -7.5})
	require.NoError(t, err)
	assert.Equal(t, 1, state.ConsecutiveLosses)
	assert.Equal(t, db.DailyStatusActive, state.Status)

	state, err = m.ApplyResult(ctx, Result{Status: db.SignalStatusLoss, ResultPnL: -7.5})
	require.NoError(t, err)
	assert.Equal(t, 2, state.ConsecutiveLosses)
	assert.Equal(t, -15.0, state.PnL)
	assert.Equal(t, db.DailyStatusStopHit, state.Status)
	require.NotNil(t, state.StopHitAt)
}

func TestTimeoutCountsAsLoss(t *testing.T) {
	m, _ := managerAt(t, time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC))

	state, err := m.ApplyResult(context.Background(), Result{Status: db.SignalStatusTimeout, ResultPnL: -2.1})
	require.NoError(t, err)

	assert.Equal(t, 1, state.Losses)
	assert.Equal(t, 1, state.ConsecutiveLosses)
	assert.Equal(t, db.DailyStatusActive, state.Status)
}

func TestMaxTradesTransition(t *testing.T) {
	m, store := managerAt(t, time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC))
	ctx := context.Background()

	seed, _ := store.GetDailyState(ctx, "2025-06-02")
	seed.TradeCount = 3

	state, err := m.ApplyResult(ctx, Result{Status: db.SignalStatusWin, ResultPnL: 5})
	require.NoError(t, err)
	assert.Equal(t, db.DailyStatusMaxTrades, state.Status)
}

func TestTerminalStatusSticky(t *testing.T) {
	m, store := managerAt(t, time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC))
	ctx := context.Background()

	seed, _ := store.GetDailyState(ctx, "2025-06-02")
	seed.Status = db.DailyStatusStopHit
	seed.PnL = -15

	state, err := m.ApplyResult(ctx, Result{Status: db.SignalStatusWin, ResultPnL: 15})
	require.NoError(t, err)
	assert.Equal(t, db.DailyStatusStopHit, state.Status)
	assert.Equal(t, 0.0, state.PnL)
}

func TestCheckNewDay(t *testing.T) {
	store := newFakeStore()
	m := NewManager(store)

	now := time.Date(2025, 6, 2, 23, 59, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	rolled, err := m.CheckNewDay(context.Background())
	require.NoError(t, err)
	assert.False(t, rolled, "first call pins the date without resetting")

	rolled, err = m.CheckNewDay(context.Background())
	require.NoError(t, err)
	assert.False(t, rolled)

	now = now.Add(2 * time.Minute)
	rolled, err = m.CheckNewDay(context.Background())
	require.NoError(t, err)
	assert.True(t, rolled)
	assert.Equal(t, []string{"2025-06-03"}, store.resets)
}

func TestGetProgress(t *testing.T) {
	m, _ := managerAt(t, time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC))

	p := m.GetProgress(&db.DailyState{PnL: 5, TradeCount: 1, Status: db.DailyStatusActive})
	assert.Equal(t, 50.0, p.TargetProgress)
	assert.Equal(t, 2, p.TradesRemaining)
	assert.True(t, p.CanTrade)

	p = m.GetProgress(&db.DailyState{PnL: -20, TradeCount: 3, Status: db.DailyStatusStopHit})
	assert.Equal(t, -100.0, p.TargetProgress)
	assert.False(t, p.CanTrade)
}

func TestWinRate(t *testing.T) {
	assert.Equal(t, 0.0, WinRate(&db.DailyState{}))
	assert.InDelta(t, 2.0/3, WinRate(&db.DailyState{Wins: 2, Losses: 1}), 1e-9)
}
