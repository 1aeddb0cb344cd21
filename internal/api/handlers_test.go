package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coinpulse/signalengine/internal/db"
)

type fakeStore struct {
	pingErr    error
	daily      *db.DailyState
	dailyErr   error
	pending    []*db.Signal
	recent     []*db.Signal
	heartbeats map[string]*db.Heartbeat
	lessons    []*db.Lesson
}

func (f *fakeStore) Ping(_ context.Context) error { return f.pingErr }

func (f *fakeStore) GetDailyState(_ context.Context, _ string) (*db.DailyState, error) {
	return f.daily, f.dailyErr
}

func (f *fakeStore) GetPendingSignals(_ context.Context) ([]*db.Signal, error) {
	return f.pending, nil
}

func (f *fakeStore) GetRecentResults(_ context.Context, limit int) ([]*db.Signal, error) {
	if limit < len(f.recent) {
		return f.recent[:limit], nil
	}
	return f.recent, nil
}

func (f *fakeStore) GetLastHeartbeat(_ context.Context, botName string) (*db.Heartbeat, error) {
	return f.heartbeats[botName], nil
}

func (f *fakeStore) GetLessons(_ context.Context, _ int) ([]*db.Lesson, error) {
	return f.lessons, nil
}

func newTestServer(store *fakeStore) *Server {
	srv := NewServer(Config{Host: "127.0.0.1", Port: 0, Store: store})
	srv.now = func() time.Time {
		return time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC)
	}
	return srv
}

func doRequest(srv *Server, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	srv.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestHandleRoot(t *testing.T) {
	srv := newTestServer(&fakeStore{})

	w := doRequest(srv, http.MethodGet, "/")
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, "Signal Engine API", body["service"])
	assert.Equal(t, "running", body["status"])
}

func TestHealthzHealthy(t *testing.T) {
	srv := newTestServer(&fakeStore{})

	w := doRequest(srv, http.MethodGet, "/healthz")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", decodeBody(t, w)["status"])
}

func TestHealthzDatabaseDown(t *testing.T) {
	srv := newTestServer(&fakeStore{pingErr: errors.New("connection refused")})

	w := doRequest(srv, http.MethodGet, "/healthz")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "unhealthy", decodeBody(t, w)["status"])
}

func TestHandleGetStatus(t *testing.T) {
	regime := "TRENDING_UP"
	pnl := 4.5
	store := &fakeStore{
		heartbeats: map[string]*db.Heartbeat{
			db.BotNameEngine: {
				BotName:       db.BotNameEngine,
				Timestamp:     time.Date(2025, 6, 2, 14, 29, 0, 0, time.UTC),
				Status:        "running",
				CurrentRegime: &regime,
				DailyPnL:      &pnl,
			},
		},
	}
	srv := newTestServer(store)

	w := doRequest(srv, http.MethodGet, "/api/v1/status")
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, "healthy", body["status"])

	bots := body["bots"].(map[string]interface{})
	engine := bots[db.BotNameEngine].(map[string]interface{})
	assert.Equal(t, "running", engine["status"])
	assert.Equal(t, "TRENDING_UP", engine["current_regime"])
	assert.InDelta(t, 1.0, engine["minutes_ago"].(float64), 0.01)

	verifier := bots[db.BotNameVerifier].(map[string]interface{})
	assert.Equal(t, "never_seen", verifier["status"])
}

func TestHandleGetStatusDegraded(t *testing.T) {
	srv := newTestServer(&fakeStore{pingErr: errors.New("down")})

	w := doRequest(srv, http.MethodGet, "/api/v1/status")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "degraded", decodeBody(t, w)["status"])
}

func TestHandleGetRegimeFromHeartbeat(t *testing.T) {
	regime := "RANGING"
	store := &fakeStore{
		heartbeats: map[string]*db.Heartbeat{
			db.BotNameEngine: {
				BotName:       db.BotNameEngine,
				Timestamp:     time.Date(2025, 6, 2, 14, 29, 0, 0, time.UTC),
				Status:        "running",
				CurrentRegime: &regime,
			},
		},
	}
	srv := newTestServer(store)

	w := doRequest(srv, http.MethodGet, "/api/v1/regime")
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, "RANGING", body["regime"])
	assert.Equal(t, "heartbeat", body["source"])
	assert.Equal(t, "BTCUSDT", body["symbol"])
}

func TestHandleGetRegimeNoData(t *testing.T) {
	srv := newTestServer(&fakeStore{})

	w := doRequest(srv, http.MethodGet, "/api/v1/regime")
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleGetDaily(t *testing.T) {
	store := &fakeStore{
		daily: &db.DailyState{
			Date:       "2025-06-02",
			PnL:        4.5,
			TradeCount: 2,
			Wins:       1,
			Losses:     1,
			Status:     db.DailyStatusActive,
		},
	}
	srv := newTestServer(store)

	w := doRequest(srv, http.MethodGet, "/api/v1/daily")
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, "2025-06-02", body["date"])
	assert.Equal(t, "ACTIVE", body["status"])
	assert.Equal(t, 4.5, body["pnl"])
	assert.Equal(t, float64(2), body["trade_count"])
}

func TestHandleGetDailyStoreError(t *testing.T) {
	srv := newTestServer(&fakeStore{dailyErr: errors.New("db down")})

	w := doRequest(srv, http.MethodGet, "/api/v1/daily")
	require.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestHandleGetRecentSignals(t *testing.T) {
	pnl := 15.0
	reason := "TP_HIT"
	iq := 88
	store := &fakeStore{
		recent: []*db.Signal{
			{
				SignalID:     "SIG_20250602_ABC123",
				Direction:    db.DirectionLong,
				Strategy:     "TREND_MOMENTUM",
				EntryPrice:   50000,
				Status:       db.SignalStatusWin,
				ResultPnL:    &pnl,
				ResultReason: &reason,
				TradeIQ:      &iq,
			},
			{
				SignalID:  "SIG_20250602_DEF456",
				Direction: db.DirectionShort,
				Strategy:  "FUNDING_FADE",
				Status:    db.SignalStatusLoss,
			},
		},
	}
	srv := newTestServer(store)

	w := doRequest(srv, http.MethodGet, "/api/v1/signals/recent")
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, float64(2), body["count"])

	signals := body["signals"].([]interface{})
	first := signals[0].(map[string]interface{})
	assert.Equal(t, "SIG_20250602_ABC123", first["signal_id"])
	assert.Equal(t, "WIN", first["status"])
	assert.Equal(t, 15.0, first["result_pnl"])
	assert.Equal(t, float64(88), first["trade_iq"])
}

func TestHandleGetRecentSignalsLimit(t *testing.T) {
	store := &fakeStore{
		recent: []*db.Signal{
			{SignalID: "a"}, {SignalID: "b"}, {SignalID: "c"},
		},
	}
	srv := newTestServer(store)

	w := doRequest(srv, http.MethodGet, "/api/v1/signals/recent?limit=2")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), decodeBody(t, w)["count"])
}

func TestHandleGetPendingSignals(t *testing.T) {
	store := &fakeStore{
		pending: []*db.Signal{
			{SignalID: "SIG_20250602_GHI789", Status: db.SignalStatusPending},
		},
	}
	srv := newTestServer(store)

	w := doRequest(srv, http.MethodGet, "/api/v1/signals/pending")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decodeBody(t, w)["count"])
}

func TestHandleGetLessons(t *testing.T) {
	store := &fakeStore{
		lessons: []*db.Lesson{
			{LessonID: "LESSON_20250602_AB12CD", PatternType: "WINNING_PATTERN"},
		},
	}
	srv := newTestServer(store)

	w := doRequest(srv, http.MethodGet, "/api/v1/lessons")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decodeBody(t, w)["count"])
}

func TestParseLimit(t *testing.T) {
	assert.Equal(t, 20, parseLimit("", 20, 100))
	assert.Equal(t, 50, parseLimit("50", 20, 100))
	assert.Equal(t, 100, parseLimit("500", 20, 100))
	assert.Equal(t, 20, parseLimit("junk", 20, 100))
	assert.Equal(t, 20, parseLimit("-1", 20, 100))
}
