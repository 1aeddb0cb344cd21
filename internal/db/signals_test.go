package db

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (pgxmock.PgxPoolIface, *DB) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, NewWithPool(mock)
}

func sampleSignal() *Signal {
	now := time.Date(2025, 6, 1, 14, 30, 0, 0, time.UTC)
	g1, g2, g3, g4 := 0.85, 0.9, 0.78, 0.65
	g5 := true
	return &Signal{
		SignalID:       "SIG_20250601_A1B2C3",
		CreatedAt:      now,
		Direction:      DirectionLong,
		Strategy:       "TREND_FOLLOW",
		EntryPrice:     50000,
		StopLoss:       49875,
		TakeProfit:     50250,
		PositionMargin: 150,
		Leverage:       20,
		Confidence:     0.82,
		SetupQuality:   85,
		Regime:         "TRENDING_UP",
		Reasoning:      "TRENDING_UP regime | quality 85/100",
		Gate1Score:     &g1,
		Gate2Score:     &g2,
		Gate3Score:     &g3,
		Gate4Score:     &g4,
		Gate5Passed:    &g5,
		Status:         SignalStatusPending,
		UpdatedAt:      now,
	}
}

func signalRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"signal_id", "created_at", "direction", "strategy", "entry_price",
		"stop_loss", "take_profit", "position_margin", "leverage",
		"confidence", "setup_quality", "regime", "reasoning",
		"gate_1_score", "gate_2_score", "gate_3_score", "gate_4_score",
		"gate_5_passed", "status", "result_price", "result_time",
		"result_pnl", "result_reason", "mfe", "mae", "duration_minutes",
		"trade_iq", "result_analyzed", "lesson_id", "updated_at",
	})
}

func addSignalRow(rows *pgxmock.Rows, s *Signal) *pgxmock.Rows {
	return rows.AddRow(
		s.SignalID, s.CreatedAt, s.Direction, s.Strategy, s.EntryPrice,
		s.StopLoss, s.TakeProfit, s.PositionMargin, s.Leverage,
		s.Confidence, s.SetupQuality, s.Regime, s.Reasoning,
		s.Gate1Score, s.Gate2Score, s.Gate3Score, s.Gate4Score,
		s.Gate5Passed, s.Status, s.ResultPrice, s.ResultTime,
		s.ResultPnL, s.ResultReason, s.MFE, s.MAE, s.DurationMinutes,
		s.TradeIQ, s.ResultAnalyzed, s.LessonID, s.UpdatedAt,
	)
}

func TestInsertSignal(t *testing.T) {
	mock, database := newMockDB(t)
	signal := sampleSignal()

	mock.ExpectExec("INSERT INTO signals").
		WithArgs(
			signal.SignalID, signal.CreatedAt, signal.Direction, signal.Strategy,
			signal.EntryPrice, signal.StopLoss, signal.TakeProfit,
			signal.PositionMargin, signal.Leverage, signal.Confidence,
			signal.SetupQuality, signal.Regime, signal.Reasoning,
			signal.Gate1Score, signal.Gate2Score, signal.Gate3Score,
			signal.Gate4Score, signal.Gate5Passed, signal.Status, signal.UpdatedAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := database.InsertSignal(context.Background(), signal)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertSignalRetriedDuplicateIsNoop(t *testing.T) {
	mock, database := newMockDB(t)
	signal := sampleSignal()

	// A replayed insert hits the conflict clause and affects zero rows.
	mock.ExpectExec(`(?s)INSERT INTO signals.+ON CONFLICT \(signal_id\) DO NOTHING`).
		WithArgs(
			signal.SignalID, signal.CreatedAt, signal.Direction, signal.Strategy,
			signal.EntryPrice, signal.StopLoss, signal.TakeProfit,
			signal.PositionMargin, signal.Leverage, signal.Confidence,
			signal.SetupQuality, signal.Regime, signal.Reasoning,
			signal.Gate1Score, signal.Gate2Score, signal.Gate3Score,
			signal.Gate4Score, signal.Gate5Passed, signal.Status, signal.UpdatedAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	err := database.InsertSignal(context.Background(), signal)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetSignal(t *testing.T) {
	mock, database := newMockDB(t)
	want := sampleSignal()

	mock.ExpectQuery("SELECT .+ FROM signals WHERE signal_id").
		WithArgs(want.SignalID).
		WillReturnRows(addSignalRow(signalRows(), want))

	got, err := database.GetSignal(context.Background(), want.SignalID)
	require.NoError(t, err)
	assert.Equal(t, want.SignalID, got.SignalID)
	assert.Equal(t, DirectionLong, got.Direction)
	assert.Equal(t, 50000.0, got.EntryPrice)
	assert.Equal(t, SignalStatusPending, got.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetPendingSignalsOrderedOldestFirst(t *testing.T) {
	mock, database := newMockDB(t)

	older := sampleSignal()
	older.SignalID = "SIG_20250601_OLDER1"
	newer := sampleSignal()
	newer.SignalID = "SIG_20250601_NEWER1"
	newer.CreatedAt = older.CreatedAt.Add(time.Minute)

	rows := signalRows()
	addSignalRow(rows, older)
	addSignalRow(rows, newer)

	mock.ExpectQuery("SELECT .+ FROM signals WHERE status = .+ ORDER BY created_at").
		WithArgs(SignalStatusPending).
		WillReturnRows(rows)

	signals, err := database.GetPendingSignals(context.Background())
	require.NoError(t, err)
	require.Len(t, signals, 2)
	assert.Equal(t, "SIG_20250601_OLDER1", signals[0].SignalID)
	assert.Equal(t, "SIG_20250601_NEWER1", signals[1].SignalID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateSignalResult(t *testing.T) {
	mock, database := newMockDB(t)

	mock.ExpectExec("UPDATE signals SET").
		WithArgs(
			"SIG_20250601_A1B2C3", SignalStatusWin, 50250.0, pgxmock.AnyArg(),
			15.0, "TP_HIT", 0.0055, 0.001, 42, 88,
		).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := database.UpdateSignalResult(context.Background(),
		"SIG_20250601_A1B2C3", SignalStatusWin, 50250.0, 15.0, "TP_HIT",
		0.0055, 0.001, 42, 88)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateSignalResultNotFound(t *testing.T) {
	mock, database := newMockDB(t)

	mock.ExpectExec("UPDATE signals SET").
		WithArgs(
			"SIG_MISSING", SignalStatusLoss, 49875.0, pgxmock.AnyArg(),
			-7.5, "SL_HIT", 0.0, -0.003, 10, 40,
		).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := database.UpdateSignalResult(context.Background(),
		"SIG_MISSING", SignalStatusLoss, 49875.0, -7.5, "SL_HIT",
		0.0, -0.003, 10, 40)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestMarkSignalAnalyzed(t *testing.T) {
	mock, database := newMockDB(t)

	lessonID := "LESSON_20250601_ABC123"
	mock.ExpectExec("UPDATE signals SET result_analyzed = TRUE").
		WithArgs("SIG_20250601_A1B2C3", &lessonID, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := database.MarkSignalAnalyzed(context.Background(), "SIG_20250601_A1B2C3", &lessonID)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDirectionOpposite(t *testing.T) {
	assert.Equal(t, DirectionShort, DirectionLong.Opposite())
	assert.Equal(t, DirectionLong, DirectionShort.Opposite())
}
