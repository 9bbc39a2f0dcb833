package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSaveAndListEvaluations(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	stop := 30.0
	lots := 0.33
	rec := EvaluationRecord{
		ID:         "eval-1",
		RobotID:    "robot-1",
		Account:    "acc1",
		Pair:       "eurusd",
		Style:      "day",
		Outcome:    OutcomeActed,
		Action:     "buy",
		Confidence: 72,
		StopPips:   &stop,
		Lots:       &lots,
		Reason:     "level hold",
		TickAt:     time.Now(),
	}
	require.NoError(t, s.SaveEvaluation(ctx, rec))

	got, err := s.ListEvaluations(ctx, "robot-1", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "EURUSD", got[0].Pair)
	assert.Equal(t, OutcomeActed, got[0].Outcome)
	assert.Equal(t, "buy", got[0].Action)
	require.NotNil(t, got[0].StopPips)
	assert.Equal(t, 30.0, *got[0].StopPips)
	require.NotNil(t, got[0].Lots)
	assert.Equal(t, 0.33, *got[0].Lots)
}

func TestSaveEvaluationSameIDOverwrites(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rec := EvaluationRecord{ID: "eval-1", RobotID: "r", Account: "a", Pair: "EURUSD", Outcome: OutcomeHold, TickAt: time.Now()}
	require.NoError(t, s.SaveEvaluation(ctx, rec))
	rec.Outcome = OutcomeActed
	rec.Action = "sell"
	require.NoError(t, s.SaveEvaluation(ctx, rec))

	got, err := s.ListEvaluations(ctx, "r", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, OutcomeActed, got[0].Outcome)

	n, err := s.CountEvaluations(ctx, "EURUSD")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestOrderAttemptsRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AppendOrderAttempt(ctx, OrderAttemptRecord{
		EvaluationID: "eval-1", Attempt: 1, Status: AttemptTransient, Error: "timeout",
	}))
	require.NoError(t, s.AppendOrderAttempt(ctx, OrderAttemptRecord{
		EvaluationID: "eval-1", Attempt: 2, Status: AttemptOK, BrokerRef: "T123",
	}))

	got, err := s.ListOrderAttempts(ctx, "eval-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, AttemptTransient, got[0].Status)
	assert.Equal(t, "timeout", got[0].Error)
	assert.Equal(t, "T123", got[1].BrokerRef)
}

func TestRiskDecisionsRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveRiskDecision(ctx, RiskDecisionRecord{
		EvaluationID: "eval-1", Account: "acc1", Symbol: "eurusd",
		Balance: 10000, RiskPercent: 1, StopPips: 30, Lots: 0.33, MaxLots: 2,
	}))
	require.NoError(t, s.SaveRiskDecision(ctx, RiskDecisionRecord{
		EvaluationID: "eval-1", Account: "acc1", Symbol: "EURUSD",
		Balance: 10000, RiskPercent: 1, StopPips: 200, Rejected: true,
		Reason: "stop distance too wide for risk budget",
	}))
	require.NoError(t, s.SaveRiskDecision(ctx, RiskDecisionRecord{
		EvaluationID: "other", Account: "acc1", Symbol: "XAUUSD", Lots: 0.5,
	}))

	got, err := s.ListRiskDecisions(ctx, "eval-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "EURUSD", got[0].Symbol)
	assert.Equal(t, 0.33, got[0].Lots)
	assert.False(t, got[0].Rejected)
	assert.True(t, got[1].Rejected)
	assert.Equal(t, "stop distance too wide for risk budget", got[1].Reason)

	assert.Error(t, s.SaveRiskDecision(ctx, RiskDecisionRecord{Account: "acc1"}))
}

func TestRobotEventsRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AppendRobotEvent(ctx, RobotEventRecord{
		RobotID: "robot-1", Account: "acc1", From: "idle", To: "evaluating",
	}))
	require.NoError(t, s.AppendRobotEvent(ctx, RobotEventRecord{
		RobotID: "robot-1", Account: "acc1", From: "evaluating", To: "acting", Note: "buy EURUSD",
	}))

	got, err := s.ListRobotEvents(ctx, "robot-1", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
}

func TestListEvaluationsPaged(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.SaveEvaluation(ctx, EvaluationRecord{
			ID: "eval-" + string(rune('a'+i)), RobotID: "r", Account: "a",
			Pair: "EURUSD", Outcome: OutcomeHold, TickAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, s.SaveEvaluation(ctx, EvaluationRecord{
		ID: "eval-gold", RobotID: "r", Account: "a", Pair: "XAUUSD", Outcome: OutcomeHold, TickAt: base,
	}))

	page, err := s.ListEvaluationsPaged(ctx, "EURUSD", 2, 0)
	require.NoError(t, err)
	assert.Len(t, page, 2)

	n, err := s.CountEvaluations(ctx, "EURUSD")
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	all, err := s.CountEvaluations(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 6, all)
}

func TestSaveEvaluationValidation(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	assert.Error(t, s.SaveEvaluation(ctx, EvaluationRecord{RobotID: "r", Pair: "EURUSD"}))
	assert.Error(t, s.SaveEvaluation(ctx, EvaluationRecord{ID: "x", Pair: "EURUSD"}))
	assert.Error(t, s.SaveEvaluation(ctx, EvaluationRecord{ID: "x", RobotID: "r"}))
}
