package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"kestrel/internal/store"
)

// Seed a SQLite database with mock evaluation history for the dashboard.
// Usage: go run scripts/seed_mock_data.go [db_path]
// Default db_path: data/kestrel.db
func main() {
	dbPath := "data/kestrel.db"
	if len(os.Args) > 1 && strings.TrimSpace(os.Args[1]) != "" {
		dbPath = strings.TrimSpace(os.Args[1])
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		panic(err)
	}

	db, err := store.OpenSQLite(dbPath)
	if err != nil {
		panic(err)
	}
	defer db.Close()

	ctx := context.Background()
	if err := seedEvaluations(ctx, db); err != nil {
		panic(err)
	}
	if err := seedEvents(ctx, db); err != nil {
		panic(err)
	}

	fmt.Printf("✓ mock data seeded into %s\n", dbPath)
}

func seedEvaluations(ctx context.Context, db *store.SQLiteStore) error {
	now := time.Now()
	samples := []store.EvaluationRecord{
		{
			ID:         "ev-mock-eurusd-acted",
			RobotID:    "rb-mock01",
			Account:    "acc-demo",
			Pair:       "EURUSD",
			Style:      "day",
			Outcome:    store.OutcomeActed,
			Action:     "BUY",
			Confidence: 82,
			EntryPrice: ptrFloat(1.0865),
			StopPips:   ptrFloat(30),
			TakePips:   ptrFloat(60),
			Lots:       ptrFloat(0.5),
			Reason:     "1h 突破回踩确认，EMA 多头排列，新闻面偏多。",
			TraceID:    "tr-mock-0001",
			TickAt:     now.Add(-30 * time.Minute),
		},
		{
			ID:         "ev-mock-gbpusd-hold",
			RobotID:    "rb-mock02",
			Account:    "acc-demo",
			Pair:       "GBPUSD",
			Style:      "swing",
			Outcome:    store.OutcomeHold,
			Action:     "HOLD",
			Confidence: 45,
			Reason:     "日线方向不明，RSI 中性，观望。",
			TraceID:    "tr-mock-0002",
			TickAt:     now.Add(-2 * time.Hour),
		},
		{
			ID:         "ev-mock-usdjpy-rejected",
			RobotID:    "rb-mock03",
			Account:    "acc-demo",
			Pair:       "USDJPY",
			Style:      "day",
			Outcome:    store.OutcomeRejected,
			Action:     "SELL",
			Confidence: 64,
			StopPips:   ptrFloat(40),
			TakePips:   ptrFloat(44),
			Reason:     "盈亏比 1.1 低于门槛 1.5，放弃。",
			TraceID:    "tr-mock-0003",
			TickAt:     now.Add(-4 * time.Hour),
		},
		{
			ID:      "ev-mock-eurusd-faulted",
			RobotID: "rb-mock01",
			Account: "acc-demo",
			Pair:    "EURUSD",
			Style:   "day",
			Outcome: store.OutcomeFaulted,
			Reason:  "下单通道鉴权失效。",
			TraceID: "tr-mock-0004",
			TickAt:  now.Add(-6 * time.Hour),
		},
	}
	for _, rec := range samples {
		if err := db.SaveEvaluation(ctx, rec); err != nil {
			return err
		}
	}

	attempts := []store.OrderAttemptRecord{
		{
			EvaluationID: "ev-mock-eurusd-acted",
			Attempt:      1,
			Status:       store.AttemptTransient,
			Error:        "broker timeout",
			At:           now.Add(-30 * time.Minute),
		},
		{
			EvaluationID: "ev-mock-eurusd-acted",
			Attempt:      2,
			Status:       store.AttemptOK,
			BrokerRef:    "PT-100001",
			At:           now.Add(-29 * time.Minute),
		},
		{
			EvaluationID: "ev-mock-eurusd-faulted",
			Attempt:      1,
			Status:       store.AttemptFatal,
			Error:        "account auth rejected",
			At:           now.Add(-6 * time.Hour),
		},
	}
	for _, rec := range attempts {
		if err := db.AppendOrderAttempt(ctx, rec); err != nil {
			return err
		}
	}

	risks := []store.RiskDecisionRecord{
		{
			EvaluationID: "ev-mock-eurusd-acted",
			Account:      "acc-demo",
			Symbol:       "EURUSD",
			Balance:      10000,
			RiskPercent:  1.5,
			StopPips:     30,
			Lots:         0.5,
			MaxLots:      2,
			At:           now.Add(-30 * time.Minute),
		},
		{
			EvaluationID: "ev-mock-usdjpy-rejected",
			Account:      "acc-demo",
			Symbol:       "USDJPY",
			Balance:      10000,
			RiskPercent:  1,
			StopPips:     40,
			Rejected:     true,
			Reason:       "盈亏比 1.1 低于门槛 1.5",
			At:           now.Add(-4 * time.Hour),
		},
	}
	for _, rec := range risks {
		if err := db.SaveRiskDecision(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

func seedEvents(ctx context.Context, db *store.SQLiteStore) error {
	now := time.Now()
	events := []store.RobotEventRecord{
		{RobotID: "rb-mock01", Account: "acc-demo", From: "idle", To: "evaluating", At: now.Add(-31 * time.Minute)},
		{RobotID: "rb-mock01", Account: "acc-demo", From: "evaluating", To: "acting", Note: "BUY conf=82", At: now.Add(-30 * time.Minute)},
		{RobotID: "rb-mock01", Account: "acc-demo", From: "acting", To: "idle", Note: "PT-100001", At: now.Add(-29 * time.Minute)},
		{RobotID: "rb-mock01", Account: "acc-demo", From: "idle", To: "faulted", Note: "account auth rejected", At: now.Add(-6 * time.Hour)},
		{RobotID: "rb-mock02", Account: "acc-demo", From: "idle", To: "paused", Note: "manual", At: now.Add(-3 * time.Hour)},
	}
	for _, rec := range events {
		if err := db.AppendRobotEvent(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

func ptrFloat(v float64) *float64 { return &v }
