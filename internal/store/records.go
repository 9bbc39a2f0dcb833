package store

import (
	"context"
	"time"
)

// EvaluationOutcome 对应 evaluations.outcome。
type EvaluationOutcome int

const (
	OutcomeActed    EvaluationOutcome = 1
	OutcomeHold     EvaluationOutcome = 2
	OutcomeRejected EvaluationOutcome = 3
	OutcomeFaulted  EvaluationOutcome = 4
	OutcomeSkipped  EvaluationOutcome = 5
)

func (o EvaluationOutcome) String() string {
	switch o {
	case OutcomeActed:
		return "acted"
	case OutcomeHold:
		return "hold"
	case OutcomeRejected:
		return "rejected"
	case OutcomeFaulted:
		return "faulted"
	case OutcomeSkipped:
		return "skipped"
	}
	return "unknown"
}

// AttemptStatus 对应 order_attempts.status。
type AttemptStatus int

const (
	AttemptOK        AttemptStatus = 1
	AttemptTransient AttemptStatus = 2
	AttemptFatal     AttemptStatus = 3
)

func (s AttemptStatus) String() string {
	switch s {
	case AttemptOK:
		return "ok"
	case AttemptTransient:
		return "transient"
	case AttemptFatal:
		return "fatal"
	}
	return "unknown"
}

// EvaluationRecord 一次评估的完整留痕。
type EvaluationRecord struct {
	ID         string
	RobotID    string
	Account    string
	Pair       string
	Style      string
	Outcome    EvaluationOutcome
	Action     string
	Confidence float64
	EntryPrice *float64
	StopPips   *float64
	TakePips   *float64
	Lots       *float64
	Reason     string
	TraceID    string
	TickAt     time.Time
	CreatedAt  time.Time
}

// RiskDecisionRecord 一次仓位测算。收紧（Clamped）和拒绝（Rejected）
// 分开记，收紧不算失败。
type RiskDecisionRecord struct {
	EvaluationID string
	Account      string
	Symbol       string
	Balance      float64
	RiskPercent  float64
	StopPips     float64
	Lots         float64
	MaxLots      float64
	Clamped      bool
	Rejected     bool
	Reason       string
	At           time.Time
}

// OrderAttemptRecord 一次下单尝试。
type OrderAttemptRecord struct {
	EvaluationID string
	Attempt      int
	Status       AttemptStatus
	BrokerRef    string
	Error        string
	At           time.Time
}

// RobotEventRecord 机器人状态变迁流水。
type RobotEventRecord struct {
	RobotID string
	Account string
	From    string
	To      string
	Note    string
	At      time.Time
}

// Recorder 评估与状态留痕的写入能力。
type Recorder interface {
	SaveEvaluation(ctx context.Context, rec EvaluationRecord) error
	SaveRiskDecision(ctx context.Context, rec RiskDecisionRecord) error
	AppendOrderAttempt(ctx context.Context, rec OrderAttemptRecord) error
	AppendRobotEvent(ctx context.Context, rec RobotEventRecord) error
}

// RecordReader 查询能力，供 Web 端展示历史。
type RecordReader interface {
	ListEvaluations(ctx context.Context, robotID string, limit int) ([]EvaluationRecord, error)
	ListEvaluationsPaged(ctx context.Context, pair string, limit, offset int) ([]EvaluationRecord, error)
	CountEvaluations(ctx context.Context, pair string) (int, error)
	ListOrderAttempts(ctx context.Context, evaluationID string) ([]OrderAttemptRecord, error)
	ListRiskDecisions(ctx context.Context, evaluationID string) ([]RiskDecisionRecord, error)
	ListRobotEvents(ctx context.Context, robotID string, limit int) ([]RobotEventRecord, error)
}

// NopRecorder 丢弃所有记录，测试与禁用存储时使用。
type NopRecorder struct{}

func (NopRecorder) SaveEvaluation(ctx context.Context, rec EvaluationRecord) error       { return nil }
func (NopRecorder) SaveRiskDecision(ctx context.Context, rec RiskDecisionRecord) error   { return nil }
func (NopRecorder) AppendOrderAttempt(ctx context.Context, rec OrderAttemptRecord) error { return nil }
func (NopRecorder) AppendRobotEvent(ctx context.Context, rec RobotEventRecord) error     { return nil }
