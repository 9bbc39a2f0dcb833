package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore 评估留痕的 sqlite 实现。
type SQLiteStore struct {
	mu sync.Mutex
	db *sql.DB
}

var _ Recorder = (*SQLiteStore)(nil)
var _ RecordReader = (*SQLiteStore)(nil)

// OpenSQLite 打开（必要时创建）数据库并建表。
func OpenSQLite(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("store.path 不能为空")
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("创建数据目录失败: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}
	db.SetMaxOpenConns(1)
	s := &SQLiteStore{db: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	db := s.db
	s.db = nil
	s.mu.Unlock()
	if db == nil {
		return nil
	}
	return db.Close()
}

func (s *SQLiteStore) ensureSchema() error {
	s.mu.Lock()
	db := s.db
	s.mu.Unlock()
	if db == nil {
		return fmt.Errorf("store 未初始化")
	}
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS evaluations (
			id TEXT PRIMARY KEY,
			robot_id TEXT NOT NULL,
			account TEXT NOT NULL,
			pair TEXT NOT NULL,
			style TEXT,
			outcome INTEGER NOT NULL,
			action TEXT,
			confidence REAL,
			entry_price REAL,
			stop_pips REAL,
			take_pips REAL,
			lots REAL,
			reason TEXT,
			trace_id TEXT,
			tick_at INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_evaluations_robot ON evaluations(robot_id, tick_at DESC);
		CREATE INDEX IF NOT EXISTS idx_evaluations_pair ON evaluations(pair, tick_at DESC);

		CREATE TABLE IF NOT EXISTS risk_decisions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			evaluation_id TEXT NOT NULL,
			account TEXT NOT NULL,
			symbol TEXT NOT NULL,
			balance REAL,
			risk_percent REAL,
			stop_pips REAL,
			lots REAL,
			max_lots REAL,
			clamped INTEGER NOT NULL DEFAULT 0,
			rejected INTEGER NOT NULL DEFAULT 0,
			reason TEXT,
			at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_risk_decisions_eval ON risk_decisions(evaluation_id, at);

		CREATE TABLE IF NOT EXISTS order_attempts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			evaluation_id TEXT NOT NULL,
			attempt INTEGER NOT NULL,
			status INTEGER NOT NULL,
			broker_ref TEXT,
			error TEXT,
			at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_order_attempts_eval ON order_attempts(evaluation_id, attempt);

		CREATE TABLE IF NOT EXISTS robot_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			robot_id TEXT NOT NULL,
			account TEXT NOT NULL,
			from_state TEXT,
			to_state TEXT,
			note TEXT,
			at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_robot_events_robot ON robot_events(robot_id, at DESC);
	`)
	return err
}

// SaveEvaluation 写入一次评估结果。同 ID 重复写入覆盖旧值。
func (s *SQLiteStore) SaveEvaluation(ctx context.Context, rec EvaluationRecord) error {
	s.mu.Lock()
	db := s.db
	s.mu.Unlock()
	if db == nil {
		return fmt.Errorf("store 未初始化")
	}
	if strings.TrimSpace(rec.ID) == "" {
		return fmt.Errorf("evaluation id 必填")
	}
	if strings.TrimSpace(rec.RobotID) == "" {
		return fmt.Errorf("robot_id 必填")
	}
	pair := strings.ToUpper(strings.TrimSpace(rec.Pair))
	if pair == "" {
		return fmt.Errorf("pair 必填")
	}
	now := time.Now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.TickAt.IsZero() {
		rec.TickAt = now
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO evaluations
			(id, robot_id, account, pair, style, outcome, action, confidence,
			 entry_price, stop_pips, take_pips, lots, reason, trace_id, tick_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			outcome=excluded.outcome,
			action=excluded.action,
			confidence=excluded.confidence,
			entry_price=COALESCE(excluded.entry_price, evaluations.entry_price),
			stop_pips=COALESCE(excluded.stop_pips, evaluations.stop_pips),
			take_pips=COALESCE(excluded.take_pips, evaluations.take_pips),
			lots=COALESCE(excluded.lots, evaluations.lots),
			reason=excluded.reason,
			trace_id=COALESCE(NULLIF(excluded.trace_id, ''), evaluations.trace_id);
	`, rec.ID, rec.RobotID, rec.Account, pair, nullIfEmptyString(rec.Style), int(rec.Outcome),
		nullIfEmptyString(rec.Action), rec.Confidence,
		nullableFloat(rec.EntryPrice), nullableFloat(rec.StopPips), nullableFloat(rec.TakePips), nullableFloat(rec.Lots),
		nullIfEmptyString(rec.Reason), nullIfEmptyString(rec.TraceID),
		rec.TickAt.UnixMilli(), rec.CreatedAt.UnixMilli())
	return err
}

// SaveRiskDecision 插入一条仓位测算留痕。
func (s *SQLiteStore) SaveRiskDecision(ctx context.Context, rec RiskDecisionRecord) error {
	s.mu.Lock()
	db := s.db
	s.mu.Unlock()
	if db == nil {
		return fmt.Errorf("store 未初始化")
	}
	if strings.TrimSpace(rec.EvaluationID) == "" {
		return fmt.Errorf("evaluation_id 必填")
	}
	if rec.At.IsZero() {
		rec.At = time.Now()
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO risk_decisions
			(evaluation_id, account, symbol, balance, risk_percent, stop_pips,
			 lots, max_lots, clamped, rejected, reason, at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.EvaluationID, rec.Account, strings.ToUpper(strings.TrimSpace(rec.Symbol)),
		rec.Balance, rec.RiskPercent, rec.StopPips, rec.Lots, rec.MaxLots,
		boolToInt(rec.Clamped), boolToInt(rec.Rejected),
		nullIfEmptyString(rec.Reason), rec.At.UnixMilli())
	return err
}

// AppendOrderAttempt 插入一次下单尝试流水。
func (s *SQLiteStore) AppendOrderAttempt(ctx context.Context, rec OrderAttemptRecord) error {
	s.mu.Lock()
	db := s.db
	s.mu.Unlock()
	if db == nil {
		return fmt.Errorf("store 未初始化")
	}
	if strings.TrimSpace(rec.EvaluationID) == "" {
		return fmt.Errorf("evaluation_id 必填")
	}
	if rec.At.IsZero() {
		rec.At = time.Now()
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO order_attempts (evaluation_id, attempt, status, broker_ref, error, at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.EvaluationID, rec.Attempt, int(rec.Status),
		nullIfEmptyString(rec.BrokerRef), nullIfEmptyString(rec.Error), rec.At.UnixMilli())
	return err
}

// AppendRobotEvent 插入状态变迁流水。
func (s *SQLiteStore) AppendRobotEvent(ctx context.Context, rec RobotEventRecord) error {
	s.mu.Lock()
	db := s.db
	s.mu.Unlock()
	if db == nil {
		return fmt.Errorf("store 未初始化")
	}
	if strings.TrimSpace(rec.RobotID) == "" {
		return fmt.Errorf("robot_id 必填")
	}
	if rec.At.IsZero() {
		rec.At = time.Now()
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO robot_events (robot_id, account, from_state, to_state, note, at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.RobotID, rec.Account, nullIfEmptyString(rec.From), nullIfEmptyString(rec.To),
		nullIfEmptyString(rec.Note), rec.At.UnixMilli())
	return err
}

// ListEvaluations 返回指定机器人的评估（按时间倒序）。
func (s *SQLiteStore) ListEvaluations(ctx context.Context, robotID string, limit int) ([]EvaluationRecord, error) {
	s.mu.Lock()
	db := s.db
	s.mu.Unlock()
	if db == nil {
		return nil, fmt.Errorf("store 未初始化")
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := db.QueryContext(ctx, evaluationSelect+`
		WHERE robot_id=?
		ORDER BY tick_at DESC, created_at DESC
		LIMIT ?`, robotID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvaluations(rows)
}

// ListEvaluationsPaged 按品种过滤并分页。
func (s *SQLiteStore) ListEvaluationsPaged(ctx context.Context, pair string, limit, offset int) ([]EvaluationRecord, error) {
	s.mu.Lock()
	db := s.db
	s.mu.Unlock()
	if db == nil {
		return nil, fmt.Errorf("store 未初始化")
	}
	if limit <= 0 || limit > 500 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	pair = strings.ToUpper(strings.TrimSpace(pair))
	var args []interface{}
	var where strings.Builder
	where.WriteString(" WHERE 1=1")
	if pair != "" {
		where.WriteString(" AND pair=?")
		args = append(args, pair)
	}
	rows, err := db.QueryContext(ctx, evaluationSelect+where.String()+`
		ORDER BY tick_at DESC, created_at DESC
		LIMIT ? OFFSET ?`, append(args, limit, offset)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvaluations(rows)
}

// CountEvaluations 满足条件的评估总数。
func (s *SQLiteStore) CountEvaluations(ctx context.Context, pair string) (int, error) {
	s.mu.Lock()
	db := s.db
	s.mu.Unlock()
	if db == nil {
		return 0, fmt.Errorf("store 未初始化")
	}
	pair = strings.ToUpper(strings.TrimSpace(pair))
	var args []interface{}
	var where strings.Builder
	where.WriteString(" WHERE 1=1")
	if pair != "" {
		where.WriteString(" AND pair=?")
		args = append(args, pair)
	}
	var total int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM evaluations`+where.String(), args...).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

// ListOrderAttempts 返回某次评估的下单尝试（按序号升序）。
func (s *SQLiteStore) ListOrderAttempts(ctx context.Context, evaluationID string) ([]OrderAttemptRecord, error) {
	s.mu.Lock()
	db := s.db
	s.mu.Unlock()
	if db == nil {
		return nil, fmt.Errorf("store 未初始化")
	}
	rows, err := db.QueryContext(ctx, `
		SELECT evaluation_id, attempt, status, broker_ref, error, at
		FROM order_attempts
		WHERE evaluation_id=?
		ORDER BY attempt ASC`, evaluationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []OrderAttemptRecord
	for rows.Next() {
		var rec OrderAttemptRecord
		var ts int64
		var ref, errText sql.NullString
		if err := rows.Scan(&rec.EvaluationID, &rec.Attempt, &rec.Status, &ref, &errText, &ts); err != nil {
			return nil, err
		}
		rec.BrokerRef = ref.String
		rec.Error = errText.String
		rec.At = time.UnixMilli(ts)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ListRiskDecisions 返回某次评估的仓位测算（按时间升序）。
func (s *SQLiteStore) ListRiskDecisions(ctx context.Context, evaluationID string) ([]RiskDecisionRecord, error) {
	s.mu.Lock()
	db := s.db
	s.mu.Unlock()
	if db == nil {
		return nil, fmt.Errorf("store 未初始化")
	}
	rows, err := db.QueryContext(ctx, `
		SELECT evaluation_id, account, symbol, balance, risk_percent, stop_pips,
		       lots, max_lots, clamped, rejected, reason, at
		FROM risk_decisions
		WHERE evaluation_id=?
		ORDER BY at ASC, id ASC`, evaluationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RiskDecisionRecord
	for rows.Next() {
		var rec RiskDecisionRecord
		var clamped, rejected int
		var reason sql.NullString
		var ts int64
		if err := rows.Scan(&rec.EvaluationID, &rec.Account, &rec.Symbol, &rec.Balance, &rec.RiskPercent,
			&rec.StopPips, &rec.Lots, &rec.MaxLots, &clamped, &rejected, &reason, &ts); err != nil {
			return nil, err
		}
		rec.Clamped = clamped != 0
		rec.Rejected = rejected != 0
		rec.Reason = reason.String
		rec.At = time.UnixMilli(ts)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ListRobotEvents 返回机器人的状态变迁（按时间倒序）。
func (s *SQLiteStore) ListRobotEvents(ctx context.Context, robotID string, limit int) ([]RobotEventRecord, error) {
	s.mu.Lock()
	db := s.db
	s.mu.Unlock()
	if db == nil {
		return nil, fmt.Errorf("store 未初始化")
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := db.QueryContext(ctx, `
		SELECT robot_id, account, from_state, to_state, note, at
		FROM robot_events
		WHERE robot_id=?
		ORDER BY at DESC
		LIMIT ?`, robotID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RobotEventRecord
	for rows.Next() {
		var rec RobotEventRecord
		var ts int64
		var from, to, note sql.NullString
		if err := rows.Scan(&rec.RobotID, &rec.Account, &from, &to, &note, &ts); err != nil {
			return nil, err
		}
		rec.From = from.String
		rec.To = to.String
		rec.Note = note.String
		rec.At = time.UnixMilli(ts)
		out = append(out, rec)
	}
	return out, rows.Err()
}

const evaluationSelect = `
	SELECT id, robot_id, account, pair, style, outcome, action, confidence,
	       entry_price, stop_pips, take_pips, lots, reason, trace_id, tick_at, created_at
	FROM evaluations`

func scanEvaluations(rows *sql.Rows) ([]EvaluationRecord, error) {
	var out []EvaluationRecord
	for rows.Next() {
		var (
			rec                    EvaluationRecord
			style, action          sql.NullString
			reason, traceID        sql.NullString
			entry, stop, take, lot sql.NullFloat64
			tickAt, createdAt      int64
		)
		if err := rows.Scan(&rec.ID, &rec.RobotID, &rec.Account, &rec.Pair, &style, &rec.Outcome,
			&action, &rec.Confidence, &entry, &stop, &take, &lot, &reason, &traceID, &tickAt, &createdAt); err != nil {
			return nil, err
		}
		rec.Style = style.String
		rec.Action = action.String
		rec.Reason = reason.String
		rec.TraceID = traceID.String
		if entry.Valid {
			v := entry.Float64
			rec.EntryPrice = &v
		}
		if stop.Valid {
			v := stop.Float64
			rec.StopPips = &v
		}
		if take.Valid {
			v := take.Float64
			rec.TakePips = &v
		}
		if lot.Valid {
			v := lot.Float64
			rec.Lots = &v
		}
		rec.TickAt = time.UnixMilli(tickAt)
		rec.CreatedAt = time.UnixMilli(createdAt)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func nullableFloat(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullIfEmptyString(v string) interface{} {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
