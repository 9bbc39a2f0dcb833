// Package robot 实现绑定 (品种, 风格, 账户) 的评估-下单状态机。
// 一台机器人同一时刻只有一个周期在跑：tick 到来时上一周期未结束就
// 直接丢弃，不排队。执行链路上的失败按分类收敛为状态迁移加留痕，
// 不向调用方抛异常。
package robot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"kestrel/internal/analysis"
	"kestrel/internal/executor"
	"kestrel/internal/logger"
	"kestrel/internal/market"
	"kestrel/internal/metrics"
	"kestrel/internal/pairs"
	"kestrel/internal/risk"
	"kestrel/internal/store"
)

// State 机器人生命周期状态。
type State int32

const (
	StateIdle State = iota
	StateEvaluating
	StateActing
	StatePaused
	StateFaulted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateEvaluating:
		return "evaluating"
	case StateActing:
		return "acting"
	case StatePaused:
		return "paused"
	case StateFaulted:
		return "faulted"
	}
	return "unknown"
}

// 下单尝试状态。filled/rejected/failed 为终态，终态不再回头。
const (
	AttemptPending   = "pending"
	AttemptSubmitted = "submitted"
	AttemptFilled    = "filled"
	AttemptRejected  = "rejected"
	AttemptFailed    = "failed"
)

// ReasonGateDenied 账户并发持仓闸门拒绝时写入评估留痕的原因。
const ReasonGateDenied = "account position slots exhausted"

// OrderAttempt 一次下单尝试的聚合视图。每个周期最多产生一条，
// 重试次数累计在 AttemptCount 上。
type OrderAttempt struct {
	ID            string
	RobotID       string
	EvaluationID  string
	BrokerOrderID string
	Status        string
	AttemptCount  int
	LastError     string
	CreatedAt     time.Time
}

// Terminal 终态判定。
func (a OrderAttempt) Terminal() bool {
	switch a.Status {
	case AttemptFilled, AttemptRejected, AttemptFailed:
		return true
	}
	return false
}

// Gate 账户级并发持仓闸门。实现要求 TryReserve/Release 本身不阻塞、
// 不发生网络调用。
type Gate interface {
	TryReserve(account string) bool
	Release(account string)
}

// NopGate 不设限。
type NopGate struct{}

func (NopGate) TryReserve(string) bool { return true }
func (NopGate) Release(string)         {}

// Notifier 运营通知出口。
type Notifier interface {
	SendText(msg string) error
}

// Config 一台机器人的静态配置。
type Config struct {
	ID            string
	Pair          string
	Account       string
	Style         string // scalp | day | swing | position
	RiskPercent   float64
	MinConfidence float64
	MinRiskReward float64 // 0 则用风格自带的下限
}

// Deps 机器人的外部能力，显式注入。Pipe 与 Exec 必填。
type Deps struct {
	Pipe     *Pipeline
	Sizer    *risk.Sizer
	Exec     executor.Executor
	Retry    executor.RetryPolicy
	Gate     Gate
	Recorder store.Recorder
	Notify   Notifier

	// OnAccountFault 账户级故障上抛，由管理面决定是否连坐暂停。
	OnAccountFault func(account string, cause error)

	Now   func() time.Time
	NewID func() string
}

// Robot 状态机本体。状态只通过生命周期方法迁移。
type Robot struct {
	cfg   Config
	spec  pairs.Spec
	style market.Style

	pipe           *Pipeline
	sizer          *risk.Sizer
	exec           executor.Executor
	retry          executor.RetryPolicy
	gate           Gate
	rec            store.Recorder
	notify         Notifier
	onAccountFault func(string, error)
	now            func() time.Time
	newID          func() string

	mu          sync.Mutex
	state       State
	pausePend   bool
	attempts    []OrderAttempt
	lastTickAt  time.Time
	lastOutcome string
	lastReason  string
}

// New 组装机器人。未知品种走通用参数，未填的配置取缺省值。
func New(cfg Config, deps Deps) (*Robot, error) {
	if strings.TrimSpace(cfg.Pair) == "" {
		return nil, fmt.Errorf("机器人缺少品种")
	}
	if strings.TrimSpace(cfg.Account) == "" {
		return nil, fmt.Errorf("机器人缺少账户")
	}
	if deps.Pipe == nil {
		return nil, fmt.Errorf("机器人缺少评估管线")
	}
	if deps.Exec == nil {
		return nil, fmt.Errorf("机器人缺少执行通道")
	}

	spec, _ := pairs.Lookup(cfg.Pair)
	cfg.Pair = spec.Symbol
	style := market.StyleByName(cfg.Style)
	cfg.Style = style.Name
	if cfg.ID == "" {
		cfg.ID = "rb-" + shortID(newIDOf(deps))
	}
	if cfg.RiskPercent <= 0 {
		cfg.RiskPercent = 1.0
	}
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = 60
	}

	r := &Robot{
		cfg:            cfg,
		spec:           spec,
		style:          style,
		pipe:           deps.Pipe,
		sizer:          deps.Sizer,
		exec:           deps.Exec,
		retry:          deps.Retry,
		gate:           deps.Gate,
		rec:            deps.Recorder,
		notify:         deps.Notify,
		onAccountFault: deps.OnAccountFault,
		now:            deps.Now,
		newID:          deps.NewID,
		state:          StateIdle,
	}
	if r.sizer == nil {
		r.sizer = risk.NewSizer(0)
	}
	if r.gate == nil {
		r.gate = NopGate{}
	}
	if r.rec == nil {
		r.rec = store.NopRecorder{}
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.newID == nil {
		r.newID = uuid.NewString
	}
	return r, nil
}

func newIDOf(deps Deps) string {
	if deps.NewID != nil {
		return deps.NewID()
	}
	return uuid.NewString()
}

func (r *Robot) ID() string      { return r.cfg.ID }
func (r *Robot) Pair() string    { return r.spec.Symbol }
func (r *Robot) Account() string { return r.cfg.Account }

func (r *Robot) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Status 管理面快照。
type Status struct {
	ID            string    `json:"id"`
	Pair          string    `json:"pair"`
	Account       string    `json:"account"`
	Style         string    `json:"style"`
	State         string    `json:"state"`
	RiskPercent   float64   `json:"risk_percent"`
	MinConfidence float64   `json:"min_confidence"`
	LastTickAt    time.Time `json:"last_tick_at,omitempty"`
	LastOutcome   string    `json:"last_outcome,omitempty"`
	LastReason    string    `json:"last_reason,omitempty"`
	Attempts      int       `json:"attempts"`
}

func (r *Robot) Snapshot() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Status{
		ID:            r.cfg.ID,
		Pair:          r.spec.Symbol,
		Account:       r.cfg.Account,
		Style:         r.style.Name,
		State:         r.state.String(),
		RiskPercent:   r.cfg.RiskPercent,
		MinConfidence: r.cfg.MinConfidence,
		LastTickAt:    r.lastTickAt,
		LastOutcome:   r.lastOutcome,
		LastReason:    r.lastReason,
		Attempts:      len(r.attempts),
	}
}

// Attempts 下单尝试历史副本，追加写，旧条目不变。
func (r *Robot) Attempts() []OrderAttempt {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]OrderAttempt, len(r.attempts))
	copy(out, r.attempts)
	return out
}

// FilledOrderIDs 已成交尝试的订单号，管理面用来核对在场仓位。
func (r *Robot) FilledOrderIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, a := range r.attempts {
		if a.Status == AttemptFilled {
			out = append(out, a.ID)
		}
	}
	return out
}

// Pause 暂停。周期进行中则等它自然结束，结果作废后停在 PAUSED。
func (r *Robot) Pause() {
	r.mu.Lock()
	switch r.state {
	case StateIdle:
		r.state = StatePaused
		r.mu.Unlock()
		r.event(StateIdle, StatePaused, "操作员暂停")
		return
	case StateEvaluating, StateActing:
		r.pausePend = true
		r.mu.Unlock()
		logger.Infof("机器人 %s 暂停请求已登记，待当前周期结束", r.cfg.ID)
		return
	}
	r.mu.Unlock()
}

// Resume 恢复暂停中的机器人。FAULTED 要走 Reset。
func (r *Robot) Resume() {
	r.mu.Lock()
	r.pausePend = false
	if r.state != StatePaused {
		r.mu.Unlock()
		return
	}
	r.state = StateIdle
	r.mu.Unlock()
	r.event(StatePaused, StateIdle, "操作员恢复")
}

// Reset 故障复位，仅对 FAULTED 生效。
func (r *Robot) Reset() error {
	r.mu.Lock()
	if r.state != StateFaulted {
		st := r.state
		r.mu.Unlock()
		return fmt.Errorf("机器人 %s 当前 %s，无需复位", r.cfg.ID, st)
	}
	r.state = StateIdle
	r.mu.Unlock()
	r.event(StateFaulted, StateIdle, "操作员复位")
	return nil
}

// RunCycle 执行一个完整评估周期，返回是否真正跑了（非 IDLE 时丢弃）。
func (r *Robot) RunCycle(ctx context.Context) bool {
	if !r.begin() {
		return false
	}
	tickAt := r.now()
	rec := store.EvaluationRecord{
		ID:      r.newID(),
		RobotID: r.cfg.ID,
		Account: r.cfg.Account,
		Pair:    r.spec.Symbol,
		Style:   r.style.Name,
		TickAt:  tickAt,
	}
	rec.TraceID = shortID(rec.ID)

	eval, err := r.pipe.Evaluate(ctx, r.spec, r.style)
	if r.pauseRequested() {
		rec.Outcome = store.OutcomeSkipped
		rec.Reason = "评估中收到暂停请求，结果作废"
		logger.Infof("机器人 %s 评估结果因暂停被丢弃 trace=%s", r.cfg.ID, rec.TraceID)
		r.conclude(ctx, StateEvaluating, rec)
		return true
	}
	if err != nil {
		if errors.Is(err, ErrNoInput) {
			rec.Outcome = store.OutcomeHold
			rec.Reason = "无新闻与行情输入"
			logger.Infof("机器人 %s %s 无输入，观望 trace=%s", r.cfg.ID, r.spec.Symbol, rec.TraceID)
		} else {
			rec.Outcome = store.OutcomeSkipped
			rec.Reason = err.Error()
			logger.Warnf("机器人 %s 本周期中止: %v trace=%s", r.cfg.ID, err, rec.TraceID)
		}
		r.conclude(ctx, StateEvaluating, rec)
		return true
	}

	rec.Action = eval.Rec.Direction
	rec.Confidence = float64(eval.Rec.Confidence)
	if reason, hold := r.holdReason(eval.Rec); hold {
		rec.Outcome = store.OutcomeHold
		rec.Reason = reason
		logger.Infof("机器人 %s %s 观望: %s trace=%s", r.cfg.ID, r.spec.Symbol, reason, rec.TraceID)
		r.conclude(ctx, StateEvaluating, rec)
		return true
	}

	if !r.toActing() {
		// 过渡窗口里收到了暂停
		rec.Outcome = store.OutcomeSkipped
		rec.Reason = "进入执行前收到暂停请求，结果作废"
		r.conclude(ctx, StateEvaluating, rec)
		return true
	}
	rec.StopPips = f64ptr(eval.Rec.StopLoss.Pips)
	rec.TakePips = f64ptr(eval.Rec.TakeProfit.Pips)
	r.act(ctx, &rec, eval)
	return true
}

// EvaluateOnce 同步跑一轮分析加风控，不触碰状态机、不下单、不留痕。
// 依赖确定则输出确定，适合"现在看一眼这个品种"类请求。
func (r *Robot) EvaluateOnce(ctx context.Context) (Evaluation, risk.Decision, error) {
	eval, err := r.pipe.Evaluate(ctx, r.spec, r.style)
	if err != nil {
		return Evaluation{}, risk.Decision{}, err
	}
	if eval.Rec.Hold() {
		return eval, risk.Decision{}, nil
	}
	acct, err := r.exec.Account(ctx, r.cfg.Account)
	if err != nil {
		return eval, risk.Decision{}, fmt.Errorf("查询账户失败: %w", err)
	}
	return eval, r.size(eval.Rec, acct.Balance), nil
}

// act 执行段：账户快照 → 风控 → 闸门 → 带重试提交。状态收尾自理。
func (r *Robot) act(ctx context.Context, rec *store.EvaluationRecord, eval Evaluation) {
	acct, err := r.exec.Account(ctx, r.cfg.Account)
	if err != nil {
		if executor.IsAccountFatal(err) {
			r.faultOut(ctx, rec, err)
			return
		}
		rec.Outcome = store.OutcomeSkipped
		rec.Reason = fmt.Sprintf("查询账户失败: %v", err)
		logger.Warnf("机器人 %s 查询账户失败，放弃本周期: %v trace=%s", r.cfg.ID, err, rec.TraceID)
		r.conclude(ctx, StateActing, *rec)
		return
	}

	d := r.size(eval.Rec, acct.Balance)
	r.saveRisk(ctx, rec.ID, d)
	if d.Rejected {
		rec.Outcome = store.OutcomeRejected
		rec.Reason = d.Reason
		logger.Infof("机器人 %s 风控拒绝: %s trace=%s", r.cfg.ID, d.String(), rec.TraceID)
		r.conclude(ctx, StateActing, *rec)
		return
	}
	if d.Clamped {
		logger.Infof("机器人 %s 仓位收紧: %s trace=%s", r.cfg.ID, d.ClampNote, rec.TraceID)
	}
	rec.Lots = f64ptr(d.Lots)

	if !r.gate.TryReserve(r.cfg.Account) {
		metrics.GateDenied()
		rec.Outcome = store.OutcomeRejected
		rec.Reason = ReasonGateDenied
		logger.Infof("机器人 %s 账户 %s 并发持仓已满，放弃下单 trace=%s", r.cfg.ID, r.cfg.Account, rec.TraceID)
		r.conclude(ctx, StateActing, *rec)
		return
	}
	defer r.gate.Release(r.cfg.Account)

	order := executor.Order{
		ID:         r.newID(),
		Account:    r.cfg.Account,
		Symbol:     r.spec.Symbol,
		Side:       eval.Rec.Direction,
		Lots:       d.Lots,
		StopLoss:   eval.Rec.StopLoss.Price,
		TakeProfit: eval.Rec.TakeProfit.Price,
		Comment:    fmt.Sprintf("%s %s conf=%d", r.cfg.ID, r.style.Name, eval.Rec.Confidence),
	}
	r.openAttempt(order.ID, rec.ID)
	r.markSubmitted(order.ID)

	rx := &recordingExecutor{Executor: r.exec, rec: r.rec, evalID: rec.ID, now: r.now}
	res, attempts, err := executor.SubmitWithRetry(ctx, rx, order, r.retry)
	switch {
	case err == nil:
		r.closeAttempt(order.ID, AttemptFilled, res.Ticket, attempts, "")
		rec.Outcome = store.OutcomeActed
		rec.EntryPrice = f64ptr(res.FillPrice)
		logger.Infof("机器人 %s 已下单: %s %s %.2f 手 @%.5f 尝试=%d ticket=%s trace=%s",
			r.cfg.ID, order.Symbol, order.Side, order.Lots, res.FillPrice, attempts, res.Ticket, rec.TraceID)
		r.notifyOpen(order, res, eval.Rec)
		r.conclude(ctx, StateActing, *rec)
	case executor.IsAccountFatal(err):
		r.closeAttempt(order.ID, AttemptFailed, "", attempts, err.Error())
		r.faultOut(ctx, rec, err)
	case executor.IsTransient(err):
		r.closeAttempt(order.ID, AttemptFailed, "", attempts, err.Error())
		rec.Outcome = store.OutcomeSkipped
		rec.Reason = fmt.Sprintf("提交失败，重试 %d 次后放弃: %v", attempts, err)
		logger.Warnf("机器人 %s %s trace=%s", r.cfg.ID, rec.Reason, rec.TraceID)
		r.conclude(ctx, StateActing, *rec)
	default:
		var ee *executor.Error
		if errors.As(err, &ee) {
			// 订单级 fatal：只废掉本周期
			r.closeAttempt(order.ID, AttemptRejected, "", attempts, err.Error())
			rec.Outcome = store.OutcomeRejected
			rec.Reason = fmt.Sprintf("经纪端拒绝: %v", err)
			logger.Warnf("机器人 %s %s trace=%s", r.cfg.ID, rec.Reason, rec.TraceID)
		} else {
			r.closeAttempt(order.ID, AttemptFailed, "", attempts, err.Error())
			rec.Outcome = store.OutcomeSkipped
			rec.Reason = fmt.Sprintf("提交中断: %v", err)
			logger.Warnf("机器人 %s %s trace=%s", r.cfg.ID, rec.Reason, rec.TraceID)
		}
		r.conclude(ctx, StateActing, *rec)
	}
}

func (r *Robot) size(rec analysis.Recommendation, balance float64) risk.Decision {
	floor := r.cfg.MinRiskReward
	if floor <= 0 {
		floor = r.style.RiskReward
	}
	return r.sizer.Size(risk.Input{
		Account:       r.cfg.Account,
		Balance:       balance,
		RiskPercent:   r.cfg.RiskPercent,
		StopPips:      rec.StopLoss.Pips,
		Spec:          r.spec,
		RiskReward:    rec.RiskReward,
		MinRiskReward: floor,
	})
}

// holdReason EVALUATING 段的三道关口，命中即观望。
func (r *Robot) holdReason(rec analysis.Recommendation) (string, bool) {
	if rec.Hold() {
		return "方向观望", true
	}
	if float64(rec.Confidence) < r.cfg.MinConfidence {
		return fmt.Sprintf("置信度 %d 低于门槛 %.0f", rec.Confidence, r.cfg.MinConfidence), true
	}
	if rec.Alignment == analysis.AlignmentConflicting {
		// 多周期方向冲突一票否决，置信度再高也不做
		return "多周期方向冲突", true
	}
	return "", false
}

// begin IDLE→EVALUATING。其他状态的 tick 一律丢弃。
func (r *Robot) begin() bool {
	r.mu.Lock()
	if r.state != StateIdle {
		st := r.state
		r.mu.Unlock()
		logger.Debugf("机器人 %s 处于 %s，丢弃 tick", r.cfg.ID, st)
		return false
	}
	r.state = StateEvaluating
	r.lastTickAt = r.now()
	r.mu.Unlock()
	r.event(StateIdle, StateEvaluating, "tick")
	return true
}

// toActing EVALUATING→ACTING。暂停请求挂起时不进入执行段。
func (r *Robot) toActing() bool {
	r.mu.Lock()
	if r.pausePend {
		r.mu.Unlock()
		return false
	}
	r.state = StateActing
	r.mu.Unlock()
	r.event(StateEvaluating, StateActing, "关口通过")
	return true
}

// conclude 周期收尾：保存留痕，回到 IDLE 或因暂停请求停到 PAUSED。
func (r *Robot) conclude(ctx context.Context, from State, rec store.EvaluationRecord) {
	r.save(ctx, rec)
	r.mu.Lock()
	to := StateIdle
	if r.pausePend {
		to = StatePaused
		r.pausePend = false
	}
	r.state = to
	r.mu.Unlock()
	r.event(from, to, "周期结束: "+rec.Outcome.String())
}

// faultOut 账户级故障：FAULTED、上抛管理面、通知运营。
func (r *Robot) faultOut(ctx context.Context, rec *store.EvaluationRecord, cause error) {
	rec.Outcome = store.OutcomeFaulted
	rec.Reason = cause.Error()
	r.save(ctx, *rec)

	r.mu.Lock()
	r.state = StateFaulted
	r.pausePend = false
	r.mu.Unlock()
	r.event(StateActing, StateFaulted, cause.Error())
	logger.Errorf("机器人 %s 账户级故障，已停机待复位: %v trace=%s", r.cfg.ID, cause, rec.TraceID)

	if r.onAccountFault != nil {
		r.onAccountFault(r.cfg.Account, cause)
	}
	r.notifyFault(cause)
}

func (r *Robot) pauseRequested() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pausePend
}

func (r *Robot) saveRisk(ctx context.Context, evalID string, d risk.Decision) {
	note := d.Reason
	if note == "" {
		note = d.ClampNote
	}
	err := r.rec.SaveRiskDecision(ctx, store.RiskDecisionRecord{
		EvaluationID: evalID,
		Account:      d.Account,
		Symbol:       d.Symbol,
		Balance:      d.Balance,
		RiskPercent:  d.RiskPercent,
		StopPips:     d.StopPips,
		Lots:         d.Lots,
		MaxLots:      d.MaxLots,
		Clamped:      d.Clamped,
		Rejected:     d.Rejected,
		Reason:       note,
		At:           r.now(),
	})
	if err != nil {
		logger.Warnf("保存风控留痕失败: %v", err)
	}
}

func (r *Robot) save(ctx context.Context, rec store.EvaluationRecord) {
	r.mu.Lock()
	r.lastOutcome = rec.Outcome.String()
	r.lastReason = rec.Reason
	r.mu.Unlock()
	metrics.EvaluationObserved(rec.Pair, rec.Outcome.String())
	if err := r.rec.SaveEvaluation(ctx, rec); err != nil {
		logger.Warnf("保存评估留痕失败: %v", err)
	}
}

func (r *Robot) event(from, to State, note string) {
	err := r.rec.AppendRobotEvent(context.Background(), store.RobotEventRecord{
		RobotID: r.cfg.ID,
		Account: r.cfg.Account,
		From:    from.String(),
		To:      to.String(),
		Note:    note,
		At:      r.now(),
	})
	if err != nil {
		logger.Warnf("保存状态流水失败: %v", err)
	}
}

func (r *Robot) openAttempt(orderID, evalID string) {
	r.mu.Lock()
	r.attempts = append(r.attempts, OrderAttempt{
		ID:           orderID,
		RobotID:      r.cfg.ID,
		EvaluationID: evalID,
		Status:       AttemptPending,
		CreatedAt:    r.now(),
	})
	r.mu.Unlock()
}

func (r *Robot) markSubmitted(orderID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.attempts) - 1; i >= 0; i-- {
		if r.attempts[i].ID == orderID {
			r.attempts[i].Status = AttemptSubmitted
			return
		}
	}
}

func (r *Robot) closeAttempt(orderID, status, brokerRef string, count int, lastErr string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.attempts) - 1; i >= 0; i-- {
		if r.attempts[i].ID != orderID {
			continue
		}
		if r.attempts[i].Terminal() {
			return
		}
		r.attempts[i].Status = status
		r.attempts[i].BrokerOrderID = brokerRef
		r.attempts[i].AttemptCount = count
		r.attempts[i].LastError = lastErr
		return
	}
}

func (r *Robot) notifyOpen(order executor.Order, res executor.Result, rec analysis.Recommendation) {
	if r.notify == nil {
		return
	}
	var b strings.Builder
	b.WriteString("📈 开仓信号\n```\n")
	fmt.Fprintf(&b, "robot  : %s\n", r.cfg.ID)
	fmt.Fprintf(&b, "symbol : %s\n", order.Symbol)
	fmt.Fprintf(&b, "side   : %s\n", order.Side)
	fmt.Fprintf(&b, "lots   : %.2f\n", order.Lots)
	if res.FillPrice > 0 {
		fmt.Fprintf(&b, "entry  : %.5f\n", res.FillPrice)
	}
	fmt.Fprintf(&b, "sl     : %.5f (%.1fp)\n", order.StopLoss, rec.StopLoss.Pips)
	fmt.Fprintf(&b, "tp     : %.5f (%.1fp)\n", order.TakeProfit, rec.TakeProfit.Pips)
	fmt.Fprintf(&b, "RR     : %.2f\n", rec.RiskReward)
	fmt.Fprintf(&b, "conf   : %d\n", rec.Confidence)
	fmt.Fprintf(&b, "time   : %s\n", r.now().UTC().Format(time.RFC3339))
	b.WriteString("```")
	if err := r.notify.SendText(b.String()); err != nil {
		logger.Warnf("Telegram 推送失败: %v", err)
	}
}

func (r *Robot) notifyFault(cause error) {
	if r.notify == nil {
		return
	}
	var b strings.Builder
	b.WriteString("⚠️ 机器人故障\n```\n")
	fmt.Fprintf(&b, "robot   : %s\n", r.cfg.ID)
	fmt.Fprintf(&b, "account : %s\n", r.cfg.Account)
	fmt.Fprintf(&b, "pair    : %s\n", r.spec.Symbol)
	fmt.Fprintf(&b, "error   : %s\n", strings.ReplaceAll(cause.Error(), "```", "'''"))
	b.WriteString("```")
	if err := r.notify.SendText(b.String()); err != nil {
		logger.Warnf("Telegram 推送失败: %v", err)
	}
}

// recordingExecutor 每次真实提交后补一条尝试流水，重试由外层驱动。
type recordingExecutor struct {
	executor.Executor
	rec    store.Recorder
	evalID string
	now    func() time.Time
	n      int
}

func (x *recordingExecutor) Submit(ctx context.Context, order executor.Order) (executor.Result, error) {
	x.n++
	res, err := x.Executor.Submit(ctx, order)
	row := store.OrderAttemptRecord{EvaluationID: x.evalID, Attempt: x.n, At: x.now()}
	switch {
	case err == nil:
		row.Status = store.AttemptOK
		row.BrokerRef = res.Ticket
	case executor.IsTransient(err):
		row.Status = store.AttemptTransient
		row.Error = err.Error()
	default:
		row.Status = store.AttemptFatal
		row.Error = err.Error()
	}
	metrics.SubmitObserved(row.Status.String())
	if rerr := x.rec.AppendOrderAttempt(ctx, row); rerr != nil {
		logger.Warnf("保存下单尝试流水失败: %v", rerr)
	}
	return res, err
}

func f64ptr(v float64) *float64 { return &v }

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
