// Package manager 管理整群机器人：准入与套餐限额、独立节拍调度、
// 账户级故障的连坐暂停，以及不触碰状态机的按需评估。
package manager

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"kestrel/internal/analysis"
	"kestrel/internal/executor"
	"kestrel/internal/levels"
	"kestrel/internal/logger"
	"kestrel/internal/market"
	"kestrel/internal/metrics"
	"kestrel/internal/pairs"
	"kestrel/internal/risk"
	"kestrel/internal/robot"
	"kestrel/internal/store"
)

// ErrNotFound 机器人不存在。Web 端据此回 404。
var ErrNotFound = errors.New("机器人不存在")

// AccountInfo 一个交易账户及其执行通道。
type AccountInfo struct {
	ID      string
	Name    string
	Plan    string // free | basic | premium
	MaxOpen int    // 并发持仓名额
	Exec    executor.Executor
}

// PlanRobotLimit 套餐对应的机器人数量上限。未知套餐按 free 算。
func PlanRobotLimit(plan string) int {
	switch strings.ToLower(strings.TrimSpace(plan)) {
	case "premium":
		return 10
	case "basic":
		return 3
	default:
		return 1
	}
}

// Deps 管理器的外部能力与机器人缺省参数。
type Deps struct {
	Pipe     *robot.Pipeline
	Sizer    *risk.Sizer
	Retry    executor.RetryPolicy
	Recorder store.Recorder
	Notify   robot.Notifier

	RiskPercent   float64
	MinConfidence float64
	MinRiskReward float64
	DefaultStyle  string

	TickEvery time.Duration // 每台机器人的评估节拍
	CacheTTL  time.Duration // 按需评估结果的缓存时长
	Now       func() time.Time
}

type Manager struct {
	deps Deps
	gate *AccountGate
	now  func() time.Time

	mu       sync.Mutex
	accounts map[string]AccountInfo
	robots   map[string]*robot.Robot
	order    []string // 准入顺序，列表输出稳定
	loops    map[string]context.CancelFunc
	runCtx   context.Context
	wg       sync.WaitGroup

	adhoc *evalCache
}

func New(deps Deps) *Manager {
	if deps.TickEvery <= 0 {
		deps.TickEvery = 5 * time.Minute
	}
	if deps.Recorder == nil {
		deps.Recorder = store.NopRecorder{}
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Manager{
		deps:     deps,
		gate:     NewAccountGate(3),
		now:      now,
		accounts: make(map[string]AccountInfo),
		robots:   make(map[string]*robot.Robot),
		loops:    make(map[string]context.CancelFunc),
		adhoc:    newEvalCache(deps.CacheTTL),
	}
}

// RegisterAccount 登记账户并配置它的持仓名额。
func (m *Manager) RegisterAccount(info AccountInfo) error {
	if strings.TrimSpace(info.ID) == "" {
		return fmt.Errorf("账户缺少 ID")
	}
	if info.Exec == nil {
		return fmt.Errorf("账户 %s 缺少执行通道", info.ID)
	}
	if info.Plan == "" {
		info.Plan = "free"
	}
	if info.MaxOpen <= 0 {
		info.MaxOpen = 3
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[info.ID]; ok {
		return fmt.Errorf("账户 %s 已注册", info.ID)
	}
	m.accounts[info.ID] = info
	m.gate.Configure(info.ID, info.MaxOpen)
	logger.Infof("账户 %s 已注册: 套餐=%s 执行=%s 持仓名额=%d", info.ID, info.Plan, info.Exec.Name(), info.MaxOpen)
	return nil
}

// Accounts 已注册账户列表。
func (m *Manager) Accounts() []AccountInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]AccountInfo, 0, len(m.accounts))
	for _, a := range m.accounts {
		out = append(out, a)
	}
	return out
}

// Add 准入一台机器人。账户必须已注册，数量受套餐限制；
// 调度已启动时新机器人立即获得自己的节拍。
func (m *Manager) Add(cfg robot.Config) (robot.Status, error) {
	if cfg.Style == "" {
		cfg.Style = m.deps.DefaultStyle
	}
	if cfg.RiskPercent <= 0 {
		cfg.RiskPercent = m.deps.RiskPercent
	}
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = m.deps.MinConfidence
	}
	if cfg.MinRiskReward <= 0 {
		cfg.MinRiskReward = m.deps.MinRiskReward
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	acct, ok := m.accounts[cfg.Account]
	if !ok {
		return robot.Status{}, fmt.Errorf("未注册的账户: %s", cfg.Account)
	}
	limit := PlanRobotLimit(acct.Plan)
	if n := m.countLocked(acct.ID); n >= limit {
		return robot.Status{}, fmt.Errorf("账户 %s（%s 档）已有 %d 台机器人，套餐上限 %d", acct.ID, acct.Plan, n, limit)
	}

	r, err := robot.New(cfg, robot.Deps{
		Pipe:           m.deps.Pipe,
		Sizer:          m.deps.Sizer,
		Exec:           acct.Exec,
		Retry:          m.deps.Retry,
		Gate:           m.gate,
		Recorder:       m.deps.Recorder,
		Notify:         m.deps.Notify,
		OnAccountFault: m.handleAccountFault,
		Now:            m.deps.Now,
	})
	if err != nil {
		return robot.Status{}, err
	}
	if _, dup := m.robots[r.ID()]; dup {
		return robot.Status{}, fmt.Errorf("机器人 ID 重复: %s", r.ID())
	}

	m.robots[r.ID()] = r
	m.order = append(m.order, r.ID())
	if m.runCtx != nil {
		m.startLoopLocked(r)
	}
	metrics.SetRobotStates(m.stateCountsLocked())

	_ = m.deps.Recorder.AppendRobotEvent(context.Background(), store.RobotEventRecord{
		RobotID: r.ID(), Account: r.Account(), To: robot.StateIdle.String(), Note: "准入", At: m.now(),
	})
	logger.Infof("机器人 %s 准入: %s %s 账户=%s 风险=%.1f%%", r.ID(), r.Pair(), cfg.Style, r.Account(), cfg.RiskPercent)
	return r.Snapshot(), nil
}

// Remove 移除机器人。名下还有在场持仓时拒绝，先平仓再来。
func (m *Manager) Remove(ctx context.Context, id string) error {
	m.mu.Lock()
	r, ok := m.robots[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	acct := m.accounts[r.Account()]
	m.mu.Unlock()

	if acct.Exec != nil {
		positions, err := acct.Exec.Positions(ctx, r.Account())
		if err != nil {
			return fmt.Errorf("查询持仓失败: %w", err)
		}
		owned := make(map[string]struct{})
		for _, oid := range r.FilledOrderIDs() {
			owned[oid] = struct{}{}
		}
		open := 0
		for _, p := range positions {
			if !p.Open() {
				continue
			}
			if _, mine := owned[p.OrderID]; mine {
				open++
			}
		}
		if open > 0 {
			return fmt.Errorf("机器人 %s 还有 %d 笔在场持仓，先平仓再移除", id, open)
		}
	}

	m.mu.Lock()
	if cancel := m.loops[id]; cancel != nil {
		cancel()
		delete(m.loops, id)
	}
	delete(m.robots, id)
	for i, rid := range m.order {
		if rid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	metrics.SetRobotStates(m.stateCountsLocked())
	m.mu.Unlock()

	_ = m.deps.Recorder.AppendRobotEvent(ctx, store.RobotEventRecord{
		RobotID: id, Account: r.Account(), From: r.State().String(), Note: "移除", At: m.now(),
	})
	logger.Infof("机器人 %s 已移除", id)
	return nil
}

// Pause 暂停指定机器人。周期进行中则本周期跑完后停住。
func (m *Manager) Pause(id string) error {
	r, err := m.robot(id)
	if err != nil {
		return err
	}
	r.Pause()
	m.refreshStates()
	return nil
}

// Resume 恢复暂停中的机器人。
func (m *Manager) Resume(id string) error {
	r, err := m.robot(id)
	if err != nil {
		return err
	}
	r.Resume()
	m.refreshStates()
	return nil
}

// Reset 复位故障机器人，仅 FAULTED 状态可复位。
func (m *Manager) Reset(id string) error {
	r, err := m.robot(id)
	if err != nil {
		return err
	}
	if err := r.Reset(); err != nil {
		return err
	}
	m.refreshStates()
	return nil
}

// PauseAccount 暂停账户名下所有机器人，返回实际暂停数量。
func (m *Manager) PauseAccount(account, reason string) int {
	var targets []*robot.Robot
	m.mu.Lock()
	for _, id := range m.order {
		if r := m.robots[id]; r.Account() == account {
			targets = append(targets, r)
		}
	}
	m.mu.Unlock()

	for _, r := range targets {
		r.Pause()
	}
	if len(targets) > 0 {
		logger.Warnf("账户 %s 名下 %d 台机器人已暂停: %s", account, len(targets), reason)
	}
	m.refreshStates()
	return len(targets)
}

// List 所有机器人快照，按准入顺序。
func (m *Manager) List() []robot.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]robot.Status, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.robots[id].Snapshot())
	}
	return out
}

// Get 单台机器人快照。
func (m *Manager) Get(id string) (robot.Status, error) {
	r, err := m.robot(id)
	if err != nil {
		return robot.Status{}, err
	}
	return r.Snapshot(), nil
}

// Attempts 单台机器人的下单尝试历史。
func (m *Manager) Attempts(id string) ([]robot.OrderAttempt, error) {
	r, err := m.robot(id)
	if err != nil {
		return nil, err
	}
	return r.Attempts(), nil
}

// Start 启动调度，每台机器人独立节拍。重复调用只生效一次。
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	if m.runCtx != nil {
		m.mu.Unlock()
		return
	}
	m.runCtx = ctx
	for _, id := range m.order {
		m.startLoopLocked(m.robots[id])
	}
	n := len(m.order)
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		t := time.NewTicker(15 * time.Second)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				m.refreshStates()
			}
		}
	}()
	logger.Infof("调度启动: %d 台机器人，节拍 %s", n, m.deps.TickEvery)
}

// Stop 停掉所有节拍并等待在途周期收尾。
func (m *Manager) Stop() {
	m.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(m.loops))
	for _, c := range m.loops {
		cancels = append(cancels, c)
	}
	m.loops = make(map[string]context.CancelFunc)
	m.runCtx = nil
	m.mu.Unlock()

	for _, c := range cancels {
		c()
	}
	m.wg.Wait()
	logger.Infof("调度已停止")
}

// AdhocEvaluation 按需评估的展示结果。
type AdhocEvaluation struct {
	Pair     string                  `json:"pair"`
	Style    string                  `json:"style"`
	Rec      analysis.Recommendation `json:"recommendation"`
	Levels   []levels.Level          `json:"levels,omitempty"`
	Current  float64                 `json:"current_price,omitempty"`
	Articles int                     `json:"articles"`
	Sizing   *risk.Decision          `json:"sizing,omitempty"`
	Cached   bool                    `json:"cached"`
	At       time.Time               `json:"at"`
}

// Evaluate 按需评估一个品种，不触碰任何状态机、不下单。
// 有同品种同风格的机器人时借用它的账户做一次仓位试算，
// 结果带短缓存，连续点几次不会连续烧模型额度。
func (m *Manager) Evaluate(ctx context.Context, pair, style string) (AdhocEvaluation, error) {
	spec, _ := pairs.Lookup(pair)
	st := market.StyleByName(style)
	now := m.now()

	if hit, ok := m.adhoc.Get(spec.Symbol, st.Name, now); ok {
		hit.Cached = true
		return hit, nil
	}

	var mate *robot.Robot
	m.mu.Lock()
	for _, id := range m.order {
		r := m.robots[id]
		if r.Pair() == spec.Symbol && r.Snapshot().Style == st.Name {
			mate = r
			break
		}
	}
	m.mu.Unlock()

	out := AdhocEvaluation{Pair: spec.Symbol, Style: st.Name, At: now}
	if mate != nil {
		eval, d, err := mate.EvaluateOnce(ctx)
		if err != nil {
			return AdhocEvaluation{}, err
		}
		out.Rec, out.Levels, out.Current, out.Articles = eval.Rec, eval.Levels, eval.Current, eval.Articles
		if !eval.Rec.Hold() {
			out.Sizing = &d
		}
	} else {
		if m.deps.Pipe == nil {
			return AdhocEvaluation{}, fmt.Errorf("评估管线未配置")
		}
		eval, err := m.deps.Pipe.Evaluate(ctx, spec, st)
		if err != nil {
			return AdhocEvaluation{}, err
		}
		out.Rec, out.Levels, out.Current, out.Articles = eval.Rec, eval.Levels, eval.Current, eval.Articles
	}
	m.adhoc.Set(out)
	return out, nil
}

// RecentEvaluations 缓存里未过期的按需评估结果。
func (m *Manager) RecentEvaluations() []AdhocEvaluation {
	return m.adhoc.Snapshot(m.now())
}

// handleAccountFault 账户级故障连坐：同账户机器人全部暂停并通知运营。
func (m *Manager) handleAccountFault(account string, cause error) {
	logger.Errorf("账户 %s 发生账户级故障，同账户机器人连坐暂停: %v", account, cause)
	n := m.PauseAccount(account, cause.Error())
	if m.deps.Notify == nil || n == 0 {
		return
	}
	msg := fmt.Sprintf("⚠️ *账户故障连坐*\n```\naccount: %s\npaused:  %d 台机器人\nerror:   %s\n```",
		account, n, strings.ReplaceAll(cause.Error(), "```", "'''"))
	if err := m.deps.Notify.SendText(msg); err != nil {
		logger.Warnf("账户故障 Telegram 推送失败: %v", err)
	}
}

func (m *Manager) robot(id string) (*robot.Robot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.robots[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return r, nil
}

func (m *Manager) countLocked(account string) int {
	n := 0
	for _, r := range m.robots {
		if r.Account() == account {
			n++
		}
	}
	return n
}

func (m *Manager) startLoopLocked(r *robot.Robot) {
	ctx, cancel := context.WithCancel(m.runCtx)
	m.loops[r.ID()] = cancel
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		t := time.NewTicker(m.deps.TickEvery)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				r.RunCycle(ctx)
			}
		}
	}()
}

func (m *Manager) refreshStates() {
	m.mu.Lock()
	counts := m.stateCountsLocked()
	m.mu.Unlock()
	metrics.SetRobotStates(counts)
}

func (m *Manager) stateCountsLocked() map[string]int {
	counts := make(map[string]int, 5)
	for _, r := range m.robots {
		counts[r.State().String()]++
	}
	return counts
}
