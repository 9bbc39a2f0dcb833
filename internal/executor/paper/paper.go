// Package paper 内存撮合的模拟通道：立即成交、半点差、按最新报价
// 盯市触发止损/止盈。用于本地跑全链路和并发/重试行为的测试。
package paper

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"kestrel/internal/executor"
	"kestrel/internal/logger"
	"kestrel/internal/pairs"
)

type account struct {
	balance  float64
	currency string
	open     map[string]*executor.Position
	closed   []executor.Position
}

type Executor struct {
	mu      sync.Mutex
	spread  float64 // pips，买卖各承担一半
	seq     int64
	acc     map[string]*account
	prices  map[string]float64
	injectQ []error
}

func New(spreadPips float64) *Executor {
	if spreadPips < 0 {
		spreadPips = 0
	}
	return &Executor{
		spread: spreadPips,
		acc:    map[string]*account{},
		prices: map[string]float64{},
	}
}

func (p *Executor) Name() string { return "paper" }

// Seed 注入初始账户。重复 Seed 会重置余额但保留历史。
func (p *Executor) Seed(accountID string, balance float64, currency string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	a, ok := p.acc[accountID]
	if !ok {
		a = &account{open: map[string]*executor.Position{}}
		p.acc[accountID] = a
	}
	a.balance = balance
	if currency == "" {
		currency = "USD"
	}
	a.currency = currency
}

// FailNext 追加注入的提交失败，按顺序在后续 Submit 里消费。
func (p *Executor) FailNext(errs ...error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.injectQ = append(p.injectQ, errs...)
}

func (p *Executor) Submit(ctx context.Context, order executor.Order) (executor.Result, error) {
	if err := ctx.Err(); err != nil {
		return executor.Result{}, executor.Transient("提交前上下文已取消", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.injectQ) > 0 {
		err := p.injectQ[0]
		p.injectQ = p.injectQ[1:]
		return executor.Result{}, err
	}

	a, ok := p.acc[order.Account]
	if !ok {
		return executor.Result{}, executor.FatalAccount(fmt.Sprintf("未知账户 %s", order.Account), nil)
	}
	if order.Side != executor.SideBuy && order.Side != executor.SideSell {
		return executor.Result{}, executor.FatalOrder(fmt.Sprintf("非法方向 %q", order.Side), nil)
	}
	if order.Lots <= 0 {
		return executor.Result{}, executor.FatalOrder("手数必须为正", nil)
	}

	spec, _ := pairs.Lookup(order.Symbol)
	px := order.EntryPrice
	if px <= 0 {
		px = p.prices[spec.Symbol]
	}
	if px <= 0 {
		return executor.Result{}, executor.Transient(fmt.Sprintf("品种 %s 暂无报价", spec.Symbol), nil)
	}
	fill := p.applySpread(spec, order.Side, px)

	p.seq++
	pos := &executor.Position{
		Ticket:     fmt.Sprintf("P-%06d", p.seq),
		OrderID:    order.ID,
		Account:    order.Account,
		Symbol:     spec.Symbol,
		Side:       order.Side,
		Lots:       order.Lots,
		OpenPrice:  fill,
		StopLoss:   order.StopLoss,
		TakeProfit: order.TakeProfit,
		OpenedAt:   time.Now(),
	}
	a.open[pos.Ticket] = pos
	logger.Debugf("paper 成交 %s %s %.2f 手 @ %.5f (账户 %s)", pos.Symbol, pos.Side, pos.Lots, fill, pos.Account)

	return executor.Result{
		OrderID:   order.ID,
		Ticket:    pos.Ticket,
		Status:    "filled",
		FillPrice: fill,
		FilledAt:  pos.OpenedAt,
	}, nil
}

func (p *Executor) Account(ctx context.Context, accountID string) (executor.AccountState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	a, ok := p.acc[accountID]
	if !ok {
		return executor.AccountState{}, executor.FatalAccount(fmt.Sprintf("未知账户 %s", accountID), nil)
	}
	equity := a.balance
	for _, pos := range a.open {
		equity += p.unrealized(pos)
	}
	return executor.AccountState{
		ID: accountID, Balance: a.balance, Equity: equity,
		Currency: a.currency, OpenPositions: len(a.open),
	}, nil
}

func (p *Executor) Positions(ctx context.Context, accountID string) ([]executor.Position, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	a, ok := p.acc[accountID]
	if !ok {
		return nil, executor.FatalAccount(fmt.Sprintf("未知账户 %s", accountID), nil)
	}
	out := make([]executor.Position, 0, len(a.open))
	for _, pos := range a.open {
		cp := *pos
		cp.Profit = p.unrealized(pos)
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticket < out[j].Ticket })
	return out, nil
}

// Cancel 平掉 orderID 对应的仓位，按当前对手价结算；找不到返回 false。
func (p *Executor) Cancel(ctx context.Context, orderID string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, a := range p.acc {
		for ticket, pos := range a.open {
			if pos.OrderID != orderID && pos.Ticket != orderID {
				continue
			}
			px := p.closeSidePrice(pos)
			if px <= 0 {
				px = pos.OpenPrice
			}
			p.closeLocked(a, ticket, px, "cancelled")
			return true, nil
		}
	}
	return false, nil
}

// Closed 返回账户的平仓历史拷贝
func (p *Executor) Closed(accountID string) []executor.Position {
	p.mu.Lock()
	defer p.mu.Unlock()
	a, ok := p.acc[accountID]
	if !ok {
		return nil
	}
	out := make([]executor.Position, len(a.closed))
	copy(out, a.closed)
	return out
}

// OnPrice 更新报价并盯市：触发的止损/止盈立即按挂的价位结算，
// 返回本次被平的仓位。
func (p *Executor) OnPrice(symbol string, px float64) []executor.Position {
	p.mu.Lock()
	defer p.mu.Unlock()

	spec, _ := pairs.Lookup(symbol)
	p.prices[spec.Symbol] = px
	if px <= 0 {
		return nil
	}
	half := spec.PriceOffset(p.spread / 2)

	var closed []executor.Position
	for _, a := range p.acc {
		for ticket, pos := range a.open {
			if pos.Symbol != spec.Symbol {
				continue
			}
			var closePx float64
			var note string
			if pos.Side == executor.SideBuy {
				bid := px - half
				switch {
				case pos.StopLoss > 0 && bid <= pos.StopLoss:
					closePx, note = pos.StopLoss, "stop_loss"
				case pos.TakeProfit > 0 && bid >= pos.TakeProfit:
					closePx, note = pos.TakeProfit, "take_profit"
				}
			} else {
				ask := px + half
				switch {
				case pos.StopLoss > 0 && ask >= pos.StopLoss:
					closePx, note = pos.StopLoss, "stop_loss"
				case pos.TakeProfit > 0 && ask <= pos.TakeProfit:
					closePx, note = pos.TakeProfit, "take_profit"
				}
			}
			if note == "" {
				continue
			}
			closed = append(closed, p.closeLocked(a, ticket, closePx, note))
		}
	}
	return closed
}

func (p *Executor) applySpread(spec pairs.Spec, side string, px float64) float64 {
	half := spec.PriceOffset(p.spread / 2)
	if side == executor.SideBuy {
		return px + half
	}
	return px - half
}

// closeSidePrice 平仓对手价：多头看 bid，空头看 ask
func (p *Executor) closeSidePrice(pos *executor.Position) float64 {
	spec, _ := pairs.Lookup(pos.Symbol)
	px := p.prices[spec.Symbol]
	if px <= 0 {
		return 0
	}
	half := spec.PriceOffset(p.spread / 2)
	if pos.Side == executor.SideBuy {
		return px - half
	}
	return px + half
}

func (p *Executor) closeLocked(a *account, ticket string, closePx float64, note string) executor.Position {
	pos := a.open[ticket]
	delete(a.open, ticket)

	pos.ClosedAt = time.Now()
	pos.ClosePrice = closePx
	pos.CloseNote = note
	pos.Profit = profitOf(pos, closePx)
	a.balance += pos.Profit
	a.closed = append(a.closed, *pos)
	logger.Infof("paper 平仓 %s %s %.2f 手 @ %.5f (%s) 盈亏 %.2f", pos.Symbol, pos.Side, pos.Lots, closePx, note, pos.Profit)
	return *pos
}

func (p *Executor) unrealized(pos *executor.Position) float64 {
	px := p.closeSidePrice(pos)
	if px <= 0 {
		return 0
	}
	return profitOf(pos, px)
}

func profitOf(pos *executor.Position, closePx float64) float64 {
	spec, _ := pairs.Lookup(pos.Symbol)
	if spec.PipSize == 0 {
		return 0
	}
	pips := (closePx - pos.OpenPrice) / spec.PipSize
	if pos.Side == executor.SideSell {
		pips = -pips
	}
	return pips * spec.PipValuePerLot * pos.Lots
}
