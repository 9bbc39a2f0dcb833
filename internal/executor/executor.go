// Package executor 定义下单通道的统一契约。实现方只负责忠实转达
// 经纪端的结果，重试节奏、要不要继续，由调用方按错误分类决定。
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// Order 一笔待提交的市价单
type Order struct {
	ID         string  `json:"id"` // 调用方生成，贯穿重试与留痕
	Account    string  `json:"account"`
	Symbol     string  `json:"symbol"`
	Side       string  `json:"side"`
	Lots       float64 `json:"lots"`
	EntryPrice float64 `json:"entry_price,omitempty"` // 0 表示按市价成交
	StopLoss   float64 `json:"stop_loss"`
	TakeProfit float64 `json:"take_profit"`
	Comment    string  `json:"comment,omitempty"`
}

// Result 成交回执
type Result struct {
	OrderID   string    `json:"order_id"`
	Ticket    string    `json:"ticket"`
	Status    string    `json:"status"`
	FillPrice float64   `json:"fill_price"`
	FilledAt  time.Time `json:"filled_at"`
}

// Position 在场仓位
type Position struct {
	Ticket     string    `json:"ticket"`
	OrderID    string    `json:"order_id,omitempty"`
	Account    string    `json:"account"`
	Symbol     string    `json:"symbol"`
	Side       string    `json:"side"`
	Lots       float64   `json:"lots"`
	OpenPrice  float64   `json:"open_price"`
	StopLoss   float64   `json:"stop_loss"`
	TakeProfit float64   `json:"take_profit"`
	OpenedAt   time.Time `json:"opened_at"`
	ClosedAt   time.Time `json:"closed_at,omitempty"`
	ClosePrice float64   `json:"close_price,omitempty"`
	Profit     float64   `json:"profit"`
	CloseNote  string    `json:"close_note,omitempty"`
}

func (p Position) Open() bool { return p.ClosedAt.IsZero() }

// AccountState 账户快照
type AccountState struct {
	ID            string  `json:"id"`
	Balance       float64 `json:"balance"`
	Equity        float64 `json:"equity"`
	Currency      string  `json:"currency"`
	OpenPositions int     `json:"open_positions"`
}

// Executor 下单通道
type Executor interface {
	Submit(ctx context.Context, order Order) (Result, error)
	Account(ctx context.Context, accountID string) (AccountState, error)
	Positions(ctx context.Context, accountID string) ([]Position, error)
	Cancel(ctx context.Context, orderID string) (bool, error)
	Name() string
}

// 错误分类。transient 可按策略重试；fatal 不重试，
// 其中账户级 fatal（鉴权失效等）要上抛到管理面处理。
const (
	KindTransient = "transient"
	KindFatal     = "fatal"
)

type Error struct {
	Kind         string
	AccountLevel bool
	Msg          string
	Err          error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func Transient(msg string, err error) *Error {
	return &Error{Kind: KindTransient, Msg: msg, Err: err}
}

func FatalOrder(msg string, err error) *Error {
	return &Error{Kind: KindFatal, Msg: msg, Err: err}
}

func FatalAccount(msg string, err error) *Error {
	return &Error{Kind: KindFatal, AccountLevel: true, Msg: msg, Err: err}
}

// IsTransient 超时也算 transient，哪怕实现没来得及归类
func IsTransient(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == KindTransient
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return false
}

func IsAccountFatal(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindFatal && e.AccountLevel
}

// RetryPolicy 固定间隔重试
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.Backoff <= 0 {
		p.Backoff = 500 * time.Millisecond
	}
	return p
}

// SubmitWithRetry 按策略重试 transient 失败，返回实际尝试次数。
// 被经纪端明确拒绝（fatal）立即停，绝不重复提交。
func SubmitWithRetry(ctx context.Context, exec Executor, order Order, policy RetryPolicy) (Result, int, error) {
	p := policy.normalized()
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		res, err := exec.Submit(ctx, order)
		if err == nil {
			return res, attempt, nil
		}
		lastErr = err
		if !IsTransient(err) || attempt == p.MaxAttempts {
			return Result{}, attempt, lastErr
		}
		select {
		case <-ctx.Done():
			return Result{}, attempt, ctx.Err()
		case <-time.After(p.Backoff):
		}
	}
	return Result{}, p.MaxAttempts, lastErr
}
