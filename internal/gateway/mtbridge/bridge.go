// Package mtbridge 通过 REST 桥对接 MT5 风格的经纪网关。
// 桥侧协议：JSON、Bearer token，/account/{id}、/positions、/orders、/orders/{id}。
// HTTP 状态码映射错误分类：408/429/5xx 与传输错误算 transient，
// 401/403 算账户级 fatal，其余 4xx 算订单级 fatal。
package mtbridge

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"kestrel/internal/executor"
	"kestrel/internal/logger"
)

type Bridge struct {
	client *resty.Client
}

func New(baseURL, token string, timeout time.Duration) (*Bridge, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("executor.bridge.url 不能为空")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	if token != "" {
		c.SetAuthToken(token)
	}
	return &Bridge{client: c}, nil
}

func (b *Bridge) Name() string { return "bridge" }

type apiError struct {
	Error string `json:"error"`
}

type orderResponse struct {
	Ticket    string  `json:"ticket"`
	Status    string  `json:"status"`
	FillPrice float64 `json:"fill_price"`
	FilledAt  int64   `json:"filled_at"` // 毫秒
}

type accountResponse struct {
	ID            string  `json:"id"`
	Balance       float64 `json:"balance"`
	Equity        float64 `json:"equity"`
	Currency      string  `json:"currency"`
	OpenPositions int     `json:"open_positions"`
}

type positionResponse struct {
	Ticket     string  `json:"ticket"`
	OrderID    string  `json:"order_id"`
	Account    string  `json:"account"`
	Symbol     string  `json:"symbol"`
	Side       string  `json:"side"`
	Lots       float64 `json:"lots"`
	OpenPrice  float64 `json:"open_price"`
	StopLoss   float64 `json:"stop_loss"`
	TakeProfit float64 `json:"take_profit"`
	OpenedAt   int64   `json:"opened_at"`
	Profit     float64 `json:"profit"`
}

func (b *Bridge) Submit(ctx context.Context, order executor.Order) (executor.Result, error) {
	var out orderResponse
	var apiErr apiError
	resp, err := b.client.R().
		SetContext(ctx).
		SetBody(order).
		SetResult(&out).
		SetError(&apiErr).
		Post("/orders")
	if err != nil {
		return executor.Result{}, executor.Transient("提交订单到桥失败", err)
	}
	if resp.IsError() {
		return executor.Result{}, classify(resp.StatusCode(), "提交订单被拒", apiErr)
	}
	if out.Ticket == "" {
		return executor.Result{}, executor.FatalOrder("桥未返回 ticket", nil)
	}
	status := out.Status
	if status == "" {
		status = "filled"
	}
	logger.Debugf("bridge 成交 %s %s: ticket=%s fill=%.5f", order.Symbol, order.Side, out.Ticket, out.FillPrice)
	return executor.Result{
		OrderID:   order.ID,
		Ticket:    out.Ticket,
		Status:    status,
		FillPrice: out.FillPrice,
		FilledAt:  millis(out.FilledAt),
	}, nil
}

func (b *Bridge) Account(ctx context.Context, accountID string) (executor.AccountState, error) {
	var out accountResponse
	var apiErr apiError
	resp, err := b.client.R().
		SetContext(ctx).
		SetResult(&out).
		SetError(&apiErr).
		Get("/account/" + accountID)
	if err != nil {
		return executor.AccountState{}, executor.Transient("查询账户失败", err)
	}
	if resp.IsError() {
		return executor.AccountState{}, classify(resp.StatusCode(), "查询账户被拒", apiErr)
	}
	id := out.ID
	if id == "" {
		id = accountID
	}
	return executor.AccountState{
		ID: id, Balance: out.Balance, Equity: out.Equity,
		Currency: out.Currency, OpenPositions: out.OpenPositions,
	}, nil
}

func (b *Bridge) Positions(ctx context.Context, accountID string) ([]executor.Position, error) {
	var out []positionResponse
	var apiErr apiError
	resp, err := b.client.R().
		SetContext(ctx).
		SetQueryParam("account", accountID).
		SetResult(&out).
		SetError(&apiErr).
		Get("/positions")
	if err != nil {
		return nil, executor.Transient("查询持仓失败", err)
	}
	if resp.IsError() {
		return nil, classify(resp.StatusCode(), "查询持仓被拒", apiErr)
	}
	positions := make([]executor.Position, 0, len(out))
	for _, p := range out {
		acct := p.Account
		if acct == "" {
			acct = accountID
		}
		positions = append(positions, executor.Position{
			Ticket: p.Ticket, OrderID: p.OrderID, Account: acct,
			Symbol: p.Symbol, Side: p.Side, Lots: p.Lots,
			OpenPrice: p.OpenPrice, StopLoss: p.StopLoss, TakeProfit: p.TakeProfit,
			OpenedAt: millis(p.OpenedAt), Profit: p.Profit,
		})
	}
	return positions, nil
}

// Cancel 404 表示桥上已无此单，按"没取消到"处理而非报错。
func (b *Bridge) Cancel(ctx context.Context, orderID string) (bool, error) {
	var apiErr apiError
	resp, err := b.client.R().
		SetContext(ctx).
		SetError(&apiErr).
		Delete("/orders/" + orderID)
	if err != nil {
		return false, executor.Transient("撤单请求失败", err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return false, nil
	}
	if resp.IsError() {
		return false, classify(resp.StatusCode(), "撤单被拒", apiErr)
	}
	return true, nil
}

func classify(code int, action string, apiErr apiError) error {
	msg := strings.TrimSpace(apiErr.Error)
	if msg == "" {
		msg = http.StatusText(code)
	}
	full := fmt.Sprintf("%s (HTTP %d): %s", action, code, msg)
	switch {
	case code == http.StatusRequestTimeout || code == http.StatusTooManyRequests || code >= 500:
		return executor.Transient(full, nil)
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return executor.FatalAccount(full, nil)
	default:
		return executor.FatalOrder(full, nil)
	}
}

func millis(ms int64) time.Time {
	if ms <= 0 {
		return time.Now()
	}
	return time.UnixMilli(ms)
}
