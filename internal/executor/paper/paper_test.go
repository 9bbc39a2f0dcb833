package paper

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kestrel/internal/executor"
)

func newSeeded(t *testing.T) *Executor {
	t.Helper()
	p := New(1.0)
	p.Seed("acct-1", 10000, "USD")
	return p
}

func TestSubmitFillsWithHalfSpread(t *testing.T) {
	p := newSeeded(t)
	p.OnPrice("EURUSD", 1.1000)

	res, err := p.Submit(context.Background(), executor.Order{
		ID: "o1", Account: "acct-1", Symbol: "EURUSD", Side: executor.SideBuy,
		Lots: 0.10, StopLoss: 1.0980, TakeProfit: 1.1040,
	})
	require.NoError(t, err)
	assert.Equal(t, "filled", res.Status)
	assert.InDelta(t, 1.10005, res.FillPrice, 1e-9)
	assert.NotEmpty(t, res.Ticket)

	st, err := p.Account(context.Background(), "acct-1")
	require.NoError(t, err)
	assert.Equal(t, 1, st.OpenPositions)
	assert.InDelta(t, 10000, st.Balance, 1e-9)

	positions, err := p.Positions(context.Background(), "acct-1")
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, "o1", positions[0].OrderID)
}

func TestOnPriceTriggersStopLoss(t *testing.T) {
	p := newSeeded(t)
	p.OnPrice("EURUSD", 1.1000)
	_, err := p.Submit(context.Background(), executor.Order{
		ID: "o1", Account: "acct-1", Symbol: "EURUSD", Side: executor.SideBuy,
		Lots: 0.10, StopLoss: 1.0980, TakeProfit: 1.1040,
	})
	require.NoError(t, err)

	// 还没碰到止损，不应平仓
	assert.Empty(t, p.OnPrice("EURUSD", 1.0990))

	closed := p.OnPrice("EURUSD", 1.0979)
	require.Len(t, closed, 1)
	assert.Equal(t, "stop_loss", closed[0].CloseNote)
	assert.InDelta(t, 1.0980, closed[0].ClosePrice, 1e-9)
	// (1.0980-1.10005)/0.0001 = -20.5 pips × $10 × 0.1 手
	assert.InDelta(t, -20.5, closed[0].Profit, 1e-6)

	st, err := p.Account(context.Background(), "acct-1")
	require.NoError(t, err)
	assert.InDelta(t, 9979.5, st.Balance, 1e-6)
	assert.Equal(t, 0, st.OpenPositions)
	require.Len(t, p.Closed("acct-1"), 1)
}

func TestOnPriceTriggersTakeProfitForSell(t *testing.T) {
	p := newSeeded(t)
	p.OnPrice("GBPUSD", 1.2000)
	_, err := p.Submit(context.Background(), executor.Order{
		ID: "o1", Account: "acct-1", Symbol: "GBPUSD", Side: executor.SideSell,
		Lots: 0.20, StopLoss: 1.2040, TakeProfit: 1.1960,
	})
	require.NoError(t, err)

	closed := p.OnPrice("GBPUSD", 1.1958)
	require.Len(t, closed, 1)
	assert.Equal(t, "take_profit", closed[0].CloseNote)
	// 开仓 1.19995，止盈 1.1960 → 39.5 pips × $10 × 0.2 手
	assert.InDelta(t, 79.0, closed[0].Profit, 1e-6)
}

func TestAccountEquityIncludesUnrealized(t *testing.T) {
	p := newSeeded(t)
	p.OnPrice("EURUSD", 1.1000)
	_, err := p.Submit(context.Background(), executor.Order{
		ID: "o1", Account: "acct-1", Symbol: "EURUSD", Side: executor.SideBuy,
		Lots: 0.10, StopLoss: 1.0980, TakeProfit: 1.1040,
	})
	require.NoError(t, err)

	p.OnPrice("EURUSD", 1.1010)
	st, err := p.Account(context.Background(), "acct-1")
	require.NoError(t, err)
	// bid 1.10095 − 开仓 1.10005 = 9 pips → +9.0
	assert.InDelta(t, 10009.0, st.Equity, 1e-6)
	assert.InDelta(t, 10000.0, st.Balance, 1e-9)
}

func TestSubmitRejectsBadInput(t *testing.T) {
	p := newSeeded(t)
	p.OnPrice("EURUSD", 1.1000)

	_, err := p.Submit(context.Background(), executor.Order{
		ID: "o1", Account: "ghost", Symbol: "EURUSD", Side: executor.SideBuy, Lots: 0.1,
	})
	assert.True(t, executor.IsAccountFatal(err))

	_, err = p.Submit(context.Background(), executor.Order{
		ID: "o2", Account: "acct-1", Symbol: "EURUSD", Side: "UP", Lots: 0.1,
	})
	require.Error(t, err)
	assert.False(t, executor.IsTransient(err))

	_, err = p.Submit(context.Background(), executor.Order{
		ID: "o3", Account: "acct-1", Symbol: "USDCHF", Side: executor.SideBuy, Lots: 0.1,
	})
	assert.True(t, executor.IsTransient(err), "缺报价应可重试")
}

func TestFailNextDrivesRetryLoop(t *testing.T) {
	p := newSeeded(t)
	p.OnPrice("EURUSD", 1.1000)
	p.FailNext(
		executor.Transient("网关忙", nil),
		executor.Transient("超时", nil),
	)

	res, attempts, err := executor.SubmitWithRetry(context.Background(), p, executor.Order{
		ID: "o1", Account: "acct-1", Symbol: "EURUSD", Side: executor.SideBuy,
		Lots: 0.33, StopLoss: 1.0970, TakeProfit: 1.1060,
	}, executor.RetryPolicy{MaxAttempts: 3, Backoff: time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, "filled", res.Status)
}

func TestFailNextFatalStopsRetry(t *testing.T) {
	p := newSeeded(t)
	p.OnPrice("EURUSD", 1.1000)
	p.FailNext(executor.FatalOrder("margin insufficient", nil))

	_, attempts, err := executor.SubmitWithRetry(context.Background(), p, executor.Order{
		ID: "o1", Account: "acct-1", Symbol: "EURUSD", Side: executor.SideBuy, Lots: 0.1,
	}, executor.RetryPolicy{MaxAttempts: 3, Backoff: time.Millisecond})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)

	// 注入队列已清空，下一单正常成交
	res, err := p.Submit(context.Background(), executor.Order{
		ID: "o2", Account: "acct-1", Symbol: "EURUSD", Side: executor.SideBuy, Lots: 0.1,
	})
	require.NoError(t, err)
	assert.Equal(t, "filled", res.Status)
}

func TestCancelClosesByOrderID(t *testing.T) {
	p := newSeeded(t)
	p.OnPrice("EURUSD", 1.1000)
	_, err := p.Submit(context.Background(), executor.Order{
		ID: "o1", Account: "acct-1", Symbol: "EURUSD", Side: executor.SideBuy, Lots: 0.1,
	})
	require.NoError(t, err)

	ok, err := p.Cancel(context.Background(), "o1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = p.Cancel(context.Background(), "o1")
	require.NoError(t, err)
	assert.False(t, ok)

	closed := p.Closed("acct-1")
	require.Len(t, closed, 1)
	assert.Equal(t, "cancelled", closed[0].CloseNote)
}
