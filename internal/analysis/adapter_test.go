package analysis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kestrel/internal/levels"
	"kestrel/internal/market"
)

type stubEngine struct {
	name string
	rec  Recommendation
	err  error
}

func (s stubEngine) Name() string { return s.name }

func (s stubEngine) Analyze(context.Context, Input) (Recommendation, error) {
	return s.rec, s.err
}

func adapterInput(t *testing.T) Input {
	t.Helper()
	return Input{
		Spec:    mustSpec(t, "EURUSD"),
		Style:   market.StyleByName("day"),
		Primary: "1h",
		Periods: []string{"1h"},
		Current: 1.1000,
		Levels: []levels.Level{
			{Price: 1.0980, Kind: levels.KindPivotS1, Support: true, Strength: 80, Label: "S1"},
			{Price: 1.1060, Kind: levels.KindSwingHigh, Support: false, Strength: 70},
		},
	}
}

func TestNewAdapterRequiresEngines(t *testing.T) {
	_, err := NewAdapter(nil, nil, nil, 0, false)
	require.Error(t, err)
}

func TestAdapterRefinesUnpinnedStops(t *testing.T) {
	lv, err := levels.NewEngine(nil, 0, 0)
	require.NoError(t, err)

	eng := stubEngine{name: "stub", rec: Recommendation{Direction: DirectionBuy, Confidence: 70}}
	a, err := NewAdapter([]Engine{eng}, nil, lv, time.Second, false)
	require.NoError(t, err)

	rec, err := a.Evaluate(context.Background(), adapterInput(t))
	require.NoError(t, err)

	assert.Equal(t, DirectionBuy, rec.Direction)
	assert.Equal(t, "EURUSD", rec.Pair)
	assert.Equal(t, "day", rec.Style)
	assert.Equal(t, AlignmentMixed, rec.Alignment)
	assert.InDelta(t, 1.0980, rec.StopLoss.Price, 1e-9)
	assert.InDelta(t, 20, rec.StopLoss.Pips, 1e-9)
	assert.Equal(t, "S1", rec.StopLoss.Description)
	assert.InDelta(t, 1.1060, rec.TakeProfit.Price, 1e-9)
	assert.InDelta(t, 60, rec.TakeProfit.Pips, 1e-9)
	assert.InDelta(t, 3.0, rec.RiskReward, 1e-9)
}

func TestAdapterKeepsPinnedStops(t *testing.T) {
	lv, err := levels.NewEngine(nil, 0, 0)
	require.NoError(t, err)

	eng := stubEngine{name: "stub", rec: Recommendation{
		Direction: DirectionSell, Confidence: 65,
		StopLoss:   PricePips{Price: 1.1033, Pips: 33, Description: "model"},
		TakeProfit: PricePips{Price: 1.0934, Pips: 66, Description: "model"},
	}}
	a, err := NewAdapter([]Engine{eng}, nil, lv, time.Second, false)
	require.NoError(t, err)

	rec, err := a.Evaluate(context.Background(), adapterInput(t))
	require.NoError(t, err)
	assert.InDelta(t, 1.1033, rec.StopLoss.Price, 1e-9)
	assert.Equal(t, "model", rec.StopLoss.Description)
	assert.InDelta(t, 2.0, rec.RiskReward, 1e-9)
}

func TestAdapterHoldNeedsNoLevels(t *testing.T) {
	eng := stubEngine{name: "stub", rec: Recommendation{Direction: DirectionHold, Confidence: 40}}
	a, err := NewAdapter([]Engine{eng}, nil, nil, time.Second, false)
	require.NoError(t, err)

	rec, err := a.Evaluate(context.Background(), adapterInput(t))
	require.NoError(t, err)
	assert.True(t, rec.Hold())
	assert.Zero(t, rec.StopLoss.Pips)
	assert.Equal(t, "EURUSD", rec.Pair)
}

func TestAdapterAllEnginesFailed(t *testing.T) {
	a, err := NewAdapter([]Engine{
		stubEngine{name: "a", err: errors.New("timeout")},
		stubEngine{name: "b", err: errors.New("bad json")},
	}, nil, nil, time.Second, false)
	require.NoError(t, err)

	_, err = a.Evaluate(context.Background(), adapterInput(t))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestAdapterRejectsInvalidAggregate(t *testing.T) {
	// 没有水平位引擎兜底，方向建议缺止损就该被拦下
	eng := stubEngine{name: "stub", rec: Recommendation{Direction: DirectionBuy, Confidence: 80}}
	a, err := NewAdapter([]Engine{eng}, nil, nil, time.Second, false)
	require.NoError(t, err)

	in := adapterInput(t)
	in.Levels = nil
	_, err = a.Evaluate(context.Background(), in)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestAdapterFirstWinSkipsFailedEngine(t *testing.T) {
	ok := stubEngine{name: "b", rec: Recommendation{Direction: DirectionHold, Confidence: 55, Reasoning: "quiet tape"}}
	a, err := NewAdapter([]Engine{stubEngine{name: "a", err: errors.New("boom")}, ok}, nil, nil, time.Second, false)
	require.NoError(t, err)

	rec, err := a.Evaluate(context.Background(), adapterInput(t))
	require.NoError(t, err)
	assert.Equal(t, "quiet tape", rec.Reasoning)
}
