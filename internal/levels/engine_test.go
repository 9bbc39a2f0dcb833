package levels

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kestrel/internal/market"
	"kestrel/internal/pairs"
)

func mustSpec(t *testing.T, symbol string) pairs.Spec {
	t.Helper()
	spec, ok := pairs.Lookup(symbol)
	require.True(t, ok)
	return spec
}

func bar(o, h, l, c, v float64) market.Candle {
	return market.Candle{Open: o, High: h, Low: l, Close: c, Volume: v}
}

func flatSeries(n int, o, h, l, c float64) market.Candles {
	out := make(market.Candles, n)
	for i := range out {
		out[i] = bar(o, h, l, c, 100)
		out[i].OpenTime = int64(i) * 3_600_000
		out[i].CloseTime = int64(i+1)*3_600_000 - 1
	}
	return out
}

type staticStrategy struct {
	id  string
	out []Level
}

func (s staticStrategy) ID() string            { return s.id }
func (s staticStrategy) Compute(Input) []Level { return append([]Level(nil), s.out...) }

func TestNewEngineRejectsUnknownStrategy(t *testing.T) {
	_, err := NewEngine([]string{"pivot", "nope"}, 5, 14)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope")
}

func TestNewEngineResolvesRegisteredStrategies(t *testing.T) {
	e, err := NewEngine([]string{"pivot", "swing", "fibonacci", "round_number", "volume_profile"}, 0, 0)
	require.NoError(t, err)
	assert.Len(t, e.strategies, 5)
	assert.Equal(t, 5.0, e.tolerancePips)
	assert.Equal(t, 14, e.atrPeriod)
}

func TestMergeSimilarGroupsWithinTolerance(t *testing.T) {
	in := []Level{
		{Price: 1.1000, Kind: KindSwingLow, Support: true, Touches: 1, FirstTouch: 8, LastTouch: 10, PinBar: true, Context: ContextDaily},
		{Price: 1.10030, Kind: KindRoundNumber, Support: true, Touches: 2, FirstTouch: 3, LastTouch: 20, Context: ContextHourly},
		{Price: 1.1050, Kind: KindPivotS1, Support: true, Touches: 1, LastTouch: 5, Context: ContextDaily},
	}
	merged := mergeSimilar(in, 0.0005)
	require.Len(t, merged, 2)

	near := merged[0]
	assert.InDelta(t, 1.10015, near.Price, 1e-9)
	assert.Equal(t, KindSwingLow, near.Kind)
	assert.True(t, near.Support)
	assert.Equal(t, 3, near.Touches)
	assert.Equal(t, 3, near.FirstTouch)
	assert.Equal(t, 20, near.LastTouch)
	assert.True(t, near.PinBar)
	assert.Equal(t, ContextDaily, near.Context)

	assert.InDelta(t, 1.1050, merged[1].Price, 1e-9)
}

func TestMergeSimilarLeavesDistinctAlone(t *testing.T) {
	in := []Level{
		{Price: 1.1000, Kind: KindPivot},
		{Price: 1.1100, Kind: KindPivotR1},
		{Price: 1.0900, Kind: KindPivotS1},
	}
	merged := mergeSimilar(in, 0.0005)
	require.Len(t, merged, 3)
	assert.InDelta(t, 1.0900, merged[0].Price, 1e-9)
	assert.InDelta(t, 1.1100, merged[2].Price, 1e-9)
}

func TestComputeMergesScoresAndSorts(t *testing.T) {
	cs := flatSeries(30, 1.1000, 1.1010, 1.0990, 1.1005)
	spec := mustSpec(t, "EURUSD")
	e := &Engine{
		strategies: []Strategy{staticStrategy{id: "static", out: []Level{
			{Price: 1.0995, Kind: KindSwingLow, Support: true, LastTouch: 29},
			{Price: 1.0997, Kind: KindRoundNumber, Support: true, LastTouch: 12},
			{Price: 1.2000, Kind: KindSwingHigh, Support: false, LastTouch: 2},
		}}},
		tolerancePips: 5,
		atrPeriod:     14,
	}
	out := e.Compute(cs, spec, 1.1005)
	require.Len(t, out, 2)

	near := out[0]
	assert.InDelta(t, 1.0996, near.Price, 1e-9)
	assert.Equal(t, KindSwingLow, near.Kind)
	assert.Equal(t, 30, near.Touches)
	assert.InDelta(t, 9.0, near.DistancePips, 0.01)
	assert.NotEmpty(t, near.Class)

	far := out[1]
	assert.Equal(t, 0, far.Touches)
	assert.Greater(t, near.Strength, far.Strength)
}

func TestComputeEmptyInput(t *testing.T) {
	e := &Engine{strategies: []Strategy{staticStrategy{id: "static"}}, tolerancePips: 5, atrPeriod: 14}
	assert.Nil(t, e.Compute(nil, mustSpec(t, "EURUSD"), 1.1))
}

func TestSelectStopTakePicksNearestValidLevels(t *testing.T) {
	spec := mustSpec(t, "EURUSD")
	style := market.StyleByName("day")
	lvls := []Level{
		{Price: 1.0995, Kind: KindRoundNumber, Support: true, Strength: 90},
		{Price: 1.0980, Kind: KindPivotS1, Support: true, Strength: 50, Label: "S1"},
		{Price: 1.0950, Kind: KindSwingLow, Support: true, Strength: 95},
		{Price: 1.1030, Kind: KindPivotR1, Support: false, Strength: 60},
		{Price: 1.1055, Kind: KindSwingHigh, Support: false, Strength: 70},
		{Price: 1.1120, Kind: KindWeeklyHigh, Support: false, Strength: 80},
	}
	e := &Engine{}
	st := e.SelectStopTake(lvls, "buy", spec, style, 1.1000)

	require.NotNil(t, st.Stop.Level)
	assert.InDelta(t, 1.0980, st.Stop.Price, 1e-9)
	assert.InDelta(t, 20, st.Stop.Pips, 0.01)
	assert.Equal(t, "S1", st.Stop.Description)

	require.NotNil(t, st.Take.Level)
	assert.InDelta(t, 1.1055, st.Take.Price, 1e-9)
	assert.InDelta(t, 55, st.Take.Pips, 0.01)
	assert.InDelta(t, 2.75, st.RiskReward(), 0.01)
}

func TestSelectStopTakeSellMirrorsSides(t *testing.T) {
	spec := mustSpec(t, "EURUSD")
	style := market.StyleByName("day")
	lvls := []Level{
		{Price: 1.1020, Kind: KindPivotR1, Support: false, Strength: 60},
		{Price: 1.1120, Kind: KindWeeklyHigh, Support: false, Strength: 90},
		{Price: 1.0950, Kind: KindSwingLow, Support: true, Strength: 70},
		{Price: 1.0920, Kind: KindWeeklyLow, Support: true, Strength: 80},
	}
	e := &Engine{}
	st := e.SelectStopTake(lvls, "sell", spec, style, 1.1000)

	require.NotNil(t, st.Stop.Level)
	assert.InDelta(t, 1.1020, st.Stop.Price, 1e-9)
	assert.InDelta(t, 20, st.Stop.Pips, 0.01)

	require.NotNil(t, st.Take.Level)
	assert.InDelta(t, 1.0950, st.Take.Price, 1e-9)
	assert.InDelta(t, 50, st.Take.Pips, 0.01)
}

func TestSelectStopTakeSkipsTooTightAndTooWide(t *testing.T) {
	spec := mustSpec(t, "EURUSD")
	style := market.StyleByName("day")
	lvls := []Level{
		{Price: 1.0997, Kind: KindSwingLow, Support: true, Strength: 99},
		{Price: 1.0880, Kind: KindWeeklyLow, Support: true, Strength: 99},
		{Price: 1.0940, Kind: KindPivotS2, Support: true, Strength: 40},
	}
	e := &Engine{}
	st := e.SelectStopTake(lvls, "buy", spec, style, 1.1000)

	require.NotNil(t, st.Stop.Level)
	assert.InDelta(t, 1.0940, st.Stop.Price, 1e-9)
	assert.InDelta(t, 60, st.Stop.Pips, 0.01)
}

func TestSelectStopTakeTieBreaksOnStrengthThenRecency(t *testing.T) {
	spec := mustSpec(t, "EURUSD")
	style := market.StyleByName("day")
	e := &Engine{}

	byStrength := []Level{
		{Price: 1.0980, Kind: KindRoundNumber, Support: true, Strength: 40, LastTouch: 5},
		{Price: 1.0980, Kind: KindSwingLow, Support: true, Strength: 70, LastTouch: 5},
	}
	st := e.SelectStopTake(byStrength, "buy", spec, style, 1.1000)
	require.NotNil(t, st.Stop.Level)
	assert.Equal(t, KindSwingLow, st.Stop.Level.Kind)

	byRecency := []Level{
		{Price: 1.0980, Kind: KindSwingLow, Support: true, Strength: 70, LastTouch: 3},
		{Price: 1.0980, Kind: KindPivotS1, Support: true, Strength: 70, LastTouch: 9},
	}
	st = e.SelectStopTake(byRecency, "buy", spec, style, 1.1000)
	require.NotNil(t, st.Stop.Level)
	assert.Equal(t, KindPivotS1, st.Stop.Level.Kind)

	reversed := []Level{byRecency[1], byRecency[0]}
	st2 := e.SelectStopTake(reversed, "buy", spec, style, 1.1000)
	require.NotNil(t, st2.Stop.Level)
	assert.Equal(t, st.Stop.Level.Kind, st2.Stop.Level.Kind)
}

func TestSelectStopTakeDefaultFallback(t *testing.T) {
	spec := mustSpec(t, "EURUSD")
	style := market.StyleByName("day")
	e := &Engine{}
	st := e.SelectStopTake(nil, "buy", spec, style, 1.1000)

	assert.Nil(t, st.Stop.Level)
	assert.Equal(t, DefaultFallback, st.Stop.Description)
	assert.InDelta(t, 30, st.Stop.Pips, 0.01)
	assert.InDelta(t, 1.0970, st.Stop.Price, 1e-9)

	assert.Nil(t, st.Take.Level)
	assert.Equal(t, DefaultFallback, st.Take.Description)
	assert.InDelta(t, 60, st.Take.Pips, 0.01)
	assert.InDelta(t, 1.1060, st.Take.Price, 1e-9)
	assert.InDelta(t, style.RiskReward, st.RiskReward(), 0.01)
}

func TestSelectStopTakeStyleScalesDistances(t *testing.T) {
	spec := mustSpec(t, "EURUSD")
	swing := market.StyleByName("swing")
	e := &Engine{}
	st := e.SelectStopTake(nil, "sell", spec, swing, 1.1000)

	assert.Equal(t, DefaultFallback, st.Stop.Description)
	assert.InDelta(t, 60, st.Stop.Pips, 0.01)
	assert.InDelta(t, 1.1060, st.Stop.Price, 1e-9)
	assert.InDelta(t, 120, st.Take.Pips, 0.01)
	assert.InDelta(t, 1.0880, st.Take.Price, 1e-9)
}
