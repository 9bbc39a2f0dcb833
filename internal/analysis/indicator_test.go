package analysis

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kestrel/internal/market"
	"kestrel/internal/pairs"
)

func mustSpec(t *testing.T, symbol string) pairs.Spec {
	t.Helper()
	s, ok := pairs.Lookup(symbol)
	require.True(t, ok)
	return s
}

// trendSeries 单调趋势序列，step 为每根的收盘增量。
func trendSeries(n int, start, step float64) market.Candles {
	out := make(market.Candles, n)
	for i := range out {
		closePx := start + step*float64(i)
		openPx := closePx - step/2
		hi := math.Max(openPx, closePx) + math.Abs(step)
		lo := math.Min(openPx, closePx) - math.Abs(step)
		out[i] = market.Candle{
			OpenTime: int64(i) * 3_600_000, CloseTime: int64(i+1)*3_600_000 - 1,
			Open: openPx, High: hi, Low: lo, Close: closePx, Volume: 100,
		}
	}
	return out
}

func TestIndicatorEngineAlignedUptrend(t *testing.T) {
	in := Input{
		Spec:    mustSpec(t, "EURUSD"),
		Style:   market.StyleByName("day"),
		Primary: "1h",
		Periods: []string{"1h", "4h"},
		Series: map[string]market.Candles{
			"1h": trendSeries(80, 1.0800, 0.0004),
			"4h": trendSeries(80, 1.0500, 0.0010),
		},
	}
	rec, err := NewIndicatorEngine().Analyze(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, DirectionBuy, rec.Direction)
	assert.Equal(t, AlignmentAligned, rec.Alignment)
	assert.InDelta(t, 100, rec.Confluence, 0.1)
	assert.Equal(t, 100, rec.Confidence)
	assert.Equal(t, "EURUSD", rec.Pair)
	assert.Equal(t, "indicator", rec.Engine)
	assert.Greater(t, rec.EntryZone.Max, rec.EntryZone.Min)
}

func TestIndicatorEngineConflictingTimeframes(t *testing.T) {
	in := Input{
		Spec:    mustSpec(t, "EURUSD"),
		Style:   market.StyleByName("day"),
		Primary: "1h",
		Periods: []string{"1h", "4h"},
		Series: map[string]market.Candles{
			"1h": trendSeries(80, 1.0800, 0.0004),
			"4h": trendSeries(80, 1.1500, -0.0010),
		},
	}
	rec, err := NewIndicatorEngine().Analyze(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, DirectionSell, rec.Direction)
	assert.Equal(t, AlignmentConflicting, rec.Alignment)
}

func TestIndicatorEngineInsufficientHistory(t *testing.T) {
	in := Input{
		Spec:    mustSpec(t, "EURUSD"),
		Style:   market.StyleByName("day"),
		Primary: "1h",
		Periods: []string{"1h"},
		Series:  map[string]market.Candles{"1h": trendSeries(30, 1.08, 0.0004)},
	}
	_, err := NewIndicatorEngine().Analyze(context.Background(), in)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestScoreConfluencePortsWeightedVote(t *testing.T) {
	sc := scoreConfluence(map[string]string{
		"1h": "bullish",
		"4h": "bullish",
		"1d": "bearish",
	})
	assert.Equal(t, "bullish", sc.Direction)
	assert.InDelta(t, 60.0, sc.Confidence, 0.1)
	assert.InDelta(t, 66.7, sc.Confluence, 0.1)
	assert.InDelta(t, 60.0, sc.BullishPct, 0.1)
	assert.InDelta(t, 40.0, sc.BearishPct, 0.1)
	assert.Equal(t, AlignmentConflicting, alignmentOf(sc))
}

func TestScoreConfluenceNeutralWhenEven(t *testing.T) {
	sc := scoreConfluence(map[string]string{
		"15m": "bullish",
		"30m": "bearish",
	})
	assert.Equal(t, "neutral", sc.Direction)
	assert.InDelta(t, 50.0, sc.Confidence, 0.1)
	assert.Equal(t, AlignmentMixed, alignmentOf(sc))
}

func TestAlignmentThresholds(t *testing.T) {
	assert.Equal(t, AlignmentAligned, alignmentOf(confluenceScore{
		Direction: "bullish", Confluence: 100, BullishPct: 100,
	}))
	assert.Equal(t, AlignmentConflicting, alignmentOf(confluenceScore{
		Direction: "bullish", Confluence: 60, BullishPct: 55, BearishPct: 45,
	}))
	assert.Equal(t, AlignmentMixed, alignmentOf(confluenceScore{
		Direction: "bullish", Confluence: 66.7, BullishPct: 70, BearishPct: 10,
	}))
	assert.Equal(t, AlignmentMixed, alignmentOf(confluenceScore{Direction: "neutral"}))
}
