package market

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCandles() Candles {
	return Candles{
		{OpenTime: 1000, CloseTime: 1999, Open: 1.1000, High: 1.1050, Low: 1.0980, Close: 1.1020, Volume: 100},
		{OpenTime: 2000, CloseTime: 2999, Open: 1.1020, High: 1.1080, Low: 1.1010, Close: 1.1060, Volume: 150},
		{OpenTime: 3000, CloseTime: 3999, Open: 1.1060, High: 1.1100, Low: 1.1040, Close: 1.1090, Volume: 120},
	}
}

func TestCandlesExtractors(t *testing.T) {
	cs := testCandles()
	assert.Equal(t, []float64{1.1050, 1.1080, 1.1100}, cs.Highs())
	assert.Equal(t, []float64{1.0980, 1.1010, 1.1040}, cs.Lows())
	assert.Equal(t, []float64{1.1020, 1.1060, 1.1090}, cs.Closes())

	high, low := cs.HighLow()
	assert.Equal(t, 1.1100, high)
	assert.Equal(t, 1.0980, low)

	last, ok := cs.Last()
	require.True(t, ok)
	assert.Equal(t, 1.1090, last.Close)
}

func TestCandlesTailCopies(t *testing.T) {
	cs := testCandles()
	tail := cs.Tail(2)
	require.Len(t, tail, 2)
	tail[0].Close = 9.9
	assert.Equal(t, 1.1060, cs[1].Close)
	assert.Len(t, cs.Tail(10), 3)
	assert.Nil(t, cs.Tail(0))
}

func TestSnapshotMentionsRangeAndChange(t *testing.T) {
	s := testCandles().Snapshot("1h", "向上")
	assert.Contains(t, s, "close≈1.109")
	assert.Contains(t, s, "1h")
	assert.Contains(t, s, "向上")
}

func TestConfirmFrames(t *testing.T) {
	assert.Equal(t, []string{"1h", "4h", "1d"}, ConfirmFrames(PeriodH1))
	assert.Equal(t, []string{"1M"}, ConfirmFrames(PeriodMN1))
}

func TestPeriodWeightFallback(t *testing.T) {
	assert.Equal(t, 0.30, PeriodWeight(PeriodD1))
	assert.Equal(t, 0.1, PeriodWeight("2h"))
}

func TestStyleByName(t *testing.T) {
	s := StyleByName("swing")
	assert.Equal(t, PeriodH4, s.Primary)
	assert.Equal(t, 2.0, s.StopFactor)

	fallback := StyleByName("unknown")
	assert.Equal(t, "day", fallback.Name)
}
