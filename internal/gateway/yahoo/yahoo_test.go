package yahoo

import (
	"testing"
	"time"

	"github.com/piquette/finance-go/datetime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kestrel/internal/market"
)

func TestSymbolMapping(t *testing.T) {
	assert.Equal(t, "EURUSD=X", Symbol("EURUSD"))
	assert.Equal(t, "EURUSD=X", Symbol("eur/usd"))
	assert.Equal(t, "USDJPY=X", Symbol("usdjpy"))
	assert.Equal(t, "GC=F", Symbol("XAUUSD"))
	assert.Equal(t, "SI=F", Symbol("xag-usd"))
}

func TestIntervalForMapsAllPeriods(t *testing.T) {
	cases := []struct {
		period string
		iv     datetime.Interval
		group  int
	}{
		{market.PeriodM1, datetime.OneMin, 1},
		{market.PeriodM5, datetime.FiveMins, 1},
		{market.PeriodM15, datetime.FifteenMins, 1},
		{market.PeriodM30, datetime.ThirtyMins, 1},
		{market.PeriodH1, datetime.SixtyMins, 1},
		{market.PeriodH4, datetime.SixtyMins, 4},
		{market.PeriodD1, datetime.OneDay, 1},
		{market.PeriodW1, datetime.OneDay, 5},
		{market.PeriodMN1, datetime.OneMonth, 1},
	}
	for _, c := range cases {
		iv, group, err := intervalFor(c.period)
		require.NoError(t, err, c.period)
		assert.Equal(t, c.iv, iv, c.period)
		assert.Equal(t, c.group, group, c.period)
	}

	_, _, err := intervalFor("3h")
	require.Error(t, err)
}

func hourlyCandle(hour int) market.Candle {
	open := int64(hour) * time.Hour.Milliseconds()
	return market.Candle{
		OpenTime:  open,
		CloseTime: open + time.Hour.Milliseconds() - 1,
		Open:      100 + float64(hour),
		High:      101 + float64(hour),
		Low:       99 + float64(hour),
		Close:     100.5 + float64(hour),
		Volume:    10,
	}
}

func TestResampleFourHourAligned(t *testing.T) {
	var cs market.Candles
	for h := 0; h < 6; h++ {
		cs = append(cs, hourlyCandle(h))
	}

	out := resample(cs, market.PeriodH4)
	require.Len(t, out, 2)

	first := out[0]
	assert.Equal(t, int64(0), first.OpenTime)
	assert.Equal(t, cs[3].CloseTime, first.CloseTime)
	assert.Equal(t, 100.0, first.Open)
	assert.Equal(t, 104.0, first.High)
	assert.Equal(t, 99.0, first.Low)
	assert.Equal(t, 103.5, first.Close)
	assert.Equal(t, 40.0, first.Volume)

	second := out[1]
	assert.Equal(t, 4*time.Hour.Milliseconds(), second.OpenTime)
	assert.Equal(t, 104.0, second.Open)
	assert.Equal(t, 106.0, second.High)
	assert.Equal(t, 103.0, second.Low)
	assert.Equal(t, 105.5, second.Close)
	assert.Equal(t, 20.0, second.Volume)
}

func TestResampleWeeklyByISOWeek(t *testing.T) {
	day := func(d int) market.Candle {
		open := time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC).UnixMilli()
		return market.Candle{
			OpenTime: open,
			Open:     1.10 + float64(d)/1000,
			High:     1.11 + float64(d)/1000,
			Low:      1.09 + float64(d)/1000,
			Close:    1.105 + float64(d)/1000,
		}
	}
	// 1 月 1 日(周一)到 5 日是 2024 年第 1 个 ISO 周，8 日落入第 2 周
	cs := market.Candles{day(1), day(2), day(3), day(4), day(5), day(8)}

	out := resample(cs, market.PeriodW1)
	require.Len(t, out, 2)
	assert.Equal(t, cs[0].OpenTime, out[0].OpenTime)
	assert.Equal(t, cs[0].Open, out[0].Open)
	assert.Equal(t, cs[4].Close, out[0].Close)
	assert.Equal(t, cs[5].OpenTime, out[1].OpenTime)
}

func TestResampleKeepsUngroupedPeriods(t *testing.T) {
	cs := market.Candles{hourlyCandle(0), hourlyCandle(1)}
	out := resample(cs, market.PeriodH1)
	assert.Len(t, out, 2)
}

func TestMaxSpanLimits(t *testing.T) {
	assert.Equal(t, 7*24*time.Hour, maxSpan(datetime.OneMin))
	assert.Equal(t, 60*24*time.Hour, maxSpan(datetime.FifteenMins))
	assert.Equal(t, 730*24*time.Hour, maxSpan(datetime.SixtyMins))
	assert.Equal(t, time.Duration(0), maxSpan(datetime.OneDay))
}
