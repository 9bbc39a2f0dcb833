package market

import (
	"fmt"
	"math"
	"strings"
	"time"

	"kestrel/internal/pkg/format"
	"kestrel/internal/pkg/text"
)

// Candle 简化的 K 线结构，时间为毫秒时间戳
type Candle struct {
	OpenTime  int64
	CloseTime int64
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Candles wraps a slice of Candle for helper methods.
type Candles []Candle

// TimeString formats close time (fallback to open time) in UTC.
func (c Candle) TimeString() string {
	ts := c.CloseTime
	if ts == 0 {
		ts = c.OpenTime
	}
	if ts <= 0 {
		return "-"
	}
	return time.UnixMilli(ts).UTC().Format("01-02 15:04") + "Z"
}

// Range 返回单根 K 线的振幅
func (c Candle) Range() float64 { return c.High - c.Low }

// Body 返回实体大小（非负）
func (c Candle) Body() float64 {
	b := c.Close - c.Open
	if b < 0 {
		b = -b
	}
	return b
}

// Bullish 收盘高于开盘
func (c Candle) Bullish() bool { return c.Close > c.Open }

func (cs Candles) Last() (Candle, bool) {
	if len(cs) == 0 {
		return Candle{}, false
	}
	return cs[len(cs)-1], true
}

func (cs Candles) Opens() []float64 {
	out := make([]float64, len(cs))
	for i, c := range cs {
		out[i] = c.Open
	}
	return out
}

func (cs Candles) Highs() []float64 {
	out := make([]float64, len(cs))
	for i, c := range cs {
		out[i] = c.High
	}
	return out
}

func (cs Candles) Lows() []float64 {
	out := make([]float64, len(cs))
	for i, c := range cs {
		out[i] = c.Low
	}
	return out
}

func (cs Candles) Closes() []float64 {
	out := make([]float64, len(cs))
	for i, c := range cs {
		out[i] = c.Close
	}
	return out
}

func (cs Candles) Volumes() []float64 {
	out := make([]float64, len(cs))
	for i, c := range cs {
		out[i] = c.Volume
	}
	return out
}

// HighLow 返回窗口内最高价与最低价
func (cs Candles) HighLow() (high, low float64) {
	low = math.MaxFloat64
	high = -math.MaxFloat64
	for _, bar := range cs {
		if bar.Low < low {
			low = bar.Low
		}
		if bar.High > high {
			high = bar.High
		}
	}
	if len(cs) == 0 {
		return 0, 0
	}
	return high, low
}

// Snapshot summarizes a window of candles for prompt display.
func (cs Candles) Snapshot(interval, trend string) string {
	if len(cs) == 0 {
		return ""
	}
	first := cs[0]
	last := cs[len(cs)-1]
	base := first.Close
	if base == 0 {
		base = first.Open
	}
	changePct := 0.0
	if base != 0 {
		changePct = (last.Close - base) / base * 100
	}
	high, low := cs.HighLow()
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("close≈%s", format.Float(last.Close, 4)))
	iv := strings.TrimSpace(interval)
	if iv == "" {
		iv = "window"
	}
	if base != 0 {
		sb.WriteString(fmt.Sprintf(" (%+.2f%%/%s)", changePct, iv))
	}
	if high > -math.MaxFloat64 && low < math.MaxFloat64 {
		sb.WriteString(fmt.Sprintf(", 区间 %s–%s", format.Float(low, 4), format.Float(high, 4)))
	}
	if t := strings.TrimSpace(trend); t != "" {
		sb.WriteString(", " + text.Truncate(t, 200))
	}
	return sb.String()
}

// Tail 返回末尾 n 根的拷贝
func (cs Candles) Tail(n int) Candles {
	if n <= 0 || len(cs) == 0 {
		return nil
	}
	if n > len(cs) {
		n = len(cs)
	}
	out := make(Candles, n)
	copy(out, cs[len(cs)-n:])
	return out
}
