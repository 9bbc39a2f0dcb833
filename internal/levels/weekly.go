package levels

import "fmt"

func init() { Register(fibonacciStrategy{}) }

// fibonacciStrategy 周线图谱：周枢轴、周高低与周区间的斐波那契回撤。
// 需要至少一周的小时级数据。
type fibonacciStrategy struct{}

func (fibonacciStrategy) ID() string { return "fibonacci" }

var fibRatios = []float64{0.236, 0.382, 0.500, 0.618, 0.786}

func (fibonacciStrategy) Compute(in Input) []Level {
	cs := in.Candles
	if len(cs) < 168 {
		return nil
	}
	window := cs.Tail(168)
	high, low := window.HighLow()
	closePx := window[len(window)-1].Close
	rng := high - low
	if rng <= 0 {
		return nil
	}

	pivot := (high + low + closePx) / 3
	wr1 := 2*pivot - low
	wr2 := pivot + rng
	ws1 := 2*pivot - high
	ws2 := pivot - rng

	first := len(cs) - len(window)
	last := len(cs) - 1
	mk := func(price float64, kind Kind, support bool, label string) Level {
		return Level{
			Price: price, Kind: kind, Support: support,
			FirstTouch: first, LastTouch: last,
			Context: ContextWeekly, Label: label,
		}
	}

	out := []Level{
		mk(high, KindWeeklyHigh, false, "Weekly High"),
		mk(low, KindWeeklyLow, true, "Weekly Low"),
		mk(pivot, KindPivot, pivot < in.Current, "Weekly Pivot"),
		mk(wr1, KindPivotR1, false, "Weekly R1"),
		mk(wr2, KindPivotR2, false, "Weekly R2"),
		mk(ws1, KindPivotS1, true, "Weekly S1"),
		mk(ws2, KindPivotS2, true, "Weekly S2"),
	}
	for _, ratio := range fibRatios {
		price := high - ratio*rng
		out = append(out, mk(price, KindFibonacci, price < in.Current,
			fmt.Sprintf("Fib %.1f%%", ratio*100)))
	}
	return out
}
