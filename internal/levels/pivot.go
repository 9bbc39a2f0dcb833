package levels

func init() { Register(pivotStrategy{}) }

// pivotStrategy 经典日内枢轴：取最近 24 根的高低收。
type pivotStrategy struct{}

func (pivotStrategy) ID() string { return "pivot" }

func (pivotStrategy) Compute(in Input) []Level {
	cs := in.Candles
	if len(cs) < 24 {
		return nil
	}
	window := cs.Tail(24)
	high, low := window.HighLow()
	closePx := window[len(window)-1].Close

	pivot := (high + low + closePx) / 3
	r1 := 2*pivot - low
	r2 := pivot + (high - low)
	r3 := high + 2*(pivot-low)
	s1 := 2*pivot - high
	s2 := pivot - (high - low)
	s3 := low - 2*(high-pivot)

	first := len(cs) - len(window)
	last := len(cs) - 1
	mk := func(price float64, kind Kind, support bool, label string) Level {
		return Level{
			Price: price, Kind: kind, Support: support,
			FirstTouch: first, LastTouch: last,
			Context: ContextDaily, Label: label,
		}
	}
	return []Level{
		mk(pivot, KindPivot, pivot < in.Current, "Pivot"),
		mk(r1, KindPivotR1, false, "R1"),
		mk(r2, KindPivotR2, false, "R2"),
		mk(r3, KindPivotR3, false, "R3"),
		mk(s1, KindPivotS1, true, "S1"),
		mk(s2, KindPivotS2, true, "S2"),
		mk(s3, KindPivotS3, true, "S3"),
	}
}
