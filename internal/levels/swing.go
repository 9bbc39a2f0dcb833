package levels

func init() { Register(swingStrategy{}) }

// swingStrategy 摆动高低点：比前后五根都极端的分形。
type swingStrategy struct{}

func (swingStrategy) ID() string { return "swing" }

func (swingStrategy) Compute(in Input) []Level {
	cs := in.Candles
	if len(cs) < 11 {
		return nil
	}
	highs, lows := swingPoints(cs, 5)
	out := make([]Level, 0, len(highs)+len(lows))
	for _, sp := range highs {
		out = append(out, Level{
			Price: sp.price, Kind: KindSwingHigh, Support: false,
			Touches: 1, FirstTouch: sp.index, LastTouch: sp.index,
			Context: contextForIndex(sp.index, len(cs)),
		})
	}
	for _, sp := range lows {
		out = append(out, Level{
			Price: sp.price, Kind: KindSwingLow, Support: true,
			Touches: 1, FirstTouch: sp.index, LastTouch: sp.index,
			Context: contextForIndex(sp.index, len(cs)),
		})
	}
	return out
}

// contextForIndex 按距今根数归类时间上下文
func contextForIndex(index, total int) string {
	barsBack := total - index
	switch {
	case barsBack <= 1:
		return ContextHourly
	case barsBack <= 24:
		return ContextDaily
	}
	return ContextWeekly
}
