package levels

import "math"

func init() { Register(roundNumberStrategy{}) }

// roundNumberStrategy 心理关口：按价格量级取整数位，前后各三档。
type roundNumberStrategy struct{}

func (roundNumberStrategy) ID() string { return "round_number" }

func (roundNumberStrategy) Compute(in Input) []Level {
	price := in.Current
	if price <= 0 {
		return nil
	}
	var interval float64
	switch {
	case price > 100:
		interval = 1.0
	case price > 10:
		interval = 0.5
	default:
		interval = 0.01
	}
	base := math.Round(price/interval) * interval
	out := make([]Level, 0, 7)
	for i := -3; i <= 3; i++ {
		p := base + float64(i)*interval
		out = append(out, Level{
			Price: p, Kind: KindRoundNumber, Support: p < price,
			Context: ContextDaily,
		})
	}
	return out
}
