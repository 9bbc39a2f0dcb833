package levels

import (
	"math"
	"sort"
	"strings"

	"kestrel/internal/market"
	"kestrel/internal/pairs"
)

// Engine 水平位引擎：跑一组策略，合并相近价位，统一评分排序，
// 并从结果中为给定方向挑选止损/止盈。
type Engine struct {
	strategies    []Strategy
	tolerancePips float64
	atrPeriod     int
}

func NewEngine(strategyIDs []string, tolerancePips float64, atrPeriod int) (*Engine, error) {
	strategies, err := Resolve(strategyIDs)
	if err != nil {
		return nil, err
	}
	if tolerancePips <= 0 {
		tolerancePips = 5
	}
	if atrPeriod <= 0 {
		atrPeriod = 14
	}
	return &Engine{strategies: strategies, tolerancePips: tolerancePips, atrPeriod: atrPeriod}, nil
}

// Compute 产出按强度降序的水平位集合。输入为空时返回 nil。
func (e *Engine) Compute(cs market.Candles, spec pairs.Spec, current float64) []Level {
	if len(cs) == 0 {
		return nil
	}
	if current <= 0 {
		current = cs[len(cs)-1].Close
	}
	in := Input{Candles: cs, Spec: spec, Current: current}
	var all []Level
	for _, s := range e.strategies {
		all = append(all, s.Compute(in)...)
	}
	if len(all) == 0 {
		return nil
	}
	tol := spec.PriceOffset(e.tolerancePips)
	merged := mergeSimilar(all, tol)
	atr := atrValue(cs, e.atrPeriod)
	scoreLevels(merged, cs, spec, tol, atr, current)
	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Strength != merged[j].Strength {
			return merged[i].Strength > merged[j].Strength
		}
		return merged[i].Price < merged[j].Price
	})
	return merged
}

// mergeSimilar 把相距 tolerance 以内的价位归为一组取均值，
// 类型、方向沿用组里优先级最高的那条。
func mergeSimilar(in []Level, tolerance float64) []Level {
	if len(in) == 0 {
		return nil
	}
	sorted := append([]Level(nil), in...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Price < sorted[j].Price })

	var merged []Level
	group := []Level{sorted[0]}
	for _, lv := range sorted[1:] {
		if math.Abs(lv.Price-group[0].Price) <= tolerance {
			group = append(group, lv)
			continue
		}
		merged = append(merged, mergeGroup(group))
		group = []Level{lv}
	}
	merged = append(merged, mergeGroup(group))
	return merged
}

func mergeGroup(group []Level) Level {
	if len(group) == 1 {
		return group[0]
	}
	sum := 0.0
	best := group[0]
	touches := 0
	first := group[0].FirstTouch
	last := group[0].LastTouch
	pin, leg := false, false
	ctx := group[0].Context
	for _, lv := range group {
		sum += lv.Price
		touches += lv.Touches
		if mergePriority[lv.Kind] > mergePriority[best.Kind] {
			best = lv
		}
		if lv.FirstTouch < first {
			first = lv.FirstTouch
		}
		if lv.LastTouch > last {
			last = lv.LastTouch
		}
		pin = pin || lv.PinBar
		leg = leg || lv.LegRejection
		if contextPriority[lv.Context] > contextPriority[ctx] {
			ctx = lv.Context
		}
	}
	return Level{
		Price: sum / float64(len(group)), Kind: best.Kind, Support: best.Support,
		Touches: touches, FirstTouch: first, LastTouch: last,
		Context: ctx, PinBar: pin, LegRejection: leg, Label: best.Label,
	}
}

// scoreLevels 六因子强度评分：触碰次数、ATR 显著性、pin bar、
// 结构拒绝、类型加成、新近度，封顶 100。
func scoreLevels(lvls []Level, cs market.Candles, spec pairs.Spec, tolerance, atr, current float64) {
	n := len(cs)
	for i := range lvls {
		lv := &lvls[i]
		score := 0.0

		touches, _ := countTouches(lv.Price, cs, tolerance)
		lv.Touches = touches
		score += math.Min(float64(touches)*5, 25)

		if atr > 0 {
			ratio := math.Abs(lv.Price-current) / atr
			lv.ATRRatio = ratio
			switch {
			case ratio >= 0.5 && ratio <= 2.0:
				score += 20
			case ratio >= 0.25 && ratio <= 3.0:
				score += 10
			}
		}

		if hasPinBarAt(lv.Price, cs, tolerance, spec.PipSize) {
			lv.PinBar = true
			score += 15
		}
		if hasLegRejection(lv.Price, cs, tolerance) {
			lv.LegRejection = true
			score += 15
		}

		score += kindBonus[lv.Kind]

		if n > 0 {
			recency := float64(n-lv.LastTouch) / float64(n)
			score += math.Max(0, 10*(1-recency))
		}

		lv.Strength = math.Min(100, score)
		lv.Class = classify(lv.Strength)
		lv.DistancePips = spec.PipsBetween(lv.Price, current)
	}
}

// Pick 选出的止损或止盈
type Pick struct {
	Price       float64
	Pips        float64
	Description string
	Level       *Level
}

// DefaultFallback 表示未能找到结构位、使用品种默认距离兜底。
const DefaultFallback = "default-fallback"

// StopTake 方向化的止损/止盈选择结果
type StopTake struct {
	Stop Pick
	Take Pick
}

// RiskReward 盈亏比，止损为零时返回 0。
func (st StopTake) RiskReward() float64 {
	if st.Stop.Pips <= 0 {
		return 0
	}
	return st.Take.Pips / st.Stop.Pips
}

// SelectStopTake 从水平位集合为方向挑选止损与止盈：
//   - 止损取保护侧中距离落在 [min, max] 的最近一条；
//     等距先比强度，再比最近触碰，再比类型优先级。
//   - 止盈取获利侧中距离不小于 止损×盈亏比 的最近一条。
//   - 找不到结构位时用品种默认距离，标记 default-fallback。
func (e *Engine) SelectStopTake(lvls []Level, direction string, spec pairs.Spec, style market.Style, current float64) StopTake {
	buy := strings.EqualFold(direction, "buy")
	minStop := spec.MinStopPips * style.StopFactor
	maxStop := spec.MaxStopPips * style.StopFactor
	defaultStop := clamp(spec.DefaultStopPips*style.StopFactor, minStop, maxStop)

	stop := pickStop(lvls, buy, spec, current, minStop, maxStop)
	if stop.Level == nil {
		stop = fallbackPick(buy, true, spec, current, defaultStop)
	}

	minTake := stop.Pips * style.RiskReward
	maxTake := maxStop * math.Max(style.RiskReward, 1) * 2
	take := pickTake(lvls, buy, spec, current, minTake, maxTake)
	if take.Level == nil {
		take = fallbackPick(buy, false, spec, current, minTake)
	}
	return StopTake{Stop: stop, Take: take}
}

func pickStop(lvls []Level, buy bool, spec pairs.Spec, current, minPips, maxPips float64) Pick {
	var best *Level
	var bestDist float64
	for i := range lvls {
		lv := &lvls[i]
		if buy {
			if !lv.Support || lv.Price >= current {
				continue
			}
		} else {
			if lv.Support || lv.Price <= current {
				continue
			}
		}
		dist := spec.PipsBetween(lv.Price, current)
		if dist < minPips || dist > maxPips {
			continue
		}
		if best == nil || closerOrStronger(dist, lv, bestDist, best) {
			best = lv
			bestDist = dist
		}
	}
	if best == nil {
		return Pick{}
	}
	return Pick{Price: best.Price, Pips: bestDist, Description: describe(best), Level: best}
}

func pickTake(lvls []Level, buy bool, spec pairs.Spec, current, minPips, maxPips float64) Pick {
	var best *Level
	var bestDist float64
	for i := range lvls {
		lv := &lvls[i]
		if buy {
			if lv.Support || lv.Price <= current {
				continue
			}
		} else {
			if !lv.Support || lv.Price >= current {
				continue
			}
		}
		dist := spec.PipsBetween(lv.Price, current)
		if dist < minPips || dist > maxPips {
			continue
		}
		if best == nil || closerOrStronger(dist, lv, bestDist, best) {
			best = lv
			bestDist = dist
		}
	}
	if best == nil {
		return Pick{}
	}
	return Pick{Price: best.Price, Pips: bestDist, Description: describe(best), Level: best}
}

// closerOrStronger 候选比较：距离近者胜；等距比强度、触碰新近度、类型优先级。
func closerOrStronger(dist float64, lv *Level, bestDist float64, best *Level) bool {
	const eps = 1e-9
	if math.Abs(dist-bestDist) > eps {
		return dist < bestDist
	}
	if lv.Strength != best.Strength {
		return lv.Strength > best.Strength
	}
	if lv.LastTouch != best.LastTouch {
		return lv.LastTouch > best.LastTouch
	}
	return mergePriority[lv.Kind] > mergePriority[best.Kind]
}

func fallbackPick(buy, protective bool, spec pairs.Spec, current, pips float64) Pick {
	offset := spec.PriceOffset(pips)
	price := current
	if buy == protective {
		price -= offset
	} else {
		price += offset
	}
	return Pick{Price: price, Pips: pips, Description: DefaultFallback}
}

func describe(lv *Level) string {
	if lv.Label != "" {
		return lv.Label
	}
	return string(lv.Kind)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
