package levels

import (
	"github.com/markcheno/go-talib"

	"kestrel/internal/market"
)

// atrValue 窗口的平均真实波幅。数据不足时退化为平均振幅。
func atrValue(cs market.Candles, period int) float64 {
	if len(cs) == 0 {
		return 0
	}
	if period <= 0 {
		period = 14
	}
	if len(cs) < period+1 {
		sum := 0.0
		for _, c := range cs {
			sum += c.Range()
		}
		return sum / float64(len(cs))
	}
	out := talib.Atr(cs.Highs(), cs.Lows(), cs.Closes(), period)
	return out[len(out)-1]
}

type swingPoint struct {
	index int
	price float64
}

// swingPoints 严格分形：比前后 lookback 根都高/低才算摆动点。
func swingPoints(cs market.Candles, lookback int) (highs, lows []swingPoint) {
	if lookback <= 0 {
		lookback = 5
	}
	highsArr := cs.Highs()
	lowsArr := cs.Lows()
	for i := lookback; i < len(cs)-lookback; i++ {
		isHigh, isLow := true, true
		for j := 1; j <= lookback; j++ {
			if highsArr[i] <= highsArr[i-j] || highsArr[i] <= highsArr[i+j] {
				isHigh = false
			}
			if lowsArr[i] >= lowsArr[i-j] || lowsArr[i] >= lowsArr[i+j] {
				isLow = false
			}
			if !isHigh && !isLow {
				break
			}
		}
		if isHigh {
			highs = append(highs, swingPoint{index: i, price: highsArr[i]})
		}
		if isLow {
			lows = append(lows, swingPoint{index: i, price: lowsArr[i]})
		}
	}
	return highs, lows
}

// pinBarIndexes 识别 pin bar：影线至少 2 倍实体、实体不超过整根 35%、
// 振幅不小于 10 pip。只看末尾 lookback 根。
func pinBarIndexes(cs market.Candles, pipSize float64, lookback int) []int {
	if lookback <= 0 {
		lookback = 50
	}
	start := len(cs) - lookback
	if start < 0 {
		start = 0
	}
	var out []int
	for i := start; i < len(cs); i++ {
		if isPinBar(cs[i], pipSize) {
			out = append(out, i)
		}
	}
	return out
}

func isPinBar(c market.Candle, pipSize float64) bool {
	total := c.Range()
	if total < 10*pipSize || total <= 0 {
		return false
	}
	body := c.Body()
	if body/total > 0.35 {
		return false
	}
	bodyTop := c.Open
	bodyBottom := c.Close
	if c.Close > c.Open {
		bodyTop, bodyBottom = c.Close, c.Open
	}
	upper := c.High - bodyTop
	lower := bodyBottom - c.Low
	if body <= 0 {
		return false
	}
	if lower/body >= 2.0 && lower > upper*1.5 {
		return true
	}
	if upper/body >= 2.0 && upper > lower*1.5 {
		return true
	}
	return false
}

// hasPinBarAt 判断某价位附近是否出现过 pin bar。
func hasPinBarAt(price float64, cs market.Candles, tolerance, pipSize float64) bool {
	for _, idx := range pinBarIndexes(cs, pipSize, 50) {
		if cs[idx].Low-tolerance <= price && price <= cs[idx].High+tolerance {
			return true
		}
	}
	return false
}

// hasLegRejection 价格触及该价位后三根内反向离开。
func hasLegRejection(price float64, cs market.Candles, tolerance float64) bool {
	closes := cs.Closes()
	for i := 5; i < len(cs); i++ {
		if cs[i].Low-tolerance <= price && price <= cs[i].High+tolerance {
			if i+3 < len(cs) {
				if price < closes[i] && closes[i+3] > closes[i] {
					return true
				}
				if price >= closes[i] && closes[i+3] < closes[i] {
					return true
				}
			}
		}
	}
	return false
}

// countTouches 统计触碰根数
func countTouches(price float64, cs market.Candles, tolerance float64) (touches, lastTouch int) {
	for i, c := range cs {
		if c.Low-tolerance <= price && price <= c.High+tolerance {
			touches++
			lastTouch = i
		}
	}
	return touches, lastTouch
}
