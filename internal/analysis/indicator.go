package analysis

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/markcheno/go-talib"

	"kestrel/internal/market"
	"kestrel/internal/pkg/sliceutil"
)

// 中文说明：
// 指标引擎：不依赖外部模型，用 EMA/RSI/MACD 对每个周期打方向，
// 再按周期权重做多周期合流评分。适合做默认引擎与聊天引擎的对照组。

const indicatorMinBars = 60

type IndicatorEngine struct{}

func NewIndicatorEngine() *IndicatorEngine { return &IndicatorEngine{} }

func (e *IndicatorEngine) Name() string { return "indicator" }

func (e *IndicatorEngine) Analyze(ctx context.Context, in Input) (Recommendation, error) {
	if err := ctx.Err(); err != nil {
		return Recommendation{}, err
	}
	reads := make([]periodRead, 0, len(in.Periods))
	signals := make(map[string]string, len(in.Periods))
	for _, period := range in.Periods {
		cs := in.Series[period]
		if len(cs) < indicatorMinBars {
			continue
		}
		r := readPeriod(period, cs)
		reads = append(reads, r)
		signals[period] = r.Trend
	}
	if len(reads) == 0 {
		return Recommendation{}, fmt.Errorf("%w: 各周期历史不足 %d 根", ErrUnavailable, indicatorMinBars)
	}

	sc := scoreConfluence(signals)
	rec := Recommendation{
		Pair:        in.Spec.Symbol,
		Style:       in.Style.Name,
		Timeframes:  sliceutil.Strings(in.Periods),
		Direction:   directionFor(sc.Direction),
		Confidence:  int(math.Round(sc.Confidence)),
		Alignment:   alignmentOf(sc),
		Confluence:  sc.Confluence,
		Reasoning:   buildIndicatorReasoning(reads, sc, len(in.Articles)),
		NewsCount:   len(in.Articles),
		Engine:      e.Name(),
		GeneratedAt: time.Now(),
	}

	current := in.CurrentPrice()
	if current > 0 {
		band := entryBand(in.PrimarySeries(), in.Spec.PipSize)
		rec.EntryZone = EntryZone{Min: current - band, Max: current + band, Note: "market"}
	}
	for i, lv := range in.Levels {
		if i >= 4 {
			break
		}
		rec.KeyLevels = append(rec.KeyLevels, lv.String())
	}
	return rec, nil
}

type periodRead struct {
	Period   string
	Trend    string
	RSI      float64
	Momentum string
}

// readPeriod 三票制：EMA20/50 排列、RSI 区间、MACD 柱方向。
func readPeriod(period string, cs market.Candles) periodRead {
	closes := cs.Closes()
	last := len(closes) - 1

	ema20 := talib.Ema(closes, 20)
	ema50 := talib.Ema(closes, 50)
	rsi := talib.Rsi(closes, 14)
	_, _, hist := talib.Macd(closes, 12, 26, 9)

	bull, bear := 0, 0
	switch {
	case closes[last] > ema20[last] && ema20[last] > ema50[last]:
		bull++
	case closes[last] < ema20[last] && ema20[last] < ema50[last]:
		bear++
	}
	switch {
	case rsi[last] > 55:
		bull++
	case rsi[last] < 45:
		bear++
	}
	switch {
	case hist[last] > 0:
		bull++
	case hist[last] < 0:
		bear++
	}

	trend := "neutral"
	if bull > bear {
		trend = "bullish"
	} else if bear > bull {
		trend = "bearish"
	}
	momentum := "flat"
	if last >= 1 {
		if hist[last] > hist[last-1] {
			momentum = "rising"
		} else if hist[last] < hist[last-1] {
			momentum = "falling"
		}
	}
	return periodRead{Period: period, Trend: trend, RSI: rsi[last], Momentum: momentum}
}

type confluenceScore struct {
	Direction  string
	Confidence float64
	Confluence float64
	BullishPct float64
	BearishPct float64
}

// scoreConfluence 周期加权合流：多空各自按周期权重累计，
// 胜方占比作为置信度，同向周期占比作为合流度。
func scoreConfluence(signals map[string]string) confluenceScore {
	bullish, bearish, total := 0.0, 0.0, 0.0
	for period, signal := range signals {
		w := market.PeriodWeight(period)
		total += w
		switch strings.ToLower(signal) {
		case "bullish":
			bullish += w
		case "bearish":
			bearish += w
		}
	}
	if total == 0 {
		return confluenceScore{Direction: "neutral", Confidence: 0}
	}
	bullPct := bullish / total * 100
	bearPct := bearish / total * 100

	sc := confluenceScore{BullishPct: round1(bullPct), BearishPct: round1(bearPct)}
	switch {
	case bullPct > bearPct:
		sc.Direction = "bullish"
		sc.Confidence = round1(bullPct)
	case bearPct > bullPct:
		sc.Direction = "bearish"
		sc.Confidence = round1(bearPct)
	default:
		sc.Direction = "neutral"
		sc.Confidence = 50
	}
	agreeing := 0
	for _, signal := range signals {
		if strings.ToLower(signal) == sc.Direction {
			agreeing++
		}
	}
	sc.Confluence = round1(float64(agreeing) / float64(len(signals)) * 100)
	return sc
}

// alignmentOf 合流判定：有分量的反向权重即冲突，全员同向才算一致，
// 其余算 mixed。
func alignmentOf(sc confluenceScore) string {
	if sc.Direction == "neutral" {
		return AlignmentMixed
	}
	opposite := sc.BearishPct
	if sc.Direction == "bearish" {
		opposite = sc.BullishPct
	}
	if opposite >= 35 {
		return AlignmentConflicting
	}
	if sc.Confluence >= 100 || opposite == 0 {
		return AlignmentAligned
	}
	return AlignmentMixed
}

func directionFor(trend string) string {
	switch trend {
	case "bullish":
		return DirectionBuy
	case "bearish":
		return DirectionSell
	}
	return DirectionHold
}

// entryBand ATR 的四分之一作为入场区半宽，数据不足时退到 2 pip。
func entryBand(cs market.Candles, pipSize float64) float64 {
	if len(cs) >= 15 {
		atr := talib.Atr(cs.Highs(), cs.Lows(), cs.Closes(), 14)
		if v := atr[len(atr)-1]; v > 0 {
			return v * 0.25
		}
	}
	return 2 * pipSize
}

func buildIndicatorReasoning(reads []periodRead, sc confluenceScore, newsCount int) string {
	sort.SliceStable(reads, func(i, j int) bool {
		wi, wj := market.PeriodWeight(reads[i].Period), market.PeriodWeight(reads[j].Period)
		if wi != wj {
			return wi < wj
		}
		return reads[i].Period < reads[j].Period
	})
	var b strings.Builder
	for _, r := range reads {
		fmt.Fprintf(&b, "%s %s (RSI %.1f, MACD %s); ", r.Period, r.Trend, r.RSI, r.Momentum)
	}
	fmt.Fprintf(&b, "confluence %.0f%% (bull %.0f%% / bear %.0f%%)", sc.Confluence, sc.BullishPct, sc.BearishPct)
	if newsCount > 0 {
		fmt.Fprintf(&b, ", %d related articles", newsCount)
	}
	return b.String()
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
