// Package yahoo 通过 Yahoo Finance 拉取外汇与贵金属行情，实现 market.Provider。
// 免费接口无需凭证，适合回填历史与低频轮询。
package yahoo

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/piquette/finance-go/chart"
	"github.com/piquette/finance-go/datetime"
	"github.com/piquette/finance-go/quote"

	"kestrel/internal/logger"
	"kestrel/internal/market"
	"kestrel/internal/pairs"
)

// symbolOverrides 部分品种在 Yahoo 上不走 "=X" 外汇后缀。
var symbolOverrides = map[string]string{
	"XAUUSD": "GC=F",
	"XAGUSD": "SI=F",
}

// Symbol 把品种代码转成 Yahoo 代码，外汇对加 "=X" 后缀。
func Symbol(symbol string) string {
	sym := pairs.Normalize(symbol)
	if y, ok := symbolOverrides[sym]; ok {
		return y
	}
	return sym + "=X"
}

// intervalFor 把内部周期映射到 Yahoo 的拉取粒度。
// Yahoo 没有 4 小时线，用小时线拉回后本地合并；周线用日线按 ISO 周合并。
// 第二个返回值是本地合并的分组大小，1 表示不合并。
func intervalFor(period string) (datetime.Interval, int, error) {
	switch period {
	case market.PeriodM1:
		return datetime.OneMin, 1, nil
	case market.PeriodM5:
		return datetime.FiveMins, 1, nil
	case market.PeriodM15:
		return datetime.FifteenMins, 1, nil
	case market.PeriodM30:
		return datetime.ThirtyMins, 1, nil
	case market.PeriodH1:
		return datetime.SixtyMins, 1, nil
	case market.PeriodH4:
		return datetime.SixtyMins, 4, nil
	case market.PeriodD1:
		return datetime.OneDay, 1, nil
	case market.PeriodW1:
		return datetime.OneDay, 5, nil
	case market.PeriodMN1:
		return datetime.OneMonth, 1, nil
	}
	return "", 0, fmt.Errorf("yahoo 不支持周期 %q", period)
}

// maxSpan Yahoo 对日内粒度的最大回看窗口。0 表示不限。
func maxSpan(iv datetime.Interval) time.Duration {
	switch iv {
	case datetime.OneMin:
		return 7 * 24 * time.Hour
	case datetime.FiveMins, datetime.FifteenMins, datetime.ThirtyMins:
		return 60 * 24 * time.Hour
	case datetime.SixtyMins:
		return 730 * 24 * time.Hour
	}
	return 0
}

// Provider Yahoo 行情源。
type Provider struct {
	now func() time.Time
}

func New() *Provider { return &Provider{now: time.Now} }

func (p *Provider) Name() string { return "yahoo" }

// Series 拉取历史 K 线，按 OpenTime 升序返回至多 bars 根。
// 周末与休市造成的空洞由取样窗口的冗余系数吸收。
func (p *Provider) Series(ctx context.Context, symbol, period string, bars int) (market.Candles, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if bars <= 0 {
		bars = 200
	}
	iv, group, err := intervalFor(period)
	if err != nil {
		return nil, err
	}

	end := p.now()
	span := time.Duration(bars) * market.PeriodDuration(period) * 2
	if limit := maxSpan(iv); limit > 0 && span > limit {
		span = limit
	}
	start := end.Add(-span)

	params := &chart.Params{
		Symbol:   Symbol(symbol),
		Start:    datetime.New(&start),
		End:      datetime.New(&end),
		Interval: iv,
	}
	iter := chart.Get(params)

	ivMs := intervalMillis(iv)
	var out market.Candles
	for iter.Next() {
		bar := iter.Bar()
		if bar == nil || bar.Close.IsZero() {
			// 休市日 Yahoo 会塞全零的占位条目
			continue
		}
		openMs := int64(bar.Timestamp) * 1000
		out = append(out, market.Candle{
			OpenTime:  openMs,
			CloseTime: openMs + ivMs - 1,
			Open:      bar.Open.InexactFloat64(),
			High:      bar.High.InexactFloat64(),
			Low:       bar.Low.InexactFloat64(),
			Close:     bar.Close.InexactFloat64(),
			Volume:    float64(bar.Volume),
		})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("yahoo 拉取 %s %s: %w", symbol, period, err)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].OpenTime < out[j].OpenTime })
	if group > 1 {
		out = resample(out, period)
	}
	out = out.Tail(bars)
	logger.Debugf("yahoo 拉取 %s %s 共 %d 根", symbol, period, len(out))
	return out, nil
}

// Quote 取即时报价。外汇对通常带买卖价，期货品种可能只有最新价。
func (p *Provider) Quote(ctx context.Context, symbol string) (market.Quote, error) {
	if err := ctx.Err(); err != nil {
		return market.Quote{}, err
	}
	q, err := quote.Get(Symbol(symbol))
	if err != nil {
		return market.Quote{}, fmt.Errorf("yahoo 报价 %s: %w", symbol, err)
	}
	if q == nil {
		return market.Quote{}, fmt.Errorf("yahoo 未返回 %s 的报价", symbol)
	}
	out := market.Quote{
		Symbol: pairs.Normalize(symbol),
		Bid:    q.Bid,
		Ask:    q.Ask,
		Price:  q.RegularMarketPrice,
		Time:   time.Unix(int64(q.RegularMarketTime), 0),
	}
	if out.Price == 0 {
		out.Price = out.Mid()
	}
	if out.Price == 0 {
		return market.Quote{}, fmt.Errorf("yahoo 报价 %s 为空", symbol)
	}
	return out, nil
}

func intervalMillis(iv datetime.Interval) int64 {
	switch iv {
	case datetime.OneMin:
		return time.Minute.Milliseconds()
	case datetime.FiveMins:
		return (5 * time.Minute).Milliseconds()
	case datetime.FifteenMins:
		return (15 * time.Minute).Milliseconds()
	case datetime.ThirtyMins:
		return (30 * time.Minute).Milliseconds()
	case datetime.SixtyMins:
		return time.Hour.Milliseconds()
	case datetime.OneDay:
		return (24 * time.Hour).Milliseconds()
	case datetime.OneMonth:
		return (30 * 24 * time.Hour).Milliseconds()
	}
	return time.Hour.Milliseconds()
}

// resample 把低级别 K 线按时间桶合并成目标周期。
// 4 小时按自然 4 小时段对齐，周线按 ISO 周对齐。
func resample(cs market.Candles, period string) market.Candles {
	if len(cs) == 0 {
		return cs
	}
	bucketOf := func(ts int64) int64 {
		switch period {
		case market.PeriodH4:
			return ts / (4 * time.Hour).Milliseconds()
		case market.PeriodW1:
			year, week := time.UnixMilli(ts).UTC().ISOWeek()
			return int64(year)*100 + int64(week)
		}
		return ts
	}

	var out market.Candles
	var cur market.Candle
	curBucket := int64(0)
	started := false
	flush := func() {
		if started {
			out = append(out, cur)
		}
	}
	for _, c := range cs {
		b := bucketOf(c.OpenTime)
		if !started || b != curBucket {
			flush()
			cur = c
			curBucket = b
			started = true
			continue
		}
		if c.High > cur.High {
			cur.High = c.High
		}
		if c.Low < cur.Low {
			cur.Low = c.Low
		}
		cur.Close = c.Close
		cur.CloseTime = c.CloseTime
		cur.Volume += c.Volume
	}
	flush()
	return out
}
