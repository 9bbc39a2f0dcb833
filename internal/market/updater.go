package market

import (
	"context"
	"fmt"
	"time"

	"kestrel/internal/logger"
)

// CandleSink K 线写入端，store.MemoryCandleStore 即实现。
type CandleSink interface {
	Put(ctx context.Context, symbol, period string, cs []Candle, max int) error
	Get(ctx context.Context, symbol, period string) (Candles, error)
}

// Preheater 启动时为关注的品种与周期回填历史 K 线。
type Preheater struct {
	src     SeriesProvider
	sink    CandleSink
	days    int
	maxKeep int
}

func NewPreheater(src SeriesProvider, sink CandleSink, preheatDays, maxKeep int) *Preheater {
	if preheatDays <= 0 {
		preheatDays = 90
	}
	if maxKeep <= 0 {
		maxKeep = 500
	}
	return &Preheater{src: src, sink: sink, days: preheatDays, maxKeep: maxKeep}
}

// barsFor 预热天数换算为目标根数。下限保证指标计算可用，上限不超过缓存容量。
func (p *Preheater) barsFor(period string) int {
	dur := PeriodDuration(period)
	if dur <= 0 {
		return 0
	}
	bars := int(time.Duration(p.days) * 24 * time.Hour / dur)
	const minBars = 60
	if bars < minBars {
		bars = minBars
	}
	if bars > p.maxKeep {
		bars = p.maxKeep
	}
	return bars
}

// Run 逐组拉取。单组失败只告警，全部失败才返回错误。
func (p *Preheater) Run(ctx context.Context, symbols, periods []string) error {
	var ok, failed int
	for _, sym := range symbols {
		for _, period := range periods {
			if err := ctx.Err(); err != nil {
				return err
			}
			bars := p.barsFor(period)
			if bars == 0 {
				logger.Warnf("预热跳过未知周期 %q", period)
				continue
			}
			cs, err := p.src.Series(ctx, sym, period, bars)
			if err != nil {
				failed++
				logger.Warnf("预热 %s %s 失败: %v", sym, period, err)
				continue
			}
			if err := p.sink.Put(ctx, sym, period, cs, p.maxKeep); err != nil {
				failed++
				logger.Warnf("预热 %s %s 写入失败: %v", sym, period, err)
				continue
			}
			ok++
			logger.Debugf("预热 %s %s %d 根", sym, period, len(cs))
		}
	}
	if ok == 0 && failed > 0 {
		return fmt.Errorf("行情预热全部失败，共 %d 组", failed)
	}
	logger.Infof("行情预热完成: %d 组成功, %d 组失败", ok, failed)
	return nil
}

// Roller 把即时报价滚动聚合进多周期 K 线：
// 报价落在当前根的时间桶内就并入高低收，否则开新根。
type Roller struct {
	sink    CandleSink
	periods []string
	maxKeep int
	now     func() time.Time
}

func NewRoller(sink CandleSink, periods []string, maxKeep int) *Roller {
	if maxKeep <= 0 {
		maxKeep = 500
	}
	return &Roller{sink: sink, periods: periods, maxKeep: maxKeep, now: time.Now}
}

// Apply 把一条报价并入该品种的所有周期。无效报价直接忽略。
func (r *Roller) Apply(ctx context.Context, q Quote) {
	px := q.Mid()
	if px <= 0 || q.Symbol == "" {
		return
	}
	ts := q.Time
	if ts.IsZero() {
		ts = r.now()
	}
	for _, period := range r.periods {
		if err := r.applyPeriod(ctx, q.Symbol, period, px, ts); err != nil {
			logger.Warnf("更新 %s %s K 线失败: %v", q.Symbol, period, err)
		}
	}
}

func (r *Roller) applyPeriod(ctx context.Context, symbol, period string, px float64, ts time.Time) error {
	start, ok := bucketStart(ts, period)
	if !ok {
		return fmt.Errorf("未知周期 %q", period)
	}
	openMs := start.UnixMilli()

	existing, err := r.sink.Get(ctx, symbol, period)
	if err != nil {
		return err
	}
	if last, ok := existing.Last(); ok && last.OpenTime == openMs {
		if px > last.High {
			last.High = px
		}
		if px < last.Low {
			last.Low = px
		}
		last.Close = px
		return r.sink.Put(ctx, symbol, period, []Candle{last}, r.maxKeep)
	}

	fresh := Candle{
		OpenTime:  openMs,
		CloseTime: bucketEnd(start, period).UnixMilli(),
		Open:      px,
		High:      px,
		Low:       px,
		Close:     px,
	}
	return r.sink.Put(ctx, symbol, period, []Candle{fresh}, r.maxKeep)
}

// bucketStart 报价时间对齐到所属周期的开端（UTC）。
// 周线以周一为开端，月线以每月一号为开端。
func bucketStart(ts time.Time, period string) (time.Time, bool) {
	t := ts.UTC()
	switch period {
	case PeriodW1:
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		back := (int(t.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -back), true
	case PeriodMN1:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC), true
	}
	dur := PeriodDuration(period)
	if dur <= 0 {
		return time.Time{}, false
	}
	return t.Truncate(dur), true
}

func bucketEnd(start time.Time, period string) time.Time {
	if period == PeriodMN1 {
		return start.AddDate(0, 1, 0).Add(-time.Millisecond)
	}
	return start.Add(PeriodDuration(period) - time.Millisecond)
}

// QuoteSink 即时报价的消费端。Roller 是最常见的实现，
// 纸面执行器的盯市喂价也走这里。
type QuoteSink interface {
	Apply(ctx context.Context, q Quote)
}

// PollUpdater 定时拉取报价喂给消费端。
type PollUpdater struct {
	quotes   QuoteProvider
	sink     QuoteSink
	interval time.Duration
}

func NewPollUpdater(quotes QuoteProvider, sink QuoteSink, interval time.Duration) *PollUpdater {
	if interval <= 0 {
		interval = time.Minute
	}
	return &PollUpdater{quotes: quotes, sink: sink, interval: interval}
}

// Run 阻塞轮询，直到 ctx 取消。
func (u *PollUpdater) Run(ctx context.Context, symbols []string) error {
	ticker := time.NewTicker(u.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			u.pollOnce(ctx, symbols)
		}
	}
}

func (u *PollUpdater) pollOnce(ctx context.Context, symbols []string) {
	for _, sym := range symbols {
		q, err := u.quotes.Quote(ctx, sym)
		if err != nil {
			logger.Warnf("轮询 %s 报价失败: %v", sym, err)
			continue
		}
		u.sink.Apply(ctx, q)
	}
}

// ConsumeQuotes 把通道里的报价喂给消费端，直到 ctx 取消或通道关闭。
// 报价桥的 websocket 客户端往通道里写，这里消费。
func ConsumeQuotes(ctx context.Context, ch <-chan Quote, sink QuoteSink) {
	for {
		select {
		case <-ctx.Done():
			return
		case q, ok := <-ch:
			if !ok {
				return
			}
			sink.Apply(ctx, q)
		}
	}
}
