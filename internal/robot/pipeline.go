package robot

import (
	"context"
	"errors"
	"time"

	"kestrel/internal/analysis"
	"kestrel/internal/levels"
	"kestrel/internal/logger"
	"kestrel/internal/market"
	"kestrel/internal/news"
	"kestrel/internal/pairs"
)

// ErrNoInput 既没有文章也没有行情，本轮无从分析，按观望处理。
var ErrNoInput = errors.New("无可用的新闻与行情输入")

// SeriesSource 按 (品种, 周期) 取 K 线。
type SeriesSource interface {
	Get(ctx context.Context, symbol, period string) (market.Candles, error)
}

// ArticleSource 当前时间窗内的文章快照。
type ArticleSource interface {
	Snapshot(now time.Time) []news.Article
}

// Analyzer 分析入口，失败统一表现为 analysis.ErrUnavailable。
type Analyzer interface {
	Evaluate(ctx context.Context, in analysis.Input) (analysis.Recommendation, error)
}

// Snapshotter 渲染主周期图表快照，供视觉模型用。
type Snapshotter interface {
	Snapshot(ctx context.Context, in analysis.Input) (analysis.ImagePayload, error)
}

// Pipeline 一轮评估的完整读路径：文章快照 → 各周期 K 线 → 现价 →
// 水平位 → 分析。不持有任何跨周期状态，同样的输入给同样的输出。
type Pipeline struct {
	Candles  SeriesSource
	Quotes   market.QuoteProvider // 可空，现价退回主周期收盘
	Articles ArticleSource        // 可空
	Analyzer Analyzer
	Levels   *levels.Engine // 可空，则建议只能依赖模型自带的止损止盈
	Shots    Snapshotter    // 可空
	Now      func() time.Time
}

// Evaluation 一轮评估的产物。
type Evaluation struct {
	Rec      analysis.Recommendation
	Levels   []levels.Level
	Current  float64
	Articles int
}

func (p *Pipeline) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

// Evaluate 跑一轮分析。没有任何输入时返回 ErrNoInput；
// 分析端失败原样上抛（包装在 analysis.ErrUnavailable 里）。
func (p *Pipeline) Evaluate(ctx context.Context, spec pairs.Spec, style market.Style) (Evaluation, error) {
	if err := ctx.Err(); err != nil {
		return Evaluation{}, err
	}

	var articles []news.Article
	if p.Articles != nil {
		articles = news.ForPair(p.Articles.Snapshot(p.now()), spec.Symbol)
	}

	series := make(map[string]market.Candles, len(style.Frames))
	withData := 0
	for _, period := range style.Frames {
		cs, err := p.Candles.Get(ctx, spec.Symbol, period)
		if err != nil {
			logger.Warnf("读取 %s %s K 线失败: %v", spec.Symbol, period, err)
			continue
		}
		if len(cs) == 0 {
			continue
		}
		series[period] = cs
		withData++
	}

	current := 0.0
	if p.Quotes != nil {
		if q, err := p.Quotes.Quote(ctx, spec.Symbol); err == nil {
			current = q.Price
		} else {
			logger.Debugf("取 %s 实时报价失败，现价退回收盘: %v", spec.Symbol, err)
		}
	}

	in := analysis.Input{
		Spec:     spec,
		Style:    style,
		Primary:  style.Primary,
		Periods:  style.Frames,
		Series:   series,
		Current:  current,
		Articles: articles,
	}
	if withData == 0 && in.CurrentPrice() <= 0 && len(articles) == 0 {
		return Evaluation{}, ErrNoInput
	}

	if p.Levels != nil {
		in.Levels = p.Levels.Compute(in.PrimarySeries(), spec, in.CurrentPrice())
	}
	if p.Shots != nil && len(in.PrimarySeries()) > 1 {
		if img, err := p.Shots.Snapshot(ctx, in); err == nil {
			in.Images = []analysis.ImagePayload{img}
		} else {
			logger.Warnf("渲染 %s 图表快照失败，本轮不带图: %v", spec.Symbol, err)
		}
	}

	rec, err := p.Analyzer.Evaluate(ctx, in)
	if err != nil {
		return Evaluation{}, err
	}
	return Evaluation{
		Rec:      rec,
		Levels:   in.Levels,
		Current:  in.CurrentPrice(),
		Articles: len(articles),
	}, nil
}
