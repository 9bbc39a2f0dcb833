package analysis

import (
	"context"
	"errors"

	"kestrel/internal/levels"
	"kestrel/internal/market"
	"kestrel/internal/news"
	"kestrel/internal/pairs"
)

// ErrUnavailable 引擎暂时给不出结果（模型全部失败、历史数据不足等）。
// 调用方应把它当作观望处理，而不是编造建议。
var ErrUnavailable = errors.New("分析引擎不可用")

// ImagePayload 视觉模型的图表载荷
type ImagePayload struct {
	DataURI     string
	Description string
}

// Input 引擎输入：品种、风格、各周期 K 线、新闻与已算好的水平位。
type Input struct {
	Spec    pairs.Spec
	Style   market.Style
	Primary string
	Periods []string
	Series  map[string]market.Candles
	Current float64

	Articles []news.Article
	Levels   []levels.Level
	Images   []ImagePayload
}

// CurrentPrice 现价，缺失时退回主周期最后收盘价。
func (in Input) CurrentPrice() float64 {
	if in.Current > 0 {
		return in.Current
	}
	if cs := in.PrimarySeries(); len(cs) > 0 {
		return cs[len(cs)-1].Close
	}
	return 0
}

// PrimarySeries 主周期 K 线，未配置主周期时取第一个有数据的周期。
func (in Input) PrimarySeries() market.Candles {
	if cs, ok := in.Series[in.Primary]; ok && len(cs) > 0 {
		return cs
	}
	for _, p := range in.Periods {
		if cs, ok := in.Series[p]; ok && len(cs) > 0 {
			return cs
		}
	}
	return nil
}

// Engine 分析引擎接口
type Engine interface {
	Analyze(ctx context.Context, in Input) (Recommendation, error)
	Name() string
}
