package market

import (
	"context"
	"time"
)

// Quote 即时报价
type Quote struct {
	Symbol string
	Bid    float64
	Ask    float64
	Price  float64
	Time   time.Time
}

// Mid 中间价，无买卖价时退回 Price
func (q Quote) Mid() float64 {
	if q.Bid > 0 && q.Ask > 0 {
		return (q.Bid + q.Ask) / 2
	}
	return q.Price
}

// SeriesProvider 拉取历史 K 线
type SeriesProvider interface {
	Series(ctx context.Context, symbol, period string, bars int) (Candles, error)
}

// QuoteProvider 拉取即时报价
type QuoteProvider interface {
	Quote(ctx context.Context, symbol string) (Quote, error)
}

// Provider 行情来源的完整能力
type Provider interface {
	SeriesProvider
	QuoteProvider
	Name() string
}
