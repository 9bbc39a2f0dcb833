package store

import (
	"context"
	"errors"
	"sync"

	"kestrel/internal/market"
)

// CandleStore 抽象：读写 symbol+period 的序列
type CandleStore interface {
	Put(ctx context.Context, symbol, period string, cs []market.Candle, max int) error
	Get(ctx context.Context, symbol, period string) (market.Candles, error)
}

// MemoryCandleStore 内存实现
type MemoryCandleStore struct {
	mu   sync.RWMutex
	data map[string][]market.Candle
}

func NewMemoryCandleStore() *MemoryCandleStore {
	return &MemoryCandleStore{data: make(map[string][]market.Candle)}
}
func key(symbol, period string) string { return symbol + "@" + period }

// Put 追加并裁剪。同 OpenTime 的 K 线覆盖旧值，轮询重叠不会产生重复。
func (s *MemoryCandleStore) Put(ctx context.Context, symbol, period string, cs []market.Candle, max int) error {
	if symbol == "" || period == "" {
		return errors.New("symbol/period 不能为空")
	}
	if len(cs) == 0 {
		return nil
	}
	if max <= 0 {
		max = 100
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(symbol, period)
	cur := s.data[k]
	for _, c := range cs {
		if n := len(cur); n > 0 && cur[n-1].OpenTime == c.OpenTime {
			cur[n-1] = c
			continue
		}
		if n := len(cur); n > 0 && c.OpenTime < cur[n-1].OpenTime {
			// 乱序数据丢弃，序列保持单调
			continue
		}
		cur = append(cur, c)
	}
	if len(cur) > max {
		cur = cur[len(cur)-max:]
	}
	s.data[k] = cur
	return nil
}

// Get 返回拷贝
func (s *MemoryCandleStore) Get(ctx context.Context, symbol, period string) (market.Candles, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cur := s.data[key(symbol, period)]
	out := make(market.Candles, len(cur))
	copy(out, cur)
	return out, nil
}
