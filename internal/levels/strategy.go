package levels

import (
	"fmt"
	"sort"
	"sync"

	"kestrel/internal/market"
	"kestrel/internal/pairs"
	"kestrel/internal/pkg/sliceutil"
)

// Input 一次水平位计算的输入。Primary 为主周期的 K 线窗口，
// 周线图谱等策略会用到更长的窗口。
type Input struct {
	Candles market.Candles
	Spec    pairs.Spec
	Current float64
}

// Strategy 水平位计算策略。实现方只负责产出候选位，
// 合并与强度评分由 Engine 统一处理。
type Strategy interface {
	ID() string
	Compute(in Input) []Level
}

var (
	regMu      sync.RWMutex
	registry   = map[string]Strategy{}
	registryID []string
)

// Register 注册策略。重复 ID 直接 panic，属于编码错误。
func Register(s Strategy) {
	regMu.Lock()
	defer regMu.Unlock()
	id := s.ID()
	if _, ok := registry[id]; ok {
		panic(fmt.Sprintf("levels: 策略 %s 重复注册", id))
	}
	registry[id] = s
	registryID = append(registryID, id)
}

// Lookup 按 ID 取策略。
func Lookup(id string) (Strategy, bool) {
	regMu.RLock()
	defer regMu.RUnlock()
	s, ok := registry[id]
	return s, ok
}

// IDs 返回已注册策略 ID，字典序。
func IDs() []string {
	regMu.RLock()
	defer regMu.RUnlock()
	out := sliceutil.Strings(registryID)
	sort.Strings(out)
	return out
}

// Resolve 把配置里的策略 ID 列表换成实例，未知 ID 报错。
func Resolve(ids []string) ([]Strategy, error) {
	out := make([]Strategy, 0, len(ids))
	for _, id := range ids {
		s, ok := Lookup(id)
		if !ok {
			return nil, fmt.Errorf("未知的水平位策略: %s（可用: %v）", id, IDs())
		}
		out = append(out, s)
	}
	return out, nil
}
