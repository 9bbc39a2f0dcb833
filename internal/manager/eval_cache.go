package manager

import (
	"strings"
	"sync"
	"time"
)

// evalCache 缓存按需评估结果。聊天引擎一轮要花真金白银，
// 短 TTL 内同品种同风格的重复请求直接吃缓存。
type evalCache struct {
	mu   sync.RWMutex
	data map[string]AdhocEvaluation // key: PAIR|style
	ttl  time.Duration
}

func newEvalCache(ttl time.Duration) *evalCache {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &evalCache{data: make(map[string]AdhocEvaluation), ttl: ttl}
}

func evalKey(pair, style string) string {
	return strings.ToUpper(strings.TrimSpace(pair)) + "|" + strings.ToLower(strings.TrimSpace(style))
}

func (c *evalCache) Get(pair, style string, now time.Time) (AdhocEvaluation, bool) {
	if c == nil {
		return AdhocEvaluation{}, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	hit, ok := c.data[evalKey(pair, style)]
	if !ok || now.Sub(hit.At) > c.ttl {
		return AdhocEvaluation{}, false
	}
	return hit, true
}

func (c *evalCache) Set(res AdhocEvaluation) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.data[evalKey(res.Pair, res.Style)] = res
	c.mu.Unlock()
}

// Snapshot 未过期的缓存条目，管理面看最近都评过什么。
func (c *evalCache) Snapshot(now time.Time) []AdhocEvaluation {
	if c == nil {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.data) == 0 {
		return nil
	}
	out := make([]AdhocEvaluation, 0, len(c.data))
	for _, hit := range c.data {
		if now.Sub(hit.At) > c.ttl {
			continue
		}
		out = append(out, hit)
	}
	return out
}
