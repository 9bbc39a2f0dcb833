package news

import (
	"sort"
	"sync"
	"time"
)

// Cache 按时间窗缓存规范化后的文章，供评估周期直接取用。
type Cache struct {
	mu      sync.RWMutex
	data    map[string]Article // key: DedupKey
	ttl     time.Duration
	maxSize int
}

func NewCache(ttl time.Duration, maxSize int) *Cache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if maxSize <= 0 {
		maxSize = 500
	}
	return &Cache{data: make(map[string]Article), ttl: ttl, maxSize: maxSize}
}

// Put 整批写入。过期条目在写入时顺带清理。
func (c *Cache) Put(articles []Article, now time.Time) {
	if c == nil || len(articles) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	cutoff := now.Add(-c.ttl)
	for k, a := range c.data {
		if !a.PublishedAt.IsZero() && a.PublishedAt.Before(cutoff) {
			delete(c.data, k)
		}
	}
	for _, a := range articles {
		if !a.PublishedAt.IsZero() && a.PublishedAt.Before(cutoff) {
			continue
		}
		c.data[a.DedupKey()] = a
	}
	if len(c.data) > c.maxSize {
		c.evictOldest(len(c.data) - c.maxSize)
	}
}

// Snapshot 返回窗口内的文章，按发布时间倒序。
func (c *Cache) Snapshot(now time.Time) []Article {
	if c == nil {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	cutoff := now.Add(-c.ttl)
	out := make([]Article, 0, len(c.data))
	for _, a := range c.data {
		if !a.PublishedAt.IsZero() && a.PublishedAt.Before(cutoff) {
			continue
		}
		out = append(out, a)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].PublishedAt.After(out[j].PublishedAt)
	})
	return out
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

// evictOldest 淘汰发布时间最早的 n 条，调用方需持有写锁。
func (c *Cache) evictOldest(n int) {
	type kv struct {
		key string
		at  time.Time
	}
	items := make([]kv, 0, len(c.data))
	for k, a := range c.data {
		items = append(items, kv{key: k, at: a.PublishedAt})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].at.Before(items[j].at) })
	for i := 0; i < n && i < len(items); i++ {
		delete(c.data, items[i].key)
	}
}
