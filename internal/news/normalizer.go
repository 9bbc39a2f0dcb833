package news

import (
	"sort"
	"strings"
	"time"

	"kestrel/internal/logger"
)

// SourceBatch 一个来源抓取的结果。Err 非空表示该来源失败。
type SourceBatch struct {
	Source   string
	Articles []Article
	Err      error
}

// Normalizer 把多来源的原始批次合并为去重、过滤后的有序文章集。
type Normalizer struct {
	keywords map[string][]string // pair -> 关键词表
	maxAge   time.Duration
	now      func() time.Time
}

func NewNormalizer(keywords map[string][]string, maxAge time.Duration) *Normalizer {
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}
	return &Normalizer{keywords: keywords, maxAge: maxAge, now: time.Now}
}

// Normalize 合并批次：逐来源容错，按键去重保留最早 published_at，
// 过滤掉与关注品种无关或过旧的文章，最终按时间倒序返回。
// 纯内存操作，不做任何 I/O。
func (n *Normalizer) Normalize(batches []SourceBatch) []Article {
	cutoff := n.now().Add(-n.maxAge)
	byKey := make(map[string]Article)
	failed := 0
	for _, b := range batches {
		if b.Err != nil {
			failed++
			logger.Warnf("新闻来源 %s 抓取失败，跳过: %v", b.Source, b.Err)
			continue
		}
		for _, a := range b.Articles {
			if a.Source == "" {
				a.Source = b.Source
			}
			if strings.TrimSpace(a.Title) == "" {
				continue
			}
			if !a.PublishedAt.IsZero() && a.PublishedAt.Before(cutoff) {
				continue
			}
			if len(a.Pairs) == 0 {
				a.Pairs = MatchPairs(a.Title, a.RawText, n.keywords)
			}
			if len(a.Pairs) == 0 {
				continue
			}
			key := a.DedupKey()
			if prev, ok := byKey[key]; ok {
				// 重复条目保留最早发布时间的那份
				if !prev.PublishedAt.IsZero() && (a.PublishedAt.IsZero() || !a.PublishedAt.Before(prev.PublishedAt)) {
					continue
				}
			}
			byKey[key] = a
		}
	}
	if failed > 0 && failed == len(batches) {
		logger.Errorf("全部 %d 个新闻来源均失败", failed)
	}
	out := make([]Article, 0, len(byKey))
	for _, a := range byKey {
		out = append(out, a)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].PublishedAt.Equal(out[j].PublishedAt) {
			return out[i].PublishedAt.After(out[j].PublishedAt)
		}
		if out[i].Source != out[j].Source {
			return out[i].Source < out[j].Source
		}
		return out[i].Title < out[j].Title
	})
	return out
}

// ForPair 过滤出涉及指定品种的文章。
func ForPair(articles []Article, pair string) []Article {
	var out []Article
	for _, a := range articles {
		for _, p := range a.Pairs {
			if strings.EqualFold(p, pair) {
				out = append(out, a)
				break
			}
		}
	}
	return out
}

// AllFailed 判断是否所有来源都失败（上游以此决定 HOLD）。
func AllFailed(batches []SourceBatch) bool {
	if len(batches) == 0 {
		return true
	}
	for _, b := range batches {
		if b.Err == nil {
			return false
		}
	}
	return true
}
