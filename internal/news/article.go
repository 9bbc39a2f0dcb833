package news

import (
	"net/url"
	"sort"
	"strings"
	"time"

	"kestrel/internal/pkg/text"
)

// Article 规范化后的新闻条目。创建后不再修改。
type Article struct {
	Source      string
	Title       string
	URL         string
	RawText     string
	PublishedAt time.Time
	Pairs       []string
}

// DedupKey 去重键：规范化 (source, url)，无 URL 时退回 (title, published_at)。
func (a Article) DedupKey() string {
	src := strings.ToLower(strings.TrimSpace(a.Source))
	if u := normalizeURL(a.URL); u != "" {
		return src + "|" + u
	}
	return src + "|" + titleKey(a.Title) + "|" + a.PublishedAt.UTC().Format(time.RFC3339)
}

// normalizeURL 小写 scheme/host，去 query 与 fragment，去末尾斜杠。
func normalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return strings.ToLower(strings.TrimRight(raw, "/"))
	}
	path := strings.TrimRight(u.EscapedPath(), "/")
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host) + path
}

// titleKey 标题折叠空白、取小写、截断，作为弱去重键。
func titleKey(title string) string {
	t := strings.ToLower(text.CollapseSpace(title))
	runes := []rune(t)
	if len(runes) > 50 {
		runes = runes[:50]
	}
	return string(runes)
}

// MatchPairs 根据每个品种的关键词表判断文章涉及哪些品种。
// 关键词不区分大小写，标题与正文都参与匹配。
func MatchPairs(title, body string, keywords map[string][]string) []string {
	haystack := strings.ToLower(title + " " + body)
	var out []string
	for pair, words := range keywords {
		for _, w := range words {
			if w == "" {
				continue
			}
			if strings.Contains(haystack, strings.ToLower(w)) {
				out = append(out, pair)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}
