// Package newswire 从公开外汇资讯站点抓取新闻列表页，实现 news.SourceAdapter。
// 站点结构是表驱动的：改版时只需调整对应站点的选择器链，抓取流程不动。
package newswire

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"

	"kestrel/internal/logger"
	"kestrel/internal/news"
	"kestrel/internal/pairs"
	"kestrel/internal/pkg/text"
)

const (
	defaultTimeout  = 15 * time.Second
	maxItemsPerPage = 15
	maxSummaryLen   = 5000

	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// siteSpec 描述一个站点怎么抓：入口栏目路径加上条目/标题/摘要三级选择器链。
type siteSpec struct {
	name    string // 配置里的来源名
	label   string // 写入 Article.Source 的展示名
	baseURL string
	paths   []string
	item    string // 列表条目选择器
	altItem string // 条目备用选择器，主选择器命中为零时启用
	title   string // 条目内标题选择器
	summary string // 条目内摘要选择器
}

var sites = map[string]siteSpec{
	"forexlive": {
		name:    "forexlive",
		label:   "ForexLive",
		baseURL: "https://www.forexlive.com",
		paths:   []string{"/news", "/technical-analysis"},
		item:    "article, li.article-list__item, div.article-slot",
		altItem: "div.list-item, a.article-link",
		title:   "h2, h3, a.article-slot__title, span.title",
		summary: "p, div.article-slot__intro, span.summary",
	},
	"dailyfx": {
		name:    "dailyfx",
		label:   "DailyFX",
		baseURL: "https://www.dailyfx.com",
		paths:   []string{"/forex", "/technical-analysis", "/market-news"},
		item:    "article, div.dfx-articleList a, a.dfx-article",
		altItem: "div.article-list article, div.content-list a",
		title:   "h3, h2, span.title, div.title",
		summary: "p, div.summary, span.description",
	},
	"fxstreet": {
		name:    "fxstreet",
		label:   "FXStreet",
		baseURL: "https://www.fxstreet.com",
		paths:   []string{"/news", "/analysis", "/technical-analysis"},
		item:    "article, div.fxs_entry, div.fxs_headline_tiny",
		altItem: "a.fxs_headline, div.news-item",
		title:   "h2, h3, h4, a.fxs_headline_tiny_title, span.title",
		summary: "p, div.fxs_entry_summary, span.summary",
	},
	"forexfactory": {
		name:    "forexfactory",
		label:   "Forex Factory",
		baseURL: "https://www.forexfactory.com",
		paths:   []string{"/news", "/calendar"},
		item:    "div.flexposts__item, tr.calendar__row, div.news__item",
		title:   "a.flexposts__title, span.news__title, a.calendar__event-title, span.calendar__event-title",
		summary: "div.flexposts__excerpt, span.news__snippet, p",
	},
	"investing": {
		name:    "investing",
		label:   "Investing.com",
		baseURL: "https://www.investing.com",
		paths:   []string{"/news/forex-news", "/news/commodities-news"},
		item:    "article.js-article-item, div.largeTitle article, div.mediumTitle1 article",
		altItem: "a[data-test='article-title-link']",
		title:   "a.title, a[data-test='article-title-link'], h3 a, h2 a",
		summary: "p, div.textDiv, span.js-article-item-description",
	},
}

// Known 返回全部可配置的来源名，顺序稳定。
func Known() []string {
	names := make([]string, 0, len(sites))
	for name := range sites {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build 把配置的来源名映射为抓取适配器。未知来源名直接报错，
// 避免拼写错误悄悄变成"没有新闻"。重复的名字只建一个。
func Build(sources []string, timeout time.Duration) ([]news.SourceAdapter, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("news.sources 不能为空")
	}
	adapters := make([]news.SourceAdapter, 0, len(sources))
	seen := make(map[string]bool, len(sources))
	for _, raw := range sources {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "" || seen[name] {
			continue
		}
		site, ok := sites[name]
		if !ok {
			return nil, fmt.Errorf("未知新闻来源 %q，可用: %s", name, strings.Join(Known(), ", "))
		}
		seen[name] = true
		adapters = append(adapters, newScraper(site, timeout))
	}
	return adapters, nil
}

// Scraper 按 siteSpec 抓取一个站点的新闻列表。
type Scraper struct {
	site   siteSpec
	client *resty.Client
	limit  int
	now    func() time.Time
}

func newScraper(site siteSpec, timeout time.Duration) *Scraper {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("User-Agent", userAgent).
		SetHeader("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8").
		SetHeader("Accept-Language", "en-US,en;q=0.5")
	return &Scraper{site: site, client: client, limit: maxItemsPerPage, now: time.Now}
}

func (s *Scraper) Name() string { return s.site.name }

// Fetch 依次抓取站点的各个栏目页。单个栏目失败记 warn 后继续，
// 全部失败且一无所获时才返回错误。
func (s *Scraper) Fetch(ctx context.Context, pairFilter []string) ([]news.Article, error) {
	keywords := keywordTable(pairFilter)
	var (
		out     []news.Article
		lastErr error
	)
	for _, path := range s.site.paths {
		pageURL := s.site.baseURL + path
		doc, err := s.fetchPage(ctx, pageURL)
		if err != nil {
			lastErr = err
			logger.Warnf("newswire %s 抓取 %s 失败: %v", s.site.name, pageURL, err)
			continue
		}
		out = append(out, s.parseList(doc, keywords)...)
	}
	if len(out) == 0 && lastErr != nil {
		return nil, fmt.Errorf("来源 %s 全部栏目抓取失败: %w", s.site.name, lastErr)
	}
	logger.Debugf("newswire %s 抓取到 %d 条", s.site.name, len(out))
	return out, nil
}

func (s *Scraper) fetchPage(ctx context.Context, pageURL string) (*goquery.Document, error) {
	resp, err := s.client.R().SetContext(ctx).Get(pageURL)
	if err != nil {
		return nil, fmt.Errorf("请求 %s: %w", pageURL, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("请求 %s: HTTP %d", pageURL, resp.StatusCode())
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(resp.String()))
	if err != nil {
		return nil, fmt.Errorf("解析 %s: %w", pageURL, err)
	}
	return doc, nil
}

// parseList 从列表页提取至多 limit 条文章。列表页不带可靠时间戳，
// 发布时间以抓取时间计，由上游按时效过滤。
func (s *Scraper) parseList(doc *goquery.Document, keywords map[string][]string) []news.Article {
	items := doc.Find(s.site.item)
	if items.Length() == 0 && s.site.altItem != "" {
		items = doc.Find(s.site.altItem)
	}
	var out []news.Article
	items.EachWithBreak(func(_ int, el *goquery.Selection) bool {
		if len(out) >= s.limit {
			return false
		}
		title, link := s.titleAndLink(el)
		if title == "" {
			return true
		}
		summary := text.Truncate(text.CollapseSpace(el.Find(s.site.summary).First().Text()), maxSummaryLen)
		out = append(out, news.Article{
			Source:      s.site.label,
			Title:       title,
			URL:         link,
			RawText:     summary,
			PublishedAt: s.now(),
			Pairs:       news.MatchPairs(title, summary, keywords),
		})
		return true
	})
	return out
}

// titleAndLink 从条目里取标题与绝对链接。条目本身是 <a> 时标题可退回条目自身。
func (s *Scraper) titleAndLink(el *goquery.Selection) (string, string) {
	titleEl := el.Find(s.site.title).First()
	if titleEl.Length() == 0 {
		if goquery.NodeName(el) == "a" {
			titleEl = el
		} else {
			titleEl = el.Find("a").First()
		}
	}
	if titleEl.Length() == 0 {
		return "", ""
	}
	title := text.CollapseSpace(titleEl.Text())
	link, ok := titleEl.Attr("href")
	if !ok || link == "" {
		if goquery.NodeName(el) == "a" {
			link, _ = el.Attr("href")
		} else {
			link, _ = el.Find("a").First().Attr("href")
		}
	}
	link = strings.TrimSpace(link)
	if link != "" && !strings.HasPrefix(link, "http") {
		link = s.site.baseURL + link
	}
	return title, link
}

// keywordTable 为每个关注品种汇总匹配词：品种代码本身加上行情参数里的关键词表。
func keywordTable(pairFilter []string) map[string][]string {
	table := make(map[string][]string, len(pairFilter))
	for _, p := range pairFilter {
		sym := pairs.Normalize(p)
		if sym == "" {
			continue
		}
		spec, _ := pairs.Lookup(sym)
		table[sym] = append([]string{sym}, spec.Keywords...)
	}
	return table
}
