package news

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// SourceAdapter 新闻来源适配器：抓取并产出已初步解析的文章。
type SourceAdapter interface {
	Fetch(ctx context.Context, pairFilter []string) ([]Article, error)
	Name() string
}

// FetchAll 并发抓取全部来源。单个来源失败只体现在对应批次的 Err 上，
// 不影响其他来源。
func FetchAll(ctx context.Context, adapters []SourceAdapter, pairFilter []string) []SourceBatch {
	batches := make([]SourceBatch, len(adapters))
	g, ctx := errgroup.WithContext(ctx)
	for i, ad := range adapters {
		i, ad := i, ad
		g.Go(func() error {
			articles, err := ad.Fetch(ctx, pairFilter)
			batches[i] = SourceBatch{Source: ad.Name(), Articles: articles, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return batches
}
