package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"kestrel/internal/config"
	"kestrel/internal/executor/paper"
	"kestrel/internal/gateway/notifier"
	"kestrel/internal/gateway/stream"
	"kestrel/internal/logger"
	"kestrel/internal/manager"
	"kestrel/internal/market"
	"kestrel/internal/metrics"
	"kestrel/internal/news"
	"kestrel/internal/store"
	apihttp "kestrel/internal/transport/http"
)

// App 进程编排：持有装配好的各层组件，Run 把它们跑起来并等退出。
type App struct {
	cfg *config.Config
	mgr *manager.Manager
	api *apihttp.Server

	poll     *market.PollUpdater
	streamer *stream.Client
	quoteCh  chan market.Quote
	quoteFan market.QuoteSink

	news    *newsStack
	symbols []string

	tg *notifier.Telegram
	db *store.SQLiteStore
}

// NewApp 根据配置构建应用对象（不启动）
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	logger.SetAnalysisLog(cfg.App.AnalysisLog)
	return buildAppWithWire(context.Background(), cfg)
}

// Run 启动机器人调度与各后台服务，阻塞到 ctx 取消或某个服务出错。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app 未初始化")
	}
	defer a.Close()

	group, ctx := errgroup.WithContext(ctx)

	a.mgr.Start(ctx)
	defer a.mgr.Stop()

	group.Go(func() error {
		if err := a.api.Start(ctx); err != nil && ctx.Err() == nil {
			return fmt.Errorf("HTTP 服务退出: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		return a.poll.Run(ctx, a.symbols)
	})

	if a.streamer != nil {
		a.streamer.OnReconnect = func() {
			logger.Infof("报价桥已重连")
		}
		group.Go(func() error {
			return a.streamer.Run(ctx, a.quoteCh)
		})
		group.Go(func() error {
			market.ConsumeQuotes(ctx, a.quoteCh, a.quoteFan)
			return nil
		})
	}

	group.Go(func() error {
		a.newsLoop(ctx)
		return nil
	})

	a.announceStartup()

	return group.Wait()
}

// Close 释放持有的资源，幂等。
func (a *App) Close() {
	if a == nil {
		return
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			logger.Warnf("关闭历史库失败: %v", err)
		}
		a.db = nil
	}
}

// newsLoop 启动即抓一轮，此后按节拍滚动。
func (a *App) newsLoop(ctx context.Context) {
	a.scrapeOnce(ctx)
	ticker := time.NewTicker(a.news.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.scrapeOnce(ctx)
		}
	}
}

func (a *App) scrapeOnce(ctx context.Context) {
	batches := news.FetchAll(ctx, a.news.adapters, a.symbols)
	fresh := a.news.norm.Normalize(batches)
	now := time.Now()
	a.news.cache.Put(fresh, now)
	cached := len(a.news.cache.Snapshot(now))
	metrics.SetArticlesCached(cached)
	if news.AllFailed(batches) {
		logger.Errorf("新闻抓取全部失败，共 %d 个来源", len(a.news.adapters))
		return
	}
	logger.Infof("新闻抓取完成: 本轮入库 %d 条，缓存 %d 条", len(fresh), cached)
}

func (a *App) announceStartup() {
	robots := a.mgr.List()
	fmt.Printf("Kestrel 已启动: %d 台机器人 / %d 个品种, HTTP %s\n",
		len(robots), len(a.symbols), a.api.Addr())
	if a.tg == nil {
		return
	}
	var b strings.Builder
	b.WriteString("*Kestrel 启动成功* ✅\n```\n")
	fmt.Fprintf(&b, "品种  : %s\n", strings.Join(a.symbols, ", "))
	fmt.Fprintf(&b, "机器人: %d 台\n", len(robots))
	fmt.Fprintf(&b, "节拍  : %d 秒\n", a.cfg.Robots.TickIntervalSeconds)
	fmt.Fprintf(&b, "引擎  : %s\n", a.cfg.Analysis.Engine)
	b.WriteString("```")
	if err := a.tg.SendText(b.String()); err != nil {
		logger.Warnf("Telegram 启动通知失败: %v", err)
	}
}

// fanSink 一条报价喂给多个消费端。
type fanSink []market.QuoteSink

func (f fanSink) Apply(ctx context.Context, q market.Quote) {
	for _, s := range f {
		s.Apply(ctx, q)
	}
}

// paperSink 纸面执行器的盯市喂价口，持仓被动平掉时顺带发通知。
type paperSink struct {
	ex *paper.Executor
	tg *notifier.Telegram
}

func (s paperSink) Apply(_ context.Context, q market.Quote) {
	for _, pos := range s.ex.OnPrice(q.Symbol, q.Mid()) {
		logger.Infof("纸面平仓(%s): %s %s %s %.2f 手 @ %.5f 盈亏 %.2f",
			closeNoteCN(pos.CloseNote), pos.Account, pos.Symbol, pos.Side, pos.Lots, pos.ClosePrice, pos.Profit)
		if s.tg == nil {
			continue
		}
		msg := fmt.Sprintf("📉 *持仓已平（%s）*\n```\nticket: %s\npair  : %s %s\nlots  : %.2f\nclose : %.5f\npnl   : %.2f\n```",
			closeNoteCN(pos.CloseNote), pos.Ticket, pos.Symbol, pos.Side, pos.Lots, pos.ClosePrice, pos.Profit)
		if err := s.tg.SendText(msg); err != nil {
			logger.Warnf("Telegram 推送失败: %v", err)
		}
	}
}

func closeNoteCN(note string) string {
	switch note {
	case "stop_loss":
		return "止损"
	case "take_profit":
		return "止盈"
	}
	return note
}
