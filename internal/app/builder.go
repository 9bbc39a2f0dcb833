package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"kestrel/internal/analysis"
	"kestrel/internal/analysis/visual"
	"kestrel/internal/config"
	"kestrel/internal/executor"
	"kestrel/internal/executor/paper"
	"kestrel/internal/gateway/mtbridge"
	"kestrel/internal/gateway/newswire"
	"kestrel/internal/gateway/notifier"
	"kestrel/internal/gateway/stream"
	"kestrel/internal/gateway/yahoo"
	"kestrel/internal/levels"
	"kestrel/internal/logger"
	"kestrel/internal/manager"
	"kestrel/internal/market"
	"kestrel/internal/news"
	"kestrel/internal/pairs"
	"kestrel/internal/risk"
	"kestrel/internal/robot"
	"kestrel/internal/store"
	apihttp "kestrel/internal/transport/http"
)

// Builder 把配置装配成一个可运行的 App。装配顺序：品种 → 行情 →
// 新闻 → 分析 → 执行通道 → 历史库 → 管理器 → HTTP。
type Builder struct {
	cfg *config.Config
}

func NewBuilder(cfg *config.Config) *Builder { return &Builder{cfg: cfg} }

func (b *Builder) Build(ctx context.Context) (*App, error) {
	cfg := b.cfg

	symbols, err := resolveSymbols(ctx, cfg)
	if err != nil {
		return nil, err
	}

	mkt, err := buildMarketStack(ctx, cfg, symbols)
	if err != nil {
		return nil, err
	}

	nws, err := buildNewsStack(cfg, symbols)
	if err != nil {
		return nil, err
	}

	lvEngine, err := levels.NewEngine(cfg.Levels.Strategies, cfg.Levels.MergeTolerancePips, cfg.Levels.ATRPeriod)
	if err != nil {
		return nil, fmt.Errorf("初始化水平位引擎失败: %w", err)
	}

	adapter, charts, err := buildAnalysis(cfg, lvEngine)
	if err != nil {
		return nil, err
	}

	execs, sharedPaper, err := buildExecutors(cfg)
	if err != nil {
		return nil, err
	}

	rec, reader, db, err := buildRecorder(cfg)
	if err != nil {
		return nil, err
	}

	tg := newTelegram(cfg)

	pipe := &robot.Pipeline{
		Candles:  mkt.sink,
		Quotes:   mkt.src,
		Articles: nws.cache,
		Analyzer: adapter,
		Levels:   lvEngine,
	}
	if cfg.Analysis.SnapshotCharts {
		pipe.Shots = charts
	}

	mgr := buildManager(cfg, pipe, rec, tg)
	if err := registerAndSeed(cfg, mgr, execs); err != nil {
		return nil, err
	}

	api, err := buildAPIServer(cfg, mgr, reader, mkt, nws, lvEngine, charts)
	if err != nil {
		return nil, err
	}

	// 报价扇出：滚动聚合 K 线，纸面账户顺带盯市。
	fan := fanSink{mkt.roller}
	if sharedPaper != nil {
		fan = append(fan, paperSink{ex: sharedPaper, tg: tg})
	}
	poll := market.NewPollUpdater(mkt.src, fan,
		time.Duration(cfg.Market.PollIntervalSeconds)*time.Second)

	var (
		streamer *stream.Client
		quoteCh  chan market.Quote
	)
	if cfg.Market.Stream.Enabled {
		streamer, err = stream.New(stream.Config{URL: cfg.Market.Stream.URL})
		if err != nil {
			return nil, fmt.Errorf("初始化报价桥失败: %w", err)
		}
		quoteCh = make(chan market.Quote, 256)
		logger.Infof("✓ 报价桥已配置: %s", cfg.Market.Stream.URL)
	}

	return &App{
		cfg:      cfg,
		mgr:      mgr,
		api:      api,
		poll:     poll,
		streamer: streamer,
		quoteCh:  quoteCh,
		quoteFan: fan,
		news:     nws,
		symbols:  symbols,
		tg:       tg,
		db:       db,
	}, nil
}

func resolveSymbols(ctx context.Context, cfg *config.Config) ([]string, error) {
	var provider pairs.Provider
	if strings.EqualFold(cfg.Pairs.Provider, "http") {
		provider = pairs.NewHTTPProvider(cfg.Pairs.APIURL)
	} else {
		provider = pairs.NewDefaultProvider(cfg.Pairs.DefaultList)
	}
	listed, err := provider.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("拉取品种列表失败: %w", err)
	}
	seen := make(map[string]bool, len(listed))
	out := make([]string, 0, len(listed))
	for _, raw := range listed {
		sym := pairs.Normalize(raw)
		if sym == "" || seen[sym] {
			continue
		}
		seen[sym] = true
		out = append(out, sym)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("品种列表为空")
	}
	logger.Infof("✓ 关注品种(%s): %s", provider.Name(), strings.Join(out, ", "))
	return out, nil
}

type marketStack struct {
	src     *yahoo.Provider
	sink    *store.MemoryCandleStore
	roller  *market.Roller
	periods []string
}

func buildMarketStack(ctx context.Context, cfg *config.Config, symbols []string) (*marketStack, error) {
	if !strings.EqualFold(cfg.Market.Provider, "yahoo") {
		return nil, fmt.Errorf("未知行情源: %s", cfg.Market.Provider)
	}
	src := yahoo.New()
	sink := store.NewMemoryCandleStore()
	periods := watchPeriods(cfg)

	pre := market.NewPreheater(src, sink, cfg.Market.PreheatDays, cfg.Market.MaxCached)
	if err := pre.Run(ctx, symbols, periods); err != nil {
		// 预热失败不拦启动，轮询会逐步补上
		logger.Warnf("行情预热未完成: %v", err)
	} else {
		logger.Infof("✓ 行情预热就绪: %d 品种 × %d 周期", len(symbols), len(periods))
	}

	return &marketStack{
		src:     src,
		sink:    sink,
		roller:  market.NewRoller(sink, periods, cfg.Market.MaxCached),
		periods: periods,
	}, nil
}

// watchPeriods 预热与滚动聚合覆盖的周期：配置的 market.periods
// 加上所有交易风格用到的周期，去重保序。
func watchPeriods(cfg *config.Config) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(p string) {
		if p != "" && !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	for _, p := range cfg.Market.Periods {
		add(p)
	}
	for _, name := range market.StyleNames() {
		for _, frame := range market.StyleByName(name).Frames {
			add(frame)
		}
	}
	return out
}

type newsStack struct {
	adapters []news.SourceAdapter
	norm     *news.Normalizer
	cache    *news.Cache
	interval time.Duration
}

func buildNewsStack(cfg *config.Config, symbols []string) (*newsStack, error) {
	timeout := time.Duration(cfg.News.RequestTimeoutSeconds) * time.Second
	adapters, err := newswire.Build(cfg.News.Sources, timeout)
	if err != nil {
		return nil, fmt.Errorf("初始化新闻来源失败: %w", err)
	}
	maxAge := time.Duration(cfg.News.MaxAgeHours) * time.Hour
	logger.Infof("✓ 新闻来源: %s，时效 %s", strings.Join(cfg.News.Sources, ", "), maxAge)
	return &newsStack{
		adapters: adapters,
		norm:     news.NewNormalizer(keywordTable(symbols), maxAge),
		cache:    news.NewCache(maxAge, cfg.News.MaxCached),
		interval: time.Duration(cfg.News.ScrapeIntervalMinutes) * time.Minute,
	}, nil
}

// keywordTable 每个关注品种的匹配词：代码本身加上行情参数里的关键词。
func keywordTable(symbols []string) map[string][]string {
	table := make(map[string][]string, len(symbols))
	for _, sym := range symbols {
		spec, _ := pairs.Lookup(sym)
		table[spec.Symbol] = append([]string{spec.Symbol}, spec.Keywords...)
	}
	return table
}

func buildAnalysis(cfg *config.Config, lv *levels.Engine) (*analysis.Adapter, *visual.Renderer, error) {
	models := make([]analysis.ModelConfig, 0, len(cfg.Analysis.Models))
	for _, m := range cfg.Analysis.Models {
		models = append(models, analysis.ModelConfig{
			ID:       m.ID,
			Provider: m.Provider,
			Enabled:  m.Enabled,
			APIURL:   m.APIURL,
			APIKey:   m.APIKey,
			Model:    m.Model,
			Headers:  m.Headers,
		})
	}
	timeout := time.Duration(cfg.Analysis.TimeoutSeconds) * time.Second
	engines, err := analysis.BuildEngines(cfg.Analysis.Engine, models, timeout, cfg.Analysis.SnapshotCharts)
	if err != nil {
		return nil, nil, err
	}
	agg, err := analysis.NewAggregator(cfg.Analysis.Aggregation, cfg.Analysis.Weights)
	if err != nil {
		return nil, nil, err
	}
	adapter, err := analysis.NewAdapter(engines, agg, lv, timeout, cfg.Analysis.LogEachModel)
	if err != nil {
		return nil, nil, err
	}
	names := make([]string, 0, len(engines))
	for _, e := range engines {
		names = append(names, e.Name())
	}
	logger.Infof("✓ 分析引擎就绪: %s（聚合 %s）", strings.Join(names, ", "), agg.Name())

	charts := visual.NewRenderer(0)
	if cfg.Analysis.SnapshotCharts {
		if err := charts.Probe(); err != nil {
			logger.Warnf("%v，分析将不带配图", err)
		}
	}
	return adapter, charts, nil
}

func buildExecutors(cfg *config.Config) (map[string]executor.Executor, *paper.Executor, error) {
	execs := make(map[string]executor.Executor, len(cfg.Accounts))
	var (
		sharedPaper  *paper.Executor
		sharedBridge *mtbridge.Bridge
	)
	for _, acct := range cfg.Accounts {
		switch acct.Executor {
		case "", "paper":
			if sharedPaper == nil {
				sharedPaper = paper.New(cfg.Executor.Paper.SpreadPips)
			}
			balance := acct.Balance
			if balance <= 0 {
				balance = 10000
			}
			currency := acct.Currency
			if currency == "" {
				currency = "USD"
			}
			sharedPaper.Seed(acct.ID, balance, currency)
			execs[acct.ID] = sharedPaper
			logger.Infof("✓ 纸面账户 %s: %.2f %s", acct.ID, balance, currency)
		case "bridge":
			if sharedBridge == nil {
				br, err := mtbridge.New(cfg.Executor.Bridge.URL, cfg.Executor.Bridge.Token,
					time.Duration(cfg.Executor.Bridge.TimeoutSeconds)*time.Second)
				if err != nil {
					return nil, nil, fmt.Errorf("初始化下单桥失败: %w", err)
				}
				sharedBridge = br
				logger.Infof("✓ 下单桥已连接: %s", cfg.Executor.Bridge.URL)
			}
			execs[acct.ID] = sharedBridge
		}
	}
	return execs, sharedPaper, nil
}

func buildRecorder(cfg *config.Config) (store.Recorder, store.RecordReader, *store.SQLiteStore, error) {
	if strings.TrimSpace(cfg.Store.Path) == "" {
		logger.Warnf("store.path 为空，评估历史不落盘")
		return store.NopRecorder{}, nil, nil, nil
	}
	db, err := store.OpenSQLite(cfg.Store.Path)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("打开历史库失败: %w", err)
	}
	logger.Infof("✓ 评估历史写入 %s", cfg.Store.Path)
	return db, db, db, nil
}

func newTelegram(cfg *config.Config) *notifier.Telegram {
	if !cfg.Notify.Telegram.Enabled {
		return nil
	}
	return notifier.NewTelegram(cfg.Notify.Telegram.BotToken, cfg.Notify.Telegram.ChatID)
}

func buildManager(cfg *config.Config, pipe *robot.Pipeline, rec store.Recorder, tg *notifier.Telegram) *manager.Manager {
	var notify robot.Notifier
	if tg != nil {
		notify = tg
	}
	return manager.New(manager.Deps{
		Pipe:          pipe,
		Sizer:         risk.NewSizer(cfg.Risk.MaxRiskPercent),
		Retry: executor.RetryPolicy{
			MaxAttempts: cfg.Executor.Retry.MaxAttempts,
			Backoff:     time.Duration(cfg.Executor.Retry.BackoffMS) * time.Millisecond,
		},
		Recorder:      rec,
		Notify:        notify,
		RiskPercent:   cfg.Risk.RiskPercent,
		MinConfidence: cfg.Robots.ConfidenceThreshold,
		MinRiskReward: cfg.Risk.MinRiskReward,
		DefaultStyle:  cfg.Robots.DefaultStyle,
		TickEvery:     time.Duration(cfg.Robots.TickIntervalSeconds) * time.Second,
	})
}

func registerAndSeed(cfg *config.Config, mgr *manager.Manager, execs map[string]executor.Executor) error {
	for _, acct := range cfg.Accounts {
		info := manager.AccountInfo{
			ID:      acct.ID,
			Name:    acct.Name,
			Plan:    acct.Plan,
			MaxOpen: acct.MaxOpen,
			Exec:    execs[acct.ID],
		}
		if err := mgr.RegisterAccount(info); err != nil {
			return err
		}
	}
	for _, seed := range cfg.Robots.Seed {
		st, err := mgr.Add(robot.Config{
			Pair:        seed.Pair,
			Account:     seed.Account,
			Style:       seed.Style,
			RiskPercent: seed.RiskPercent,
		})
		if err != nil {
			return fmt.Errorf("预置机器人 %s@%s 失败: %w", seed.Pair, seed.Account, err)
		}
		if seed.Paused {
			if err := mgr.Pause(st.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

func buildAPIServer(cfg *config.Config, mgr *manager.Manager, reader store.RecordReader,
	mkt *marketStack, nws *newsStack, lv *levels.Engine, charts *visual.Renderer) (*apihttp.Server, error) {
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	srv, err := apihttp.NewServer(apihttp.Config{
		Addr:        fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Manager:     mgr,
		Reader:      reader,
		Candles:     mkt.sink,
		Quotes:      mkt.src,
		Articles:    nws.cache,
		Levels:      lv,
		Charts:      charts,
		MetricsPath: metricsPath,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化 HTTP 服务失败: %w", err)
	}
	logger.Infof("✓ HTTP 服务监听 %s", srv.Addr())
	return srv, nil
}
