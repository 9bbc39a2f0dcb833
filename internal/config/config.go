package config

import (
	"fmt"
	"os"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

// 配置结构体（与规划一致，保留必要字段，便于后续扩展）
type Config struct {
	App struct {
		Env         string `toml:"env"`
		LogLevel    string `toml:"log_level"`
		AnalysisLog string `toml:"analysis_log"` // 分析请求留痕文件，空则不落盘
	} `toml:"app"`

	Server struct {
		Host string `toml:"host"`
		Port int    `toml:"port"`
	} `toml:"server"`

	Pairs struct {
		Provider    string   `toml:"provider"`
		DefaultList []string `toml:"default_list"`
		APIURL      string   `toml:"api_url"` // 当 provider=http 时，从该地址拉取品种列表
	} `toml:"pairs"`

	News struct {
		Sources               []string `toml:"sources"`
		ScrapeIntervalMinutes int      `toml:"scrape_interval_minutes"`
		MaxAgeHours           int      `toml:"max_age_hours"`
		MaxCached             int      `toml:"max_cached"`
		RequestTimeoutSeconds int      `toml:"request_timeout_seconds"`
	} `toml:"news"`

	Market struct {
		Provider            string   `toml:"provider"`
		Periods             []string `toml:"periods"`
		MaxCached           int      `toml:"max_cached"`
		PollIntervalSeconds int      `toml:"poll_interval_seconds"`
		PreheatDays         int      `toml:"preheat_days"`
		Stream              struct {
			Enabled bool   `toml:"enabled"`
			URL     string `toml:"url"`
		} `toml:"stream"`
	} `toml:"market"`

	Analysis struct {
		Engine         string             `toml:"engine"` // chat | indicator | both
		Aggregation    string             `toml:"aggregation"`
		LogEachModel   bool               `toml:"log_each_model"`
		Weights        map[string]float64 `toml:"weights"`
		TimeoutSeconds int                `toml:"timeout_seconds"`
		SnapshotCharts bool               `toml:"snapshot_charts"` // 为图表型模型渲染 K 线截图
		// 模型配置：完全通过配置文件提供，不再使用环境变量
		Models []struct {
			ID       string            `toml:"id"`       // 唯一标识（如 openai/deepseek/qwen_自定义名）
			Provider string            `toml:"provider"` // openai | deepseek | qwen（均按 OpenAI 兼容接口调用）
			Enabled  bool              `toml:"enabled"`
			APIURL   string            `toml:"api_url"` // OpenAI 兼容 BaseURL，如 https://api.openai.com/v1
			APIKey   string            `toml:"api_key"`
			Model    string            `toml:"model"`   // 模型名，如 gpt-4o-mini / deepseek-chat / qwen3-max
			Headers  map[string]string `toml:"headers"` // 可选：自定义请求头（例如 X-API-Key、OpenAI-Organization 等）
		} `toml:"models"`
	} `toml:"analysis"`

	Levels struct {
		Strategies         []string `toml:"strategies"`
		MergeTolerancePips float64  `toml:"merge_tolerance_pips"`
		ATRPeriod          int      `toml:"atr_period"`
	} `toml:"levels"`

	Risk struct {
		RiskPercent    float64 `toml:"risk_percent"`
		MaxRiskPercent float64 `toml:"max_risk_percent"`
		MinRiskReward  float64 `toml:"min_risk_reward"`
	} `toml:"risk"`

	Robots struct {
		TickIntervalSeconds int     `toml:"tick_interval_seconds"`
		ConfidenceThreshold float64 `toml:"confidence_threshold"`
		DefaultStyle        string  `toml:"default_style"` // scalp | day | swing | position
		Seed                []struct {
			Pair        string  `toml:"pair"`
			Account     string  `toml:"account"`
			Style       string  `toml:"style"`
			RiskPercent float64 `toml:"risk_percent"`
			Paused      bool    `toml:"paused"`
		} `toml:"seed"`
	} `toml:"robots"`

	Accounts []struct {
		ID       string  `toml:"id"`
		Name     string  `toml:"name"`
		Balance  float64 `toml:"balance"`
		Currency string  `toml:"currency"`
		Executor string  `toml:"executor"` // paper | bridge
		Plan     string  `toml:"plan"`     // free | basic | premium
		MaxOpen  int     `toml:"max_open"` // 同账户并发持仓名额
	} `toml:"accounts"`

	Executor struct {
		Paper struct {
			SpreadPips float64 `toml:"spread_pips"`
		} `toml:"paper"`
		Bridge struct {
			URL            string `toml:"url"`
			Token          string `toml:"token"`
			TimeoutSeconds int    `toml:"timeout_seconds"`
		} `toml:"bridge"`
		Retry struct {
			MaxAttempts int `toml:"max_attempts"`
			BackoffMS   int `toml:"backoff_ms"`
		} `toml:"retry"`
	} `toml:"executor"`

	Store struct {
		Path string `toml:"path"`
	} `toml:"store"`

	Notify struct {
		Telegram struct {
			Enabled  bool   `toml:"enabled"`
			BotToken string `toml:"bot_token"`
			ChatID   string `toml:"chat_id"`
		} `toml:"telegram"`
	} `toml:"notify"`

	Metrics struct {
		Enabled bool   `toml:"enabled"`
		Path    string `toml:"path"`
	} `toml:"metrics"`
}

// Load 读取并解析 TOML 配置文件，并设置缺省值与基本校验
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("解析 TOML 失败: %w", err)
	}
	expandSecrets(&cfg)
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// 密钥字段支持 ${VAR} 形式从环境变量展开
func expandSecrets(c *Config) {
	for i := range c.Analysis.Models {
		c.Analysis.Models[i].APIKey = expandVar(c.Analysis.Models[i].APIKey)
	}
	c.Executor.Bridge.Token = expandVar(c.Executor.Bridge.Token)
	c.Notify.Telegram.BotToken = expandVar(c.Notify.Telegram.BotToken)
	c.Notify.Telegram.ChatID = expandVar(c.Notify.Telegram.ChatID)
}

func expandVar(s string) string {
	if strings.Contains(s, "${") {
		return os.ExpandEnv(s)
	}
	return s
}

// 默认值设置
func applyDefaults(c *Config) {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port <= 0 {
		c.Server.Port = 8000
	}
	if c.Pairs.Provider == "" {
		c.Pairs.Provider = "default"
	}
	if len(c.News.Sources) == 0 {
		c.News.Sources = []string{"forexlive", "dailyfx", "fxstreet"}
	}
	if c.News.ScrapeIntervalMinutes <= 0 {
		c.News.ScrapeIntervalMinutes = 60
	}
	if c.News.MaxAgeHours <= 0 {
		c.News.MaxAgeHours = 24
	}
	if c.News.MaxCached <= 0 {
		c.News.MaxCached = 500
	}
	if c.News.RequestTimeoutSeconds <= 0 {
		c.News.RequestTimeoutSeconds = 15
	}
	if c.Market.Provider == "" {
		c.Market.Provider = "yahoo"
	}
	if len(c.Market.Periods) == 0 {
		c.Market.Periods = []string{"1h", "1d"}
	}
	if c.Market.MaxCached <= 0 {
		c.Market.MaxCached = 500
	}
	if c.Market.PollIntervalSeconds <= 0 {
		c.Market.PollIntervalSeconds = 60
	}
	if c.Market.PreheatDays <= 0 {
		c.Market.PreheatDays = 90
	}
	if c.Analysis.Engine == "" {
		c.Analysis.Engine = "indicator"
	}
	if c.Analysis.Aggregation == "" {
		c.Analysis.Aggregation = "first_win"
	}
	if c.Analysis.TimeoutSeconds <= 0 {
		c.Analysis.TimeoutSeconds = 120
	}
	if len(c.Levels.Strategies) == 0 {
		c.Levels.Strategies = []string{"pivot", "fibonacci", "swing", "volume_profile", "round_number"}
	}
	if c.Levels.MergeTolerancePips <= 0 {
		c.Levels.MergeTolerancePips = 5
	}
	if c.Levels.ATRPeriod <= 0 {
		c.Levels.ATRPeriod = 14
	}
	if c.Risk.RiskPercent <= 0 {
		c.Risk.RiskPercent = 1.0
	}
	if c.Risk.MaxRiskPercent <= 0 {
		c.Risk.MaxRiskPercent = 2.0
	}
	if c.Risk.MinRiskReward <= 0 {
		c.Risk.MinRiskReward = 1.5
	}
	if c.Robots.TickIntervalSeconds <= 0 {
		c.Robots.TickIntervalSeconds = 300
	}
	if c.Robots.ConfidenceThreshold <= 0 {
		c.Robots.ConfidenceThreshold = 60
	}
	if c.Robots.DefaultStyle == "" {
		c.Robots.DefaultStyle = "day"
	}
	if c.Executor.Paper.SpreadPips <= 0 {
		c.Executor.Paper.SpreadPips = 1.0
	}
	if c.Executor.Bridge.TimeoutSeconds <= 0 {
		c.Executor.Bridge.TimeoutSeconds = 10
	}
	if c.Executor.Retry.MaxAttempts <= 0 {
		c.Executor.Retry.MaxAttempts = 3
	}
	if c.Executor.Retry.BackoffMS <= 0 {
		c.Executor.Retry.BackoffMS = 500
	}
	for i := range c.Accounts {
		if c.Accounts[i].MaxOpen <= 0 {
			c.Accounts[i].MaxOpen = 3
		}
	}
	if c.Store.Path == "" {
		c.Store.Path = "data/kestrel.db"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// 基础校验
func validate(c *Config) error {
	if c.Pairs.Provider == "default" && len(c.Pairs.DefaultList) == 0 {
		return fmt.Errorf("pairs.default_list 不能为空（当 provider=default 时）")
	}
	if c.Pairs.Provider == "http" && c.Pairs.APIURL == "" {
		return fmt.Errorf("pairs.api_url 不能为空（当 provider=http 时）")
	}
	if len(c.Market.Periods) == 0 {
		return fmt.Errorf("market.periods 至少需要一个周期")
	}
	if c.Market.MaxCached < 50 || c.Market.MaxCached > 5000 {
		return fmt.Errorf("market.max_cached 需在 [50,5000]")
	}
	for _, p := range c.Market.Periods {
		if !isValidInterval(p) {
			return fmt.Errorf("非法 market 周期: %s", p)
		}
	}
	switch c.Analysis.Engine {
	case "chat", "indicator", "both":
	default:
		return fmt.Errorf("analysis.engine 仅支持 chat/indicator/both")
	}
	if c.Analysis.Engine != "indicator" {
		enabled := 0
		for _, m := range c.Analysis.Models {
			if m.Enabled {
				enabled++
			}
		}
		if enabled == 0 {
			return fmt.Errorf("analysis.engine=%s 需要至少一个启用的模型", c.Analysis.Engine)
		}
	}
	switch c.Robots.DefaultStyle {
	case "scalp", "day", "swing", "position":
	default:
		return fmt.Errorf("robots.default_style 仅支持 scalp/day/swing/position")
	}
	if c.Risk.RiskPercent > c.Risk.MaxRiskPercent {
		return fmt.Errorf("risk.risk_percent 不能超过 risk.max_risk_percent")
	}
	seen := map[string]struct{}{}
	for _, a := range c.Accounts {
		if a.ID == "" {
			return fmt.Errorf("accounts[].id 不能为空")
		}
		if _, ok := seen[a.ID]; ok {
			return fmt.Errorf("账户 ID 重复: %s", a.ID)
		}
		seen[a.ID] = struct{}{}
		switch a.Executor {
		case "", "paper", "bridge":
		default:
			return fmt.Errorf("accounts[%s].executor 仅支持 paper/bridge", a.ID)
		}
		switch a.Plan {
		case "", "free", "basic", "premium":
		default:
			return fmt.Errorf("accounts[%s].plan 仅支持 free/basic/premium", a.ID)
		}
	}
	for _, r := range c.Robots.Seed {
		if r.Pair == "" || r.Account == "" {
			return fmt.Errorf("robots.seed 需要 pair 与 account")
		}
		if _, ok := seen[r.Account]; !ok && len(c.Accounts) > 0 {
			return fmt.Errorf("robots.seed 引用了未定义账户: %s", r.Account)
		}
	}
	if c.Executor.Bridge.URL == "" {
		for _, a := range c.Accounts {
			if a.Executor == "bridge" {
				return fmt.Errorf("存在 bridge 账户但 executor.bridge.url 未配置")
			}
		}
	}
	if c.Notify.Telegram.Enabled {
		if c.Notify.Telegram.BotToken == "" || c.Notify.Telegram.ChatID == "" {
			return fmt.Errorf("已启用 Telegram 通知，请提供 bot_token 与 chat_id")
		}
	}
	return nil
}

// isValidInterval 简易校验：以数字开头，以 m/h/d/w/M 结尾
func isValidInterval(s string) bool {
	if s == "" {
		return false
	}
	suf := s[len(s)-1]
	if suf != 'm' && suf != 'h' && suf != 'd' && suf != 'w' && suf != 'M' {
		return false
	}
	for i := 0; i < len(s)-1; i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
