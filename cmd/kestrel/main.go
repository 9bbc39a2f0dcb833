package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"

	"kestrel/internal/app"
	"kestrel/internal/config"
	"kestrel/internal/pkg/format"
	"kestrel/internal/robot"
)

// 入口程序：
// 1) 加载 .env 与 TOML 配置
// 2) 装配 App 并启动（-status 只查运行中实例的机器人清单）
// 3) 信号触发优雅退出
func main() {
	var (
		cfgPath    = flag.String("config", defaultConfigPath(), "配置文件路径")
		statusOnly = flag.Bool("status", false, "查询运行中实例的机器人清单后退出")
	)
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("读取配置失败: %v", err)
	}

	if *statusOnly {
		if err := printStatus(cfg); err != nil {
			log.Fatalf("查询失败: %v", err)
		}
		return
	}

	application, err := app.NewApp(cfg)
	if err != nil {
		log.Fatalf("初始化失败: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatalf("运行失败: %v", err)
	}
}

func defaultConfigPath() string {
	if p := os.Getenv("KESTREL_CONFIG"); p != "" {
		return p
	}
	return "configs/config.toml"
}

// printStatus 连运行中的实例，把机器人清单打成表。
func printStatus(cfg *config.Config) error {
	host := cfg.Server.Host
	if host == "" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}
	url := fmt.Sprintf("http://%s:%d/api/robots", host, cfg.Server.Port)

	var robots []robot.Status
	resp, err := resty.New().SetTimeout(5*time.Second).R().SetResult(&robots).Get(url)
	if err != nil {
		return fmt.Errorf("连接 %s 失败: %w", url, err)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("实例返回 %s", resp.Status())
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "PAIR", "ACCOUNT", "STYLE", "STATE", "RISK%", "LAST TICK", "OUTCOME"})
	for _, r := range robots {
		last := "-"
		if !r.LastTickAt.IsZero() {
			last = r.LastTickAt.Local().Format("01-02 15:04:05")
		}
		outcome := r.LastOutcome
		if outcome == "" {
			outcome = "-"
		}
		t.AppendRow(table.Row{r.ID, r.Pair, r.Account, r.Style, r.State,
			format.Float(r.RiskPercent, 1), last, outcome})
	}
	t.Render()
	fmt.Printf("共 %d 台机器人\n", len(robots))
	return nil
}
