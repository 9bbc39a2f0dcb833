// Package http 对外的管理与查询接口。内部工具，不带鉴权，
// 错误一律 JSON {"error": 文案}。
package http

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"kestrel/internal/analysis/visual"
	"kestrel/internal/levels"
	"kestrel/internal/logger"
	"kestrel/internal/manager"
	"kestrel/internal/market"
	"kestrel/internal/robot"
	"kestrel/internal/store"
	"kestrel/internal/transport/web"
)

// Config 服务依赖。Manager 必填，其余能力缺哪个对应接口就退化。
type Config struct {
	Addr    string
	Manager *manager.Manager

	Reader   store.RecordReader   // 历史查询，空则相关接口回 503
	Candles  robot.SeriesSource   // /api/levels 与 /chart 的 K 线来源
	Quotes   market.QuoteProvider // 可空，现价缺省用最后收盘价
	Articles robot.ArticleSource  // /api/news
	Levels   *levels.Engine
	Charts   *visual.Renderer

	MetricsPath string // 空则不挂 Prometheus 端点
}

type Server struct {
	cfg    Config
	engine *gin.Engine
	srv    *http.Server
}

func NewServer(cfg Config) (*Server, error) {
	if cfg.Manager == nil {
		return nil, fmt.Errorf("缺少机器人管理器")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8000"
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		cfg:    cfg,
		engine: engine,
		srv:    &http.Server{Addr: cfg.Addr, Handler: engine},
	}
	if err := s.mountDashboard(); err != nil {
		return nil, fmt.Errorf("装载后台页面失败: %w", err)
	}
	s.routes()
	return s, nil
}

func (s *Server) Addr() string { return s.cfg.Addr }

// Handler 暴露底层处理器，单测直接打请求用。
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) routes() {
	api := s.engine.Group("/api")
	{
		api.GET("/robots", s.listRobots)
		api.POST("/robots", s.addRobot)
		api.POST("/robots/:id/pause", s.pauseRobot)
		api.POST("/robots/:id/resume", s.resumeRobot)
		api.POST("/robots/:id/reset", s.resetRobot)
		api.DELETE("/robots/:id", s.removeRobot)

		api.GET("/accounts", s.listAccounts)

		api.POST("/evaluate", s.evaluate)
		api.GET("/evaluate", s.recentEvaluate)
		api.GET("/evaluations", s.listEvaluations)
		api.GET("/attempts", s.listAttempts)
		api.GET("/risk", s.listRiskDecisions)
		api.GET("/events", s.listEvents)

		api.GET("/levels/:pair", s.pairLevels)
		api.GET("/news", s.listNews)
	}
	if s.cfg.MetricsPath != "" {
		s.engine.GET(s.cfg.MetricsPath, gin.WrapH(promhttp.Handler()))
	}
	s.engine.GET("/chart/:pair", s.chart)
	s.engine.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
}

func (s *Server) mountDashboard() error {
	tmpl, err := template.ParseFS(web.Templates, "templates/*.html")
	if err != nil {
		return err
	}
	s.engine.SetHTMLTemplate(tmpl)

	static, err := fs.Sub(web.Static, "static")
	if err != nil {
		return err
	}
	s.engine.StaticFS("/static", http.FS(static))
	s.engine.GET("/", s.dashboard)
	return nil
}

// Start 启动监听，ctx 取消后优雅退出。
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.ListenAndServe() }()
	logger.Infof("Web 服务监听 %s", s.cfg.Addr)

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutCtx); err != nil {
			logger.Warnf("Web 服务关闭异常: %v", err)
		}
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
