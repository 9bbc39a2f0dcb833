package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"kestrel/internal/analysis"
	"kestrel/internal/manager"
	"kestrel/internal/market"
	"kestrel/internal/news"
	"kestrel/internal/pairs"
	"kestrel/internal/robot"
)

func fail(c *gin.Context, code int, err error) {
	c.JSON(code, gin.H{"error": err.Error()})
}

// manageErr 管理器错误到状态码：不存在 404，其余业务冲突 409。
func manageErr(c *gin.Context, err error) {
	if errors.Is(err, manager.ErrNotFound) {
		fail(c, http.StatusNotFound, err)
		return
	}
	fail(c, http.StatusConflict, err)
}

func (s *Server) listRobots(c *gin.Context) {
	c.JSON(http.StatusOK, s.cfg.Manager.List())
}

type addRobotReq struct {
	ID            string  `json:"id"`
	Pair          string  `json:"pair" binding:"required"`
	Account       string  `json:"account" binding:"required"`
	Style         string  `json:"style"`
	RiskPercent   float64 `json:"risk_percent"`
	MinConfidence float64 `json:"min_confidence"`
	MinRiskReward float64 `json:"min_risk_reward"`
}

func (s *Server) addRobot(c *gin.Context) {
	var req addRobotReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	status, err := s.cfg.Manager.Add(robot.Config{
		ID:            req.ID,
		Pair:          req.Pair,
		Account:       req.Account,
		Style:         req.Style,
		RiskPercent:   req.RiskPercent,
		MinConfidence: req.MinConfidence,
		MinRiskReward: req.MinRiskReward,
	})
	if err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	c.JSON(http.StatusCreated, status)
}

func (s *Server) pauseRobot(c *gin.Context) {
	if err := s.cfg.Manager.Pause(c.Param("id")); err != nil {
		manageErr(c, err)
		return
	}
	s.robotStatus(c)
}

func (s *Server) resumeRobot(c *gin.Context) {
	if err := s.cfg.Manager.Resume(c.Param("id")); err != nil {
		manageErr(c, err)
		return
	}
	s.robotStatus(c)
}

func (s *Server) resetRobot(c *gin.Context) {
	if err := s.cfg.Manager.Reset(c.Param("id")); err != nil {
		manageErr(c, err)
		return
	}
	s.robotStatus(c)
}

func (s *Server) robotStatus(c *gin.Context) {
	status, err := s.cfg.Manager.Get(c.Param("id"))
	if err != nil {
		manageErr(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) removeRobot(c *gin.Context) {
	if err := s.cfg.Manager.Remove(c.Request.Context(), c.Param("id")); err != nil {
		manageErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": c.Param("id")})
}

type accountView struct {
	ID            string  `json:"id"`
	Name          string  `json:"name,omitempty"`
	Plan          string  `json:"plan"`
	MaxOpen       int     `json:"max_open"`
	Executor      string  `json:"executor"`
	Balance       float64 `json:"balance,omitempty"`
	Equity        float64 `json:"equity,omitempty"`
	Currency      string  `json:"currency,omitempty"`
	OpenPositions int     `json:"open_positions"`
	Error         string  `json:"error,omitempty"`
}

func (s *Server) listAccounts(c *gin.Context) {
	infos := s.cfg.Manager.Accounts()
	out := make([]accountView, 0, len(infos))
	for _, info := range infos {
		v := accountView{
			ID: info.ID, Name: info.Name, Plan: info.Plan,
			MaxOpen: info.MaxOpen, Executor: info.Exec.Name(),
		}
		if state, err := info.Exec.Account(c.Request.Context(), info.ID); err != nil {
			v.Error = err.Error()
		} else {
			v.Balance, v.Equity = state.Balance, state.Equity
			v.Currency, v.OpenPositions = state.Currency, state.OpenPositions
		}
		out = append(out, v)
	}
	c.JSON(http.StatusOK, out)
}

type evaluateReq struct {
	Pair  string `json:"pair" binding:"required"`
	Style string `json:"style"`
}

func (s *Server) evaluate(c *gin.Context) {
	var req evaluateReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	out, err := s.cfg.Manager.Evaluate(c.Request.Context(), req.Pair, req.Style)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, out)
	case errors.Is(err, robot.ErrNoInput):
		fail(c, http.StatusUnprocessableEntity, err)
	case errors.Is(err, analysis.ErrUnavailable):
		fail(c, http.StatusBadGateway, err)
	default:
		fail(c, http.StatusInternalServerError, err)
	}
}

func (s *Server) recentEvaluate(c *gin.Context) {
	c.JSON(http.StatusOK, s.cfg.Manager.RecentEvaluations())
}

var errNoHistory = errors.New("历史存储未启用")

func (s *Server) listEvaluations(c *gin.Context) {
	if s.cfg.Reader == nil {
		fail(c, http.StatusServiceUnavailable, errNoHistory)
		return
	}
	limit := intQuery(c, "limit", 50, 500)
	if robotID := c.Query("robot"); robotID != "" {
		rows, err := s.cfg.Reader.ListEvaluations(c.Request.Context(), robotID, limit)
		if err != nil {
			fail(c, http.StatusInternalServerError, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": rows, "count": len(rows)})
		return
	}

	pair := pairs.Normalize(c.Query("pair"))
	offset := intQuery(c, "offset", 0, 1<<30)
	rows, err := s.cfg.Reader.ListEvaluationsPaged(c.Request.Context(), pair, limit, offset)
	if err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	total, err := s.cfg.Reader.CountEvaluations(c.Request.Context(), pair)
	if err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": rows, "total": total, "offset": offset})
}

func (s *Server) listAttempts(c *gin.Context) {
	if robotID := c.Query("robot"); robotID != "" {
		atts, err := s.cfg.Manager.Attempts(robotID)
		if err != nil {
			manageErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": atts, "count": len(atts)})
		return
	}
	evalID := c.Query("evaluation")
	if evalID == "" {
		fail(c, http.StatusBadRequest, errors.New("需要 robot 或 evaluation 参数"))
		return
	}
	if s.cfg.Reader == nil {
		fail(c, http.StatusServiceUnavailable, errNoHistory)
		return
	}
	rows, err := s.cfg.Reader.ListOrderAttempts(c.Request.Context(), evalID)
	if err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": rows, "count": len(rows)})
}

func (s *Server) listRiskDecisions(c *gin.Context) {
	if s.cfg.Reader == nil {
		fail(c, http.StatusServiceUnavailable, errNoHistory)
		return
	}
	evalID := c.Query("evaluation")
	if evalID == "" {
		fail(c, http.StatusBadRequest, errors.New("需要 evaluation 参数"))
		return
	}
	rows, err := s.cfg.Reader.ListRiskDecisions(c.Request.Context(), evalID)
	if err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": rows, "count": len(rows)})
}

func (s *Server) listEvents(c *gin.Context) {
	if s.cfg.Reader == nil {
		fail(c, http.StatusServiceUnavailable, errNoHistory)
		return
	}
	robotID := c.Query("robot")
	if robotID == "" {
		fail(c, http.StatusBadRequest, errors.New("需要 robot 参数"))
		return
	}
	rows, err := s.cfg.Reader.ListRobotEvents(c.Request.Context(), robotID, intQuery(c, "limit", 100, 1000))
	if err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": rows, "count": len(rows)})
}

func (s *Server) pairLevels(c *gin.Context) {
	if s.cfg.Candles == nil || s.cfg.Levels == nil {
		fail(c, http.StatusServiceUnavailable, errors.New("关键位计算未启用"))
		return
	}
	spec, _ := pairs.Lookup(c.Param("pair"))
	style := market.StyleByName(c.DefaultQuery("style", "day"))

	cs, err := s.cfg.Candles.Get(c.Request.Context(), spec.Symbol, style.Primary)
	if err != nil || len(cs) == 0 {
		fail(c, http.StatusNotFound, errors.New("品种 "+spec.Symbol+" 暂无 K 线数据"))
		return
	}
	current := s.currentPrice(c, spec.Symbol, cs)
	lvs := s.cfg.Levels.Compute(cs, spec, current)
	c.JSON(http.StatusOK, gin.H{
		"pair": spec.Symbol, "period": style.Primary,
		"current": current, "levels": lvs, "count": len(lvs),
	})
}

func (s *Server) listNews(c *gin.Context) {
	if s.cfg.Articles == nil {
		fail(c, http.StatusServiceUnavailable, errors.New("新闻采集未启用"))
		return
	}
	articles := s.cfg.Articles.Snapshot(time.Now())
	if pair := strings.TrimSpace(c.Query("pair")); pair != "" {
		articles = news.ForPair(articles, pairs.Normalize(pair))
	}
	c.JSON(http.StatusOK, gin.H{"items": articles, "count": len(articles)})
}

func (s *Server) chart(c *gin.Context) {
	if s.cfg.Candles == nil || s.cfg.Charts == nil {
		fail(c, http.StatusServiceUnavailable, errors.New("图表渲染未启用"))
		return
	}
	spec, _ := pairs.Lookup(c.Param("pair"))
	style := market.StyleByName(c.DefaultQuery("style", "day"))

	cs, err := s.cfg.Candles.Get(c.Request.Context(), spec.Symbol, style.Primary)
	if err != nil || len(cs) < 2 {
		fail(c, http.StatusNotFound, errors.New("品种 "+spec.Symbol+" 暂无可绘制的 K 线"))
		return
	}
	in := analysis.Input{
		Spec:    spec,
		Style:   style,
		Primary: style.Primary,
		Periods: []string{style.Primary},
		Series:  map[string]market.Candles{style.Primary: cs},
		Current: s.currentPrice(c, spec.Symbol, cs),
	}
	if s.cfg.Levels != nil {
		in.Levels = s.cfg.Levels.Compute(cs, spec, in.CurrentPrice())
	}
	html, err := s.cfg.Charts.HTML(in)
	if err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", html)
}

func (s *Server) dashboard(c *gin.Context) {
	c.HTML(http.StatusOK, "index.html", gin.H{
		"Pairs":  pairs.Known(),
		"Styles": market.StyleNames(),
	})
}

func (s *Server) currentPrice(c *gin.Context, symbol string, cs market.Candles) float64 {
	if s.cfg.Quotes != nil {
		if q, err := s.cfg.Quotes.Quote(c.Request.Context(), symbol); err == nil && q.Mid() > 0 {
			return q.Mid()
		}
	}
	if len(cs) > 0 {
		return cs[len(cs)-1].Close
	}
	return 0
}

func intQuery(c *gin.Context, key string, def, max int) int {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}
