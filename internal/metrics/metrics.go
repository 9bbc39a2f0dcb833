// Package metrics 进程内 Prometheus 指标。全部走默认注册表，
// 由 HTTP 层的 /metrics 端点吐出。
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	evaluations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kestrel_evaluations_total",
		Help: "完成的评估周期数，按品种与结局分类。",
	}, []string{"pair", "outcome"})

	orderAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kestrel_order_attempts_total",
		Help: "对经纪端的真实提交次数，按单次结果分类。",
	}, []string{"result"})

	gateDenied = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kestrel_gate_denied_total",
		Help: "被账户并发持仓闸门拦下的下单请求数。",
	})

	robotsByState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "kestrel_robots",
		Help: "注册在管理面的机器人数，按状态分组。",
	}, []string{"state"})

	articlesCached = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kestrel_news_articles_cached",
		Help: "当前新闻缓存里的文章数。",
	})
)

func EvaluationObserved(pair, outcome string) {
	evaluations.WithLabelValues(pair, outcome).Inc()
}

func SubmitObserved(result string) {
	orderAttempts.WithLabelValues(result).Inc()
}

func GateDenied() {
	gateDenied.Inc()
}

// SetRobotStates 整表覆盖各状态的机器人数。
func SetRobotStates(counts map[string]int) {
	robotsByState.Reset()
	for state, n := range counts {
		robotsByState.WithLabelValues(state).Set(float64(n))
	}
}

func SetArticlesCached(n int) {
	articlesCached.Set(float64(n))
}
