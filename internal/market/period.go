package market

import "time"

// 周期常量，写法与配置文件一致
const (
	PeriodM1  = "1m"
	PeriodM5  = "5m"
	PeriodM15 = "15m"
	PeriodM30 = "30m"
	PeriodH1  = "1h"
	PeriodH4  = "4h"
	PeriodD1  = "1d"
	PeriodW1  = "1w"
	PeriodMN1 = "1M"
)

// PeriodWeights 多周期共振分析的权重，越高级别的周期话语权越大
var PeriodWeights = map[string]float64{
	PeriodM1:  0.05,
	PeriodM5:  0.10,
	PeriodM15: 0.15,
	PeriodM30: 0.15,
	PeriodH1:  0.20,
	PeriodH4:  0.25,
	PeriodD1:  0.30,
	PeriodW1:  0.25,
	PeriodMN1: 0.20,
}

// HigherFrames 每个主周期参与确认的更高级别周期
var HigherFrames = map[string][]string{
	PeriodM5:  {PeriodM15, PeriodH1},
	PeriodM15: {PeriodH1, PeriodH4},
	PeriodM30: {PeriodH1, PeriodH4},
	PeriodH1:  {PeriodH4, PeriodD1},
	PeriodH4:  {PeriodD1, PeriodW1},
	PeriodD1:  {PeriodW1, PeriodMN1},
}

// ConfirmFrames 返回主周期加其更高级别周期
func ConfirmFrames(primary string) []string {
	out := []string{primary}
	return append(out, HigherFrames[primary]...)
}

// PeriodWeight 未知周期给一个保守权重
func PeriodWeight(period string) float64 {
	if w, ok := PeriodWeights[period]; ok {
		return w
	}
	return 0.1
}

// PeriodDuration 把周期字符串换算为时长，未知返回 0
func PeriodDuration(period string) time.Duration {
	switch period {
	case PeriodM1:
		return time.Minute
	case PeriodM5:
		return 5 * time.Minute
	case PeriodM15:
		return 15 * time.Minute
	case PeriodM30:
		return 30 * time.Minute
	case PeriodH1:
		return time.Hour
	case PeriodH4:
		return 4 * time.Hour
	case PeriodD1:
		return 24 * time.Hour
	case PeriodW1:
		return 7 * 24 * time.Hour
	case PeriodMN1:
		return 30 * 24 * time.Hour
	}
	return 0
}

// Style 交易风格：决定分析周期与止损尺度
type Style struct {
	Name       string
	Frames     []string
	Primary    string
	StopFactor float64 // 对品种默认止损边界的缩放
	RiskReward float64 // 目标的最低盈亏比
}

var styles = map[string]Style{
	"scalp": {
		Name: "scalp", Frames: []string{PeriodM1, PeriodM5, PeriodM15},
		Primary: PeriodM5, StopFactor: 0.5, RiskReward: 1.5,
	},
	"day": {
		Name: "day", Frames: []string{PeriodM15, PeriodM30, PeriodH1, PeriodH4},
		Primary: PeriodH1, StopFactor: 1.0, RiskReward: 2.0,
	},
	"swing": {
		Name: "swing", Frames: []string{PeriodH1, PeriodH4, PeriodD1},
		Primary: PeriodH4, StopFactor: 2.0, RiskReward: 2.0,
	},
	"position": {
		Name: "position", Frames: []string{PeriodD1, PeriodW1, PeriodMN1},
		Primary: PeriodD1, StopFactor: 3.0, RiskReward: 2.5,
	},
}

// StyleByName 查找交易风格，未知回退 day
func StyleByName(name string) Style {
	if s, ok := styles[name]; ok {
		return s
	}
	return styles["day"]
}

// StyleNames 返回支持的风格名
func StyleNames() []string {
	return []string{"scalp", "day", "swing", "position"}
}
