package analysis

import (
	"fmt"
	"strings"
	"time"
)

// 中文说明：
// 分析结果模型。每轮评估产出一份新的 Recommendation，产出后不再修改，
// 下一轮对同一 (品种, 周期) 的结果直接取代上一份。

// 方向
const (
	DirectionBuy  = "BUY"
	DirectionSell = "SELL"
	DirectionHold = "HOLD"
)

// 多周期一致性
const (
	AlignmentAligned     = "aligned"
	AlignmentMixed       = "mixed"
	AlignmentConflicting = "conflicting"
)

// PricePips 价格 + 点数的组合，Description 标注来源
// （结构位标签或 default-fallback）。
type PricePips struct {
	Price       float64 `json:"price,omitempty"`
	Pips        float64 `json:"pips"`
	Description string  `json:"description,omitempty"`
}

func (p PricePips) Pinned() bool { return p.Pips > 0 }

// EntryZone 建议入场区间
type EntryZone struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Note string  `json:"note,omitempty"`
}

// Recommendation 一次完整的方向建议
type Recommendation struct {
	Pair       string   `json:"pair"`
	Style      string   `json:"style"`
	Timeframes []string `json:"timeframes"`
	Direction  string   `json:"direction"`
	Confidence int      `json:"confidence"`

	EntryZone  EntryZone `json:"entry_zone"`
	StopLoss   PricePips `json:"stop_loss"`
	TakeProfit PricePips `json:"take_profit"`
	RiskReward float64   `json:"risk_reward_ratio"`

	Alignment  string   `json:"alignment"`
	Confluence float64  `json:"confluence"`
	Reasoning  string   `json:"reasoning,omitempty"`
	KeyLevels  []string `json:"key_levels,omitempty"`

	NewsCount   int       `json:"news_count"`
	Engine      string    `json:"engine"`
	GeneratedAt time.Time `json:"generated_at"`
}

func (r Recommendation) Hold() bool { return r.Direction == DirectionHold }

func (r Recommendation) String() string {
	if r.Hold() {
		return fmt.Sprintf("%s HOLD (conf %d, align %s)", r.Pair, r.Confidence, r.Alignment)
	}
	return fmt.Sprintf("%s %s conf %d SL %.1fp TP %.1fp RR %.2f",
		r.Pair, r.Direction, r.Confidence, r.StopLoss.Pips, r.TakeProfit.Pips, r.RiskReward)
}

// NormalizeDirection 统一模型输出的方向措辞，WAIT 一律按 HOLD 处理。
func NormalizeDirection(s string) string {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY", "LONG", "BULLISH":
		return DirectionBuy
	case "SELL", "SHORT", "BEARISH":
		return DirectionSell
	case "HOLD", "WAIT", "NEUTRAL", "FLAT":
		return DirectionHold
	}
	return ""
}

// Validate 方向合法、置信度在界内、非观望时必须带止损距离。
func (r Recommendation) Validate() error {
	switch r.Direction {
	case DirectionBuy, DirectionSell, DirectionHold:
	default:
		return fmt.Errorf("非法方向: %q", r.Direction)
	}
	if r.Confidence < 0 || r.Confidence > 100 {
		return fmt.Errorf("置信度越界: %d", r.Confidence)
	}
	if r.Pair == "" {
		return fmt.Errorf("缺少品种")
	}
	if !r.Hold() {
		if r.StopLoss.Pips <= 0 {
			return fmt.Errorf("%s 建议缺少止损距离", r.Direction)
		}
		if r.TakeProfit.Pips <= 0 {
			return fmt.Errorf("%s 建议缺少止盈距离", r.Direction)
		}
	}
	return nil
}
