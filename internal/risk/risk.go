package risk

import (
	"fmt"

	"github.com/shopspring/decimal"

	"kestrel/internal/pairs"
)

// 拒绝原因。文案固定，下游按字面匹配。
const (
	ReasonStopTooWide  = "stop distance too wide for risk budget"
	ReasonStopBelowMin = "stop distance below pair minimum"
	ReasonStopAboveMax = "stop distance above pair maximum"
	ReasonRRBelowMin   = "risk-reward below minimum"
)

// Input 一次仓位计算的全部输入。计算不做任何 IO。
type Input struct {
	Account     string
	Balance     float64
	RiskPercent float64
	StopPips    float64
	Spec        pairs.Spec

	// MaxLots 账户级硬上限，0 表示用品种默认上限
	MaxLots float64

	// RiskReward 建议自带的盈亏比；两者都大于 0 时校验下限
	RiskReward    float64
	MinRiskReward float64
}

// Decision 仓位决策记录。Rejected 为 true 的决策不会到达执行器。
type Decision struct {
	Account     string  `json:"account"`
	Symbol      string  `json:"symbol"`
	Balance     float64 `json:"balance"`
	RiskPercent float64 `json:"risk_percent"`
	StopPips    float64 `json:"stop_pips"`

	Lots         float64 `json:"lots"`
	MaxLots      float64 `json:"max_lots"`
	RiskAmount   float64 `json:"risk_amount"`
	ExpectedLoss float64 `json:"expected_loss"`

	Clamped   bool   `json:"clamped"`
	ClampNote string `json:"clamp_note,omitempty"`
	Rejected  bool   `json:"rejected"`
	Reason    string `json:"reason,omitempty"`
}

func (d Decision) String() string {
	if d.Rejected {
		return fmt.Sprintf("%s %s rejected: %s", d.Account, d.Symbol, d.Reason)
	}
	return fmt.Sprintf("%s %s %.2f lots (risk %.2f, stop %.1f pips)",
		d.Account, d.Symbol, d.Lots, d.RiskAmount, d.StopPips)
}

// Sizer 纯函数仓位计算器。MaxRiskPercent 超出即收紧到上限并记录。
type Sizer struct {
	MaxRiskPercent float64
}

func NewSizer(maxRiskPercent float64) *Sizer {
	if maxRiskPercent <= 0 {
		maxRiskPercent = 2.0
	}
	return &Sizer{MaxRiskPercent: maxRiskPercent}
}

// Size 按 余额×风险比例/止损价值 计算手数，向下取整到手数步进。
// 取整后为零則拒绝；超过上限则收紧并记录，不算拒绝。
func (s *Sizer) Size(in Input) Decision {
	d := Decision{
		Account:     in.Account,
		Symbol:      in.Spec.Symbol,
		Balance:     in.Balance,
		RiskPercent: in.RiskPercent,
		StopPips:    in.StopPips,
	}

	if in.Balance <= 0 {
		return rejected(d, "invalid account balance")
	}
	if in.StopPips <= 0 {
		return rejected(d, "invalid stop distance")
	}
	if in.Spec.MinStopPips > 0 && in.StopPips < in.Spec.MinStopPips {
		return rejected(d, ReasonStopBelowMin)
	}
	if in.Spec.MaxStopPips > 0 && in.StopPips > in.Spec.MaxStopPips {
		return rejected(d, ReasonStopAboveMax)
	}
	if in.RiskPercent <= 0 {
		return rejected(d, "invalid risk percent")
	}
	if in.MinRiskReward > 0 && in.RiskReward > 0 && in.RiskReward < in.MinRiskReward {
		return rejected(d, ReasonRRBelowMin)
	}
	pipValue := in.Spec.PipValuePerLot
	if pipValue <= 0 {
		return rejected(d, "missing pip value for symbol")
	}

	riskPercent := in.RiskPercent
	if s.MaxRiskPercent > 0 && riskPercent > s.MaxRiskPercent {
		d.Clamped = true
		d.ClampNote = fmt.Sprintf("risk percent %.2f tightened to %.2f", riskPercent, s.MaxRiskPercent)
		riskPercent = s.MaxRiskPercent
		d.RiskPercent = riskPercent
	}

	step := in.Spec.LotStep
	if step <= 0 {
		step = pairs.DefaultLotStep
	}
	minLot := in.Spec.MinLot
	if minLot <= 0 {
		minLot = step
	}
	maxLots := in.MaxLots
	if maxLots <= 0 {
		maxLots = in.Spec.MaxLot
	}
	if maxLots <= 0 {
		maxLots = pairs.DefaultMaxLot
	}
	d.MaxLots = maxLots

	d.RiskAmount = in.Balance * riskPercent / 100
	stopValuePerLot := in.StopPips * pipValue

	raw := d.RiskAmount / stopValuePerLot
	lots := roundDownToStep(raw, step)
	if lots < minLot {
		return rejected(d, ReasonStopTooWide)
	}
	if lots > maxLots {
		lots = roundDownToStep(maxLots, step)
		d.Clamped = true
		note := fmt.Sprintf("lots %.2f capped at %.2f", raw, lots)
		if d.ClampNote != "" {
			note = d.ClampNote + "; " + note
		}
		d.ClampNote = note
	}

	d.Lots = lots
	d.ExpectedLoss = lots * stopValuePerLot
	return d
}

func rejected(d Decision, reason string) Decision {
	d.Rejected = true
	d.Reason = reason
	return d
}

// roundDownToStep 向下取整到手数步进。十进制算，0.01 这类步进不吃
// 二进制尾差；商先收到 6 位再下取整，吸收上游除法的浮点噪声。
func roundDownToStep(v, step float64) float64 {
	ds := decimal.NewFromFloat(step)
	if ds.IsZero() {
		return 0
	}
	steps := decimal.NewFromFloat(v).Div(ds).Round(6).Floor()
	out, _ := steps.Mul(ds).Float64()
	return out
}
