package analysis

import (
	"fmt"
	"strings"

	textutil "kestrel/internal/pkg/text"
)

// 提示词组装。System 固定人设 + 输出 JSON 约束，User 按区块铺数据：
// 品种参数、各周期 K 线快照、结构位、近期新闻。

func buildSystemPrompt(in Input) string {
	var b strings.Builder
	b.WriteString("You are a disciplined forex analyst. Evaluate the supplied market data ")
	b.WriteString("and produce exactly one trade recommendation for the pair.\n\n")
	fmt.Fprintf(&b, "Trading style: %s (timeframes %s, primary %s).\n",
		in.Style.Name, strings.Join(in.Periods, ","), in.Primary)
	fmt.Fprintf(&b, "Stop distance must stay within %.0f-%.0f pips (style factor %.1f). Minimum reward:risk %.1f.\n",
		in.Spec.MinStopPips*in.Style.StopFactor, in.Spec.MaxStopPips*in.Style.StopFactor,
		in.Style.StopFactor, in.Style.RiskReward)
	b.WriteString(`
Rules:
1. Prefer BUY or SELL; answer HOLD only when no direction is defensible.
2. Anchor stop_loss and take_profit to the structural levels provided, not round guesses.
3. State alignment across the analyzed timeframes: aligned, mixed, or conflicting.
4. A conflicting higher timeframe is a reason to HOLD regardless of confidence.

Respond with a single JSON object:
{
  "recommendation": "BUY" | "SELL" | "HOLD",
  "confidence": 0-100,
  "entry_zone": {"min": <price>, "max": <price>, "price_description": "..."},
  "stop_loss": {"price": <price>, "pips": <pips>, "description": "level used"},
  "take_profit": {"price": <price>, "pips": <pips>, "description": "level used"},
  "risk_reward_ratio": <number>,
  "alignment": "aligned" | "mixed" | "conflicting",
  "reasoning": "short explanation",
  "key_levels": ["..."]
}
`)
	return b.String()
}

func buildUserPrompt(in Input) string {
	var b strings.Builder

	fmt.Fprintf(&b, "## Pair %s\n", in.Spec.Symbol)
	fmt.Fprintf(&b, "current=%.5f pip=%.5f volatility=%s default SL/TP %.0f/%.0f pips\n\n",
		in.Current, in.Spec.PipSize, in.Spec.Volatility, in.Spec.DefaultStopPips, in.Spec.DefaultTakePips)

	b.WriteString("## Candles\n")
	for _, period := range in.Periods {
		cs, ok := in.Series[period]
		if !ok || len(cs) == 0 {
			continue
		}
		fmt.Fprintf(&b, "[%s] %s\n", period, cs.Snapshot(period, ""))
		if period == in.Primary {
			for _, c := range cs.Tail(10) {
				fmt.Fprintf(&b, "  %s O %.5f H %.5f L %.5f C %.5f\n",
					c.TimeString(), c.Open, c.High, c.Low, c.Close)
			}
		}
	}

	if len(in.Levels) > 0 {
		b.WriteString("\n## Structural levels (strongest first)\n")
		for i, lv := range in.Levels {
			if i >= 10 {
				break
			}
			fmt.Fprintf(&b, "- %s\n", lv.String())
		}
	}

	if len(in.Articles) > 0 {
		b.WriteString("\n## Recent news\n")
		for i, a := range in.Articles {
			if i >= 8 {
				break
			}
			fmt.Fprintf(&b, "- [%s] %s (%s)\n", a.Source, a.Title, a.PublishedAt.UTC().Format("01-02 15:04"))
			if body := textutil.CollapseSpace(a.RawText); body != "" {
				fmt.Fprintf(&b, "  %s\n", textutil.Truncate(body, 240))
			}
		}
	} else {
		b.WriteString("\n## Recent news\n(none in window)\n")
	}
	return b.String()
}
