package analysis

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// 多引擎聚合。引擎可以是若干聊天模型加指标引擎的混合，
// 聚合器决定分歧时采用谁的建议。

// EngineOutput 单引擎执行结果
type EngineOutput struct {
	Engine string
	Rec    Recommendation
	Err    error
}

type Aggregator interface {
	Aggregate(outputs []EngineOutput) (Recommendation, error)
	Name() string
}

var errNoUsableOutput = errors.New("无可用的引擎输出")

// NewAggregator 按配置名构造聚合器
func NewAggregator(name string, weights map[string]float64) (Aggregator, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "first_win", "first-win":
		return FirstWinAggregator{}, nil
	case "majority":
		return MajorityAggregator{}, nil
	case "weighted":
		return WeightedAggregator{Weights: weights}, nil
	}
	return nil, fmt.Errorf("未知的聚合器: %s", name)
}

// FirstWinAggregator 取第一个成功的输出
type FirstWinAggregator struct{}

func (FirstWinAggregator) Name() string { return "first_win" }

func (FirstWinAggregator) Aggregate(outputs []EngineOutput) (Recommendation, error) {
	for _, o := range outputs {
		if o.Err == nil {
			return o.Rec, nil
		}
	}
	return Recommendation{}, errNoUsableOutput
}

// MajorityAggregator 等权多数决：方向需要过半票，否则整轮观望。
type MajorityAggregator struct{}

func (MajorityAggregator) Name() string { return "majority" }

func (MajorityAggregator) Aggregate(outputs []EngineOutput) (Recommendation, error) {
	return aggregateByWeight(outputs, nil)
}

// WeightedAggregator 引擎加权投票，缺省权重 1。
type WeightedAggregator struct{ Weights map[string]float64 }

func (WeightedAggregator) Name() string { return "weighted" }

func (a WeightedAggregator) Aggregate(outputs []EngineOutput) (Recommendation, error) {
	return aggregateByWeight(outputs, a.Weights)
}

func aggregateByWeight(outputs []EngineOutput, weights map[string]float64) (Recommendation, error) {
	valid := make([]EngineOutput, 0, len(outputs))
	votes := map[string]float64{}
	total := 0.0
	for _, o := range outputs {
		if o.Err != nil {
			continue
		}
		w := 1.0
		if weights != nil {
			if v, ok := weights[o.Engine]; ok && v > 0 {
				w = v
			}
		}
		valid = append(valid, o)
		votes[o.Rec.Direction] += w
		total += w
	}
	if len(valid) == 0 {
		return Recommendation{}, errNoUsableOutput
	}

	winner := ""
	best := 0.0
	for _, direction := range []string{DirectionBuy, DirectionSell, DirectionHold} {
		if v := votes[direction]; v > best {
			best = v
			winner = direction
		}
	}
	// 不过半就观望
	if winner == "" || best*2 <= total {
		winner = DirectionHold
	}

	picked := pickByDirection(valid, weights, winner)
	if picked == nil {
		// 没有引擎真的给出 HOLD，则拿最高置信度的输出降级为观望
		picked = pickByDirection(valid, weights, "")
		rec := picked.Rec
		rec.Direction = DirectionHold
		rec.StopLoss = PricePips{}
		rec.TakeProfit = PricePips{}
		rec.RiskReward = 0
		rec.Reasoning = fmt.Sprintf("engines split (%s), standing aside; %s", voteSummary(votes), rec.Reasoning)
		return rec, nil
	}
	return picked.Rec, nil
}

// pickByDirection 在给定方向里取权重最高、再比置信度、最后按引擎名定序。
// direction 为空表示不过滤方向。
func pickByDirection(valid []EngineOutput, weights map[string]float64, direction string) *EngineOutput {
	var best *EngineOutput
	bestW, bestConf := -1.0, -1
	for i := range valid {
		o := &valid[i]
		if direction != "" && o.Rec.Direction != direction {
			continue
		}
		w := 1.0
		if weights != nil {
			if v, ok := weights[o.Engine]; ok && v > 0 {
				w = v
			}
		}
		switch {
		case best == nil,
			w > bestW,
			w == bestW && o.Rec.Confidence > bestConf,
			w == bestW && o.Rec.Confidence == bestConf && o.Engine < best.Engine:
			best = o
			bestW = w
			bestConf = o.Rec.Confidence
		}
	}
	return best
}

func voteSummary(votes map[string]float64) string {
	keys := make([]string, 0, len(votes))
	for k := range votes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s %.1f", k, votes[k]))
	}
	return strings.Join(parts, " / ")
}
