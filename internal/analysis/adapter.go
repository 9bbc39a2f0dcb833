package analysis

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"kestrel/internal/levels"
	"kestrel/internal/logger"
)

// 中文说明：
// Adapter 是机器人面对的唯一分析入口：并发跑全部引擎、按配置聚合、
// 用结构位补齐模型没钉死的止损/止盈，再做输出校验。
// 模型可能慢也可能给烂输出，这里统一兜成 ErrUnavailable，
// 调用方据此观望，绝不凭空造一份建议。

type Adapter struct {
	engines []Engine
	agg     Aggregator
	levels  *levels.Engine
	timeout time.Duration
	logEach bool
}

func NewAdapter(engines []Engine, agg Aggregator, lv *levels.Engine, timeout time.Duration, logEach bool) (*Adapter, error) {
	if len(engines) == 0 {
		return nil, fmt.Errorf("至少需要一个分析引擎")
	}
	if agg == nil {
		agg = FirstWinAggregator{}
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Adapter{engines: engines, agg: agg, levels: lv, timeout: timeout, logEach: logEach}, nil
}

// Evaluate 跑一轮完整分析。失败统一包装为 ErrUnavailable。
func (a *Adapter) Evaluate(ctx context.Context, in Input) (Recommendation, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	outputs := make([]EngineOutput, len(a.engines))
	g, gctx := errgroup.WithContext(ctx)
	for i, eng := range a.engines {
		i, eng := i, eng
		g.Go(func() error {
			rec, err := eng.Analyze(gctx, in)
			outputs[i] = EngineOutput{Engine: eng.Name(), Rec: rec, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	for _, o := range outputs {
		if o.Err != nil {
			logger.Warnf("分析引擎 %s 失败: %v", o.Engine, o.Err)
			continue
		}
		if a.logEach {
			logger.Infof("分析引擎 %s: %s", o.Engine, o.Rec.String())
		}
	}

	rec, err := a.agg.Aggregate(outputs)
	if err != nil {
		return Recommendation{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	a.refine(&rec, in)
	if err := rec.Validate(); err != nil {
		return Recommendation{}, fmt.Errorf("%w: 输出校验失败: %v", ErrUnavailable, err)
	}
	return rec, nil
}

// refine 用结构位补齐没钉死的止损/止盈并复核盈亏比。
func (a *Adapter) refine(rec *Recommendation, in Input) {
	if rec.Pair == "" {
		rec.Pair = in.Spec.Symbol
	}
	if rec.Style == "" {
		rec.Style = in.Style.Name
	}
	if rec.Alignment == "" {
		rec.Alignment = AlignmentMixed
	}
	if rec.Hold() {
		return
	}

	current := in.CurrentPrice()
	if a.levels != nil && (!rec.StopLoss.Pinned() || !rec.TakeProfit.Pinned()) && current > 0 {
		st := a.levels.SelectStopTake(in.Levels, rec.Direction, in.Spec, in.Style, current)
		if !rec.StopLoss.Pinned() {
			rec.StopLoss = PricePips{Price: st.Stop.Price, Pips: st.Stop.Pips, Description: st.Stop.Description}
		}
		if !rec.TakeProfit.Pinned() {
			rec.TakeProfit = PricePips{Price: st.Take.Price, Pips: st.Take.Pips, Description: st.Take.Description}
		}
	}
	if rec.StopLoss.Pips > 0 && rec.TakeProfit.Pips > 0 {
		rec.RiskReward = rec.TakeProfit.Pips / rec.StopLoss.Pips
	}
	fillPricesFromPips(rec, in)
}
