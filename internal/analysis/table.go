package analysis

import (
	"github.com/jedib0t/go-pretty/v6/table"

	"kestrel/internal/pkg/format"
	textutil "kestrel/internal/pkg/text"
)

// RenderTable 把一批建议渲染成日志友好的表格
func RenderTable(recs []Recommendation) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"PAIR", "DIR", "CONF", "ALIGN", "SL", "TP", "RR", "ENGINE", "REASON"})
	for _, r := range recs {
		t.AppendRow(table.Row{
			r.Pair, r.Direction, r.Confidence, r.Alignment,
			format.Pips(r.StopLoss.Pips), format.Pips(r.TakeProfit.Pips),
			format.Float(r.RiskReward, 2), r.Engine,
			textutil.Truncate(textutil.CollapseSpace(r.Reasoning), 60),
		})
	}
	return t.Render()
}

// RenderBlock 单列表格，标题作表头，内容一行放入。
func RenderBlock(title, content string) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{title})
	t.AppendRow(table.Row{content})
	return t.Render()
}
