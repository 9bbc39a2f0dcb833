// Package visual 为视觉模型渲染 K 线截图：go-echarts 生成蜡烛图 HTML，
// 无头 Chrome 截屏后编码成 data URI。渲染失败不致命，调用方直接跳过配图。
package visual

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"kestrel/internal/analysis"
	"kestrel/internal/logger"
)

const (
	defaultWidth   = 960
	defaultHeight  = 540
	defaultQuality = 90
	defaultMaxBars = 120
	maxMarkedLines = 6
)

// Renderer 截图渲染器，零值不可用，走 NewRenderer。
type Renderer struct {
	Width   int
	Height  int
	Quality int // 100 输出 PNG，其余 JPEG
	MaxBars int
	Timeout time.Duration
}

func NewRenderer(timeout time.Duration) *Renderer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Renderer{
		Width: defaultWidth, Height: defaultHeight,
		Quality: defaultQuality, MaxBars: defaultMaxBars,
		Timeout: timeout,
	}
}

// 截图依赖的浏览器可执行文件，按这个顺序探测。
var browserNames = []string{"google-chrome", "chromium", "chromium-browser", "chrome", "headless-shell"}

// Probe 确认本机有可用的 Chrome/Chromium。配图分析启用时启动前调用，
// 找不到只降级不拦截启动。
func (r *Renderer) Probe() error {
	for _, name := range browserNames {
		if _, err := exec.LookPath(name); err == nil {
			return nil
		}
	}
	return fmt.Errorf("未找到 Chrome/Chromium 可执行文件，图表截图不可用")
}

// Snapshot 渲染主周期蜡烛图并截屏
func (r *Renderer) Snapshot(ctx context.Context, in analysis.Input) (analysis.ImagePayload, error) {
	cs := in.PrimarySeries()
	if len(cs) < 2 {
		return analysis.ImagePayload{}, fmt.Errorf("品种 %s 主周期 %s 无可渲染的 K 线", in.Spec.Symbol, in.Primary)
	}

	html, err := r.renderHTML(in)
	if err != nil {
		return analysis.ImagePayload{}, fmt.Errorf("渲染图表 HTML 失败: %w", err)
	}
	shot, err := r.screenshot(ctx, html)
	if err != nil {
		return analysis.ImagePayload{}, fmt.Errorf("截屏失败: %w", err)
	}

	mime := "image/jpeg"
	if r.Quality >= 100 {
		mime = "image/png"
	}
	return analysis.ImagePayload{
		DataURI: fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(shot)),
		Description: fmt.Sprintf("%s %s candlestick chart, horizontal lines mark structural levels",
			in.Spec.Symbol, in.Primary),
	}, nil
}

// HTML 同一张蜡烛图页面，Web 端 /chart 直接伺服。
func (r *Renderer) HTML(in analysis.Input) ([]byte, error) {
	return r.renderHTML(in)
}

// renderHTML 只做图表构建，方便单测验证内容而不依赖 Chrome。
func (r *Renderer) renderHTML(in analysis.Input) ([]byte, error) {
	kline := r.buildKline(in)
	var buf bytes.Buffer
	if err := kline.Render(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (r *Renderer) buildKline(in analysis.Input) *charts.Kline {
	cs := in.PrimarySeries().Tail(r.MaxBars)

	x := make([]string, 0, len(cs))
	y := make([]opts.KlineData, 0, len(cs))
	for _, c := range cs {
		x = append(x, c.TimeString())
		// echarts 蜡烛取值顺序: open close low high
		y = append(y, opts.KlineData{Value: [4]float64{c.Open, c.Close, c.Low, c.High}})
	}

	kline := charts.NewKLine()
	kline.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Width:           fmt.Sprintf("%dpx", r.Width),
			Height:          fmt.Sprintf("%dpx", r.Height),
			BackgroundColor: "#ffffff",
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    fmt.Sprintf("%s %s", in.Spec.Symbol, in.Primary),
			Subtitle: fmt.Sprintf("last %d bars, style %s", len(cs), in.Style.Name),
		}),
		charts.WithXAxisOpts(opts.XAxis{SplitNumber: 12}),
		charts.WithYAxisOpts(opts.YAxis{Scale: opts.Bool(true)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithDataZoomOpts(opts.DataZoom{Start: 0, End: 100}),
	)

	marks := make([]opts.MarkLineNameYAxisItem, 0, maxMarkedLines)
	for i, lv := range in.Levels {
		if i >= maxMarkedLines {
			break
		}
		name := lv.Label
		if name == "" {
			name = string(lv.Kind)
		}
		marks = append(marks, opts.MarkLineNameYAxisItem{Name: name, YAxis: lv.Price})
	}
	kline.SetXAxis(x).AddSeries("price", y, charts.WithMarkLineNameYAxisItemOpts(marks...))
	return kline
}

// screenshot 写临时 HTML 后用无头 Chrome 打开并整页截屏
func (r *Renderer) screenshot(ctx context.Context, html []byte) ([]byte, error) {
	f, err := os.CreateTemp("", "kestrel-chart-*.html")
	if err != nil {
		return nil, err
	}
	path := f.Name()
	defer func() {
		if rerr := os.Remove(path); rerr != nil {
			logger.Debugf("清理图表临时文件失败: %v", rerr)
		}
	}()
	if _, err := f.Write(html); err != nil {
		_ = f.Close()
		return nil, err
	}
	if err := f.Close(); err != nil {
		return nil, err
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.WindowSize(r.Width, r.Height),
	)
	ctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocOpts...)
	defer cancelAlloc()
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)
	defer cancelTab()

	var shot []byte
	err = chromedp.Run(tabCtx,
		chromedp.Navigate("file://"+path),
		chromedp.WaitReady("canvas", chromedp.ByQuery),
		chromedp.Sleep(800*time.Millisecond),
		chromedp.FullScreenshot(&shot, r.Quality),
	)
	if err != nil {
		return nil, err
	}
	return shot, nil
}
