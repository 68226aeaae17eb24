package eval

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"hedgesim/internal/logger"
)

const (
	histBins      = 30
	chartWidthPx  = 1200
	chartHeightPx = 480
)

// RenderHTML 把评估报告渲染为自包含 HTML：终局 P&L 分布直方图 + 样本权益曲线。
func RenderHTML(rep Report, w io.Writer) error {
	page := components.NewPage()
	page.SetLayout(components.PageFlexLayout)

	if hist := buildPnLHistogram(rep); hist != nil {
		page.AddCharts(hist)
	}
	if curves := buildEquityCurves(rep); curves != nil {
		page.AddCharts(curves)
	}
	if len(page.Charts) == 0 {
		return fmt.Errorf("报告 %s 没有可渲染的数据", rep.ID)
	}
	return page.Render(w)
}

// WriteHTMLFile 渲染报告并写入文件。
func WriteHTMLFile(rep Report, path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := RenderHTML(rep, f); err != nil {
		return err
	}
	logger.Infof("评估图表已写入 %s", path)
	return nil
}

func buildPnLHistogram(rep Report) *charts.Bar {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, pr := range rep.Policies {
		for _, v := range pr.PnLs {
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}
	if !(lo < hi) {
		return nil
	}
	width := (hi - lo) / histBins

	labels := make([]string, histBins)
	for i := range labels {
		labels[i] = fmt.Sprintf("%.2f", lo+(float64(i)+0.5)*width)
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Width:  fmt.Sprintf("%dpx", chartWidthPx),
			Height: fmt.Sprintf("%dpx", chartHeightPx),
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    "终局 P&L 分布",
			Subtitle: fmt.Sprintf("episodes=%d seed=%d", rep.Episodes, rep.Seed),
			Left:     "left",
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "5%"}),
	)
	bar.SetXAxis(labels)
	for _, pr := range rep.Policies {
		counts := make([]int, histBins)
		for _, v := range pr.PnLs {
			idx := int((v - lo) / width)
			if idx >= histBins {
				idx = histBins - 1
			}
			counts[idx]++
		}
		data := make([]opts.BarData, histBins)
		for i, c := range counts {
			data[i] = opts.BarData{Value: c}
		}
		bar.AddSeries(pr.Policy, data)
	}
	return bar
}

func buildEquityCurves(rep Report) *charts.Line {
	maxLen := 0
	for _, pr := range rep.Policies {
		for _, c := range pr.Curves {
			if len(c) > maxLen {
				maxLen = len(c)
			}
		}
	}
	if maxLen == 0 {
		return nil
	}

	xs := make([]string, maxLen)
	for i := range xs {
		xs[i] = fmt.Sprintf("%d", i)
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Width:  fmt.Sprintf("%dpx", chartWidthPx),
			Height: fmt.Sprintf("%dpx", chartHeightPx),
		}),
		charts.WithTitleOpts(opts.Title{Title: "样本权益曲线", Left: "left"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "5%"}),
	)
	line.SetXAxis(xs)
	for _, pr := range rep.Policies {
		for i, curve := range pr.Curves {
			data := make([]opts.LineData, len(curve))
			for j, v := range curve {
				data[j] = opts.LineData{Value: v}
			}
			line.AddSeries(fmt.Sprintf("%s #%d", pr.Policy, i),
				data, charts.WithLineStyleOpts(opts.LineStyle{Width: 1.5}))
		}
	}
	return line
}
