package report

import (
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"quanttrade/internal/engine"
)

const (
	colorEquity   = "#3b82f6"
	colorDrawdown = "#f87171"
)

// RenderEquityChart 把权益曲线和回撤渲染成单页 HTML。
func RenderEquityChart(path, title string, equity []engine.EquitySnapshot) error {
	xAxis := make([]string, 0, len(equity))
	eqSeries := make([]opts.LineData, 0, len(equity))
	ddSeries := make([]opts.LineData, 0, len(equity))
	for _, snap := range equity {
		xAxis = append(xAxis, string(snap.Date))
		eqSeries = append(eqSeries, opts.LineData{Value: Round(snap.Equity, 2)})
		ddSeries = append(ddSeries, opts.LineData{Value: Round(snap.Drawdown*100, 2)})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: title,
			Width:     "1200px",
			Height:    "600px",
		}),
		charts.WithTitleOpts(opts.Title{Title: title}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", XAxisIndex: []int{0}}),
		charts.WithYAxisOpts(opts.YAxis{Scale: opts.Bool(true)}),
	)
	line.SetXAxis(xAxis).
		AddSeries("权益", eqSeries,
			charts.WithLineStyleOpts(opts.LineStyle{Color: colorEquity, Width: 2}),
			charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)})).
		AddSeries("回撤 %", ddSeries,
			charts.WithLineStyleOpts(opts.LineStyle{Color: colorDrawdown, Width: 1}),
			charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return line.Render(f)
}
