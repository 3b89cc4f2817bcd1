package analysis

import (
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/qkdsim/bb84/bb84"
	"github.com/qkdsim/bb84/internal/batch"
)

// ReportOptions tune the HTML report.
type ReportOptions struct {
	Options
	// Smooth draws interpolated curves.
	Smooth bool
	// Model adds the analytic success rate for every n as dashed series.
	// Results files do not record Eve or BobPerfect; they are taken from
	// here.
	Model      bool
	Eve        bool
	BobPerfect bool
}

// cell aggregates the runs of one (n, error level) pair.
type cell struct {
	runs  []batch.Row
	group Group
}

// Report renders an HTML page with two line charts against the error level,
// one series per n: mean QBER and success rate.
func Report(w io.Writer, rows []batch.Row, o ReportOptions) error {
	if len(rows) == 0 {
		return fmt.Errorf("report: no rows")
	}
	ns, levels, cells := grid(rows, o.Options)
	xLabels := make([]string, len(levels))
	for i, e := range levels {
		xLabels[i] = strconv.FormatFloat(e, 'g', -1, 64)
	}

	qberTitle := "QBER vs error level (successful runs)"
	if o.AllQBER {
		qberTitle = "QBER vs error level (all runs)"
	}
	qber := newLine(qberTitle, "QBER")
	qber.SetXAxis(xLabels)
	rate := newLine("Success rate vs error level", "success rate (%)")
	if o.QBEROnly {
		rate = newLine("Success rate vs error level (QBER failures only)", "success rate (%)")
	}
	rate.SetXAxis(xLabels)

	lineOpts := charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(o.Smooth), ConnectNulls: opts.Bool(true)})
	tolerance := rows[0].Tolerance
	for i, n := range ns {
		qberData := make([]opts.LineData, len(levels))
		rateData := make([]opts.LineData, len(levels))
		for j, e := range levels {
			c, ok := cells[key{n, e}]
			if !ok {
				qberData[j] = opts.LineData{Value: nil}
				rateData[j] = opts.LineData{Value: nil}
				continue
			}
			if c.group.QBER.Count > 0 {
				qberData[j] = opts.LineData{Value: c.group.QBER.Mean}
			} else {
				qberData[j] = opts.LineData{Value: nil}
			}
			rateData[j] = opts.LineData{Value: 100 * c.group.SuccessRate(o.QBEROnly)}
		}
		name := fmt.Sprintf("n=%d", n)
		seriesOpts := []charts.SeriesOpts{lineOpts}
		if i == 0 {
			seriesOpts = append(seriesOpts,
				charts.WithMarkLineNameYAxisItemOpts(opts.MarkLineNameYAxisItem{
					Name:  "tolerance",
					YAxis: tolerance,
				}),
				charts.WithMarkLineStyleOpts(opts.MarkLineStyle{
					Label:     &opts.Label{Show: opts.Bool(true)},
					LineStyle: &opts.LineStyle{Type: "dashed", Width: 1},
				}),
			)
		}
		qber.AddSeries(name, qberData, seriesOpts...)
		rate.AddSeries(name, rateData, lineOpts)

		if o.Model {
			model, err := modelSeries(cells, n, levels, o)
			if err != nil {
				return err
			}
			rate.AddSeries(name+" (model)", model, lineOpts,
				charts.WithLineStyleOpts(opts.LineStyle{Type: "dashed"}))
		}
	}

	page := components.NewPage().SetPageTitle("BB84 batch results")
	page.AddCharts(qber, rate)
	return page.Render(w)
}

func newLine(title, yName string) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: title}),
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "1000px", Height: "500px"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "errors (avg number)"}),
		charts.WithYAxisOpts(opts.YAxis{Name: yName}),
		charts.WithToolboxOpts(opts.Toolbox{
			Show: opts.Bool(true),
			Feature: &opts.ToolBoxFeature{
				SaveAsImage: &opts.ToolBoxFeatureSaveAsImage{Show: opts.Bool(true)},
			},
		}),
	)
	return line
}

// modelSeries evaluates ExpectedAbortRate with the parameters of the first
// run recorded in each cell.
func modelSeries(cells map[key]*cell, n int, levels []float64, o ReportOptions) ([]opts.LineData, error) {
	data := make([]opts.LineData, len(levels))
	for j, e := range levels {
		c, ok := cells[key{n, e}]
		if !ok {
			data[j] = opts.LineData{Value: nil}
			continue
		}
		r := c.runs[0]
		ex, err := ExpectedAbortRate(bb84.Params{
			N:          r.N,
			Delta:      r.Delta,
			Tolerance:  r.Tolerance,
			AvgErrors:  r.Errors,
			Eve:        o.Eve,
			BobPerfect: o.BobPerfect,
		})
		if err != nil {
			return nil, fmt.Errorf("report: model for n=%d errors=%v: %w", n, e, err)
		}
		success := 1 - ex.Abort
		if o.QBEROnly {
			success = 1 - ex.QBER
		}
		data[j] = opts.LineData{Value: 100 * success}
	}
	return data, nil
}

type key struct {
	n      int
	errors float64
}

func grid(rows []batch.Row, o Options) (ns []int, levels []float64, cells map[key]*cell) {
	cells = map[key]*cell{}
	seenN := map[int]bool{}
	seenE := map[float64]bool{}
	for _, r := range rows {
		k := key{r.N, r.Errors}
		c, ok := cells[k]
		if !ok {
			c = &cell{group: Group{Key: r.Errors}}
			cells[k] = c
		}
		c.runs = append(c.runs, r)
		c.group.add(r, o)
		if !seenN[r.N] {
			seenN[r.N] = true
			ns = append(ns, r.N)
		}
		if !seenE[r.Errors] {
			seenE[r.Errors] = true
			levels = append(levels, r.Errors)
		}
	}
	for _, c := range cells {
		c.group.finish()
	}
	sort.Ints(ns)
	sort.Float64s(levels)
	return ns, levels, cells
}
