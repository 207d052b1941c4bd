// Package chart renders score trend charts as standalone HTML pages.
package chart

import (
	"bytes"
	"fmt"
	"sort"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

type Point struct {
	Date  time.Time
	Score int
}

// Threshold is drawn as a horizontal dashed line.
type Threshold struct {
	Name  string
	Value int
}

type Trend struct {
	Title      string
	SeriesName string
	MaxScore   int
	Points     []Point
	Thresholds []Threshold
}

// RenderTrend draws the points oldest first. Several submissions on one day
// are plotted separately with their time of day in the label.
func RenderTrend(t Trend) (string, error) {
	if len(t.Points) == 0 {
		return "", fmt.Errorf("no data points to chart")
	}

	points := make([]Point, len(t.Points))
	copy(points, t.Points)
	sort.SliceStable(points, func(i, j int) bool { return points[i].Date.Before(points[j].Date) })

	perDay := make(map[string]int, len(points))
	for _, p := range points {
		perDay[p.Date.Format("2006-01-02")]++
	}

	xAxis := make([]string, 0, len(points))
	yData := make([]opts.LineData, 0, len(points))
	for _, p := range points {
		label := p.Date.Format("2006-01-02")
		if perDay[label] > 1 {
			label = p.Date.Format("2006-01-02 15:04")
		}
		xAxis = append(xAxis, label)
		yData = append(yData, opts.LineData{Value: p.Score})
	}

	yAxis := opts.YAxis{Name: "Score", Min: 0}
	if t.MaxScore > 0 {
		yAxis.Max = t.MaxScore
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: t.Title}),
		charts.WithTitleOpts(opts.Title{Title: t.Title}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(false)}),
		charts.WithYAxisOpts(yAxis),
	)

	seriesOpts := []charts.SeriesOpts{
		charts.WithLineChartOpts(opts.LineChart{
			Smooth:     opts.Bool(false),
			ShowSymbol: opts.Bool(true),
		}),
		charts.WithMarkPointNameTypeItemOpts(
			opts.MarkPointNameTypeItem{Name: "Max", Type: "max"},
			opts.MarkPointNameTypeItem{Name: "Min", Type: "min"},
		),
	}

	if len(t.Thresholds) > 0 {
		items := make([]interface{}, 0, len(t.Thresholds))
		for _, th := range t.Thresholds {
			items = append(items, opts.MarkLineNameYAxisItem{Name: th.Name, YAxis: th.Value})
		}
		seriesOpts = append(seriesOpts, func(s *charts.SingleSeries) {
			s.MarkLines = &opts.MarkLines{
				Data: items,
				MarkLineStyle: opts.MarkLineStyle{
					Symbol: []string{"none", "none"},
					LineStyle: &opts.LineStyle{
						Color: "rgba(200, 60, 60, 0.6)",
						Type:  "dashed",
						Width: 1.5,
					},
				},
			}
		})
	}

	name := t.SeriesName
	if name == "" {
		name = t.Title
	}
	line.SetXAxis(xAxis).
		AddSeries(name, yData).
		SetSeriesOptions(seriesOpts...)

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		return "", fmt.Errorf("render chart: %w", err)
	}
	return buf.String(), nil
}
