package dashboard

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/couchcryptid/air-quality-etl/internal/domain"
)

const (
	chartWidth  = 720
	chartHeight = 280
	chartLeft   = 48
	chartRight  = 16
	chartTop    = 12
	chartBottom = 32
	chartYTicks = 5
)

type chart struct {
	Width, Height int
	Left, Top     float64
	PlotWidth     float64
	PlotHeight    float64
	Series        []chartSeries
	XTicks        []chartTick
	YTicks        []chartTick
}

// Right is the x coordinate of the plot's right edge.
func (c *chart) Right() float64 { return c.Left + c.PlotWidth }

// TickLabelX is where y-axis labels end.
func (c *chart) TickLabelX() float64 { return c.Left - 6 }

// XLabelY is the baseline of the x-axis labels.
func (c *chart) XLabelY() float64 { return c.Top + c.PlotHeight + 18 }

type chartSeries struct {
	Name    string
	Color   string
	Points  string
	Markers []chartMarker
}

type chartMarker struct {
	X, Y  float64
	Label string
}

type chartTick struct {
	Pos   float64
	Label string
}

type seriesDef struct {
	name  string
	color string
	value func(domain.DailyFeatureRow) float64
}

var trendSeries = []seriesDef{
	{"pm25_mean", "#1f77b4", func(r domain.DailyFeatureRow) float64 { return r.PM25Mean }},
	{"pm25_max", "#d62728", func(r domain.DailyFeatureRow) float64 { return r.PM25Max }},
	{"pm25_roll3", "#2ca02c", func(r domain.DailyFeatureRow) float64 { return r.PM25Roll3 }},
}

// buildChart lays out the PM2.5 trend for rows sorted by date. It returns nil
// when there is nothing to plot. Missing values are skipped.
func buildChart(rows []domain.DailyFeatureRow) *chart {
	if len(rows) == 0 {
		return nil
	}

	c := &chart{
		Width:      chartWidth,
		Height:     chartHeight,
		Left:       chartLeft,
		Top:        chartTop,
		PlotWidth:  chartWidth - chartLeft - chartRight,
		PlotHeight: chartHeight - chartTop - chartBottom,
	}

	yMax := 0.0
	for _, r := range rows {
		for _, s := range trendSeries {
			if v := s.value(r); !domain.Missing(v) && v > yMax {
				yMax = v
			}
		}
	}
	if yMax == 0 {
		yMax = 1
	}
	yMax = niceCeil(yMax)

	first, last := rows[0].Date, rows[len(rows)-1].Date
	span := last.Sub(first)
	x := func(t time.Time) float64 {
		if span <= 0 {
			return c.Left + c.PlotWidth/2
		}
		return c.Left + c.PlotWidth*float64(t.Sub(first))/float64(span)
	}
	y := func(v float64) float64 {
		return c.Top + c.PlotHeight*(1-v/yMax)
	}

	for _, s := range trendSeries {
		cs := chartSeries{Name: s.name, Color: s.color}
		points := make([]string, 0, len(rows))
		for _, r := range rows {
			v := s.value(r)
			if domain.Missing(v) {
				continue
			}
			px, py := round1(x(r.Date)), round1(y(v))
			points = append(points, fmt.Sprintf("%g,%g", px, py))
			cs.Markers = append(cs.Markers, chartMarker{
				X:     px,
				Y:     py,
				Label: fmt.Sprintf("%s %s: %.2f", formatDate(r.Date), s.name, v),
			})
		}
		cs.Points = strings.Join(points, " ")
		c.Series = append(c.Series, cs)
	}

	for i := 0; i <= chartYTicks; i++ {
		v := yMax * float64(i) / chartYTicks
		c.YTicks = append(c.YTicks, chartTick{Pos: round1(y(v)), Label: fmt.Sprintf("%g", math.Round(v*10)/10)})
	}

	ticks := []time.Time{first}
	if len(rows) > 2 {
		ticks = append(ticks, rows[len(rows)/2].Date)
	}
	if len(rows) > 1 {
		ticks = append(ticks, last)
	}
	for _, t := range ticks {
		c.XTicks = append(c.XTicks, chartTick{Pos: round1(x(t)), Label: formatDate(t)})
	}
	return c
}

// niceCeil rounds v up to 1, 2, 5 or 10 times a power of ten.
func niceCeil(v float64) float64 {
	exp := math.Pow(10, math.Floor(math.Log10(v)))
	for _, m := range []float64{1, 2, 5, 10} {
		if m*exp >= v {
			return m * exp
		}
	}
	return 10 * exp
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
