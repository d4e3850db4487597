package charts

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"citypulse/internal/dataprocessing"
	"citypulse/pkg/contracts/domain"
)

// Default PNG size.
const (
	DefaultWidth  = 960
	DefaultHeight = 480
)

var (
	// ErrUnknownChart is returned for IDs that no report ever produces.
	ErrUnknownChart = errors.New("unknown chart")
	// ErrChartUnavailable is returned when the analysis behind a chart did not run.
	ErrChartUnavailable = errors.New("chart not available for this report")
	// ErrNotAChart is returned for render requests drawn as tables.
	ErrNotAChart = errors.New("render request is a table")
	// ErrNoData is returned when a chart has nothing to draw.
	ErrNoData = errors.New("no data to draw")
)

var knownRenders = map[string]bool{
	dataprocessing.RenderPreview:              true,
	dataprocessing.RenderCleaning:             true,
	dataprocessing.RenderOverview:             true,
	dataprocessing.RenderTrafficVsPollution:   true,
	dataprocessing.RenderCorrelation:          true,
	dataprocessing.RenderHourly:               true,
	dataprocessing.RenderHourlyTop:            true,
	dataprocessing.RenderAreas:                true,
	dataprocessing.RenderRainTrafficScatter:   true,
	dataprocessing.RenderRainPollutionScatter: true,
	dataprocessing.RenderRainTrafficTrend:     true,
	dataprocessing.RenderRainPollutionTrend:   true,
	dataprocessing.RenderTransportModes:       true,
}

// IsKnown reports whether id names a render request the pipeline can emit.
func IsKnown(id string) bool {
	return knownRenders[id]
}

var palette = []drawing.Color{
	chart.ColorBlue,
	chart.ColorRed,
	chart.ColorGreen,
	chart.ColorOrange,
	chart.ColorCyan,
	chart.ColorAlternateGray,
}

// Renderer draws the chart render requests of a report as PNG images.
// It holds no per-report state and is safe for concurrent use.
type Renderer struct {
	width  int
	height int
}

// NewRenderer creates a renderer. Non-positive sizes use the defaults.
func NewRenderer(width, height int) *Renderer {
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}
	return &Renderer{width: width, height: height}
}

// Render writes the PNG for the chart render request id of report to w.
func (r *Renderer) Render(report *domain.InsightReport, id string, w io.Writer) error {
	if !IsKnown(id) {
		return fmt.Errorf("%w: %q", ErrUnknownChart, id)
	}
	req, ok := report.Render(id)
	if !ok {
		return fmt.Errorf("%w: %q", ErrChartUnavailable, id)
	}
	if req.Kind != domain.RenderChart {
		return fmt.Errorf("%w: %q", ErrNotAChart, id)
	}

	switch id {
	case dataprocessing.RenderOverview:
		return r.overview(report.Overview, req.Title, w)
	case dataprocessing.RenderTrafficVsPollution:
		return r.paired(report.TrafficPollution, req.Title, false, w)
	case dataprocessing.RenderRainTrafficScatter:
		return r.paired(report.RainTraffic, req.Title, false, w)
	case dataprocessing.RenderRainPollutionScatter:
		return r.paired(report.RainPollution, req.Title, false, w)
	case dataprocessing.RenderRainTrafficTrend:
		return r.paired(report.RainTraffic, req.Title, true, w)
	case dataprocessing.RenderRainPollutionTrend:
		return r.paired(report.RainPollution, req.Title, true, w)
	case dataprocessing.RenderHourly:
		return r.bars(report.Hourly, false, req.Title, w)
	case dataprocessing.RenderAreas:
		return r.bars(report.Areas, true, req.Title, w)
	case dataprocessing.RenderTransportModes:
		return r.pie(report.TransportModes, req.Title, w)
	}
	return fmt.Errorf("%w: %q", ErrUnknownChart, id)
}

// DataURI renders the chart and encodes it as a base64 PNG data URI.
func (r *Renderer) DataURI(report *domain.InsightReport, id string) (string, error) {
	var buf bytes.Buffer
	if err := r.Render(report, id, &buf); err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// EmbedAll fills Image on every chart render request of report. Charts
// that cannot be drawn keep an empty Image and are returned by ID.
func (r *Renderer) EmbedAll(report *domain.InsightReport) map[string]error {
	failed := make(map[string]error)
	for i, req := range report.Renders {
		if req.Kind != domain.RenderChart {
			continue
		}
		uri, err := r.DataURI(report, req.ID)
		if err != nil {
			failed[req.ID] = err
			continue
		}
		report.Renders[i].Image = uri
	}
	return failed
}

func (r *Renderer) overview(view *domain.OverviewSeries, title string, w io.Writer) error {
	if view == nil || len(view.Series) == 0 {
		return ErrNoData
	}

	useTime := len(view.Timestamps) > 0
	var series []chart.Series
	var allX, allY []float64
	for i, s := range view.Series {
		if len(s.Values) == 0 {
			continue
		}
		xs := make([]float64, len(s.Index))
		for j, row := range s.Index {
			if useTime && row < len(view.Timestamps) {
				xs[j] = chart.TimeToFloat64(view.Timestamps[row])
			} else {
				xs[j] = float64(row)
			}
		}
		allX = append(allX, xs...)
		allY = append(allY, s.Values...)
		series = append(series, chart.ContinuousSeries{
			Name:    s.Name,
			XValues: xs,
			YValues: s.Values,
			Style:   lineStyle(palette[i%len(palette)]),
		})
	}
	if len(series) == 0 {
		return ErrNoData
	}

	xAxis := chart.XAxis{Name: view.XLabel, Range: paddedRange(allX)}
	if useTime {
		xAxis.ValueFormatter = chart.TimeValueFormatterWithFormat("01-02 15:04")
	}
	ch := chart.Chart{
		Title:      title,
		Width:      r.width,
		Height:     r.height,
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 12, Bottom: 16}},
		XAxis:      xAxis,
		YAxis:      chart.YAxis{Range: paddedRange(allY)},
		Series:     series,
	}
	ch.Elements = []chart.Renderable{chart.Legend(&ch)}
	return ch.Render(chart.PNG, w)
}

func (r *Renderer) paired(p *domain.PairedSeries, title string, trend bool, w io.Writer) error {
	if p == nil || p.Len() == 0 {
		return ErrNoData
	}

	xs := append([]float64(nil), p.XValues...)
	ys := append([]float64(nil), p.YValues...)
	style := pointStyle(palette[0])
	if trend {
		sortPairs(xs, ys)
		style = lineStyle(palette[1])
	}

	ch := chart.Chart{
		Title:      title,
		Width:      r.width,
		Height:     r.height,
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 12, Bottom: 16}},
		XAxis:      chart.XAxis{Name: p.X, Range: paddedRange(xs)},
		YAxis:      chart.YAxis{Name: p.Y, Range: paddedRange(ys)},
		Series: []chart.Series{chart.ContinuousSeries{
			Name:    p.Y,
			XValues: xs,
			YValues: ys,
			Style:   style,
		}},
	}
	return ch.Render(chart.PNG, w)
}

func (r *Renderer) bars(view *domain.AggregateView, top bool, title string, w io.Writer) error {
	if view == nil {
		return ErrNoData
	}
	groups := view.Groups
	if top {
		groups = view.Top
	}

	metric := func(g domain.GroupStat) *float64 { return g.MeanTraffic }
	if !view.HasTraffic {
		metric = func(g domain.GroupStat) *float64 { return g.MeanPollution }
	}

	values := make([]chart.Value, 0, len(groups))
	maxValue := 0.0
	for i, g := range groups {
		v := metric(g)
		if v == nil {
			continue
		}
		values = append(values, chart.Value{
			Label: g.Key,
			Value: *v,
			Style: chart.Style{FillColor: palette[i%len(palette)], StrokeColor: palette[i%len(palette)]},
		})
		maxValue = math.Max(maxValue, *v)
	}
	if len(values) == 0 {
		return ErrNoData
	}
	if maxValue <= 0 {
		maxValue = 1
	}

	barWidth := (r.width - 80) / (len(values) * 2)
	if barWidth < 4 {
		barWidth = 4
	}
	bc := chart.BarChart{
		Title:      title,
		Width:      r.width,
		Height:     r.height,
		Background: chart.Style{Padding: chart.Box{Top: 40}},
		BarWidth:   barWidth,
		YAxis:      chart.YAxis{Range: &chart.ContinuousRange{Min: 0, Max: maxValue * 1.1}},
		Bars:       values,
	}
	return bc.Render(chart.PNG, w)
}

func (r *Renderer) pie(dist *domain.CategoryDistribution, title string, w io.Writer) error {
	if dist == nil || dist.Total == 0 {
		return ErrNoData
	}

	values := make([]chart.Value, 0, len(dist.Categories))
	for _, c := range dist.Categories {
		if c.Count == 0 {
			continue
		}
		values = append(values, chart.Value{
			Label: fmt.Sprintf("%s (%.0f%%)", c.Category, c.Share*100),
			Value: float64(c.Count),
		})
	}
	if len(values) == 0 {
		return ErrNoData
	}

	pc := chart.PieChart{
		Title:  title,
		Width:  r.height,
		Height: r.height,
		Values: values,
	}
	return pc.Render(chart.PNG, w)
}

// pointStyle renders points only, with no connecting line.
func pointStyle(col drawing.Color) chart.Style {
	return chart.Style{
		StrokeWidth: chart.Disabled,
		DotWidth:    4,
		DotColor:    col,
	}
}

func lineStyle(col drawing.Color) chart.Style {
	return chart.Style{
		StrokeWidth: 2,
		StrokeColor: col,
	}
}

// paddedRange spans values, widened when every value is the same so the
// axis never has a zero-width domain.
func paddedRange(values []float64) *chart.ContinuousRange {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range values {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if math.IsInf(lo, 0) {
		return &chart.ContinuousRange{Min: 0, Max: 1}
	}
	if lo == hi {
		pad := math.Max(math.Abs(lo)*0.1, 1)
		return &chart.ContinuousRange{Min: lo - pad, Max: hi + pad}
	}
	return &chart.ContinuousRange{Min: lo, Max: hi}
}

type pairSorter struct{ xs, ys []float64 }

func (s pairSorter) Len() int           { return len(s.xs) }
func (s pairSorter) Less(i, j int) bool { return s.xs[i] < s.xs[j] }
func (s pairSorter) Swap(i, j int) {
	s.xs[i], s.xs[j] = s.xs[j], s.xs[i]
	s.ys[i], s.ys[j] = s.ys[j], s.ys[i]
}

func sortPairs(xs, ys []float64) {
	sort.Stable(pairSorter{xs: xs, ys: ys})
}
