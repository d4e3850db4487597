package dataprocessing

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"citypulse/pkg/contracts/domain"
)

// AnalysisOptions configures the analyzer.
type AnalysisOptions struct {
	// TopN truncates the sorted aggregate views
	TopN int

	// CorrelationPrecision is the number of decimals kept for display
	CorrelationPrecision int
}

// DefaultAnalysisOptions returns the analyzer defaults.
func DefaultAnalysisOptions() AnalysisOptions {
	return AnalysisOptions{
		TopN:                 5,
		CorrelationPrecision: 2,
	}
}

// Analyzer runs the gated descriptive statistics over a cleaned table.
// Each analysis is isolated: a missing column or a failure in one of them
// yields a notice and the others still run.
type Analyzer struct {
	opts   AnalysisOptions
	logger *slog.Logger
}

// NewAnalyzer creates an analyzer.
func NewAnalyzer(opts AnalysisOptions, logger *slog.Logger) *Analyzer {
	if opts.TopN <= 0 {
		opts.TopN = DefaultAnalysisOptions().TopN
	}
	if opts.CorrelationPrecision < 0 {
		opts.CorrelationPrecision = DefaultAnalysisOptions().CorrelationPrecision
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{opts: opts, logger: logger}
}

// Analysis names used in notices and logs.
const (
	AnalysisOverview         = "overview"
	AnalysisTrafficPollution = "traffic_pollution"
	AnalysisCorrelation      = "correlation"
	AnalysisHourly           = "hourly"
	AnalysisAreas            = "areas"
	AnalysisRainTraffic      = "rain_traffic"
	AnalysisRainPollution    = "rain_pollution"
	AnalysisTransportModes   = "transport_modes"
)

// Analyze fills the analysis sections of report from t. It only reads t.
func (a *Analyzer) Analyze(t *Table, report *domain.InsightReport) {
	a.run(t, report, AnalysisOverview, nil, func() {
		if !HasColumns(t, domain.ColumnTraffic) && !HasColumns(t, domain.ColumnPollution) {
			report.Notices = append(report.Notices, domain.Notice{
				Analysis:       AnalysisOverview,
				MissingColumns: []string{domain.ColumnTraffic, domain.ColumnPollution},
				Message:        "no traffic or pollution column",
			})
			return
		}
		report.Overview = Overview(t)
	})

	a.run(t, report, AnalysisTrafficPollution, []string{domain.ColumnTraffic, domain.ColumnPollution}, func() {
		report.TrafficPollution = Pairs(t, domain.ColumnTraffic, domain.ColumnPollution)
	})

	a.run(t, report, AnalysisCorrelation, []string{domain.ColumnTraffic, domain.ColumnPollution}, func() {
		result := Correlation(t, a.opts.CorrelationPrecision)
		report.Correlation = &result
	})

	a.run(t, report, AnalysisHourly, []string{domain.ColumnHour}, func() {
		report.Hourly = GroupMeans(t, domain.ColumnHour, a.opts.TopN)
	})

	a.run(t, report, AnalysisAreas, []string{domain.ColumnArea}, func() {
		report.Areas = GroupMeans(t, domain.ColumnArea, a.opts.TopN)
	})

	a.run(t, report, AnalysisRainTraffic, []string{domain.ColumnRain, domain.ColumnTraffic}, func() {
		report.RainTraffic = Pairs(t, domain.ColumnRain, domain.ColumnTraffic)
	})

	a.run(t, report, AnalysisRainPollution, []string{domain.ColumnRain, domain.ColumnPollution}, func() {
		report.RainPollution = Pairs(t, domain.ColumnRain, domain.ColumnPollution)
	})

	a.run(t, report, AnalysisTransportModes, []string{domain.ColumnTransportMode}, func() {
		report.TransportModes = CategoryCounts(t, domain.ColumnTransportMode)
	})
}

// run gates fn on required columns and contains any panic it raises.
func (a *Analyzer) run(t *Table, report *domain.InsightReport, name string, required []string, fn func()) {
	if missing := MissingColumns(t, required...); len(missing) > 0 {
		a.logger.Debug("Analysis skipped",
			slog.String("analysis", name),
			slog.Any("missing_columns", missing))
		report.Notices = append(report.Notices, domain.Notice{
			Analysis:       name,
			MissingColumns: missing,
			Message:        fmt.Sprintf("skipped: missing column(s) %v", missing),
		})
		return
	}

	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("Analysis failed",
				slog.String("analysis", name),
				slog.Any("panic", r))
			report.Notices = append(report.Notices, domain.Notice{
				Analysis: name,
				Message:  fmt.Sprintf("failed: %v", r),
			})
		}
	}()
	fn()
}

func numericColumn(t *Table, name string) (*Column, bool) {
	col, ok := t.Column(name)
	if !ok || col.Kind != KindNumeric {
		return nil, false
	}
	return col, true
}

// Pairs returns the rows where both numeric columns x and y are present.
func Pairs(t *Table, x, y string) *domain.PairedSeries {
	out := &domain.PairedSeries{X: x, Y: y, XValues: []float64{}, YValues: []float64{}}
	xs, okX := numericColumn(t, x)
	ys, okY := numericColumn(t, y)
	if !okX || !okY {
		return out
	}
	for r := 0; r < t.NumRows(); r++ {
		xv, yv := xs.Values[r], ys.Values[r]
		if xv.Missing || yv.Missing {
			continue
		}
		out.XValues = append(out.XValues, xv.Num)
		out.YValues = append(out.YValues, yv.Num)
	}
	return out
}

// Correlation computes the Pearson coefficient between traffic and
// pollution over rows where both are present.
func Correlation(t *Table, precision int) domain.CorrelationResult {
	pairs := Pairs(t, domain.ColumnTraffic, domain.ColumnPollution)
	result := domain.CorrelationResult{Pairs: pairs.Len()}
	if pairs.Len() < 2 {
		result.Reason = "fewer than 2 paired observations"
		return result
	}
	if constant(pairs.XValues) || constant(pairs.YValues) {
		result.Reason = "zero variance"
		return result
	}

	// Pearson is scale invariant; unit-scaling keeps the sums of squares finite
	r := stat.Correlation(unitScaled(pairs.XValues), unitScaled(pairs.YValues), nil)
	if !finite(r) {
		result.Reason = "undefined coefficient"
		return result
	}
	r = math.Max(-1, math.Min(1, r))
	rounded := Round(r, precision)
	result.Available = true
	result.Raw = &r
	result.Coefficient = &rounded
	return result
}

// Round rounds f half away from zero to the given number of decimals.
func Round(f float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(f*p) / p
}

func constant(xs []float64) bool {
	for _, x := range xs[1:] {
		if x != xs[0] {
			return false
		}
	}
	return true
}

type groupAcc struct {
	key       string
	num       float64
	count     int
	traffic   []float64
	pollution []float64
}

// GroupMeans groups rows by key and averages traffic and pollution per
// group, ignoring missing values. Rows with a missing key are skipped.
// Groups come back in ascending key order; Top holds the topN groups by
// mean traffic, descending, ties in first-encountered order.
func GroupMeans(t *Table, key string, topN int) *domain.AggregateView {
	view := &domain.AggregateView{GroupBy: key, Groups: []domain.GroupStat{}, Top: []domain.GroupStat{}}
	keyCol, ok := t.Column(key)
	if !ok {
		return view
	}
	traffic, hasTraffic := numericColumn(t, domain.ColumnTraffic)
	pollution, hasPollution := numericColumn(t, domain.ColumnPollution)
	view.HasTraffic = hasTraffic
	view.HasPollution = hasPollution

	var order []*groupAcc
	index := make(map[string]*groupAcc)
	for r := 0; r < t.NumRows(); r++ {
		kv := keyCol.Values[r]
		if kv.Missing {
			continue
		}
		k := keyCol.Format(r)
		acc, seen := index[k]
		if !seen {
			acc = &groupAcc{key: k, num: kv.Num}
			index[k] = acc
			order = append(order, acc)
		}
		acc.count++
		if hasTraffic && !traffic.Values[r].Missing {
			acc.traffic = append(acc.traffic, traffic.Values[r].Num)
		}
		if hasPollution && !pollution.Values[r].Missing {
			acc.pollution = append(acc.pollution, pollution.Values[r].Num)
		}
	}

	stats := make([]domain.GroupStat, len(order))
	for i, acc := range order {
		stats[i] = domain.GroupStat{
			Key:           acc.key,
			Count:         acc.count,
			MeanTraffic:   mean(acc.traffic),
			MeanPollution: mean(acc.pollution),
		}
	}

	top := make([]domain.GroupStat, len(stats))
	copy(top, stats)
	sort.SliceStable(top, func(i, j int) bool {
		a, b := top[i].MeanTraffic, top[j].MeanTraffic
		if a == nil || b == nil {
			return a != nil && b == nil
		}
		return *a > *b
	})
	if topN > 0 && len(top) > topN {
		top = top[:topN]
	}
	view.Top = top

	byKey := make([]int, len(order))
	for i := range byKey {
		byKey[i] = i
	}
	sort.SliceStable(byKey, func(i, j int) bool {
		a, b := order[byKey[i]], order[byKey[j]]
		if keyCol.Kind == KindNumeric {
			return a.num < b.num
		}
		return a.key < b.key
	})
	for _, i := range byKey {
		view.Groups = append(view.Groups, stats[i])
	}
	return view
}

func mean(xs []float64) *float64 {
	if len(xs) == 0 {
		return nil
	}
	m := stat.Mean(xs, nil)
	if !finite(m) {
		// the sum overflowed
		scale := maxAbs(xs)
		m = scale * stat.Mean(unitScaled(xs), nil)
	}
	if !finite(m) {
		return nil
	}
	return &m
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func maxAbs(xs []float64) float64 {
	var m float64
	for _, x := range xs {
		m = math.Max(m, math.Abs(x))
	}
	return m
}

// unitScaled divides xs by its largest magnitude so every value lies in [-1, 1].
func unitScaled(xs []float64) []float64 {
	scale := maxAbs(xs)
	out := make([]float64, len(xs))
	for i, x := range xs {
		if scale == 0 {
			continue
		}
		out[i] = x / scale
	}
	return out
}

// CategoryCounts counts each distinct value of a column, with a missing
// bucket when any value is missing. Buckets are sorted by count,
// descending, ties in first-encountered order.
func CategoryCounts(t *Table, name string) *domain.CategoryDistribution {
	dist := &domain.CategoryDistribution{Column: name, Categories: []domain.CategoryCount{}}
	col, ok := t.Column(name)
	if !ok {
		return dist
	}

	index := make(map[string]int)
	missingAt := -1
	for r := 0; r < col.Len(); r++ {
		if col.Values[r].Missing {
			if missingAt < 0 {
				missingAt = len(dist.Categories)
				dist.Categories = append(dist.Categories, domain.CategoryCount{Category: domain.MissingCategory, Missing: true})
			}
			dist.Categories[missingAt].Count++
			continue
		}
		k := col.Format(r)
		i, seen := index[k]
		if !seen {
			i = len(dist.Categories)
			index[k] = i
			dist.Categories = append(dist.Categories, domain.CategoryCount{Category: k})
		}
		dist.Categories[i].Count++
	}

	dist.Total = col.Len()
	for i := range dist.Categories {
		if dist.Total > 0 {
			dist.Categories[i].Share = float64(dist.Categories[i].Count) / float64(dist.Total)
		}
	}
	sort.SliceStable(dist.Categories, func(i, j int) bool {
		return dist.Categories[i].Count > dist.Categories[j].Count
	})
	return dist
}

// Overview returns the traffic and pollution columns in row order, indexed
// by datetime when that column is fully present.
func Overview(t *Table) *domain.OverviewSeries {
	out := &domain.OverviewSeries{XLabel: "row", Series: []domain.NamedSeries{}}
	if dt, ok := t.Column(domain.ColumnDatetime); ok && dt.Kind == KindTimestamp && dt.MissingCount() == 0 && dt.Len() > 0 {
		out.XLabel = domain.ColumnDatetime
		out.Timestamps = make([]time.Time, dt.Len())
		for i, v := range dt.Values {
			out.Timestamps[i] = v.Time
		}
	}
	for _, name := range []string{domain.ColumnTraffic, domain.ColumnPollution} {
		col, ok := numericColumn(t, name)
		if !ok {
			continue
		}
		series := domain.NamedSeries{Name: name, Index: []int{}, Values: []float64{}}
		for i, v := range col.Values {
			if v.Missing {
				continue
			}
			series.Index = append(series.Index, i)
			series.Values = append(series.Values, v.Num)
		}
		out.Series = append(out.Series, series)
	}
	return out
}
