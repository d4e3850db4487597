package dataprocessing

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"citypulse/pkg/contracts/domain"
)

// pearson is an independent reference implementation.
func pearson(x, y []float64) float64 {
	n := float64(len(x))
	var sx, sy, sxx, syy, sxy float64
	for i := range x {
		sx += x[i]
		sy += y[i]
		sxx += x[i] * x[i]
		syy += y[i] * y[i]
		sxy += x[i] * y[i]
	}
	return (n*sxy - sx*sy) / math.Sqrt((n*sxx-sx*sx)*(n*syy-sy*sy))
}

func keys(stats []domain.GroupStat) []string {
	out := make([]string, len(stats))
	for i, s := range stats {
		out[i] = s.Key
	}
	return out
}

func TestCorrelation_MatchesReference(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for trial := 0; trial < 25; trial++ {
		n := 3 + rng.Intn(40)
		x := make([]any, n)
		y := make([]any, n)
		xf := make([]float64, n)
		yf := make([]float64, n)
		for i := 0; i < n; i++ {
			xf[i] = rng.Float64() * 500
			yf[i] = 0.3*xf[i] + rng.NormFloat64()*20
			x[i], y[i] = xf[i], yf[i]
		}
		table := mustTable(t, numbers("traffic", x...), numbers("pollution", y...))

		result := Correlation(table, 2)
		require.True(t, result.Available)
		assert.InDelta(t, pearson(xf, yf), *result.Raw, 1e-9)
		assert.InDelta(t, *result.Raw, *result.Coefficient, 0.005+1e-12)
		assert.Equal(t, n, result.Pairs)
	}
}

func TestCorrelation_LargeAndSmallMagnitudes(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for _, scale := range []float64{1e200, 1e-200, 1e150} {
		n := 10
		x := make([]any, n)
		y := make([]any, n)
		xf := make([]float64, n)
		yf := make([]float64, n)
		for i := 0; i < n; i++ {
			xf[i] = rng.Float64() * 500
			yf[i] = 0.5*xf[i] + rng.NormFloat64()*40
			x[i], y[i] = xf[i]*scale, yf[i]
		}
		table := mustTable(t, numbers("traffic", x...), numbers("pollution", y...))

		result := Correlation(table, 2)
		require.True(t, result.Available, "scale %g", scale)
		assert.InDelta(t, pearson(xf, yf), *result.Raw, 1e-9, "scale %g", scale)
	}

	table := mustTable(t, numbers("traffic", 1e200, 2e200, 3e200), numbers("pollution", 1, 2, 3))
	result := Correlation(table, 2)
	require.True(t, result.Available)
	assert.Equal(t, 1.0, *result.Coefficient)
}

func TestCorrelation(t *testing.T) {
	tests := []struct {
		name       string
		traffic    []any
		pollution  []any
		wantOK     bool
		wantCoeff  float64
		wantPairs  int
		wantReason string
	}{
		{
			name:      "perfect positive",
			traffic:   []any{1, 2, 3, 4},
			pollution: []any{10, 20, 30, 40},
			wantOK:    true,
			wantCoeff: 1,
			wantPairs: 4,
		},
		{
			name:      "perfect negative",
			traffic:   []any{1, 2, 3},
			pollution: []any{3, 2, 1},
			wantOK:    true,
			wantCoeff: -1,
			wantPairs: 3,
		},
		{
			name:      "rows with missing values ignored",
			traffic:   []any{1, nil, 3, 4},
			pollution: []any{2, 5, nil, 8},
			wantOK:    true,
			wantCoeff: 1,
			wantPairs: 2,
		},
		{
			name:       "fewer than two pairs",
			traffic:    []any{1, nil},
			pollution:  []any{2, 3},
			wantPairs:  1,
			wantReason: "fewer than 2 paired observations",
		},
		{
			name:       "zero variance",
			traffic:    []any{0.1, 0.1, 0.1},
			pollution:  []any{1, 2, 3},
			wantPairs:  3,
			wantReason: "zero variance",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table := mustTable(t, numbers("traffic", tt.traffic...), numbers("pollution", tt.pollution...))
			result := Correlation(table, 2)
			assert.Equal(t, tt.wantOK, result.Available)
			assert.Equal(t, tt.wantPairs, result.Pairs)
			if tt.wantOK {
				require.NotNil(t, result.Coefficient)
				assert.Equal(t, tt.wantCoeff, *result.Coefficient)
				return
			}
			assert.Nil(t, result.Coefficient)
			assert.Equal(t, tt.wantReason, result.Reason)
		})
	}
}

func TestRound(t *testing.T) {
	assert.Equal(t, 0.87, Round(0.8666, 2))
	assert.Equal(t, -0.13, Round(-0.125, 2))
	assert.Equal(t, 1.0, Round(0.999, 2))
	assert.Equal(t, 0.867, Round(0.8666, 3))
}

func TestGroupMeans_Hourly(t *testing.T) {
	table := mustTable(t,
		numbers("hour", 0, 1, 2),
		numbers("traffic", 10, 50, 30),
		numbers("pollution", 5, 7, 9),
	)

	view := GroupMeans(table, "hour", 5)

	assert.Equal(t, []string{"1", "2", "0"}, keys(view.Top))
	assert.Equal(t, []string{"0", "1", "2"}, keys(view.Groups))
	assert.True(t, view.HasTraffic)
	assert.True(t, view.HasPollution)
	assert.Equal(t, 50.0, *view.Top[0].MeanTraffic)
	assert.Equal(t, 7.0, *view.Top[0].MeanPollution)
}

func TestGroupMeans(t *testing.T) {
	tests := []struct {
		name      string
		table     func(t *testing.T) *Table
		key       string
		topN      int
		wantTop   []string
		wantAll   []string
		wantFirst float64
	}{
		{
			name: "means ignore missing values",
			table: func(t *testing.T) *Table {
				return mustTable(t,
					texts("area", "a", "a", "b", "b"),
					numbers("traffic", 10, nil, 4, 8),
				)
			},
			key:       "area",
			topN:      5,
			wantTop:   []string{"a", "b"},
			wantAll:   []string{"a", "b"},
			wantFirst: 10,
		},
		{
			name: "truncated to top n",
			table: func(t *testing.T) *Table {
				return mustTable(t,
					numbers("hour", 0, 1, 2, 3, 4, 5, 6),
					numbers("traffic", 1, 7, 2, 6, 3, 5, 4),
				)
			},
			key:       "hour",
			topN:      5,
			wantTop:   []string{"1", "3", "5", "6", "4"},
			wantAll:   []string{"0", "1", "2", "3", "4", "5", "6"},
			wantFirst: 7,
		},
		{
			name: "ties keep first encountered order",
			table: func(t *testing.T) *Table {
				return mustTable(t,
					texts("area", "north", "south", "east"),
					numbers("traffic", 20, 20, 30),
				)
			},
			key:       "area",
			topN:      5,
			wantTop:   []string{"east", "north", "south"},
			wantAll:   []string{"east", "north", "south"},
			wantFirst: 30,
		},
		{
			name: "numeric keys sort numerically",
			table: func(t *testing.T) *Table {
				return mustTable(t,
					numbers("hour", 10, 9, 2),
					numbers("traffic", 1, 2, 3),
				)
			},
			key:       "hour",
			topN:      5,
			wantTop:   []string{"2", "9", "10"},
			wantAll:   []string{"2", "9", "10"},
			wantFirst: 3,
		},
		{
			name: "missing keys skipped and empty means last",
			table: func(t *testing.T) *Table {
				return mustTable(t,
					texts("area", nil, "quiet", "busy"),
					numbers("traffic", 99, nil, 5),
				)
			},
			key:       "area",
			topN:      5,
			wantTop:   []string{"busy", "quiet"},
			wantAll:   []string{"busy", "quiet"},
			wantFirst: 5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			view := GroupMeans(tt.table(t), tt.key, tt.topN)
			assert.Equal(t, tt.wantTop, keys(view.Top))
			assert.Equal(t, tt.wantAll, keys(view.Groups))
			assert.LessOrEqual(t, len(view.Top), tt.topN)
			require.NotNil(t, view.Top[0].MeanTraffic)
			assert.Equal(t, tt.wantFirst, *view.Top[0].MeanTraffic)
			assert.False(t, view.HasPollution)
		})
	}
}

func TestMean(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   *float64
	}{
		{name: "empty", values: nil},
		{name: "small", values: []float64{10, 30}, want: ptr(20)},
		{name: "sum overflows", values: []float64{1e308, 1e308}, want: ptr(1e308)},
		{name: "mixed overflow", values: []float64{1e308, 1e308, -1e308}, want: ptr(1e308 / 3)},
		{name: "negative overflow", values: []float64{-1e308, -1e308, 5}, want: ptr(-2e308/3 + 5.0/3)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mean(tt.values)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.False(t, math.IsInf(*got, 0))
			assert.InEpsilon(t, *tt.want, *got, 1e-12)
		})
	}
}

func ptr(f float64) *float64 { return &f }

func TestCategoryCounts(t *testing.T) {
	table := mustTable(t, texts("transport_mode", "bus", "car", nil, "bus", "bike", nil, "bus"))

	dist := CategoryCounts(table, "transport_mode")

	require.Len(t, dist.Categories, 4)
	assert.Equal(t, 7, dist.Total)
	assert.Equal(t, domain.CategoryCount{Category: "bus", Count: 3, Share: 3.0 / 7.0}, dist.Categories[0])
	assert.Equal(t, domain.MissingCategory, dist.Categories[1].Category)
	assert.True(t, dist.Categories[1].Missing)
	assert.Equal(t, 2, dist.Categories[1].Count)
	assert.Equal(t, "car", dist.Categories[2].Category)
	assert.Equal(t, "bike", dist.Categories[3].Category)

	var share float64
	for _, c := range dist.Categories {
		share += c.Share
	}
	assert.InDelta(t, 1.0, share, 1e-9)
}

func TestPairs(t *testing.T) {
	table := mustTable(t, numbers("rain", 0, 1.5, nil, 3), numbers("traffic", 100, nil, 80, 60))

	pairs := Pairs(table, "rain", "traffic")
	assert.Equal(t, []float64{0, 3}, pairs.XValues)
	assert.Equal(t, []float64{100, 60}, pairs.YValues)
	assert.Equal(t, 2, pairs.Len())
}

func TestAnalyzer_SkipsAbsentColumns(t *testing.T) {
	table := mustTable(t,
		numbers("traffic", 10, 20, 30),
		numbers("pollution", 1, 3, 2),
	)
	report := &domain.InsightReport{}

	NewAnalyzer(DefaultAnalysisOptions(), nil).Analyze(table, report)

	require.NotNil(t, report.Correlation)
	assert.True(t, report.Correlation.Available)
	assert.NotNil(t, report.Overview)
	assert.NotNil(t, report.TrafficPollution)
	assert.Nil(t, report.RainTraffic)
	assert.Nil(t, report.RainPollution)
	assert.Nil(t, report.Hourly)
	assert.Nil(t, report.Areas)
	assert.Nil(t, report.TransportModes)

	skipped := map[string][]string{}
	for _, n := range report.Notices {
		skipped[n.Analysis] = n.MissingColumns
	}
	assert.Equal(t, []string{"rain"}, skipped[AnalysisRainTraffic])
	assert.Equal(t, []string{"rain"}, skipped[AnalysisRainPollution])
	assert.Equal(t, []string{"hour"}, skipped[AnalysisHourly])
	assert.Equal(t, []string{"area"}, skipped[AnalysisAreas])
	assert.Equal(t, []string{"transport_mode"}, skipped[AnalysisTransportModes])
	assert.NotContains(t, skipped, AnalysisCorrelation)
}

func TestAnalyzer_AggregatesWithoutTraffic(t *testing.T) {
	table := mustTable(t,
		numbers("hour", 8, 9, 8),
		texts("area", "Harbor", "Airport", "Harbor"),
		numbers("pollution", 40, 70, 60),
	)
	report := &domain.InsightReport{}

	NewAnalyzer(DefaultAnalysisOptions(), nil).Analyze(table, report)

	for _, view := range []*domain.AggregateView{report.Hourly, report.Areas} {
		require.NotNil(t, view)
		assert.False(t, view.HasTraffic)
		assert.True(t, view.HasPollution)
		require.Len(t, view.Groups, 2)
		assert.Nil(t, view.Groups[0].MeanTraffic)
	}
	assert.Equal(t, []string{"8", "9"}, keys(report.Hourly.Groups))
	assert.Equal(t, 50.0, *report.Hourly.Groups[0].MeanPollution)
	assert.Equal(t, []string{"Harbor", "Airport"}, keys(report.Areas.Top))

	for _, n := range report.Notices {
		assert.NotEqual(t, AnalysisHourly, n.Analysis)
		assert.NotEqual(t, AnalysisAreas, n.Analysis)
	}

	renders := RenderRequests(report)
	for _, r := range renders {
		if r.ID == RenderHourly {
			assert.Equal(t, "Average Pollution by Hour", r.Title)
			assert.Equal(t, []string{"hour", "pollution"}, r.Columns)
		}
	}
}

func TestAnalyzer_RainOnlyWithPollution(t *testing.T) {
	table := mustTable(t, numbers("rain", 0, 2), numbers("pollution", 30, 35))
	report := &domain.InsightReport{}

	NewAnalyzer(DefaultAnalysisOptions(), nil).Analyze(table, report)

	assert.Nil(t, report.RainTraffic)
	require.NotNil(t, report.RainPollution)
	assert.Equal(t, 2, report.RainPollution.Len())
	assert.Nil(t, report.Correlation)
	require.NotNil(t, report.Overview)
	require.Len(t, report.Overview.Series, 1)
	assert.Equal(t, "pollution", report.Overview.Series[0].Name)
}

func TestAnalyzer_IsolatesFailures(t *testing.T) {
	table := mustTable(t, numbers("traffic", 1))
	report := &domain.InsightReport{}
	a := NewAnalyzer(DefaultAnalysisOptions(), nil)

	ran := false
	a.run(table, report, "broken", []string{"traffic"}, func() { panic("boom") })
	a.run(table, report, "healthy", []string{"traffic"}, func() { ran = true })

	assert.True(t, ran)
	require.Len(t, report.Notices, 1)
	assert.Equal(t, "broken", report.Notices[0].Analysis)
	assert.Contains(t, report.Notices[0].Message, "boom")
}

func TestAnalyzer_DoesNotMutateTable(t *testing.T) {
	table := mustLoad(t, "datetime,traffic,pollution,area,rain,transport_mode\n"+
		"2024-03-15 17:30,10,3,a,0,bus\n"+
		"2024-03-15 18:30,20,4,b,1,car\n")
	cleaned, _ := NewCleaner(DefaultCleanOptions()).Clean(table)
	derived, _ := DeriveCalendarFeatures(cleaned)
	before := derived.Clone()

	NewAnalyzer(DefaultAnalysisOptions(), nil).Analyze(derived, &domain.InsightReport{})

	assert.Equal(t, before.Names(), derived.Names())
	for _, col := range before.Columns() {
		after, _ := derived.Column(col.Name)
		assert.Equal(t, col.Values, after.Values, col.Name)
	}
}
