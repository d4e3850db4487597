package dataprocessing

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"citypulse/pkg/contracts/domain"
)

const sampleCSV = `datetime,area,traffic,pollution,rain,transport_mode
2024-03-15 07:00,Downtown,120,55,0,bus
2024-03-15 08:00,Harbor,150,60,0.5,car
2024-03-15 08:30, Downtown ,,58,1.2,bike
2024-03-15 17:30,Airport,200,NA,2.0,car
2024-03-15 18:00,Harbor,90,40,0,
2024-03-16 07:15,Suburbs,60,30,0,bus
`

func renderIDs(renders []domain.RenderRequest) []string {
	ids := make([]string, len(renders))
	for i, r := range renders {
		ids[i] = r.ID
	}
	return ids
}

func TestPipeline_Run(t *testing.T) {
	p := NewPipeline(nil, nil)
	opts := DefaultPipelineOptions()
	opts.Load.Source = "city.csv"

	result, err := p.Run(context.Background(), strings.NewReader(sampleCSV), opts)
	require.NoError(t, err)
	report := result.Report

	assert.NotEmpty(t, report.ID)
	assert.Equal(t, "city.csv", report.SourceName)
	assert.Equal(t, 6, report.Rows)
	assert.Len(t, report.Preview.Rows, 5)
	assert.Equal(t, []string{"datetime", "area", "traffic", "pollution", "rain", "transport_mode"}, report.Preview.Columns)

	for _, col := range report.Columns {
		assert.Zero(t, col.MissingAfter, col.Name)
	}
	assert.True(t, HasColumns(result.Table, "hour", "day", "month"))

	require.NotNil(t, report.Correlation)
	assert.True(t, report.Correlation.Available)

	require.NotNil(t, report.Hourly)
	assert.Equal(t, []string{"17", "8", "7", "18"}, keys(report.Hourly.Top))

	require.NotNil(t, report.Areas)
	assert.Equal(t, "Airport", report.Areas.Top[0].Key)
	assert.Equal(t, []string{"Airport", "Downtown", "Harbor", "Suburbs"}, keys(report.Areas.Groups))

	require.NotNil(t, report.TransportModes)
	assert.Equal(t, 6, report.TransportModes.Total)

	assert.Empty(t, report.Notices)
	assert.Equal(t, []string{
		RenderPreview,
		RenderCleaning,
		RenderOverview,
		RenderTrafficVsPollution,
		RenderCorrelation,
		RenderHourly,
		RenderHourlyTop,
		RenderAreas,
		RenderRainTrafficScatter,
		RenderRainPollutionScatter,
		RenderRainTrafficTrend,
		RenderRainPollutionTrend,
		RenderTransportModes,
	}, renderIDs(report.Renders))

	_, err = json.Marshal(report)
	assert.NoError(t, err)
}

func TestPipeline_Run_MinimalTable(t *testing.T) {
	result, err := NewPipeline(nil, nil).Run(context.Background(),
		strings.NewReader("traffic,rain\n10,0\n20,1\n"), DefaultPipelineOptions())
	require.NoError(t, err)

	report := result.Report
	assert.Nil(t, report.Correlation)
	assert.Nil(t, report.Hourly)
	assert.NotNil(t, report.RainTraffic)
	assert.Equal(t, []string{RenderPreview, RenderCleaning, RenderOverview, RenderRainTrafficScatter, RenderRainTrafficTrend},
		renderIDs(report.Renders))
	assert.NotEmpty(t, report.Notices)

	_, ok := report.Render(RenderHourly)
	assert.False(t, ok)
	req, ok := report.Render(RenderRainTrafficScatter)
	require.True(t, ok)
	assert.Equal(t, domain.ChartScatter, req.Chart)
}

func TestPipeline_Run_ParseError(t *testing.T) {
	_, err := NewPipeline(nil, nil).Run(context.Background(), strings.NewReader("a,b\n1,2,3\n"), DefaultPipelineOptions())
	require.Error(t, err)

	var pe *ParseError
	require.True(t, errors.As(err, &pe))
	assert.ErrorIs(t, err, ErrMalformedCSV)
}

func TestPipeline_Run_HugeValuesStayEncodable(t *testing.T) {
	csv := "datetime,traffic,pollution\n" +
		"2024-03-15 07:00,1e308,1\n" +
		"2024-03-15 07:30,1e308,2\n" +
		"2024-03-15 08:00,5,3\n"

	result, err := NewPipeline(nil, nil).Run(context.Background(), strings.NewReader(csv), DefaultPipelineOptions())
	require.NoError(t, err)
	report := result.Report

	_, err = json.Marshal(report)
	require.NoError(t, err)

	require.NotNil(t, report.Hourly)
	require.NotEmpty(t, report.Hourly.Top)
	assert.Equal(t, "7", report.Hourly.Top[0].Key)
	require.NotNil(t, report.Hourly.Top[0].MeanTraffic)
	assert.InEpsilon(t, 1e308, *report.Hourly.Top[0].MeanTraffic, 1e-12)

	require.NotNil(t, report.Correlation)
	assert.True(t, report.Correlation.Available)
}

func TestPipeline_Run_HeaderOnly(t *testing.T) {
	result, err := NewPipeline(nil, nil).Run(context.Background(),
		strings.NewReader("datetime,traffic,pollution,area\n"), DefaultPipelineOptions())
	require.NoError(t, err)
	report := result.Report

	assert.Equal(t, 0, report.Rows)
	require.NotNil(t, report.Correlation)
	assert.False(t, report.Correlation.Available)
	require.NotNil(t, report.Areas)
	assert.Empty(t, report.Areas.Groups)

	_, err = json.Marshal(report)
	assert.NoError(t, err)
}

func TestPipeline_Run_EntirelyMissingColumn(t *testing.T) {
	result, err := NewPipeline(nil, nil).Run(context.Background(),
		strings.NewReader("traffic,pollution\n10,\n20,NA\n30,null\n"), DefaultPipelineOptions())
	require.NoError(t, err)

	pollution, ok := result.Table.Column("pollution")
	require.True(t, ok)
	assert.True(t, pollution.AllMissing())

	require.NotNil(t, result.Report.Correlation)
	assert.False(t, result.Report.Correlation.Available)
	assert.Equal(t, 0, result.Report.Correlation.Pairs)
}

func TestPreviewAndSummary(t *testing.T) {
	loaded := mustLoad(t, "timestamp,traffic\n2024-01-01 08:00,\n2024-01-01 09:00,5\n")
	cleaned, _ := NewCleaner(DefaultCleanOptions()).Clean(loaded)
	derived, _ := DeriveCalendarFeatures(cleaned)

	preview := Preview(loaded, 1)
	assert.Equal(t, [][]string{{"2024-01-01 08:00", ""}}, preview.Rows)

	summaries := SummarizeColumns(loaded, derived)
	byName := map[string]domain.ColumnSummary{}
	for _, s := range summaries {
		byName[s.Name] = s
	}
	assert.Equal(t, 1, byName["traffic"].MissingBefore)
	assert.Equal(t, 0, byName["traffic"].MissingAfter)
	assert.Equal(t, "timestamp", byName["datetime"].Kind)
	assert.False(t, byName["datetime"].Derived)
	assert.True(t, byName["hour"].Derived)
}
