package domain

import "time"

// Column roles recognized by name in an uploaded table.
const (
	ColumnDatetime      = "datetime"
	ColumnTimestamp     = "timestamp"
	ColumnTraffic       = "traffic"
	ColumnPollution     = "pollution"
	ColumnRain          = "rain"
	ColumnArea          = "area"
	ColumnTransportMode = "transport_mode"
	ColumnHour          = "hour"
	ColumnDay           = "day"
	ColumnMonth         = "month"
)

// MissingCategory labels the bucket of missing values in a category count.
const MissingCategory = "missing"

// InsightReport is the full result of one pipeline run over an uploaded table.
type InsightReport struct {
	ID          string    `json:"id"`
	SourceName  string    `json:"source_name,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
	Rows        int       `json:"rows"`
	DurationMS  int64     `json:"duration_ms"`

	Columns  []ColumnSummary `json:"columns"`
	Preview  TablePreview    `json:"preview"`
	Cleaning []CleaningStep  `json:"cleaning"`

	Overview         *OverviewSeries       `json:"overview,omitempty"`
	TrafficPollution *PairedSeries         `json:"traffic_pollution,omitempty"`
	Correlation      *CorrelationResult    `json:"correlation,omitempty"`
	Hourly           *AggregateView        `json:"hourly,omitempty"`
	Areas            *AggregateView        `json:"areas,omitempty"`
	RainTraffic      *PairedSeries         `json:"rain_traffic,omitempty"`
	RainPollution    *PairedSeries         `json:"rain_pollution,omitempty"`
	TransportModes   *CategoryDistribution `json:"transport_modes,omitempty"`

	Notices []Notice        `json:"notices,omitempty"`
	Renders []RenderRequest `json:"renders"`
}

// ColumnSummary describes one column of the cleaned table.
type ColumnSummary struct {
	Name          string `json:"name"`
	Kind          string `json:"kind"`
	MissingBefore int    `json:"missing_before"`
	MissingAfter  int    `json:"missing_after"`
	Derived       bool   `json:"derived,omitempty"`
}

// TablePreview is a string rendering of the first rows of a table.
type TablePreview struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// CleaningStep records one action taken by the cleaner.
type CleaningStep struct {
	Step     string `json:"step"`
	Column   string `json:"column,omitempty"`
	Affected int    `json:"affected"`
	Message  string `json:"message"`
}

// CorrelationResult holds the Pearson coefficient between traffic and pollution.
// Coefficient is rounded for display; Raw keeps full precision.
type CorrelationResult struct {
	Available   bool     `json:"available"`
	Coefficient *float64 `json:"coefficient,omitempty"`
	Raw         *float64 `json:"raw,omitempty"`
	Pairs       int      `json:"pairs"`
	Reason      string   `json:"reason,omitempty"`
}

// GroupStat is one row of an aggregate view.
type GroupStat struct {
	Key           string   `json:"key"`
	Count         int      `json:"count"`
	MeanTraffic   *float64 `json:"mean_traffic,omitempty"`
	MeanPollution *float64 `json:"mean_pollution,omitempty"`
}

// AggregateView groups rows by a key column. Groups is in ascending key
// order, Top is sorted descending by mean traffic and truncated.
type AggregateView struct {
	GroupBy      string      `json:"group_by"`
	HasTraffic   bool        `json:"has_traffic"`
	HasPollution bool        `json:"has_pollution"`
	Groups       []GroupStat `json:"groups"`
	Top          []GroupStat `json:"top"`
}

// CategoryCount is one bucket of a category distribution.
type CategoryCount struct {
	Category string  `json:"category"`
	Count    int     `json:"count"`
	Share    float64 `json:"share"`
	Missing  bool    `json:"missing,omitempty"`
}

// CategoryDistribution counts occurrences of each value of a text column.
type CategoryDistribution struct {
	Column     string          `json:"column"`
	Total      int             `json:"total"`
	Categories []CategoryCount `json:"categories"`
}

// PairedSeries exposes two raw columns row by row, keeping only rows where
// both values are present.
type PairedSeries struct {
	X       string    `json:"x"`
	Y       string    `json:"y"`
	XValues []float64 `json:"x_values"`
	YValues []float64 `json:"y_values"`
}

// Len returns the number of pairs.
func (p *PairedSeries) Len() int {
	return len(p.XValues)
}

// OverviewSeries holds measurement columns in row order.
type OverviewSeries struct {
	XLabel     string        `json:"x_label"`
	Timestamps []time.Time   `json:"timestamps,omitempty"`
	Series     []NamedSeries `json:"series"`
}

// NamedSeries is one line of an overview chart. Index holds the row of each value.
type NamedSeries struct {
	Name   string    `json:"name"`
	Index  []int     `json:"index"`
	Values []float64 `json:"values"`
}

// Notice explains why an analysis did not run or did not finish.
type Notice struct {
	Analysis       string   `json:"analysis"`
	MissingColumns []string `json:"missing_columns,omitempty"`
	Message        string   `json:"message"`
}

// RenderKind distinguishes table and chart render requests.
type RenderKind string

const (
	RenderTable RenderKind = "table"
	RenderChart RenderKind = "chart"
)

// ChartKind is the visual form of a chart render request.
type ChartKind string

const (
	ChartLine    ChartKind = "line"
	ChartScatter ChartKind = "scatter"
	ChartBar     ChartKind = "bar"
	ChartPie     ChartKind = "pie"
)

// RenderRequest asks the presenter to draw a table or chart from a report section.
type RenderRequest struct {
	ID      string     `json:"id"`
	Kind    RenderKind `json:"kind"`
	Chart   ChartKind  `json:"chart,omitempty"`
	Title   string     `json:"title"`
	Columns []string   `json:"columns"`
	Source  string     `json:"source"`
	Image   string     `json:"image,omitempty"`
}

// Render looks up a render request by ID.
func (r *InsightReport) Render(id string) (RenderRequest, bool) {
	for _, req := range r.Renders {
		if req.ID == id {
			return req, true
		}
	}
	return RenderRequest{}, false
}
