package dataprocessing

import (
	"fmt"

	"citypulse/pkg/contracts/domain"
)

// Render request IDs.
const (
	RenderPreview              = "preview"
	RenderCleaning             = "cleaning"
	RenderOverview             = "overview"
	RenderTrafficVsPollution   = "traffic-vs-pollution"
	RenderCorrelation          = "correlation"
	RenderHourly               = "hourly"
	RenderHourlyTop            = "hourly-top"
	RenderAreas                = "areas"
	RenderRainTrafficScatter   = "rain-traffic-scatter"
	RenderRainPollutionScatter = "rain-pollution-scatter"
	RenderRainTrafficTrend     = "rain-traffic-trend"
	RenderRainPollutionTrend   = "rain-pollution-trend"
	RenderTransportModes       = "transport-modes"
)

// RenderRequests lists what the presenter should draw, in display order,
// for every section of the report that was produced.
func RenderRequests(report *domain.InsightReport) []domain.RenderRequest {
	var out []domain.RenderRequest
	table := func(id, title, source string, columns ...string) {
		out = append(out, domain.RenderRequest{ID: id, Kind: domain.RenderTable, Title: title, Source: source, Columns: columns})
	}
	chart := func(id string, kind domain.ChartKind, title, source string, columns ...string) {
		out = append(out, domain.RenderRequest{ID: id, Kind: domain.RenderChart, Chart: kind, Title: title, Source: source, Columns: columns})
	}

	table(RenderPreview, "Raw Dataset Preview", "preview", report.Preview.Columns...)
	table(RenderCleaning, "Cleaning Log", "cleaning", "step", "column", "affected", "message")

	if report.Overview != nil && len(report.Overview.Series) > 0 {
		columns := make([]string, 0, len(report.Overview.Series))
		for _, s := range report.Overview.Series {
			columns = append(columns, s.Name)
		}
		chart(RenderOverview, domain.ChartLine, "Traffic & Pollution Overview", "overview", columns...)
	}
	if report.TrafficPollution != nil {
		chart(RenderTrafficVsPollution, domain.ChartScatter, "Traffic vs Pollution", "traffic_pollution",
			domain.ColumnTraffic, domain.ColumnPollution)
	}
	if report.Correlation != nil {
		table(RenderCorrelation, "Traffic-Pollution Correlation", "correlation", "coefficient", "pairs")
	}
	if report.Hourly != nil {
		chart(RenderHourly, domain.ChartBar, fmt.Sprintf("Average %s by Hour", barMetric(report.Hourly)), "hourly.groups",
			aggregateColumns(report.Hourly)...)
		table(RenderHourlyTop, fmt.Sprintf("Peak Hours (Top %d)", len(report.Hourly.Top)), "hourly.top",
			aggregateColumns(report.Hourly)...)
	}
	if report.Areas != nil {
		chart(RenderAreas, domain.ChartBar, fmt.Sprintf("Most Congested Areas (Top %d)", len(report.Areas.Top)), "areas.top",
			aggregateColumns(report.Areas)...)
	}
	if report.RainTraffic != nil {
		chart(RenderRainTrafficScatter, domain.ChartScatter, "Rain vs Traffic", "rain_traffic",
			domain.ColumnRain, domain.ColumnTraffic)
	}
	if report.RainPollution != nil {
		chart(RenderRainPollutionScatter, domain.ChartScatter, "Rain vs Pollution", "rain_pollution",
			domain.ColumnRain, domain.ColumnPollution)
	}
	if report.RainTraffic != nil {
		chart(RenderRainTrafficTrend, domain.ChartLine, "Rain vs Traffic Trend", "rain_traffic",
			domain.ColumnRain, domain.ColumnTraffic)
	}
	if report.RainPollution != nil {
		chart(RenderRainPollutionTrend, domain.ChartLine, "Rain vs Pollution Trend", "rain_pollution",
			domain.ColumnRain, domain.ColumnPollution)
	}
	if report.TransportModes != nil {
		chart(RenderTransportModes, domain.ChartPie, "Transport Mode Distribution", "transport_modes",
			domain.ColumnTransportMode)
	}
	return out
}

func aggregateColumns(view *domain.AggregateView) []string {
	columns := []string{view.GroupBy}
	if view.HasTraffic {
		columns = append(columns, domain.ColumnTraffic)
	}
	if view.HasPollution {
		columns = append(columns, domain.ColumnPollution)
	}
	return columns
}

// barMetric names the mean a bar chart of view plots: traffic, or pollution
// when the dataset has no traffic column.
func barMetric(view *domain.AggregateView) string {
	if view.HasTraffic || !view.HasPollution {
		return "Traffic"
	}
	return "Pollution"
}
