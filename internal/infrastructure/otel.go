package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.28.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"citypulse/internal/config"
)

const (
	// InstrumentationName names the tracer and meter used across the service
	InstrumentationName = "citypulse"
)

// OTelConfig holds OpenTelemetry configuration
type OTelConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	TraceExporter  string // "stdout", "none"
	EnableMetrics  bool
	EnableTracing  bool
	SampleRatio    float64
}

// OTelProviders holds the OpenTelemetry providers
type OTelProviders struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *sdkmetric.MeterProvider
	Tracer         trace.Tracer
	Meter          metric.Meter
	PrometheusHTTP http.Handler
	Logger         *slog.Logger
}

// DefaultOTelConfig returns a configuration that traces without exporting and
// serves metrics through Prometheus.
func DefaultOTelConfig() *OTelConfig {
	return &OTelConfig{
		ServiceName:    config.ServiceName,
		ServiceVersion: "dev",
		Environment:    "development",
		TraceExporter:  "none",
		EnableMetrics:  true,
		EnableTracing:  true,
		SampleRatio:    1.0,
	}
}

// OTelConfigFrom maps the telemetry section of the application config
func OTelConfigFrom(tc config.TelemetryConfig, version string) *OTelConfig {
	return &OTelConfig{
		ServiceName:    tc.ServiceName,
		ServiceVersion: version,
		Environment:    tc.Environment,
		TraceExporter:  tc.TraceExporter,
		EnableMetrics:  tc.EnableMetrics,
		EnableTracing:  tc.EnableTracing,
		SampleRatio:    tc.SampleRatio,
	}
}

// InitializeOTel sets up tracing and metrics. Disabled signals fall back to
// no-op implementations so callers never need nil checks.
func InitializeOTel(cfg *OTelConfig, logger *slog.Logger) (*OTelProviders, error) {
	if cfg == nil {
		cfg = DefaultOTelConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx := context.Background()
	logger.InfoContext(ctx, "Initializing OpenTelemetry",
		slog.String("service", cfg.ServiceName),
		slog.String("version", cfg.ServiceVersion),
		slog.String("environment", cfg.Environment),
		slog.Bool("tracing_enabled", cfg.EnableTracing),
		slog.Bool("metrics_enabled", cfg.EnableMetrics))

	res := createResource(cfg)

	providers := &OTelProviders{
		Logger: logger,
		Tracer: tracenoop.NewTracerProvider().Tracer(InstrumentationName),
		Meter:  metricnoop.NewMeterProvider().Meter(InstrumentationName),
	}

	if cfg.EnableTracing {
		if err := initializeTracing(ctx, cfg, res, providers); err != nil {
			return nil, fmt.Errorf("failed to initialize tracing: %w", err)
		}
	}

	if cfg.EnableMetrics {
		if err := initializeMetrics(ctx, cfg, res, providers); err != nil {
			return nil, fmt.Errorf("failed to initialize metrics: %w", err)
		}
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return providers, nil
}

func createResource(cfg *OTelConfig) *resource.Resource {
	return resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
		semconv.DeploymentEnvironmentName(cfg.Environment),
		attribute.String("service.instance.id", generateInstanceID()),
	)
}

func initializeTracing(ctx context.Context, cfg *OTelConfig, res *resource.Resource, providers *OTelProviders) error {
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
	}

	switch cfg.TraceExporter {
	case "stdout":
		exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return fmt.Errorf("failed to create trace exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
	case "none", "":
		// spans are still created so trace IDs reach the logs
	default:
		return fmt.Errorf("unsupported trace exporter: %s", cfg.TraceExporter)
	}

	tp := sdktrace.NewTracerProvider(opts...)
	providers.TracerProvider = tp
	providers.Tracer = tp.Tracer(InstrumentationName, trace.WithInstrumentationVersion(cfg.ServiceVersion))
	otel.SetTracerProvider(tp)

	providers.Logger.InfoContext(ctx, "Tracing initialized",
		slog.String("exporter", cfg.TraceExporter),
		slog.Float64("sample_ratio", cfg.SampleRatio))
	return nil
}

func initializeMetrics(ctx context.Context, cfg *OTelConfig, res *resource.Resource, providers *OTelProviders) error {
	registry := promclient.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)

	providers.PrometheusHTTP = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	providers.MeterProvider = mp
	providers.Meter = mp.Meter(InstrumentationName, metric.WithInstrumentationVersion(cfg.ServiceVersion))
	otel.SetMeterProvider(mp)

	providers.Logger.InfoContext(ctx, "Metrics initialized", slog.String("exporter", "prometheus"))
	return nil
}

// InsightMetrics holds the application metrics
type InsightMetrics struct {
	// HTTP metrics
	HTTPRequestsTotal   metric.Int64Counter
	HTTPRequestDuration metric.Float64Histogram
	HTTPActiveRequests  metric.Int64UpDownCounter

	// Pipeline metrics
	PipelineRuns     metric.Int64Counter
	PipelineDuration metric.Float64Histogram
	UploadBytes      metric.Int64Histogram
	RowsProcessed    metric.Int64Counter
	CleaningChanges  metric.Int64Counter
	AnalysesSkipped  metric.Int64Counter
	ChartsRendered   metric.Int64Counter
}

// CreateInsightMetrics registers the application instruments on meter
func CreateInsightMetrics(meter metric.Meter) (*InsightMetrics, error) {
	m := &InsightMetrics{}
	var err error

	if m.HTTPRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
	); err != nil {
		return nil, err
	}
	if m.HTTPRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if m.HTTPActiveRequests, err = meter.Int64UpDownCounter(
		"http_active_requests",
		metric.WithDescription("Number of active HTTP requests"),
	); err != nil {
		return nil, err
	}

	if m.PipelineRuns, err = meter.Int64Counter(
		"insight_pipeline_runs_total",
		metric.WithDescription("Total number of insight pipeline runs by outcome"),
	); err != nil {
		return nil, err
	}
	if m.PipelineDuration, err = meter.Float64Histogram(
		"insight_pipeline_duration_seconds",
		metric.WithDescription("Insight pipeline duration in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if m.UploadBytes, err = meter.Int64Histogram(
		"insight_upload_bytes",
		metric.WithDescription("Size of uploaded datasets"),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}
	if m.RowsProcessed, err = meter.Int64Counter(
		"insight_rows_processed_total",
		metric.WithDescription("Total number of dataset rows processed"),
	); err != nil {
		return nil, err
	}
	if m.CleaningChanges, err = meter.Int64Counter(
		"insight_cleaning_changes_total",
		metric.WithDescription("Total number of values changed by cleaning steps"),
	); err != nil {
		return nil, err
	}
	if m.AnalysesSkipped, err = meter.Int64Counter(
		"insight_analyses_skipped_total",
		metric.WithDescription("Total number of analyses skipped or failed"),
	); err != nil {
		return nil, err
	}
	if m.ChartsRendered, err = meter.Int64Counter(
		"insight_charts_rendered_total",
		metric.WithDescription("Total number of charts rendered"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

// PipelineRun describes one finished pipeline execution
type PipelineRun struct {
	Source   string
	Bytes    int64
	Rows     int
	Duration time.Duration
	Err      error
}

// RecordPipelineRun records the outcome of a pipeline execution
func (m *InsightMetrics) RecordPipelineRun(ctx context.Context, run PipelineRun) {
	if m == nil {
		return
	}

	outcome := "success"
	if run.Err != nil {
		outcome = "failure"
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))

	m.PipelineRuns.Add(ctx, 1, attrs)
	m.PipelineDuration.Record(ctx, run.Duration.Seconds(), attrs)
	if run.Bytes > 0 {
		m.UploadBytes.Record(ctx, run.Bytes)
	}
	if run.Rows > 0 {
		m.RowsProcessed.Add(ctx, int64(run.Rows))
	}

	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.AddEvent("pipeline.metrics_recorded",
			trace.WithAttributes(
				attribute.String("source", run.Source),
				attribute.String("outcome", outcome),
				attribute.Float64("duration_seconds", run.Duration.Seconds()),
			),
		)
	}
}

// RecordCleaningChange adds affected values for one cleaning step
func (m *InsightMetrics) RecordCleaningChange(ctx context.Context, step string, affected int) {
	if m == nil || affected <= 0 {
		return
	}
	m.CleaningChanges.Add(ctx, int64(affected), metric.WithAttributes(attribute.String("step", step)))
}

// RecordAnalysisSkipped counts an analysis that did not produce a result
func (m *InsightMetrics) RecordAnalysisSkipped(ctx context.Context, analysis string) {
	if m == nil {
		return
	}
	m.AnalysesSkipped.Add(ctx, 1, metric.WithAttributes(attribute.String("analysis", analysis)))
}

// RecordChartRendered counts a rendered chart
func (m *InsightMetrics) RecordChartRendered(ctx context.Context, chart string) {
	if m == nil {
		return
	}
	m.ChartsRendered.Add(ctx, 1, metric.WithAttributes(attribute.String("chart", chart)))
}

// Shutdown flushes and stops the providers
func (p *OTelProviders) Shutdown(ctx context.Context) error {
	var errs []error

	if p.TracerProvider != nil {
		if err := p.TracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer provider shutdown: %w", err))
		}
	}
	if p.MeterProvider != nil {
		if err := p.MeterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter provider shutdown: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("opentelemetry shutdown errors: %w", errors.Join(errs...))
	}

	p.Logger.InfoContext(ctx, "OpenTelemetry shutdown complete")
	return nil
}

func generateInstanceID() string {
	hostname, _ := os.Hostname()
	return fmt.Sprintf("%s-%d", hostname, time.Now().Unix())
}

// TraceIDFromContext extracts the OpenTelemetry trace ID, if any
func TraceIDFromContext(ctx context.Context) string {
	spanCtx := trace.SpanContextFromContext(ctx)
	if spanCtx.IsValid() {
		return spanCtx.TraceID().String()
	}
	return ""
}

// RecordError records an error on the current span
func RecordError(ctx context.Context, err error, options ...trace.EventOption) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}

	span.RecordError(err, options...)
	span.SetStatus(codes.Error, err.Error())
}
