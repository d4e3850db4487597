package dataprocessing

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"citypulse/pkg/contracts/domain"
)

// Pipeline stage names, used for spans and logs.
const (
	StageLoad    = "load"
	StageClean   = "clean"
	StageDerive  = "derive"
	StageAnalyze = "analyze"
)

// PipelineOptions gathers the options of every stage.
type PipelineOptions struct {
	Load        LoadOptions
	Clean       CleanOptions
	Analysis    AnalysisOptions
	PreviewRows int
}

// DefaultPipelineOptions returns the defaults of every stage.
func DefaultPipelineOptions() PipelineOptions {
	return PipelineOptions{
		Clean:       DefaultCleanOptions(),
		Analysis:    DefaultAnalysisOptions(),
		PreviewRows: 5,
	}
}

// Pipeline runs load, clean, derive and analyze over one upload. It keeps
// no state between runs and is safe for concurrent use.
type Pipeline struct {
	logger *slog.Logger
	tracer trace.Tracer
}

// NewPipeline creates a pipeline. A nil tracer disables spans.
func NewPipeline(logger *slog.Logger, tracer trace.Tracer) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("dataprocessing")
	}
	return &Pipeline{logger: logger, tracer: tracer}
}

// Result carries the report together with the cleaned table.
type Result struct {
	Report *domain.InsightReport
	Table  *Table
}

// Run executes the full pipeline. The only error it returns is a ParseError
// from the loader.
func (p *Pipeline) Run(ctx context.Context, r io.Reader, opts PipelineOptions) (*Result, error) {
	start := time.Now()
	ctx, span := p.tracer.Start(ctx, "insights.pipeline")
	defer span.End()

	loaded, err := p.load(ctx, r, opts.Load)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	cleaned, steps := p.clean(ctx, loaded, opts.Clean)
	derived := p.derive(ctx, cleaned)

	report := &domain.InsightReport{
		ID:          uuid.New().String(),
		SourceName:  opts.Load.Source,
		GeneratedAt: start.UTC(),
		Rows:        derived.NumRows(),
		Columns:     SummarizeColumns(loaded, derived),
		Preview:     Preview(loaded, opts.PreviewRows),
		Cleaning:    steps,
	}
	if report.Cleaning == nil {
		report.Cleaning = []domain.CleaningStep{}
	}

	p.analyze(ctx, derived, report, opts.Analysis)
	report.Renders = RenderRequests(report)
	report.DurationMS = time.Since(start).Milliseconds()

	span.SetAttributes(
		attribute.Int("rows", report.Rows),
		attribute.Int("columns", len(report.Columns)),
		attribute.Int("notices", len(report.Notices)),
	)
	p.logger.InfoContext(ctx, "Insight pipeline completed",
		slog.String("report_id", report.ID),
		slog.String("source", report.SourceName),
		slog.Int("rows", report.Rows),
		slog.Int("columns", len(report.Columns)),
		slog.Int("renders", len(report.Renders)),
		slog.Int("notices", len(report.Notices)),
		slog.Int64("duration_ms", report.DurationMS))

	return &Result{Report: report, Table: derived}, nil
}

func (p *Pipeline) load(ctx context.Context, r io.Reader, opts LoadOptions) (*Table, error) {
	_, span := p.tracer.Start(ctx, "insights."+StageLoad)
	defer span.End()

	t, err := Load(r, opts)
	if err != nil {
		p.logger.WarnContext(ctx, "Upload could not be parsed",
			slog.String("source", opts.Source),
			slog.String("error", err.Error()))
		return nil, err
	}
	span.SetAttributes(attribute.Int("rows", t.NumRows()), attribute.Int("columns", t.NumCols()))
	p.logger.DebugContext(ctx, "Table loaded",
		slog.Int("rows", t.NumRows()),
		slog.Any("columns", t.Names()))
	return t, nil
}

func (p *Pipeline) clean(ctx context.Context, t *Table, opts CleanOptions) (*Table, []domain.CleaningStep) {
	_, span := p.tracer.Start(ctx, "insights."+StageClean)
	defer span.End()

	cleaned, steps := NewCleaner(opts).Clean(t)
	span.SetAttributes(attribute.Int("steps", len(steps)), attribute.Int("rows", cleaned.NumRows()))
	p.logger.DebugContext(ctx, "Table cleaned",
		slog.Int("rows", cleaned.NumRows()),
		slog.Int("steps", len(steps)),
		slog.Int("max_fill_gap", opts.MaxFillGap))
	return cleaned, steps
}

func (p *Pipeline) derive(ctx context.Context, t *Table) *Table {
	_, span := p.tracer.Start(ctx, "insights."+StageDerive)
	defer span.End()

	derived, ok := DeriveCalendarFeatures(t)
	span.SetAttributes(attribute.Bool("derived", ok))
	p.logger.DebugContext(ctx, "Calendar features", slog.Bool("derived", ok))
	return derived
}

func (p *Pipeline) analyze(ctx context.Context, t *Table, report *domain.InsightReport, opts AnalysisOptions) {
	_, span := p.tracer.Start(ctx, "insights."+StageAnalyze)
	defer span.End()

	NewAnalyzer(opts, p.logger).Analyze(t, report)
	span.SetAttributes(attribute.Int("notices", len(report.Notices)))
}

// Preview renders the first n rows of t as strings.
func Preview(t *Table, n int) domain.TablePreview {
	head := t.Head(n)
	preview := domain.TablePreview{Columns: head.Names(), Rows: make([][]string, head.NumRows())}
	for r := 0; r < head.NumRows(); r++ {
		row := make([]string, head.NumCols())
		for c, col := range head.Columns() {
			row[c] = col.Format(r)
		}
		preview.Rows[r] = row
	}
	return preview
}

// SummarizeColumns describes each column of the final table, with missing
// counts before and after cleaning. Columns absent from the loaded table
// are derived.
func SummarizeColumns(loaded, final *Table) []domain.ColumnSummary {
	summaries := make([]domain.ColumnSummary, 0, final.NumCols())
	for _, col := range final.Columns() {
		summary := domain.ColumnSummary{
			Name:         col.Name,
			Kind:         col.Kind.String(),
			MissingAfter: col.MissingCount(),
		}
		name := col.Name
		if _, ok := loaded.Column(name); !ok && name == domain.ColumnDatetime {
			name = domain.ColumnTimestamp
		}
		if orig, ok := loaded.Column(name); ok {
			summary.MissingBefore = orig.MissingCount()
		} else {
			summary.Derived = true
			summary.MissingBefore = summary.MissingAfter
		}
		summaries = append(summaries, summary)
	}
	return summaries
}
