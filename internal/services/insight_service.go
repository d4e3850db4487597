package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"citypulse/internal/charts"
	"citypulse/internal/config"
	"citypulse/internal/dataprocessing"
	"citypulse/internal/infrastructure"
	"citypulse/internal/validation"
	api "citypulse/pkg/contracts/api/v1"
	"citypulse/pkg/contracts/domain"
)

// Upload is one dataset handed to the service. Size is the client-declared
// size, or -1 when unknown.
type Upload struct {
	Name    string
	Size    int64
	Content io.Reader
}

// InsightService runs the insight pipeline over uploads and renders the
// resulting charts. It keeps no state between calls.
type InsightService struct {
	pipeline  *dataprocessing.Pipeline
	renderer  *charts.Renderer
	validator *validation.FileValidator
	metrics   *infrastructure.InsightMetrics
	analysis  config.AnalysisConfig
	maxBytes  int64
	logger    *slog.Logger
}

// NewInsightService creates an insight service. metrics may be nil.
func NewInsightService(
	cfg *config.Config,
	pipeline *dataprocessing.Pipeline,
	renderer *charts.Renderer,
	validator *validation.FileValidator,
	metrics *infrastructure.InsightMetrics,
	logger *slog.Logger,
) *InsightService {
	if logger == nil {
		logger = slog.Default()
	}
	return &InsightService{
		pipeline:  pipeline,
		renderer:  renderer,
		validator: validator,
		metrics:   metrics,
		analysis:  cfg.Analysis,
		maxBytes:  cfg.Upload.MaxBytes,
		logger:    logger.With(slog.String("service", "insights")),
	}
}

// Options merges the configured analysis defaults with the overrides of req.
func (s *InsightService) Options(req api.InsightRequest, source string) dataprocessing.PipelineOptions {
	opts := dataprocessing.DefaultPipelineOptions()
	opts.Load.Source = source
	opts.Load.MaxBytes = s.maxBytes

	opts.Clean.MaxFillGap = s.analysis.MaxFillGap
	opts.Clean.DropDuplicates = s.analysis.DropDuplicates
	if len(s.analysis.TimestampLayouts) > 0 {
		opts.Clean.TimestampLayouts = s.analysis.TimestampLayouts
	}
	opts.Analysis.TopN = s.analysis.TopN
	opts.Analysis.CorrelationPrecision = s.analysis.CorrelationPrecision
	if s.analysis.PreviewRows > 0 {
		opts.PreviewRows = s.analysis.PreviewRows
	}

	if req.MaxFillGap != nil {
		opts.Clean.MaxFillGap = *req.MaxFillGap
	}
	if req.TopN != nil {
		opts.Analysis.TopN = *req.TopN
	}
	if req.DropDuplicates != nil {
		opts.Clean.DropDuplicates = *req.DropDuplicates
	}
	return opts
}

// Analyze validates the upload, runs the pipeline and, when req.Charts is
// set, embeds every chart as a PNG data URI.
func (s *InsightService) Analyze(ctx context.Context, upload Upload, req api.InsightRequest) (*domain.InsightReport, error) {
	report, err := s.run(ctx, upload, req)
	if err != nil {
		return nil, err
	}

	if req.Charts {
		failed := s.renderer.EmbedAll(report)
		for _, r := range report.Renders {
			if r.Image != "" {
				s.metrics.RecordChartRendered(ctx, r.ID)
			}
		}
		for id, err := range failed {
			s.logger.WarnContext(ctx, "Chart not embedded",
				slog.String("chart", id),
				slog.String("error", err.Error()))
		}
	}
	return report, nil
}

// RenderChart runs the pipeline over the upload and writes the PNG of the
// chart render request chartID to w.
func (s *InsightService) RenderChart(ctx context.Context, upload Upload, req api.InsightRequest, chartID string, w io.Writer) error {
	if !charts.IsKnown(chartID) {
		return fmt.Errorf("%w: %q", ErrUnknownChart, chartID)
	}

	report, err := s.run(ctx, upload, req)
	if err != nil {
		return err
	}

	if err := s.renderer.Render(report, chartID, w); err != nil {
		switch {
		case errors.Is(err, charts.ErrChartUnavailable):
			notice := missingFor(report, chartID)
			return fmt.Errorf("%w: %s%s", ErrChartUnavailable, chartID, notice)
		case errors.Is(err, charts.ErrNotAChart):
			return fmt.Errorf("%w: %s", ErrNotAChart, chartID)
		case errors.Is(err, charts.ErrNoData):
			return fmt.Errorf("%w: %s has no data", ErrChartUnavailable, chartID)
		default:
			s.logger.ErrorContext(ctx, "Chart rendering failed",
				slog.String("chart", chartID),
				slog.String("error", err.Error()))
			return fmt.Errorf("%w: %w", ErrChartRender, err)
		}
	}
	s.metrics.RecordChartRendered(ctx, chartID)
	return nil
}

// SelfCheck runs a tiny dataset through the pipeline.
func (s *InsightService) SelfCheck(ctx context.Context) error {
	result, err := s.pipeline.Run(ctx, strings.NewReader("datetime,traffic\n2024-01-01 08:00,1\n"), dataprocessing.DefaultPipelineOptions())
	if err != nil {
		return err
	}
	if result.Report.Rows != 1 {
		return fmt.Errorf("self check: expected 1 row, got %d", result.Report.Rows)
	}
	return nil
}

func (s *InsightService) run(ctx context.Context, upload Upload, req api.InsightRequest) (*domain.InsightReport, error) {
	if err := s.validate(upload); err != nil {
		s.logger.InfoContext(ctx, "Upload rejected",
			slog.String("file", upload.Name),
			slog.String("error", err.Error()))
		return nil, err
	}

	counter := &countingReader{r: upload.Content}
	start := time.Now()
	result, err := s.pipeline.Run(ctx, counter, s.Options(req, upload.Name))
	run := infrastructure.PipelineRun{
		Source:   upload.Name,
		Bytes:    counter.n,
		Duration: time.Since(start),
		Err:      err,
	}
	if err != nil {
		s.metrics.RecordPipelineRun(ctx, run)
		if errors.Is(err, dataprocessing.ErrInputTooLarge) {
			return nil, fmt.Errorf("%w: %w", ErrFileTooLarge, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrUnreadableUpload, err)
	}

	report := result.Report
	run.Rows = report.Rows
	s.metrics.RecordPipelineRun(ctx, run)
	for _, step := range report.Cleaning {
		s.metrics.RecordCleaningChange(ctx, step.Step, step.Affected)
	}
	for _, notice := range report.Notices {
		s.metrics.RecordAnalysisSkipped(ctx, notice.Analysis)
	}
	return report, nil
}

func (s *InsightService) validate(upload Upload) error {
	if upload.Content == nil {
		return ErrNoFile
	}
	err := s.validator.ValidateUpload(upload.Name, upload.Size)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, validation.ErrMissingName):
		return fmt.Errorf("%w: %w", ErrNoFile, err)
	case errors.Is(err, validation.ErrUnsupportedExtension):
		return fmt.Errorf("%w: %w", ErrUnsupportedFileType, err)
	case errors.Is(err, validation.ErrFileTooLarge):
		return fmt.Errorf("%w: %w", ErrFileTooLarge, err)
	case errors.Is(err, validation.ErrEmptyFile):
		return fmt.Errorf("%w: %w", ErrEmptyFile, err)
	default:
		return err
	}
}

// missingFor formats the missing columns reported for the analysis behind chartID.
func missingFor(report *domain.InsightReport, chartID string) string {
	analysis := analysisFor(chartID)
	for _, n := range report.Notices {
		if n.Analysis == analysis && len(n.MissingColumns) > 0 {
			return fmt.Sprintf(" (missing columns: %s)", strings.Join(n.MissingColumns, ", "))
		}
	}
	return ""
}

func analysisFor(chartID string) string {
	switch chartID {
	case dataprocessing.RenderOverview:
		return dataprocessing.AnalysisOverview
	case dataprocessing.RenderTrafficVsPollution:
		return dataprocessing.AnalysisTrafficPollution
	case dataprocessing.RenderCorrelation:
		return dataprocessing.AnalysisCorrelation
	case dataprocessing.RenderHourly, dataprocessing.RenderHourlyTop:
		return dataprocessing.AnalysisHourly
	case dataprocessing.RenderAreas:
		return dataprocessing.AnalysisAreas
	case dataprocessing.RenderRainTrafficScatter, dataprocessing.RenderRainTrafficTrend:
		return dataprocessing.AnalysisRainTraffic
	case dataprocessing.RenderRainPollutionScatter, dataprocessing.RenderRainPollutionTrend:
		return dataprocessing.AnalysisRainPollution
	case dataprocessing.RenderTransportModes:
		return dataprocessing.AnalysisTransportModes
	}
	return ""
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
