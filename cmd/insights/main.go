package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"citypulse/internal/charts"
	"citypulse/internal/config"
	"citypulse/internal/dataprocessing"
	"citypulse/internal/infrastructure"
	"citypulse/internal/services"
	"citypulse/internal/validation"
	api "citypulse/pkg/contracts/api/v1"
	"citypulse/pkg/contracts/domain"
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

// run executes one pipeline over a local CSV and returns the exit code
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	flags := flag.NewFlagSet("insights", flag.ContinueOnError)
	flags.SetOutput(stderr)
	file := flags.String("file", "", "CSV dataset to analyze (required)")
	out := flags.String("out", "", "write the JSON report to this file instead of stdout")
	chartDir := flags.String("charts", "", "directory to write one PNG per chart")
	maxFillGap := flags.Int("max-fill-gap", -1, "longest run of missing values to fill, 0 for no limit")
	topN := flags.Int("top", 0, "number of peak hours and areas to keep")
	dropDuplicates := flags.Bool("drop-duplicates", false, "remove exact duplicate rows")
	if err := flags.Parse(args); err != nil {
		return 2
	}
	if *file == "" {
		fmt.Fprintln(stderr, "insights: -file is required")
		flags.Usage()
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "insights: %v\n", err)
		return 1
	}
	logger := infrastructure.NewLogger(cfg.Logging, stderr)

	validator := validation.NewFileValidator(cfg.Upload.AllowedExtensions, cfg.Upload.MaxBytes, logger)
	if err := validator.ValidateFile(*file); err != nil {
		logger.Error("Invalid input file", slog.String("file", *file), slog.String("error", err.Error()))
		return 1
	}
	if *chartDir != "" {
		if err := validator.ValidateOutputDirectory(*chartDir); err != nil {
			logger.Error("Invalid chart directory", slog.String("dir", *chartDir), slog.String("error", err.Error()))
			return 1
		}
	}

	req := api.InsightRequest{}
	if *maxFillGap >= 0 {
		req.MaxFillGap = maxFillGap
	}
	if *topN > 0 {
		req.TopN = topN
	}
	if *dropDuplicates {
		req.DropDuplicates = dropDuplicates
	}

	renderer := charts.NewRenderer(cfg.Charts.Width, cfg.Charts.Height)
	svc := services.NewInsightService(cfg,
		dataprocessing.NewPipeline(logger, nil),
		renderer,
		validator,
		nil,
		logger,
	)

	f, err := os.Open(*file)
	if err != nil {
		logger.Error("Failed to open file", slog.String("file", *file), slog.String("error", err.Error()))
		return 1
	}
	defer f.Close()

	report, err := svc.Analyze(ctx, services.Upload{Name: filepath.Base(*file), Size: -1, Content: f}, req)
	if err != nil {
		var parseErr *dataprocessing.ParseError
		if errors.As(err, &parseErr) {
			logger.Error("Dataset could not be parsed, fix the file and run again",
				slog.String("file", parseErr.Source),
				slog.String("error", parseErr.Err.Error()))
			return 1
		}
		logger.Error("Analysis failed", slog.String("error", err.Error()))
		return 1
	}

	for _, notice := range report.Notices {
		logger.Warn("Analysis skipped",
			slog.String("analysis", notice.Analysis),
			slog.String("reason", notice.Message))
	}

	if *chartDir != "" {
		written, err := writeCharts(renderer, report, *chartDir)
		if err != nil {
			logger.Error("Failed to write charts", slog.String("error", err.Error()))
			return 1
		}
		logger.Info("Charts written", slog.String("dir", *chartDir), slog.Int("count", written))
	}

	if err := writeReport(report, *out, stdout); err != nil {
		logger.Error("Failed to write report", slog.String("error", err.Error()))
		return 1
	}
	return 0
}

// writeCharts renders every chart request of report into dir as <id>.png
func writeCharts(renderer *charts.Renderer, report *domain.InsightReport, dir string) (int, error) {
	written := 0
	for _, req := range report.Renders {
		if req.Kind != domain.RenderChart {
			continue
		}
		path := filepath.Join(dir, req.ID+".png")
		f, err := os.Create(path)
		if err != nil {
			return written, fmt.Errorf("create %s: %w", path, err)
		}
		err = renderer.Render(report, req.ID, f)
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
		if errors.Is(err, charts.ErrNoData) {
			os.Remove(path)
			continue
		}
		if err != nil {
			return written, fmt.Errorf("render %s: %w", req.ID, err)
		}
		written++
	}
	return written, nil
}

func writeReport(report *domain.InsightReport, path string, stdout io.Writer) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	data = append(data, '\n')

	if path == "" {
		_, err = stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
