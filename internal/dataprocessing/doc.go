// Package dataprocessing turns an uploaded city measurement table into an
// insight report. It consolidates loading, cleaning, feature derivation and
// analysis into one pipeline that handles the complete lifecycle of an upload.
//
// # Architecture
//
// The package is organized into four stages:
//
// 1. Loader: reads CSV bytes into a Table of typed columns with explicit missing cells
// 2. Cleaner: aliases timestamp, coerces types, trims text, drops duplicates and forward-fills
// 3. Deriver: adds hour, day and month columns from datetime
// 4. Analyzer: runs every analysis whose required columns are present
//
// Each stage returns a new Table; inputs are never mutated.
//
// # Usage
//
//	pipeline := dataprocessing.NewPipeline(logger, tracer)
//	result, err := pipeline.Run(ctx, file, dataprocessing.DefaultPipelineOptions())
//	if err != nil {
//	    // only a *ParseError reaches here
//	}
//	for _, req := range result.Report.Renders {
//	    ...
//	}
//
// # Data Flow
//
//	CSV → Loader → Table → Cleaner → Deriver → Analyzer → InsightReport → Render requests
//
// # Error Handling
//
// Only unreadable input fails a run. Coercion failures become missing
// values, and analyses whose columns are absent are skipped with a Notice
// naming the missing columns.
//
// # Testing
//
// Use table-driven tests when adding new functionality. Statistics are
// checked against gonum references.
package dataprocessing
