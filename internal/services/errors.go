package services

import "errors"

// Insight service errors
var (
	// Upload errors
	ErrNoFile              = errors.New("no file uploaded")
	ErrUnsupportedFileType = errors.New("unsupported file type")
	ErrFileTooLarge        = errors.New("file too large")
	ErrEmptyFile           = errors.New("uploaded file is empty")
	ErrUnreadableUpload    = errors.New("uploaded file could not be parsed")

	// Chart errors
	ErrUnknownChart     = errors.New("unknown chart")
	ErrChartUnavailable = errors.New("chart not available for this dataset")
	ErrNotAChart        = errors.New("render request is not a chart")
	ErrChartRender      = errors.New("chart could not be rendered")

	// General errors
	ErrServiceUnavailable = errors.New("service temporarily unavailable")
)
