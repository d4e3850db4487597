package http

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"citypulse/internal/config"
	apierrors "citypulse/internal/errors"
	"citypulse/internal/middleware"
	"citypulse/internal/services"
	api "citypulse/pkg/contracts/api/v1"
)

// multipartOverhead is the body allowance on top of the file size limit
// for multipart boundaries and headers.
const multipartOverhead = 1 << 20

// multipartMemory is how much of a multipart body is kept in memory
// before spilling to temporary files.
const multipartMemory = 8 << 20

// InsightHandler handles dataset uploads with RFC 7807 compliance
type InsightHandler struct {
	service      InsightServiceInterface
	validator    *middleware.RequestValidator
	upload       config.UploadConfig
	logger       *slog.Logger
	errorHandler *apierrors.ErrorHandler
}

// NewInsightHandler creates a new insight handler
func NewInsightHandler(
	service InsightServiceInterface,
	validator *middleware.RequestValidator,
	upload config.UploadConfig,
	logger *slog.Logger,
	errorHandler *apierrors.ErrorHandler,
) *InsightHandler {
	return &InsightHandler{
		service:      service,
		validator:    validator,
		upload:       upload,
		logger:       logger.With(slog.String("component", "insight_handler")),
		errorHandler: errorHandler,
	}
}

// Routes returns the insight routes
func (h *InsightHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.ContentTypeValidator(h.errorHandler, "multipart/form-data"))

	r.Post("/", h.CreateInsights)
	r.Post("/charts/{chart}", h.RenderChart)

	return r
}

// CreateInsights handles POST /api/insights
func (h *InsightHandler) CreateInsights(w http.ResponseWriter, r *http.Request) {
	var req api.InsightRequest
	if err := h.validator.DecodeQuery(r, &req); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	upload, cleanup, err := h.readUpload(w, r)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	defer cleanup()

	report, err := h.service.Analyze(r.Context(), upload, req)
	if err != nil {
		h.errorHandler.HandleError(w, r, h.mapServiceError(err, ""))
		return
	}

	h.logger.InfoContext(r.Context(), "Insight report created",
		slog.String("report_id", report.ID),
		slog.String("file", upload.Name),
		slog.Int("rows", report.Rows),
		slog.Int("notices", len(report.Notices)),
		slog.Bool("charts", req.Charts))

	render.JSON(w, r, api.NewInsightResponse(report))
}

// RenderChart handles POST /api/insights/charts/{chart}
func (h *InsightHandler) RenderChart(w http.ResponseWriter, r *http.Request) {
	chartID := chi.URLParam(r, "chart")
	if chartID == "" {
		h.errorHandler.HandleError(w, r, apierrors.ErrValidation("chart", "Chart id is required"))
		return
	}

	var req api.InsightRequest
	if err := h.validator.DecodeQuery(r, &req); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	upload, cleanup, err := h.readUpload(w, r)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	defer cleanup()

	var buf bytes.Buffer
	if err := h.service.RenderChart(r.Context(), upload, req, chartID, &buf); err != nil {
		h.errorHandler.HandleError(w, r, h.mapServiceError(err, chartID))
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		h.logger.WarnContext(r.Context(), "Failed to write chart",
			slog.String("chart", chartID),
			slog.String("error", err.Error()))
	}
}

// readUpload extracts the uploaded file from a multipart body. The
// returned cleanup removes any temporary files.
func (h *InsightHandler) readUpload(w http.ResponseWriter, r *http.Request) (services.Upload, func(), error) {
	noop := func() {}
	r.Body = http.MaxBytesReader(w, r.Body, h.upload.MaxBytes+multipartOverhead)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return services.Upload{}, noop, apierrors.PayloadTooLargeError(h.upload.MaxBytes)
		}
		return services.Upload{}, noop, apierrors.InvalidRequestWithError(err)
	}
	cleanup := func() {
		if r.MultipartForm != nil {
			r.MultipartForm.RemoveAll()
		}
	}

	file, header, err := r.FormFile(h.upload.FormField)
	if err != nil {
		cleanup()
		if errors.Is(err, http.ErrMissingFile) {
			return services.Upload{}, noop, apierrors.NewWithDetails(
				http.StatusBadRequest,
				"MISSING_FILE",
				"No file was uploaded",
				map[string]string{"field": h.upload.FormField},
			)
		}
		return services.Upload{}, noop, apierrors.InvalidRequestWithError(err)
	}

	upload := services.Upload{
		Name:    header.Filename,
		Size:    header.Size,
		Content: file,
	}
	return upload, func() {
		file.Close()
		cleanup()
	}, nil
}

// mapServiceError translates service sentinels into API errors
func (h *InsightHandler) mapServiceError(err error, chartID string) error {
	switch {
	case errors.Is(err, services.ErrNoFile):
		return apierrors.ErrMissingFile
	case errors.Is(err, services.ErrUnsupportedFileType):
		return apierrors.NewWithDetails(
			http.StatusUnsupportedMediaType,
			"UNSUPPORTED_MEDIA_TYPE",
			err.Error(),
			map[string]interface{}{"allowed_extensions": h.upload.AllowedExtensions},
		)
	case errors.Is(err, services.ErrFileTooLarge):
		return apierrors.PayloadTooLargeError(h.upload.MaxBytes)
	case errors.Is(err, services.ErrEmptyFile):
		return apierrors.ErrValidation("file", "Uploaded file is empty")
	case errors.Is(err, services.ErrUnreadableUpload):
		return apierrors.NewParsingError(err.Error(), err)
	case errors.Is(err, services.ErrUnknownChart):
		return apierrors.NewWithDetails(http.StatusNotFound, "UNKNOWN_CHART", err.Error(),
			map[string]string{"chart": chartID})
	case errors.Is(err, services.ErrChartUnavailable), errors.Is(err, services.ErrNotAChart):
		return apierrors.NewWithDetails(http.StatusNotFound, "CHART_NOT_FOUND", err.Error(),
			map[string]string{"chart": chartID})
	case errors.Is(err, services.ErrChartRender):
		return apierrors.NewRenderError("Chart could not be rendered", err).WithContext("chart", chartID)
	}
	return err
}
