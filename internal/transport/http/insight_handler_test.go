package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"citypulse/internal/config"
	apierrors "citypulse/internal/errors"
	"citypulse/internal/middleware"
	"citypulse/internal/services"
	"citypulse/internal/shared/testutil"
	api "citypulse/pkg/contracts/api/v1"
	"citypulse/pkg/contracts/domain"
)

// MockInsightService is a mock implementation of InsightServiceInterface
type MockInsightService struct {
	mock.Mock
}

func (m *MockInsightService) Analyze(ctx context.Context, upload services.Upload, req api.InsightRequest) (*domain.InsightReport, error) {
	args := m.Called(upload, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.InsightReport), args.Error(1)
}

func (m *MockInsightService) RenderChart(ctx context.Context, upload services.Upload, req api.InsightRequest, chartID string, w io.Writer) error {
	args := m.Called(upload, req, chartID, w)
	return args.Error(0)
}

func newInsightRouter(t *testing.T, svc *MockInsightService) (chi.Router, *testutil.BufferedSlogHandler) {
	t.Helper()
	logger, logs := testutil.NewTestLogger(t)
	handler := NewInsightHandler(
		svc,
		middleware.NewRequestValidator(logger),
		config.Default().Upload,
		logger,
		apierrors.NewErrorHandler(logger, false),
	)

	r := chi.NewRouter()
	r.Mount("/api/insights", handler.Routes())
	return r, logs
}

func uploadRequest(t *testing.T, target, filename, content string) *http.Request {
	t.Helper()
	body, contentType := testutil.MultipartCSV(t, "file", filename, content)
	req := httptest.NewRequest(http.MethodPost, target, body)
	req.Header.Set("Content-Type", contentType)
	return req
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func uploadNamed(name string) interface{} {
	return mock.MatchedBy(func(u services.Upload) bool { return u.Name == name && u.Content != nil })
}

func TestInsightHandler_CreateInsights(t *testing.T) {
	svc := new(MockInsightService)
	report := &domain.InsightReport{ID: "report-1", SourceName: "city.csv", Rows: 6}
	topN := 3
	svc.On("Analyze", uploadNamed("city.csv"), api.InsightRequest{TopN: &topN, Charts: true}).Return(report, nil)

	router, logs := newInsightRouter(t, svc)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, uploadRequest(t, "/api/insights?top_n=3&charts=true", "city.csv", testutil.CityCSV))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")

	body := decodeBody(t, rec)
	assert.Equal(t, "success", body["status"])
	data := body["data"].(map[string]interface{})
	assert.Equal(t, "report-1", data["id"])
	assert.Equal(t, float64(6), data["rows"])

	assert.True(t, logs.ContainsMessage("Insight report created"))
	svc.AssertExpectations(t)
}

func TestInsightHandler_CreateInsightsErrors(t *testing.T) {
	tests := []struct {
		name        string
		target      string
		build       func(t *testing.T) *http.Request
		serviceErr  error
		wantStatus  int
		wantType    string
		wantRetry   bool
		wantContain string
	}{
		{
			name:   "missing file field",
			target: "/api/insights",
			build: func(t *testing.T) *http.Request {
				body, contentType := testutil.MultipartCSV(t, "other", "city.csv", testutil.CityCSV)
				req := httptest.NewRequest(http.MethodPost, "/api/insights", body)
				req.Header.Set("Content-Type", contentType)
				return req
			},
			wantStatus:  http.StatusBadRequest,
			wantType:    apierrors.TypeUploadMissing,
			wantRetry:   true,
			wantContain: "MISSING_FILE",
		},
		{
			name: "json body",
			build: func(t *testing.T) *http.Request {
				req := httptest.NewRequest(http.MethodPost, "/api/insights", strings.NewReader(`{}`))
				req.Header.Set("Content-Type", "application/json")
				return req
			},
			wantStatus: http.StatusUnsupportedMediaType,
			wantType:   apierrors.TypeUnsupportedMedia,
			wantRetry:  true,
		},
		{
			name: "bad query parameter",
			build: func(t *testing.T) *http.Request {
				return uploadRequest(t, "/api/insights?top_n=100", "city.csv", testutil.CityCSV)
			},
			wantStatus:  http.StatusBadRequest,
			wantType:    apierrors.TypeValidation,
			wantRetry:   true,
			wantContain: "VALIDATION_FAILED",
		},
		{
			name: "unparseable upload",
			build: func(t *testing.T) *http.Request {
				return uploadRequest(t, "/api/insights", "city.csv", "\"broken")
			},
			serviceErr:  fmt.Errorf("%w: %w", services.ErrUnreadableUpload, errors.New("city.csv: malformed CSV")),
			wantStatus:  http.StatusBadRequest,
			wantType:    apierrors.TypeUploadUnreadable,
			wantRetry:   true,
			wantContain: "malformed CSV",
		},
		{
			name: "wrong extension",
			build: func(t *testing.T) *http.Request {
				return uploadRequest(t, "/api/insights", "city.xlsx", testutil.CityCSV)
			},
			serviceErr:  fmt.Errorf("%w: .xlsx", services.ErrUnsupportedFileType),
			wantStatus:  http.StatusUnsupportedMediaType,
			wantType:    apierrors.TypeUnsupportedMedia,
			wantRetry:   true,
			wantContain: "allowed_extensions",
		},
		{
			name: "file too large",
			build: func(t *testing.T) *http.Request {
				return uploadRequest(t, "/api/insights", "city.csv", testutil.CityCSV)
			},
			serviceErr:  services.ErrFileTooLarge,
			wantStatus:  http.StatusRequestEntityTooLarge,
			wantType:    apierrors.TypePayloadTooLarge,
			wantRetry:   true,
			wantContain: "max_bytes",
		},
		{
			name: "empty file",
			build: func(t *testing.T) *http.Request {
				return uploadRequest(t, "/api/insights", "city.csv", " ")
			},
			serviceErr: services.ErrEmptyFile,
			wantStatus: http.StatusBadRequest,
			wantType:   apierrors.TypeValidation,
			wantRetry:  true,
		},
		{
			name: "unexpected failure",
			build: func(t *testing.T) *http.Request {
				return uploadRequest(t, "/api/insights", "city.csv", testutil.CityCSV)
			},
			serviceErr: errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantType:   apierrors.TypeInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockInsightService)
			if tt.serviceErr != nil {
				svc.On("Analyze", mock.Anything, mock.Anything).Return(nil, tt.serviceErr)
			}
			router, _ := newInsightRouter(t, svc)

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, tt.build(t))

			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			body := decodeBody(t, rec)
			assert.Equal(t, tt.wantType, body["type"])
			assert.Equal(t, tt.wantRetry, body[apierrors.ExtensionRetryUpload])
			if tt.wantContain != "" {
				assert.Contains(t, rec.Body.String(), tt.wantContain)
			}
			if tt.serviceErr == nil {
				svc.AssertNotCalled(t, "Analyze", mock.Anything, mock.Anything)
			}
		})
	}
}

func TestInsightHandler_RenderChart(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\nfake")
	svc := new(MockInsightService)
	svc.On("RenderChart", uploadNamed("city.csv"), api.InsightRequest{}, "hourly_traffic", mock.Anything).
		Run(func(args mock.Arguments) {
			w := args.Get(3).(io.Writer)
			_, _ = w.Write(png)
		}).
		Return(nil)

	router, _ := newInsightRouter(t, svc)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, uploadRequest(t, "/api/insights/charts/hourly_traffic", "city.csv", testutil.CityCSV))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, fmt.Sprint(len(png)), rec.Header().Get("Content-Length"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Equal(t, png, rec.Body.Bytes())
	svc.AssertExpectations(t)
}

func TestInsightHandler_RenderChartErrors(t *testing.T) {
	tests := []struct {
		name       string
		serviceErr error
		wantStatus int
		wantType   string
		wantCode   string
	}{
		{
			name:       "unknown chart",
			serviceErr: fmt.Errorf("%w: radar", services.ErrUnknownChart),
			wantStatus: http.StatusNotFound,
			wantType:   apierrors.TypeChartUnavailable,
			wantCode:   "UNKNOWN_CHART",
		},
		{
			name:       "analysis skipped",
			serviceErr: fmt.Errorf("%w (missing columns: hour)", services.ErrChartUnavailable),
			wantStatus: http.StatusNotFound,
			wantType:   apierrors.TypeChartUnavailable,
			wantCode:   "CHART_NOT_FOUND",
		},
		{
			name:       "table render",
			serviceErr: services.ErrNotAChart,
			wantStatus: http.StatusNotFound,
			wantType:   apierrors.TypeChartUnavailable,
			wantCode:   "CHART_NOT_FOUND",
		},
		{
			name:       "render failure",
			serviceErr: fmt.Errorf("%w: invalid range", services.ErrChartRender),
			wantStatus: http.StatusInternalServerError,
			wantType:   apierrors.TypeChartRender,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockInsightService)
			svc.On("RenderChart", mock.Anything, mock.Anything, "radar", mock.Anything).Return(tt.serviceErr)
			router, _ := newInsightRouter(t, svc)

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, uploadRequest(t, "/api/insights/charts/radar", "city.csv", testutil.CityCSV))

			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			body := decodeBody(t, rec)
			assert.Equal(t, tt.wantType, body["type"])
			assert.Equal(t, false, body[apierrors.ExtensionRetryUpload])
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, body["error_code"])
			} else {
				assert.Equal(t, "radar", body["chart"])
			}
		})
	}
}

func TestInsightHandler_MethodNotAllowed(t *testing.T) {
	router, _ := newInsightRouter(t, new(MockInsightService))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/insights/charts/overview", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
