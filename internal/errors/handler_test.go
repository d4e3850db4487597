package errors

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"citypulse/internal/shared/testutil"
)

func decodeProblem(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body
}

func TestErrorHandler_HandleError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
		wantRetry  interface{}
	}{
		{
			name:       "context deadline exceeded",
			err:        context.DeadlineExceeded,
			wantStatus: http.StatusGatewayTimeout,
			wantType:   TypeTimeout,
		},
		{
			name:       "parsing error",
			err:        fmt.Errorf("load: %w", NewParsingError("file is not valid CSV", nil)),
			wantStatus: http.StatusBadRequest,
			wantType:   TypeUploadUnreadable,
			wantRetry:  true,
		},
		{
			name:       "config app error",
			err:        NewConfigError("invalid server port", nil),
			wantStatus: http.StatusInternalServerError,
			wantType:   TypeInternal,
			wantRetry:  false,
		},
		{
			name:       "missing file",
			err:        ErrMissingFile,
			wantStatus: http.StatusBadRequest,
			wantType:   TypeUploadMissing,
			wantRetry:  true,
		},
		{
			name:       "max bytes exceeded",
			err:        fmt.Errorf("read upload: %w", &http.MaxBytesError{Limit: 10}),
			wantStatus: http.StatusRequestEntityTooLarge,
			wantType:   TypePayloadTooLarge,
			wantRetry:  true,
		},
		{
			name:       "unsupported media type",
			err:        ErrUnsupportedMediaType,
			wantStatus: http.StatusUnsupportedMediaType,
			wantType:   TypeUnsupportedMedia,
			wantRetry:  true,
		},
		{
			name:       "chart not found",
			err:        ErrChartNotFound,
			wantStatus: http.StatusNotFound,
			wantType:   TypeChartUnavailable,
			wantRetry:  false,
		},
		{
			name:       "render error",
			err:        NewRenderError("png encoding failed", nil),
			wantStatus: http.StatusInternalServerError,
			wantType:   TypeChartRender,
			wantRetry:  false,
		},
		{
			name:       "generic error",
			err:        fmt.Errorf("something went wrong"),
			wantStatus: http.StatusInternalServerError,
			wantType:   TypeInternal,
			wantRetry:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, logs := testutil.NewTestLogger(t)
			handler := NewErrorHandler(logger, false)

			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodPost, "/api/insights", nil)
			r = r.WithContext(context.WithValue(r.Context(), middleware.RequestIDKey, "req-1"))

			handler.HandleError(w, r, tt.err)

			assert.Equal(t, tt.wantStatus, w.Code)
			body := decodeProblem(t, w)
			assert.Equal(t, tt.wantType, body["type"])
			assert.Equal(t, float64(tt.wantStatus), body["status"])
			assert.Equal(t, "/api/insights", body["instance"])
			assert.Equal(t, "req-1", body["trace_id"])
			if tt.wantRetry != nil {
				assert.Equal(t, tt.wantRetry, body[ExtensionRetryUpload])
			}
			assert.NotContains(t, body, "stack")

			assert.True(t, logs.ContainsMessage("request failed"))
			assert.True(t, logs.ContainsAttr("component", "error_handler"))
		})
	}
}

func TestErrorHandler_HandleError_Nil(t *testing.T) {
	logger, logs := testutil.NewTestLogger(t)
	handler := NewErrorHandler(logger, false)

	w := httptest.NewRecorder()
	handler.HandleError(w, httptest.NewRequest(http.MethodGet, "/", nil), nil)

	assert.Zero(t, w.Body.Len())
	assert.Zero(t, logs.Count())
}

func TestErrorHandler_LogLevels(t *testing.T) {
	logger, logs := testutil.NewTestLogger(t)
	handler := NewErrorHandler(logger, false)
	r := httptest.NewRequest(http.MethodPost, "/api/insights", nil)

	handler.HandleError(httptest.NewRecorder(), r, ErrMissingFile)
	handler.HandleError(httptest.NewRecorder(), r, fmt.Errorf("boom"))

	assert.Len(t, logs.GetRecordsByLevel(slog.LevelWarn), 1)
	assert.Len(t, logs.GetRecordsByLevel(slog.LevelError), 1)
}

func TestErrorHandler_AppErrorContext(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	handler := NewErrorHandler(logger, false)

	err := NewParsingError("unreadable", nil).WithContext("source", "city.csv")
	problem := handler.ErrorToProblem(err, httptest.NewRequest(http.MethodPost, "/api/insights", nil))

	assert.Equal(t, "city.csv", problem.Extensions["source"])
	assert.Equal(t, "unreadable", problem.Detail)
}

func TestErrorHandler_IncludeStack(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	handler := NewErrorHandler(logger, true)

	w := httptest.NewRecorder()
	handler.HandleError(w, httptest.NewRequest(http.MethodGet, "/", nil), fmt.Errorf("boom"))

	body := decodeProblem(t, w)
	assert.NotEmpty(t, body["stack"])
}

func TestErrorHandler_HandlePanic(t *testing.T) {
	logger, logs := testutil.NewTestLogger(t)
	handler := NewErrorHandler(logger, false)

	w := httptest.NewRecorder()
	handler.HandlePanic(w, httptest.NewRequest(http.MethodGet, "/boom", nil), "kaboom")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	body := decodeProblem(t, w)
	assert.Equal(t, TypeInternal, body["type"])
	assert.NotContains(t, body, "panic")
	testutil.AssertLogContains(t, logs, slog.LevelError, "panic recovered")
}

func TestErrorHandler_NotFoundAndMethodNotAllowed(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	handler := NewErrorHandler(logger, false)

	w := httptest.NewRecorder()
	handler.NotFound(w, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, TypeNotFound, decodeProblem(t, w)["type"])

	w = httptest.NewRecorder()
	handler.MethodNotAllowed(w, httptest.NewRequest(http.MethodDelete, "/api/insights", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	body := decodeProblem(t, w)
	assert.Equal(t, TypeMethodNotAllowed, body["type"])
	assert.Contains(t, body["detail"], "DELETE")
}
