package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"citypulse/internal/config"
	apierrors "citypulse/internal/errors"
	"citypulse/internal/dataprocessing"
	"citypulse/internal/shared/testutil"
	"citypulse/pkg/contracts"
)

func createMockFS() fstest.MapFS {
	return fstest.MapFS{
		"index.html": &fstest.MapFile{
			Data: []byte(`<!DOCTYPE html><html><head><title>{{.AppName}}</title></head><body>v{{.Version}}</body></html>`),
		},
	}
}

func newTestApp(t *testing.T, mutate func(cfg *config.Config)) *Application {
	t.Helper()
	cfg := config.Default()
	cfg.Server.Port = 0
	if mutate != nil {
		mutate(cfg)
	}

	logger, _ := testutil.NewTestLogger(t)
	application, err := NewApplicationWithConfig(cfg, logger, createMockFS())
	require.NoError(t, err)
	return application
}

func serve(a *Application, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	a.Router.ServeHTTP(rec, req)
	return rec
}

func uploadRequest(t *testing.T, target, content string) *http.Request {
	t.Helper()
	body, contentType := testutil.MultipartCSV(t, "file", "city.csv", content)
	req := httptest.NewRequest(http.MethodPost, target, body)
	req.Header.Set("Content-Type", contentType)
	return req
}

func TestNewApplicationWithConfig(t *testing.T) {
	t.Run("nil config", func(t *testing.T) {
		_, err := NewApplicationWithConfig(nil, nil, nil)
		assert.Error(t, err)
	})

	t.Run("wires services", func(t *testing.T) {
		a := newTestApp(t, nil)
		require.NotNil(t, a.Services)
		assert.NotNil(t, a.Services.Insight)
		assert.NotNil(t, a.Services.Health)
		assert.NotNil(t, a.Services.Metrics)
		assert.NotNil(t, a.Router)
		assert.Equal(t, a.Config.Server.Address(), a.Server.Addr)
	})
}

func TestApplication_HealthRoutes(t *testing.T) {
	a := newTestApp(t, nil)

	tests := []struct {
		path       string
		wantStatus string
	}{
		{path: "/api/health", wantStatus: "ok"},
		{path: "/api/health/ready", wantStatus: "ready"},
		{path: "/api/health/live", wantStatus: "alive"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := serve(a, httptest.NewRequest(http.MethodGet, tt.path, nil))

			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")
			assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
			assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantStatus, body["status"])
		})
	}
}

func TestApplication_Version(t *testing.T) {
	a := newTestApp(t, nil)
	rec := serve(a, httptest.NewRequest(http.MethodGet, "/api/version", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, contracts.Version, body["version"])
}

func TestApplication_CreateInsights(t *testing.T) {
	a := newTestApp(t, nil)
	rec := serve(a, uploadRequest(t, "/api/insights?charts=true", testutil.CityCSV))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Status string `json:"status"`
		Data   struct {
			Rows    int `json:"rows"`
			Renders []struct {
				ID    string `json:"id"`
				Kind  string `json:"kind"`
				Image string `json:"image"`
			} `json:"renders"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "success", body.Status)
	assert.Equal(t, 6, body.Data.Rows)
	require.NotEmpty(t, body.Data.Renders)
	for _, r := range body.Data.Renders {
		if r.Kind == "chart" {
			assert.True(t, strings.HasPrefix(r.Image, "data:image/png;base64,"), r.ID)
		}
	}
}

func TestApplication_RenderChart(t *testing.T) {
	a := newTestApp(t, nil)

	t.Run("png", func(t *testing.T) {
		rec := serve(a, uploadRequest(t, "/api/insights/charts/"+dataprocessing.RenderAreas, testutil.CityCSV))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
		assert.True(t, strings.HasPrefix(rec.Body.String(), "\x89PNG"))
	})

	t.Run("unavailable", func(t *testing.T) {
		rec := serve(a, uploadRequest(t, "/api/insights/charts/"+dataprocessing.RenderHourly, testutil.TrafficOnlyCSV))
		assert.Equal(t, http.StatusNotFound, rec.Code)

		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, apierrors.TypeChartUnavailable, body["type"])
		assert.Contains(t, body["detail"], "hour")
	})
}

func TestApplication_UnreadableUpload(t *testing.T) {
	a := newTestApp(t, nil)
	rec := serve(a, uploadRequest(t, "/api/insights", "   \n"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, apierrors.TypeUploadUnreadable, body["type"])
	assert.Equal(t, true, body[apierrors.ExtensionRetryUpload])
}

func TestApplication_IndexAndNotFound(t *testing.T) {
	a := newTestApp(t, nil)

	rec := serve(a, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<title>City Pulse</title>")

	rec = serve(a, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, apierrors.TypeNotFound, body["type"])
}

func TestApplication_Metrics(t *testing.T) {
	a := newTestApp(t, nil)
	require.Equal(t, http.StatusOK, serve(a, uploadRequest(t, "/api/insights", testutil.CityCSV)).Code)

	rec := serve(a, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "insight_pipeline_runs")
	assert.Contains(t, rec.Body.String(), "insight_rows_processed")
}

func TestApplication_MetricsDisabled(t *testing.T) {
	a := newTestApp(t, func(cfg *config.Config) {
		cfg.Telemetry.EnableMetrics = false
	})

	rec := serve(a, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestApplication_RateLimit(t *testing.T) {
	a := newTestApp(t, func(cfg *config.Config) {
		cfg.Security.RateLimit.RPS = 0.001
		cfg.Security.RateLimit.Burst = 1
	})

	first := serve(a, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	second := serve(a, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
}

func TestApplication_CORS(t *testing.T) {
	a := newTestApp(t, func(cfg *config.Config) {
		cfg.Telemetry.Environment = "production"
		cfg.Security.AllowedOrigins = []string{"https://dashboard.example.com"}
	})

	cors := a.getCORSConfig()
	assert.Equal(t, []string{"https://dashboard.example.com"}, cors.AllowedOrigins)

	req := httptest.NewRequest(http.MethodOptions, "/api/insights", nil)
	req.Header.Set("Origin", "https://dashboard.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := serve(a, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://dashboard.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestApplication_StartupHealthCheck(t *testing.T) {
	a := newTestApp(t, nil)
	assert.NoError(t, a.performStartupHealthCheck(context.Background()))
}
