package http

import (
	"context"
	"io"

	"citypulse/internal/services"
	api "citypulse/pkg/contracts/api/v1"
	"citypulse/pkg/contracts/domain"
)

// InsightServiceInterface defines the interface for insight operations
type InsightServiceInterface interface {
	Analyze(ctx context.Context, upload services.Upload, req api.InsightRequest) (*domain.InsightReport, error)
	RenderChart(ctx context.Context, upload services.Upload, req api.InsightRequest, chartID string, w io.Writer) error
}

// HealthServiceInterface defines the interface for health checks
type HealthServiceInterface interface {
	HealthCheck(ctx context.Context) api.HealthResponse
	ReadinessCheck(ctx context.Context) api.HealthResponse
	LivenessCheck(ctx context.Context) api.HealthResponse
	Version() map[string]interface{}
}
