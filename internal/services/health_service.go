package services

import (
	"context"
	"log/slog"
	"runtime"
	"sort"
	"strconv"
	"sync"
	"time"

	"citypulse/pkg/contracts"
	api "citypulse/pkg/contracts/api/v1"
)

// Health statuses
const (
	StatusOK       = "ok"
	StatusReady    = "ready"
	StatusNotReady = "not_ready"
	StatusAlive    = "alive"
)

// CheckFunc reports whether one dependency is ready. A nil error means ready.
type CheckFunc func(ctx context.Context) error

// HealthService provides health check functionality
type HealthService struct {
	info      contracts.VersionInfo
	startTime time.Time
	logger    *slog.Logger

	mu     sync.RWMutex
	checks map[string]CheckFunc
}

// NewHealthService creates a new health service
func NewHealthService(info contracts.VersionInfo, logger *slog.Logger) *HealthService {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("HealthService initialized",
		slog.String("version", info.Version),
		slog.String("build_time", info.BuildTime),
		slog.String("git_commit", info.GitCommit))

	return &HealthService{
		info:      info,
		startTime: time.Now(),
		logger:    logger,
		checks:    make(map[string]CheckFunc),
	}
}

// Register adds a named readiness check, replacing any with the same name.
func (hs *HealthService) Register(name string, check CheckFunc) {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	hs.checks[name] = check
}

// HealthCheck returns overall health status
func (hs *HealthService) HealthCheck(ctx context.Context) api.HealthResponse {
	hs.logger.DebugContext(ctx, "HealthCheck: performing health check",
		slog.String("uptime", hs.uptime().String()))

	return api.HealthResponse{
		Status:    StatusOK,
		Version:   hs.info.Version,
		Uptime:    hs.uptime().String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// ReadinessCheck runs every registered check. The status is not_ready
// when any check fails.
func (hs *HealthService) ReadinessCheck(ctx context.Context) api.HealthResponse {
	hs.mu.RLock()
	names := make([]string, 0, len(hs.checks))
	for name := range hs.checks {
		names = append(names, name)
	}
	checks := make(map[string]CheckFunc, len(hs.checks))
	for name, check := range hs.checks {
		checks[name] = check
	}
	hs.mu.RUnlock()
	sort.Strings(names)

	resp := api.HealthResponse{
		Status:    StatusReady,
		Version:   hs.info.Version,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    make(map[string]string, len(names)),
	}
	for _, name := range names {
		if err := checks[name](ctx); err != nil {
			hs.logger.WarnContext(ctx, "Readiness check failed",
				slog.String("check", name),
				slog.String("error", err.Error()))
			resp.Checks[name] = err.Error()
			resp.Status = StatusNotReady
			continue
		}
		resp.Checks[name] = StatusReady
	}
	return resp
}

// LivenessCheck returns liveness status
func (hs *HealthService) LivenessCheck(ctx context.Context) api.HealthResponse {
	return api.HealthResponse{
		Status:    StatusAlive,
		Version:   hs.info.Version,
		Uptime:    hs.uptime().String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks: map[string]string{
			"goroutines": strconv.Itoa(runtime.NumGoroutine()),
		},
	}
}

// Version returns version information
func (hs *HealthService) Version() map[string]interface{} {
	result := map[string]interface{}{
		"version":        hs.info.Version,
		"stage":          hs.info.Stage,
		"api_version":    hs.info.APIVersion,
		"report_format":  hs.info.ReportFormat,
		"go_version":     hs.info.GoVersion,
		"os":             hs.info.OS,
		"arch":           hs.info.Architecture,
		"uptime_seconds": hs.uptime().Seconds(),
		"start_time":     hs.startTime.UTC().Format(time.RFC3339),
	}

	if hs.info.BuildTime != "" {
		result["build_time"] = hs.info.BuildTime
	}
	if hs.info.GitCommit != "" {
		result["git_commit"] = hs.info.GitCommit
	}
	return result
}

func (hs *HealthService) uptime() time.Duration {
	return time.Since(hs.startTime).Round(time.Second)
}
