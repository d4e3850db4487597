package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"citypulse/internal/charts"
	"citypulse/internal/config"
	apierrors "citypulse/internal/errors"
	"citypulse/internal/dataprocessing"
	"citypulse/internal/infrastructure"
	customMiddleware "citypulse/internal/middleware"
	"citypulse/internal/services"
	handlers "citypulse/internal/transport/http"
	"citypulse/internal/validation"
	"citypulse/pkg/contracts"
)

// Application represents the main application container
type Application struct {
	Config        *config.Config
	Router        *chi.Mux
	Server        *http.Server
	Logger        *slog.Logger
	Services      *ServiceContainer
	OTelProviders *infrastructure.OTelProviders
	FrontendFS    fs.FS // Embedded frontend filesystem

	errorHandler *apierrors.ErrorHandler
}

// ServiceContainer holds all application services
type ServiceContainer struct {
	Insight *services.InsightService
	Health  *services.HealthService
	Metrics *infrastructure.InsightMetrics
}

// NewApplication creates a new application instance from the loaded
// configuration and the process-wide logger.
func NewApplication(frontendFS fs.FS) (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return NewApplicationWithConfig(cfg, logger, frontendFS)
}

// NewApplicationWithConfig wires the application from an explicit
// configuration and logger.
func NewApplicationWithConfig(cfg *config.Config, logger *slog.Logger, frontendFS fs.FS) (*Application, error) {
	if cfg == nil {
		return nil, errors.New("configuration is required")
	}
	if logger == nil {
		logger = infrastructure.GetLogger()
	}

	logger.Info("Application starting",
		slog.String("name", config.AppName),
		slog.String("version", contracts.Version),
		slog.String("address", cfg.Server.Address()))

	otelProviders, err := infrastructure.InitializeOTel(
		infrastructure.OTelConfigFrom(cfg.Telemetry, contracts.Version), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	app := &Application{
		Config:        cfg,
		Logger:        logger,
		OTelProviders: otelProviders,
		FrontendFS:    frontendFS,
		errorHandler:  apierrors.NewErrorHandler(logger, false),
	}

	if err := app.initializeServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.setupRouter()
	app.createServer()

	return app, nil
}

// initializeServices initializes all application services
func (a *Application) initializeServices() error {
	metrics, err := infrastructure.CreateInsightMetrics(a.OTelProviders.Meter)
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}

	insightService := services.NewInsightService(
		a.Config,
		dataprocessing.NewPipeline(a.Logger, a.OTelProviders.Tracer),
		charts.NewRenderer(a.Config.Charts.Width, a.Config.Charts.Height),
		validation.NewFileValidator(a.Config.Upload.AllowedExtensions, a.Config.Upload.MaxBytes, a.Logger),
		metrics,
		a.Logger,
	)

	healthService := services.NewHealthService(contracts.GetVersionInfo(), a.Logger)
	healthService.Register("pipeline", insightService.SelfCheck)

	a.Services = &ServiceContainer{
		Insight: insightService,
		Health:  healthService,
		Metrics: metrics,
	}
	return nil
}

// setupRouter configures the HTTP router with all routes
func (a *Application) setupRouter() {
	r := chi.NewRouter()

	// RequestID → RealIP → OTel → Logger → Recoverer → SecurityHeaders → CORS → RateLimit
	r.Use(customMiddleware.RequestID)
	r.Use(customMiddleware.RealIP)

	r.Group(func(r chi.Router) {
		r.Use(customMiddleware.NewOTelMiddleware(a.OTelProviders.Tracer, a.Services.Metrics, a.Logger).Handler)
		r.Use(customMiddleware.StructuredLogger(a.Logger))
		r.Use(customMiddleware.Recoverer(a.errorHandler))
		r.Use(customMiddleware.SecurityHeaders)
		r.Use(customMiddleware.CORS(a.getCORSConfig()))

		if a.Config.Security.RateLimit.Enabled {
			r.Use(customMiddleware.NewRateLimiter(
				a.Config.Security.RateLimit.RPS,
				a.Config.Security.RateLimit.Burst,
				a.Logger,
				a.errorHandler,
			).Handler)
		}

		a.setupAPIRoutes(r)

		r.Method(http.MethodGet, "/", handlers.NewIndexPage(
			a.FrontendFS,
			config.AppName,
			a.Config.Upload.MaxBytes,
			a.Config.Upload.FormField,
			a.Logger,
		))
	})

	// Prometheus metrics endpoint (outside the middleware group)
	if a.OTelProviders.PrometheusHTTP != nil {
		r.Handle("/metrics", a.OTelProviders.PrometheusHTTP)
	}

	r.NotFound(a.errorHandler.NotFound)
	r.MethodNotAllowed(a.errorHandler.MethodNotAllowed)

	a.Router = r
}

// setupAPIRoutes configures API endpoints
func (a *Application) setupAPIRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))

		r.Group(func(r chi.Router) {
			r.Use(customMiddleware.Timeout(a.Config.Server.ReadTimeout, a.errorHandler))

			healthHandler := handlers.NewHealthHandler(a.Services.Health, a.Logger)
			r.Get("/health", healthHandler.HealthCheck)
			r.Get("/health/ready", healthHandler.ReadinessCheck)
			r.Get("/health/live", healthHandler.LivenessCheck)
			r.Get("/version", healthHandler.Version)
		})

		// Uploads get the longer request timeout
		r.Group(func(r chi.Router) {
			r.Use(customMiddleware.Timeout(a.Config.Server.RequestTimeout, a.errorHandler))

			insightHandler := handlers.NewInsightHandler(
				a.Services.Insight,
				customMiddleware.NewRequestValidator(a.Logger),
				a.Config.Upload,
				a.Logger,
				a.errorHandler,
			)
			r.Mount("/insights", insightHandler.Routes())
		})
	})
}

// getCORSConfig returns CORS configuration based on environment
func (a *Application) getCORSConfig() customMiddleware.CORSConfig {
	cfg := customMiddleware.CORSConfig{
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{
			"Accept",
			"Content-Type",
			customMiddleware.RequestIDHeader,
			"X-Requested-With",
		},
		ExposedHeaders: []string{customMiddleware.RequestIDHeader},
		MaxAge:         300,
	}

	if a.Config.Security.EnableCORS {
		cfg.AllowedOrigins = append(cfg.AllowedOrigins, a.Config.Security.AllowedOrigins...)
	}
	if a.isDevelopmentMode() {
		cfg.AllowedOrigins = append(cfg.AllowedOrigins,
			"http://localhost:3000",
			"http://127.0.0.1:3000",
		)
	}

	a.Logger.Info("CORS configured",
		slog.Bool("development", a.isDevelopmentMode()),
		slog.Any("allowed_origins", cfg.AllowedOrigins))
	return cfg
}

// isDevelopmentMode detects if we're running in development mode
func (a *Application) isDevelopmentMode() bool {
	if a.Config.Telemetry.Environment == "development" {
		return true
	}
	return os.Getenv("GO_ENV") == "development"
}

// createServer creates the HTTP server
func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:           a.Config.Server.Address(),
		Handler:        a.Router,
		ReadTimeout:    a.Config.Server.ReadTimeout,
		WriteTimeout:   a.Config.Server.WriteTimeout,
		IdleTimeout:    a.Config.Server.IdleTimeout,
		MaxHeaderBytes: a.Config.Server.MaxHeaderBytes,
	}
}

// Start starts the application
func (a *Application) Start(ctx context.Context, cancel context.CancelFunc) error {
	a.Logger.InfoContext(ctx, "Starting application",
		slog.String("name", config.AppName),
		slog.String("version", contracts.Version),
		slog.String("address", a.Server.Addr),
		slog.String("level", a.Config.Logging.Level),
		slog.Int64("max_upload_bytes", a.Config.Upload.MaxBytes))

	go func() {
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.ErrorContext(ctx, "Server error", slog.String("error", err.Error()))
			// Signal shutdown through context instead of os.Exit
			cancel()
		}
	}()

	if err := a.performStartupHealthCheck(ctx); err != nil {
		a.Logger.WarnContext(ctx, "Startup health check warnings", slog.String("warnings", err.Error()))
	}

	a.Logger.InfoContext(ctx, "Application started successfully",
		slog.String("address", fmt.Sprintf("http://%s", a.displayAddress())))
	return nil
}

// performStartupHealthCheck runs the readiness checks once so a broken
// pipeline shows up in the logs before the first upload.
func (a *Application) performStartupHealthCheck(ctx context.Context) error {
	resp := a.Services.Health.ReadinessCheck(ctx)
	if resp.Status == services.StatusReady {
		return nil
	}

	var errs []error
	for name, state := range resp.Checks {
		if state != services.StatusReady {
			errs = append(errs, fmt.Errorf("%s: %s", name, state))
		}
	}
	return errors.Join(errs...)
}

func (a *Application) displayAddress() string {
	if a.Config.Server.Host == "" {
		return fmt.Sprintf("localhost:%d", a.Config.Server.Port)
	}
	return a.Server.Addr
}

// Stop gracefully stops the application
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "Shutting down application")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	if a.OTelProviders != nil {
		if err := a.OTelProviders.Shutdown(shutdownCtx); err != nil {
			a.Logger.ErrorContext(ctx, "Error shutting down OpenTelemetry", slog.String("error", err.Error()))
		}
	}

	a.Logger.InfoContext(ctx, "Application shutdown complete")
	return nil
}

// Run runs the application until interrupted or the server fails
func (a *Application) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	if err := a.Start(ctx, cancel); err != nil {
		return err
	}

	select {
	case <-sigChan:
		a.Logger.InfoContext(ctx, "Received interrupt signal")
	case <-ctx.Done():
		a.Logger.WarnContext(ctx, "Server stopped unexpectedly")
	}

	// Graceful shutdown uses a fresh context; ctx may already be cancelled
	return a.Stop(context.Background())
}
