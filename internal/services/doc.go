// Package services implements the business logic layer of City Pulse.
// It sits between the HTTP handlers and the insight pipeline, so that upload
// rules, option merging and metrics live in one testable place.
//
// # Available Services
//
//	- InsightService: validates uploads, runs the pipeline, renders charts
//	- HealthService: liveness, readiness and version information
//
// # Error Handling
//
// Services return sentinel errors (see errors.go) wrapped with context.
// Handlers match them with errors.Is and translate them to API errors:
//
//	report, err := svc.Analyze(ctx, upload, req)
//	if errors.Is(err, services.ErrUnreadableUpload) {
//	    ...
//	}
//
// # Testing
//
// Services are tested against the real pipeline with small fixtures from
// internal/shared/testutil and a buffered slog handler.
package services
