// Package app provides application initialization and lifecycle management
// for City Pulse. It wires configuration, logging, OpenTelemetry, the
// insight services and the HTTP router together.
//
// # Initialization Flow
//
//	1. Load configuration from defaults, the YAML file and environment
//	2. Initialize logging and observability
//	3. Build the pipeline, chart renderer and upload validator
//	4. Initialize services and register readiness checks
//	5. Set up HTTP handlers and middleware
//	6. Configure the HTTP server
//
// # Usage
//
//	application, err := app.NewApplication(frontendFS)
//	if err != nil {
//	    return err
//	}
//	return application.Run()
//
// # Graceful Shutdown
//
// Run handles SIGINT and SIGTERM. Active requests get the configured
// shutdown timeout to complete, then telemetry providers are flushed.
//
// The app does not call os.Exit, leaving the exit code to main.
package app
