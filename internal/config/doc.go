// Package config loads the service configuration.
//
// # Configuration Sources
//
// Values are resolved in this order, later sources winning:
//
//	1. Default()
//	2. YAML file: $CITYPULSE_CONFIG, ./config.yaml or ./configs/config.yaml
//	3. Environment variables
//
// # Environment Variables
//
// Every variable is prefixed with CITYPULSE_ and follows the struct nesting:
//
//	CITYPULSE_SERVER_PORT=8080
//	CITYPULSE_LOGGING_LEVEL=debug
//	CITYPULSE_UPLOAD_MAX_BYTES=10485760
//	CITYPULSE_ANALYSIS_MAX_FILL_GAP=3
//	CITYPULSE_SECURITY_ALLOWED_ORIGINS=http://localhost:3000,https://pulse.example.com
//
// Load validates the result and fails on out-of-range values.
package config
