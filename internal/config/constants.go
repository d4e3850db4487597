package config

// Application constants
const (
	AppName     = "City Pulse"
	ServiceName = "citypulse"

	// EnvPrefix namespaces every environment variable, e.g. CITYPULSE_SERVER_PORT
	EnvPrefix = "CITYPULSE"

	// Rate Limiting
	DefaultRateLimit = 20 // requests per second
	DefaultBurstSize = 40

	// Uploads
	DefaultMaxUploadBytes = 32 << 20 // 32MB

	// Analysis
	DefaultTopN = 5
	MaxTopN     = 24

	// Charts
	MinChartSize = 100
)
