package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"

	apperrors "citypulse/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Security  SecurityConfig  `yaml:"security" envconfig:"SECURITY"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	Upload    UploadConfig    `yaml:"upload" envconfig:"UPLOAD"`
	Analysis  AnalysisConfig  `yaml:"analysis" envconfig:"ANALYSIS"`
	Charts    ChartConfig     `yaml:"charts" envconfig:"CHARTS"`
	Telemetry TelemetryConfig `yaml:"telemetry" envconfig:"TELEMETRY"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host" envconfig:"HOST"`
	Port            int           `yaml:"port" envconfig:"PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT"`
	MaxHeaderBytes  int           `yaml:"max_header_bytes" envconfig:"MAX_HEADER_BYTES"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
	RequestTimeout  time.Duration `yaml:"request_timeout" envconfig:"REQUEST_TIMEOUT"`
}

// Address returns the listen address.
func (s ServerConfig) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// SecurityConfig contains security-related configuration
type SecurityConfig struct {
	AllowedOrigins []string        `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS"`
	EnableCORS     bool            `yaml:"enable_cors" envconfig:"ENABLE_CORS"`
	RateLimit      RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED"`
	RPS     float64 `yaml:"rps" envconfig:"RPS"`
	Burst   int     `yaml:"burst" envconfig:"BURST"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL"`
	Format   string `yaml:"format" envconfig:"FORMAT"`
	Output   string `yaml:"output" envconfig:"OUTPUT"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH"`
}

// UploadConfig limits what the upload endpoints accept
type UploadConfig struct {
	MaxBytes          int64    `yaml:"max_bytes" envconfig:"MAX_BYTES"`
	AllowedExtensions []string `yaml:"allowed_extensions" envconfig:"ALLOWED_EXTENSIONS"`
	FormField         string   `yaml:"form_field" envconfig:"FORM_FIELD"`
}

// AnalysisConfig holds the pipeline defaults. Requests may override
// MaxFillGap, TopN and DropDuplicates.
type AnalysisConfig struct {
	MaxFillGap           int      `yaml:"max_fill_gap" envconfig:"MAX_FILL_GAP"`
	TopN                 int      `yaml:"top_n" envconfig:"TOP_N"`
	CorrelationPrecision int      `yaml:"correlation_precision" envconfig:"CORRELATION_PRECISION"`
	PreviewRows          int      `yaml:"preview_rows" envconfig:"PREVIEW_ROWS"`
	DropDuplicates       bool     `yaml:"drop_duplicates" envconfig:"DROP_DUPLICATES"`
	TimestampLayouts     []string `yaml:"timestamp_layouts" envconfig:"TIMESTAMP_LAYOUTS"`
}

// ChartConfig sets the size of rendered PNG charts
type ChartConfig struct {
	Width  int `yaml:"width" envconfig:"WIDTH"`
	Height int `yaml:"height" envconfig:"HEIGHT"`
}

// TelemetryConfig controls tracing and metrics
type TelemetryConfig struct {
	ServiceName   string  `yaml:"service_name" envconfig:"SERVICE_NAME"`
	Environment   string  `yaml:"environment" envconfig:"ENVIRONMENT"`
	EnableTracing bool    `yaml:"enable_tracing" envconfig:"ENABLE_TRACING"`
	EnableMetrics bool    `yaml:"enable_metrics" envconfig:"ENABLE_METRICS"`
	TraceExporter string  `yaml:"trace_exporter" envconfig:"TRACE_EXPORTER"` // "stdout" or "none"
	SampleRatio   float64 `yaml:"sample_ratio" envconfig:"SAMPLE_RATIO"`
}

// Load builds the configuration from defaults, then the YAML config file
// when one is found, then environment variables.
func Load() (*Config, error) {
	return LoadFrom(getConfigFilePath())
}

// LoadFrom is Load with an explicit config file path. An empty path skips the file.
func LoadFrom(configFile string) (*Config, error) {
	cfg := Default()

	if configFile != "" {
		if err := loadFromFile(configFile, cfg); err != nil {
			return nil, apperrors.NewConfigError("failed to load config from file", err).WithContext("path", configFile)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, apperrors.NewConfigError("failed to load config from env", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, apperrors.NewConfigError("config validation failed", err)
	}

	return cfg, nil
}

// loadFromFile overlays YAML values onto cfg
func loadFromFile(filePath string, cfg *Config) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

var (
	validLevels  = []string{"debug", "info", "warn", "warning", "error"}
	validFormats = []string{"json", "text"}
	validOutputs = []string{"stdout", "console", "file", "both"}
	validTracers = []string{"stdout", "none"}
)

func oneOf(value string, allowed []string) bool {
	for _, a := range allowed {
		if strings.EqualFold(value, a) {
			return true
		}
	}
	return false
}

// validate validates the configuration
func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server write timeout must be positive")
	}
	if c.Server.RequestTimeout <= 0 {
		return fmt.Errorf("server request timeout must be positive")
	}

	if c.Security.EnableCORS && len(c.Security.AllowedOrigins) == 0 {
		return fmt.Errorf("at least one allowed origin must be specified when CORS is enabled")
	}
	if c.Security.RateLimit.Enabled && (c.Security.RateLimit.RPS <= 0 || c.Security.RateLimit.Burst <= 0) {
		return fmt.Errorf("rate limit rps and burst must be positive")
	}

	if !oneOf(c.Logging.Level, validLevels) {
		return fmt.Errorf("invalid logging level: %q", c.Logging.Level)
	}
	if !oneOf(c.Logging.Format, validFormats) {
		return fmt.Errorf("invalid logging format: %q", c.Logging.Format)
	}
	if !oneOf(c.Logging.Output, validOutputs) {
		return fmt.Errorf("invalid logging output: %q", c.Logging.Output)
	}
	if (c.Logging.Output == "file" || c.Logging.Output == "both") && c.Logging.FilePath == "" {
		return fmt.Errorf("logging file path is required for output %q", c.Logging.Output)
	}

	if c.Upload.MaxBytes <= 0 {
		return fmt.Errorf("upload max bytes must be positive")
	}
	if len(c.Upload.AllowedExtensions) == 0 {
		return fmt.Errorf("at least one upload extension must be allowed")
	}
	if c.Upload.FormField == "" {
		return fmt.Errorf("upload form field must be set")
	}

	if c.Analysis.MaxFillGap < 0 {
		return fmt.Errorf("analysis max fill gap must not be negative")
	}
	if c.Analysis.TopN < 1 || c.Analysis.TopN > MaxTopN {
		return fmt.Errorf("analysis top n must be between 1 and %d", MaxTopN)
	}
	if c.Analysis.CorrelationPrecision < 0 || c.Analysis.CorrelationPrecision > 10 {
		return fmt.Errorf("analysis correlation precision must be between 0 and 10")
	}
	if c.Analysis.PreviewRows < 0 {
		return fmt.Errorf("analysis preview rows must not be negative")
	}

	if c.Charts.Width < MinChartSize || c.Charts.Height < MinChartSize {
		return fmt.Errorf("chart size must be at least %dx%d", MinChartSize, MinChartSize)
	}

	if !oneOf(c.Telemetry.TraceExporter, validTracers) {
		return fmt.Errorf("unsupported trace exporter: %q", c.Telemetry.TraceExporter)
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry sample ratio must be between 0 and 1")
	}

	return nil
}

// getConfigFilePath returns the path to the config file
func getConfigFilePath() string {
	if path := os.Getenv(EnvPrefix + "_CONFIG"); path != "" {
		return path
	}

	locations := []string{
		"config.yaml",
		"configs/config.yaml",
		"../configs/config.yaml",
	}
	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}

	return "" // No config file found, use env vars only
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			IdleTimeout:     60 * time.Second,
			MaxHeaderBytes:  1 << 20, // 1MB
			ShutdownTimeout: 30 * time.Second,
			RequestTimeout:  60 * time.Second,
		},
		Security: SecurityConfig{
			AllowedOrigins: []string{"http://localhost:8080"},
			EnableCORS:     true,
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     DefaultRateLimit,
				Burst:   DefaultBurstSize,
			},
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "stdout",
			FilePath: "logs/citypulse.log",
		},
		Upload: UploadConfig{
			MaxBytes:          DefaultMaxUploadBytes,
			AllowedExtensions: []string{".csv"},
			FormField:         "file",
		},
		Analysis: AnalysisConfig{
			MaxFillGap:           0, // 0 means no limit
			TopN:                 DefaultTopN,
			CorrelationPrecision: 2,
			PreviewRows:          5,
			DropDuplicates:       false,
		},
		Charts: ChartConfig{
			Width:  960,
			Height: 540,
		},
		Telemetry: TelemetryConfig{
			ServiceName:   ServiceName,
			Environment:   "development",
			EnableTracing: true,
			EnableMetrics: true,
			TraceExporter: "none",
			SampleRatio:   1.0,
		},
	}
}
