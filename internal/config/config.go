// Package config provides the runner configuration with hot-reload support.
// It uses fsnotify to watch for file changes and atomic pointer swaps so a
// running server always sees one consistent configuration.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/blueberrycongee/sfnodes/internal/observability"
	"github.com/blueberrycongee/sfnodes/pkg/provider"
)

// Config represents the complete runner configuration.
type Config struct {
	Credentials provider.Credentials `yaml:"credentials"`
	Execution   ExecutionConfig      `yaml:"execution"`
	Server      ServerConfig         `yaml:"server"`
	Logging     LoggingConfig        `yaml:"logging"`
	Metrics     MetricsConfig        `yaml:"metrics"`
	Tracing     TracingConfig        `yaml:"tracing"`
	OTelMetrics OTLPSignalConfig     `yaml:"otel_metrics"`
	OTelLogs    OTLPSignalConfig     `yaml:"otel_logs"`
}

// ExecutionConfig controls how a batch of items is run.
type ExecutionConfig struct {
	ContinueOnFail   bool            `yaml:"continue_on_fail"`
	Timeout          time.Duration   `yaml:"timeout"`
	MaxResponseBytes int64           `yaml:"max_response_bytes"`
	RateLimit        RateLimitConfig `yaml:"rate_limit"`
	// AllowPrivateBaseURL permits loopback and private base URLs, e.g. a local proxy.
	AllowPrivateBaseURL bool `yaml:"allow_private_base_url"`
}

// RateLimitConfig paces outbound API calls.
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// ServerConfig contains HTTP server settings for serve mode.
type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
	// MaxRequestBytes bounds the body of POST /v1/execute.
	MaxRequestBytes int64 `yaml:"max_request_bytes"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// TracingConfig contains OpenTelemetry tracing settings.
type TracingConfig struct {
	Enabled     bool              `yaml:"enabled"`
	Endpoint    string            `yaml:"endpoint"`     // OTLP endpoint (e.g., "localhost:4317")
	ServiceName string            `yaml:"service_name"` // Service name for traces
	SampleRate  float64           `yaml:"sample_rate"`  // Sampling rate (0.0 to 1.0)
	Insecure    bool              `yaml:"insecure"`     // Use insecure connection (no TLS)
	Protocol    string            `yaml:"protocol"`     // grpc or http
	Headers     map[string]string `yaml:"headers"`
}

// OTLPSignalConfig exports metrics or item events over OTLP.
// The service name is shared with tracing.
type OTLPSignalConfig struct {
	Enabled        bool              `yaml:"enabled"`
	Endpoint       string            `yaml:"endpoint"`
	Protocol       string            `yaml:"protocol"`
	Insecure       bool              `yaml:"insecure"`
	Headers        map[string]string `yaml:"headers"`
	ExportInterval time.Duration     `yaml:"export_interval"` // metrics only
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Credentials: provider.Credentials{
			BaseURL: provider.DefaultBaseURL,
		},
		Execution: ExecutionConfig{
			Timeout:          60 * time.Second,
			MaxResponseBytes: 32 << 20,
			RateLimit: RateLimitConfig{
				Enabled:           false,
				RequestsPerSecond: 5,
				Burst:             1,
			},
		},
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    300 * time.Second,
			IdleTimeout:     60 * time.Second,
			MaxRequestBytes: 64 << 20,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			Endpoint:    "localhost:4317",
			ServiceName: "sfnode",
			SampleRate:  1.0,
			Insecure:    true,
			Protocol:    "grpc",
		},
		OTelMetrics: OTLPSignalConfig{
			Endpoint:       "localhost:4317",
			Protocol:       "grpc",
			Insecure:       true,
			ExportInterval: time.Minute,
		},
		OTelLogs: OTLPSignalConfig{
			Endpoint: "localhost:4317",
			Protocol: "grpc",
			Insecure: true,
		},
	}
}

// LoadFromFile reads and parses a YAML configuration file.
// Environment variables in the format ${VAR_NAME} are expanded.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration on top of DefaultConfig and validates it.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if err := c.Credentials.Validate(c.Execution.AllowPrivateBaseURL); err != nil {
		return fmt.Errorf("credentials: %w", err)
	}

	if c.Execution.Timeout < 0 {
		return fmt.Errorf("execution.timeout cannot be negative")
	}
	if c.Execution.MaxResponseBytes < 0 {
		return fmt.Errorf("execution.max_response_bytes cannot be negative")
	}
	if rl := c.Execution.RateLimit; rl.Enabled {
		if rl.RequestsPerSecond <= 0 {
			return fmt.Errorf("execution.rate_limit.requests_per_second must be positive when enabled")
		}
		if rl.Burst < 1 {
			return fmt.Errorf("execution.rate_limit.burst must be at least 1")
		}
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.MaxRequestBytes < 0 {
		return fmt.Errorf("server.max_request_bytes cannot be negative")
	}

	switch strings.ToLower(c.Logging.Format) {
	case "", "json", "text":
	default:
		return fmt.Errorf("logging.format must be json or text, got %q", c.Logging.Format)
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /, got %q", c.Metrics.Path)
	}

	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return fmt.Errorf("tracing.sample_rate must be between 0 and 1")
	}
	for name, proto := range map[string]string{
		"tracing":      c.Tracing.Protocol,
		"otel_metrics": c.OTelMetrics.Protocol,
		"otel_logs":    c.OTelLogs.Protocol,
	} {
		if _, err := observability.ParseProtocol(proto); err != nil {
			return fmt.Errorf("%s.protocol: %w", name, err)
		}
	}
	if c.OTelMetrics.ExportInterval < 0 {
		return fmt.Errorf("otel_metrics.export_interval cannot be negative")
	}

	return nil
}

// RequestsPerSecond returns the effective outbound rate, 0 meaning unlimited.
func (c *Config) RequestsPerSecond() float64 {
	if !c.Execution.RateLimit.Enabled {
		return 0
	}
	return c.Execution.RateLimit.RequestsPerSecond
}
