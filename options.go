package sfnodes

import (
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/blueberrycongee/sfnodes/internal/httputil"
	"github.com/blueberrycongee/sfnodes/internal/observability"
	"github.com/blueberrycongee/sfnodes/pkg/provider"
)

// ClientConfig holds all configuration for the Client.
type ClientConfig struct {
	// Credentials are read once at construction and reused for every item.
	Credentials provider.Credentials

	// HTTP
	HTTPClient       *http.Client
	Timeout          time.Duration
	MaxResponseBytes int64

	// AllowPrivateBaseURL permits loopback and private base URLs
	// (self-hosted gateways, tests).
	AllowPrivateBaseURL bool

	// ContinueOnFail turns per-item errors into error records instead of
	// aborting the batch.
	ContinueOnFail bool

	// Pacing of outgoing requests. A non-positive RateLimit disables it.
	RateLimit float64
	RateBurst int

	// Logging
	Logger *slog.Logger

	// Telemetry
	Tracer      trace.Tracer
	Meter       metric.Meter
	EventLogger log.Logger // receives one record per item
}

// Option is a function that configures the Client.
type Option func(*ClientConfig)

// defaultConfig returns sensible defaults.
func defaultConfig() *ClientConfig {
	return &ClientConfig{
		Timeout:          60 * time.Second,
		MaxResponseBytes: httputil.DefaultMaxResponseBodyBytes,
		RateBurst:        1,
		Logger:           slog.Default(),
		Tracer:           otel.Tracer(observability.TracerName),
		Meter:            otel.Meter(observability.TracerName),
		EventLogger:      global.GetLoggerProvider().Logger(observability.TracerName),
	}
}

// WithCredentials sets the API key and base URL.
//
// Example:
//
//	sfnodes.WithCredentials(sfnodes.Credentials{
//	    APIKey:  os.Getenv("SILICONFLOW_API_KEY"),
//	    BaseURL: "https://api.siliconflow.cn/v1",
//	})
func WithCredentials(creds provider.Credentials) Option {
	return func(c *ClientConfig) {
		c.Credentials = creds
	}
}

// WithHTTPClient uses hc for every API call. The client's own Timeout wins
// over WithTimeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *ClientConfig) {
		c.HTTPClient = hc
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *ClientConfig) {
		c.Timeout = d
	}
}

// WithContinueOnFail enables or disables continue-on-fail.
// When enabled, a failing item yields {"error": "..."} and the batch goes on.
func WithContinueOnFail(enabled bool) Option {
	return func(c *ClientConfig) {
		c.ContinueOnFail = enabled
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *ClientConfig) {
		if logger != nil {
			c.Logger = logger
		}
	}
}

// WithTracer sets the tracer used for per-item spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *ClientConfig) {
		if tracer != nil {
			c.Tracer = tracer
		}
	}
}

// WithMeter sets the meter for gen_ai client metrics.
func WithMeter(meter metric.Meter) Option {
	return func(c *ClientConfig) {
		if meter != nil {
			c.Meter = meter
		}
	}
}

// WithEventLogger sets the OpenTelemetry logger that receives item events.
func WithEventLogger(logger log.Logger) Option {
	return func(c *ClientConfig) {
		if logger != nil {
			c.EventLogger = logger
		}
	}
}

// WithRateLimit paces API calls to rps requests per second.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *ClientConfig) {
		c.RateLimit = rps
		c.RateBurst = burst
	}
}

// WithMaxResponseBytes caps response bodies. Zero disables the cap.
func WithMaxResponseBytes(n int64) Option {
	return func(c *ClientConfig) {
		c.MaxResponseBytes = n
	}
}

// WithAllowPrivateBaseURL allows loopback and private network base URLs.
func WithAllowPrivateBaseURL(allow bool) Option {
	return func(c *ClientConfig) {
		c.AllowPrivateBaseURL = allow
	}
}
