package telemetry

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config is the resolved set of telemetry options, supplied once to Init.
// Invalid configuration fails fast at initialization; the pipeline is
// never partially initialized.
type Config struct {
	// ServiceName identifies this service on exported spans and is the
	// default target on log records. Required when spans are exported.
	ServiceName string `koanf:"service_name" validate:"required_if=TracingBackend otlp"`

	// Environment names the deployment environment on exported spans.
	Environment string `koanf:"environment"`

	// LogLevel is the minimum severity emitted.
	LogLevel string `koanf:"log_level" validate:"required,oneof=trace debug info warn error"`

	// LogFormat selects the output format.
	LogFormat string `koanf:"log_format" validate:"required,oneof=pretty json compact datadog"`

	// LogLocation includes line, file, and module_path on each record.
	LogLocation bool `koanf:"log_location"`

	// LogSpanClose emits a debug event when a span ends.
	LogSpanClose bool `koanf:"log_span_close"`

	// TracingBackend selects the span exporter.
	TracingBackend string `koanf:"tracing_backend" validate:"required,oneof=otlp stdout none"`

	// TracingEndpoint is the OTLP receiver address for the otlp backend.
	TracingEndpoint string `koanf:"tracing_endpoint"`

	// TracingInsecure disables TLS on the OTLP connection.
	TracingInsecure bool `koanf:"tracing_insecure"`

	// WriterPolicy is the queue-full behavior of the log sink.
	WriterPolicy string `koanf:"writer_policy" validate:"required,oneof=block drop"`

	// WriterSize is the log sink queue capacity in lines.
	WriterSize int `koanf:"writer_size" validate:"gt=0"`

	// ShutdownTimeoutSeconds bounds the flush and drain waits on Close.
	ShutdownTimeoutSeconds int `koanf:"shutdown_timeout" validate:"gt=0"`
}

// DefaultConfig returns the defaults applied when environment variables
// are absent.
func DefaultConfig() Config {
	return Config{
		Environment:            "development",
		LogLevel:               "info",
		LogFormat:              "json",
		TracingBackend:         "stdout",
		TracingEndpoint:        "localhost:4317",
		WriterPolicy:           "drop",
		WriterSize:             1000,
		ShutdownTimeoutSeconds: 5,
	}
}

// LoadConfig loads configuration from TELEMETRY_-prefixed environment
// variables using koanf, fills defaults, and validates.
//
// Variables: TELEMETRY_SERVICE_NAME, TELEMETRY_ENVIRONMENT,
// TELEMETRY_LOG_LEVEL, TELEMETRY_LOG_FORMAT, TELEMETRY_LOG_LOCATION,
// TELEMETRY_LOG_SPAN_CLOSE, TELEMETRY_TRACING_BACKEND,
// TELEMETRY_TRACING_ENDPOINT, TELEMETRY_TRACING_INSECURE,
// TELEMETRY_WRITER_POLICY, TELEMETRY_WRITER_SIZE,
// TELEMETRY_SHUTDOWN_TIMEOUT.
func LoadConfig() (*Config, error) {
	k := koanf.New(".")
	err := k.Load(env.Provider("TELEMETRY_", ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, "TELEMETRY_"))
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("load env variables: %w", err)
	}

	cfg := DefaultConfig()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks enum values and cross-field requirements.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid telemetry config: %w", err)
	}
	return nil
}
