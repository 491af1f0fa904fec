// Package config loads the camline application configuration from a YAML
// file, environment variables and built-in defaults, in that order of
// increasing precedence for defaults and decreasing for explicit values:
// explicit file values win over defaults, CAMLINE_* environment variables
// win over the file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/camline/camline/pkg/telemetry"
)

// Config is the full application configuration.
type Config struct {
	// Service configures the remote CAM/order service connection.
	Service ServiceConfig `mapstructure:"service" validate:"required"`

	// Session configures the editing session behavior.
	Session SessionConfig `mapstructure:"session"`

	// Pipeline configures job polling and stage parameters.
	Pipeline PipelineConfig `mapstructure:"pipeline"`

	// Store configures the client-local SQLite store.
	Store StoreConfig `mapstructure:"store"`

	// Telemetry configures logging, metrics and tracing.
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ServiceConfig configures the remote service client.
type ServiceConfig struct {
	// BaseURL is the service base URL, without a trailing slash.
	BaseURL string `mapstructure:"base_url" validate:"required,url"`

	// Timeout is the per-request timeout.
	Timeout time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

// SessionConfig configures the editing session.
type SessionConfig struct {
	// DebounceDelay is the quiet period after the last incidental edit
	// before the specification is persisted.
	DebounceDelay time.Duration `mapstructure:"debounce_delay" validate:"gt=0"`

	// DisplayWindow is how long the saved indicator shows before
	// reverting to idle.
	DisplayWindow time.Duration `mapstructure:"display_window" validate:"gt=0"`
}

// PipelineConfig configures stage execution.
type PipelineConfig struct {
	// PollInterval is the wait between consecutive job status queries.
	PollInterval time.Duration `mapstructure:"poll_interval" validate:"gt=0"`

	// PollMaxAttempts is the status query budget before giving up.
	PollMaxAttempts int `mapstructure:"poll_max_attempts" validate:"gt=0"`

	// SheetWidthMM is the default raw sheet width for layout jobs.
	SheetWidthMM float64 `mapstructure:"sheet_width_mm" validate:"gt=0"`

	// SheetHeightMM is the default raw sheet height for layout jobs.
	SheetHeightMM float64 `mapstructure:"sheet_height_mm" validate:"gt=0"`

	// SheetTrimMM is the default edge trim allowance for layout jobs.
	SheetTrimMM float64 `mapstructure:"sheet_trim_mm" validate:"gte=0"`

	// CutDepthMM is the per-pass cut depth for cutting programs.
	CutDepthMM float64 `mapstructure:"cut_depth_mm" validate:"gt=0"`
}

// StoreConfig configures the local session store.
type StoreConfig struct {
	// Path is the SQLite database path.
	Path string `mapstructure:"path" validate:"required"`
}

// TelemetryConfig holds the user-tunable telemetry knobs.
type TelemetryConfig struct {
	// Environment is the deployment environment label.
	Environment string `mapstructure:"environment"`

	// LogLevel sets the minimum log level.
	LogLevel string `mapstructure:"log_level" validate:"oneof=trace debug info warn error fatal"`

	// LogFormat selects console or json output.
	LogFormat string `mapstructure:"log_format" validate:"oneof=console json"`

	// MetricsEnabled turns the Prometheus endpoint on.
	MetricsEnabled bool `mapstructure:"metrics_enabled"`

	// MetricsListen is the metrics endpoint listen address.
	MetricsListen string `mapstructure:"metrics_listen"`

	// TracingEnabled turns span export on.
	TracingEnabled bool `mapstructure:"tracing_enabled"`

	// TracingExporter selects the exporter (otlp, stdout, none).
	TracingExporter string `mapstructure:"tracing_exporter" validate:"oneof=otlp stdout none"`

	// TracingEndpoint is the OTLP gRPC endpoint.
	TracingEndpoint string `mapstructure:"tracing_endpoint"`
}

// validate is the shared validator instance for configuration checks.
var validate = validator.New()

// Load reads the configuration. An empty path searches for camline.yaml
// in the working directory and ~/.camline; a missing file is not an
// error, defaults and environment variables apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("CAMLINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		v.SetConfigName("camline")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.camline")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults registers every default value with viper so environment
// variables can override keys that never appear in a file.
func setDefaults(v *viper.Viper) {
	v.SetDefault("service.base_url", "http://localhost:8080")
	v.SetDefault("service.timeout", "30s")

	v.SetDefault("session.debounce_delay", "1500ms")
	v.SetDefault("session.display_window", "3s")

	v.SetDefault("pipeline.poll_interval", "2s")
	v.SetDefault("pipeline.poll_max_attempts", 60)
	v.SetDefault("pipeline.sheet_width_mm", 2800.0)
	v.SetDefault("pipeline.sheet_height_mm", 2070.0)
	v.SetDefault("pipeline.sheet_trim_mm", 10.0)
	v.SetDefault("pipeline.cut_depth_mm", 6.0)

	v.SetDefault("store.path", "camline.db")

	v.SetDefault("telemetry.environment", "development")
	v.SetDefault("telemetry.log_level", "info")
	v.SetDefault("telemetry.log_format", "console")
	v.SetDefault("telemetry.metrics_enabled", false)
	v.SetDefault("telemetry.metrics_listen", ":9090")
	v.SetDefault("telemetry.tracing_enabled", false)
	v.SetDefault("telemetry.tracing_exporter", "stdout")
	v.SetDefault("telemetry.tracing_endpoint", "localhost:4317")
}

// Validate checks the configuration against its field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// TelemetryConfig builds the telemetry package configuration from the
// application knobs.
func (c *Config) TelemetryConfig(version string) *telemetry.Config {
	tc := telemetry.DefaultConfig()
	tc.ServiceVersion = version
	tc.Environment = c.Telemetry.Environment
	tc.Logging.Level = c.Telemetry.LogLevel
	tc.Logging.Format = c.Telemetry.LogFormat
	tc.Metrics.Enabled = c.Telemetry.MetricsEnabled
	tc.Metrics.ListenAddress = c.Telemetry.MetricsListen
	tc.Tracing.Enabled = c.Telemetry.TracingEnabled
	tc.Tracing.Exporter = c.Telemetry.TracingExporter
	tc.Tracing.Endpoint = c.Telemetry.TracingEndpoint
	return tc
}
