package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "camline.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfigFile(t, "")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Service.BaseURL != "http://localhost:8080" {
		t.Errorf("unexpected default base URL: %s", cfg.Service.BaseURL)
	}
	if cfg.Session.DebounceDelay != 1500*time.Millisecond {
		t.Errorf("unexpected default debounce delay: %v", cfg.Session.DebounceDelay)
	}
	if cfg.Pipeline.PollInterval != 2*time.Second {
		t.Errorf("unexpected default poll interval: %v", cfg.Pipeline.PollInterval)
	}
	if cfg.Pipeline.PollMaxAttempts != 60 {
		t.Errorf("unexpected default poll attempts: %d", cfg.Pipeline.PollMaxAttempts)
	}
	if cfg.Pipeline.SheetWidthMM != 2800 {
		t.Errorf("unexpected default sheet width: %v", cfg.Pipeline.SheetWidthMM)
	}
	if cfg.Telemetry.LogLevel != "info" {
		t.Errorf("unexpected default log level: %s", cfg.Telemetry.LogLevel)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeConfigFile(t, `
service:
  base_url: https://cam.example.com
  timeout: 10s
session:
  debounce_delay: 500ms
pipeline:
  poll_max_attempts: 10
telemetry:
  log_level: debug
  log_format: json
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Service.BaseURL != "https://cam.example.com" {
		t.Errorf("unexpected base URL: %s", cfg.Service.BaseURL)
	}
	if cfg.Service.Timeout != 10*time.Second {
		t.Errorf("unexpected timeout: %v", cfg.Service.Timeout)
	}
	if cfg.Session.DebounceDelay != 500*time.Millisecond {
		t.Errorf("unexpected debounce delay: %v", cfg.Session.DebounceDelay)
	}
	if cfg.Pipeline.PollMaxAttempts != 10 {
		t.Errorf("unexpected poll attempts: %d", cfg.Pipeline.PollMaxAttempts)
	}
	if cfg.Telemetry.LogFormat != "json" {
		t.Errorf("unexpected log format: %s", cfg.Telemetry.LogFormat)
	}

	// Untouched keys keep their defaults.
	if cfg.Session.DisplayWindow != 3*time.Second {
		t.Errorf("unexpected display window: %v", cfg.Session.DisplayWindow)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			"bad log level",
			"telemetry:\n  log_level: loud\n",
		},
		{
			"bad base url",
			"service:\n  base_url: not-a-url\n",
		},
		{
			"zero poll attempts",
			"pipeline:\n  poll_max_attempts: 0\n",
		},
		{
			"empty store path",
			"store:\n  path: \"\"\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfigFile(t, tt.content)
			if _, err := Load(path); err == nil {
				t.Error("expected Load to reject invalid configuration")
			}
		})
	}
}

func TestTelemetryConfigMapping(t *testing.T) {
	path := writeConfigFile(t, `
telemetry:
  log_level: warn
  metrics_enabled: true
  metrics_listen: ":9191"
  tracing_enabled: true
  tracing_exporter: otlp
  tracing_endpoint: collector:4317
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	tc := cfg.TelemetryConfig("1.2.3")
	if tc.ServiceVersion != "1.2.3" {
		t.Errorf("unexpected service version: %s", tc.ServiceVersion)
	}
	if tc.Logging.Level != "warn" {
		t.Errorf("unexpected log level: %s", tc.Logging.Level)
	}
	if !tc.Metrics.Enabled || tc.Metrics.ListenAddress != ":9191" {
		t.Errorf("unexpected metrics config: %+v", tc.Metrics)
	}
	if !tc.Tracing.Enabled || tc.Tracing.Endpoint != "collector:4317" {
		t.Errorf("unexpected tracing config: %+v", tc.Tracing)
	}
	if err := tc.Validate(); err != nil {
		t.Errorf("mapped telemetry config must validate: %v", err)
	}
}
