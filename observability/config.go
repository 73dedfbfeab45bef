package observability

import (
	"fmt"
	"time"
)

// Config enables OTLP export of traces and metrics.
type Config struct {
	// Endpoint is the OTLP HTTP endpoint host:port (e.g. "localhost:4318").
	// Empty disables export.
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
	// Insecure allows plain HTTP.
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`
	// Environment tags every resource (e.g. "ci", "local").
	Environment string `mapstructure:"environment" yaml:"environment"`
	// SampleRate is the trace sampling rate (0.0 to 1.0).
	SampleRate float64 `mapstructure:"sample_rate" yaml:"sample_rate"`
	// MetricInterval is the metric export interval (e.g. "15s").
	MetricInterval string `mapstructure:"metric_interval" yaml:"metric_interval"`
}

// Enabled reports whether an exporter endpoint is configured.
func (c *Config) Enabled() bool { return c.Endpoint != "" }

// ApplyDefaults sets sensible defaults for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.Environment == "" {
		c.Environment = "test"
	}
	if c.SampleRate == 0 {
		c.SampleRate = 1.0
	}
	if c.MetricInterval == "" {
		c.MetricInterval = "15s"
	}
}

// Validate checks that the configured values are usable.
func (c *Config) Validate() error {
	if c.SampleRate < 0 || c.SampleRate > 1 {
		return fmt.Errorf("sample_rate must be between 0 and 1, got %v", c.SampleRate)
	}
	if _, err := time.ParseDuration(c.MetricInterval); err != nil {
		return fmt.Errorf("invalid metric_interval %q: %w", c.MetricInterval, err)
	}
	return nil
}
