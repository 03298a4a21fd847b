package config

import (
	"runtime"

	"go.uber.org/multierr"

	poolerrors "github.com/ajitpratap0/slotpool/pkg/errors"
	"github.com/ajitpratap0/slotpool/pkg/logger"
	"github.com/ajitpratap0/slotpool/pkg/observability"
	"github.com/ajitpratap0/slotpool/pkg/pool"
)

// Config is the configuration of the slotpool command. It is organized into
// sections:
//   - Pool: capacity and per-slot options of the pool under test
//   - Stress: worker counts for stress runs
//   - Logging: zap logger settings
//   - Metrics: Prometheus endpoint
//   - Tracing: OpenTelemetry span export
type Config struct {
	Pool    PoolConfig    `yaml:"pool" json:"pool" mapstructure:"pool"`
	Stress  StressConfig  `yaml:"stress" json:"stress" mapstructure:"stress"`
	Logging LoggingConfig `yaml:"logging" json:"logging" mapstructure:"logging"`
	Metrics MetricsConfig `yaml:"metrics" json:"metrics" mapstructure:"metrics"`
	Tracing TracingConfig `yaml:"tracing" json:"tracing" mapstructure:"tracing"`
}

// PoolConfig describes a pool to construct.
type PoolConfig struct {
	// Name labels the pool in logs and metrics
	Name string `yaml:"name" json:"name" mapstructure:"name"`
	// Capacity is the fixed number of slots
	Capacity int `yaml:"capacity" json:"capacity" mapstructure:"capacity"`
	// ExtraBytes gives every slot this many extra bytes, 8-byte aligned
	ExtraBytes int `yaml:"extra_bytes" json:"extra_bytes" mapstructure:"extra_bytes"`
	// LeakDetection reports checkouts collected without release
	LeakDetection bool `yaml:"leak_detection" json:"leak_detection" mapstructure:"leak_detection"`
}

// StressConfig controls stress runs.
type StressConfig struct {
	// Workers is the number of concurrent goroutines checking out slots
	Workers int `yaml:"workers" json:"workers" mapstructure:"workers"`
	// Iterations is the number of checkout attempts per worker
	Iterations int `yaml:"iterations" json:"iterations" mapstructure:"iterations"`
	// HandoffEvery hands every Nth checkout to another goroutine for release
	HandoffEvery int `yaml:"handoff_every" json:"handoff_every" mapstructure:"handoff_every"`
}

// LoggingConfig mirrors logger.Config.
type LoggingConfig struct {
	Level       string   `yaml:"level" json:"level" mapstructure:"level"`
	Encoding    string   `yaml:"encoding" json:"encoding" mapstructure:"encoding"`
	Development bool     `yaml:"development" json:"development" mapstructure:"development"`
	OutputPaths []string `yaml:"output_paths" json:"output_paths" mapstructure:"output_paths"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	// Address to serve /metrics on, empty to disable
	Address string `yaml:"address" json:"address" mapstructure:"address"`
	// Path of the metrics handler
	Path string `yaml:"path" json:"path" mapstructure:"path"`
}

// TracingConfig controls span export.
type TracingConfig struct {
	// Exporter is "stdout" or "none"
	Exporter     string  `yaml:"exporter" json:"exporter" mapstructure:"exporter"`
	SamplingRate float64 `yaml:"sampling_rate" json:"sampling_rate" mapstructure:"sampling_rate"`
}

// Default returns a configuration with sensible defaults.
//
// Example:
//
//	cfg := config.Default()
//	cfg.Pool.Capacity = 1024
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
func Default() *Config {
	return &Config{
		Pool: PoolConfig{
			Name:     pool.DefaultName,
			Capacity: 64,
		},
		Stress: StressConfig{
			Workers:      runtime.NumCPU(),
			Iterations:   100000,
			HandoffEvery: 8,
		},
		Logging: LoggingConfig{
			Level:       "info",
			Encoding:    "json",
			OutputPaths: []string{"stderr"},
		},
		Metrics: MetricsConfig{
			Path: "/metrics",
		},
		Tracing: TracingConfig{
			Exporter:     observability.ExporterNone,
			SamplingRate: 1.0,
		},
	}
}

// Validate checks the configuration and reports every problem found. The
// returned error has type ErrorTypeConfig and wraps one error per problem.
func (c *Config) Validate() error {
	var errs error
	add := func(field, message string) {
		errs = multierr.Append(errs, poolerrors.New(poolerrors.ErrorTypeConfig, field+" "+message).
			WithDetail("field", field))
	}

	if c.Pool.Capacity <= 0 || c.Pool.Capacity > pool.MaxCapacity {
		add("pool.capacity", "must be between 1 and 2147483647")
	}
	if c.Pool.ExtraBytes < 0 {
		add("pool.extra_bytes", "cannot be negative")
	}
	if c.Stress.Workers <= 0 {
		add("stress.workers", "must be positive")
	}
	if c.Stress.Iterations <= 0 {
		add("stress.iterations", "must be positive")
	}
	if c.Stress.HandoffEvery < 0 {
		add("stress.handoff_every", "cannot be negative")
	}
	switch c.Logging.Encoding {
	case "", "json", "console":
	default:
		add("logging.encoding", "must be json or console")
	}
	switch c.Tracing.Exporter {
	case "", observability.ExporterNone, observability.ExporterStdout:
	default:
		add("tracing.exporter", "must be none or stdout")
	}
	if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
		add("tracing.sampling_rate", "must be between 0 and 1")
	}

	if errs == nil {
		return nil
	}
	return poolerrors.Wrap(errs, poolerrors.ErrorTypeConfig, "invalid configuration")
}

// PoolOptions converts the pool section into pool options.
func (c *Config) PoolOptions() []pool.Option {
	return []pool.Option{
		pool.WithName(c.Pool.Name),
		pool.WithExtra(c.Pool.ExtraBytes),
		pool.WithLeakDetection(c.Pool.LeakDetection),
	}
}

// LoggerConfig converts the logging section into a logger.Config.
func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{
		Level:       c.Logging.Level,
		Development: c.Logging.Development,
		Encoding:    c.Logging.Encoding,
		OutputPaths: c.Logging.OutputPaths,
	}
}

// ObservabilityTracing converts the tracing section into observability
// settings for a service reporting version.
func (c *Config) ObservabilityTracing(version string) observability.TracingConfig {
	tc := observability.DefaultTracingConfig()
	tc.ServiceName = c.Pool.Name
	if version != "" {
		tc.ServiceVersion = version
	}
	if c.Tracing.Exporter != "" {
		tc.Exporter = c.Tracing.Exporter
	}
	tc.SamplingRate = c.Tracing.SamplingRate
	return tc
}
