package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	poolerrors "github.com/ajitpratap0/slotpool/pkg/errors"
)

// EnvPrefix prefixes environment variables that override configuration
// keys, e.g. SLOTPOOL_POOL_CAPACITY for pool.capacity.
const EnvPrefix = "SLOTPOOL"

// Load reads configuration from a YAML file, applies SLOTPOOL_* environment
// overrides on top and validates the result. ${VAR_NAME} references in the
// file are replaced with environment values before parsing. An empty path
// loads defaults plus environment overrides.
func Load(filePath string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if filePath != "" {
		data, err := os.ReadFile(filePath) //nolint:gosec // G304: File path is controlled by caller
		if err != nil {
			return nil, poolerrors.Wrap(err, poolerrors.ErrorTypeConfig, "failed to read config file").
				WithDetail("path", filePath)
		}

		v.SetConfigType("yaml")
		if err := v.ReadConfig(bytes.NewReader([]byte(substituteEnvVars(string(data))))); err != nil {
			return nil, poolerrors.Wrap(err, poolerrors.ErrorTypeConfig, "failed to parse YAML").
				WithDetail("path", filePath)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, poolerrors.Wrap(err, poolerrors.ErrorTypeConfig, "failed to decode config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg to a YAML file.
func Save(filePath string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal YAML: %w", err)
	}

	if err := os.WriteFile(filePath, data, 0o644); err != nil { //nolint:gosec
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setDefaults registers every key of cfg with v so that AutomaticEnv can
// override keys that are absent from the file.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("pool.name", cfg.Pool.Name)
	v.SetDefault("pool.capacity", cfg.Pool.Capacity)
	v.SetDefault("pool.extra_bytes", cfg.Pool.ExtraBytes)
	v.SetDefault("pool.leak_detection", cfg.Pool.LeakDetection)

	v.SetDefault("stress.workers", cfg.Stress.Workers)
	v.SetDefault("stress.iterations", cfg.Stress.Iterations)
	v.SetDefault("stress.handoff_every", cfg.Stress.HandoffEvery)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.encoding", cfg.Logging.Encoding)
	v.SetDefault("logging.development", cfg.Logging.Development)
	v.SetDefault("logging.output_paths", cfg.Logging.OutputPaths)

	v.SetDefault("metrics.address", cfg.Metrics.Address)
	v.SetDefault("metrics.path", cfg.Metrics.Path)

	v.SetDefault("tracing.exporter", cfg.Tracing.Exporter)
	v.SetDefault("tracing.sampling_rate", cfg.Tracing.SamplingRate)
}

// substituteEnvVars replaces ${VAR_NAME} with environment variable values
func substituteEnvVars(content string) string {
	var b strings.Builder
	for {
		start := strings.Index(content, "${")
		if start == -1 {
			break
		}
		end := strings.Index(content[start:], "}")
		if end == -1 {
			break
		}
		end += start

		b.WriteString(content[:start])
		b.WriteString(os.Getenv(content[start+2 : end]))
		content = content[end+1:]
	}
	b.WriteString(content)
	return b.String()
}
