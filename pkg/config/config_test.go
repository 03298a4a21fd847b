package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	poolerrors "github.com/ajitpratap0/slotpool/pkg/errors"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "slotpool.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.Pool.Capacity = -1
	cfg.Pool.ExtraBytes = -8
	cfg.Stress.Workers = 0
	cfg.Logging.Encoding = "xml"
	cfg.Tracing.Exporter = "zipkin"
	cfg.Tracing.SamplingRate = 2

	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, poolerrors.IsType(err, poolerrors.ErrorTypeConfig))

	var perr *poolerrors.Error
	require.ErrorAs(t, err, &perr)
	problems := multierr.Errors(perr.Cause)
	require.Len(t, problems, 6)

	var fields []interface{}
	for _, p := range problems {
		var fe *poolerrors.Error
		require.ErrorAs(t, p, &fe)
		fields = append(fields, fe.Details["field"])
	}
	assert.ElementsMatch(t, []interface{}{
		"pool.capacity", "pool.extra_bytes", "stress.workers",
		"logging.encoding", "tracing.exporter", "tracing.sampling_rate",
	}, fields)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
pool:
  name: buffers
  capacity: 512
  extra_bytes: 12
  leak_detection: true
stress:
  workers: 4
  iterations: 1000
logging:
  level: debug
  encoding: console
metrics:
  address: ":9100"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "buffers", cfg.Pool.Name)
	assert.Equal(t, 512, cfg.Pool.Capacity)
	assert.Equal(t, 12, cfg.Pool.ExtraBytes)
	assert.True(t, cfg.Pool.LeakDetection)
	assert.Equal(t, 4, cfg.Stress.Workers)
	assert.Equal(t, 1000, cfg.Stress.Iterations)
	assert.Equal(t, 8, cfg.Stress.HandoffEvery, "unset keys keep defaults")
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Encoding)
	assert.Equal(t, ":9100", cfg.Metrics.Address)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
}

func TestLoadSubstitutesEnvVars(t *testing.T) {
	t.Setenv("TEST_POOL_NAME", "from-env")
	path := writeConfig(t, "pool:\n  name: ${TEST_POOL_NAME}\n  capacity: 8\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Pool.Name)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SLOTPOOL_POOL_CAPACITY", "4096")
	t.Setenv("SLOTPOOL_STRESS_WORKERS", "3")
	path := writeConfig(t, "pool:\n  capacity: 8\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4096, cfg.Pool.Capacity)
	assert.Equal(t, 3, cfg.Stress.Workers)
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Pool, cfg.Pool)
}

func TestLoadErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		require.Error(t, err)
		assert.True(t, poolerrors.IsType(err, poolerrors.ErrorTypeConfig))
	})

	t.Run("bad yaml", func(t *testing.T) {
		_, err := Load(writeConfig(t, "pool: [unterminated"))
		require.Error(t, err)
		assert.True(t, poolerrors.IsType(err, poolerrors.ErrorTypeConfig))
	})

	t.Run("invalid values", func(t *testing.T) {
		_, err := Load(writeConfig(t, "pool:\n  capacity: 0\n"))
		require.Error(t, err)
		assert.True(t, poolerrors.IsType(err, poolerrors.ErrorTypeConfig))
	})
}

func TestSaveRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Pool.Name = "saved"
	cfg.Pool.Capacity = 32
	cfg.Metrics.Address = "127.0.0.1:0"

	path := filepath.Join(t.TempDir(), "out.yaml")
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestSubstituteEnvVars(t *testing.T) {
	t.Setenv("A", "1")
	t.Setenv("B", "two")

	assert.Equal(t, "x=1 y=two z=", substituteEnvVars("x=${A} y=${B} z=${UNSET_VAR_FOR_TEST}"))
	assert.Equal(t, "no vars", substituteEnvVars("no vars"))
	assert.Equal(t, "open ${A", substituteEnvVars("open ${A"))
}

func TestConversions(t *testing.T) {
	cfg := Default()
	cfg.Pool.Name = "conv"
	cfg.Logging.Level = "warn"
	cfg.Tracing.Exporter = "stdout"
	cfg.Tracing.SamplingRate = 0.5

	assert.Len(t, cfg.PoolOptions(), 3)
	assert.Equal(t, "warn", cfg.LoggerConfig().Level)

	tc := cfg.ObservabilityTracing("v1.2.3")
	assert.Equal(t, "conv", tc.ServiceName)
	assert.Equal(t, "v1.2.3", tc.ServiceVersion)
	assert.Equal(t, "stdout", tc.Exporter)
	assert.InDelta(t, 0.5, tc.SamplingRate, 1e-9)
}
