package stress

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	poolerrors "github.com/ajitpratap0/slotpool/pkg/errors"
	"github.com/ajitpratap0/slotpool/pkg/metrics"
	"github.com/ajitpratap0/slotpool/pkg/pool"
	"github.com/ajitpratap0/slotpool/pkg/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestRunCountsEveryCheckout(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)

	report, err := Run(context.Background(), Options{
		Capacity:     8,
		Workers:      16,
		Iterations:   2000,
		ExtraBytes:   8,
		HandoffEvery: 8,
	}, zap.New(core))
	require.NoError(t, err)

	assert.Equal(t, report.Expected, report.Observed)
	assert.Positive(t, report.Expected)
	assert.Equal(t, int64(16*2000), report.Expected+report.Exhausted)
	assert.Positive(t, report.Handoffs)
	assert.Zero(t, report.Stats.InUse)
	assert.Equal(t, report.Expected, report.Stats.Checkouts)
	assert.Equal(t, report.Stats.Checkouts, report.Stats.Releases)
	assert.Equal(t, 8, report.Stats.Capacity)
	assert.Positive(t, report.Resources.GoroutineCount)

	require.Equal(t, 1, logs.FilterMessage("stress run complete").Len())
}

func TestRunWithoutHandoff(t *testing.T) {
	report, err := Run(context.Background(), Options{
		Capacity:   1,
		Workers:    4,
		Iterations: 500,
	}, nil)
	require.NoError(t, err)
	assert.Zero(t, report.Handoffs)
	assert.Equal(t, report.Expected, report.Observed)
}

func TestRunReportsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	report, err := Run(context.Background(), Options{
		Capacity:    4,
		Workers:     2,
		Iterations:  100,
		PoolOptions: []pool.Option{pool.WithName("stress"), pool.WithMetrics(metrics.NewCollector(reg))},
	}, testutil.TestLogger(t))
	require.NoError(t, err)

	assert.Equal(t, "stress", report.Stats.Name)
	n, err := promCount(reg, "slotpool_checkouts_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRunRegistersPoolInstruments(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = mp.Shutdown(context.Background()) }()

	report, err := Run(context.Background(), Options{
		Capacity:    2,
		Workers:     2,
		Iterations:  100,
		PoolOptions: []pool.Option{pool.WithName("otel")},
		Meter:       mp.Meter("stress-test"),
	}, nil)
	require.NoError(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	values := make(map[string]int64)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Gauge[int64]:
				for _, dp := range data.DataPoints {
					values[m.Name] = dp.Value
				}
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					values[m.Name] = dp.Value
				}
			}
		}
	}
	assert.Equal(t, int64(2), values["slotpool.pool.capacity"])
	assert.Equal(t, int64(0), values["slotpool.pool.in_use"])
	assert.Equal(t, report.Expected, values["slotpool.pool.checkouts"])
	assert.Equal(t, report.Exhausted, values["slotpool.pool.exhausted"])
}

func TestRunRejectsBadOptions(t *testing.T) {
	_, err := Run(context.Background(), Options{Capacity: 4, Workers: 0, Iterations: 1}, nil)
	assert.True(t, poolerrors.IsType(err, poolerrors.ErrorTypeConfig))

	_, err = Run(context.Background(), Options{Capacity: 4, Workers: 1, Iterations: -1}, nil)
	assert.True(t, poolerrors.IsType(err, poolerrors.ErrorTypeConfig))

	_, err = Run(context.Background(), Options{Capacity: 0, Workers: 1, Iterations: 1}, nil)
	assert.ErrorIs(t, err, pool.ErrInvalidCapacity)
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := Run(ctx, Options{Capacity: 2, Workers: 2, Iterations: 1 << 20}, nil)
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)
	assert.Zero(t, report.Stats.InUse)
}

func TestReportWriteJSON(t *testing.T) {
	report := &Report{
		Capacity: 2,
		Expected: 10,
		Observed: 10,
		Duration: time.Second,
		Stats:    pool.Stats{Name: "json", Capacity: 2},
	}

	var buf bytes.Buffer
	require.NoError(t, report.WriteJSON(&buf))

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, float64(10), decoded["expected"])
	assert.Equal(t, float64(time.Second), decoded["duration_ns"])
	stats, ok := decoded["stats"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "json", stats["name"])
}

func TestOwnDetectsForeignHolder(t *testing.T) {
	p, err := pool.New(1, func() *counterSlot { return new(counterSlot) })
	require.NoError(t, err)
	c, err := p.Checkout()
	require.NoError(t, err)
	defer c.Release()

	(*c.Value()).owner.Store(99)
	assert.ErrorIs(t, own(c, 1), ErrOwnershipViolated)

	(*c.Value()).owner.Store(0)
	require.NoError(t, own(c, 1))
	assert.Equal(t, int64(1), (*c.Value()).count)
}

func TestStressThroughput(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping throughput check in short mode")
	}
	testutil.NewPerformanceTest(t, "stress").
		WithThroughputTarget(10000).
		Run(func() (int64, time.Duration) {
			report, err := Run(context.Background(), Options{
				Capacity:   64,
				Workers:    8,
				Iterations: 20000,
			}, nil)
			require.NoError(t, err)
			return report.Expected + report.Exhausted, report.Duration
		})
}

func promCount(reg *prometheus.Registry, name string) (int, error) {
	families, err := reg.Gather()
	if err != nil {
		return 0, err
	}
	for _, f := range families {
		if f.GetName() == name {
			return len(f.GetMetric()), nil
		}
	}
	return 0, nil
}
