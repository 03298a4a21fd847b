package testutil

import (
	"context"
	"fmt"
	"runtime"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/ajitpratap0/slotpool/pkg/metrics"
	"github.com/ajitpratap0/slotpool/pkg/pool"
)

// PoolSuite provides per-test logging, a fresh Prometheus registry and a
// goroutine leak check for suites that exercise pools.
type PoolSuite struct {
	suite.Suite
	ctx       context.Context
	cancel    context.CancelFunc
	registry  *prometheus.Registry
	collector *metrics.Collector
	logger    *zap.Logger
}

// SetupTest runs before each test in the suite
func (s *PoolSuite) SetupTest() {
	s.ctx, s.cancel = context.WithTimeout(context.Background(), time.Minute)
	s.registry = prometheus.NewRegistry()
	s.collector = metrics.NewCollector(s.registry)
	s.logger = TestLogger(s.T())
}

// TearDownTest runs after each test in the suite
func (s *PoolSuite) TearDownTest() {
	s.cancel()
	goleak.VerifyNone(s.T())
}

// Context returns the test context
func (s *PoolSuite) Context() context.Context {
	return s.ctx
}

// Registry returns the test's Prometheus registry
func (s *PoolSuite) Registry() *prometheus.Registry {
	return s.registry
}

// Logger returns the test logger
func (s *PoolSuite) Logger() *zap.Logger {
	return s.logger
}

// Options returns pool options that name the pool and wire it to the
// suite's logger and metrics.
func (s *PoolSuite) Options(name string, extra ...pool.Option) []pool.Option {
	opts := []pool.Option{
		pool.WithName(name),
		pool.WithLogger(s.logger),
		pool.WithMetrics(s.collector),
	}
	return append(opts, extra...)
}

// PerformanceTest checks throughput and memory of a pool workload against
// targets.
type PerformanceTest struct {
	t         testing.TB
	name      string
	threshold struct {
		minThroughput float64 // ops/sec
		maxMemory     int64   // bytes
	}
}

// NewPerformanceTest creates a new performance test
func NewPerformanceTest(t testing.TB, name string) *PerformanceTest {
	return &PerformanceTest{
		t:    t,
		name: name,
	}
}

// WithThroughputTarget sets minimum throughput requirement
func (p *PerformanceTest) WithThroughputTarget(opsPerSec float64) *PerformanceTest {
	p.threshold.minThroughput = opsPerSec
	return p
}

// WithMemoryTarget sets maximum heap growth
func (p *PerformanceTest) WithMemoryTarget(maxBytes int64) *PerformanceTest {
	p.threshold.maxMemory = maxBytes
	return p
}

// Run executes fn and checks its results against the targets.
func (p *PerformanceTest) Run(fn func() (ops int64, duration time.Duration)) {
	p.t.Helper()

	initial := CaptureMemoryProfile()
	ops, duration := fn()
	final := CaptureMemoryProfile()

	throughput := 0.0
	if duration > 0 {
		throughput = float64(ops) / duration.Seconds()
	}
	memoryUsed := int64(final.HeapAlloc) - int64(initial.HeapAlloc)

	p.t.Logf("Performance Test: %s", p.name)
	p.t.Logf("  Ops: %d", ops)
	p.t.Logf("  Duration: %v", duration)
	p.t.Logf("  Throughput: %.0f ops/sec", throughput)
	p.t.Logf("  Heap Growth: %s", formatBytes(memoryUsed))

	if p.threshold.minThroughput > 0 && throughput < p.threshold.minThroughput {
		p.t.Errorf("Throughput %.0f ops/sec below target %.0f ops/sec",
			throughput, p.threshold.minThroughput)
	}

	if p.threshold.maxMemory > 0 && memoryUsed > p.threshold.maxMemory {
		p.t.Errorf("Heap growth %s exceeds target %s",
			formatBytes(memoryUsed), formatBytes(p.threshold.maxMemory))
	}
}

// MemoryProfile captures memory statistics
type MemoryProfile struct {
	HeapAlloc  uint64
	TotalAlloc uint64
	Mallocs    uint64
	NumGC      uint32
}

// CaptureMemoryProfile captures current memory profile
func CaptureMemoryProfile() *MemoryProfile {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return &MemoryProfile{
		HeapAlloc:  m.HeapAlloc,
		TotalAlloc: m.TotalAlloc,
		Mallocs:    m.Mallocs,
		NumGC:      m.NumGC,
	}
}

// formatBytes formats bytes into human-readable string
func formatBytes(bytes int64) string {
	const unit = 1024
	sign := ""
	if bytes < 0 {
		sign = "-"
		bytes = -bytes
	}
	if bytes < unit {
		return fmt.Sprintf("%s%d B", sign, bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%s%.1f %cB", sign, float64(bytes)/float64(div), "KMGTPE"[exp])
}
