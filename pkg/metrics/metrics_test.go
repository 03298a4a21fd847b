package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolMetricsRecordsEvents(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	m := c.ForPool("buffers", 8)
	m.Checkout()
	m.Checkout()
	m.Release()
	m.Exhausted()
	m.Leak()

	assert.Equal(t, 2.0, testutil.ToFloat64(c.checkouts.WithLabelValues("buffers")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.releases.WithLabelValues("buffers")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.exhausted.WithLabelValues("buffers")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.leaks.WithLabelValues("buffers")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.inUse.WithLabelValues("buffers")))
	assert.Equal(t, 8.0, testutil.ToFloat64(c.capacity.WithLabelValues("buffers")))
}

func TestPoolsAreLabelledSeparately(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.ForPool("a", 1).Checkout()
	c.ForPool("b", 1)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.checkouts.WithLabelValues("a")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.checkouts.WithLabelValues("b")))

	n, err := testutil.GatherAndCount(reg, "slotpool_capacity")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestNilPoolMetricsIsNoop(t *testing.T) {
	var c *Collector
	m := c.ForPool("none", 4)
	assert.Nil(t, m)

	assert.NotPanics(t, func() {
		m.Checkout()
		m.Release()
		m.Exhausted()
		m.Leak()
	})
}

func TestTimer(t *testing.T) {
	timer := NewTimer("run")
	time.Sleep(2 * time.Millisecond)

	assert.Equal(t, "run", timer.Name())
	first := timer.Stop()
	assert.GreaterOrEqual(t, first, 2*time.Millisecond)
	assert.GreaterOrEqual(t, timer.Stop(), first)
}
