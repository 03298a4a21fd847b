// Package metrics exports slot pool activity as Prometheus metrics.
//
// # Basic Usage
//
//	registry := prometheus.NewRegistry()
//	collector := metrics.NewCollector(registry)
//
//	p, err := pool.New(64, newConn,
//	    pool.WithName("conns"),
//	    pool.WithMetrics(collector),
//	)
//
// A Collector registers one set of vectors labelled by pool name. Pools
// resolve their label values once at construction through ForPool, so the
// checkout and release paths only touch pre-bound counters.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "slotpool"

// Collector owns the Prometheus vectors shared by every pool reporting to
// one registry.
type Collector struct {
	checkouts *prometheus.CounterVec
	releases  *prometheus.CounterVec
	exhausted *prometheus.CounterVec
	leaks     *prometheus.CounterVec
	inUse     *prometheus.GaugeVec
	capacity  *prometheus.GaugeVec
}

// NewCollector creates the pool vectors and registers them with reg. A nil
// reg uses prometheus.DefaultRegisterer.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Collector{
		checkouts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "checkouts_total",
				Help:      "Total number of successful checkouts",
			},
			[]string{"pool"},
		),
		releases: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "releases_total",
				Help:      "Total number of slots returned to the free list",
			},
			[]string{"pool"},
		),
		exhausted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "exhausted_total",
				Help:      "Total number of checkouts rejected because no slot was free",
			},
			[]string{"pool"},
		),
		leaks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "leaks_total",
				Help:      "Total number of checkouts collected without being released",
			},
			[]string{"pool"},
		),
		inUse: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "in_use",
				Help:      "Number of slots currently checked out",
			},
			[]string{"pool"},
		),
		capacity: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "capacity",
				Help:      "Fixed number of slots in the pool",
			},
			[]string{"pool"},
		),
	}
}

// ForPool binds the collector's vectors to one pool name and records its
// capacity. A nil Collector returns nil, which is a valid no-op PoolMetrics.
func (c *Collector) ForPool(name string, capacity int) *PoolMetrics {
	if c == nil {
		return nil
	}
	c.capacity.WithLabelValues(name).Set(float64(capacity))

	return &PoolMetrics{
		checkouts: c.checkouts.WithLabelValues(name),
		releases:  c.releases.WithLabelValues(name),
		exhausted: c.exhausted.WithLabelValues(name),
		leaks:     c.leaks.WithLabelValues(name),
		inUse:     c.inUse.WithLabelValues(name),
	}
}

// PoolMetrics holds the label-bound metrics of a single pool. All methods
// are safe on a nil receiver.
type PoolMetrics struct {
	checkouts prometheus.Counter
	releases  prometheus.Counter
	exhausted prometheus.Counter
	leaks     prometheus.Counter
	inUse     prometheus.Gauge
}

// Checkout records a successful checkout.
func (m *PoolMetrics) Checkout() {
	if m == nil {
		return
	}
	m.checkouts.Inc()
	m.inUse.Inc()
}

// Release records a slot returned to the free list.
func (m *PoolMetrics) Release() {
	if m == nil {
		return
	}
	m.releases.Inc()
	m.inUse.Dec()
}

// Exhausted records a checkout rejected on an empty free list.
func (m *PoolMetrics) Exhausted() {
	if m == nil {
		return
	}
	m.exhausted.Inc()
}

// Leak records a checkout that was garbage collected without Release.
func (m *PoolMetrics) Leak() {
	if m == nil {
		return
	}
	m.leaks.Inc()
}

// Timer provides a simple timing mechanism for measuring operation durations.
// It captures the start time on creation and calculates elapsed time on stop.
type Timer struct {
	start time.Time
	name  string
}

// NewTimer creates a new timer and starts timing immediately.
// The name parameter is for identification in logs or reports.
func NewTimer(name string) *Timer {
	return &Timer{
		start: time.Now(),
		name:  name,
	}
}

// Name returns the timer's name.
func (t *Timer) Name() string {
	return t.name
}

// Stop returns the elapsed duration since creation. It can be called
// multiple times, each returning the total elapsed time.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}
