package pool

import (
	"go.uber.org/zap"

	"github.com/ajitpratap0/slotpool/pkg/metrics"
)

// DefaultName is the pool name used in logs and metrics when WithName is not
// given.
const DefaultName = "slotpool"

// Option configures a Pool at construction.
type Option func(*options)

type options struct {
	name          string
	logger        *zap.Logger
	metrics       *metrics.Collector
	extra         int
	leakDetection bool
}

func buildOptions(opts []Option) *options {
	o := &options{
		name:   DefaultName,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	return o
}

// WithName sets the pool name reported in logs and metric labels.
func WithName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.name = name
		}
	}
}

// WithLogger sets the logger used for construction, teardown and leak
// reports. Checkout and release never log.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMetrics reports pool activity to collector.
func WithMetrics(collector *metrics.Collector) Option {
	return func(o *options) {
		o.metrics = collector
	}
}

// WithExtra gives every slot n bytes of extra storage, rounded up to an
// 8-byte boundary and exposed through Checkout.Extra. All extra regions are
// carved out of a single allocation.
func WithExtra(n int) Option {
	return func(o *options) {
		o.extra = n
	}
}

// WithLeakDetection makes the pool watch every checkout with a finalizer.
// A checkout that becomes unreachable without Release is logged with the
// stack that checked it out, counted in Stats.Leaks and its slot is put back
// on the free list. It costs an allocation and a stack capture per checkout
// and is meant for tests and debugging.
func WithLeakDetection(enabled bool) Option {
	return func(o *options) {
		o.leakDetection = enabled
	}
}
