package observability

import (
	"context"
	"fmt"
	"io"

	"github.com/goccy/go-json"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/ajitpratap0/slotpool/pkg/pool"
)

// StatsSource is anything that can report pool stats; *pool.Pool[T]
// satisfies it for every T.
type StatsSource interface {
	Stats() pool.Stats
}

// InitMetrics installs a global meter provider that reports through reader,
// described by the same resource attributes as InitTracing. Callers own the
// returned provider and must Shutdown it.
func InitMetrics(ctx context.Context, config TracingConfig, reader sdkmetric.Reader) (*sdkmetric.MeterProvider, error) {
	res, err := newResource(ctx, config)
	if err != nil {
		return nil, err
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	otel.SetMeterProvider(mp)

	return mp, nil
}

// Meter returns the slotpool meter from the global provider.
func Meter() metric.Meter {
	return otel.Meter(instrumentationName)
}

// WriteMetrics collects reader once and writes the result to w as JSON.
func WriteMetrics(ctx context.Context, reader *sdkmetric.ManualReader, w io.Writer) error {
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		return fmt.Errorf("failed to collect metrics: %w", err)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rm)
}

// RegisterPool registers observable instruments on meter that read src's
// stats at collection time. The pool itself is never touched between
// collections. Unregister the returned registration when the pool is closed.
func RegisterPool(meter metric.Meter, src StatsSource) (metric.Registration, error) {
	capacity, err := meter.Int64ObservableGauge("slotpool.pool.capacity",
		metric.WithDescription("Fixed number of slots in the pool"),
		metric.WithUnit("{slot}"))
	if err != nil {
		return nil, err
	}
	inUse, err := meter.Int64ObservableGauge("slotpool.pool.in_use",
		metric.WithDescription("Number of slots currently checked out"),
		metric.WithUnit("{slot}"))
	if err != nil {
		return nil, err
	}
	free, err := meter.Int64ObservableGauge("slotpool.pool.free",
		metric.WithDescription("Number of slots on the free list"),
		metric.WithUnit("{slot}"))
	if err != nil {
		return nil, err
	}
	checkouts, err := meter.Int64ObservableCounter("slotpool.pool.checkouts",
		metric.WithDescription("Total number of successful checkouts"))
	if err != nil {
		return nil, err
	}
	releases, err := meter.Int64ObservableCounter("slotpool.pool.releases",
		metric.WithDescription("Total number of slots returned to the free list"))
	if err != nil {
		return nil, err
	}
	exhausted, err := meter.Int64ObservableCounter("slotpool.pool.exhausted",
		metric.WithDescription("Total number of checkouts rejected because no slot was free"))
	if err != nil {
		return nil, err
	}
	leaks, err := meter.Int64ObservableCounter("slotpool.pool.leaks",
		metric.WithDescription("Total number of checkouts collected without being released"))
	if err != nil {
		return nil, err
	}

	return meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		s := src.Stats()
		attrs := metric.WithAttributes(attribute.String("pool", s.Name))

		o.ObserveInt64(capacity, int64(s.Capacity), attrs)
		o.ObserveInt64(inUse, s.InUse, attrs)
		o.ObserveInt64(free, s.Free, attrs)
		o.ObserveInt64(checkouts, s.Checkouts, attrs)
		o.ObserveInt64(releases, s.Releases, attrs)
		o.ObserveInt64(exhausted, s.Exhausted, attrs)
		o.ObserveInt64(leaks, s.Leaks, attrs)
		return nil
	}, capacity, inUse, free, checkouts, releases, exhausted, leaks)
}
