// Package stress hammers a slot pool from many goroutines and verifies that
// no slot is ever held by two of them at once and that no release is lost.
package stress

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	poolerrors "github.com/ajitpratap0/slotpool/pkg/errors"
	"github.com/ajitpratap0/slotpool/pkg/metrics"
	"github.com/ajitpratap0/slotpool/pkg/observability"
	"github.com/ajitpratap0/slotpool/pkg/pool"
)

// Options configures a stress run.
type Options struct {
	Capacity   int
	Workers    int
	Iterations int
	ExtraBytes int
	// HandoffEvery sends every Nth successful checkout to a separate
	// goroutine for release. Zero releases everything in place.
	HandoffEvery int
	// PoolOptions are applied to the pool under test after the run's own.
	PoolOptions []pool.Option
	// Meter, when set, gets observable instruments over the pool's stats.
	// They stay registered after Run returns so a final collection sees the
	// closed pool; shutting down the meter provider releases them.
	Meter metric.Meter
}

// Report is the outcome of a stress run.
type Report struct {
	Capacity     int           `json:"capacity"`
	Workers      int           `json:"workers"`
	Iterations   int           `json:"iterations"`
	Expected     int64         `json:"expected"`
	Observed     int64         `json:"observed"`
	Exhausted    int64         `json:"exhausted"`
	Handoffs     int64         `json:"handoffs"`
	Duration     time.Duration `json:"duration_ns"`
	OpsPerSecond float64       `json:"ops_per_second"`
	Stats        pool.Stats    `json:"stats"`
	Resources    ResourceUsage `json:"resources"`
}

// WriteJSON writes the report to w as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// ErrOwnershipViolated reports a slot observed by two holders at once.
var ErrOwnershipViolated = poolerrors.Sentinel(poolerrors.ErrorTypeInternal, "slot held by two checkouts")

// counterSlot is the pooled value: owner is the id of the worker currently
// holding the slot and count how many times the slot was checked out.
type counterSlot struct {
	owner atomic.Int64
	count int64
}

type handle = *pool.Checkout[*counterSlot]

// Run executes a stress run and returns its report. It returns an error if
// exclusivity is violated, if the number of increments observed in the slots
// differs from the number of successful checkouts, or if ctx is cancelled.
func Run(ctx context.Context, opts Options, log *zap.Logger) (*Report, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Workers <= 0 {
		return nil, poolerrors.New(poolerrors.ErrorTypeConfig, "workers must be positive").
			WithDetail("workers", opts.Workers)
	}
	if opts.Iterations < 0 {
		return nil, poolerrors.New(poolerrors.ErrorTypeConfig, "iterations cannot be negative").
			WithDetail("iterations", opts.Iterations)
	}

	ctx, span := observability.NewSpan(ctx, "stress.run")
	defer span.End()
	span.SetAttribute("capacity", opts.Capacity)
	span.SetAttribute("workers", opts.Workers)
	span.SetAttribute("iterations", opts.Iterations)

	poolOpts := append([]pool.Option{pool.WithExtra(opts.ExtraBytes), pool.WithLogger(log)}, opts.PoolOptions...)
	var slots []*counterSlot
	p, err := pool.New(opts.Capacity, func() *counterSlot {
		s := new(counterSlot)
		slots = append(slots, s)
		return s
	}, poolOpts...)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if opts.Meter != nil {
		if _, err := observability.RegisterPool(opts.Meter, p); err != nil {
			_ = p.Close()
			span.RecordError(err)
			return nil, err
		}
	}

	monitor := newResourceMonitor()
	timer := metrics.NewTimer("stress")

	var (
		expected  atomic.Int64
		exhausted atomic.Int64
		handoffs  atomic.Int64
	)

	handoff := make(chan handle, opts.Workers)
	releasers := new(errgroup.Group)
	releasers.Go(func() error {
		for c := range handoff {
			c.Release()
		}
		return nil
	})

	workers, wctx := errgroup.WithContext(ctx)
	for w := 0; w < opts.Workers; w++ {
		id := int64(w + 1)
		workers.Go(func() error {
			var done int64
			for i := 0; i < opts.Iterations; i++ {
				if i%1024 == 0 && wctx.Err() != nil {
					return wctx.Err()
				}

				c, err := p.Checkout()
				if errors.Is(err, pool.ErrPoolExhausted) {
					exhausted.Add(1)
					continue
				}
				if err != nil {
					return err
				}

				if err := own(c, id); err != nil {
					c.Release()
					return err
				}
				expected.Add(1)
				done++

				if opts.HandoffEvery > 0 && done%int64(opts.HandoffEvery) == 0 {
					handoffs.Add(1)
					handoff <- c
					continue
				}
				c.Release()
			}
			return nil
		})
	}

	runErr := workers.Wait()
	close(handoff)
	_ = releasers.Wait()
	duration := timer.Stop()

	report := &Report{
		Capacity:   opts.Capacity,
		Workers:    opts.Workers,
		Iterations: opts.Iterations,
		Expected:   expected.Load(),
		Exhausted:  exhausted.Load(),
		Handoffs:   handoffs.Load(),
		Duration:   duration,
		Stats:      p.Stats(),
		Resources:  monitor.usage(),
	}
	for _, s := range slots {
		report.Observed += s.count
	}
	if duration > 0 {
		report.OpsPerSecond = float64(report.Expected+report.Exhausted) / duration.Seconds()
	}

	if err := p.Close(); err != nil && runErr == nil {
		runErr = err
	}
	if runErr == nil && report.Observed != report.Expected {
		runErr = poolerrors.Newf(poolerrors.ErrorTypeInternal,
			"observed %d slot increments, expected %d", report.Observed, report.Expected)
	}
	if runErr == nil && report.Stats.InUse != 0 {
		runErr = poolerrors.Newf(poolerrors.ErrorTypeInternal, "%d slots still checked out", report.Stats.InUse)
	}

	span.SetAttribute("expected", report.Expected)
	span.SetAttribute("exhausted", report.Exhausted)
	span.SetAttribute("cas_retries", report.Stats.CASRetries)
	span.RecordError(runErr)

	fields := []zap.Field{
		zap.Int("capacity", report.Capacity),
		zap.Int("workers", report.Workers),
		zap.Int64("checkouts", report.Expected),
		zap.Int64("exhausted", report.Exhausted),
		zap.Int64("handoffs", report.Handoffs),
		zap.Uint64("cas_retries", report.Stats.CASRetries),
		zap.Duration("duration", report.Duration),
		zap.Float64("ops_per_second", report.OpsPerSecond),
	}
	if runErr != nil {
		log.Error("stress run failed", append(fields, zap.Error(runErr))...)
		return report, runErr
	}
	log.Info("stress run complete", fields...)
	return report, nil
}

// own claims the slot for worker id, bumps its counter, stamps the extra
// bytes and releases the claim. Any other holder observed on the way is a
// violation.
func own(c handle, id int64) error {
	slot := *c.Value()
	if !slot.owner.CompareAndSwap(0, id) {
		return ErrOwnershipViolated
	}
	slot.count++

	if extra := c.Extra(); len(extra) >= 8 {
		binary.LittleEndian.PutUint64(extra, uint64(id)) //nolint:gosec // ids are positive
		if int64(binary.LittleEndian.Uint64(extra)) != id { //nolint:gosec
			slot.owner.Store(0)
			return ErrOwnershipViolated
		}
	}

	if !slot.owner.CompareAndSwap(id, 0) {
		return ErrOwnershipViolated
	}
	return nil
}
