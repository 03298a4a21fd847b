// Package slotpool provides fixed-capacity, lock-free pools of reusable
// values.
//
// A pool is created with a capacity N and a factory that is called N times
// up front. Values are checked out and returned without locks: free slots
// live on a tagged lock-free stack, so checkout and release are a handful of
// atomic operations and never block. When all N slots are in use a checkout
// fails immediately instead of waiting.
//
// # Quick Start
//
//	p, err := pool.New(128, func() *bytes.Buffer {
//		return bytes.NewBuffer(make([]byte, 0, 4096))
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer p.Close()
//
//	c, err := p.Checkout()
//	if errors.Is(err, pool.ErrPoolExhausted) {
//		// every slot is busy
//	}
//	buf := *c.Value()
//	buf.Reset()
//	buf.WriteString("payload")
//	c.Release() // may happen on any goroutine
//
// # Packages
//
//   - pkg/pool: Pool, Checkout, byte slabs, reset helpers, leak detection
//   - pkg/lockfree: the ABA-safe index stack behind the free list
//   - pkg/errors: structured errors and their types
//   - pkg/metrics: Prometheus collector for pool activity
//   - pkg/observability: OpenTelemetry spans and observable pool gauges
//   - pkg/config: YAML and environment configuration
//   - pkg/logger: zap logging setup
//   - internal/stress: concurrency stress runner behind `slotpool stress`
//
// # Guarantees
//
// A slot is held by at most one checkout at a time, and every release puts
// its slot back on the free list exactly once. Values are not reset between
// checkouts. Releasing a checkout twice panics.
package slotpool
