// Package pool implements a fixed-capacity, lock-free pool of reusable
// values.
//
// Architecture
//
// A Pool owns N slots created up front by a factory. Free slots are tracked
// by a lock-free index stack (see package lockfree), so Checkout and Release
// are a few atomic operations with no mutex, no allocation on the free list
// and no blocking. When every slot is in use Checkout fails immediately with
// ErrPoolExhausted instead of waiting.
//
// Core Types:
//
//   - Pool[T]: the fixed set of slots and their free list
//   - Checkout[T]: exclusive access to one slot until Release
//   - Stats: counters for checkouts, releases, exhaustion and leaks
//
// Values are not reset between checkouts. A value comes back exactly as its
// previous holder left it, which is what lets a pool of buffers or
// connections keep their warmed-up state. Use CheckoutReset or CheckoutFunc
// when a clean value is required.
//
// Usage Patterns
//
// Basic checkout and release:
//
//	p, err := pool.New(32, func() *bytes.Buffer { return new(bytes.Buffer) })
//	if err != nil {
//		return err
//	}
//	defer p.Close()
//
//	c, err := p.Checkout()
//	if errors.Is(err, pool.ErrPoolExhausted) {
//		// shed load, retry later, or fall back
//	}
//	buf := *c.Value()
//	buf.WriteString("hello")
//	c.Release()
//
// Scoped use:
//
//	err := p.Do(func(buf **bytes.Buffer) error {
//		_, err := (*buf).WriteString("hello")
//		return err
//	})
//
// Byte slabs:
//
//	slab, _ := pool.NewSlab(1024, 4096)
//	c, _ := slab.Checkout()
//	n, _ := conn.Read(*c.Value())
//
// Handles
//
// A Checkout may be released from a goroutine other than the one that
// checked it out. Release is single-shot: releasing twice, or calling Value
// after Release, panics with an error of type errors.ErrorTypeMisuse.
//
// Lifecycle
//
// Close stops new checkouts. Values implementing io.Closer are closed once
// the pool is closed and the last outstanding checkout has been released,
// whichever happens last.
//
// Leak Detection
//
// WithLeakDetection arms a finalizer on every checkout. A handle collected
// without Release is logged with the stack that checked it out, counted in
// Stats.Leaks and its slot is returned to the free list.
//
// Observability
//
// WithLogger routes construction, teardown and leak logs to a zap logger;
// checkout and release never log. WithMetrics reports activity to a
// Prometheus collector from package metrics.
package pool
