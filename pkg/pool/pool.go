package pool

import (
	"math"
	"sync/atomic"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	poolerrors "github.com/ajitpratap0/slotpool/pkg/errors"
	"github.com/ajitpratap0/slotpool/pkg/lockfree"
)

// MaxCapacity is the largest capacity a pool can be created with.
const MaxCapacity = lockfree.MaxCapacity

var (
	// ErrInvalidCapacity matches errors returned by constructors given a
	// capacity outside [1, MaxCapacity] or another invalid argument.
	ErrInvalidCapacity = poolerrors.Sentinel(poolerrors.ErrorTypeInvalidCapacity, "invalid pool capacity")

	// ErrPoolExhausted is returned by Checkout when no slot is free.
	// The pool never waits for a release; callers decide whether to retry,
	// fall back or give up.
	ErrPoolExhausted = poolerrors.Sentinel(poolerrors.ErrorTypePoolExhausted, "pool exhausted")

	// ErrPoolClosed is returned by Checkout after Close.
	ErrPoolClosed = poolerrors.Sentinel(poolerrors.ErrorTypePoolClosed, "pool closed")
)

// Pool is a fixed-capacity set of pre-initialized values. Values are checked
// out with Checkout and come back when the returned handle is released.
//
// A Pool is safe for concurrent use by any number of goroutines. Neither
// Checkout nor Release takes a lock or blocks: both are a handful of atomic
// operations on a lock-free free list.
type Pool[T any] struct {
	slots  *slots[T]
	closed atomic.Bool
}

// New creates a pool of capacity values, calling factory once per slot in
// index order before returning. Values are never re-created: a value keeps
// whatever state its last holder left in it.
//
// It returns an error matching ErrInvalidCapacity when capacity is not in
// [1, MaxCapacity], factory is nil or the WithExtra size is negative.
//
// Example:
//
//	p, err := pool.New(16, func() *bytes.Buffer {
//	    return bytes.NewBuffer(make([]byte, 0, 4096))
//	})
//	if err != nil {
//	    return err
//	}
//	buf, err := p.Checkout()
//	if err != nil {
//	    return err // pool.ErrPoolExhausted
//	}
//	defer buf.Release()
func New[T any](capacity int, factory func() T, opts ...Option) (*Pool[T], error) {
	if factory == nil {
		return nil, invalidArgument("factory must not be nil", "factory", nil)
	}
	return NewWithError(capacity, func() (T, error) { return factory(), nil }, opts...)
}

// NewWithError is like New for factories that can fail. The first factory
// error aborts construction: values built so far that implement io.Closer
// are closed and the returned error has type ErrorTypeFactory, wrapping the
// factory error and any close errors.
func NewWithError[T any](capacity int, factory func() (T, error), opts ...Option) (*Pool[T], error) {
	o := buildOptions(opts)

	if err := validateCapacity(capacity); err != nil {
		return nil, err.WithDetail("pool", o.name)
	}
	if factory == nil {
		return nil, invalidArgument("factory must not be nil", "factory", nil)
	}
	if o.extra < 0 {
		return nil, invalidArgument("extra bytes must not be negative", "extra", o.extra)
	}
	if o.extra > 0 && o.extra > math.MaxInt/capacity-(extraAlign-1) {
		return nil, invalidArgument("extra storage overflows", "extra", o.extra)
	}

	values := make([]T, capacity)
	for i := range values {
		v, err := factory()
		if err != nil {
			cause := multierr.Append(err, closeValues(values[:i]))
			return nil, poolerrors.Wrap(cause, poolerrors.ErrorTypeFactory, "slot factory failed").
				WithDetail("pool", o.name).
				WithDetail("slot", i)
		}
		values[i] = v
	}

	p := &Pool[T]{slots: newSlots(values, o)}

	o.logger.Debug("pool created",
		zap.String("pool", o.name),
		zap.Int("capacity", capacity),
		zap.Int("extra_bytes", p.slots.extraSize),
		zap.Bool("leak_detection", o.leakDetection),
	)

	return p, nil
}

// Checkout takes a free slot and returns an exclusive handle to it. It never
// blocks: when every slot is checked out it returns ErrPoolExhausted, and
// after Close it returns ErrPoolClosed.
//
// The value is handed out as its last holder left it; Checkout does not
// reset it. See CheckoutReset for values that know how to reset themselves.
func (p *Pool[T]) Checkout() (*Checkout[T], error) {
	if p.closed.Load() {
		return nil, ErrPoolClosed
	}

	s := p.slots
	if !s.acquire() {
		return nil, ErrPoolClosed
	}

	index, ok := s.free.Pop()
	if !ok {
		s.exhausted.Add(1)
		s.metrics.Exhausted()
		// Only a concurrent Close can make this the last reference.
		_ = s.release()
		return nil, ErrPoolExhausted
	}

	s.inUse.Add(1)
	s.checkouts.Add(1)
	s.metrics.Checkout()

	c := &Checkout[T]{slots: s, index: index}
	if s.leakDetection {
		c.watch()
	}
	return c, nil
}

// Do checks out a value, passes it to fn and releases it when fn returns or
// panics. It returns the Checkout error without calling fn when no slot is
// available, otherwise fn's error.
func (p *Pool[T]) Do(fn func(v *T) error) error {
	c, err := p.Checkout()
	if err != nil {
		return err
	}
	defer c.Release()

	return fn(c.Value())
}

// Cap returns the fixed number of slots.
func (p *Pool[T]) Cap() int {
	return len(p.slots.values)
}

// InUse returns the number of slots currently checked out.
func (p *Pool[T]) InUse() int {
	return int(p.slots.inUse.Load())
}

// Free returns the number of slots on the free list. When no checkout or
// release is in flight, Free()+InUse() == Cap().
func (p *Pool[T]) Free() int {
	return p.slots.free.Len()
}

// Name returns the name the pool reports in logs and metrics.
func (p *Pool[T]) Name() string {
	return p.slots.name
}

// Closed reports whether Close has been called.
func (p *Pool[T]) Closed() bool {
	return p.closed.Load()
}

// Close stops further checkouts and drops the pool's reference to its
// storage. Storage is torn down, closing every value that implements
// io.Closer, once the last outstanding checkout is released. If nothing is
// checked out that happens here and teardown errors are returned; otherwise
// they are logged by the releasing goroutine. Close is idempotent.
func (p *Pool[T]) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	p.slots.log.Debug("pool closed",
		zap.String("pool", p.slots.name),
		zap.Int64("in_use", p.slots.inUse.Load()),
	)
	return p.slots.release()
}

// Stats returns a snapshot of the pool's counters.
func (p *Pool[T]) Stats() Stats {
	s := p.slots
	return Stats{
		Name:       s.name,
		Capacity:   len(s.values),
		InUse:      s.inUse.Load(),
		Free:       int64(s.free.Len()),
		Checkouts:  s.checkouts.Load(),
		Releases:   s.releases.Load(),
		Exhausted:  s.exhausted.Load(),
		Leaks:      s.leaks.Load(),
		CASRetries: s.free.Retries(),
	}
}

func validateCapacity(capacity int) *poolerrors.Error {
	if capacity <= 0 {
		return poolerrors.New(poolerrors.ErrorTypeInvalidCapacity, "capacity must be positive").
			WithDetail("capacity", capacity)
	}
	if capacity > MaxCapacity {
		return poolerrors.Newf(poolerrors.ErrorTypeInvalidCapacity, "capacity exceeds %d", MaxCapacity).
			WithDetail("capacity", capacity)
	}
	return nil
}

func invalidArgument(message, key string, value interface{}) *poolerrors.Error {
	return poolerrors.New(poolerrors.ErrorTypeInvalidCapacity, message).WithDetail(key, value)
}
