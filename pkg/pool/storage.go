package pool

import (
	"io"
	"sync/atomic"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/ajitpratap0/slotpool/pkg/lockfree"
	"github.com/ajitpratap0/slotpool/pkg/metrics"
)

// extraAlign is the alignment applied to per-slot extra byte regions.
const extraAlign = 8

// slots is the storage shared by a Pool and every live Checkout: the values,
// their optional extra bytes and the free list of indices.
//
// refs counts the Pool itself plus one per live Checkout. When it reaches
// zero the values are torn down; acquire refuses to resurrect a zero count so
// a checkout racing with Close cannot observe torn-down storage.
type slots[T any] struct {
	values    []T
	extra     []byte
	extraSize int

	free *lockfree.IndexStack
	refs atomic.Int64

	inUse     atomic.Int64
	checkouts atomic.Int64
	releases  atomic.Int64
	exhausted atomic.Int64
	leaks     atomic.Int64

	name          string
	leakDetection bool
	log           *zap.Logger
	metrics       *metrics.PoolMetrics
}

func newSlots[T any](values []T, o *options) *slots[T] {
	s := &slots[T]{
		values:        values,
		free:          lockfree.NewIndexStack(len(values), true),
		name:          o.name,
		leakDetection: o.leakDetection,
		log:           o.logger,
		metrics:       o.metrics.ForPool(o.name, len(values)),
	}
	if o.extra > 0 {
		s.extraSize = alignUp(o.extra, extraAlign)
		s.extra = make([]byte, len(values)*s.extraSize)
	}
	s.refs.Store(1)
	return s
}

// get returns the value stored at index.
func (s *slots[T]) get(index uint32) *T {
	return &s.values[index]
}

// extraAt returns the extra bytes of index, capped so appends cannot grow
// into the neighbouring slot.
func (s *slots[T]) extraAt(index uint32) []byte {
	if s.extraSize == 0 {
		return nil
	}
	start := int(index) * s.extraSize
	end := start + s.extraSize
	return s.extra[start:end:end]
}

// acquire takes a storage reference unless the storage is already torn down.
func (s *slots[T]) acquire() bool {
	for {
		n := s.refs.Load()
		if n <= 0 {
			return false
		}
		if s.refs.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// release drops a storage reference and tears the storage down when it was
// the last one.
func (s *slots[T]) release() error {
	if s.refs.Add(-1) != 0 {
		return nil
	}
	return s.teardown()
}

// checkin returns index to the free list and drops the holder's reference.
func (s *slots[T]) checkin(index uint32) error {
	s.inUse.Add(-1)
	s.releases.Add(1)
	s.metrics.Release()
	s.free.Push(index)
	return s.release()
}

func (s *slots[T]) teardown() error {
	err := closeValues(s.values)
	if err != nil {
		s.log.Error("pool teardown failed",
			zap.String("pool", s.name),
			zap.Int("closers_failed", len(multierr.Errors(err))),
			zap.Error(err),
		)
		return err
	}
	s.log.Debug("pool torn down", zap.String("pool", s.name), zap.Int("capacity", len(s.values)))
	return nil
}

// closeValues closes every value implementing io.Closer, directly or through
// a pointer receiver, and combines their errors.
func closeValues[T any](values []T) error {
	var err error
	for i := range values {
		err = multierr.Append(err, closeValue(&values[i]))
	}
	return err
}

func closeValue[T any](v *T) error {
	if c, ok := any(*v).(io.Closer); ok {
		return c.Close()
	}
	if c, ok := any(v).(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func alignUp(n, align int) int {
	return (n + align - 1) &^ (align - 1)
}
