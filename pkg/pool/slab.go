package pool

import (
	"math"
)

// NewSlab creates a pool of capacity byte buffers of size bytes each. All
// buffers are windows over one contiguous allocation and are capped at their
// window, so appending to a checked-out buffer reallocates instead of
// spilling into a neighbour.
//
// Buffers are not zeroed between checkouts.
func NewSlab(capacity, size int, opts ...Option) (*Pool[[]byte], error) {
	if err := validateCapacity(capacity); err != nil {
		return nil, err
	}
	if size <= 0 {
		return nil, invalidArgument("slab size must be positive", "size", size)
	}
	if size > math.MaxInt/capacity {
		return nil, invalidArgument("slab storage overflows", "size", size)
	}

	buf := make([]byte, capacity*size)
	next := 0
	return New(capacity, func() []byte {
		start := next * size
		end := start + size
		next++
		return buf[start:end:end]
	}, opts...)
}
