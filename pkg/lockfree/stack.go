// Package lockfree provides the lock-free free-list that backs slot pools.
package lockfree

import (
	"fmt"
	"math"
	"sync/atomic"
)

const (
	// Empty is the sentinel index marking the bottom of the stack.
	Empty uint32 = math.MaxUint32

	// MaxCapacity is the largest number of indices an IndexStack can track.
	MaxCapacity = math.MaxInt32
)

// IndexStack is a lock-free LIFO stack of slot indices in [0, capacity).
//
// Links live in a fixed next array indexed by slot, so pushing and popping
// never allocate. The head is a single 64-bit word packing the top index in
// the low half and a tag in the high half. The tag is bumped on every push and
// every compare-and-swap compares the whole word, so a pop that read a head
// which was popped and pushed again in the meantime fails and retries instead
// of installing a stale link (the ABA problem).
//
// Any number of goroutines may Push and Pop concurrently. Callers must only
// push indices they own, i.e. indices previously popped and not yet pushed.
type IndexStack struct {
	head      atomic.Uint64
	_padding1 [7]uint64 //nolint:unused // keep head on its own cache line

	size      atomic.Int64
	retries   AtomicCounter
	_padding2 [6]uint64 //nolint:unused

	next     []atomic.Uint32
	capacity uint32
}

// NewIndexStack creates a stack able to hold capacity indices. When filled
// is true the stack starts with every index present, ordered so that index 0
// is popped first. It panics if capacity is negative or above MaxCapacity.
func NewIndexStack(capacity int, filled bool) *IndexStack {
	if capacity < 0 || capacity > MaxCapacity {
		panic(fmt.Sprintf("lockfree: stack capacity %d out of range [0, %d]", capacity, MaxCapacity))
	}

	s := &IndexStack{
		next:     make([]atomic.Uint32, capacity),
		capacity: uint32(capacity),
	}

	if !filled || capacity == 0 {
		s.head.Store(pack(Empty, 0))
		return s
	}

	for i := 0; i < capacity-1; i++ {
		s.next[i].Store(uint32(i + 1))
	}
	s.next[capacity-1].Store(Empty)
	s.head.Store(pack(0, 0))
	s.size.Store(int64(capacity))

	return s
}

// Push makes index available to a future Pop. It retries until its
// compare-and-swap lands and never fails. It panics if index is out of range.
func (s *IndexStack) Push(index uint32) {
	if index >= s.capacity {
		panic(fmt.Sprintf("lockfree: push of index %d out of range [0, %d)", index, s.capacity))
	}

	for {
		old := s.head.Load()
		top, tag := unpack(old)

		// index is owned by the caller; concurrent poppers may read this
		// link from a stale head but their CAS fails on the bumped tag.
		s.next[index].Store(top)

		if s.head.CompareAndSwap(old, pack(index, tag+1)) {
			s.size.Add(1)
			return
		}
		s.retries.Increment()
	}
}

// Pop removes and returns some free index. It returns false immediately when
// the stack is empty.
func (s *IndexStack) Pop() (uint32, bool) {
	for {
		old := s.head.Load()
		top, tag := unpack(old)
		if top == Empty {
			return Empty, false
		}

		next := s.next[top].Load()
		if s.head.CompareAndSwap(old, pack(next, tag)) {
			s.size.Add(-1)
			return top, true
		}
		s.retries.Increment()
	}
}

// Len returns the number of indices on the stack. It is exact when no Push
// or Pop is in flight and an approximation otherwise.
func (s *IndexStack) Len() int {
	n := s.size.Load()
	if n < 0 {
		return 0
	}
	return int(n)
}

// Cap returns the number of distinct indices the stack can hold.
func (s *IndexStack) Cap() int {
	return int(s.capacity)
}

// IsEmpty reports whether the head is the empty sentinel.
// This check is atomic but may be stale in concurrent scenarios.
func (s *IndexStack) IsEmpty() bool {
	top, _ := unpack(s.head.Load())
	return top == Empty
}

// Retries returns how many compare-and-swap attempts lost a race since the
// stack was created.
func (s *IndexStack) Retries() uint64 {
	return s.retries.Get()
}

// Tag returns the current generation tag of the head.
func (s *IndexStack) Tag() uint32 {
	_, tag := unpack(s.head.Load())
	return tag
}

// Indices walks the stack from the top and returns the indices in pop order.
// The result is only meaningful while no Push or Pop is in flight.
func (s *IndexStack) Indices() []uint32 {
	out := make([]uint32, 0, s.Len())
	top, _ := unpack(s.head.Load())
	for top != Empty && len(out) < int(s.capacity) {
		out = append(out, top)
		top = s.next[top].Load()
	}
	return out
}

func pack(index, tag uint32) uint64 {
	return uint64(tag)<<32 | uint64(index)
}

func unpack(word uint64) (index, tag uint32) {
	return uint32(word), uint32(word >> 32)
}
