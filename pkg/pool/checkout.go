package pool

import (
	"fmt"
	"runtime"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	poolerrors "github.com/ajitpratap0/slotpool/pkg/errors"
)

// maxLeakFrames bounds the stack recorded for each watched checkout.
const maxLeakFrames = 32

// Checkout is exclusive access to one pool slot. It is returned by
// Pool.Checkout and gives the slot back on Release.
//
// The handle may be passed to and released from any goroutine. Release must
// happen exactly once: a second Release, or Value after Release, panics with
// an error of type ErrorTypeMisuse. Pointers obtained from Value or slices
// from Extra must not be used after Release.
type Checkout[T any] struct {
	slots    *slots[T]
	index    uint32
	released atomic.Bool
	watched  bool
	stack    []uintptr
}

// Value returns a pointer to the checked-out value.
func (c *Checkout[T]) Value() *T {
	if c.released.Load() {
		panic(c.misuse("value used after release"))
	}
	return c.slots.get(c.index)
}

// Index returns the slot index, stable for the lifetime of the pool.
func (c *Checkout[T]) Index() int {
	return int(c.index)
}

// Extra returns the slot's extra bytes configured with WithExtra, or nil.
// The slice is capped at the slot boundary.
func (c *Checkout[T]) Extra() []byte {
	if c.released.Load() {
		panic(c.misuse("extra bytes used after release"))
	}
	return c.slots.extraAt(c.index)
}

// Released reports whether the handle has been released.
func (c *Checkout[T]) Released() bool {
	return c.released.Load()
}

// Release returns the slot to the pool. If the pool was closed and this was
// the last outstanding checkout, the pool's values are torn down here.
func (c *Checkout[T]) Release() {
	if !c.released.CompareAndSwap(false, true) {
		panic(c.misuse("checkout released twice"))
	}
	if c.watched {
		runtime.SetFinalizer(c, nil)
	}
	// Teardown errors are logged by the storage.
	_ = c.slots.checkin(c.index)
}

func (c *Checkout[T]) misuse(message string) *poolerrors.Error {
	return poolerrors.New(poolerrors.ErrorTypeMisuse, message).
		WithDetail("pool", c.slots.name).
		WithDetail("slot", c.index)
}

// watch records the caller's stack and arms a finalizer that reclaims the
// slot if the handle is collected unreleased.
func (c *Checkout[T]) watch() {
	pcs := make([]uintptr, maxLeakFrames)
	// Skip runtime.Callers, watch and Pool.Checkout.
	n := runtime.Callers(3, pcs)
	c.stack = pcs[:n]
	c.watched = true
	runtime.SetFinalizer(c, (*Checkout[T]).reclaim)
}

func (c *Checkout[T]) reclaim() {
	if !c.released.CompareAndSwap(false, true) {
		return
	}
	s := c.slots
	s.leaks.Add(1)
	s.metrics.Leak()
	s.log.Warn("checkout collected without release",
		zap.String("pool", s.name),
		zap.Uint32("slot", c.index),
		zap.String("checked_out_at", formatStack(c.stack)),
	)
	_ = s.checkin(c.index)
}

func formatStack(pcs []uintptr) string {
	if len(pcs) == 0 {
		return ""
	}
	var b strings.Builder
	frames := runtime.CallersFrames(pcs)
	for {
		frame, more := frames.Next()
		fmt.Fprintf(&b, "%s\n\t%s:%d\n", frame.Function, frame.File, frame.Line)
		if !more {
			break
		}
	}
	return b.String()
}
