// Package testutil provides testing utilities for slot pools
package testutil

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/slotpool/pkg/pool"
)

// StatsSource is implemented by *pool.Pool[T] for every T.
type StatsSource interface {
	Stats() pool.Stats
}

// TestLogger creates a test logger that writes to the test output.
// The logger is automatically cleaned up when the test completes.
func TestLogger(t testing.TB) *zap.Logger {
	return zaptest.NewLogger(t)
}

// TestContext creates a test context with a 30-second timeout.
// The caller must call the returned cancel function to avoid leaks.
func TestContext(_ testing.TB) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

// AssertEventually asserts that a condition becomes true within the specified timeout.
// It checks the condition every 10ms until it succeeds or the timeout expires.
func AssertEventually(t testing.TB, condition func() bool, timeout time.Duration, msg string) {
	t.Helper()
	require.Eventually(t, condition, timeout, 10*time.Millisecond, msg)
}

// RequireNoCheckouts fails the test if any slot of src is checked out.
func RequireNoCheckouts(t testing.TB, src StatsSource) {
	t.Helper()
	s := src.Stats()
	require.Zerof(t, s.InUse, "pool %q has %d outstanding checkouts", s.Name, s.InUse)
}

// RequirePartition fails the test unless every slot of a quiescent pool is
// either free or in use, never both and never neither.
func RequirePartition(t testing.TB, src StatsSource) {
	t.Helper()
	s := src.Stats()
	require.Equalf(t, int64(s.Capacity), s.InUse+s.Free,
		"pool %q: in use %d + free %d != capacity %d", s.Name, s.InUse, s.Free, s.Capacity)
	require.Equalf(t, s.Checkouts, s.Releases+s.InUse,
		"pool %q: checkouts %d != releases %d + in use %d", s.Name, s.Checkouts, s.Releases, s.InUse)
}

// VerifyNoLeaks runs the garbage collector so that leak-detecting pools get
// to report checkouts dropped without release, then asserts none were.
func VerifyNoLeaks(t testing.TB, src StatsSource) {
	t.Helper()
	for i := 0; i < 3; i++ {
		runtime.GC()
	}
	// Finalizers run on their own goroutine after GC.
	time.Sleep(10 * time.Millisecond)
	s := src.Stats()
	assert.Zerof(t, s.Leaks, "pool %q leaked %d checkouts", s.Name, s.Leaks)
}

// Closer is a pool that can be closed.
type Closer interface {
	StatsSource
	Close() error
}

// TrackPool registers a cleanup that checks p is quiescent and consistent
// when the test ends and then closes it.
func TrackPool(t testing.TB, p Closer) {
	t.Helper()
	t.Cleanup(func() {
		RequireNoCheckouts(t, p)
		RequirePartition(t, p)
		assert.NoError(t, p.Close())
	})
}
