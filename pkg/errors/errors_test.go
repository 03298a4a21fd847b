package errors

import (
	stderrors "errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCapturesStack(t *testing.T) {
	err := New(ErrorTypeMisuse, "double release")

	require.NotEmpty(t, err.Stack)
	assert.Contains(t, err.Stack[0].Function, "TestNewCapturesStack")
	assert.Equal(t, "misuse: double release", err.Error())
}

func TestSentinelHasNoStack(t *testing.T) {
	err := Sentinel(ErrorTypePoolExhausted, "pool exhausted")

	assert.Empty(t, err.Stack)
	assert.Nil(t, err.Details)
}

func TestIsMatchesByType(t *testing.T) {
	exhausted := Sentinel(ErrorTypePoolExhausted, "pool exhausted")
	closed := Sentinel(ErrorTypePoolClosed, "pool closed")

	err := fmt.Errorf("wrapped: %w", Newf(ErrorTypePoolExhausted, "no slot in %s", "buffers"))

	assert.True(t, stderrors.Is(err, exhausted))
	assert.False(t, stderrors.Is(err, closed))
	assert.False(t, stderrors.Is(io.EOF, exhausted))
}

func TestWrap(t *testing.T) {
	t.Run("nil", func(t *testing.T) {
		assert.Nil(t, Wrap(nil, ErrorTypeFactory, "unused"))
	})

	t.Run("preserves cause", func(t *testing.T) {
		err := Wrap(io.EOF, ErrorTypeFactory, "slot factory failed")

		assert.ErrorIs(t, err, io.EOF)
		assert.Equal(t, "factory: slot factory failed: EOF", err.Error())
		assert.NotEmpty(t, err.Stack)
	})

	t.Run("keeps inner stack", func(t *testing.T) {
		inner := New(ErrorTypeConfig, "bad value")
		outer := Wrap(inner, ErrorTypeFactory, "construction failed")

		assert.Equal(t, inner.Stack, outer.Stack)
		assert.True(t, IsType(outer, ErrorTypeFactory))
		assert.ErrorIs(t, outer, Sentinel(ErrorTypeConfig, ""))
	})
}

func TestWithDetail(t *testing.T) {
	err := New(ErrorTypeInvalidCapacity, "capacity must be positive").
		WithDetail("capacity", -1).
		WithDetail("pool", "test")

	assert.Equal(t, map[string]interface{}{"capacity": -1, "pool": "test"}, err.Details)
}

func TestIsType(t *testing.T) {
	assert.False(t, IsType(io.EOF, ErrorTypeInternal))
	assert.True(t, IsType(fmt.Errorf("x: %w", New(ErrorTypeInternal, "boom")), ErrorTypeInternal))
}
