package worker

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/poiesic/leveler/core"
	"github.com/poiesic/leveler/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryWithBackoff(t *testing.T) {
	t.Run("succeeds after failures", func(t *testing.T) {
		calls := 0
		err := RetryWithBackoff(context.Background(), func() error {
			calls++
			if calls < 3 {
				return errors.New("temporary")
			}
			return nil
		}, 3, time.Millisecond)

		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("returns last error", func(t *testing.T) {
		calls := 0
		err := RetryWithBackoff(context.Background(), func() error {
			calls++
			return fmt.Errorf("attempt %d", calls)
		}, 2, time.Millisecond)

		assert.EqualError(t, err, "attempt 2")
		assert.Equal(t, 2, calls)
	})

	t.Run("invalid attempts", func(t *testing.T) {
		err := RetryWithBackoff(context.Background(), func() error { return nil }, 0, time.Millisecond)
		assert.ErrorIs(t, err, ErrInvalidMaxAttempts)
	})

	t.Run("cancelled while waiting", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		calls := 0
		err := RetryWithBackoff(ctx, func() error {
			calls++
			cancel()
			return errors.New("temporary")
		}, 5, time.Hour)

		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	})
}

func TestBackoff(t *testing.T) {
	b := newBackoff(time.Second, 5*time.Second)

	assert.Equal(t, time.Second, b.Next())
	assert.Equal(t, 2*time.Second, b.Next())
	assert.Equal(t, 4*time.Second, b.Next())
	assert.Equal(t, 5*time.Second, b.Next())
	assert.Equal(t, 5*time.Second, b.Next())

	b.Reset()
	assert.Equal(t, time.Second, b.Next())

	b = newBackoff(time.Second, 0)
	assert.Equal(t, time.Second, b.Next())
	assert.Equal(t, time.Second, b.Next())
}

func TestSleep(t *testing.T) {
	assert.True(t, sleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, sleep(ctx, time.Hour))
}

func TestIsDroppable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{fmt.Errorf("%w: bad", ErrMalformedJob), true},
		{fmt.Errorf("%w: 9", ErrRecordNotFound), true},
		{ErrJobFailed, true},
		{fmt.Errorf("x: %w", storage.ErrSerializationFailed), true},
		{fmt.Errorf("apply: %w", core.ErrInvalidVector), true},
		{errors.New("connection reset"), false},
		{context.DeadlineExceeded, false},
		{storage.ErrTransactionFailed, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isDroppable(tt.err), "%v", tt.err)
	}
}
