package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPollSucceedsWhenConditionMet(t *testing.T) {
	calls := 0
	err := Poll(context.Background(), Config{Interval: time.Millisecond}, func(ctx context.Context) (bool, error) {
		calls++
		return calls >= 3, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestPollExhaustedByMaxAttempts(t *testing.T) {
	calls := 0
	err := Poll(context.Background(), Config{Interval: time.Millisecond, MaxAttempts: 4}, func(ctx context.Context) (bool, error) {
		calls++
		return false, nil
	})
	assert.True(t, errors.Is(err, ErrExhausted))
	assert.Equal(t, 4, calls)
}

func TestPollExhaustedByTimeout(t *testing.T) {
	err := Poll(context.Background(), Config{Interval: 5 * time.Millisecond, Timeout: 20 * time.Millisecond}, func(ctx context.Context) (bool, error) {
		return false, nil
	})
	assert.True(t, errors.Is(err, ErrExhausted))
}

func TestPollStopsOnError(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := Poll(context.Background(), Config{Interval: time.Millisecond}, func(ctx context.Context) (bool, error) {
		calls++
		return false, boom
	})
	assert.True(t, errors.Is(err, boom))
	assert.Equal(t, 1, calls)
}

func TestPollCanceledByContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Poll(ctx, Config{Interval: time.Millisecond}, func(ctx context.Context) (bool, error) {
		return false, nil
	})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrExhausted))
}

func TestDoRetriesRetryableErrors(t *testing.T) {
	transient := errors.New("transient")
	calls := 0
	err := Do(context.Background(), Config{Interval: time.Millisecond, MaxAttempts: 5}, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return transient
		}
		return nil
	}, func(err error) bool { return errors.Is(err, transient) })
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoStopsOnNonRetryable(t *testing.T) {
	fatal := errors.New("fatal")
	calls := 0
	err := Do(context.Background(), Config{Interval: time.Millisecond, MaxAttempts: 5}, func(ctx context.Context) error {
		calls++
		return fatal
	}, func(err error) bool { return false })
	assert.True(t, errors.Is(err, fatal))
	assert.Equal(t, 1, calls)
}

func TestDoExhaustedReturnsLastError(t *testing.T) {
	transient := errors.New("transient")
	calls := 0
	err := Do(context.Background(), Config{Interval: time.Millisecond, MaxAttempts: 3}, func(ctx context.Context) error {
		calls++
		return transient
	}, func(err error) bool { return true })
	assert.True(t, errors.Is(err, transient))
	assert.Equal(t, 3, calls)
}

func TestSleepInterruptedByContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Sleep(ctx, time.Second)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestSleepZeroReturnsImmediately(t *testing.T) {
	start := time.Now()
	require.NoError(t, Sleep(context.Background(), 0))
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}
