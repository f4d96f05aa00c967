package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBudgetPollStopsOnSuccess(t *testing.T) {
	b := Budget{Attempts: 5}
	var calls int
	ok := b.Poll(func(attempt int) bool {
		calls++
		return attempt == 2
	})
	require.True(t, ok)
	assert.Equal(t, 3, calls)
}

func TestBudgetPollExhausts(t *testing.T) {
	b := Budget{Attempts: 30}
	var calls int
	ok := b.Poll(func(int) bool {
		calls++
		return false
	})
	require.False(t, ok)
	assert.Equal(t, 30, calls)
}

func TestBudgetPollAlwaysTriesOnce(t *testing.T) {
	var calls int
	Budget{}.Poll(func(int) bool {
		calls++
		return false
	})
	assert.Equal(t, 1, calls)
}

func TestBudgetPollSleepsBetweenAttempts(t *testing.T) {
	b := Budget{Attempts: 3, Delay: 5 * time.Millisecond}
	start := time.Now()
	b.Poll(func(int) bool { return false })
	// two sleeps, none after the last attempt
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
}

func TestBudgetPollContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	b := Budget{Attempts: 30, Delay: time.Hour}
	var calls int
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	ok, err := b.PollContext(ctx, func(int) bool {
		calls++
		return false
	})
	assert.False(t, ok)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestBudgetPollContextExhausts(t *testing.T) {
	b := Budget{Attempts: 3, Delay: time.Millisecond}
	var calls int
	ok, err := b.PollContext(context.Background(), func(int) bool {
		calls++
		return false
	})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 3, calls)
}

func TestBackoffWithJitterBounds(t *testing.T) {
	initial := 100 * time.Millisecond
	maxDelay := 800 * time.Millisecond
	for attempt := 0; attempt < 6; attempt++ {
		delay := backoffWithJitter(initial, maxDelay, attempt)
		if delay < initial/2 {
			t.Fatalf("delay below jitter floor: %v", delay)
		}
		if delay > maxDelay {
			t.Fatalf("delay exceeded max: %v", delay)
		}
	}
}

func TestBackoffStopsAfterSuccess(t *testing.T) {
	b := NewBackoff(time.Millisecond, 2*time.Millisecond, 3, zerolog.Nop())
	var attempts int
	err := b.Do(context.Background(), func() error {
		attempts++
		if attempts < 2 {
			return errors.New("transient")
		}
		return nil
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestBackoffHonoursRetryable(t *testing.T) {
	b := NewBackoff(time.Millisecond, time.Millisecond, 5, zerolog.Nop())
	permanent := errors.New("permanent")
	var attempts int
	err := b.Do(context.Background(), func() error {
		attempts++
		return permanent
	}, func(err error) bool { return !errors.Is(err, permanent) })
	require.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, attempts)
}

func TestBackoffGivesUpAfterMaxRetries(t *testing.T) {
	b := NewBackoff(time.Millisecond, time.Millisecond, 2, zerolog.Nop())
	var attempts int
	err := b.Do(context.Background(), func() error {
		attempts++
		return errors.New("down")
	}, nil)
	require.Error(t, err)
	assert.Equal(t, 3, attempts)
}
