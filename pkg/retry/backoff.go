package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/rs/zerolog"
)

// Backoff retries an operation with exponential backoff and jitter.
type Backoff struct {
	initial    time.Duration
	max        time.Duration
	maxRetries int
	logger     zerolog.Logger
}

func NewBackoff(initial, max time.Duration, maxRetries int, logger zerolog.Logger) *Backoff {
	if initial <= 0 {
		initial = 500 * time.Millisecond
	}
	if max < initial {
		max = initial
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Backoff{
		initial:    initial,
		max:        max,
		maxRetries: maxRetries,
		logger:     logger,
	}
}

// Do runs fn until it succeeds, the retries are used up, retryable rejects
// the error or ctx is done. The last error is returned.
func (b *Backoff) Do(ctx context.Context, fn func() error, retryable func(error) bool) error {
	var attempt int
	for {
		err := fn()
		if err == nil {
			return nil
		}
		if attempt >= b.maxRetries || (retryable != nil && !retryable(err)) {
			return err
		}
		delay := backoffWithJitter(b.initial, b.max, attempt)
		b.logger.Warn().Err(err).Int("attempt", attempt+1).Dur("sleep", delay).Msg("Retrying operation")
		select {
		case <-ctx.Done():
			return err
		case <-time.After(delay):
		}
		attempt++
	}
}

func backoffWithJitter(initial, max time.Duration, attempt int) time.Duration {
	b := float64(initial) * math.Pow(2, float64(attempt))
	if b > float64(max) {
		b = float64(max)
	}
	j := b / 2
	return time.Duration(j + rand.Float64()*j)
}
