package retry

import (
	"context"
	"time"
)

// Budget bounds a wait: at most Attempts polls, Delay apart.
type Budget struct {
	Attempts int
	Delay    time.Duration
}

// Default budgets for the radio and clock operations.
var (
	ActivateBudget   = Budget{Attempts: 5, Delay: time.Second}
	DeactivateBudget = Budget{Attempts: 5, Delay: time.Second}
	ConnectBudget    = Budget{Attempts: 30, Delay: time.Second}
	TimeSyncBudget   = Budget{Attempts: 30, Delay: time.Second}
)

// Poll evaluates cond up to b.Attempts times, sleeping b.Delay after each
// failed attempt except the last. It reports whether cond succeeded before
// the budget ran out. What exhaustion means is up to the caller.
func (b Budget) Poll(cond func(attempt int) bool) bool {
	for attempt := range b.attempts() {
		if cond(attempt) {
			return true
		}
		if attempt < b.Attempts-1 && b.Delay > 0 {
			time.Sleep(b.Delay)
		}
	}
	return false
}

// PollContext is Poll with a cancellable sleep. It returns ctx.Err() when
// ctx ends before cond succeeds or the budget runs out.
func (b Budget) PollContext(ctx context.Context, cond func(attempt int) bool) (bool, error) {
	for attempt := range b.attempts() {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		if cond(attempt) {
			return true, nil
		}
		if attempt == b.Attempts-1 || b.Delay <= 0 {
			continue
		}
		timer := time.NewTimer(b.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false, ctx.Err()
		case <-timer.C:
		}
	}
	return false, nil
}

func (b Budget) attempts() int {
	if b.Attempts < 1 {
		return 1
	}
	return b.Attempts
}

// Scaled returns the budget with its delay replaced.
func (b Budget) Scaled(delay time.Duration) Budget {
	b.Delay = delay
	return b
}
