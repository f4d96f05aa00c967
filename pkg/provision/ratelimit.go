package provision

import (
	"sync"
	"time"
)

type rateRecord struct {
	count int
	reset time.Time
}

// RateLimiter counts requests per client within a fixed window.
type RateLimiter struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[string]rateRecord
}

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{now: time.Now, entries: make(map[string]rateRecord)}
}

// Allow reports whether key may make another request. A limit of zero or
// less disables limiting.
func (rl *RateLimiter) Allow(key string, limit int, window time.Duration) bool {
	if limit <= 0 {
		return true
	}
	now := rl.now()
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rec, ok := rl.entries[key]
	if !ok || now.After(rec.reset) {
		rl.prune(now)
		rec = rateRecord{reset: now.Add(window)}
	}
	if rec.count >= limit {
		return false
	}
	rec.count++
	rl.entries[key] = rec
	return true
}

// Len is the number of tracked clients.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.entries)
}

func (rl *RateLimiter) prune(now time.Time) {
	for k, rec := range rl.entries {
		if now.After(rec.reset) {
			delete(rl.entries, k)
		}
	}
}
