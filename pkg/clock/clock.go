// Package clock keeps the wall clock correct once the device is online.
// Certificate validation for the telemetry link depends on it.
package clock

//go:generate mockgen -destination=mock_clock.go -package=clock github.com/haasonsaas/wlanboot/pkg/clock Source,Setter

import (
	"context"
	"sync"
	"time"

	"github.com/haasonsaas/wlanboot/pkg/metrics"
	"github.com/haasonsaas/wlanboot/pkg/retry"
	"github.com/rs/zerolog"
)

// Source reports the current time from an authoritative reference.
type Source interface {
	Now(ctx context.Context) (time.Time, error)
}

// Setter steps the system clock.
type Setter interface {
	Set(t time.Time) error
}

// Result of the most recent synchronization.
type Result struct {
	OK bool
	At time.Time
}

// Syncer steps the system clock from a Source within a retry budget.
type Syncer struct {
	source     Source
	setter     Setter
	budget     retry.Budget
	hostSynced func(context.Context) bool
	logger     zerolog.Logger
	metrics    *metrics.Collector

	mu   sync.Mutex
	last Result
}

type Option func(*Syncer)

// WithHostProbe skips stepping the clock when probe reports the host is
// already synchronized by its own daemon.
func WithHostProbe(probe func(context.Context) bool) Option {
	return func(s *Syncer) { s.hostSynced = probe }
}

func WithMetrics(c *metrics.Collector) Option {
	return func(s *Syncer) { s.metrics = c }
}

func NewSyncer(source Source, setter Setter, budget retry.Budget, logger zerolog.Logger, opts ...Option) *Syncer {
	s := &Syncer{
		source: source,
		setter: setter,
		budget: budget,
		logger: logger.With().Str("component", "clock").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sync sets the clock, trying once per budget interval until the first
// success. It reports whether the clock is now trusted. Failure is never
// fatal to the caller.
func (s *Syncer) Sync(ctx context.Context) bool {
	if s.hostSynced != nil && s.hostSynced(ctx) {
		s.logger.Debug().Msg("Host clock already synchronized")
		s.record(true)
		return true
	}

	var lastErr error
	ok, err := s.budget.PollContext(ctx, func(attempt int) bool {
		now, err := s.source.Now(ctx)
		if err != nil {
			lastErr = err
			s.logger.Debug().Err(err).Int("attempt", attempt+1).Msg("Time query failed")
			return false
		}
		if err := s.setter.Set(now); err != nil {
			lastErr = err
			s.logger.Debug().Err(err).Int("attempt", attempt+1).Msg("Setting clock failed")
			return false
		}
		s.logger.Info().Time("time", now).Msg("Clock synchronized")
		return true
	})
	if err != nil {
		lastErr = err
	}
	if !ok {
		s.logger.Warn().Err(lastErr).Int("attempts", s.budget.Attempts).Msg("Clock synchronization failed")
	}
	s.record(ok)
	return ok
}

// Last returns the result of the most recent Sync.
func (s *Syncer) Last() Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func (s *Syncer) record(ok bool) {
	s.mu.Lock()
	s.last = Result{OK: ok, At: time.Now()}
	s.mu.Unlock()
	s.metrics.ObserveClockSync(ok)
}
