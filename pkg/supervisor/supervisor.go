// Package supervisor runs the device lifecycle: it keeps the radio
// connected, falls back to provisioning when it cannot, and owns the
// background tasks that depend on connectivity.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/haasonsaas/wlanboot/pkg/clock"
	"github.com/haasonsaas/wlanboot/pkg/metrics"
	"github.com/haasonsaas/wlanboot/pkg/wlan"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/haasonsaas/wlanboot/pkg/supervisor"

// Task is a background job started once the first interface is up. ready is
// set while connectivity is healthy. A non-nil error stops the supervisor.
type Task func(ctx context.Context, ready *Event) error

// Provisioner serves the credential form on an access point interface.
type Provisioner interface {
	// Serve blocks until the operator ends provisioning or ctx is done.
	Serve(ctx context.Context, w wlan.WLAN) error
	// Shutdown stops a running Serve.
	Shutdown(ctx context.Context) error
}

// ClockSyncer sets the wall clock. Last reports the outcome of the most
// recent Sync.
type ClockSyncer interface {
	Sync(ctx context.Context) bool
	Last() clock.Result
}

// Connectivity is the part of wlan.Manager the supervisor drives.
type Connectivity interface {
	Acquire(ctx context.Context) (wlan.WLAN, wlan.Mode, error)
	ResetToAccessPoint(ctx context.Context, current wlan.WLAN) (wlan.WLAN, wlan.Mode, error)
	Teardown(w wlan.WLAN)
}

// Timings of the supervisory loop.
type Timings struct {
	// Grace lets the radio settle after the first acquisition.
	Grace time.Duration
	// Dwell tolerates transient drops before provisioning starts.
	Dwell time.Duration
	// Poll is how often a healthy link is checked.
	Poll time.Duration
	// Settle runs between leaving provisioning and the clock sync.
	Settle time.Duration
	// Reclaim is the memory reclamation interval.
	Reclaim time.Duration
}

func DefaultTimings() Timings {
	return Timings{
		Grace:   5 * time.Second,
		Dwell:   15 * time.Second,
		Poll:    time.Second,
		Settle:  time.Second,
		Reclaim: 10 * time.Second,
	}
}

// Snapshot is a point-in-time copy of the supervisor state.
type Snapshot struct {
	Mode               wlan.Mode     `json:"-"`
	ModeName           string        `json:"mode"`
	Connected          bool          `json:"connected"`
	Ready              bool          `json:"ready"`
	IfConfig           wlan.IfConfig `json:"ifconfig"`
	Provisioning       bool          `json:"provisioning"`
	ProvisioningCycles int           `json:"provisioning_cycles"`
	ClockSynced        bool          `json:"clock_synced"`
	ClockSyncedAt      time.Time     `json:"clock_synced_at,omitzero"`
	StartedAt          time.Time     `json:"started_at"`
}

type namedTask struct {
	name string
	run  Task
}

type Supervisor struct {
	device      wlan.Device
	conn        Connectivity
	provisioner Provisioner
	clock       ClockSyncer
	country     string
	timings     Timings
	tasks       []namedTask
	ready       *Event
	logger      zerolog.Logger
	metrics     *metrics.Collector
	tracer      trace.Tracer

	mu   sync.Mutex
	snap Snapshot
}

type Option func(*Supervisor)

// WithCountry sets the regulatory domain applied before the first
// acquisition.
func WithCountry(code string) Option {
	return func(s *Supervisor) { s.country = code }
}

func WithTimings(t Timings) Option {
	return func(s *Supervisor) { s.timings = t }
}

// WithTask registers a background task.
func WithTask(name string, task Task) Option {
	return func(s *Supervisor) { s.tasks = append(s.tasks, namedTask{name: name, run: task}) }
}

func WithMetrics(c *metrics.Collector) Option {
	return func(s *Supervisor) { s.metrics = c }
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Supervisor) { s.tracer = tp.Tracer(tracerName) }
}

func New(device wlan.Device, conn Connectivity, provisioner Provisioner, syncer ClockSyncer, logger zerolog.Logger, opts ...Option) *Supervisor {
	s := &Supervisor{
		device:      device,
		conn:        conn,
		provisioner: provisioner,
		clock:       syncer,
		timings:     DefaultTimings(),
		ready:       NewEvent(),
		logger:      logger.With().Str("component", "supervisor").Logger(),
		tracer:      otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ready is set while connectivity is healthy.
func (s *Supervisor) Ready() *Event {
	return s.ready
}

// Snapshot is safe for concurrent use.
func (s *Supervisor) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.snap
	snap.Ready = s.ready.IsSet()
	return snap
}

// current is the interface owned by the running loop.
type current struct {
	w    wlan.WLAN
	mode wlan.Mode
}

// Run supervises connectivity until ctx is cancelled, which returns nil,
// or a fatal error occurs. Cleanup runs on every path.
func (s *Supervisor) Run(ctx context.Context) (err error) {
	parent := ctx
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.update(func(snap *Snapshot) { snap.StartedAt = time.Now().UTC() })

	if s.country != "" {
		if err := s.device.SetCountry(s.country); err != nil {
			s.logger.Warn().Err(err).Str("country", s.country).Msg("Failed to set regulatory domain")
		}
	}

	w, mode, err := s.conn.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire interface: %w", err)
	}
	cur := &current{w: w, mode: mode}
	s.observeInterface(cur)

	tasks := append([]namedTask{{
		name: "reclaim",
		run:  NewReclaimer(s.timings.Reclaim, s.logger, s.metrics).Run,
	}}, s.tasks...)
	fatal := make(chan error, len(tasks))
	var wg sync.WaitGroup
	for _, t := range tasks {
		wg.Add(1)
		go func(t namedTask) {
			defer wg.Done()
			if err := runTask(ctx, t.name, t.run, s.ready); err != nil && ctx.Err() == nil {
				s.logger.Error().Err(err).Str("task", t.name).Msg("Background task failed")
				fatal <- err
			}
		}(t)
	}

	defer func() {
		cancel()
		wg.Wait()
		s.conn.Teardown(cur.w)
		s.setReady(false)
		s.logger.Info().Msg("Supervisor stopped")
	}()

	err = s.supervise(ctx, cur, fatal)
	if errors.Is(err, context.Canceled) && parent.Err() != nil {
		s.logger.Info().Msg("Interrupted, cleaning up")
		return nil
	}
	return err
}

func (s *Supervisor) supervise(ctx context.Context, cur *current, fatal <-chan error) error {
	if err := s.wait(ctx, s.timings.Grace, fatal); err != nil {
		return err
	}
	if !s.hasIssue(cur) {
		s.setReady(true)
		s.syncClock(ctx)
	}

	for {
		if !s.hasIssue(cur) {
			if err := s.wait(ctx, s.timings.Poll, fatal); err != nil {
				return err
			}
			continue
		}

		s.logger.Warn().Stringer("mode", cur.mode).Dur("dwell", s.timings.Dwell).Msg("Connectivity issue detected")
		if err := s.wait(ctx, s.timings.Dwell, fatal); err != nil {
			return err
		}
		if !s.hasIssue(cur) {
			s.logger.Info().Msg("Connectivity recovered")
			continue
		}

		s.setReady(false)
		if cur.mode == wlan.Station {
			w, mode, err := s.conn.ResetToAccessPoint(ctx, cur.w)
			cur.w, cur.mode = w, mode
			if err != nil {
				return fmt.Errorf("reset to access point: %w", err)
			}
			s.observeInterface(cur)
		}

		for s.hasIssue(cur) {
			if err := s.provision(ctx, cur, fatal); err != nil {
				return err
			}
		}

		s.setReady(true)
		if err := s.wait(ctx, s.timings.Settle, fatal); err != nil {
			return err
		}
		s.syncClock(ctx)
	}
}

// provision serves the form on the access point, then tears it down and
// acquires again with whatever credentials are now stored.
func (s *Supervisor) provision(ctx context.Context, cur *current, fatal <-chan error) error {
	ctx, span := s.tracer.Start(ctx, "supervisor.provision")
	defer span.End()

	s.update(func(snap *Snapshot) { snap.Provisioning = true })
	defer s.update(func(snap *Snapshot) { snap.Provisioning = false })

	// Cancelling serveCtx stops a Serve that has not registered its
	// listener yet, which Shutdown cannot reach.
	serveCtx, stopServe := context.WithCancel(ctx)
	defer stopServe()
	done := make(chan error, 1)
	go func() { done <- s.provisioner.Serve(serveCtx, cur.w) }()

	select {
	case err := <-done:
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			span.RecordError(err)
			return fmt.Errorf("provisioning server: %w", err)
		}
	case err := <-fatal:
		s.stopProvisioner(stopServe, done)
		return err
	}

	s.metrics.ObserveProvisioningCycle()
	s.update(func(snap *Snapshot) { snap.ProvisioningCycles++ })

	s.conn.Teardown(cur.w)
	cur.w = nil
	w, mode, err := s.conn.Acquire(ctx)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("acquire interface: %w", err)
	}
	cur.w, cur.mode = w, mode
	span.SetAttributes(attribute.String("wlan.mode", mode.String()))
	s.observeInterface(cur)
	return nil
}

func (s *Supervisor) stopProvisioner(stopServe context.CancelFunc, done <-chan error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.provisioner.Shutdown(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Provisioning server shutdown failed")
	}
	stopServe()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

// wait sleeps for d, returning early on cancellation or a task failure.
func (s *Supervisor) wait(ctx context.Context, d time.Duration, fatal <-chan error) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-fatal:
		return err
	case <-timer.C:
		return nil
	}
}

func (s *Supervisor) hasIssue(cur *current) bool {
	issue := wlan.HasIssue(cur.w, cur.mode)
	s.update(func(snap *Snapshot) { snap.Connected = cur.mode == wlan.Station && !issue })
	return issue
}

func (s *Supervisor) syncClock(ctx context.Context) {
	if s.clock == nil {
		return
	}
	s.clock.Sync(ctx)
	last := s.clock.Last()
	s.update(func(snap *Snapshot) {
		snap.ClockSynced = last.OK
		if last.OK {
			snap.ClockSyncedAt = last.At.UTC()
		}
	})
}

func (s *Supervisor) setReady(ready bool) {
	if ready {
		s.ready.Set()
	} else {
		s.ready.Clear()
	}
	s.metrics.SetReady(ready)
}

func (s *Supervisor) observeInterface(cur *current) {
	cfg := cur.w.IfConfig()
	s.update(func(snap *Snapshot) {
		snap.Mode = cur.mode
		snap.ModeName = cur.mode.String()
		snap.IfConfig = cfg
	})
	s.logger.Info().Stringer("mode", cur.mode).Str("ip", cfg.IP).Msg("Interface acquired")
}

func (s *Supervisor) update(fn func(*Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.snap)
}

// runTask converts a panic in a task into an error.
func runTask(ctx context.Context, name string, task Task, ready *Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v", name, r)
		}
	}()
	if err := task(ctx, ready); err != nil {
		return fmt.Errorf("task %s: %w", name, err)
	}
	return nil
}
