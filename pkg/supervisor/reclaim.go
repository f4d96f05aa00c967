package supervisor

import (
	"context"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/haasonsaas/wlanboot/pkg/metrics"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/mem"
)

// Reclaimer periodically collects garbage and returns freed memory to the
// OS. Its cadence is independent of connectivity.
type Reclaimer struct {
	interval time.Duration
	logger   zerolog.Logger
	metrics  *metrics.Collector
	hostMem  func(ctx context.Context) (*mem.VirtualMemoryStat, error)
}

func NewReclaimer(interval time.Duration, logger zerolog.Logger, m *metrics.Collector) *Reclaimer {
	if interval <= 0 {
		interval = DefaultTimings().Reclaim
	}
	return &Reclaimer{
		interval: interval,
		logger:   logger.With().Str("task", "reclaim").Logger(),
		metrics:  m,
		hostMem:  mem.VirtualMemoryWithContext,
	}
}

// Run is a Task. It reclaims, then suspends for the interval, until ctx is
// done.
func (r *Reclaimer) Run(ctx context.Context, _ *Event) error {
	tick := NewEvent()
	go Every(ctx, r.interval, tick)
	for {
		r.reclaim(ctx)
		if err := tick.Wait(ctx); err != nil {
			return nil
		}
		tick.Clear()
	}
}

func (r *Reclaimer) reclaim(ctx context.Context) {
	runtime.GC()
	debug.FreeOSMemory()

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	r.metrics.ObserveReclaim(ms.HeapAlloc)

	event := r.logger.Debug().Uint64("heap_alloc", ms.HeapAlloc).Uint64("heap_sys", ms.HeapSys)
	if vm, err := r.hostMem(ctx); err == nil {
		event = event.Uint64("host_available", vm.Available).Float64("host_used_percent", vm.UsedPercent)
	}
	event.Msg("Memory reclaimed")
}
