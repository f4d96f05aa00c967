package supervisor

import (
	"context"
	"sync"
	"time"
)

// Event is a level-triggered flag that goroutines can wait on. Set and
// Clear are idempotent.
type Event struct {
	mu sync.Mutex
	ch chan struct{}
	on bool
}

func NewEvent() *Event {
	return &Event{ch: make(chan struct{})}
}

func (e *Event) Set() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.on {
		return
	}
	e.on = true
	close(e.ch)
}

func (e *Event) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.on {
		return
	}
	e.on = false
	e.ch = make(chan struct{})
}

func (e *Event) IsSet() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.on
}

// Wait blocks until the event is set or ctx is done.
func (e *Event) Wait(ctx context.Context) error {
	e.mu.Lock()
	ch := e.ch
	e.mu.Unlock()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Every sets ev each time d elapses until ctx is done.
func Every(ctx context.Context, d time.Duration, ev *Event) {
	ticker := time.NewTicker(d)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ev.Set()
		}
	}
}
