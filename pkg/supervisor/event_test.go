package supervisor

import (
	"context"
	"testing"
	"time"

	"github.com/haasonsaas/wlanboot/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventSetClear(t *testing.T) {
	ev := NewEvent()
	assert.False(t, ev.IsSet())

	ev.Set()
	ev.Set()
	assert.True(t, ev.IsSet())
	require.NoError(t, ev.Wait(context.Background()))

	ev.Clear()
	ev.Clear()
	assert.False(t, ev.IsSet())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, ev.Wait(ctx), context.DeadlineExceeded)
}

func TestEventWakesWaiters(t *testing.T) {
	ev := NewEvent()
	woke := make(chan struct{}, 3)
	for range 3 {
		go func() {
			if ev.Wait(context.Background()) == nil {
				woke <- struct{}{}
			}
		}()
	}
	time.Sleep(5 * time.Millisecond)
	ev.Set()
	for range 3 {
		select {
		case <-woke:
		case <-time.After(time.Second):
			t.Fatal("waiter not woken")
		}
	}
}

func TestEverySetsPeriodically(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ev := NewEvent()
	go Every(ctx, 5*time.Millisecond, ev)

	for range 3 {
		require.NoError(t, ev.Wait(ctx))
		ev.Clear()
	}
}

func TestReclaimerRunsUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	r := NewReclaimer(5*time.Millisecond, zerolog.Nop(), nil)
	assert.NoError(t, r.Run(ctx, nil))
}

func TestReclaimerReclaimsBeforeSuspending(t *testing.T) {
	m, err := metrics.NewCollector(prometheus.NewRegistry())
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	r := NewReclaimer(time.Second, zerolog.Nop(), m)
	require.NoError(t, r.Run(ctx, nil))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Reclaims))
}
