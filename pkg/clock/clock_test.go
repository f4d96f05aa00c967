package clock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/beevik/ntp"
	"github.com/haasonsaas/wlanboot/pkg/retry"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var fastBudget = retry.Budget{Attempts: 30, Delay: time.Millisecond}

func TestSyncStopsAtFirstSuccess(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	source := NewMockSource(ctrl)
	setter := NewMockSetter(ctrl)
	gomock.InOrder(
		source.EXPECT().Now(gomock.Any()).Return(time.Time{}, errors.New("timeout")).Times(2),
		source.EXPECT().Now(gomock.Any()).Return(now, nil),
		setter.EXPECT().Set(now).Return(nil),
	)

	s := NewSyncer(source, setter, fastBudget, zerolog.Nop())
	assert.True(t, s.Sync(context.Background()))
	assert.True(t, s.Last().OK)
	assert.False(t, s.Last().At.IsZero())
}

func TestSyncGivesUpAfterBudget(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	source := NewMockSource(ctrl)
	setter := NewMockSetter(ctrl)
	source.EXPECT().Now(gomock.Any()).Return(time.Time{}, errors.New("unreachable")).Times(30)

	s := NewSyncer(source, setter, fastBudget, zerolog.Nop())
	assert.False(t, s.Sync(context.Background()))
	assert.False(t, s.Last().OK)
}

func TestSyncRetriesWhenSettingFails(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	source := NewMockSource(ctrl)
	setter := NewMockSetter(ctrl)
	source.EXPECT().Now(gomock.Any()).Return(now, nil).Times(3)
	setter.EXPECT().Set(now).Return(errors.New("operation not permitted")).Times(3)

	s := NewSyncer(source, setter, retry.Budget{Attempts: 3, Delay: time.Millisecond}, zerolog.Nop())
	assert.False(t, s.Sync(context.Background()))
}

func TestSyncSkipsWhenHostSynchronized(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	source := NewMockSource(ctrl)
	setter := NewMockSetter(ctrl)

	s := NewSyncer(source, setter, fastBudget, zerolog.Nop(),
		WithHostProbe(func(context.Context) bool { return true }))
	assert.True(t, s.Sync(context.Background()))
}

func TestSyncHonoursCancellation(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx, cancel := context.WithCancel(context.Background())
	source := NewMockSource(ctrl)
	setter := NewMockSetter(ctrl)
	source.EXPECT().Now(gomock.Any()).DoAndReturn(func(context.Context) (time.Time, error) {
		cancel()
		return time.Time{}, errors.New("timeout")
	})

	s := NewSyncer(source, setter, retry.Budget{Attempts: 30, Delay: time.Hour}, zerolog.Nop())
	assert.False(t, s.Sync(ctx))
}

func TestNTPSourceFallsThroughServers(t *testing.T) {
	var asked []string
	src := NewNTPSource([]string{"a.example", "b.example"}, time.Second)
	src.query = func(host string, _ ntp.QueryOptions) (*ntp.Response, error) {
		asked = append(asked, host)
		if host == "a.example" {
			return nil, errors.New("no route")
		}
		return &ntp.Response{Stratum: 2, ClockOffset: time.Hour, Leap: ntp.LeapNoWarning, RTT: time.Millisecond}, nil
	}

	got, err := src.Now(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a.example", "b.example"}, asked)
	assert.WithinDuration(t, time.Now().Add(time.Hour), got, time.Minute)
}

func TestNTPSourceReportsAllFailures(t *testing.T) {
	src := NewNTPSource([]string{"a.example", "b.example"}, time.Second)
	src.query = func(host string, _ ntp.QueryOptions) (*ntp.Response, error) {
		return nil, errors.New("refused")
	}

	_, err := src.Now(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a.example")
	assert.Contains(t, err.Error(), "b.example")
}

func TestParseChronyTracking(t *testing.T) {
	assert.True(t, parseChronyTracking("Reference ID    : C0A80101\nLeap status     : Normal\n"))
	assert.False(t, parseChronyTracking("Leap status     : Not synchronised\n"))
	assert.False(t, parseChronyTracking(""))
}
