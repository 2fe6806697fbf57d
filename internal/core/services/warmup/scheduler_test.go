package warmup

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lcalzada-xor/cyberiq/internal/core/domain"
)

type countingRefresher struct {
	calls atomic.Int32
	err   error
	days  atomic.Int32
}

func (c *countingRefresher) Refresh(_ context.Context, windowDays int) error {
	c.calls.Add(1)
	c.days.Store(int32(windowDays))
	return c.err
}

func TestWarmAll(t *testing.T) {
	kev := &countingRefresher{}
	nvd := &countingRefresher{err: errors.New("rate limited")}

	s := NewScheduler([]Target{
		{Source: domain.SourceExploitedCatalog, WindowDays: 0, Refresher: kev},
		{Source: domain.SourceVulnerabilityDatabase, WindowDays: 90, Refresher: nvd},
	}, time.Second)

	ok := s.WarmAll(context.Background())

	assert.Equal(t, 1, ok)
	assert.Equal(t, int32(1), kev.calls.Load())
	assert.Equal(t, int32(1), nvd.calls.Load())
	assert.Equal(t, int32(90), nvd.days.Load())
}

func TestSchedule_InvalidSpec(t *testing.T) {
	s := NewScheduler(nil, 0)
	assert.Error(t, s.Schedule("every now and then"))
}

func TestSchedule_Runs(t *testing.T) {
	r := &countingRefresher{}
	s := NewScheduler([]Target{{Source: domain.SourceAdvisoryFeed, WindowDays: 30, Refresher: r}}, time.Second)

	require.NoError(t, s.Schedule("@every 1s"))
	s.Start()
	defer s.Stop(context.Background())

	assert.Eventually(t, func() bool { return r.calls.Load() >= 1 }, 3*time.Second, 50*time.Millisecond)
}

func TestStop_Idempotent(t *testing.T) {
	s := NewScheduler(nil, 0)
	s.Stop(context.Background())
	s.Start()
	s.Stop(context.Background())
	s.Stop(context.Background())
}

func TestTargetLabel(t *testing.T) {
	assert.Equal(t, "kev", Target{Source: domain.SourceExploitedCatalog}.label())
	assert.Equal(t, "attack", Target{Name: "attack"}.label())
}

func TestWarmAll_NamedTarget(t *testing.T) {
	catalog := &countingRefresher{}
	s := NewScheduler([]Target{{Name: "attack", Refresher: catalog}}, time.Second)

	assert.Equal(t, 1, s.WarmAll(context.Background()))
	assert.Equal(t, int32(1), catalog.calls.Load())
}
