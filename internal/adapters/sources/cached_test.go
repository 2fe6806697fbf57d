package sources

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/lcalzada-xor/cyberiq/internal/cache"
	"github.com/lcalzada-xor/cyberiq/internal/core/domain"
)

// MockFetcher is a mock of ports.SourceFetcher
type MockFetcher struct {
	mock.Mock
}

func (m *MockFetcher) Name() domain.Source {
	args := m.Called()
	return args.Get(0).(domain.Source)
}

func (m *MockFetcher) Fetch(ctx context.Context, windowDays int) ([]domain.VulnerabilityRecord, error) {
	args := m.Called(ctx, windowDays)
	records, _ := args.Get(0).([]domain.VulnerabilityRecord)
	return records, args.Error(1)
}

func newStore() *cache.TTLCache[[]domain.VulnerabilityRecord] {
	return cache.New[[]domain.VulnerabilityRecord]("sources-test")
}

func TestCachedAdapter_MissThenHit(t *testing.T) {
	fetcher := new(MockFetcher)
	fetcher.On("Name").Return(domain.SourceExploitedCatalog)
	fetcher.On("Fetch", mock.Anything, 0).Return([]domain.VulnerabilityRecord{
		domain.NewRecord("CVE-2024-0001", domain.SourceExploitedCatalog),
	}, nil).Once()

	var states []domain.FetchState
	a := NewCachedAdapter(fetcher, newStore(), time.Minute)
	a.OnState(func(_ domain.Source, s domain.FetchState) { states = append(states, s) })

	first := a.Fetch(context.Background(), 0)
	assert.Equal(t, domain.FetchFetched, first.State)
	require.Len(t, first.Records, 1)

	second := a.Fetch(context.Background(), 0)
	assert.Equal(t, domain.FetchCacheHit, second.State)
	require.Len(t, second.Records, 1)

	assert.Equal(t, []domain.FetchState{domain.FetchFetched, domain.FetchCacheHit}, states)
	fetcher.AssertNumberOfCalls(t, "Fetch", 1)
}

func TestCachedAdapter_KeyedByWindow(t *testing.T) {
	fetcher := new(MockFetcher)
	fetcher.On("Name").Return(domain.SourceVulnerabilityDatabase)
	fetcher.On("Fetch", mock.Anything, 30).Return([]domain.VulnerabilityRecord{}, nil).Once()
	fetcher.On("Fetch", mock.Anything, 90).Return([]domain.VulnerabilityRecord{}, nil).Once()

	a := NewCachedAdapter(fetcher, newStore(), time.Minute)
	a.Fetch(context.Background(), 30)
	a.Fetch(context.Background(), 90)
	a.Fetch(context.Background(), 30)

	fetcher.AssertExpectations(t)
}

func TestCachedAdapter_FailureDegradesToEmpty(t *testing.T) {
	fetcher := new(MockFetcher)
	fetcher.On("Name").Return(domain.SourceAdvisoryFeed)
	upstreamErr := &domain.SourceError{Source: domain.SourceAdvisoryFeed, Op: "fetch", Err: errors.New("boom")}
	fetcher.On("Fetch", mock.Anything, 7).Return(nil, upstreamErr)

	store := newStore()
	a := NewCachedAdapter(fetcher, store, time.Minute)

	res := a.Fetch(context.Background(), 7)
	assert.Equal(t, domain.FetchFailed, res.State)
	assert.Empty(t, res.Records)
	assert.ErrorIs(t, res.Err, domain.ErrSourceUnavailable)
	assert.Equal(t, 0, store.Len(), "failures are not cached")
}

func TestCachedAdapter_ReturnsCopies(t *testing.T) {
	r := domain.NewRecord("CVE-2024-0001", domain.SourceVulnerabilityDatabase)
	r.SetSeverity(5)

	fetcher := new(MockFetcher)
	fetcher.On("Name").Return(domain.SourceVulnerabilityDatabase)
	fetcher.On("Fetch", mock.Anything, 1).Return([]domain.VulnerabilityRecord{r}, nil).Once()

	a := NewCachedAdapter(fetcher, newStore(), time.Minute)
	res := a.Fetch(context.Background(), 1)
	res.Records[0].SetSeverity(9.9)

	again := a.Fetch(context.Background(), 1)
	assert.Equal(t, 5.0, *again.Records[0].SeverityScore)
}

type slowFetcher struct {
	calls atomic.Int32
	delay time.Duration
}

func (s *slowFetcher) Name() domain.Source { return domain.SourceVulnerabilityDatabase }

func (s *slowFetcher) Fetch(ctx context.Context, windowDays int) ([]domain.VulnerabilityRecord, error) {
	s.calls.Add(1)
	time.Sleep(s.delay)
	return []domain.VulnerabilityRecord{domain.NewRecord("CVE-2024-9999", domain.SourceVulnerabilityDatabase)}, nil
}

func TestCachedAdapter_ConcurrentMissesShareOneCall(t *testing.T) {
	f := &slowFetcher{delay: 50 * time.Millisecond}
	a := NewCachedAdapter(f, newStore(), time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := a.Fetch(context.Background(), 90)
			assert.Len(t, res.Records, 1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), f.calls.Load())
}

func TestCachedAdapter_CancelledCallerStillPopulatesCache(t *testing.T) {
	f := &slowFetcher{delay: 50 * time.Millisecond}
	store := newStore()
	a := NewCachedAdapter(f, store, time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	res := a.Fetch(ctx, 90)
	assert.Equal(t, domain.FetchFailed, res.State)

	assert.Eventually(t, func() bool {
		_, ok := a.Cached(90)
		return ok
	}, time.Second, 10*time.Millisecond)
}

func TestCachedAdapter_RefreshKeepsOldValueOnFailure(t *testing.T) {
	fetcher := new(MockFetcher)
	fetcher.On("Name").Return(domain.SourceExploitedCatalog)
	fetcher.On("Fetch", mock.Anything, 0).Return([]domain.VulnerabilityRecord{
		domain.NewRecord("CVE-2024-0001", domain.SourceExploitedCatalog),
	}, nil).Once()
	fetcher.On("Fetch", mock.Anything, 0).Return(nil, errors.New("down")).Once()

	a := NewCachedAdapter(fetcher, newStore(), time.Minute)
	require.NoError(t, a.Refresh(context.Background(), 0))
	assert.Error(t, a.Refresh(context.Background(), 0))

	cached, ok := a.Cached(0)
	require.True(t, ok)
	assert.Len(t, cached, 1)
}
