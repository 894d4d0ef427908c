package rates

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/tripsync/internal/trip"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeProvider struct {
	calls   atomic.Int32
	release chan struct{}
	err     error
	rates   map[string]float64
}

func (p *fakeProvider) Rates(_ context.Context, _ string) (map[string]float64, error) {
	p.calls.Add(1)
	if p.release != nil {
		<-p.release
	}
	if p.err != nil {
		return nil, p.err
	}
	return p.rates, nil
}

func newClock() *manualClock {
	return &manualClock{now: time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)}
}

func TestGetRateCachesTable(t *testing.T) {
	t.Parallel()

	p := &fakeProvider{rates: map[string]float64{"KRW": 1350.5, "JPY": 151.2}}
	c := NewCache(p, newClock())
	ctx := context.Background()

	rate, err := c.GetRate(ctx, "usd", "krw")
	require.NoError(t, err)
	require.InDelta(t, 1350.5, rate, 1e-9)

	rate, err = c.GetRate(ctx, "USD", "JPY")
	require.NoError(t, err)
	require.InDelta(t, 151.2, rate, 1e-9)
	require.Equal(t, int32(1), p.calls.Load())

	_, err = c.GetRate(ctx, "USD", "XYZ")
	require.ErrorIs(t, err, trip.ErrNotFound)

	rate, err = c.GetRate(ctx, "EUR", "EUR")
	require.NoError(t, err)
	require.InDelta(t, 1.0, rate, 0)
	require.Equal(t, int32(1), p.calls.Load())
}

func TestConcurrentColdCallsShareOneFetch(t *testing.T) {
	t.Parallel()

	p := &fakeProvider{rates: map[string]float64{"KRW": 1350}, release: make(chan struct{})}
	c := NewCache(p, newClock())

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.GetRate(context.Background(), "USD", "KRW")
			errs <- err
		}()
	}
	require.Eventually(t, func() bool { return p.calls.Load() == 1 }, time.Second, time.Millisecond)
	// Give the second caller time to join the in-flight call before releasing it.
	time.Sleep(20 * time.Millisecond)
	close(p.release)
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, int32(1), p.calls.Load())
}

func TestExpiredTableIsNotServedOnFailure(t *testing.T) {
	t.Parallel()

	clock := newClock()
	p := &fakeProvider{rates: map[string]float64{"KRW": 1350}}
	c := NewCache(p, clock, WithTTL(time.Minute))
	ctx := context.Background()

	_, err := c.GetRate(ctx, "USD", "KRW")
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	boom := errors.New("503 from upstream")
	p.err = boom

	_, err = c.GetRate(ctx, "USD", "KRW")
	require.ErrorIs(t, err, boom)
	require.ErrorIs(t, err, trip.ErrUpstreamUnavailable)
	require.Contains(t, err.Error(), "refresh USD rates")
	require.Equal(t, int32(2), p.calls.Load())
}

func TestColdFailureIsUpstreamUnavailable(t *testing.T) {
	t.Parallel()

	p := &fakeProvider{err: errors.New("dial tcp: connection refused")}
	c := NewCache(p, newClock())

	_, err := c.GetRate(context.Background(), "USD", "KRW")
	require.ErrorIs(t, err, trip.ErrUpstreamUnavailable)
}

func TestExpiredTableRefetches(t *testing.T) {
	t.Parallel()

	clock := newClock()
	p := &fakeProvider{rates: map[string]float64{"KRW": 1350}}
	c := NewCache(p, clock)
	ctx := context.Background()

	_, err := c.GetRate(ctx, "USD", "KRW")
	require.NoError(t, err)
	clock.Advance(DefaultTTL - time.Second)
	_, err = c.GetRate(ctx, "USD", "KRW")
	require.NoError(t, err)
	require.Equal(t, int32(1), p.calls.Load())

	clock.Advance(2 * time.Second)
	_, err = c.GetRate(ctx, "USD", "KRW")
	require.NoError(t, err)
	require.Equal(t, int32(2), p.calls.Load())
}
