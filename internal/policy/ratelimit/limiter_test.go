package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLimiterWaitDelaysSameHost(t *testing.T) {
	t.Parallel()

	// 10 RPS with burst 1 means one token every 100ms.
	l := New(Config{DefaultRPS: 10, DefaultBurst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://tour.example.com/a"))
	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://tour.example.com/b"))
	require.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestLimiterHostsAreIndependent(t *testing.T) {
	t.Parallel()

	l := New(Config{DefaultRPS: 1, DefaultBurst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://a.example.com/"))
	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://b.example.com/"))
	require.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestLimiterWaitHonorsContext(t *testing.T) {
	t.Parallel()

	l := New(Config{DefaultRPS: 0.1, DefaultBurst: 1})
	require.NoError(t, l.Wait(context.Background(), "https://slow.example.com/"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.Error(t, l.Wait(ctx, "https://slow.example.com/"))
}

func TestNilLimiterNeverBlocks(t *testing.T) {
	t.Parallel()

	var l *Limiter
	require.NoError(t, l.Wait(context.Background(), "https://example.com/"))
}

func TestZeroRPSDisablesLimiting(t *testing.T) {
	t.Parallel()

	l := New(Config{})
	start := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, l.Wait(context.Background(), "https://example.com/"))
	}
	require.Less(t, time.Since(start), 50*time.Millisecond)
}
