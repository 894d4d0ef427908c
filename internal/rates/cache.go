// Package rates serves currency conversion rates from a TTL cache that holds
// whole upstream tables per base currency.
package rates

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/JakeFAU/tripsync/internal/metrics"
	"github.com/JakeFAU/tripsync/internal/trip"
)

// DefaultTTL is how long a fetched table is served.
const DefaultTTL = 10 * time.Minute

type table struct {
	rates     map[string]float64
	fetchedAt time.Time
}

// Cache implements GetRate over a trip.RateProvider.
type Cache struct {
	provider trip.RateProvider
	clock    trip.Clock
	ttl      time.Duration
	logger   *zap.Logger

	mu     sync.RWMutex
	tables map[string]table
	group  singleflight.Group
}

// Option customizes a Cache.
type Option func(*Cache)

// WithTTL overrides DefaultTTL.
func WithTTL(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.ttl = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewCache builds a Cache.
func NewCache(provider trip.RateProvider, clock trip.Clock, opts ...Option) *Cache {
	c := &Cache{
		provider: provider,
		clock:    clock,
		ttl:      DefaultTTL,
		logger:   zap.NewNop(),
		tables:   make(map[string]table),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.Named("rates")
	return c
}

// GetRate returns how many units of to one unit of from buys. Expired tables
// are never served: a failed refresh fails the call with
// trip.ErrUpstreamUnavailable whether or not the cache was warm.
func (c *Cache) GetRate(ctx context.Context, from, to string) (float64, error) {
	from = strings.ToUpper(strings.TrimSpace(from))
	to = strings.ToUpper(strings.TrimSpace(to))
	if from == "" || to == "" {
		return 0, fmt.Errorf("currency codes are required")
	}
	if from == to {
		return 1, nil
	}

	t, warm, fresh := c.lookup(from)
	if fresh {
		metrics.ObserveRateLookup("hit")
	} else {
		metrics.ObserveRateLookup("miss")
		var err error
		t, err = c.refresh(ctx, from)
		if err != nil {
			c.logger.Warn("rate refresh failed",
				zap.String("base", from),
				zap.Bool("warm", warm),
				zap.Error(err),
			)
			if warm {
				return 0, fmt.Errorf("refresh %s rates: %w", from, errors.Join(trip.ErrUpstreamUnavailable, err))
			}
			return 0, fmt.Errorf("fetch %s rates: %w", from, errors.Join(trip.ErrUpstreamUnavailable, err))
		}
	}

	rate, ok := t.rates[to]
	if !ok {
		return 0, fmt.Errorf("rate %s->%s: %w", from, to, trip.ErrNotFound)
	}
	return rate, nil
}

func (c *Cache) lookup(base string) (table, bool, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tables[base]
	if !ok {
		return table{}, false, false
	}
	return t, true, c.clock.Now().Sub(t.fetchedAt) < c.ttl
}

// refresh collapses concurrent misses for the same base into one upstream call.
func (c *Cache) refresh(ctx context.Context, base string) (table, error) {
	v, err, _ := c.group.Do(base, func() (interface{}, error) {
		if t, _, fresh := c.lookup(base); fresh {
			return t, nil
		}
		// Detached so one caller's cancellation doesn't fail the others sharing this call.
		rates, err := c.provider.Rates(context.WithoutCancel(ctx), base)
		if err != nil {
			return table{}, err
		}
		t := table{rates: rates, fetchedAt: c.clock.Now()}
		c.mu.Lock()
		c.tables[base] = t
		c.mu.Unlock()
		return t, nil
	})
	if err != nil {
		return table{}, err
	}
	return v.(table), nil
}
