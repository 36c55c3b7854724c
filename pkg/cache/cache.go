// Package cache memoizes JSON payloads produced for API requests.
//
// Lookups go through an in-process tier first and an optional Redis tier second; the producer
// runs only when both miss.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/theory-cloud/musicapi/pkg/observability"
)

// Source reports where a payload came from.
type Source string

const (
	SourceMemory Source = "memory-cache"
	SourceRedis  Source = "redis-cache"
	SourceAPI    Source = "api"
)

const (
	MetricL1Hit          = "L1CacheHit"
	MetricL2Hit          = "L2CacheHit"
	MetricMiss           = "CacheMiss"
	MetricDataFetchError = "CacheDataFetchError"
	MetricL2Error        = "L2CacheError"
)

// Recorder receives cache metrics.
type Recorder interface {
	Add(name string, value float64)
}

type nopRecorder struct{}

func (nopRecorder) Add(string, float64) {}

// Producer computes a fresh value on a miss.
type Producer func(ctx context.Context) (any, error)

// Result is a cache lookup outcome.
type Result struct {
	Data   json.RawMessage
	Source Source
}

// Cache is safe for concurrent use. Overlapping misses for one key each run the producer
// and the last successful write wins.
type Cache struct {
	l1       *MemoryTier
	l2       Tier
	recorder Recorder
	logger   observability.StructuredLogger
}

type Option func(*Cache)

// WithClock sets the clock used for L1 expiry.
func WithClock(clock Clock) Option {
	return func(c *Cache) {
		c.l1 = NewMemoryTier(clock)
	}
}

// WithL2 enables a shared second tier.
func WithL2(tier Tier) Option {
	return func(c *Cache) {
		c.l2 = tier
	}
}

func WithLogger(logger observability.StructuredLogger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func New(opts ...Option) *Cache {
	c := &Cache{
		l1:       NewMemoryTier(nil),
		recorder: nopRecorder{},
		logger:   observability.NewNoOpLogger(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// With returns a view sharing storage with c that reports to the given recorder and logger.
func (c *Cache) With(recorder Recorder, logger observability.StructuredLogger) *Cache {
	out := *c
	if recorder != nil {
		out.recorder = recorder
	}
	if logger != nil {
		out.logger = logger
	}
	return &out
}

// Do returns the live payload for key or stores the producer's result for ttl.
//
// A producer error stores nothing and is returned as-is.
func (c *Cache) Do(ctx context.Context, key string, ttl time.Duration, producer Producer) (Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if ttl <= 0 {
		ttl = DefaultOptions().TTL
	}

	if entry, ok, _ := c.l1.Get(ctx, key); ok {
		c.recorder.Add(MetricL1Hit, 1)
		c.logger.Debug("cache hit", map[string]any{"cache_key": key, "tier": "memory"})
		return Result{Data: entry.Payload, Source: SourceMemory}, nil
	}

	if c.l2 != nil {
		entry, ok, err := c.l2.Get(ctx, key)
		switch {
		case err != nil:
			c.recorder.Add(MetricL2Error, 1)
			c.logger.Warn("l2 cache read failed", map[string]any{"cache_key": key, "error": err.Error()})
		case ok:
			c.recorder.Add(MetricL2Hit, 1)
			c.logger.Debug("cache hit", map[string]any{"cache_key": key, "tier": "redis"})
			if backfill := backfillTTL(entry.Remaining, ttl); backfill > 0 {
				_ = c.l1.Set(ctx, key, entry.Payload, backfill)
			}
			return Result{Data: entry.Payload, Source: SourceRedis}, nil
		}
	}

	c.recorder.Add(MetricMiss, 1)
	c.logger.Debug("cache miss", map[string]any{"cache_key": key})

	value, err := producer(ctx)
	if err != nil {
		c.recorder.Add(MetricDataFetchError, 1)
		return Result{}, err
	}

	payload, err := json.Marshal(value)
	if err != nil {
		c.recorder.Add(MetricDataFetchError, 1)
		return Result{}, err
	}

	_ = c.l1.Set(ctx, key, payload, ttl)
	if c.l2 != nil {
		if err := c.l2.Set(ctx, key, payload, ttl); err != nil {
			c.recorder.Add(MetricL2Error, 1)
			c.logger.Warn("l2 cache write failed", map[string]any{"cache_key": key, "error": err.Error()})
		}
	}

	return Result{Data: payload, Source: SourceAPI}, nil
}

// backfillTTL bounds the L1 copy of an L2 hit by the entry's remaining L2 lifetime so it never
// outlives the original store. A zero result means no backfill.
func backfillTTL(remaining, ttl time.Duration) time.Duration {
	if remaining < 0 {
		return ttl
	}
	return min(remaining, ttl)
}
