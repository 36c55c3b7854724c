package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Tier is one level of storage for serialized payloads.
type Tier interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error
}

// Entry is a stored payload and its remaining lifetime. A negative Remaining means the tier
// holds the entry without an expiry.
type Entry struct {
	Payload   []byte
	Remaining time.Duration
}

// Clock allows deterministic expiry in tests.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type memoryEntry struct {
	payload  []byte
	storedAt time.Time
	ttl      time.Duration
}

func (e memoryEntry) live(now time.Time) bool {
	return !now.After(e.storedAt.Add(e.ttl))
}

func (e memoryEntry) remaining(now time.Time) time.Duration {
	return e.storedAt.Add(e.ttl).Sub(now)
}

// MemoryTier is the in-process level.
//
// Entries are served while now <= storedAt+ttl and removed lazily afterwards.
type MemoryTier struct {
	mu         sync.Mutex
	entries    map[string]memoryEntry
	clock      Clock
	maxEntries int
}

var _ Tier = (*MemoryTier)(nil)

const defaultMaxMemoryEntries = 1024

func NewMemoryTier(clock Clock) *MemoryTier {
	if clock == nil {
		clock = realClock{}
	}
	return &MemoryTier{
		entries:    map[string]memoryEntry{},
		clock:      clock,
		maxEntries: defaultMaxMemoryEntries,
	}
}

func (m *MemoryTier) Get(_ context.Context, key string) (Entry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok {
		return Entry{}, false, nil
	}
	now := m.clock.Now()
	if !entry.live(now) {
		delete(m.entries, key)
		return Entry{}, false, nil
	}
	return Entry{Payload: entry.payload, Remaining: entry.remaining(now)}, true, nil
}

func (m *MemoryTier) Set(_ context.Context, key string, payload []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	if len(m.entries) >= m.maxEntries {
		for k, entry := range m.entries {
			if !entry.live(now) {
				delete(m.entries, k)
			}
		}
	}
	if _, exists := m.entries[key]; !exists && len(m.entries) >= m.maxEntries {
		// Still full of live entries: evict an arbitrary one.
		for k := range m.entries {
			delete(m.entries, k)
			break
		}
	}

	m.entries[key] = memoryEntry{
		payload:  append([]byte(nil), payload...),
		storedAt: now,
		ttl:      ttl,
	}
	return nil
}

// Len reports the number of stored entries, live or not.
func (m *MemoryTier) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// RedisTier is the shared level backed by Redis with native key expiry.
type RedisTier struct {
	client redis.Cmdable
	prefix string
}

var _ Tier = (*RedisTier)(nil)

func NewRedisTier(client redis.Cmdable, prefix string) *RedisTier {
	if prefix == "" {
		prefix = "cache"
	}
	return &RedisTier{client: client, prefix: prefix}
}

func (r *RedisTier) Key(key string) string {
	return r.prefix + ":" + key
}

// Get reads the payload and its PTTL in one round trip.
func (r *RedisTier) Get(ctx context.Context, key string) (Entry, bool, error) {
	var (
		get  *redis.StringCmd
		pttl *redis.DurationCmd
	)
	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		get = pipe.Get(ctx, r.Key(key))
		pttl = pipe.PTTL(ctx, r.Key(key))
		return nil
	})
	if errors.Is(err, redis.Nil) || errors.Is(get.Err(), redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}

	payload, err := get.Bytes()
	if err != nil {
		return Entry{}, false, err
	}
	// PTTL is -1 for a key without expiry and -2 once it is gone.
	remaining := pttl.Val()
	if remaining < 0 && remaining != -1 {
		return Entry{}, false, nil
	}
	return Entry{Payload: payload, Remaining: remaining}, true, nil
}

func (r *RedisTier) Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	return r.client.Set(ctx, r.Key(key), payload, ttl).Err()
}
