package limited

import (
	"context"
	"sync"
	"time"
)

type memoryCounter struct {
	windowStart time.Time
	expiresAt   time.Time
	count       int64
}

// MemoryStore keeps counters in process memory.
//
// State lives only as long as the process, so warm Lambda containers each keep their own view.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[string]*memoryCounter
	clock    Clock
	calls    int
}

var _ Store = (*MemoryStore)(nil)

const memoryPruneEvery = 256

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{counters: map[string]*memoryCounter{}, clock: RealClock{}}
}

func (s *MemoryStore) SetClock(clock Clock) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if clock == nil {
		clock = RealClock{}
	}
	s.clock = clock
}

func (s *MemoryStore) Increment(ctx context.Context, bucket Bucket) (int64, error) {
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
	}

	key := string(bucket.Category) + ":" + bucket.Identity

	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	if s.calls%memoryPruneEvery == 0 {
		s.pruneLocked(s.clock.Now())
	}

	counter, ok := s.counters[key]
	if !ok || !counter.windowStart.Equal(bucket.WindowStart) {
		counter = &memoryCounter{windowStart: bucket.WindowStart, expiresAt: bucket.ExpiresAt()}
		s.counters[key] = counter
	}
	counter.count++
	return counter.count, nil
}

// Len reports how many buckets are currently held.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.counters)
}

func (s *MemoryStore) pruneLocked(now time.Time) {
	for key, counter := range s.counters {
		if !now.Before(counter.expiresAt) {
			delete(s.counters, key)
		}
	}
}
