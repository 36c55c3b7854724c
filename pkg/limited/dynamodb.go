package limited

import (
	"context"
	"fmt"
	"os"
	"time"

	tablecore "github.com/theory-cloud/tabletheory/pkg/core"
)

// RateLimitEntry tracks one bucket in DynamoDB.
//
// Storage key shape:
//   - PK: {identity}#{window_start_unix}
//   - SK: {category}
type RateLimitEntry struct {
	PK string `theorydb:"pk" json:"pk"`
	SK string `theorydb:"sk" json:"sk"`

	Identity    string `json:"identity"`
	Category    string `json:"category"`
	WindowStart int64  `json:"window_start"`

	Count int64 `json:"count"`

	TTL int64 `theorydb:"ttl" json:"ttl"`

	UpdatedAt time.Time `theorydb:"updated_at" json:"updated_at"`
}

func (r *RateLimitEntry) SetKeys() {
	r.PK = fmt.Sprintf("%s#%d", r.Identity, r.WindowStart)
	r.SK = r.Category
}

func (RateLimitEntry) TableName() string {
	if name := os.Getenv("RATE_LIMIT_TABLE_NAME"); name != "" {
		return name
	}
	return "music-rate-limits"
}

// DynamoStore keeps counters in DynamoDB with an atomic ADD per request.
type DynamoStore struct {
	db        tablecore.DB
	ttlBuffer time.Duration
	clock     Clock
}

var _ Store = (*DynamoStore)(nil)

func NewDynamoStore(db tablecore.DB) *DynamoStore {
	return &DynamoStore{db: db, ttlBuffer: time.Hour, clock: RealClock{}}
}

func (s *DynamoStore) SetClock(clock Clock) {
	if clock == nil {
		clock = RealClock{}
	}
	s.clock = clock
}

func (s *DynamoStore) Increment(ctx context.Context, bucket Bucket) (int64, error) {
	if s == nil || s.db == nil {
		return 0, NewError(ErrorTypeInternal, "dynamodb store is not configured")
	}

	entry := &RateLimitEntry{
		Identity:    bucket.Identity,
		Category:    string(bucket.Category),
		WindowStart: bucket.WindowStart.Unix(),
	}
	entry.SetKeys()

	ttl := bucket.ExpiresAt().Add(s.ttlBuffer).Unix()

	var result RateLimitEntry
	err := s.db.Model(&RateLimitEntry{}).
		WithContext(ctx).
		Where("PK", "=", entry.PK).
		Where("SK", "=", entry.SK).
		UpdateBuilder().
		Add("Count", int64(1)).
		Set("TTL", ttl).
		Set("UpdatedAt", s.clock.Now()).
		ExecuteWithResult(&result)
	if err != nil {
		return 0, err
	}
	return result.Count, nil
}
