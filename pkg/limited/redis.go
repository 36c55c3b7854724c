package limited

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const incrementLua = `
local current = redis.call("INCR", KEYS[1])
if tonumber(current) == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return current
`

// RedisStore shares counters between processes through Redis.
//
// Each bucket is a single key that expires with its window.
type RedisStore struct {
	client    redis.Scripter
	prefix    string
	increment *redis.Script
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(client redis.Scripter, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &RedisStore{
		client:    client,
		prefix:    prefix,
		increment: redis.NewScript(incrementLua),
	}
}

// Key is the Redis key used for bucket.
func (s *RedisStore) Key(bucket Bucket) string {
	return s.prefix + ":" + bucketKey(bucket)
}

func (s *RedisStore) Increment(ctx context.Context, bucket Bucket) (int64, error) {
	if s == nil || s.client == nil {
		return 0, NewError(ErrorTypeInternal, "redis store is not configured")
	}

	ttl := bucket.Window.Milliseconds()
	if ttl <= 0 {
		ttl = 1
	}

	res, err := s.increment.Run(ctx, s.client, []string{s.Key(bucket)}, ttl).Result()
	if err != nil {
		return 0, err
	}

	switch v := res.(type) {
	case int64:
		return v, nil
	default:
		return 0, fmt.Errorf("unexpected redis increment result %T", res)
	}
}
