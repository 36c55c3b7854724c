package cache

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/theory-cloud/musicapi/pkg/observability"
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
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type countingRecorder struct {
	mu     sync.Mutex
	counts map[string]float64
}

func (r *countingRecorder) Add(name string, value float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counts == nil {
		r.counts = map[string]float64{}
	}
	r.counts[name] += value
}

func (r *countingRecorder) Get(name string) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[name]
}

type failingTier struct{ err error }

func (f failingTier) Get(context.Context, string) (Entry, bool, error) { return Entry{}, false, f.err }
func (f failingTier) Set(context.Context, string, []byte, time.Duration) error {
	return f.err
}

func TestFingerprint(t *testing.T) {
	opts := DefaultOptions()

	cases := []struct {
		name   string
		method string
		path   string
		query  map[string][]string
		opts   Options
		want   string
	}{
		{
			name:   "strips prefix and sorts query",
			method: "get",
			path:   "/api/v1/integration/musicbrainz/artist",
			query:  map[string][]string{"query": {"radiohead"}, "limit": {"5"}},
			opts:   opts,
			want:   "GET:/v1/integration/musicbrainz/artist?limit=5&query=radiohead",
		},
		{
			name:   "repeated values sorted",
			method: "GET",
			path:   "/api/v1/x",
			query:  map[string][]string{"inc": {"tags", "aliases"}},
			opts:   opts,
			want:   "GET:/v1/x?inc=aliases&inc=tags",
		},
		{
			name:   "no query",
			method: "GET",
			path:   "/api",
			opts:   opts,
			want:   "GET:/",
		},
		{
			name:   "method and query excluded",
			method: "GET",
			path:   "/other/path",
			query:  map[string][]string{"a": {"1"}},
			opts:   Options{StripPrefix: "/api"},
			want:   "/other/path",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Fingerprint(tc.method, tc.path, tc.query, tc.opts))
		})
	}
}

func TestFingerprint_QueryOrderIndependent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		keys := rapid.SliceOfNDistinct(rapid.StringMatching(`[a-z]{1,6}`), 0, 6, rapid.ID[string]).Draw(t, "keys")

		query := map[string][]string{}
		for _, k := range keys {
			query[k] = rapid.SliceOfN(rapid.StringMatching(`[a-z0-9]{0,4}`), 1, 3).Draw(t, "values_"+k)
		}

		shuffled := map[string][]string{}
		order := rapid.Permutation(keys).Draw(t, "order")
		for _, k := range order {
			values := append([]string(nil), query[k]...)
			sort.Sort(sort.Reverse(sort.StringSlice(values)))
			shuffled[k] = values
		}

		a := Fingerprint("GET", "/api/v1/items", query, DefaultOptions())
		b := Fingerprint("GET", "/api/v1/items", shuffled, DefaultOptions())
		if a != b {
			t.Fatalf("fingerprints differ: %q vs %q", a, b)
		}
	})
}

func TestCache_MissThenHitThenExpire(t *testing.T) {
	clock := &manualClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	rec := &countingRecorder{}
	c := New(WithClock(clock)).With(rec, nil)

	calls := 0
	producer := func(context.Context) (any, error) {
		calls++
		return map[string]any{"n": calls}, nil
	}

	res, err := c.Do(context.Background(), "k", time.Minute, producer)
	require.NoError(t, err)
	require.Equal(t, SourceAPI, res.Source)
	require.JSONEq(t, `{"n":1}`, string(res.Data))

	clock.Advance(time.Minute)
	res, err = c.Do(context.Background(), "k", time.Minute, producer)
	require.NoError(t, err)
	require.Equal(t, SourceMemory, res.Source)
	require.JSONEq(t, `{"n":1}`, string(res.Data))
	require.Equal(t, 1, calls)

	clock.Advance(time.Millisecond)
	res, err = c.Do(context.Background(), "k", time.Minute, producer)
	require.NoError(t, err)
	require.Equal(t, SourceAPI, res.Source)
	require.JSONEq(t, `{"n":2}`, string(res.Data))
	require.Equal(t, 2, calls)

	require.EqualValues(t, 2, rec.Get(MetricMiss))
	require.EqualValues(t, 1, rec.Get(MetricL1Hit))
}

func TestCache_ProducerErrorStoresNothing(t *testing.T) {
	rec := &countingRecorder{}
	c := New().With(rec, nil)
	boom := errors.New("musicbrainz unavailable")

	_, err := c.Do(context.Background(), "k", time.Minute, func(context.Context) (any, error) {
		return nil, boom
	})
	require.ErrorIs(t, err, boom)
	require.Zero(t, c.l1.Len())
	require.EqualValues(t, 1, rec.Get(MetricDataFetchError))

	res, err := c.Do(context.Background(), "k", time.Minute, func(context.Context) (any, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	require.Equal(t, SourceAPI, res.Source)
}

func TestCache_UnmarshalableValueStoresNothing(t *testing.T) {
	c := New()
	_, err := c.Do(context.Background(), "k", time.Minute, func(context.Context) (any, error) {
		return make(chan int), nil
	})
	require.Error(t, err)
	require.Zero(t, c.l1.Len())
}

func TestCache_RedisHitBackfillsMemory(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	defer server.Close()

	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer client.Close()

	tier := NewRedisTier(client, "music")
	require.NoError(t, server.Set(tier.Key("GET:/v1/x"), `{"from":"redis"}`))

	rec := &countingRecorder{}
	c := New(WithL2(tier)).With(rec, nil)

	producer := func(context.Context) (any, error) {
		t.Fatal("producer must not run on an L2 hit")
		return nil, nil
	}

	res, err := c.Do(context.Background(), "GET:/v1/x", time.Minute, producer)
	require.NoError(t, err)
	require.Equal(t, SourceRedis, res.Source)
	require.JSONEq(t, `{"from":"redis"}`, string(res.Data))

	server.Del(tier.Key("GET:/v1/x"))
	res, err = c.Do(context.Background(), "GET:/v1/x", time.Minute, producer)
	require.NoError(t, err)
	require.Equal(t, SourceMemory, res.Source)

	require.EqualValues(t, 1, rec.Get(MetricL2Hit))
	require.EqualValues(t, 1, rec.Get(MetricL1Hit))
}

func TestCache_RedisBackfillKeepsOriginalExpiry(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	defer server.Close()

	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer client.Close()

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	writerClock := &manualClock{now: start}
	readerClock := &manualClock{now: start}
	writer := New(WithClock(writerClock), WithL2(NewRedisTier(client, "music")))
	reader := New(WithClock(readerClock), WithL2(NewRedisTier(client, "music")))

	calls := 0
	producer := func(context.Context) (any, error) {
		calls++
		return map[string]int{"v": calls}, nil
	}

	res, err := writer.Do(context.Background(), "k", time.Minute, producer)
	require.NoError(t, err)
	require.Equal(t, SourceAPI, res.Source)

	server.FastForward(59 * time.Second)
	readerClock.Advance(59 * time.Second)
	res, err = reader.Do(context.Background(), "k", time.Minute, producer)
	require.NoError(t, err)
	require.Equal(t, SourceRedis, res.Source)
	require.JSONEq(t, `{"v":1}`, string(res.Data))

	entry, ok, err := reader.l1.Get(context.Background(), "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, time.Second, entry.Remaining)

	server.FastForward(2 * time.Second)
	readerClock.Advance(2 * time.Second)
	res, err = reader.Do(context.Background(), "k", time.Minute, producer)
	require.NoError(t, err)
	require.Equal(t, SourceAPI, res.Source)
	require.JSONEq(t, `{"v":2}`, string(res.Data))
	require.Equal(t, 2, calls)
}

func TestBackfillTTL(t *testing.T) {
	require.Equal(t, time.Minute, backfillTTL(-1, time.Minute))
	require.Equal(t, time.Second, backfillTTL(time.Second, time.Minute))
	require.Equal(t, time.Minute, backfillTTL(time.Hour, time.Minute))
	require.Zero(t, backfillTTL(0, time.Minute))
}

func TestCache_MissWritesBothTiersWithTTL(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	defer server.Close()

	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer client.Close()

	tier := NewRedisTier(client, "")
	c := New(WithL2(tier))

	_, err = c.Do(context.Background(), "key", time.Hour, func(context.Context) (any, error) {
		return []string{"a"}, nil
	})
	require.NoError(t, err)

	stored, err := server.Get("cache:key")
	require.NoError(t, err)
	require.JSONEq(t, `["a"]`, stored)
	require.Equal(t, time.Hour, server.TTL("cache:key"))
	require.Equal(t, 1, c.l1.Len())
}

func TestCache_L2FailureDegradesToMiss(t *testing.T) {
	rec := &countingRecorder{}
	logger := observability.NewTestLogger()
	c := New(WithL2(failingTier{err: errors.New("i/o timeout")}), WithLogger(logger)).With(rec, nil)

	res, err := c.Do(context.Background(), "k", 0, func(context.Context) (any, error) {
		return 1, nil
	})
	require.NoError(t, err)
	require.Equal(t, SourceAPI, res.Source)
	require.EqualValues(t, 2, rec.Get(MetricL2Error))
	require.True(t, logger.HasMessage("l2 cache read failed"))
	require.True(t, logger.HasMessage("l2 cache write failed"))
}

func TestMemoryTier_EvictsWhenFull(t *testing.T) {
	tier := NewMemoryTier(nil)
	tier.maxEntries = 2

	ctx := context.Background()
	require.NoError(t, tier.Set(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, tier.Set(ctx, "b", []byte("2"), time.Minute))
	require.NoError(t, tier.Set(ctx, "c", []byte("3"), time.Minute))
	require.Equal(t, 2, tier.Len())

	entry, ok, err := tier.Get(ctx, "c")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "3", string(entry.Payload))
	require.Equal(t, time.Minute, entry.Remaining)
}
