package musicapi

import (
	"encoding/json"

	"github.com/theory-cloud/musicapi/pkg/cache"
)

// CachedBody is the envelope returned by Cached.
type CachedBody struct {
	Data   json.RawMessage `json:"data"`
	Source cache.Source    `json:"source"`
}

// Cached serves the request from the response cache, running producer on a miss. Producer
// errors are returned unchanged so the handler's error boundary classifies them.
func Cached(c *Context, opts cache.Options, producer cache.Producer) (*Response, error) {
	if opts.TTL <= 0 {
		opts.TTL = cache.DefaultOptions().TTL
	}
	key := cache.Fingerprint(c.Request.Method, c.Request.Path, c.Request.Query, opts)

	store := c.cache
	if store == nil {
		store = cache.New(cache.WithClock(c.clock))
	}
	result, err := store.With(c.Metrics(), c.Logger()).Do(c.Context(), key, opts.TTL, producer)
	if err != nil {
		return nil, err
	}
	c.Span().SetAttribute("cache.source", string(result.Source))

	resp, err := JSON(200, CachedBody{Data: result.Data, Source: result.Source})
	if err != nil {
		return nil, err
	}
	resp.SetHeader("cache-control", CacheControlMaxAge(opts.TTL))
	return resp, nil
}
