package cache

import (
	"sort"
	"strings"
	"time"
)

// Options controls how a request is reduced to a cache key and how long entries live.
type Options struct {
	StripPrefix   string
	IncludeMethod bool
	IncludeQuery  bool
	TTL           time.Duration
}

// DefaultOptions strips the /api prefix, keys on method and query, and keeps entries for a minute.
func DefaultOptions() Options {
	return Options{
		StripPrefix:   "/api",
		IncludeMethod: true,
		IncludeQuery:  true,
		TTL:           time.Minute,
	}
}

// Fingerprint derives the cache key for a request.
//
// The key is `[METHOD:]path[?k=v&k=v]`. Query keys are sorted, values of repeated keys are
// sorted, and empty query maps add nothing, so parameter order never changes the key.
func Fingerprint(method, path string, query map[string][]string, opts Options) string {
	var b strings.Builder

	if opts.IncludeMethod {
		b.WriteString(strings.ToUpper(strings.TrimSpace(method)))
		b.WriteByte(':')
	}

	if opts.StripPrefix != "" && strings.HasPrefix(path, opts.StripPrefix) {
		path = strings.TrimPrefix(path, opts.StripPrefix)
	}
	if path == "" {
		path = "/"
	}
	b.WriteString(path)

	if !opts.IncludeQuery || len(query) == 0 {
		return b.String()
	}

	keys := make([]string, 0, len(query))
	for k := range query {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	sep := byte('?')
	for _, k := range keys {
		values := append([]string(nil), query[k]...)
		if len(values) == 0 {
			values = []string{""}
		}
		sort.Strings(values)
		for _, v := range values {
			b.WriteByte(sep)
			b.WriteString(k)
			b.WriteByte('=')
			b.WriteString(v)
			sep = '&'
		}
	}
	return b.String()
}
