// Package musicbrainz is a small client for the MusicBrainz web service.
//
// MusicBrainz asks anonymous clients for at most one request per second and a descriptive
// User-Agent; Client enforces both.
package musicbrainz

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultBaseURL   = "https://musicbrainz.org/ws/2"
	DefaultUserAgent = "music.mariolopez.org/1.0 (mario@mariolopez.org)"
	DefaultInterval  = time.Second
)

// Kind is the MusicBrainz request style derived from a path.
type Kind string

const (
	KindSearch Kind = "search"
	KindLookup Kind = "lookup"
	KindBrowse Kind = "browse"
	KindDirect Kind = "direct"
)

var pathPrefix = regexp.MustCompile(`^/?(?:api/)?(?:v1/)?(?:integration/)?(?:nodejs/)?(?:musicbrainz/)?`)

// reserved query keys are consumed by the request shape rather than forwarded verbatim.
var reserved = map[string]bool{
	"query": true, "limit": true, "offset": true, "inc": true, "fmt": true, "dismax": true, "version": true,
}

// Request is a parsed MusicBrainz call.
type Request struct {
	Kind     Kind
	Entity   string
	MBID     string
	Includes []string
	Params   url.Values
}

// ParsePath maps an API path such as `/api/v1/integration/musicbrainz/artist/<mbid>` and its
// query string to a MusicBrainz request.
func ParsePath(path string, query map[string]string) (Request, error) {
	clean := pathPrefix.ReplaceAllString(path, "")
	parts := make([]string, 0, 3)
	for _, p := range strings.Split(clean, "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return Request{}, fmt.Errorf("musicbrainz: no entity specified")
	}

	req := Request{Entity: parts[0], Params: url.Values{}}
	var browse url.Values

	if len(parts) >= 2 {
		if _, err := uuid.Parse(parts[1]); err == nil && len(parts[1]) == 36 {
			req.MBID = strings.ToLower(parts[1])
			if inc := query["inc"]; inc != "" {
				req.Includes = strings.FieldsFunc(inc, func(r rune) bool { return r == '+' || r == ' ' })
			}
		} else {
			value := ""
			if len(parts) >= 3 {
				value = parts[2]
			}
			browse = url.Values{parts[1]: {value}}
		}
	}

	switch {
	case query["query"] != "":
		req.Kind = KindSearch
		req.Params.Set("query", query["query"])
		for _, key := range []string{"limit", "offset", "version"} {
			if n, err := strconv.Atoi(query[key]); err == nil {
				req.Params.Set(key, strconv.Itoa(n))
			}
		}
		if v, ok := query["dismax"]; ok {
			req.Params.Set("dismax", strconv.FormatBool(v == "true"))
		}
	case req.MBID != "":
		req.Kind = KindLookup
		if len(req.Includes) > 0 {
			req.Params.Set("inc", strings.Join(req.Includes, "+"))
		}
	default:
		for k, vs := range browse {
			req.Params[k] = vs
		}
		if v, ok := query["limit"]; ok {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				n = 25
			}
			req.Params.Set("limit", strconv.Itoa(n))
		}
		if v, ok := query["offset"]; ok {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				n = 0
			}
			req.Params.Set("offset", strconv.Itoa(n))
		}
	}

	for k, v := range query {
		if !reserved[k] {
			req.Params.Set(k, v)
		}
	}

	if req.Kind == "" {
		req.Kind = KindDirect
		if len(browse) > 0 || len(req.Params) > 0 {
			req.Kind = KindBrowse
		}
	}
	return req, nil
}

// Endpoint is the path below the base URL.
func (r Request) Endpoint() string {
	if r.MBID != "" && r.Kind == KindLookup {
		return r.Entity + "/" + r.MBID
	}
	return r.Entity
}

// APIError is a non-2xx response from MusicBrainz.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("musicbrainz: status %d: %s", e.Status, e.Body)
}

// Client calls MusicBrainz, spacing requests by its interval.
type Client struct {
	baseURL   string
	userAgent string
	http      *http.Client
	interval  time.Duration

	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

type Option func(*Client)

func WithBaseURL(base string) Option {
	return func(c *Client) {
		if base = strings.TrimRight(strings.TrimSpace(base), "/"); base != "" {
			c.baseURL = base
		}
	}
}

func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua = strings.TrimSpace(ua); ua != "" {
			c.userAgent = ua
		}
	}
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// WithInterval sets the minimum spacing between requests; zero disables spacing.
func WithInterval(d time.Duration) Option {
	return func(c *Client) {
		if d >= 0 {
			c.interval = d
		}
	}
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:   DefaultBaseURL,
		userAgent: DefaultUserAgent,
		http:      &http.Client{Timeout: 10 * time.Second},
		interval:  DefaultInterval,
		now:       time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// wait blocks until the next request slot, or ctx is done.
func (c *Client) wait(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.interval > 0 && !c.last.IsZero() {
		if delay := c.interval - c.now().Sub(c.last); delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
	c.last = c.now()
	return nil
}

// Do executes req and returns the raw JSON body.
func (c *Client) Do(ctx context.Context, req Request) (json.RawMessage, error) {
	params := url.Values{}
	for k, vs := range req.Params {
		params[k] = append([]string(nil), vs...)
	}
	params.Set("fmt", "json")

	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	endpoint := c.baseURL + "/" + req.Endpoint() + "?" + encodeSorted(params)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("musicbrainz: build request: %w", err)
	}
	httpReq.Header.Set("User-Agent", c.userAgent)
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("musicbrainz: %s: %w", req.Endpoint(), err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("musicbrainz: read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("musicbrainz: response is not JSON")
	}
	return json.RawMessage(body), nil
}

// encodeSorted is url.Values.Encode with `+` kept literal in inc lists.
func encodeSorted(v url.Values) string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		for _, value := range v[k] {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			if k == "inc" {
				b.WriteString(strings.ReplaceAll(url.QueryEscape(value), "%2B", "+"))
			} else {
				b.WriteString(url.QueryEscape(value))
			}
		}
	}
	return b.String()
}
