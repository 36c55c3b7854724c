package musicapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/theory-cloud/musicapi/pkg/cache"
	"github.com/theory-cloud/musicapi/pkg/limited"
	"github.com/theory-cloud/musicapi/pkg/observability"
	"github.com/theory-cloud/musicapi/pkg/params"
)

const (
	DefaultPageLimit = 50
	MaxPageLimit     = 100
)

const defaultCacheControl = "max-age=60"

// Context is the per-invocation state passed to handlers. It is never shared between
// invocations.
type Context struct {
	ctx     context.Context
	Request Request
	Params  map[string]string

	RequestID string
	// Identity is the rate-limit identity derived from the request.
	Identity string
	Service  string
	// RateLimit is the decision for this request, when the route is rate limited.
	RateLimit *limited.Decision

	clock   Clock
	ids     IDGenerator
	logger  observability.StructuredLogger
	metrics *Metrics
	span    *Span
	env     EnvLookup
	params  params.Reader
	cache   *cache.Cache
	cors    CORSConfig
}

func (c *Context) Context() context.Context {
	if c == nil || c.ctx == nil {
		return context.Background()
	}
	return c.ctx
}

func (c *Context) Now() time.Time {
	if c == nil || c.clock == nil {
		return time.Now()
	}
	return c.clock.Now()
}

func (c *Context) NewID() string {
	if c == nil || c.ids == nil {
		return ULIDGenerator{}.NewID()
	}
	return c.ids.NewID()
}

func (c *Context) Param(name string) string {
	if c == nil || c.Params == nil {
		return ""
	}
	return c.Params[name]
}

func (c *Context) Logger() observability.StructuredLogger {
	if c == nil || c.logger == nil {
		return observability.NewNoOpLogger()
	}
	return c.logger
}

func (c *Context) Metrics() *Metrics {
	if c == nil {
		return nil
	}
	return c.metrics
}

func (c *Context) Span() *Span {
	if c == nil {
		return nil
	}
	return c.span
}

// RequireEnv returns the named environment variable, or the first fallback when it is unset
// or empty.
func (c *Context) RequireEnv(name string, fallback ...string) (string, error) {
	lookup := c.env
	if lookup == nil {
		lookup = MapEnv(nil)
	}
	if value, ok := lookup(name); ok && strings.TrimSpace(value) != "" {
		return value, nil
	}
	if len(fallback) > 0 && fallback[0] != "" {
		return fallback[0], nil
	}
	return "", fmt.Errorf("missing required environment variable: %s", name)
}

// Parameter reads a parameter, returning the underlying params error.
func (c *Context) Parameter(name string) (string, error) {
	if c == nil || c.params == nil {
		return "", errors.New("musicapi: no parameter reader configured")
	}
	return c.params.GetParameter(c.Context(), name)
}

// RequireParameter reads a parameter that must exist. A missing or empty parameter is
// replaced by the first fallback when one is given.
func (c *Context) RequireParameter(name string, fallback ...string) (string, error) {
	value, err := c.Parameter(name)
	if err != nil && !errors.Is(err, params.ErrNotFound) {
		return "", err
	}
	if err == nil && strings.TrimSpace(value) != "" {
		return value, nil
	}
	if len(fallback) > 0 && fallback[0] != "" {
		c.Logger().Warn("parameter missing, using fallback", map[string]any{"parameter": name})
		return fallback[0], nil
	}
	return "", fmt.Errorf("missing required parameter: %s: %w", name, params.ErrNotFound)
}

// Pagination holds the paging query parameters.
type Pagination struct {
	Limit    int
	StartKey string
}

// QueryParams parses `limit` (default 50, capped at 100) and the URL-encoded `startKey`.
func (c *Context) QueryParams() Pagination {
	out := Pagination{Limit: DefaultPageLimit}
	if c == nil {
		return out
	}
	if raw := strings.TrimSpace(c.Request.QueryValue("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			out.Limit = n
		}
	}
	if out.Limit > MaxPageLimit {
		out.Limit = MaxPageLimit
	}
	if raw := c.Request.QueryValue("startKey"); raw != "" {
		if decoded, err := url.QueryUnescape(raw); err == nil {
			out.StartKey = decoded
		} else {
			out.StartKey = raw
		}
	}
	return out
}

// Page is the standard paginated response body.
type Page[T any] struct {
	Items      []T            `json:"items"`
	Pagination PageDescriptor `json:"pagination"`
}

type PageDescriptor struct {
	Count     int    `json:"count"`
	HasMore   bool   `json:"hasMore"`
	NextToken string `json:"nextToken,omitempty"`
}

// NewPage builds a Page. A non-empty lastKey becomes a URL-encoded nextToken.
func NewPage[T any](items []T, lastKey string) Page[T] {
	if items == nil {
		items = []T{}
	}
	page := Page[T]{Items: items, Pagination: PageDescriptor{Count: len(items), HasMore: lastKey != ""}}
	if lastKey != "" {
		page.Pagination.NextToken = url.QueryEscape(lastKey)
	}
	return page
}

// Success builds a JSON response with the default short Cache-Control. Extra headers
// override defaults.
func (c *Context) Success(status int, body any, headers ...map[string]string) (*Response, error) {
	resp, err := JSON(status, body)
	if err != nil {
		return nil, err
	}
	resp.SetHeader("cache-control", defaultCacheControl)
	for _, h := range headers {
		for k, v := range h {
			resp.SetHeader(strings.ToLower(k), v)
		}
	}
	return resp, nil
}

// Fail builds an error envelope response for status with a client-facing message.
func (c *Context) Fail(status int, message string) *Response {
	resp := errorResponse(status, message)
	if status >= 400 {
		c.Metrics().Add(MetricErrorCount, 1)
	}
	return &resp
}

// DecodeJSON unmarshals the request body into T. An empty body is a validation error with
// emptyMessage.
func DecodeJSON[T any](c *Context, emptyMessage string) (T, error) {
	var out T
	if c == nil || len(strings.TrimSpace(string(c.Request.Body))) == 0 {
		return out, NewValidationError(emptyMessage)
	}
	if err := json.Unmarshal(c.Request.Body, &out); err != nil {
		appErr := NewValidationError("Invalid JSON in request body")
		appErr.Cause = err
		return out, appErr
	}
	return out, nil
}
