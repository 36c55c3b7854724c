package musicapi

import (
	"encoding/json"
	"fmt"
	"time"
)

const contentTypeJSON = "application/json"

// Response is the canonical HTTP response returned by handlers.
type Response struct {
	Status int
	// Headers are canonicalized to lowercase keys during finalization.
	Headers  map[string][]string
	Body     []byte
	IsBase64 bool
}

// SetHeader replaces a header value.
func (r *Response) SetHeader(key, value string) *Response {
	if r.Headers == nil {
		r.Headers = map[string][]string{}
	}
	r.Headers[key] = []string{value}
	return r
}

// JSON builds an application/json response.
func JSON(status int, value any) (*Response, error) {
	body, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("marshal response: %w", err)
	}
	return RawJSON(status, body), nil
}

// RawJSON wraps an already serialized JSON body.
func RawJSON(status int, body []byte) *Response {
	return &Response{
		Status: status,
		Headers: map[string][]string{
			"content-type": {contentTypeJSON},
		},
		Body: append([]byte(nil), body...),
	}
}

// CacheControlMaxAge is the public max-age directive for ttl.
func CacheControlMaxAge(ttl time.Duration) string {
	return fmt.Sprintf("max-age=%d", int(ttl/time.Second))
}

// CacheControlPrivate is a browser-only max-age directive for ttl.
func CacheControlPrivate(ttl time.Duration) string {
	return fmt.Sprintf("private, max-age=%d", int(ttl/time.Second))
}

func normalizeResponse(in *Response) Response {
	out := *in
	if out.Status == 0 {
		out.Status = 200
	}
	out.Headers = canonicalizeHeaders(out.Headers)
	if len(out.Headers["content-type"]) == 0 {
		out.Headers["content-type"] = []string{contentTypeJSON}
	}
	out.Body = append([]byte(nil), out.Body...)
	return out
}
