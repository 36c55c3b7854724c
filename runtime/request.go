package musicapi

import (
	"encoding/base64"
	"fmt"
	"sort"
	"strings"
)

// Request is the normalized HTTP request seen by handlers.
//
// Header keys are lowercase after normalization.
type Request struct {
	Method   string
	Path     string
	Query    map[string][]string
	Headers  map[string][]string
	Body     []byte
	IsBase64 bool

	// SourceIP is the caller address reported by the API Gateway request context.
	SourceIP string
	// GatewayRequestID is the API Gateway request id, when present.
	GatewayRequestID string
}

// Header returns the first value of a header.
func (r Request) Header(name string) string {
	return firstHeaderValue(r.Headers, name)
}

// QueryValue returns the first value of a query parameter.
func (r Request) QueryValue(name string) string {
	if values := r.Query[name]; len(values) > 0 {
		return values[0]
	}
	return ""
}

func normalizeRequest(in Request) (Request, error) {
	out := in
	out.Method = strings.ToUpper(strings.TrimSpace(in.Method))
	out.Path = normalizePath(in.Path)
	out.Query = cloneQuery(in.Query)
	out.Headers = canonicalizeHeaders(in.Headers)
	out.SourceIP = strings.TrimSpace(in.SourceIP)

	if in.IsBase64 {
		decoded, err := base64.StdEncoding.DecodeString(string(in.Body))
		if err != nil {
			return Request{}, NewValidationError(fmt.Sprintf("invalid base64 body: %v", err))
		}
		out.Body = decoded
		out.IsBase64 = false
	} else {
		out.Body = append([]byte(nil), in.Body...)
	}
	return out, nil
}

func normalizePath(path string) string {
	path = strings.TrimSpace(path)
	if i := strings.Index(path, "?"); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return path
}

func canonicalizeHeaders(in map[string][]string) map[string][]string {
	if len(in) == 0 {
		return map[string][]string{}
	}

	keys := make([]string, 0, len(in))
	for k := range in {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := map[string][]string{}
	for _, key := range keys {
		lower := strings.ToLower(strings.TrimSpace(key))
		if lower == "" {
			continue
		}
		out[lower] = append(out[lower], in[key]...)
	}
	return out
}

func cloneQuery(in map[string][]string) map[string][]string {
	out := map[string][]string{}
	for k, v := range in {
		out[k] = append([]string(nil), v...)
	}
	return out
}

func firstHeaderValue(headers map[string][]string, key string) string {
	values := headers[strings.ToLower(strings.TrimSpace(key))]
	if len(values) == 0 {
		return ""
	}
	return values[0]
}
