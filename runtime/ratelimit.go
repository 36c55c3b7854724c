package musicapi

import (
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/theory-cloud/musicapi/pkg/limited"
)

// clientIdentity picks the caller address used as the rate-limit identity. Requests with no
// usable address share the "unknown" bucket.
func clientIdentity(req Request) string {
	if ip := strings.TrimSpace(req.SourceIP); ip != "" {
		return ip
	}
	if forwarded := req.Header("x-forwarded-for"); forwarded != "" {
		first := strings.TrimSpace(strings.Split(forwarded, ",")[0])
		if first != "" {
			return first
		}
	}
	if ip := parseCloudFrontViewerAddress(req.Header("cloudfront-viewer-address")); ip != "" {
		return ip
	}
	return limited.UnknownIdentity
}

// parseCloudFrontViewerAddress strips the port from "ip:port" or "[ipv6]:port".
func parseCloudFrontViewerAddress(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(raw); err == nil {
		return strings.Trim(host, "[]")
	}
	if i := strings.LastIndex(raw, ":"); i > 0 && strings.Count(raw, ":") == 1 {
		return raw[:i]
	}
	return strings.Trim(raw, "[]")
}

// enforceRateLimit reports a 429 response when the caller exceeded category. A store failure
// admits the request.
func (a *App) enforceRateLimit(c *Context, category limited.Category) (Response, bool) {
	decision, err := a.limiter.Check(c.Context(), c.Identity, category)
	if err != nil {
		if limited.IsStoreError(err) {
			c.Logger().Warn("rate limit store unavailable, allowing request", map[string]any{
				"identity": c.Identity,
				"category": string(category),
				"error":    err.Error(),
			})
			c.Metrics().Add(MetricRateLimitStoreError, 1)
			c.RateLimit = decision
			return Response{}, false
		}
		c.Logger().Error("rate limit check failed", map[string]any{
			"category": string(category),
			"error":    err.Error(),
		})
		return Response{}, false
	}

	c.RateLimit = decision
	if decision.Allowed {
		return Response{}, false
	}

	c.Logger().Warn("rate limit exceeded", map[string]any{
		"identity":    c.Identity,
		"category":    string(category),
		"count":       decision.Count,
		"limit":       decision.Limit,
		"retry_after": int(decision.RetryAfter.Seconds()),
	})
	c.Metrics().Add(MetricRateLimitExceeded, 1)
	c.Metrics().Add(MetricErrorCount, 1)

	resp := errorResponse(http.StatusTooManyRequests, messageRateLimited)
	resp.Headers["retry-after"] = []string{fmt.Sprint(int(decision.RetryAfter.Seconds()))}
	resp.Headers["x-ratelimit-limit"] = []string{fmt.Sprint(decision.Limit)}
	resp.Headers["x-ratelimit-remaining"] = []string{fmt.Sprint(decision.Remaining())}
	resp.Headers["x-ratelimit-reset"] = []string{fmt.Sprint(decision.ResetsAt.Unix())}
	return resp, true
}
