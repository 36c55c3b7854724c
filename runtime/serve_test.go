package musicapi_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/theory-cloud/musicapi/pkg/limited"
	"github.com/theory-cloud/musicapi/pkg/metrics"
	"github.com/theory-cloud/musicapi/pkg/observability"
	musicapi "github.com/theory-cloud/musicapi/runtime"
	"github.com/theory-cloud/musicapi/testkit"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 10, 0, time.UTC)

func decodeError(t *testing.T, resp musicapi.Response) musicapi.ErrorBody {
	t.Helper()
	var body musicapi.ErrorBody
	require.NoError(t, json.Unmarshal(resp.Body, &body))
	return body
}

func okHandler(c *musicapi.Context) (*musicapi.Response, error) {
	return c.Success(http.StatusOK, map[string]string{"ok": "true"})
}

func TestServeSuccessAddsDefaults(t *testing.T) {
	env := testkit.NewWithTime(epoch)
	logger := observability.NewTestLogger()
	pub := metrics.NewMemoryPublisher()
	app := env.App(musicapi.WithService("get-song-limit"), musicapi.WithLogger(logger), musicapi.WithMetricsPublisher(pub))
	app.Get("/api/v1/admin/song-limit", okHandler)

	resp := env.Invoke(context.Background(), app, musicapi.Request{
		Method:  "GET",
		Path:    "/api/v1/admin/song-limit",
		Headers: map[string][]string{"Origin": {"https://music.mariolopez.org"}},
	})

	require.Equal(t, http.StatusOK, resp.Status)
	require.JSONEq(t, `{"ok":"true"}`, string(resp.Body))
	require.Equal(t, []string{"application/json"}, resp.Headers["content-type"])
	require.Equal(t, []string{"max-age=60"}, resp.Headers["cache-control"])
	require.Equal(t, []string{"https://music.mariolopez.org"}, resp.Headers["access-control-allow-origin"])
	require.Equal(t, []string{"true"}, resp.Headers["access-control-allow-credentials"])
	require.Equal(t, []string{"GET,OPTIONS"}, resp.Headers["access-control-allow-methods"])
	require.Equal(t, []string{"test-id-1"}, resp.Headers["x-request-id"])

	require.True(t, logger.HasMessage("get-song-limit Lambda invoked"))
	require.True(t, logger.HasMessage("request.completed"))
	require.Equal(t, 1.0, pub.Sum(musicapi.MetricInvocationCount))
	require.Zero(t, pub.Sum(musicapi.MetricErrorCount))
}

func TestServeUnknownOriginFallsBackToWildcard(t *testing.T) {
	env := testkit.NewWithTime(epoch)
	app := env.App()
	app.Get("/api/v1/admin/mut", okHandler)

	resp := env.Invoke(context.Background(), app, musicapi.Request{
		Method:  "GET",
		Path:    "/api/v1/admin/mut",
		Headers: map[string][]string{"origin": {"https://evil.example"}},
	})
	require.Equal(t, []string{"*"}, resp.Headers["access-control-allow-origin"])
	require.Equal(t, []string{"false"}, resp.Headers["access-control-allow-credentials"])
	require.NotContains(t, resp.Headers, "vary")
}

func TestServePreflight(t *testing.T) {
	env := testkit.NewWithTime(epoch)
	app := env.App()
	app.Post("/api/v1/admin/mut", okHandler)

	resp := env.Invoke(context.Background(), app, musicapi.Request{
		Method:  "OPTIONS",
		Path:    "/api/v1/admin/mut",
		Headers: map[string][]string{"origin": {"http://localhost:3000"}},
	})
	require.Equal(t, http.StatusNoContent, resp.Status)
	require.Equal(t, []string{"http://localhost:3000"}, resp.Headers["access-control-allow-origin"])
	require.Equal(t, []string{"OPTIONS"}, resp.Headers["access-control-allow-methods"])
	require.Equal(t,
		[]string{"Content-Type,X-Amz-Date,Authorization,X-Api-Key,X-Amz-Security-Token"},
		resp.Headers["access-control-allow-headers"])
}

func TestServeRoutingFailures(t *testing.T) {
	env := testkit.NewWithTime(epoch)
	app := env.App()
	app.Get("/api/v1/admin/mut", okHandler)

	resp := env.Invoke(context.Background(), app, musicapi.Request{Method: "GET", Path: "/nope"})
	require.Equal(t, http.StatusNotFound, resp.Status)
	require.Equal(t, musicapi.ErrorBody{Error: "Not Found", Message: "Route not found"}, decodeError(t, resp))

	resp = env.Invoke(context.Background(), app, musicapi.Request{Method: "DELETE", Path: "/api/v1/admin/mut"})
	require.Equal(t, http.StatusMethodNotAllowed, resp.Status)
	require.Equal(t, []string{"GET"}, resp.Headers["allow"])
}

func TestServeErrorBoundary(t *testing.T) {
	cases := []struct {
		name      string
		handler   musicapi.Handler
		status    int
		body      musicapi.ErrorBody
		unhandled float64
	}{
		{
			name: "validation",
			handler: func(*musicapi.Context) (*musicapi.Response, error) {
				return nil, musicapi.NewValidationError("Missing request body")
			},
			status: http.StatusBadRequest,
			body:   musicapi.ErrorBody{Error: "Bad Request", Message: "Missing request body"},
		},
		{
			name: "not found",
			handler: func(*musicapi.Context) (*musicapi.Response, error) {
				return nil, musicapi.NewNotFoundError("MUT not found")
			},
			status: http.StatusNotFound,
			body:   musicapi.ErrorBody{Error: "Not Found", Message: "MUT not found"},
		},
		{
			name: "upstream",
			handler: func(*musicapi.Context) (*musicapi.Response, error) {
				return nil, musicapi.NewUpstreamError(http.StatusBadGateway, "Failed to fetch data from MusicBrainz", errors.New("dial tcp"))
			},
			status: http.StatusBadGateway,
			body:   musicapi.ErrorBody{Error: "Internal Server Error", Message: "Failed to fetch data from MusicBrainz"},
		},
		{
			name: "plain error",
			handler: func(*musicapi.Context) (*musicapi.Response, error) {
				return nil, errors.New("ssm: access denied for arn:aws:iam::123:role/x")
			},
			status:    http.StatusInternalServerError,
			body:      musicapi.ErrorBody{Error: "Internal Server Error", Message: "An unhandled error occurred"},
			unhandled: 1,
		},
		{
			name: "panic",
			handler: func(*musicapi.Context) (*musicapi.Response, error) {
				panic("boom")
			},
			status:    http.StatusInternalServerError,
			body:      musicapi.ErrorBody{Error: "Internal Server Error", Message: "An unhandled error occurred"},
			unhandled: 1,
		},
		{
			name: "nil response",
			handler: func(*musicapi.Context) (*musicapi.Response, error) {
				return nil, nil
			},
			status:    http.StatusInternalServerError,
			body:      musicapi.ErrorBody{Error: "Internal Server Error", Message: "An unhandled error occurred"},
			unhandled: 1,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := testkit.NewWithTime(epoch)
			pub := metrics.NewMemoryPublisher()
			logger := observability.NewTestLogger()
			app := env.App(musicapi.WithMetricsPublisher(pub), musicapi.WithLogger(logger))
			app.Get("/x", tc.handler)

			resp := env.Invoke(context.Background(), app, musicapi.Request{Method: "GET", Path: "/x"})
			require.Equal(t, tc.status, resp.Status)
			require.Equal(t, tc.body, decodeError(t, resp))
			require.Equal(t, []string{"*"}, resp.Headers["access-control-allow-origin"])
			require.Equal(t, tc.unhandled, pub.Sum(musicapi.MetricUnhandledErrorCount))
			require.NotContains(t, string(resp.Body), "arn:aws")
			if tc.unhandled > 0 {
				require.NotEmpty(t, logger.EntriesWithLevel("error"))
			}
		})
	}
}

func TestServeRejectsInvalidBase64Body(t *testing.T) {
	env := testkit.NewWithTime(epoch)
	app := env.App()
	app.Post("/x", okHandler)

	resp := env.Invoke(context.Background(), app, musicapi.Request{Method: "POST", Path: "/x", Body: []byte("%%%"), IsBase64: true})
	require.Equal(t, http.StatusBadRequest, resp.Status)
}

func TestServeRateLimitsWriteTier(t *testing.T) {
	env := testkit.NewWithTime(epoch)
	limiter := limited.NewLimiter(limited.NewMemoryStore())
	limiter.SetClock(env.Clock)
	pub := metrics.NewMemoryPublisher()
	app := env.App(musicapi.WithRateLimiter(limiter), musicapi.WithMetricsPublisher(pub))
	app.Post("/api/v1/admin/mut", okHandler, musicapi.WithRateLimit(limited.CategoryWrite))

	req := musicapi.Request{
		Method:   "POST",
		Path:     "/api/v1/admin/mut",
		SourceIP: "198.51.100.7",
		Headers:  map[string][]string{"origin": {"https://music.mariolopez.org"}},
	}
	for i := 0; i < 10; i++ {
		resp := env.Invoke(context.Background(), app, req)
		require.Equal(t, http.StatusOK, resp.Status, "request %d", i+1)
	}

	resp := env.Invoke(context.Background(), app, req)
	require.Equal(t, http.StatusTooManyRequests, resp.Status)
	require.Equal(t, musicapi.ErrorBody{Error: "Too Many Requests", Message: "Please try again later"}, decodeError(t, resp))
	require.Equal(t, []string{"50"}, resp.Headers["retry-after"])
	require.Equal(t, []string{"10"}, resp.Headers["x-ratelimit-limit"])
	require.Equal(t, []string{"0"}, resp.Headers["x-ratelimit-remaining"])
	require.Equal(t, []string{"https://music.mariolopez.org"}, resp.Headers["access-control-allow-origin"])
	require.Equal(t, 1.0, pub.Sum(musicapi.MetricRateLimitExceeded))

	other := req
	other.SourceIP = "198.51.100.8"
	require.Equal(t, http.StatusOK, env.Invoke(context.Background(), app, other).Status)

	env.Clock.Advance(time.Minute)
	require.Equal(t, http.StatusOK, env.Invoke(context.Background(), app, req).Status)
}

func TestServeRateLimitsExternalAPITier(t *testing.T) {
	env := testkit.NewWithTime(epoch)
	limiter := limited.NewLimiter(limited.NewMemoryStore())
	limiter.SetClock(env.Clock)
	app := env.App(musicapi.WithRateLimiter(limiter))
	app.Get("/api/v1/musicbrainz/{path+}", okHandler, musicapi.WithRateLimit(limited.CategoryExternalAPI))

	req := musicapi.Request{
		Method:  "GET",
		Path:    "/api/v1/musicbrainz/artist",
		Headers: map[string][]string{
			"x-forwarded-for": {"203.0.113.9, 10.0.0.1"},
			"origin":          {"https://music.mariolopez.org"},
		},
	}
	for i := 0; i < 30; i++ {
		require.Equal(t, http.StatusOK, env.Invoke(context.Background(), app, req).Status, "request %d", i+1)
	}
	resp := env.Invoke(context.Background(), app, req)
	require.Equal(t, http.StatusTooManyRequests, resp.Status)
	require.Equal(t, []string{"30"}, resp.Headers["x-ratelimit-limit"])
	require.Equal(t, []string{"0"}, resp.Headers["x-ratelimit-remaining"])

	require.Len(t, resp.Headers["retry-after"], 1)
	retryAfter, err := strconv.Atoi(resp.Headers["retry-after"][0])
	require.NoError(t, err)
	require.Positive(t, retryAfter)
	require.LessOrEqual(t, retryAfter, 60)

	require.Equal(t, []string{"https://music.mariolopez.org"}, resp.Headers["access-control-allow-origin"])
	require.NotEmpty(t, resp.Headers["access-control-allow-methods"])
}

type brokenStore struct{}

func (brokenStore) Increment(context.Context, limited.Bucket) (int64, error) {
	return 0, errors.New("connection refused")
}

func TestServeRateLimitFailsOpen(t *testing.T) {
	env := testkit.NewWithTime(epoch)
	limiter := limited.NewLimiter(brokenStore{})
	limiter.SetClock(env.Clock)
	pub := metrics.NewMemoryPublisher()
	logger := observability.NewTestLogger()
	app := env.App(musicapi.WithRateLimiter(limiter), musicapi.WithMetricsPublisher(pub), musicapi.WithLogger(logger))

	var seen *limited.Decision
	app.Get("/x", func(c *musicapi.Context) (*musicapi.Response, error) {
		seen = c.RateLimit
		return c.Success(http.StatusOK, map[string]bool{"ok": true})
	}, musicapi.WithRateLimit(limited.CategoryRead))

	resp := env.Invoke(context.Background(), app, musicapi.Request{Method: "GET", Path: "/x"})
	require.Equal(t, http.StatusOK, resp.Status)
	require.NotNil(t, seen)
	require.True(t, seen.Allowed)
	require.Equal(t, 1.0, pub.Sum(musicapi.MetricRateLimitStoreError))
	require.True(t, logger.HasMessage("rate limit store unavailable"))
}

func TestServeRequestIDSources(t *testing.T) {
	env := testkit.NewWithTime(epoch)
	app := env.App()
	app.Get("/x", func(c *musicapi.Context) (*musicapi.Response, error) {
		return c.Success(http.StatusOK, map[string]string{"id": c.RequestID})
	})

	resp := env.Invoke(context.Background(), app, musicapi.Request{
		Method:  "GET",
		Path:    "/x",
		Headers: map[string][]string{"X-Request-Id": {"client-1"}},
	})
	require.Equal(t, []string{"client-1"}, resp.Headers["x-request-id"])

	resp = env.Invoke(context.Background(), app, musicapi.Request{Method: "GET", Path: "/x", GatewayRequestID: "gw-7"})
	require.JSONEq(t, `{"id":"gw-7"}`, string(resp.Body))
}

func TestServeLogsSpan(t *testing.T) {
	env := testkit.NewWithTime(epoch)
	logger := observability.NewTestLogger()
	app := env.App(musicapi.WithLogger(logger))
	app.Get("/api/v1/integration/song-history", func(c *musicapi.Context) (*musicapi.Response, error) {
		c.Span().SetAttribute("table", "songs")
		env.Clock.Advance(25 * time.Millisecond)
		return c.Success(http.StatusOK, []string{})
	})

	env.Invoke(context.Background(), app, musicapi.Request{Method: "GET", Path: "/api/v1/integration/song-history"})

	var span *observability.LogEntry
	for _, entry := range logger.Entries() {
		if entry.Message == "span.finished" {
			e := entry
			span = &e
		}
	}
	require.NotNil(t, span)
	require.Equal(t, "songs", span.Fields["span.table"])
	require.Equal(t, "/api/v1/integration/song-history", span.Fields["span.route"])
	require.EqualValues(t, 25, span.Fields["duration_ms"])
}
