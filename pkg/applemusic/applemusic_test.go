package applemusic

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractEndpoint(t *testing.T) {
	cases := map[string]string{
		"/me/recent/played/tracks":                                "/me/recent/played/tracks",
		"/api/v1/integration/apple-music/me/recent/played/tracks": "/me/recent/played/tracks",
		"/prod/nodejs/v1/apple-music/catalog/us/songs/123":        "/catalog/us/songs/123",
		"/api/v1/integration/apple-music/storefronts":             "/storefronts",
		"/apple-music/ratings":                                    "/ratings",
		"/something/else":                                         "/something/else",
	}
	for in, want := range cases {
		t.Run(in, func(t *testing.T) {
			got, err := ExtractEndpoint(in)
			require.NoError(t, err)
			require.Equal(t, want, got)
		})
	}

	_, err := ExtractEndpoint("")
	require.Error(t, err)
}

func TestClientGet(t *testing.T) {
	var gotAuth, gotMUT, gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotMUT = r.Header.Get("Music-User-Token")
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(`{"data":[{"id":"1"}]}`))
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL + "/v1/"))
	body, err := c.Get(context.Background(), "/me/recent/played/tracks", url.Values{"limit": {"10"}}, Tokens{Developer: "dev", MusicUser: "mut"})
	require.NoError(t, err)
	require.JSONEq(t, `{"data":[{"id":"1"}]}`, string(body))
	require.Equal(t, "Bearer dev", gotAuth)
	require.Equal(t, "mut", gotMUT)
	require.Equal(t, "/v1/me/recent/played/tracks", gotPath)
	require.Equal(t, "limit=10", gotQuery)

	_, err = c.Get(context.Background(), "/me", nil, Tokens{})
	require.ErrorContains(t, err, "developer token is required")
}

func TestTokenExpiry(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		body    string
		expired bool
	}{
		{"code", http.StatusUnauthorized, `{"errors":[{"code":"AUTH_TOKEN_EXPIRED"}]}`, true},
		{"title", http.StatusUnauthorized, `{"errors":[{"code":"40100","title":"Token Expired"}]}`, true},
		{"message", http.StatusUnauthorized, `{"message":"user token expired"}`, true},
		{"other 401", http.StatusUnauthorized, `{"errors":[{"code":"UNAUTHORIZED"}]}`, false},
		{"not json", http.StatusUnauthorized, `expired`, false},
		{"forbidden", http.StatusForbidden, `{"errors":[{"code":"AUTH_TOKEN_EXPIRED"}]}`, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			_, err := NewClient(WithBaseURL(srv.URL)).Get(context.Background(), "/me", nil, Tokens{Developer: "dev"})
			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			require.Equal(t, tc.status, apiErr.Status)
			require.Equal(t, tc.expired, errors.Is(err, ErrTokenExpired))
		})
	}
}

func TestBearerToken(t *testing.T) {
	require.Equal(t, "abc", BearerToken("Bearer abc"))
	require.Equal(t, "abc", BearerToken("bearer abc "))
	require.Equal(t, "abc", BearerToken("abc"))
	require.Equal(t, "", BearerToken(""))
}
