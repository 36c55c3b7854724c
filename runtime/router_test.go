package musicapi

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func noopHandler(*Context) (*Response, error) { return nil, nil }

func TestRouterMatch(t *testing.T) {
	r := newRouter()
	require.NoError(t, r.addStrict("GET", "/api/v1/integration/apple-music/{path+}", noopHandler, routeOptions{name: "proxy"}))
	require.NoError(t, r.addStrict("GET", "/api/v1/integration/apple-music/mut-status", noopHandler, routeOptions{name: "status"}))
	require.NoError(t, r.addStrict("GET", "/api/v1/songs/{id}", noopHandler, routeOptions{name: "song"}))
	require.NoError(t, r.addStrict("POST", "/api/v1/songs/{id}", noopHandler, routeOptions{}))
	require.NoError(t, r.addStrict("GET", "/", noopHandler, routeOptions{name: "root"}))

	cases := []struct {
		path   string
		name   string
		params map[string]string
	}{
		{"/api/v1/integration/apple-music/mut-status", "status", map[string]string{}},
		{"/api/v1/integration/apple-music/me/recent/played/tracks", "proxy", map[string]string{"path": "me/recent/played/tracks"}},
		{"/api/v1/songs/42", "song", map[string]string{"id": "42"}},
		{"/api/v1/songs/42/", "song", map[string]string{"id": "42"}},
		{"/", "root", map[string]string{}},
	}
	for _, tc := range cases {
		t.Run(tc.path, func(t *testing.T) {
			m, _ := r.match("get", tc.path)
			require.NotNil(t, m)
			require.Equal(t, tc.name, m.Route.Name)
			require.Equal(t, tc.params, m.Params)
		})
	}

	m, allowed := r.match("DELETE", "/api/v1/songs/42")
	require.Nil(t, m)
	require.Equal(t, "GET, POST", formatAllowHeader(allowed))

	for _, path := range []string{"/api/v1/integration/apple-music", "/api/v1/songs", "/api/v1/songs/42/extra", "/api/v1//x"} {
		m, _ := r.match("GET", path)
		require.Nil(t, m, path)
	}
}

func TestRouterRejectsInvalidPatterns(t *testing.T) {
	r := newRouter()
	require.ErrorContains(t, r.addStrict("GET", "/a/{rest+}/b", noopHandler, routeOptions{}), "proxy segment must be last")
	require.ErrorContains(t, r.addStrict("GET", "/a/{}", noopHandler, routeOptions{}), "invalid route segment")
	require.ErrorContains(t, r.addStrict("GET", "/a/b{c}", noopHandler, routeOptions{}), "invalid route segment")
	require.Error(t, r.addStrict("GET", "/a", nil, routeOptions{}))
	require.Empty(t, r.routes)
}
