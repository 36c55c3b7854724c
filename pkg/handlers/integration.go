package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	musicapi "github.com/theory-cloud/musicapi/runtime"

	"github.com/theory-cloud/musicapi/pkg/applemusic"
	"github.com/theory-cloud/musicapi/pkg/cache"
	"github.com/theory-cloud/musicapi/pkg/devtoken"
	"github.com/theory-cloud/musicapi/pkg/musicbrainz"
	"github.com/theory-cloud/musicapi/pkg/songhistory"
)

const (
	developerTokenMaxAge = 12 * time.Hour
	placeholderToken     = "placeholder"

	messageTokensExpired = "One or more authentication tokens have expired. An admin has been notified to refresh them."
)

type mutStatusBody struct {
	Authorized     bool    `json:"authorized"`
	Message        string  `json:"message"`
	MusicUserToken *string `json:"musicUserToken"`
}

func (h *handlers) mutStatus(c *musicapi.Context) (*musicapi.Response, error) {
	name, err := c.RequireEnv(EnvMusicUserTokenParam)
	if err != nil {
		return nil, err
	}
	c.Metrics().Add("MUTStatusCheck", 1)

	token, err := c.Parameter(name)
	if err != nil {
		c.Logger().Info("Apple Music User Token not found in Parameter Store", map[string]any{"error": err.Error()})
		c.Metrics().Add("MUTNotAuthorized", 1)
		return c.Success(http.StatusOK, mutStatusBody{Message: "Apple Music User Token not found"})
	}

	status := mutStatusBody{Message: "Apple Music token is invalid or placeholder"}
	if t := strings.TrimSpace(token); t != "" && t != placeholderToken {
		status = mutStatusBody{
			Authorized:     true,
			Message:        "Apple Music is authorized and token is valid",
			MusicUserToken: &token,
		}
		c.Metrics().Add("MUTAuthorized", 1)
	} else {
		c.Metrics().Add("MUTNotAuthorized", 1)
	}
	return c.Success(http.StatusOK, status)
}

func (h *handlers) developerToken(c *musicapi.Context) (*musicapi.Response, error) {
	cfg := devtoken.Config{}
	var err error
	if cfg.SecretName, err = c.RequireEnv(EnvAppleAuthKeySecret); err != nil {
		return nil, err
	}
	if cfg.TeamID, err = c.RequireEnv(EnvAppleTeamID); err != nil {
		return nil, err
	}
	if cfg.KeyID, err = c.RequireEnv(EnvAppleKeyID); err != nil {
		return nil, err
	}
	if h.deps.Tokens == nil {
		return nil, errors.New("handlers: no developer token generator configured")
	}

	c.Metrics().Add("TokenGenerationAttempt", 1)
	token, err := h.deps.Tokens.Generate(c.Context(), cfg)
	if err != nil {
		c.Metrics().Add("TokenGenerationError", 1)
		return nil, musicapi.NewUpstreamError(http.StatusInternalServerError, "Failed to generate developer token", err)
	}
	c.Metrics().Add("TokenGenerationSuccess", 1)
	return c.Success(http.StatusOK, map[string]string{"token": token}, map[string]string{
		"cache-control": musicapi.CacheControlPrivate(developerTokenMaxAge),
	})
}

func (h *handlers) musicBrainz(c *musicapi.Context) (*musicapi.Response, error) {
	req, err := musicbrainz.ParsePath(c.Request.Path, firstValues(c.Request.Query))
	if err != nil {
		return nil, musicapi.NewValidationError("No entity specified")
	}

	opts := cache.DefaultOptions()
	opts.TTL = h.deps.MusicBrainzTTL
	return musicapi.Cached(c, opts, func(ctx context.Context) (any, error) {
		switch req.Kind {
		case musicbrainz.KindSearch:
			c.Metrics().Add("SearchRequest", 1)
		case musicbrainz.KindLookup:
			c.Metrics().Add("LookupRequest", 1)
		case musicbrainz.KindBrowse:
			c.Metrics().Add("BrowseRequest", 1)
		default:
			c.Metrics().Add("DirectApiCall", 1)
		}
		body, err := h.deps.MusicBrainz.Do(ctx, req)
		if err != nil {
			return nil, upstream("MusicBrainz request failed", err, musicBrainzStatus(err))
		}
		return body, nil
	})
}

func (h *handlers) appleMusic(c *musicapi.Context) (*musicapi.Response, error) {
	developer := applemusic.BearerToken(c.Request.Header("authorization"))
	if developer == "" {
		c.Logger().Warn("Missing developer token")
		c.Metrics().Add("AuthError", 1)
		return nil, musicapi.NewUnauthorizedError("Developer token is required")
	}
	endpoint, err := applemusic.ExtractEndpoint(c.Request.Path)
	if err != nil {
		return nil, musicapi.NewValidationError("Invalid Apple Music path")
	}

	opts := cache.DefaultOptions()
	opts.TTL = h.deps.AppleMusicTTL
	resp, err := musicapi.Cached(c, opts, func(ctx context.Context) (any, error) {
		name, err := c.RequireEnv(EnvMusicUserTokenParam)
		if err != nil {
			return nil, err
		}
		mut, err := c.RequireParameter(name)
		if err != nil {
			return nil, err
		}
		return h.deps.AppleMusic.Get(ctx, endpoint, url.Values(c.Request.Query), applemusic.Tokens{
			Developer: developer,
			MusicUser: mut,
		})
	})
	if err == nil {
		c.Metrics().Add("ApiFetchSuccess", 1)
		return resp, nil
	}
	if errors.Is(err, applemusic.ErrTokenExpired) {
		c.Logger().Info("Token expiration detected, triggering refresh notification")
		c.Metrics().Add("TokenExpirationDetected", 1)
		h.requestTokenRefresh(c)
		return nil, &musicapi.AppError{
			Kind:    musicapi.KindUnauthorized,
			Status:  http.StatusUnauthorized,
			Message: messageTokensExpired,
			Cause:   err,
		}
	}
	var apiErr *applemusic.APIError
	if errors.As(err, &apiErr) {
		return nil, upstream("Apple Music request failed", err, apiErr.Status)
	}
	return nil, err
}

func (h *handlers) requestTokenRefresh(c *musicapi.Context) {
	if h.deps.Refresher == nil {
		c.Logger().Warn("no token refresh notifier configured")
		return
	}
	id, err := h.deps.Refresher.RequestTokenRefresh(c.Context(), "", "")
	if err != nil {
		c.Logger().Error("Failed to send token refresh notification", map[string]any{"error": err.Error()})
		return
	}
	c.Logger().Info("Successfully sent token refresh notification", map[string]any{"message_id": id})
}

func (h *handlers) songHistory(c *musicapi.Context) (*musicapi.Response, error) {
	paramName, err := c.RequireEnv(EnvSongTableParameter)
	if err != nil {
		return nil, err
	}
	table, err := c.RequireParameter(paramName)
	if err != nil {
		return nil, err
	}
	if h.deps.SongStore == nil {
		return nil, errors.New("handlers: no song history store configured")
	}

	paging := c.QueryParams()
	q := songhistory.Query{
		Limit:    paging.Limit,
		Artist:   strings.TrimSpace(c.Request.QueryValue("artist")),
		StartKey: paging.StartKey,
	}
	if q.Artist != "" {
		c.Metrics().Add("ArtistFilteredQuery", 1)
	} else {
		c.Metrics().Add("AllSongsQuery", 1)
	}

	page, err := h.deps.SongStore(table).Songs(c.Context(), q)
	if errors.Is(err, songhistory.ErrInvalidStartKey) {
		return nil, musicapi.NewValidationError("Invalid startKey")
	}
	if err != nil {
		return nil, musicapi.NewUpstreamError(http.StatusInternalServerError, "Failed to fetch music history", err)
	}
	c.Metrics().Add("ResultCount", float64(len(page.Items)))
	return c.Success(http.StatusOK, musicapi.NewPage(page.Items, page.LastKey))
}

// upstream maps a dependency failure to a client error. Upstream 5xx and transport failures
// become 502; upstream 4xx statuses pass through.
func upstream(message string, err error, status int) error {
	if status < 400 || status >= 500 {
		status = http.StatusBadGateway
	}
	return musicapi.NewUpstreamError(status, message, err)
}

func musicBrainzStatus(err error) int {
	var apiErr *musicbrainz.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

func firstValues(query map[string][]string) map[string]string {
	out := make(map[string]string, len(query))
	for k, vs := range query {
		if len(vs) > 0 {
			out[k] = vs[0]
		}
	}
	return out
}
