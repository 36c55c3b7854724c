// Package applemusic proxies read requests to the Apple Music API on behalf of a caller that
// holds a developer token and a music user token.
package applemusic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

const DefaultBaseURL = "https://api.music.apple.com/v1"

// ErrTokenExpired matches (via errors.Is) an APIError caused by an expired developer or user
// token.
var ErrTokenExpired = errors.New("applemusic: token expired")

var (
	directEndpoint = regexp.MustCompile(`^/(me|catalog|albums|artists|songs|playlists|stations|charts|search|recommendations|activities|storefronts)/.*`)
	knownEndpoint  = regexp.MustCompile(`/(me|catalog|albums|artists|songs|playlists|stations|charts|search|recommendations|activities|storefronts)/.*`)
)

// prefixes are tried in order when a path carries no recognizable endpoint.
var prefixes = []string{
	"/v1/apple-music",
	"/api/nodejs/v1/apple-music",
	"/prod/nodejs/v1/apple-music",
	"/nodejs/v1/apple-music",
	"/api/v1/integration/apple-music",
	"/api/v1/apple-music",
	"/api/nodejs/apple-music",
	"/apple-music",
}

// ExtractEndpoint reduces an API path such as
// `/api/v1/integration/apple-music/me/recent/played/tracks` to the Apple Music endpoint
// `/me/recent/played/tracks`. Unrecognized paths are returned unchanged.
func ExtractEndpoint(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errors.New("applemusic: path cannot be empty")
	}
	if directEndpoint.MatchString(path) {
		return path, nil
	}
	if m := knownEndpoint.FindString(path); m != "" {
		return m, nil
	}
	for _, prefix := range prefixes {
		idx := strings.Index(path, prefix)
		if idx < 0 {
			continue
		}
		clean := path[idx+len(prefix):]
		if !strings.HasPrefix(clean, "/") {
			clean = "/" + clean
		}
		if clean == "/" {
			continue
		}
		return clean, nil
	}
	return path, nil
}

// APIError is a non-2xx response from Apple Music.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("applemusic: status %d: %s", e.Status, e.Body)
}

// Is reports ErrTokenExpired for 401 responses that name an expired token.
func (e *APIError) Is(target error) bool {
	return target == ErrTokenExpired && e.TokenExpired()
}

type errorPayload struct {
	Errors []struct {
		Code  string `json:"code"`
		Title string `json:"title"`
	} `json:"errors"`
	Message string `json:"message"`
}

// TokenExpired inspects the Apple error document for expiry markers.
func (e *APIError) TokenExpired() bool {
	if e == nil || e.Status != http.StatusUnauthorized {
		return false
	}
	var payload errorPayload
	if err := json.Unmarshal([]byte(e.Body), &payload); err != nil {
		return false
	}
	for _, item := range payload.Errors {
		if item.Code == "AUTH_TOKEN_EXPIRED" || strings.Contains(item.Title, "Expired") {
			return true
		}
	}
	return strings.Contains(payload.Message, "expired")
}

// Tokens authenticate one Apple Music call.
type Tokens struct {
	Developer string
	MusicUser string
}

// Client calls the Apple Music API.
type Client struct {
	baseURL string
	http    *http.Client
}

type Option func(*Client)

func WithBaseURL(base string) Option {
	return func(c *Client) {
		if base = strings.TrimRight(strings.TrimSpace(base), "/"); base != "" {
			c.baseURL = base
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

func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// URL is the absolute URL for an endpoint path.
func (c *Client) URL(endpoint string, query url.Values) string {
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	u := c.baseURL + endpoint
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// Get fetches endpoint and returns the raw JSON document.
func (c *Client) Get(ctx context.Context, endpoint string, query url.Values, tokens Tokens) (json.RawMessage, error) {
	if strings.TrimSpace(tokens.Developer) == "" {
		return nil, errors.New("applemusic: developer token is required")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL(endpoint, query), nil)
	if err != nil {
		return nil, fmt.Errorf("applemusic: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+tokens.Developer)
	if tokens.MusicUser != "" {
		req.Header.Set("Music-User-Token", tokens.MusicUser)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("applemusic: %s: %w", endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("applemusic: read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if len(body) == 0 {
		return json.RawMessage("null"), nil
	}
	if !json.Valid(body) {
		return nil, errors.New("applemusic: response is not JSON")
	}
	return json.RawMessage(body), nil
}

// BearerToken strips the `Bearer ` scheme from an Authorization header value.
func BearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return header
}
