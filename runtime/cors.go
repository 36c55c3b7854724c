package musicapi

import "strings"

// CORSConfig controls the cross-origin headers attached to every response.
//
// An allowed origin is echoed back with credentials enabled; any other origin gets the
// wildcard fallback with credentials disabled.
type CORSConfig struct {
	AllowedOrigins []string
	AllowHeaders   []string
}

var defaultAllowedOrigins = []string{
	"https://music.mariolopez.org",
	"https://www.music.mariolopez.org",
	"http://localhost:3000",
}

var defaultAllowHeaders = []string{
	"Content-Type",
	"X-Amz-Date",
	"Authorization",
	"X-Api-Key",
	"X-Amz-Security-Token",
}

// DefaultCORSConfig is the configuration used by the music site.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowedOrigins: append([]string(nil), defaultAllowedOrigins...),
		AllowHeaders:   append([]string(nil), defaultAllowHeaders...),
	}
}

func WithCORS(config CORSConfig) Option {
	return func(app *App) {
		app.cors = normalizeCORSConfig(config)
	}
}

func normalizeCORSConfig(in CORSConfig) CORSConfig {
	cfg := CORSConfig{}
	for _, origin := range in.AllowedOrigins {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, trimmed)
		}
	}
	for _, header := range in.AllowHeaders {
		if trimmed := strings.TrimSpace(header); trimmed != "" {
			cfg.AllowHeaders = append(cfg.AllowHeaders, trimmed)
		}
	}
	if len(cfg.AllowHeaders) == 0 {
		cfg.AllowHeaders = append([]string(nil), defaultAllowHeaders...)
	}
	return cfg
}

func (cfg CORSConfig) originAllowed(origin string) bool {
	origin = strings.TrimSpace(origin)
	if origin == "" {
		return false
	}
	for _, allowed := range cfg.AllowedOrigins {
		if allowed == origin {
			return true
		}
	}
	return false
}

// Headers returns the CORS headers for a request from origin using method.
func (cfg CORSConfig) Headers(origin, method string) map[string]string {
	allowOrigin := "*"
	credentials := "false"
	if cfg.originAllowed(origin) {
		allowOrigin = strings.TrimSpace(origin)
		credentials = "true"
	}

	method = strings.ToUpper(strings.TrimSpace(method))
	methods := "OPTIONS"
	if method != "" && method != "OPTIONS" {
		methods = method + ",OPTIONS"
	}

	headers := map[string]string{
		"access-control-allow-origin":      allowOrigin,
		"access-control-allow-credentials": credentials,
		"access-control-allow-methods":     methods,
		"access-control-allow-headers":     strings.Join(cfg.AllowHeaders, ","),
	}
	if allowOrigin != "*" {
		headers["vary"] = "Origin"
	}
	return headers
}

func isCORSPreflight(method string) bool {
	return strings.ToUpper(strings.TrimSpace(method)) == "OPTIONS"
}
