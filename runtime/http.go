package musicapi

import (
	"io"
	"net"
	"net/http"
)

const maxLocalBodyBytes = 1 << 20

// ServeHTTP lets an App run behind a plain HTTP server for local development.
func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxLocalBodyBytes))
	if err != nil {
		body = nil
	}

	sourceIP := r.RemoteAddr
	if host, _, splitErr := net.SplitHostPort(r.RemoteAddr); splitErr == nil {
		sourceIP = host
	}

	resp := a.Serve(r.Context(), Request{
		Method:   r.Method,
		Path:     r.URL.Path,
		Query:    map[string][]string(r.URL.Query()),
		Headers:  map[string][]string(r.Header),
		Body:     body,
		SourceIP: sourceIP,
	})

	for key, values := range resp.Headers {
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	w.WriteHeader(resp.Status)
	_, _ = w.Write(resp.Body)
}
