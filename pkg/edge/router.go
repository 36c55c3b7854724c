// Package edge rewrites CloudFront viewer requests for the music frontend.
//
// The root path is sent to a randomly chosen site version; a version root is rewritten to its
// index.html; files inside a version pass through untouched.
package edge

import (
	"errors"
	"math/rand/v2"
	"strings"

	"github.com/theory-cloud/musicapi/pkg/observability"
)

const (
	MetricInvocationCount     = "InvocationCount"
	MetricRouteRandomized     = "RouteRandomized"
	MetricVersionIndexRewrite = "VersionIndexRewrite"
	MetricVersionFileRequest  = "VersionFileRequest"
	MetricUnknownPathRequest  = "UnknownPathRequest"
)

// SiteVersions are the published frontend builds.
var SiteVersions = []string{"/react"}

// ViewerRequestEvent is the Lambda@Edge viewer-request payload.
type ViewerRequestEvent struct {
	Records []Record `json:"Records"`
}

type Record struct {
	CF struct {
		Config  Config  `json:"config"`
		Request Request `json:"request"`
	} `json:"cf"`
}

type Config struct {
	DistributionID string `json:"distributionId"`
	EventType      string `json:"eventType"`
}

// Request is the subset of the CloudFront request this router reads and returns.
type Request struct {
	ClientIP    string              `json:"clientIp"`
	Method      string              `json:"method"`
	URI         string              `json:"uri"`
	Querystring string              `json:"querystring"`
	Headers     map[string][]Header `json:"headers"`
}

type Header struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Recorder receives routing metrics.
type Recorder interface {
	Add(name string, value float64)
}

// Router rewrites viewer request URIs.
type Router struct {
	versions []string
	pick     func(n int) int
	logger   observability.StructuredLogger
}

type Option func(*Router)

// WithVersions overrides SiteVersions.
func WithVersions(versions ...string) Option {
	return func(r *Router) {
		r.versions = nil
		for _, v := range versions {
			v = "/" + strings.Trim(strings.TrimSpace(v), "/")
			if v != "/" {
				r.versions = append(r.versions, v)
			}
		}
	}
}

// WithPicker replaces the random index source.
func WithPicker(pick func(n int) int) Option {
	return func(r *Router) {
		if pick != nil {
			r.pick = pick
		}
	}
}

func WithLogger(logger observability.StructuredLogger) Option {
	return func(r *Router) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func NewRouter(opts ...Option) *Router {
	r := &Router{
		versions: append([]string(nil), SiteVersions...),
		pick:     rand.IntN,
		logger:   observability.NewNoOpLogger(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

var ErrNoRecords = errors.New("edge: viewer request event has no records")

// Handle returns the request CloudFront should forward to the origin.
func (r *Router) Handle(event ViewerRequestEvent, metrics Recorder) (Request, error) {
	if len(event.Records) == 0 {
		return Request{}, ErrNoRecords
	}
	if metrics == nil {
		metrics = nopRecorder{}
	}
	metrics.Add(MetricInvocationCount, 1)

	req := event.Records[0].CF.Request
	req.URI = r.Rewrite(req.URI, metrics)
	return req, nil
}

// Rewrite maps one URI.
func (r *Router) Rewrite(uri string, metrics Recorder) string {
	if metrics == nil {
		metrics = nopRecorder{}
	}

	if uri == "/" && len(r.versions) > 0 {
		selected := r.versions[r.pick(len(r.versions))]
		r.logger.Info("Applying route randomization for root", map[string]any{
			"original_uri":     uri,
			"selected_version": selected,
		})
		metrics.Add(MetricRouteRandomized, 1)
		return selected + "/index.html"
	}

	for _, version := range r.versions {
		if uri == version || uri == version+"/" {
			r.logger.Info("Request is for version root, rewriting to index.html", map[string]any{"original_uri": uri})
			metrics.Add(MetricVersionIndexRewrite, 1)
			return version + "/index.html"
		}
		if strings.HasPrefix(uri, version+"/") {
			metrics.Add(MetricVersionFileRequest, 1)
			return uri
		}
	}

	r.logger.Warn("Request URI does not match known versions and is not root", map[string]any{"uri": uri})
	metrics.Add(MetricUnknownPathRequest, 1)
	return uri
}

type nopRecorder struct{}

func (nopRecorder) Add(string, float64) {}
