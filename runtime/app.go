// Package musicapi is the handler runtime for the music API Lambdas.
//
// An App owns routing, CORS, rate limiting and the error boundary. Each invocation gets a
// fresh Context with a scoped logger, a metrics recorder and a span.
package musicapi

import (
	"os"
	"strings"

	"github.com/theory-cloud/musicapi/pkg/cache"
	"github.com/theory-cloud/musicapi/pkg/limited"
	"github.com/theory-cloud/musicapi/pkg/metrics"
	"github.com/theory-cloud/musicapi/pkg/observability"
	"github.com/theory-cloud/musicapi/pkg/params"
)

// EnvLookup resolves environment variables.
type EnvLookup func(name string) (string, bool)

// App is the root container for a music API function.
type App struct {
	router    *router
	clock     Clock
	ids       IDGenerator
	cors      CORSConfig
	service   string
	namespace string
	logger    observability.StructuredLogger
	publisher metrics.Publisher
	limiter   *limited.Limiter
	params    params.Reader
	env       EnvLookup
	cache     *cache.Cache
}

type Option func(*App)

// New creates an App. Without options it uses the real clock, ULIDs, the site CORS policy,
// a no-op logger and no rate limiter.
func New(opts ...Option) *App {
	app := &App{
		router:    newRouter(),
		clock:     RealClock{},
		ids:       ULIDGenerator{},
		cors:      DefaultCORSConfig(),
		service:   "musicapi",
		namespace: "MusicAPI",
		logger:    observability.NewNoOpLogger(),
		publisher: metrics.NopPublisher{},
		env:       os.LookupEnv,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(app)
	}
	if app.cache == nil {
		app.cache = cache.New(cache.WithClock(app.clock), cache.WithLogger(app.logger))
	}
	return app
}

func WithClock(clock Clock) Option {
	return func(app *App) {
		if clock == nil {
			clock = RealClock{}
		}
		app.clock = clock
	}
}

func WithIDGenerator(ids IDGenerator) Option {
	return func(app *App) {
		if ids == nil {
			ids = ULIDGenerator{}
		}
		app.ids = ids
	}
}

// WithService names the function in logs and metric dimensions.
func WithService(name string) Option {
	return func(app *App) {
		if name = strings.TrimSpace(name); name != "" {
			app.service = name
		}
	}
}

func WithMetricsNamespace(namespace string) Option {
	return func(app *App) {
		if namespace = strings.TrimSpace(namespace); namespace != "" {
			app.namespace = namespace
		}
	}
}

func WithLogger(logger observability.StructuredLogger) Option {
	return func(app *App) {
		if logger != nil {
			app.logger = logger
		}
	}
}

func WithMetricsPublisher(publisher metrics.Publisher) Option {
	return func(app *App) {
		if publisher != nil {
			app.publisher = publisher
		}
	}
}

// WithRateLimiter enables the rate-limit step for routes registered with WithRateLimit.
func WithRateLimiter(limiter *limited.Limiter) Option {
	return func(app *App) {
		app.limiter = limiter
	}
}

// WithParameters sets the reader behind Context.RequireParameter.
func WithParameters(reader params.Reader) Option {
	return func(app *App) {
		app.params = reader
	}
}

// WithEnv replaces os.LookupEnv for Context.RequireEnv.
func WithEnv(lookup EnvLookup) Option {
	return func(app *App) {
		if lookup != nil {
			app.env = lookup
		}
	}
}

// WithCache sets the response cache used by Cached.
func WithCache(c *cache.Cache) Option {
	return func(app *App) {
		app.cache = c
	}
}

// Service is the configured service name.
func (a *App) Service() string {
	return a.service
}

// Handle registers handler for method and pattern. Invalid patterns are ignored; use
// HandleStrict to surface them.
func (a *App) Handle(method, pattern string, handler Handler, opts ...RouteOption) *App {
	_ = a.HandleStrict(method, pattern, handler, opts...)
	return a
}

func (a *App) HandleStrict(method, pattern string, handler Handler, opts ...RouteOption) error {
	routeOpts := routeOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&routeOpts)
		}
	}
	return a.router.addStrict(method, pattern, handler, routeOpts)
}

func (a *App) Get(pattern string, handler Handler, opts ...RouteOption) *App {
	return a.Handle("GET", pattern, handler, opts...)
}

func (a *App) Post(pattern string, handler Handler, opts ...RouteOption) *App {
	return a.Handle("POST", pattern, handler, opts...)
}

// MapEnv adapts a fixed map for WithEnv.
func MapEnv(values map[string]string) EnvLookup {
	return func(name string) (string, bool) {
		v, ok := values[name]
		return v, ok
	}
}
