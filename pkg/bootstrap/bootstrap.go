// Package bootstrap assembles the Lambda functions from configuration and AWS clients.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/redis/go-redis/v9"

	"github.com/theory-cloud/musicapi/pkg/applemusic"
	"github.com/theory-cloud/musicapi/pkg/awsclient"
	"github.com/theory-cloud/musicapi/pkg/cache"
	"github.com/theory-cloud/musicapi/pkg/config"
	"github.com/theory-cloud/musicapi/pkg/devtoken"
	"github.com/theory-cloud/musicapi/pkg/handlers"
	"github.com/theory-cloud/musicapi/pkg/limited"
	"github.com/theory-cloud/musicapi/pkg/metrics"
	"github.com/theory-cloud/musicapi/pkg/musicbrainz"
	"github.com/theory-cloud/musicapi/pkg/notify"
	"github.com/theory-cloud/musicapi/pkg/observability"
	obszap "github.com/theory-cloud/musicapi/pkg/observability/zap"
	"github.com/theory-cloud/musicapi/pkg/params"
	"github.com/theory-cloud/musicapi/pkg/songhistory"
	musicapi "github.com/theory-cloud/musicapi/runtime"
)

type snsAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Runtime is the process-wide state shared by every invocation of one function.
type Runtime struct {
	Config *config.Config
	AWS    *awsclient.Clients
	Logger observability.StructuredLogger
}

// Load reads configuration, builds the AWS clients and the logger. service replaces the
// configured service name unless SERVICE_NAME is set explicitly.
func Load(ctx context.Context, service string) (*Runtime, error) {
	cfg, err := config.Load(os.Getenv(config.FileEnv))
	if err != nil {
		return nil, err
	}
	if service != "" && strings.TrimSpace(os.Getenv("SERVICE_NAME")) == "" {
		cfg.Service.ServiceName = service
	}

	awsCfg, err := awsclient.Load(ctx, cfg.AWS)
	if err != nil {
		return nil, err
	}
	clients := awsclient.New(awsCfg)

	logger, err := NewLogger(cfg, clients.SNS)
	if err != nil {
		return nil, err
	}
	return &Runtime{Config: cfg, AWS: clients, Logger: logger}, nil
}

// NewLogger builds the zap logger. Error entries go to the error topic when one is configured
// and client is non-nil.
func NewLogger(cfg *config.Config, client snsAPI) (observability.StructuredLogger, error) {
	var opts []obszap.Option
	if topic := strings.TrimSpace(cfg.Service.ErrorTopicARN); topic != "" && client != nil {
		opts = append(opts, obszap.WithSNSErrorNotifications(client, topic, cfg.Service.ServiceName+" error"))
	}
	return obszap.NewZapLogger(cfg.Logger(), opts...)
}

// Publisher is CloudWatch when metrics are enabled and a no-op otherwise.
func (r *Runtime) Publisher() metrics.Publisher {
	if !r.Config.Service.MetricsEnabled || r.AWS == nil {
		return metrics.NopPublisher{}
	}
	return metrics.NewCloudWatchPublisher(r.AWS.CloudWatch, r.Config.Service.MetricsNamespace)
}

// Options are the App options every function shares.
func (r *Runtime) Options() []musicapi.Option {
	opts := []musicapi.Option{
		musicapi.WithService(r.Config.Service.ServiceName),
		musicapi.WithMetricsNamespace(r.Config.Service.MetricsNamespace),
		musicapi.WithLogger(r.Logger),
		musicapi.WithMetricsPublisher(r.Publisher()),
	}
	if r.AWS != nil {
		opts = append(opts, musicapi.WithParameters(params.NewSSMStore(r.AWS.SSM)))
	}
	return opts
}

// NewApp builds an App for a non-HTTP function.
func (r *Runtime) NewApp(overrides ...musicapi.Option) *musicapi.App {
	return musicapi.New(append(r.Options(), overrides...)...)
}

// NewAPI builds the HTTP API with every route registered. Later overrides win.
func (r *Runtime) NewAPI(overrides ...musicapi.Option) (*musicapi.App, error) {
	if err := r.Config.RequireAPI(); err != nil {
		return nil, err
	}
	if r.AWS == nil {
		return nil, fmt.Errorf("bootstrap: aws clients are required")
	}

	redisClient, err := r.redisClient()
	if err != nil {
		return nil, err
	}
	limiterStore, err := r.rateLimitStore(redisClient)
	if err != nil {
		return nil, err
	}

	cacheOpts := []cache.Option{cache.WithLogger(r.Logger)}
	if r.Config.API.CacheRedisEnabled {
		cacheOpts = append(cacheOpts, cache.WithL2(cache.NewRedisTier(redisClient, r.Config.API.RedisKeyPrefix+"cache")))
	}

	store := params.NewSSMStore(r.AWS.SSM)
	opts := append(r.Options(),
		musicapi.WithParameters(store),
		musicapi.WithRateLimiter(limited.NewLimiter(limiterStore)),
		musicapi.WithCache(cache.New(cacheOpts...)),
	)
	app := musicapi.New(append(opts, overrides...)...)

	handlers.Register(app, r.deps(store))
	r.Logger.Info("api configured", map[string]any{
		"rate_limit_store": r.Config.API.RateLimitStore,
		"redis_cache":      r.Config.API.CacheRedisEnabled,
	})
	return app, nil
}

func (r *Runtime) deps(store params.Store) handlers.Deps {
	api := r.Config.API
	upstream := &http.Client{Timeout: api.UpstreamTimeout}

	mbOpts := []musicbrainz.Option{musicbrainz.WithHTTPClient(upstream)}
	if api.MusicBrainzAgent != "" {
		mbOpts = append(mbOpts, musicbrainz.WithUserAgent(api.MusicBrainzAgent))
	}
	if api.MusicBrainzURL != "" {
		mbOpts = append(mbOpts, musicbrainz.WithBaseURL(api.MusicBrainzURL))
	}
	amOpts := []applemusic.Option{applemusic.WithHTTPClient(upstream)}
	if api.AppleMusicURL != "" {
		amOpts = append(amOpts, applemusic.WithBaseURL(api.AppleMusicURL))
	}

	deps := handlers.Deps{
		Params:      store,
		Tokens:      devtoken.NewGenerator(params.NewSecretsManagerReader(r.AWS.SecretsManager)),
		MusicBrainz: musicbrainz.NewClient(mbOpts...),
		AppleMusic:  applemusic.NewClient(amOpts...),
		SongStore: func(table string) handlers.SongQuerier {
			return songhistory.NewStore(r.AWS.DynamoDB, table)
		},
		MusicBrainzTTL: api.MusicBrainzTTL,
		AppleMusicTTL:  api.CacheTTL,
	}
	if topic := strings.TrimSpace(api.TokenRefreshTopic); topic != "" {
		deps.Refresher = notify.NewPublisher(r.AWS.SNS, topic)
	}
	return deps
}

func (r *Runtime) redisClient() (*redis.Client, error) {
	api := r.Config.API
	if api.RateLimitStore != config.StoreRedis && !api.CacheRedisEnabled {
		return nil, nil
	}
	opts, err := redis.ParseURL(api.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: parse redis_url: %w", err)
	}
	return redis.NewClient(opts), nil
}

func (r *Runtime) rateLimitStore(redisClient *redis.Client) (limited.Store, error) {
	api := r.Config.API
	switch api.RateLimitStore {
	case config.StoreRedis:
		return limited.NewRedisStore(redisClient, api.RedisKeyPrefix+"ratelimit"), nil
	case config.StoreDynamoDB:
		// RateLimitEntry resolves its table from the environment.
		if err := os.Setenv("RATE_LIMIT_TABLE_NAME", api.RateLimitTableName); err != nil {
			return nil, err
		}
		db, err := awsclient.TableTheory(r.Config.AWS)
		if err != nil {
			return nil, err
		}
		return limited.NewDynamoStore(db), nil
	default:
		return limited.NewMemoryStore(), nil
	}
}
