// Package config loads function configuration from the environment and an optional YAML file.
//
// Keys are flat and match the Lambda environment variable names in lowercase, so
// `RATE_LIMIT_STORE` and a YAML `rate_limit_store:` entry set the same field. Environment
// values win over the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/theory-cloud/musicapi/pkg/observability"
)

// FileEnv names the environment variable holding an optional YAML config path.
const FileEnv = "MUSICAPI_CONFIG_FILE"

// Rate-limit store backends.
const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StoreDynamoDB = "dynamodb"
)

type ServiceConfig struct {
	ServiceName      string `mapstructure:"service_name" yaml:"service_name"`
	LogLevel         string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat        string `mapstructure:"log_format" yaml:"log_format"`
	MetricsNamespace string `mapstructure:"metrics_namespace" yaml:"metrics_namespace"`
	MetricsEnabled   bool   `mapstructure:"metrics_enabled" yaml:"metrics_enabled"`
	// ErrorTopicARN receives error-level log entries when set.
	ErrorTopicARN string `mapstructure:"error_notifications_topic_arn" yaml:"error_notifications_topic_arn"`
}

type APIConfig struct {
	RateLimitStore     string        `mapstructure:"rate_limit_store" yaml:"rate_limit_store"`
	RateLimitTableName string        `mapstructure:"rate_limit_table_name" yaml:"rate_limit_table_name"`
	RedisURL           string        `mapstructure:"redis_url" yaml:"redis_url"`
	RedisKeyPrefix     string        `mapstructure:"redis_key_prefix" yaml:"redis_key_prefix"`
	CacheRedisEnabled  bool          `mapstructure:"cache_redis_enabled" yaml:"cache_redis_enabled"`
	CacheTTL           time.Duration `mapstructure:"cache_ttl" yaml:"cache_ttl"`
	MusicBrainzTTL     time.Duration `mapstructure:"musicbrainz_cache_ttl" yaml:"musicbrainz_cache_ttl"`
	MusicBrainzAgent   string        `mapstructure:"musicbrainz_user_agent" yaml:"musicbrainz_user_agent"`
	MusicBrainzURL     string        `mapstructure:"musicbrainz_base_url" yaml:"musicbrainz_base_url"`
	AppleMusicURL      string        `mapstructure:"apple_music_base_url" yaml:"apple_music_base_url"`
	UpstreamTimeout    time.Duration `mapstructure:"upstream_timeout" yaml:"upstream_timeout"`
	TokenRefreshTopic  string        `mapstructure:"token_refresh_topic_arn" yaml:"token_refresh_topic_arn"`
}

type NotificationConfig struct {
	AdminEmail  string `mapstructure:"admin_email" yaml:"admin_email"`
	SourceEmail string `mapstructure:"source_email" yaml:"source_email"`
}

type ScheduleConfig struct {
	RuleName string `mapstructure:"rule_name" yaml:"rule_name"`
}

type AWSConfig struct {
	Region          string `mapstructure:"aws_region" yaml:"aws_region"`
	EndpointURL     string `mapstructure:"aws_endpoint_url" yaml:"aws_endpoint_url"`
	AccessKeyID     string `mapstructure:"aws_access_key_id" yaml:"aws_access_key_id"`
	SecretAccessKey string `mapstructure:"aws_secret_access_key" yaml:"aws_secret_access_key"`
}

// Config is the full function configuration. Sections are squashed so every key is top level.
type Config struct {
	Service      ServiceConfig      `mapstructure:",squash" yaml:",inline"`
	API          APIConfig          `mapstructure:",squash" yaml:",inline"`
	Notification NotificationConfig `mapstructure:",squash" yaml:",inline"`
	Schedule     ScheduleConfig     `mapstructure:",squash" yaml:",inline"`
	AWS          AWSConfig          `mapstructure:",squash" yaml:",inline"`
}

var defaults = map[string]any{
	"service_name":                  "musicapi",
	"log_level":                     "info",
	"log_format":                    "",
	"metrics_namespace":             "MusicAPI",
	"metrics_enabled":               true,
	"error_notifications_topic_arn": "",

	"rate_limit_store":        StoreMemory,
	"rate_limit_table_name":   "music-rate-limits",
	"redis_url":               "",
	"redis_key_prefix":        "musicapi:",
	"cache_redis_enabled":     false,
	"cache_ttl":               "1m",
	"musicbrainz_cache_ttl":   "1h",
	"musicbrainz_user_agent":  "",
	"musicbrainz_base_url":    "",
	"apple_music_base_url":    "",
	"upstream_timeout":        "10s",
	"token_refresh_topic_arn": "",

	"admin_email":  "",
	"source_email": "",
	"rule_name":    "",

	"aws_region":            "",
	"aws_endpoint_url":      "",
	"aws_access_key_id":     "",
	"aws_secret_access_key": "",
}

// Load reads configuration. path overrides FileEnv; an empty path with FileEnv unset reads the
// environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	if path == "" {
		path = strings.TrimSpace(os.Getenv(FileEnv))
	}
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	cfg := &Config{}
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(cfg, hook); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.Service.ServiceName = strings.TrimSpace(c.Service.ServiceName)
	c.Service.LogLevel = strings.ToLower(strings.TrimSpace(c.Service.LogLevel))
	c.Service.LogFormat = strings.ToLower(strings.TrimSpace(c.Service.LogFormat))
	c.API.RateLimitStore = strings.ToLower(strings.TrimSpace(c.API.RateLimitStore))
	if c.API.RateLimitStore == "" {
		c.API.RateLimitStore = StoreMemory
	}
}

// Validate checks the settings shared by every function.
func (c *Config) Validate() error {
	var errs []error
	switch c.Service.LogLevel {
	case "debug", "info", "warn", "warning", "error", "":
	default:
		errs = append(errs, fmt.Errorf("config: unsupported log_level %q", c.Service.LogLevel))
	}
	switch c.Service.LogFormat {
	case "json", "console", "":
	default:
		errs = append(errs, fmt.Errorf("config: unsupported log_format %q", c.Service.LogFormat))
	}
	switch c.API.RateLimitStore {
	case StoreMemory, StoreRedis, StoreDynamoDB:
	default:
		errs = append(errs, fmt.Errorf("config: unsupported rate_limit_store %q", c.API.RateLimitStore))
	}
	if c.API.CacheTTL < 0 || c.API.MusicBrainzTTL < 0 {
		errs = append(errs, errors.New("config: cache ttl must not be negative"))
	}
	return errors.Join(errs...)
}

// RequireAPI checks the settings the HTTP API needs.
func (c *Config) RequireAPI() error {
	var errs []error
	if c.API.RateLimitStore == StoreRedis && strings.TrimSpace(c.API.RedisURL) == "" {
		errs = append(errs, errors.New("config: redis_url is required when rate_limit_store is redis"))
	}
	if c.API.RateLimitStore == StoreDynamoDB && strings.TrimSpace(c.API.RateLimitTableName) == "" {
		errs = append(errs, errors.New("config: rate_limit_table_name is required when rate_limit_store is dynamodb"))
	}
	if c.API.CacheRedisEnabled && strings.TrimSpace(c.API.RedisURL) == "" {
		errs = append(errs, errors.New("config: redis_url is required when cache_redis_enabled is set"))
	}
	return errors.Join(errs...)
}

// RequireNotification checks the email relay settings.
func (c *Config) RequireNotification() error {
	var missing []string
	if strings.TrimSpace(c.Notification.AdminEmail) == "" {
		missing = append(missing, "ADMIN_EMAIL")
	}
	if strings.TrimSpace(c.Notification.SourceEmail) == "" {
		missing = append(missing, "SOURCE_EMAIL")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, " "))
	}
	return nil
}

// RequireSchedule checks the schedule updater settings.
func (c *Config) RequireSchedule() error {
	if strings.TrimSpace(c.Schedule.RuleName) == "" {
		return errors.New("missing required environment variable: RULE_NAME")
	}
	return nil
}

// Logger is the logger configuration for this function.
func (c *Config) Logger() observability.LoggerConfig {
	return observability.LoggerConfig{
		Service: c.Service.ServiceName,
		Level:   c.Service.LogLevel,
		Format:  c.Service.LogFormat,
	}
}

// Redacted is a copy safe to print.
func (c Config) Redacted() Config {
	if c.AWS.SecretAccessKey != "" {
		c.AWS.SecretAccessKey = "[REDACTED]"
	}
	if c.API.RedisURL != "" {
		c.API.RedisURL = redactURL(c.API.RedisURL)
	}
	return c
}

func redactURL(raw string) string {
	at := strings.LastIndex(raw, "@")
	scheme := strings.Index(raw, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return raw
	}
	return raw[:scheme+3] + "[REDACTED]" + raw[at:]
}
