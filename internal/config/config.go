// Package config loads and validates service configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default timeout values.
const (
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 30 * time.Second
	defaultClassifierTO    = 5 * time.Second
	defaultRendererTO      = 15 * time.Second
	defaultDispatchTimeout = 10 * time.Second
	defaultPollInterval    = 5 * time.Second
	defaultStaleAge        = 5 * time.Minute
	defaultBackoffBase     = 30 * time.Second
	defaultBackoffCap      = 10 * time.Minute
	defaultDedupTTL        = 24 * time.Hour
)

// Default moderation thresholds and worker sizes.
const (
	defaultToxicityThreshold   = 0.7
	defaultProfanityThreshold  = 0.8
	defaultHateSpeechThreshold = 0.6
	defaultBlockConfidence     = 0.8
	defaultReviewConfidence    = 0.6
	defaultClassifierRPS       = 5
	defaultMaxAttempts         = 3
	defaultBatchSize           = 20
	defaultRateWindow          = time.Hour
	defaultFacebookCap         = 25
	defaultInstagramCap        = 25
	defaultTwitterCap          = 50
)

// Config is the root service configuration.
type Config struct {
	Debug      bool                       `yaml:"debug"`
	Server     ServerConfig               `yaml:"server"`
	Database   DatabaseConfig             `yaml:"database"`
	Redis      RedisConfig                `yaml:"redis"`
	Moderation ModerationConfig           `yaml:"moderation"`
	Renderer   RendererConfig             `yaml:"renderer"`
	Publish    PublishConfig              `yaml:"publish"`
	RateLimits map[string]RateLimitConfig `yaml:"rate_limits"`
	Platforms  PlatformCredentials        `yaml:"platforms"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Address      string        `yaml:"address"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// RedisConfig holds Redis settings. Redis is optional: when disabled the
// rate limiter falls back to process-local windows and duplicate detection
// is off.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	// DedupTTL bounds how long identical confession content is rejected
	// as a duplicate.
	DedupTTL time.Duration `yaml:"dedup_ttl"`
}

// ModerationConfig configures the moderation gate. An empty ClassifierURL
// means the deterministic rule engine decides alone.
type ModerationConfig struct {
	ClassifierURL     string        `yaml:"classifier_url"`
	ClassifierTimeout time.Duration `yaml:"classifier_timeout"`
	ClassifierRPS     int           `yaml:"classifier_rps"`
	// Async defers classifier-backed moderation to the background worker;
	// the deterministic rule scan still runs synchronously at submission.
	Async      bool       `yaml:"async"`
	Thresholds Thresholds `yaml:"thresholds"`
	// BannedTerms extends the built-in banned-term list.
	BannedTerms []string `yaml:"banned_terms"`
}

// Thresholds holds classifier score cutoffs.
type Thresholds struct {
	Toxicity         float64 `yaml:"toxicity"`
	Profanity        float64 `yaml:"profanity"`
	HateSpeech       float64 `yaml:"hate_speech"`
	BlockConfidence  float64 `yaml:"block_confidence"`
	ReviewConfidence float64 `yaml:"review_confidence"`
}

// RendererConfig configures the asset renderer service.
type RendererConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
	Theme   string        `yaml:"theme"`
}

// PublishConfig configures the publish worker and retry policy.
type PublishConfig struct {
	PollInterval    time.Duration `yaml:"poll_interval"`
	BatchSize       int           `yaml:"batch_size"`
	MaxAttempts     int           `yaml:"max_attempts"`
	BackoffBase     time.Duration `yaml:"backoff_base"`
	BackoffCap      time.Duration `yaml:"backoff_cap"`
	DispatchTimeout time.Duration `yaml:"dispatch_timeout"`
	StaleAge        time.Duration `yaml:"stale_age"`
}

// RateLimitConfig is a per-platform posting cap within a rolling window.
type RateLimitConfig struct {
	Cap    int           `yaml:"cap"`
	Window time.Duration `yaml:"window"`
}

// PlatformCredentials holds per-platform API credentials.
type PlatformCredentials struct {
	Facebook  FacebookCredentials  `yaml:"facebook"`
	Instagram InstagramCredentials `yaml:"instagram"`
	Twitter   TwitterCredentials   `yaml:"twitter"`
}

// FacebookCredentials holds Facebook Graph API credentials.
type FacebookCredentials struct {
	AccessToken string `yaml:"access_token"`
	PageID      string `yaml:"page_id"`
}

// Configured reports whether posting to Facebook is possible.
func (c FacebookCredentials) Configured() bool {
	return c.AccessToken != "" && c.PageID != ""
}

// InstagramCredentials holds Instagram session credentials.
type InstagramCredentials struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// Configured reports whether posting to Instagram is possible.
func (c InstagramCredentials) Configured() bool {
	return c.Username != "" && c.Password != ""
}

// TwitterCredentials holds Twitter/X API credentials.
type TwitterCredentials struct {
	APIKey            string `yaml:"api_key"`
	APISecret         string `yaml:"api_secret"`
	AccessToken       string `yaml:"access_token"`
	AccessTokenSecret string `yaml:"access_token_secret"`
	BearerToken       string `yaml:"bearer_token"`
}

// Configured reports whether posting to Twitter is possible. The v2 create
// tweet call authenticates with the bearer token; the OAuth1 keys do not
// gate posting.
func (c TwitterCredentials) Configured() bool {
	return c.BearerToken != ""
}

// Load reads configuration from a YAML file, applies defaults and
// environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	setDefaults(&cfg)
	overrideWithEnvVars(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return errors.New("database.host is required")
	}
	if c.Database.DBName == "" {
		return errors.New("database.dbname is required")
	}
	if c.Redis.Enabled && c.Redis.URL == "" {
		return errors.New("redis.url is required when redis.enabled is true")
	}
	if c.Publish.MaxAttempts <= 0 {
		return fmt.Errorf("publish.max_attempts must be positive, got %d", c.Publish.MaxAttempts)
	}
	if c.Publish.BackoffBase <= 0 {
		return fmt.Errorf("publish.backoff_base must be positive, got %v", c.Publish.BackoffBase)
	}
	if c.Moderation.ClassifierURL != "" && c.Moderation.ClassifierTimeout <= 0 {
		return errors.New("moderation.classifier_timeout must be positive when a classifier is configured")
	}
	for name, rl := range c.RateLimits {
		if rl.Cap <= 0 {
			return fmt.Errorf("rate_limits.%s.cap must be positive, got %d", name, rl.Cap)
		}
		if rl.Window <= 0 {
			return fmt.Errorf("rate_limits.%s.window must be positive, got %v", name, rl.Window)
		}
	}
	return nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Database.Port == "" {
		cfg.Database.Port = "5432"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Redis.DedupTTL == 0 {
		cfg.Redis.DedupTTL = defaultDedupTTL
	}
	if cfg.Moderation.ClassifierTimeout == 0 {
		cfg.Moderation.ClassifierTimeout = defaultClassifierTO
	}
	if cfg.Moderation.ClassifierRPS == 0 {
		cfg.Moderation.ClassifierRPS = defaultClassifierRPS
	}
	setThresholdDefaults(&cfg.Moderation.Thresholds)
	if cfg.Renderer.Timeout == 0 {
		cfg.Renderer.Timeout = defaultRendererTO
	}
	if cfg.Renderer.Theme == "" {
		cfg.Renderer.Theme = "dark"
	}
	if cfg.Publish.PollInterval == 0 {
		cfg.Publish.PollInterval = defaultPollInterval
	}
	if cfg.Publish.BatchSize == 0 {
		cfg.Publish.BatchSize = defaultBatchSize
	}
	if cfg.Publish.MaxAttempts == 0 {
		cfg.Publish.MaxAttempts = defaultMaxAttempts
	}
	if cfg.Publish.BackoffBase == 0 {
		cfg.Publish.BackoffBase = defaultBackoffBase
	}
	if cfg.Publish.BackoffCap == 0 {
		cfg.Publish.BackoffCap = defaultBackoffCap
	}
	if cfg.Publish.DispatchTimeout == 0 {
		cfg.Publish.DispatchTimeout = defaultDispatchTimeout
	}
	if cfg.Publish.StaleAge == 0 {
		cfg.Publish.StaleAge = defaultStaleAge
	}
	if cfg.RateLimits == nil {
		cfg.RateLimits = map[string]RateLimitConfig{}
	}
	setRateLimitDefault(cfg.RateLimits, "facebook", defaultFacebookCap)
	setRateLimitDefault(cfg.RateLimits, "instagram", defaultInstagramCap)
	setRateLimitDefault(cfg.RateLimits, "twitter", defaultTwitterCap)
}

func setThresholdDefaults(t *Thresholds) {
	if t.Toxicity == 0 {
		t.Toxicity = defaultToxicityThreshold
	}
	if t.Profanity == 0 {
		t.Profanity = defaultProfanityThreshold
	}
	if t.HateSpeech == 0 {
		t.HateSpeech = defaultHateSpeechThreshold
	}
	if t.BlockConfidence == 0 {
		t.BlockConfidence = defaultBlockConfidence
	}
	if t.ReviewConfidence == 0 {
		t.ReviewConfidence = defaultReviewConfidence
	}
}

func setRateLimitDefault(limits map[string]RateLimitConfig, platform string, capacity int) {
	if _, ok := limits[platform]; !ok {
		limits[platform] = RateLimitConfig{Cap: capacity, Window: defaultRateWindow}
	}
}

func overrideWithEnvVars(cfg *Config) {
	if v := os.Getenv("APP_DEBUG"); v != "" {
		cfg.Debug = parseBool(v)
	}
	if v := os.Getenv("API_PORT"); v != "" {
		cfg.Server.Address = ":" + v
	}
	if v := os.Getenv("DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("CLASSIFIER_URL"); v != "" {
		cfg.Moderation.ClassifierURL = v
	}
	if v := os.Getenv("RENDERER_URL"); v != "" {
		cfg.Renderer.URL = v
	}
	overrideCredentialsWithEnvVars(&cfg.Platforms)
}

// overrideCredentialsWithEnvVars keeps the credential environment variable
// names used by deployment scripts.
func overrideCredentialsWithEnvVars(p *PlatformCredentials) {
	if v := os.Getenv("FACEBOOK_ACCESS_TOKEN"); v != "" {
		p.Facebook.AccessToken = v
	}
	if v := os.Getenv("FACEBOOK_PAGE_ID"); v != "" {
		p.Facebook.PageID = v
	}
	if v := os.Getenv("INSTAGRAM_USERNAME"); v != "" {
		p.Instagram.Username = v
	}
	if v := os.Getenv("INSTAGRAM_PASSWORD"); v != "" {
		p.Instagram.Password = v
	}
	if v := os.Getenv("TWITTER_API_KEY"); v != "" {
		p.Twitter.APIKey = v
	}
	if v := os.Getenv("TWITTER_API_SECRET"); v != "" {
		p.Twitter.APISecret = v
	}
	if v := os.Getenv("TWITTER_ACCESS_TOKEN"); v != "" {
		p.Twitter.AccessToken = v
	}
	if v := os.Getenv("TWITTER_ACCESS_TOKEN_SECRET"); v != "" {
		p.Twitter.AccessTokenSecret = v
	}
	if v := os.Getenv("TWITTER_BEARER_TOKEN"); v != "" {
		p.Twitter.BearerToken = v
	}
}

// parseBool parses a string value as a boolean. Returns true for "true",
// "1", "yes" (case-insensitive), false otherwise.
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes"
}
