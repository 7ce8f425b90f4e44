package metrics

import "fmt"

const (
	// KeyPrefixMetrics is the prefix for all metrics keys
	KeyPrefixMetrics = "metrics"
	// KeyPrefixPublished is the prefix for published post counters
	KeyPrefixPublished = "published"
	// KeyPrefixFailed is the prefix for failed post counters
	KeyPrefixFailed = "failed"
	// KeyPrefixRateLimited is the prefix for rate-limit denial counters
	KeyPrefixRateLimited = "rate_limited"
	// KeyRecentPosts is the Redis key for the recent posts list
	KeyRecentPosts = "metrics:recent:posts"
	// MaxRecentPosts is the maximum number of recent posts to keep
	MaxRecentPosts = 100
	// MetricsTTLDays is the TTL in days for metrics counters
	MetricsTTLDays = 30
	// RecentPostsTTLDays is the TTL in days for the recent posts list
	RecentPostsTTLDays = 7
)

// RedisKeys provides methods to build Redis keys consistently
type RedisKeys struct {
	prefix string
}

// NewRedisKeys creates a new RedisKeys instance
func NewRedisKeys(prefix string) *RedisKeys {
	return &RedisKeys{prefix: prefix}
}

// Published returns the Redis key for the published counter for a platform
func (k *RedisKeys) Published(platform string) string {
	return fmt.Sprintf("%s:%s:%s", k.prefix, KeyPrefixPublished, platform)
}

// Failed returns the Redis key for the failed counter for a platform
func (k *RedisKeys) Failed(platform string) string {
	return fmt.Sprintf("%s:%s:%s", k.prefix, KeyPrefixFailed, platform)
}

// RateLimited returns the Redis key for the rate-limit denial counter for a platform
func (k *RedisKeys) RateLimited(platform string) string {
	return fmt.Sprintf("%s:%s:%s", k.prefix, KeyPrefixRateLimited, platform)
}
