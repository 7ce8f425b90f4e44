package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/whisper-vault/internal/domain"
	"github.com/jonesrussell/whisper-vault/internal/logger"
)

// RedisTracker implements Tracker using Redis counters with a rolling TTL.
type RedisTracker struct {
	client redis.UniversalClient
	keys   *RedisKeys
	logger logger.Logger
}

// NewRedisTracker creates a new Redis-backed tracker.
func NewRedisTracker(client redis.UniversalClient, log logger.Logger) *RedisTracker {
	return &RedisTracker{
		client: client,
		keys:   NewRedisKeys(KeyPrefixMetrics),
		logger: log,
	}
}

// IncrementPublished increments the published counter for a platform.
func (t *RedisTracker) IncrementPublished(ctx context.Context, platform string) error {
	return t.increment(ctx, t.keys.Published(platform), platform)
}

// IncrementFailed increments the failed counter for a platform.
func (t *RedisTracker) IncrementFailed(ctx context.Context, platform string) error {
	return t.increment(ctx, t.keys.Failed(platform), platform)
}

// IncrementRateLimited increments the rate-limit denial counter for a platform.
func (t *RedisTracker) IncrementRateLimited(ctx context.Context, platform string) error {
	return t.increment(ctx, t.keys.RateLimited(platform), platform)
}

func (t *RedisTracker) increment(ctx context.Context, key, platform string) error {
	ttl := MetricsTTLDays * 24 * time.Hour

	// Pipeline so the counter and its TTL move together.
	pipe := t.client.Pipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		t.logger.Warn("Failed to increment counter",
			logger.String("platform", platform),
			logger.String("redis_key", key),
			logger.Error(err),
		)
		return fmt.Errorf("increment counter: %w", err)
	}
	return nil
}

// AddRecentPost pushes a published post onto the capped recent-posts list.
func (t *RedisTracker) AddRecentPost(ctx context.Context, post RecentPost) error {
	data, err := json.Marshal(post)
	if err != nil {
		return fmt.Errorf("marshal recent post: %w", err)
	}

	pipe := t.client.Pipeline()
	pipe.LPush(ctx, KeyRecentPosts, data)
	pipe.LTrim(ctx, KeyRecentPosts, 0, MaxRecentPosts-1)
	pipe.Expire(ctx, KeyRecentPosts, RecentPostsTTLDays*24*time.Hour)

	if _, err := pipe.Exec(ctx); err != nil {
		t.logger.Warn("Failed to record recent post",
			logger.String("platform", post.Platform),
			logger.Error(err),
		)
		return fmt.Errorf("record recent post: %w", err)
	}
	return nil
}

// GetStats aggregates per-platform counters into totals.
func (t *RedisTracker) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	for _, p := range domain.AllPlatforms() {
		name := string(p)
		published, err := t.getCounter(ctx, t.keys.Published(name))
		if err != nil {
			return nil, err
		}
		failed, err := t.getCounter(ctx, t.keys.Failed(name))
		if err != nil {
			return nil, err
		}
		rateLimited, err := t.getCounter(ctx, t.keys.RateLimited(name))
		if err != nil {
			return nil, err
		}

		stats.Platforms = append(stats.Platforms, PlatformStats{
			Name:        name,
			Published:   published,
			Failed:      failed,
			RateLimited: rateLimited,
		})
		stats.TotalPublished += published
		stats.TotalFailed += failed
		stats.TotalRateLimited += rateLimited
	}
	return stats, nil
}

// GetRecentPosts returns the most recently published posts, newest first.
func (t *RedisTracker) GetRecentPosts(ctx context.Context, limit int) ([]RecentPost, error) {
	if limit <= 0 || limit > MaxRecentPosts {
		limit = MaxRecentPosts
	}

	entries, err := t.client.LRange(ctx, KeyRecentPosts, 0, int64(limit-1)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("get recent posts: %w", err)
	}

	posts := make([]RecentPost, 0, len(entries))
	for _, entry := range entries {
		var post RecentPost
		if unmarshalErr := json.Unmarshal([]byte(entry), &post); unmarshalErr != nil {
			t.logger.Warn("Skipping malformed recent post entry", logger.Error(unmarshalErr))
			continue
		}
		posts = append(posts, post)
	}
	return posts, nil
}

func (t *RedisTracker) getCounter(ctx context.Context, key string) (int64, error) {
	val, err := t.client.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("get counter %s: %w", key, err)
	}
	return val, nil
}

// NopTracker discards everything. Used when Redis is disabled.
type NopTracker struct{}

func (NopTracker) IncrementPublished(context.Context, string) error   { return nil }
func (NopTracker) IncrementFailed(context.Context, string) error      { return nil }
func (NopTracker) IncrementRateLimited(context.Context, string) error { return nil }
func (NopTracker) AddRecentPost(context.Context, RecentPost) error    { return nil }
func (NopTracker) GetStats(context.Context) (*Stats, error)           { return &Stats{}, nil }
func (NopTracker) GetRecentPosts(context.Context, int) ([]RecentPost, error) {
	return nil, nil
}
