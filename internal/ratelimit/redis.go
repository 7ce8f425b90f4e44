package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/whisper-vault/internal/domain"
)

// keyPrefix namespaces rate-limit counters in Redis.
const keyPrefix = "rate_limit"

// RedisLimiter is a Redis-backed fixed-window limiter shared by all worker
// processes. The counter key carries a TTL equal to the window; key expiry
// is the window reset.
type RedisLimiter struct {
	client redis.UniversalClient
	caps   map[domain.Platform]Config
}

// NewRedisLimiter creates a limiter backed by the given Redis client.
func NewRedisLimiter(client redis.UniversalClient, caps map[domain.Platform]Config) *RedisLimiter {
	return &RedisLimiter{client: client, caps: caps}
}

func limiterKey(platform domain.Platform) string {
	return fmt.Sprintf("%s:%s:posts", keyPrefix, platform)
}

// Admit reserves a slot with an atomic INCR; a result over the cap is
// rolled back with DECR so denied admissions do not inflate the counter.
func (l *RedisLimiter) Admit(ctx context.Context, platform domain.Platform) (bool, error) {
	cfg, ok := l.caps[platform]
	if !ok {
		return true, nil
	}

	key := limiterKey(platform)
	pipe := l.client.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, cfg.Window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("rate limit admit %s: %w", platform, err)
	}

	if incr.Val() > int64(cfg.Cap) {
		if err := l.client.Decr(ctx, key).Err(); err != nil {
			return false, fmt.Errorf("rate limit rollback %s: %w", platform, err)
		}
		return false, nil
	}
	return true, nil
}

// Record is a no-op for the Redis limiter: Admit already counted the slot.
func (l *RedisLimiter) Record(_ context.Context, _ domain.Platform) error {
	return nil
}

// Release returns a reserved slot after a post that did not go through.
func (l *RedisLimiter) Release(ctx context.Context, platform domain.Platform) error {
	if _, ok := l.caps[platform]; !ok {
		return nil
	}
	if err := l.client.Decr(ctx, limiterKey(platform)).Err(); err != nil {
		return fmt.Errorf("rate limit release %s: %w", platform, err)
	}
	return nil
}

// NextAvailable reads the counter TTL to predict when the window reopens.
func (l *RedisLimiter) NextAvailable(ctx context.Context, platform domain.Platform) (time.Time, bool, error) {
	cfg, ok := l.caps[platform]
	if !ok {
		return time.Time{}, false, nil
	}

	key := limiterKey(platform)
	count, err := l.client.Get(ctx, key).Int64()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("rate limit count %s: %w", platform, err)
	}
	if count < int64(cfg.Cap) {
		return time.Time{}, false, nil
	}

	ttl, err := l.client.TTL(ctx, key).Result()
	if err != nil {
		return time.Time{}, false, fmt.Errorf("rate limit ttl %s: %w", platform, err)
	}
	if ttl <= 0 {
		return time.Time{}, false, nil
	}
	return time.Now().Add(ttl), true, nil
}
