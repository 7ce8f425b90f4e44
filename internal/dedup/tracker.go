// Package dedup detects duplicate confession submissions. Content is keyed
// by a digest of its normalized text, so resubmitting the same confession
// within the TTL is rejected without storing anything identifying.
package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/whisper-vault/internal/logger"
)

const scanBatchSize = 100

// Tracker remembers recently submitted confession content in Redis.
type Tracker struct {
	client *redis.Client
	ttl    time.Duration
	logger logger.Logger
}

// NewTracker creates a tracker. ttl bounds how long a submission blocks
// duplicates.
func NewTracker(client *redis.Client, ttl time.Duration, log logger.Logger) *Tracker {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Tracker{
		client: client,
		ttl:    ttl,
		logger: log,
	}
}

func (t *Tracker) key(content string) string {
	digest := sha256.Sum256([]byte(strings.TrimSpace(strings.ToLower(content))))
	return "submitted:confession:" + hex.EncodeToString(digest[:])
}

// Seen reports whether identical content was submitted within the TTL.
// Redis errors degrade to "not seen": a broken cache must not block
// submissions.
func (t *Tracker) Seen(ctx context.Context, content string) bool {
	key := t.key(content)

	exists, err := t.client.Exists(ctx, key).Result()
	if err != nil {
		t.logger.Error("Redis error checking for duplicate content",
			logger.String("redis_key", key),
			logger.Error(err),
		)
		return false
	}
	return exists == 1
}

// Remember records the content digest for the TTL.
func (t *Tracker) Remember(ctx context.Context, content string) error {
	key := t.key(content)

	if err := t.client.Set(ctx, key, "1", t.ttl).Err(); err != nil {
		t.logger.Error("Redis error remembering content digest",
			logger.String("redis_key", key),
			logger.Error(err),
		)
		return err
	}
	return nil
}

// Forget removes a content digest, re-allowing submission.
func (t *Tracker) Forget(ctx context.Context, content string) error {
	key := t.key(content)

	if err := t.client.Del(ctx, key).Err(); err != nil {
		t.logger.Error("Redis error clearing content digest",
			logger.String("redis_key", key),
			logger.Error(err),
		)
		return err
	}
	return nil
}

// FlushAll removes every remembered content digest. Uses SCAN rather than
// FLUSHDB so keys owned by other components survive.
func (t *Tracker) FlushAll(ctx context.Context) error {
	pattern := "submitted:confession:*"
	var cursor uint64
	var deletedCount int

	for {
		var keys []string
		var err error
		keys, cursor, err = t.client.Scan(ctx, cursor, pattern, scanBatchSize).Result()
		if err != nil {
			return fmt.Errorf("scan keys: %w", err)
		}

		if len(keys) > 0 {
			deleted, delErr := t.client.Del(ctx, keys...).Result()
			if delErr != nil {
				return fmt.Errorf("delete keys: %w", delErr)
			}
			deletedCount += int(deleted)
		}

		if cursor == 0 {
			break
		}
	}

	t.logger.Info("Flushed duplicate-detection cache",
		logger.Int("keys_deleted", deletedCount))
	return nil
}
