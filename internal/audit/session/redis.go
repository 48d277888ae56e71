package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis key prefix for session activity records.
const activityKeyPrefix = "audit:session:"

// RedisTracker is the production tracker for multi-instance deployments.
// Each session is a Redis list trimmed to the configured bound; the key TTL
// is refreshed on every append so idle sessions age out on their own.
type RedisTracker struct {
	client        *redis.Client
	maxActivities int
	ttl           time.Duration
}

// NewRedisTracker constructs a Redis-backed tracker. Non-positive bounds fall
// back to defaults (200, 24h).
func NewRedisTracker(client *redis.Client, maxActivities int, ttl time.Duration) *RedisTracker {
	if maxActivities <= 0 {
		maxActivities = 200
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisTracker{client: client, maxActivities: maxActivities, ttl: ttl}
}

func (t *RedisTracker) key(userID, sessionID string) string {
	return activityKeyPrefix + userID + ":" + sessionID
}

// Record appends one activity via LPUSH, trims the list to the bound, and
// refreshes the TTL. The three commands run in one pipeline round trip.
func (t *RedisTracker) Record(ctx context.Context, userID, sessionID string, activity Activity) error {
	payload, err := json.Marshal(activity)
	if err != nil {
		return fmt.Errorf("marshal session activity: %w", err)
	}

	key := t.key(userID, sessionID)
	pipe := t.client.Pipeline()
	pipe.LPush(ctx, key, payload)
	pipe.LTrim(ctx, key, 0, int64(t.maxActivities-1))
	pipe.Expire(ctx, key, t.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record session activity: %w", err)
	}
	return nil
}

// Recent returns up to n activities, newest first. LPUSH already stores
// newest at the head, so a plain LRANGE preserves the order.
func (t *RedisTracker) Recent(ctx context.Context, userID, sessionID string, n int) ([]Activity, error) {
	if n <= 0 {
		n = t.maxActivities
	}

	raw, err := t.client.LRange(ctx, t.key(userID, sessionID), 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("read session activity: %w", err)
	}

	out := make([]Activity, 0, len(raw))
	for _, item := range raw {
		var activity Activity
		if err := json.Unmarshal([]byte(item), &activity); err != nil {
			// Skip unreadable records rather than failing the whole read.
			continue
		}
		out = append(out, activity)
	}
	return out, nil
}
