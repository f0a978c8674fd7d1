package reputation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// CachedVerdict is the stored reputation of one user.
type CachedVerdict struct {
	Flagged   bool      `json:"flagged"`
	Evidence  string    `json:"evidence"`
	CheckedAt time.Time `json:"checked_at"`
}

// Cache stores recent reputation verdicts. Get returns found=false on a
// miss; entries expire after the configured TTL.
type Cache interface {
	Get(ctx context.Context, userID int64) (CachedVerdict, bool, error)
	Put(ctx context.Context, userID int64, v CachedVerdict) error
}

// RedisCache keeps verdicts under cas:<user_id> with the TTL applied both on
// the redis key and, lazily, against checked_at at read time. The second
// check covers entries written under a longer TTL before a config change.
type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
	now func() time.Time
}

// NewRedisCache Constructor
func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl, now: time.Now}
}

func cacheKey(userID int64) string {
	return fmt.Sprintf("cas:%d", userID)
}

// Get returns the cached verdict for a user, treating entries older than the
// TTL as absent.
func (c *RedisCache) Get(ctx context.Context, userID int64) (CachedVerdict, bool, error) {
	raw, err := c.rdb.Get(ctx, cacheKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return CachedVerdict{}, false, nil
	}
	if err != nil {
		return CachedVerdict{}, false, fmt.Errorf("reputation cache get %d: %w", userID, err)
	}

	var v CachedVerdict
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return CachedVerdict{}, false, fmt.Errorf("reputation cache decode %d: %w", userID, err)
	}
	if c.now().Sub(v.CheckedAt) >= c.ttl {
		return CachedVerdict{}, false, nil
	}
	return v, true, nil
}

// Put stores a verdict with the cache TTL.
func (c *RedisCache) Put(ctx context.Context, userID int64, v CachedVerdict) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := c.rdb.Set(ctx, cacheKey(userID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("reputation cache put %d: %w", userID, err)
	}
	return nil
}
