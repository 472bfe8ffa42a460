package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "memhub:cache:"

// RedisCache is the shared backend used when several memhub replicas serve
// the same store. Entry expiry rides on Redis TTLs; per-project key sets
// make invalidation a bounded operation.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration

	mu    sync.Mutex
	stats Stats
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(ctx context.Context, url string, ttl time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis not reachable: %w", err)
	}

	return &RedisCache{client: client, ttl: ttl}, nil
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	value, err := c.client.Get(ctx, redisKeyPrefix+key).Bytes()
	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.stats.Misses++
		return nil, false
	}
	c.stats.Hits++
	return value, true
}

func (c *RedisCache) Set(ctx context.Context, key, projectID string, value []byte) {
	pipe := c.client.TxPipeline()
	pipe.Set(ctx, redisKeyPrefix+key, value, c.ttl)
	pipe.SAdd(ctx, c.projectSetKey(projectID), key)
	// The index set outlives its members slightly; stale ids are harmless.
	pipe.Expire(ctx, c.projectSetKey(projectID), 2*c.ttl)
	pipe.Exec(ctx)
}

func (c *RedisCache) InvalidateProject(ctx context.Context, projectID string) int {
	removed := 0
	for _, scope := range []string{projectID, "all"} {
		setKey := c.projectSetKey(scope)
		keys, err := c.client.SMembers(ctx, setKey).Result()
		if err != nil {
			continue
		}
		for _, key := range keys {
			if c.client.Del(ctx, redisKeyPrefix+key).Val() > 0 {
				removed++
			}
		}
		c.client.Del(ctx, setKey)
	}

	c.mu.Lock()
	c.stats.Evictions += int64(removed)
	c.mu.Unlock()
	return removed
}

func (c *RedisCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) projectSetKey(projectID string) string {
	return redisKeyPrefix + "project:" + projectID
}
