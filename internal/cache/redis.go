package cache

import (
	"context"
	"log/slog"
	"time"

	redis "github.com/redis/go-redis/v9"
)

type redisCache struct {
	client  *redis.Client
	logger  *slog.Logger
	prefix  string
	ttl     time.Duration
	timeout time.Duration
}

// NewRedisCache constructs a Redis backed Cache. Cache failures are
// logged and treated as misses; they never fail the request.
func NewRedisCache(addr, password string, db int, ttl time.Duration, logger *slog.Logger) (Cache, error) {
	opts := &redis.Options{Addr: addr, Password: password, DB: db}
	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &redisCache{
		client:  client,
		logger:  logger,
		prefix:  "teamspace:view:",
		ttl:     ttl,
		timeout: 250 * time.Millisecond,
	}, nil
}

func (c *redisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	value, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("cache get failed", "key", key, "error", err)
		}
		return nil, false
	}
	return value, true
}

func (c *redisCache) Set(ctx context.Context, key string, value []byte, tags []string) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	pipe := c.client.TxPipeline()
	pipe.Set(ctx, c.prefix+key, value, c.ttl)
	for _, tag := range tags {
		tagKey := c.prefix + "tag:" + tag
		pipe.SAdd(ctx, tagKey, key)
		pipe.Expire(ctx, tagKey, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Warn("cache set failed", "key", key, "error", err)
	}
}

func (c *redisCache) Invalidate(ctx context.Context, tags ...string) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	for _, tag := range tags {
		tagKey := c.prefix + "tag:" + tag
		keys, err := c.client.SMembers(ctx, tagKey).Result()
		if err != nil {
			c.logger.Warn("cache invalidate failed", "tag", tag, "error", err)
			continue
		}
		for i := range keys {
			keys[i] = c.prefix + keys[i]
		}
		keys = append(keys, tagKey)
		if err := c.client.Del(ctx, keys...).Err(); err != nil {
			c.logger.Warn("cache invalidate failed", "tag", tag, "error", err)
		}
	}
}

func (c *redisCache) Close() {
	_ = c.client.Close()
}
