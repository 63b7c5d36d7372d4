package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fhuszti/videos-ms-go/internal/logger"
	"github.com/fhuszti/videos-ms-go/internal/port"
	"github.com/redis/go-redis/v9"
)

type Cache struct {
	client *redis.Client
}

// compile-time check: *Cache must satisfy port.Cache
var _ port.Cache = (*Cache)(nil)

func NewCache(addr, password string) *Cache {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	return &Cache{client: rdb}
}

func (c *Cache) GetVideoDetails(ctx context.Context, id string) ([]byte, error) {
	logger.Debugf(ctx, "getting entry in cache for video #%s...", id)

	val, err := c.client.Get(ctx, getCacheKey(id, false)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil // cache miss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}
	return val, nil
}

func (c *Cache) GetEtagVideoDetails(ctx context.Context, id string) (string, error) {
	val, err := c.client.Get(ctx, getCacheKey(id, true)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("redis get failed: %w", err)
	}
	return val, nil
}

// SetVideoDetails is best effort: a failed write only costs a later cache miss.
func (c *Cache) SetVideoDetails(ctx context.Context, id string, data []byte, ttl time.Duration) {
	logger.Debugf(ctx, "creating entry in cache for video #%s, valid for %s...", id, ttl)

	if err := c.client.Set(ctx, getCacheKey(id, false), data, ttl).Err(); err != nil {
		logger.Warnf(ctx, "redis set failed for video #%s: %v", id, err)
	}
}

func (c *Cache) SetEtagVideoDetails(ctx context.Context, id string, etag string, ttl time.Duration) {
	if err := c.client.Set(ctx, getCacheKey(id, true), etag, ttl).Err(); err != nil {
		logger.Warnf(ctx, "redis set failed for etag of video #%s: %v", id, err)
	}
}

func (c *Cache) DeleteVideoDetails(ctx context.Context, id string) error {
	logger.Debugf(ctx, "deleting entry in cache for video #%s...", id)

	if err := c.client.Del(ctx, getCacheKey(id, false), getCacheKey(id, true)).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}

func (c *Cache) Close() error {
	return c.client.Close()
}

func getCacheKey(id string, etag bool) string {
	if etag {
		return "etag:video:" + id
	}
	return "video:" + id
}
