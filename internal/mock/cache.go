package mock

import (
	"context"
	"sync"
	"time"
)

// Cache implements port.Cache for tests.
type Cache struct {
	mu sync.Mutex

	// stored values
	VideoOut []byte

	// etag values
	EtagVideo string

	// captured inputs
	TTL        time.Duration
	DeletedIDs []string

	// errors
	GetVideoErr     error
	GetEtagVideoErr error
	DelVideoErr     error

	// call flags
	GetVideoCalled     bool
	GetEtagVideoCalled bool
	SetVideoCalled     bool
	SetEtagVideoCalled bool
	DelVideoCalled     bool
}

func (c *Cache) GetVideoDetails(ctx context.Context, id string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.GetVideoCalled = true
	if c.GetVideoErr != nil {
		return nil, c.GetVideoErr
	}
	return c.VideoOut, nil
}

func (c *Cache) GetEtagVideoDetails(ctx context.Context, id string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.GetEtagVideoCalled = true
	if c.GetEtagVideoErr != nil {
		return "", c.GetEtagVideoErr
	}
	return c.EtagVideo, nil
}

func (c *Cache) SetVideoDetails(ctx context.Context, id string, data []byte, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.SetVideoCalled = true
	c.VideoOut = data
	c.TTL = ttl
}

func (c *Cache) SetEtagVideoDetails(ctx context.Context, id string, etag string, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.SetEtagVideoCalled = true
	c.EtagVideo = etag
}

func (c *Cache) DeleteVideoDetails(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.DelVideoCalled = true
	c.DeletedIDs = append(c.DeletedIDs, id)
	return c.DelVideoErr
}
