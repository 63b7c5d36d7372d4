package cache

import (
	"context"
	"time"

	"github.com/fhuszti/videos-ms-go/internal/port"
)

type NoopCache struct{}

// compile-time check: *NoopCache must satisfy port.Cache
var _ port.Cache = (*NoopCache)(nil)

func NewNoop() *NoopCache {
	return &NoopCache{}
}

func (n *NoopCache) GetVideoDetails(ctx context.Context, id string) ([]byte, error) {
	return nil, nil // always cache miss
}

func (n *NoopCache) GetEtagVideoDetails(ctx context.Context, id string) (string, error) {
	return "", nil
}

func (n *NoopCache) SetVideoDetails(ctx context.Context, id string, data []byte, ttl time.Duration) {
}

func (n *NoopCache) SetEtagVideoDetails(ctx context.Context, id string, etag string, ttl time.Duration) {
}

func (n *NoopCache) DeleteVideoDetails(ctx context.Context, id string) error { return nil }
