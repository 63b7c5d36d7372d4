package port

import (
	"context"
	"time"
)

// Cache keeps rendered video details and their ETag for catalog reads.
type Cache interface {
	GetVideoDetails(ctx context.Context, id string) ([]byte, error)
	GetEtagVideoDetails(ctx context.Context, id string) (string, error)
	SetVideoDetails(ctx context.Context, id string, data []byte, ttl time.Duration)
	SetEtagVideoDetails(ctx context.Context, id string, etag string, ttl time.Duration)
	// DeleteVideoDetails drops both the details and their ETag.
	DeleteVideoDetails(ctx context.Context, id string) error
}
