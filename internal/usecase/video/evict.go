package video

import (
	"context"
	"fmt"

	"github.com/fhuszti/videos-ms-go/internal/logger"
	"github.com/fhuszti/videos-ms-go/internal/port"
)

// NewEvictionHook returns the callback the coordinator runs once it deleted a video's
// local variants: the catalog forgets the qualities, the mirrored copies are removed
// and the cached details are invalidated. mirror is optional.
func NewEvictionHook(repo port.VideoRepository, cache port.Cache, mirror port.Storage) func(ctx context.Context, videoID string) error {
	return func(ctx context.Context, videoID string) error {
		if err := repo.ResetVariants(ctx, videoID); err != nil {
			return fmt.Errorf("reset variants of video %s: %w", videoID, err)
		}
		if mirror != nil {
			n, err := mirror.RemovePrefix(ctx, videoID+"/")
			if err != nil {
				logger.Warnf(ctx, "⚠️  Failed to remove mirrored variants of video #%s: %v", videoID, err)
			} else {
				logger.Infof(ctx, "removed %d mirrored object(s) of evicted video #%s", n, videoID)
			}
		}
		return cache.DeleteVideoDetails(ctx, videoID)
	}
}
