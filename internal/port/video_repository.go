package port

import (
	"context"

	"github.com/fhuszti/videos-ms-go/internal/model"
)

// VideoRepository persists the video catalog.
type VideoRepository interface {
	// Save inserts the video or overwrites the stored row with the same id.
	Save(ctx context.Context, v *model.VideoMetadata) error
	// GetByID fails with NOT_FOUND when no row exists.
	GetByID(ctx context.Context, id string) (*model.VideoMetadata, error)
	// ResetVariants clears qualities and isTranscoded after the variants were removed from disk.
	ResetVariants(ctx context.Context, id string) error
}
