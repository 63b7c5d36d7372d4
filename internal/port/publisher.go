package port

import (
	"context"

	"github.com/fhuszti/videos-ms-go/internal/model"
)

// ProgressPublisher forwards progress events to subscribers. It never blocks the caller
// on delivery and never returns delivery errors.
type ProgressPublisher interface {
	PublishUpload(ctx context.Context, ev model.UploadProgressEvent)
	PublishTranscode(ctx context.Context, ev model.TranscodeProgressEvent)
}
