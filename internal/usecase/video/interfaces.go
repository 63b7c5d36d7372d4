package video

import (
	"context"
	"image"
	"time"

	"github.com/fhuszti/videos-ms-go/internal/ffmpeg"
	"github.com/fhuszti/videos-ms-go/internal/model"
	"github.com/fhuszti/videos-ms-go/internal/port"
)

type Prober interface {
	Probe(ctx context.Context, path string) (*model.ProbeResult, error)
}

type Transcoder interface {
	Run(ctx context.Context, req ffmpeg.Request, onProgress ffmpeg.ProgressFunc) (string, error)
	GrabFrame(ctx context.Context, src string, offset time.Duration) (image.Image, error)
}

type PosterEncoder interface {
	Encode(img image.Image) ([]byte, error)
}

// Dispatcher hands a persisted upload over to transcoding. It owns job from then on
// and calls job.Done once the job no longer needs to be tracked by this process.
// VideoActive reports transcodes of a video this process does not track itself.
type Dispatcher interface {
	Dispatch(ctx context.Context, job port.Job, req model.TranscodeRequest) error
	VideoActive(ctx context.Context, videoID string) (bool, error)
}

type UploadBeginner interface {
	BeginUpload(ctx context.Context, in BeginUploadInput) (model.UploadSession, error)
}

type ChunkWriter interface {
	WriteChunk(ctx context.Context, uploadID string, data []byte) (model.UploadSession, error)
	AbortUpload(ctx context.Context, uploadID, reason string) error
}

type UploadCompleter interface {
	CompleteUpload(ctx context.Context, uploadID string) (model.TranscodeRequest, error)
}

type UploadAborter interface {
	AbortUpload(ctx context.Context, uploadID, reason string) error
}

type SessionLookup interface {
	Session(uploadID string) (model.UploadSession, bool)
}

// compile-time checks: *UploadManager serves every admission route
var (
	_ UploadBeginner  = (*UploadManager)(nil)
	_ ChunkWriter     = (*UploadManager)(nil)
	_ UploadCompleter = (*UploadManager)(nil)
	_ UploadAborter   = (*UploadManager)(nil)
	_ SessionLookup   = (*UploadManager)(nil)
)
