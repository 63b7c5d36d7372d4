package port

import "context"

// ProcessLimiter caps the number of external ffmpeg/ffprobe processes running at once.
type ProcessLimiter interface {
	Acquire(ctx context.Context) error
	Release()
}
