package task

import (
	"context"
	"sync"

	"github.com/fhuszti/videos-ms-go/internal/api_context"
	"github.com/fhuszti/videos-ms-go/internal/model"
	"github.com/fhuszti/videos-ms-go/internal/port"
)

// Runner runs the transcode pipeline of one persisted upload.
type Runner interface {
	Run(ctx context.Context, req model.TranscodeRequest) (*model.VideoMetadata, error)
}

// LocalDispatcher runs transcodes in-process, each in its own goroutine, under the
// job registered for the upload.
type LocalDispatcher struct {
	runner Runner
	wg     sync.WaitGroup
}

func NewLocalDispatcher(runner Runner) *LocalDispatcher {
	return &LocalDispatcher{runner: runner}
}

func (d *LocalDispatcher) Dispatch(ctx context.Context, job port.Job, req model.TranscodeRequest) error {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer job.Done()
		_, _ = d.runner.Run(api_context.WithUploadID(job.Context(), req.UploadID), req)
	}()
	return nil
}

// VideoActive is always false: in-process transcodes hold their job in the registry,
// which already refuses a second job for the video.
func (d *LocalDispatcher) VideoActive(ctx context.Context, videoID string) (bool, error) {
	return false, nil
}

// Wait blocks until every dispatched run returned.
func (d *LocalDispatcher) Wait() {
	d.wg.Wait()
}
