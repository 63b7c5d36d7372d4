package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/fhuszti/videos-ms-go/internal/api_context"
	"github.com/fhuszti/videos-ms-go/internal/logger"
	"github.com/fhuszti/videos-ms-go/internal/model"
	"github.com/fhuszti/videos-ms-go/internal/port"
	"github.com/fhuszti/videos-ms-go/internal/task"
	"github.com/hibiken/asynq"
)

// TranscodeVideoHandler handles a transcode-video task. It registers the job with
// this worker's registry, so a drain can wait for or cancel it, and runs the pipeline.
//
// A pipeline failure is already recorded on the video and published, so it is not
// returned: the task completes and its ID is freed for a new upload of the same video.
// Jobs this worker could not admit, and jobs a drain timeout cut short, are handed
// back to asynq to be retried.
func TranscodeVideoHandler(ctx context.Context, p task.TranscodeVideoPayload, registry port.JobRegistry, runner task.Runner) error {
	ctx = api_context.WithUploadID(ctx, p.UploadID)
	if p.VideoID == "" || p.SourcePath == "" {
		logger.Errorf(ctx, "❌  Invalid transcode payload for upload %q", p.UploadID)
		return fmt.Errorf("invalid transcode payload: %w", asynq.SkipRetry)
	}

	job, err := registry.Register(p.UploadID, p.VideoID, model.JobKindTranscode)
	if err != nil {
		if errors.Is(err, model.ErrDuplicateID) {
			logger.Warnf(ctx, "⚠️  Video #%s is already being transcoded here: %v", p.VideoID, err)
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		logger.Warnf(ctx, "⚠️  Could not admit transcode of video #%s: %v", p.VideoID, err)
		return err
	}
	defer job.Done()

	// the task context ends on asynq shutdown or task timeout
	stop := context.AfterFunc(ctx, func() {
		registry.Cancel(job.ID(), context.Cause(ctx))
	})
	defer stop()

	if _, err := runner.Run(api_context.WithUploadID(job.Context(), p.UploadID), p); err != nil {
		if job.Forced() {
			logger.Warnf(ctx, "⚠️  Transcode of video #%s interrupted by shutdown, it will be retried", p.VideoID)
			return fmt.Errorf("transcode of video %s interrupted: %w", p.VideoID, err)
		}
		logger.Errorf(ctx, "❌  Failed to transcode video #%s: %v", p.VideoID, err)
		return nil
	}

	logger.Infof(ctx, "✅  Successfully transcoded video #%s", p.VideoID)
	return nil
}
