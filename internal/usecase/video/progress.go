package video

import (
	"context"
	"sync"

	"github.com/fhuszti/videos-ms-go/internal/ffmpeg"
	"github.com/fhuszti/videos-ms-go/internal/model"
	"github.com/fhuszti/videos-ms-go/internal/port"
)

// maxRunningOverall keeps 100 for the completed stage.
const maxRunningOverall = 99.9

// jobTracker owns one TranscodeJob. Overall progress is the mean of the stage fractions,
// which for a sequential ladder is ((done + stage/100) / total) * 100, and never decreases.
type jobTracker struct {
	ctx       context.Context
	publisher port.ProgressPublisher

	mu     sync.Mutex
	job    model.TranscodeJob
	stages []float64
}

func newJobTracker(ctx context.Context, publisher port.ProgressPublisher, req model.TranscodeRequest) *jobTracker {
	return &jobTracker{
		ctx:       context.WithoutCancel(ctx),
		publisher: publisher,
		job: model.TranscodeJob{
			UploadID:     req.UploadID,
			VideoID:      req.VideoID,
			VideoName:    req.VideoName,
			CurrentStage: model.StageIdle,
		},
	}
}

func (t *jobTracker) snapshot() model.TranscodeJob {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.job
}

func (t *jobTracker) publishLocked() {
	t.publisher.PublishTranscode(t.ctx, t.job.ProgressEvent())
}

func (t *jobTracker) idle() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.publishLocked()
}

func (t *jobTracker) planned(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stages = make([]float64, n)
}

func (t *jobTracker) stageStarted(i int, label string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.job.CurrentStage.IsTerminal() {
		return
	}
	t.job.CurrentStage = model.TranscodingStage(label)
	t.job.StageProgressPercent = t.stages[i] * 100
	t.job.CurrentFPS = nil
	t.publishLocked()
}

func (t *jobTracker) stageProgress(i int, label string, p ffmpeg.Progress) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.job.CurrentStage.IsTerminal() {
		return
	}
	if f := p.Percent / 100; f > t.stages[i] {
		t.stages[i] = f
	}
	t.job.CurrentStage = model.TranscodingStage(label)
	t.job.StageProgressPercent = p.Percent
	t.job.CurrentFPS = p.FPS
	t.updateOverallLocked()
	t.publishLocked()
}

func (t *jobTracker) stageDone(i int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stages[i] = 1
	t.updateOverallLocked()
}

func (t *jobTracker) updateOverallLocked() {
	if len(t.stages) == 0 {
		return
	}
	var sum float64
	for _, f := range t.stages {
		sum += f
	}
	overall := sum / float64(len(t.stages)) * 100
	if overall > maxRunningOverall {
		overall = maxRunningOverall
	}
	if overall > t.job.OverallProgressPercent {
		t.job.OverallProgressPercent = overall
	}
}

func (t *jobTracker) complete() model.TranscodeJob {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.job.CurrentStage = model.StageCompleted
	t.job.StageProgressPercent = 100
	t.job.OverallProgressPercent = 100
	t.job.CurrentFPS = nil
	t.publishLocked()
	return t.job
}

// fail moves the job to failed. The stage the failure happened in is kept on the error.
func (t *jobTracker) fail(perr *model.PipelineError) model.TranscodeJob {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.job.CurrentStage.IsTerminal() {
		return t.job
	}
	perr.WithUpload(t.job.UploadID, t.job.VideoID).WithStage(t.job.CurrentStage)
	t.job.CurrentStage = model.StageFailed
	t.job.CurrentFPS = nil
	t.job.Error = perr.Message()
	t.job.ErrorCode = perr.Code
	t.publishLocked()
	return t.job
}
