package lifecycle

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/fhuszti/videos-ms-go/internal/metrics"
	"github.com/fhuszti/videos-ms-go/internal/model"
	"github.com/fhuszti/videos-ms-go/internal/port"
)

// Job is a registered upload or transcode.
type Job struct {
	id      string
	videoID string

	mu   sync.Mutex
	kind model.JobKind

	ctx    context.Context
	cancel context.CancelCauseFunc
	coord  *Coordinator
	once   sync.Once
	forced atomic.Bool
}

var _ port.Job = (*Job)(nil)

func (j *Job) ID() string               { return j.id }
func (j *Job) VideoID() string          { return j.videoID }
func (j *Job) Context() context.Context { return j.ctx }

func (j *Job) Kind() model.JobKind {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.kind
}

// SetKind moves the job to another phase, e.g. from upload to transcode.
func (j *Job) SetKind(kind model.JobKind) {
	j.mu.Lock()
	prev := j.kind
	j.kind = kind
	j.mu.Unlock()
	if prev != kind {
		metrics.ActiveJobs.WithLabelValues(string(prev)).Dec()
		metrics.ActiveJobs.WithLabelValues(string(kind)).Inc()
	}
}

// Forced reports whether a drain timeout cancelled the job.
func (j *Job) Forced() bool { return j.forced.Load() }

func (j *Job) Done() {
	j.once.Do(func() {
		j.coord.unregister(j)
		j.cancel(nil)
	})
}
