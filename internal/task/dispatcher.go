package task

import (
	"context"
	"errors"
	"fmt"

	"github.com/fhuszti/videos-ms-go/internal/logger"
	"github.com/fhuszti/videos-ms-go/internal/model"
	"github.com/fhuszti/videos-ms-go/internal/port"
	"github.com/hibiken/asynq"
)

type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// TaskInspector looks up queued transcodes. *asynq.Inspector implements it.
type TaskInspector interface {
	GetTaskInfo(queue, id string) (*asynq.TaskInfo, error)
	DeleteTask(queue, id string) error
}

// Dispatcher queues transcodes for cmd/worker. The upload's job ends here, the worker
// registers its own.
type Dispatcher struct {
	client    Enqueuer
	inspector TaskInspector
	closers   []func() error
}

func NewDispatcher(addr, password string) *Dispatcher {
	opt := asynq.RedisClientOpt{Addr: addr, Password: password}
	c := asynq.NewClient(opt)
	i := asynq.NewInspector(opt)
	return &Dispatcher{client: c, inspector: i, closers: []func() error{c.Close, i.Close}}
}

// NewDispatcherWithClient wraps an existing enqueuer and inspector.
func NewDispatcherWithClient(client Enqueuer, inspector TaskInspector) *Dispatcher {
	return &Dispatcher{client: client, inspector: inspector}
}

// VideoActive reports whether a transcode of videoID is queued, retrying or running on
// a worker. Completed and archived tasks only keep the task ID reserved.
func (d *Dispatcher) VideoActive(ctx context.Context, videoID string) (bool, error) {
	info, err := d.inspector.GetTaskInfo(QueueName, TaskID(videoID))
	if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("look up transcode of video %s: %w", videoID, err)
	}
	return !finished(info.State), nil
}

func (d *Dispatcher) Dispatch(ctx context.Context, job port.Job, req model.TranscodeRequest) error {
	defer job.Done()

	t, err := NewTranscodeVideoTask(req)
	if err != nil {
		return model.NewError(model.CodeTranscodeFailed, err).WithUpload(req.UploadID, req.VideoID)
	}
	d.releaseFinished(ctx, req.VideoID)

	info, err := d.client.EnqueueContext(ctx, t)
	if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
		return model.Errorf(model.CodeDuplicateID, "a transcode of video %s is already queued", req.VideoID).
			WithUpload(req.UploadID, req.VideoID)
	}
	if err != nil {
		return model.Errorf(model.CodeTranscodeFailed, "enqueue transcode: %w", err).WithUpload(req.UploadID, req.VideoID)
	}

	logger.Infof(ctx, "transcode of video %s queued as task %s on %q", req.VideoID, info.ID, info.Queue)
	return nil
}

// releaseFinished deletes a completed or archived task of videoID so a re-upload can
// reuse its task ID.
func (d *Dispatcher) releaseFinished(ctx context.Context, videoID string) {
	info, err := d.inspector.GetTaskInfo(QueueName, TaskID(videoID))
	if err != nil || !finished(info.State) {
		return
	}
	if err := d.inspector.DeleteTask(QueueName, info.ID); err != nil && !errors.Is(err, asynq.ErrTaskNotFound) {
		logger.Warnf(ctx, "⚠️  could not delete finished task %s: %v", info.ID, err)
	}
}

func finished(s asynq.TaskState) bool {
	return s == asynq.TaskStateCompleted || s == asynq.TaskStateArchived
}

func (d *Dispatcher) Close() error {
	var errs []error
	for _, c := range d.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}
