package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/fhuszti/videos-ms-go/internal/model"
	"github.com/fhuszti/videos-ms-go/internal/port"
	"github.com/hibiken/asynq"
)

func sampleRequest() model.TranscodeRequest {
	return model.TranscodeRequest{
		UploadID:   "up-1",
		VideoID:    "vid-1",
		VideoName:  "clip.mp4",
		SourcePath: "/data/uploads/up-1.mp4",
		SizeBytes:  1024,
		MimeType:   "video/mp4",
	}
}

func TestTranscodeVideoTask_RoundTrip(t *testing.T) {
	req := sampleRequest()
	tk, err := NewTranscodeVideoTask(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tk.Type() != TypeTranscodeVideo {
		t.Errorf("type = %q; want %q", tk.Type(), TypeTranscodeVideo)
	}
	got, err := ParseTranscodeVideoPayload(tk)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if got != req {
		t.Errorf("payload = %+v; want %+v", got, req)
	}
}

func TestNewTranscodeVideoTask_MissingFields(t *testing.T) {
	if _, err := NewTranscodeVideoTask(model.TranscodeRequest{UploadID: "x"}); err == nil {
		t.Fatal("expected error for missing video id")
	}
}

func TestParseTranscodeVideoPayload_Invalid(t *testing.T) {
	if _, err := ParseTranscodeVideoPayload(asynq.NewTask(TypeTranscodeVideo, []byte("{"))); err == nil {
		t.Fatal("expected error for invalid payload")
	}
}

type fakeEnqueuer struct {
	err  error
	task *asynq.Task
}

func (f *fakeEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	f.task = task
	if f.err != nil {
		return nil, f.err
	}
	return &asynq.TaskInfo{ID: TaskID("vid-1"), Queue: "default"}, nil
}

type fakeInspector struct {
	info    *asynq.TaskInfo
	err     error
	deleted []string
}

func (f *fakeInspector) GetTaskInfo(queue, id string) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.info == nil {
		return nil, fmt.Errorf("asynq: %w", asynq.ErrTaskNotFound)
	}
	return f.info, nil
}

func (f *fakeInspector) DeleteTask(queue, id string) error {
	f.deleted = append(f.deleted, queue+"/"+id)
	f.info = nil
	return nil
}

type fakeJob struct {
	ctx       context.Context
	doneCalls int
}

func (j *fakeJob) ID() string                 { return "up-1" }
func (j *fakeJob) VideoID() string            { return "vid-1" }
func (j *fakeJob) Context() context.Context   { return j.ctx }
func (j *fakeJob) SetKind(kind model.JobKind) {}
func (j *fakeJob) Forced() bool               { return false }
func (j *fakeJob) Done()                      { j.doneCalls++ }

var _ port.Job = (*fakeJob)(nil)

func TestDispatcher_Dispatch(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode model.Code
	}{
		{name: "queued"},
		{name: "task id conflict", err: asynq.ErrTaskIDConflict, wantCode: model.CodeDuplicateID},
		{name: "redis down", err: errors.New("dial tcp: refused"), wantCode: model.CodeTranscodeFailed},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			enq := &fakeEnqueuer{err: tc.err}
			job := &fakeJob{ctx: context.Background()}
			err := NewDispatcherWithClient(enq, &fakeInspector{}).Dispatch(context.Background(), job, sampleRequest())

			if got := model.CodeOf(err); got != tc.wantCode {
				t.Errorf("code = %q; want %q (err %v)", got, tc.wantCode, err)
			}
			if job.doneCalls != 1 {
				t.Errorf("job.Done called %d times; want 1", job.doneCalls)
			}
			if enq.task == nil || enq.task.Type() != TypeTranscodeVideo {
				t.Errorf("enqueued task = %v", enq.task)
			}
		})
	}
}

func TestDispatcher_VideoActive(t *testing.T) {
	tests := []struct {
		name    string
		insp    *fakeInspector
		want    bool
		wantErr bool
	}{
		{name: "no task", insp: &fakeInspector{}},
		{name: "queue not created yet", insp: &fakeInspector{err: fmt.Errorf("asynq: %w", asynq.ErrQueueNotFound)}},
		{name: "pending", insp: &fakeInspector{info: &asynq.TaskInfo{State: asynq.TaskStatePending}}, want: true},
		{name: "running", insp: &fakeInspector{info: &asynq.TaskInfo{State: asynq.TaskStateActive}}, want: true},
		{name: "waiting for retry", insp: &fakeInspector{info: &asynq.TaskInfo{State: asynq.TaskStateRetry}}, want: true},
		{name: "completed", insp: &fakeInspector{info: &asynq.TaskInfo{State: asynq.TaskStateCompleted}}},
		{name: "archived", insp: &fakeInspector{info: &asynq.TaskInfo{State: asynq.TaskStateArchived}}},
		{name: "redis down", insp: &fakeInspector{err: errors.New("dial tcp: refused")}, wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NewDispatcherWithClient(&fakeEnqueuer{}, tc.insp).VideoActive(context.Background(), "vid-1")
			if (err != nil) != tc.wantErr {
				t.Fatalf("err = %v; wantErr %v", err, tc.wantErr)
			}
			if got != tc.want {
				t.Errorf("VideoActive = %v; want %v", got, tc.want)
			}
		})
	}
}

func TestDispatcher_DeletesFinishedTaskBeforeEnqueue(t *testing.T) {
	insp := &fakeInspector{info: &asynq.TaskInfo{ID: TaskID("vid-1"), Queue: QueueName, State: asynq.TaskStateArchived}}
	enq := &fakeEnqueuer{}
	job := &fakeJob{ctx: context.Background()}

	if err := NewDispatcherWithClient(enq, insp).Dispatch(context.Background(), job, sampleRequest()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(insp.deleted) != 1 || insp.deleted[0] != QueueName+"/"+TaskID("vid-1") {
		t.Errorf("deleted = %v; want the archived task", insp.deleted)
	}
	if enq.task == nil {
		t.Error("task was not enqueued")
	}
}

func TestDispatcher_KeepsPendingTask(t *testing.T) {
	insp := &fakeInspector{info: &asynq.TaskInfo{ID: TaskID("vid-1"), Queue: QueueName, State: asynq.TaskStatePending}}
	enq := &fakeEnqueuer{err: asynq.ErrTaskIDConflict}
	job := &fakeJob{ctx: context.Background()}

	err := NewDispatcherWithClient(enq, insp).Dispatch(context.Background(), job, sampleRequest())
	if model.CodeOf(err) != model.CodeDuplicateID {
		t.Errorf("code = %q; want %q", model.CodeOf(err), model.CodeDuplicateID)
	}
	if len(insp.deleted) != 0 {
		t.Errorf("pending task was deleted: %v", insp.deleted)
	}
}

type blockingRunner struct {
	mu      sync.Mutex
	gotCtx  context.Context
	release chan struct{}
}

func (r *blockingRunner) Run(ctx context.Context, req model.TranscodeRequest) (*model.VideoMetadata, error) {
	r.mu.Lock()
	r.gotCtx = ctx
	r.mu.Unlock()
	<-r.release
	return &model.VideoMetadata{ID: req.VideoID}, nil
}

func TestLocalDispatcher_RunsUnderJob(t *testing.T) {
	runner := &blockingRunner{release: make(chan struct{})}
	d := NewLocalDispatcher(runner)
	job := &fakeJob{ctx: context.Background()}

	if err := d.Dispatch(context.Background(), job, sampleRequest()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	close(runner.release)
	waited := make(chan struct{})
	go func() {
		d.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not return")
	}

	if job.doneCalls != 1 {
		t.Errorf("job.Done called %d times; want 1", job.doneCalls)
	}
	runner.mu.Lock()
	defer runner.mu.Unlock()
	if runner.gotCtx == nil {
		t.Fatal("runner was not called")
	}
}
