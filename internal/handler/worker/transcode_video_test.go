package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fhuszti/videos-ms-go/internal/lifecycle"
	"github.com/fhuszti/videos-ms-go/internal/model"
	"github.com/fhuszti/videos-ms-go/internal/task"
	"github.com/hibiken/asynq"
)

type mockRunner struct {
	err      error
	called   bool
	got      model.TranscodeRequest
	active   int
	block    chan struct{}
	registry *lifecycle.Coordinator
	ctxErr   error
}

func (m *mockRunner) Run(ctx context.Context, req model.TranscodeRequest) (*model.VideoMetadata, error) {
	m.called = true
	m.got = req
	if m.registry != nil {
		m.active = m.registry.ActiveJobCount()
	}
	if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
			m.ctxErr = context.Cause(ctx)
			return nil, ctx.Err()
		}
	}
	return &model.VideoMetadata{ID: req.VideoID}, m.err
}

func payload() task.TranscodeVideoPayload {
	return task.TranscodeVideoPayload{
		UploadID:   "up-1",
		VideoID:    "vid-1",
		VideoName:  "clip.mp4",
		SourcePath: "/tmp/up-1.mp4",
	}
}

func TestTranscodeVideoHandler_InvalidPayload(t *testing.T) {
	runner := &mockRunner{}
	err := TranscodeVideoHandler(context.Background(), task.TranscodeVideoPayload{UploadID: "up-1"}, lifecycle.NewCoordinator(lifecycle.Options{}), runner)
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("got error %v; want SkipRetry", err)
	}
	if runner.called {
		t.Error("runner should not be called on invalid payload")
	}
}

func TestTranscodeVideoHandler_Success(t *testing.T) {
	coord := lifecycle.NewCoordinator(lifecycle.Options{})
	runner := &mockRunner{registry: coord}

	if err := TranscodeVideoHandler(context.Background(), payload(), coord, runner); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !runner.called {
		t.Fatal("runner not called")
	}
	if runner.got.VideoID != "vid-1" {
		t.Errorf("runner got video %q; want vid-1", runner.got.VideoID)
	}
	if runner.active != 1 {
		t.Errorf("active jobs during run = %d; want 1", runner.active)
	}
	if n := coord.ActiveJobCount(); n != 0 {
		t.Errorf("active jobs after run = %d; want 0", n)
	}
}

func TestTranscodeVideoHandler_PipelineFailureCompletesTask(t *testing.T) {
	coord := lifecycle.NewCoordinator(lifecycle.Options{})
	runner := &mockRunner{err: model.Errorf(model.CodeFFmpegError, "exit status 1")}

	if err := TranscodeVideoHandler(context.Background(), payload(), coord, runner); err != nil {
		t.Fatalf("got error %v; want nil", err)
	}
	if n := coord.ActiveJobCount(); n != 0 {
		t.Errorf("active jobs after run = %d; want 0", n)
	}
}

func TestTranscodeVideoHandler_DuplicateVideo(t *testing.T) {
	coord := lifecycle.NewCoordinator(lifecycle.Options{})
	job, err := coord.Register("other-upload", "vid-1", model.JobKindTranscode)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	defer job.Done()

	runner := &mockRunner{}
	err = TranscodeVideoHandler(context.Background(), payload(), coord, runner)
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("got error %v; want SkipRetry", err)
	}
	if runner.called {
		t.Error("runner should not be called for a duplicate video")
	}
}

func TestTranscodeVideoHandler_ShuttingDownIsRetried(t *testing.T) {
	coord := lifecycle.NewCoordinator(lifecycle.Options{})
	coord.StopAdmitting()

	err := TranscodeVideoHandler(context.Background(), payload(), coord, &mockRunner{})
	if err == nil {
		t.Fatal("expected error while shutting down")
	}
	if errors.Is(err, asynq.SkipRetry) {
		t.Error("shutdown rejection should be retried")
	}
	if !errors.Is(err, model.ErrShuttingDown) {
		t.Errorf("got error %v; want SHUTTING_DOWN", err)
	}
}

func TestTranscodeVideoHandler_TaskContextCancelsJob(t *testing.T) {
	coord := lifecycle.NewCoordinator(lifecycle.Options{})
	runner := &mockRunner{block: make(chan struct{})}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- TranscodeVideoHandler(ctx, payload(), coord, runner) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not return after the task context ended")
	}
	if !errors.Is(runner.ctxErr, context.Canceled) {
		t.Errorf("runner cancel cause = %v; want context.Canceled", runner.ctxErr)
	}
}

func TestTranscodeVideoHandler_DrainTimeoutIsRetried(t *testing.T) {
	coord := lifecycle.NewCoordinator(lifecycle.Options{ForceGrace: 2 * time.Second})
	runner := &mockRunner{block: make(chan struct{})}

	done := make(chan error, 1)
	go func() { done <- TranscodeVideoHandler(context.Background(), payload(), coord, runner) }()

	deadline := time.Now().Add(2 * time.Second)
	for coord.ActiveJobCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("job was never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	res := coord.Drain(10 * time.Millisecond)
	if res.Drained {
		t.Fatal("drain should have timed out")
	}

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected an error so asynq retries the task")
		}
		if errors.Is(err, asynq.SkipRetry) {
			t.Errorf("got %v; a forced job must be retried", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not return after the drain timeout")
	}
	if !errors.Is(runner.ctxErr, lifecycle.ErrDrainTimeout) {
		t.Errorf("runner cancel cause = %v; want ErrDrainTimeout", runner.ctxErr)
	}
}
