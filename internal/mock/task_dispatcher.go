package mock

import (
	"context"
	"sync"

	"github.com/fhuszti/videos-ms-go/internal/model"
	"github.com/fhuszti/videos-ms-go/internal/port"
)

// Dispatcher implements the transcode dispatcher for tests. Unless KeepJob is set it
// releases the job right away, as the asynq dispatcher does.
type Dispatcher struct {
	mu sync.Mutex

	Err     error
	KeepJob bool
	// Active lists videos with a transcode already queued elsewhere.
	Active    map[string]bool
	ActiveErr error

	Called   bool
	Requests []model.TranscodeRequest
	Jobs     []port.Job
}

func (m *Dispatcher) Dispatch(ctx context.Context, job port.Job, req model.TranscodeRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Called = true
	m.Requests = append(m.Requests, req)
	m.Jobs = append(m.Jobs, job)
	if m.Err != nil {
		return m.Err
	}
	if !m.KeepJob {
		job.Done()
	}
	return nil
}

func (m *Dispatcher) VideoActive(ctx context.Context, videoID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ActiveErr != nil {
		return false, m.ActiveErr
	}
	return m.Active[videoID], nil
}
