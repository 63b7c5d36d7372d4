package mock

import (
	"context"
	"sync"

	"github.com/fhuszti/videos-ms-go/internal/model"
)

// VideoRepo implements port.VideoRepository for tests. Saved keeps a copy of every
// Save call in order.
type VideoRepo struct {
	mu sync.Mutex

	VideoRecord *model.VideoMetadata

	GetErr   error
	SaveErr  error
	ResetErr error

	// SaveErrAfter makes Save fail once it was called that many times; 0 disables it.
	SaveErrAfter int

	Saved       []model.VideoMetadata
	GetCalled   bool
	ResetCalled bool
	ResetID     string
}

func (m *VideoRepo) Save(ctx context.Context, v *model.VideoMetadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *v
	cp.Qualities = append(model.Qualities{}, v.Qualities...)
	m.Saved = append(m.Saved, cp)
	if m.SaveErrAfter > 0 && len(m.Saved) > m.SaveErrAfter {
		return m.SaveErr
	}
	if m.SaveErrAfter == 0 && m.SaveErr != nil {
		return m.SaveErr
	}
	m.VideoRecord = &cp
	return nil
}

func (m *VideoRepo) GetByID(ctx context.Context, id string) (*model.VideoMetadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GetCalled = true
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	if m.VideoRecord == nil || m.VideoRecord.ID != id {
		return nil, model.Errorf(model.CodeNotFound, "video %s not found", id)
	}
	cp := *m.VideoRecord
	return &cp, nil
}

func (m *VideoRepo) ResetVariants(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ResetCalled = true
	m.ResetID = id
	return m.ResetErr
}

// Last returns the most recent saved state.
func (m *VideoRepo) Last() (model.VideoMetadata, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Saved) == 0 {
		return model.VideoMetadata{}, false
	}
	return m.Saved[len(m.Saved)-1], true
}
