package mock

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/fhuszti/videos-ms-go/internal/port"
)

// Storage implements port.Storage for tests.
type Storage struct {
	mu sync.Mutex

	// stored values
	StatInfoOut port.FileInfo
	// Stats, when set, answers StatFile per key; keys it lacks are not found.
	// Otherwise a saved key reports its saved size unless StatInfoOut is set.
	Stats      map[string]port.FileInfo
	RemovedOut int

	// captured inputs
	SavedKeys    []string
	SavedData    map[string][]byte
	SavedOpts    map[string]map[string]string
	RemovedKeys  []string
	RemovedPrefs []string

	// errors
	StatErr   error
	RemoveErr error
	SaveErr   error

	// call flags
	StatCalled   bool
	RemoveCalled bool
	SaveCalled   bool
}

func (m *Storage) StatFile(ctx context.Context, fileKey string) (port.FileInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.StatCalled = true
	if m.StatErr != nil {
		return port.FileInfo{}, m.StatErr
	}
	if m.Stats != nil {
		info, ok := m.Stats[fileKey]
		if !ok {
			return port.FileInfo{}, errors.New("object not found")
		}
		return info, nil
	}
	if data, ok := m.SavedData[fileKey]; ok && m.StatInfoOut == (port.FileInfo{}) {
		return port.FileInfo{SizeBytes: int64(len(data))}, nil
	}
	return m.StatInfoOut, nil
}

func (m *Storage) SaveFile(ctx context.Context, fileKey string, reader io.Reader, fileSize int64, opts map[string]string) error {
	data, _ := io.ReadAll(reader)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.SaveCalled = true
	if m.SaveErr != nil {
		return m.SaveErr
	}
	if m.SavedData == nil {
		m.SavedData = make(map[string][]byte)
		m.SavedOpts = make(map[string]map[string]string)
	}
	m.SavedKeys = append(m.SavedKeys, fileKey)
	m.SavedData[fileKey] = data
	m.SavedOpts[fileKey] = opts
	return nil
}

func (m *Storage) RemoveFile(ctx context.Context, fileKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RemoveCalled = true
	m.RemovedKeys = append(m.RemovedKeys, fileKey)
	return m.RemoveErr
}

func (m *Storage) RemovePrefix(ctx context.Context, prefix string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RemoveCalled = true
	m.RemovedPrefs = append(m.RemovedPrefs, prefix)
	return m.RemovedOut, m.RemoveErr
}
