package mock

import (
	"context"
	"sync"

	"github.com/fhuszti/videos-ms-go/internal/port"
)

// StorageBudget implements port.StorageBudget for tests.
type StorageBudget struct {
	mu sync.Mutex

	Report port.BudgetReport
	Err    error

	Called       bool
	Incoming     int64
	Reservations []*Reservation
}

func (m *StorageBudget) EnforceStorageBudget(ctx context.Context, incomingBytes int64) (port.BudgetReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Called = true
	m.Incoming = incomingBytes
	return m.Report, m.Err
}

func (m *StorageBudget) Reserve(ctx context.Context, id string, bytes int64) (port.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Called = true
	m.Incoming = bytes
	if m.Err != nil {
		return nil, m.Err
	}
	r := &Reservation{ID: id, Outstanding: bytes}
	m.Reservations = append(m.Reservations, r)
	return r, nil
}

// Reservation records what the upload manager reported about its reserved space.
type Reservation struct {
	mu sync.Mutex

	ID          string
	Outstanding int64
	Released    bool
}

func (r *Reservation) Written(n int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Outstanding -= n
}

func (r *Reservation) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Released = true
}

func (r *Reservation) Snapshot() (outstanding int64, released bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Outstanding, r.Released
}
