package port

import (
	"context"

	"github.com/fhuszti/videos-ms-go/internal/model"
)

// Job is a registered upload or transcode. Its context is cancelled when the job is
// aborted or when a drain times out.
type Job interface {
	ID() string
	VideoID() string
	Context() context.Context
	SetKind(kind model.JobKind)
	// Forced reports whether a drain timeout cancelled the job.
	Forced() bool
	// Done unregisters the job. Calling it more than once is a no-op.
	Done()
}

// JobRegistry admits jobs. Register fails with SHUTTING_DOWN once draining started and
// with DUPLICATE_ID when a job for the same video is already active.
type JobRegistry interface {
	Register(id, videoID string, kind model.JobKind) (Job, error)
	Cancel(id string, cause error) bool
	ActiveJobCount() int
	Admitting() bool
}

// StorageBudget reports whether incoming bytes fit the configured budget, sweeping
// first when they do not. It fails with DISK_FULL when the sweep could not make room.
// Bytes held by reservations count as used until they are written or released.
type StorageBudget interface {
	EnforceStorageBudget(ctx context.Context, incomingBytes int64) (BudgetReport, error)
	// Reserve checks bytes like EnforceStorageBudget and holds them for id when they fit.
	Reserve(ctx context.Context, id string, bytes int64) (Reservation, error)
}

// Reservation is space promised to one upload.
type Reservation interface {
	// Written shrinks the reservation by n bytes that now exist on disk.
	Written(n int64)
	// Release drops what is left of the reservation. Calling it more than once is a no-op.
	Release()
}

// BudgetReport describes one budget check.
type BudgetReport struct {
	Budget         int64    `json:"budget"`
	UsageBefore    int64    `json:"usageBefore"`
	UsageAfter     int64    `json:"usageAfter"`
	Reserved       int64    `json:"reserved"`
	Swept          bool     `json:"swept"`
	OrphansRemoved int      `json:"orphansRemoved"`
	FreedBytes     int64    `json:"freedBytes"`
	Evicted        []string `json:"evicted,omitempty"`
}
