package lifecycle

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fhuszti/videos-ms-go/internal/logger"
	"github.com/fhuszti/videos-ms-go/internal/metrics"
	"github.com/fhuszti/videos-ms-go/internal/model"
	"github.com/fhuszti/videos-ms-go/internal/port"
	"golang.org/x/sync/semaphore"
)

// ErrDrainTimeout is the cancellation cause of jobs still running when a drain timed out.
var ErrDrainTimeout = errors.New("drain timeout elapsed")

// Options configures a Coordinator.
type Options struct {
	UploadsDir   string
	StreamsDir   string
	MaxProcesses int
	// StorageBudget is the combined uploads+streams size in bytes; 0 disables the check.
	StorageBudget int64
	OrphanGrace   time.Duration
	// SweepSources lets the sweep remove finished uploads older than OrphanGrace that
	// no job owns. Only safe when every transcode runs under this coordinator.
	SweepSources  bool
	EvictVariants bool
	// OnEvict runs after a video's variants were removed by an eviction.
	OnEvict func(ctx context.Context, videoID string) error
	// ForceGrace bounds how long Drain waits for cancelled jobs to unregister.
	ForceGrace time.Duration
}

// Coordinator tracks in-flight jobs, caps external processes and enforces the storage budget.
type Coordinator struct {
	opts Options

	mu        sync.Mutex
	admitting bool
	jobs      map[string]*Job
	videos    map[string]string // videoID -> job ID
	changed   chan struct{}

	sem     *semaphore.Weighted
	sweepMu sync.Mutex
	now     func() time.Time

	resMu        sync.Mutex
	reservations map[string]*reservation
}

var (
	_ port.JobRegistry    = (*Coordinator)(nil)
	_ port.ProcessLimiter = (*Coordinator)(nil)
	_ port.StorageBudget  = (*Coordinator)(nil)
)

func NewCoordinator(opts Options) *Coordinator {
	if opts.MaxProcesses < 1 {
		opts.MaxProcesses = 1
	}
	if opts.ForceGrace <= 0 {
		opts.ForceGrace = 10 * time.Second
	}
	return &Coordinator{
		opts:      opts,
		admitting: true,
		jobs:      make(map[string]*Job),
		videos:    make(map[string]string),
		changed:   make(chan struct{}),
		sem:       semaphore.NewWeighted(int64(opts.MaxProcesses)),
		now:       time.Now,

		reservations: make(map[string]*reservation),
	}
}

// Register admits a new job.
func (c *Coordinator) Register(id, videoID string, kind model.JobKind) (port.Job, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.admitting {
		return nil, model.NewError(model.CodeShuttingDown, nil).WithUpload(id, videoID)
	}
	if _, ok := c.jobs[id]; ok {
		return nil, model.Errorf(model.CodeDuplicateID, "upload %s is already active", id).WithUpload(id, videoID)
	}
	if videoID != "" {
		if owner, ok := c.videos[videoID]; ok {
			return nil, model.Errorf(model.CodeDuplicateID, "video %s already has an active job (%s)", videoID, owner).
				WithUpload(id, videoID)
		}
	}

	ctx, cancel := context.WithCancelCause(context.Background())
	j := &Job{id: id, videoID: videoID, kind: kind, ctx: ctx, cancel: cancel, coord: c}
	c.jobs[id] = j
	if videoID != "" {
		c.videos[videoID] = id
	}
	metrics.ActiveJobs.WithLabelValues(string(kind)).Inc()
	return j, nil
}

func (c *Coordinator) unregister(j *Job) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cur, ok := c.jobs[j.id]; !ok || cur != j {
		return
	}
	delete(c.jobs, j.id)
	if j.videoID != "" && c.videos[j.videoID] == j.id {
		delete(c.videos, j.videoID)
	}
	metrics.ActiveJobs.WithLabelValues(string(j.Kind())).Dec()

	close(c.changed)
	c.changed = make(chan struct{})
}

// Cancel cancels a registered job's context. It reports whether the job was found.
func (c *Coordinator) Cancel(id string, cause error) bool {
	c.mu.Lock()
	j, ok := c.jobs[id]
	c.mu.Unlock()
	if !ok {
		return false
	}
	j.cancel(cause)
	return true
}

func (c *Coordinator) ActiveJobCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.jobs)
}

func (c *Coordinator) Admitting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.admitting
}

// StopAdmitting makes every later Register fail with SHUTTING_DOWN.
func (c *Coordinator) StopAdmitting() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.admitting = false
}

// DrainResult reports how a drain ended.
type DrainResult struct {
	Drained bool
	// Forced lists the jobs cancelled because the timeout elapsed.
	Forced []string
}

// Drain stops admission and waits up to timeout for every job to finish. Jobs still
// running afterwards are cancelled with ErrDrainTimeout, and Drain waits up to
// ForceGrace more for them to clean up and unregister.
func (c *Coordinator) Drain(timeout time.Duration) DrainResult {
	ctx := context.Background()
	c.StopAdmitting()
	logger.Infof(ctx, "draining %d active job(s), timeout %s", c.ActiveJobCount(), timeout)

	if c.waitIdle(timeout) {
		return DrainResult{Drained: true}
	}

	c.mu.Lock()
	forced := make([]string, 0, len(c.jobs))
	for id, j := range c.jobs {
		forced = append(forced, id)
		j.forced.Store(true)
		j.cancel(ErrDrainTimeout)
	}
	c.mu.Unlock()

	metrics.ForcedTerminationsTotal.Add(float64(len(forced)))
	logger.Warnf(ctx, "drain timeout elapsed, force-cancelled %d job(s): %v", len(forced), forced)

	if !c.waitIdle(c.opts.ForceGrace) {
		logger.Errorf(ctx, "❌  %d job(s) still registered after forced cancellation", c.ActiveJobCount())
	}
	return DrainResult{Drained: false, Forced: forced}
}

// waitIdle reports whether the registry emptied within timeout.
func (c *Coordinator) waitIdle(timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		c.mu.Lock()
		if len(c.jobs) == 0 {
			c.mu.Unlock()
			return true
		}
		ch := c.changed
		c.mu.Unlock()

		select {
		case <-ch:
		case <-timer.C:
			return false
		}
	}
}

// Acquire takes one external process slot, blocking until one frees up or ctx ends.
func (c *Coordinator) Acquire(ctx context.Context) error {
	return c.sem.Acquire(ctx, 1)
}

func (c *Coordinator) Release() {
	c.sem.Release(1)
}
