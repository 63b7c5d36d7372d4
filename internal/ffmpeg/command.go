package ffmpeg

import (
	"context"
	"errors"
	"os/exec"
	"sync"
	"time"

	"github.com/fhuszti/videos-ms-go/internal/metrics"
	"github.com/fhuszti/videos-ms-go/internal/port"
)

// CommandFunc builds the command for an external binary.
type CommandFunc func(ctx context.Context, name string, args ...string) *exec.Cmd

// waitDelay bounds how long Wait blocks on pipes once the process has been killed.
const waitDelay = 2 * time.Second

var (
	// ErrStalled is returned when ffmpeg printed no progress for longer than the stall timeout.
	ErrStalled = errors.New("no progress within stall timeout")
	// ErrProbeTimeout is returned when ffprobe did not finish within its timeout.
	ErrProbeTimeout = errors.New("probe timed out")
)

// IsTransient reports whether err is a stall or timeout worth one automatic retry.
func IsTransient(err error) bool {
	return errors.Is(err, ErrStalled) || errors.Is(err, ErrProbeTimeout)
}

func acquire(ctx context.Context, l port.ProcessLimiter) (func(), error) {
	if l == nil {
		return func() {}, nil
	}
	if err := l.Acquire(ctx); err != nil {
		return nil, err
	}
	metrics.ProcessesInFlight.Inc()
	return func() {
		metrics.ProcessesInFlight.Dec()
		l.Release()
	}, nil
}

// tailBuffer keeps the last max bytes written to it, for error messages.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
