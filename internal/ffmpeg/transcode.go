package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/fhuszti/videos-ms-go/internal/logger"
	"github.com/fhuszti/videos-ms-go/internal/model"
	"github.com/fhuszti/videos-ms-go/internal/port"
)

// PartSuffix marks outputs that are still being written.
const PartSuffix = ".part"

// Request describes one (source, quality) encode.
type Request struct {
	SourcePath  string
	Quality     model.Quality
	OutputPath  string
	Duration    time.Duration
	TotalFrames int64
}

// ProgressFunc receives normalized progress. Percent never decreases within one run.
type ProgressFunc func(Progress)

// Transcoder drives one ffmpeg process per Run.
type Transcoder struct {
	binary       string
	stallTimeout time.Duration
	limiter      port.ProcessLimiter
	command      CommandFunc
}

func NewTranscoder(binary string, stallTimeout time.Duration, limiter port.ProcessLimiter) *Transcoder {
	return &Transcoder{
		binary:       binary,
		stallTimeout: stallTimeout,
		limiter:      limiter,
		command:      exec.CommandContext,
	}
}

// Run encodes req.SourcePath into req.OutputPath. The output is written to a ".part"
// sibling and renamed on success, so a failed or cancelled run never leaves a file at
// OutputPath. Failures are FFMPEG_ERROR; a stall also wraps ErrStalled and a cancelled
// ctx wraps ctx.Err().
func (t *Transcoder) Run(ctx context.Context, req Request, onProgress ProgressFunc) (string, error) {
	if onProgress == nil {
		onProgress = func(Progress) {}
	}
	if err := os.MkdirAll(filepath.Dir(req.OutputPath), 0o755); err != nil {
		return "", model.Errorf(model.CodeFFmpegError, "create output dir: %w", err)
	}

	release, err := acquire(ctx, t.limiter)
	if err != nil {
		return "", model.NewError(model.CodeFFmpegError, err)
	}
	defer release()

	partPath := req.OutputPath + PartSuffix
	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	stderr := newTailBuffer(4096)
	cmd := t.command(runCtx, t.binary, buildArgs(req, partPath)...)
	cmd.Stderr = stderr
	cmd.WaitDelay = waitDelay
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", model.Errorf(model.CodeFFmpegError, "stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return "", model.Errorf(model.CodeFFmpegError, "start ffmpeg: %w", err)
	}

	activity := make(chan struct{}, 1)
	watchDone := make(chan struct{})
	if t.stallTimeout > 0 {
		go watchStall(runCtx, t.stallTimeout, activity, watchDone, cancel)
	} else {
		close(watchDone)
	}

	parser := NewProgressParser(req.Duration, req.TotalFrames)
	var last float64
	for line, err := range Lines(stdout) {
		if err != nil {
			// keep the pipe drained so ffmpeg never blocks on a full stdout
			logger.Warnf(ctx, "ffmpeg progress for %s unreadable, ignoring the rest: %v", req.Quality.Label, err)
			_, _ = io.Copy(activityWriter(activity), stdout)
			break
		}
		ping(activity)
		p, ok := parser.Feed(line)
		if !ok {
			continue
		}
		if p.Percent < last {
			p.Percent = last
		}
		last = p.Percent
		onProgress(p)
	}

	waitErr := cmd.Wait()
	cancel(nil)
	<-watchDone

	fail := func(err *model.PipelineError) (string, error) {
		removePart(ctx, partPath)
		return "", err
	}

	if errors.Is(context.Cause(runCtx), ErrStalled) {
		logger.Warnf(ctx, "ffmpeg for %s killed: %v", req.Quality.Label, ErrStalled)
		return fail(model.Errorf(model.CodeFFmpegError, "%w after %s", ErrStalled, t.stallTimeout))
	}
	if ctx.Err() != nil {
		return fail(model.NewError(model.CodeFFmpegError, ctx.Err()))
	}
	if waitErr != nil {
		return fail(model.Errorf(model.CodeFFmpegError, "ffmpeg %s: %v: %s",
			req.Quality.Label, waitErr, lastLine(stderr.String())))
	}

	info, err := os.Stat(partPath)
	if err != nil {
		return fail(model.Errorf(model.CodeFFmpegError, "ffmpeg %s produced no output", req.Quality.Label))
	}
	if info.Size() == 0 {
		return fail(model.Errorf(model.CodeFFmpegError, "ffmpeg %s produced an empty output", req.Quality.Label))
	}
	if err := os.Rename(partPath, req.OutputPath); err != nil {
		return fail(model.Errorf(model.CodeFFmpegError, "finalise output: %w", err))
	}

	if last < 100 {
		onProgress(Progress{Frames: parser.cur.Frames, Timemark: parser.cur.Timemark, Percent: 100, Done: true})
	}
	return req.OutputPath, nil
}

func ping(activity chan<- struct{}) {
	select {
	case activity <- struct{}{}:
	default:
	}
}

// activityWriter discards output but still counts it as progress for the stall watchdog.
type activityWriter chan<- struct{}

func (w activityWriter) Write(p []byte) (int, error) {
	ping(w)
	return len(p), nil
}

// watchStall cancels the run when no output line arrived within timeout.
func watchStall(ctx context.Context, timeout time.Duration, activity <-chan struct{}, done chan<- struct{}, cancel context.CancelCauseFunc) {
	defer close(done)
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-activity:
			timer.Reset(timeout)
		case <-timer.C:
			cancel(ErrStalled)
			return
		}
	}
}

func buildArgs(req Request, out string) []string {
	q := req.Quality
	args := []string{"-hide_banner", "-nostdin", "-y", "-i", req.SourcePath}
	if q.Height > 0 {
		args = append(args, "-vf", fmt.Sprintf("scale=-2:%d", q.Height))
	}
	args = append(args, "-c:v", "libx264", "-preset", "veryfast")
	if q.VideoBitrate > 0 {
		args = append(args,
			"-b:v", fmt.Sprintf("%dk", q.VideoBitrate),
			"-maxrate", fmt.Sprintf("%dk", q.VideoBitrate*107/100),
			"-bufsize", fmt.Sprintf("%dk", q.VideoBitrate*2),
		)
	}
	args = append(args, "-c:a", "aac")
	if q.AudioBitrate > 0 {
		args = append(args, "-b:a", fmt.Sprintf("%dk", q.AudioBitrate))
	}
	return append(args,
		"-movflags", "+faststart",
		"-progress", "pipe:1",
		"-nostats",
		"-f", "mp4",
		out,
	)
}

func removePart(ctx context.Context, path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warnf(ctx, "could not remove partial output %q: %v", path, err)
	}
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
