package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"strings"
	"time"

	"github.com/fhuszti/videos-ms-go/internal/model"
)

// defaultFrameTimeout bounds a frame grab when no stall timeout is configured.
const defaultFrameTimeout = 30 * time.Second

// GrabFrame decodes the frame of src at offset. A grab prints no progress, so the
// whole call is bounded by the stall timeout instead of a watchdog.
func (t *Transcoder) GrabFrame(ctx context.Context, src string, offset time.Duration) (image.Image, error) {
	release, err := acquire(ctx, t.limiter)
	if err != nil {
		return nil, model.NewError(model.CodeFFmpegError, err)
	}
	defer release()

	timeout := t.stallTimeout
	if timeout <= 0 {
		timeout = defaultFrameTimeout
	}
	ctx, cancel := context.WithTimeoutCause(ctx, timeout, ErrStalled)
	defer cancel()

	var stdout bytes.Buffer
	stderr := newTailBuffer(1024)
	cmd := t.command(ctx, t.binary,
		"-hide_banner", "-nostdin",
		"-ss", fmt.Sprintf("%.3f", offset.Seconds()),
		"-i", src,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "png",
		"pipe:1",
	)
	cmd.Stdout = &stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = waitDelay

	if err := cmd.Run(); err != nil {
		if errors.Is(context.Cause(ctx), ErrStalled) {
			return nil, model.Errorf(model.CodeFFmpegError, "grab frame: %w after %s", ErrStalled, timeout)
		}
		return nil, model.Errorf(model.CodeFFmpegError, "grab frame: %v: %s", err, strings.TrimSpace(stderr.String()))
	}
	img, err := png.Decode(&stdout)
	if err != nil {
		return nil, model.Errorf(model.CodeFFmpegError, "decode frame: %w", err)
	}
	return img, nil
}
