package ffmpeg

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/fhuszti/videos-ms-go/internal/logger"
	"github.com/fhuszti/videos-ms-go/internal/metrics"
	"github.com/fhuszti/videos-ms-go/internal/model"
	"github.com/fhuszti/videos-ms-go/internal/port"
)

// Prober runs ffprobe against stored files.
type Prober struct {
	binary  string
	timeout time.Duration
	limiter port.ProcessLimiter
	command CommandFunc
}

func NewProber(binary string, timeout time.Duration, limiter port.ProcessLimiter) *Prober {
	return &Prober{
		binary:  binary,
		timeout: timeout,
		limiter: limiter,
		command: exec.CommandContext,
	}
}

// Probe returns the parsed ffprobe document for path. Any non-zero exit, timeout or
// unparseable output is reported as METADATA_EXTRACTION_FAILED; a timeout also wraps
// ErrProbeTimeout.
func (p *Prober) Probe(ctx context.Context, path string) (*model.ProbeResult, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, model.Errorf(model.CodeMetadataExtraction, "stat source: %w", err)
	}

	release, err := acquire(ctx, p.limiter)
	if err != nil {
		return nil, model.NewError(model.CodeMetadataExtraction, err)
	}
	defer release()

	pctx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		pctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	start := time.Now()
	var stdout bytes.Buffer
	stderr := newTailBuffer(2048)
	cmd := p.command(pctx, p.binary,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	cmd.Stdout = &stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = waitDelay

	runErr := cmd.Run()
	metrics.ProbeDuration.Observe(time.Since(start).Seconds())

	if ctx.Err() != nil {
		return nil, model.NewError(model.CodeMetadataExtraction, ctx.Err())
	}
	if errors.Is(pctx.Err(), context.DeadlineExceeded) {
		logger.Warnf(ctx, "ffprobe on %q killed after %s", path, p.timeout)
		return nil, model.Errorf(model.CodeMetadataExtraction, "%w after %s", ErrProbeTimeout, p.timeout)
	}
	if runErr != nil {
		return nil, model.Errorf(model.CodeMetadataExtraction, "ffprobe: %v: %s", runErr, strings.TrimSpace(stderr.String()))
	}

	var res model.ProbeResult
	if err := json.Unmarshal(stdout.Bytes(), &res); err != nil {
		return nil, model.Errorf(model.CodeMetadataExtraction, "parse ffprobe output: %w", err)
	}
	if len(res.Streams) == 0 {
		return nil, model.Errorf(model.CodeMetadataExtraction, "ffprobe found no streams in %q", path)
	}
	return &res, nil
}

// ApplyProbe copies the technical fields of res into meta. It fails when res has no
// video stream, since nothing could be transcoded from it.
func ApplyProbe(meta *model.VideoMetadata, res *model.ProbeResult) error {
	vs, ok := res.VideoStream()
	if !ok {
		return model.Errorf(model.CodeMetadataExtraction, "no video stream")
	}

	meta.Width = vs.Width
	meta.Height = vs.Height
	meta.Codec = vs.CodecName
	meta.FPS = parseRate(vs.AvgFrameRate)
	if meta.FPS == 0 {
		meta.FPS = parseRate(vs.RFrameRate)
	}
	meta.Format = res.Format.FormatName
	meta.Duration = parseFloat(res.Format.Duration)
	if meta.Duration == 0 {
		meta.Duration = parseFloat(vs.Duration)
	}
	meta.Bitrate = int64(parseFloat(res.Format.BitRate))
	if meta.Bitrate == 0 {
		meta.Bitrate = int64(parseFloat(vs.BitRate))
	}
	if as, ok := res.AudioStream(); ok {
		meta.AudioCodec = as.CodecName
		meta.Channels = as.Channels
	}
	return nil
}

// EstimateFrames returns the video stream's frame count, or duration*fps when ffprobe
// did not report one. Zero means unknown.
func EstimateFrames(res *model.ProbeResult) int64 {
	vs, ok := res.VideoStream()
	if !ok {
		return 0
	}
	if n := int64(parseFloat(vs.NbFrames)); n > 0 {
		return n
	}
	fps := parseRate(vs.AvgFrameRate)
	dur := parseFloat(res.Format.Duration)
	if fps > 0 && dur > 0 {
		return int64(fps * dur)
	}
	return 0
}

// parseRate parses ffprobe rationals such as "30000/1001"; "0/0" and garbage yield 0.
func parseRate(s string) float64 {
	num, den, found := strings.Cut(s, "/")
	if !found {
		return parseFloat(s)
	}
	n, d := parseFloat(num), parseFloat(den)
	if d == 0 {
		return 0
	}
	return n / d
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}
