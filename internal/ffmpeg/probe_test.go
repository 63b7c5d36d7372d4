package ffmpeg

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/fhuszti/videos-ms-go/internal/model"
)

func newTestProber(scenario string, timeout time.Duration, l *countingLimiter) *Prober {
	p := NewProber("ffprobe", timeout, nil)
	if l != nil {
		p.limiter = l
	}
	p.command = fakeCommand(scenario)
	return p
}

func TestProbe_Success(t *testing.T) {
	l := &countingLimiter{}
	p := newTestProber("probe_ok", 5*time.Second, l)
	src := writeSource(t)

	res, err := p.Probe(context.Background(), src)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if len(res.Streams) != 2 {
		t.Fatalf("expected 2 streams, got %d", len(res.Streams))
	}
	vs, ok := res.VideoStream()
	if !ok || vs.Width != 1280 || vs.Height != 720 {
		t.Errorf("video stream = %+v", vs)
	}
	if l.acquired != 1 || l.released != 1 {
		t.Errorf("limiter acquired=%d released=%d; want 1/1", l.acquired, l.released)
	}
}

func TestProbe_Idempotent(t *testing.T) {
	p := newTestProber("probe_ok", 5*time.Second, nil)
	src := writeSource(t)

	first, err := p.Probe(context.Background(), src)
	if err != nil {
		t.Fatalf("first Probe: %v", err)
	}
	second, err := p.Probe(context.Background(), src)
	if err != nil {
		t.Fatalf("second Probe: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("probe results differ:\n%+v\n%+v", first, second)
	}
}

func TestProbe_Failures(t *testing.T) {
	tests := []struct {
		name     string
		scenario string
		missing  bool
	}{
		{"non-zero exit", "probe_fail", false},
		{"unparseable output", "probe_bad_json", false},
		{"missing file", "probe_ok", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := newTestProber(tc.scenario, 5*time.Second, nil)
			src := writeSource(t)
			if tc.missing {
				src += ".gone"
			}
			res, err := p.Probe(context.Background(), src)
			if err == nil {
				t.Fatalf("expected error, got result %+v", res)
			}
			if code := model.CodeOf(err); code != model.CodeMetadataExtraction {
				t.Errorf("code = %q; want %q", code, model.CodeMetadataExtraction)
			}
			if !errors.Is(err, model.ErrMetadataExtraction) {
				t.Errorf("expected errors.Is ErrMetadataExtraction, got %v", err)
			}
			if IsTransient(err) {
				t.Errorf("expected non-transient error, got %v", err)
			}
		})
	}
}

func TestProbe_TimeoutKillsProcess(t *testing.T) {
	p := newTestProber("hang", 200*time.Millisecond, nil)
	src := writeSource(t)

	start := time.Now()
	_, err := p.Probe(context.Background(), src)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Errorf("probe returned after %v; expected the hung process to be killed", elapsed)
	}
	if !errors.Is(err, ErrProbeTimeout) || !IsTransient(err) {
		t.Errorf("expected transient ErrProbeTimeout, got %v", err)
	}
	if code := model.CodeOf(err); code != model.CodeMetadataExtraction {
		t.Errorf("code = %q; want %q", code, model.CodeMetadataExtraction)
	}
}

func TestApplyProbe(t *testing.T) {
	p := newTestProber("probe_ok", 5*time.Second, nil)
	res, err := p.Probe(context.Background(), writeSource(t))
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}

	var meta model.VideoMetadata
	if err := ApplyProbe(&meta, res); err != nil {
		t.Fatalf("ApplyProbe: %v", err)
	}
	if meta.Width != 1280 || meta.Height != 720 || meta.Codec != "h264" {
		t.Errorf("video fields = %dx%d %s", meta.Width, meta.Height, meta.Codec)
	}
	if meta.FPS < 29.96 || meta.FPS > 29.98 {
		t.Errorf("FPS = %v; want ~29.97", meta.FPS)
	}
	if meta.Duration != 4.004 || meta.Bitrate != 2600000 {
		t.Errorf("duration/bitrate = %v/%d", meta.Duration, meta.Bitrate)
	}
	if meta.AudioCodec != "aac" || meta.Channels != 2 {
		t.Errorf("audio = %s/%d", meta.AudioCodec, meta.Channels)
	}
	if got := EstimateFrames(res); got != 120 {
		t.Errorf("EstimateFrames = %d; want 120", got)
	}

	audioOnly := &model.ProbeResult{Streams: []model.ProbeStream{{CodecType: "audio", CodecName: "mp3"}}}
	if err := ApplyProbe(&meta, audioOnly); model.CodeOf(err) != model.CodeMetadataExtraction {
		t.Errorf("audio-only probe: got %v; want METADATA_EXTRACTION_FAILED", err)
	}
}

func TestParseRate(t *testing.T) {
	tests := map[string]float64{
		"30/1":       30,
		"25":         25,
		"0/0":        0,
		"":           0,
		"abc/1":      0,
		"24000/1001": 24000.0 / 1001.0,
	}
	for in, want := range tests {
		if got := parseRate(in); got != want {
			t.Errorf("parseRate(%q) = %v; want %v", in, got, want)
		}
	}
}
