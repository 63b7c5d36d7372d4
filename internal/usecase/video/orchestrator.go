package video

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fhuszti/videos-ms-go/internal/ffmpeg"
	"github.com/fhuszti/videos-ms-go/internal/ladder"
	"github.com/fhuszti/videos-ms-go/internal/logger"
	"github.com/fhuszti/videos-ms-go/internal/metrics"
	"github.com/fhuszti/videos-ms-go/internal/model"
	"github.com/fhuszti/videos-ms-go/internal/port"
	"golang.org/x/sync/errgroup"
)

const (
	VariantExt  = ".mp4"
	PosterName  = "poster.webp"
	posterRatio = 0.1
)

type OrchestratorConfig struct {
	StreamsDir string
	Presets    []model.Quality
	// Parallelism is how many qualities of one job may encode at once; 1 runs the ladder in order.
	Parallelism int
	// TransientRetries is how often a stalled probe or stage is retried.
	TransientRetries int
}

// Orchestrator runs the whole pipeline of one persisted upload: probe, plan, the
// ladder of encodes, then the catalog update.
type Orchestrator struct {
	cfg        OrchestratorConfig
	prober     Prober
	transcoder Transcoder
	repo       port.VideoRepository
	cache      port.Cache
	publisher  port.ProgressPublisher
	poster     PosterEncoder
	mirror     port.Storage
	now        func() time.Time
}

// NewOrchestrator builds an Orchestrator. poster and mirror are optional.
func NewOrchestrator(cfg OrchestratorConfig, prober Prober, transcoder Transcoder, repo port.VideoRepository, cache port.Cache, publisher port.ProgressPublisher, poster PosterEncoder, mirror port.Storage) *Orchestrator {
	if cfg.Parallelism < 1 {
		cfg.Parallelism = 1
	}
	if cfg.TransientRetries < 0 {
		cfg.TransientRetries = 0
	}
	return &Orchestrator{
		cfg:        cfg,
		prober:     prober,
		transcoder: transcoder,
		repo:       repo,
		cache:      cache,
		publisher:  publisher,
		poster:     poster,
		mirror:     mirror,
		now:        time.Now,
	}
}

// VariantPath is where the quality label of videoID is stored.
func VariantPath(streamsDir, videoID, label string) string {
	return filepath.Join(streamsDir, videoID, label+VariantExt)
}

// Run transcodes req into every planned quality. The first failing stage fails the job:
// the video keeps the qualities finished so far but is not marked transcoded.
// The source upload is deleted once the job ends, unless the job was cancelled.
func (o *Orchestrator) Run(ctx context.Context, req model.TranscodeRequest) (*model.VideoMetadata, error) {
	defer o.removeSource(ctx, req.SourcePath)
	tracker := newJobTracker(ctx, o.publisher, req)
	tracker.idle()
	logger.Infof(ctx, "🚀 transcode of video %s (upload %s) started", req.VideoID, req.UploadID)

	now := o.now()
	meta := &model.VideoMetadata{
		ID:         req.VideoID,
		Name:       req.VideoName,
		Size:       req.SizeBytes,
		MimeType:   req.MimeType,
		UploadedAt: now,
		Qualities:  model.Qualities{},
		UpdatedAt:  now,
	}

	res, err := o.probe(ctx, req.SourcePath)
	if err == nil {
		err = ffmpeg.ApplyProbe(meta, res)
	}
	if err != nil {
		return meta, o.fail(ctx, tracker, meta, model.AsPipelineError(err, model.CodeMetadataExtraction))
	}
	if err := o.save(ctx, meta); err != nil {
		return meta, o.fail(ctx, tracker, meta, model.AsPipelineError(err, model.CodeTranscodeFailed))
	}

	plan := ladder.Plan(*meta, o.cfg.Presets)
	tracker.planned(len(plan))
	logger.Infof(ctx, "video %s (%dx%d) planned ladder: %v", meta.ID, meta.Width, meta.Height, labelsOf(plan))
	o.removeStaleVariants(ctx, meta.ID, plan)

	base := ffmpeg.Request{
		SourcePath:  req.SourcePath,
		Duration:    time.Duration(meta.Duration * float64(time.Second)),
		TotalFrames: ffmpeg.EstimateFrames(res),
	}
	if err := o.runLadder(ctx, tracker, meta, plan, base); err != nil {
		return meta, o.fail(ctx, tracker, meta, model.AsPipelineError(err, model.CodeTranscodeFailed))
	}

	o.writePoster(ctx, meta, req.SourcePath)

	meta.IsTranscoded = true
	meta.FailureMessage = nil
	meta.UpdatedAt = o.now()
	if err := o.save(ctx, meta); err != nil {
		return meta, o.fail(ctx, tracker, meta, model.AsPipelineError(err, model.CodeTranscodeFailed))
	}

	tracker.complete()
	metrics.TranscodeJobsTotal.WithLabelValues(string(model.StageCompleted)).Inc()
	logger.Infof(ctx, "✅  video %s transcoded into %v", meta.ID, []string(meta.Qualities))

	o.mirrorVariants(ctx, meta)
	return meta, nil
}

// removeSource deletes the persisted upload. A cancelled job keeps it so the
// transcode can be retried; the storage sweep reclaims it otherwise.
func (o *Orchestrator) removeSource(ctx context.Context, path string) {
	if cause := context.Cause(ctx); cause != nil {
		logger.Infof(ctx, "keeping source %s of cancelled job: %v", path, cause)
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warnf(ctx, "⚠️  could not remove source %s: %v", path, err)
	}
}

// removeStaleVariants deletes the variants a previous transcode of the video left
// for qualities the new plan does not contain, locally and in the mirror.
func (o *Orchestrator) removeStaleVariants(ctx context.Context, videoID string, plan []model.Quality) {
	dir := filepath.Join(o.cfg.StreamsDir, videoID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Warnf(ctx, "⚠️  listing variants of video %s: %v", videoID, err)
		}
		return
	}
	planned := make(map[string]bool, len(plan))
	for _, q := range plan {
		planned[q.Label+VariantExt] = true
	}
	for _, e := range entries {
		name := strings.TrimSuffix(e.Name(), ffmpeg.PartSuffix)
		if e.IsDir() || !strings.HasSuffix(name, VariantExt) || planned[name] {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warnf(ctx, "⚠️  could not remove stale variant %s of video %s: %v", e.Name(), videoID, err)
			continue
		}
		logger.Infof(ctx, "removed stale variant %s of video %s", e.Name(), videoID)
		if o.mirror != nil && name == e.Name() {
			if err := o.mirror.RemoveFile(ctx, videoID+"/"+name); err != nil {
				logger.Warnf(ctx, "⚠️  could not remove mirrored %s/%s: %v", videoID, name, err)
			}
		}
	}
}

func (o *Orchestrator) probe(ctx context.Context, path string) (*model.ProbeResult, error) {
	var (
		res *model.ProbeResult
		err error
	)
	for attempt := 0; attempt <= o.cfg.TransientRetries; attempt++ {
		if attempt > 0 {
			metrics.TranscodeRetriesTotal.WithLabelValues("probe").Inc()
			logger.Warnf(ctx, "⚠️  probe of %s timed out, retrying (%d/%d)", path, attempt, o.cfg.TransientRetries)
		}
		res, err = o.prober.Probe(ctx, path)
		if err == nil || !ffmpeg.IsTransient(err) || ctx.Err() != nil {
			break
		}
	}
	return res, err
}

// runLadder encodes every quality of plan, at most Parallelism at a time, and stops
// at the first failure.
func (o *Orchestrator) runLadder(ctx context.Context, tracker *jobTracker, meta *model.VideoMetadata, plan []model.Quality, base ffmpeg.Request) error {
	var metaMu sync.Mutex

	runStage := func(ctx context.Context, i int, q model.Quality) error {
		tracker.stageStarted(i, q.Label)
		req := base
		req.Quality = q
		req.OutputPath = VariantPath(o.cfg.StreamsDir, meta.ID, q.Label)

		start := o.now()
		err := o.encode(ctx, tracker, i, req)
		status := "ok"
		if err != nil {
			status = "failed"
		}
		metrics.TranscodeStageDuration.WithLabelValues(q.Label, status).Observe(o.now().Sub(start).Seconds())
		if err != nil {
			return model.AsPipelineError(err, model.CodeFFmpegError).WithStage(model.TranscodingStage(q.Label))
		}
		tracker.stageDone(i)

		metaMu.Lock()
		defer metaMu.Unlock()
		meta.AddQuality(q.Label)
		meta.UpdatedAt = o.now()
		if err := o.save(ctx, meta); err != nil {
			return model.AsPipelineError(err, model.CodeTranscodeFailed).WithStage(model.TranscodingStage(q.Label))
		}
		return nil
	}

	if o.cfg.Parallelism == 1 {
		for i, q := range plan {
			if err := runStage(ctx, i, q); err != nil {
				return err
			}
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Parallelism)
	for i, q := range plan {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return runStage(gctx, i, q)
		})
	}
	return g.Wait()
}

// encode runs one stage, retrying a stalled encode up to TransientRetries times.
func (o *Orchestrator) encode(ctx context.Context, tracker *jobTracker, i int, req ffmpeg.Request) error {
	var err error
	for attempt := 0; attempt <= o.cfg.TransientRetries; attempt++ {
		if attempt > 0 {
			metrics.TranscodeRetriesTotal.WithLabelValues("transcode").Inc()
			logger.Warnf(ctx, "⚠️  %s of video %s stalled, retrying (%d/%d)", req.Quality.Label, filepath.Base(filepath.Dir(req.OutputPath)), attempt, o.cfg.TransientRetries)
		}
		_, err = o.transcoder.Run(ctx, req, func(p ffmpeg.Progress) {
			tracker.stageProgress(i, req.Quality.Label, p)
		})
		if err == nil || !ffmpeg.IsTransient(err) || ctx.Err() != nil {
			return err
		}
	}
	return err
}

// fail records the failure on the video and publishes the terminal event. It runs
// detached from ctx so a cancelled job still reports why it ended.
func (o *Orchestrator) fail(ctx context.Context, tracker *jobTracker, meta *model.VideoMetadata, perr *model.PipelineError) error {
	if cause := context.Cause(ctx); cause != nil && !errors.Is(perr, cause) {
		perr = model.Errorf(perr.Code, "%s (%v)", perr.Message(), cause).WithStage(perr.Stage)
	}
	tracker.fail(perr)
	metrics.TranscodeJobsTotal.WithLabelValues(string(model.StageFailed)).Inc()
	logger.Errorf(ctx, "❌  transcode of video %s failed: %v", meta.ID, perr)

	dctx := context.WithoutCancel(ctx)
	msg := perr.Message()
	meta.IsTranscoded = false
	meta.FailureMessage = &msg
	meta.UpdatedAt = o.now()
	if err := o.save(dctx, meta); err != nil {
		logger.Errorf(dctx, "❌  could not record failure of video %s: %v", meta.ID, err)
	}
	return perr
}

func (o *Orchestrator) save(ctx context.Context, meta *model.VideoMetadata) error {
	if err := o.repo.Save(ctx, meta); err != nil {
		return fmt.Errorf("save video %s: %w", meta.ID, err)
	}
	if err := o.cache.DeleteVideoDetails(ctx, meta.ID); err != nil {
		logger.Warnf(ctx, "could not invalidate cache of video %s: %v", meta.ID, err)
	}
	return nil
}

// writePoster stores a WebP still next to the variants. Failures are only logged.
func (o *Orchestrator) writePoster(ctx context.Context, meta *model.VideoMetadata, src string) {
	if o.poster == nil {
		return
	}
	offset := time.Duration(meta.Duration * posterRatio * float64(time.Second))
	img, err := o.transcoder.GrabFrame(ctx, src, offset)
	if err != nil {
		logger.Warnf(ctx, "⚠️  poster frame of video %s: %v", meta.ID, err)
		return
	}
	data, err := o.poster.Encode(img)
	if err != nil {
		logger.Warnf(ctx, "⚠️  poster encoding of video %s: %v", meta.ID, err)
		return
	}

	dir := filepath.Join(o.cfg.StreamsDir, meta.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		logger.Warnf(ctx, "⚠️  poster of video %s: %v", meta.ID, err)
		return
	}
	path := filepath.Join(dir, PosterName)
	tmp := path + ffmpeg.PartSuffix
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		logger.Warnf(ctx, "⚠️  poster of video %s: %v", meta.ID, err)
		return
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		logger.Warnf(ctx, "⚠️  poster of video %s: %v", meta.ID, err)
	}
}

// mirrorVariants copies the finished variants and poster to the object store.
// Failures are only logged, the local copies stay authoritative.
func (o *Orchestrator) mirrorVariants(ctx context.Context, meta *model.VideoMetadata) {
	if o.mirror == nil {
		return
	}
	dir := filepath.Join(o.cfg.StreamsDir, meta.ID)
	for _, label := range meta.Qualities {
		o.mirrorFile(ctx, filepath.Join(dir, label+VariantExt), meta.ID+"/"+label+VariantExt, "video/mp4")
	}
	if o.poster != nil {
		o.mirrorFile(ctx, filepath.Join(dir, PosterName), meta.ID+"/"+PosterName, "image/webp")
	}
}

func (o *Orchestrator) mirrorFile(ctx context.Context, path, key, contentType string) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return
	}
	if err != nil {
		logger.Warnf(ctx, "⚠️  mirror of %s: %v", path, err)
		return
	}
	defer func(f *os.File) {
		if err := f.Close(); err != nil {
			logger.Debugf(ctx, "close of %s: %v", path, err)
		}
	}(f)

	info, err := f.Stat()
	if err != nil {
		logger.Warnf(ctx, "⚠️  mirror of %s: %v", path, err)
		return
	}
	if err := o.mirror.SaveFile(ctx, key, f, info.Size(), map[string]string{
		"Content-Type": contentType,
	}); err != nil {
		logger.Warnf(ctx, "⚠️  mirror of %s to %s: %v", path, key, err)
		return
	}

	// a truncated object would be served as a broken variant
	stored, err := o.mirror.StatFile(ctx, key)
	if err != nil {
		logger.Warnf(ctx, "⚠️  mirror of %s: could not verify %s: %v", path, key, err)
		return
	}
	if stored.SizeBytes != info.Size() {
		logger.Errorf(ctx, "❌  mirror of %s: %s holds %d bytes, expected %d, removing it", path, key, stored.SizeBytes, info.Size())
		if err := o.mirror.RemoveFile(ctx, key); err != nil {
			logger.Warnf(ctx, "⚠️  could not remove %s: %v", key, err)
		}
	}
}

func labelsOf(qs []model.Quality) []string {
	out := make([]string, len(qs))
	for i, q := range qs {
		out[i] = q.Label
	}
	return out
}
