package video

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fhuszti/videos-ms-go/internal/logger"
	"github.com/fhuszti/videos-ms-go/internal/metrics"
	"github.com/fhuszti/videos-ms-go/internal/model"
	"github.com/fhuszti/videos-ms-go/internal/port"
	"github.com/google/uuid"
)

// UploadConfig holds the admission limits of the upload manager.
type UploadConfig struct {
	UploadsDir     string
	MaxUploadBytes int64
	AllowedFormats []string
	// ProgressInterval is the minimum delay between two upload:progress events of one upload.
	ProgressInterval time.Duration
}

type BeginUploadInput struct {
	VideoName  string
	TotalBytes int64
	VideoID    string
	UploadID   string
}

// UploadManager owns every in-flight UploadSession.
type UploadManager struct {
	cfg        UploadConfig
	registry   port.JobRegistry
	budget     port.StorageBudget
	publisher  port.ProgressPublisher
	dispatcher Dispatcher
	now        func() time.Time

	mu       sync.Mutex
	sessions map[string]*uploadState
}

type uploadState struct {
	mu        sync.Mutex
	session   model.UploadSession
	job       port.Job
	space     port.Reservation
	file      *os.File
	partPath  string
	finalPath string
	lastEmit  time.Time
}

func NewUploadManager(cfg UploadConfig, registry port.JobRegistry, budget port.StorageBudget, publisher port.ProgressPublisher, dispatcher Dispatcher) *UploadManager {
	if cfg.ProgressInterval <= 0 {
		cfg.ProgressInterval = 500 * time.Millisecond
	}
	return &UploadManager{
		cfg:        cfg,
		registry:   registry,
		budget:     budget,
		publisher:  publisher,
		dispatcher: dispatcher,
		now:        time.Now,
		sessions:   make(map[string]*uploadState),
	}
}

// BeginUpload admits a new upload. Every check runs before the first byte is persisted:
// admission, declared size, format, storage budget (the declared size stays reserved
// until it is written), then the one-job-per-video rule.
func (m *UploadManager) BeginUpload(ctx context.Context, in BeginUploadInput) (model.UploadSession, error) {
	uploadID := in.UploadID
	if uploadID == "" {
		uploadID = uuid.NewString()
	}
	videoID := in.VideoID
	if videoID == "" {
		videoID = uuid.NewString()
	}
	reject := func(err *model.PipelineError) (model.UploadSession, error) {
		metrics.UploadsTotal.WithLabelValues("rejected").Inc()
		logger.Warnf(ctx, "⚠️  upload %s rejected: %v", uploadID, err)
		return model.UploadSession{}, err.WithUpload(uploadID, videoID)
	}

	if !m.registry.Admitting() {
		return reject(model.NewError(model.CodeShuttingDown, nil))
	}
	if uploadID != filepath.Base(uploadID) || strings.HasPrefix(uploadID, ".") {
		return reject(model.Errorf(model.CodeUploadFailed, "upload id %q is not a valid file name", uploadID))
	}
	if in.VideoName == "" || in.TotalBytes <= 0 {
		return reject(model.Errorf(model.CodeNoFile, "no file to upload"))
	}
	if m.cfg.MaxUploadBytes > 0 && in.TotalBytes > m.cfg.MaxUploadBytes {
		return reject(model.Errorf(model.CodeFileTooLarge, "file is %d bytes, the maximum is %d", in.TotalBytes, m.cfg.MaxUploadBytes))
	}
	format := FormatOf(in.VideoName)
	if !slices.Contains(m.cfg.AllowedFormats, format) {
		return reject(model.Errorf(model.CodeInvalidFormat, "format %q is not allowed", format))
	}
	space, err := m.budget.Reserve(ctx, uploadID, in.TotalBytes)
	if err != nil {
		return reject(model.AsPipelineError(err, model.CodeDiskFull))
	}

	job, err := m.registry.Register(uploadID, videoID, model.JobKindUpload)
	if err != nil {
		space.Release()
		return reject(model.AsPipelineError(err, model.CodeDuplicateID))
	}
	active, err := m.dispatcher.VideoActive(ctx, videoID)
	if err != nil || active {
		space.Release()
		job.Done()
		if err != nil {
			return reject(model.Errorf(model.CodeUploadFailed, "check transcodes of video %s: %w", videoID, err))
		}
		return reject(model.Errorf(model.CodeDuplicateID, "video %s is already being transcoded", videoID))
	}

	finalPath := filepath.Join(m.cfg.UploadsDir, uploadID+"."+format)
	partPath := finalPath + ".part"
	f, err := os.OpenFile(partPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		space.Release()
		job.Done()
		if errors.Is(err, os.ErrExist) {
			return reject(model.Errorf(model.CodeDuplicateID, "upload %s already has a file", uploadID))
		}
		return reject(model.Errorf(model.CodeUploadFailed, "create upload file: %w", err))
	}

	now := m.now()
	st := &uploadState{
		session: model.UploadSession{
			UploadID:   uploadID,
			VideoID:    videoID,
			VideoName:  in.VideoName,
			TotalBytes: in.TotalBytes,
			Status:     model.UploadStatusUploading,
			CreatedAt:  now,
			UpdatedAt:  now,
		},
		job:       job,
		space:     space,
		file:      f,
		partPath:  partPath,
		finalPath: finalPath,
		lastEmit:  now,
	}

	m.mu.Lock()
	m.sessions[uploadID] = st
	m.mu.Unlock()
	go m.watch(st)

	logger.Infof(ctx, "🚀 upload %s started for video %s (%q, %d bytes)", uploadID, videoID, in.VideoName, in.TotalBytes)
	m.publisher.PublishUpload(ctx, st.session.ProgressEvent())
	return st.session, nil
}

// WriteChunk appends data to the upload. Progress events are emitted at most once per
// ProgressInterval, plus once when the last byte arrives.
func (m *UploadManager) WriteChunk(ctx context.Context, uploadID string, data []byte) (model.UploadSession, error) {
	st, err := m.lookup(uploadID)
	if err != nil {
		return model.UploadSession{}, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if st.session.IsTerminal() {
		return st.session, model.Errorf(model.CodeUploadFailed, "upload is %s", st.session.Status).
			WithUpload(uploadID, st.session.VideoID)
	}
	if cause := context.Cause(st.job.Context()); cause != nil {
		return st.session, m.fail(ctx, st, model.Errorf(model.CodeUploadFailed, "upload cancelled: %w", cause))
	}
	if len(data) == 0 {
		return st.session, nil
	}

	if st.session.BytesReceived+int64(len(data)) > st.session.TotalBytes {
		return st.session, m.fail(ctx, st, model.Errorf(model.CodeFileTooLarge,
			"received more than the declared %d bytes", st.session.TotalBytes))
	}

	n, err := st.file.Write(data)
	st.session.BytesReceived += int64(n)
	st.space.Written(int64(n))
	metrics.UploadBytesTotal.Add(float64(n))
	if err != nil {
		return st.session, m.fail(ctx, st, model.Errorf(model.CodeUploadFailed, "write chunk: %w", err))
	}

	now := m.now()
	st.session.Percent = model.UploadPercent(st.session.BytesReceived, st.session.TotalBytes)
	st.session.UpdatedAt = now
	if now.Sub(st.lastEmit) >= m.cfg.ProgressInterval || st.session.BytesReceived == st.session.TotalBytes {
		st.lastEmit = now
		m.publisher.PublishUpload(ctx, st.session.ProgressEvent())
	}
	return st.session, nil
}

// CompleteUpload checks the persisted size, moves the file to its final name and hands
// it to the dispatcher. The returned request carries the source path.
func (m *UploadManager) CompleteUpload(ctx context.Context, uploadID string) (model.TranscodeRequest, error) {
	st, err := m.lookup(uploadID)
	if err != nil {
		return model.TranscodeRequest{}, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if st.session.IsTerminal() {
		return model.TranscodeRequest{}, model.Errorf(model.CodeUploadFailed, "upload is %s", st.session.Status).
			WithUpload(uploadID, st.session.VideoID)
	}

	if err := st.file.Close(); err != nil {
		return model.TranscodeRequest{}, m.fail(ctx, st, model.Errorf(model.CodeUploadFailed, "close upload file: %w", err))
	}
	info, err := os.Stat(st.partPath)
	if err != nil {
		return model.TranscodeRequest{}, m.fail(ctx, st, model.Errorf(model.CodeNoFile, "upload file is gone: %w", err))
	}
	if info.Size() != st.session.TotalBytes {
		return model.TranscodeRequest{}, m.fail(ctx, st, model.Errorf(model.CodeUploadFailed,
			"received %d bytes, expected %d", info.Size(), st.session.TotalBytes))
	}
	if err := os.Rename(st.partPath, st.finalPath); err != nil {
		return model.TranscodeRequest{}, m.fail(ctx, st, model.Errorf(model.CodeUploadFailed, "finalise upload file: %w", err))
	}

	st.space.Release()
	st.session.Status = model.UploadStatusUploaded
	st.session.Percent = 100
	st.session.UpdatedAt = m.now()
	m.remove(uploadID)
	metrics.UploadsTotal.WithLabelValues(string(model.UploadStatusUploaded)).Inc()
	m.publisher.PublishUpload(ctx, st.session.ProgressEvent())
	logger.Infof(ctx, "✅  upload %s stored at %s", uploadID, st.finalPath)

	req := model.TranscodeRequest{
		UploadID:   uploadID,
		VideoID:    st.session.VideoID,
		VideoName:  st.session.VideoName,
		SourcePath: st.finalPath,
		SizeBytes:  st.session.TotalBytes,
		MimeType:   MimeTypeOf(FormatOf(st.session.VideoName)),
	}

	st.job.SetKind(model.JobKindTranscode)
	if err := m.dispatcher.Dispatch(ctx, st.job, req); err != nil {
		if rmErr := os.Remove(st.finalPath); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			logger.Warnf(ctx, "could not remove undispatched source %s: %v", st.finalPath, rmErr)
		}
		perr := model.AsPipelineError(err, model.CodeTranscodeFailed).WithUpload(uploadID, req.VideoID)
		m.publisher.PublishTranscode(context.WithoutCancel(ctx), model.TranscodeProgressEvent{
			UploadID:     uploadID,
			VideoID:      req.VideoID,
			VideoName:    req.VideoName,
			CurrentStage: model.StageFailed,
			Error:        perr.Message(),
			ErrorCode:    perr.Code,
		})
		st.job.Done()
		return req, perr
	}
	return req, nil
}

// AbortUpload fails the upload with reason and deletes what was received.
func (m *UploadManager) AbortUpload(ctx context.Context, uploadID, reason string) error {
	st, err := m.lookup(uploadID)
	if err != nil {
		return err
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if st.session.IsTerminal() {
		return nil
	}
	_ = m.fail(ctx, st, model.Errorf(model.CodeUploadFailed, "%s", reason))
	return nil
}

// Session returns a snapshot of an active upload.
func (m *UploadManager) Session(uploadID string) (model.UploadSession, bool) {
	m.mu.Lock()
	st, ok := m.sessions[uploadID]
	m.mu.Unlock()
	if !ok {
		return model.UploadSession{}, false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.session, true
}

// ActiveUploads is the number of sessions still receiving bytes.
func (m *UploadManager) ActiveUploads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// watch fails the upload when its job is cancelled before the last byte arrived, e.g.
// by a drain timeout.
func (m *UploadManager) watch(st *uploadState) {
	<-st.job.Context().Done()

	st.mu.Lock()
	defer st.mu.Unlock()
	if st.session.IsTerminal() {
		return
	}
	cause := context.Cause(st.job.Context())
	_ = m.fail(context.Background(), st, model.Errorf(model.CodeUploadFailed, "upload cancelled: %w", cause))
}

func (m *UploadManager) lookup(uploadID string) (*uploadState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.sessions[uploadID]
	if !ok {
		return nil, model.NewError(model.CodeNotFound, fmt.Errorf("upload %s is not active", uploadID)).WithUpload(uploadID, "")
	}
	return st, nil
}

func (m *UploadManager) remove(uploadID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, uploadID)
}

// fail moves st to failed, removes the partial file and publishes the terminal event
// before releasing the job. st.mu must be held.
func (m *UploadManager) fail(ctx context.Context, st *uploadState, perr *model.PipelineError) error {
	perr = perr.WithUpload(st.session.UploadID, st.session.VideoID)

	if err := st.file.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		logger.Debugf(ctx, "close of %s: %v", st.partPath, err)
	}
	if err := os.Remove(st.partPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Errorf(ctx, "❌  could not remove partial upload %s: %v", st.partPath, err)
	}
	st.space.Release()

	st.session.Status = model.UploadStatusFailed
	st.session.Error = perr.Message()
	st.session.ErrorCode = perr.Code
	st.session.UpdatedAt = m.now()
	m.remove(st.session.UploadID)

	metrics.UploadsTotal.WithLabelValues(string(model.UploadStatusFailed)).Inc()
	logger.Warnf(ctx, "⚠️  upload %s failed: %v", st.session.UploadID, perr)
	m.publisher.PublishUpload(context.WithoutCancel(ctx), st.session.ProgressEvent())
	st.job.Done()
	return perr
}
