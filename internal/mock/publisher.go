package mock

import (
	"context"
	"sync"

	"github.com/fhuszti/videos-ms-go/internal/model"
)

// Publisher implements port.ProgressPublisher and records every event.
type Publisher struct {
	mu        sync.Mutex
	uploads   []model.UploadProgressEvent
	transcode []model.TranscodeProgressEvent
}

func (p *Publisher) PublishUpload(ctx context.Context, ev model.UploadProgressEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.uploads = append(p.uploads, ev)
}

func (p *Publisher) PublishTranscode(ctx context.Context, ev model.TranscodeProgressEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.transcode = append(p.transcode, ev)
}

func (p *Publisher) Uploads() []model.UploadProgressEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]model.UploadProgressEvent(nil), p.uploads...)
}

func (p *Publisher) Transcodes() []model.TranscodeProgressEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]model.TranscodeProgressEvent(nil), p.transcode...)
}
