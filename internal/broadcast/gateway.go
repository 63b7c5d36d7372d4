package broadcast

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/fhuszti/videos-ms-go/internal/logger"
	"github.com/fhuszti/videos-ms-go/internal/metrics"
	"github.com/fhuszti/videos-ms-go/internal/model"
	"github.com/fhuszti/videos-ms-go/internal/port"
)

// Sink is the real-time transport events are handed to.
type Sink interface {
	Publish(ctx context.Context, msg Message) error
}

// Message is what a Sink receives: the event JSON, scoped by topic and upload.
type Message struct {
	Topic    string          `json:"topic"`
	UploadID string          `json:"uploadId"`
	Payload  json.RawMessage `json:"payload"`
}

const (
	defaultBuffer       = 256
	defaultTerminalWait = time.Second
	publishTimeout      = 5 * time.Second
)

// Gateway queues events in a bounded buffer and delivers them to the sink from a single
// goroutine, so per-upload order is kept. Progress events are dropped when the buffer is
// full; terminal events wait up to a short bound first.
type Gateway struct {
	sink         Sink
	queue        chan Message
	terminalWait time.Duration

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

var _ port.ProgressPublisher = (*Gateway)(nil)

func NewGateway(sink Sink, buffer int) *Gateway {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	g := &Gateway{
		sink:         sink,
		queue:        make(chan Message, buffer),
		terminalWait: defaultTerminalWait,
		done:         make(chan struct{}),
	}
	go g.run()
	return g
}

func (g *Gateway) PublishUpload(ctx context.Context, ev model.UploadProgressEvent) {
	terminal := ev.Status != model.UploadStatusUploading
	g.publish(ctx, model.TopicUploadProgress, ev.UploadID, ev, terminal)
}

func (g *Gateway) PublishTranscode(ctx context.Context, ev model.TranscodeProgressEvent) {
	g.publish(ctx, model.TopicTranscodeProgress, ev.UploadID, ev, ev.CurrentStage.IsTerminal())
}

func (g *Gateway) publish(ctx context.Context, topic, uploadID string, ev any, terminal bool) {
	payload, err := json.Marshal(ev)
	if err != nil {
		logger.Warnf(ctx, "could not encode %s event for upload %s: %v", topic, uploadID, err)
		return
	}
	msg := Message{Topic: topic, UploadID: uploadID, Payload: payload}

	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.closed {
		metrics.BroadcastDroppedTotal.WithLabelValues(topic).Inc()
		return
	}

	select {
	case g.queue <- msg:
		return
	default:
	}
	if terminal {
		timer := time.NewTimer(g.terminalWait)
		defer timer.Stop()
		select {
		case g.queue <- msg:
			return
		case <-timer.C:
		}
	}
	metrics.BroadcastDroppedTotal.WithLabelValues(topic).Inc()
	logger.Debugf(ctx, "broadcast buffer full, dropped %s event for upload %s", topic, uploadID)
}

func (g *Gateway) run() {
	defer close(g.done)
	for msg := range g.queue {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		if err := g.sink.Publish(ctx, msg); err != nil {
			metrics.BroadcastErrorsTotal.WithLabelValues(msg.Topic).Inc()
			logger.Warnf(ctx, "publish %s for upload %s failed: %v", msg.Topic, msg.UploadID, err)
		} else {
			metrics.BroadcastPublishedTotal.WithLabelValues(msg.Topic).Inc()
		}
		cancel()
	}
}

// Close stops accepting events and waits until the queued ones were delivered or ctx ends.
func (g *Gateway) Close(ctx context.Context) error {
	g.mu.Lock()
	if !g.closed {
		g.closed = true
		close(g.queue)
	}
	g.mu.Unlock()

	select {
	case <-g.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
