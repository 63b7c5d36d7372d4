package broadcast

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fhuszti/videos-ms-go/internal/logger"
	"github.com/redis/go-redis/v9"
)

// RedisSink publishes each message on the channel videos:<topic>:<uploadId>.
type RedisSink struct {
	client *redis.Client
}

func NewRedisSink(addr, password string) *RedisSink {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})
	return &RedisSink{client: rdb}
}

func (s *RedisSink) Publish(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal failed: %w", err)
	}
	if err := s.client.Publish(ctx, Channel(msg.Topic, msg.UploadID), data).Err(); err != nil {
		return fmt.Errorf("redis publish failed: %w", err)
	}
	return nil
}

func (s *RedisSink) Close() error {
	return s.client.Close()
}

// Channel is the pub/sub channel clients subscribe to for one upload.
func Channel(topic, uploadID string) string {
	return "videos:" + topic + ":" + uploadID
}

// LogSink writes events to the log; used when no transport is configured.
type LogSink struct{}

func (LogSink) Publish(ctx context.Context, msg Message) error {
	logger.Debug(ctx, "progress event", "topic", msg.Topic, "upload_id", msg.UploadID, "payload", string(msg.Payload))
	return nil
}
