package task

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/fhuszti/videos-ms-go/internal/model"
	"github.com/hibiken/asynq"
)

const TypeTranscodeVideo = "video:transcode"

// QueueName is the asynq queue transcodes are enqueued on and served from.
const QueueName = "default"

// TranscodeTimeout bounds one transcode task; asynq would otherwise stop it after 30 minutes.
const TranscodeTimeout = 6 * time.Hour

// maxRetry only covers tasks a worker could not admit, e.g. while it was shutting down.
const maxRetry = 3

type TranscodeVideoPayload = model.TranscodeRequest

// TaskID is the asynq task ID of a video's transcode. Only one can be queued per video.
func TaskID(videoID string) string {
	return "transcode:" + videoID
}

// NewTranscodeVideoTask creates an Asynq task for transcoding a persisted upload.
func NewTranscodeVideoTask(p TranscodeVideoPayload) (*asynq.Task, error) {
	if p.VideoID == "" || p.SourcePath == "" {
		return nil, fmt.Errorf("transcode task needs a video id and a source path")
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("could not marshal transcode-video payload: %w", err)
	}
	return asynq.NewTask(TypeTranscodeVideo, data,
		asynq.Queue(QueueName),
		asynq.TaskID(TaskID(p.VideoID)),
		asynq.MaxRetry(maxRetry),
		asynq.Timeout(TranscodeTimeout),
	), nil
}

// ParseTranscodeVideoPayload parses the task payload to TranscodeVideoPayload.
func ParseTranscodeVideoPayload(t *asynq.Task) (TranscodeVideoPayload, error) {
	var p TranscodeVideoPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return TranscodeVideoPayload{}, fmt.Errorf("could not unmarshal payload: %w", err)
	}
	return p, nil
}
