package model

const (
	TopicUploadProgress    = "upload:progress"
	TopicTranscodeProgress = "transcode:progress"
)

type UploadProgressEvent struct {
	UploadID      string       `json:"uploadId"`
	VideoID       string       `json:"videoId,omitempty"`
	VideoName     string       `json:"videoName"`
	BytesReceived int64        `json:"bytesReceived"`
	TotalBytes    int64        `json:"totalBytes"`
	Percent       float64      `json:"percent"`
	Status        UploadStatus `json:"status"`
	Error         string       `json:"error,omitempty"`
	ErrorCode     Code         `json:"errorCode,omitempty"`
}

type TranscodeProgressEvent struct {
	UploadID               string   `json:"uploadId"`
	VideoID                string   `json:"videoId"`
	VideoName              string   `json:"videoName"`
	CurrentStage           Stage    `json:"currentStage"`
	StageProgressPercent   float64  `json:"stageProgressPercent"`
	OverallProgressPercent float64  `json:"overallProgressPercent"`
	CurrentFPS             *float64 `json:"currentFps,omitempty"`
	Error                  string   `json:"error,omitempty"`
	ErrorCode              Code     `json:"errorCode,omitempty"`
}

func (s UploadSession) ProgressEvent() UploadProgressEvent {
	return UploadProgressEvent{
		UploadID:      s.UploadID,
		VideoID:       s.VideoID,
		VideoName:     s.VideoName,
		BytesReceived: s.BytesReceived,
		TotalBytes:    s.TotalBytes,
		Percent:       s.Percent,
		Status:        s.Status,
		Error:         s.Error,
		ErrorCode:     s.ErrorCode,
	}
}

func (j TranscodeJob) ProgressEvent() TranscodeProgressEvent {
	return TranscodeProgressEvent{
		UploadID:               j.UploadID,
		VideoID:                j.VideoID,
		VideoName:              j.VideoName,
		CurrentStage:           j.CurrentStage,
		StageProgressPercent:   j.StageProgressPercent,
		OverallProgressPercent: j.OverallProgressPercent,
		CurrentFPS:             j.CurrentFPS,
		Error:                  j.Error,
		ErrorCode:              j.ErrorCode,
	}
}
