package model

import "strings"

// Stage is the current step of a TranscodeJob.
type Stage string

const (
	StageIdle      Stage = "idle"
	StageCompleted Stage = "completed"
	StageFailed    Stage = "failed"

	stageTranscodingPrefix = "transcoding_"
)

// TranscodingStage returns the stage name for the given quality label, e.g. transcoding_720p.
func TranscodingStage(quality string) Stage {
	return Stage(stageTranscodingPrefix + quality)
}

// Quality returns the quality label of a transcoding stage, or "" for any other stage.
func (s Stage) Quality() string {
	q, ok := strings.CutPrefix(string(s), stageTranscodingPrefix)
	if !ok {
		return ""
	}
	return q
}

func (s Stage) IsTerminal() bool {
	return s == StageCompleted || s == StageFailed
}

// TranscodeJob tracks one accepted upload through its quality ladder.
type TranscodeJob struct {
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

// TranscodeRequest is what the Upload Session Manager hands off once a file is persisted.
type TranscodeRequest struct {
	UploadID   string `json:"upload_id"`
	VideoID    string `json:"video_id"`
	VideoName  string `json:"video_name"`
	SourcePath string `json:"source_path"`
	SizeBytes  int64  `json:"size_bytes"`
	MimeType   string `json:"mime_type"`
}

// JobKind tells the lifecycle coordinator which phase a tracked job is in.
type JobKind string

const (
	JobKindUpload    JobKind = "upload"
	JobKindTranscode JobKind = "transcode"
)
