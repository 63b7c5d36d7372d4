package model

import "time"

type UploadStatus string

const (
	UploadStatusUploading UploadStatus = "uploading"
	UploadStatusUploaded  UploadStatus = "uploaded"
	UploadStatusFailed    UploadStatus = "failed"
)

// UploadSession is one in-flight file transfer. BytesReceived never decreases while the
// status is uploading, and the status leaves uploading exactly once.
type UploadSession struct {
	UploadID      string       `json:"uploadId"`
	VideoID       string       `json:"videoId,omitempty"`
	VideoName     string       `json:"videoName"`
	BytesReceived int64        `json:"bytesReceived"`
	TotalBytes    int64        `json:"totalBytes"`
	Percent       float64      `json:"percent"`
	Status        UploadStatus `json:"status"`
	Error         string       `json:"error,omitempty"`
	ErrorCode     Code         `json:"errorCode,omitempty"`
	CreatedAt     time.Time    `json:"createdAt"`
	UpdatedAt     time.Time    `json:"updatedAt"`
}

// UploadPercent returns received/total as a percentage clamped to [0,100].
func UploadPercent(received, total int64) float64 {
	if total <= 0 || received <= 0 {
		return 0
	}
	p := float64(received) / float64(total) * 100
	if p > 100 {
		return 100
	}
	return p
}

func (s UploadSession) IsTerminal() bool {
	return s.Status == UploadStatusUploaded || s.Status == UploadStatusFailed
}
