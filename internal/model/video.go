package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"slices"
	"time"
)

type VideoMetadata struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Size           int64     `json:"size"`
	MimeType       string    `json:"mimeType"`
	UploadedAt     time.Time `json:"uploadedAt"`
	Qualities      Qualities `json:"qualities"`
	IsTranscoded   bool      `json:"isTranscoded"`
	FailureMessage *string   `json:"failureMessage,omitempty"`

	// technical fields, filled from the probe
	Duration   float64 `json:"duration,omitempty"`
	Width      int     `json:"width,omitempty"`
	Height     int     `json:"height,omitempty"`
	Codec      string  `json:"codec,omitempty"`
	FPS        float64 `json:"fps,omitempty"`
	Bitrate    int64   `json:"bitrate,omitempty"`
	AudioCodec string  `json:"audioCodec,omitempty"`
	Channels   int     `json:"channels,omitempty"`
	Format     string  `json:"format,omitempty"`

	UpdatedAt time.Time `json:"updatedAt"`
}

// AddQuality records a produced variant. Qualities only grow, so a label already present is ignored.
func (v *VideoMetadata) AddQuality(label string) {
	if slices.Contains(v.Qualities, label) {
		return
	}
	v.Qualities = append(v.Qualities, label)
}

// Qualities is the set of produced variant labels, stored as a JSON array.
type Qualities []string

func (q Qualities) Value() (driver.Value, error) {
	if q == nil {
		q = Qualities{}
	}
	b, err := json.Marshal([]string(q))
	if err != nil {
		return nil, fmt.Errorf("marshal Qualities: %w", err)
	}
	return b, nil
}

func (q *Qualities) Scan(src interface{}) error {
	if src == nil {
		*q = nil
		return nil
	}
	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("Qualities.Scan: expected []byte, got %T", src)
	}
	if err := json.Unmarshal(data, (*[]string)(q)); err != nil {
		return fmt.Errorf("unmarshal Qualities: %w", err)
	}
	return nil
}
