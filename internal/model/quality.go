package model

// Quality is one rung of the ladder: a target resolution and bitrate.
// A zero Height means "keep the source resolution".
type Quality struct {
	Label        string `json:"label"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	VideoBitrate int    `json:"videoBitrate"` // kbit/s
	AudioBitrate int    `json:"audioBitrate"` // kbit/s
}
