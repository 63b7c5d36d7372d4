package ladder

import (
	"fmt"

	"github.com/fhuszti/videos-ms-go/internal/model"
)

// catalogue lists every preset an administrator may enable, lowest first.
// Bitrates are kbit/s.
var catalogue = []model.Quality{
	{Label: "144p", Width: 256, Height: 144, VideoBitrate: 200, AudioBitrate: 64},
	{Label: "240p", Width: 426, Height: 240, VideoBitrate: 400, AudioBitrate: 64},
	{Label: "360p", Width: 640, Height: 360, VideoBitrate: 800, AudioBitrate: 96},
	{Label: "480p", Width: 854, Height: 480, VideoBitrate: 1400, AudioBitrate: 128},
	{Label: "720p", Width: 1280, Height: 720, VideoBitrate: 2800, AudioBitrate: 128},
	{Label: "1080p", Width: 1920, Height: 1080, VideoBitrate: 5000, AudioBitrate: 192},
	{Label: "1440p", Width: 2560, Height: 1440, VideoBitrate: 9000, AudioBitrate: 192},
	{Label: "2160p", Width: 3840, Height: 2160, VideoBitrate: 16000, AudioBitrate: 192},
}

// Lookup returns the catalogue preset for a label such as "720p".
func Lookup(label string) (model.Quality, bool) {
	for _, q := range catalogue {
		if q.Label == label {
			return q, true
		}
	}
	return model.Quality{}, false
}

// ParsePresets resolves configured labels, keeping their order.
func ParsePresets(labels []string) ([]model.Quality, error) {
	seen := make(map[string]struct{}, len(labels))
	out := make([]model.Quality, 0, len(labels))
	for _, l := range labels {
		q, ok := Lookup(l)
		if !ok {
			return nil, fmt.Errorf("unknown quality preset %q", l)
		}
		if _, dup := seen[l]; dup {
			return nil, fmt.Errorf("quality preset %q configured twice", l)
		}
		seen[l] = struct{}{}
		out = append(out, q)
	}
	return out, nil
}
