package port

import (
	"context"

	"github.com/fhuszti/videos-ms-go/internal/model"
)

type StreamOutput struct {
	Quality string `json:"quality"`
	Path    string `json:"path"`
}

// GetVideoOutput is the catalog view of a video: its metadata plus where its
// variants live, relative to the streams directory.
type GetVideoOutput struct {
	model.VideoMetadata
	Streams []StreamOutput `json:"streams"`
	Poster  string         `json:"poster,omitempty"`
}

type VideoGetter interface {
	GetVideo(ctx context.Context, id string) (GetVideoOutput, error)
}
