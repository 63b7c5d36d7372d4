package mock

import (
	"context"

	"github.com/fhuszti/videos-ms-go/internal/port"
)

// HTTPRenderer implements renderer.HTTPRenderer for tests.
type HTTPRenderer struct {
	// stored values
	VideoOut []byte

	// etag values
	EtagVideo string

	// captured inputs
	GotVideoID string

	// errors
	GetVideoErr error

	// call flags
	GetVideoCalled bool
}

func (m *HTTPRenderer) RenderGetVideo(ctx context.Context, getter port.VideoGetter, id string) ([]byte, string, error) {
	m.GetVideoCalled = true
	m.GotVideoID = id
	return m.VideoOut, m.EtagVideo, m.GetVideoErr
}

// VideoGetter implements port.VideoGetter for tests.
type VideoGetter struct {
	Out    port.GetVideoOutput
	Err    error
	Called bool
}

func (m *VideoGetter) GetVideo(ctx context.Context, id string) (port.GetVideoOutput, error) {
	m.Called = true
	return m.Out, m.Err
}
