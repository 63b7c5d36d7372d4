package video

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/fhuszti/videos-ms-go/internal/port"
)

type videoGetterSrv struct {
	repo       port.VideoRepository
	streamsDir string
}

func NewVideoGetter(repo port.VideoRepository, streamsDir string) port.VideoGetter {
	return &videoGetterSrv{repo: repo, streamsDir: streamsDir}
}

func (s *videoGetterSrv) GetVideo(ctx context.Context, id string) (port.GetVideoOutput, error) {
	v, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return port.GetVideoOutput{}, err
	}

	out := port.GetVideoOutput{VideoMetadata: *v, Streams: []port.StreamOutput{}}
	if !v.IsTranscoded {
		return out, nil
	}
	for _, label := range v.Qualities {
		out.Streams = append(out.Streams, port.StreamOutput{
			Quality: label,
			Path:    v.ID + "/" + label + VariantExt,
		})
	}
	if _, err := os.Stat(filepath.Join(s.streamsDir, v.ID, PosterName)); err == nil {
		out.Poster = v.ID + "/" + PosterName
	} else if !errors.Is(err, os.ErrNotExist) {
		return port.GetVideoOutput{}, err
	}
	return out, nil
}
