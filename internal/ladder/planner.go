package ladder

import "github.com/fhuszti/videos-ms-go/internal/model"

// SourceLabel names the single pass-through variant planned when no preset is configured.
const SourceLabel = "source"

// Plan returns the configured presets the source can be encoded to without upscaling,
// in configured order. It always returns at least one quality: when every preset is above
// the source, or the source height is unknown, the lowest configured preset is kept and
// encoded at the source resolution.
func Plan(src model.VideoMetadata, presets []model.Quality) []model.Quality {
	if len(presets) == 0 {
		return []model.Quality{{Label: SourceLabel}}
	}

	if src.Height > 0 {
		var planned []model.Quality
		for _, q := range presets {
			if q.Height <= src.Height {
				planned = append(planned, q)
			}
		}
		if len(planned) > 0 {
			return planned
		}
	}

	lowest := presets[0]
	for _, q := range presets[1:] {
		if q.Height < lowest.Height {
			lowest = q
		}
	}
	lowest.Width, lowest.Height = 0, 0
	return []model.Quality{lowest}
}
